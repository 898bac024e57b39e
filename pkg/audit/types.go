package audit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// EventTypeRequest is an HTTP mutation or a refused request.
	EventTypeRequest EventType = "http.request"
	// EventTypeLifecycle is a tenant status, subscription, plan or seat change.
	EventTypeLifecycle EventType = "tenant.lifecycle"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// StatusFromCode classifies an HTTP response. Authentication, billing, policy
// and quota refusals count as denied.
func StatusFromCode(code int) EventStatus {
	switch {
	case code == http.StatusUnauthorized,
		code == http.StatusPaymentRequired,
		code == http.StatusForbidden,
		code == http.StatusTooManyRequests:
		return EventStatusDenied
	case code >= http.StatusBadRequest:
		return EventStatusFailure
	default:
		return EventStatusSuccess
	}
}

// Event is one entry in a tenant's audit trail.
type Event struct {
	ID         string                 `json:"id"`
	Timestamp  time.Time              `json:"timestamp"`
	TenantID   string                 `json:"tenant_id"`
	EventType  EventType              `json:"event_type"`
	Status     EventStatus            `json:"status"`
	UserID     string                 `json:"user_id,omitempty"`
	Role       string                 `json:"role,omitempty"`
	RequestID  string                 `json:"request_id,omitempty"`
	Method     string                 `json:"method,omitempty"`
	Path       string                 `json:"path,omitempty"`
	StatusCode int                    `json:"status_code,omitempty"`
	Message    string                 `json:"message,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

const (
	DefaultSearchLimit = 100
	MaxSearchLimit     = 1000
)

// SearchFilter narrows a Search. TenantID is required; the zero value of the
// other fields matches everything.
type SearchFilter struct {
	TenantID  string
	EventType EventType
	Status    EventStatus
	Since     time.Time
	Until     time.Time
	Limit     int
}

// ErrTenantRequired is returned by Search when the filter names no tenant.
var ErrTenantRequired = errors.New("audit: tenant id is required")

func (f SearchFilter) normalize() (SearchFilter, error) {
	if f.TenantID == "" {
		return f, ErrTenantRequired
	}
	if f.Limit <= 0 {
		f.Limit = DefaultSearchLimit
	}
	if f.Limit > MaxSearchLimit {
		f.Limit = MaxSearchLimit
	}
	if !f.Since.IsZero() && !f.Until.IsZero() && f.Until.Before(f.Since) {
		return f, fmt.Errorf("audit: until %s is before since %s", f.Until, f.Since)
	}
	return f, nil
}

// Logger records audit events.
type Logger interface {
	Log(ctx context.Context, event *Event) error
}

// Store is a Logger that can also be queried and pruned.
type Store interface {
	Logger
	Search(ctx context.Context, filter SearchFilter) ([]*Event, error)
	Cleanup(ctx context.Context, before time.Time) (int64, error)
}
