package audit

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/platinummonkey/crmgate/pkg/gate"
	"github.com/platinummonkey/crmgate/pkg/httputil"
	"github.com/platinummonkey/crmgate/pkg/observability"
	"github.com/platinummonkey/crmgate/pkg/tenants"
)

// Handlers serves a tenant's own audit trail. The tenant always comes from
// the request context, never from the query string.
type Handlers struct {
	store Store
}

// NewHandlers creates new audit handlers
func NewHandlers(store Store) *Handlers {
	return &Handlers{store: store}
}

// ListEvents handles GET requests with optional type, status, since, until
// (RFC 3339) and limit parameters.
func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenants.FromContext(r.Context())
	if !ok {
		httputil.WriteDenial(w, &gate.TenantRequiredError{})
		return
	}

	filter, err := parseFilter(r)
	if err == nil {
		filter.TenantID = tenant.ID
		filter, err = filter.normalize()
	}
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	events, err := h.store.Search(r.Context(), filter)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("Failed to search audit events")
		httputil.WriteInternalError(w)
		return
	}
	if events == nil {
		events = []*Event{}
	}

	_ = httputil.WriteSuccess(w, map[string]interface{}{
		"events": events,
		"count":  len(events),
		"limit":  filter.Limit,
	})
}

func parseFilter(r *http.Request) (SearchFilter, error) {
	q := r.URL.Query()
	f := SearchFilter{
		EventType: EventType(q.Get("type")),
		Status:    EventStatus(q.Get("status")),
	}

	for key, dst := range map[string]*time.Time{"since": &f.Since, "until": &f.Until} {
		v := q.Get(key)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, fmt.Errorf("invalid %s: want RFC 3339 time", key)
		}
		*dst = t
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return f, errors.New("invalid limit: want a positive integer")
		}
		f.Limit = n
	}
	if !f.Since.IsZero() && !f.Until.IsZero() && f.Until.Before(f.Since) {
		return f, errors.New("invalid range: until is before since")
	}
	return f, nil
}
