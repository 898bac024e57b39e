package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/crmgate/pkg/auth"
	"github.com/platinummonkey/crmgate/pkg/observability"
)

// Recorder stamps events with identity from the request context and hands
// them to a Logger. Write failures are logged and never reach the caller.
type Recorder struct {
	logger Logger
	log    *observability.Logger
	now    func() time.Time
}

// NewRecorder creates a recorder. A nil log discards write failures.
func NewRecorder(logger Logger, log *observability.Logger) *Recorder {
	if log == nil {
		log = observability.NewNopLogger()
	}
	return &Recorder{logger: logger, log: log, now: time.Now}
}

// WithClock overrides the timestamp source.
func (r *Recorder) WithClock(now func() time.Time) *Recorder {
	r.now = now
	return r
}

// Record fills in ID, Timestamp, the principal and the request id where the
// event leaves them empty, then logs it.
func (r *Recorder) Record(ctx context.Context, event *Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = r.now().UTC()
	}
	if event.Status == "" {
		event.Status = EventStatusSuccess
	}
	if p, ok := auth.PrincipalFromContext(ctx); ok {
		if event.UserID == "" {
			event.UserID = p.UserID()
		}
		if event.Role == "" {
			event.Role = p.Role().String()
		}
	}
	if event.RequestID == "" {
		event.RequestID = observability.GetRequestID(ctx)
	}

	if err := r.logger.Log(ctx, event); err != nil {
		r.log.WithError(err).WithFields(map[string]interface{}{
			"tenant_id":  event.TenantID,
			"event_type": string(event.EventType),
		}).Warn("Failed to record audit event")
	}
}

// LifecycleEvent records a tenant transition. It satisfies
// tenants.LifecycleObserver.
func (r *Recorder) LifecycleEvent(ctx context.Context, event, tenantID string) {
	r.Record(ctx, &Event{
		TenantID:  tenantID,
		EventType: EventTypeLifecycle,
		Status:    EventStatusSuccess,
		Message:   event,
	})
}
