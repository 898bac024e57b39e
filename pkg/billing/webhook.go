package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"

	"github.com/platinummonkey/crmgate/pkg/httputil"
	"github.com/platinummonkey/crmgate/pkg/observability"
	"github.com/platinummonkey/crmgate/pkg/tenants"
)

// MaxPayloadBytes caps a webhook body.
const MaxPayloadBytes = 64 << 10

const (
	metadataTenantID = "tenant_id"
	metadataPlan     = "plan"
)

// ErrInvalidSignature is returned for payloads that fail verification.
var ErrInvalidSignature = errors.New("billing: invalid webhook signature")

// Result is the outcome of processing one event.
type Result string

const (
	ResultApplied Result = "applied"
	ResultIgnored Result = "ignored"
	ResultInvalid Result = "invalid"
	ResultError   Result = "error"
)

// Transitions are the lifecycle operations billing events drive.
// *tenants.Lifecycle implements it.
type Transitions interface {
	ActivateSubscription(ctx context.Context, id string) (*tenants.Tenant, error)
	MarkPastDue(ctx context.Context, id string) (*tenants.Tenant, error)
	CancelSubscription(ctx context.Context, id string) (*tenants.Tenant, error)
	ChangePlan(ctx context.Context, id string, plan tenants.Plan) (*tenants.Tenant, error)
	LinkStripeCustomer(ctx context.Context, id, customerID string) (*tenants.Tenant, error)
}

// TenantGetter loads the tenant an event refers to.
type TenantGetter interface {
	GetTenant(ctx context.Context, id string) (*tenants.Tenant, error)
}

// Observer counts processed events.
type Observer interface {
	WebhookHandled(eventType, result string)
}

// WebhookProcessor verifies Stripe webhook deliveries and maps them to
// tenant lifecycle transitions.
type WebhookProcessor struct {
	secret    string
	tolerance time.Duration
	lifecycle Transitions
	tenants   TenantGetter
	logger    *observability.Logger
	observer  Observer
}

// NewWebhookProcessor creates a processor for the endpoint signing secret.
func NewWebhookProcessor(secret string, lifecycle Transitions, store TenantGetter, logger *observability.Logger) *WebhookProcessor {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &WebhookProcessor{
		secret:    secret,
		tolerance: webhook.DefaultTolerance,
		lifecycle: lifecycle,
		tenants:   store,
		logger:    logger,
	}
}

// WithObserver sets the event observer.
func (p *WebhookProcessor) WithObserver(o Observer) *WebhookProcessor {
	p.observer = o
	return p
}

// Process verifies payload against the Stripe-Signature header and applies
// the event. Events for unknown tenants or of types billing does not act on
// are ignored, not errors.
func (p *WebhookProcessor) Process(ctx context.Context, payload []byte, signature string) (Result, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.secret, webhook.ConstructEventOptions{
		Tolerance:                p.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		p.observe("unknown", ResultInvalid)
		return ResultInvalid, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	logger := p.logger.WithFields(map[string]interface{}{
		"event_id":   event.ID,
		"event_type": string(event.Type),
	})

	result, err := p.dispatch(ctx, logger, event)
	if err != nil {
		result = ResultError
		logger.WithError(err).Error("Failed to apply billing event")
	}
	p.observe(string(event.Type), result)
	return result, err
}

func (p *WebhookProcessor) dispatch(ctx context.Context, logger *observability.Logger, event stripe.Event) (Result, error) {
	switch event.Type {
	case stripe.EventTypeCustomerSubscriptionCreated, stripe.EventTypeCustomerSubscriptionUpdated:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return ResultError, fmt.Errorf("decode subscription: %w", err)
		}
		return p.subscriptionChanged(ctx, logger, &sub)

	case stripe.EventTypeCustomerSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return ResultError, fmt.Errorf("decode subscription: %w", err)
		}
		return p.withTenant(ctx, logger, sub.Metadata, func(t *tenants.Tenant) error {
			_, err := p.lifecycle.CancelSubscription(ctx, t.ID)
			return err
		})

	case stripe.EventTypeInvoicePaid, stripe.EventTypeInvoicePaymentFailed:
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return ResultError, fmt.Errorf("decode invoice: %w", err)
		}
		transition := p.lifecycle.ActivateSubscription
		if event.Type == stripe.EventTypeInvoicePaymentFailed {
			transition = p.lifecycle.MarkPastDue
		}
		return p.withTenant(ctx, logger, invoiceMetadata(&inv), func(t *tenants.Tenant) error {
			_, err := transition(ctx, t.ID)
			return err
		})
	}

	logger.Debug("Ignoring billing event")
	return ResultIgnored, nil
}

func (p *WebhookProcessor) subscriptionChanged(ctx context.Context, logger *observability.Logger, sub *stripe.Subscription) (Result, error) {
	return p.withTenant(ctx, logger, sub.Metadata, func(t *tenants.Tenant) error {
		if sub.Customer != nil && sub.Customer.ID != "" && sub.Customer.ID != t.StripeCustomerID {
			if _, err := p.lifecycle.LinkStripeCustomer(ctx, t.ID, sub.Customer.ID); err != nil {
				return err
			}
		}

		if transition := transitionFor(p.lifecycle, sub.Status); transition != nil {
			if _, err := transition(ctx, t.ID); err != nil {
				return err
			}
		}

		raw, ok := sub.Metadata[metadataPlan]
		if !ok {
			return nil
		}
		plan, err := tenants.ParsePlan(raw)
		if err != nil {
			logger.WithError(err).Warn("Ignoring unknown plan in subscription metadata")
			return nil
		}
		if plan != t.Plan {
			_, err = p.lifecycle.ChangePlan(ctx, t.ID, plan)
		}
		return err
	})
}

// withTenant loads the tenant named in metadata and runs fn on it.
func (p *WebhookProcessor) withTenant(ctx context.Context, logger *observability.Logger, metadata map[string]string, fn func(*tenants.Tenant) error) (Result, error) {
	id := metadata[metadataTenantID]
	if id == "" {
		logger.Warn("Billing event has no tenant_id metadata")
		return ResultIgnored, nil
	}
	logger = logger.WithField("tenant_id", id)

	t, err := p.tenants.GetTenant(ctx, id)
	if errors.Is(err, tenants.ErrTenantNotFound) {
		logger.Warn("Billing event for unknown tenant")
		return ResultIgnored, nil
	}
	if err != nil {
		return ResultError, fmt.Errorf("load tenant %s: %w", id, err)
	}

	if err := fn(t); err != nil {
		return ResultError, err
	}
	logger.Info("Applied billing event")
	return ResultApplied, nil
}

// transitionFor maps a Stripe subscription status to a lifecycle
// transition. Trialing and incomplete subscriptions leave the tenant alone.
func transitionFor(lc Transitions, status stripe.SubscriptionStatus) func(context.Context, string) (*tenants.Tenant, error) {
	switch status {
	case stripe.SubscriptionStatusActive:
		return lc.ActivateSubscription
	case stripe.SubscriptionStatusPastDue, stripe.SubscriptionStatusUnpaid:
		return lc.MarkPastDue
	case stripe.SubscriptionStatusCanceled:
		return lc.CancelSubscription
	}
	return nil
}

// invoiceMetadata prefers the subscription's metadata, where the tenant id
// is set at checkout, over the invoice's own.
func invoiceMetadata(inv *stripe.Invoice) map[string]string {
	if inv.SubscriptionDetails != nil && inv.SubscriptionDetails.Metadata[metadataTenantID] != "" {
		return inv.SubscriptionDetails.Metadata
	}
	return inv.Metadata
}

func (p *WebhookProcessor) observe(eventType string, result Result) {
	if p.observer != nil {
		p.observer.WebhookHandled(eventType, string(result))
	}
}

// ServeHTTP handles POST /webhooks/stripe. Bad signatures get 400; failures
// applying a verified event get 500 so Stripe retries the delivery.
func (p *WebhookProcessor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxPayloadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteErrorMessage(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		httputil.WriteBadRequest(w, "failed to read payload")
		return
	}

	result, err := p.Process(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	switch {
	case errors.Is(err, ErrInvalidSignature):
		observability.FromContext(r.Context()).WithError(err).Warn("Rejected billing webhook")
		httputil.WriteBadRequest(w, "invalid signature")
	case err != nil:
		httputil.WriteInternalError(w)
	default:
		_ = httputil.WriteSuccess(w, map[string]string{"result": string(result)})
	}
}
