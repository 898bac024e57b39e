// Package billing turns Stripe webhook events into tenant lifecycle
// transitions.
//
// Deliveries are verified with the endpoint signing secret before anything
// is read from them. The tenant is identified by the tenant_id metadata key
// set on the subscription at checkout.
//
//	customer.subscription.created|updated  follow the subscription status
//	                                         active              -> ActivateSubscription
//	                                         past_due, unpaid    -> MarkPastDue
//	                                         canceled            -> CancelSubscription
//	                                         trialing, others    -> no change
//	                                       a "plan" metadata key -> ChangePlan
//	customer.subscription.deleted          CancelSubscription
//	invoice.paid                           ActivateSubscription
//	invoice.payment_failed                 MarkPastDue
//
// Events of other types, without tenant metadata or for unknown tenants are
// acknowledged and ignored so Stripe stops retrying them.
//
// Usage:
//
//	processor := billing.NewWebhookProcessor(secret, lifecycle, store, logger).
//		WithObserver(metrics)
//	router.Handle("/webhooks/stripe", processor).Methods(http.MethodPost)
package billing
