// Package usage meters per-tenant consumption of plan-limited resources.
//
// # Metrics and Limits
//
// Five metrics are tracked: API calls, storage, automation runs, emails and
// SMS messages. Storage is a gauge (total bytes held); the others count per
// calendar month in UTC. Each plan has a Limit per metric, either
// Limited(n) or Unlimited(). Unknown plans or metrics fail closed.
//
// Limits can be overridden from YAML with LoadCatalog and reloaded at
// runtime with CatalogWatcher.
//
// # Check, then Record
//
// The request flow is check before the operation, record after it
// succeeds:
//
//	if err := meter.Check(ctx, tenant, usage.SMS, 1); err != nil {
//		return err // *LimitExceededError
//	}
//	if err := sms.Send(...); err != nil {
//		return err // nothing recorded
//	}
//	meter.RecordSMS(ctx, tenant.ID, 1)
//
// Record never fails; store errors are logged at warn. Check and Record are
// separate round trips, so concurrent requests may overshoot a limit by a
// few units. Meter.WithHardCap makes Admit reserve atomically through
// CounterStore.CheckAndIncrement and refund on failure instead.
//
// # Stores
//
//	MemoryCounterStore - single instance, lost on restart
//	RedisCounterStore  - shared, atomic via INCRBY and a Lua script
//
// # Monthly Reset
//
// Resetter.Schedule registers a cron job at 00:00 UTC on the first of each
// month that purges counters from earlier periods.
package usage
