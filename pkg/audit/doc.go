// Package audit keeps a per-tenant trail of policy-relevant activity.
//
// # Overview
//
// Two kinds of event are recorded, both stamped with the acting principal
// and the request id when they are on the context:
//
//	http.request      - mutations, plus any request that was refused or failed
//	tenant.lifecycle  - registration, suspension, plan and subscription changes
//
// Responses of 401, 402, 403 and 429 are recorded as denied; other 4xx and
// 5xx as failure.
//
// # Usage Example
//
//	store := audit.NewSQLStore(db)
//	if err := store.Migrate(ctx); err != nil { ... }
//	recorder := audit.NewRecorder(store, logger)
//
//	lifecycle.WithObserver(recorder)
//	router.Use(audit.NewMiddleware(recorder, false).Handler)
//
// The middleware must run after authentication and tenant resolution.
// Requests with no resolved tenant are skipped.
//
// Search a tenant's trail:
//
//	events, err := store.Search(ctx, audit.SearchFilter{
//		TenantID: tenantID,
//		Status:   audit.EventStatusDenied,
//		Since:    time.Now().Add(-24 * time.Hour),
//	})
//
// # Retention
//
// Cleanup deletes events older than a cutoff; the server runs it on a cron
// schedule.
//
// # Export
//
//	audit.Export(os.Stdout, events, audit.ExportFormatCSV)
//
// Formats: json, ndjson, csv.
package audit
