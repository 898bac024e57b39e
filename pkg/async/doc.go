// Package async runs background work without crashing the process.
//
// SafeGo is a fire-and-forget goroutine with a timeout and panic recovery;
// failures go to the logger carried in the context. The usage middleware
// uses it to record metered calls off the request path.
//
// WorkerPool bounds concurrency for a stream of tasks, and Batch fans a
// slice out over a pool and collects the errors:
//
//	errs := async.Batch(ctx, tenantIDs, 4, "usage report", 5*time.Second, func(ctx context.Context, id string) error {
//		return printReport(ctx, id)
//	})
package async
