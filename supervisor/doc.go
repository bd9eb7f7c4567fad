// Package supervisor runs queued background work and drains it on shutdown.
//
// # Overview
//
// A Service owns one queue, one admission gate and one in-flight registry.
// Front doors call Submit, which never waits for execution. A single loop
// started by Start dequeues items, asks the gate for admission, registers
// each admitted item and runs it on its own goroutine. Stop closes the gate,
// discards anything still queued and waits, bounded by a timeout, for the
// registry to empty.
//
//	svc := supervisor.New(supervisor.DefaultConfig(),
//	    supervisor.WithLogger(logger),
//	    supervisor.WithMetrics(collector),
//	)
//	svc.Start(ctx)
//
//	svc.Submit(func(ctx context.Context) error {
//	    return sendReply(ctx, conv, text)
//	}, conv.ID)
//
//	if err := svc.Stop(30 * time.Second); errors.Is(err, supervisor.ErrDrainTimeout) {
//	    // some tasks were abandoned
//	}
//
// # Lifecycle
//
//	Submit ──▶ queue ──▶ loop ──▶ gate.Admit ──▶ registry.Add ──▶ goroutine
//	                                  │                              │
//	                                  └─ closed: logged, dropped     └─ Remove + Sweep
//
// Every item runs with the context passed to Start. Stop never cancels it:
// cancellation is cooperative, and a task still running when the drain window
// elapses keeps running until it returns or the process exits.
//
// # Ordering
//
// Items sharing a key run one at a time in submission order: each waits for
// its predecessor to finish before its body starts. In keyed mode, the loop
// also dequeues only one item per key per round. Items with different keys,
// and items submitted without a key, run concurrently and are unordered.
//
// # Failures
//
// A work item's error, or a panic recovered from it, is logged as
// EXECUTION_FAILED and counted. It never reaches the submitter and never stops
// the loop. Items dropped by a closed gate are logged as ADMISSION_REJECTED,
// throttled so that a shutdown under load does not flood the log.
//
// # Concurrency
//
// There is no bound on the number of concurrently executing items. Submit
// never applies backpressure.
package supervisor
