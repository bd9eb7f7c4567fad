// Package shutdown provides the two halves of stopping a workkit process:
// an admission Gate that separates "accepting new work" from "shutting down",
// and a phase-ordered Coordinator that runs component shutdown handlers.
//
// # Admission gate
//
// The Gate admits any number of concurrent holders while open. Close flips it
// to closing exactly once, waits (bounded by its context) for outstanding
// admissions to be released, and never reopens:
//
//	gate := shutdown.NewGate()
//
//	tok, err := gate.Admit()
//	if err != nil {
//	    // gate closed: drop the work item
//	}
//	startWork()
//	tok.Release()
//
//	// during shutdown
//	_ = gate.Close(ctx) // ErrTimeout if holders outlive ctx; gate stays closed
//
// # Process shutdown
//
//	┌──────────────────────────────────────────────────────────────┐
//	│                         Coordinator                          │
//	├──────────────────────────────────────────────────────────────┤
//	│  ┌────────────┐    ┌──────────────┐    ┌────────────────┐    │
//	│  │ front door │ →  │  supervisor  │ →  │   telemetry    │    │
//	│  │ (phase 10) │    │  (phase 20)  │    │   (phase 30)   │    │
//	│  └────────────┘    └──────────────┘    └────────────────┘    │
//	└──────────────────────────────────────────────────────────────┘
//	                            ↑
//	               SIGTERM / SIGINT / Shutdown()
//
//	coord := shutdown.NewCoordinator(shutdown.DefaultConfig())
//	coord.RegisterWithPhase("http", server, shutdown.PhaseFrontDoor)
//	coord.RegisterWithPhase("supervisor", svc, shutdown.PhaseWorkers)
//	stop := coord.HandleSignals()
//	defer stop()
//	<-coord.Done()
//
// Handlers in the same phase run concurrently. Handler errors are aggregated;
// the returned error matches ErrHandlerFailed with errors.Is and also carries
// each individual handler error.
package shutdown
