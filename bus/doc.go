// Package bus provides message bus clients used as a remote submission
// channel for background work.
//
// # Overview
//
// A producer elsewhere publishes activities to a subject; every service
// instance queue-subscribes to it, so each activity is handed to exactly one
// instance, which submits it to its supervisor. Headers carry trace context
// across the hop.
//
// # Available Implementations
//
//   - NATSBus: NATS-backed, for multi-process deployments
//   - MemoryBus: in-process, for tests and single-binary setups
//
// # Patterns
//
// Queue groups, one consumer per message:
//
//	sub, _ := b.QueueSubscribe("workkit.activities", "workkit")
//	for msg := range sub.Messages() {
//	    svc.Submit(handle(msg), key(msg))
//	}
//
// Request/reply, for activities that need an inline answer:
//
//	reply, err := b.Request("workkit.activities", data, 5*time.Second)
//
// # Delivery
//
// Subscriptions buffer Config.BufferSize messages. A message arriving at a
// full buffer is dropped and reported to Config.OnDrop; there is no
// redelivery.
package bus
