// Package queue provides the pending-work queue that sits between a
// synchronous front door and the supervisor loop.
//
// # Overview
//
// A front door hands work off with Submit or Enqueue and returns immediately.
// A single consumer (normally supervisor.Service) blocks in Dequeue until
// something is available. Enqueue never blocks and never applies backpressure:
// the queue is unbounded.
//
// # Modes
//
// One MemoryQueue type supports two disciplines, chosen at construction:
//
//	ModeFIFO   one global FIFO, Dequeue returns exactly one item
//	ModeKeyed  one FIFO per key, Dequeue returns the head of every
//	           non-empty key in a single snapshot
//
// In keyed mode, items sharing a key come out in submission order; items with
// different keys have no relative ordering. Items without a key share the
// default partition, unless a KeyFunc derives one.
//
//	q := queue.NewMemoryQueue(queue.Config{Mode: queue.ModeKeyed})
//	_ = q.Submit(sendReply, conversationID)
//
//	items, err := q.Dequeue(ctx) // one item per conversation with pending work
//
// A key's sub-queue is removed as soon as it becomes empty, so Keys never
// reports a key without pending items.
//
// # Wake-up
//
// Enqueue does a non-blocking send on a one-slot wake channel. The consumer
// takes items only under the queue lock and re-arms the wake channel if items
// remain, so a consumer is never woken with nothing to take.
package queue
