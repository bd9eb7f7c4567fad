// Package results publishes completion events for supervised work items.
//
// A Publisher turns each supervisor.Result into an Event and publishes it on
// a message bus. A Store keeps recent events in memory, answers queries and
// lets callers wait for a specific work item to finish. Follow feeds a Store
// from the bus, so one instance can observe work completed by others.
//
// # Usage
//
//	pub := results.NewPublisher(messageBus, instance, results.WithLogger(logger))
//	svc := supervisor.New(cfg, supervisor.WithOnComplete(pub.OnComplete))
//
//	store := results.NewStore(results.DefaultStoreConfig())
//	stop, _ := results.Follow(messageBus, store)
//	defer stop()
//
//	ev, err := store.Wait(ctx, id)
//
// Events are fire-and-forget: a bus failure is logged and never affects the
// work item that produced it.
package results
