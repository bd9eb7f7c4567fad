// Package heartbeat provides liveness detection for workkit service
// instances sharing a message bus.
//
// # Overview
//
// Instances that load-balance activities through a bus queue group
// periodically broadcast a heartbeat carrying their supervisor load and
// whether they are draining. Monitors track these signals and invoke
// callbacks when an instance is presumed dead. An instance that shuts
// down cleanly sends a final "stopped" heartbeat and is forgotten without
// being reported dead.
//
// # Architecture
//
//	┌─────────────┐     workkit.heartbeat      ┌─────────────┐
//	│   Sender    │ ────────────────────────>  │   Monitor   │
//	│ (instance A)│                            │ (any peer)  │
//	└─────────────┘                            └─────────────┘
//
// # Usage
//
//	sender, _ := heartbeat.NewBusSender(heartbeat.SenderConfig{
//	    Bus:      messageBus,
//	    Instance: "instance-1",
//	    Load: func() heartbeat.Load {
//	        st := svc.Stats()
//	        return heartbeat.Load{Pending: st.Pending, Inflight: st.Inflight, Draining: svc.Draining()}
//	    },
//	})
//	sender.Start(ctx)
//
//	monitor, _ := heartbeat.NewBusMonitor(heartbeat.MonitorConfig{Bus: messageBus})
//	monitor.OnDead(func(instance string) {
//	    log.Printf("instance %s presumed dead", instance)
//	})
//	monitor.Start()
//
// Set the monitor timeout to 2-3x the heartbeat interval.
package heartbeat
