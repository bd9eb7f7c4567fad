// Package transport carries chat activities over long-lived connections.
//
// # Overview
//
// An Activity is the unit of conversation traffic: a message, a
// conversation update or an invoke, addressed to a conversation. The
// transport package defines the Activity schema and moves activities over
// bidirectional connections. All transports implement the Transport
// interface with channel-based APIs.
//
// # Available Transports
//
//   - WebSocketTransport: one text frame per activity (browser and bot clients)
//   - StdioTransport: newline-delimited activities on stdin/stdout (local testing)
//
// # Usage
//
//	t := transport.NewStdioTransport(os.Stdin, os.Stdout, transport.DefaultConfig())
//	go t.Run(ctx)
//
//	for act := range t.Recv() {
//	    t.Send(act.Reply("Echo: " + act.Text))
//	}
//
// # Thread Safety
//
// All transport methods are safe for concurrent use. The Recv() channel
// is closed when the transport stops reading.
package transport
