// Package acceptor is the front door of a workkit service: it takes chat
// activities off HTTP, WebSocket, stdio and message-bus connections,
// acknowledges them immediately and hands the bot's turn to a background
// supervisor.
//
// # Immediate accept
//
// A POST to /api/messages is answered as soon as the activity is queued:
//
//   - missing or malformed activity: 400
//   - authentication failure: 401
//   - invoke, or deliveryMode expectReplies: the bot runs inline and the
//     replies are returned in the body
//   - anything else: submitted keyed by conversation ID, then 200
//
// Replies produced by background turns go to a Responder bound to the
// conversation's connection. HTTP callers have no connection to write
// to, so their replies go to the Outbox.
//
// # Usage
//
//	acc := acceptor.New(bot, svc, acceptor.DefaultConfig(),
//	    acceptor.WithAuthenticator(acceptor.NewAuthenticator(creds)),
//	)
//	mux := http.NewServeMux()
//	mux.Handle("/", acc.Handler())
//	go acc.ServeBus(ctx, messageBus, "workkit.activities", "workkit")
package acceptor
