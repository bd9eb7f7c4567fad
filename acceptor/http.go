package acceptor

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/vinayprograms/workkit/shutdown"
	"github.com/vinayprograms/workkit/telemetry"
	"github.com/vinayprograms/workkit/transport"
)

var _ shutdown.ShutdownHandler = (*Acceptor)(nil)

// Handler returns the HTTP routes: /api/messages and /healthz.
func (a *Acceptor) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/messages", a.handleMessages)
	mux.HandleFunc("/healthz", a.handleHealth)
	return mux
}

func (a *Acceptor) handleMessages(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.serveWebSocket(w, r)
	case http.MethodPost:
		a.servePost(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (a *Acceptor) servePost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, a.config.MaxBodyBytes))
	if err != nil {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	act, err := transport.ParseActivity(body)
	if err != nil {
		a.logger.Debug("bad_activity", map[string]interface{}{"error": err.Error()})
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := a.auth.Authenticate(ChannelHTTP, r.Header.Get("Authorization")); err != nil {
		a.logger.Warn("unauthorized", map[string]interface{}{
			"transport": ChannelHTTP,
			"remote":    r.RemoteAddr,
		})
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	if act.ExpectsInline() {
		a.serveInline(w, r, act)
		return
	}

	w.WriteHeader(a.accept(r.Context(), ChannelHTTP, act, a.outbox))
}

// serveInline runs invoke and expectReplies activities inside the request.
func (a *Acceptor) serveInline(w http.ResponseWriter, r *http.Request, act *transport.Activity) {
	ctx, span := a.tracer.StartActivitySpan(r.Context(), telemetry.ActivitySpanOptions{
		Transport:    ChannelHTTP,
		Type:         act.Type,
		Conversation: act.ConversationID(),
		Text:         act.Text,
	})

	replies := a.inline(ctx, act)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	err := json.NewEncoder(w).Encode(replies.body())
	a.tracer.EndActivitySpan(span, http.StatusOK, err)
}

// serveWebSocket upgrades the request and serves the socket until the
// peer disconnects or the acceptor shuts down.
func (a *Acceptor) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	if err := a.auth.Authenticate(ChannelWebSocket, r.Header.Get("Authorization")); err != nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	upgrader := transport.NewWebSocketUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		return
	}

	cfg := a.config.WebSocket
	cfg.OnInvalid = func(data []byte, err error) {
		a.logger.Debug("bad_activity", map[string]interface{}{
			"transport": ChannelWebSocket,
			"error":     err.Error(),
		})
	}
	t := transport.NewWebSocketTransport(conn, cfg)

	a.logger.Debug("socket_open", map[string]interface{}{"remote": r.RemoteAddr})
	if err := a.ServeTransport(r.Context(), ChannelWebSocket, t); err != nil && !errors.Is(err, transport.ErrClosed) {
		a.logger.Debug("socket_error", map[string]interface{}{"error": err.Error()})
	}
	a.logger.Debug("socket_closed", map[string]interface{}{"remote": r.RemoteAddr})
}

func (a *Acceptor) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok\n"))
}
