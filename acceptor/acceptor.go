package acceptor

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/vinayprograms/workkit/logging"
	"github.com/vinayprograms/workkit/queue"
	"github.com/vinayprograms/workkit/telemetry"
	"github.com/vinayprograms/workkit/transport"
)

// Turn is one activity handed to the bot, with the responder for its
// conversation.
type Turn struct {
	Activity  *transport.Activity
	Responder Responder
}

// SendText replies to the turn's activity with a text message.
func (t *Turn) SendText(ctx context.Context, text string) error {
	return t.Responder.Send(ctx, t.Activity.Reply(text))
}

// Bot handles turns.
type Bot interface {
	OnTurn(ctx context.Context, turn *Turn) error
}

// BotFunc adapts a function to the Bot interface.
type BotFunc func(ctx context.Context, turn *Turn) error

// OnTurn calls f.
func (f BotFunc) OnTurn(ctx context.Context, turn *Turn) error {
	return f(ctx, turn)
}

// Submitter accepts background work. *supervisor.Service implements it.
type Submitter interface {
	Submit(work queue.WorkFunc, key string) error
}

// Config holds acceptor configuration.
type Config struct {
	// DedupWindow is how long an activity ID is remembered. Redelivered
	// activities inside the window are acknowledged without queueing.
	// Zero disables deduplication.
	// Default: 5m
	DedupWindow time.Duration

	// MaxBodyBytes limits POST bodies.
	// Default: 1MB
	MaxBodyBytes int64

	// WebSocket configures socket connections.
	WebSocket transport.WebSocketConfig
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DedupWindow:  5 * time.Minute,
		MaxBodyBytes: 1 << 20,
		WebSocket:    transport.DefaultWebSocketConfig(),
	}
}

// Option configures an Acceptor.
type Option func(*Acceptor)

// WithLogger sets the logger. Default: logging.New() with component "acceptor".
func WithLogger(l *logging.Logger) Option {
	return func(a *Acceptor) { a.logger = l.WithComponent("acceptor") }
}

// WithTracer sets the tracer. Default: telemetry.GetTracer().
func WithTracer(t *telemetry.Tracer) Option {
	return func(a *Acceptor) { a.tracer = t }
}

// WithAuthenticator sets the authenticator. Default: none, all callers accepted.
func WithAuthenticator(auth *Authenticator) Option {
	return func(a *Acceptor) { a.auth = auth }
}

// WithOutbox sets the responder for HTTP and bus activities.
// Default: an Outbox logging through the acceptor's logger.
func WithOutbox(r Responder) Option {
	return func(a *Acceptor) { a.outbox = r }
}

// Acceptor turns inbound activities into background work.
type Acceptor struct {
	config    Config
	bot       Bot
	submitter Submitter
	auth      *Authenticator
	outbox    Responder
	logger    *logging.Logger
	tracer    *telemetry.Tracer

	seenMu sync.Mutex
	seen   *ttlcache.Cache[string, struct{}]

	// sessions tracks connection goroutines (WebSocket, stdio, bus) so
	// shutdown can wait for them. They run under ctx.
	sessionMu sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	sessions  sync.WaitGroup
	stopOnce  sync.Once
}

// New creates an acceptor that runs bot turns through submitter.
func New(bot Bot, submitter Submitter, cfg Config, opts ...Option) *Acceptor {
	defaults := DefaultConfig()
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaults.MaxBodyBytes
	}
	if cfg.WebSocket.WriteTimeout == 0 && cfg.WebSocket.MaxMessageSize == 0 {
		cfg.WebSocket = defaults.WebSocket
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &Acceptor{
		config:    cfg,
		bot:       bot,
		submitter: submitter,
		logger:    logging.New().WithComponent("acceptor"),
		tracer:    telemetry.GetTracer(),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.outbox == nil {
		a.outbox = NewOutbox(a.logger)
	}
	if cfg.DedupWindow > 0 {
		a.seen = ttlcache.New(
			ttlcache.WithTTL[string, struct{}](cfg.DedupWindow),
			ttlcache.WithDisableTouchOnHit[string, struct{}](),
		)
		go a.seen.Start()
	}
	return a
}

// duplicate reports whether the activity ID was seen inside the dedup
// window, recording it otherwise.
func (a *Acceptor) duplicate(act *transport.Activity) bool {
	if a.seen == nil || act.ID == "" {
		return false
	}
	a.seenMu.Lock()
	defer a.seenMu.Unlock()
	if a.seen.Has(act.ID) {
		return true
	}
	a.seen.Set(act.ID, struct{}{}, ttlcache.DefaultTTL)
	return false
}

// forget drops the activity ID from the dedup window so a redelivery of an
// activity that was never queued is accepted.
func (a *Acceptor) forget(act *transport.Activity) {
	if a.seen == nil || act.ID == "" {
		return
	}
	a.seenMu.Lock()
	defer a.seenMu.Unlock()
	a.seen.Delete(act.ID)
}

// accept queues the activity's turn keyed by conversation. It returns the
// status reported to the caller.
func (a *Acceptor) accept(ctx context.Context, source string, act *transport.Activity, r Responder) int {
	_, span := a.tracer.StartActivitySpan(ctx, telemetry.ActivitySpanOptions{
		Transport:    source,
		Type:         act.Type,
		Conversation: act.ConversationID(),
		Text:         act.Text,
	})

	if a.duplicate(act) {
		a.logger.Debug("duplicate_activity", map[string]interface{}{
			"id":        act.ID,
			"transport": source,
		})
		a.tracer.EndActivitySpan(span, http.StatusOK, nil)
		return http.StatusOK
	}

	err := a.submitter.Submit(func(ctx context.Context) error {
		return a.turn(ctx, act, r)
	}, act.ConversationID())
	if err != nil {
		a.forget(act)
		a.logger.Warn("activity_not_queued", map[string]interface{}{
			"id":        act.ID,
			"transport": source,
			"error":     err.Error(),
		})
		a.tracer.EndActivitySpan(span, http.StatusServiceUnavailable, err)
		return http.StatusServiceUnavailable
	}

	a.logger.Debug("activity_queued", map[string]interface{}{
		"id":           act.ID,
		"type":         act.Type,
		"conversation": act.ConversationID(),
		"transport":    source,
	})
	a.tracer.EndActivitySpan(span, http.StatusOK, nil)
	return http.StatusOK
}

// inline runs the turn in the caller's goroutine and returns the replies.
func (a *Acceptor) inline(ctx context.Context, act *transport.Activity) *collector {
	c := &collector{}
	a.turn(ctx, act, c)
	return c
}

// turn runs the bot. A failed turn is reported to the user and returned
// for the supervisor to log.
func (a *Acceptor) turn(ctx context.Context, act *transport.Activity, r Responder) error {
	t := &Turn{Activity: act, Responder: r}
	err := a.bot.OnTurn(ctx, t)
	if err == nil {
		return nil
	}

	a.logger.Error("turn_error", map[string]interface{}{
		"id":           act.ID,
		"conversation": act.ConversationID(),
		"error":        err.Error(),
	})
	t.SendText(ctx, "The bot encountered an error or bug.")
	t.SendText(ctx, "To continue to run this bot, please fix the bot source code.")

	trace := act.Reply(err.Error())
	trace.Type = transport.TypeTrace
	trace.Name = "TurnError"
	r.Send(ctx, trace)
	return err
}

// ServeTransport accepts activities from t until it stops, replying on t.
// Each activity is submitted keyed by its conversation.
func (a *Acceptor) ServeTransport(ctx context.Context, source string, t transport.Transport) error {
	if !a.begin() {
		// Run with a cancelled context to release the connection.
		ctx, cancel := context.WithCancel(ctx)
		cancel()
		t.Run(ctx)
		return nil
	}
	defer a.sessions.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-a.ctx.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	errc := make(chan error, 1)
	go func() { errc <- t.Run(ctx) }()

	r := transportResponder{t: t}
	for act := range t.Recv() {
		a.accept(ctx, source, act, r)
	}

	err := <-errc
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// begin registers a session. It fails once shutdown has started.
func (a *Acceptor) begin() bool {
	a.sessionMu.Lock()
	defer a.sessionMu.Unlock()
	if a.ctx.Err() != nil {
		return false
	}
	a.sessions.Add(1)
	return true
}

// OnShutdown stops accepting from connections and waits for their loops
// to exit. Work already submitted is left to the supervisor.
func (a *Acceptor) OnShutdown(ctx context.Context) error {
	a.stopOnce.Do(func() {
		a.sessionMu.Lock()
		a.cancel()
		a.sessionMu.Unlock()
		if a.seen != nil {
			a.seen.Stop()
		}
	})

	done := make(chan struct{})
	go func() {
		a.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
