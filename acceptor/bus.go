package acceptor

import (
	"context"
	"net/http"

	"github.com/vinayprograms/workkit/bus"
	"github.com/vinayprograms/workkit/telemetry"
	"github.com/vinayprograms/workkit/transport"
)

// ServeBus queue-subscribes to subject and accepts every message as an
// activity until ctx is cancelled or the acceptor shuts down. Trace context
// in message headers becomes the parent of the activity span.
//
// Inline activities that carry a reply subject are answered on it with
// the collected replies. Other replies go to the outbox.
func (a *Acceptor) ServeBus(ctx context.Context, b bus.MessageBus, subject, queue string) error {
	sub, err := b.QueueSubscribe(subject, queue)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	if !a.begin() {
		return nil
	}
	defer a.sessions.Done()

	a.logger.Info("bus_subscribed", map[string]interface{}{
		"subject": subject,
		"queue":   queue,
	})

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-a.ctx.Done():
			return nil
		case msg, ok := <-sub.Messages():
			if !ok {
				return nil
			}
			a.serveMessage(ctx, b, msg)
		}
	}
}

func (a *Acceptor) serveMessage(ctx context.Context, b bus.MessageBus, msg *bus.Message) {
	if err := a.auth.Authenticate(ChannelBus, msg.Header["Authorization"]); err != nil {
		a.logger.Warn("unauthorized", map[string]interface{}{
			"transport": ChannelBus,
			"subject":   msg.Subject,
		})
		return
	}

	act, err := transport.ParseActivity(msg.Data)
	if err != nil {
		a.logger.Warn("bad_activity", map[string]interface{}{
			"transport": ChannelBus,
			"subject":   msg.Subject,
			"error":     err.Error(),
		})
		return
	}

	if msg.Header != nil {
		ctx = telemetry.ExtractContext(ctx, telemetry.MapCarrier(msg.Header))
	}

	if act.ExpectsInline() && msg.Reply != "" {
		ctx, span := a.tracer.StartActivitySpan(ctx, telemetry.ActivitySpanOptions{
			Transport:    ChannelBus,
			Type:         act.Type,
			Conversation: act.ConversationID(),
			Text:         act.Text,
		})
		err := publishReplies(ctx, b, msg.Reply, a.inline(ctx, act))
		a.tracer.EndActivitySpan(span, http.StatusOK, err)
		return
	}

	a.accept(ctx, ChannelBus, act, a.outbox)
}
