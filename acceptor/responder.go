package acceptor

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/vinayprograms/workkit/bus"
	"github.com/vinayprograms/workkit/logging"
	"github.com/vinayprograms/workkit/telemetry"
	"github.com/vinayprograms/workkit/transport"
)

// Responder delivers bot replies for one conversation channel.
type Responder interface {
	Send(ctx context.Context, act *transport.Activity) error
}

// Outbox is the responder for callers without a return connection. It
// logs every reply.
type Outbox struct {
	logger *logging.Logger
}

// NewOutbox creates an outbox that logs through logger.
func NewOutbox(logger *logging.Logger) *Outbox {
	return &Outbox{logger: logger.WithComponent("outbox")}
}

// Send logs the reply.
func (o *Outbox) Send(ctx context.Context, act *transport.Activity) error {
	o.logger.Info("reply", map[string]interface{}{
		"conversation": act.ConversationID(),
		"type":         act.Type,
		"text":         act.Text,
	})
	return nil
}

// collector gathers replies for inline activities.
type collector struct {
	mu      sync.Mutex
	replies []*transport.Activity
}

func (c *collector) Send(ctx context.Context, act *transport.Activity) error {
	c.mu.Lock()
	c.replies = append(c.replies, act)
	c.mu.Unlock()
	return nil
}

func (c *collector) body() transport.ExpectedReplies {
	c.mu.Lock()
	defer c.mu.Unlock()
	replies := make([]*transport.Activity, len(c.replies))
	copy(replies, c.replies)
	return transport.ExpectedReplies{Activities: replies}
}

// transportResponder writes replies back on the connection the activity
// arrived on.
type transportResponder struct {
	t transport.Transport
}

func (r transportResponder) Send(ctx context.Context, act *transport.Activity) error {
	return r.t.Send(act)
}

// publishReplies sends collected replies to a bus reply subject, carrying
// the trace context of ctx in the headers.
func publishReplies(ctx context.Context, b bus.MessageBus, subject string, c *collector) error {
	data, err := json.Marshal(c.body())
	if err != nil {
		return err
	}
	header := make(map[string]string)
	telemetry.InjectContext(ctx, telemetry.MapCarrier(header))
	return b.PublishMsg(&bus.Message{Subject: subject, Data: data, Header: header})
}
