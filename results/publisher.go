package results

import (
	"github.com/vinayprograms/workkit/bus"
	"github.com/vinayprograms/workkit/logging"
	"github.com/vinayprograms/workkit/supervisor"
)

// Publisher publishes completion events on a message bus.
type Publisher struct {
	bus      bus.MessageBus
	instance string
	logger   *logging.Logger
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithLogger sets the logger. Default: logging.New() with component "results".
func WithLogger(l *logging.Logger) PublisherOption {
	return func(p *Publisher) { p.logger = l.WithComponent("results") }
}

// NewPublisher creates a publisher for one instance.
func NewPublisher(b bus.MessageBus, instance string, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		bus:      b,
		instance: instance,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logging.New().WithComponent("results")
	}
	return p
}

// Publish sends one event.
func (p *Publisher) Publish(ev Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	data, err := ev.Marshal()
	if err != nil {
		return err
	}
	return p.bus.Publish(Subject, data)
}

// OnComplete publishes a supervisor result. It matches the signature of
// supervisor.WithOnComplete and logs instead of returning errors.
func (p *Publisher) OnComplete(r supervisor.Result) {
	if err := p.Publish(FromResult(p.instance, r)); err != nil {
		p.logger.Debug("publish_failed", map[string]interface{}{
			"id":    r.ID,
			"error": err.Error(),
		})
	}
}

// Follow subscribes to completion events and records them in store until
// the returned stop function is called or the bus closes.
func Follow(b bus.MessageBus, store *Store) (stop func(), err error) {
	sub, err := b.Subscribe(Subject)
	if err != nil {
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range sub.Messages() {
			ev, err := Unmarshal(msg.Data)
			if err != nil {
				continue
			}
			store.Record(*ev)
		}
	}()

	return func() {
		sub.Unsubscribe()
		<-done
	}, nil
}
