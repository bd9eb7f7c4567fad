package bus

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryBus implements MessageBus in process memory.
// Delivery happens under the read lock and never blocks; Unsubscribe and
// Close take the write lock, so no send races a channel close.
type MemoryBus struct {
	config Config

	mu     sync.RWMutex
	subs   map[string][]*memorySub
	groups map[string]map[string]*memoryGroup // subject -> queue -> group
	closed bool

	replyMu  sync.Mutex
	replies  map[string]chan *Message
	replySeq atomic.Uint64
}

type memoryGroup struct {
	members []*memorySub
	next    atomic.Uint64
}

type memorySub struct {
	subject string
	queue   string
	ch      chan *Message
	done    bool // guarded by bus.mu
	bus     *MemoryBus
}

// NewMemoryBus creates a new in-memory message bus.
func NewMemoryBus(cfg Config) *MemoryBus {
	cfg.applyDefaults()
	return &MemoryBus{
		config:  cfg,
		subs:    make(map[string][]*memorySub),
		groups:  make(map[string]map[string]*memoryGroup),
		replies: make(map[string]chan *Message),
	}
}

// Publish sends data to all subscribers.
func (b *MemoryBus) Publish(subject string, data []byte) error {
	return b.PublishMsg(&Message{Subject: subject, Data: data})
}

// PublishMsg sends a message to all subscribers and one member of each
// queue group.
func (b *MemoryBus) PublishMsg(msg *Message) error {
	if err := ValidateSubject(msg.Subject); err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	if b.deliverReply(msg) {
		return nil
	}
	for _, sub := range b.subs[msg.Subject] {
		b.send(sub, msg)
	}
	for _, group := range b.groups[msg.Subject] {
		b.sendToGroup(group, msg)
	}
	return nil
}

// deliverReply hands msg to a pending Request if its subject is a reply inbox.
func (b *MemoryBus) deliverReply(msg *Message) bool {
	b.replyMu.Lock()
	ch, ok := b.replies[msg.Subject]
	if ok {
		delete(b.replies, msg.Subject)
	}
	b.replyMu.Unlock()

	if ok {
		ch <- clone(msg) // buffered, single use
	}
	return ok
}

// send delivers to one subscriber without blocking. Caller holds b.mu.
func (b *MemoryBus) send(sub *memorySub, msg *Message) bool {
	if sub.done {
		return false
	}
	select {
	case sub.ch <- clone(msg):
		return true
	default:
		b.config.dropped(msg)
		return false
	}
}

// sendToGroup delivers to the next member in round-robin order, moving on
// when a member's buffer is full. Caller holds b.mu.
func (b *MemoryBus) sendToGroup(group *memoryGroup, msg *Message) {
	n := len(group.members)
	if n == 0 {
		return
	}
	start := int(group.next.Add(1)-1) % n
	for i := 0; i < n; i++ {
		sub := group.members[(start+i)%n]
		if sub.done {
			continue
		}
		select {
		case sub.ch <- clone(msg):
			return
		default:
		}
	}
	b.config.dropped(msg)
}

func clone(msg *Message) *Message {
	return &Message{
		Subject: msg.Subject,
		Header:  copyHeader(msg.Header),
		Data:    msg.Data,
		Reply:   msg.Reply,
	}
}

// Subscribe creates a subscription to a subject.
func (b *MemoryBus) Subscribe(subject string) (Subscription, error) {
	return b.subscribe(subject, "")
}

// QueueSubscribe creates a queue subscription.
func (b *MemoryBus) QueueSubscribe(subject, queue string) (Subscription, error) {
	if queue == "" {
		return nil, ErrInvalidSubject
	}
	return b.subscribe(subject, queue)
}

func (b *MemoryBus) subscribe(subject, queue string) (Subscription, error) {
	if err := ValidateSubject(subject); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	sub := &memorySub{
		subject: subject,
		queue:   queue,
		ch:      make(chan *Message, b.config.BufferSize),
		bus:     b,
	}

	if queue == "" {
		b.subs[subject] = append(b.subs[subject], sub)
		return sub, nil
	}

	if b.groups[subject] == nil {
		b.groups[subject] = make(map[string]*memoryGroup)
	}
	group := b.groups[subject][queue]
	if group == nil {
		group = &memoryGroup{}
		b.groups[subject][queue] = group
	}
	group.members = append(group.members, sub)
	return sub, nil
}

// Request publishes data with a private reply subject and waits for the
// first reply.
func (b *MemoryBus) Request(subject string, data []byte, timeout time.Duration) (*Message, error) {
	if err := ValidateSubject(subject); err != nil {
		return nil, err
	}

	inbox := "_INBOX." + strconv.FormatUint(b.replySeq.Add(1), 10)
	replyCh := make(chan *Message, 1)

	b.replyMu.Lock()
	b.replies[inbox] = replyCh
	b.replyMu.Unlock()

	delivered, err := b.publishRequest(&Message{Subject: subject, Data: data, Reply: inbox})
	if err != nil || !delivered {
		b.replyMu.Lock()
		delete(b.replies, inbox)
		b.replyMu.Unlock()
		if err != nil {
			return nil, err
		}
		return nil, ErrNoResponders
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case reply := <-replyCh:
		return reply, nil
	case <-timer.C:
		b.replyMu.Lock()
		delete(b.replies, inbox)
		b.replyMu.Unlock()
		return nil, ErrTimeout
	}
}

// publishRequest reports whether at least one subscriber took the request.
func (b *MemoryBus) publishRequest(msg *Message) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return false, ErrClosed
	}

	delivered := false
	for _, sub := range b.subs[msg.Subject] {
		if b.send(sub, msg) {
			delivered = true
		}
	}
	for _, group := range b.groups[msg.Subject] {
		if len(group.members) > 0 {
			b.sendToGroup(group, msg)
			delivered = true
		}
	}
	return delivered, nil
}

// Close shuts down the bus and closes every subscription.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	for _, subs := range b.subs {
		for _, sub := range subs {
			sub.closeLocked()
		}
	}
	for _, groups := range b.groups {
		for _, group := range groups {
			for _, sub := range group.members {
				sub.closeLocked()
			}
		}
	}
	b.subs = nil
	b.groups = nil
	return nil
}

// Messages returns the message channel.
func (s *memorySub) Messages() <-chan *Message {
	return s.ch
}

// Unsubscribe cancels the subscription. Safe to call more than once.
func (s *memorySub) Unsubscribe() error {
	b := s.bus
	b.mu.Lock()
	defer b.mu.Unlock()
	if s.done {
		return nil
	}

	if s.queue == "" {
		b.subs[s.subject] = remove(b.subs[s.subject], s)
	} else if group := b.groups[s.subject][s.queue]; group != nil {
		group.members = remove(group.members, s)
	}
	s.closeLocked()
	return nil
}

func (s *memorySub) closeLocked() {
	if !s.done {
		s.done = true
		close(s.ch)
	}
}

func remove(subs []*memorySub, target *memorySub) []*memorySub {
	for i, sub := range subs {
		if sub == target {
			return append(subs[:i:i], subs[i+1:]...)
		}
	}
	return subs
}
