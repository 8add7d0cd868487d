package eventbridge

import (
	"log/slog"
	"sync"
	"time"

	"github.com/kingrea/portal/internal/orchestrator"
	"github.com/kingrea/portal/internal/stage"
)

const (
	defaultSubscriberCapacity = 32
	defaultBacklogLimit       = 32
)

// RouterOption customizes Router construction.
type RouterOption func(*Router)

// Router fans events out to subscribers. Events published while nobody is
// subscribed are kept in a bounded backlog and flushed to the next subscriber.
// Router implements orchestrator.Observer.
type Router struct {
	mu           sync.Mutex
	subscribers  map[*subscriber]struct{}
	backlog      []Event
	seq          int64
	channelSize  int
	backlogLimit int
	logger       *slog.Logger
	now          func() time.Time
}

var _ orchestrator.Observer = (*Router)(nil)

// Subscription is an active subscription.
type Subscription struct {
	Events <-chan Event
	cancel func()
}

// Close terminates the subscription and closes Events.
func (s Subscription) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

// NewRouter constructs a router with sane defaults.
func NewRouter(opts ...RouterOption) *Router {
	r := &Router{
		subscribers:  map[*subscriber]struct{}{},
		channelSize:  defaultSubscriberCapacity,
		backlogLimit: defaultBacklogLimit,
		now:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// WithLogger reports dropped events.
func WithLogger(logger *slog.Logger) RouterOption {
	return func(r *Router) { r.logger = logger }
}

// WithSubscriberCapacity overrides the buffered channel size per subscriber.
func WithSubscriberCapacity(n int) RouterOption {
	return func(r *Router) {
		if n > 0 {
			r.channelSize = n
		}
	}
}

// WithBacklogLimit overrides the pre-subscription backlog size.
func WithBacklogLimit(n int) RouterOption {
	return func(r *Router) {
		if n > 0 {
			r.backlogLimit = n
		}
	}
}

// Subscribe registers a reader. Backlogged events are delivered first.
func (r *Router) Subscribe() Subscription {
	sub := newSubscriber(r.channelSize, r.logger)
	r.mu.Lock()
	r.subscribers[sub] = struct{}{}
	for _, event := range r.backlog {
		sub.deliver(event)
	}
	r.backlog = nil
	r.mu.Unlock()
	return Subscription{
		Events: sub.ch,
		cancel: func() { r.removeSubscriber(sub) },
	}
}

// Publish stamps and routes an event. Delivery never blocks, so it happens
// under the router lock to keep per-subscriber order.
func (r *Router) Publish(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	event.Sequence = r.seq
	if event.Time.IsZero() {
		event.Time = r.now()
	}
	if len(r.subscribers) == 0 {
		r.bufferLocked(event)
		return
	}
	for sub := range r.subscribers {
		sub.deliver(event)
	}
}

// StageStarted implements orchestrator.Observer.
func (r *Router) StageStarted(index int, st stage.Stage) {
	r.Publish(Event{Type: TypeStageStarted, Index: index, Stage: st})
}

// StageResolved implements orchestrator.Observer.
func (r *Router) StageResolved(index int, res stage.Result, total int64) {
	r.Publish(Event{Type: TypeStageResolved, Index: index, Result: res, Total: total})
}

// SequenceFinished implements orchestrator.Observer.
func (r *Router) SequenceFinished(s orchestrator.Session, err error) {
	r.Publish(Event{Type: TypeSequenceFinished, Index: len(s.Results), Session: s, Total: s.Total, Err: err})
}

func (r *Router) bufferLocked(event Event) {
	if len(r.backlog) >= r.backlogLimit {
		if r.logger != nil {
			r.logger.Warn("eventbridge: backlog drop", "type", r.backlog[0].Type, "limit", r.backlogLimit)
		}
		r.backlog = r.backlog[1:]
	}
	r.backlog = append(r.backlog, event)
}

func (r *Router) removeSubscriber(sub *subscriber) {
	r.mu.Lock()
	delete(r.subscribers, sub)
	r.mu.Unlock()
	sub.close()
}

type subscriber struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
	logger *slog.Logger
}

func newSubscriber(capacity int, logger *slog.Logger) *subscriber {
	if capacity <= 0 {
		capacity = defaultSubscriberCapacity
	}
	return &subscriber{ch: make(chan Event, capacity), logger: logger}
}

// deliver never blocks. On overflow an incoming non-critical event is
// dropped; an incoming critical event evicts the oldest queued one.
func (s *subscriber) deliver(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- event:
		return
	default:
	}
	if !event.critical() {
		s.logDrop(event)
		return
	}
	select {
	case oldest := <-s.ch:
		s.logDrop(oldest)
	default:
	}
	s.ch <- event
}

func (s *subscriber) logDrop(event Event) {
	if s.logger == nil {
		return
	}
	s.logger.Warn("eventbridge: dropped event", "type", event.Type, "sequence", event.Sequence)
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
