// Package notify carries capture graph events (pictures, warnings) to any
// number of subscribers
//
// Publishing never blocks: a subscriber whose channel is full misses the event
// and the miss is counted in its stats.
package notify

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/internal/snapshot"
)

var (
	ErrBusClosed          = errors.New("notify: bus is closed")
	ErrSubscriberExists   = errors.New("notify: subscriber already exists")
	ErrSubscriberNotFound = errors.New("notify: subscriber not found")
	ErrNilChannel         = errors.New("notify: nil channel provided")
)

// Kind classifies events
type Kind string

const (
	KindPictureReady Kind = "picture-ready"
	KindWarning      Kind = "warning"
	KindState        Kind = "state"
)

// WarningKind classifies non-fatal build conditions
type WarningKind string

const (
	// WarnNoAudioDevice: the requested microphone is absent, recording is
	// video-only
	WarnNoAudioDevice WarningKind = "no-audio-device"
	// WarnProfileUnavailable: the encoding profile could not be loaded, the
	// writer keeps its defaults
	WarnProfileUnavailable WarningKind = "profile-unavailable"
	// WarnRouteFailed: one connector route attempt failed
	WarnRouteFailed WarningKind = "route-failed"
	// WarnRuntime: the media runtime reported an error while running
	WarnRuntime WarningKind = "runtime"
)

// Warning is a user-facing, non-fatal condition
type Warning struct {
	Kind    WarningKind
	Message string
	Err     error
}

func (w Warning) String() string {
	if w.Err != nil {
		return fmt.Sprintf("%s: %s: %v", w.Kind, w.Message, w.Err)
	}
	return fmt.Sprintf("%s: %s", w.Kind, w.Message)
}

// Event is one notification. Exactly one of Picture, Warning or State is set
// according to Kind.
type Event struct {
	Kind    Kind
	GraphID string
	Time    time.Time

	Picture *snapshot.PictureReady
	Warning *Warning
	State   string
}

// Sink receives events
type Sink interface {
	Notify(ev Event)
}

// SinkFunc adapts a function to Sink
type SinkFunc func(Event)

// Notify implements Sink
func (f SinkFunc) Notify(ev Event) { f(ev) }

// Discard drops every event
var Discard Sink = SinkFunc(func(Event) {})

// SubscriberStats tracks delivery per subscriber
type SubscriberStats struct {
	Sent    uint64
	Dropped uint64
}

type subscriber struct {
	ch    chan<- Event
	kinds map[Kind]bool
	stats SubscriberStats
}

func (s *subscriber) wants(k Kind) bool {
	return len(s.kinds) == 0 || s.kinds[k]
}

// Bus fans events out to subscribers. It implements Sink.
type Bus struct {
	mu             sync.RWMutex
	subscribers    map[string]*subscriber
	totalPublished uint64
	closed         bool
}

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{subscribers: make(map[string]*subscriber)}
}

// Subscribe registers ch under id. With kinds, only those kinds are
// delivered; without, everything is.
func (b *Bus) Subscribe(id string, ch chan<- Event, kinds ...Kind) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}
	if _, exists := b.subscribers[id]; exists {
		return ErrSubscriberExists
	}
	if ch == nil {
		return ErrNilChannel
	}

	sub := &subscriber{ch: ch}
	if len(kinds) > 0 {
		sub.kinds = make(map[Kind]bool, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = true
		}
	}
	b.subscribers[id] = sub
	return nil
}

// Unsubscribe removes a subscriber. Its channel is not closed.
func (b *Bus) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[id]; !exists {
		return ErrSubscriberNotFound
	}
	delete(b.subscribers, id)
	return nil
}

// Notify implements Sink by publishing ev
func (b *Bus) Notify(ev Event) {
	b.Publish(ev)
}

// Publish delivers ev to every interested subscriber without blocking
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	atomic.AddUint64(&b.totalPublished, 1)

	for _, sub := range b.subscribers {
		if !sub.wants(ev.Kind) {
			continue
		}
		select {
		case sub.ch <- ev:
			atomic.AddUint64(&sub.stats.Sent, 1)
		default:
			atomic.AddUint64(&sub.stats.Dropped, 1)
		}
	}
}

// Stats returns delivery counters for a subscriber
func (b *Bus) Stats(id string) (SubscriberStats, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	sub, exists := b.subscribers[id]
	if !exists {
		return SubscriberStats{}, ErrSubscriberNotFound
	}
	return SubscriberStats{
		Sent:    atomic.LoadUint64(&sub.stats.Sent),
		Dropped: atomic.LoadUint64(&sub.stats.Dropped),
	}, nil
}

// Published returns how many events were published
func (b *Bus) Published() uint64 {
	return atomic.LoadUint64(&b.totalPublished)
}

// Close drops every subscriber. Later publishes are ignored. Idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subscribers = nil
}
