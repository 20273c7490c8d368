// Package eventbus broadcasts TrajectoryEvents to verbosity-gated
// subscribers. It is the typed-event counterpart of the teacher's category
// gated file logger: where internal/logging gates writes by category, the
// event bus gates delivery by subscriber verbosity. The bus itself writes
// nothing into internal/mangle; the proof cascade and spec-link index
// assert their own facts there directly.
package eventbus

import (
	"sync"
	"time"

	"github.com/rlm-systems/rlm-runtime/internal/logging"
	"github.com/rlm-systems/rlm-runtime/internal/rlmtypes"
)

// Subscriber receives trajectory events at or above its configured
// verbosity. Deliver must not block for long; the bus calls it
// synchronously from whichever goroutine published the event.
type Subscriber interface {
	Verbosity() rlmtypes.Verbosity
	Deliver(event rlmtypes.TrajectoryEvent)
}

// Bus fans a stream of TrajectoryEvents out to its subscribers and keeps
// an in-memory tail of the most recent events for replay (e.g. when the
// trace graph or a newly-attached CLI --trace consumer wants recent
// history rather than only events emitted after it attached).
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]Subscriber
	tail        []rlmtypes.TrajectoryEvent
	tailLimit   int
}

// New constructs a Bus that retains up to tailLimit recent events for
// replay. A tailLimit of 0 disables replay retention.
func New(tailLimit int) *Bus {
	return &Bus{
		subscribers: make(map[string]Subscriber),
		tailLimit:   tailLimit,
	}
}

// Subscribe registers a subscriber under id, replacing any prior
// subscriber registered under the same id.
func (b *Bus) Subscribe(id string, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[id] = sub
}

// Unsubscribe removes the subscriber registered under id, if any.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, id)
}

// Publish stamps an event's timestamp if unset, appends it to the replay
// tail, and delivers it to every subscriber whose verbosity is at or
// above the event's minimum required verbosity.
func (b *Bus) Publish(eventType rlmtypes.TrajectoryEventType, depth uint32, content string, metadata map[string]interface{}) {
	event := rlmtypes.TrajectoryEvent{
		EventType: eventType,
		Depth:     depth,
		Content:   content,
		Metadata:  metadata,
		Timestamp: time.Now(),
	}

	b.mu.Lock()
	if b.tailLimit > 0 {
		b.tail = append(b.tail, event)
		if over := len(b.tail) - b.tailLimit; over > 0 {
			b.tail = b.tail[over:]
		}
	}
	subs := make([]Subscriber, 0, len(b.subscribers))
	for _, s := range b.subscribers {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	minVerbosity := rlmtypes.MinVerbosityFor(eventType)
	for _, s := range subs {
		if s.Verbosity() < minVerbosity {
			continue
		}
		s.Deliver(event)
	}

	logging.Get(logging.CategoryEventBus).Debug("published %s at depth %d", eventType, depth)
}

// Tail returns a copy of the most recently retained events, oldest first.
func (b *Bus) Tail() []rlmtypes.TrajectoryEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]rlmtypes.TrajectoryEvent, len(b.tail))
	copy(out, b.tail)
	return out
}

// FuncSubscriber adapts a plain function and fixed verbosity into a
// Subscriber, for callers that don't need their own type (e.g. the CLI's
// --trace flag wiring a closure that writes to stdout).
type FuncSubscriber struct {
	Min     rlmtypes.Verbosity
	Handler func(rlmtypes.TrajectoryEvent)
}

func (f FuncSubscriber) Verbosity() rlmtypes.Verbosity { return f.Min }

func (f FuncSubscriber) Deliver(event rlmtypes.TrajectoryEvent) { f.Handler(event) }
