package bounty

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/standardbounties/standardbounties/internal/logging"
	"github.com/standardbounties/standardbounties/pkg/types"
)

// EventLog is an append-only audit log for one instance. External monitoring
// reads it either as a snapshot or through a subscription channel.
type EventLog struct {
	instance common.Address
	events   []types.Event
	seq      uint64
	subs     map[uint64]chan types.Event
	nextSub  uint64
	mu       sync.RWMutex
}

// NewEventLog creates an empty log bound to an instance address.
func NewEventLog(instance common.Address) *EventLog {
	return &EventLog{
		instance: instance,
		subs:     make(map[uint64]chan types.Event),
	}
}

// Append assigns the next sequence number, stores the event, and notifies
// subscribers. Slow subscribers have events dropped rather than blocking the
// instance; the log itself is always complete.
func (l *EventLog) Append(ev types.Event) {
	l.mu.Lock()
	ev.Seq = l.seq
	ev.Instance = l.instance
	l.seq++
	l.events = append(l.events, ev)
	subs := make([]chan types.Event, 0, len(l.subs))
	for _, ch := range l.subs {
		subs = append(subs, ch)
	}
	l.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			logging.Warn("event subscriber lagging, dropping event",
				"event_type", string(ev.Type),
				logging.Instance(l.instance))
		}
	}
}

// Events returns a snapshot of the full log.
func (l *EventLog) Events() []types.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]types.Event, len(l.events))
	copy(out, l.events)
	return out
}

// Len returns the number of logged events.
func (l *EventLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// Subscribe registers a buffered channel receiving every event appended after
// the call. The returned cancel function unregisters and closes the channel.
func (l *EventLog) Subscribe(buffer int) (<-chan types.Event, func()) {
	ch := make(chan types.Event, buffer)

	l.mu.Lock()
	id := l.nextSub
	l.nextSub++
	l.subs[id] = ch
	l.mu.Unlock()

	cancel := func() {
		l.mu.Lock()
		if _, ok := l.subs[id]; ok {
			delete(l.subs, id)
			close(ch)
		}
		l.mu.Unlock()
	}
	return ch, cancel
}
