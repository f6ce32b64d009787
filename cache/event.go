package cache

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/aggcache/segment"
)

// EventType classifies cache events.
type EventType uint8

const (
	// EntryCreated is raised after a body is stored.
	EntryCreated EventType = iota + 1
	// EntryDeleted is raised after an entry is removed.
	EntryDeleted
)

func (t EventType) String() string {
	switch t {
	case EntryCreated:
		return "created"
	case EntryDeleted:
		return "deleted"
	default:
		return fmt.Sprintf("EventType(%d)", uint8(t))
	}
}

// Event describes a change to a cache.
type Event struct {
	Type   EventType
	Header *segment.Header
	// Local is true when the change was made through this process, false when
	// it was observed in a store shared with other processes.
	Local bool
}

// Listener receives cache events. Listeners run on the cache's notifier
// goroutine and must not block for long.
type Listener func(Event)

// ListenerID identifies a registered listener.
type ListenerID uint64

type registration struct {
	id ListenerID
	fn Listener
}

const defaultEventBuffer = 256

// notifier delivers events to listeners on a dedicated goroutine.
//
// The listener slice is copy-on-write: dispatch reads it without locking
// while registrations replace it under mu.
type notifier struct {
	listeners atomic.Pointer[[]registration]
	nextID    atomic.Uint64
	mu        sync.Mutex

	// sendMu guards events against close while a send is in flight.
	sendMu sync.RWMutex
	closed bool
	events chan Event
	done   chan struct{}

	logger *slog.Logger
}

func newNotifier(buffer int, logger *slog.Logger) *notifier {
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	n := &notifier{
		events: make(chan Event, buffer),
		done:   make(chan struct{}),
		logger: logger,
	}
	empty := []registration{}
	n.listeners.Store(&empty)

	go n.run()
	return n
}

func (n *notifier) add(fn Listener) ListenerID {
	id := ListenerID(n.nextID.Add(1))

	n.mu.Lock()
	defer n.mu.Unlock()

	cur := *n.listeners.Load()
	next := make([]registration, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, registration{id: id, fn: fn})
	n.listeners.Store(&next)
	return id
}

func (n *notifier) remove(id ListenerID) {
	n.mu.Lock()
	defer n.mu.Unlock()

	cur := *n.listeners.Load()
	next := make([]registration, 0, len(cur))
	for _, r := range cur {
		if r.id != id {
			next = append(next, r)
		}
	}
	n.listeners.Store(&next)
}

// notify queues e. Events raised after close are dropped.
func (n *notifier) notify(e Event) {
	n.sendMu.RLock()
	defer n.sendMu.RUnlock()

	if n.closed {
		return
	}
	n.events <- e
}

func (n *notifier) run() {
	defer close(n.done)

	for e := range n.events {
		for _, r := range *n.listeners.Load() {
			n.dispatch(r, e)
		}
	}
}

func (n *notifier) dispatch(r registration, e Event) {
	defer func() {
		if p := recover(); p != nil {
			n.logger.Error("cache listener panicked",
				slog.Uint64("listener", uint64(r.id)),
				slog.String("event", e.Type.String()),
				slog.Any("panic", p))
		}
	}()
	r.fn(e)
}

// close drains queued events and stops the goroutine.
func (n *notifier) close() {
	n.sendMu.Lock()
	if n.closed {
		n.sendMu.Unlock()
		return
	}
	n.closed = true
	close(n.events)
	n.sendMu.Unlock()

	<-n.done
}
