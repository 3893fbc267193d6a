package broadcast

import (
	"log"
	"sync"
)

// Event types pushed to department subscribers.
const (
	PositionUpdate = "position_update"
	StatusUpdate   = "status_update"
)

// Event is the ephemeral payload handed to dashboard subscribers. Never
// persisted; replay is out of scope.
type Event struct {
	Department   string `json:"department"`
	Type         string `json:"type"`
	TicketNumber int    `json:"queue_number,omitempty"`
	Status       string `json:"status,omitempty"`
	PatientID    int64  `json:"patient_id,omitempty"`
	PatientName  string `json:"patient_name,omitempty"`
	IsOpen       bool   `json:"is_open,omitempty"`
}

// Broadcaster fans queue events out to per-department subscribers.
// It is constructed once at startup and injected wherever events are
// published; there is no process-wide registry.
//
// Publish is fire-and-forget: a subscriber whose buffer is full misses the
// event, and publishing with no subscribers at all is a no-op. Queue-state
// correctness never depends on anyone listening.
type Broadcaster struct {
	mu      sync.RWMutex
	subs    map[string]map[chan Event]struct{}
	bufSize int
	closed  bool
}

func New(bufSize int) *Broadcaster {
	if bufSize <= 0 {
		bufSize = 16
	}
	return &Broadcaster{
		subs:    make(map[string]map[chan Event]struct{}),
		bufSize: bufSize,
	}
}

// Subscribe registers a listener for one department's events. The returned
// cancel func must be called when the listener goes away; it closes the
// channel.
func (b *Broadcaster) Subscribe(department string) (<-chan Event, func()) {
	ch := make(chan Event, b.bufSize)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	set, ok := b.subs[department]
	if !ok {
		set = make(map[chan Event]struct{})
		b.subs[department] = set
	}
	set[ch] = struct{}{}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if set, ok := b.subs[department]; ok {
				if _, live := set[ch]; live {
					delete(set, ch)
					close(ch)
					if len(set) == 0 {
						delete(b.subs, department)
					}
				}
			}
		})
	}
	return ch, cancel
}

// Publish delivers an event to every current subscriber of the
// department. Never blocks: slow subscribers drop events.
func (b *Broadcaster) Publish(department string, ev Event) {
	ev.Department = department

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for ch := range b.subs[department] {
		select {
		case ch <- ev:
		default:
			log.Printf("[Broadcast] subscriber buffer full, dropping %s event for %s", ev.Type, department)
		}
	}
}

// SubscriberCount reports active listeners for a department.
func (b *Broadcaster) SubscriberCount(department string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[department])
}

// Close tears the broadcaster down at shutdown, closing every subscriber
// channel. Publish and Subscribe become no-ops afterwards.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for dept, set := range b.subs {
		for ch := range set {
			close(ch)
		}
		delete(b.subs, dept)
	}
}
