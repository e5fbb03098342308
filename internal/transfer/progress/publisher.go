// Package progress fans transfer events out to attached observers.
package progress

import (
	"sync"

	"github.com/DrHuaSH/web-browser-downloader/internal/core/domain"
)

// EventType says what an event reports.
type EventType string

const (
	// EventState marks a task status transition.
	EventState EventType = "state"
	// EventProgress reports transferred byte counts.
	EventProgress EventType = "progress"
)

// Event is one update about a task.
type Event struct {
	Type   EventType         `json:"type"`
	TaskID string            `json:"task_id"`
	Status domain.TaskStatus `json:"status,omitempty"`
	Loaded int64             `json:"loaded,omitempty"`
	Total  int64             `json:"total,omitempty"`
	Error  string            `json:"error,omitempty"`
	Kind   domain.ErrorKind  `json:"error_kind,omitempty"`
}

// Publisher fans events out to subscribers. Publishing never blocks: a
// subscriber that falls behind misses events, and nothing is buffered or
// replayed. A late subscriber sees only events published after it
// attaches.
type Publisher struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

func NewPublisher() *Publisher {
	return &Publisher{
		subs: make(map[int]chan Event),
	}
}

// Subscribe attaches an observer. The returned func detaches it and
// closes the channel.
func (p *Publisher) Subscribe() (<-chan Event, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.next
	p.next++
	ch := make(chan Event, 64)
	p.subs[id] = ch

	unsubscribe := func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if ch, ok := p.subs[id]; ok {
			delete(p.subs, id)
			close(ch)
		}
	}
	return ch, unsubscribe
}

// Publish delivers ev to every subscriber without blocking.
func (p *Publisher) Publish(ev Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, ch := range p.subs {
		select {
		case ch <- ev:
		default:
			// Slow subscriber: drop rather than stall the transfer.
		}
	}
}

// SubscriberCount returns how many observers are attached.
func (p *Publisher) SubscriberCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subs)
}
