package workflow

import (
	"sync"
	"time"
)

// StepEvent is published on every step status transition. External
// progress streaming subscribes here; the orchestrator is correct with
// zero subscribers.
type StepEvent struct {
	WorkflowID string     `json:"workflow_id"`
	Step       StepResult `json:"step"`
	Timestamp  time.Time  `json:"timestamp"`
}

// Bus is a minimal in-process publish/subscribe channel for step events.
// Publishing never blocks: a slow subscriber drops events rather than
// stalling the workflow.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]chan StepEvent
	next int
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan StepEvent)}
}

// Subscribe registers a buffered subscriber channel. The returned cancel
// function removes the subscription and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan StepEvent, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan StepEvent, buffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish fans the event out to all subscribers without blocking.
func (b *Bus) Publish(evt StepEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			// Subscriber buffer full; drop rather than stall the run.
		}
	}
}
