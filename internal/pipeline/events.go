package pipeline

import (
	"sync"

	"github.com/prempunmagar/trustcard/internal/model"
)

type EventType string

const (
	EventStatus EventType = "status"
	EventStage  EventType = "stage"
	EventResult EventType = "result"
)

type JobEvent struct {
	JobID string    `json:"job_id"`
	Type  EventType `json:"type"`

	Status model.JobStatus    `json:"status,omitempty"`
	Stage  model.AnalyzerType `json:"stage,omitempty"`
	Error  string             `json:"error,omitempty"`

	Progress int    `json:"progress"`
	Message  string `json:"message,omitempty"`
}

// Terminal reports whether no event follows e for its job.
func (e JobEvent) Terminal() bool {
	return e.Type == EventResult || e.Status.Terminal()
}

// Broker fans job events out to subscribers. Publishing never blocks: a
// subscriber that does not keep up loses events.
type Broker struct {
	buffer int

	mu   sync.Mutex
	next int
	subs map[string]map[int]chan JobEvent
}

func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = 16
	}
	return &Broker{buffer: buffer, subs: make(map[string]map[int]chan JobEvent)}
}

// Subscribe returns the event stream for jobID and a func that ends the
// subscription. The channel is closed after a terminal event or on unsubscribe.
func (b *Broker) Subscribe(jobID string) (<-chan JobEvent, func()) {
	ch := make(chan JobEvent, b.buffer)

	b.mu.Lock()
	id := b.next
	b.next++
	if b.subs[jobID] == nil {
		b.subs[jobID] = make(map[int]chan JobEvent)
	}
	b.subs[jobID][id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[jobID][id]; ok {
				delete(b.subs[jobID], id)
				if len(b.subs[jobID]) == 0 {
					delete(b.subs, jobID)
				}
				close(c)
			}
		})
	}
}

func (b *Broker) HasSubscribers(jobID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[jobID]) > 0
}

func (b *Broker) Publish(ev JobEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[ev.JobID]
	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
		}
	}
	if ev.Terminal() {
		for _, ch := range subs {
			close(ch)
		}
		delete(b.subs, ev.JobID)
	}
}
