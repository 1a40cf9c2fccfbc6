package pipeline

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/prempunmagar/trustcard/internal/model"
)

var ErrUnknownGroup = errors.New("barrier group not found")

// Barrier tracks fan-out groups and decides which arrival closes each one.
// A group closes exactly once: either its last member arrives before the
// wait budget runs out, or the timer fires first.
type Barrier struct {
	mu     sync.Mutex
	groups map[string]*group
}

type group struct {
	id        string
	jobID     string
	mu        sync.Mutex
	pending   map[model.AnalyzerType]bool
	remaining atomic.Int32
	closed    atomic.Bool
	timer     *time.Timer
}

func NewBarrier() *Barrier {
	return &Barrier{groups: make(map[string]*group)}
}

// Open registers a group for jobID over members and arms its timer. onTimeout
// runs at most once, only when the budget elapses before the last arrival.
func (b *Barrier) Open(jobID string, members []model.AnalyzerType, budget time.Duration, onTimeout func(groupID string)) string {
	g := &group{
		id:      uuid.NewString(),
		jobID:   jobID,
		pending: make(map[model.AnalyzerType]bool, len(members)),
	}
	for _, m := range members {
		g.pending[m] = true
	}
	g.remaining.Store(int32(len(g.pending)))

	b.mu.Lock()
	b.groups[g.id] = g
	b.mu.Unlock()

	g.timer = time.AfterFunc(budget, func() {
		if !g.closed.CompareAndSwap(false, true) {
			return
		}
		b.remove(g.id)
		if onTimeout != nil {
			onTimeout(g.id)
		}
	})
	return g.id
}

// Arrive records member for the group. It reports true for exactly one call
// per group: the arrival that brings the countdown to zero while the group is
// still open. Duplicate, unknown and late members report false.
func (b *Barrier) Arrive(groupID string, member model.AnalyzerType) (bool, error) {
	g, ok := b.lookup(groupID)
	if !ok {
		return false, ErrUnknownGroup
	}

	g.mu.Lock()
	first := g.pending[member]
	delete(g.pending, member)
	g.mu.Unlock()
	if !first || g.closed.Load() {
		return false, nil
	}

	if g.remaining.Add(-1) != 0 {
		return false, nil
	}
	if !g.closed.CompareAndSwap(false, true) {
		// The timer won the race.
		return false, nil
	}
	g.timer.Stop()
	b.remove(groupID)
	return true, nil
}

// Closed reports whether the group has fired, timed out or been cancelled.
// Unknown groups count as closed.
func (b *Barrier) Closed(groupID string) bool {
	g, ok := b.lookup(groupID)
	return !ok || g.closed.Load()
}

// Cancel closes a group without firing it.
func (b *Barrier) Cancel(groupID string) {
	g, ok := b.lookup(groupID)
	if !ok {
		return
	}
	if g.closed.CompareAndSwap(false, true) {
		g.timer.Stop()
	}
	b.remove(groupID)
}

// Len returns the number of open groups.
func (b *Barrier) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.groups)
}

func (b *Barrier) lookup(id string) (*group, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	g, ok := b.groups[id]
	return g, ok
}

func (b *Barrier) remove(id string) {
	b.mu.Lock()
	delete(b.groups, id)
	b.mu.Unlock()
}
