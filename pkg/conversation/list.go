package conversation

import "sync"

// List is an ordered, concurrency-safe sequence of turns.
type List struct {
	mu       sync.RWMutex
	turns    []Turn
	onChange func([]Turn)
}

// NewList creates a list holding the given turns.
func NewList(turns ...Turn) *List {
	l := &List{}
	l.turns = append(l.turns, turns...)
	return l
}

// OnChange registers fn to be called with a snapshot after every mutation.
// fn runs outside the list lock.
func (l *List) OnChange(fn func([]Turn)) {
	l.mu.Lock()
	l.onChange = fn
	l.mu.Unlock()
}

// Append adds turns to the end of the list.
func (l *List) Append(turns ...Turn) {
	if len(turns) == 0 {
		return
	}
	l.mu.Lock()
	l.turns = append(l.turns, turns...)
	l.mu.Unlock()
	l.notify()
}

// Update applies fn to the first turn with the given ID.
// It reports whether a turn was found.
func (l *List) Update(id string, fn func(*Turn)) bool {
	l.mu.Lock()
	idx := l.indexLocked(id)
	if idx < 0 {
		l.mu.Unlock()
		return false
	}
	fn(&l.turns[idx])
	l.mu.Unlock()
	l.notify()
	return true
}

// Replace swaps the turn with the given ID for t.
func (l *List) Replace(id string, t Turn) bool {
	return l.Update(id, func(cur *Turn) { *cur = t })
}

// Has reports whether a turn with id exists.
func (l *List) Has(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.indexLocked(id) >= 0
}

// Get returns a copy of the turn with id.
func (l *List) Get(id string) (Turn, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	idx := l.indexLocked(id)
	if idx < 0 {
		return Turn{}, false
	}
	return l.turns[idx], true
}

// Reset replaces the whole list.
func (l *List) Reset(turns ...Turn) {
	l.mu.Lock()
	l.turns = append([]Turn(nil), turns...)
	l.mu.Unlock()
	l.notify()
}

// Snapshot returns a copy of all turns in order.
func (l *List) Snapshot() []Turn {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshotLocked()
}

// Len returns the number of turns.
func (l *List) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.turns)
}

// PendingCount returns how many turns are still streaming.
func (l *List) PendingCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := 0
	for _, t := range l.turns {
		if t.Pending {
			n++
		}
	}
	return n
}

func (l *List) indexLocked(id string) int {
	for i := range l.turns {
		if l.turns[i].ID == id {
			return i
		}
	}
	return -1
}

func (l *List) snapshotLocked() []Turn {
	out := make([]Turn, len(l.turns))
	copy(out, l.turns)
	return out
}

func (l *List) notify() {
	l.mu.RLock()
	fn := l.onChange
	var snap []Turn
	if fn != nil {
		snap = l.snapshotLocked()
	}
	l.mu.RUnlock()
	if fn != nil {
		fn(snap)
	}
}
