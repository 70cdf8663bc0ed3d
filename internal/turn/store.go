package turn

import (
	"fmt"
	"sync"
	"time"
)

// UpdateFunc is invoked with a snapshot of a turn whenever it is created or
// modified. Handlers run synchronously under the store's lock ordering and
// must not call back into the store.
type UpdateFunc func(Turn)

// Store is the append-only, ordered collection of turns. Order of the backing
// slice is creation order. Safe for concurrent use.
type Store struct {
	mu    sync.Mutex
	turns []*Turn
	index map[string]*Turn
	seq   int
	subs  []UpdateFunc
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{index: make(map[string]*Turn)}
}

// Subscribe registers fn to receive a snapshot of every turn create and
// update. Subscriptions cannot be removed.
func (s *Store) Subscribe(fn UpdateFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}

// Open creates a new turn with a fresh ID and the given timestamp, appends
// it, and returns a snapshot. IDs follow a process-local monotonic sequence
// and are never reused.
func (s *Store) Open(ts time.Time) Turn {
	s.mu.Lock()
	s.seq++
	t := &Turn{
		ID:        fmt.Sprintf("turn-%d", s.seq),
		Timestamp: ts,
	}
	s.turns = append(s.turns, t)
	s.index[t.ID] = t
	snap := *t
	subs := s.subs
	s.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
	return snap
}

// SetTranscript writes the finalized transcript onto the turn with the given
// ID. Unknown IDs are ignored.
func (s *Store) SetTranscript(id, transcript string) {
	s.update(id, func(t *Turn) {
		t.UserTranscript = transcript
	})
}

// Complete records the analysis outcome and marks the turn complete.
// Unknown IDs are ignored, which makes late completions of discarded turns
// harmless.
func (s *Store) Complete(id, response string, similarity float64) {
	s.update(id, func(t *Turn) {
		t.ModelResponse = response
		t.Similarity = similarity
		t.IsComplete = true
	})
}

// Discard removes the turn with the given ID. Used when a turn's buffer
// turned out to be whitespace-only at finalize time. The ID stays consumed.
// Subscribers receive a final snapshot with Deleted set so views that
// rendered the open turn can drop it.
func (s *Store) Discard(id string) {
	s.mu.Lock()
	t, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.index, id)
	for i, cur := range s.turns {
		if cur == t {
			s.turns = append(s.turns[:i], s.turns[i+1:]...)
			break
		}
	}
	snap := *t
	snap.Deleted = true
	subs := s.subs
	s.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

// Get returns a snapshot of the turn with the given ID.
func (s *Store) Get(id string) (Turn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.index[id]
	if !ok {
		return Turn{}, false
	}
	return *t, true
}

// List returns snapshots of all turns in creation order.
func (s *Store) List() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.turns))
	for i, t := range s.turns {
		out[i] = *t
	}
	return out
}

// Len returns the number of stored turns.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}

func (s *Store) update(id string, mutate func(*Turn)) {
	s.mu.Lock()
	t, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	mutate(t)
	snap := *t
	subs := s.subs
	s.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}
