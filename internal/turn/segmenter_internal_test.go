package turn

import (
	"sync"
	"testing"
	"time"
)

// TestSegmenterFire_StaleSequenceIgnored checks that a timer callback which
// lost the race against a re-arm does not finalize the turn with the late
// fragment included.
func TestSegmenterFire_StaleSequenceIgnored(t *testing.T) {
	t.Parallel()
	store := NewStore()

	var mu sync.Mutex
	var finalized []string
	s := NewSegmenter(store, time.Hour, func(_, transcript string) {
		mu.Lock()
		finalized = append(finalized, transcript)
		mu.Unlock()
	}, nil)

	s.Push("Ich habe")
	s.Push(" gewartet.")

	// A fire from before the last re-arm carries an outdated sequence and
	// must leave the turn accumulating.
	s.fire(0)
	if !s.Open() {
		t.Fatal("turn should still be accumulating after a stale fire")
	}
	mu.Lock()
	if len(finalized) != 0 {
		t.Fatalf("finalized %d turns after a stale fire; want 0", len(finalized))
	}
	mu.Unlock()

	// The fire matching the armed timer finalizes with the full buffer.
	s.mu.Lock()
	seq := s.timerSeq
	s.mu.Unlock()
	s.fire(seq)

	if s.Open() {
		t.Error("current-sequence fire should have finalized the turn")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(finalized) != 1 || finalized[0] != "Ich habe gewartet." {
		t.Errorf("finalized = %v; want one turn %q", finalized, "Ich habe gewartet.")
	}
}

// TestSegmenterReset_InvalidatesArmedTimer checks that a fire captured before
// Reset cannot finalize a turn opened afterwards.
func TestSegmenterReset_InvalidatesArmedTimer(t *testing.T) {
	t.Parallel()
	store := NewStore()

	var mu sync.Mutex
	count := 0
	s := NewSegmenter(store, time.Hour, func(_, _ string) {
		mu.Lock()
		count++
		mu.Unlock()
	}, nil)

	s.Push("erste")
	s.mu.Lock()
	staleSeq := s.timerSeq
	s.mu.Unlock()

	s.Reset()
	s.Push("zweite")

	// The pre-Reset timer fires late; the new turn must survive it.
	s.fire(staleSeq)
	if !s.Open() {
		t.Error("turn opened after Reset should survive a pre-Reset fire")
	}
	mu.Lock()
	defer mu.Unlock()
	if count != 0 {
		t.Errorf("finalize ran %d times; want 0", count)
	}
}
