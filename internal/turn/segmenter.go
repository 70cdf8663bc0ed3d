package turn

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/sprachcoach/internal/observe"
)

// DefaultSilenceWindow is the pause length that ends a turn.
const DefaultSilenceWindow = 3000 * time.Millisecond

// FinalizeFunc receives the ID and finalized transcript of a turn whose
// silence window elapsed. It is called from the segmenter's timer goroutine,
// at most once per turn, and never with a whitespace-only transcript.
type FinalizeFunc func(turnID, transcript string)

// Segmenter groups incremental transcript fragments into turns using a
// single-shot silence timer.
//
// It has two states: no open turn, and accumulating. The first fragment of an
// utterance opens a turn in the store (ID and timestamp assigned immediately)
// and arms the timer; every further fragment appends to the buffer and
// re-arms it. When the timer fires the buffered transcript is written to the
// store and handed to the finalize callback, or the turn is discarded when
// the buffer is whitespace-only.
//
// Safe for concurrent use, though fragments are expected from a single
// reader goroutine.
type Segmenter struct {
	store   *Store
	window  time.Duration
	onFinal FinalizeFunc
	logger  *slog.Logger
	metrics *observe.Metrics

	mu     sync.Mutex
	timer  *time.Timer
	openID string
	buf    strings.Builder

	// timerSeq identifies the currently armed timer. A fire carrying an
	// older sequence lost a race against a re-arm or Reset and is ignored;
	// Stop alone cannot guarantee that, since the timer may already have
	// fired and be waiting on mu.
	timerSeq uint64
}

// NewSegmenter creates a Segmenter that opens turns in store and reports
// finalized turns to onFinal. A non-positive window falls back to
// DefaultSilenceWindow.
func NewSegmenter(store *Store, window time.Duration, onFinal FinalizeFunc, logger *slog.Logger) *Segmenter {
	if window <= 0 {
		window = DefaultSilenceWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Segmenter{
		store:   store,
		window:  window,
		onFinal: onFinal,
		logger:  logger,
		metrics: observe.DefaultMetrics(),
	}
}

// Push feeds one transcript fragment. Empty fragments are ignored entirely;
// they neither open a turn nor re-arm the timer.
func (s *Segmenter) Push(text string) {
	if text == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.openID == "" {
		t := s.store.Open(time.Now())
		s.openID = t.ID
		s.buf.Reset()
		s.logger.Debug("turn opened", "turn", t.ID)
	}

	s.buf.WriteString(text)

	if s.timer != nil {
		s.timer.Stop()
	}
	s.timerSeq++
	seq := s.timerSeq
	s.timer = time.AfterFunc(s.window, func() { s.fire(seq) })
}

// fire runs when the silence window elapses with no new fragment.
func (s *Segmenter) fire(seq uint64) {
	s.mu.Lock()
	id := s.openID
	if seq != s.timerSeq || id == "" {
		// A later fragment re-armed the window, or Reset raced the timer;
		// nothing to finalize.
		s.mu.Unlock()
		return
	}
	transcript := s.buf.String()
	s.openID = ""
	s.buf.Reset()
	s.timer = nil
	s.mu.Unlock()

	if strings.TrimSpace(transcript) == "" {
		s.store.Discard(id)
		s.metrics.TurnsDiscarded.Add(context.Background(), 1)
		s.logger.Debug("turn discarded, empty transcript", "turn", id)
		return
	}

	s.store.SetTranscript(id, transcript)
	s.logger.Debug("turn finalized", "turn", id, "chars", len(transcript))

	if s.onFinal != nil {
		s.onFinal(id, transcript)
	}
}

// Reset cancels the pending timer and discards any unfinalized turn. Called
// on disconnect; audio that was mid-utterance is dropped rather than carried
// into the next session.
func (s *Segmenter) Reset() {
	s.mu.Lock()
	id := s.openID
	s.openID = ""
	s.buf.Reset()
	s.timerSeq++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	if id != "" {
		s.store.Discard(id)
		s.metrics.TurnsDiscarded.Add(context.Background(), 1)
		s.logger.Debug("turn discarded on reset", "turn", id)
	}
}

// Open reports whether a turn is currently accumulating fragments.
func (s *Segmenter) Open() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openID != ""
}
