// Package turn holds the conversation turn model: the Turn record, the
// ordered Store, and the silence-debounce Segmenter that groups incremental
// transcript fragments into turns.
package turn

import "time"

// Turn is one user utterance and its analysis result.
type Turn struct {
	// ID uniquely identifies the turn. IDs are opaque, unique for the
	// process lifetime, and never reused, including across sessions.
	ID string `json:"id"`

	// UserTranscript is the finalized concatenation of transcript fragments
	// for this turn. Empty until the turn is finalized.
	UserTranscript string `json:"userTranscript"`

	// ModelResponse is the analysis feedback text, or a fixed error notice
	// when analysis failed. Empty while analysis is pending.
	ModelResponse string `json:"modelResponse"`

	// IsComplete is true once analysis has concluded, successfully or not.
	IsComplete bool `json:"isComplete"`

	// Similarity is a [0, 1] Jaro-Winkler score between the user's
	// transcript and the corrected version extracted from the feedback.
	// Zero when no correction could be extracted.
	Similarity float64 `json:"similarity"`

	// Timestamp is when the turn was opened, i.e. when its first fragment
	// arrived.
	Timestamp time.Time `json:"timestamp"`

	// Deleted marks the snapshot sent to subscribers when a turn is
	// discarded. It is never true on a stored turn.
	Deleted bool `json:"deleted,omitempty"`
}
