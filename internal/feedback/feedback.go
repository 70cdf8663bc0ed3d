// Package feedback issues one-shot language-analysis requests for finalized
// turns and writes the results back into the turn store.
//
// Analysis never propagates errors upward: a failed call writes a fixed
// human-readable notice into the turn's response field and completes the
// turn anyway. There are no retries.
package feedback

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/sprachcoach/internal/observe"
	"github.com/MrWong99/sprachcoach/internal/turn"
	"github.com/MrWong99/sprachcoach/pkg/provider/llm"
	"github.com/MrWong99/sprachcoach/pkg/types"
)

// SystemDirective is the fixed tutoring instruction sent with every analysis
// request. The expected response is either the structured "Feedback:" block
// or the literal phrase "Correct text" plus a natural phrasing.
const SystemDirective = `You are a German language tutor. The user sends you a sentence they spoke in German. Analyze it for grammatical, lexical, and idiomatic errors.

If the sentence contains errors, respond exactly in this format:
Feedback:
- Error explanation (English): <explanation>
- Corrected version (German): <corrected sentence>
- Improved natural version (German): <how a native speaker would phrase it>

If the sentence is already correct, respond with:
Feedback:
- Error explanation (English): Correct text
- Improved natural version (German): <how a native speaker would phrase it>

Do not add anything outside this format.`

// errNotice is written into the turn when analysis fails for any reason.
const errNotice = "Feedback is currently unavailable for this turn. The analysis request failed."

const correctedPrefix = "- Corrected version (German):"

// Dispatcher sends finalized transcripts to the configured LLM provider.
// Multiple analyses may be in flight concurrently, each keyed by its turn ID;
// completions are applied by ID lookup so out-of-order completion cannot
// touch the wrong turn.
type Dispatcher struct {
	provider llm.Provider
	store    *turn.Store
	logger   *slog.Logger
	metrics  *observe.Metrics

	wg sync.WaitGroup
}

// NewDispatcher creates a Dispatcher writing results into store.
func NewDispatcher(provider llm.Provider, store *turn.Store, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		provider: provider,
		store:    store,
		logger:   logger,
		metrics:  observe.DefaultMetrics(),
	}
}

// Analyze launches one analysis request for the given transcript and turn ID
// and returns immediately. No-ops when text is empty after trimming. The
// result, success or the fixed failure notice, lands in the store.
func (d *Dispatcher) Analyze(ctx context.Context, text, turnID string) {
	if strings.TrimSpace(text) == "" {
		return
	}

	d.logger.Debug("analysis dispatched", "turn", turnID, "chars", len(text))
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.run(ctx, text, turnID)
	}()
}

// Wait blocks until all in-flight analyses have completed. Used during
// shutdown and in tests.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) run(ctx context.Context, text, turnID string) {
	ctx, span := observe.StartSpan(ctx, "feedback.Analyze")
	defer span.End()
	logger := observe.Logger(ctx)

	start := time.Now()
	resp, err := d.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: SystemDirective,
		Messages: []types.Message{
			{Role: "user", Content: text},
		},
	})
	d.metrics.AnalysisDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil || resp == nil || strings.TrimSpace(resp.Content) == "" {
		d.metrics.AnalysisErrors.Add(ctx, 1)
		logger.Warn("analysis failed", "turn", turnID, "error", err)
		d.store.Complete(turnID, errNotice, 0)
		return
	}

	similarity := similarityScore(text, resp.Content)
	d.store.Complete(turnID, resp.Content, similarity)
	logger.Debug("analysis complete", "turn", turnID,
		"tokens", resp.Usage.TotalTokens, "similarity", similarity)
}

// similarityScore compares the spoken transcript against the corrected
// sentence extracted from the feedback text using Jaro-Winkler similarity.
// Returns 1 when the feedback declares the input correct and 0 when no
// corrected line is present.
func similarityScore(transcript, feedback string) float64 {
	if strings.Contains(feedback, "Correct text") {
		return 1
	}
	corrected := extractCorrected(feedback)
	if corrected == "" {
		return 0
	}
	a := strings.ToLower(strings.TrimSpace(transcript))
	b := strings.ToLower(corrected)
	if a == "" || b == "" {
		return 0
	}
	return matchr.JaroWinkler(a, b, false)
}

// extractCorrected returns the text of the corrected-version line, trimmed,
// or "" when the feedback has no such line.
func extractCorrected(feedback string) string {
	for _, line := range strings.Split(feedback, "\n") {
		line = strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(line, correctedPrefix); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}
