package feedback_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/sprachcoach/internal/feedback"
	"github.com/MrWong99/sprachcoach/internal/turn"
	"github.com/MrWong99/sprachcoach/pkg/provider/llm"
	"github.com/MrWong99/sprachcoach/pkg/provider/llm/mock"
)

// errNotice mirrors the fixed failure text written into turns when analysis
// fails. Kept literal here so a wording change is a conscious test update.
const errNotice = "Feedback is currently unavailable for this turn. The analysis request failed."

const sampleFeedback = `Feedback:
- Error explanation (English): The verb placement is wrong.
- Corrected version (German): Ich habe einen Fehler gemacht.
- Improved natural version (German): Mir ist ein Fehler unterlaufen.`

func openTurn(t *testing.T, store *turn.Store, transcript string) string {
	t.Helper()
	opened := store.Open(time.Now())
	store.SetTranscript(opened.ID, transcript)
	return opened.ID
}

func TestDispatcher_Success_CompletesTurn(t *testing.T) {
	t.Parallel()
	store := turn.NewStore()
	p := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: sampleFeedback},
	}
	d := feedback.NewDispatcher(p, store, nil)

	id := openTurn(t, store, "Ich habe einen Fehler gemacht.")
	d.Analyze(context.Background(), "Ich habe einen Fehler gemacht.", id)
	d.Wait()

	got, ok := store.Get(id)
	if !ok {
		t.Fatal("turn missing after analysis")
	}
	if !got.IsComplete {
		t.Error("IsComplete = false; want true")
	}
	if got.ModelResponse != sampleFeedback {
		t.Errorf("ModelResponse = %q; want the provider feedback", got.ModelResponse)
	}
	// Transcript and corrected version are identical, so similarity is maximal.
	if got.Similarity < 0.999 {
		t.Errorf("Similarity = %v; want ~1 for an identical correction", got.Similarity)
	}
}

func TestDispatcher_SendsDirectiveAndTranscript(t *testing.T) {
	t.Parallel()
	store := turn.NewStore()
	p := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: sampleFeedback},
	}
	d := feedback.NewDispatcher(p, store, nil)

	id := openTurn(t, store, "Das ist ein Test")
	d.Analyze(context.Background(), "Das ist ein Test", id)
	d.Wait()

	calls := p.Calls()
	if len(calls) != 1 {
		t.Fatalf("got %d Complete calls; want 1", len(calls))
	}
	req := calls[0].Req
	if req.SystemPrompt != feedback.SystemDirective {
		t.Error("request should carry the tutoring system directive")
	}
	if len(req.Messages) != 1 {
		t.Fatalf("got %d messages; want 1", len(req.Messages))
	}
	if req.Messages[0].Role != "user" || req.Messages[0].Content != "Das ist ein Test" {
		t.Errorf("message = %+v; want user message with the transcript", req.Messages[0])
	}
}

func TestDispatcher_ProviderError_WritesNotice(t *testing.T) {
	t.Parallel()
	store := turn.NewStore()
	p := &mock.Provider{CompleteErr: errors.New("backend unavailable")}
	d := feedback.NewDispatcher(p, store, nil)

	id := openTurn(t, store, "Hallo")
	d.Analyze(context.Background(), "Hallo", id)
	d.Wait()

	got, _ := store.Get(id)
	if !got.IsComplete {
		t.Error("a failed analysis must still complete the turn")
	}
	if got.ModelResponse != errNotice {
		t.Errorf("ModelResponse = %q; want the fixed failure notice", got.ModelResponse)
	}
	if got.Similarity != 0 {
		t.Errorf("Similarity = %v; want 0 on failure", got.Similarity)
	}
}

func TestDispatcher_NilResponse_WritesNotice(t *testing.T) {
	t.Parallel()
	store := turn.NewStore()
	p := &mock.Provider{} // Complete returns nil, nil
	d := feedback.NewDispatcher(p, store, nil)

	id := openTurn(t, store, "Hallo")
	d.Analyze(context.Background(), "Hallo", id)
	d.Wait()

	got, _ := store.Get(id)
	if got.ModelResponse != errNotice {
		t.Errorf("ModelResponse = %q; want the fixed failure notice", got.ModelResponse)
	}
}

func TestDispatcher_EmptyContent_WritesNotice(t *testing.T) {
	t.Parallel()
	store := turn.NewStore()
	p := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "   \n"},
	}
	d := feedback.NewDispatcher(p, store, nil)

	id := openTurn(t, store, "Hallo")
	d.Analyze(context.Background(), "Hallo", id)
	d.Wait()

	got, _ := store.Get(id)
	if got.ModelResponse != errNotice {
		t.Errorf("ModelResponse = %q; want the fixed failure notice", got.ModelResponse)
	}
}

func TestDispatcher_WhitespaceTranscript_NoOp(t *testing.T) {
	t.Parallel()
	store := turn.NewStore()
	p := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: sampleFeedback},
	}
	d := feedback.NewDispatcher(p, store, nil)

	id := openTurn(t, store, "")
	d.Analyze(context.Background(), "  \t ", id)
	d.Wait()

	if len(p.Calls()) != 0 {
		t.Error("whitespace-only transcript must not reach the provider")
	}
	got, _ := store.Get(id)
	if got.IsComplete {
		t.Error("turn must stay incomplete when analysis was skipped")
	}
}

func TestDispatcher_CorrectText_SimilarityOne(t *testing.T) {
	t.Parallel()
	store := turn.NewStore()
	correct := "Feedback:\n- Error explanation (English): Correct text\n- Improved natural version (German): Passt so."
	p := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: correct},
	}
	d := feedback.NewDispatcher(p, store, nil)

	id := openTurn(t, store, "Das passt so.")
	d.Analyze(context.Background(), "Das passt so.", id)
	d.Wait()

	got, _ := store.Get(id)
	if got.Similarity != 1 {
		t.Errorf("Similarity = %v; want 1 when the feedback declares the input correct", got.Similarity)
	}
}

func TestDispatcher_NoCorrectedLine_SimilarityZero(t *testing.T) {
	t.Parallel()
	store := turn.NewStore()
	p := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "Unstructured reply without the expected format."},
	}
	d := feedback.NewDispatcher(p, store, nil)

	id := openTurn(t, store, "Hallo Welt")
	d.Analyze(context.Background(), "Hallo Welt", id)
	d.Wait()

	got, _ := store.Get(id)
	if got.Similarity != 0 {
		t.Errorf("Similarity = %v; want 0 without a corrected line", got.Similarity)
	}
	if !got.IsComplete {
		t.Error("turn should still complete with the raw feedback")
	}
}

func TestDispatcher_SimilarTranscripts_ScoreBetweenZeroAndOne(t *testing.T) {
	t.Parallel()
	store := turn.NewStore()
	fb := strings.ReplaceAll(sampleFeedback, "Ich habe einen Fehler gemacht.", "Ich habe einen Fehler begangen.")
	p := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: fb},
	}
	d := feedback.NewDispatcher(p, store, nil)

	id := openTurn(t, store, "Ich habe einen Fehler gemacht.")
	d.Analyze(context.Background(), "Ich habe einen Fehler gemacht.", id)
	d.Wait()

	got, _ := store.Get(id)
	if got.Similarity <= 0 || got.Similarity >= 1 {
		t.Errorf("Similarity = %v; want a value strictly between 0 and 1", got.Similarity)
	}
}

func TestDispatcher_LateResultForDiscardedTurn_Harmless(t *testing.T) {
	t.Parallel()
	store := turn.NewStore()

	release := make(chan struct{})
	p := &mock.Provider{
		CompleteFunc: func(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
			<-release
			return &llm.CompletionResponse{Content: sampleFeedback}, nil
		},
	}
	d := feedback.NewDispatcher(p, store, nil)

	id := openTurn(t, store, "Hallo")
	d.Analyze(context.Background(), "Hallo", id)

	// The turn disappears while analysis is still in flight.
	store.Discard(id)
	close(release)
	d.Wait()

	if store.Len() != 0 {
		t.Errorf("store.Len() = %d; want 0 (late completion must not resurrect the turn)", store.Len())
	}
}

func TestDispatcher_ConcurrentAnalyses_CompleteByID(t *testing.T) {
	t.Parallel()
	store := turn.NewStore()
	p := &mock.Provider{
		CompleteFunc: func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return &llm.CompletionResponse{Content: "echo: " + req.Messages[0].Content}, nil
		},
	}
	d := feedback.NewDispatcher(p, store, nil)

	idA := openTurn(t, store, "Satz A")
	idB := openTurn(t, store, "Satz B")
	d.Analyze(context.Background(), "Satz A", idA)
	d.Analyze(context.Background(), "Satz B", idB)
	d.Wait()

	a, _ := store.Get(idA)
	b, _ := store.Get(idB)
	if a.ModelResponse != "echo: Satz A" {
		t.Errorf("turn A response = %q", a.ModelResponse)
	}
	if b.ModelResponse != "echo: Satz B" {
		t.Errorf("turn B response = %q", b.ModelResponse)
	}
}
