package extraction

import (
	"context"
	"errors"
	"testing"

	"mailtriage/core/domain"
	"mailtriage/core/llm"
	"mailtriage/core/port/out"
)

type fakeModelProvider struct {
	rawJSON string
	err     error
}

func (f *fakeModelProvider) Complete(ctx context.Context, req out.CompletionRequest) (out.CompletionResult, error) {
	if f.err != nil {
		return out.CompletionResult{}, f.err
	}
	return out.CompletionResult{RawJSON: f.rawJSON, ProviderUsed: "primary"}, nil
}

func TestExtractorExtract(t *testing.T) {
	backRef := domain.NewBackRef("acc1", "email1", "event1")

	t.Run("grounded tasks/decisions/questions carry the back reference", func(t *testing.T) {
		provider := &fakeModelProvider{rawJSON: `{
			"summary":"project kickoff", "main_topic":"launch", "sentiment":"neutral", "has_action_items":true,
			"tasks":[{"description":"send the draft","priority":"high","requires_action_from_me":true,"source_context":"please send me the draft by Monday"}],
			"decisions":[{"question":"which vendor to pick","options":["a","b"],"urgency":"medium","requires_my_input":true,"source_context":"let me know which vendor to pick"}],
			"questions":[{"question_text":"are you free Thursday","question_type":"yes_no","urgency":"low","requires_response":true,"source_context":"are you free Thursday for a call"}]
		}`}
		extractor := NewExtractor(llm.NewClient(provider))

		result, err := extractor.Extract(context.Background(), domain.EmailToClassify{Subject: "Kickoff"}, backRef)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(result.Tasks) != 1 || result.Tasks[0].BackRef != backRef {
			t.Fatalf("expected one task carrying backRef %v, got %+v", backRef, result.Tasks)
		}
		if result.Tasks[0].Status != domain.TaskPending {
			t.Errorf("Task.Status = %v, want %v", result.Tasks[0].Status, domain.TaskPending)
		}
		if len(result.Decisions) != 1 || result.Decisions[0].BackRef != backRef {
			t.Fatalf("expected one decision carrying backRef, got %+v", result.Decisions)
		}
		if len(result.Questions) != 1 || result.Questions[0].BackRef != backRef {
			t.Fatalf("expected one question carrying backRef, got %+v", result.Questions)
		}
		if result.Tasks[0].ID == "" || result.Decisions[0].ID == "" || result.Questions[0].ID == "" {
			t.Errorf("expected every extracted item to receive a generated ID")
		}
	})

	t.Run("no explicit items yields empty, non-nil slices", func(t *testing.T) {
		provider := &fakeModelProvider{rawJSON: `{
			"summary":"fyi", "main_topic":"status", "sentiment":"neutral", "has_action_items":false,
			"tasks":[], "decisions":[], "questions":[]
		}`}
		extractor := NewExtractor(llm.NewClient(provider))

		result, err := extractor.Extract(context.Background(), domain.EmailToClassify{Subject: "FYI"}, backRef)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Tasks == nil || len(result.Tasks) != 0 {
			t.Errorf("expected empty non-nil Tasks slice, got %+v", result.Tasks)
		}
		if result.HasActionItems {
			t.Errorf("HasActionItems = true, want false")
		}
	})

	t.Run("provider failure propagates", func(t *testing.T) {
		provider := &fakeModelProvider{err: errors.New("model unreachable")}
		extractor := NewExtractor(llm.NewClient(provider))

		_, err := extractor.Extract(context.Background(), domain.EmailToClassify{Subject: "x"}, backRef)
		if err == nil {
			t.Fatalf("expected error to propagate from provider failure")
		}
	})

	t.Run("schema violation propagates as an error", func(t *testing.T) {
		provider := &fakeModelProvider{rawJSON: `{"summary":"x","main_topic":"y","sentiment":"furious","has_action_items":false,"tasks":[],"decisions":[],"questions":[]}`}
		extractor := NewExtractor(llm.NewClient(provider))

		_, err := extractor.Extract(context.Background(), domain.EmailToClassify{Subject: "x"}, backRef)
		if err == nil {
			t.Fatalf("expected schema violation error for invalid sentiment")
		}
	})
}
