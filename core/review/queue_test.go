package review

import (
	"context"
	"testing"

	"mailtriage/core/domain"
	"mailtriage/core/port/out"
	"mailtriage/pkg/apperr"
)

type fakeReviewRepo struct {
	items map[string]*domain.ReviewQueueItem
}

func newFakeReviewRepo() *fakeReviewRepo {
	return &fakeReviewRepo{items: map[string]*domain.ReviewQueueItem{}}
}

func (f *fakeReviewRepo) Enqueue(ctx context.Context, item *domain.ReviewQueueItem) error {
	cp := *item
	f.items[item.ID] = &cp
	return nil
}

func (f *fakeReviewRepo) Get(ctx context.Context, id string) (*domain.ReviewQueueItem, error) {
	item, ok := f.items[id]
	if !ok {
		return nil, apperr.NotFound("review item")
	}
	cp := *item
	return &cp, nil
}

func (f *fakeReviewRepo) List(ctx context.Context, filter out.ReviewListFilter) ([]domain.ReviewQueueItem, int, error) {
	var result []domain.ReviewQueueItem
	for _, item := range f.items {
		result = append(result, *item)
	}
	return result, len(result), nil
}

func (f *fakeReviewRepo) Transition(ctx context.Context, id string, expectedVersion int, mutate func(*domain.ReviewQueueItem)) error {
	item, ok := f.items[id]
	if !ok {
		return apperr.NotFound("review item")
	}
	if item.Version != expectedVersion {
		return apperr.Conflict("review item version mismatch")
	}
	mutate(item)
	item.Version++
	return nil
}

type fakeEmbedder struct {
	vectors map[string][]float32
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{1, 0, 0}, nil
}

func TestQueueEnqueue(t *testing.T) {
	repo := newFakeReviewRepo()
	q := NewQueue(repo, nil)

	item := &domain.ReviewQueueItem{AccountID: "acc1", EmailID: "e1", SuggestedCategory: domain.CategoryImportant}
	created, err := q.Enqueue(context.Background(), item)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Fatalf("expected created=true for first enqueue")
	}
	if item.Status != domain.ReviewPending {
		t.Errorf("Status = %v, want %v", item.Status, domain.ReviewPending)
	}
	if item.Version != 1 {
		t.Errorf("Version = %d, want 1", item.Version)
	}
}

func TestQueueEnqueueSemanticDedup(t *testing.T) {
	vec := []float32{1, 0, 0}
	embedder := &fakeEmbedder{vectors: map[string]([]float32){}}
	repo := newFakeReviewRepo()
	q := NewQueue(repo, embedder)

	first := &domain.ReviewQueueItem{AccountID: "acc1", EmailID: "e1", SuggestedCategory: domain.CategoryNewsletter, Reasoning: "weekly digest"}
	embedder.vectors["newsletter weekly digest"] = vec
	created, err := q.Enqueue(context.Background(), first)
	if err != nil || !created {
		t.Fatalf("expected first enqueue to succeed, created=%v err=%v", created, err)
	}

	second := &domain.ReviewQueueItem{AccountID: "acc1", EmailID: "e2", SuggestedCategory: domain.CategoryNewsletter, Reasoning: "weekly digest"}
	embedder.vectors["newsletter weekly digest"] = vec // identical embedding: cosine similarity 1.0
	created, err = q.Enqueue(context.Background(), second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created {
		t.Errorf("expected created=false for a near-duplicate item")
	}
	if len(repo.items) != 1 {
		t.Errorf("expected only the first item to be persisted, got %d items", len(repo.items))
	}
}

func TestQueueEnqueueNilEmbedderSkipsDedup(t *testing.T) {
	repo := newFakeReviewRepo()
	q := NewQueue(repo, nil)

	for i := 0; i < 2; i++ {
		item := &domain.ReviewQueueItem{AccountID: "acc1", EmailID: "e1", SuggestedCategory: domain.CategoryNewsletter, Reasoning: "same text"}
		created, err := q.Enqueue(context.Background(), item)
		if err != nil || !created {
			t.Fatalf("expected enqueue %d to succeed without a dedup embedder, created=%v err=%v", i, created, err)
		}
	}
	if len(repo.items) != 2 {
		t.Errorf("expected both items persisted when dedup is disabled, got %d", len(repo.items))
	}
}

func TestQueueApproveRejectModify(t *testing.T) {
	repo := newFakeReviewRepo()
	q := NewQueue(repo, nil)

	item := &domain.ReviewQueueItem{AccountID: "acc1", EmailID: "e1", SuggestedCategory: domain.CategoryNewsletter}
	q.Enqueue(context.Background(), item)

	t.Run("approve transitions to approved and stamps reviewed_at", func(t *testing.T) {
		if err := q.Approve(context.Background(), item.ID, 1); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got, _ := q.Get(context.Background(), item.ID)
		if got.Status != domain.ReviewApproved {
			t.Errorf("Status = %v, want %v", got.Status, domain.ReviewApproved)
		}
		if got.ReviewedAt == nil {
			t.Errorf("expected ReviewedAt to be set")
		}
	})

	t.Run("re-transitioning a terminal item is rejected", func(t *testing.T) {
		err := q.Reject(context.Background(), item.ID, 2, nil)
		if err == nil {
			t.Fatalf("expected error transitioning an already-terminal item")
		}
	})
}

func TestQueueModifyRecordsCorrectedCategory(t *testing.T) {
	repo := newFakeReviewRepo()
	q := NewQueue(repo, nil)

	item := &domain.ReviewQueueItem{AccountID: "acc1", EmailID: "e1", SuggestedCategory: domain.CategoryNewsletter}
	q.Enqueue(context.Background(), item)

	feedback := "actually this was important"
	if err := q.Modify(context.Background(), item.ID, 1, domain.CategoryImportant, &feedback); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := q.Get(context.Background(), item.ID)
	if got.Status != domain.ReviewModified {
		t.Errorf("Status = %v, want %v", got.Status, domain.ReviewModified)
	}
	if got.UserCorrectedCategory == nil || *got.UserCorrectedCategory != domain.CategoryImportant {
		t.Errorf("UserCorrectedCategory = %v, want %v", got.UserCorrectedCategory, domain.CategoryImportant)
	}
	if got.UserFeedbackText == nil || *got.UserFeedbackText != feedback {
		t.Errorf("UserFeedbackText = %v, want %q", got.UserFeedbackText, feedback)
	}
}

func TestQueueTransitionVersionMismatchConflict(t *testing.T) {
	repo := newFakeReviewRepo()
	q := NewQueue(repo, nil)

	item := &domain.ReviewQueueItem{AccountID: "acc1", EmailID: "e1", SuggestedCategory: domain.CategoryNewsletter}
	q.Enqueue(context.Background(), item)

	err := q.Approve(context.Background(), item.ID, 99)
	if err == nil {
		t.Fatalf("expected a version-conflict error")
	}
}
