// Package review implements C8: the human-in-the-loop review queue for
// low/medium-confidence ensemble verdicts.
package review

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"mailtriage/core/domain"
	"mailtriage/core/port/out"
	"mailtriage/pkg/apperr"
	"mailtriage/pkg/logger"
)

// dedupWindow bounds how long a recently-enqueued item's embedding stays
// eligible for the semantic near-duplicate check.
const dedupWindow = 6 * time.Hour

// dedupThreshold is the cosine-similarity floor at or above which a new item is
// treated as a duplicate of an already-pending one and silently dropped.
const dedupThreshold = 0.97

// Queue is C8: enqueue, list, and transition review items, enforcing the
// terminal-transition and optimistic-locking rules spec.md §4.8/§8 require.
type Queue struct {
	repo     out.ReviewQueueRepository
	embedder out.Embedder // optional; nil disables semantic dedup

	recentMu sync.Mutex
	recent   map[string][]embeddedItem // accountID -> recently-enqueued embeddings
}

type embeddedItem struct {
	itemID string
	vector []float32
	seenAt time.Time
}

func NewQueue(repo out.ReviewQueueRepository, embedder out.Embedder) *Queue {
	return &Queue{repo: repo, embedder: embedder, recent: make(map[string][]embeddedItem)}
}

// Enqueue adds a new pending item, unless the embedder judges it a near
// duplicate of something already pending for the same account within the
// dedup window, in which case nothing is stored and it returns false.
func (q *Queue) Enqueue(ctx context.Context, item *domain.ReviewQueueItem) (created bool, err error) {
	item.ID = uuid.NewString()
	item.Status = domain.ReviewPending
	item.AddedAt = time.Now().UTC()
	item.Version = 1

	if dup := q.findDuplicate(ctx, item); dup != "" {
		logger.WithField("account_id", item.AccountID).WithField("duplicate_of", dup).
			Info("review item suppressed as a semantic near-duplicate")
		return false, nil
	}

	if err := q.repo.Enqueue(ctx, item); err != nil {
		return false, err
	}
	q.remember(ctx, item)
	return true, nil
}

func (q *Queue) Get(ctx context.Context, id string) (*domain.ReviewQueueItem, error) {
	return q.repo.Get(ctx, id)
}

func (q *Queue) List(ctx context.Context, filter out.ReviewListFilter) ([]domain.ReviewQueueItem, int, error) {
	return q.repo.List(ctx, filter)
}

// Approve accepts the suggested category as-is.
func (q *Queue) Approve(ctx context.Context, id string, expectedVersion int) error {
	return q.transition(ctx, id, expectedVersion, domain.ReviewApproved, nil, nil)
}

// Reject discards the suggestion without recording a replacement category.
func (q *Queue) Reject(ctx context.Context, id string, expectedVersion int, feedbackText *string) error {
	return q.transition(ctx, id, expectedVersion, domain.ReviewRejected, nil, feedbackText)
}

// Modify records a human-corrected category, distinct from a plain reject.
func (q *Queue) Modify(ctx context.Context, id string, expectedVersion int, corrected domain.Category, feedbackText *string) error {
	return q.transition(ctx, id, expectedVersion, domain.ReviewModified, &corrected, feedbackText)
}

func (q *Queue) transition(ctx context.Context, id string, expectedVersion int, status domain.ReviewStatus, corrected *domain.Category, feedbackText *string) error {
	item, err := q.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if item.Terminal() {
		return apperr.InvariantViolation("review item has already left the pending state")
	}

	return q.repo.Transition(ctx, id, expectedVersion, func(i *domain.ReviewQueueItem) {
		now := time.Now().UTC()
		i.Status = status
		i.ReviewedAt = &now
		i.UserCorrectedCategory = corrected
		i.UserFeedbackText = feedbackText
	})
}

// findDuplicate compares item's embedding against recently-remembered
// pending items for the same account, returning the duplicate's ID or "".
func (q *Queue) findDuplicate(ctx context.Context, item *domain.ReviewQueueItem) string {
	if q.embedder == nil {
		return ""
	}
	vec, err := q.embedder.Embed(ctx, dedupText(item))
	if err != nil {
		logger.WithError(err).Warn("review queue dedup embedding failed, proceeding without dedup")
		return ""
	}

	cutoff := time.Now().Add(-dedupWindow)
	kept := q.prune(item.AccountID, cutoff)
	for _, e := range kept {
		if cosineSimilarity(vec, e.vector) >= dedupThreshold {
			return e.itemID
		}
	}
	return ""
}

func (q *Queue) remember(ctx context.Context, item *domain.ReviewQueueItem) {
	if q.embedder == nil {
		return
	}
	vec, err := q.embedder.Embed(ctx, dedupText(item))
	if err != nil {
		return
	}
	q.recentMu.Lock()
	q.recent[item.AccountID] = append(q.recent[item.AccountID], embeddedItem{itemID: item.ID, vector: vec, seenAt: time.Now()})
	q.recentMu.Unlock()
}

func (q *Queue) prune(accountID string, cutoff time.Time) []embeddedItem {
	q.recentMu.Lock()
	defer q.recentMu.Unlock()
	items := q.recent[accountID]
	kept := make([]embeddedItem, 0, len(items))
	for _, e := range items {
		if e.seenAt.After(cutoff) {
			kept = append(kept, e)
		}
	}
	q.recent[accountID] = kept
	return kept
}

func dedupText(item *domain.ReviewQueueItem) string {
	return string(item.SuggestedCategory) + " " + item.Reasoning
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
