package persistence

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"mailtriage/core/domain"
	"mailtriage/pkg/apperr"
)

func newTestReviewQueueAdapter(t *testing.T) (*ReviewQueueAdapter, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewReviewQueueAdapter(sqlx.NewDb(db, "postgres")), mock
}

func reviewRowFor(id string, version int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "account_id", "email_id", "processed_email_id", "suggested_category",
		"importance", "confidence", "reasoning", "status", "user_corrected_category",
		"user_feedback_text", "added_at", "reviewed_at", "version",
	}).AddRow(id, "acc1", "e1", nil, "newsletter", 0.4, 0.6, "weekly digest", "pending", nil, nil, time.Now(), nil, version)
}

func TestReviewQueueAdapterGetNotFound(t *testing.T) {
	a, mock := newTestReviewQueueAdapter(t)
	mock.ExpectQuery("SELECT id, account_id, email_id").WillReturnError(sql.ErrNoRows)

	_, err := a.Get(context.Background(), "ghost")
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected a not-found error, got %v", err)
	}
}

func TestReviewQueueAdapterTransitionSucceedsOnMatchingVersion(t *testing.T) {
	a, mock := newTestReviewQueueAdapter(t)

	mock.ExpectQuery("SELECT id, account_id, email_id").WillReturnRows(reviewRowFor("r1", 1))
	mock.ExpectExec("UPDATE review_queue_items SET").
		WithArgs("approved", nil, nil, sqlmock.AnyArg(), "r1", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := a.Transition(context.Background(), "r1", 1, func(item *domain.ReviewQueueItem) {
		item.Status = domain.ReviewApproved
		now := time.Now()
		item.ReviewedAt = &now
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestReviewQueueAdapterTransitionVersionMismatchIsConflict(t *testing.T) {
	a, mock := newTestReviewQueueAdapter(t)

	mock.ExpectQuery("SELECT id, account_id, email_id").WillReturnRows(reviewRowFor("r1", 2))
	mock.ExpectExec("UPDATE review_queue_items SET").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := a.Transition(context.Background(), "r1", 1, func(item *domain.ReviewQueueItem) {
		item.Status = domain.ReviewApproved
	})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Errorf("expected a conflict error on zero rows affected, got %v", err)
	}
}

func TestReviewQueueAdapterEnqueue(t *testing.T) {
	a, mock := newTestReviewQueueAdapter(t)
	mock.ExpectExec("INSERT INTO review_queue_items").
		WillReturnResult(sqlmock.NewResult(0, 1))

	item := &domain.ReviewQueueItem{
		ID: "r1", AccountID: "acc1", EmailID: "e1",
		SuggestedCategory: domain.CategoryNewsletter, Status: domain.ReviewPending,
		AddedAt: time.Now(), Version: 1,
	}
	if err := a.Enqueue(context.Background(), item); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
