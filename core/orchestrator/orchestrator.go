// Package orchestrator implements C10: the per-message pipeline that ties
// the ensemble, extractor, review queue, and persistence together.
package orchestrator

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"mailtriage/core/classification"
	"mailtriage/core/domain"
	"mailtriage/core/eventlog"
	"mailtriage/core/extraction"
	"mailtriage/core/port/out"
	"mailtriage/core/review"
	"mailtriage/pkg/apperr"
	"mailtriage/pkg/logger"
)

// Config carries the routing thresholds of spec.md §4.10 step 5, sourced
// from config.Config's classification.*_confidence_threshold options.
type Config struct {
	HighConfidenceThreshold   float64 // default 0.90: auto-apply at or above
	MediumConfidenceThreshold float64 // default 0.65: below this, low_confidence flag
}

func defaultConfig() Config {
	return Config{HighConfidenceThreshold: 0.90, MediumConfidenceThreshold: 0.65}
}

// Route is the routing outcome of one pipeline run.
type Route string

const (
	RouteAutoApply    Route = "auto_apply"
	RouteReviewQueue  Route = "review_queue"
)

// ProcessingResult is what the orchestrator returns to its driver (C11/C12).
type ProcessingResult struct {
	ProcessedEmail domain.ProcessedEmail
	Verdict        domain.EnsembleVerdict
	Extraction     *extraction.Result
	Route          Route
	ReviewItemID   string
}

// Orchestrator is C10.
type Orchestrator struct {
	combiner   *classification.Combiner
	extractor  *extraction.Extractor
	processed  out.ProcessedEmailRepository
	bodies     out.BodyStore
	memory     out.MemoryRepository
	reviewQ    *review.Queue
	accounts   out.AccountRepository
	events     *eventlog.Log
	cfg        Config
}

func NewOrchestrator(
	combiner *classification.Combiner,
	extractor *extraction.Extractor,
	processed out.ProcessedEmailRepository,
	bodies out.BodyStore,
	memory out.MemoryRepository,
	reviewQ *review.Queue,
	accounts out.AccountRepository,
	events *eventlog.Log,
	cfg Config,
) *Orchestrator {
	if cfg.HighConfidenceThreshold == 0 && cfg.MediumConfidenceThreshold == 0 {
		cfg = defaultConfig()
	}
	return &Orchestrator{
		combiner:  combiner,
		extractor: extractor,
		processed: processed,
		bodies:    bodies,
		memory:    memory,
		reviewQ:   reviewQ,
		accounts:  accounts,
		events:    events,
		cfg:       cfg,
	}
}

// ProcessMessage runs the full per-message pipeline (spec.md §4.10 steps
// 2-7) and is idempotent on (account_id, email_id): re-invocation replaces
// the verdict/extraction on the existing ProcessedEmail row rather than
// creating a second one.
func (o *Orchestrator) ProcessMessage(ctx context.Context, accountID string, ref domain.RawMessageRef, body out.RawBody) (*ProcessingResult, error) {
	account, err := o.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindExternal, "failed to load account for classification")
	}

	email := buildEmailToClassify(accountID, ref, body)
	emailID := ref.EmailID

	verdict := o.combiner.Classify(ctx, email, account.InBootstrapPhase(time.Now()))

	if _, err := o.events.Append(ctx, domain.EventEmailClassified, accountID, &emailID, map[string]interface{}{
		"category":     string(verdict.Category),
		"importance":   verdict.Importance,
		"confidence":   verdict.Confidence,
		"needs_review": verdict.NeedsReview,
	}, nil); err != nil {
		return nil, o.fail(ctx, accountID, emailID, err)
	}

	extractionEventID := uuid.NewString()
	backRef := domain.NewBackRef(accountID, emailID, extractionEventID)
	extractionResult, err := o.extractor.Extract(ctx, email, backRef)
	if err != nil {
		return nil, o.fail(ctx, accountID, emailID, err)
	}

	if err := o.emitExtractionEvents(ctx, accountID, emailID, extractionEventID, extractionResult); err != nil {
		return nil, o.fail(ctx, accountID, emailID, err)
	}

	if err := o.persistExtraction(ctx, extractionResult); err != nil {
		return nil, o.fail(ctx, accountID, emailID, err)
	}

	route, reviewItemID, err := o.route(ctx, accountID, emailID, verdict)
	if err != nil {
		return nil, o.fail(ctx, accountID, emailID, err)
	}

	existing, err := o.processed.GetByAccountAndEmailID(ctx, accountID, emailID)
	if err != nil {
		return nil, o.fail(ctx, accountID, emailID, err)
	}

	processedEmail := buildProcessedEmail(existing, accountID, ref, body, verdict, extractionResult)
	if err := o.processed.Upsert(ctx, &processedEmail); err != nil {
		return nil, o.fail(ctx, accountID, emailID, err)
	}
	if o.bodies != nil {
		if err := o.bodies.SaveBody(ctx, accountID, emailID, body.Text, body.HTML); err != nil {
			return nil, o.fail(ctx, accountID, emailID, err)
		}
	}

	return &ProcessingResult{
		ProcessedEmail: processedEmail,
		Verdict:        verdict,
		Extraction:     extractionResult,
		Route:          route,
		ReviewItemID:   reviewItemID,
	}, nil
}

// route implements spec.md §4.10 step 5's three-way threshold.
func (o *Orchestrator) route(ctx context.Context, accountID, emailID string, verdict domain.EnsembleVerdict) (Route, string, error) {
	if verdict.Confidence >= o.cfg.HighConfidenceThreshold && !verdict.NeedsReview {
		return RouteAutoApply, "", nil
	}

	lowConfidence := verdict.Confidence < o.cfg.MediumConfidenceThreshold
	item := &domain.ReviewQueueItem{
		AccountID:         accountID,
		EmailID:           emailID,
		SuggestedCategory: verdict.Category,
		Importance:        verdict.Importance,
		Confidence:        verdict.Confidence,
		Reasoning:         reasoningSummary(verdict),
	}
	created, err := o.reviewQ.Enqueue(ctx, item)
	if err != nil {
		return "", "", err
	}
	if !created {
		return RouteReviewQueue, "", nil
	}

	payload := map[string]interface{}{"review_item_id": item.ID}
	if lowConfidence {
		payload["low_confidence"] = true
	}
	if _, err := o.events.Append(ctx, domain.EventReviewEnqueued, accountID, &emailID, payload, nil); err != nil {
		logger.WithContext(ctx).WithError(err).Warn("failed to append review-enqueued event")
	}
	return RouteReviewQueue, item.ID, nil
}

func (o *Orchestrator) emitExtractionEvents(ctx context.Context, accountID, emailID, extractionEventID string, r *extraction.Result) error {
	if _, err := o.events.AppendWithID(ctx, extractionEventID, domain.EventEmailAnalyzed, accountID, &emailID, map[string]interface{}{
		"summary":          r.Summary,
		"main_topic":       r.MainTopic,
		"sentiment":        r.Sentiment,
		"has_action_items": r.HasActionItems,
	}); err != nil {
		return err
	}
	for _, task := range r.Tasks {
		if _, err := o.events.Append(ctx, domain.EventTaskExtracted, accountID, &emailID, map[string]interface{}{"task_id": task.ID, "description": task.Description}, nil); err != nil {
			return err
		}
	}
	for _, decision := range r.Decisions {
		if _, err := o.events.Append(ctx, domain.EventDecisionExtracted, accountID, &emailID, map[string]interface{}{"decision_id": decision.ID, "question": decision.Question}, nil); err != nil {
			return err
		}
	}
	for _, question := range r.Questions {
		if _, err := o.events.Append(ctx, domain.EventQuestionExtracted, accountID, &emailID, map[string]interface{}{"question_id": question.ID, "question_text": question.QuestionText}, nil); err != nil {
			return err
		}
	}
	return nil
}

// persistExtraction writes the extractor's Task/Decision/Question output to
// the memory store. A nil store (memory persistence not wired) is a no-op:
// the events emitted by emitExtractionEvents already carry the same data for
// audit purposes.
func (o *Orchestrator) persistExtraction(ctx context.Context, r *extraction.Result) error {
	if o.memory == nil {
		return nil
	}
	if err := o.memory.SaveTasks(ctx, r.Tasks); err != nil {
		return err
	}
	if err := o.memory.SaveDecisions(ctx, r.Decisions); err != nil {
		return err
	}
	return o.memory.SaveQuestions(ctx, r.Questions)
}

// fail appends a payload ERROR event per spec.md §4.10's retryable-error
// contract and re-raises to the driver.
func (o *Orchestrator) fail(ctx context.Context, accountID, emailID string, cause error) error {
	if _, err := o.events.Append(ctx, domain.EventError, accountID, &emailID, map[string]interface{}{"error": cause.Error()}, nil); err != nil {
		logger.WithContext(ctx).WithError(err).Warn("failed to append error event for a failed pipeline run")
	}
	return cause
}

func buildEmailToClassify(accountID string, ref domain.RawMessageRef, body out.RawBody) domain.EmailToClassify {
	sender := body.Sender
	senderDomain := ""
	if at := strings.LastIndex(sender, "@"); at >= 0 {
		senderDomain = strings.ToLower(sender[at+1:])
	}
	return domain.EmailToClassify{
		AccountID:     accountID,
		EmailID:       ref.EmailID,
		ThreadID:      body.ThreadID,
		Subject:       body.Subject,
		Sender:        sender,
		SenderDomain:  senderDomain,
		ReceivedAt:    body.ReceivedAt,
		BodyText:      body.Text,
		BodyHTML:      body.HTML,
		ThreadPos:     body.ThreadPos,
		Attachments:   body.Attachments,
		HasAttachment: len(body.Attachments) > 0,
	}
}

func buildProcessedEmail(existing *domain.ProcessedEmail, accountID string, ref domain.RawMessageRef, body out.RawBody, verdict domain.EnsembleVerdict, extractionResult *extraction.Result) domain.ProcessedEmail {
	category := verdict.Category
	if !category.IsFinal() {
		// The ensemble guarantees this in practice, but storage must never
		// persist the rule layer's internal uncertain sentinel.
		logger.WithField("account_id", accountID).WithField("email_id", ref.EmailID).WithField("category", string(category)).Warn("ensemble verdict was not a final category, falling back")
		category = domain.CategoryNiceToKnow
	}
	pe := domain.ProcessedEmail{
		ID:                       uuid.NewString(),
		AccountID:                accountID,
		EmailID:                  ref.EmailID,
		Subject:                  body.Subject,
		Sender:                   body.Sender,
		ReceivedAt:               body.ReceivedAt,
		Category:                 category,
		ImportanceScore:          verdict.Importance,
		ClassificationConfidence: verdict.Confidence,
		LayerTrace:               verdict.LayerTrace,
		StorageLevel:             domain.StorageFull,
		Summary:                  &extractionResult.Summary,
		HasAttachments:           len(body.Attachments) > 0,
		ProcessedAt:              time.Now().UTC(),
	}
	if at := strings.LastIndex(body.Sender, "@"); at >= 0 {
		pe.SenderDomain = strings.ToLower(body.Sender[at+1:])
	}
	if ref.ThreadID != "" {
		pe.ThreadID = &ref.ThreadID
	}
	pe.ThreadPosition = body.ThreadPos

	if existing != nil {
		// Idempotent re-processing: keep identity and any HITL correction
		// already recorded, replace only the verdict/extraction.
		pe.ID = existing.ID
		pe.UserCorrected = existing.UserCorrected
		pe.OriginalCategory = existing.OriginalCategory
	}
	return pe
}

func reasoningSummary(verdict domain.EnsembleVerdict) string {
	var parts []string
	for _, l := range verdict.LayerTrace {
		if l.NullScore {
			continue
		}
		parts = append(parts, string(l.Layer)+":"+string(l.Category))
	}
	if len(parts) == 0 {
		return "no classifier layer produced an opinion"
	}
	return strings.Join(parts, ", ")
}
