// Package extraction implements C7: pulling tasks, decisions, and
// questions out of a classified email via structured model output.
package extraction

import (
	"context"

	"github.com/google/uuid"

	"mailtriage/core/domain"
	"mailtriage/core/llm"
)

// Result is C7's output: the email-level summary fields plus the typed
// memory objects ready for persistence, each already carrying its BackRef.
type Result struct {
	Summary        string
	MainTopic      string
	Sentiment      string
	HasActionItems bool
	Tasks          []domain.Task
	Decisions      []domain.Decision
	Questions      []domain.Question
}

// Extractor wraps the model client with the conservative
// extract-only-explicit-items contract spec.md §4.7 describes.
type Extractor struct {
	client *llm.Client
}

func NewExtractor(client *llm.Client) *Extractor {
	return &Extractor{client: client}
}

// Extract prompts the model for structured extraction and materializes its
// response into domain memory objects stamped with backRef. The caller
// (the orchestrator) owns deciding backRef.ExtractionEventID, since that is
// the id of the EMAIL_ANALYZED event this extraction produces.
func (e *Extractor) Extract(ctx context.Context, email domain.EmailToClassify, backRef domain.BackRef) (*Result, error) {
	rec, _, err := e.client.Extract(ctx, llm.ExtractInput{
		Subject: email.Subject,
		Sender:  email.Sender,
		Body:    email.BodyText,
	})
	if err != nil {
		return nil, err
	}

	tasks := make([]domain.Task, 0, len(rec.Tasks))
	for _, t := range rec.Tasks {
		tasks = append(tasks, domain.Task{
			BackRef:              backRef,
			ID:                   uuid.NewString(),
			Description:          t.Description,
			Deadline:             t.Deadline,
			Priority:             domain.Priority(t.Priority),
			RequiresActionFromMe: t.RequiresActionFromMe,
			Assignee:             t.Assignee,
			Status:               domain.TaskPending,
			SourceContext:        t.SourceContext,
		})
	}

	decisions := make([]domain.Decision, 0, len(rec.Decisions))
	for _, d := range rec.Decisions {
		decisions = append(decisions, domain.Decision{
			BackRef:         backRef,
			ID:              uuid.NewString(),
			Question:        d.Question,
			Options:         d.Options,
			Recommendation:  d.Recommendation,
			Urgency:         domain.Priority(d.Urgency),
			RequiresMyInput: d.RequiresMyInput,
			Status:          domain.DecisionPending,
			SourceContext:   d.SourceContext,
		})
	}

	questions := make([]domain.Question, 0, len(rec.Questions))
	for _, q := range rec.Questions {
		questions = append(questions, domain.Question{
			BackRef:          backRef,
			ID:               uuid.NewString(),
			QuestionText:     q.QuestionText,
			QuestionType:     domain.QuestionType(q.QuestionType),
			Urgency:          domain.Priority(q.Urgency),
			RequiresResponse: q.RequiresResponse,
			Status:           domain.QuestionPending,
			SourceContext:    q.SourceContext,
		})
	}

	return &Result{
		Summary:        rec.Summary,
		MainTopic:      rec.MainTopic,
		Sentiment:      rec.Sentiment,
		HasActionItems: rec.HasActionItems,
		Tasks:          tasks,
		Decisions:      decisions,
		Questions:      questions,
	}, nil
}
