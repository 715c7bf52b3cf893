package classification

import (
	"context"
	"fmt"

	"mailtriage/core/domain"
	"mailtriage/core/llm"
	"mailtriage/pkg/logger"
)

// ModelLayer is C5: a generative-model classifier with structured output.
// A failure on both model back-ends degrades to a null-score rather than
// failing the pipeline (§4.5); the ensemble handles redistribution.
type ModelLayer struct {
	client *llm.Client
}

func NewModelLayer(client *llm.Client) *ModelLayer {
	return &ModelLayer{client: client}
}

// Classify prompts the model with the email plus whatever rule/history
// context is available, and converts provider errors into a null-score.
func (m *ModelLayer) Classify(ctx context.Context, email domain.EmailToClassify, rule, history *domain.LayerScore) domain.LayerScore {
	in := llm.ClassifyInput{
		Subject:     email.Subject,
		Sender:      email.Sender,
		BodyExcerpt: email.BodyText,
	}
	if rule != nil && !rule.NullScore {
		in.RuleVerdict = fmt.Sprintf("rule layer: %s (confidence %.2f)", rule.Category, rule.Confidence)
	}
	if history != nil && !history.NullScore {
		in.HistoryVerdict = fmt.Sprintf("history layer: %s (confidence %.2f)", history.Category, history.Confidence)
	}

	rec, provider, err := m.client.Classify(ctx, in)
	if err != nil {
		logger.WithContext(ctx).WithError(err).Warn("model layer degraded to null-score")
		return domain.LayerScore{
			Layer:      domain.LayerModel,
			Category:   domain.CategoryUncertain,
			Confidence: 0,
			Reasoning:  "both model back-ends failed: " + err.Error(),
			NullScore:  true,
		}
	}

	return domain.LayerScore{
		Layer:         domain.LayerModel,
		Category:      rec.Category,
		Importance:    rec.ImportanceScore,
		Confidence:    rec.Confidence,
		Reasoning:     rec.Reasoning,
		Signals:       rec.KeySignals,
		ModelProvider: provider,
	}
}
