package llm

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"

	"mailtriage/core/port/out"
	"mailtriage/pkg/apperr"
)

// Client is the thin, schema-aware façade C5 and C7 call instead of
// talking to out.ModelProvider directly: it builds the prompt, issues the
// completion request, and validates the response into a sealed record.
type Client struct {
	provider out.ModelProvider
}

func NewClient(provider out.ModelProvider) *Client {
	return &Client{provider: provider}
}

// ClassifyInput bundles the email content and prior-layer context the
// model prompt incorporates per spec.md §4.5.
type ClassifyInput struct {
	Subject         string
	Sender          string
	BodyExcerpt     string // up to 1000 characters
	RuleVerdict     string // e.g. "rule layer: newsletter (confidence 0.65)"
	HistoryVerdict  string // e.g. "history layer: important (confidence 0.83)"
	ForceProvider   string
}

// Classify prompts the model provider for a structured classification.
func (c *Client) Classify(ctx context.Context, in ClassifyInput) (*ClassificationRecord, string, error) {
	body := in.BodyExcerpt
	if len(body) > 1000 {
		body = body[:1000]
	}

	system := "You classify emails into exactly one of: important, action_required, " +
		"nice_to_know, newsletter, system_notifications, spam. Respond with JSON matching " +
		"the schema: {category, importance_score, confidence, reasoning, key_signals}."
	user := fmt.Sprintf(
		"Subject: %s\nSender: %s\nBody (excerpt): %s\n\nContext from other classifiers:\n%s\n%s",
		in.Subject, in.Sender, body, in.RuleVerdict, in.HistoryVerdict,
	)

	req := out.CompletionRequest{
		Messages: []out.ChatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		ResponseSchema: ClassificationSchema,
		ForceProvider:  in.ForceProvider,
		MaxTokens:      400,
	}

	result, err := c.provider.Complete(ctx, req)
	if err != nil {
		return nil, "", err
	}

	rec, err := NewClassificationRecord([]byte(result.RawJSON), json.Unmarshal)
	if err == nil {
		return rec, result.ProviderUsed, nil
	}
	if !apperr.Is(err, apperr.KindSchemaViolation) {
		return nil, result.ProviderUsed, err
	}

	// A schema violation is a provider failure per §7: retry exactly once on
	// whichever backend didn't just produce the bad response.
	retryReq := req
	retryReq.ForceProvider = otherProvider(result.ProviderUsed)
	if retryReq.ForceProvider == req.ForceProvider {
		return nil, result.ProviderUsed, err
	}
	retryResult, retryErr := c.provider.Complete(ctx, retryReq)
	if retryErr != nil {
		return nil, result.ProviderUsed, err
	}
	rec, retryErr = NewClassificationRecord([]byte(retryResult.RawJSON), json.Unmarshal)
	if retryErr != nil {
		return nil, retryResult.ProviderUsed, retryErr
	}
	return rec, retryResult.ProviderUsed, nil
}

// otherProvider names the backend that didn't just produce a schema
// violation, so a retry lands on the fallback rather than repeating the
// same bad call.
func otherProvider(used string) string {
	if used == "fallback" {
		return "primary"
	}
	return "fallback"
}

// ExtractInput bundles the email content the extractor prompts with.
type ExtractInput struct {
	Subject string
	Sender  string
	Body    string
}

// Extract prompts the model provider for structured task/decision/question
// extraction under the conservative "extract only explicit items" contract.
func (c *Client) Extract(ctx context.Context, in ExtractInput) (*ExtractionRecord, string, error) {
	system := "You extract only explicit tasks, decisions, and questions from an email. " +
		"Prefer omission over hallucination: only include an item if it is clearly present " +
		"in the text, and always include the exact source_context sentence(s) you drew it from. " +
		"Respond with JSON matching the schema: {summary, main_topic, sentiment, has_action_items, " +
		"tasks[], decisions[], questions[]}."
	user := fmt.Sprintf("Subject: %s\nSender: %s\nBody:\n%s", in.Subject, in.Sender, in.Body)

	req := out.CompletionRequest{
		Messages: []out.ChatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		ResponseSchema: ExtractionSchema,
		MaxTokens:      1200,
	}

	result, err := c.provider.Complete(ctx, req)
	if err != nil {
		return nil, "", err
	}

	rec, err := NewExtractionRecord([]byte(result.RawJSON), json.Unmarshal)
	if err == nil {
		return rec, result.ProviderUsed, nil
	}
	if !apperr.Is(err, apperr.KindSchemaViolation) {
		return nil, result.ProviderUsed, err
	}

	retryReq := req
	retryReq.ForceProvider = otherProvider(result.ProviderUsed)
	if retryReq.ForceProvider == req.ForceProvider {
		return nil, result.ProviderUsed, err
	}
	retryResult, retryErr := c.provider.Complete(ctx, retryReq)
	if retryErr != nil {
		return nil, result.ProviderUsed, err
	}
	rec, retryErr = NewExtractionRecord([]byte(retryResult.RawJSON), json.Unmarshal)
	if retryErr != nil {
		return nil, retryResult.ProviderUsed, retryErr
	}
	return rec, retryResult.ProviderUsed, nil
}
