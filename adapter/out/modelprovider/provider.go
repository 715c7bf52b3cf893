// Package modelprovider implements core/port/out.ModelProvider over two
// OpenAI-compatible chat-completion back-ends, each protected by its own
// circuit breaker, per SPEC_FULL.md §4.2a.
package modelprovider

import (
	"context"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"

	"mailtriage/core/port/out"
	"mailtriage/pkg/apperr"
	"mailtriage/pkg/logger"
)

// BackendConfig configures one OpenAI-compatible endpoint.
type BackendConfig struct {
	Name           string // "primary" | "fallback"
	BaseURL        string
	APIKey         string
	Model          string
	EmbeddingModel string // defaults to "text-embedding-3-small" if empty
	Timeout        time.Duration
}

type backend struct {
	name           string
	client         *openai.Client
	model          string
	embeddingModel string
	timeout        time.Duration
	cb             *gobreaker.CircuitBreaker
}

func newBackend(cfg BackendConfig) *backend {
	oaiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oaiCfg.BaseURL = cfg.BaseURL
	}

	embeddingModel := cfg.EmbeddingModel
	if embeddingModel == "" {
		embeddingModel = string(openai.SmallEmbedding3)
	}

	cbSettings := gobreaker.Settings{
		Name:        "model-" + cfg.Name,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithField("breaker", name).WithField("from", from.String()).WithField("to", to.String()).
				Warn("model back-end circuit breaker state changed")
		},
	}

	return &backend{
		name:           cfg.Name,
		client:         openai.NewClientWithConfig(oaiCfg),
		model:          cfg.Model,
		embeddingModel: embeddingModel,
		timeout:        cfg.Timeout,
		cb:             gobreaker.NewCircuitBreaker(cbSettings),
	}
}

func (b *backend) complete(ctx context.Context, req out.CompletionRequest) (out.CompletionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	raw, err := b.cb.Execute(func() (interface{}, error) {
		resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:    b.model,
			Messages: messages,
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
			MaxTokens: req.MaxTokens,
		})
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", apperr.TransientTransport("model back-end returned no choices", nil)
		}
		return resp.Choices[0].Message.Content, nil
	})
	if err != nil {
		return out.CompletionResult{}, apperr.TransientTransport("model back-end "+b.name+" call failed", err)
	}

	return out.CompletionResult{RawJSON: raw.(string), ProviderUsed: b.name}, nil
}

// embed requests a single embedding vector, wrapped in the same breaker as
// completions since both share the back-end's availability.
func (b *backend) embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	raw, err := b.cb.Execute(func() (interface{}, error) {
		resp, err := b.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: []string{text},
			Model: openai.EmbeddingModel(b.embeddingModel),
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Data) == 0 {
			return nil, apperr.TransientTransport("model back-end returned no embedding", nil)
		}
		return resp.Data[0].Embedding, nil
	})
	if err != nil {
		return nil, apperr.TransientTransport("model back-end "+b.name+" embed call failed", err)
	}
	return raw.([]float32), nil
}

// DualProvider implements out.ModelProvider over a primary and a fallback
// back-end: primary is attempted first unless ForceProvider is set; a
// transport failure on primary retries exactly once on fallback (§4.2).
type DualProvider struct {
	primary  *backend
	fallback *backend
}

// NewDualProvider constructs the provider from primary/fallback configs.
func NewDualProvider(primary, fallback BackendConfig) *DualProvider {
	return &DualProvider{primary: newBackend(primary), fallback: newBackend(fallback)}
}

func (p *DualProvider) Complete(ctx context.Context, req out.CompletionRequest) (out.CompletionResult, error) {
	if req.ForceProvider == "fallback" {
		return p.fallback.complete(ctx, req)
	}
	if req.ForceProvider == "primary" {
		return p.primary.complete(ctx, req)
	}

	result, err := p.primary.complete(ctx, req)
	if err == nil {
		return result, nil
	}

	logger.WithError(err).Warn("primary model back-end failed, retrying on fallback")
	return p.fallback.complete(ctx, req)
}

// Embed implements out.Embedder for the review queue's semantic
// near-duplicate check, with the same primary-then-fallback posture as
// Complete.
func (p *DualProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := p.primary.embed(ctx, text)
	if err == nil {
		return vec, nil
	}
	logger.WithError(err).Warn("primary model back-end failed embedding call, retrying on fallback")
	return p.fallback.embed(ctx, text)
}
