package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/beacon-intel/aiviz-cli/internal/model"
	"github.com/beacon-intel/aiviz-cli/internal/resilience"
	"github.com/beacon-intel/aiviz-cli/pkg/anthropic"
	"github.com/beacon-intel/aiviz-cli/pkg/openai"
	"github.com/beacon-intel/aiviz-cli/pkg/perplexity"
)

type backendKind string

const (
	backendAnthropic  backendKind = "anthropic"
	backendOpenAI     backendKind = "openai"
	backendPerplexity backendKind = "perplexity"
)

// modelRouting maps model ID substrings to backends. First match wins.
var modelRouting = []struct {
	substr string
	kind   backendKind
}{
	{"claude", backendAnthropic},
	{"haiku", backendAnthropic},
	{"sonnet", backendAnthropic},
	{"opus", backendAnthropic},
	{"gpt", backendOpenAI},
	{"o4", backendOpenAI},
	{"sonar", backendPerplexity},
}

// backendFor resolves the backend serving a model ID. Unknown models
// fail fast with a non-retryable error.
func backendFor(modelID string) (backendKind, error) {
	m := strings.ToLower(strings.TrimSpace(modelID))
	for _, r := range modelRouting {
		if strings.Contains(m, r.substr) {
			return r.kind, nil
		}
	}
	return "", resilience.Fatal(
		resilience.CodeUnsupportedModel,
		fmt.Sprintf("no backend serves model %q", modelID),
		resilience.ErrorContext{Operation: "llm_query"},
	)
}

func (g *Gateway) dispatch(ctx context.Context, kind backendKind, q model.Query) (*model.Response, error) {
	switch kind {
	case backendAnthropic:
		return g.callAnthropic(ctx, q)
	case backendOpenAI:
		return g.callOpenAI(ctx, q)
	case backendPerplexity:
		return g.callPerplexity(ctx, q)
	default:
		return nil, eris.Errorf("gateway: unknown backend %q", kind)
	}
}

func (g *Gateway) callAnthropic(ctx context.Context, q model.Query) (*model.Response, error) {
	if g.backends.Anthropic == nil {
		return nil, notConfigured(backendAnthropic)
	}

	maxTokens := q.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	resp, err := g.backends.Anthropic.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       q.Model,
		MaxTokens:   int64(maxTokens),
		Messages:    []anthropic.Message{{Role: "user", Content: q.Prompt}},
		Temperature: q.Temperature,
	})
	if err != nil {
		return nil, err
	}
	resp.Usage.LogCost(q.Model, "fingerprint")

	return &model.Response{
		Content:    resp.Text(),
		TokensUsed: resp.Usage.Total(),
		Model:      modelOr(resp.Model, q.Model),
	}, nil
}

func (g *Gateway) callOpenAI(ctx context.Context, q model.Query) (*model.Response, error) {
	if g.backends.OpenAI == nil {
		return nil, notConfigured(backendOpenAI)
	}

	req := openai.ChatCompletionRequest{
		Model:       q.Model,
		Messages:    []openai.Message{{Role: "user", Content: q.Prompt}},
		Temperature: q.Temperature,
	}
	if q.MaxTokens > 0 {
		mt := q.MaxTokens
		req.MaxTokens = &mt
	}

	resp, err := g.backends.OpenAI.ChatCompletion(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, eris.New("gateway: empty completion choices")
	}

	tokens := resp.Usage.TotalTokens
	if tokens == 0 {
		tokens = resp.Usage.PromptTokens + resp.Usage.CompletionTokens
	}

	return &model.Response{
		Content:    resp.Choices[0].Message.Content,
		TokensUsed: tokens,
		Model:      modelOr(resp.Model, q.Model),
	}, nil
}

func (g *Gateway) callPerplexity(ctx context.Context, q model.Query) (*model.Response, error) {
	if g.backends.Perplexity == nil {
		return nil, notConfigured(backendPerplexity)
	}

	req := perplexity.ChatCompletionRequest{
		Model:       q.Model,
		Messages:    []perplexity.Message{{Role: "user", Content: q.Prompt}},
		Temperature: q.Temperature,
	}
	if q.MaxTokens > 0 {
		mt := q.MaxTokens
		req.MaxTokens = &mt
	}

	resp, err := g.backends.Perplexity.ChatCompletion(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, eris.New("gateway: empty completion choices")
	}

	return &model.Response{
		Content:    resp.Choices[0].Message.Content,
		TokensUsed: resp.Usage.PromptTokens + resp.Usage.CompletionTokens,
		Model:      q.Model,
	}, nil
}

func notConfigured(kind backendKind) error {
	return resilience.Fatal(
		resilience.CodeValidationFailed,
		fmt.Sprintf("%s backend not configured", kind),
		resilience.ErrorContext{Operation: "llm_query"},
	)
}

func modelOr(reported, requested string) string {
	if reported != "" {
		return reported
	}
	return requested
}
