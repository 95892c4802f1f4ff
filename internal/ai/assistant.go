// Package ai produces strategy tips and chat replies from a hosted completion
// endpoint. It never fails: a missing key or a broken endpoint yields a fixed
// fallback text.
package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"
)

const (
	strategyOffline  = "AI Strategy unavailable (No API Key)."
	strategyEmpty    = "Stay low, move fast, and aim true."
	strategyFallback = "Focus on positioning and zone management. (AI Offline)"
	chatOffline      = "I am currently offline. Please try again later."
	chatEmpty        = "I didn't catch that. Could you rephrase?"
	chatFallback     = "Connection error. Please try again."
)

// Completer turns a prompt into free text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type OpenAICompleter struct {
	client openai.Client
	model  string
}

// NewOpenAICompleter talks to any OpenAI-compatible endpoint. Retries are
// off: a failed call falls back at once.
func NewOpenAICompleter(apiKey, baseURL, model string) *OpenAICompleter {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAICompleter{client: openai.NewClient(opts...), model: model}
}

func (c *OpenAICompleter) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model: openai.ChatModel(c.model),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

type Assistant struct {
	completer Completer // nil when no key is configured
	log       *zap.Logger
}

func NewAssistant(c Completer, log *zap.Logger) *Assistant {
	if log == nil {
		log = zap.NewNop()
	}
	return &Assistant{completer: c, log: log}
}

// Strategy returns a short tip for a tournament setup.
func (a *Assistant) Strategy(ctx context.Context, game, mapName, mode string) string {
	if a.completer == nil {
		return strategyOffline
	}
	prompt := fmt.Sprintf(
		"Give me a very short, punchy, 2-sentence pro strategy tip for a %s tournament on the map %s in %s mode. "+
			"Focus on drop locations or rotation.", game, mapName, mode)

	text, err := a.completer.Complete(ctx, prompt)
	if err != nil {
		a.log.Warn("strategy completion failed", zap.Error(err))
		return strategyFallback
	}
	if strings.TrimSpace(text) == "" {
		return strategyEmpty
	}
	return strings.TrimSpace(text)
}

// Chat answers a support question. userContext describes who is asking.
func (a *Assistant) Chat(ctx context.Context, message, userContext string) string {
	if a.completer == nil {
		return chatOffline
	}
	prompt := fmt.Sprintf(
		"You are a helpful and cool esports support assistant for 'BattleZone', a tournament platform for PUBG and Free Fire.\n"+
			"Context: %s\nUser Query: %s\n"+
			"Keep answers concise (under 50 words) and use gamer slang appropriately but remain professional.",
		userContext, message)

	text, err := a.completer.Complete(ctx, prompt)
	if err != nil {
		a.log.Warn("chat completion failed", zap.Error(err))
		return chatFallback
	}
	if strings.TrimSpace(text) == "" {
		return chatEmpty
	}
	return strings.TrimSpace(text)
}
