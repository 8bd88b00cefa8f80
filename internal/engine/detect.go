package engine

import (
	"context"
	"fmt"
)

// Options selects and configures the translation backend.
type Options struct {
	Provider string // "gemini" or "openai"

	GeminiAPIKey string
	GeminiModel  string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
}

// New builds the configured Engine and wraps it in a circuit breaker.
func New(ctx context.Context, opts Options) (Engine, error) {
	var (
		eng Engine
		err error
	)
	switch opts.Provider {
	case "gemini":
		eng, err = NewGemini(ctx, opts.GeminiAPIKey, opts.GeminiModel)
		if err != nil {
			return nil, err
		}
	case "openai":
		eng = NewOpenAI(opts.OpenAIAPIKey, opts.OpenAIBaseURL, opts.OpenAIModel)
	default:
		return nil, fmt.Errorf("unknown engine provider %q (want gemini or openai)", opts.Provider)
	}
	return WithBreaker(eng), nil
}
