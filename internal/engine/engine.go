// Package engine talks to the external generative endpoint that produces
// translations. Each request is a single attempt: failures propagate to the
// caller and nothing partial is cached.
package engine

import (
	"context"

	"github.com/pelden/lingobridge/internal/history"
)

// Request is one translation job for the external engine.
type Request struct {
	Text       string
	SourceLang history.Language
	TargetLang history.Language
}

// Engine abstracts a generative translation backend (Gemini or any
// OpenAI-compatible server). Consumers depend on this interface instead of
// a concrete client.
type Engine interface {
	// Name identifies the backend for logs and status output.
	Name() string

	// Translate performs one translation attempt. The returned result is
	// tagged source=AI with language set to the target language.
	Translate(ctx context.Context, req Request) (*history.TranslationResult, error)
}
