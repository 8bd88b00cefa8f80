// Package translate orchestrates the full request flow: consult the cache,
// fall back to the generation engine, and hand fresh results to the review
// pipeline.
package translate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/pelden/lingobridge/internal/engine"
	"github.com/pelden/lingobridge/internal/history"
)

// Finder locates an existing translation for a (text, src, tgt) triple.
type Finder interface {
	FindExisting(ctx context.Context, text string, src, tgt history.Language) (*history.TranslationResult, error)
}

// Submitter creates a new review item for a fresh result.
type Submitter interface {
	Submit(ctx context.Context, result history.TranslationResult, src, tgt history.Language) (string, error)
}

// Outcome is the answer to one translation request.
type Outcome struct {
	Result history.TranslationResult `json:"result"`
	// ItemID is the review item created for a fresh result; empty on a
	// cache hit.
	ItemID string `json:"item_id,omitempty"`
	Cached bool   `json:"cached"`
}

// Translator ties the lookup, engine and review layers together.
type Translator struct {
	finder   Finder
	engine   engine.Engine
	pipeline Submitter
	logger   *slog.Logger
}

// New creates a Translator.
func New(finder Finder, eng engine.Engine, pipeline Submitter) *Translator {
	return &Translator{finder: finder, engine: eng, pipeline: pipeline, logger: slog.Default()}
}

// Translate resolves one text. A cache hit is returned as-is and never
// written anywhere; a miss goes to the engine and the fresh result is
// submitted for review. A failed lookup degrades to a miss; only engine
// failures abort the request.
func (t *Translator) Translate(ctx context.Context, text string, src, tgt history.Language) (*Outcome, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("nothing to translate")
	}

	existing, err := t.finder.FindExisting(ctx, text, src, tgt)
	if err != nil {
		t.logger.Warn("cache lookup failed, generating fresh", "error", err)
	}
	if existing != nil {
		return &Outcome{Result: *existing, Cached: true}, nil
	}

	result, err := t.engine.Translate(ctx, engine.Request{Text: text, SourceLang: src, TargetLang: tgt})
	if err != nil {
		return nil, fmt.Errorf("translating %q: %w", strings.TrimSpace(text), err)
	}

	itemID, err := t.pipeline.Submit(ctx, *result, src, tgt)
	if err != nil {
		return nil, fmt.Errorf("queueing result for review: %w", err)
	}
	return &Outcome{Result: *result, ItemID: itemID, Cached: false}, nil
}

// batchConcurrency bounds parallel engine calls during batch translation.
const batchConcurrency = 4

// Batch translates several texts concurrently, preserving input order.
// Failures are recorded per position so one bad text does not sink the
// rest; the returned error aggregates whatever failed.
func (t *Translator) Batch(ctx context.Context, texts []string, src, tgt history.Language) ([]*Outcome, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	outcomes := make([]*Outcome, len(texts))
	errs := make([]error, len(texts))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)

	for i, text := range texts {
		g.Go(func() error {
			out, err := t.Translate(gCtx, text, src, tgt)
			if err != nil {
				t.logger.Warn("batch item failed", "index", i, "error", err)
				errs[i] = err
				return nil
			}
			outcomes[i] = out
			return nil
		})
	}

	g.Wait()
	return outcomes, errors.Join(errs...)
}
