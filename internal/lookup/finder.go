// Package lookup answers "has this exact text already been translated?"
// before any request reaches the generation engine.
package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pelden/lingobridge/internal/docstore"
	"github.com/pelden/lingobridge/internal/history"
)

// Finder searches the library, then the review queue, for an existing
// translation of a (text, sourceLang, targetLang) triple. It is read-only:
// it never writes and never creates duplicates.
type Finder struct {
	store  docstore.Store
	logger *slog.Logger
}

// New creates a Finder over the given store.
func New(store docstore.Store) *Finder {
	return &Finder{store: store, logger: slog.Default()}
}

// FindExisting returns the first stored result matching the trimmed text and
// language pair, tagged CACHE, or (nil, nil) when there is no match.
// Matching is exact string equality after trimming surrounding whitespace:
// no case folding, no fuzzy matching. A store error is returned for the
// caller to log and treat as a miss; it must not abort the translate flow.
func (f *Finder) FindExisting(ctx context.Context, text string, src, tgt history.Language) (*history.TranslationResult, error) {
	needle := strings.TrimSpace(text)
	if needle == "" {
		return nil, nil
	}

	for _, collection := range []string{history.CollectionLibrary, history.CollectionReview} {
		docs, err := f.store.List(ctx, collection)
		if err != nil {
			return nil, fmt.Errorf("searching %s: %w", collection, err)
		}
		for _, doc := range docs {
			var item history.HistoryItem
			if err := json.Unmarshal(doc.Data, &item); err != nil {
				f.logger.Warn("skipping undecodable item during lookup",
					"collection", collection, "id", doc.ID, "error", err)
				continue
			}
			if item.SourceLang != src || item.TargetLang != tgt {
				continue
			}
			if strings.TrimSpace(item.Result.SourceText) != needle {
				continue
			}
			result := item.Result
			result.Source = history.SourceCache
			return &result, nil
		}
	}
	return nil, nil
}
