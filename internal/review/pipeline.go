// Package review moves translation results through the two-state workflow:
// items are submitted into the review collection and, on approval, copied
// into the library under a new key.
package review

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/pelden/lingobridge/internal/docstore"
	"github.com/pelden/lingobridge/internal/history"
)

// Pipeline implements submit/approve/list over the document store.
type Pipeline struct {
	store  docstore.Store
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Pipeline over the given store.
func New(store docstore.Store) *Pipeline {
	return &Pipeline{store: store, logger: slog.Default(), now: time.Now}
}

// Submit creates a new review item for the given result. It never
// deduplicates: callers are expected to consult the lookup layer first.
// The result's provenance tag is stripped before persisting.
func (p *Pipeline) Submit(ctx context.Context, result history.TranslationResult, src, tgt history.Language) (string, error) {
	result.Source = ""
	item := history.HistoryItem{
		Timestamp:  p.now().UnixMilli(),
		SourceLang: src,
		TargetLang: tgt,
		Result:     result,
		Status:     history.StatusReview,
	}
	data, err := json.Marshal(item)
	if err != nil {
		return "", fmt.Errorf("encoding item: %w", err)
	}
	id, err := p.store.Push(ctx, history.CollectionReview, data)
	if err != nil {
		return "", fmt.Errorf("storing review item: %w", err)
	}
	return id, nil
}

// Approve moves a review item into the library under a freshly minted key
// and returns that key. The item receives status=approved and approvedAt;
// any edit lock is dropped. Returns docstore.ErrNotFound if the id is not
// in the review collection.
//
// When the store can move atomically, the copy and the delete commit
// together. Otherwise the copy is written first and the delete follows; a
// failure between the two leaves the item present in both collections.
func (p *Pipeline) Approve(ctx context.Context, id string) (string, error) {
	approve := func(data json.RawMessage) (json.RawMessage, error) {
		var item history.HistoryItem
		if err := json.Unmarshal(data, &item); err != nil {
			return nil, fmt.Errorf("decoding review item %s: %w", id, err)
		}
		item.Status = history.StatusApproved
		item.ApprovedAt = p.now().UnixMilli()
		item.EditLock = nil
		return json.Marshal(item)
	}

	if mover, ok := p.store.(docstore.Mover); ok {
		return mover.Move(ctx, history.CollectionReview, id, history.CollectionLibrary, approve)
	}

	doc, err := p.store.Get(ctx, history.CollectionReview, id)
	if err != nil {
		return "", err
	}
	data, err := approve(doc.Data)
	if err != nil {
		return "", err
	}
	newID, err := p.store.Push(ctx, history.CollectionLibrary, data)
	if err != nil {
		return "", fmt.Errorf("writing library item: %w", err)
	}
	if err := p.store.Remove(ctx, history.CollectionReview, id); err != nil {
		// The copy already landed: the item now exists in both
		// collections until something reconciles it.
		p.logger.Error("approve left duplicate item",
			"review_id", id, "library_id", newID, "error", err)
		return newID, fmt.Errorf("removing review item %s after copy: %w", id, err)
	}
	return newID, nil
}

// Get returns one item from the given collection with its store key set.
func (p *Pipeline) Get(ctx context.Context, collection, id string) (history.HistoryItem, error) {
	doc, err := p.store.Get(ctx, collection, id)
	if err != nil {
		return history.HistoryItem{}, err
	}
	item, err := decodeItem(doc)
	if err != nil {
		return history.HistoryItem{}, err
	}
	return item, nil
}

// List returns every item in the collection, most recent first.
func (p *Pipeline) List(ctx context.Context, collection string) ([]history.HistoryItem, error) {
	docs, err := p.store.List(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", collection, err)
	}
	return decodeAndSort(docs, p.logger, collection), nil
}

// Save stores an edited result on a review item. The breakdown is realigned
// against the edited transliteration and lastModified is stamped. Provenance
// is stripped, as on submit.
func (p *Pipeline) Save(ctx context.Context, id string, result history.TranslationResult) error {
	history.RealignBreakdown(&result)
	result.Source = ""
	err := p.store.Update(ctx, history.CollectionReview, id, map[string]any{
		"result":       result,
		"lastModified": p.now().UnixMilli(),
	})
	if err != nil {
		return err
	}
	return nil
}

// Clear removes every pending review item.
func (p *Pipeline) Clear(ctx context.Context) error {
	return p.store.Clear(ctx, history.CollectionReview)
}

// Watch subscribes to live updates of a collection. fn receives the full
// decoded contents, sorted most recent first, once immediately and after
// every change. The returned function cancels the subscription and is
// idempotent. fn may run concurrently with other application logic.
func (p *Pipeline) Watch(collection string, fn func([]history.HistoryItem)) func() {
	return p.store.Subscribe(collection, func(docs []docstore.Document) {
		fn(decodeAndSort(docs, p.logger, collection))
	})
}

func decodeItem(doc docstore.Document) (history.HistoryItem, error) {
	var item history.HistoryItem
	if err := json.Unmarshal(doc.Data, &item); err != nil {
		return history.HistoryItem{}, fmt.Errorf("decoding item %s: %w", doc.ID, err)
	}
	item.ID = doc.ID
	return item, nil
}

func decodeAndSort(docs []docstore.Document, logger *slog.Logger, collection string) []history.HistoryItem {
	items := make([]history.HistoryItem, 0, len(docs))
	for _, doc := range docs {
		item, err := decodeItem(doc)
		if err != nil {
			logger.Warn("skipping undecodable item", "collection", collection, "id", doc.ID, "error", err)
			continue
		}
		items = append(items, item)
	}
	// Most recent first; ties keep store iteration order.
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Timestamp > items[j].Timestamp
	})
	return items
}
