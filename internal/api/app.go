// Package api exposes the translation review service over HTTP (chi router
// with bearer auth and an SSE event stream) and over MCP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pelden/lingobridge/internal/docstore"
	"github.com/pelden/lingobridge/internal/history"
	"github.com/pelden/lingobridge/internal/identity"
	"github.com/pelden/lingobridge/internal/lock"
	"github.com/pelden/lingobridge/internal/review"
	"github.com/pelden/lingobridge/internal/translate"
)

const maxRequestBodySize = 1 << 20 // 1MB

// clientIDHeader carries the caller's persistent client identity, used to
// attribute edit locks. There is no verification: identity is client-trusted.
const clientIDHeader = "X-Client-ID"

// Finder answers cache lookups without generating new translations.
type Finder interface {
	FindExisting(ctx context.Context, text string, src, tgt history.Language) (*history.TranslationResult, error)
}

// AppDeps holds the wired components the handlers operate on.
type AppDeps struct {
	Store      docstore.Store
	Pipeline   *review.Pipeline
	Translator *translate.Translator
	Finder     Finder
	Token      string
}

// NewAppHandler builds the HTTP handler. /health is unauthenticated; every
// other route requires the bearer token.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/translate", handleTranslate(deps))
		r.Post("/translate/batch", handleTranslateBatch(deps))
		r.Get("/lookup", handleLookup(deps))
		r.Get("/review", handleList(deps, history.CollectionReview))
		r.Get("/library", handleList(deps, history.CollectionLibrary))
		r.Get("/{collection}/{id}", handleGetItem(deps))
		r.Post("/review/{id}/approve", handleApprove(deps))
		r.Put("/review/{id}/result", handleSave(deps))
		r.Delete("/review", handleClear(deps))
		r.Post("/{collection}/{id}/lock", handleAcquireLock(deps))
		r.Delete("/{collection}/{id}/lock", handleReleaseLock(deps))
		r.Get("/events/{collection}", handleEvents(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type translateRequest struct {
	Text       string `json:"text"`
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang"`
}

func handleTranslate(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req translateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		src, tgt, ok := parseLangPair(w, req.SourceLang, req.TargetLang)
		if !ok {
			return
		}
		if req.Text == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "text is required")
			return
		}

		outcome, err := deps.Translator.Translate(r.Context(), req.Text, src, tgt)
		if err != nil {
			httpError(w, http.StatusBadGateway, "generation_error", "translation failed: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(outcome)
	}
}

type batchTranslateRequest struct {
	Texts      []string `json:"texts"`
	SourceLang string   `json:"source_lang"`
	TargetLang string   `json:"target_lang"`
}

type batchTranslateResponse struct {
	Outcomes []*translate.Outcome `json:"outcomes"`
	Errors   []string             `json:"errors,omitempty"`
}

func handleTranslateBatch(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req batchTranslateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		src, tgt, ok := parseLangPair(w, req.SourceLang, req.TargetLang)
		if !ok {
			return
		}
		if len(req.Texts) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "texts is required")
			return
		}

		outcomes, err := deps.Translator.Batch(r.Context(), req.Texts, src, tgt)
		resp := batchTranslateResponse{Outcomes: outcomes}
		if err != nil {
			// Partial failure: surviving outcomes are still returned.
			resp.Errors = strings.Split(err.Error(), "\n")
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

func handleLookup(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		src, tgt, ok := parseLangPair(w, q.Get("source_lang"), q.Get("target_lang"))
		if !ok {
			return
		}
		text := q.Get("text")
		if text == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "text is required")
			return
		}

		result, err := deps.Finder.FindExisting(r.Context(), text, src, tgt)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "lookup failed: %v", err)
			return
		}

		resp := map[string]any{"found": result != nil}
		if result != nil {
			resp["result"] = result
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

func handleList(deps AppDeps, collection string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := deps.Pipeline.List(r.Context(), collection)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list %s: %v", collection, err)
			return
		}
		if items == nil {
			items = []history.HistoryItem{}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(items)
	}
}

func handleGetItem(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		collection, ok := parseCollection(w, chi.URLParam(r, "collection"))
		if !ok {
			return
		}
		id := chi.URLParam(r, "id")

		item, err := deps.Pipeline.Get(r.Context(), collection, id)
		if errors.Is(err, docstore.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "item not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get item: %v", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(item)
	}
}

func handleApprove(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		newID, err := deps.Pipeline.Approve(r.Context(), id)
		if errors.Is(err, docstore.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "review item not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "approve failed: %v", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"id": newID, "status": string(history.StatusApproved)})
	}
}

func handleSave(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var result history.TranslationResult
		if err := json.NewDecoder(r.Body).Decode(&result); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		err := deps.Pipeline.Save(r.Context(), id, result)
		if errors.Is(err, docstore.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "review item not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "save failed: %v", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "saved"})
	}
}

func handleClear(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Pipeline.Clear(r.Context()); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "clear failed: %v", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "cleared"})
	}
}

func handleAcquireLock(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		collection, ok := parseCollection(w, chi.URLParam(r, "collection"))
		if !ok {
			return
		}
		id := chi.URLParam(r, "id")
		mgr, ok := lockManager(w, r, deps)
		if !ok {
			return
		}

		granted, err := mgr.Acquire(r.Context(), collection, id)
		if errors.Is(err, docstore.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "item not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "lock acquire failed: %v", err)
			return
		}

		resp := map[string]any{"granted": granted}
		if granted {
			resp["expires_at"] = time.Now().Add(lock.TTL).UnixMilli()
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

func handleReleaseLock(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		collection, ok := parseCollection(w, chi.URLParam(r, "collection"))
		if !ok {
			return
		}
		id := chi.URLParam(r, "id")
		mgr, ok := lockManager(w, r, deps)
		if !ok {
			return
		}

		if err := mgr.Release(r.Context(), collection, id); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "lock release failed: %v", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "released"})
	}
}

// lockManager builds a lock manager acting as the client named in the
// request header.
func lockManager(w http.ResponseWriter, r *http.Request, deps AppDeps) (*lock.Manager, bool) {
	clientID := r.Header.Get(clientIDHeader)
	if clientID == "" {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%s header is required for lock operations", clientIDHeader)
		return nil, false
	}
	return lock.NewManager(deps.Store, identity.Static(clientID)), true
}

func parseCollection(w http.ResponseWriter, raw string) (string, bool) {
	switch raw {
	case history.CollectionReview, history.CollectionLibrary:
		return raw, true
	}
	httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown collection %q", raw)
	return "", false
}

func parseLangPair(w http.ResponseWriter, srcRaw, tgtRaw string) (history.Language, history.Language, bool) {
	src, err := history.ParseLanguage(srcRaw)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "source_lang: %v", err)
		return "", "", false
	}
	tgt, err := history.ParseLanguage(tgtRaw)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "target_lang: %v", err)
		return "", "", false
	}
	return src, tgt, true
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
