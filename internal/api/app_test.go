package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pelden/lingobridge/internal/docstore"
	"github.com/pelden/lingobridge/internal/engine"
	"github.com/pelden/lingobridge/internal/history"
	"github.com/pelden/lingobridge/internal/lookup"
	"github.com/pelden/lingobridge/internal/review"
	"github.com/pelden/lingobridge/internal/translate"
)

const testToken = "test-token-12345"

// fakeEngine answers every request with a fixed result built from the input.
type fakeEngine struct {
	err   error
	calls int
}

func (f *fakeEngine) Name() string { return "fake" }

func (f *fakeEngine) Translate(_ context.Context, req engine.Request) (*history.TranslationResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &history.TranslationResult{
		SourceText:            strings.TrimSpace(req.Text),
		TargetText:            "ཀུ་ཟུ།",
		TargetTransliteration: "クズ",
		Breakdown: []history.WordBreakdown{
			{Original: "ཀུ་ཟུ།", SourceTerm: strings.TrimSpace(req.Text), Translated: "挨拶", Transliteration: "クズ"},
		},
		Language: req.TargetLang,
		Source:   history.SourceAI,
	}, nil
}

func setupAppHandler(t *testing.T) (http.Handler, *docstore.SQLite, *fakeEngine) {
	t.Helper()
	store, err := docstore.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	eng := &fakeEngine{}
	pipeline := review.New(store)
	finder := lookup.New(store)

	handler := NewAppHandler(AppDeps{
		Store:      store,
		Pipeline:   pipeline,
		Translator: translate.New(finder, eng, pipeline),
		Finder:     finder,
		Token:      testToken,
	})
	return handler, store, eng
}

func authReq(method, url, body string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("X-Client-ID", "client-test")
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func doReq(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealthUnauthenticated(t *testing.T) {
	h, _, _ := setupAppHandler(t)

	rec := doReq(t, h, httptest.NewRequest("GET", "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestMissingToken(t *testing.T) {
	h, _, _ := setupAppHandler(t)

	rec := doReq(t, h, httptest.NewRequest("GET", "/review", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestWrongToken(t *testing.T) {
	h, _, _ := setupAppHandler(t)

	req := httptest.NewRequest("GET", "/review", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec := doReq(t, h, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestTranslateFreshResult(t *testing.T) {
	h, _, eng := setupAppHandler(t)

	rec := doReq(t, h, authReq("POST", "/translate",
		`{"text":"こんにちは","source_lang":"japanese","target_lang":"dzongkha"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	out := decodeBody[translate.Outcome](t, rec)
	if out.Cached {
		t.Error("Cached = true on first translation")
	}
	if out.ItemID == "" {
		t.Error("fresh result has no review item id")
	}
	if out.Result.TargetText != "ཀུ་ཟུ།" {
		t.Errorf("TargetText = %q", out.Result.TargetText)
	}
	if eng.calls != 1 {
		t.Errorf("engine calls = %d, want 1", eng.calls)
	}

	// The item is now pending review.
	listRec := doReq(t, h, authReq("GET", "/review", ""))
	items := decodeBody[[]history.HistoryItem](t, listRec)
	if len(items) != 1 {
		t.Fatalf("review queue has %d items, want 1", len(items))
	}
	if items[0].Status != history.StatusReview {
		t.Errorf("status = %q", items[0].Status)
	}
}

func TestTranslateCacheHit(t *testing.T) {
	h, _, eng := setupAppHandler(t)

	body := `{"text":"こんにちは","source_lang":"japanese","target_lang":"dzongkha"}`
	doReq(t, h, authReq("POST", "/translate", body))

	rec := doReq(t, h, authReq("POST", "/translate", body))
	out := decodeBody[translate.Outcome](t, rec)
	if !out.Cached {
		t.Error("second identical request was not served from cache")
	}
	if out.Result.Source != history.SourceCache {
		t.Errorf("Source = %q, want CACHE", out.Result.Source)
	}
	if eng.calls != 1 {
		t.Errorf("engine calls = %d, want 1 (cache hit must not regenerate)", eng.calls)
	}
}

func TestTranslateValidation(t *testing.T) {
	h, _, _ := setupAppHandler(t)

	cases := []struct {
		name string
		body string
	}{
		{"bad json", `{`},
		{"missing text", `{"source_lang":"japanese","target_lang":"dzongkha"}`},
		{"bad language", `{"text":"x","source_lang":"klingon","target_lang":"dzongkha"}`},
	}
	for _, tc := range cases {
		rec := doReq(t, h, authReq("POST", "/translate", tc.body))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", tc.name, rec.Code)
		}
	}
}

func TestTranslateEngineFailure(t *testing.T) {
	h, _, eng := setupAppHandler(t)
	eng.err = errors.New("model overloaded")

	rec := doReq(t, h, authReq("POST", "/translate",
		`{"text":"x","source_lang":"ja","target_lang":"dz"}`))
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestTranslateBatch(t *testing.T) {
	h, _, _ := setupAppHandler(t)

	rec := doReq(t, h, authReq("POST", "/translate/batch",
		`{"texts":["a","b","c"],"source_lang":"ja","target_lang":"dz"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	resp := decodeBody[batchTranslateResponse](t, rec)
	if len(resp.Outcomes) != 3 {
		t.Errorf("outcomes = %d, want 3", len(resp.Outcomes))
	}
	if len(resp.Errors) != 0 {
		t.Errorf("unexpected errors: %v", resp.Errors)
	}
}

func TestLookup(t *testing.T) {
	h, _, _ := setupAppHandler(t)

	// Miss first.
	rec := doReq(t, h, authReq("GET", "/lookup?text=%E3%81%93&source_lang=ja&target_lang=dz", ""))
	miss := decodeBody[map[string]any](t, rec)
	if miss["found"] != false {
		t.Errorf("found = %v, want false", miss["found"])
	}

	doReq(t, h, authReq("POST", "/translate",
		`{"text":"こ","source_lang":"ja","target_lang":"dz"}`))

	rec = doReq(t, h, authReq("GET", "/lookup?text=%E3%81%93&source_lang=ja&target_lang=dz", ""))
	hit := decodeBody[map[string]any](t, rec)
	if hit["found"] != true {
		t.Errorf("found = %v, want true", hit["found"])
	}
}

func TestApproveFlow(t *testing.T) {
	h, _, _ := setupAppHandler(t)

	rec := doReq(t, h, authReq("POST", "/translate",
		`{"text":"こんにちは","source_lang":"ja","target_lang":"dz"}`))
	out := decodeBody[translate.Outcome](t, rec)

	rec = doReq(t, h, authReq("POST", "/review/"+out.ItemID+"/approve", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("approve status = %d: %s", rec.Code, rec.Body.String())
	}
	approved := decodeBody[map[string]string](t, rec)
	if approved["id"] == out.ItemID {
		t.Error("approve kept the review key")
	}

	// Review queue is empty, library has the item under the new key.
	items := decodeBody[[]history.HistoryItem](t, doReq(t, h, authReq("GET", "/review", "")))
	if len(items) != 0 {
		t.Errorf("review queue has %d items after approve", len(items))
	}
	lib := decodeBody[[]history.HistoryItem](t, doReq(t, h, authReq("GET", "/library", "")))
	if len(lib) != 1 || lib[0].ID != approved["id"] {
		t.Errorf("library = %+v, want the approved item", lib)
	}
}

func TestApproveMissing(t *testing.T) {
	h, _, _ := setupAppHandler(t)

	rec := doReq(t, h, authReq("POST", "/review/nope/approve", ""))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestSaveResult(t *testing.T) {
	h, _, _ := setupAppHandler(t)

	rec := doReq(t, h, authReq("POST", "/translate",
		`{"text":"こんにちは","source_lang":"ja","target_lang":"dz"}`))
	out := decodeBody[translate.Outcome](t, rec)

	edited := out.Result
	edited.TargetTransliteration = "グズ"
	body, _ := json.Marshal(edited)

	rec = doReq(t, h, authReq("PUT", "/review/"+out.ItemID+"/result", string(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("save status = %d: %s", rec.Code, rec.Body.String())
	}

	item := decodeBody[history.HistoryItem](t, doReq(t, h, authReq("GET", "/review/"+out.ItemID, "")))
	if item.Result.TargetTransliteration != "グズ" {
		t.Errorf("edit lost: %q", item.Result.TargetTransliteration)
	}
	if item.LastModified == 0 {
		t.Error("lastModified not stamped")
	}
	// Realignment propagated the edited reading to the single token.
	if item.Result.Breakdown[0].Transliteration != "グズ" {
		t.Errorf("breakdown reading = %q, want グズ", item.Result.Breakdown[0].Transliteration)
	}
}

func TestClearReview(t *testing.T) {
	h, _, _ := setupAppHandler(t)

	doReq(t, h, authReq("POST", "/translate",
		`{"text":"a","source_lang":"ja","target_lang":"dz"}`))

	rec := doReq(t, h, authReq("DELETE", "/review", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("clear status = %d", rec.Code)
	}

	items := decodeBody[[]history.HistoryItem](t, doReq(t, h, authReq("GET", "/review", "")))
	if len(items) != 0 {
		t.Errorf("review queue not empty after clear: %d items", len(items))
	}
}

func TestLockFlow(t *testing.T) {
	h, _, _ := setupAppHandler(t)

	rec := doReq(t, h, authReq("POST", "/translate",
		`{"text":"こんにちは","source_lang":"ja","target_lang":"dz"}`))
	out := decodeBody[translate.Outcome](t, rec)

	// First client takes the lock.
	rec = doReq(t, h, authReq("POST", "/review/"+out.ItemID+"/lock", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("lock status = %d: %s", rec.Code, rec.Body.String())
	}
	granted := decodeBody[map[string]any](t, rec)
	if granted["granted"] != true {
		t.Fatalf("granted = %v, want true", granted["granted"])
	}
	if _, ok := granted["expires_at"]; !ok {
		t.Error("granted response missing expires_at")
	}

	// A different client is denied, with a 200 and granted=false.
	otherReq := authReq("POST", "/review/"+out.ItemID+"/lock", "")
	otherReq.Header.Set("X-Client-ID", "client-other")
	rec = doReq(t, h, otherReq)
	if rec.Code != http.StatusOK {
		t.Fatalf("denied lock status = %d, want 200", rec.Code)
	}
	denied := decodeBody[map[string]any](t, rec)
	if denied["granted"] != false {
		t.Errorf("granted = %v, want false", denied["granted"])
	}

	// Owner releases; the other client can now acquire.
	rec = doReq(t, h, authReq("DELETE", "/review/"+out.ItemID+"/lock", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("release status = %d", rec.Code)
	}

	otherReq = authReq("POST", "/review/"+out.ItemID+"/lock", "")
	otherReq.Header.Set("X-Client-ID", "client-other")
	rec = doReq(t, h, otherReq)
	after := decodeBody[map[string]any](t, rec)
	if after["granted"] != true {
		t.Errorf("granted = %v after release, want true", after["granted"])
	}
}

func TestLockRequiresClientID(t *testing.T) {
	h, _, _ := setupAppHandler(t)

	req := authReq("POST", "/review/some-id/lock", "")
	req.Header.Del("X-Client-ID")
	rec := doReq(t, h, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestLockMissingItem(t *testing.T) {
	h, _, _ := setupAppHandler(t)

	rec := doReq(t, h, authReq("POST", "/review/missing/lock", ""))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestUnknownCollection(t *testing.T) {
	h, _, _ := setupAppHandler(t)

	rec := doReq(t, h, authReq("GET", "/archive/some-id", ""))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestEventsStream(t *testing.T) {
	h, store, _ := setupAppHandler(t)

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	req, err := http.NewRequest("GET", srv.URL+"/events/review", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer "+testToken)

	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("GET /events/review: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	readEvent := func() []history.HistoryItem {
		t.Helper()
		buf := make([]byte, 64*1024)
		deadline := time.Now().Add(2 * time.Second)
		var raw strings.Builder
		for time.Now().Before(deadline) {
			n, err := resp.Body.Read(buf)
			if n > 0 {
				raw.Write(buf[:n])
				s := raw.String()
				if idx := strings.Index(s, "\n\n"); idx >= 0 {
					payload := strings.TrimPrefix(s[:idx], "data: ")
					var items []history.HistoryItem
					if err := json.Unmarshal([]byte(payload), &items); err != nil {
						t.Fatalf("decoding event %q: %v", payload, err)
					}
					return items
				}
			}
			if err != nil {
				t.Fatalf("reading stream: %v", err)
			}
		}
		t.Fatal("timed out waiting for event")
		return nil
	}

	// Initial snapshot is empty.
	if items := readEvent(); len(items) != 0 {
		t.Errorf("initial snapshot has %d items", len(items))
	}

	// A write produces a fresh snapshot.
	item, _ := json.Marshal(history.HistoryItem{Timestamp: 1, Status: history.StatusReview})
	if _, err := store.Push(context.Background(), history.CollectionReview, item); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if items := readEvent(); len(items) != 1 {
		t.Errorf("snapshot after write has %d items, want 1", len(items))
	}
}
