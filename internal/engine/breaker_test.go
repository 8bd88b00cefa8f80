package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/pelden/lingobridge/internal/history"
)

type flakyEngine struct {
	calls int
	fail  bool
}

func (f *flakyEngine) Name() string { return "flaky" }

func (f *flakyEngine) Translate(context.Context, Request) (*history.TranslationResult, error) {
	f.calls++
	if f.fail {
		return nil, errors.New("backend down")
	}
	return &history.TranslationResult{TargetText: "ok"}, nil
}

func TestBreakerPassesThrough(t *testing.T) {
	inner := &flakyEngine{}
	b := WithBreaker(inner)

	r, err := b.Translate(ctx, Request{Text: "x"})
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if r.TargetText != "ok" {
		t.Errorf("TargetText = %q", r.TargetText)
	}
	if b.Name() != "flaky" {
		t.Errorf("Name = %q", b.Name())
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	inner := &flakyEngine{fail: true}
	b := WithBreaker(inner)

	for i := 0; i < 3; i++ {
		if _, err := b.Translate(ctx, Request{Text: "x"}); err == nil {
			t.Fatalf("call %d: expected failure", i)
		}
	}
	callsWhenOpened := inner.calls

	// The circuit is now open: requests fail fast without touching the
	// backend.
	if _, err := b.Translate(ctx, Request{Text: "x"}); err == nil {
		t.Fatal("expected open-circuit error")
	}
	if inner.calls != callsWhenOpened {
		t.Errorf("backend called while circuit open (%d -> %d)", callsWhenOpened, inner.calls)
	}
}
