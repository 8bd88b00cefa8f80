package history

import (
	"fmt"
	"strings"
	"time"
)

// Language identifies one side of the translation pair. The stored value
// matches the original client's wire format.
type Language string

const (
	Japanese Language = "Japanese"
	Dzongkha Language = "Dzongkha"
)

// ParseLanguage accepts common spellings and short codes.
func ParseLanguage(s string) (Language, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "japanese", "ja", "jp":
		return Japanese, nil
	case "dzongkha", "dz":
		return Dzongkha, nil
	}
	return "", fmt.Errorf("unknown language %q (want japanese/ja or dzongkha/dz)", s)
}

// Source tags where a TranslationResult came from. It is derived at read
// time and never persisted: Submit strips it, lookup stamps it.
type Source string

const (
	SourceAI    Source = "AI"
	SourceCache Source = "CACHE"
)

// Status is the review pipeline state of a HistoryItem.
type Status string

const (
	StatusReview   Status = "review"
	StatusApproved Status = "approved"
)

// Collection names in the document store. Items with StatusReview live only
// in CollectionReview; StatusApproved only in CollectionLibrary.
const (
	CollectionReview  = "review"
	CollectionLibrary = "library"
)

// WordBreakdown is one aligned token of a translation result.
type WordBreakdown struct {
	Original        string `json:"original"`
	SourceTerm      string `json:"sourceTerm"`
	Translated      string `json:"translated"`
	Transliteration string `json:"transliteration,omitempty"`
}

// NoSourceTerm is the sentinel for a breakdown token with no aligned
// source-language term.
const NoSourceTerm = "---"

// TranslationResult is one translation outcome.
type TranslationResult struct {
	SourceText            string          `json:"sourceText"`
	SourceTransliteration string          `json:"sourceTransliteration"`
	TargetText            string          `json:"targetText"`
	TargetTransliteration string          `json:"targetTransliteration"`
	Breakdown             []WordBreakdown `json:"breakdown"`
	Language              Language        `json:"language"`
	Source                Source          `json:"source,omitempty"`
}

// EditLock is a time-boxed advisory lock on a HistoryItem. Timestamps are
// milliseconds since epoch. A lock is valid iff ExpiresAt > now; an expired
// lock is treated as absent by all readers.
type EditLock struct {
	UserID    string `json:"userId"`
	Timestamp int64  `json:"timestamp"`
	ExpiresAt int64  `json:"expiresAt"`
}

// Expired reports whether the lock has passed its expiry at the given time.
func (l EditLock) Expired(now time.Time) bool {
	return l.ExpiresAt <= now.UnixMilli()
}

// HistoryItem is one persisted review/library record. ID is the store key;
// it is not preserved across the review→library move.
type HistoryItem struct {
	ID           string            `json:"id,omitempty"`
	Timestamp    int64             `json:"timestamp"`
	SourceLang   Language          `json:"sourceLang"`
	TargetLang   Language          `json:"targetLang"`
	Result       TranslationResult `json:"result"`
	Status       Status            `json:"status"`
	EditLock     *EditLock         `json:"editLock,omitempty"`
	LastModified int64             `json:"lastModified,omitempty"`
	ApprovedAt   int64             `json:"approvedAt,omitempty"`
}
