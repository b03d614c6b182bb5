package logging

import (
	"encoding/json"
	"sync"
	"testing"
)

func TestLoggerNoopWithoutRouter(t *testing.T) {
	Initialize(nil, LevelDebug, true)
	Get(CategoryFact).Info("should not panic or block: %d", 42)
}

func TestLoggerRoutesAboveMinLevel(t *testing.T) {
	var mu sync.Mutex
	var got []Entry

	Initialize(func(name string, data []byte) {
		mu.Lock()
		defer mu.Unlock()
		var e Entry
		if err := json.Unmarshal(data, &e); err == nil {
			got = append(got, e)
		}
	}, LevelWarn, true)
	defer Initialize(nil, LevelInfo, true)

	l := Get(CategoryNetwork)
	l.Debug("dropped")
	l.Info("dropped too")
	l.Warn("kept")
	l.Error("kept too")

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("expected 2 entries at/above warn, got %d: %+v", len(got), got)
	}
	if got[0].Level != "warn" || got[1].Level != "error" {
		t.Fatalf("unexpected levels: %+v", got)
	}
}

func TestCategoryDisabled(t *testing.T) {
	var count int
	Initialize(func(string, []byte) { count++ }, LevelDebug, true)
	defer Initialize(nil, LevelInfo, true)

	SetCategoryEnabled(CategoryBsave, false)
	defer SetCategoryEnabled(CategoryBsave, true)

	Get(CategoryBsave).Info("silenced")
	Get(CategoryEngine).Info("heard")

	if count != 1 {
		t.Fatalf("expected exactly 1 emitted entry, got %d", count)
	}
}
