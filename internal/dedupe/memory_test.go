package dedupe

import (
	"context"
	"sync"
	"testing"

	loggerCfg "gitlab.com/nevasik7/alerting/config"
	"gitlab.com/nevasik7/alerting/logger"
)

// --- helpers ---

func newTestLogger() logger.Logger {
	return logger.New(loggerCfg.LoggerCfg{
		Level:  "error",
		Format: "json",
	})
}

// --- tests ---

// First TryMark -> true (owns), second -> false (duplicate).
func TestMemoryDedupe_TryMarkFirstThenDuplicate(t *testing.T) {
	t.Parallel()

	m := NewInMemoryDedupe(newTestLogger())
	ctx := context.Background()
	const id = "1:0xpepe"

	first, err := m.TryMark(ctx, id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !first {
		t.Fatalf("expected first TryMark=true, got false")
	}

	first, err = m.TryMark(ctx, id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first {
		t.Fatalf("expected second TryMark=false (duplicate), got true")
	}
}

// Seen is a peek: it must never claim the id for the caller.
func TestMemoryDedupe_SeenDoesNotMark(t *testing.T) {
	t.Parallel()

	m := NewInMemoryDedupe(newTestLogger())
	ctx := context.Background()
	const id = "56:0xwolf"

	seen, err := m.Seen(ctx, id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen {
		t.Fatalf("expected Seen=false for fresh id")
	}

	// the peek above must not have inserted anything
	if first, _ := m.TryMark(ctx, id); !first {
		t.Fatalf("TryMark after peek must still be first")
	}

	if seen, _ = m.Seen(ctx, id); !seen {
		t.Fatalf("expected Seen=true after TryMark")
	}
}

func TestMemoryDedupe_ClearResets(t *testing.T) {
	t.Parallel()

	m := NewInMemoryDedupe(newTestLogger())
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if _, err := m.TryMark(ctx, id); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if n, _ := m.Len(ctx); n != 3 {
		t.Fatalf("expected Len=3, got %d", n)
	}

	if err := m.Clear(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if n, _ := m.Len(ctx); n != 0 {
		t.Fatalf("expected Len=0 after Clear, got %d", n)
	}

	// ids are first again after wholesale eviction
	if first, _ := m.TryMark(ctx, "a"); !first {
		t.Fatalf("expected TryMark=true after Clear")
	}
}

// Cuncurrency tests
func TestMemoryDedupe_ConcurrentSameID(t *testing.T) {
	t.Parallel()

	m := NewInMemoryDedupe(newTestLogger())
	ctx := context.Background()
	const id = "same-id"
	const workers = 64

	var wg sync.WaitGroup
	wg.Add(workers)

	var firstCount int64 // how true
	var dupCount int64   // how false

	var mu sync.Mutex
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			first, err := m.TryMark(ctx, id)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			mu.Lock()
			if first {
				firstCount++
			} else {
				dupCount++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	if firstCount != 1 {
		t.Fatalf("expected exactly one owner (true), got %d", firstCount)
	}
	if dupCount != workers-1 {
		t.Fatalf("expected %d duplicates (false), got %d", workers-1, dupCount)
	}
}

// Not race and panic
func TestMemoryDedupe_ConcurrentDifferentIDs(t *testing.T) {
	t.Parallel()

	m := NewInMemoryDedupe(newTestLogger())
	ctx := context.Background()

	const n = 200
	var wg sync.WaitGroup
	wg.Add(n)

	for i := 0; i < n; i++ {
		id := "id-" + suffix(i)
		go func(k string) {
			defer wg.Done()
			first, err := m.TryMark(ctx, k)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !first {
				t.Errorf("first TryMark for %s must be true", k)
			}
		}(id)
	}
	wg.Wait()

	if size, _ := m.Len(ctx); size != n {
		t.Fatalf("expected Len=%d, got %d", n, size)
	}
}

// little stable suffix don't rand
func suffix(i int) string {
	return string(rune('a'+i%26)) + string(rune('a'+(i/26)%26)) + string(rune('a'+(i/676)%26))
}
