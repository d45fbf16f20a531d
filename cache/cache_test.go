package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/adrg/xdg"

	"github.com/scipunch/feedsorter/item"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testItems() []item.Item {
	return []item.Item{
		{Timestamp: time.Unix(100, 0).UTC(), Author: "alice", Text: "first", Link: "https://example.com/1"},
		{Timestamp: time.Unix(90, 0).UTC(), Author: "", Text: "second", Link: "https://example.com/2"},
	}
}

func assertSameItems(t *testing.T, got, want []item.Item) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d items, got %d", len(want), len(got))
	}
	for i := range want {
		if !got[i].Timestamp.Equal(want[i].Timestamp) ||
			got[i].Author != want[i].Author ||
			got[i].Text != want[i].Text ||
			got[i].Link != want[i].Link {
			t.Errorf("item %d mismatch: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func newTestSQLiteStore(t *testing.T, clock *fakeClock) *SQLiteStore {
	t.Helper()
	cachePath := filepath.Join(t.TempDir(), "test_cache.db")

	store, err := NewSQLiteStore(cachePath, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNewSQLiteStore(t *testing.T) {
	tmpDir := t.TempDir()
	cachePath := filepath.Join(tmpDir, "nested", "test_cache.db")

	store, err := NewSQLiteStore(cachePath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	// Verify database file was created
	if _, err := os.Stat(cachePath); os.IsNotExist(err) {
		t.Error("Cache database file was not created")
	}
}

func TestSQLiteStore_PutAndGet(t *testing.T) {
	clock := newFakeClock()
	store := newTestSQLiteStore(t, clock)
	ctx := context.Background()

	err := store.Put(ctx, "hn", Entry{ETag: `"abc"`, Items: testItems()})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	entry, found, err := store.Get(ctx, "hn")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !found {
		t.Fatal("Expected cache hit, got miss")
	}
	if entry.ETag != `"abc"` {
		t.Errorf("ETag mismatch: got %q", entry.ETag)
	}
	if !entry.WrittenAt.Equal(clock.Now()) {
		t.Errorf("WrittenAt mismatch: got %v, want %v", entry.WrittenAt, clock.Now())
	}
	assertSameItems(t, entry.Items, testItems())
}

func TestSQLiteStore_Miss(t *testing.T) {
	store := newTestSQLiteStore(t, newFakeClock())
	ctx := context.Background()

	_, found, err := store.Get(ctx, "nonexistent")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if found {
		t.Error("Expected cache miss, got hit")
	}

	_, found, err = store.Age(ctx, "nonexistent")
	if err != nil {
		t.Fatalf("Age failed: %v", err)
	}
	if found {
		t.Error("Expected no age for missing entry")
	}
}

func TestSQLiteStore_EmptyItemList(t *testing.T) {
	store := newTestSQLiteStore(t, newFakeClock())
	ctx := context.Background()

	if err := store.Put(ctx, "empty", Entry{}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	entry, found, err := store.Get(ctx, "empty")
	if err != nil || !found {
		t.Fatalf("expected hit, got found=%v err=%v", found, err)
	}
	if len(entry.Items) != 0 {
		t.Errorf("expected no items, got %d", len(entry.Items))
	}
}

func TestSQLiteStore_OverwriteReplacesAllItems(t *testing.T) {
	store := newTestSQLiteStore(t, newFakeClock())
	ctx := context.Background()

	store.Put(ctx, "hn", Entry{ETag: "v1", Items: testItems()})

	replacement := []item.Item{{Timestamp: time.Unix(200, 0).UTC(), Text: "only", Link: "https://example.com/3"}}
	if err := store.Put(ctx, "hn", Entry{ETag: "v2", Items: replacement}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	entry, found, _ := store.Get(ctx, "hn")
	if !found {
		t.Fatal("Expected cache hit")
	}
	if entry.ETag != "v2" {
		t.Errorf("Expected updated etag, got %q", entry.ETag)
	}
	assertSameItems(t, entry.Items, replacement)
}

func TestSQLiteStore_SourcesAreIndependent(t *testing.T) {
	store := newTestSQLiteStore(t, newFakeClock())
	ctx := context.Background()

	store.Put(ctx, "a", Entry{ETag: "a", Items: testItems()})
	store.Put(ctx, "b", Entry{ETag: "b", Items: testItems()[:1]})

	a, _, _ := store.Get(ctx, "a")
	b, _, _ := store.Get(ctx, "b")
	if len(a.Items) != 2 || len(b.Items) != 1 {
		t.Errorf("entries leaked into each other: a=%d b=%d", len(a.Items), len(b.Items))
	}
}

func TestSQLiteStore_AgeAndTouch(t *testing.T) {
	clock := newFakeClock()
	store := newTestSQLiteStore(t, clock)
	ctx := context.Background()

	store.Put(ctx, "hn", Entry{ETag: "v1", Items: testItems()})
	clock.Advance(45 * time.Minute)

	age, found, err := store.Age(ctx, "hn")
	if err != nil || !found {
		t.Fatalf("Age failed: found=%v err=%v", found, err)
	}
	if age != 45*time.Minute {
		t.Errorf("expected age 45m, got %v", age)
	}

	if err := store.Touch(ctx, "hn"); err != nil {
		t.Fatalf("Touch failed: %v", err)
	}

	age, _, _ = store.Age(ctx, "hn")
	if age != 0 {
		t.Errorf("expected age to reset to zero, got %v", age)
	}

	entry, _, _ := store.Get(ctx, "hn")
	if entry.ETag != "v1" {
		t.Errorf("Touch must not alter contents, etag=%q", entry.ETag)
	}
	assertSameItems(t, entry.Items, testItems())
}

func TestSQLiteStore_TouchMissingIsNoop(t *testing.T) {
	store := newTestSQLiteStore(t, newFakeClock())
	ctx := context.Background()

	if err := store.Touch(ctx, "ghost"); err != nil {
		t.Fatalf("Touch failed: %v", err)
	}
	if _, found, _ := store.Get(ctx, "ghost"); found {
		t.Error("Touch must not create entries")
	}
}

func TestSQLiteStore_ClosedStoreIsUnavailable(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), "test_cache.db")
	store, err := NewSQLiteStore(cachePath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	store.Close()

	_, _, err = store.Get(context.Background(), "hn")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got %v", err)
	}

	err = store.Put(context.Background(), "hn", Entry{})
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestSQLiteStore_ConcurrentWritesSameID(t *testing.T) {
	store := newTestSQLiteStore(t, newFakeClock())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := store.Put(ctx, "hn", Entry{ETag: "same", Items: testItems()}); err != nil {
				t.Errorf("Put failed: %v", err)
			}
		}()
	}
	wg.Wait()

	entry, found, err := store.Get(ctx, "hn")
	if err != nil || !found {
		t.Fatalf("expected hit, got found=%v err=%v", found, err)
	}
	assertSameItems(t, entry.Items, testItems())
}

func TestClear(t *testing.T) {
	store := newTestSQLiteStore(t, newFakeClock())
	ctx := context.Background()

	store.Put(ctx, "a", Entry{Items: testItems()})
	store.Put(ctx, "b", Entry{Items: testItems()})

	stats, _ := store.Stats(ctx)
	if stats.Entries != 2 {
		t.Errorf("Expected 2 entries, got %d", stats.Entries)
	}
	if stats.Items != 4 {
		t.Errorf("Expected 4 items, got %d", stats.Items)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	stats, _ = store.Stats(ctx)
	if stats.Entries != 0 || stats.Items != 0 {
		t.Errorf("Expected empty cache after clear, got %+v", stats)
	}
}

func TestStats(t *testing.T) {
	clock := newFakeClock()
	store := newTestSQLiteStore(t, clock)
	ctx := context.Background()

	// Initially empty
	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Entries != 0 || !stats.OldestWrite.IsZero() {
		t.Error("Expected empty cache initially")
	}

	store.Put(ctx, "a", Entry{Items: testItems()})
	first := clock.Now()
	clock.Advance(time.Hour)
	store.Put(ctx, "b", Entry{Items: testItems()[:1]})

	stats, err = store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Entries != 2 {
		t.Errorf("Expected 2 entries, got %d", stats.Entries)
	}
	if stats.Items != 3 {
		t.Errorf("Expected 3 items, got %d", stats.Items)
	}
	if !stats.OldestWrite.Equal(first) {
		t.Errorf("Expected OldestWrite %v, got %v", first, stats.OldestWrite)
	}
}

func TestDefaultCachePath(t *testing.T) {
	t.Cleanup(xdg.Reload)

	t.Setenv("XDG_CACHE_HOME", "/tmp/xdg-cache")
	xdg.Reload()
	if got := DefaultCachePath(); got != "/tmp/xdg-cache/feedsorter/cache.db" {
		t.Errorf("unexpected path %q", got)
	}

	t.Setenv("XDG_CACHE_HOME", "")
	t.Setenv("HOME", "/home/tester")
	xdg.Reload()
	if got := DefaultCachePath(); got != "/home/tester/.cache/feedsorter/cache.db" {
		t.Errorf("unexpected path %q", got)
	}
}

func TestDecodeRecord_RejectsUnknownVersion(t *testing.T) {
	_, err := DecodeRecord([]byte(`{"version": 99, "items": []}`))
	if err == nil {
		t.Fatal("expected version error")
	}

	_, err = DecodeRecord([]byte(`not json`))
	if err == nil {
		t.Fatal("expected decode error")
	}
}
