package cache

import (
	"testing"

	"github.com/ssbd-io/blockplane/ids"
)

func testFile(fill byte) ids.FileID {
	var f ids.FileID
	for i := range f {
		f[i] = fill
	}
	return f
}

func TestTryReadMissWithoutEntry(t *testing.T) {
	c := New(Config{Policy: "NONE"})
	if _, ok := c.TryRead(testFile(1), 0, 10); ok {
		t.Fatalf("expected miss for unknown file")
	}
}

func TestInsertThenTryReadHit(t *testing.T) {
	c := New(Config{Policy: "NONE"})
	file := testFile(2)

	c.Insert(file, 10, 5, []byte("abcde"))

	got, ok := c.TryRead(file, 10, 5)
	if !ok {
		t.Fatalf("expected hit")
	}
	if string(got) != "abcde" {
		t.Fatalf("got %q, want %q", got, "abcde")
	}
}

func TestTryReadMissOnPartialOverlap(t *testing.T) {
	c := New(Config{Policy: "NONE"})
	file := testFile(3)

	c.Insert(file, 0, 10, []byte("0123456789"))

	// Request spans beyond the single logged range.
	if _, ok := c.TryRead(file, 5, 10); ok {
		t.Fatalf("expected miss for a range not fully covered by one log entry")
	}
}

func TestTryReadHitsAcrossMultipleInserts(t *testing.T) {
	c := New(Config{Policy: "NONE"})
	file := testFile(4)

	c.Insert(file, 0, 5, []byte("abcde"))
	c.Insert(file, 5, 5, []byte("fghij"))

	// Neither single logged range covers [2,8), so this must still miss
	// per spec: coverage is per logged range, not a merged view.
	if _, ok := c.TryRead(file, 2, 6); ok {
		t.Fatalf("expected miss: no single range log entry covers [2,8)")
	}

	got, ok := c.TryRead(file, 5, 5)
	if !ok || string(got) != "fghij" {
		t.Fatalf("expected hit on exact second range, got %q ok=%v", got, ok)
	}
}

func TestFrequencyCounterIncrementsOnEveryLookup(t *testing.T) {
	c := New(Config{Policy: "NONE"})
	file := testFile(5)
	c.Insert(file, 0, 3, []byte("xyz"))

	c.TryRead(file, 0, 3)
	c.TryRead(file, 0, 3)
	c.TryRead(file, 100, 3) // still a lookup against the same entry (miss)

	if got := c.Frequency(file); got != 3 {
		t.Fatalf("expected frequency 3, got %d", got)
	}
}

func TestLRUEvictsLeastRecentlyUsedFile(t *testing.T) {
	c := New(Config{Policy: "LRU", MaxBytes: 12})
	a, b := testFile(0xA), testFile(0xB)

	c.Insert(a, 0, 6, []byte("aaaaaa"))
	c.TryRead(a, 0, 6) // bump a's lastAccess after insert

	c.Insert(b, 0, 6, []byte("bbbbbb"))
	// total is now 12, at budget; a further insert on b should stay
	// under budget without evicting b itself preferentially.

	c.Insert(b, 0, 6, []byte("cccccc")) // overwritten same range, no growth

	stats := c.Stats()
	if stats.TotalBytes > 12 {
		// Re-inserting the same range must not grow the total.
		t.Fatalf("unexpected total bytes %d", stats.TotalBytes)
	}

	c2 := New(Config{Policy: "LRU", MaxBytes: 10})
	c2.Insert(a, 0, 6, []byte("aaaaaa"))
	c2.Insert(b, 0, 6, []byte("bbbbbb")) // pushes total to 12 > 10, evicts LRU (a)

	if _, ok := c2.TryRead(a, 0, 6); ok {
		t.Fatalf("expected a to have been evicted as LRU")
	}
	if _, ok := c2.TryRead(b, 0, 6); !ok {
		t.Fatalf("expected b to remain cached")
	}
}

func TestNonePolicyNeverEvicts(t *testing.T) {
	c := New(Config{Policy: "NONE", MaxBytes: 4})
	a, b := testFile(1), testFile(2)

	c.Insert(a, 0, 6, []byte("aaaaaa"))
	c.Insert(b, 0, 6, []byte("bbbbbb"))

	if _, ok := c.TryRead(a, 0, 6); !ok {
		t.Fatalf("NONE policy must not evict despite exceeding budget")
	}
	if _, ok := c.TryRead(b, 0, 6); !ok {
		t.Fatalf("NONE policy must not evict despite exceeding budget")
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	c := New(Config{Policy: "LRU"})
	file := testFile(9)
	c.Insert(file, 0, 4, []byte("wxyz"))

	digests := c.Export()
	if len(digests) != 1 || digests[0].File != file {
		t.Fatalf("unexpected export: %+v", digests)
	}

	c2 := New(Config{Policy: "LRU"})
	c2.Import(digests)

	got, ok := c2.TryRead(file, 0, 4)
	if !ok || string(got) != "wxyz" {
		t.Fatalf("expected imported cache to hit, got %q ok=%v", got, ok)
	}
}
