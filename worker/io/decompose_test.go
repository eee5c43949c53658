package workerio

import (
	"testing"

	"github.com/ssbd-io/blockplane/ids"
)

func TestDecomposeWithinOneBlock(t *testing.T) {
	got := Decompose(10, 20, 4096)
	want := []Range{{Block: 0, Offset: 10, Chunk: 20}}
	if len(got) != 1 || got[0] != want[0] {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestDecomposeAcrossBlockBoundary(t *testing.T) {
	got := Decompose(4090, 20, 4096)
	want := []Range{
		{Block: 0, Offset: 4090, Chunk: 6},
		{Block: 1, Offset: 0, Chunk: 14},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d ranges, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("range %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestDecomposeSpansManyBlocks(t *testing.T) {
	got := Decompose(0, 4096*3, 4096)
	if len(got) != 3 {
		t.Fatalf("expected 3 ranges, got %d", len(got))
	}
	for i, r := range got {
		if r.Block != ids.BlockID(i) || r.Offset != 0 || r.Chunk != 4096 {
			t.Fatalf("range %d unexpected: %+v", i, r)
		}
	}
}

func TestDecomposeZeroSize(t *testing.T) {
	if got := Decompose(0, 0, 4096); got != nil {
		t.Fatalf("expected nil for zero size, got %+v", got)
	}
}

func TestSliceForRange(t *testing.T) {
	payload := []byte("0123456789")
	rng := Range{Block: 1, Offset: 2, Chunk: 4}
	// position=6, blockSize=4 -> absolute start = 1*4+2=6, matches position.
	got := SliceForRange(payload, 6, 4, rng)
	if string(got) != "0123" {
		t.Fatalf("got %q, want %q", got, "0123")
	}
}
