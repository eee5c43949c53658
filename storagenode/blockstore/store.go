// Package blockstore defines the storage-node block engine contract (spec
// §4.1, C1): a versioned 2PC participant over a persistent key-value store,
// with a primary (versioned, 2PC-participating) record per block and a
// write-forward replica copy.
//
// Store is a tagged-variant seam (spec §9 design notes): the badger
// subpackage is the required SSBD backend; the s3 subpackage is a fully
// implemented alternate backend; cassandra and swift remain named but
// unimplemented, per spec §6.4's storage_type enum.
package blockstore

import (
	"context"

	"github.com/ssbd-io/blockplane/ids"
)

// Outcome is the result of a Prepare call.
type Outcome int

const (
	// Agree indicates the prepare succeeded and a commit may follow.
	Agree Outcome = iota
	// Abort indicates a pending log already existed for this block; the
	// caller must choose a fresh version and retry (spec §4.1).
	Abort
)

func (o Outcome) String() string {
	if o == Agree {
		return "Agree"
	}
	return "Abort"
}

// PrepareResult is the return value of Prepare.
type PrepareResult struct {
	Outcome Outcome
	// CommittedVersion is the block's committed version at the time of the
	// call, returned in both the Agree and Abort cases (spec §4.1).
	CommittedVersion ids.Version
}

// Store is the per-node block engine contract implemented by each backend.
// All methods are safe for concurrent use across distinct (file, block)
// keys; the backend is responsible for serializing concurrent access to the
// same key (spec §5: "the local KV ... is the sole writer of block
// records, serialized by the KV itself").
type Store interface {
	// Prepare stages payload at offset as the pending write for version,
	// per the state machine in spec §4.1. It creates the block record on
	// first use.
	Prepare(ctx context.Context, file ids.FileID, block ids.BlockID, offset ids.Offset, payload []byte, version ids.Version) (PrepareResult, error)

	// Commit promotes the pending write to committed. It is idempotent:
	// calling Commit again after a pending log has already been cleared is
	// a no-op success.
	Commit(ctx context.Context, file ids.FileID, block ids.BlockID) error

	// Rollback clears the pending log without touching the committed
	// payload. It is idempotent.
	Rollback(ctx context.Context, file ids.FileID, block ids.BlockID) error

	// Replicate blindly overlays payload at offset in the replica copy of
	// (file, block). No version is consulted or stored; the last writer
	// wins (spec §4.1).
	Replicate(ctx context.Context, file ids.FileID, block ids.BlockID, offset ids.Offset, payload []byte) error

	// Get returns payload[offset : offset+size] from the committed record.
	// A short result (fewer than size bytes) is permitted only when the
	// block is shorter than offset+size (spec §4.1).
	Get(ctx context.Context, file ids.FileID, block ids.BlockID, offset ids.Offset, size uint32) ([]byte, error)

	// Close releases backend resources.
	Close() error
}

// overlay returns a buffer at least offset+len(payload) bytes long,
// containing base's bytes followed by zero padding and payload written at
// offset. This implements the "candidate payload" construction shared by
// Prepare and Replicate (spec §4.1: "form the candidate payload by taking
// the larger of current committed length and offset + |payload|").
func overlay(base []byte, offset ids.Offset, payload []byte) []byte {
	newLen := len(base)
	end := int(offset) + len(payload)
	if end > newLen {
		newLen = end
	}

	out := make([]byte, newLen)
	copy(out, base)
	copy(out[offset:], payload)
	return out
}

// Overlay exports overlay for backends implemented outside this package.
func Overlay(base []byte, offset ids.Offset, payload []byte) []byte {
	return overlay(base, offset, payload)
}
