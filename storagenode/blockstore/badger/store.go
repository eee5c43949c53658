// Package badger implements the SSBD block-store backend (spec §6.4:
// storage_type=ssbd) over github.com/dgraph-io/badger/v4, the same embedded
// KV engine the teacher repo uses for its metadata store
// (pkg/metadata/store/badger). This is the required core backend; every
// other backend in storagenode/blockstore is optional.
package badger

import (
	"context"
	"fmt"
	"strconv"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/ssbd-io/blockplane/ids"
	"github.com/ssbd-io/blockplane/internal/logger"
	"github.com/ssbd-io/blockplane/storagenode/blockstore"
)

// Store is a Badger-backed blockstore.Store.
type Store struct {
	db *badgerdb.DB
}

// Config configures the Badger backend.
type Config struct {
	// Dir is the on-disk directory for the Badger database.
	Dir string
	// InMemory runs Badger without persisting to disk, for tests.
	InMemory bool
}

// Open creates or opens a Badger-backed block store.
func Open(cfg Config) (*Store, error) {
	opts := badgerdb.DefaultOptions(cfg.Dir)
	opts = opts.WithLogger(nil)
	if cfg.InMemory {
		opts = opts.WithInMemory(true)
	}

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open: %w", err)
	}

	return &Store{db: db}, nil
}

// Close implements blockstore.Store.
func (s *Store) Close() error {
	return s.db.Close()
}

var _ blockstore.Store = (*Store)(nil)

// ============================================================================
// Key layout (spec §6.3)
// ============================================================================

func keyCommitted(file ids.FileID, block ids.BlockID) []byte {
	return blockPrefix(file, block)
}

func keyReplica(file ids.FileID, block ids.BlockID) []byte {
	return append(blockPrefix(file, block), "repl"...)
}

func keyCommittedVersion(file ids.FileID, block ids.BlockID) []byte {
	return append(blockPrefix(file, block), "-committed-version"...)
}

func keyPendingVersion(file ids.FileID, block ids.BlockID) []byte {
	return append(blockPrefix(file, block), "-version"...)
}

func keyPendingData(file ids.FileID, block ids.BlockID) []byte {
	return append(blockPrefix(file, block), "-data"...)
}

// blockPrefix is <uuid><blockid>, the shared <uuid><blockid> prefix every
// per-block key in §6.3 is built from.
func blockPrefix(file ids.FileID, block ids.BlockID) []byte {
	buf := make([]byte, 0, ids.FileIDSize+4)
	buf = append(buf, file[:]...)
	buf = append(buf, byte(block>>24), byte(block>>16), byte(block>>8), byte(block))
	return buf
}

func encodeVersion(v ids.Version) []byte {
	return []byte(strconv.FormatUint(uint64(v), 10))
}

func decodeVersion(b []byte) (ids.Version, error) {
	n, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("badger: decode version %q: %w", b, err)
	}
	return ids.Version(n), nil
}

// ============================================================================
// Helpers
// ============================================================================

func getBytes(txn *badgerdb.Txn, key []byte) ([]byte, bool, error) {
	item, err := txn.Get(key)
	if err == badgerdb.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var out []byte
	err = item.Value(func(val []byte) error {
		out = append([]byte(nil), val...)
		return nil
	})
	return out, true, err
}

func getVersion(txn *badgerdb.Txn, key []byte) (ids.Version, bool, error) {
	raw, ok, err := getBytes(txn, key)
	if err != nil || !ok {
		return 0, ok, err
	}
	v, err := decodeVersion(raw)
	return v, true, err
}

// ============================================================================
// Operations (spec §4.1)
// ============================================================================

// Prepare implements blockstore.Store.
func (s *Store) Prepare(ctx context.Context, file ids.FileID, block ids.BlockID, offset ids.Offset, payload []byte, version ids.Version) (blockstore.PrepareResult, error) {
	if err := ctx.Err(); err != nil {
		return blockstore.PrepareResult{}, err
	}

	var result blockstore.PrepareResult

	err := s.retryOnConflict(func() error {
		return s.db.Update(func(txn *badgerdb.Txn) error {
			committedPayload, _, err := getBytes(txn, keyCommitted(file, block))
			if err != nil {
				return err
			}
			committedVersion, _, err := getVersion(txn, keyCommittedVersion(file, block))
			if err != nil {
				return err
			}
			pendingVersion, _, err := getVersion(txn, keyPendingVersion(file, block))
			if err != nil {
				return err
			}

			if ids.IsPending(pendingVersion, committedVersion) {
				result = blockstore.PrepareResult{Outcome: blockstore.Abort, CommittedVersion: committedVersion}
				return nil
			}

			candidate := blockstore.Overlay(committedPayload, offset, payload)

			if err := txn.Set(keyPendingData(file, block), candidate); err != nil {
				return err
			}
			if err := txn.Set(keyPendingVersion(file, block), encodeVersion(version)); err != nil {
				return err
			}
			// Ensure a committed-version record exists on first use, so
			// IsPending's comparisons against committedVersion are well
			// defined (Absent -> Empty(committed_v=0), spec §4.1 state
			// machine).
			if _, exists, err := getVersion(txn, keyCommittedVersion(file, block)); err != nil {
				return err
			} else if !exists {
				if err := txn.Set(keyCommittedVersion(file, block), encodeVersion(0)); err != nil {
					return err
				}
				if err := txn.Set(keyCommitted(file, block), []byte{}); err != nil {
					return err
				}
			}

			result = blockstore.PrepareResult{Outcome: blockstore.Agree, CommittedVersion: committedVersion}
			return nil
		})
	})
	if err != nil {
		return blockstore.PrepareResult{}, err
	}
	return result, nil
}

// Commit implements blockstore.Store.
func (s *Store) Commit(ctx context.Context, file ids.FileID, block ids.BlockID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.retryOnConflict(func() error {
		return s.db.Update(func(txn *badgerdb.Txn) error {
			pendingVersion, hasPending, err := getVersion(txn, keyPendingVersion(file, block))
			if err != nil {
				return err
			}
			if !hasPending || pendingVersion == 0 {
				// Already committed (or never prepared): idempotent no-op,
				// per spec §4.1 "Idempotent on retries from the same
				// version."
				return nil
			}

			pendingData, _, err := getBytes(txn, keyPendingData(file, block))
			if err != nil {
				return err
			}

			if err := txn.Set(keyCommitted(file, block), pendingData); err != nil {
				return err
			}
			if err := txn.Set(keyCommittedVersion(file, block), encodeVersion(pendingVersion)); err != nil {
				return err
			}
			if err := txn.Set(keyPendingVersion(file, block), encodeVersion(0)); err != nil {
				return err
			}
			return nil
		})
	})
}

// Rollback implements blockstore.Store.
func (s *Store) Rollback(ctx context.Context, file ids.FileID, block ids.BlockID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.retryOnConflict(func() error {
		return s.db.Update(func(txn *badgerdb.Txn) error {
			return txn.Set(keyPendingVersion(file, block), encodeVersion(0))
		})
	})
}

// Replicate implements blockstore.Store.
func (s *Store) Replicate(ctx context.Context, file ids.FileID, block ids.BlockID, offset ids.Offset, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.retryOnConflict(func() error {
		return s.db.Update(func(txn *badgerdb.Txn) error {
			existing, _, err := getBytes(txn, keyReplica(file, block))
			if err != nil {
				return err
			}
			candidate := blockstore.Overlay(existing, offset, payload)
			return txn.Set(keyReplica(file, block), candidate)
		})
	})
}

// Get implements blockstore.Store.
func (s *Store) Get(ctx context.Context, file ids.FileID, block ids.BlockID, offset ids.Offset, size uint32) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []byte
	err := s.db.View(func(txn *badgerdb.Txn) error {
		committed, _, err := getBytes(txn, keyCommitted(file, block))
		if err != nil {
			return err
		}

		start := int(offset)
		if start >= len(committed) {
			out = nil
			return nil
		}
		end := start + int(size)
		if end > len(committed) {
			end = len(committed)
		}
		out = append([]byte(nil), committed[start:end]...)
		return nil
	})
	return out, err
}

// retryOnConflict retries fn a small bounded number of times when Badger
// reports an optimistic-transaction conflict between two concurrent
// updates to the same block (spec §5: the KV is the sole writer of block
// records, serialized by the KV itself).
func (s *Store) retryOnConflict(fn func() error) error {
	const maxAttempts = 5
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = fn()
		if err != badgerdb.ErrConflict {
			return err
		}
		logger.Debug("badger: retrying after transaction conflict", "attempt", attempt+1)
	}
	return err
}
