// Package unsupported provides named, non-functional blockstore.Store
// stand-ins for the storage_type values spec §6.4 enumerates but does not
// require a working implementation for (cassandra, swift). Every method
// returns blockstore.ErrBackendNotSupported; the type exists so
// blockstore.Open can route these storage_type values without the
// badger/s3 packages needing to know about variants they don't implement.
package unsupported

import (
	"context"

	"github.com/ssbd-io/blockplane/ids"
	"github.com/ssbd-io/blockplane/storagenode/blockstore"
)

// Store is a stub blockstore.Store backing an unimplemented storage_type.
type Store struct {
	// Backend names the storage_type this stub stands in for, used only in
	// error messages and logs.
	Backend string
}

// New returns a Store stubbing the named backend.
func New(backend string) *Store {
	return &Store{Backend: backend}
}

var _ blockstore.Store = (*Store)(nil)

func (s *Store) Prepare(ctx context.Context, file ids.FileID, block ids.BlockID, offset ids.Offset, payload []byte, version ids.Version) (blockstore.PrepareResult, error) {
	return blockstore.PrepareResult{}, blockstore.ErrBackendNotSupported
}

func (s *Store) Commit(ctx context.Context, file ids.FileID, block ids.BlockID) error {
	return blockstore.ErrBackendNotSupported
}

func (s *Store) Rollback(ctx context.Context, file ids.FileID, block ids.BlockID) error {
	return blockstore.ErrBackendNotSupported
}

func (s *Store) Replicate(ctx context.Context, file ids.FileID, block ids.BlockID, offset ids.Offset, payload []byte) error {
	return blockstore.ErrBackendNotSupported
}

func (s *Store) Get(ctx context.Context, file ids.FileID, block ids.BlockID, offset ids.Offset, size uint32) ([]byte, error) {
	return nil, blockstore.ErrBackendNotSupported
}

func (s *Store) Close() error {
	return nil
}
