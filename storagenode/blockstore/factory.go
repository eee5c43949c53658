package blockstore

import (
	"context"
	"fmt"

	"github.com/ssbd-io/blockplane/storagenode/blockstore/badger"
	"github.com/ssbd-io/blockplane/storagenode/blockstore/s3"
	"github.com/ssbd-io/blockplane/storagenode/blockstore/unsupported"
)

// Open builds the Store named by storageType (spec §6.4's storage_type
// enum). Only "ssbd" (badger) is part of the core; "s3" is a fully
// implemented alternate backend; "cassandra" and "swift" are named but
// return ErrBackendNotSupported from every operation.
func Open(storageType string, dataDir string) (Store, error) {
	switch storageType {
	case "ssbd", "":
		return badger.Open(badger.Config{Dir: dataDir})
	case "s3":
		return nil, fmt.Errorf("blockstore: s3 backend requires OpenS3, not Open")
	case "cassandra":
		return &unsupported.Store{Backend: "cassandra"}, nil
	case "swift":
		return &unsupported.Store{Backend: "swift"}, nil
	default:
		return nil, fmt.Errorf("blockstore: unknown storage_type %q", storageType)
	}
}

// OpenS3 builds the S3-backed Store directly, since it needs more than a
// directory path to configure.
func OpenS3(ctx context.Context, cfg s3.Config) (Store, error) {
	return s3.NewFromConfig(ctx, cfg)
}
