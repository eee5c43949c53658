package blockstore

import "errors"

// Sentinel errors surfaced by Store implementations. Per spec §7, these
// never cross the wire directly -- the protocol server (C2) maps them to
// an Err packet or an "Error: <reason>" body.
var (
	// ErrBackendNotSupported is returned by a tagged-variant backend that
	// is declared but not implemented (cassandra, swift -- spec §6.4,
	// §9: "only the SSBD variant is required for the core; others may be
	// stubbed").
	ErrBackendNotSupported = errors.New("blockstore: backend not supported")

	// ErrClosed is returned when an operation is attempted on a closed
	// store.
	ErrClosed = errors.New("blockstore: store is closed")
)
