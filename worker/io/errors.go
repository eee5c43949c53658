package workerio

import "errors"

// Sentinel errors surfaced by the write and read drivers. Per spec §4.4.1
// and §4.4.2 these map to the literal "Error: request timeout" / "Error:
// read timeout" bodies on the client↔worker wire; wire/clientproto's
// ErrorBody performs that mapping at the dispatch boundary.
var (
	// ErrWriteTimeout is returned when a write's request-wide deadline
	// (default 30s) fires before all commit/rollback acks are in.
	ErrWriteTimeout = errors.New("request timeout")

	// ErrReadTimeout is returned when a read's request-wide deadline
	// fires before every block slot is filled.
	ErrReadTimeout = errors.New("read timeout")

	// ErrAborted is returned when a write loses its prepare race against
	// another worker (spec §4.4.3): the block already carries a pending
	// log from a concurrent prepare.
	ErrAborted = errors.New("write aborted: concurrent prepare in progress")

	// ErrNoNodes is returned when a driver is configured with zero
	// storage-node hosts.
	ErrNoNodes = errors.New("workerio: no storage nodes configured")
)
