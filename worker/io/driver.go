package workerio

import (
	"sync"
	"time"

	"github.com/ssbd-io/blockplane/ids"
)

// DefaultRequestTimeout is the request-wide deadline applied to both the
// write and read drivers (spec §4.4.1.6, §4.4.2.4).
const DefaultRequestTimeout = 30 * time.Second

// Config configures a Driver.
type Config struct {
	// Hosts are the storage-node addresses, indexed the same way
	// replica.Select's nodeCount is.
	Hosts []string
	// ReplicationFactor is the number of replicas written per block
	// (spec §6.4 replication_size), at least 1.
	ReplicationFactor int
	// BlockSize is the number of bytes per block (spec §6.4 block_size).
	BlockSize uint32
	// RequestTimeout overrides DefaultRequestTimeout when non-zero.
	RequestTimeout time.Duration
}

// Driver is the worker I/O engine (C4): it drives the write and read
// paths described in spec §4.4 against a NodePool of storage-node
// connections.
type Driver struct {
	cfg  Config
	pool *NodePool

	seenMu sync.Mutex
	seen   map[ids.FileID]bool
}

// NewDriver creates a Driver. pool may be nil, in which case a fresh
// NodePool dialing cfg.Hosts lazily is created.
func NewDriver(cfg Config, pool *NodePool) *Driver {
	if cfg.ReplicationFactor < 1 {
		cfg.ReplicationFactor = 1
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if pool == nil {
		pool = NewNodePool(cfg.Hosts)
	}
	return &Driver{
		cfg:  cfg,
		pool: pool,
		seen: make(map[ids.FileID]bool),
	}
}

// Close releases the underlying node connections.
func (d *Driver) Close() error {
	return d.pool.Close()
}

// markSeen records that file has completed at least one successful write
// on this worker, enabling the fast-path prepare variant for subsequent
// writes (spec §4.4.1.7).
func (d *Driver) markSeen(file ids.FileID) {
	d.seenMu.Lock()
	d.seen[file] = true
	d.seenMu.Unlock()
}

// isSeen reports whether file has been written before on this worker.
func (d *Driver) isSeen(file ids.FileID) bool {
	d.seenMu.Lock()
	defer d.seenMu.Unlock()
	return d.seen[file]
}

// clearSeen removes file from the seen-before set; called on any abort
// (spec §4.4.1.7: "Entries are removed on any abort").
func (d *Driver) clearSeen(file ids.FileID) {
	d.seenMu.Lock()
	delete(d.seen, file)
	d.seenMu.Unlock()
}
