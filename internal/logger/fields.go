package logger

import (
	"fmt"
	"log/slog"
)

// Standard field keys for structured logging.
// These keys are shared across the storage node, worker, and proxy tiers so
// log aggregation and querying stay consistent regardless of which process
// emitted the line.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Identity (file / block / replica / node)
	// ========================================================================
	KeyFileID       = "file_id"       // FileId a request or cache entry belongs to
	KeyBlockID      = "block_id"      // Block index within a file
	KeyVersion      = "version"       // 2PC block version
	KeyReplicaIndex = "replica_index" // Which replica of a block (0..replication_size-1)
	KeyNodeAddr     = "node_addr"     // Storage-node address a block lives on
	KeyWorkerID     = "worker_id"     // Worker control-channel identity (ip:port)
	KeyProxyID      = "proxy_id"      // Ring member identity, hex-encoded

	// ========================================================================
	// Operation
	// ========================================================================
	KeyOp        = "op"         // read or write
	KeyPosition  = "position"   // Byte position within a file
	KeySize      = "size"       // Byte count requested or carried
	KeyStatus    = "status"     // Operation status code
	KeyStatusMsg = "status_msg" // Human-readable status message
	KeyOperation = "operation"  // Sub-operation type for a compound dispatch (prepare, commit, rollback)

	// ========================================================================
	// I/O
	// ========================================================================
	KeyBytesRead    = "bytes_read"    // Actual bytes read
	KeyBytesWritten = "bytes_written" // Actual bytes written

	// ========================================================================
	// Client / connection
	// ========================================================================
	KeyClientIP     = "client_ip"     // Client IP address
	KeyClientPort   = "client_port"   // Client source port
	KeyRemoteAddr   = "remote_addr"   // Remote peer address (generic)
	KeyConnectionID = "connection_id" // Connection identifier
	KeySequence     = "sequence"      // Dialect-A sequence number

	// ========================================================================
	// Operation metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyErrorCode  = "error_code"  // Numeric error code
	KeySource     = "source"      // Data source: cache, driver, replica
	KeyAttempt    = "attempt"     // Retry attempt number
	KeyMaxRetries = "max_retries" // Maximum retry attempts

	// ========================================================================
	// Storage backend
	// ========================================================================
	KeyStoreType = "store_type" // Backend tag: ssbd, s3, cassandra, swift
	KeyBucket    = "bucket"     // Cloud bucket name (S3)
	KeyRegion    = "region"     // Cloud region

	// ========================================================================
	// Cache layer
	// ========================================================================
	KeyCacheHit      = "cache_hit"      // Cache hit indicator
	KeyCachePolicy   = "cache_policy"   // Eviction policy tag
	KeyCacheSize     = "cache_size"     // Current cache size in bytes
	KeyCacheCapacity = "cache_capacity" // Maximum cache capacity in bytes
	KeyEvicted       = "evicted"        // Number of entries evicted

	// ========================================================================
	// Worker control channel (C8)
	// ========================================================================
	KeyState      = "state"       // Control-channel FSM state
	KeyDeadlineMs = "deadline_ms" // Keepalive deadline in milliseconds

	// ========================================================================
	// 2PC outcome
	// ========================================================================
	KeyAgreed = "agreed" // Prepare outcome: true (agree) or false (abort)
)

// ============================================================================
// Field constructors for type safety
// ============================================================================

// TraceID returns a slog.Attr for OpenTelemetry trace ID.
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for OpenTelemetry span ID.
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// FileID returns a slog.Attr for a FileId, formatted via its own String.
func FileID(id fmt.Stringer) slog.Attr {
	return slog.String(KeyFileID, id.String())
}

// BlockID returns a slog.Attr for a block index.
func BlockID(id uint32) slog.Attr {
	return slog.Uint64(KeyBlockID, uint64(id))
}

// Version returns a slog.Attr for a 2PC block version.
func Version(v uint64) slog.Attr {
	return slog.Uint64(KeyVersion, v)
}

// ReplicaIndex returns a slog.Attr for a replica's position among its peers.
func ReplicaIndex(i uint32) slog.Attr {
	return slog.Uint64(KeyReplicaIndex, uint64(i))
}

// NodeAddr returns a slog.Attr for a storage-node address.
func NodeAddr(addr string) slog.Attr {
	return slog.String(KeyNodeAddr, addr)
}

// WorkerID returns a slog.Attr for a worker's control-channel identity.
func WorkerID(addr string) slog.Attr {
	return slog.String(KeyWorkerID, addr)
}

// ProxyID returns a slog.Attr for a ring member identity.
func ProxyID(hex string) slog.Attr {
	return slog.String(KeyProxyID, hex)
}

// Op returns a slog.Attr for a request's read/write kind.
func Op(op string) slog.Attr {
	return slog.String(KeyOp, op)
}

// Position returns a slog.Attr for a byte position within a file.
func Position(p uint64) slog.Attr {
	return slog.Uint64(KeyPosition, p)
}

// Size returns a slog.Attr for a byte count.
func Size(s uint64) slog.Attr {
	return slog.Uint64(KeySize, s)
}

// Status returns a slog.Attr for an operation status code.
func Status(code int) slog.Attr {
	return slog.Int(KeyStatus, code)
}

// StatusMsg returns a slog.Attr for a human-readable status message.
func StatusMsg(msg string) slog.Attr {
	return slog.String(KeyStatusMsg, msg)
}

// Operation returns a slog.Attr for a sub-operation type.
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// BytesRead returns a slog.Attr for actual bytes read.
func BytesRead(n int) slog.Attr {
	return slog.Int(KeyBytesRead, n)
}

// BytesWritten returns a slog.Attr for actual bytes written.
func BytesWritten(n int) slog.Attr {
	return slog.Int(KeyBytesWritten, n)
}

// ClientIP returns a slog.Attr for a client IP address.
func ClientIP(addr string) slog.Attr {
	return slog.String(KeyClientIP, addr)
}

// ClientPort returns a slog.Attr for a client source port.
func ClientPort(port int) slog.Attr {
	return slog.Int(KeyClientPort, port)
}

// RemoteAddr returns a slog.Attr for a remote peer address.
func RemoteAddr(addr string) slog.Attr {
	return slog.String(KeyRemoteAddr, addr)
}

// ConnectionID returns a slog.Attr for a connection identifier.
func ConnectionID(id string) slog.Attr {
	return slog.String(KeyConnectionID, id)
}

// Sequence returns a slog.Attr for a dialect-A sequence number.
func Sequence(seq uint32) slog.Attr {
	return slog.Uint64(KeySequence, uint64(seq))
}

// DurationMs returns a slog.Attr for a duration in milliseconds.
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error, or a zero Attr for a nil error.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ErrorCode returns a slog.Attr for a numeric error code.
func ErrorCode(code int) slog.Attr {
	return slog.Int(KeyErrorCode, code)
}

// Source returns a slog.Attr for a data source (cache, driver, replica).
func Source(src string) slog.Attr {
	return slog.String(KeySource, src)
}

// Attempt returns a slog.Attr for a retry attempt number.
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// MaxRetries returns a slog.Attr for the maximum retry attempts.
func MaxRetries(n int) slog.Attr {
	return slog.Int(KeyMaxRetries, n)
}

// StoreType returns a slog.Attr for the storage backend tag.
func StoreType(t string) slog.Attr {
	return slog.String(KeyStoreType, t)
}

// Bucket returns a slog.Attr for a cloud bucket name.
func Bucket(name string) slog.Attr {
	return slog.String(KeyBucket, name)
}

// Region returns a slog.Attr for a cloud region.
func Region(r string) slog.Attr {
	return slog.String(KeyRegion, r)
}

// CacheHit returns a slog.Attr for a cache hit indicator.
func CacheHit(hit bool) slog.Attr {
	return slog.Bool(KeyCacheHit, hit)
}

// CachePolicy returns a slog.Attr for the eviction policy tag.
func CachePolicy(policy string) slog.Attr {
	return slog.String(KeyCachePolicy, policy)
}

// CacheSize returns a slog.Attr for the current cache size in bytes.
func CacheSize(size uint64) slog.Attr {
	return slog.Uint64(KeyCacheSize, size)
}

// CacheCapacity returns a slog.Attr for the maximum cache capacity in bytes.
func CacheCapacity(capacity uint64) slog.Attr {
	return slog.Uint64(KeyCacheCapacity, capacity)
}

// Evicted returns a slog.Attr for the number of entries evicted.
func Evicted(n int) slog.Attr {
	return slog.Int(KeyEvicted, n)
}

// State returns a slog.Attr for a control-channel FSM state.
func State(s fmt.Stringer) slog.Attr {
	return slog.String(KeyState, s.String())
}

// DeadlineMs returns a slog.Attr for a keepalive deadline in milliseconds.
func DeadlineMs(ms uint32) slog.Attr {
	return slog.Uint64(KeyDeadlineMs, uint64(ms))
}

// Agreed returns a slog.Attr for a 2PC prepare outcome.
func Agreed(agreed bool) slog.Attr {
	return slog.Bool(KeyAgreed, agreed)
}
