package workerio

import (
	"context"
	"sync"
	"time"

	"github.com/ssbd-io/blockplane/ids"
	"github.com/ssbd-io/blockplane/internal/logger"
	"github.com/ssbd-io/blockplane/replica"
	"github.com/ssbd-io/blockplane/wire/storageproto"
)

// Result is the outcome of a successful Write.
type Result struct {
	// Version is the write's chosen version (spec §4.4.1.1), returned so
	// callers can observe commit ordering.
	Version ids.Version
}

// blockOutcome is one range's prepare (or commit/rollback) result,
// collected off resultsCh by Write.
type blockOutcome struct {
	rng   Range
	node  int
	agree bool
	err   error
}

// Write implements the 2PC write driver (spec §4.4.1): prepare every
// emitted block range against its primary replica, commit or roll back
// depending on whether every prepare agreed, then fire off async
// replication to the remaining replicas on a successful commit.
func (d *Driver) Write(ctx context.Context, file ids.FileID, position uint64, payload []byte) (Result, error) {
	if d.pool.NodeCount() == 0 {
		return Result{}, ErrNoNodes
	}

	version := ids.Version(uint64(time.Now().UnixMicro()) >> 6)

	ranges := Decompose(position, uint32(len(payload)), d.cfg.BlockSize)
	if len(ranges) == 0 {
		return Result{Version: version}, nil
	}

	reqCtx, cancel := context.WithTimeout(ctx, d.cfg.RequestTimeout)
	defer cancel()

	quick := d.isSeen(file)
	nodeCount := d.pool.NodeCount()

	prepared, err := d.runPhase(reqCtx, ranges, func(rctx context.Context, rng Range) blockOutcome {
		node := replica.Select(file, rng.Block, 0, nodeCount)
		chunkPayload := SliceForRange(payload, position, d.cfg.BlockSize, rng)

		resp, err := d.pool.prepare(rctx, node, file, rng.Block, rng.Offset, chunkPayload, version, quick)
		if err != nil {
			return blockOutcome{rng: rng, node: node, err: err}
		}
		return blockOutcome{rng: rng, node: node, agree: resp.Header.Type == storageproto.TypeTwoPCPrepareAgree}
	})
	if err != nil {
		return Result{}, err
	}

	allAgree := true
	for _, o := range prepared {
		if o.err != nil || !o.agree {
			allAgree = false
			break
		}
	}

	if allAgree {
		if _, err := d.runPhase(reqCtx, ranges, func(rctx context.Context, rng Range) blockOutcome {
			node := nodeForRange(prepared, rng)
			_, err := d.pool.commit(rctx, node, file, rng.Block)
			return blockOutcome{rng: rng, node: node, err: err}
		}); err != nil {
			return Result{}, err
		}

		d.markSeen(file)
		d.replicateAsync(file, position, payload, version, ranges, prepared)
		return Result{Version: version}, nil
	}

	if _, err := d.runPhase(reqCtx, ranges, func(rctx context.Context, rng Range) blockOutcome {
		node := nodeForRange(prepared, rng)
		_, err := d.pool.rollback(rctx, node, file, rng.Block)
		return blockOutcome{rng: rng, node: node, err: err}
	}); err != nil {
		return Result{}, err
	}

	d.clearSeen(file)
	return Result{}, ErrAborted
}

// runPhase runs fn for every range concurrently and collects all
// outcomes, or returns ErrWriteTimeout the instant reqCtx expires --
// in-flight goroutines keep running to completion but their results are
// discarded (spec §4.4.1.6).
func (d *Driver) runPhase(reqCtx context.Context, ranges []Range, fn func(context.Context, Range) blockOutcome) ([]blockOutcome, error) {
	results := make(chan blockOutcome, len(ranges))

	var wg sync.WaitGroup
	for _, rng := range ranges {
		wg.Add(1)
		go func(rng Range) {
			defer wg.Done()
			results <- fn(reqCtx, rng)
		}(rng)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]blockOutcome, 0, len(ranges))
	for {
		select {
		case o, ok := <-results:
			if !ok {
				return out, nil
			}
			out = append(out, o)
			if len(out) == len(ranges) {
				return out, nil
			}
		case <-reqCtx.Done():
			return nil, ErrWriteTimeout
		}
	}
}

// replicateAsync fires replicate requests to replicas 1..ReplicationFactor-1
// for each written block, independent of the client-facing deadline
// (spec §4.4.1.5: "Replication failures are logged but do not affect the
// client reply").
func (d *Driver) replicateAsync(file ids.FileID, position uint64, payload []byte, version ids.Version, ranges []Range, prepared []blockOutcome) {
	if d.cfg.ReplicationFactor < 2 {
		return
	}

	nodeCount := d.pool.NodeCount()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), DefaultRequestTimeout)
		defer cancel()

		var wg sync.WaitGroup
		for _, rng := range ranges {
			chunkPayload := SliceForRange(payload, position, d.cfg.BlockSize, rng)
			for r := 1; r < d.cfg.ReplicationFactor; r++ {
				wg.Add(1)
				go func(rng Range, replicaIndex int, chunkPayload []byte) {
					defer wg.Done()
					node := replica.Select(file, rng.Block, ids.ReplicaIndex(replicaIndex), nodeCount)
					if _, err := d.pool.replicate(ctx, node, file, rng.Block, rng.Offset, chunkPayload); err != nil {
						logger.Warn("workerio: replication failed", "file", file.String(), "block", rng.Block, "replica", replicaIndex, "node", node, "error", err)
					}
				}(rng, r, chunkPayload)
			}
		}
		wg.Wait()
	}()
}

// nodeForRange looks up the node index a range was prepared against.
func nodeForRange(outcomes []blockOutcome, rng Range) int {
	for _, o := range outcomes {
		if o.rng.Block == rng.Block && o.rng.Offset == rng.Offset {
			return o.node
		}
	}
	return 0
}
