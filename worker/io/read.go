package workerio

import (
	"context"

	"github.com/ssbd-io/blockplane/ids"
	"github.com/ssbd-io/blockplane/replica"
	"github.com/ssbd-io/blockplane/wire/storageproto"
)

type readSlot struct {
	rng  Range
	data []byte
	err  error
}

// Read implements the read driver (spec §4.4.2): decompose into per-block
// gets against each block's primary replica, preserve an ordered slot
// buffer so out-of-order completions can be reassembled, then concatenate
// in position order.
func (d *Driver) Read(ctx context.Context, file ids.FileID, position uint64, size uint32) ([]byte, error) {
	if d.pool.NodeCount() == 0 {
		return nil, ErrNoNodes
	}

	ranges := Decompose(position, size, d.cfg.BlockSize)
	if len(ranges) == 0 {
		return nil, nil
	}

	reqCtx, cancel := context.WithTimeout(ctx, d.cfg.RequestTimeout)
	defer cancel()

	nodeCount := d.pool.NodeCount()
	slots := make([]readSlot, len(ranges))
	results := make(chan int, len(ranges))

	for i, rng := range ranges {
		slots[i].rng = rng
		go func(i int, rng Range) {
			node := replica.Select(file, rng.Block, 0, nodeCount)
			resp, err := d.pool.get(reqCtx, node, file, rng.Block, rng.Offset, rng.Chunk)
			if err != nil {
				slots[i].err = err
			} else if resp.Header.Type != storageproto.TypeAck {
				slots[i].err = ErrReadTimeout
			} else {
				slots[i].data = resp.Body
			}
			results <- i
		}(i, rng)
	}

	received := 0
	for received < len(ranges) {
		select {
		case <-results:
			received++
		case <-reqCtx.Done():
			return nil, ErrReadTimeout
		}
	}

	out := make([]byte, 0, size)
	for _, s := range slots {
		if s.err != nil {
			return nil, s.err
		}
		out = append(out, s.data...)
	}
	return out, nil
}
