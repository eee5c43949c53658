// Package replica implements the deterministic (file, block, replica-index)
// → storage-node-index mapping described in spec §4.3. Every worker must
// reproduce the exact same mapping for the same inputs without coordinating
// with one another, so the mapping is a pure function of its inputs and a
// pinned PRNG algorithm (see mt19937.go).
package replica

import (
	"encoding/binary"

	"github.com/ssbd-io/blockplane/ids"
)

// Select returns the storage-node index in [0, nodeCount) responsible for
// replica replicaIndex of (file, block).
//
// Algorithm (spec §4.3): seed a Mersenne-Twister-class PRNG with the
// 32-byte FileID, advance the stream by
// blockID × (blockID × replicaIndex) draws, and return the next draw
// mod nodeCount. When nodeCount is 1 the result is always 0.
func Select(file ids.FileID, block ids.BlockID, replicaIndex ids.ReplicaIndex, nodeCount int) int {
	if nodeCount <= 0 {
		return 0
	}
	if nodeCount == 1 {
		return 0
	}

	gen := newMT19937FromKey(fileIDToKey(file))

	b := uint64(block)
	skip := b * (b * uint64(replicaIndex))
	gen.skip(skip)

	draw := gen.nextUint32()
	return int(draw % uint32(nodeCount))
}

// fileIDToKey reinterprets a 32-byte FileID as eight big-endian uint32
// words, the key material init_by_array expects.
func fileIDToKey(file ids.FileID) []uint32 {
	key := make([]uint32, ids.FileIDSize/4)
	for i := range key {
		key[i] = binary.BigEndian.Uint32(file[i*4 : i*4+4])
	}
	return key
}
