package cache

import (
	"time"

	"github.com/ssbd-io/blockplane/ids"
)

// Insert implements the cache fill (spec §4.5 insert): it creates the
// file's entry if absent, appends (position, size) to the range log, and
// places a deep copy of payload at position within the buffer, growing
// the buffer as needed. Both reads and writes call Insert so a
// just-written range is immediately cache-hot (spec §4.5: "On writes,
// the same insert is performed").
func (c *Cache) Insert(file ids.FileID, position uint64, size uint32, payload []byte) {
	e := c.getOrCreate(file)

	e.mu.Lock()
	oldLen := uint64(len(e.buffer))

	end := position + uint64(size)
	if end > uint64(len(e.buffer)) {
		grown := make([]byte, end)
		copy(grown, e.buffer)
		e.buffer = grown
	}
	// Deep-copy payload into the buffer; the caller's slice must never
	// alias cache storage (resolves the "does Insert copy or borrow"
	// open question in favor of always copying).
	copy(e.buffer[position:end], payload)
	e.ranges = append(e.ranges, rangeSeg{Position: position, Size: size})
	e.lastAccess.Store(uint64(time.Now().UnixNano()))
	newLen := uint64(len(e.buffer))
	e.mu.Unlock()

	if newLen > oldLen {
		c.totalBytes.Add(newLen - oldLen)
	}

	c.maybeEvict(file)
}
