package cache

import (
	"time"

	"github.com/ssbd-io/blockplane/ids"
)

// TryRead implements the cache lookup (spec §4.5 try_read): a file with no
// entry is a miss and is not counted; otherwise it increments the entry's
// frequency counter, then returns a hit only if a single logged range
// fully covers [position, position+size).
func (c *Cache) TryRead(file ids.FileID, position uint64, size uint32) ([]byte, bool) {
	e, ok := c.lookup(file)
	if !ok {
		return nil, false
	}

	e.frequency.Add(1)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.lastAccess.Store(uint64(time.Now().UnixNano()))

	end := position + uint64(size)
	for _, r := range e.ranges {
		if r.Position <= position && end <= r.Position+uint64(r.Size) {
			if end > uint64(len(e.buffer)) {
				return nil, false
			}
			out := make([]byte, size)
			copy(out, e.buffer[position:end])
			return out, true
		}
	}
	return nil, false
}

// Frequency returns how many times TryRead has been called for file
// (hit or miss) while it had an entry, or 0 if the file has no entry.
func (c *Cache) Frequency(file ids.FileID) uint64 {
	e, ok := c.lookup(file)
	if !ok {
		return 0
	}
	return e.frequency.Load()
}
