package cache

import "github.com/ssbd-io/blockplane/ids"

// Segment is one exported range, externalized for the control-channel
// cache-transfer payload (spec §4.5).
type Segment struct {
	Position uint64
	Size     uint32
}

// FileDigest is one file's exported cache contents: its covered
// segments and the underlying bytes.
type FileDigest struct {
	File     ids.FileID
	Segments []Segment
	Bytes    []byte
}

// Export produces the cache's externalized form for a WorkerDeregister
// payload (spec §4.5: "a list of (FileId, [range segments], bytes)").
func (c *Cache) Export() []FileDigest {
	c.globalMu.RLock()
	files := make([]ids.FileID, 0, len(c.entries))
	entries := make([]*entry, 0, len(c.entries))
	for file, e := range c.entries {
		files = append(files, file)
		entries = append(entries, e)
	}
	c.globalMu.RUnlock()

	out := make([]FileDigest, 0, len(files))
	for i, file := range files {
		e := entries[i]
		e.mu.Lock()
		segs := make([]Segment, len(e.ranges))
		for j, r := range e.ranges {
			segs[j] = Segment{Position: r.Position, Size: r.Size}
		}
		buf := make([]byte, len(e.buffer))
		copy(buf, e.buffer)
		e.mu.Unlock()

		out = append(out, FileDigest{File: file, Segments: segs, Bytes: buf})
	}
	return out
}

// Import prefills the cache from a previously Exported digest, as done
// on worker startup for a CacheTransfer message when the configured
// eviction policy is LRU or FIFO (spec §4.5; NONE's budget-less growth
// makes a prefill pointless, so callers should skip Import for it).
func (c *Cache) Import(digests []FileDigest) {
	for _, d := range digests {
		for _, seg := range d.Segments {
			end := seg.Position + uint64(seg.Size)
			if end > uint64(len(d.Bytes)) {
				continue
			}
			c.Insert(d.File, seg.Position, seg.Size, d.Bytes[seg.Position:end])
		}
	}
}
