package cache

import (
	"cmp"
	"slices"

	"github.com/ssbd-io/blockplane/ids"
)

// EvictionPolicy selects which whole file-entry to drop when the cache
// exceeds its byte budget (spec §4.5: "entries are dropped whole
// (per-file), selected by the policy").
type EvictionPolicy interface {
	Name() string
	// SelectVictim picks one file to evict from the given candidates, or
	// reports ok=false if nothing should be evicted.
	SelectVictim(candidates []victimCandidate) (file ids.FileID, ok bool)
}

type victimCandidate struct {
	file       ids.FileID
	lastAccess uint64
	insertSeq  uint64
}

func policyByName(name string) EvictionPolicy {
	switch name {
	case "LRU":
		return lruPolicy{}
	case "FIFO":
		return fifoPolicy{}
	default:
		return nonePolicy{}
	}
}

// lruPolicy evicts the file with the oldest lastAccess timestamp.
type lruPolicy struct{}

func (lruPolicy) Name() string { return "LRU" }

func (lruPolicy) SelectVictim(candidates []victimCandidate) (ids.FileID, bool) {
	if len(candidates) == 0 {
		return ids.FileID{}, false
	}
	sorted := slices.Clone(candidates)
	slices.SortFunc(sorted, func(a, b victimCandidate) int {
		return cmp.Compare(a.lastAccess, b.lastAccess)
	})
	return sorted[0].file, true
}

// fifoPolicy evicts the file inserted longest ago, irrespective of
// access pattern.
type fifoPolicy struct{}

func (fifoPolicy) Name() string { return "FIFO" }

func (fifoPolicy) SelectVictim(candidates []victimCandidate) (ids.FileID, bool) {
	if len(candidates) == 0 {
		return ids.FileID{}, false
	}
	sorted := slices.Clone(candidates)
	slices.SortFunc(sorted, func(a, b victimCandidate) int {
		return cmp.Compare(a.insertSeq, b.insertSeq)
	})
	return sorted[0].file, true
}

// nonePolicy never evicts; the cache simply grows past its byte budget.
type nonePolicy struct{}

func (nonePolicy) Name() string { return "NONE" }

func (nonePolicy) SelectVictim([]victimCandidate) (ids.FileID, bool) {
	return ids.FileID{}, false
}

// maybeEvict drops whole file entries, selected by the configured
// policy, until the cache is back under its byte budget (or the policy
// declines to evict further).
func (c *Cache) maybeEvict(justWritten ids.FileID) {
	if c.maxBytes == 0 {
		return
	}

	for c.totalBytes.Load() > c.maxBytes {
		candidates := c.snapshotCandidates()
		if len(candidates) == 0 {
			return
		}

		victim, ok := c.policy.SelectVictim(candidates)
		if !ok {
			return
		}
		if victim == justWritten && len(candidates) > 1 {
			// Avoid evicting the entry that triggered this insert when
			// an alternative exists; the policy is re-consulted with it
			// removed from consideration.
			filtered := make([]victimCandidate, 0, len(candidates)-1)
			for _, cand := range candidates {
				if cand.file != justWritten {
					filtered = append(filtered, cand)
				}
			}
			if v2, ok2 := c.policy.SelectVictim(filtered); ok2 {
				victim = v2
			}
		}

		evicted := c.evictEntry(victim)
		if evicted == 0 {
			return
		}
	}
}

func (c *Cache) snapshotCandidates() []victimCandidate {
	c.globalMu.RLock()
	defer c.globalMu.RUnlock()

	out := make([]victimCandidate, 0, len(c.entries))
	for file, e := range c.entries {
		out = append(out, victimCandidate{
			file:       file,
			lastAccess: e.lastAccess.Load(),
			insertSeq:  e.insertSeq,
		})
	}
	return out
}

// evictEntry removes file's entry entirely -- buffer, range log, and
// frequency counter are dropped together (spec §4.5: "their frequency
// counters and range logs are dropped with them").
func (c *Cache) evictEntry(file ids.FileID) uint64 {
	c.globalMu.Lock()
	e, ok := c.entries[file]
	if ok {
		delete(c.entries, file)
	}
	c.globalMu.Unlock()
	if !ok {
		return 0
	}

	e.mu.Lock()
	size := uint64(len(e.buffer))
	e.mu.Unlock()

	atomicSubtract(&c.totalBytes, size)
	return size
}
