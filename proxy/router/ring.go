// Package router implements the request router boundary (spec §4.10, C10):
// a sorted ring of proxy ids learned from a discovery service, used to pick
// which proxy (and transitively, which worker) owns a given FileId, and to
// forward client packets unchanged to it. The router never interprets a
// client request's body.
package router

import (
	"bytes"
	"sort"
	"sync"

	"github.com/ssbd-io/blockplane/ids"
)

// ProxyID is the 32-byte identifier of a proxy instance on the ring (spec
// §4.10: "sorted ring of proxy ids (32-byte)").
type ProxyID [32]byte

// Proxy is one member of the ring: an id and the address clients/routers
// reach it at.
type Proxy struct {
	ID   ProxyID
	Addr string
}

// Ring is a sorted-by-id membership ring. Select(file) returns the
// successor of FileId in id-space, i.e. the first member whose id is
// greater than or equal to the file's id, wrapping around to the first
// member if none is.
type Ring struct {
	mu      sync.RWMutex
	members []Proxy
}

// New creates an empty Ring.
func New() *Ring {
	return &Ring{}
}

// Set replaces the ring's membership, sorted by id.
func (r *Ring) Set(members []Proxy) {
	sorted := make([]Proxy, len(members))
	copy(sorted, members)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].ID[:], sorted[j].ID[:]) < 0
	})

	r.mu.Lock()
	r.members = sorted
	r.mu.Unlock()
}

// Members returns a snapshot of the current ring membership.
func (r *Ring) Members() []Proxy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Proxy, len(r.members))
	copy(out, r.members)
	return out
}

// Select returns the proxy owning file: the successor of file's id on the
// ring (spec §4.10: "picks the successor of FileId"). The ok return is
// false if the ring has no members.
func (r *Ring) Select(file ids.FileID) (Proxy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.members) == 0 {
		return Proxy{}, false
	}

	key := file[:]
	idx := sort.Search(len(r.members), func(i int) bool {
		return bytes.Compare(r.members[i].ID[:], key) >= 0
	})
	if idx == len(r.members) {
		idx = 0
	}
	return r.members[idx], true
}
