package router

import (
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/ssbd-io/blockplane/ids"
	"github.com/ssbd-io/blockplane/wire/clientproto"
	"github.com/ssbd-io/blockplane/worker/control"
)

// Router forwards client packets to the proxy that owns a given FileId, and
// announces ring membership changes to known workers via ProxyJoin (spec
// §4.10).
type Router struct {
	ring *Ring

	connsMu sync.Mutex
	conns   map[ProxyID]net.Conn

	workersMu sync.Mutex
	workers   map[string]struct{} // known worker control-channel addresses
}

// NewRouter creates a Router over ring.
func NewRouter(ring *Ring) *Router {
	return &Router{
		ring:    ring,
		conns:   make(map[ProxyID]net.Conn),
		workers: make(map[string]struct{}),
	}
}

// TrackWorker registers a worker's control-channel address so future
// membership changes can be announced to it via ProxyJoin.
func (rt *Router) TrackWorker(addr string) {
	rt.workersMu.Lock()
	rt.workers[addr] = struct{}{}
	rt.workersMu.Unlock()
}

// Forward sends pkt unchanged to the proxy owning pkt.Header.Key and
// returns its reply (spec §4.10: "forwards the client packet unchanged").
func (rt *Router) Forward(pkt clientproto.Packet) (clientproto.Packet, error) {
	owner, ok := rt.ring.Select(pkt.Header.Key)
	if !ok {
		return clientproto.Packet{}, fmt.Errorf("router: no proxy available for file %s", pkt.Header.Key.String())
	}

	conn, err := rt.connFor(owner)
	if err != nil {
		return clientproto.Packet{}, err
	}

	if err := clientproto.WritePacket(conn, pkt); err != nil {
		rt.dropConn(owner.ID)
		return clientproto.Packet{}, fmt.Errorf("router: forward to %s: %w", owner.Addr, err)
	}

	reply, err := clientproto.ReadPacket(conn)
	if err != nil {
		rt.dropConn(owner.ID)
		return clientproto.Packet{}, fmt.Errorf("router: read reply from %s: %w", owner.Addr, err)
	}
	return reply, nil
}

func (rt *Router) connFor(p Proxy) (net.Conn, error) {
	rt.connsMu.Lock()
	defer rt.connsMu.Unlock()

	if c, ok := rt.conns[p.ID]; ok {
		return c, nil
	}
	c, err := net.Dial("tcp", p.Addr)
	if err != nil {
		return nil, fmt.Errorf("router: dial %s: %w", p.Addr, err)
	}
	rt.conns[p.ID] = c
	return c, nil
}

func (rt *Router) dropConn(id ProxyID) {
	rt.connsMu.Lock()
	if c, ok := rt.conns[id]; ok {
		c.Close()
		delete(rt.conns, id)
	}
	rt.connsMu.Unlock()
}

// SetMembership replaces ring membership and, for any newly added proxy,
// announces it to every tracked worker via ProxyJoin so their file-to-proxy
// mapping becomes eventually consistent (spec §4.10).
func (rt *Router) SetMembership(members []Proxy) {
	before := make(map[ProxyID]struct{})
	for _, m := range rt.ring.Members() {
		before[m.ID] = struct{}{}
	}

	rt.ring.Set(members)

	var added []Proxy
	for _, m := range members {
		if _, existed := before[m.ID]; !existed {
			added = append(added, m)
		}
	}
	if len(added) == 0 {
		return
	}

	rt.workersMu.Lock()
	workerAddrs := make([]string, 0, len(rt.workers))
	for addr := range rt.workers {
		workerAddrs = append(workerAddrs, addr)
	}
	rt.workersMu.Unlock()

	for _, w := range workerAddrs {
		for _, p := range added {
			announceProxyJoin(w, p)
		}
	}
}

// announceProxyJoin opens a short-lived connection to a worker's control
// channel and sends ProxyJoin for peer. Failures are ignored and the
// announcement is not retried.
func announceProxyJoin(workerAddr string, peer Proxy) {
	conn, err := net.Dial("tcp", workerAddr)
	if err != nil {
		return
	}
	defer conn.Close()

	host, portStr, err := net.SplitHostPort(peer.Addr)
	if err != nil {
		return
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return
	}

	pkt := clientproto.Packet{
		Header: clientproto.Header{Type: clientproto.TypeProxyJoin, Key: ids.FileID(peer.ID)},
		Body:   control.EncodeProxyJoin(host, uint16(port)),
	}
	_ = clientproto.WritePacket(conn, pkt)
}
