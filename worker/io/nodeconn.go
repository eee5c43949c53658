package workerio

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/ssbd-io/blockplane/ids"
	"github.com/ssbd-io/blockplane/wire/storageproto"
)

// NodePool lazily dials and reuses one TCP connection per storage node,
// serializing the request/response round trip on that connection under a
// mutex. This is the worker-side counterpart of storagenode/server: each
// node index from replica.Select maps to one entry in Hosts.
type NodePool struct {
	hosts []string

	mu    sync.Mutex
	conns map[int]*nodeConn
}

type nodeConn struct {
	mu   sync.Mutex
	conn net.Conn
}

// NewNodePool creates a pool over the given storage-node addresses,
// indexed the same way replica.Select's nodeCount is: hosts[i] is node i.
func NewNodePool(hosts []string) *NodePool {
	return &NodePool{
		hosts: hosts,
		conns: make(map[int]*nodeConn),
	}
}

// NodeCount returns the number of configured storage nodes.
func (p *NodePool) NodeCount() int {
	return len(p.hosts)
}

func (p *NodePool) getConn(nodeIndex int) (*nodeConn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if nc, ok := p.conns[nodeIndex]; ok {
		return nc, nil
	}
	if nodeIndex < 0 || nodeIndex >= len(p.hosts) {
		return nil, fmt.Errorf("workerio: node index %d out of range [0,%d)", nodeIndex, len(p.hosts))
	}
	nc := &nodeConn{}
	p.conns[nodeIndex] = nc
	return nc, nil
}

// roundTrip dials nodeIndex on first use, sends req, and returns the
// response packet. The connection is dropped and redialed on the next
// call if the round trip fails.
func (p *NodePool) roundTrip(ctx context.Context, nodeIndex int, req storageproto.Packet) (storageproto.Packet, error) {
	nc, err := p.getConn(nodeIndex)
	if err != nil {
		return storageproto.Packet{}, err
	}

	nc.mu.Lock()
	defer nc.mu.Unlock()

	if nc.conn == nil {
		conn, err := net.Dial("tcp", p.hosts[nodeIndex])
		if err != nil {
			return storageproto.Packet{}, fmt.Errorf("workerio: dial node %d (%s): %w", nodeIndex, p.hosts[nodeIndex], err)
		}
		nc.conn = conn
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = nc.conn.SetDeadline(deadline)
	} else {
		_ = nc.conn.SetDeadline(time.Time{})
	}

	if err := storageproto.WritePacket(nc.conn, req); err != nil {
		_ = nc.conn.Close()
		nc.conn = nil
		return storageproto.Packet{}, fmt.Errorf("workerio: write to node %d: %w", nodeIndex, err)
	}

	resp, err := storageproto.ReadPacket(nc.conn)
	if err != nil {
		_ = nc.conn.Close()
		nc.conn = nil
		return storageproto.Packet{}, fmt.Errorf("workerio: read from node %d: %w", nodeIndex, err)
	}

	return resp, nil
}

// Close closes every pooled connection.
func (p *NodePool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, nc := range p.conns {
		nc.mu.Lock()
		if nc.conn != nil {
			_ = nc.conn.Close()
			nc.conn = nil
		}
		nc.mu.Unlock()
	}
	return nil
}

// prepare issues a prepare (or fast-path prepare-quick) to nodeIndex.
func (p *NodePool) prepare(ctx context.Context, nodeIndex int, file ids.FileID, block ids.BlockID, offset ids.Offset, payload []byte, version ids.Version, quick bool) (storageproto.Packet, error) {
	typ := storageproto.TypeTwoPCPrepare
	if quick {
		typ = storageproto.TypeTwoPCPrepareQuick
	}

	body := make([]byte, 0, 8+len(payload))
	body = appendVersion(body, version)
	body = append(body, payload...)

	req := storageproto.Packet{
		Header: storageproto.Header{
			Type:     typ,
			FileID:   file,
			BlockID:  block,
			Position: offset,
		},
		Body: body,
	}
	return p.roundTrip(ctx, nodeIndex, req)
}

func (p *NodePool) commit(ctx context.Context, nodeIndex int, file ids.FileID, block ids.BlockID) (storageproto.Packet, error) {
	req := storageproto.Packet{Header: storageproto.Header{Type: storageproto.TypeTwoPCCommitExecute, FileID: file, BlockID: block}}
	return p.roundTrip(ctx, nodeIndex, req)
}

func (p *NodePool) rollback(ctx context.Context, nodeIndex int, file ids.FileID, block ids.BlockID) (storageproto.Packet, error) {
	req := storageproto.Packet{Header: storageproto.Header{Type: storageproto.TypeTwoPCCommitRollback, FileID: file, BlockID: block}}
	return p.roundTrip(ctx, nodeIndex, req)
}

func (p *NodePool) replicate(ctx context.Context, nodeIndex int, file ids.FileID, block ids.BlockID, offset ids.Offset, payload []byte) (storageproto.Packet, error) {
	req := storageproto.Packet{
		Header: storageproto.Header{Type: storageproto.TypeReplication, FileID: file, BlockID: block, Position: offset},
		Body:   payload,
	}
	return p.roundTrip(ctx, nodeIndex, req)
}

func (p *NodePool) get(ctx context.Context, nodeIndex int, file ids.FileID, block ids.BlockID, offset ids.Offset, size uint32) (storageproto.Packet, error) {
	req := storageproto.Packet{
		Header: storageproto.Header{Type: storageproto.TypeGet, FileID: file, BlockID: block, Position: offset, DataSize: size},
	}
	return p.roundTrip(ctx, nodeIndex, req)
}

func appendVersion(buf []byte, v ids.Version) []byte {
	return append(buf,
		byte(v>>56), byte(v>>48), byte(v>>40), byte(v>>32),
		byte(v>>24), byte(v>>16), byte(v>>8), byte(v),
	)
}
