// Package server implements the storage-node protocol server (spec §4.2,
// C2): it accepts worker↔storage-node (dialect B) connections, frames and
// dispatches each packet to a blockstore.Store, and writes responses back
// in arrival order. The accept-loop shape (sync.WaitGroup, sync.Once
// shutdown, one goroutine per connection) is grounded on the teacher's
// internal/protocol/portmap server.
package server

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/ssbd-io/blockplane/internal/logger"
	"github.com/ssbd-io/blockplane/internal/metrics"
	"github.com/ssbd-io/blockplane/netutil/writer"
	"github.com/ssbd-io/blockplane/storagenode/blockstore"
	"github.com/ssbd-io/blockplane/wire/storageproto"
)

// Config configures a storage-node protocol server.
type Config struct {
	// Addr is the TCP listen address, e.g. ":9000".
	Addr string
	// Store backs every dispatched operation.
	Store blockstore.Store
	// Metrics records 2PC outcomes. Nil disables recording.
	Metrics *metrics.StorageMetrics
}

// Server is the storage-node protocol server.
type Server struct {
	cfg Config

	listener     net.Listener
	ready        chan struct{}
	shutdown     chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup
}

// New creates a Server; call Serve to start accepting connections.
func New(cfg Config) *Server {
	return &Server{
		cfg:      cfg,
		ready:    make(chan struct{}),
		shutdown: make(chan struct{}),
	}
}

// Serve listens on cfg.Addr and runs the accept loop until ctx is
// cancelled or Stop is called. It blocks until all connections have
// finished.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("storagenode/server: listen %s: %w", s.cfg.Addr, err)
	}
	s.listener = ln
	close(s.ready)

	logger.Info("storage-node server started", "address", ln.Addr().String())

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.shutdown:
		}
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				s.wg.Wait()
				return nil
			default:
				logger.Debug("storagenode/server: accept error", "error", err)
				s.wg.Wait()
				return err
			}
		}

		s.wg.Add(1)
		go func(c net.Conn) {
			defer s.wg.Done()
			s.handleConn(ctx, c)
		}(conn)
	}
}

// Stop closes the listener and signals the accept loop to exit.
func (s *Server) Stop() {
	s.shutdownOnce.Do(func() {
		close(s.shutdown)
		if s.listener != nil {
			_ = s.listener.Close()
		}
	})
}

// Addr returns the listener's address, for tests.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Ready is closed once the listener is bound and accepting connections.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// handleConn runs the per-connection dispatch loop: ReadingHeader →
// ReadingBody → Dispatching → WritingResponse → ReadingHeader (spec
// §4.2). Responses are written through an ordered async writer (C7) so
// pipelined inbound requests still get arrival-ordered replies.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer func() { _ = conn.Close() }()

	w := writer.New(conn)
	defer w.Close()

	for {
		pkt, err := storageproto.ReadPacket(conn)
		if err != nil {
			if err != io.EOF {
				logger.Debug("storagenode/server: read packet error", logger.RemoteAddr(conn.RemoteAddr().String()), logger.Err(err))
			}
			return
		}

		reply := s.dispatch(ctx, pkt)
		if err := w.Submit(storageproto.Encode(reply)); err != nil {
			logger.Debug("storagenode/server: write reply error", logger.RemoteAddr(conn.RemoteAddr().String()), logger.Err(err))
			return
		}
	}
}

// dispatch routes one request packet to the block store and builds its
// reply. Unexpected types (Ack, PrepareAgree, PrepareAbort -- the
// reply-only types) are answered with Err and the loop continues (spec
// §4.2).
func (s *Server) dispatch(ctx context.Context, pkt storageproto.Packet) storageproto.Packet {
	h := pkt.Header

	switch h.Type {
	case storageproto.TypeTwoPCPrepare, storageproto.TypeTwoPCPrepareQuick:
		return s.dispatchPrepare(ctx, pkt)

	case storageproto.TypeTwoPCCommitExecute:
		if err := s.cfg.Store.Commit(ctx, h.FileID, h.BlockID); err != nil {
			return errorReply(h, err)
		}
		s.cfg.Metrics.ObserveCommit()
		return storageproto.Reply(h, storageproto.TypeTwoPCCommitAck, nil)

	case storageproto.TypeTwoPCCommitRollback:
		if err := s.cfg.Store.Rollback(ctx, h.FileID, h.BlockID); err != nil {
			return errorReply(h, err)
		}
		s.cfg.Metrics.ObserveRollback()
		return storageproto.Reply(h, storageproto.TypeAck, nil)

	case storageproto.TypeReplication:
		if err := s.cfg.Store.Replicate(ctx, h.FileID, h.BlockID, h.Position, pkt.Body); err != nil {
			return errorReply(h, err)
		}
		return storageproto.Reply(h, storageproto.TypeAck, nil)

	case storageproto.TypeGet:
		data, err := s.cfg.Store.Get(ctx, h.FileID, h.BlockID, h.Position, h.DataSize)
		if err != nil {
			return errorReply(h, err)
		}
		return storageproto.Reply(h, storageproto.TypeAck, data)

	default:
		return errorReply(h, fmt.Errorf("storagenode/server: unexpected request type %s", h.Type))
	}
}

func (s *Server) dispatchPrepare(ctx context.Context, pkt storageproto.Packet) storageproto.Packet {
	h := pkt.Header

	version, err := decodeVersion(pkt.Body)
	if err != nil {
		return errorReply(h, err)
	}
	payload := pkt.Body[versionFieldSize:]

	result, err := s.cfg.Store.Prepare(ctx, h.FileID, h.BlockID, h.Position, payload, version)
	if err != nil {
		return errorReply(h, err)
	}
	agreed := result.Outcome == blockstore.Agree
	s.cfg.Metrics.ObservePrepare(agreed)
	logger.Debug("storagenode/server: prepare", logger.FileID(h.FileID), logger.BlockID(uint32(h.BlockID)), logger.Agreed(agreed))

	if result.Outcome == blockstore.Agree {
		return storageproto.Reply(h, storageproto.TypeTwoPCPrepareAgree, encodeCommittedVersion(result.CommittedVersion))
	}
	return storageproto.Reply(h, storageproto.TypeTwoPCPrepareAbort, encodeCommittedVersion(result.CommittedVersion))
}

func errorReply(h storageproto.Header, err error) storageproto.Packet {
	return storageproto.Reply(h, storageproto.TypeErr, []byte(err.Error()))
}
