// Package service wires the per-worker components (C4 I/O engine, C5
// cache, C6 strand pool) behind the client-facing dialect-A protocol: a
// TypePut/TypeGet file request is stranded per FileId, checked against the
// cache on read, written through the driver and the cache on write, and
// answered with Ack or Err (spec §4.4-4.6).
package service

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/ssbd-io/blockplane/ids"
	"github.com/ssbd-io/blockplane/internal/logger"
	"github.com/ssbd-io/blockplane/internal/metrics"
	"github.com/ssbd-io/blockplane/netutil/writer"
	"github.com/ssbd-io/blockplane/wire/clientproto"
	workerio "github.com/ssbd-io/blockplane/worker/io"
	"github.com/ssbd-io/blockplane/worker/strand"
)

// Cache is the subset of *cache.Cache the service depends on, so tests can
// substitute a fake.
type Cache interface {
	TryRead(file ids.FileID, position uint64, size uint32) ([]byte, bool)
	Insert(file ids.FileID, position uint64, size uint32, payload []byte)
}

// Config configures a Service.
type Config struct {
	Driver  *workerio.Driver
	Cache   Cache // nil disables the cache entirely
	Strands *strand.Pool
	Metrics *metrics.CacheMetrics
}

// Service dispatches file requests arriving over dialect A.
type Service struct {
	cfg Config
}

// New creates a Service.
func New(cfg Config) *Service {
	if cfg.Strands == nil {
		cfg.Strands = strand.NewPool(strand.DefaultQuiescence)
	}
	return &Service{cfg: cfg}
}

// Handle strands req's execution per FileId and invokes reply with the
// packet to send back. reply may be called from a goroutine belonging to
// the file's strand, not the caller's goroutine.
func (s *Service) Handle(ctx context.Context, h clientproto.Header, req clientproto.FileRequest, reply func(clientproto.Packet)) {
	s.cfg.Strands.Post(req.FileID, func() {
		reply(s.execute(ctx, h, req))
	})
}

func (s *Service) execute(ctx context.Context, h clientproto.Header, req clientproto.FileRequest) clientproto.Packet {
	switch req.Op {
	case clientproto.OpRead:
		return s.executeRead(ctx, h, req)
	case clientproto.OpWrite:
		return s.executeWrite(ctx, h, req)
	default:
		return errPacket(h, fmt.Errorf("service: unknown op %d", req.Op))
	}
}

func (s *Service) executeRead(ctx context.Context, h clientproto.Header, req clientproto.FileRequest) clientproto.Packet {
	if s.cfg.Cache != nil {
		if data, ok := s.cfg.Cache.TryRead(req.FileID, uint64(req.Position), req.Size); ok {
			s.cfg.Metrics.ObserveLookup(true)
			return clientproto.Packet{Header: ackHeader(h), Body: data}
		}
		s.cfg.Metrics.ObserveLookup(false)
	}

	data, err := s.cfg.Driver.Read(ctx, req.FileID, uint64(req.Position), req.Size)
	if err != nil {
		return errPacket(h, err)
	}

	if s.cfg.Cache != nil {
		s.cfg.Cache.Insert(req.FileID, uint64(req.Position), uint32(len(data)), data)
	}
	return clientproto.Packet{Header: ackHeader(h), Body: data}
}

func (s *Service) executeWrite(ctx context.Context, h clientproto.Header, req clientproto.FileRequest) clientproto.Packet {
	_, err := s.cfg.Driver.Write(ctx, req.FileID, uint64(req.Position), req.Payload)
	if err != nil {
		return errPacket(h, err)
	}

	if s.cfg.Cache != nil {
		s.cfg.Cache.Insert(req.FileID, uint64(req.Position), uint32(len(req.Payload)), req.Payload)
	}
	return clientproto.Packet{Header: ackHeader(h)}
}

func ackHeader(h clientproto.Header) clientproto.Header {
	h.Type = clientproto.TypeAck
	return h
}

func errPacket(h clientproto.Header, err error) clientproto.Packet {
	h.Type = clientproto.TypeErr
	return clientproto.Packet{Header: h, Body: clientproto.ErrorBody(err.Error())}
}

// Server accepts client (dialect-A) TCP connections and dispatches file
// requests to a Service, using the ordered async writer (C7) so pipelined
// requests on one connection get arrival-ordered replies.
type Server struct {
	addr    string
	service *Service

	listener     net.Listener
	ready        chan struct{}
	shutdown     chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup
}

// NewServer creates a Server listening on addr.
func NewServer(addr string, svc *Service) *Server {
	return &Server{
		addr:     addr,
		service:  svc,
		ready:    make(chan struct{}),
		shutdown: make(chan struct{}),
	}
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addr returns the bound listener address.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Serve accepts connections until ctx is cancelled or Stop is called.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("worker/service: listen %s: %w", s.addr, err)
	}
	s.listener = ln
	close(s.ready)

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
				logger.Debug("worker/service: accept error", "error", err)
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

// Stop closes the listener, unblocking Serve.
func (s *Server) Stop() {
	s.shutdownOnce.Do(func() {
		close(s.shutdown)
		if s.listener != nil {
			s.listener.Close()
		}
	})
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	w := writer.New(conn)
	defer w.Close()

	for {
		pkt, err := clientproto.ReadPacket(conn)
		if err != nil {
			return
		}

		if pkt.Header.Type != clientproto.TypePut && pkt.Header.Type != clientproto.TypeGet {
			reply := errPacket(pkt.Header, fmt.Errorf("worker/service: unexpected request type %s", pkt.Header.Type))
			if err := w.Submit(clientproto.Encode(reply)); err != nil {
				return
			}
			continue
		}

		req, err := clientproto.DecodeFileRequest(pkt.Body)
		if err != nil {
			reply := errPacket(pkt.Header, err)
			if err := w.Submit(clientproto.Encode(reply)); err != nil {
				return
			}
			continue
		}

		s.service.Handle(ctx, pkt.Header, req, func(reply clientproto.Packet) {
			if err := w.Submit(clientproto.Encode(reply)); err != nil {
				logger.Debug("worker/service: write reply error", "error", err)
			}
		})
	}
}
