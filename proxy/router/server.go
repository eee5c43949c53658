package router

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/ssbd-io/blockplane/internal/logger"
	"github.com/ssbd-io/blockplane/wire/clientproto"
)

// Server listens for client connections and forwards each request through
// a Router to the proxy that owns it (spec §4.10, boundary-only: the
// router never interprets request bodies).
type Server struct {
	addr   string
	router *Router

	listener     net.Listener
	ready        chan struct{}
	shutdown     chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup
}

// NewServer creates a router-facing Server listening on addr.
func NewServer(addr string, router *Router) *Server {
	return &Server{
		addr:     addr,
		router:   router,
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

// Serve accepts client connections until ctx is cancelled or Stop is
// called.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("router: listen %s: %w", s.addr, err)
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
				logger.Debug("router: accept error", "error", err)
				s.wg.Wait()
				return err
			}
		}

		s.wg.Add(1)
		go func(c net.Conn) {
			defer s.wg.Done()
			s.handleConn(c)
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

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	for {
		pkt, err := clientproto.ReadPacket(conn)
		if err != nil {
			return
		}

		reply, err := s.router.Forward(pkt)
		if err != nil {
			logger.Warn("router: forward failed", logger.FileID(pkt.Header.Key), logger.Err(err))
			reply = clientproto.Packet{
				Header: pkt.Header,
				Body:   clientproto.ErrorBody(err.Error()),
			}
			reply.Header.Type = clientproto.TypeErr
		}

		if err := clientproto.WritePacket(conn, reply); err != nil {
			return
		}
	}
}
