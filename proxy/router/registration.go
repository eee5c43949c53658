package router

import (
	"context"
	"net"
	"strconv"
	"sync"

	"github.com/ssbd-io/blockplane/internal/logger"
	"github.com/ssbd-io/blockplane/wire/clientproto"
	"github.com/ssbd-io/blockplane/worker/control"
)

// RegistrationServer accepts worker control connections (spec §4.8's proxy
// side of WorkerRegister/WorkerDeregister): it acks registration and tracks
// the worker's control address so Router.SetMembership can announce
// ProxyJoin to it. Keepalive policy (SetTimer cadence, eviction on missed
// deadline) is the proxy's load-balancing/launch-policy internals, out of
// scope here; this only maintains the address book Forward/SetMembership
// need.
type RegistrationServer struct {
	addr   string
	router *Router

	listener     net.Listener
	ready        chan struct{}
	shutdown     chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup
}

// NewRegistrationServer creates a RegistrationServer listening on addr.
func NewRegistrationServer(addr string, router *Router) *RegistrationServer {
	return &RegistrationServer{
		addr:     addr,
		router:   router,
		ready:    make(chan struct{}),
		shutdown: make(chan struct{}),
	}
}

// Ready is closed once the listener is bound.
func (s *RegistrationServer) Ready() <-chan struct{} { return s.ready }

// Addr returns the bound listener address.
func (s *RegistrationServer) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Serve accepts worker control connections until ctx is cancelled or Stop
// is called.
func (s *RegistrationServer) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
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
func (s *RegistrationServer) Stop() {
	s.shutdownOnce.Do(func() {
		close(s.shutdown)
		if s.listener != nil {
			s.listener.Close()
		}
	})
}

func (s *RegistrationServer) handleConn(conn net.Conn) {
	defer conn.Close()

	pkt, err := clientproto.ReadPacket(conn)
	if err != nil {
		return
	}
	if pkt.Header.Type != clientproto.TypeWorkerRegister {
		return
	}

	ip, port, err := control.DecodeRegister(pkt.Body)
	if err != nil {
		logger.Debug("proxy/router: bad WorkerRegister payload", "error", err)
		return
	}
	addr := net.JoinHostPort(ip, strconv.Itoa(int(port)))
	s.router.TrackWorker(addr)

	ack := clientproto.Packet{Header: clientproto.Header{Type: clientproto.TypeAck, Key: pkt.Header.Key}}
	if err := clientproto.WritePacket(conn, ack); err != nil {
		return
	}

	// Hold the connection open; a WorkerDeregister or a closed socket both
	// end this goroutine. Membership announcements go out on a fresh
	// short-lived connection (announceProxyJoin), not this one.
	for {
		pkt, err := clientproto.ReadPacket(conn)
		if err != nil {
			return
		}
		if pkt.Header.Type == clientproto.TypeWorkerDeregister {
			return
		}
	}
}
