package control

import (
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/ssbd-io/blockplane/internal/logger"
	"github.com/ssbd-io/blockplane/wire/clientproto"
	"github.com/ssbd-io/blockplane/worker/cache"
)

// DefaultDeadline is used when the proxy has not yet sent a SetTimer.
const DefaultDeadline = 30 * time.Second

// CacheExporter supplies the digest sent in WorkerDeregister payloads and
// accepts a CacheTransfer prefill on startup. *cache.Cache satisfies this.
type CacheExporter interface {
	Export() []cache.FileDigest
	Import(digests []cache.FileDigest)
	PolicyName() string
}

// Dialer opens the outbound control connection. Overridable by tests.
type Dialer func(network, address string) (net.Conn, error)

// Config configures a Controller.
type Config struct {
	ProxyAddr  string
	WorkerIP   string
	WorkerPort uint16
	Cache      CacheExporter
	Dial       Dialer
}

// Controller runs a worker's control channel against its proxy (spec §4.8):
// Connecting -> Registering -> Serving -> {Deregistering, Broken} -> Closed.
type Controller struct {
	cfg Config

	mu       sync.Mutex
	state    State
	conn     net.Conn
	deadline time.Time

	peers   map[string]*Controller // secondary connections opened on ProxyJoin
	peersMu sync.Mutex

	closeOnce sync.Once
	done      chan struct{}
}

// New creates a Controller in the Connecting state.
func New(cfg Config) *Controller {
	if cfg.Dial == nil {
		cfg.Dial = net.Dial
	}
	return &Controller{
		cfg:   cfg,
		state: Connecting,
		peers: make(map[string]*Controller),
		done:  make(chan struct{}),
	}
}

// State returns the controller's current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	logger.Debug("control: state transition", logger.WorkerID(c.cfg.ProxyAddr), logger.State(s))
}

// Run connects, registers, and serves the control channel until the
// keepalive deadline expires, a socket error occurs, or Close is called.
// It blocks until the channel reaches Closed.
func (c *Controller) Run() error {
	conn, err := c.cfg.Dial("tcp", c.cfg.ProxyAddr)
	if err != nil {
		c.setState(Broken)
		c.finish()
		return fmt.Errorf("control: connect %s: %w", c.cfg.ProxyAddr, err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.setState(Registering)
	if err := c.register(); err != nil {
		c.fail(err)
		return err
	}

	c.setState(Serving)
	c.resetDeadline(DefaultDeadline)

	err = c.serve()
	c.finish()
	return err
}

func (c *Controller) register() error {
	body := encodeRegister(c.cfg.WorkerIP, c.cfg.WorkerPort)
	pkt := clientproto.Packet{
		Header: clientproto.Header{Type: clientproto.TypeWorkerRegister},
		Body:   body,
	}
	if err := clientproto.WritePacket(c.conn, pkt); err != nil {
		return fmt.Errorf("control: send WorkerRegister: %w", err)
	}

	reply, err := clientproto.ReadPacket(c.conn)
	if err != nil {
		return fmt.Errorf("control: await register ack: %w", err)
	}
	if reply.Header.Type != clientproto.TypeAck {
		return fmt.Errorf("control: registration refused: %s", reply.Header.Type)
	}
	return nil
}

// resetDeadline sets the keepalive deadline to now+d. Only SetTimer calls
// this; other inbound messages leave the deadline unchanged. The controller
// keeps no separate last-activity timestamp.
func (c *Controller) resetDeadline(d time.Duration) {
	c.mu.Lock()
	c.deadline = time.Now().Add(d)
	c.mu.Unlock()
}

func (c *Controller) currentDeadline() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deadline
}

// serve reads control messages until the keepalive deadline fires or a
// socket/read error occurs.
func (c *Controller) serve() error {
	type readResult struct {
		pkt clientproto.Packet
		err error
	}
	reads := make(chan readResult, 1)

	go func() {
		pkt, err := clientproto.ReadPacket(c.conn)
		reads <- readResult{pkt, err}
	}()

	for {
		timer := time.NewTimer(time.Until(c.currentDeadline()))
		select {
		case <-c.done:
			timer.Stop()
			return c.deregister()
		case <-timer.C:
			return c.deregister()
		case res := <-reads:
			timer.Stop()
			if res.err != nil {
				c.setState(Broken)
				return fmt.Errorf("control: read: %w", res.err)
			}
			if err := c.handle(res.pkt); err != nil {
				c.setState(Broken)
				return err
			}
			go func() {
				pkt, err := clientproto.ReadPacket(c.conn)
				reads <- readResult{pkt, err}
			}()
		}
	}
}

func (c *Controller) handle(pkt clientproto.Packet) error {
	switch pkt.Header.Type {
	case clientproto.TypeSetTimer:
		ms, err := decodeSetTimer(pkt.Body)
		if err != nil {
			return err
		}
		c.resetDeadline(time.Duration(ms) * time.Millisecond)
		return nil
	case clientproto.TypeProxyJoin:
		host, port, err := decodeProxyJoin(pkt.Body)
		if err != nil {
			return err
		}
		c.joinPeer(host, port)
		return nil
	case clientproto.TypeCacheTransfer:
		return c.handleCacheTransfer(pkt.Body)
	default:
		logger.Debug("control: ignoring unexpected message", "type", pkt.Header.Type.String())
		return nil
	}
}

// handleCacheTransfer prefills the cache from a startup CacheTransfer
// message. Only LRU and FIFO benefit from a prefill; NONE's budget-less
// growth makes one pointless, so the digest is decoded (to keep the
// connection in sync) but discarded for that policy (spec §4.5, §4.8).
func (c *Controller) handleCacheTransfer(body []byte) error {
	digests, err := decodeCacheDigest(body)
	if err != nil {
		return err
	}
	if c.cfg.Cache == nil {
		return nil
	}
	switch c.cfg.Cache.PolicyName() {
	case "LRU", "FIFO":
		c.cfg.Cache.Import(digests)
	}
	return nil
}

// joinPeer opens a secondary control connection to a newly announced peer
// proxy, on the next odd port (spec §4.8).
func (c *Controller) joinPeer(host string, port uint16) {
	odd := nextOddPort(port)
	addr := net.JoinHostPort(host, strconv.Itoa(int(odd)))

	c.peersMu.Lock()
	if _, exists := c.peers[addr]; exists {
		c.peersMu.Unlock()
		return
	}
	peer := New(Config{
		ProxyAddr:  addr,
		WorkerIP:   c.cfg.WorkerIP,
		WorkerPort: c.cfg.WorkerPort,
		Cache:      c.cfg.Cache,
		Dial:       c.cfg.Dial,
	})
	c.peers[addr] = peer
	c.peersMu.Unlock()

	go func() {
		if err := peer.Run(); err != nil {
			logger.Warn("control: secondary connection to peer proxy failed", logger.WorkerID(addr), logger.Err(err))
		}
	}()
}

func nextOddPort(port uint16) uint16 {
	if port%2 == 0 {
		return port + 1
	}
	return port + 2
}

// deregister sends WorkerDeregister with the cache digest and transitions
// to Closed.
func (c *Controller) deregister() error {
	c.setState(Deregistering)

	var digest []cache.FileDigest
	if c.cfg.Cache != nil {
		digest = c.cfg.Cache.Export()
	}
	pkt := clientproto.Packet{
		Header: clientproto.Header{Type: clientproto.TypeWorkerDeregister},
		Body:   encodeCacheDigest(digest),
	}
	err := clientproto.WritePacket(c.conn, pkt)
	return err
}

func (c *Controller) fail(err error) {
	c.setState(Broken)
	c.finish()
}

func (c *Controller) finish() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	if c.State() != Broken {
		c.setState(Closed)
	}
}

// Close requests a graceful shutdown: the control channel sends
// WorkerDeregister and transitions to Closed.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
