// Package strand implements the per-file serializer (spec §4.6, C6):
// every FileId has at most one executor strand within a worker; tasks
// posted to a strand run to completion in submission order without
// running concurrently with each other, while a task awaiting network
// I/O never blocks other strands. Strands are created lazily and
// reclaimed after a quiescence period.
package strand

import (
	"sync"
	"time"

	"github.com/ssbd-io/blockplane/ids"
)

// DefaultQuiescence is how long a strand survives with an empty queue
// before Pool reclaims it (spec §4.6: "may be reclaimed after a
// quiescence period").
const DefaultQuiescence = 30 * time.Second

// Task is a unit of work posted to a strand. It runs on a goroutine
// borrowed from the pool's shared scheduling, so blocking on I/O inside
// Task only suspends that strand, never another one.
type Task func()

// Pool manages one strand per FileId, created on first reference.
type Pool struct {
	quiescence time.Duration

	mu      sync.Mutex
	strands map[ids.FileID]*strand
}

// NewPool creates a Pool. quiescence <= 0 uses DefaultQuiescence.
func NewPool(quiescence time.Duration) *Pool {
	if quiescence <= 0 {
		quiescence = DefaultQuiescence
	}
	return &Pool{
		quiescence: quiescence,
		strands:    make(map[ids.FileID]*strand),
	}
}

// strand is a single file's FIFO task queue, drained by one goroutine at
// a time so tasks for this file never run concurrently with each other.
type strand struct {
	mu      sync.Mutex
	queue   []Task
	running bool

	idleTimer *time.Timer
}

// Post enqueues task on file's strand, creating the strand if this is
// its first reference. Post returns immediately; task runs later,
// strictly after every task already queued on the same strand.
func (p *Pool) Post(file ids.FileID, task Task) {
	s := p.getOrCreate(file)

	s.mu.Lock()
	s.queue = append(s.queue, task)
	if s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
	}
	shouldStart := !s.running
	if shouldStart {
		s.running = true
	}
	s.mu.Unlock()

	if shouldStart {
		go p.drain(file, s)
	}
}

func (p *Pool) getOrCreate(file ids.FileID) *strand {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s, ok := p.strands[file]; ok {
		return s
	}
	s := &strand{}
	p.strands[file] = s
	return s
}

// drain runs queued tasks to completion in submission order, then either
// picks up more work that arrived meanwhile or arms the strand's
// reclamation timer.
func (p *Pool) drain(file ids.FileID, s *strand) {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.running = false
			s.idleTimer = time.AfterFunc(p.quiescence, func() { p.reclaim(file, s) })
			s.mu.Unlock()
			return
		}
		task := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		task()
	}
}

// reclaim removes a strand that has been idle for the quiescence period
// and still has no queued work.
func (p *Pool) reclaim(file ids.FileID, s *strand) {
	s.mu.Lock()
	idle := len(s.queue) == 0 && !s.running
	s.mu.Unlock()
	if !idle {
		return
	}

	p.mu.Lock()
	if cur, ok := p.strands[file]; ok && cur == s {
		delete(p.strands, file)
	}
	p.mu.Unlock()
}

// Len reports how many strands are currently live, for tests and
// diagnostics.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.strands)
}
