// Package writer implements the per-socket ordered write discipline
// described in spec §4.7 (C7): at most one outstanding write per
// connection, with further writes queued FIFO. It generalizes the
// teacher's synchronous internal/adapter/smb LockedWriter (a mutex
// serializing direct conn.Write calls) into an async, queue-drained
// writer so a slow write never blocks the goroutine that produced it --
// required once the storage-node and worker servers start pipelining
// inbound requests on a connection (spec §4.2, §5).
package writer

import (
	"errors"
	"io"
	"sync"
)

// ErrBroken is returned by Submit once a prior write has failed; the
// queue is not drained further and the owner is expected to tear down
// the connection (spec §4.7: "on error ... the connection is considered
// broken").
var ErrBroken = errors.New("writer: connection broken")

// Job is a single write. Payload is the exact bytes to write; callers
// build pre-serialized buffers (e.g. encoded packet headers) so a
// headers-only response need not re-serialize its body.
type Job struct {
	Payload []byte
	// Done, if non-nil, is closed after the job is written (or the
	// writer breaks), letting a caller block on its own write landing
	// without blocking anyone else's.
	Done chan error
}

// Writer serializes writes to w: Submit enqueues a Job and returns
// immediately; a single background goroutine drains the queue in order.
type Writer struct {
	w io.Writer

	mu     sync.Mutex
	queue  []Job
	closed bool
	broken error

	wake chan struct{}
	once sync.Once
	done chan struct{}
}

// New starts a Writer draining writes to w on a dedicated goroutine.
func New(w io.Writer) *Writer {
	wr := &Writer{
		w:    w,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go wr.run()
	return wr
}

// Submit enqueues payload for writing. It never blocks on the write
// itself; it returns ErrBroken immediately if a previous write already
// failed.
func (wr *Writer) Submit(payload []byte) error {
	return wr.submit(Job{Payload: payload})
}

// SubmitWait enqueues payload and blocks until it has been written (or
// the writer breaks), returning the resulting error.
func (wr *Writer) SubmitWait(payload []byte) error {
	done := make(chan error, 1)
	if err := wr.submit(Job{Payload: payload, Done: done}); err != nil {
		return err
	}
	return <-done
}

func (wr *Writer) submit(job Job) error {
	wr.mu.Lock()
	if wr.closed {
		wr.mu.Unlock()
		return ErrBroken
	}
	if wr.broken != nil {
		wr.mu.Unlock()
		return ErrBroken
	}
	wr.queue = append(wr.queue, job)
	wr.mu.Unlock()

	select {
	case wr.wake <- struct{}{}:
	default:
	}
	return nil
}

func (wr *Writer) run() {
	for {
		job, ok := wr.next()
		if !ok {
			select {
			case <-wr.wake:
				continue
			case <-wr.done:
				return
			}
		}

		_, err := wr.w.Write(job.Payload)
		if job.Done != nil {
			job.Done <- err
			close(job.Done)
		}
		if err != nil {
			wr.breakWith(err)
			return
		}
	}
}

func (wr *Writer) next() (Job, bool) {
	wr.mu.Lock()
	defer wr.mu.Unlock()
	if len(wr.queue) == 0 {
		return Job{}, false
	}
	job := wr.queue[0]
	wr.queue = wr.queue[1:]
	return job, true
}

func (wr *Writer) breakWith(err error) {
	wr.mu.Lock()
	defer wr.mu.Unlock()
	if wr.broken == nil {
		wr.broken = err
	}
	// Fail every job still queued; none of them will ever be written,
	// per §4.7's "queue is not drained" rule.
	for _, job := range wr.queue {
		if job.Done != nil {
			job.Done <- err
			close(job.Done)
		}
	}
	wr.queue = nil
}

// Broken reports whether a prior write has failed.
func (wr *Writer) Broken() error {
	wr.mu.Lock()
	defer wr.mu.Unlock()
	return wr.broken
}

// Close stops the drain goroutine and returns without waiting for it. The
// goroutine keeps writing jobs it finds queued and exits once the queue is
// empty, so jobs submitted before Close are normally still written; a job
// whose wake-up arrives together with Close can be left unwritten.
func (wr *Writer) Close() error {
	wr.once.Do(func() {
		wr.mu.Lock()
		wr.closed = true
		wr.mu.Unlock()
		close(wr.done)
	})
	return nil
}
