package strand

import (
	"sync"
	"testing"
	"time"

	"github.com/ssbd-io/blockplane/ids"
)

func testFile(fill byte) ids.FileID {
	var f ids.FileID
	for i := range f {
		f[i] = fill
	}
	return f
}

func TestTasksOnSameStrandRunInOrder(t *testing.T) {
	p := NewPool(time.Minute)
	file := testFile(1)

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	wg.Add(5)

	for i := 0; i < 5; i++ {
		i := i
		p.Post(file, func() {
			defer wg.Done()
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}

	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	for i, v := range order {
		if v != i {
			t.Fatalf("expected in-order execution, got %v", order)
		}
	}
}

func TestDifferentStrandsRunConcurrently(t *testing.T) {
	p := NewPool(time.Minute)
	a, b := testFile(1), testFile(2)

	release := make(chan struct{})
	started := make(chan struct{}, 2)

	var wg sync.WaitGroup
	wg.Add(2)

	p.Post(a, func() {
		started <- struct{}{}
		<-release
		wg.Done()
	})
	p.Post(b, func() {
		started <- struct{}{}
		<-release
		wg.Done()
	})

	// Both strands' first task should start without waiting on each
	// other.
	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(time.Second):
			t.Fatalf("expected both strands' tasks to start concurrently")
		}
	}
	close(release)
	wg.Wait()
}

func TestStrandIsReclaimedAfterQuiescence(t *testing.T) {
	p := NewPool(20 * time.Millisecond)
	file := testFile(3)

	done := make(chan struct{})
	p.Post(file, func() { close(done) })
	<-done

	if p.Len() != 1 {
		t.Fatalf("expected 1 live strand immediately after a task, got %d", p.Len())
	}

	deadline := time.Now().Add(time.Second)
	for p.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if p.Len() != 0 {
		t.Fatalf("expected strand to be reclaimed after quiescence")
	}
}

func TestPostAfterReclaimCreatesFreshStrand(t *testing.T) {
	p := NewPool(10 * time.Millisecond)
	file := testFile(4)

	done1 := make(chan struct{})
	p.Post(file, func() { close(done1) })
	<-done1

	time.Sleep(100 * time.Millisecond) // let it reclaim

	done2 := make(chan struct{})
	p.Post(file, func() { close(done2) })

	select {
	case <-done2:
	case <-time.After(time.Second):
		t.Fatalf("expected a fresh strand to run the task after reclamation")
	}
}
