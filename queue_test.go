package ringlog

import (
	"sync"
	"testing"
	"time"
)

func TestUnboundedQueuePushPopFIFO(t *testing.T) {
	q := newUnboundedQueue()
	q.Push(Record{Payload: []byte("a")})
	q.Push(Record{Payload: []byte("b")})

	r1, ok := q.TryPop()
	if !ok || string(r1.Payload) != "a" {
		t.Fatalf("first pop = %+v, ok=%v, want payload a", r1, ok)
	}
	r2, ok := q.TryPop()
	if !ok || string(r2.Payload) != "b" {
		t.Fatalf("second pop = %+v, ok=%v, want payload b", r2, ok)
	}
	if _, ok := q.TryPop(); ok {
		t.Fatal("TryPop on empty queue returned ok=true")
	}
}

func TestUnboundedQueueShutdownDropsFuturePushes(t *testing.T) {
	q := newUnboundedQueue()
	q.Shutdown()
	if q.Push(Record{}) {
		t.Fatal("Push after Shutdown returned true, want false")
	}
}

func TestUnboundedQueuePopUnblocksOnShutdown(t *testing.T) {
	q := newUnboundedQueue()
	done := make(chan struct{})
	go func() {
		_, ok := q.Pop()
		if ok {
			t.Error("Pop after Shutdown on an empty queue returned ok=true")
		}
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	q.Shutdown()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Pop did not unblock within 1s of Shutdown")
	}
}

func TestUnboundedQueueSequenceAssignmentIsMonotonic(t *testing.T) {
	q := newUnboundedQueue()
	seq := &SequenceCounter{}
	q.attachSequence(seq)

	q.Push(Record{Payload: []byte("a")})
	q.Push(Record{Payload: []byte("b")})

	r1, _ := q.TryPop()
	r2, _ := q.TryPop()
	if !r1.HasSequence() || !r2.HasSequence() {
		t.Fatal("expected both records to carry a sequence number")
	}
	if r2.Sequence <= r1.Sequence {
		t.Fatalf("sequence not monotonic: %d then %d", r1.Sequence, r2.Sequence)
	}
}

func TestBoundedQueueBlocksProducerWhenFull(t *testing.T) {
	q := newBoundedQueue(1)
	if !q.Push(Record{Payload: []byte("a")}) {
		t.Fatal("first push into a capacity-1 queue should succeed")
	}

	pushed := make(chan bool, 1)
	go func() {
		pushed <- q.Push(Record{Payload: []byte("b")})
	}()

	select {
	case <-pushed:
		t.Fatal("second Push returned before the queue had room")
	case <-time.After(30 * time.Millisecond):
	}

	if _, ok := q.TryPop(); !ok {
		t.Fatal("TryPop should free a slot for the blocked producer")
	}

	select {
	case ok := <-pushed:
		if !ok {
			t.Fatal("blocked Push returned false after room freed up")
		}
	case <-time.After(time.Second):
		t.Fatal("blocked Push did not unblock after a slot freed up")
	}
}

func TestBoundedQueueShutdownWakesBlockedProducer(t *testing.T) {
	q := newBoundedQueue(1)
	q.Push(Record{Payload: []byte("a")})

	pushed := make(chan bool, 1)
	go func() { pushed <- q.Push(Record{Payload: []byte("b")}) }()

	time.Sleep(20 * time.Millisecond)
	q.Shutdown()

	select {
	case ok := <-pushed:
		if ok {
			t.Fatal("Push blocked on a full queue that was then shut down should return false")
		}
	case <-time.After(time.Second):
		t.Fatal("blocked Push did not unblock after Shutdown")
	}
}

func TestBoundedQueueWrapsAroundCircularBuffer(t *testing.T) {
	q := newBoundedQueue(2)
	q.Push(Record{Payload: []byte("a")})
	q.Push(Record{Payload: []byte("b")})
	q.TryPop()
	q.Push(Record{Payload: []byte("c")})

	r, _ := q.TryPop()
	if string(r.Payload) != "b" {
		t.Fatalf("expected b, got %s", r.Payload)
	}
	r, _ = q.TryPop()
	if string(r.Payload) != "c" {
		t.Fatalf("expected c, got %s", r.Payload)
	}
}

func TestSequenceCounterConcurrentNextIsUnique(t *testing.T) {
	c := &SequenceCounter{}
	const n = 200
	seen := make(chan uint64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seen <- c.Next()
		}()
	}
	wg.Wait()
	close(seen)

	unique := make(map[uint64]bool, n)
	for v := range seen {
		if unique[v] {
			t.Fatalf("duplicate sequence value %d", v)
		}
		unique[v] = true
	}
	if len(unique) != n {
		t.Fatalf("got %d unique values, want %d", len(unique), n)
	}
}

func TestNewHandoffQueueSelectsImplementationByConfig(t *testing.T) {
	if _, ok := newHandoffQueue(Config{}, nil).(*unboundedQueue); !ok {
		t.Error("default Config should select unboundedQueue")
	}
	if _, ok := newHandoffQueue(Config{Backpressure: true, QueueDepth: 4}, nil).(*boundedQueue); !ok {
		t.Error("Backpressure=true should select boundedQueue")
	}

	custom := newUnboundedQueue()
	if got := newHandoffQueue(Config{Queue: custom}, nil); got != HandoffQueue(custom) {
		t.Error("a caller-supplied Queue should be returned unchanged")
	}
}
