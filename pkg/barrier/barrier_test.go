package barrier

import (
	"sync"
	"testing"
	"time"

	"radscan-go-migration/pkg/errors"
)

func TestAcquireReleaseJoin(t *testing.T) {
	b := New("axis_a")

	b.Acquire()
	if b.Outstanding() != 1 {
		t.Fatalf("Outstanding = %d, want 1", b.Outstanding())
	}
	if err := b.Release(None); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if b.Outstanding() != 0 {
		t.Fatalf("Outstanding after release = %d", b.Outstanding())
	}

	// Must not block with nothing in flight
	b.Join()
	b.Join()
}

func TestJoinBlocksUntilZero(t *testing.T) {
	b := New("axis_b")
	b.Acquire()
	b.Acquire()

	joined := make(chan struct{})
	go func() {
		b.Join()
		close(joined)
	}()

	select {
	case <-joined:
		t.Fatal("Join returned with 2 actions outstanding")
	case <-time.After(20 * time.Millisecond):
	}

	if err := b.Release(None); err != nil {
		t.Fatalf("Release: %v", err)
	}

	select {
	case <-joined:
		t.Fatal("Join returned with 1 action outstanding")
	case <-time.After(20 * time.Millisecond):
	}

	if err := b.Release(None); err != nil {
		t.Fatalf("Release: %v", err)
	}

	select {
	case <-joined:
	case <-time.After(time.Second):
		t.Fatal("Join did not return after count reached zero")
	}
}

func TestOverRelease(t *testing.T) {
	b := New("axis_a")

	err := b.Release(None)
	if err == nil {
		t.Fatal("Release with zero outstanding accepted")
	}
	if !errors.Is(err, errors.ErrBarrierMisuse) {
		t.Errorf("error = %v, want BARRIER_MISUSE", err)
	}
	if b.Outstanding() != 0 {
		t.Errorf("count corrupted by rejected release: %d", b.Outstanding())
	}

	b.Acquire()
	if err := b.Release(None); err != nil {
		t.Fatalf("matched Release: %v", err)
	}
	if err := b.Release(None); !errors.Is(err, errors.ErrBarrierMisuse) {
		t.Errorf("second release error = %v, want BARRIER_MISUSE", err)
	}
}

func TestPayloadDelivery(t *testing.T) {
	b := New("axis_a")

	b.Acquire()
	b.Acquire()
	b.Release(None)
	b.Release(EndOfScan)

	p, ok := b.Take()
	if !ok || p != None {
		t.Errorf("first Take = %v, %v", p, ok)
	}
	p, ok = b.Take()
	if !ok || p != EndOfScan {
		t.Errorf("second Take = %v, %v", p, ok)
	}
	if _, ok := b.Take(); ok {
		t.Error("Take returned a payload from an empty queue")
	}
}

func TestConcurrentCompletion(t *testing.T) {
	b := New("axis_b")
	const n = 100

	for i := 0; i < n; i++ {
		b.Acquire()
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := b.Release(None); err != nil {
				t.Errorf("Release: %v", err)
			}
		}()
	}

	b.Join()
	wg.Wait()
	if b.Outstanding() != 0 {
		t.Errorf("Outstanding = %d after join", b.Outstanding())
	}
}

func TestJoinTimeout(t *testing.T) {
	b := New("axis_z")
	b.Acquire()

	start := time.Now()
	if b.JoinTimeout(30 * time.Millisecond) {
		t.Error("JoinTimeout reported success with an action outstanding")
	}
	if time.Since(start) > time.Second {
		t.Error("JoinTimeout did not return near its deadline")
	}

	b.Release(None)
	if !b.JoinTimeout(time.Second) {
		t.Error("JoinTimeout failed with nothing outstanding")
	}
}

func TestJoinTimeoutLateCompletion(t *testing.T) {
	b := New("axis_z")
	b.Acquire()

	// A callback that never arrives within the bound must not leave
	// anything waiting on the barrier once the join has given up.
	if b.JoinTimeout(20 * time.Millisecond) {
		t.Fatal("JoinTimeout reported success with an action outstanding")
	}

	// The completion shows up late; the token is retired normally.
	if err := b.Release(None); err != nil {
		t.Fatalf("late Release: %v", err)
	}
	b.Join()
	if b.Outstanding() != 0 {
		t.Errorf("Outstanding = %d after late completion", b.Outstanding())
	}
	if !b.JoinTimeout(time.Second) {
		t.Error("JoinTimeout failed after the late completion")
	}
}
