package rodvision

import (
	"errors"
	"testing"
)

func TestCanTransition(t *testing.T) {

	tests := []struct {
		from     RequestState
		to       RequestState
		expected bool
	}{
		{Idle, Queued, true},
		{Idle, Completed, false},
		{Idle, Cancelled, false},
		{Queued, Completed, true},
		{Queued, Cancelled, true},
		{Queued, Idle, false},
		{Completed, Queued, true},
		{Completed, Idle, true},
		{Completed, Cancelled, false},
		{Cancelled, Idle, true},
		{Cancelled, Queued, false},
		{Cancelled, Completed, false},
	}

	for _, tc := range tests {
		if got := CanTransition(tc.from, tc.to); got != tc.expected {
			t.Errorf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.expected, got)
		}
	}
}

func TestRequestLifecycle(t *testing.T) {

	pool, err := NewBufferPool(1, Resolution{Width: 4, Height: 2})

	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}

	buf, _ := pool.Get()
	req := NewRequest(7, buf)

	if req.State() != Idle || req.ID() != 7 || req.Buffer().Len() != 24 {
		t.Fatalf("unexpected new request %d %s %d", req.ID(), req.State(), req.Buffer().Len())
	}

	steps := []RequestState{Queued, Completed, Queued, Cancelled, Idle}

	for _, s := range steps {
		if err := req.transition(s); err != nil {
			t.Fatalf("transition to %s: unexpected error %v", s, err)
		}
	}

	if req.Submissions() != 2 {
		t.Errorf("expected 2 submissions, got %d", req.Submissions())
	}

	if err := req.transition(Completed); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestBufferPool(t *testing.T) {

	res := Resolution{Width: 10, Height: 5}
	pool, err := NewBufferPool(3, res)

	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}

	if pool.Size() != 3 || pool.Available() != 3 {
		t.Errorf("expected 3 buffers, got size %d available %d", pool.Size(), pool.Available())
	}

	var taken []*FrameBuffer

	for i := 0; i < 3; i++ {
		b, ok := pool.Get()

		if !ok {
			t.Fatalf("buffer %d: pool empty", i)
		}

		if b.Len() != 150 || b.Resolution() != res {
			t.Errorf("buffer %d: expected 150 bytes at %s, got %d at %s", i, res, b.Len(), b.Resolution())
		}

		taken = append(taken, b)
	}

	if _, ok := pool.Get(); ok {
		t.Errorf("expected empty pool")
	}

	for _, b := range taken {
		pool.Return(b)
	}

	// returning to a full pool drops the buffer
	pool.Return(&FrameBuffer{})

	if pool.Available() != 3 {
		t.Errorf("expected 3 available, got %d", pool.Available())
	}

	pool.Close()
	pool.Close()

	if _, err := NewBufferPool(2, Resolution{}); !errors.Is(err, ErrInvalidResolution) {
		t.Errorf("expected ErrInvalidResolution, got %v", err)
	}

	if _, err := NewBufferPool(0, res); !errors.Is(err, ErrAllocation) {
		t.Errorf("expected ErrAllocation, got %v", err)
	}
}

func TestFramePool(t *testing.T) {

	p := newFramePool(2, 12)

	a := p.get()
	b := p.get()

	if len(a) != 12 || len(b) != 12 {
		t.Fatalf("expected 12 byte frames, got %d and %d", len(a), len(b))
	}

	p.put(a)
	p.put(b)

	c := p.get()
	p.put(c)

	if p.allocated.Load() != 2 || p.outstanding.Load() != 0 {
		t.Errorf("expected 2 allocated and 0 outstanding, got %d and %d",
			p.allocated.Load(), p.outstanding.Load())
	}
}

func TestRequestQueue(t *testing.T) {

	q := NewRequestQueue(2)

	r1 := NewRequest(1, nil)
	r2 := NewRequest(2, nil)

	if err := q.Push(r1); err != nil {
		t.Fatalf("unexpected error %v", err)
	}

	if err := q.Push(r2); err != nil {
		t.Fatalf("unexpected error %v", err)
	}

	if err := q.Push(NewRequest(3, nil)); !errors.Is(err, ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}

	if got, ok := q.TryNext(); !ok || got != r1 {
		t.Errorf("expected request 1 first")
	}

	var drained []int
	q.Drain(func(r *Request) { drained = append(drained, r.ID()) })

	if len(drained) != 1 || drained[0] != 2 || q.Len() != 0 {
		t.Errorf("expected to drain request 2, got %v", drained)
	}

	done := make(chan struct{})
	close(done)

	if _, ok := q.Next(done); ok {
		t.Errorf("expected Next to return false once done")
	}
}
