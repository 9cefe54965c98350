package rodvision

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultBuffers is the number of requests cycled through the device
	DefaultBuffers = 4
	// MinBuffers keeps one buffer with the device while another is consumed
	MinBuffers = 2
	// MaxBuffers bounds the request ring
	MaxBuffers = 16
	// DefaultSettle is how long Stop waits for in flight completions before
	// stopping the device
	DefaultSettle = 100 * time.Millisecond
)

// Option configures an Engine
type Option func(*Engine)

// WithBuffers sets the number of frame buffers and requests, clamped to
// MinBuffers..MaxBuffers
func WithBuffers(n int) Option {
	return func(e *Engine) {
		if n < MinBuffers {
			n = MinBuffers
		}
		if n > MaxBuffers {
			n = MaxBuffers
		}
		e.buffers = n
	}
}

// WithSettle sets the pause between marking the engine stopped and stopping
// the device
func WithSettle(d time.Duration) Option {
	return func(e *Engine) {
		if d >= 0 {
			e.settle = d
		}
	}
}

// Stats are running counters of an Engine
type Stats struct {
	// Captured frames handed to the caller
	Captured uint64
	// Timeouts of CaptureFrame
	Timeouts uint64
	// Recycled completions that went stale in the ready queue and were
	// resubmitted unread
	Recycled uint64
	// Cancelled requests reported by the device
	Cancelled uint64
	// RequeueErrors counts requests the device refused to take back
	RequeueErrors uint64
	// Pending completed requests waiting to be consumed
	Pending int
	// FramesOutstanding are frame copies not yet released
	FramesOutstanding int64
	// FramesAllocated are frame copies allocated since Start
	FramesAllocated int64
}

// Engine keeps a fixed ring of capture requests cycling through a device and
// hands out copies of completed frames.  Completions arrive on the device's
// goroutine and are handed to the single consumer through a FIFO guarded by
// a mutex and condition variable.
type Engine struct {
	// device producing frames
	device Device
	// buffers is the number of requests in the ring
	buffers int
	// settle is the pause in Stop before stopping the device
	settle time.Duration
	// lifecycle serialises Start and Stop
	lifecycle sync.Mutex
	// mu guards ready, requests, pool, frames and res
	mu   sync.Mutex
	cond *sync.Cond
	// ready holds completed requests in completion order
	ready []*Request
	// requests is the ring of all requests
	requests []*Request
	// pool owns the request buffers
	pool *BufferPool
	// frames provides caller owned copies
	frames *framePool
	// res of the current session
	res Resolution
	// running is true between Start and Stop
	running atomic.Bool
	// counters
	captured      atomic.Uint64
	timeouts      atomic.Uint64
	recycled      atomic.Uint64
	cancelled     atomic.Uint64
	requeueErrors atomic.Uint64
}

// NewEngine returns an engine capturing from the device
func NewEngine(device Device, opts ...Option) *Engine {

	e := &Engine{
		device:  device,
		buffers: DefaultBuffers,
		settle:  DefaultSettle,
	}

	e.cond = sync.NewCond(&e.mu)

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Start configures the device, allocates the buffer ring and queues every
// request.  On error nothing is left allocated or streaming.
func (e *Engine) Start(res Resolution, params Parameters) error {

	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	if e.running.Load() {
		return ErrRunning
	}

	if err := res.Validate(); err != nil {
		return err
	}

	if err := params.Validate(); err != nil {
		return err
	}

	if err := e.device.Configure(res, params); err != nil {
		return fmt.Errorf("configure device: %w", err)
	}

	pool, err := NewBufferPool(e.buffers, res)

	if err != nil {
		return err
	}

	requests := make([]*Request, 0, e.buffers)

	for i := 0; i < e.buffers; i++ {
		buf, ok := pool.Get()

		if !ok {
			pool.Close()
			return fmt.Errorf("%w: buffer %d unavailable", ErrAllocation, i)
		}

		requests = append(requests, NewRequest(i, buf))
	}

	e.mu.Lock()
	e.pool = pool
	e.requests = requests
	e.ready = make([]*Request, 0, e.buffers)
	e.frames = newFramePool(e.buffers, res.FrameBytes())
	e.res = res
	e.mu.Unlock()

	if err := e.device.Start(e.onComplete); err != nil {
		e.release()
		return fmt.Errorf("start device: %w", err)
	}

	e.running.Store(true)

	for _, req := range requests {
		if err := e.submit(req); err != nil {
			e.running.Store(false)
			_ = e.device.Stop()
			e.release()
			return fmt.Errorf("queue request %d: %w", req.ID(), err)
		}
	}

	return nil
}

// CaptureFrame waits up to timeout for a completed frame and returns a copy
// of it.  The request is resubmitted to the device before returning.  A
// timeout returns ErrTimeout and takes nothing from the frame pool.  Only
// one goroutine may capture from an engine at a time.
func (e *Engine) CaptureFrame(timeout time.Duration) (*Frame, error) {

	if !e.running.Load() {
		return nil, ErrNotRunning
	}

	req, frames, err := e.waitReady(timeout)

	if err != nil {
		if errors.Is(err, ErrTimeout) {
			e.timeouts.Add(1)
		}
		return nil, err
	}

	buf := req.Buffer()
	data := frames.get()
	copy(data, buf.Data())

	frame := &Frame{
		Data:      data,
		Width:     buf.width,
		Height:    buf.height,
		Sequence:  req.Sequence(),
		Timestamp: time.Now(),
		pool:      frames,
	}

	e.requeue(req)
	e.resubmitIdle()
	e.captured.Add(1)

	return frame, nil
}

// waitReady blocks until a completed request is available, the timeout
// expires or the engine stops, and pops the oldest completion
func (e *Engine) waitReady(timeout time.Duration) (*Request, *framePool, error) {

	e.mu.Lock()
	defer e.mu.Unlock()

	expired := timeout <= 0

	if !expired {
		timer := time.AfterFunc(timeout, func() {
			e.mu.Lock()
			expired = true
			e.mu.Unlock()
			e.cond.Broadcast()
		})
		defer timer.Stop()
	}

	for len(e.ready) == 0 {
		if !e.running.Load() {
			return nil, nil, ErrStopped
		}

		if expired {
			return nil, nil, ErrTimeout
		}

		e.cond.Wait()
	}

	req := e.ready[0]
	copy(e.ready, e.ready[1:])
	e.ready[len(e.ready)-1] = nil
	e.ready = e.ready[:len(e.ready)-1]

	return req, e.frames, nil
}

// onComplete is the device completion handler
func (e *Engine) onComplete(req *Request, status CompletionStatus) {

	var stale *Request

	e.mu.Lock()

	if status == StatusCancelled {
		if err := req.transition(Cancelled); err == nil {
			e.cancelled.Add(1)
		}
		e.mu.Unlock()
		return
	}

	if err := req.transition(Completed); err != nil {
		// not a request we queued
		e.mu.Unlock()
		return
	}

	if !e.running.Load() {
		// left Completed for Stop to reset
		e.mu.Unlock()
		return
	}

	e.ready = append(e.ready, req)

	// always leave at least one request with the device
	if len(e.ready) > len(e.requests)-1 {
		stale = e.ready[0]
		copy(e.ready, e.ready[1:])
		e.ready[len(e.ready)-1] = nil
		e.ready = e.ready[:len(e.ready)-1]
		e.recycled.Add(1)
	}

	e.cond.Signal()
	e.mu.Unlock()

	if stale != nil {
		e.requeue(stale)
	}
}

// submit moves a request to Queued and hands it to the device
func (e *Engine) submit(req *Request) error {

	if err := req.transition(Queued); err != nil {
		return err
	}

	if err := e.device.Queue(req); err != nil {
		req.reset()
		return err
	}

	return nil
}

// requeue resubmits a consumed or stale request while running
func (e *Engine) requeue(req *Request) {

	if !e.running.Load() {
		return
	}

	if err := e.submit(req); err != nil {
		e.requeueErrors.Add(1)
	}
}

// resubmitIdle retries requests left Idle by a refused requeue
func (e *Engine) resubmitIdle() {

	if !e.running.Load() {
		return
	}

	e.mu.Lock()
	requests := e.requests
	e.mu.Unlock()

	for _, req := range requests {
		if req.State() == Idle {
			e.requeue(req)
		}
	}
}

// Stop halts capture.  Completions arriving from now on are not queued or
// resubmitted, the device is stopped after the settle period and every
// request is returned to Idle.
func (e *Engine) Stop() error {

	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	if !e.running.CompareAndSwap(true, false) {
		return ErrNotRunning
	}

	// wake a waiting CaptureFrame
	e.mu.Lock()
	e.cond.Broadcast()
	e.mu.Unlock()

	time.Sleep(e.settle)

	err := e.device.Stop()

	e.release()

	if err != nil {
		return fmt.Errorf("stop device: %w", err)
	}

	return nil
}

// release drops pending completions, resets every request and returns the
// buffers to the pool before closing it
func (e *Engine) release() {

	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.ready {
		e.ready[i] = nil
	}

	e.ready = e.ready[:0]

	for _, req := range e.requests {
		req.reset()

		if e.pool != nil {
			e.pool.Return(req.Buffer())
		}
	}

	if e.pool != nil {
		e.pool.Close()
	}
}

// Running reports whether the engine is between Start and Stop
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Resolution returns the resolution of the current or last session
func (e *Engine) Resolution() Resolution {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.res
}

// RequestStates returns the state of every request in ring order
func (e *Engine) RequestStates() []RequestState {

	e.mu.Lock()
	defer e.mu.Unlock()

	states := make([]RequestState, len(e.requests))

	for i, req := range e.requests {
		states[i] = req.State()
	}

	return states
}

// Stats returns a snapshot of the engine counters
func (e *Engine) Stats() Stats {

	e.mu.Lock()
	pending := len(e.ready)
	frames := e.frames
	e.mu.Unlock()

	s := Stats{
		Captured:      e.captured.Load(),
		Timeouts:      e.timeouts.Load(),
		Recycled:      e.recycled.Load(),
		Cancelled:     e.cancelled.Load(),
		RequeueErrors: e.requeueErrors.Load(),
		Pending:       pending,
	}

	if frames != nil {
		s.FramesOutstanding = frames.outstanding.Load()
		s.FramesAllocated = frames.allocated.Load()
	}

	return s
}
