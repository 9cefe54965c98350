package rodvision

import (
	"fmt"
	"sync/atomic"
)

// RequestState is the lifecycle state of a capture request
type RequestState int32

const (
	// Idle requests are allocated but not submitted
	Idle RequestState = iota
	// Queued requests are with the device waiting to be filled
	Queued
	// Completed requests hold a filled buffer waiting to be consumed
	Completed
	// Cancelled requests were aborted by the device
	Cancelled
)

// String returns the state name
func (s RequestState) String() string {

	switch s {
	case Idle:
		return "idle"
	case Queued:
		return "queued"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	}

	return fmt.Sprintf("state(%d)", int32(s))
}

// transitions lists the states reachable from each state
var transitions = map[RequestState][]RequestState{
	Idle:      {Queued},
	Queued:    {Completed, Cancelled},
	Completed: {Queued, Idle},
	Cancelled: {Idle},
}

// CanTransition reports whether a request may move from one state to another
func CanTransition(from, to RequestState) bool {

	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}

	return false
}

// Request is a reusable unit of work submitted to a device.  Each request
// owns exactly one frame buffer for its whole life and is driven through
// its states by the engine and the completion handler only.
type Request struct {
	// id is the index of the request within its engine
	id int
	// buf is the buffer the device fills
	buf *FrameBuffer
	// state holds the current RequestState
	state atomic.Int32
	// submissions counts how often the request was queued
	submissions atomic.Uint64
	// sequence is the device frame counter of the last fill
	sequence atomic.Uint64
}

// NewRequest binds a request to a buffer
func NewRequest(id int, buf *FrameBuffer) *Request {
	return &Request{id: id, buf: buf}
}

// ID returns the request index
func (r *Request) ID() int {
	return r.id
}

// Buffer returns the frame buffer bound to the request.  Only the device
// writes to it and only while the request is Queued.
func (r *Request) Buffer() *FrameBuffer {
	return r.buf
}

// State returns the current state
func (r *Request) State() RequestState {
	return RequestState(r.state.Load())
}

// Submissions returns how many times the request has been queued
func (r *Request) Submissions() uint64 {
	return r.submissions.Load()
}

// SetSequence records the device frame counter for the data in the buffer
func (r *Request) SetSequence(seq uint64) {
	r.sequence.Store(seq)
}

// Sequence returns the device frame counter of the last fill
func (r *Request) Sequence() uint64 {
	return r.sequence.Load()
}

// transition moves the request to the given state if that is legal from
// the current state
func (r *Request) transition(to RequestState) error {

	for {
		from := RequestState(r.state.Load())

		if !CanTransition(from, to) {
			return fmt.Errorf("%w: request %d %s -> %s", ErrInvalidTransition, r.id, from, to)
		}

		if r.state.CompareAndSwap(int32(from), int32(to)) {
			if to == Queued {
				r.submissions.Add(1)
			}
			return nil
		}
	}
}

// reset returns the request to Idle regardless of its state, used once the
// device has stopped
func (r *Request) reset() {
	r.state.Store(int32(Idle))
}
