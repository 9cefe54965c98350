package rodvision

// CompletionStatus reports how a device finished with a request
type CompletionStatus int

const (
	// StatusComplete means the request buffer holds a new frame
	StatusComplete CompletionStatus = iota
	// StatusCancelled means the request was aborted, usually by Stop
	StatusCancelled
)

// CompletionFunc is called by a device, from a goroutine it owns, each time
// it finishes with a queued request
type CompletionFunc func(req *Request, status CompletionStatus)

// Device is a camera producing BGR888 frames into request buffers
type Device interface {
	// Configure prepares the device for the resolution and applies the
	// camera controls.  It is called before any buffer is bound.
	Configure(res Resolution, params Parameters) error
	// Start begins streaming.  Every request queued afterwards is reported
	// exactly once through onComplete.
	Start(onComplete CompletionFunc) error
	// Queue submits a request to be filled.  It must not block on frame
	// capture.
	Queue(req *Request) error
	// Stop halts streaming.  It returns only after every request the device
	// still held has been reported, cancelled if it was not filled.
	Stop() error
}

// RequestQueue is the FIFO of submitted requests inside a device
type RequestQueue struct {
	ch chan *Request
}

// NewRequestQueue returns a queue able to hold size requests
func NewRequestQueue(size int) *RequestQueue {
	return &RequestQueue{ch: make(chan *Request, size)}
}

// Push adds a request without blocking
func (q *RequestQueue) Push(req *Request) error {

	select {
	case q.ch <- req:
		return nil
	default:
		return ErrQueueFull
	}
}

// Next waits for the next request, returning false once done is closed
func (q *RequestQueue) Next(done <-chan struct{}) (*Request, bool) {

	select {
	case req := <-q.ch:
		return req, true
	case <-done:
		return nil, false
	}
}

// TryNext returns the next request if one is waiting
func (q *RequestQueue) TryNext() (*Request, bool) {

	select {
	case req := <-q.ch:
		return req, true
	default:
		return nil, false
	}
}

// Len returns the number of waiting requests
func (q *RequestQueue) Len() int {
	return len(q.ch)
}

// Drain removes every waiting request, passing each to fn
func (q *RequestQueue) Drain(fn func(*Request)) {

	for {
		req, ok := q.TryNext()

		if !ok {
			return
		}

		fn(req)
	}
}
