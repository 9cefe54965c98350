package rodvision

import (
	"sync"
	"sync/atomic"
	"time"
)

// Frame is a caller owned copy of a captured image.  Release hands the
// memory back to the engine for reuse; the Data slice must not be used
// afterwards.
type Frame struct {
	// Data holds Width*Height*3 bytes of BGR888 pixels
	Data []byte
	// Width of the image in pixels
	Width int
	// Height of the image in pixels
	Height int
	// Sequence is the device frame counter
	Sequence uint64
	// Timestamp is when the frame was handed to the caller
	Timestamp time.Time
	// pool the data came from
	pool *framePool
	once sync.Once
}

// Size returns the length of Data in bytes
func (f *Frame) Size() int {
	return len(f.Data)
}

// Release returns the frame memory to the engine.  Calling it more than
// once is a no-op.
func (f *Frame) Release() {

	f.once.Do(func() {
		if f.pool != nil {
			f.pool.put(f.Data)
		}

		f.Data = nil
	})
}

// framePool is a bounded free list of equally sized byte slices used for
// frame copies
type framePool struct {
	// free holds slices ready for reuse
	free chan []byte
	// frameBytes is the length of every slice
	frameBytes int
	// allocated counts slices made by the pool
	allocated atomic.Int64
	// outstanding counts slices handed out and not yet returned
	outstanding atomic.Int64
}

// newFramePool returns a pool keeping up to depth idle slices of
// frameBytes each
func newFramePool(depth, frameBytes int) *framePool {
	return &framePool{
		free:       make(chan []byte, depth),
		frameBytes: frameBytes,
	}
}

// get returns a slice from the free list or allocates a new one
func (p *framePool) get() []byte {

	p.outstanding.Add(1)

	select {
	case buf := <-p.free:
		return buf
	default:
	}

	p.allocated.Add(1)

	return make([]byte, p.frameBytes)
}

// put returns a slice to the free list, dropping it when the list is full
// or the slice is of the wrong size
func (p *framePool) put(buf []byte) {

	p.outstanding.Add(-1)

	if cap(buf) < p.frameBytes {
		return
	}

	select {
	case p.free <- buf[:p.frameBytes]:
	default:
	}
}
