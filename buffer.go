package rodvision

import (
	"fmt"
	"sync"
)

const (
	// BytesPerPixel of the BGR888 frames produced by every device
	BytesPerPixel = 3
	// maxFrameBytes bounds a single frame allocation
	maxFrameBytes = 1 << 30
)

// FrameBuffer holds the pixels of one frame in BGR888 order
type FrameBuffer struct {
	// data holds width*height*3 bytes
	data []byte
	// width of the frame in pixels
	width int
	// height of the frame in pixels
	height int
}

// Data returns the pixel bytes
func (b *FrameBuffer) Data() []byte {
	return b.data
}

// Len returns the size of the buffer in bytes
func (b *FrameBuffer) Len() int {
	return len(b.data)
}

// Resolution returns the frame dimensions
func (b *FrameBuffer) Resolution() Resolution {
	return Resolution{Width: b.width, Height: b.height}
}

// BufferPool is a fixed set of equally sized frame buffers shared between
// the engine's requests
type BufferPool struct {
	// buffers available to be bound to a request
	buffers chan *FrameBuffer
	// size of pool
	size int
	// res is the resolution every buffer was allocated for
	res   Resolution
	close sync.Once
}

// NewBufferPool allocates size buffers for frames of the given resolution
func NewBufferPool(size int, res Resolution) (p *BufferPool, err error) {

	if err := res.Validate(); err != nil {
		return nil, err
	}

	if size < 1 {
		return nil, fmt.Errorf("%w: pool size %d", ErrAllocation, size)
	}

	frameBytes := res.FrameBytes()

	if frameBytes > maxFrameBytes || frameBytes*size > 4*maxFrameBytes {
		return nil, fmt.Errorf("%w: %d buffers of %d bytes", ErrAllocation, size, frameBytes)
	}

	// make panics when memory is exhausted, report that as an error instead
	defer func() {
		if r := recover(); r != nil {
			p = nil
			err = fmt.Errorf("%w: %v", ErrAllocation, r)
		}
	}()

	p = &BufferPool{
		buffers: make(chan *FrameBuffer, size),
		size:    size,
		res:     res,
	}

	for i := 0; i < size; i++ {
		p.Return(&FrameBuffer{
			data:   make([]byte, frameBytes),
			width:  res.Width,
			height: res.Height,
		})
	}

	return p, nil
}

// Get takes a buffer from the pool, returning false if none is left
func (p *BufferPool) Get() (*FrameBuffer, bool) {

	select {
	case b, ok := <-p.buffers:
		return b, ok
	default:
		return nil, false
	}
}

// Return a buffer to the pool
func (p *BufferPool) Return(b *FrameBuffer) {

	select {
	case p.buffers <- b:
	default:
		// pool is full
	}
}

// Size returns the number of buffers the pool was created with
func (p *BufferPool) Size() int {
	return p.size
}

// Available returns the number of buffers not bound to a request
func (p *BufferPool) Available() int {
	return len(p.buffers)
}

// Close the pool.  Buffers still bound to requests stay valid until the
// requests are dropped.
func (p *BufferPool) Close() {
	p.close.Do(func() {
		close(p.buffers)

		for range p.buffers {
			// drain
		}
	})
}
