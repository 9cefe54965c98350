package camera

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roboteseo/rodvision"
)

// retryDelay is the pause before retrying a request whose fill failed
const retryDelay = 10 * time.Millisecond

// fillFunc writes one BGR888 frame into dst
type fillFunc func(dst []byte) error

// streamer is the request loop shared by the devices of this package.  It
// pulls queued requests in order, fills them on its own goroutine and
// reports each through the completion handler.
type streamer struct {
	// name used in log messages
	name   string
	logger *slog.Logger
	// queue of requests waiting to be filled
	queue *rodvision.RequestQueue
	// onComplete is the engine completion handler
	onComplete rodvision.CompletionFunc
	// fill produces the next frame
	fill fillFunc
	// interval paces frames, zero runs as fast as fill returns
	interval time.Duration
	done     chan struct{}
	wg       sync.WaitGroup
	// streaming is true between start and stop
	streaming atomic.Bool
	// seq is the frame counter
	seq atomic.Uint64
	// failures counts fills that returned an error
	failures atomic.Uint64
}

func (s *streamer) start(onComplete rodvision.CompletionFunc, fill fillFunc, interval time.Duration) {

	s.queue = rodvision.NewRequestQueue(rodvision.MaxBuffers)
	s.onComplete = onComplete
	s.fill = fill
	s.interval = interval
	s.done = make(chan struct{})
	s.streaming.Store(true)

	s.wg.Add(1)
	go s.run()
}

func (s *streamer) push(req *rodvision.Request) error {

	if !s.streaming.Load() {
		return rodvision.ErrDeviceStopped
	}

	return s.queue.Push(req)
}

// stop ends the loop and cancels every request not yet filled
func (s *streamer) stop() {

	if !s.streaming.CompareAndSwap(true, false) {
		return
	}

	close(s.done)
	s.wg.Wait()

	s.queue.Drain(func(req *rodvision.Request) {
		s.onComplete(req, rodvision.StatusCancelled)
	})
}

func (s *streamer) run() {

	defer s.wg.Done()

	var tick <-chan time.Time

	if s.interval > 0 {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		req, ok := s.queue.Next(s.done)

		if !ok {
			return
		}

		if tick != nil {
			select {
			case <-tick:
			case <-s.done:
				s.onComplete(req, rodvision.StatusCancelled)
				return
			}
		}

		if err := s.fill(req.Buffer().Data()); err != nil {
			if n := s.failures.Add(1); n == 1 || n%100 == 0 {
				s.logger.Warn("camera: frame fill failed", "camera", s.name, "failures", n, "error", err)
			}

			// keep the request with the device and try again
			if perr := s.queue.Push(req); perr != nil {
				s.onComplete(req, rodvision.StatusCancelled)
			}

			select {
			case <-time.After(retryDelay):
			case <-s.done:
				return
			}

			continue
		}

		req.SetSequence(s.seq.Add(1))
		s.onComplete(req, rodvision.StatusComplete)
	}
}
