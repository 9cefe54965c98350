package camera

import (
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/roboteseo/rodvision"
	"gocv.io/x/gocv"
)

// imageExtensions are the file types replayed by the emulated camera
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// Emulated is a device that replays the images of a folder in name order,
// wrapping around at the end, each resized to the configured resolution
type Emulated struct {
	// folder holding the images
	folder string
	// interval between frames
	interval time.Duration
	logger   *slog.Logger
	// mu guards files, next and cache
	mu sync.Mutex
	// files found at Configure
	files []string
	// next is the index of the next file to replay
	next int
	// cache holds decoded and resized frames by file index
	cache map[int][]byte
	// res is the configured output size
	res rodvision.Resolution
	streamer
}

// NewEmulated returns an emulated camera producing fps frames per second
// from the images in folder.  A non positive fps replays as fast as frames
// are requested.
func NewEmulated(folder string, fps float64, logger *slog.Logger) *Emulated {

	if logger == nil {
		logger = slog.Default()
	}

	var interval time.Duration

	if fps > 0 {
		interval = time.Duration(float64(time.Second) / fps)
	}

	return &Emulated{
		folder:   folder,
		interval: interval,
		logger:   logger,
		streamer: streamer{name: "emulated", logger: logger},
	}
}

// Configure scans the folder for images.  Camera controls do not apply to
// still images and are ignored.
func (e *Emulated) Configure(res rodvision.Resolution, params rodvision.Parameters) error {

	entries, err := os.ReadDir(e.folder)

	if err != nil {
		return fmt.Errorf("%w: %v", ErrEmptyFolder, err)
	}

	var files []string

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		if imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			files = append(files, filepath.Join(e.folder, entry.Name()))
		}
	}

	if len(files) == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyFolder, e.folder)
	}

	sort.Strings(files)

	e.mu.Lock()
	e.files = files
	e.next = 0
	e.cache = make(map[int][]byte, len(files))
	e.res = res
	e.mu.Unlock()

	e.logger.Info("camera: emulated camera configured",
		"folder", e.folder,
		"images", len(files),
		"resolution", res.String(),
	)

	return nil
}

// Start begins replaying
func (e *Emulated) Start(onComplete rodvision.CompletionFunc) error {
	e.streamer.start(onComplete, e.fill, e.interval)
	return nil
}

// Queue submits a request
func (e *Emulated) Queue(req *rodvision.Request) error {
	return e.streamer.push(req)
}

// Stop halts replay and cancels unfilled requests
func (e *Emulated) Stop() error {
	e.streamer.stop()
	return nil
}

// fill copies the next image into dst
func (e *Emulated) fill(dst []byte) error {

	e.mu.Lock()
	idx := e.next
	e.next = (e.next + 1) % len(e.files)
	data, ok := e.cache[idx]
	path := e.files[idx]
	res := e.res
	e.mu.Unlock()

	if !ok {
		var err error
		data, err = loadImage(path, res)

		if err != nil {
			return err
		}

		e.mu.Lock()
		e.cache[idx] = data
		e.mu.Unlock()
	}

	if len(data) != len(dst) {
		return fmt.Errorf("%w: %s is %d bytes, buffer is %d", ErrRead, path, len(data), len(dst))
	}

	copy(dst, data)

	return nil
}

// loadImage decodes an image file as BGR and resizes it to res
func loadImage(path string, res rodvision.Resolution) ([]byte, error) {

	img := gocv.IMRead(path, gocv.IMReadColor)
	defer img.Close()

	if img.Empty() {
		return nil, fmt.Errorf("%w: could not decode %s", ErrRead, path)
	}

	if img.Cols() == res.Width && img.Rows() == res.Height {
		return img.ToBytes(), nil
	}

	resized := gocv.NewMat()
	defer resized.Close()

	gocv.Resize(img, &resized, image.Pt(res.Width, res.Height), 0, 0, gocv.InterpolationArea)

	return resized.ToBytes(), nil
}
