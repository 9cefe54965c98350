package camera

import (
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/roboteseo/rodvision"
	"gocv.io/x/gocv"
)

// VideoCapture is a device reading a V4L2 camera through OpenCV.  Reads
// block until the camera delivers a frame so no extra pacing is applied.
type VideoCapture struct {
	// deviceID is the /dev/videoN index
	deviceID int
	// fps requested from the driver, zero leaves the default
	fps    float64
	logger *slog.Logger
	// mu guards vc and the scratch Mats
	mu sync.Mutex
	vc *gocv.VideoCapture
	// frame is the last image read
	frame gocv.Mat
	// resized holds frame scaled to res when the driver ignored the size
	resized gocv.Mat
	// res is the configured output size
	res rodvision.Resolution
	streamer
}

// NewVideoCapture returns a device for /dev/video<deviceID>
func NewVideoCapture(deviceID int, fps float64, logger *slog.Logger) *VideoCapture {

	if logger == nil {
		logger = slog.Default()
	}

	return &VideoCapture{
		deviceID: deviceID,
		fps:      fps,
		logger:   logger,
		streamer: streamer{name: "v4l2", logger: logger},
	}
}

// Configure opens the camera, requests the resolution and applies every
// set control.  Control values are passed to the driver unchanged.
func (v *VideoCapture) Configure(res rodvision.Resolution, params rodvision.Parameters) error {

	v.mu.Lock()
	defer v.mu.Unlock()

	v.closeLocked()

	vc, err := gocv.VideoCaptureDevice(v.deviceID)

	if err != nil {
		return fmt.Errorf("%w: /dev/video%d: %v", ErrOpen, v.deviceID, err)
	}

	if !vc.IsOpened() {
		vc.Close()
		return fmt.Errorf("%w: /dev/video%d", ErrOpen, v.deviceID)
	}

	vc.Set(gocv.VideoCaptureFrameWidth, float64(res.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(res.Height))

	if v.fps > 0 {
		vc.Set(gocv.VideoCaptureFPS, v.fps)
	}

	for _, c := range controls(params) {
		vc.Set(c.prop, c.value)
	}

	v.vc = vc
	v.frame = gocv.NewMat()
	v.resized = gocv.NewMat()
	v.res = res

	v.logger.Info("camera: v4l2 camera configured",
		"device", v.deviceID,
		"requested", res.String(),
		"driver_width", vc.Get(gocv.VideoCaptureFrameWidth),
		"driver_height", vc.Get(gocv.VideoCaptureFrameHeight),
	)

	return nil
}

// control is one VideoCapture property to set
type control struct {
	prop  gocv.VideoCaptureProperties
	value float64
}

// controls maps the set camera parameters to VideoCapture properties
func controls(p rodvision.Parameters) []control {

	var out []control

	if rodvision.IsSet(p.AutoExposure) {
		// V4L2 auto exposure menu: 1 manual, 3 aperture priority
		mode := 3.0

		if p.AutoExposure == 0 {
			mode = 1
		}

		out = append(out, control{gocv.VideoCaptureAutoExposure, mode})
	}

	if p.ManualExposure() {
		// V4L2 exposure is in units of 100us
		out = append(out, control{gocv.VideoCaptureExposure, float64(p.ExposureTime) / 100})
	}

	if rodvision.IsSet(p.AnalogueGain) {
		out = append(out, control{gocv.VideoCaptureGain, p.AnalogueGain})
	}

	if rodvision.IsSet(p.Brightness) {
		out = append(out, control{gocv.VideoCaptureBrightness, p.Brightness})
	}

	if rodvision.IsSet(p.Contrast) {
		out = append(out, control{gocv.VideoCaptureContrast, p.Contrast})
	}

	if rodvision.IsSet(p.Saturation) {
		out = append(out, control{gocv.VideoCaptureSaturation, p.Saturation})
	}

	if rodvision.IsSet(p.Sharpness) {
		out = append(out, control{gocv.VideoCaptureSharpness, p.Sharpness})
	}

	if rodvision.IsSet(p.AutoWhiteBalance) {
		out = append(out, control{gocv.VideoCaptureAutoWB, float64(p.AutoWhiteBalance)})
	}

	if p.ManualWhiteBalance() {
		out = append(out, control{gocv.VideoCaptureWBTemperature, float64(p.ColourTemperature)})
	}

	return out
}

// Start begins reading frames
func (v *VideoCapture) Start(onComplete rodvision.CompletionFunc) error {

	v.mu.Lock()
	opened := v.vc != nil
	v.mu.Unlock()

	if !opened {
		return fmt.Errorf("%w: not configured", ErrOpen)
	}

	v.streamer.start(onComplete, v.fill, 0)

	return nil
}

// Queue submits a request
func (v *VideoCapture) Queue(req *rodvision.Request) error {
	return v.streamer.push(req)
}

// Stop halts reading, cancels unfilled requests and closes the camera
func (v *VideoCapture) Stop() error {

	v.streamer.stop()

	v.mu.Lock()
	defer v.mu.Unlock()

	return v.closeLocked()
}

// fill reads the next frame into dst
func (v *VideoCapture) fill(dst []byte) error {

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.vc == nil {
		return fmt.Errorf("%w: camera closed", ErrRead)
	}

	if ok := v.vc.Read(&v.frame); !ok || v.frame.Empty() {
		return fmt.Errorf("%w: /dev/video%d", ErrRead, v.deviceID)
	}

	src := v.frame

	if src.Cols() != v.res.Width || src.Rows() != v.res.Height {
		gocv.Resize(src, &v.resized, image.Pt(v.res.Width, v.res.Height), 0, 0, gocv.InterpolationLinear)
		src = v.resized
	}

	data := src.ToBytes()

	if len(data) != len(dst) {
		return fmt.Errorf("%w: frame is %d bytes, buffer is %d", ErrRead, len(data), len(dst))
	}

	copy(dst, data)

	return nil
}

// closeLocked releases the camera and scratch Mats
func (v *VideoCapture) closeLocked() error {

	if v.vc == nil {
		return nil
	}

	err := v.vc.Close()
	v.frame.Close()
	v.resized.Close()
	v.vc = nil

	return err
}
