/*
Package libcamera provides a rodvision device for Raspberry Pi cameras.  It
runs a GStreamer pipeline of libcamerasrc, videoconvert and an appsink, and
fills queued requests from the appsink callback on the GStreamer streaming
thread.

	libcamerasrc -> videoconvert -> videoscale -> capsfilter(BGR) -> appsink
*/
package libcamera

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roboteseo/rodvision"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

var (
	// ErrPipeline is returned when the GStreamer pipeline can not be built
	// or started
	ErrPipeline = errors.New("gstreamer pipeline error")

	// ErrNotConfigured is returned by Start before Configure
	ErrNotConfigured = errors.New("libcamera device not configured")
)

// Device is a Raspberry Pi camera streamed through GStreamer
type Device struct {
	logger *slog.Logger
	// mu guards pipeline, sink and res
	mu       sync.Mutex
	pipeline *gst.Pipeline
	sink     *app.Sink
	res      rodvision.Resolution
	// queue of requests waiting for a sample
	queue *rodvision.RequestQueue
	// onComplete is the engine completion handler
	onComplete rodvision.CompletionFunc
	// streaming is true between Start and Stop
	streaming atomic.Bool
	// counters
	seq     atomic.Uint64
	dropped atomic.Uint64
	bytes   atomic.Uint64
}

// New returns an unconfigured device
func New(logger *slog.Logger) *Device {

	if logger == nil {
		logger = slog.Default()
	}

	return &Device{logger: logger}
}

// property is one libcamerasrc control property
type property struct {
	name  string
	value any
}

// properties maps the camera parameters onto libcamerasrc control
// properties.  AE, AWB and noise reduction are always set, with the same
// defaults the ISP tuning expects.
func properties(p rodvision.Parameters) []property {

	ae := p.AutoExposure != 0
	awb := p.AutoWhiteBalance != 0

	nr := rodvision.NoiseReductionHighQuality

	if rodvision.IsSet(p.NoiseReduction) {
		nr = p.NoiseReduction
	}

	out := []property{
		{"ae-enable", ae},
		{"awb-enable", awb},
		{"noise-reduction-mode", int(nr)},
	}

	if p.ManualExposure() {
		out = append(out, property{"exposure-time", p.ExposureTime})
	}

	if rodvision.IsSet(p.AnalogueGain) {
		out = append(out, property{"analogue-gain", float32(p.AnalogueGain)})
	}

	if rodvision.IsSet(p.Sharpness) {
		out = append(out, property{"sharpness", float32(p.Sharpness)})
	}

	if rodvision.IsSet(p.Contrast) {
		out = append(out, property{"contrast", float32(p.Contrast)})
	}

	if rodvision.IsSet(p.Brightness) {
		out = append(out, property{"brightness", float32(p.Brightness)})
	}

	if rodvision.IsSet(p.Saturation) {
		out = append(out, property{"saturation", float32(p.Saturation)})
	}

	if p.ManualWhiteBalance() {
		out = append(out, property{"colour-temperature", p.ColourTemperature})
	}

	return out
}

// capsString returns the appsink caps for BGR frames of res, limited to the
// fastest frame rate the minimum frame duration allows
func capsString(res rodvision.Resolution, p rodvision.Parameters) string {

	caps := fmt.Sprintf("video/x-raw,format=BGR,width=%d,height=%d", res.Width, res.Height)

	if rodvision.IsSet(p.FrameDurationMin) {
		lo, _ := p.FrameDurationLimits()
		caps += fmt.Sprintf(",framerate=[1/1,%d/1]", max(1, 1000000/lo))
	}

	return caps
}

// Configure builds the pipeline for the resolution and sets the camera
// controls.  Controls the installed libcamerasrc does not expose are logged
// and skipped.
func (d *Device) Configure(res rodvision.Resolution, params rodvision.Parameters) error {

	d.mu.Lock()
	defer d.mu.Unlock()

	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")

	if err != nil {
		return fmt.Errorf("%w: create pipeline: %v", ErrPipeline, err)
	}

	src, err := gst.NewElement("libcamerasrc")

	if err != nil {
		return fmt.Errorf("%w: create libcamerasrc: %v", ErrPipeline, err)
	}

	for _, prop := range properties(params) {
		if err := src.SetProperty(prop.name, prop.value); err != nil {
			d.logger.Warn("libcamera: control not supported", "control", prop.name, "error", err)
		}
	}

	convert, err := gst.NewElement("videoconvert")

	if err != nil {
		return fmt.Errorf("%w: create videoconvert: %v", ErrPipeline, err)
	}

	scale, err := gst.NewElement("videoscale")

	if err != nil {
		return fmt.Errorf("%w: create videoscale: %v", ErrPipeline, err)
	}

	filter, err := gst.NewElement("capsfilter")

	if err != nil {
		return fmt.Errorf("%w: create capsfilter: %v", ErrPipeline, err)
	}

	filter.SetProperty("caps", gst.NewCapsFromString(capsString(res, params)))

	sink, err := app.NewAppSink()

	if err != nil {
		return fmt.Errorf("%w: create appsink: %v", ErrPipeline, err)
	}

	sink.SetProperty("sync", false)
	sink.SetProperty("max-buffers", 1)
	sink.SetProperty("drop", true)

	pipeline.AddMany(src, convert, scale, filter, sink.Element)

	if err := gst.ElementLinkMany(src, convert, scale, filter, sink.Element); err != nil {
		return fmt.Errorf("%w: link elements: %v", ErrPipeline, err)
	}

	d.pipeline = pipeline
	d.sink = sink
	d.res = res

	d.logger.Info("libcamera: pipeline configured", "resolution", res.String())

	return nil
}

// Start sets the pipeline playing
func (d *Device) Start(onComplete rodvision.CompletionFunc) error {

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pipeline == nil {
		return ErrNotConfigured
	}

	d.queue = rodvision.NewRequestQueue(rodvision.MaxBuffers)
	d.onComplete = onComplete

	d.sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: d.onSample,
	})

	d.streaming.Store(true)

	if err := d.pipeline.SetState(gst.StatePlaying); err != nil {
		d.streaming.Store(false)
		return fmt.Errorf("%w: start: %v", ErrPipeline, err)
	}

	return nil
}

// Queue submits a request to be filled by the next sample
func (d *Device) Queue(req *rodvision.Request) error {

	if !d.streaming.Load() {
		return rodvision.ErrDeviceStopped
	}

	return d.queue.Push(req)
}

// Stop sets the pipeline to NULL, which waits for the streaming thread, and
// cancels the requests that were not filled
func (d *Device) Stop() error {

	d.streaming.Store(false)

	d.mu.Lock()
	pipeline := d.pipeline
	d.pipeline = nil
	d.mu.Unlock()

	var err error

	if pipeline != nil {
		if serr := pipeline.SetState(gst.StateNull); serr != nil {
			err = fmt.Errorf("%w: stop: %v", ErrPipeline, serr)
		}
	}

	if d.queue != nil {
		d.queue.Drain(func(req *rodvision.Request) {
			d.onComplete(req, rodvision.StatusCancelled)
		})
	}

	d.logger.Info("libcamera: pipeline stopped",
		"frames", d.seq.Load(),
		"dropped", d.dropped.Load(),
		"bytes", d.bytes.Load(),
	)

	return err
}

// Dropped returns the number of samples that arrived with no request queued
func (d *Device) Dropped() uint64 {
	return d.dropped.Load()
}

// onSample copies a sample into the oldest queued request
func (d *Device) onSample(sink *app.Sink) gst.FlowReturn {

	sample := sink.PullSample()

	if sample == nil {
		d.logger.Warn("libcamera: failed to pull sample, skipping frame")
		return gst.FlowOK
	}

	if !d.streaming.Load() {
		return gst.FlowEOS
	}

	req, ok := d.queue.TryNext()

	if !ok {
		d.dropped.Add(1)
		return gst.FlowOK
	}

	buffer := sample.GetBuffer()

	if buffer == nil {
		d.requeue(req)
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()

	err := copyFrame(req.Buffer().Data(), data, d.res)
	buffer.Unmap()

	if err != nil {
		d.logger.Warn("libcamera: unexpected sample size", "error", err)
		d.requeue(req)
		return gst.FlowOK
	}

	d.bytes.Add(uint64(len(data)))
	req.SetSequence(d.seq.Add(1))
	d.onComplete(req, rodvision.StatusComplete)

	return gst.FlowOK
}

// requeue puts a request back for the next sample, cancelling it if the
// queue is full
func (d *Device) requeue(req *rodvision.Request) {
	if err := d.queue.Push(req); err != nil {
		d.onComplete(req, rodvision.StatusCancelled)
	}
}

// copyFrame copies BGR pixels into dst, removing any row padding GStreamer
// added to align the stride
func copyFrame(dst, src []byte, res rodvision.Resolution) error {

	if len(src) == len(dst) {
		copy(dst, src)
		return nil
	}

	row := res.Width * rodvision.BytesPerPixel

	if res.Height == 0 || len(src)%res.Height != 0 {
		return fmt.Errorf("sample is %d bytes, expected %d", len(src), len(dst))
	}

	stride := len(src) / res.Height

	if stride < row || len(dst) != row*res.Height {
		return fmt.Errorf("sample stride %d shorter than row %d", stride, row)
	}

	for y := 0; y < res.Height; y++ {
		copy(dst[y*row:(y+1)*row], src[y*stride:y*stride+row])
	}

	return nil
}
