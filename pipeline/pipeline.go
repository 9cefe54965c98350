/*
Package pipeline runs the per frame work of the detection service.  Each
frame is preprocessed, searched for tags, filtered, localized on the table
and published:

	capture -> sharpen/mask/upscale -> detect -> filter -> calibrate (until
	a mask exists) -> localize -> publish -> snapshot

A Pipeline is driven by one goroutine.  The calibration and field mask it
builds are written once by that goroutine and read by every later frame.
*/
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/roboteseo/rodvision"
	"github.com/roboteseo/rodvision/calib"
	"github.com/roboteseo/rodvision/fieldmask"
	"github.com/roboteseo/rodvision/preprocess"
	"github.com/roboteseo/rodvision/render"
	"github.com/roboteseo/rodvision/tags"
	"github.com/roboteseo/rodvision/transport"
	"gocv.io/x/gocv"
)

// noMarkersLogInterval is how often, in frames, an empty frame is logged
const noMarkersLogInterval = 10

// Detector finds tags in an image.  Corners are in the pixels of img.
type Detector interface {
	Detect(img gocv.Mat) ([]tags.DetectedTag, error)
}

// FrameSource supplies captured frames, rodvision.Engine implements it
type FrameSource interface {
	CaptureFrame(timeout time.Duration) (*rodvision.Frame, error)
}

// Result is the outcome of processing one frame
type Result struct {
	Sequence  uint64
	Timestamp time.Time
	// Detected holds every tag found, in source image pixels
	Detected []tags.DetectedTag
	// Records are the valid tags, localized when Calibration is set
	Records []tags.TagRecord
	Counts  tags.Counts
	// Calibration used for this frame, nil before one succeeded
	Calibration *calib.Calibration
}

// Stats are the pipeline counters
type Stats struct {
	Frames        uint64
	Detections    uint64
	Localized     uint64
	Published     uint64
	PublishErrors uint64
	DetectErrors  uint64
	Timeouts      uint64
	Snapshots     uint64
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithPublisher sends each frame with tags to pub
func WithPublisher(pub transport.Publisher) Option {
	return func(p *Pipeline) {
		p.publisher = pub
	}
}

// WithSnapshots saves debug snapshots
func WithSnapshots(s *Snapshots) Option {
	return func(p *Pipeline) {
		p.snapshots = s
	}
}

// WithTrail draws robot trails on debug snapshots
func WithTrail(t *render.Trail) Option {
	return func(p *Pipeline) {
		p.trail = t
	}
}

// WithScale sets the detection upscale factor
func WithScale(scale float64) Option {
	return func(p *Pipeline) {
		p.scale = scale
	}
}

// WithMaskOptions sets the field mask adjustments
func WithMaskOptions(opts fieldmask.Options) Option {
	return func(p *Pipeline) {
		p.maskOpts = opts
	}
}

// WithCaptureTimeout bounds each wait for a frame in Run
func WithCaptureTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		p.captureTimeout = d
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// Pipeline turns captured frames into localized tag records
type Pipeline struct {
	detector   Detector
	calibrator *calib.Calibrator
	publisher  transport.Publisher
	snapshots  *Snapshots
	trail      *render.Trail
	pre        *preprocess.Preprocessor
	logger     *slog.Logger

	scale          float64
	maskOpts       fieldmask.Options
	captureTimeout time.Duration

	// session identifies this run in published results
	session string
	// mask is nil until calibration succeeds and the outline is usable
	mask *fieldmask.FieldMask
	// maskFailed is set once a mask error was logged
	maskFailed bool

	stats Stats
}

// New returns a pipeline using detector and calibrator
func New(detector Detector, calibrator *calib.Calibrator, opts ...Option) *Pipeline {

	p := &Pipeline{
		detector:       detector,
		calibrator:     calibrator,
		scale:          preprocess.DefaultScale,
		maskOpts:       fieldmask.DefaultOptions(),
		captureTimeout: time.Second,
		session:        uuid.New().String(),
		logger:         slog.Default(),
	}

	for _, o := range opts {
		o(p)
	}

	p.pre = preprocess.NewPreprocessor(p.scale)
	p.logger = p.logger.With("session", p.session)

	return p
}

// Session returns the id sent with every published result
func (p *Pipeline) Session() string {
	return p.session
}

// Mask returns the field mask, nil before calibration
func (p *Pipeline) Mask() *fieldmask.FieldMask {
	return p.mask
}

// Stats returns the pipeline counters
func (p *Pipeline) Stats() Stats {
	return p.stats
}

// ProcessFrame processes a captured frame and releases it
func (p *Pipeline) ProcessFrame(ctx context.Context, f *rodvision.Frame) (Result, error) {

	defer f.Release()

	img, err := gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC3, f.Data)

	if err != nil {
		return Result{}, fmt.Errorf("failed to wrap frame: %w", err)
	}

	defer img.Close()

	return p.ProcessImage(ctx, img, f.Sequence, f.Timestamp)
}

// ProcessImage processes one BGR image.  Only a detector failure is
// returned as an error, every other per frame problem is logged and the
// frame still produces a result.
func (p *Pipeline) ProcessImage(ctx context.Context, img gocv.Mat, seq uint64, ts time.Time) (Result, error) {

	p.stats.Frames++
	n := p.stats.Frames

	res := Result{Sequence: seq, Timestamp: ts}

	var maskMat *gocv.Mat

	if p.mask != nil {
		m := p.mask.Mat()
		maskMat = &m
	}

	prepared := p.pre.Process(img, maskMat)

	detected, err := p.detector.Detect(prepared)

	if err != nil {
		p.stats.DetectErrors++
		return res, fmt.Errorf("detect frame %d: %w", seq, err)
	}

	p.pre.ToSourceAll(detected)
	res.Detected = detected

	if p.mask == nil {
		p.calibrate(detected, img.Cols(), img.Rows())
	}

	res.Calibration = p.calibrator.Calibration()
	res.Records = tags.Filter(detected)
	localized := Localize(res.Records, detected, res.Calibration)
	res.Counts = tags.Count(res.Records)

	p.stats.Detections += uint64(len(res.Records))
	p.stats.Localized += uint64(localized)

	if p.trail != nil {
		p.trail.Add(res.Records)
	}

	if len(res.Records) > 0 {
		p.publish(ctx, res)
	} else if n%noMarkersLogInterval == 0 {
		p.logger.Info("no markers detected", "frame", n)
	}

	if p.snapshots != nil && p.snapshots.Due(n) {
		p.snapshot(img, res)
	}

	return res, nil
}

// calibrate solves the calibration and builds the field mask from it
func (p *Pipeline) calibrate(detected []tags.DetectedTag, width, height int) {

	cal, err := p.calibrator.Calibrate(detected)

	if err != nil {
		p.logger.Debug("calibration pending", "attempt", p.calibrator.Attempts(), "error", err)
		return
	}

	mask, err := fieldmask.Generate(cal.Homography, cal.Layout, width, height, p.maskOpts)

	if err != nil {
		if !p.maskFailed {
			p.logger.Warn("field mask unavailable, detecting on the whole image", "error", err)
			p.maskFailed = true
		}
		return
	}

	p.mask = mask

	p.logger.Info("calibrated",
		"strategy", cal.Strategy.String(),
		"attempts", p.calibrator.Attempts(),
		"size_error_mm", cal.SizeError(),
		"mask", mask.Polygon(),
	)
}

func (p *Pipeline) publish(ctx context.Context, res Result) {

	if p.publisher == nil {
		return
	}

	fr := transport.NewFrameResult(res.Sequence, res.Timestamp, p.session, res.Calibration != nil, res.Records)

	if err := p.publisher.Publish(ctx, fr); err != nil {
		p.stats.PublishErrors++
		p.logger.Warn("failed to publish detections", "seq", res.Sequence, "error", err)
		return
	}

	p.stats.Published++
}

func (p *Pipeline) snapshot(img gocv.Mat, res Result) {

	var field []image.Point

	if p.mask != nil {
		field = p.mask.Polygon()
	}

	annotate := func(out *gocv.Mat) {
		render.Annotate(out, render.Annotation{
			Detected: res.Detected,
			Records:  res.Records,
			Counts:   res.Counts,
			Field:    field,
			Trail:    p.trail,
		})
	}

	pic, dbg, err := p.snapshots.Save(img, annotate)

	if err != nil {
		p.logger.Warn("failed to save snapshot", "error", err)
		return
	}

	p.stats.Snapshots++
	p.logger.Debug("snapshot saved", "raw", pic, "debug", dbg, "markers", len(res.Records))
}

// Run captures and processes frames until ctx is done or the source stops.
// Capture timeouts are logged and retried.
func (p *Pipeline) Run(ctx context.Context, src FrameSource) error {

	p.logger.Info("detection loop started")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("detection loop stopped", "frames", p.stats.Frames)
			return nil
		default:
		}

		frame, err := src.CaptureFrame(p.captureTimeout)

		switch {
		case err == nil:
		case errors.Is(err, rodvision.ErrTimeout):
			p.stats.Timeouts++
			p.logger.Warn("capture timed out", "timeout", p.captureTimeout)
			continue
		case errors.Is(err, rodvision.ErrStopped), errors.Is(err, rodvision.ErrNotRunning):
			return err
		default:
			p.logger.Error("failed to capture frame", "error", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}

		if _, err := p.ProcessFrame(ctx, frame); err != nil {
			p.logger.Warn("frame skipped", "error", err)
		}
	}
}

// Close frees the mask and preprocessing buffers
func (p *Pipeline) Close() error {

	if p.mask != nil {
		p.mask.Close()
		p.mask = nil
	}

	return p.pre.Close()
}
