package calib

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/golang/geo/r3"
	"github.com/roboteseo/rodvision/tags"
)

// Strategy selects how tag centres are converted to table coordinates
type Strategy int

const (
	// Planar undistorts the tag centre and applies the inverse homography
	Planar Strategy = iota
	// Pose estimates each tag's 3D pose and maps it through a camera to
	// table rigid transform fitted on the reference tags
	Pose
)

// ParseStrategy converts a config string to a Strategy
func ParseStrategy(s string) (Strategy, error) {

	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "planar", "homography":
		return Planar, nil
	case "pose", "rigid", "3d":
		return Pose, nil
	}

	return Planar, fmt.Errorf("unknown calibration strategy: %q", s)
}

// String returns the strategy name
func (s Strategy) String() string {
	if s == Pose {
		return "pose"
	}
	return "planar"
}

// Calibration is the result of a successful calibration.  It is immutable
// and shared by every frame processed after it was created.
type Calibration struct {
	// Homography maps table mm to undistorted pixels
	Homography *Homography
	// Camera is the intrinsics model used to undistort points
	Camera CameraModel
	// Layout is the table the calibration was solved against
	Layout Layout
	// Strategy used by Localize
	Strategy Strategy
	// Rigid maps camera frame points to table points, set for the Pose
	// strategy only
	Rigid *RigidTransform
	// Observed holds the undistorted pixel centre of each reference tag
	Observed map[int]tags.Point
	// References holds the undistorted corners of each reference tag
	References map[int]tags.Corners
	// CreatedAt is when the calibration was solved
	CreatedAt time.Time
}

// Localize converts a detected tag to a table position in mm
func (c *Calibration) Localize(tag tags.DetectedTag) (tags.Point, error) {

	if c.Strategy == Pose && c.Rigid != nil {
		return c.localizePose(tag)
	}

	return c.LocalizePixel(tag.Corners.Center())
}

// LocalizePixel converts a distorted image pixel on the table plane to a
// table position in mm
func (c *Calibration) LocalizePixel(p tags.Point) (tags.Point, error) {

	u, err := c.Camera.Undistort(p)

	if err != nil {
		return tags.Point{}, err
	}

	return c.Homography.Unproject(u)
}

func (c *Calibration) localizePose(tag tags.DetectedTag) (tags.Point, error) {

	size := tags.Classify(tag.ID).SizeMM()

	pose, err := EstimateTagPose(tag.Corners, size, c.Camera)

	if err != nil {
		return tags.Point{}, fmt.Errorf("tag %d pose: %w", tag.ID, err)
	}

	p := c.Rigid.Apply(pose.Translation)

	return tags.Point{X: p.X, Y: p.Y}, nil
}

// ReprojectionError returns the mean distance in mm between each reference
// tag's known position and its observed centre mapped back onto the table.
// The solve fits four correspondences exactly, so this is only non zero
// when more reference tags than four are used.
func (c *Calibration) ReprojectionError() float64 {

	var sum float64
	var n int

	for id, obs := range c.Observed {
		p, err := c.Homography.Unproject(obs)

		if err != nil {
			return math.Inf(1)
		}

		want := c.Layout.Fixed[id]
		sum += math.Hypot(p.X-want.X, p.Y-want.Y)
		n++
	}

	if n == 0 {
		return 0
	}

	return sum / float64(n)
}

// SizeError returns the mean absolute difference in mm between the edge
// length of each reference tag, measured on the table through the inverse
// homography, and its printed size.  The corners play no part in the solve
// so this reflects the accuracy of the calibration away from the centres.
func (c *Calibration) SizeError() float64 {

	want := tags.FixedReference.SizeMM()

	var sum float64
	var n int

	for _, corners := range c.References {
		var table [4]tags.Point

		for i, px := range corners {
			p, err := c.Homography.Unproject(px)

			if err != nil {
				return math.Inf(1)
			}

			table[i] = p
		}

		for i := range table {
			next := table[(i+1)%len(table)]
			sum += math.Abs(math.Hypot(next.X-table[i].X, next.Y-table[i].Y) - want)
			n++
		}
	}

	if n == 0 {
		return 0
	}

	return sum / float64(n)
}

// Calibrator solves the camera to table calibration once per session from
// the reference tags and caches the result.  A failed attempt leaves no
// calibration so the next frame tries again.
type Calibrator struct {
	// camera intrinsics used to undistort tag centres
	camera CameraModel
	// layout of the table and its reference tags
	layout Layout
	// strategy used by calibrations produced here
	strategy Strategy
	// mu guards current and attempts
	mu sync.Mutex
	// current is the cached calibration, nil until one succeeds
	current *Calibration
	// attempts counts calls that tried to solve
	attempts int
	// now returns the current time
	now func() time.Time
}

// NewCalibrator returns a calibrator for the given camera and table
func NewCalibrator(camera CameraModel, layout Layout, strategy Strategy) (*Calibrator, error) {

	if err := camera.Validate(); err != nil {
		return nil, err
	}

	if err := layout.Validate(); err != nil {
		return nil, err
	}

	return &Calibrator{
		camera:   camera,
		layout:   layout,
		strategy: strategy,
		now:      time.Now,
	}, nil
}

// Calibrate returns the cached calibration if one exists, otherwise it
// locates the four reference tags among detected and solves a new one
func (c *Calibrator) Calibrate(detected []tags.DetectedTag) (*Calibration, error) {

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil {
		return c.current, nil
	}

	c.attempts++

	found := make(map[int]tags.DetectedTag, len(c.layout.Fixed))

	for _, d := range detected {
		if _, ok := c.layout.Fixed[d.ID]; !ok {
			continue
		}

		// first occurrence wins
		if _, seen := found[d.ID]; !seen {
			found[d.ID] = d
		}
	}

	if len(found) < len(c.layout.Fixed) {
		return nil, fmt.Errorf("%w: found %d of %d", ErrMissingFixedTags,
			len(found), len(c.layout.Fixed))
	}

	ids := c.layout.FixedIDs()
	table := make([]tags.Point, 0, len(ids))
	pixels := make([]tags.Point, 0, len(ids))
	observed := make(map[int]tags.Point, len(ids))
	references := make(map[int]tags.Corners, len(ids))

	for _, id := range ids {
		u, err := c.camera.Undistort(found[id].Corners.Center())

		if err != nil {
			return nil, fmt.Errorf("reference tag %d: %w", id, err)
		}

		var corners tags.Corners

		for i, px := range found[id].Corners {
			if corners[i], err = c.camera.Undistort(px); err != nil {
				return nil, fmt.Errorf("reference tag %d corner %d: %w", id, i, err)
			}
		}

		table = append(table, c.layout.Fixed[id])
		pixels = append(pixels, u)
		observed[id] = u
		references[id] = corners
	}

	h, err := FindHomography(table, pixels)

	if err != nil {
		return nil, fmt.Errorf("solve homography: %w", err)
	}

	cal := &Calibration{
		Homography: h,
		Camera:     c.camera,
		Layout:     c.layout,
		Strategy:   c.strategy,
		Observed:   observed,
		References: references,
		CreatedAt:  c.now(),
	}

	if c.strategy == Pose {
		rigid, err := c.fitRigid(ids, found)

		if err != nil {
			return nil, fmt.Errorf("solve rigid transform: %w", err)
		}

		cal.Rigid = rigid
	}

	c.current = cal

	return cal, nil
}

// fitRigid estimates each reference tag's position in the camera frame and
// aligns those positions with the table
func (c *Calibrator) fitRigid(ids []int, found map[int]tags.DetectedTag) (*RigidTransform, error) {

	camPts := make([]r3.Vector, 0, len(ids))
	tablePts := make([]r3.Vector, 0, len(ids))

	for _, id := range ids {
		pose, err := EstimateTagPose(found[id].Corners, tags.FixedReference.SizeMM(), c.camera)

		if err != nil {
			return nil, fmt.Errorf("reference tag %d pose: %w", id, err)
		}

		p := c.layout.Fixed[id]
		camPts = append(camPts, pose.Translation)
		tablePts = append(tablePts, r3.Vector{X: p.X, Y: p.Y})
	}

	return FitRigid(camPts, tablePts)
}

// Calibration returns the cached calibration or nil
func (c *Calibrator) Calibration() *Calibration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Attempts returns how many times a solve was attempted
func (c *Calibrator) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Reset discards the cached calibration so the next call solves again
func (c *Calibrator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = nil
}

// Layout returns the table layout
func (c *Calibrator) Layout() Layout {
	return c.layout
}

// Camera returns the camera model
func (c *Calibrator) Camera() CameraModel {
	return c.camera
}
