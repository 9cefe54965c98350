package calib

import (
	"errors"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/roboteseo/rodvision/tags"
	"gonum.org/v1/gonum/mat"
)

// overhead is a synthetic camera looking straight down on the table
type overhead struct {
	cam CameraModel
	// position of the optical centre in table coordinates, mm
	center r3.Vector
}

func newOverhead(distorted bool) overhead {

	cam := CameraModel{Fx: 1000, Fy: 1000, Cx: 960, Cy: 1200}

	if distorted {
		cam.D = DefaultCameraModel().D
	}

	return overhead{cam: cam, center: r3.Vector{X: 1000, Y: 1500, Z: 2500}}
}

// toCamera maps a table point into the camera frame
func (o overhead) toCamera(p r3.Vector) r3.Vector {
	d := p.Sub(o.center)
	return r3.Vector{X: d.X, Y: -d.Y, Z: -d.Z}
}

// project returns the distorted pixel of a table point
func (o overhead) project(p r3.Vector) tags.Point {
	c := o.toCamera(p)
	ideal := tags.Point{X: o.cam.Fx*c.X/c.Z + o.cam.Cx, Y: o.cam.Fy*c.Y/c.Z + o.cam.Cy}
	return o.cam.Distort(ideal)
}

// tag builds the detection of a flat marker centred at the table point
func (o overhead) tag(id int, at tags.Point) tags.DetectedTag {

	d := tags.DetectedTag{ID: id}
	size := tags.Classify(id).SizeMM()

	for i, m := range tagModel(size) {
		d.Corners[i] = o.project(r3.Vector{X: at.X + m.X, Y: at.Y + m.Y})
	}

	return d
}

func (o overhead) fixedTags(layout Layout) []tags.DetectedTag {

	var out []tags.DetectedTag

	for _, id := range layout.FixedIDs() {
		out = append(out, o.tag(id, layout.Fixed[id]))
	}

	return out
}

// matricesEqual compare matrices
func matricesEqual(a, b mat.Matrix, epsilon float64) bool {
	r1, c1 := a.Dims()
	r2, c2 := b.Dims()

	if r1 != r2 || c1 != c2 {
		return false
	}

	for i := 0; i < r1; i++ {
		for j := 0; j < c1; j++ {
			if diff := a.At(i, j) - b.At(i, j); diff > epsilon || diff < -epsilon {
				return false
			}
		}
	}

	return true
}

func pointsClose(a, b tags.Point, epsilon float64) bool {
	return math.Hypot(a.X-b.X, a.Y-b.Y) <= epsilon
}

func TestUndistortRoundTrip(t *testing.T) {

	cam := DefaultCameraModel()

	for x := 0.0; x <= 4000; x += 500 {
		for y := 0.0; y <= 4000; y += 500 {
			ideal := tags.Point{X: x, Y: y}
			distorted := cam.Distort(ideal)

			got, err := cam.Undistort(distorted)

			if err != nil {
				t.Fatalf("undistort %v: unexpected error %v", distorted, err)
			}

			if !pointsClose(got, ideal, 1e-6) {
				t.Errorf("expected %v, got %v", ideal, got)
			}
		}
	}

	center := tags.Point{X: cam.Cx, Y: cam.Cy}

	if got, _ := cam.Undistort(center); got != center {
		t.Errorf("principal point should be unchanged, got %v", got)
	}
}

func TestNewCameraModel(t *testing.T) {

	k := [9]float64{2493.62477, 0, 1977.18701, 0, 2493.11358, 2034.91176, 0, 0, 1}

	cam, err := NewCameraModel(k, DefaultCameraModel().D)

	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}

	if cam != DefaultCameraModel() {
		t.Errorf("expected default model, got %+v", cam)
	}

	k[0] = 0

	if _, err := NewCameraModel(k, [4]float64{}); !errors.Is(err, ErrInvalidCamera) {
		t.Errorf("expected ErrInvalidCamera, got %v", err)
	}
}

func TestFindHomographyRecoversTransform(t *testing.T) {

	truth, err := NewHomography(mat.NewDense(3, 3, []float64{
		0.31, 0.025, 420,
		-0.012, 0.29, 150,
		1.2e-5, 2.5e-5, 1,
	}))

	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}

	layout := DefaultLayout()
	var src, dst []tags.Point

	for _, id := range layout.FixedIDs() {
		p := layout.Fixed[id]
		q, err := truth.Project(p)

		if err != nil {
			t.Fatalf("project: %v", err)
		}

		src = append(src, p)
		dst = append(dst, q)
	}

	h, err := FindHomography(src, dst)

	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}

	if !matricesEqual(h.Matrix(), truth.Matrix(), 1e-6) {
		t.Errorf("expected %v, got %v",
			mat.Formatted(truth.Matrix(), mat.Prefix(""), mat.Excerpt(0)),
			mat.Formatted(h.Matrix(), mat.Prefix(""), mat.Excerpt(0)),
		)
	}

	// every point on the table survives a round trip within a millimetre
	for x := 0.0; x <= layout.Width; x += 250 {
		for y := 0.0; y <= layout.Length; y += 250 {
			p := tags.Point{X: x, Y: y}

			px, err := h.Project(p)

			if err != nil {
				t.Fatalf("project %v: %v", p, err)
			}

			back, err := h.Unproject(px)

			if err != nil {
				t.Fatalf("unproject %v: %v", px, err)
			}

			if !pointsClose(back, p, 1) {
				t.Errorf("round trip of %v gave %v", p, back)
			}
		}
	}
}

func TestCheckConditioning(t *testing.T) {

	tests := []struct {
		name string
		m    *mat.Dense
		ok   bool
	}{
		{
			name: "identity",
			m:    mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1}),
			ok:   true,
		},
		{
			name: "perspective",
			m:    mat.NewDense(3, 3, []float64{0.8, 0.1, 0.2, -0.05, 1.1, 0.1, 0.02, 0.03, 1}),
			ok:   true,
		},
		{
			name: "nearly singular",
			m:    mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1e-6}),
			ok:   false,
		},
		{
			name: "singular",
			m:    mat.NewDense(3, 3, []float64{1, 2, 3, 2, 4, 6, 0, 0, 1}),
			ok:   false,
		},
	}

	for _, tc := range tests {
		err := checkConditioning(tc.m)

		if tc.ok && err != nil {
			t.Errorf("%s: unexpected error %v", tc.name, err)
		}

		if !tc.ok && !errors.Is(err, ErrDegenerate) {
			t.Errorf("%s: expected ErrDegenerate, got %v", tc.name, err)
		}
	}
}

func TestFindHomographyFailures(t *testing.T) {

	square := []tags.Point{{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 100, Y: 100}, {X: 0, Y: 100}}

	tests := []struct {
		name     string
		src      []tags.Point
		dst      []tags.Point
		expected error
	}{
		{
			name:     "three points",
			src:      square[:3],
			dst:      square[:3],
			expected: ErrTooFewPoints,
		},
		{
			name:     "length mismatch",
			src:      square,
			dst:      square[:3],
			expected: ErrTooFewPoints,
		},
		{
			name:     "collinear source",
			src:      []tags.Point{{X: 0, Y: 0}, {X: 50, Y: 0}, {X: 100, Y: 0}, {X: 0, Y: 100}},
			dst:      square,
			expected: ErrDegenerate,
		},
		{
			name:     "collinear destination",
			src:      square,
			dst:      []tags.Point{{X: 0, Y: 0}, {X: 10, Y: 10}, {X: 20, Y: 20}, {X: 0, Y: 100}},
			expected: ErrDegenerate,
		},
		{
			name: "near collinear destination",
			src:  []tags.Point{{X: 600, Y: 600}, {X: 600, Y: 2400}, {X: 1400, Y: 600}, {X: 1400, Y: 2400}},
			// three pixels within 0.2px of one line across 800px
			dst:      []tags.Point{{X: 100, Y: 100}, {X: 500, Y: 100.2}, {X: 900, Y: 100}, {X: 100, Y: 500}},
			expected: ErrDegenerate,
		},
		{
			name:     "sliver quadrilateral",
			src:      square,
			dst:      []tags.Point{{X: 0, Y: 0}, {X: 1000, Y: 0}, {X: 1000, Y: 5}, {X: 0, Y: 5}},
			expected: ErrDegenerate,
		},
		{
			name:     "duplicate point",
			src:      []tags.Point{{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 100, Y: 0}, {X: 0, Y: 100}},
			dst:      square,
			expected: ErrDegenerate,
		},
	}

	for _, tc := range tests {
		h, err := FindHomography(tc.src, tc.dst)

		if !errors.Is(err, tc.expected) {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.expected, err)
		}

		if h != nil {
			t.Errorf("%s: expected no homography", tc.name)
		}
	}
}

func TestLayoutValidate(t *testing.T) {

	if err := DefaultLayout().Validate(); err != nil {
		t.Fatalf("default layout should be valid, got %v", err)
	}

	missing := DefaultLayout()
	delete(missing.Fixed, 23)

	offTable := DefaultLayout()
	offTable.Fixed[20] = tags.Point{X: -5, Y: 600}

	wrongID := DefaultLayout()
	delete(wrongID.Fixed, 23)
	wrongID.Fixed[3] = tags.Point{X: 1000, Y: 1000}

	empty := DefaultLayout()
	empty.Width = 0

	tests := []struct {
		name   string
		layout Layout
	}{
		{"missing tag", missing},
		{"tag off table", offTable},
		{"non reference id", wrongID},
		{"zero width", empty},
	}

	for _, tc := range tests {
		if err := tc.layout.Validate(); !errors.Is(err, ErrInvalidLayout) {
			t.Errorf("%s: expected ErrInvalidLayout, got %v", tc.name, err)
		}
	}
}

func TestCalibratorPlanar(t *testing.T) {

	view := newOverhead(true)
	layout := DefaultLayout()

	c, err := NewCalibrator(view.cam, layout, Planar)

	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}

	fixed := view.fixedTags(layout)

	// three reference tags are not enough and leave no calibration
	if _, err := c.Calibrate(fixed[:3]); !errors.Is(err, ErrMissingFixedTags) {
		t.Fatalf("expected ErrMissingFixedTags, got %v", err)
	}

	if c.Calibration() != nil {
		t.Fatalf("expected no calibration after failed attempt")
	}

	robot := view.tag(3, tags.Point{X: 850, Y: 1720})
	detected := append([]tags.DetectedTag{robot}, fixed...)

	cal, err := c.Calibrate(detected)

	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}

	if e := cal.ReprojectionError(); e > 1e-6 {
		t.Errorf("expected zero reprojection error, got %f", e)
	}

	if e := cal.SizeError(); e > 1 {
		t.Errorf("expected reference tags to measure 100mm, off by %f", e)
	}

	got, err := cal.Localize(robot)

	if err != nil {
		t.Fatalf("localize: %v", err)
	}

	if !pointsClose(got, tags.Point{X: 850, Y: 1720}, 1) {
		t.Errorf("expected robot at 850,1720 got %v", got)
	}

	// cached calibration is returned without reference tags
	again, err := c.Calibrate(nil)

	if err != nil || again != cal {
		t.Errorf("expected cached calibration, got %p err %v", again, err)
	}

	if c.Attempts() != 2 {
		t.Errorf("expected 2 attempts, got %d", c.Attempts())
	}

	c.Reset()

	if c.Calibration() != nil {
		t.Errorf("expected reset to clear calibration")
	}
}

func TestCalibrationSizeError(t *testing.T) {

	view := newOverhead(true)
	layout := DefaultLayout()

	c, err := NewCalibrator(view.cam, layout, Planar)

	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}

	// reference tags printed at 120mm instead of 100mm
	var fixed []tags.DetectedTag

	for _, id := range layout.FixedIDs() {
		at := layout.Fixed[id]
		d := tags.DetectedTag{ID: id}

		for i, m := range tagModel(120) {
			d.Corners[i] = view.project(r3.Vector{X: at.X + m.X, Y: at.Y + m.Y})
		}

		fixed = append(fixed, d)
	}

	cal, err := c.Calibrate(fixed)

	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}

	if e := cal.ReprojectionError(); e > 1e-6 {
		t.Errorf("expected four point fit to be exact, got %f", e)
	}

	if e := cal.SizeError(); e < 18 || e > 22 {
		t.Errorf("expected size error near 20mm, got %f", e)
	}

	if len(cal.References) != 4 {
		t.Errorf("expected 4 reference tags, got %d", len(cal.References))
	}
}

func TestCalibratorFirstOccurrenceWins(t *testing.T) {

	view := newOverhead(false)
	layout := DefaultLayout()

	c, err := NewCalibrator(view.cam, layout, Planar)

	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}

	fixed := view.fixedTags(layout)
	// a bogus duplicate of tag 20 seen later in the frame is ignored
	bogus := view.tag(20, tags.Point{X: 1900, Y: 100})
	detected := append(fixed, bogus)

	cal, err := c.Calibrate(detected)

	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}

	at := tags.Point{X: 1000, Y: 1000}
	got, err := cal.Localize(view.tag(5, at))

	if err != nil {
		t.Fatalf("localize: %v", err)
	}

	if !pointsClose(got, at, 1) {
		t.Errorf("expected %v, got %v", at, got)
	}
}

func TestEstimateTagPose(t *testing.T) {

	view := newOverhead(true)
	at := tags.Point{X: 400, Y: 2600}
	tag := view.tag(7, at)

	pose, err := EstimateTagPose(tag.Corners, tags.RobotYellow.SizeMM(), view.cam)

	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}

	want := view.toCamera(r3.Vector{X: at.X, Y: at.Y})

	if d := pose.Translation.Distance(want); d > 1e-3 {
		t.Errorf("expected translation %v, got %v", want, pose.Translation)
	}

	expectedRot := mat.NewDense(3, 3, []float64{1, 0, 0, 0, -1, 0, 0, 0, -1})

	if !matricesEqual(pose.Rotation, expectedRot, 1e-6) {
		t.Errorf("expected rotation %v, got %v",
			mat.Formatted(expectedRot, mat.Prefix(""), mat.Excerpt(0)),
			mat.Formatted(pose.Rotation, mat.Prefix(""), mat.Excerpt(0)),
		)
	}

	if _, err := EstimateTagPose(tag.Corners, 0, view.cam); !errors.Is(err, ErrUnknownTagSize) {
		t.Errorf("expected ErrUnknownTagSize, got %v", err)
	}
}

func TestFitRigid(t *testing.T) {

	// rotation of 30 degrees about z followed by 10 degrees about x
	sz, cz := math.Sincos(math.Pi / 6)
	sx, cx := math.Sincos(math.Pi / 18)

	rz := mat.NewDense(3, 3, []float64{cz, -sz, 0, sz, cz, 0, 0, 0, 1})
	rx := mat.NewDense(3, 3, []float64{1, 0, 0, 0, cx, -sx, 0, sx, cx})

	var rot mat.Dense
	rot.Mul(rx, rz)

	truth := &RigidTransform{R: &rot, T: r3.Vector{X: 120, Y: -40, Z: 2000}}

	tests := []struct {
		name string
		src  []r3.Vector
	}{
		{
			name: "coplanar",
			src:  []r3.Vector{{X: 600, Y: 600}, {X: 600, Y: 2400}, {X: 1400, Y: 600}, {X: 1400, Y: 2400}},
		},
		{
			name: "general",
			src:  []r3.Vector{{X: 0, Y: 0, Z: 5}, {X: 100, Y: 20, Z: -30}, {X: -50, Y: 80, Z: 10}, {X: 30, Y: -70, Z: 60}},
		},
	}

	for _, tc := range tests {
		dst := make([]r3.Vector, len(tc.src))

		for i, p := range tc.src {
			dst[i] = truth.Apply(p)
		}

		got, err := FitRigid(tc.src, dst)

		if err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}

		if !matricesEqual(got.R, truth.R, 1e-9) {
			t.Errorf("%s: expected rotation %v, got %v", tc.name,
				mat.Formatted(truth.R, mat.Prefix(""), mat.Excerpt(0)),
				mat.Formatted(got.R, mat.Prefix(""), mat.Excerpt(0)),
			)
		}

		if d := got.T.Distance(truth.T); d > 1e-6 {
			t.Errorf("%s: expected translation %v, got %v", tc.name, truth.T, got.T)
		}

		if e := got.RMSE(tc.src, dst); e > 1e-6 {
			t.Errorf("%s: expected zero rmse, got %f", tc.name, e)
		}
	}

	collinear := []r3.Vector{{X: 0}, {X: 1}, {X: 2}}

	if _, err := FitRigid(collinear, collinear); !errors.Is(err, ErrDegenerate) {
		t.Errorf("expected ErrDegenerate for collinear points, got %v", err)
	}

	if _, err := FitRigid(collinear[:2], collinear[:2]); !errors.Is(err, ErrTooFewPoints) {
		t.Errorf("expected ErrTooFewPoints, got %v", err)
	}
}

func TestCalibratorPose(t *testing.T) {

	view := newOverhead(true)
	layout := DefaultLayout()

	c, err := NewCalibrator(view.cam, layout, Pose)

	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}

	cal, err := c.Calibrate(view.fixedTags(layout))

	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}

	if cal.Rigid == nil {
		t.Fatalf("expected rigid transform for pose strategy")
	}

	tests := []struct {
		id int
		at tags.Point
	}{
		{3, tags.Point{X: 850, Y: 1720}},
		{8, tags.Point{X: 1500, Y: 300}},
		{41, tags.Point{X: 200, Y: 2900}},
	}

	for _, tc := range tests {
		got, err := cal.Localize(view.tag(tc.id, tc.at))

		if err != nil {
			t.Fatalf("tag %d: unexpected error %v", tc.id, err)
		}

		if !pointsClose(got, tc.at, 1) {
			t.Errorf("tag %d: expected %v, got %v", tc.id, tc.at, got)
		}
	}

	if _, err := cal.Localize(tags.DetectedTag{ID: 99}); err == nil {
		t.Errorf("expected error for tag without known size")
	}
}

func TestParseStrategy(t *testing.T) {

	tests := []struct {
		in       string
		expected Strategy
		fail     bool
	}{
		{"", Planar, false},
		{"planar", Planar, false},
		{"Pose", Pose, false},
		{"3d", Pose, false},
		{"affine", Planar, true},
	}

	for _, tc := range tests {
		got, err := ParseStrategy(tc.in)

		if (err != nil) != tc.fail {
			t.Errorf("%q: unexpected error state %v", tc.in, err)
		}

		if got != tc.expected {
			t.Errorf("%q: expected %s, got %s", tc.in, tc.expected, got)
		}
	}
}
