package fieldmask

import (
	"errors"
	"testing"

	"github.com/roboteseo/rodvision/calib"
	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"
)

// tableView maps the 2000x3000mm table onto x 100..500 and y 60..360 of a
// 640x480 image
func tableView(t *testing.T) *calib.Homography {

	h, err := calib.NewHomography(mat.NewDense(3, 3, []float64{
		0.2, 0, 100,
		0, 0.1, 60,
		0, 0, 1,
	}))

	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}

	return h
}

func TestGenerate(t *testing.T) {

	h := tableView(t)
	layout := calib.DefaultLayout()

	tests := []struct {
		name    string
		opts    Options
		inside  [][2]int
		outside [][2]int
		minArea int
		maxArea int
	}{
		{
			name:    "unscaled",
			opts:    Options{ScaleY: 1},
			inside:  [][2]int{{300, 200}, {101, 61}, {499, 359}},
			outside: [][2]int{{50, 50}, {300, 50}, {520, 200}, {300, 370}},
			minArea: 118000,
			maxArea: 122000,
		},
		{
			name:    "default vertical scale",
			opts:    DefaultOptions(),
			inside:  [][2]int{{300, 50}, {300, 370}},
			outside: [][2]int{{300, 40}, {300, 380}, {90, 200}},
			minArea: 130000,
			maxArea: 134000,
		},
		{
			name:    "grown by margin",
			opts:    Options{ScaleY: 1, MarginPx: 10},
			inside:  [][2]int{{95, 200}, {300, 55}, {505, 365}},
			outside: [][2]int{{80, 200}, {300, 40}},
			minArea: 128000,
			maxArea: 136000,
		},
	}

	for _, tc := range tests {
		m, err := Generate(h, layout, 640, 480, tc.opts)

		if err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}

		if w, hgt := m.Size(); w != 640 || hgt != 480 {
			t.Errorf("%s: expected 640x480 mask, got %dx%d", tc.name, w, hgt)
		}

		if m.Mat().Type() != gocv.MatTypeCV8UC1 {
			t.Errorf("%s: expected single channel mask", tc.name)
		}

		for _, p := range tc.inside {
			if !m.Contains(p[0], p[1]) {
				t.Errorf("%s: expected %v inside mask", tc.name, p)
			}
		}

		for _, p := range tc.outside {
			if m.Contains(p[0], p[1]) {
				t.Errorf("%s: expected %v outside mask", tc.name, p)
			}
		}

		if n := gocv.CountNonZero(m.Mat()); n < tc.minArea || n > tc.maxArea {
			t.Errorf("%s: expected area between %d and %d, got %d", tc.name, tc.minArea, tc.maxArea, n)
		}

		m.Close()
	}
}

func TestOutlineClamped(t *testing.T) {

	// table projects far beyond a small image
	h, err := calib.NewHomography(mat.NewDense(3, 3, []float64{
		1, 0, -500,
		0, 1, -500,
		0, 0, 1,
	}))

	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}

	poly, err := Outline(h, calib.DefaultLayout(), 320, 240, DefaultOptions())

	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}

	for _, p := range poly {
		if p.X < 0 || p.X > 319 || p.Y < 0 || p.Y > 239 {
			t.Errorf("vertex %v outside image bounds", p)
		}
	}

	m, err := Generate(h, calib.DefaultLayout(), 320, 240, DefaultOptions())

	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}

	defer m.Close()

	if !m.Contains(0, 0) || !m.Contains(319, 239) {
		t.Errorf("expected whole image inside mask")
	}
}

func TestOutlineErrors(t *testing.T) {

	h := tableView(t)

	if _, err := Outline(h, calib.DefaultLayout(), 0, 480, DefaultOptions()); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("expected ErrInvalidSize, got %v", err)
	}

	// table lies entirely to the right of the image so every vertex clamps
	// onto the last column
	far, err := calib.NewHomography(mat.NewDense(3, 3, []float64{
		0.2, 0, 5000,
		0, 0.1, 60,
		0, 0, 1,
	}))

	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}

	if _, err := Generate(far, calib.DefaultLayout(), 640, 480, DefaultOptions()); !errors.Is(err, ErrEmptyOutline) {
		t.Errorf("expected ErrEmptyOutline, got %v", err)
	}
}
