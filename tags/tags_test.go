package tags

import (
	"math"
	"testing"
)

func TestClassify(t *testing.T) {

	tests := []struct {
		id       int
		expected Category
	}{
		{0, Invalid},
		{1, RobotBlue},
		{5, RobotBlue},
		{6, RobotYellow},
		{10, RobotYellow},
		{11, Invalid},
		{19, Invalid},
		{20, FixedReference},
		{23, FixedReference},
		{24, Invalid},
		{35, Invalid},
		{36, BoxBlue},
		{41, BoxEmpty},
		{47, BoxYellow},
		{48, Invalid},
		{-3, Invalid},
	}

	for _, tc := range tests {
		if got := Classify(tc.id); got != tc.expected {
			t.Errorf("id %d: expected %s, got %s", tc.id, tc.expected, got)
		}
	}
}

func TestCornersGeometry(t *testing.T) {

	tests := []struct {
		name      string
		corners   Corners
		center    Point
		angle     float64
		perimeter float64
		area      float64
	}{
		{
			name:      "axis aligned",
			corners:   Corners{{0, 0}, {10, 0}, {10, 10}, {0, 10}},
			center:    Point{5, 5},
			angle:     0,
			perimeter: 40,
			area:      100,
		},
		{
			name:      "rotated 90 degrees",
			corners:   Corners{{10, 0}, {10, 10}, {0, 10}, {0, 0}},
			center:    Point{5, 5},
			angle:     math.Pi / 2,
			perimeter: 40,
			area:      100,
		},
		{
			name:      "counter clockwise winding",
			corners:   Corners{{0, 0}, {0, 4}, {3, 4}, {3, 0}},
			center:    Point{1.5, 2},
			angle:     math.Pi / 2,
			perimeter: 14,
			area:      12,
		},
	}

	for _, tc := range tests {
		c := tc.corners.Center()

		if math.Abs(c.X-tc.center.X) > 1e-9 || math.Abs(c.Y-tc.center.Y) > 1e-9 {
			t.Errorf("%s: expected center %v, got %v", tc.name, tc.center, c)
		}

		if a := tc.corners.Angle(); math.Abs(a-tc.angle) > 1e-9 {
			t.Errorf("%s: expected angle %f, got %f", tc.name, tc.angle, a)
		}

		if p := tc.corners.Perimeter(); math.Abs(p-tc.perimeter) > 1e-9 {
			t.Errorf("%s: expected perimeter %f, got %f", tc.name, tc.perimeter, p)
		}

		if a := tc.corners.Area(); math.Abs(a-tc.area) > 1e-9 {
			t.Errorf("%s: expected area %f, got %f", tc.name, tc.area, a)
		}
	}
}

func TestSquareCorners(t *testing.T) {

	c := SquareCorners(Point{100, 50}, 20, math.Pi/6)

	center := c.Center()

	if math.Abs(center.X-100) > 1e-9 || math.Abs(center.Y-50) > 1e-9 {
		t.Errorf("expected center 100,50, got %v", center)
	}

	if a := c.Angle(); math.Abs(a-math.Pi/6) > 1e-9 {
		t.Errorf("expected angle %f, got %f", math.Pi/6, a)
	}

	if a := c.Area(); math.Abs(a-400) > 1e-9 {
		t.Errorf("expected area 400, got %f", a)
	}
}

func TestFilter(t *testing.T) {

	detected := []DetectedTag{
		{ID: 47, Corners: SquareCorners(Point{10, 10}, 4, 0)},
		{ID: 12, Corners: SquareCorners(Point{20, 20}, 4, 0)},
		{ID: 3, Corners: SquareCorners(Point{30, 30}, 4, 0)},
		{ID: 99, Corners: SquareCorners(Point{40, 40}, 4, 0)},
		{ID: 21, Corners: SquareCorners(Point{50, 50}, 4, 0)},
	}

	records := Filter(detected)

	expected := []struct {
		id  int
		cat Category
		x   float64
	}{
		{47, BoxYellow, 10},
		{3, RobotBlue, 30},
		{21, FixedReference, 50},
	}

	if len(records) != len(expected) {
		t.Fatalf("expected %d records, got %d", len(expected), len(records))
	}

	for i, e := range expected {
		r := records[i]

		if r.ID != e.id || r.Category != e.cat {
			t.Errorf("record %d: expected id %d %s, got id %d %s", i, e.id, e.cat, r.ID, r.Category)
		}

		if r.Localized {
			t.Errorf("record %d: should not be localized", i)
		}

		if math.Abs(r.X-e.x) > 1e-9 || math.Abs(r.Pixel.X-e.x) > 1e-9 {
			t.Errorf("record %d: expected pixel x %f, got %f", i, e.x, r.X)
		}
	}

	if len(Filter(nil)) != 0 {
		t.Errorf("expected no records for empty input")
	}
}

func TestCount(t *testing.T) {

	records := Filter([]DetectedTag{
		{ID: 1}, {ID: 2}, {ID: 7}, {ID: 20}, {ID: 21}, {ID: 22}, {ID: 36}, {ID: 41}, {ID: 41}, {ID: 47}, {ID: 30},
	})

	c := Count(records)
	expected := Counts{RobotBlue: 2, RobotYellow: 1, Fixed: 3, BoxBlue: 1, BoxEmpty: 2, BoxYellow: 1}

	if c != expected {
		t.Errorf("expected counts %+v, got %+v", expected, c)
	}

	if c.Total() != 10 {
		t.Errorf("expected total 10, got %d", c.Total())
	}
}

func TestNormalizeAngle(t *testing.T) {

	tests := []struct {
		in       float64
		expected float64
	}{
		{0, 0},
		{math.Pi, math.Pi},
		{-math.Pi, math.Pi},
		{3 * math.Pi / 2, -math.Pi / 2},
		{-3 * math.Pi / 2, math.Pi / 2},
	}

	for _, tc := range tests {
		if got := NormalizeAngle(tc.in); math.Abs(got-tc.expected) > 1e-9 {
			t.Errorf("NormalizeAngle(%f): expected %f, got %f", tc.in, tc.expected, got)
		}
	}
}
