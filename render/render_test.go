package render

import (
	"image"
	"image/color"
	"testing"

	"github.com/roboteseo/rodvision/tags"
	"gocv.io/x/gocv"
)

func TestCategoryColor(t *testing.T) {

	tests := []struct {
		cat      tags.Category
		expected color.RGBA
	}{
		{tags.FixedReference, Green},
		{tags.BoxEmpty, Black},
		{tags.BoxYellow, Yellow},
		{tags.Invalid, Pink},
	}

	for _, tc := range tests {
		if got := CategoryColor(tc.cat); got != tc.expected {
			t.Errorf("%v: expected %v, got %v", tc.cat, tc.expected, got)
		}
	}
}

func TestLabels(t *testing.T) {

	r := tags.TagRecord{ID: 7, X: 1234.7, Y: 88.2, Localized: true}

	if got := IDLabel(r); got != "ID:7" {
		t.Errorf("unexpected id label %q", got)
	}

	if got := PositionLabel(r); got != "(1234mm,88mm)" {
		t.Errorf("unexpected position label %q", got)
	}

	r.Localized = false

	if got := PositionLabel(r); got != "" {
		t.Errorf("expected no position label, got %q", got)
	}
}

func TestCounterLines(t *testing.T) {

	lines := CounterLines(tags.Counts{RobotBlue: 2, RobotYellow: 1, Fixed: 4, BoxEmpty: 3})

	expected := []string{
		"black markers : 3",
		"blue markers : 0",
		"yellow markers : 0",
		"robots markers : 3",
		"fixed markers : 4",
		"total : 10",
	}

	if len(lines) != len(expected) {
		t.Fatalf("expected %d lines, got %d", len(expected), len(lines))
	}

	for i := range expected {
		if lines[i] != expected[i] {
			t.Errorf("line %d: expected %q, got %q", i, expected[i], lines[i])
		}
	}
}

func TestTrail(t *testing.T) {

	trail := NewTrail(3)

	for i := 0; i < 5; i++ {
		trail.Add([]tags.TagRecord{
			{ID: 2, Category: tags.RobotBlue, Pixel: tags.Point{X: float64(i * 10), Y: 5}},
			{ID: 36, Category: tags.BoxBlue, Pixel: tags.Point{X: 1, Y: 1}},
		})
	}

	pts := trail.Points(2)

	if len(pts) != 3 || pts[0] != image.Pt(20, 5) || pts[2] != image.Pt(40, 5) {
		t.Errorf("expected last three positions, got %v", pts)
	}

	if pts := trail.Points(36); len(pts) != 0 {
		t.Errorf("expected boxes not to be tracked, got %v", pts)
	}

	trail.Reset()

	if pts := trail.Points(2); len(pts) != 0 {
		t.Errorf("expected empty trail after reset, got %v", pts)
	}
}

func TestAnnotate(t *testing.T) {

	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), 400, 600, gocv.MatTypeCV8UC3)
	defer img.Close()

	// away from the counters in the top left
	corners := tags.SquareCorners(tags.Point{X: 450, Y: 300}, 40, 0)
	detected := []tags.DetectedTag{{ID: 41, Corners: corners}}
	records := tags.Filter(detected)

	trail := NewTrail(10)
	trail.Add(records)

	Annotate(&img, Annotation{
		Detected: detected,
		Records:  records,
		Counts:   tags.Count(records),
		Field:    []image.Point{{10, 10}, {590, 10}, {590, 390}, {10, 390}},
		Trail:    trail,
	})

	// the empty box outline is black on the top left corner of the tag
	x, y := int(corners[0].X+0.5), int(corners[0].Y+0.5)

	if v := img.GetUCharAt(y, x*3); v != 0 {
		t.Errorf("expected black outline at (%d,%d), got %d", x, y, v)
	}
}
