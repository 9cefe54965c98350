package detect

import (
	"testing"

	"gocv.io/x/gocv"
)

func TestToDetected(t *testing.T) {

	corners := [][]gocv.Point2f{
		{{X: 10, Y: 10}, {X: 20, Y: 10}, {X: 20, Y: 20}, {X: 10, Y: 20}},
		{{X: 1, Y: 1}, {X: 2, Y: 2}},
		{{X: 30.5, Y: 40}, {X: 50, Y: 40}, {X: 50, Y: 60}, {X: 30.5, Y: 60}},
	}
	ids := []int{3, 7, 47}

	got := toDetected(corners, ids)

	if len(got) != 2 {
		t.Fatalf("expected 2 tags, got %d", len(got))
	}

	if got[0].ID != 3 || got[1].ID != 47 {
		t.Errorf("expected ids 3 and 47, got %d and %d", got[0].ID, got[1].ID)
	}

	if got[1].Corners[0].X != 30.5 || got[1].Corners[2].Y != 60 {
		t.Errorf("unexpected corners %v", got[1].Corners)
	}

	if c := got[0].Corners.Center(); c.X != 15 || c.Y != 15 {
		t.Errorf("expected center (15,15), got %v", c)
	}
}

func TestToDetectedMismatchedLengths(t *testing.T) {

	corners := [][]gocv.Point2f{
		{{X: 10, Y: 10}, {X: 20, Y: 10}, {X: 20, Y: 20}, {X: 10, Y: 20}},
	}

	if got := toDetected(corners, []int{1, 2}); len(got) != 1 {
		t.Errorf("expected 1 tag, got %d", len(got))
	}

	if got := toDetected(nil, nil); len(got) != 0 {
		t.Errorf("expected no tags, got %d", len(got))
	}
}

func TestDetectBlankImage(t *testing.T) {

	d := New(DefaultParams())
	defer d.Close()

	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), 120, 160, gocv.MatTypeCV8UC3)
	defer img.Close()

	got, err := d.Detect(img)

	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}

	if len(got) != 0 {
		t.Errorf("expected no tags in blank image, got %d", len(got))
	}

	empty := gocv.NewMat()
	defer empty.Close()

	if _, err := d.Detect(empty); err != ErrEmptyImage {
		t.Errorf("expected ErrEmptyImage, got %v", err)
	}
}
