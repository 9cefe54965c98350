/*
Package fieldmask rasterises the competition table outline, as seen by the
calibrated camera, into a binary mask used to ignore detections off the
table.
*/
package fieldmask

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/ctessum/go.clipper"
	"github.com/roboteseo/rodvision/calib"
	"github.com/roboteseo/rodvision/tags"
	"gocv.io/x/gocv"
)

var (
	// ErrInvalidSize is returned for non positive image dimensions
	ErrInvalidSize = errors.New("invalid mask size")

	// ErrEmptyOutline is returned when the projected table outline has no
	// area inside the image
	ErrEmptyOutline = errors.New("table outline is empty")
)

// inside is the fill value of pixels on the table
var inside = color.RGBA{R: 255, G: 255, B: 255, A: 255}

// Options adjusts the projected outline before it is filled
type Options struct {
	// ScaleY stretches the outline vertically about its centroid to keep
	// tags standing proud of the table edges
	ScaleY float64
	// MarginPx grows the outline by this many pixels on every side, or
	// shrinks it when negative
	MarginPx float64
}

// DefaultOptions returns the outline adjustment used on the competition
// table
func DefaultOptions() Options {
	return Options{ScaleY: 1.1}
}

// FieldMask is a single channel image that is 255 on the table and 0
// elsewhere.  It must be closed to free the underlying Mat.
type FieldMask struct {
	// mat holds the mask pixels
	mat gocv.Mat
	// polygon is the outline the mask was filled from
	polygon []image.Point
}

// Outline projects the table corners into the image and applies the
// vertical scale, margin and clamping of opts
func Outline(h *calib.Homography, layout calib.Layout, width, height int,
	opts Options) ([]image.Point, error) {

	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}

	corners := layout.Corners()
	pts := make([]tags.Point, len(corners))

	var cy float64

	for i, c := range corners {
		p, err := h.Project(c)

		if err != nil {
			return nil, fmt.Errorf("project table corner %d: %w", i, err)
		}

		pts[i] = p
		cy += p.Y
	}

	cy /= float64(len(pts))

	scale := opts.ScaleY

	if scale <= 0 {
		scale = 1
	}

	for i := range pts {
		pts[i].Y = cy + (pts[i].Y-cy)*scale
	}

	if opts.MarginPx != 0 {
		pts = offset(pts, opts.MarginPx)
	}

	poly := make([]image.Point, 0, len(pts))

	for _, p := range pts {
		poly = append(poly, image.Point{
			X: clamp(int(math.Round(p.X)), 0, width-1),
			Y: clamp(int(math.Round(p.Y)), 0, height-1),
		})
	}

	if polygonArea(poly) == 0 {
		return nil, ErrEmptyOutline
	}

	return poly, nil
}

// Generate builds the mask of the table for an image of the given size
func Generate(h *calib.Homography, layout calib.Layout, width, height int,
	opts Options) (*FieldMask, error) {

	poly, err := Outline(h, layout, width, height, opts)

	if err != nil {
		return nil, err
	}

	mask := gocv.Zeros(height, width, gocv.MatTypeCV8UC1)

	pv := gocv.NewPointsVectorFromPoints([][]image.Point{poly})
	defer pv.Close()

	gocv.FillPoly(&mask, pv, inside)

	return &FieldMask{mat: mask, polygon: poly}, nil
}

// Mat returns the mask image.  The Mat remains owned by the FieldMask.
func (m *FieldMask) Mat() gocv.Mat {
	return m.mat
}

// Polygon returns a copy of the filled outline
func (m *FieldMask) Polygon() []image.Point {
	out := make([]image.Point, len(m.polygon))
	copy(out, m.polygon)
	return out
}

// Size returns the mask width and height
func (m *FieldMask) Size() (int, int) {
	return m.mat.Cols(), m.mat.Rows()
}

// Contains reports whether the pixel lies on the table
func (m *FieldMask) Contains(x, y int) bool {

	if x < 0 || y < 0 || x >= m.mat.Cols() || y >= m.mat.Rows() {
		return false
	}

	return m.mat.GetUCharAt(y, x) > 0
}

// Close frees the mask image
func (m *FieldMask) Close() error {
	return m.mat.Close()
}

// offset grows the polygon by delta pixels with rounded corners.  The
// original points are returned if clipping yields nothing.
func offset(pts []tags.Point, delta float64) []tags.Point {

	var path clipper.Path

	for _, p := range pts {
		path = append(path, &clipper.IntPoint{
			X: clipper.CInt(math.Round(p.X)),
			Y: clipper.CInt(math.Round(p.Y)),
		})
	}

	co := clipper.NewClipperOffset()
	co.AddPath(path, clipper.JtRound, clipper.EtClosedPolygon)

	solution := co.Execute(delta)

	// keep the largest resulting polygon
	var best clipper.Path
	var bestArea float64

	for _, sol := range solution {
		poly := make([]image.Point, len(sol))

		for i, pt := range sol {
			poly[i] = image.Point{X: int(pt.X), Y: int(pt.Y)}
		}

		if a := polygonArea(poly); a > bestArea {
			best, bestArea = sol, a
		}
	}

	if len(best) == 0 {
		return pts
	}

	out := make([]tags.Point, len(best))

	for i, pt := range best {
		out[i] = tags.Point{X: float64(pt.X), Y: float64(pt.Y)}
	}

	return out
}

// polygonArea returns the absolute shoelace area
func polygonArea(poly []image.Point) float64 {

	var sum int

	for i := range poly {
		next := poly[(i+1)%len(poly)]
		sum += poly[i].X*next.Y - next.X*poly[i].Y
	}

	return math.Abs(float64(sum)) / 2
}

func clamp(v, lo, hi int) int {

	if v < lo {
		return lo
	}

	if v > hi {
		return hi
	}

	return v
}
