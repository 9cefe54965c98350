package tags

import (
	"fmt"
	"math"
)

// Point is a 2D coordinate, either in image pixels or table millimetres
// depending on context
type Point struct {
	X float64
	Y float64
}

// Corners holds the four corners of a tag in detector order, starting from
// the top-left corner of the printed marker and going clockwise
type Corners [4]Point

// DetectedTag is the raw output of the marker detector for one tag
type DetectedTag struct {
	// ID is the decoded marker id
	ID int
	// Corners are the sub-pixel corner positions
	Corners Corners
}

// TagRecord is a classified and optionally localized tag.  Records are
// created per frame and not modified afterwards.
type TagRecord struct {
	// ID is the marker id
	ID int
	// Category of the marker
	Category Category
	// Pixel is the centre of the marker in image coordinates
	Pixel Point
	// Angle is the rotation of the top edge in radians relative to the
	// image x axis
	Angle float64
	// X is the table position in mm, or the pixel x when not localized
	X float64
	// Y is the table position in mm, or the pixel y when not localized
	Y float64
	// Localized is true when X and Y are table millimetres
	Localized bool
}

// String returns a short description of the record for logs
func (r TagRecord) String() string {

	unit := "px"

	if r.Localized {
		unit = "mm"
	}

	return fmt.Sprintf("tag %d (%s) at %.1f,%.1f %s angle %.1f deg",
		r.ID, r.Category, r.X, r.Y, unit, r.Angle*180/math.Pi)
}

// Center returns the mean of the four corners
func (c Corners) Center() Point {

	var p Point

	for _, pt := range c {
		p.X += pt.X
		p.Y += pt.Y
	}

	p.X /= 4
	p.Y /= 4

	return p
}

// Angle returns atan2 of the edge from corner 0 to corner 1
func (c Corners) Angle() float64 {
	return math.Atan2(c[1].Y-c[0].Y, c[1].X-c[0].X)
}

// Perimeter returns the sum of the four edge lengths
func (c Corners) Perimeter() float64 {

	var total float64

	for i := range c {
		next := c[(i+1)%4]
		total += math.Hypot(next.X-c[i].X, next.Y-c[i].Y)
	}

	return total
}

// Area returns the polygon area using the shoelace formula.  The result is
// always positive regardless of winding order.
func (c Corners) Area() float64 {

	var sum float64

	for i := range c {
		next := c[(i+1)%4]
		sum += c[i].X*next.Y - next.X*c[i].Y
	}

	return math.Abs(sum) / 2
}

// Scale returns the corners multiplied by factor, used to map corners found
// on a resized image back to the original image
func (c Corners) Scale(factor float64) Corners {

	var out Corners

	for i, pt := range c {
		out[i] = Point{X: pt.X * factor, Y: pt.Y * factor}
	}

	return out
}

// NormalizeAngle wraps an angle in radians into the range (-Pi, Pi]
func NormalizeAngle(a float64) float64 {

	a = math.Mod(a, 2*math.Pi)

	if a <= -math.Pi {
		a += 2 * math.Pi
	} else if a > math.Pi {
		a -= 2 * math.Pi
	}

	return a
}

// SquareCorners builds the corners of an axis aligned square marker of the
// given edge length centred on c and rotated by angle radians
func SquareCorners(c Point, edge, angle float64) Corners {

	h := edge / 2
	// top-left, top-right, bottom-right, bottom-left in image orientation
	local := [4]Point{{-h, -h}, {h, -h}, {h, h}, {-h, h}}
	sin, cos := math.Sincos(angle)

	var out Corners

	for i, p := range local {
		out[i] = Point{
			X: c.X + p.X*cos - p.Y*sin,
			Y: c.Y + p.X*sin + p.Y*cos,
		}
	}

	return out
}
