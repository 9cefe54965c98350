package calib

import (
	"fmt"
	"math"

	"github.com/roboteseo/rodvision/tags"
	"gonum.org/v1/gonum/mat"
)

const (
	// undistortIterations is the Newton iteration limit per point
	undistortIterations = 20
	// undistortEpsilon is the step size at which Newton iteration stops
	undistortEpsilon = 1e-12
)

// CameraModel holds pinhole intrinsics and the four fisheye (equidistant)
// distortion coefficients of the overhead camera
type CameraModel struct {
	// Fx and Fy are the focal lengths in pixels
	Fx float64
	Fy float64
	// Cx and Cy are the principal point in pixels
	Cx float64
	Cy float64
	// D holds k1..k4 of theta_d = theta*(1 + k1*theta^2 + k2*theta^4 + k3*theta^6 + k4*theta^8)
	D [4]float64
}

// DefaultCameraModel returns the factory calibration of the competition
// camera at full sensor resolution
func DefaultCameraModel() CameraModel {
	return CameraModel{
		Fx: 2493.62477,
		Fy: 2493.11358,
		Cx: 1977.18701,
		Cy: 2034.91176,
		D:  [4]float64{-0.1203345, 0.06802544, -0.13779641, 0.08243704},
	}
}

// NewCameraModel builds a model from a row major 3x3 camera matrix and the
// fisheye coefficients.  Skew is ignored.
func NewCameraModel(k [9]float64, d [4]float64) (CameraModel, error) {

	c := CameraModel{
		Fx: k[0],
		Fy: k[4],
		Cx: k[2],
		Cy: k[5],
		D:  d,
	}

	if err := c.Validate(); err != nil {
		return CameraModel{}, err
	}

	return c, nil
}

// Validate checks the focal lengths are usable
func (c CameraModel) Validate() error {

	if c.Fx <= 0 || c.Fy <= 0 || math.IsNaN(c.Fx) || math.IsNaN(c.Fy) {
		return fmt.Errorf("%w: fx=%f fy=%f", ErrInvalidCamera, c.Fx, c.Fy)
	}

	return nil
}

// Matrix returns the 3x3 camera matrix K
func (c CameraModel) Matrix() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		c.Fx, 0, c.Cx,
		0, c.Fy, c.Cy,
		0, 0, 1,
	})
}

// Scaled returns the model for an image resized by factor from the
// resolution the intrinsics were measured at.  Distortion is unchanged.
func (c CameraModel) Scaled(factor float64) CameraModel {
	c.Fx *= factor
	c.Fy *= factor
	c.Cx *= factor
	c.Cy *= factor
	return c
}

// Normalize converts a pixel to normalized image coordinates
func (c CameraModel) Normalize(p tags.Point) tags.Point {
	return tags.Point{X: (p.X - c.Cx) / c.Fx, Y: (p.Y - c.Cy) / c.Fy}
}

// Denormalize converts normalized image coordinates to a pixel
func (c CameraModel) Denormalize(p tags.Point) tags.Point {
	return tags.Point{X: p.X*c.Fx + c.Cx, Y: p.Y*c.Fy + c.Cy}
}

// distortTheta evaluates the fisheye polynomial
func (c CameraModel) distortTheta(theta float64) float64 {
	t2 := theta * theta
	t4 := t2 * t2
	t6 := t4 * t2
	t8 := t4 * t4
	return theta * (1 + c.D[0]*t2 + c.D[1]*t4 + c.D[2]*t6 + c.D[3]*t8)
}

// Distort maps an ideal pinhole pixel to the pixel the fisheye lens
// actually images it at
func (c CameraModel) Distort(p tags.Point) tags.Point {

	n := c.Normalize(p)
	r := math.Hypot(n.X, n.Y)

	if r < 1e-12 {
		return p
	}

	theta := math.Atan(r)
	scale := c.distortTheta(theta) / r

	return c.Denormalize(tags.Point{X: n.X * scale, Y: n.Y * scale})
}

// Undistort maps a distorted pixel to its ideal pinhole pixel using the
// camera matrix as the new projection, so the result stays in the same
// pixel space as the input
func (c CameraModel) Undistort(p tags.Point) (tags.Point, error) {

	n := c.Normalize(p)
	thetaD := math.Hypot(n.X, n.Y)

	// fisheye model is only defined up to 90 degrees off axis
	thetaD = math.Min(thetaD, math.Pi/2)

	if thetaD < 1e-12 {
		return p, nil
	}

	theta := thetaD
	converged := false

	for i := 0; i < undistortIterations; i++ {
		t2 := theta * theta
		t4 := t2 * t2
		t6 := t4 * t2
		t8 := t4 * t4

		f := c.distortTheta(theta) - thetaD
		df := 1 + 3*c.D[0]*t2 + 5*c.D[1]*t4 + 7*c.D[2]*t6 + 9*c.D[3]*t8

		if df == 0 {
			break
		}

		step := f / df
		theta -= step

		if math.Abs(step) < undistortEpsilon {
			converged = true
			break
		}
	}

	if !converged || theta < 0 || theta >= math.Pi/2 {
		return tags.Point{}, fmt.Errorf("%w: pixel %.1f,%.1f", ErrNoConvergence, p.X, p.Y)
	}

	scale := math.Tan(theta) / thetaD

	return c.Denormalize(tags.Point{X: n.X * scale, Y: n.Y * scale}), nil
}
