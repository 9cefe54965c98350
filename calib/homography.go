package calib

import (
	"fmt"
	"math"

	"github.com/roboteseo/rodvision/tags"
	"gonum.org/v1/gonum/mat"
)

const (
	// collinearTolerance is the minimum triangle area, relative to the
	// squared extent of the point set, for three points to count as
	// non collinear.  A right angled quadrilateral scores 0.25.
	collinearTolerance = 1e-2
	// maxConditionNumber bounds the 2-norm condition number of the
	// homography solved between the normalized point sets
	maxConditionNumber = 1e4
	// rankTolerance is the minimum ratio of the eighth to the first
	// singular value of the DLT system
	rankTolerance = 1e-10
	// infinityTolerance is the minimum homogeneous w accepted when
	// projecting a point
	infinityTolerance = 1e-12
)

// Homography is a planar projective transform between table millimetres
// and undistorted image pixels.  Both directions are kept so localization
// does not need to invert per call.
type Homography struct {
	// h maps table mm to pixels
	h *mat.Dense
	// inv maps pixels to table mm
	inv *mat.Dense
}

// FindHomography solves the transform mapping each src point onto the dst
// point at the same index using the normalized direct linear transform.  At
// least four correspondences are needed and with exactly four no three may be
// collinear in either set.
func FindHomography(src, dst []tags.Point) (*Homography, error) {

	if len(src) != len(dst) {
		return nil, fmt.Errorf("%w: %d source and %d destination points",
			ErrTooFewPoints, len(src), len(dst))
	}

	if len(src) < 4 {
		return nil, fmt.Errorf("%w: need 4, got %d", ErrTooFewPoints, len(src))
	}

	if len(src) == 4 {
		if err := checkCollinear(src); err != nil {
			return nil, fmt.Errorf("source points: %w", err)
		}

		if err := checkCollinear(dst); err != nil {
			return nil, fmt.Errorf("destination points: %w", err)
		}
	}

	srcT, srcNorm, err := normalizePoints(src)

	if err != nil {
		return nil, fmt.Errorf("source points: %w", err)
	}

	dstT, dstNorm, err := normalizePoints(dst)

	if err != nil {
		return nil, fmt.Errorf("destination points: %w", err)
	}

	a := mat.NewDense(2*len(src), 9, nil)

	for i := range srcNorm {
		x, y := srcNorm[i].X, srcNorm[i].Y
		u, v := dstNorm[i].X, dstNorm[i].Y

		a.SetRow(2*i, []float64{-x, -y, -1, 0, 0, 0, u * x, u * y, u})
		a.SetRow(2*i+1, []float64{0, 0, 0, -x, -y, -1, v * x, v * y, v})
	}

	var svd mat.SVD

	if ok := svd.Factorize(a, mat.SVDFull); !ok {
		return nil, fmt.Errorf("%w: SVD factorization failed", ErrDegenerate)
	}

	values := svd.Values(nil)

	if values[0] == 0 || values[7]/values[0] < rankTolerance {
		return nil, fmt.Errorf("%w: DLT system rank deficient", ErrDegenerate)
	}

	var v mat.Dense
	svd.VTo(&v)

	hn := mat.NewDense(3, 3, nil)

	for i := 0; i < 9; i++ {
		hn.Set(i/3, i%3, v.At(i, 8))
	}

	if err := checkConditioning(hn); err != nil {
		return nil, err
	}

	// undo normalization, H = inv(Tdst) * Hn * Tsrc
	var dstInv mat.Dense

	if err := dstInv.Inverse(dstT); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDegenerate, err)
	}

	var tmp, h mat.Dense
	tmp.Mul(hn, srcT)
	h.Mul(&dstInv, &tmp)

	return NewHomography(&h)
}

// NewHomography wraps a 3x3 matrix mapping table mm to pixels, normalizing
// it and computing the inverse
func NewHomography(m mat.Matrix) (*Homography, error) {

	r, c := m.Dims()

	if r != 3 || c != 3 {
		return nil, fmt.Errorf("%w: homography must be 3x3, got %dx%d", ErrDegenerate, r, c)
	}

	h := mat.DenseCopyOf(m)

	if err := normalizeScale(h); err != nil {
		return nil, err
	}

	var inv mat.Dense

	if err := inv.Inverse(h); err != nil {
		return nil, fmt.Errorf("%w: homography not invertible: %v", ErrDegenerate, err)
	}

	if err := normalizeScale(&inv); err != nil {
		return nil, err
	}

	return &Homography{h: h, inv: &inv}, nil
}

// Matrix returns a copy of the table to pixel matrix
func (h *Homography) Matrix() *mat.Dense {
	return mat.DenseCopyOf(h.h)
}

// InverseMatrix returns a copy of the pixel to table matrix
func (h *Homography) InverseMatrix() *mat.Dense {
	return mat.DenseCopyOf(h.inv)
}

// Project maps a table point in mm to an undistorted pixel
func (h *Homography) Project(p tags.Point) (tags.Point, error) {
	return apply(h.h, p)
}

// Unproject maps an undistorted pixel to a table point in mm
func (h *Homography) Unproject(p tags.Point) (tags.Point, error) {
	return apply(h.inv, p)
}

// apply multiplies the homogeneous point by m and dehomogenizes
func apply(m *mat.Dense, p tags.Point) (tags.Point, error) {

	x := m.At(0, 0)*p.X + m.At(0, 1)*p.Y + m.At(0, 2)
	y := m.At(1, 0)*p.X + m.At(1, 1)*p.Y + m.At(1, 2)
	w := m.At(2, 0)*p.X + m.At(2, 1)*p.Y + m.At(2, 2)

	if math.Abs(w) < infinityTolerance {
		return tags.Point{}, fmt.Errorf("%w: %.2f,%.2f", ErrPointAtInfinity, p.X, p.Y)
	}

	return tags.Point{X: x / w, Y: y / w}, nil
}

// normalizeScale divides m so the bottom right element is one
func normalizeScale(m *mat.Dense) error {

	s := m.At(2, 2)

	if math.Abs(s) < infinityTolerance || math.IsNaN(s) {
		return fmt.Errorf("%w: homography maps origin to infinity", ErrDegenerate)
	}

	m.Scale(1/s, m)

	return nil
}

// normalizePoints translates the points to their centroid and scales them
// so the mean distance from the origin is sqrt(2).  It returns the similarity
// transform applied and the transformed points.
func normalizePoints(pts []tags.Point) (*mat.Dense, []tags.Point, error) {

	var cx, cy float64

	for _, p := range pts {
		cx += p.X
		cy += p.Y
	}

	n := float64(len(pts))
	cx /= n
	cy /= n

	var meanDist float64

	for _, p := range pts {
		meanDist += math.Hypot(p.X-cx, p.Y-cy)
	}

	meanDist /= n

	if meanDist < 1e-12 {
		return nil, nil, fmt.Errorf("%w: points coincide", ErrDegenerate)
	}

	s := math.Sqrt2 / meanDist

	out := make([]tags.Point, len(pts))

	for i, p := range pts {
		out[i] = tags.Point{X: (p.X - cx) * s, Y: (p.Y - cy) * s}
	}

	t := mat.NewDense(3, 3, []float64{
		s, 0, -s * cx,
		0, s, -s * cy,
		0, 0, 1,
	})

	return t, out, nil
}

// checkConditioning returns ErrDegenerate when m is too close to singular
// for its inverse to be trusted
func checkConditioning(m mat.Matrix) error {

	cond := mat.Cond(m, 2)

	if math.IsNaN(cond) || cond > maxConditionNumber {
		return fmt.Errorf("%w: ill-conditioned homography, cond=%.3g", ErrDegenerate, cond)
	}

	return nil
}

// checkCollinear returns ErrDegenerate if any three of the points lie on a
// line or any two coincide
func checkCollinear(pts []tags.Point) error {

	var extent float64

	for i := range pts {
		for j := i + 1; j < len(pts); j++ {
			extent = math.Max(extent, math.Hypot(pts[j].X-pts[i].X, pts[j].Y-pts[i].Y))
		}
	}

	if extent == 0 {
		return fmt.Errorf("%w: points coincide", ErrDegenerate)
	}

	limit := collinearTolerance * extent * extent

	for i := 0; i < len(pts); i++ {
		for j := i + 1; j < len(pts); j++ {
			for k := j + 1; k < len(pts); k++ {
				area := math.Abs((pts[j].X-pts[i].X)*(pts[k].Y-pts[i].Y)-
					(pts[k].X-pts[i].X)*(pts[j].Y-pts[i].Y)) / 2

				if area < limit {
					return fmt.Errorf("%w: points %d, %d and %d are collinear", ErrDegenerate, i, j, k)
				}
			}
		}
	}

	return nil
}
