package calib

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// RigidTransform maps points from one 3D frame into another by a proper
// rotation followed by a translation
type RigidTransform struct {
	// R is the 3x3 rotation
	R *mat.Dense
	// T is the translation applied after rotation
	T r3.Vector
}

// FitRigid returns the least squares rigid transform taking each src point
// onto the dst point at the same index.  The rotation is solved with the
// Kabsch SVD method and corrected so it is never a reflection.  At least
// three non collinear points are needed.
func FitRigid(src, dst []r3.Vector) (*RigidTransform, error) {

	if len(src) != len(dst) || len(src) < 3 {
		return nil, fmt.Errorf("%w: need 3 matched points, got %d and %d",
			ErrTooFewPoints, len(src), len(dst))
	}

	cs := centroid(src)
	cd := centroid(dst)

	// cross covariance of the centred point sets
	cov := mat.NewDense(3, 3, nil)

	for i := range src {
		a := vecToSlice(src[i].Sub(cs))
		b := vecToSlice(dst[i].Sub(cd))

		for r := 0; r < 3; r++ {
			for c := 0; c < 3; c++ {
				cov.Set(r, c, cov.At(r, c)+a[r]*b[c])
			}
		}
	}

	var svd mat.SVD

	if ok := svd.Factorize(cov, mat.SVDFull); !ok {
		return nil, fmt.Errorf("%w: SVD factorization failed", ErrDegenerate)
	}

	values := svd.Values(nil)

	if values[0] == 0 || values[1]/values[0] < rankTolerance {
		return nil, fmt.Errorf("%w: points are collinear", ErrDegenerate)
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var vut mat.Dense
	vut.Mul(&v, u.T())

	d := 1.0

	if mat.Det(&vut) < 0 {
		d = -1
	}

	diag := mat.NewDiagDense(3, []float64{1, 1, d})

	var vd, rot mat.Dense
	vd.Mul(&v, diag)
	rot.Mul(&vd, u.T())

	t := &RigidTransform{R: &rot}
	t.T = cd.Sub(t.Rotate(cs))

	return t, nil
}

// Rotate applies only the rotation to p
func (t *RigidTransform) Rotate(p r3.Vector) r3.Vector {
	return r3.Vector{
		X: t.R.At(0, 0)*p.X + t.R.At(0, 1)*p.Y + t.R.At(0, 2)*p.Z,
		Y: t.R.At(1, 0)*p.X + t.R.At(1, 1)*p.Y + t.R.At(1, 2)*p.Z,
		Z: t.R.At(2, 0)*p.X + t.R.At(2, 1)*p.Y + t.R.At(2, 2)*p.Z,
	}
}

// Apply maps p into the destination frame
func (t *RigidTransform) Apply(p r3.Vector) r3.Vector {
	return t.Rotate(p).Add(t.T)
}

// RMSE returns the root mean square distance between the transformed src
// points and dst
func (t *RigidTransform) RMSE(src, dst []r3.Vector) float64 {

	if len(src) == 0 {
		return 0
	}

	var sum float64

	for i := range src {
		sum += t.Apply(src[i]).Sub(dst[i]).Norm2()
	}

	return math.Sqrt(sum / float64(len(src)))
}

func centroid(pts []r3.Vector) r3.Vector {

	var c r3.Vector

	for _, p := range pts {
		c = c.Add(p)
	}

	return c.Mul(1 / float64(len(pts)))
}

func vecToSlice(v r3.Vector) [3]float64 {
	return [3]float64{v.X, v.Y, v.Z}
}
