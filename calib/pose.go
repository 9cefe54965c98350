package calib

import (
	"fmt"

	"github.com/golang/geo/r3"
	"github.com/roboteseo/rodvision/tags"
	"gonum.org/v1/gonum/mat"
)

// TagPose is the position and orientation of a square marker in the camera
// frame.  The camera frame has x right, y down and z along the optical axis,
// in millimetres.
type TagPose struct {
	// Rotation maps tag frame axes into the camera frame
	Rotation *mat.Dense
	// Translation is the marker centre in the camera frame
	Translation r3.Vector
}

// tagModel returns the marker corners in the tag frame, matching the
// detector corner order with the tag y axis pointing up the image
func tagModel(size float64) []tags.Point {
	h := size / 2
	return []tags.Point{{X: -h, Y: h}, {X: h, Y: h}, {X: h, Y: -h}, {X: -h, Y: -h}}
}

// EstimateTagPose recovers the pose of a flat square marker of the given
// edge length from its four image corners.  Corners are undistorted first,
// then the plane to image homography is decomposed into rotation and
// translation and the rotation is projected onto the nearest orthonormal
// matrix.
func EstimateTagPose(corners tags.Corners, size float64, camera CameraModel) (TagPose, error) {

	if size <= 0 {
		return TagPose{}, fmt.Errorf("%w: edge %.1f", ErrUnknownTagSize, size)
	}

	img := make([]tags.Point, len(corners))

	for i, c := range corners {
		u, err := camera.Undistort(c)

		if err != nil {
			return TagPose{}, fmt.Errorf("corner %d: %w", i, err)
		}

		img[i] = camera.Normalize(u)
	}

	h, err := FindHomography(tagModel(size), img)

	if err != nil {
		return TagPose{}, fmt.Errorf("marker homography: %w", err)
	}

	g := h.h
	g1 := r3.Vector{X: g.At(0, 0), Y: g.At(1, 0), Z: g.At(2, 0)}
	g2 := r3.Vector{X: g.At(0, 1), Y: g.At(1, 1), Z: g.At(2, 1)}
	g3 := r3.Vector{X: g.At(0, 2), Y: g.At(1, 2), Z: g.At(2, 2)}

	scale := (g1.Norm() + g2.Norm()) / 2

	if scale < 1e-12 {
		return TagPose{}, fmt.Errorf("%w: marker homography has no scale", ErrDegenerate)
	}

	// the marker must be in front of the camera
	if g3.Z < 0 {
		scale = -scale
	}

	r1 := g1.Mul(1 / scale)
	r2 := g2.Mul(1 / scale)
	r3v := r1.Cross(r2)
	t := g3.Mul(1 / scale)

	approx := mat.NewDense(3, 3, []float64{
		r1.X, r2.X, r3v.X,
		r1.Y, r2.Y, r3v.Y,
		r1.Z, r2.Z, r3v.Z,
	})

	rot, err := orthonormalize(approx)

	if err != nil {
		return TagPose{}, err
	}

	return TagPose{Rotation: rot, Translation: t}, nil
}

// orthonormalize returns the rotation matrix closest to m in the Frobenius
// norm
func orthonormalize(m *mat.Dense) (*mat.Dense, error) {

	var svd mat.SVD

	if ok := svd.Factorize(m, mat.SVDFull); !ok {
		return nil, fmt.Errorf("%w: SVD factorization failed", ErrDegenerate)
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var r mat.Dense
	r.Mul(&u, v.T())

	if mat.Det(&r) < 0 {
		diag := mat.NewDiagDense(3, []float64{1, 1, -1})

		var ud mat.Dense
		ud.Mul(&u, diag)
		r.Mul(&ud, v.T())
	}

	return &r, nil
}
