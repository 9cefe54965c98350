package calib

import "errors"

var (
	// ErrTooFewPoints is returned when fewer correspondences are given than
	// the solver needs.
	ErrTooFewPoints = errors.New("too few point correspondences")

	// ErrDegenerate is returned when correspondences are collinear,
	// duplicated or produce a singular transform.
	ErrDegenerate = errors.New("degenerate point configuration")

	// ErrMissingFixedTags is returned when a frame does not contain all four
	// reference tags.  Calibration is retried on the next frame.
	ErrMissingFixedTags = errors.New("fixed reference tags not all visible")

	// ErrPointAtInfinity is returned when a point maps onto the line at
	// infinity of a homography.
	ErrPointAtInfinity = errors.New("point projects to infinity")

	// ErrNoConvergence is returned when fisheye undistortion fails to
	// converge for a point.
	ErrNoConvergence = errors.New("undistortion did not converge")

	// ErrInvalidCamera is returned for camera intrinsics with non positive
	// focal lengths.
	ErrInvalidCamera = errors.New("invalid camera intrinsics")

	// ErrInvalidLayout is returned when a field layout is malformed.
	ErrInvalidLayout = errors.New("invalid field layout")

	// ErrUnknownTagSize is returned by the pose strategy for tags without a
	// known physical size.
	ErrUnknownTagSize = errors.New("unknown physical tag size")
)
