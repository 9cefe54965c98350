// Package detect finds ArUco tags in camera frames with the OpenCV ArUco
// detector.
package detect

import (
	"errors"
	"sync"

	"github.com/roboteseo/rodvision/tags"
	"gocv.io/x/gocv"
)

// ErrEmptyImage is returned when Detect is given an empty Mat
var ErrEmptyImage = errors.New("empty image")

// cornerRefineSubpix is the OpenCV CORNER_REFINE_SUBPIX method
const cornerRefineSubpix = 1

// Params are the ArUco detector parameters.  The defaults were tuned on
// overhead images of the field and are the ones to keep unless the camera
// or lighting changes.
type Params struct {
	AdaptiveThreshWinSizeMin              int     `yaml:"adaptive_thresh_win_size_min"`
	AdaptiveThreshWinSizeMax              int     `yaml:"adaptive_thresh_win_size_max"`
	AdaptiveThreshWinSizeStep             int     `yaml:"adaptive_thresh_win_size_step"`
	MinMarkerPerimeterRate                float64 `yaml:"min_marker_perimeter_rate"`
	MaxMarkerPerimeterRate                float64 `yaml:"max_marker_perimeter_rate"`
	PolygonalApproxAccuracyRate           float64 `yaml:"polygonal_approx_accuracy_rate"`
	CornerRefinementWinSize               int     `yaml:"corner_refinement_win_size"`
	CornerRefinementMaxIterations         int     `yaml:"corner_refinement_max_iterations"`
	MinDistanceToBorder                   int     `yaml:"min_distance_to_border"`
	MinOtsuStdDev                         float64 `yaml:"min_otsu_std_dev"`
	PerspectiveRemoveIgnoredMarginPerCell float64 `yaml:"perspective_remove_ignored_margin_per_cell"`
}

// DefaultParams returns the tuned detector parameters
func DefaultParams() Params {
	return Params{
		AdaptiveThreshWinSizeMin:              3,
		AdaptiveThreshWinSizeMax:              53,
		AdaptiveThreshWinSizeStep:             4,
		MinMarkerPerimeterRate:                0.01,
		MaxMarkerPerimeterRate:                4.0,
		PolygonalApproxAccuracyRate:           0.05,
		CornerRefinementWinSize:               5,
		CornerRefinementMaxIterations:         50,
		MinDistanceToBorder:                   0,
		MinOtsuStdDev:                         2.0,
		PerspectiveRemoveIgnoredMarginPerCell: 0.15,
	}
}

// Detector detects DICT_4X4_50 tags
type Detector struct {
	mu  sync.Mutex
	det gocv.ArucoDetector
}

// New returns a detector using the given parameters with sub-pixel corner
// refinement
func New(p Params) *Detector {

	params := gocv.NewArucoDetectorParameters()
	params.SetAdaptiveThreshWinSizeMin(p.AdaptiveThreshWinSizeMin)
	params.SetAdaptiveThreshWinSizeMax(p.AdaptiveThreshWinSizeMax)
	params.SetAdaptiveThreshWinSizeStep(p.AdaptiveThreshWinSizeStep)
	params.SetMinMarkerPerimeterRate(p.MinMarkerPerimeterRate)
	params.SetMaxMarkerPerimeterRate(p.MaxMarkerPerimeterRate)
	params.SetPolygonalApproxAccuracyRate(p.PolygonalApproxAccuracyRate)
	params.SetCornerRefinementMethod(cornerRefineSubpix)
	params.SetCornerRefinementWinSize(p.CornerRefinementWinSize)
	params.SetCornerRefinementMaxIterations(p.CornerRefinementMaxIterations)
	params.SetMinDistanceToBorder(p.MinDistanceToBorder)
	params.SetMinOtsuStdDev(p.MinOtsuStdDev)
	params.SetPerspectiveRemoveIgnoredMarginPerCell(p.PerspectiveRemoveIgnoredMarginPerCell)

	dict := gocv.GetPredefinedDictionary(gocv.ArucoDict4x4_50)

	return &Detector{
		det: gocv.NewArucoDetectorWithParams(dict, params),
	}
}

// Detect returns the tags found in img in detector order.  Corners are in
// img pixels, clockwise from the top left corner of the tag.
func (d *Detector) Detect(img gocv.Mat) ([]tags.DetectedTag, error) {

	if img.Empty() {
		return nil, ErrEmptyImage
	}

	d.mu.Lock()
	corners, ids, _ := d.det.DetectMarkers(img)
	d.mu.Unlock()

	return toDetected(corners, ids), nil
}

// Close frees the detector
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.det.Close()
	return nil
}

// toDetected converts detector output, skipping entries without four
// corners
func toDetected(corners [][]gocv.Point2f, ids []int) []tags.DetectedTag {

	n := min(len(corners), len(ids))
	out := make([]tags.DetectedTag, 0, n)

	for i := 0; i < n; i++ {
		if len(corners[i]) != 4 {
			continue
		}

		var c tags.Corners

		for j, p := range corners[i] {
			c[j] = tags.Point{X: float64(p.X), Y: float64(p.Y)}
		}

		out = append(out, tags.DetectedTag{ID: ids[i], Corners: c})
	}

	return out
}
