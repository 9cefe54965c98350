package render

import (
	"image"
	"image/color"
	"sync"

	"github.com/roboteseo/rodvision/tags"
	"gocv.io/x/gocv"
)

// TrailStyle defines the parameters used for rendering the trail style
type TrailStyle struct {
	// LineSame draws the trail in the tag category color, otherwise
	// LineColor is used
	LineSame      bool
	LineColor     color.RGBA
	LineThickness int
	// CircleSame draws the current position in the tag category color,
	// otherwise CircleColor is used
	CircleSame   bool
	CircleColor  color.RGBA
	CircleRadius int
}

// DefaultTrailStyle returns default trail style settings
func DefaultTrailStyle() TrailStyle {
	return TrailStyle{
		LineSame:      false,
		LineColor:     Yellow,
		LineThickness: 1,
		CircleSame:    true,
		CircleColor:   Pink,
		CircleRadius:  3,
	}
}

// Trail keeps the recent pixel positions of robot tags
type Trail struct {
	mu      sync.Mutex
	maxLen  int
	history map[int][]image.Point
	// category of each id, for coloring
	category map[int]tags.Category
}

// NewTrail returns a trail keeping up to maxLen positions per robot
func NewTrail(maxLen int) *Trail {

	if maxLen < 2 {
		maxLen = 2
	}

	return &Trail{
		maxLen:   maxLen,
		history:  make(map[int][]image.Point),
		category: make(map[int]tags.Category),
	}
}

// Add records the positions of the robots in records.  Other categories
// are static and not tracked.
func (t *Trail) Add(records []tags.TagRecord) {

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, r := range records {
		if r.Category != tags.RobotBlue && r.Category != tags.RobotYellow {
			continue
		}

		pts := append(t.history[r.ID], image.Pt(int(r.Pixel.X), int(r.Pixel.Y)))

		if len(pts) > t.maxLen {
			pts = pts[len(pts)-t.maxLen:]
		}

		t.history[r.ID] = pts
		t.category[r.ID] = r.Category
	}
}

// Points returns a copy of the recorded positions of id, oldest first
func (t *Trail) Points(id int) []image.Point {

	t.mu.Lock()
	defer t.mu.Unlock()

	return append([]image.Point(nil), t.history[id]...)
}

// Reset clears all recorded positions
func (t *Trail) Reset() {

	t.mu.Lock()
	defer t.mu.Unlock()

	clear(t.history)
	clear(t.category)
}

// Draw renders the trail of every robot on img
func (t *Trail) Draw(img *gocv.Mat, style TrailStyle) {

	t.mu.Lock()
	defer t.mu.Unlock()

	for id, points := range t.history {

		objClr := CategoryColor(t.category[id])

		lineClr := objClr
		circleClr := objClr

		if !style.LineSame {
			lineClr = style.LineColor
		}

		if !style.CircleSame {
			circleClr = style.CircleColor
		}

		for i := 1; i < len(points); i++ {
			gocv.Line(img, points[i-1], points[i], lineClr, style.LineThickness)
		}

		if len(points) > 0 {
			gocv.Circle(img, points[len(points)-1], style.CircleRadius, circleClr, -1)
		}
	}
}
