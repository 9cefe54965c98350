// Package render draws tag detections, localized positions and the field
// outline onto camera frames for debug snapshots.
package render

import (
	"fmt"
	"image"

	"github.com/roboteseo/rodvision/tags"
	"gocv.io/x/gocv"
)

// Outlines draws the quadrilateral of every detected tag in its category
// color
func Outlines(img *gocv.Mat, detected []tags.DetectedTag, thickness int) {

	for _, d := range detected {
		pts := make([]image.Point, len(d.Corners))

		for i, c := range d.Corners {
			pts[i] = image.Pt(int(c.X+0.5), int(c.Y+0.5))
		}

		pv := gocv.NewPointsVectorFromPoints([][]image.Point{pts})
		gocv.Polylines(img, pv, true, CategoryColor(tags.Classify(d.ID)), thickness)
		pv.Close()
	}
}

// IDLabel returns the id label of a record
func IDLabel(r tags.TagRecord) string {
	return fmt.Sprintf("ID:%d", r.ID)
}

// PositionLabel returns the field position label of a record, empty when
// the record was not localized
func PositionLabel(r tags.TagRecord) string {

	if !r.Localized {
		return ""
	}

	return fmt.Sprintf("(%dmm,%dmm)", int(r.X), int(r.Y))
}

// Labels writes the id of each record at its center and its field
// position just above
func Labels(img *gocv.Mat, records []tags.TagRecord, font Font) {

	posFont := font.WithColor(Blue)

	for _, r := range records {
		pt := image.Pt(int(r.Pixel.X), int(r.Pixel.Y))

		font.Text(img, IDLabel(r), pt)

		if label := PositionLabel(r); label != "" {
			posFont.Text(img, label, pt.Add(image.Pt(0, -font.LineHeight)))
		}
	}
}

// CounterLines returns the counter text lines for counts
func CounterLines(c tags.Counts) []string {
	return []string{
		fmt.Sprintf("black markers : %d", c.BoxEmpty),
		fmt.Sprintf("blue markers : %d", c.BoxBlue),
		fmt.Sprintf("yellow markers : %d", c.BoxYellow),
		fmt.Sprintf("robots markers : %d", c.RobotBlue+c.RobotYellow),
		fmt.Sprintf("fixed markers : %d", c.Fixed),
		fmt.Sprintf("total : %d", c.Total()),
	}
}

// Counter writes the per category counts in the top left corner
func Counter(img *gocv.Mat, c tags.Counts, font Font) {

	start := image.Pt(30, 40)

	for i, line := range CounterLines(c) {
		font.Text(img, line, start.Add(image.Pt(0, i*font.LineHeight)))
	}
}

// FieldOutline draws the field mask polygon
func FieldOutline(img *gocv.Mat, polygon []image.Point, thickness int) {

	if len(polygon) < 3 {
		return
	}

	pv := gocv.NewPointsVectorFromPoints([][]image.Point{polygon})
	defer pv.Close()

	gocv.Polylines(img, pv, true, Red, thickness)
}

// Annotation collects everything drawn on a debug snapshot
type Annotation struct {
	Detected []tags.DetectedTag
	Records  []tags.TagRecord
	Counts   tags.Counts
	Field    []image.Point
	Trail    *Trail
}

// Annotate draws a onto img, field outline first so labels stay on top
func Annotate(img *gocv.Mat, a Annotation) {

	FieldOutline(img, a.Field, 2)
	Outlines(img, a.Detected, 3)

	if a.Trail != nil {
		a.Trail.Draw(img, DefaultTrailStyle())
	}

	Labels(img, a.Records, DefaultFont())
	Counter(img, a.Counts, CounterFont())
}
