package pipeline

import (
	"github.com/roboteseo/rodvision/calib"
	"github.com/roboteseo/rodvision/tags"
)

// Localize fills the table position of each record from its detection.
// records must come from tags.Filter(detected).  With no calibration, or
// when a single tag fails to project, the record keeps its pixel position
// and Localized stays false.  It returns the number of records localized.
func Localize(records []tags.TagRecord, detected []tags.DetectedTag, cal *calib.Calibration) int {

	if cal == nil {
		return 0
	}

	n := 0
	j := 0

	for _, d := range detected {
		if j >= len(records) {
			break
		}

		if !tags.IsValid(d.ID) || records[j].ID != d.ID {
			continue
		}

		rec := &records[j]
		j++

		p, err := cal.Localize(d)

		if err != nil {
			continue
		}

		rec.X = p.X
		rec.Y = p.Y
		rec.Localized = true
		n++
	}

	return n
}
