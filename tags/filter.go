package tags

// Filter drops tags with an unknown id and converts the rest to records in
// detector order.  Positions are left in pixels, call sites localize them
// when a calibration is available.
func Filter(detected []DetectedTag) []TagRecord {

	records := make([]TagRecord, 0, len(detected))

	for _, d := range detected {
		cat := Classify(d.ID)

		if cat == Invalid {
			continue
		}

		center := d.Corners.Center()

		records = append(records, TagRecord{
			ID:       d.ID,
			Category: cat,
			Pixel:    center,
			Angle:    d.Corners.Angle(),
			X:        center.X,
			Y:        center.Y,
		})
	}

	return records
}

// Counts holds the number of records seen per category in one frame
type Counts struct {
	RobotBlue   int
	RobotYellow int
	Fixed       int
	BoxBlue     int
	BoxEmpty    int
	BoxYellow   int
}

// Total returns the sum across all categories
func (c Counts) Total() int {
	return c.RobotBlue + c.RobotYellow + c.Fixed + c.BoxBlue + c.BoxEmpty + c.BoxYellow
}

// Count tallies records by category
func Count(records []TagRecord) Counts {

	var c Counts

	for _, r := range records {
		switch r.Category {
		case RobotBlue:
			c.RobotBlue++
		case RobotYellow:
			c.RobotYellow++
		case FixedReference:
			c.Fixed++
		case BoxBlue:
			c.BoxBlue++
		case BoxEmpty:
			c.BoxEmpty++
		case BoxYellow:
			c.BoxYellow++
		}
	}

	return c
}
