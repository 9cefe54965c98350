package tags

// Category is the role of a tag on the table, derived from its numeric id
type Category int

const (
	Invalid Category = iota
	RobotBlue
	RobotYellow
	FixedReference
	BoxBlue
	BoxEmpty
	BoxYellow
)

// fixed reference ids used for calibration, in the order they are looked up
var fixedIDs = []int{20, 21, 22, 23}

// Classify returns the category of the given tag id.  Any id outside the
// known ranges is Invalid.
func Classify(id int) Category {

	switch {
	case id >= 1 && id <= 5:
		return RobotBlue
	case id >= 6 && id <= 10:
		return RobotYellow
	case id >= 20 && id <= 23:
		return FixedReference
	case id == 36:
		return BoxBlue
	case id == 41:
		return BoxEmpty
	case id == 47:
		return BoxYellow
	}

	return Invalid
}

// IsValid returns true if the id belongs to any known category
func IsValid(id int) bool {
	return Classify(id) != Invalid
}

// IsFixed returns true if the id is one of the four table reference tags
func IsFixed(id int) bool {
	return Classify(id) == FixedReference
}

// FixedIDs returns the reference tag ids in calibration order
func FixedIDs() []int {
	ids := make([]int, len(fixedIDs))
	copy(ids, fixedIDs)
	return ids
}

// String returns the category name
func (c Category) String() string {

	switch c {
	case RobotBlue:
		return "robot-blue"
	case RobotYellow:
		return "robot-yellow"
	case FixedReference:
		return "fixed"
	case BoxBlue:
		return "box-blue"
	case BoxEmpty:
		return "box-empty"
	case BoxYellow:
		return "box-yellow"
	}

	return "invalid"
}

// SizeMM returns the printed edge length of tags in this category in
// millimetres, or zero for Invalid
func (c Category) SizeMM() float64 {

	switch c {
	case FixedReference:
		return 100
	case RobotBlue, RobotYellow:
		return 70
	case BoxBlue, BoxEmpty, BoxYellow:
		return 40
	}

	return 0
}
