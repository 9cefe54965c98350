package render

import (
	"image/color"

	"github.com/roboteseo/rodvision/tags"
)

var (
	Black  = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	White  = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	Green  = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	Blue   = color.RGBA{R: 0, G: 0, B: 255, A: 255}
	Yellow = color.RGBA{R: 255, G: 255, B: 0, A: 255}
	Pink   = color.RGBA{R: 255, G: 0, B: 255, A: 255}
	Red    = color.RGBA{R: 255, G: 56, B: 56, A: 255}

	// categoryColors are the outline colors of each tag category
	categoryColors = map[tags.Category]color.RGBA{
		tags.RobotBlue:      {R: 0, G: 194, B: 255, A: 255}, // #00C2FF
		tags.RobotYellow:    {R: 255, G: 178, B: 29, A: 255}, // #FFB21D
		tags.FixedReference: Green,
		tags.BoxBlue:        Blue,
		tags.BoxEmpty:       Black,
		tags.BoxYellow:      Yellow,
	}
)

// CategoryColor returns the color used to draw tags of a category, pink for
// unknown ids
func CategoryColor(c tags.Category) color.RGBA {

	if clr, ok := categoryColors[c]; ok {
		return clr
	}

	return Pink
}
