package render

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// Font defines the parameters for rendering text on an image using GoCV
type Font struct {
	Face      gocv.HersheyFont
	Scale     float64
	Color     color.RGBA
	Thickness int
	LineType  gocv.LineType
	// Outline is drawn under the text when OutlineThickness is above
	// Thickness, for legibility on busy backgrounds
	Outline          color.RGBA
	OutlineThickness int
	// LineHeight is the vertical spacing of stacked lines
	LineHeight int
}

// DefaultFont returns the font used for tag labels
func DefaultFont() Font {
	return Font{
		Face:             gocv.FontHersheySimplex,
		Scale:            0.5,
		Color:            Green,
		Thickness:        1,
		LineType:         gocv.LineAA,
		Outline:          Black,
		OutlineThickness: 3,
		LineHeight:       20,
	}
}

// CounterFont returns the larger font used for the per category counters
func CounterFont() Font {
	f := DefaultFont()
	f.Scale = 0.8
	f.Thickness = 2
	f.LineHeight = 35
	return f
}

// WithColor returns a copy of the font drawing text in clr
func (f Font) WithColor(clr color.RGBA) Font {
	f.Color = clr
	return f
}

// Text draws text with its outline at pt, the bottom left of the text
func (f Font) Text(img *gocv.Mat, text string, pt image.Point) {

	if f.OutlineThickness > f.Thickness {
		gocv.PutTextWithParams(img, text, pt, f.Face, f.Scale, f.Outline,
			f.OutlineThickness, f.LineType, false)
	}

	gocv.PutTextWithParams(img, text, pt, f.Face, f.Scale, f.Color,
		f.Thickness, f.LineType, false)
}
