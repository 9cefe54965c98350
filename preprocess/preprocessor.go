package preprocess

import (
	"image"

	"github.com/roboteseo/rodvision/tags"
	"gocv.io/x/gocv"
)

// DefaultScale is the upscale applied before detection so small or distant
// tags cover enough pixels to decode
const DefaultScale = 1.5

// sharpenKernel is the 3x3 Laplacian sharpening kernel
var sharpenKernel = [3][3]float32{
	{0, -1, 0},
	{-1, 5, -1},
	{0, -1, 0},
}

// Preprocessor prepares camera frames for tag detection by sharpening,
// masking out everything off the field and upscaling.  The Mats used
// between steps are allocated once and reused across frames, so a
// Preprocessor is not safe for concurrent use.
type Preprocessor struct {
	// scale is the upscale factor
	scale float64
	// kernel holds sharpenKernel as a CV_32F Mat
	kernel gocv.Mat
	// sharp, masked and scaled are the outputs of each step
	sharp  gocv.Mat
	masked gocv.Mat
	scaled gocv.Mat
}

// NewPreprocessor returns a preprocessor upscaling by scale.  A scale of 1
// or less disables the upscale.
func NewPreprocessor(scale float64) *Preprocessor {

	if scale < 1 {
		scale = 1
	}

	p := &Preprocessor{
		scale:  scale,
		kernel: gocv.NewMatWithSize(3, 3, gocv.MatTypeCV32F),
		sharp:  gocv.NewMat(),
		masked: gocv.NewMat(),
		scaled: gocv.NewMat(),
	}

	for r, row := range sharpenKernel {
		for c, v := range row {
			p.kernel.SetFloatAt(r, c, v)
		}
	}

	return p
}

// Close frees the Mats allocated by the preprocessor
func (p *Preprocessor) Close() error {
	p.kernel.Close()
	p.sharp.Close()
	p.masked.Close()
	return p.scaled.Close()
}

// Scale returns the upscale factor
func (p *Preprocessor) Scale() float64 {
	return p.scale
}

// ScaledSize returns the size of the Mat Process produces for a source of
// the given size
func (p *Preprocessor) ScaledSize(width, height int) image.Point {
	return image.Pt(int(float64(width)*p.scale), int(float64(height)*p.scale))
}

// Process sharpens src, zeroes the pixels outside mask and upscales the
// result.  A nil or empty mask skips the masking step.  The returned Mat is
// owned by the preprocessor and overwritten by the next call.
func (p *Preprocessor) Process(src gocv.Mat, mask *gocv.Mat) gocv.Mat {

	gocv.Filter2D(src, &p.sharp, gocv.MatTypeCV8U, p.kernel, image.Pt(-1, -1), 0, gocv.BorderDefault)

	out := p.sharp

	if mask != nil && !mask.Empty() && mask.Rows() == src.Rows() && mask.Cols() == src.Cols() {
		// pixels outside the mask are not written, clear them first
		if p.masked.Rows() != src.Rows() || p.masked.Cols() != src.Cols() || p.masked.Type() != src.Type() {
			p.masked.Close()
			p.masked = gocv.Zeros(src.Rows(), src.Cols(), src.Type())
		} else {
			p.masked.SetTo(gocv.NewScalar(0, 0, 0, 0))
		}

		gocv.BitwiseAndWithMask(p.sharp, p.sharp, &p.masked, *mask)
		out = p.masked
	}

	if p.scale == 1 {
		return out
	}

	gocv.Resize(out, &p.scaled, p.ScaledSize(src.Cols(), src.Rows()), 0, 0, gocv.InterpolationLinear)

	return p.scaled
}

// ToSource maps corners found in the processed image back to source image
// pixels
func (p *Preprocessor) ToSource(c tags.Corners) tags.Corners {
	return c.Scale(1 / p.scale)
}

// ToSourceAll maps every detected tag back to source image pixels in place
func (p *Preprocessor) ToSourceAll(detected []tags.DetectedTag) {
	for i := range detected {
		detected[i].Corners = p.ToSource(detected[i].Corners)
	}
}
