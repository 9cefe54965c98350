package rodvision

import (
	"fmt"
)

// UseDefault leaves a camera control at its hardware default
const UseDefault = -1

// NoiseReductionMode selects the ISP denoise algorithm
type NoiseReductionMode int

const (
	NoiseReductionOff NoiseReductionMode = iota
	NoiseReductionFast
	NoiseReductionHighQuality
	NoiseReductionMinimal
	NoiseReductionZSL
)

// Resolution is a capture size in pixels
type Resolution struct {
	Width  int
	Height int
}

// Validate checks both dimensions are positive
func (r Resolution) Validate() error {

	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidResolution, r.Width, r.Height)
	}

	if r.Width > 1<<15 || r.Height > 1<<15 {
		return fmt.Errorf("%w: %dx%d exceeds sensor limits", ErrInvalidResolution, r.Width, r.Height)
	}

	return nil
}

// FrameBytes returns the size of a BGR888 frame at this resolution
func (r Resolution) FrameBytes() int {
	return r.Width * r.Height * BytesPerPixel
}

// String returns WIDTHxHEIGHT
func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// Parameters are the camera controls applied when capture starts.  Any
// field set to UseDefault is left to the device.
type Parameters struct {
	// AutoExposure enables the AE loop when 1, disables it when 0
	AutoExposure int `yaml:"ae_enable"`
	// ExposureTime in microseconds, applied only with AutoExposure off
	ExposureTime int `yaml:"exposure_time"`
	// AnalogueGain multiplier
	AnalogueGain float64 `yaml:"analogue_gain"`
	// NoiseReduction mode
	NoiseReduction NoiseReductionMode `yaml:"noise_reduction_mode"`
	// Sharpness 0 to 16
	Sharpness float64 `yaml:"sharpness"`
	// Contrast 0 to 32
	Contrast float64 `yaml:"contrast"`
	// Brightness above -1 to 1, where -1 means default
	Brightness float64 `yaml:"brightness"`
	// Saturation 0 to 32
	Saturation float64 `yaml:"saturation"`
	// AutoWhiteBalance enables AWB when 1, disables it when 0
	AutoWhiteBalance int `yaml:"awb_enable"`
	// ColourTemperature in kelvin, applied only with AutoWhiteBalance off
	ColourTemperature int `yaml:"colour_temperature"`
	// FrameDurationMin in microseconds
	FrameDurationMin int64 `yaml:"frame_duration_min"`
	// FrameDurationMax in microseconds
	FrameDurationMax int64 `yaml:"frame_duration_max"`
}

// DefaultParameters returns parameters that leave every control to the
// device
func DefaultParameters() Parameters {
	return Parameters{
		AutoExposure:      UseDefault,
		ExposureTime:      UseDefault,
		AnalogueGain:      UseDefault,
		NoiseReduction:    UseDefault,
		Sharpness:         UseDefault,
		Contrast:          UseDefault,
		Brightness:        UseDefault,
		Saturation:        UseDefault,
		AutoWhiteBalance:  UseDefault,
		ColourTemperature: UseDefault,
		FrameDurationMin:  UseDefault,
		FrameDurationMax:  UseDefault,
	}
}

// IsSet reports whether a control value differs from UseDefault
func IsSet[T int | int64 | float64 | NoiseReductionMode](v T) bool {
	return v != T(UseDefault)
}

// Validate checks every set control is in range
func (p Parameters) Validate() error {

	check := func(name string, ok bool, v any) error {
		if !ok {
			return fmt.Errorf("%w: %s=%v", ErrInvalidParameters, name, v)
		}
		return nil
	}

	checks := []error{
		check("ae_enable", !IsSet(p.AutoExposure) || p.AutoExposure == 0 || p.AutoExposure == 1, p.AutoExposure),
		check("exposure_time", !IsSet(p.ExposureTime) || p.ExposureTime > 0, p.ExposureTime),
		check("analogue_gain", !IsSet(p.AnalogueGain) || p.AnalogueGain >= 1, p.AnalogueGain),
		check("noise_reduction_mode", !IsSet(p.NoiseReduction) ||
			(p.NoiseReduction >= NoiseReductionOff && p.NoiseReduction <= NoiseReductionZSL), p.NoiseReduction),
		check("sharpness", !IsSet(p.Sharpness) || (p.Sharpness >= 0 && p.Sharpness <= 16), p.Sharpness),
		check("contrast", !IsSet(p.Contrast) || (p.Contrast >= 0 && p.Contrast <= 32), p.Contrast),
		check("brightness", !IsSet(p.Brightness) || (p.Brightness > -1 && p.Brightness <= 1), p.Brightness),
		check("saturation", !IsSet(p.Saturation) || (p.Saturation >= 0 && p.Saturation <= 32), p.Saturation),
		check("awb_enable", !IsSet(p.AutoWhiteBalance) || p.AutoWhiteBalance == 0 || p.AutoWhiteBalance == 1, p.AutoWhiteBalance),
		check("colour_temperature", !IsSet(p.ColourTemperature) ||
			(p.ColourTemperature >= 1000 && p.ColourTemperature <= 20000), p.ColourTemperature),
		check("frame_duration_min", !IsSet(p.FrameDurationMin) || p.FrameDurationMin > 0, p.FrameDurationMin),
		check("frame_duration_max", !IsSet(p.FrameDurationMax) || p.FrameDurationMax > 0, p.FrameDurationMax),
	}

	for _, err := range checks {
		if err != nil {
			return err
		}
	}

	if IsSet(p.FrameDurationMin) && IsSet(p.FrameDurationMax) && p.FrameDurationMin > p.FrameDurationMax {
		return fmt.Errorf("%w: frame_duration_min %d > frame_duration_max %d",
			ErrInvalidParameters, p.FrameDurationMin, p.FrameDurationMax)
	}

	return nil
}

// ManualExposure reports whether a fixed exposure time should be applied
func (p Parameters) ManualExposure() bool {
	return p.AutoExposure == 0 && IsSet(p.ExposureTime)
}

// ManualWhiteBalance reports whether a fixed colour temperature should be
// applied
func (p Parameters) ManualWhiteBalance() bool {
	return p.AutoWhiteBalance == 0 && IsSet(p.ColourTemperature)
}

// FrameDurationLimits returns the frame duration range in microseconds,
// filling unset ends with 100us and 1s
func (p Parameters) FrameDurationLimits() (int64, int64) {

	lo, hi := p.FrameDurationMin, p.FrameDurationMax

	if !IsSet(lo) {
		lo = 100
	}

	if !IsSet(hi) {
		hi = 1000000
	}

	return lo, hi
}
