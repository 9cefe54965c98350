/*
Package camera provides rodvision devices backed by OpenCV: an emulated
camera replaying a folder of still images and a V4L2 camera read through
gocv.VideoCapture.
*/
package camera

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roboteseo/rodvision"
)

var (
	// ErrEmptyFolder is returned when an emulated camera folder holds no
	// usable images
	ErrEmptyFolder = errors.New("no images in folder")

	// ErrOpen is returned when a capture device can not be opened
	ErrOpen = errors.New("failed to open capture device")

	// ErrRead is returned when a frame can not be read or decoded
	ErrRead = errors.New("failed to read frame")

	// ErrUnknownKind is returned by Open for unsupported camera kinds
	ErrUnknownKind = errors.New("unknown camera kind")
)

// Kind names a camera implementation
type Kind string

const (
	// KindEmulated replays still images from a folder
	KindEmulated Kind = "emulated"
	// KindV4L2 reads a USB or CSI camera through OpenCV
	KindV4L2 Kind = "v4l2"
	// KindLibcamera reads a Raspberry Pi camera through GStreamer, provided
	// by the camera/libcamera package
	KindLibcamera Kind = "libcamera"
)

// ParseKind converts a config or environment string to a Kind
func ParseKind(s string) (Kind, error) {

	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindEmulated, KindV4L2, KindLibcamera:
		return k, nil
	case "real", "pi", "rpi":
		return KindLibcamera, nil
	case "webcam", "usb":
		return KindV4L2, nil
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Options configure the devices of this package
type Options struct {
	// Folder of images for the emulated camera
	Folder string
	// DeviceID is the V4L2 device index
	DeviceID int
	// FPS paces the emulated camera and is requested from V4L2 cameras
	FPS float64
}

// Open returns the device of the given kind.  KindLibcamera is not handled
// here.
func Open(kind Kind, opts Options, logger *slog.Logger) (rodvision.Device, error) {

	switch kind {
	case KindEmulated:
		return NewEmulated(opts.Folder, opts.FPS, logger), nil
	case KindV4L2:
		return NewVideoCapture(opts.DeviceID, opts.FPS, logger), nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}
