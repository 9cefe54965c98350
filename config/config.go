// Package config loads the YAML configuration of the detection service.
// Every field has a compiled default, so a file only needs the values that
// differ.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/roboteseo/rodvision"
	"github.com/roboteseo/rodvision/calib"
	"github.com/roboteseo/rodvision/camera"
	"github.com/roboteseo/rodvision/detect"
	"github.com/roboteseo/rodvision/fieldmask"
	"github.com/roboteseo/rodvision/tags"
	"github.com/roboteseo/rodvision/transport"
	"gopkg.in/yaml.v3"
)

// EnvCameraType selects the camera type when no flag does
const EnvCameraType = "ROD_CAMERA_TYPE"

// ErrInvalid is wrapped by every validation error
var ErrInvalid = errors.New("invalid configuration")

// Config is the service configuration
type Config struct {
	Camera      CameraConfig      `yaml:"camera"`
	Detector    detect.Params     `yaml:"detector"`
	Preprocess  PreprocessConfig  `yaml:"preprocess"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Transport   TransportConfig   `yaml:"transport"`
	Debug       DebugConfig       `yaml:"debug"`
	CPU         CPUConfig         `yaml:"cpu"`
}

// CameraConfig selects and sets up the capture device
type CameraConfig struct {
	// Type is emulated, v4l2 or libcamera
	Type     string  `yaml:"type"`
	Folder   string  `yaml:"folder"`
	DeviceID int     `yaml:"device_id"`
	Width    int     `yaml:"width"`
	Height   int     `yaml:"height"`
	FPS      float64 `yaml:"fps"`
	Buffers  int     `yaml:"buffers"`
	// CaptureTimeout bounds each wait for a frame
	CaptureTimeout time.Duration        `yaml:"capture_timeout"`
	Controls       rodvision.Parameters `yaml:"controls"`
}

// PreprocessConfig tunes the image preparation before detection
type PreprocessConfig struct {
	Scale float64 `yaml:"scale"`
}

// CalibrationConfig holds the camera intrinsics and table layout
type CalibrationConfig struct {
	// Strategy is planar or pose
	Strategy string `yaml:"strategy"`
	// CameraMatrix is the row major 3x3 intrinsics matrix
	CameraMatrix [9]float64 `yaml:"camera_matrix"`
	// Distortion holds the fisheye coefficients k1..k4
	Distortion [4]float64 `yaml:"distortion"`
	// IntrinsicsWidth is the image width the intrinsics were measured at
	IntrinsicsWidth int         `yaml:"intrinsics_width"`
	Table           TableConfig `yaml:"table"`
	MaskScaleY      float64     `yaml:"mask_scale_y"`
	MaskMarginPx    float64     `yaml:"mask_margin_px"`
}

// TableConfig is the table size and reference tag positions in mm
type TableConfig struct {
	Width  float64            `yaml:"width"`
	Length float64            `yaml:"length"`
	Fixed  map[int][2]float64 `yaml:"fixed"`
}

// TransportConfig selects where detections are published
type TransportConfig struct {
	Socket SocketConfig `yaml:"socket"`
	MQTT   MQTTConfig   `yaml:"mqtt"`
}

// SocketConfig is the unix socket publisher
type SocketConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// MQTTConfig is the MQTT publisher
type MQTTConfig struct {
	Enabled              bool `yaml:"enabled"`
	transport.MQTTConfig `yaml:",inline"`
}

// DebugConfig controls snapshot saving
type DebugConfig struct {
	Enabled bool `yaml:"enabled"`
	// Interval saves a snapshot every Interval frames
	Interval    int    `yaml:"interval"`
	PicturesDir string `yaml:"pictures_dir"`
	DebugDir    string `yaml:"debug_dir"`
	// TrailLength is the number of robot positions drawn, 0 disables
	TrailLength int `yaml:"trail_length"`
}

// CPUConfig pins the capture loop to a board's cores
type CPUConfig struct {
	// Board is rpi4, rpi5 or rk3588, empty disables pinning
	Board string `yaml:"board"`
	// Cores is capture or all
	Cores string `yaml:"cores"`
}

// Default returns the configuration used when no file is given
func Default() *Config {

	cam := calib.DefaultCameraModel()
	layout := calib.DefaultLayout()
	fixed := make(map[int][2]float64, len(layout.Fixed))

	for id, p := range layout.Fixed {
		fixed[id] = [2]float64{p.X, p.Y}
	}

	return &Config{
		Camera: CameraConfig{
			Type:           string(camera.KindLibcamera),
			Folder:         "pictures",
			Width:          4032,
			Height:         3024,
			FPS:            10,
			Buffers:        rodvision.DefaultBuffers,
			CaptureTimeout: time.Second,
			Controls:       rodvision.DefaultParameters(),
		},
		Detector:   detect.DefaultParams(),
		Preprocess: PreprocessConfig{Scale: 1.5},
		Calibration: CalibrationConfig{
			Strategy: calib.Planar.String(),
			CameraMatrix: [9]float64{
				cam.Fx, 0, cam.Cx,
				0, cam.Fy, cam.Cy,
				0, 0, 1,
			},
			Distortion:      cam.D,
			IntrinsicsWidth: 4032,
			Table: TableConfig{
				Width:  layout.Width,
				Length: layout.Length,
				Fixed:  fixed,
			},
			MaskScaleY: fieldmask.DefaultOptions().ScaleY,
		},
		Transport: TransportConfig{
			Socket: SocketConfig{Enabled: true, Path: transport.DefaultSocketPath},
			MQTT: MQTTConfig{
				MQTTConfig: transport.MQTTConfig{
					Broker:   "localhost:1883",
					ClientID: "rod-detection",
					Topic:    "rod",
				},
			},
		},
		Debug: DebugConfig{
			Interval:    1,
			PicturesDir: "/var/roboteseo/pictures/camera",
			DebugDir:    "/var/roboteseo/pictures/debug",
		},
		CPU: CPUConfig{Cores: "capture"},
	}
}

// Load reads the file at path over the defaults and validates the result
func Load(path string) (*Config, error) {

	data, err := os.ReadFile(path)

	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result
func Parse(data []byte) (*Config, error) {

	cfg := Default()

	// yaml merges into existing maps, a file listing reference tags must
	// replace the defaults rather than add to them
	fixed := cfg.Calibration.Table.Fixed
	cfg.Calibration.Table.Fixed = nil

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.Calibration.Table.Fixed == nil {
		cfg.Calibration.Table.Fixed = fixed
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnv sets the camera type from ROD_CAMERA_TYPE when it is set
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := strings.TrimSpace(getenv(EnvCameraType)); v != "" {
		c.Camera.Type = v
	}
}

// Validate checks the configuration can build every component
func (c *Config) Validate() error {

	if _, err := camera.ParseKind(c.Camera.Type); err != nil {
		return fmt.Errorf("%w: camera.type: %v", ErrInvalid, err)
	}

	if err := c.Resolution().Validate(); err != nil {
		return fmt.Errorf("%w: camera: %v", ErrInvalid, err)
	}

	if c.Camera.FPS <= 0 {
		return fmt.Errorf("%w: camera.fps must be positive", ErrInvalid)
	}

	if c.Camera.CaptureTimeout <= 0 {
		return fmt.Errorf("%w: camera.capture_timeout must be positive", ErrInvalid)
	}

	if err := c.Camera.Controls.Validate(); err != nil {
		return fmt.Errorf("%w: camera.controls: %v", ErrInvalid, err)
	}

	if c.Preprocess.Scale < 1 {
		return fmt.Errorf("%w: preprocess.scale must be at least 1", ErrInvalid)
	}

	if _, err := calib.ParseStrategy(c.Calibration.Strategy); err != nil {
		return fmt.Errorf("%w: calibration.strategy: %v", ErrInvalid, err)
	}

	if c.Calibration.IntrinsicsWidth <= 0 {
		return fmt.Errorf("%w: calibration.intrinsics_width must be positive", ErrInvalid)
	}

	if _, err := c.CameraModel(); err != nil {
		return fmt.Errorf("%w: calibration: %v", ErrInvalid, err)
	}

	if err := c.Layout().Validate(); err != nil {
		return fmt.Errorf("%w: calibration.table: %v", ErrInvalid, err)
	}

	if c.Calibration.MaskScaleY <= 0 {
		return fmt.Errorf("%w: calibration.mask_scale_y must be positive", ErrInvalid)
	}

	if c.Transport.Socket.Enabled && c.Transport.Socket.Path == "" {
		return fmt.Errorf("%w: transport.socket.path is empty", ErrInvalid)
	}

	if c.Transport.MQTT.Enabled && c.Transport.MQTT.Broker == "" {
		return fmt.Errorf("%w: transport.mqtt.broker is empty", ErrInvalid)
	}

	if c.Debug.Enabled && c.Debug.Interval <= 0 {
		return fmt.Errorf("%w: debug.interval must be positive", ErrInvalid)
	}

	if c.CPU.Board != "" {
		if _, err := c.CoreMask(); err != nil {
			return fmt.Errorf("%w: cpu: %v", ErrInvalid, err)
		}
	}

	return nil
}

// Resolution returns the capture resolution
func (c *Config) Resolution() rodvision.Resolution {
	return rodvision.Resolution{Width: c.Camera.Width, Height: c.Camera.Height}
}

// CameraKind returns the parsed camera type
func (c *Config) CameraKind() (camera.Kind, error) {
	return camera.ParseKind(c.Camera.Type)
}

// CameraModel returns the intrinsics scaled to the capture width
func (c *Config) CameraModel() (calib.CameraModel, error) {

	m, err := calib.NewCameraModel(c.Calibration.CameraMatrix, c.Calibration.Distortion)

	if err != nil {
		return calib.CameraModel{}, err
	}

	return m.Scaled(float64(c.Camera.Width) / float64(c.Calibration.IntrinsicsWidth)), nil
}

// Layout returns the table layout
func (c *Config) Layout() calib.Layout {

	fixed := make(map[int]tags.Point, len(c.Calibration.Table.Fixed))

	for id, p := range c.Calibration.Table.Fixed {
		fixed[id] = tags.Point{X: p[0], Y: p[1]}
	}

	return calib.Layout{
		Width:  c.Calibration.Table.Width,
		Length: c.Calibration.Table.Length,
		Fixed:  fixed,
	}
}

// Strategy returns the parsed localization strategy
func (c *Config) Strategy() calib.Strategy {
	s, _ := calib.ParseStrategy(c.Calibration.Strategy)
	return s
}

// MaskOptions returns the field mask adjustments
func (c *Config) MaskOptions() fieldmask.Options {
	return fieldmask.Options{
		ScaleY:   c.Calibration.MaskScaleY,
		MarginPx: c.Calibration.MaskMarginPx,
	}
}

// CoreMask returns the CPU mask for the configured board
func (c *Config) CoreMask() (uintptr, error) {

	set := rodvision.CaptureCores

	switch strings.ToLower(c.CPU.Cores) {
	case "", "capture":
	case "all":
		set = rodvision.EveryCore
	default:
		return 0, fmt.Errorf("unknown core set %q", c.CPU.Cores)
	}

	return rodvision.BoardMask(c.CPU.Board, set)
}

// FixedIDs returns the reference tag ids in ascending order
func (c *Config) FixedIDs() []int {

	ids := make([]int, 0, len(c.Calibration.Table.Fixed))

	for id := range c.Calibration.Table.Fixed {
		ids = append(ids, id)
	}

	sort.Ints(ids)

	return ids
}
