// Command roddetect captures frames from the overhead camera, locates the
// ArUco tags on the table and publishes their positions in millimetres.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/roboteseo/rodvision"
	"github.com/roboteseo/rodvision/calib"
	"github.com/roboteseo/rodvision/camera"
	"github.com/roboteseo/rodvision/camera/libcamera"
	"github.com/roboteseo/rodvision/config"
	"github.com/roboteseo/rodvision/detect"
	"github.com/roboteseo/rodvision/pipeline"
	"github.com/roboteseo/rodvision/render"
	"github.com/roboteseo/rodvision/transport"
)

func main() {

	// read in cli flags
	cfgFile := flag.String("c", "", "YAML configuration file, compiled defaults when empty")
	camType := flag.String("camera", "", "Camera type emulated|v4l2|libcamera, overrides "+config.EnvCameraType)
	folder := flag.String("folder", "", "Image folder for the emulated camera")
	width := flag.Int("width", 0, "Capture width in pixels")
	height := flag.Int("height", 0, "Capture height in pixels")
	strategy := flag.String("strategy", "", "Localization strategy planar|pose")
	debug := flag.Bool("debug", false, "Save raw and annotated snapshots")
	mqttOn := flag.Bool("mqtt", false, "Publish detections over MQTT")
	board := flag.String("board", "", "Pin the capture loop to the cores of rpi4|rpi5|rk3588")
	logLevel := flag.String("log-level", "info", "Log level debug|info|warn|error")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(*logLevel)}))
	slog.SetDefault(logger)

	cfg := config.Default()

	if *cfgFile != "" {
		var err error

		if cfg, err = config.Load(*cfgFile); err != nil {
			fatal(logger, "failed to load configuration", err)
		}
	}

	cfg.ApplyEnv(os.Getenv)

	// flags given on the command line override the file and environment
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "camera":
			cfg.Camera.Type = *camType
		case "folder":
			cfg.Camera.Folder = *folder
		case "width":
			cfg.Camera.Width = *width
		case "height":
			cfg.Camera.Height = *height
		case "strategy":
			cfg.Calibration.Strategy = *strategy
		case "debug":
			cfg.Debug.Enabled = *debug
		case "mqtt":
			cfg.Transport.MQTT.Enabled = *mqttOn
		case "board":
			cfg.CPU.Board = *board
		}
	})

	if err := cfg.Validate(); err != nil {
		fatal(logger, "invalid configuration", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		fatal(logger, "detection stopped with error", err)
	}

	logger.Info("done")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {

	device, err := openDevice(cfg, logger)

	if err != nil {
		return err
	}

	engine := rodvision.NewEngine(device, rodvision.WithBuffers(cfg.Camera.Buffers))

	if err := engine.Start(cfg.Resolution(), cfg.Camera.Controls); err != nil {
		return fmt.Errorf("failed to start capture: %w", err)
	}

	defer func() {
		if err := engine.Stop(); err != nil {
			logger.Warn("failed to stop capture", "error", err)
		}

		logger.Info("capture stopped", "stats", fmt.Sprintf("%+v", engine.Stats()))
	}()

	cam, err := cfg.CameraModel()

	if err != nil {
		return err
	}

	calibrator, err := calib.NewCalibrator(cam, cfg.Layout(), cfg.Strategy())

	if err != nil {
		return fmt.Errorf("failed to create calibrator: %w", err)
	}

	detector := detect.New(cfg.Detector)
	defer detector.Close()

	publisher, err := openPublishers(ctx, cfg, logger)

	if err != nil {
		return err
	}

	defer publisher.Close()

	opts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithPublisher(publisher),
		pipeline.WithScale(cfg.Preprocess.Scale),
		pipeline.WithMaskOptions(cfg.MaskOptions()),
		pipeline.WithCaptureTimeout(cfg.Camera.CaptureTimeout),
	}

	if cfg.Debug.Enabled {
		opts = append(opts, pipeline.WithSnapshots(
			pipeline.NewSnapshots(cfg.Debug.PicturesDir, cfg.Debug.DebugDir, cfg.Debug.Interval)))

		if cfg.Debug.TrailLength > 0 {
			opts = append(opts, pipeline.WithTrail(render.NewTrail(cfg.Debug.TrailLength)))
		}
	}

	p := pipeline.New(detector, calibrator, opts...)
	defer p.Close()

	logger.Info("detection started",
		"camera", cfg.Camera.Type,
		"resolution", cfg.Resolution().String(),
		"strategy", cfg.Strategy().String(),
		"reference_tags", cfg.FixedIDs(),
	)

	if cfg.CPU.Board != "" {
		mask, err := cfg.CoreMask()

		if err != nil {
			return err
		}

		unpin, err := rodvision.PinThread(mask)

		if err != nil {
			logger.Warn("failed to pin capture loop", "board", cfg.CPU.Board, "error", err)
		} else {
			defer unpin()
			logger.Info("capture loop pinned", "cores", rodvision.MaskCores(mask))
		}
	}

	if err := p.Run(ctx, engine); err != nil {
		return err
	}

	logger.Info("pipeline stats", "stats", fmt.Sprintf("%+v", p.Stats()))

	return nil
}

func openDevice(cfg *config.Config, logger *slog.Logger) (rodvision.Device, error) {

	kind, err := cfg.CameraKind()

	if err != nil {
		return nil, err
	}

	if kind == camera.KindLibcamera {
		return libcamera.New(logger), nil
	}

	return camera.Open(kind, camera.Options{
		Folder:   cfg.Camera.Folder,
		DeviceID: cfg.Camera.DeviceID,
		FPS:      cfg.Camera.FPS,
	}, logger)
}

func openPublishers(ctx context.Context, cfg *config.Config, logger *slog.Logger) (transport.Publisher, error) {

	var pubs transport.Multi

	if cfg.Transport.Socket.Enabled {
		srv := transport.NewSocketServer(cfg.Transport.Socket.Path, logger)

		if err := srv.Listen(); err != nil {
			return nil, err
		}

		pubs = append(pubs, srv)
	}

	if cfg.Transport.MQTT.Enabled {
		mq := transport.NewMQTTPublisher(cfg.Transport.MQTT.MQTTConfig, logger)

		if err := mq.Connect(ctx); err != nil {
			pubs.Close()
			return nil, err
		}

		pubs = append(pubs, mq)
	}

	return pubs, nil
}

func parseLevel(s string) slog.Level {

	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}

	return slog.LevelInfo
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}
