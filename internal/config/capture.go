package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/tailscale/hujson"

	"github.com/banshee-data/depthcam/internal/camera"
	"github.com/banshee-data/depthcam/internal/kind"
)

// DefaultConfigPath is the path to the canonical capture defaults file.
const DefaultConfigPath = "config/capture.defaults.json"

// maxFileSize bounds config files read from disk.
const maxFileSize = 1 * 1024 * 1024

// Alignment targets accepted by align_to.
const (
	AlignNone  = ""
	AlignDepth = "depth"
	AlignColor = "color"
)

// StreamConfig requests one stream. Omitted fields match anything the
// device offers.
type StreamConfig struct {
	Stream string  `json:"stream"`
	Index  *int    `json:"index,omitempty"`
	Width  *int    `json:"width,omitempty"`
	Height *int    `json:"height,omitempty"`
	Format *string `json:"format,omitempty"`
	FPS    *int    `json:"fps,omitempty"`
}

// CaptureConfig is the configuration of a capture session. It is read from
// JSON that may contain comments and trailing commas. Nil fields take the
// defaults returned by the Get methods.
type CaptureConfig struct {
	// Serial selects a device; empty uses the first one found.
	Serial *string `json:"serial,omitempty"`
	// Streams lists the requested streams; empty starts device defaults.
	Streams []StreamConfig `json:"streams,omitempty"`
	// Options are sensor options by name, applied to every sensor that
	// supports them before streaming.
	Options map[string]float32 `json:"options,omitempty"`

	WaitTimeout   *string `json:"wait_timeout,omitempty"` // duration string like "5s"
	QueueSize     *int    `json:"queue_size,omitempty"`
	Frames        *int    `json:"frames,omitempty"`
	StatsInterval *string `json:"stats_interval,omitempty"` // duration string like "10s"

	// Processing
	PointCloud *bool   `json:"point_cloud,omitempty"`
	AlignTo    *string `json:"align_to,omitempty"`
	PLYDir     *string `json:"ply_dir,omitempty"`
	PLYBinary  *bool   `json:"ply_binary,omitempty"`

	// Capture log
	DBPath *string `json:"db_path,omitempty"`
}

func ptrInt(v int) *int          { return &v }
func ptrBool(v bool) *bool       { return &v }
func ptrString(v string) *string { return &v }

// DefaultCaptureConfig returns a config with every field set to its
// default.
func DefaultCaptureConfig() *CaptureConfig {
	return &CaptureConfig{
		Serial:        ptrString(""),
		WaitTimeout:   ptrString("5s"),
		QueueSize:     ptrInt(1),
		Frames:        ptrInt(30),
		StatsInterval: ptrString("10s"),
		PointCloud:    ptrBool(false),
		AlignTo:       ptrString(AlignNone),
		PLYDir:        ptrString(""),
		PLYBinary:     ptrBool(true),
		DBPath:        ptrString(""),
	}
}

// ParseCaptureConfig parses and validates a config document.
func ParseCaptureConfig(data []byte) (*CaptureConfig, error) {
	std, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg := &CaptureConfig{}
	if err := json.Unmarshal(std, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadCaptureConfig loads a CaptureConfig from a .json file of at most
// 1MB. Fields omitted from the file keep their defaults.
func LoadCaptureConfig(path string) (*CaptureConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseCaptureConfig(data)
}

// MustLoadDefaultConfig loads DefaultConfigPath from the current directory
// or one of its parents. It panics when the file cannot be loaded and is
// intended for test setup.
func MustLoadDefaultConfig() *CaptureConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadCaptureConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks every set field.
func (c *CaptureConfig) Validate() error {
	seen := make(map[camera.StreamKey]bool)
	for i, s := range c.Streams {
		req, err := s.request()
		if err != nil {
			return fmt.Errorf("streams[%d]: %w", i, err)
		}
		key := camera.StreamKey{Stream: req.Stream, Index: req.Index}
		if seen[key] {
			return fmt.Errorf("streams[%d]: %s requested twice", i, key)
		}
		seen[key] = true
	}

	for name := range c.Options {
		if _, err := kind.ParseOption(name); err != nil {
			return fmt.Errorf("options: %w", err)
		}
	}

	for _, d := range []struct {
		name string
		v    *string
	}{{"wait_timeout", c.WaitTimeout}, {"stats_interval", c.StatsInterval}} {
		if d.v == nil || *d.v == "" {
			continue
		}
		v, err := time.ParseDuration(*d.v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", d.name, *d.v, err)
		}
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, v)
		}
	}

	if c.QueueSize != nil && (*c.QueueSize < 1 || *c.QueueSize > 32) {
		return fmt.Errorf("queue_size must be between 1 and 32, got %d", *c.QueueSize)
	}
	if c.Frames != nil && *c.Frames < 0 {
		return fmt.Errorf("frames must be non-negative, got %d", *c.Frames)
	}
	if c.AlignTo != nil && !slices.Contains([]string{AlignNone, AlignDepth, AlignColor}, *c.AlignTo) {
		return fmt.Errorf("align_to must be %q, %q or empty, got %q", AlignDepth, AlignColor, *c.AlignTo)
	}
	return nil
}

func (s StreamConfig) request() (camera.StreamRequest, error) {
	stream, err := kind.ParseStream(s.Stream)
	if err != nil {
		return camera.StreamRequest{}, err
	}
	req := camera.StreamRequest{Stream: stream, Index: camera.AnyIndex, Format: kind.FormatAny}
	if s.Format != nil && *s.Format != "" {
		if req.Format, err = kind.ParseFormat(*s.Format); err != nil {
			return camera.StreamRequest{}, err
		}
	}
	for _, f := range []struct {
		name string
		v    *int
		dst  *int
	}{
		{"index", s.Index, &req.Index},
		{"width", s.Width, &req.Width},
		{"height", s.Height, &req.Height},
		{"fps", s.FPS, &req.Framerate},
	} {
		if f.v == nil {
			continue
		}
		if *f.v < 0 {
			return camera.StreamRequest{}, fmt.Errorf("%s %s must be non-negative, got %d", s.Stream, f.name, *f.v)
		}
		*f.dst = *f.v
	}
	return req, nil
}

// ToPipelineConfig converts the stream selection into a pipeline config.
func (c *CaptureConfig) ToPipelineConfig() (*camera.PipelineConfig, error) {
	pc := camera.NewPipelineConfig()
	for i, s := range c.Streams {
		req, err := s.request()
		if err != nil {
			return nil, fmt.Errorf("streams[%d]: %w", i, err)
		}
		pc.EnableStream(req.Stream, req.Index, req.Width, req.Height, req.Format, req.Framerate)
	}
	if serial := c.GetSerial(); serial != "" {
		pc.EnableDevice(serial)
	}
	return pc, nil
}

// SensorOptions returns Options keyed by option, in a stable order.
func (c *CaptureConfig) SensorOptions() ([]kind.Option, map[kind.Option]float32) {
	out := make(map[kind.Option]float32, len(c.Options))
	var order []kind.Option
	for name, v := range c.Options {
		o, err := kind.ParseOption(name)
		if err != nil {
			continue
		}
		out[o] = v
		order = append(order, o)
	}
	slices.Sort(order)
	return order, out
}

// GetSerial returns the serial value or the default.
func (c *CaptureConfig) GetSerial() string {
	if c.Serial == nil {
		return ""
	}
	return *c.Serial
}

// GetWaitTimeout parses and returns the WaitTimeout as a time.Duration.
func (c *CaptureConfig) GetWaitTimeout() time.Duration {
	return parseDuration(c.WaitTimeout, 5*time.Second)
}

// GetStatsInterval parses and returns the StatsInterval as a time.Duration.
func (c *CaptureConfig) GetStatsInterval() time.Duration {
	return parseDuration(c.StatsInterval, 10*time.Second)
}

func parseDuration(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// GetQueueSize returns the queue_size value or the default.
func (c *CaptureConfig) GetQueueSize() int {
	if c.QueueSize == nil {
		return 1
	}
	return *c.QueueSize
}

// GetFrames returns the number of frame sets to capture, 0 meaning no
// limit.
func (c *CaptureConfig) GetFrames() int {
	if c.Frames == nil {
		return 30
	}
	return *c.Frames
}

// GetPointCloud returns the point_cloud value or the default.
func (c *CaptureConfig) GetPointCloud() bool {
	if c.PointCloud == nil {
		return false
	}
	return *c.PointCloud
}

// GetAlignTo returns the align_to value or the default.
func (c *CaptureConfig) GetAlignTo() string {
	if c.AlignTo == nil {
		return AlignNone
	}
	return *c.AlignTo
}

// GetPLYDir returns the ply_dir value or the default.
func (c *CaptureConfig) GetPLYDir() string {
	if c.PLYDir == nil {
		return ""
	}
	return *c.PLYDir
}

// GetPLYBinary returns the ply_binary value or the default.
func (c *CaptureConfig) GetPLYBinary() bool {
	if c.PLYBinary == nil {
		return true
	}
	return *c.PLYBinary
}

// GetDBPath returns the db_path value or the default.
func (c *CaptureConfig) GetDBPath() string {
	if c.DBPath == nil {
		return ""
	}
	return *c.DBPath
}
