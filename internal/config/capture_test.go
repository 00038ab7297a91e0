package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/depthcam/internal/camera"
	"github.com/banshee-data/depthcam/internal/kind"
)

func TestDefaultCaptureConfig(t *testing.T) {
	cfg := DefaultCaptureConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
	if cfg.WaitTimeout == nil || *cfg.WaitTimeout != "5s" {
		t.Errorf("Expected WaitTimeout '5s', got %v", cfg.WaitTimeout)
	}
	if got := cfg.GetWaitTimeout(); got != 5*time.Second {
		t.Errorf("GetWaitTimeout() = %v, want 5s", got)
	}
	if got := cfg.GetFrames(); got != 30 {
		t.Errorf("GetFrames() = %d, want 30", got)
	}
	if !cfg.GetPLYBinary() {
		t.Error("GetPLYBinary() = false, want true")
	}
}

func TestEmptyConfigGetters(t *testing.T) {
	cfg := &CaptureConfig{}
	if cfg.GetSerial() != "" || cfg.GetDBPath() != "" || cfg.GetPLYDir() != "" {
		t.Error("string getters should default to empty")
	}
	if cfg.GetQueueSize() != 1 {
		t.Errorf("GetQueueSize() = %d, want 1", cfg.GetQueueSize())
	}
	if cfg.GetStatsInterval() != 10*time.Second {
		t.Errorf("GetStatsInterval() = %v, want 10s", cfg.GetStatsInterval())
	}
	if cfg.GetPointCloud() {
		t.Error("GetPointCloud() = true, want false")
	}
	if cfg.GetAlignTo() != AlignNone {
		t.Errorf("GetAlignTo() = %q, want empty", cfg.GetAlignTo())
	}

	bad := "soon"
	cfg.WaitTimeout = &bad
	if cfg.GetWaitTimeout() != 5*time.Second {
		t.Errorf("unparseable wait_timeout should fall back to 5s, got %v", cfg.GetWaitTimeout())
	}
}

func TestParseCaptureConfig(t *testing.T) {
	doc := `{
  // comments and trailing commas are fine
  "serial": "841512070001",
  "streams": [
    {"stream": "depth", "width": 640, "height": 480, "format": "z16", "fps": 30},
    {"stream": "infrared", "index": 1},
  ],
  "options": {"laser_power": 150},
  "frames": 5,
  "align_to": "color",
}`
	cfg, err := ParseCaptureConfig([]byte(doc))
	if err != nil {
		t.Fatalf("ParseCaptureConfig: %v", err)
	}
	if cfg.GetSerial() != "841512070001" {
		t.Errorf("GetSerial() = %q", cfg.GetSerial())
	}
	if cfg.GetFrames() != 5 {
		t.Errorf("GetFrames() = %d, want 5", cfg.GetFrames())
	}
	if cfg.GetAlignTo() != AlignColor {
		t.Errorf("GetAlignTo() = %q, want color", cfg.GetAlignTo())
	}

	order, opts := cfg.SensorOptions()
	if len(order) != 1 || order[0] != kind.OptionLaserPower || opts[kind.OptionLaserPower] != 150 {
		t.Errorf("SensorOptions() = %v %v", order, opts)
	}

	pc, err := cfg.ToPipelineConfig()
	if err != nil {
		t.Fatalf("ToPipelineConfig: %v", err)
	}
	want := []camera.StreamRequest{
		{Stream: kind.StreamDepth, Index: camera.AnyIndex, Width: 640, Height: 480, Format: kind.FormatZ16, Framerate: 30},
		{Stream: kind.StreamInfrared, Index: 1, Format: kind.FormatAny},
	}
	if diff := cmp.Diff(want, pc.Requests()); diff != "" {
		t.Errorf("Requests() mismatch (-want +got):\n%s", diff)
	}
	if pc.Serial() != "841512070001" {
		t.Errorf("Serial() = %q", pc.Serial())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{"unknown stream", `{"streams": [{"stream": "sonar"}]}`, "unknown stream"},
		{"unknown format", `{"streams": [{"stream": "depth", "format": "z17"}]}`, "unknown format"},
		{"negative width", `{"streams": [{"stream": "depth", "width": -1}]}`, "width must be non-negative"},
		{"duplicate stream", `{"streams": [{"stream": "depth"}, {"stream": "depth"}]}`, "requested twice"},
		{"unknown option", `{"options": {"warp_drive": 1}}`, "unknown option"},
		{"bad duration", `{"wait_timeout": "later"}`, "invalid wait_timeout"},
		{"zero duration", `{"stats_interval": "0s"}`, "must be positive"},
		{"queue too large", `{"queue_size": 64}`, "queue_size"},
		{"negative frames", `{"frames": -2}`, "frames must be non-negative"},
		{"bad alignment", `{"align_to": "infrared"}`, "align_to"},
		{"not json", `{"frames": }`, "failed to parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCaptureConfig([]byte(tt.doc))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadCaptureConfig(t *testing.T) {
	tmpDir := t.TempDir()

	path := filepath.Join(tmpDir, "capture.json")
	if err := os.WriteFile(path, []byte(`{"frames": 3, "ply_dir": "out"}`), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadCaptureConfig(path)
	if err != nil {
		t.Fatalf("LoadCaptureConfig: %v", err)
	}
	if cfg.GetFrames() != 3 || cfg.GetPLYDir() != "out" {
		t.Errorf("loaded frames=%d ply_dir=%q", cfg.GetFrames(), cfg.GetPLYDir())
	}
	if cfg.GetWaitTimeout() != 5*time.Second {
		t.Errorf("omitted fields should keep defaults, got %v", cfg.GetWaitTimeout())
	}

	if _, err := LoadCaptureConfig(filepath.Join(tmpDir, "capture.yaml")); err == nil || !strings.Contains(err.Error(), ".json") {
		t.Errorf("expected extension error, got %v", err)
	}
	if _, err := LoadCaptureConfig(filepath.Join(tmpDir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}

	big := filepath.Join(tmpDir, "big.json")
	if err := os.WriteFile(big, make([]byte, maxFileSize+1), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadCaptureConfig(big); err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("expected size error, got %v", err)
	}
}

func TestDefaultsFile(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	pc, err := cfg.ToPipelineConfig()
	if err != nil {
		t.Fatalf("ToPipelineConfig: %v", err)
	}
	if n := len(pc.Requests()); n != 2 {
		t.Errorf("defaults request %d streams, want 2", n)
	}
	if cfg.GetQueueSize() != 1 {
		t.Errorf("GetQueueSize() = %d, want 1", cfg.GetQueueSize())
	}
	if _, ok := cfg.Options["enable_auto_exposure"]; !ok {
		t.Error("defaults should enable auto exposure")
	}
}
