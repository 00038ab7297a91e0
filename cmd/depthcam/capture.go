package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"

	"github.com/banshee-data/depthcam/internal/camera"
	"github.com/banshee-data/depthcam/internal/config"
	"github.com/banshee-data/depthcam/internal/db"
	"github.com/banshee-data/depthcam/internal/native"
)

// captureFlags are the flags shared by capture and serve. Each one
// overrides the config file when set.
type captureFlags struct {
	configPath string
	dbPath     string
	plyDir     string
	alignTo    string
	pointCloud bool
}

func (f *captureFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.configPath, "config", "", "Capture config file (.json, comments allowed); empty uses device defaults")
	fs.StringVar(&f.dbPath, "db", "", "SQLite capture log path")
	fs.StringVar(&f.plyDir, "ply-dir", "", "Directory for PLY point cloud exports")
	fs.StringVar(&f.alignTo, "align", "", "Align frame sets to depth or color")
	fs.BoolVar(&f.pointCloud, "point-cloud", false, "Compute a point cloud for every frame set")
}

// load reads the config and applies the flags set on fs.
func (f *captureFlags) load(fs *flag.FlagSet) (*config.CaptureConfig, error) {
	cfg := config.DefaultCaptureConfig()
	if f.configPath != "" {
		var err error
		if cfg, err = config.LoadCaptureConfig(f.configPath); err != nil {
			return nil, err
		}
	}
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "db":
			cfg.DBPath = &f.dbPath
		case "ply-dir":
			cfg.PLYDir = &f.plyDir
		case "align":
			cfg.AlignTo = &f.alignTo
		case "point-cloud":
			cfg.PointCloud = &f.pointCloud
		}
	})
	if cfg.GetPLYDir() != "" {
		on := true
		cfg.PointCloud = &on
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// openLog opens the capture log named by cfg, or returns nil when none is
// configured.
func openLog(cfg *config.CaptureConfig) (*db.DB, error) {
	path := cfg.GetDBPath()
	if path == "" {
		return nil, nil
	}
	d, err := db.NewDB(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture log: %w", err)
	}
	return d, nil
}

func cmdCapture(ctx context.Context, cam *camera.Context, api native.API, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("capture", flag.ContinueOnError)
	var cf captureFlags
	cf.register(fs)
	frames := fs.Int("n", -1, "Frame sets to capture; 0 runs until interrupted, -1 uses the config")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := cf.load(fs)
	if err != nil {
		return err
	}
	limit := cfg.GetFrames()
	if *frames >= 0 {
		limit = *frames
	}

	logDB, err := openLog(cfg)
	if err != nil {
		return err
	}
	if logDB != nil {
		defer logDB.Close()
	}

	s, err := startSession(cam, api, cfg, logDB)
	if err != nil {
		return err
	}
	runErr := s.run(ctx, limit)
	if err := s.close(); err != nil {
		log.Printf("failed to close session: %v", err)
	}
	if runErr != nil {
		return runErr
	}

	fmt.Fprintf(out, "captured %d frame sets", s.handled)
	if s.id != "" {
		fmt.Fprintf(out, " (session %s)", s.id)
	}
	fmt.Fprintln(out)
	return nil
}
