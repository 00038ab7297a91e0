package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/banshee-data/depthcam/internal/camera"
	"github.com/banshee-data/depthcam/internal/config"
	"github.com/banshee-data/depthcam/internal/db"
	"github.com/banshee-data/depthcam/internal/fsutil"
	"github.com/banshee-data/depthcam/internal/kind"
	"github.com/banshee-data/depthcam/internal/monitoring"
	"github.com/banshee-data/depthcam/internal/native"
	"github.com/banshee-data/depthcam/internal/processing"
)

// session is one started pipeline, optionally recorded to a capture log.
type session struct {
	cfg      *config.CaptureConfig
	pipe     *camera.Pipeline
	log      *db.DB
	id       string
	exporter *processing.Exporter
	// observe, when set, sees every frame set before it is closed.
	observe func(*camera.FrameSet)

	handled int
	totals  db.SessionTotals
}

// applyOptions sets the configured sensor options on the selected device
// before it streams. The queue size goes to every sensor that supports
// frames_queue_size, or to the simulated SDK.
func applyOptions(cam *camera.Context, api native.API, cfg *config.CaptureConfig) error {
	if m, ok := api.(*native.Mock); ok {
		m.QueueSize = cfg.GetQueueSize()
	}

	order, values := cfg.SensorOptions()
	if cfg.QueueSize != nil {
		order = append(order, kind.OptionFramesQueueSize)
		values[kind.OptionFramesQueueSize] = float32(cfg.GetQueueSize())
	}
	if len(order) == 0 {
		return nil
	}

	var dev *camera.Device
	if serial := cfg.GetSerial(); serial != "" {
		d, err := cam.FindDevice(serial)
		if err != nil {
			return err
		}
		dev = d
	} else {
		devices, err := cam.QueryDevices()
		if err != nil {
			return err
		}
		if len(devices) == 0 {
			return camera.ErrDeviceNotFound
		}
		dev = devices[0]
		for _, d := range devices[1:] {
			d.Close()
		}
	}
	defer dev.Close()

	sensors, err := dev.Sensors()
	if err != nil {
		return err
	}
	applied := make(map[kind.Option]bool)
	for _, s := range sensors {
		supported, err := s.Options()
		if err != nil {
			return fmt.Errorf("%s: %w", s.Name(), err)
		}
		for _, o := range supported {
			v, ok := values[o]
			if !ok {
				continue
			}
			if err := s.SetOption(o, v); err != nil {
				return fmt.Errorf("%s: set %s=%g: %w", s.Name(), o, v, err)
			}
			monitoring.Debugf("%s: %s=%g", s.Name(), o, v)
			applied[o] = true
		}
	}
	for _, o := range order {
		if !applied[o] && o != kind.OptionFramesQueueSize {
			log.Printf("option %s is not supported by %s", o, dev)
		}
	}
	return nil
}

// startSession applies the options, starts a pipeline and opens a
// capture log session when logDB is not nil.
func startSession(cam *camera.Context, api native.API, cfg *config.CaptureConfig, logDB *db.DB) (*session, error) {
	if err := applyOptions(cam, api, cfg); err != nil {
		return nil, fmt.Errorf("failed to apply options: %w", err)
	}
	pc, err := cfg.ToPipelineConfig()
	if err != nil {
		return nil, err
	}
	p, err := cam.NewPipeline()
	if err != nil {
		return nil, err
	}
	active, err := p.Start(pc)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to start pipeline: %w", err)
	}
	s := &session{cfg: cfg, pipe: p, log: logDB}

	dev, err := p.ActiveDevice()
	if err != nil {
		s.close()
		return nil, err
	}
	for _, a := range active {
		log.Printf("streaming %s from %s", a, dev)
	}

	if dir := cfg.GetPLYDir(); dir != "" {
		s.exporter, err = processing.NewExporter(fsutil.OSFileSystem{}, dir, dev.Serial(), processing.PLYOptions{
			Binary: cfg.GetPLYBinary(),
		})
		if err != nil {
			s.close()
			return nil, err
		}
	}

	if logDB != nil {
		raw, err := json.Marshal(cfg)
		if err != nil {
			s.close()
			return nil, err
		}
		rec := &db.Session{
			DeviceName: dev.Name(),
			Serial:     dev.Serial(),
			Firmware:   dev.FirmwareVersion(),
			ConfigJSON: string(raw),
		}
		for _, a := range active {
			rec.Streams = append(rec.Streams, db.SessionStream{
				Stream:   a.Stream.String(),
				Index:    a.Index,
				Format:   a.Format.String(),
				Width:    a.Width,
				Height:   a.Height,
				FPS:      a.Framerate,
				UniqueID: a.UniqueID,
			})
		}
		if err := logDB.StartSession(rec); err != nil {
			s.close()
			return nil, err
		}
		s.id = rec.ID
		log.Printf("capture log session %s", s.id)
	}
	return s, nil
}

// run handles frame sets until limit have been handled (0 for no limit),
// ctx is done or the stream fails.
func (s *session) run(ctx context.Context, limit int) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := s.pipe.Stream(ctx, camera.StreamOptions{Timeout: s.cfg.GetWaitTimeout(), Buffer: 1})
	ticker := time.NewTicker(s.cfg.GetStatsInterval())
	defer ticker.Stop()

	var runErr error
	for {
		select {
		case res, ok := <-results:
			if !ok {
				s.flushStats()
				return runErr
			}
			if res.Err != nil {
				runErr = res.Err
				continue
			}
			if runErr != nil || ctx.Err() != nil {
				res.Frames.Close()
				continue
			}
			err := s.handle(res.Frames)
			res.Frames.Close()
			if err != nil {
				runErr = err
				cancel()
				continue
			}
			s.handled++
			if limit > 0 && s.handled >= limit {
				cancel()
			}
		case <-ticker.C:
			s.flushStats()
		}
	}
}

func (s *session) flushStats() {
	snap := s.pipe.Stats().LogStats("pipeline")
	s.totals.Frames += snap.Frames
	s.totals.Timeouts += snap.Timeouts
	s.totals.Errors += snap.Errors
}

// handle processes one frame set and records it.
func (s *session) handle(fs *camera.FrameSet) error {
	if s.observe != nil {
		s.observe(fs)
	}
	rec := db.FrameRecord{
		SessionID:   s.id,
		FrameNumber: fs.FrameNumber(),
		TimestampMs: fs.Timestamp(),
		Members:     fs.Len(),
	}
	for f := range fs.All() {
		rec.Domain = f.TimestampDomain().String()
		break
	}

	depth, hasDepth := fs.Depth()
	color, hasColor := fs.Color()
	if hasDepth && hasColor {
		switch s.cfg.GetAlignTo() {
		case config.AlignColor:
			aligned, err := processing.AlignFrames(depth.Frame, color.Profile())
			if err != nil {
				return fmt.Errorf("frame %d: %w", rec.FrameNumber, err)
			}
			defer aligned.Close()
			if depth, err = aligned.AsDepth(); err != nil {
				return err
			}
		case config.AlignDepth:
			aligned, err := processing.AlignToDepth(color, depth)
			if err != nil {
				return fmt.Errorf("frame %d: %w", rec.FrameNumber, err)
			}
			defer aligned.Close()
			if color, err = aligned.AsVideo(); err != nil {
				return err
			}
		}
	}

	if hasDepth && s.cfg.GetPointCloud() {
		pc, err := processing.ComputePointCloud(depth)
		if err != nil {
			return fmt.Errorf("frame %d: %w", rec.FrameNumber, err)
		}
		if hasColor {
			if pc, err = processing.MapToColor(pc, color); err != nil {
				return fmt.Errorf("frame %d: %w", rec.FrameNumber, err)
			}
		}
		valid := pc.ValidCount()
		rec.ValidPoints = &valid
		if s.exporter != nil {
			path, err := s.exporter.Export(pc)
			if err != nil {
				return err
			}
			rec.PLYPath = &path
		}
	}

	if s.log != nil {
		if err := s.log.RecordFrame(rec); err != nil {
			return err
		}
	}
	return nil
}

// close stops the pipeline, ends the capture log session and releases the
// pipeline.
func (s *session) close() error {
	if err := s.pipe.Stop(); err != nil {
		monitoring.Debugf("stop pipeline: %v", err)
	}
	var err error
	if s.log != nil && s.id != "" {
		err = s.log.EndSession(s.id, time.Now().UTC(), s.totals)
	}
	if cerr := s.pipe.Close(); err == nil {
		err = cerr
	}
	return err
}
