package camera

import (
	"errors"
	"fmt"
	"slices"

	"github.com/banshee-data/depthcam/internal/kind"
)

// AnyIndex requests whichever stream index the device offers.
const AnyIndex = -1

// PipelineConfig accumulates stream requests before a pipeline starts.
// An empty config starts the device's default streams. Start takes a
// snapshot, so later changes do not affect a running pipeline.
//
// A PipelineConfig is not safe for concurrent mutation.
type PipelineConfig struct {
	requests []StreamRequest
	serial   string
}

// NewPipelineConfig returns a config with no requested streams.
func NewPipelineConfig() *PipelineConfig {
	return &PipelineConfig{}
}

// EnableStream requests a stream. A later request for the same (stream,
// index) pair replaces the earlier one. AnyIndex, zero width, height or fps
// and kind.FormatAny match anything.
func (c *PipelineConfig) EnableStream(stream kind.Stream, index, width, height int, format kind.Format, fps int) *PipelineConfig {
	req := StreamRequest{Stream: stream, Index: index, Width: width, Height: height, Format: format, Framerate: fps}
	for i, r := range c.requests {
		if r.Stream == stream && r.Index == index {
			c.requests[i] = req
			return c
		}
	}
	c.requests = append(c.requests, req)
	return c
}

// DisableStream removes every request for stream.
func (c *PipelineConfig) DisableStream(stream kind.Stream) *PipelineConfig {
	c.requests = slices.DeleteFunc(c.requests, func(r StreamRequest) bool {
		return r.Stream == stream
	})
	return c
}

// DisableStreamIndex removes the request for one (stream, index) pair.
func (c *PipelineConfig) DisableStreamIndex(stream kind.Stream, index int) *PipelineConfig {
	c.requests = slices.DeleteFunc(c.requests, func(r StreamRequest) bool {
		return r.Stream == stream && r.Index == index
	})
	return c
}

// DisableAll removes every request.
func (c *PipelineConfig) DisableAll() *PipelineConfig {
	c.requests = nil
	return c
}

// EnableDevice pins the config to the device with the given serial.
func (c *PipelineConfig) EnableDevice(serial string) *PipelineConfig {
	c.serial = serial
	return c
}

// Requests returns a copy of the requested streams in request order.
func (c *PipelineConfig) Requests() []StreamRequest {
	return slices.Clone(c.requests)
}

// Serial returns the pinned device serial, or "".
func (c *PipelineConfig) Serial() string {
	return c.serial
}

func (c *PipelineConfig) snapshot() *PipelineConfig {
	if c == nil {
		return &PipelineConfig{}
	}
	return &PipelineConfig{requests: slices.Clone(c.requests), serial: c.serial}
}

// ResolvedConfig is the outcome of a successful Resolve.
type ResolvedConfig struct {
	// Serial of the device that satisfies the config.
	Serial string
	// Profiles chosen for each request, in request order, or the default
	// profiles when the config was empty. Their native references are
	// released; only the descriptive fields are meaningful.
	Profiles []StreamProfile
}

// Resolve checks the config against the enumerated profiles of the
// connected devices without starting any stream. It fails with
// ErrDeviceNotFound when the pinned device (or any device) is missing, and
// with ErrUnsupportedStreamConfig when no device can satisfy every request.
func (c *PipelineConfig) Resolve(ctx *Context) (*ResolvedConfig, error) {
	devices, err := ctx.QueryDevices()
	if err != nil {
		return nil, fmt.Errorf("resolve: %w", err)
	}
	defer func() {
		for _, d := range devices {
			d.Close()
		}
	}()

	var candidates []*Device
	for _, d := range devices {
		if c.serial == "" || d.Serial() == c.serial {
			candidates = append(candidates, d)
		}
	}
	if len(candidates) == 0 {
		if c.serial != "" {
			return nil, fmt.Errorf("resolve: serial %s: %w", c.serial, ErrDeviceNotFound)
		}
		return nil, fmt.Errorf("resolve: no device connected: %w", ErrDeviceNotFound)
	}

	var errs []error
	for _, d := range candidates {
		profiles, err := c.resolveOn(d)
		if err == nil {
			return &ResolvedConfig{Serial: d.Serial(), Profiles: profiles}, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", d.Serial(), err))
	}
	return nil, fmt.Errorf("resolve: %w", errors.Join(errs...))
}

func (c *PipelineConfig) resolveOn(d *Device) ([]StreamProfile, error) {
	sensors, err := d.Sensors()
	if err != nil {
		return nil, err
	}
	var all []candidate
	for i, s := range sensors {
		ps, err := s.StreamProfiles()
		if err != nil {
			return nil, err
		}
		for _, p := range ps {
			all = append(all, candidate{profile: p, sensor: i})
		}
	}

	if len(c.requests) == 0 {
		var out []StreamProfile
		seen := make(map[StreamKey]bool)
		for _, cand := range all {
			if cand.profile.IsDefault && !seen[cand.profile.Key()] {
				seen[cand.profile.Key()] = true
				out = append(out, cand.profile)
			}
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("%w: device has no default streams", ErrUnsupportedStreamConfig)
		}
		return out, nil
	}

	picked, failed := assign(all, c.requests, nil)
	if failed >= 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedStreamConfig, describeRequest(c.requests[failed]))
	}
	out := make([]StreamProfile, len(picked))
	for i, cand := range picked {
		out[i] = cand.profile
	}
	return out, nil
}

type candidate struct {
	profile StreamProfile
	sensor  int
}

// assign picks one candidate per request in order, backtracking when an
// earlier pick leaves a later request unsatisfiable. On failure it returns
// the index of the deepest request no assignment could reach past.
func assign(all []candidate, reqs []StreamRequest, picked []candidate) ([]candidate, int) {
	i := len(picked)
	if i == len(reqs) {
		return picked, -1
	}
	deepest := i
next:
	for _, cand := range all {
		if !cand.profile.Satisfies(reqs[i]) {
			continue
		}
		for _, prev := range picked {
			if prev.profile.Key() == cand.profile.Key() ||
				(prev.sensor == cand.sensor && !compatible(prev.profile, cand.profile)) {
				continue next
			}
		}
		out, failed := assign(all, reqs, append(picked[:i:i], cand))
		if failed < 0 {
			return out, -1
		}
		deepest = max(deepest, failed)
	}
	return nil, deepest
}

// compatible reports whether two streams of one sensor can run together.
// Video streams share a resolution and frame rate; motion streams keep
// their own rates.
func compatible(a, b StreamProfile) bool {
	if !a.Stream.IsVideo() || !b.Stream.IsVideo() {
		return true
	}
	return a.Framerate == b.Framerate && a.Width == b.Width && a.Height == b.Height
}

func describeRequest(r StreamRequest) string {
	return fmt.Sprintf("%s#%d %dx%d %s@%d", r.Stream, r.Index, r.Width, r.Height, r.Format, r.Framerate)
}
