// Package monitor serves the live state of a capture pipeline: a JSON
// status page, a depth histogram and a frame interval chart over HTTP, and
// the gRPC health and status services.
package monitor

import (
	"encoding/binary"
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
	"tailscale.com/tsweb"

	"github.com/banshee-data/depthcam/internal/camera"
	"github.com/banshee-data/depthcam/internal/httputil"
	"github.com/banshee-data/depthcam/internal/monitoring"
)

// maxDepthSamples bounds the distances kept from the last depth frame.
const maxDepthSamples = 20000

// ErrNoDepth is returned while no depth frame has been observed.
var ErrNoDepth = errors.New("no depth frame observed")

// Source is the pipeline state a Monitor reports. *camera.Pipeline
// implements it.
type Source interface {
	State() camera.State
	ActiveProfiles() []camera.StreamProfile
	Stats() *camera.Stats
}

// Monitor keeps the latest observations of one pipeline.
type Monitor struct {
	src Source

	mu        sync.Mutex
	depth     []float64 // metres, valid pixels only
	lastFrame uint64
	lastTS    float64
	observed  time.Time
}

// New returns a Monitor reporting on src.
func New(src Source) *Monitor {
	return &Monitor{src: src}
}

// Observe records the frame number and a sample of the depth of fs. It
// copies what it needs; fs may be closed afterwards.
func (m *Monitor) Observe(fs *camera.FrameSet) {
	var sample []float64
	if d, ok := fs.Depth(); ok {
		sample = depthSample(d)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastFrame = fs.FrameNumber()
	m.lastTS = fs.Timestamp()
	m.observed = time.Now()
	if sample != nil {
		m.depth = sample
	}
}

func depthSample(d camera.DepthFrame) []float64 {
	w, h, stride := d.Width(), d.Height(), d.Stride()
	step := max(1, w*h/maxDepthSamples)
	units := float64(d.Units())
	out := make([]float64, 0, min(w*h, maxDepthSamples))
	err := d.WithData(func(b []byte) error {
		for i := 0; i < w*h; i += step {
			x, y := i%w, i/w
			if raw := binary.LittleEndian.Uint16(b[y*stride+2*x:]); raw != 0 {
				out = append(out, float64(raw)*units)
			}
		}
		return nil
	})
	if err != nil {
		monitoring.Debugf("depth sample: %v", err)
		return nil
	}
	return out
}

// DepthSummary describes the sampled distances of the last depth frame.
type DepthSummary struct {
	Samples int     `json:"samples"`
	Min     float64 `json:"min_m"`
	Median  float64 `json:"median_m"`
	Mean    float64 `json:"mean_m"`
	Max     float64 `json:"max_m"`
}

// Status is the body of the status page.
type Status struct {
	State           string        `json:"state"`
	Streams         []string      `json:"streams"`
	Frames          int64         `json:"frames"`
	Dropped         int64         `json:"dropped"`
	Timeouts        int64         `json:"timeouts"`
	Errors          int64         `json:"errors"`
	Rate            float64       `json:"rate"`
	LastFrameNumber uint64        `json:"last_frame_number"`
	LastTimestampMs float64       `json:"last_timestamp_ms"`
	LastObserved    time.Time     `json:"last_observed,omitzero"`
	Depth           *DepthSummary `json:"depth,omitempty"`
}

// Status returns the current state without resetting any counter.
func (m *Monitor) Status() Status {
	snap := m.src.Stats().Snapshot()
	st := Status{
		State:    m.src.State().String(),
		Frames:   snap.Frames,
		Dropped:  snap.Dropped,
		Timeouts: snap.Timeouts,
		Errors:   snap.Errors,
		Rate:     snap.Rate(),
	}
	for _, p := range m.src.ActiveProfiles() {
		st.Streams = append(st.Streams, p.String())
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	st.LastFrameNumber = m.lastFrame
	st.LastTimestampMs = m.lastTS
	st.LastObserved = m.observed
	if len(m.depth) > 0 {
		sorted := slices.Clone(m.depth)
		slices.Sort(sorted)
		st.Depth = &DepthSummary{
			Samples: len(sorted),
			Min:     sorted[0],
			Median:  stat.Quantile(0.5, stat.Empirical, sorted, nil),
			Mean:    stat.Mean(sorted, nil),
			Max:     sorted[len(sorted)-1],
		}
	}
	return st
}

// Distances returns a copy of the last depth sample in metres.
func (m *Monitor) Distances() []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.depth)
}

// AttachRoutes registers the monitor pages under /debug/depthcam/.
func (m *Monitor) AttachRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("depthcam/status", "Pipeline state and frame counters", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, m.Status())
	})

	debug.HandleFunc("depthcam/depth.png", "Histogram of the last depth frame", func(w http.ResponseWriter, r *http.Request) {
		d := m.Distances()
		if len(d) == 0 {
			httputil.ServiceUnavailable(w, ErrNoDepth.Error())
			return
		}
		w.Header().Set("Content-Type", "image/png")
		if err := DepthHistogram(w, d, 50); err != nil {
			monitoring.Logf("depth histogram: %v", err)
		}
	})

	debug.HandleFunc("depthcam/intervals", "Frame set interval chart", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		snap := m.src.Stats().Snapshot()
		if err := IntervalChart(w, snap.Intervals); err != nil {
			monitoring.Logf("interval chart: %v", err)
		}
	})
}
