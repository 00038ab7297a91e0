package monitor

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/depthcam/internal/camera"
	"github.com/banshee-data/depthcam/internal/native"
	"github.com/banshee-data/depthcam/internal/testutil"
)

// startPlane streams the default depth and color of the plane fixture.
func startPlane(t *testing.T) (*camera.Pipeline, *native.Mock) {
	t.Helper()
	m := testutil.NewMock(testutil.Plane("P1"))
	ctx, err := camera.NewContext(m)
	require.NoError(t, err)
	p, err := ctx.NewPipeline()
	require.NoError(t, err)
	_, err = p.Start(nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, p.Close())
		assert.NoError(t, ctx.Close())
		assert.Zero(t, m.LiveTotal(), "live native objects")
	})
	return p, m
}

func observeOne(t *testing.T, mon *Monitor, p *camera.Pipeline, m *native.Mock) {
	t.Helper()
	require.Equal(t, 1, m.Emit())
	fs, err := p.WaitForFrames(time.Second)
	require.NoError(t, err)
	mon.Observe(fs)
	require.NoError(t, fs.Close())
}

func TestMonitor_Status(t *testing.T) {
	p, m := startPlane(t)
	mon := New(p)

	st := mon.Status()
	assert.Equal(t, "streaming", st.State)
	assert.Len(t, st.Streams, 2)
	assert.Zero(t, st.Frames)
	assert.Nil(t, st.Depth)

	observeOne(t, mon, p, m)
	observeOne(t, mon, p, m)

	st = mon.Status()
	assert.EqualValues(t, 2, st.Frames)
	assert.Zero(t, st.Dropped)
	assert.Equal(t, uint64(2), st.LastFrameNumber)
	assert.InDelta(t, 1000+1000.0/30, st.LastTimestampMs, 1e-9)
	require.NotNil(t, st.Depth)
	assert.Equal(t, 42, st.Depth.Samples, "column 0 has no depth")
	assert.InDelta(t, 1.0, st.Depth.Min, 1e-6)
	assert.InDelta(t, 1.0, st.Depth.Median, 1e-6)
	assert.InDelta(t, 1.0, st.Depth.Mean, 1e-6)
	assert.InDelta(t, 1.0, st.Depth.Max, 1e-6)

	d := mon.Distances()
	d[0] = -1
	assert.NotEqual(t, -1.0, mon.Distances()[0], "Distances returns a copy")
}

func TestMonitor_StatusAfterStop(t *testing.T) {
	p, _ := startPlane(t)
	mon := New(p)
	require.NoError(t, p.Stop())

	st := mon.Status()
	assert.Equal(t, "idle", st.State)
	assert.Empty(t, st.Streams)
}

// loopbackRequest creates a request tsweb allows to reach debug pages.
func loopbackRequest(target string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

func TestMonitor_Routes(t *testing.T) {
	p, m := startPlane(t)
	mon := New(p)
	mux := http.NewServeMux()
	mon.AttachRoutes(mux)

	t.Run("depth before frames", func(t *testing.T) {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, loopbackRequest("/debug/depthcam/depth.png"))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	observeOne(t, mon, p, m)
	observeOne(t, mon, p, m)

	t.Run("status", func(t *testing.T) {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, loopbackRequest("/debug/depthcam/status"))
		require.Equal(t, http.StatusOK, w.Code)
		var st Status
		require.NoError(t, json.NewDecoder(w.Body).Decode(&st))
		assert.Equal(t, "streaming", st.State)
		assert.EqualValues(t, 2, st.Frames)
		require.NotNil(t, st.Depth)
		assert.Equal(t, 42, st.Depth.Samples)
	})

	t.Run("depth histogram", func(t *testing.T) {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, loopbackRequest("/debug/depthcam/depth.png"))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
		assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")))
	})

	t.Run("intervals", func(t *testing.T) {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, loopbackRequest("/debug/depthcam/intervals"))
		require.Equal(t, http.StatusOK, w.Code)
		body := w.Body.String()
		assert.Contains(t, body, "Frame Set Intervals")
		assert.Contains(t, body, "n=1")
	})

	t.Run("remote denied", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/debug/depthcam/status", nil)
		req.RemoteAddr = "203.0.113.9:4000"
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)
		assert.NotEqual(t, http.StatusOK, w.Code)
	})
}

func TestIntervalChart_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, IntervalChart(&buf, nil))
	assert.True(t, strings.Contains(buf.String(), "no frame sets yet"))
}

func TestDepthHistogram(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, DepthHistogram(&buf, []float64{0.5, 1, 1, 1.5, 2.25}, 10))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")))
}
