package camera

import (
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/depthcam/internal/kind"
	"github.com/banshee-data/depthcam/internal/native"
	"github.com/banshee-data/depthcam/internal/testutil"
)

func depthColorConfig() *PipelineConfig {
	return NewPipelineConfig().
		EnableStream(kind.StreamDepth, AnyIndex, 640, 480, kind.FormatZ16, 30).
		EnableStream(kind.StreamColor, AnyIndex, 640, 480, kind.FormatRGB8, 30)
}

func startPipeline(t *testing.T, ctx *Context, cfg *PipelineConfig) *Pipeline {
	t.Helper()
	p, err := ctx.NewPipeline()
	require.NoError(t, err)
	_, err = p.Start(cfg)
	require.NoError(t, err)
	return p
}

// ---------------------------------------------------------------------------
// Start / Stop
// ---------------------------------------------------------------------------

func TestPipeline_DepthAndColor(t *testing.T) {
	t.Parallel()
	ctx, m := newTestContext(t, testutil.D435(testSerial))

	p, err := ctx.NewPipeline()
	require.NoError(t, err)
	assert.Equal(t, Idle, p.State())

	active, err := p.Start(depthColorConfig())
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, Streaming, p.State())
	assert.Equal(t, StreamKey{kind.StreamDepth, 0}, active[0].Key())
	assert.Equal(t, StreamKey{kind.StreamColor, 0}, active[1].Key())
	assert.Equal(t, active, p.ActiveProfiles())

	dev, err := p.ActiveDevice()
	require.NoError(t, err)
	assert.Equal(t, testSerial, dev.Serial())

	require.Equal(t, 1, m.Emit())
	fs, err := p.WaitForFrames(time.Second)
	require.NoError(t, err)
	assert.Equal(t, 2, fs.Len())
	assert.Equal(t, uint64(1), fs.FrameNumber())

	depth, ok := fs.Depth()
	require.True(t, ok)
	assert.Equal(t, 640, depth.Width())
	assert.Equal(t, 480, depth.Height())
	assert.Equal(t, 1280, depth.Stride())
	assert.Zero(t, depth.Depth(0, 100), "first column is invalid")
	assert.Equal(t, uint16(1010), depth.Depth(10, 100))
	assert.InDelta(t, 1.010, depth.Distance(10, 100), 1e-6)
	assert.Zero(t, depth.Depth(640, 0), "outside the frame")

	color, ok := fs.Color()
	require.True(t, ok)
	data, err := color.Data()
	require.NoError(t, err)
	px := data[5*color.Stride()+3*7:]
	assert.Equal(t, []byte{7, 5, 1}, px[:3])

	for f := range fs.All() {
		assert.Equal(t, fs.Timestamp(), f.Timestamp(), "members share the set timestamp")
		assert.Equal(t, kind.DomainHardwareClock, f.TimestampDomain())
	}

	require.NoError(t, fs.Close())
	require.NoError(t, p.Stop())
	assert.Equal(t, Idle, p.State())
	assert.Nil(t, p.ActiveProfiles())
	_, err = p.ActiveDevice()
	assert.ErrorIs(t, err, ErrNotStreaming)

	require.NoError(t, p.Close())
	assert.Equal(t, Closed, p.State())
	requireClean(t, ctx, m)
}

func TestPipeline_DefaultStreams(t *testing.T) {
	t.Parallel()
	ctx, m := newTestContext(t, testutil.D435(testSerial))

	p, err := ctx.NewPipeline()
	require.NoError(t, err)
	active, err := p.Start(nil)
	require.NoError(t, err)
	assert.Len(t, active, 4)
	require.NoError(t, p.Close())
	requireClean(t, ctx, m)
}

func TestPipeline_StartTwice(t *testing.T) {
	t.Parallel()
	ctx, m := newTestContext(t, testutil.D435(testSerial))
	p := startPipeline(t, ctx, depthColorConfig())

	_, err := p.Start(depthColorConfig())
	assert.ErrorIs(t, err, ErrAlreadyStreaming)
	assert.Equal(t, Streaming, p.State())
	assert.Equal(t, 1, m.Calls("PipelineStartWithConfig"))

	require.NoError(t, p.Close())
	requireClean(t, ctx, m)
}

func TestPipeline_StopIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx, m := newTestContext(t, testutil.D435(testSerial))

	p, err := ctx.NewPipeline()
	require.NoError(t, err)
	require.NoError(t, p.Stop(), "stop before start")

	_, err = p.Start(depthColorConfig())
	require.NoError(t, err)
	require.NoError(t, p.Stop())
	require.NoError(t, p.Stop())
	assert.Equal(t, 1, m.Calls("PipelineStop"))
	assert.Zero(t, m.Live(kind.ResourcePipelineProfile))

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	requireClean(t, ctx, m)
}

func TestPipeline_Restart(t *testing.T) {
	t.Parallel()
	ctx, m := newTestContext(t, testutil.D435(testSerial))
	p := startPipeline(t, ctx, depthColorConfig())
	require.NoError(t, p.Stop())

	active, err := p.Start(NewPipelineConfig().EnableStream(kind.StreamInfrared, 2, 0, 0, kind.FormatY8, 0))
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, 2, active[0].Index)

	m.Emit()
	fs, err := p.WaitForFrames(time.Second)
	require.NoError(t, err)
	f, ok := fs.Member(kind.StreamInfrared, 2)
	require.True(t, ok)
	v, err := f.AsVideo()
	require.NoError(t, err)
	img, err := v.Image()
	require.NoError(t, err)
	assert.Equal(t, 640, img.Bounds().Dx())
	require.NoError(t, fs.Close())

	require.NoError(t, p.Close())
	requireClean(t, ctx, m)
}

func TestPipeline_StartAfterClose(t *testing.T) {
	t.Parallel()
	ctx, m := newTestContext(t, testutil.D435(testSerial))

	p, err := ctx.NewPipeline()
	require.NoError(t, err)
	require.NoError(t, p.Close())
	_, err = p.Start(nil)
	assert.ErrorIs(t, err, ErrReleased)
	_, err = p.WaitForFrames(0)
	assert.ErrorIs(t, err, ErrNotStreaming)
	requireClean(t, ctx, m)
}

// ---------------------------------------------------------------------------
// Start rollback
// ---------------------------------------------------------------------------

func TestPipeline_StartRollback(t *testing.T) {
	t.Parallel()

	threeStreams := func() *PipelineConfig {
		return depthColorConfig().EnableStream(kind.StreamGyro, AnyIndex, 0, 0, kind.FormatAny, 0)
	}
	tests := []struct {
		name        string
		op          string
		err         *native.Error
		wantErr     error
		nativeStart int
		nativeStop  int
	}{
		{
			name:    "second stream rejected",
			op:      "ConfigEnableStream",
			err:     &native.Error{Category: kind.ExceptionInvalidValue, Message: "bad request"},
			wantErr: &NativeError{},
		},
		{
			name:        "native start fails",
			op:          "PipelineStartWithConfig",
			err:         &native.Error{Category: kind.ExceptionBackend, Message: "uvc busy"},
			wantErr:     &NativeError{},
			nativeStart: 1,
		},
		{
			name:        "native start returns null",
			op:          "PipelineStartWithConfig",
			wantErr:     ErrUnknownFailure,
			nativeStart: 1,
		},
		{
			name:        "active device unavailable",
			op:          "PipelineProfileDevice",
			wantErr:     ErrUnknownFailure,
			nativeStart: 1,
			nativeStop:  1,
		},
		{
			name:        "active streams unavailable",
			op:          "PipelineProfileStreams",
			err:         &native.Error{Category: kind.ExceptionUnknown, Message: "gone"},
			wantErr:     &NativeError{},
			nativeStart: 1,
			nativeStop:  1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx, m := newTestContext(t, testutil.D435(testSerial))
			p, err := ctx.NewPipeline()
			require.NoError(t, err)

			nth := 1
			if tt.op == "ConfigEnableStream" {
				nth = 2
			}
			m.FailOn(tt.op, nth, tt.err)
			_, err = p.Start(threeStreams())
			require.Error(t, err)
			if ne, ok := tt.wantErr.(*NativeError); ok {
				assert.ErrorAs(t, err, &ne)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}

			assert.Equal(t, Idle, p.State())
			assert.Nil(t, p.ActiveProfiles())
			assert.Equal(t, tt.nativeStart, m.Calls("PipelineStartWithConfig"))
			assert.Equal(t, tt.nativeStop, m.Calls("PipelineStop"))
			for _, res := range []kind.Resource{
				kind.ResourceConfig, kind.ResourcePipelineProfile, kind.ResourceProfileList,
				kind.ResourceDevice, kind.ResourceSensor, kind.ResourceFrame,
			} {
				assert.Zero(t, m.Live(res), "live %s after rollback", res)
			}

			// The pipeline is reusable after a failed start.
			active, err := p.Start(threeStreams())
			require.NoError(t, err)
			assert.Len(t, active, 3)
			require.NoError(t, p.Close())
			requireClean(t, ctx, m)
		})
	}
}

// ---------------------------------------------------------------------------
// Waiting for frames
// ---------------------------------------------------------------------------

func TestPipeline_WaitZeroTimeout(t *testing.T) {
	t.Parallel()
	ctx, m := newTestContext(t, testutil.D435(testSerial))
	p := startPipeline(t, ctx, depthColorConfig())

	fs, err := p.WaitForFrames(0)
	assert.Nil(t, fs)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.True(t, IsTimeout(err))
	assert.Equal(t, Streaming, p.State(), "a timeout leaves the pipeline streaming")
	assert.Equal(t, int64(1), p.Stats().Snapshot().Timeouts)

	m.Emit()
	fs, err = p.WaitForFrames(0)
	require.NoError(t, err, "a queued set is returned without blocking")
	require.NoError(t, fs.Close())

	require.NoError(t, p.Close())
	requireClean(t, ctx, m)
}

func TestPipeline_WaitNotStreaming(t *testing.T) {
	t.Parallel()
	ctx, m := newTestContext(t, testutil.D435(testSerial))

	p, err := ctx.NewPipeline()
	require.NoError(t, err)
	_, err = p.WaitForFrames(time.Second)
	assert.ErrorIs(t, err, ErrNotStreaming)
	_, _, err = p.PollForFrames()
	assert.ErrorIs(t, err, ErrNotStreaming)
	assert.Zero(t, m.Calls("PipelineTryWaitForFrames"), "no native wait while idle")
	require.NoError(t, p.Close())
	requireClean(t, ctx, m)
}

func TestPipeline_Poll(t *testing.T) {
	t.Parallel()
	ctx, m := newTestContext(t, testutil.D435(testSerial))
	p := startPipeline(t, ctx, depthColorConfig())

	fs, ok, err := p.PollForFrames()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, fs)

	m.Emit()
	fs, ok, err = p.PollForFrames()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, fs.Len())
	require.NoError(t, fs.Close())

	require.NoError(t, p.Close())
	requireClean(t, ctx, m)
}

func TestPipeline_TimestampsIncrease(t *testing.T) {
	t.Parallel()
	ctx, m := newTestContext(t, testutil.D435(testSerial))
	p := startPipeline(t, ctx, depthColorConfig())

	var lastTS float64
	var lastN uint64
	for i := 0; i < 10; i++ {
		m.Emit()
		fs, err := p.WaitForFrames(time.Second)
		require.NoError(t, err)
		assert.Greater(t, fs.Timestamp(), lastTS)
		assert.Greater(t, fs.FrameNumber(), lastN)
		lastTS, lastN = fs.Timestamp(), fs.FrameNumber()
		require.NoError(t, fs.Close())
	}

	snap := p.Stats().Snapshot()
	assert.Equal(t, int64(10), snap.Frames)
	assert.Zero(t, snap.Dropped)
	require.Len(t, snap.Intervals, 9)
	assert.InDelta(t, 1000.0/30, snap.Intervals[0], 1e-9)

	require.NoError(t, p.Close())
	requireClean(t, ctx, m)
}

func TestPipeline_SlowConsumerDrops(t *testing.T) {
	t.Parallel()
	ctx, m := newTestContext(t, testutil.D435(testSerial))
	p := startPipeline(t, ctx, depthColorConfig())

	m.Emit()
	fs, err := p.WaitForFrames(time.Second)
	require.NoError(t, err)
	require.NoError(t, fs.Close())

	for i := 0; i < 3; i++ {
		m.Emit()
	}
	fs, err = p.WaitForFrames(time.Second)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), fs.FrameNumber(), "only the newest set is kept")
	require.NoError(t, fs.Close())

	assert.Equal(t, 2, m.Dropped())
	assert.Equal(t, int64(2), p.Stats().Snapshot().Dropped)

	require.NoError(t, p.Close())
	requireClean(t, ctx, m)
}

func TestPipeline_AutoEmit(t *testing.T) {
	t.Parallel()
	m := testutil.NewMock(testutil.D435(testSerial))
	m.AutoEmit = true
	ctx, err := NewContext(m)
	require.NoError(t, err)
	p := startPipeline(t, ctx, depthColorConfig())

	fs, err := p.WaitForFrames(time.Second)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), fs.FrameNumber())
	require.NoError(t, fs.Close())

	require.NoError(t, p.Close())
	requireClean(t, ctx, m)
}

func TestPipeline_StopInterruptsWait(t *testing.T) {
	t.Parallel()
	ctx, m := newTestContext(t, testutil.D435(testSerial))
	p := startPipeline(t, ctx, depthColorConfig())

	var wg sync.WaitGroup
	var waitErr error
	start := time.Now()
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, waitErr = p.WaitForFrames(10 * time.Second)
	}()
	require.Eventually(t, func() bool {
		return m.Calls("PipelineTryWaitForFrames") == 1
	}, 2*time.Second, time.Millisecond)

	require.NoError(t, p.Stop())
	wg.Wait()
	assert.ErrorIs(t, waitErr, ErrNotStreaming)
	assert.Less(t, time.Since(start), 5*time.Second)

	require.NoError(t, p.Close())
	requireClean(t, ctx, m)
}

func TestPipeline_CloseDuringWait(t *testing.T) {
	t.Parallel()
	ctx, m := newTestContext(t, testutil.D435(testSerial))
	p := startPipeline(t, ctx, depthColorConfig())

	done := make(chan error, 1)
	go func() {
		_, err := p.WaitForFrames(10 * time.Second)
		done <- err
	}()
	require.Eventually(t, func() bool {
		return m.Calls("PipelineTryWaitForFrames") == 1
	}, 2*time.Second, time.Millisecond)

	require.NoError(t, p.Close())
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrNotStreaming)
	case <-time.After(5 * time.Second):
		t.Fatal("wait did not return after Close")
	}
	requireClean(t, ctx, m)
}

func TestPipeline_Disconnect(t *testing.T) {
	t.Parallel()
	ctx, m := newTestContext(t, testutil.D435(testSerial))
	p := startPipeline(t, ctx, depthColorConfig())

	m.Disconnect(testSerial)
	_, err := p.WaitForFrames(time.Second)
	assert.ErrorIs(t, err, ErrDeviceDisconnected)
	var ne *NativeError
	require.ErrorAs(t, err, &ne)
	assert.False(t, ne.Recoverable())
	assert.Equal(t, int64(1), p.Stats().Snapshot().Errors)

	require.NoError(t, p.Stop())
	_, err = p.Start(depthColorConfig())
	assert.ErrorIs(t, err, ErrDeviceNotFound, "the device is gone until replugged")

	require.NoError(t, p.Close())
	requireClean(t, ctx, m)
}

// ---------------------------------------------------------------------------
// Frame lifetimes
// ---------------------------------------------------------------------------

func TestFrameOutlivesFrameSet(t *testing.T) {
	t.Parallel()
	ctx, m := newTestContext(t, testutil.D435(testSerial))
	p := startPipeline(t, ctx, depthColorConfig())

	m.Emit()
	fs, err := p.WaitForFrames(time.Second)
	require.NoError(t, err)
	owned, ok, err := fs.Frame(kind.StreamDepth, AnyIndex)
	require.NoError(t, err)
	require.True(t, ok)
	borrowed, ok := fs.Member(kind.StreamDepth, AnyIndex)
	require.True(t, ok)

	_, ok, err = fs.Frame(kind.StreamPose, AnyIndex)
	require.NoError(t, err)
	assert.False(t, ok, "absent stream")

	require.NoError(t, fs.Close())
	require.NoError(t, fs.Close(), "close twice")
	require.NoError(t, p.Close())

	assert.False(t, borrowed.Open())
	_, err = borrowed.Data()
	assert.ErrorIs(t, err, ErrReleased)

	assert.True(t, owned.Open())
	d, err := owned.AsDepth()
	require.NoError(t, err)
	assert.Equal(t, uint16(1001), d.Depth(1, 0))
	assert.Equal(t, 1, m.Live(kind.ResourceFrame), "only the owned frame survives")

	assert.ErrorIs(t, ctx.Close(), ErrContextInUse)
	require.NoError(t, owned.Close())
	require.NoError(t, owned.Close())
	requireClean(t, ctx, m)
}

func TestFrameSetReleasedOnCollect(t *testing.T) {
	t.Parallel()
	ctx, m := newTestContext(t, testutil.D435(testSerial))
	p := startPipeline(t, ctx, depthColorConfig())

	func() {
		m.Emit()
		fs, err := p.WaitForFrames(time.Second)
		require.NoError(t, err)
		require.Equal(t, 2, fs.Len())
	}()

	require.Eventually(t, func() bool {
		runtime.GC()
		return m.Live(kind.ResourceFrame) == 0
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, p.Close())
	requireClean(t, ctx, m)
}

func TestPipelineReleasedOnCollect(t *testing.T) {
	t.Parallel()
	ctx, m := newTestContext(t, testutil.D435(testSerial))

	func() {
		p := startPipeline(t, ctx, depthColorConfig())
		require.Equal(t, Streaming, p.State())
	}()

	require.Eventually(t, func() bool {
		runtime.GC()
		return ctx.Dependents() == 0
	}, 5*time.Second, 10*time.Millisecond)
	requireClean(t, ctx, m)
}

func TestCalibrationAvailableAfterStop(t *testing.T) {
	t.Parallel()
	ctx, m := newTestContext(t, testutil.D435(testSerial))
	p := startPipeline(t, ctx, depthColorConfig())
	active := p.ActiveProfiles()
	require.NoError(t, p.Close())

	in, err := active[1].Intrinsics()
	require.NoError(t, err)
	assert.Equal(t, float32(615), in.FX)
	ex, err := active[0].ExtrinsicsTo(active[1])
	require.NoError(t, err)
	assert.InDelta(t, -testutil.BaselineMetres, ex.Translation[0], 1e-6)
	requireClean(t, ctx, m)
}
