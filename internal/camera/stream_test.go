package camera

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/depthcam/internal/testutil"
)

func TestPipelineStream(t *testing.T) {
	t.Parallel()
	m := testutil.NewMock(testutil.D435(testSerial))
	m.AutoEmit = true
	ctx, err := NewContext(m)
	require.NoError(t, err)
	p := startPipeline(t, ctx, depthColorConfig())

	results := p.Stream(context.Background(), StreamOptions{Timeout: time.Second})
	var last uint64
	for i := 0; i < 5; i++ {
		r := <-results
		require.NoError(t, r.Err)
		assert.Greater(t, r.Frames.FrameNumber(), last)
		last = r.Frames.FrameNumber()
		require.NoError(t, r.Frames.Close())
	}

	require.NoError(t, p.Stop())
	for r := range results {
		// At most one set was in flight when the pipeline stopped.
		if r.Frames != nil {
			r.Frames.Close()
		}
		assert.NoError(t, r.Err)
	}

	require.NoError(t, p.Close())
	requireClean(t, ctx, m)
}

func TestPipelineStream_Cancel(t *testing.T) {
	t.Parallel()
	m := testutil.NewMock(testutil.D435(testSerial))
	m.AutoEmit = true
	ctx, err := NewContext(m)
	require.NoError(t, err)
	p := startPipeline(t, ctx, depthColorConfig())

	sctx, cancel := context.WithCancel(context.Background())
	results := p.Stream(sctx, StreamOptions{Timeout: 100 * time.Millisecond})
	r := <-results
	require.NoError(t, r.Err)
	require.NoError(t, r.Frames.Close())

	cancel()
	for r := range results {
		if r.Frames != nil {
			r.Frames.Close()
		}
	}
	assert.Equal(t, Streaming, p.State(), "cancelling the stream does not stop the pipeline")

	require.NoError(t, p.Close())
	requireClean(t, ctx, m)
}

func TestPipelineStream_TerminalError(t *testing.T) {
	t.Parallel()
	ctx, m := newTestContext(t, testutil.D435(testSerial))
	p := startPipeline(t, ctx, depthColorConfig())

	m.Disconnect(testSerial)
	results := p.Stream(context.Background(), StreamOptions{Timeout: time.Second, Buffer: 1})
	r, ok := <-results
	require.True(t, ok)
	assert.ErrorIs(t, r.Err, ErrDeviceDisconnected)
	_, ok = <-results
	assert.False(t, ok, "stream ends after a terminal error")

	require.NoError(t, p.Close())
	requireClean(t, ctx, m)
}
