package camera

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/depthcam/internal/kind"
	"github.com/banshee-data/depthcam/internal/testutil"
)

func TestDeviceHub_WaitForDevice(t *testing.T) {
	t.Parallel()
	ctx, m := newTestContext(t)
	hub, err := ctx.NewDeviceHub()
	require.NoError(t, err)
	assert.Equal(t, 1, m.Live(kind.ResourceDeviceHub))

	short, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	_, err = hub.WaitForDevice(short)
	cancel()
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	type result struct {
		dev *Device
		err error
	}
	done := make(chan result, 1)
	go func() {
		d, err := hub.WaitForDevice(context.Background())
		done <- result{d, err}
	}()
	m.AddDevice(testutil.D435(testSerial))
	var r result
	select {
	case r = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("hub did not report the new device")
	}
	require.NoError(t, r.err)
	assert.Equal(t, testSerial, r.dev.Serial())

	connected, err := hub.IsConnected(r.dev)
	require.NoError(t, err)
	assert.True(t, connected)
	m.Disconnect(testSerial)
	connected, err = hub.IsConnected(r.dev)
	require.NoError(t, err)
	assert.False(t, connected)

	require.NoError(t, r.dev.Close())
	_, err = hub.IsConnected(r.dev)
	assert.ErrorIs(t, err, ErrReleased)
	require.NoError(t, hub.Close())
	require.NoError(t, hub.Close(), "close twice")
	_, err = hub.WaitForDevice(context.Background())
	assert.ErrorIs(t, err, ErrReleased)
	requireClean(t, ctx, m)
}

func TestDeviceHub_Cancelled(t *testing.T) {
	t.Parallel()
	ctx, m := newTestContext(t, testutil.D435(testSerial))
	hub, err := ctx.NewDeviceHub()
	require.NoError(t, err)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = hub.WaitForDevice(cancelled)
	assert.ErrorIs(t, err, context.Canceled, "a done context wins over a connected device")

	assert.ErrorIs(t, ctx.Close(), ErrContextInUse, "the hub keeps the context alive")
	require.NoError(t, hub.Close())
	requireClean(t, ctx, m)
}
