package camera

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/depthcam/internal/kind"
	"github.com/banshee-data/depthcam/internal/native"
	"github.com/banshee-data/depthcam/internal/testutil"
)

const testSerial = "841512070001"

func newTestContext(t *testing.T, devices ...*native.MockDevice) (*Context, *native.Mock) {
	t.Helper()
	m := testutil.NewMock(devices...)
	ctx, err := NewContext(m)
	require.NoError(t, err)
	return ctx, m
}

// requireClean closes ctx and checks every native object was released
// exactly once.
func requireClean(t *testing.T, ctx *Context, m *native.Mock) {
	t.Helper()
	require.NoError(t, ctx.Close())
	assert.Zero(t, m.LiveTotal(), "live native objects")
	assert.Zero(t, m.DoubleReleases(), "double releases")
}

func TestNewContext(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		ctx, m := newTestContext(t)
		assert.Equal(t, 1, m.Live(kind.ResourceContext))
		assert.Zero(t, ctx.Dependents())
		requireClean(t, ctx, m)
		assert.NoError(t, ctx.Close(), "second close is a no-op")
	})

	t.Run("native error", func(t *testing.T) {
		t.Parallel()
		m := native.NewMock()
		m.FailOn("CreateContext", 1, &native.Error{Category: kind.ExceptionBackend, Message: "usb busy"})
		_, err := NewContext(m)
		var ne *NativeError
		require.ErrorAs(t, err, &ne)
		assert.Equal(t, kind.ExceptionBackend, ne.Category)
		assert.Equal(t, "usb busy", ne.Description)
	})

	t.Run("null handle", func(t *testing.T) {
		t.Parallel()
		m := native.NewMock()
		m.FailOn("CreateContext", 1, nil)
		_, err := NewContext(m)
		assert.ErrorIs(t, err, ErrNativeCallFailed)
		assert.ErrorIs(t, err, ErrUnknownFailure)
	})
}

func TestDefaultWithoutSDK(t *testing.T) {
	t.Parallel()

	// Test binaries are built without the realsense tag.
	_, err := Default()
	var ne *NativeError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, kind.ExceptionNotImplemented, ne.Category)
}

func TestContextCloseRefusedWhileInUse(t *testing.T) {
	t.Parallel()
	ctx, m := newTestContext(t, testutil.D435(testSerial))

	p, err := ctx.NewPipeline()
	require.NoError(t, err)
	devices, err := ctx.QueryDevices()
	require.NoError(t, err)
	require.Len(t, devices, 1)

	err = ctx.Close()
	assert.ErrorIs(t, err, ErrContextInUse)
	assert.Equal(t, 1, m.Live(kind.ResourceContext), "context must survive a refused close")

	require.NoError(t, p.Close())
	require.NoError(t, devices[0].Close())
	requireClean(t, ctx, m)

	_, err = ctx.QueryDevices()
	assert.True(t, errors.Is(err, ErrContextClosed), "got %v", err)
	_, err = ctx.NewPipeline()
	assert.ErrorIs(t, err, ErrContextClosed)
}
