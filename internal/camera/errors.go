package camera

import (
	"errors"
	"fmt"

	"github.com/banshee-data/depthcam/internal/kind"
	"github.com/banshee-data/depthcam/internal/native"
)

var (
	// ErrNativeCallFailed is returned when a native constructor produced no
	// usable handle.
	ErrNativeCallFailed = errors.New("native call failed")
	// ErrUnknownFailure marks a null handle returned without an error object.
	ErrUnknownFailure = errors.New("null handle without error detail")
	// ErrTimeout is returned by WaitForFrames when no frame set arrived in
	// time. It is expected and recoverable; see IsTimeout.
	ErrTimeout = errors.New("timed out waiting for frames")

	ErrNotStreaming            = errors.New("pipeline is not streaming")
	ErrAlreadyStreaming        = errors.New("pipeline is already streaming")
	ErrUnsupportedStreamConfig = errors.New("unsupported stream configuration")
	ErrUnsupportedAlignment    = errors.New("unsupported alignment")
	ErrDeviceNotFound          = errors.New("device not found")
	// ErrDeviceDisconnected matches every *NativeError whose category
	// requires the device and pipeline to be rebuilt.
	ErrDeviceDisconnected = errors.New("device disconnected")
	ErrReleased           = errors.New("handle already released")
	ErrContextClosed      = errors.New("context closed")
	ErrContextInUse       = errors.New("context has live dependents")
	ErrWrongStream        = errors.New("frame has the wrong stream kind")
)

// NativeError is a failure reported by the SDK through its error object.
type NativeError struct {
	Op          string
	Category    kind.Exception
	Description string
	// Function is the SDK entry point that failed, when reported.
	Function string
}

func (e *NativeError) Error() string {
	if e.Function != "" {
		return fmt.Sprintf("%s: %s: %s (in %s)", e.Op, e.Category, e.Description, e.Function)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Category, e.Description)
}

// Recoverable reports whether the caller may retry on the same device.
// Disconnect and I/O failures are terminal for the current pipeline.
func (e *NativeError) Recoverable() bool {
	return !e.Category.RequiresReconnect()
}

// Is makes errors.Is(err, ErrDeviceDisconnected) hold for unrecoverable
// categories.
func (e *NativeError) Is(target error) bool {
	return target == ErrDeviceDisconnected && !e.Recoverable()
}

// IsTimeout reports whether err is the expected frame wait timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// translate converts the SDK error out-parameter of op into a Go error.
func translate(op string, e *native.Error) error {
	if e == nil {
		return nil
	}
	return &NativeError{
		Op:          op,
		Category:    e.Category,
		Description: e.Message,
		Function:    e.Function,
	}
}

// nullHandle is the error for a constructor that returned neither a handle
// nor an error object.
func nullHandle(op string) error {
	return fmt.Errorf("%s: %w: %w", op, ErrNativeCallFailed, ErrUnknownFailure)
}
