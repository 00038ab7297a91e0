// Package native is the boundary to the depth-camera SDK's C ABI.
//
// Every entry point mirrors one SDK function: it either returns a handle or
// value together with a populated *Error (the SDK's out-parameter), or only
// the *Error. Release routines never fail. Nothing in this package owns or
// tracks lifetimes; internal/camera does.
//
// Three implementations exist:
//   - cgo.go binds librealsense2 and is compiled with -tags=realsense
//   - stub.go is compiled otherwise and fails every construction
//   - mock.go is an in-memory SDK with call counting for tests
package native

import (
	"fmt"

	"github.com/banshee-data/depthcam/internal/kind"
)

// APIVersion is the SDK API version requested when creating a context
// (major*10000 + minor*100 + patch).
const APIVersion = 25400

// DefaultTimeoutMillis is the SDK's default frame wait timeout.
const DefaultTimeoutMillis = 15000

// Handle is an opaque pointer-sized reference to a native object.
// The zero Handle is the null handle.
type Handle uintptr

// Error is the SDK's error out-parameter, copied into Go memory. The native
// error object it came from has already been freed.
type Error struct {
	Category kind.Exception
	Message  string
	Function string
	Args     string
}

func (e *Error) Error() string {
	if e.Function == "" {
		return fmt.Sprintf("%s: %s", e.Category, e.Message)
	}
	return fmt.Sprintf("%s(%s): %s: %s", e.Function, e.Args, e.Category, e.Message)
}

// ProfileData describes one stream profile.
type ProfileData struct {
	Stream    kind.Stream
	Format    kind.Format
	Index     int
	UniqueID  int
	Framerate int
	IsDefault bool
}

// Intrinsics are the projection parameters of a video stream.
type Intrinsics struct {
	Width  int
	Height int
	PPX    float32
	PPY    float32
	FX     float32
	FY     float32
	Model  kind.Distortion
	Coeffs [5]float32
}

// MotionIntrinsics are the calibration parameters of an IMU stream.
type MotionIntrinsics struct {
	Data           [3][4]float32
	NoiseVariances [3]float32
	BiasVariances  [3]float32
}

// Extrinsics is the rigid transform between two stream origins. Rotation is
// a 3x3 matrix in column-major order.
type Extrinsics struct {
	Rotation    [9]float32
	Translation [3]float32
}

// IdentityExtrinsics is the transform between a stream and itself.
var IdentityExtrinsics = Extrinsics{Rotation: [9]float32{1, 0, 0, 0, 1, 0, 0, 0, 1}}

// Pose is a 6-DOF sample delivered by pose streams. Rotation is a quaternion
// in x, y, z, w order.
type Pose struct {
	Translation         [3]float32
	Velocity            [3]float32
	Acceleration        [3]float32
	Rotation            [4]float32
	AngularVelocity     [3]float32
	AngularAcceleration [3]float32
	TrackerConfidence   uint32
	MapperConfidence    uint32
}

// OptionRange is the valid range of a sensor option.
type OptionRange struct {
	Min     float32
	Max     float32
	Step    float32
	Default float32
}

// StreamRequest is one enable-stream call on a native config. Index -1 and
// zero width, height or frame rate mean "any".
type StreamRequest struct {
	Stream    kind.Stream
	Index     int
	Width     int
	Height    int
	Format    kind.Format
	Framerate int
}

// VideoInfo holds the geometry of a video frame buffer.
type VideoInfo struct {
	Width        int
	Height       int
	Stride       int
	BitsPerPixel int
}

// API is the SDK surface consumed by internal/camera.
type API interface {
	CreateContext(apiVersion int) (Handle, *Error)
	DeleteContext(ctx Handle)

	QueryDevices(ctx Handle) (Handle, *Error)
	// QueryDevicesEx lists only devices whose product line is in mask.
	QueryDevicesEx(ctx Handle, mask kind.ProductLine) (Handle, *Error)
	// ContextAddDevice opens a recorded session file as a playback device
	// of the context.
	ContextAddDevice(ctx Handle, file string) *Error
	ContextRemoveDevice(ctx Handle, file string) *Error
	DeviceCount(list Handle) (int, *Error)
	CreateDevice(list Handle, index int) (Handle, *Error)
	DeleteDeviceList(list Handle)
	DeleteDevice(dev Handle)
	SupportsDeviceInfo(dev Handle, info kind.CameraInfo) (bool, *Error)
	DeviceInfo(dev Handle, info kind.CameraInfo) (string, *Error)

	CreateDeviceHub(ctx Handle) (Handle, *Error)
	DeleteDeviceHub(hub Handle)
	// DeviceHubWaitForDevice returns the next connected device, cycling
	// through devices on repeated calls. It reports false with a nil error
	// when none appeared within timeoutMillis.
	DeviceHubWaitForDevice(ctx, hub Handle, timeoutMillis uint32) (Handle, bool, *Error)
	DeviceHubIsConnected(hub, dev Handle) (bool, *Error)

	QuerySensors(dev Handle) (Handle, *Error)
	SensorCount(list Handle) (int, *Error)
	CreateSensor(list Handle, index int) (Handle, *Error)
	DeleteSensorList(list Handle)
	DeleteSensor(sensor Handle)
	SupportsSensorInfo(sensor Handle, info kind.CameraInfo) (bool, *Error)
	SensorInfo(sensor Handle, info kind.CameraInfo) (string, *Error)
	SupportsOption(sensor Handle, opt kind.Option) (bool, *Error)
	GetOption(sensor Handle, opt kind.Option) (float32, *Error)
	SetOption(sensor Handle, opt kind.Option, value float32) *Error
	OptionRange(sensor Handle, opt kind.Option) (OptionRange, *Error)
	DepthScale(sensor Handle) (float32, *Error)

	StreamProfiles(sensor Handle) (Handle, *Error)
	StreamProfileCount(list Handle) (int, *Error)
	// StreamProfileAt returns a handle owned by the list.
	StreamProfileAt(list Handle, index int) (Handle, *Error)
	DeleteStreamProfiles(list Handle)
	StreamProfileData(profile Handle) (ProfileData, *Error)
	VideoStreamResolution(profile Handle) (width, height int, err *Error)
	VideoStreamIntrinsics(profile Handle) (Intrinsics, *Error)
	MotionStreamIntrinsics(profile Handle) (MotionIntrinsics, *Error)
	Extrinsics(from, to Handle) (Extrinsics, *Error)

	CreateConfig() (Handle, *Error)
	DeleteConfig(cfg Handle)
	ConfigEnableStream(cfg Handle, req StreamRequest) *Error
	ConfigEnableAllStreams(cfg Handle) *Error
	ConfigEnableDevice(cfg Handle, serial string) *Error

	CreatePipeline(ctx Handle) (Handle, *Error)
	DeletePipeline(pipe Handle)
	PipelineStartWithConfig(pipe, cfg Handle) (Handle, *Error)
	PipelineStop(pipe Handle) *Error
	// PipelineTryWaitForFrames reports false with a nil error when no frame
	// set arrived within timeoutMillis.
	PipelineTryWaitForFrames(pipe Handle, timeoutMillis uint32) (Handle, bool, *Error)
	PipelinePollForFrames(pipe Handle) (Handle, bool, *Error)
	PipelineProfileStreams(profile Handle) (Handle, *Error)
	PipelineProfileDevice(profile Handle) (Handle, *Error)
	DeletePipelineProfile(profile Handle)

	FrameAddRef(frame Handle) *Error
	ReleaseFrame(frame Handle)
	EmbeddedFramesCount(frame Handle) (int, *Error)
	// ExtractFrame returns a new reference the caller must release.
	ExtractFrame(composite Handle, index int) (Handle, *Error)
	// FrameStreamProfile returns a handle owned by the frame.
	FrameStreamProfile(frame Handle) (Handle, *Error)
	// FrameSensor returns a new sensor object the caller must delete.
	FrameSensor(frame Handle) (Handle, *Error)
	FrameTimestamp(frame Handle) (float64, *Error)
	FrameTimestampDomain(frame Handle) (kind.TimestampDomain, *Error)
	FrameNumber(frame Handle) (uint64, *Error)
	FrameDataSize(frame Handle) (int, *Error)
	// FrameData returns a view over memory owned by the frame.
	FrameData(frame Handle) ([]byte, *Error)
	VideoFrameInfo(frame Handle) (VideoInfo, *Error)
	DepthFrameUnits(frame Handle) (float32, *Error)
	PoseFrameData(frame Handle) (Pose, *Error)
	SupportsFrameMetadata(frame Handle, md kind.FrameMetadata) (bool, *Error)
	FrameMetadata(frame Handle, md kind.FrameMetadata) (int64, *Error)
}
