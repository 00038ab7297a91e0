//go:build !realsense
// +build !realsense

package native

import "github.com/banshee-data/depthcam/internal/kind"

// Default returns the SDK binding compiled into this binary. Without the
// realsense build tag every call fails; build with -tags=realsense to link
// librealsense2.
func Default() API {
	return unavailable{}
}

var errUnavailable = &Error{
	Category: kind.ExceptionNotImplemented,
	Message:  "SDK support not enabled: rebuild with -tags=realsense",
}

type unavailable struct{}

var _ API = unavailable{}

func (unavailable) CreateContext(int) (Handle, *Error) { return 0, errUnavailable }
func (unavailable) DeleteContext(Handle)               {}

func (unavailable) QueryDevices(Handle) (Handle, *Error) { return 0, errUnavailable }
func (unavailable) QueryDevicesEx(Handle, kind.ProductLine) (Handle, *Error) {
	return 0, errUnavailable
}
func (unavailable) ContextAddDevice(Handle, string) *Error    { return errUnavailable }
func (unavailable) ContextRemoveDevice(Handle, string) *Error { return errUnavailable }
func (unavailable) CreateDeviceHub(Handle) (Handle, *Error)   { return 0, errUnavailable }
func (unavailable) DeleteDeviceHub(Handle)                    {}
func (unavailable) DeviceHubWaitForDevice(Handle, Handle, uint32) (Handle, bool, *Error) {
	return 0, false, errUnavailable
}
func (unavailable) DeviceHubIsConnected(Handle, Handle) (bool, *Error) { return false, errUnavailable }
func (unavailable) DeviceCount(Handle) (int, *Error)                   { return 0, errUnavailable }
func (unavailable) CreateDevice(Handle, int) (Handle, *Error)          { return 0, errUnavailable }
func (unavailable) DeleteDeviceList(Handle)                            {}
func (unavailable) DeleteDevice(Handle)                                {}
func (unavailable) SupportsDeviceInfo(Handle, kind.CameraInfo) (bool, *Error) {
	return false, errUnavailable
}
func (unavailable) DeviceInfo(Handle, kind.CameraInfo) (string, *Error) { return "", errUnavailable }

func (unavailable) QuerySensors(Handle) (Handle, *Error)      { return 0, errUnavailable }
func (unavailable) SensorCount(Handle) (int, *Error)          { return 0, errUnavailable }
func (unavailable) CreateSensor(Handle, int) (Handle, *Error) { return 0, errUnavailable }
func (unavailable) DeleteSensorList(Handle)                   {}
func (unavailable) DeleteSensor(Handle)                       {}
func (unavailable) SupportsSensorInfo(Handle, kind.CameraInfo) (bool, *Error) {
	return false, errUnavailable
}
func (unavailable) SensorInfo(Handle, kind.CameraInfo) (string, *Error) { return "", errUnavailable }
func (unavailable) SupportsOption(Handle, kind.Option) (bool, *Error)   { return false, errUnavailable }
func (unavailable) GetOption(Handle, kind.Option) (float32, *Error)     { return 0, errUnavailable }
func (unavailable) SetOption(Handle, kind.Option, float32) *Error       { return errUnavailable }
func (unavailable) OptionRange(Handle, kind.Option) (OptionRange, *Error) {
	return OptionRange{}, errUnavailable
}
func (unavailable) DepthScale(Handle) (float32, *Error) { return 0, errUnavailable }

func (unavailable) StreamProfiles(Handle) (Handle, *Error)       { return 0, errUnavailable }
func (unavailable) StreamProfileCount(Handle) (int, *Error)      { return 0, errUnavailable }
func (unavailable) StreamProfileAt(Handle, int) (Handle, *Error) { return 0, errUnavailable }
func (unavailable) DeleteStreamProfiles(Handle)                  {}
func (unavailable) StreamProfileData(Handle) (ProfileData, *Error) {
	return ProfileData{}, errUnavailable
}
func (unavailable) VideoStreamResolution(Handle) (int, int, *Error) {
	return 0, 0, errUnavailable
}
func (unavailable) VideoStreamIntrinsics(Handle) (Intrinsics, *Error) {
	return Intrinsics{}, errUnavailable
}
func (unavailable) MotionStreamIntrinsics(Handle) (MotionIntrinsics, *Error) {
	return MotionIntrinsics{}, errUnavailable
}
func (unavailable) Extrinsics(Handle, Handle) (Extrinsics, *Error) {
	return Extrinsics{}, errUnavailable
}

func (unavailable) CreateConfig() (Handle, *Error)                  { return 0, errUnavailable }
func (unavailable) DeleteConfig(Handle)                             {}
func (unavailable) ConfigEnableStream(Handle, StreamRequest) *Error { return errUnavailable }
func (unavailable) ConfigEnableAllStreams(Handle) *Error            { return errUnavailable }
func (unavailable) ConfigEnableDevice(Handle, string) *Error        { return errUnavailable }

func (unavailable) CreatePipeline(Handle) (Handle, *Error) { return 0, errUnavailable }
func (unavailable) DeletePipeline(Handle)                  {}
func (unavailable) PipelineStartWithConfig(Handle, Handle) (Handle, *Error) {
	return 0, errUnavailable
}
func (unavailable) PipelineStop(Handle) *Error { return errUnavailable }
func (unavailable) PipelineTryWaitForFrames(Handle, uint32) (Handle, bool, *Error) {
	return 0, false, errUnavailable
}
func (unavailable) PipelinePollForFrames(Handle) (Handle, bool, *Error) {
	return 0, false, errUnavailable
}
func (unavailable) PipelineProfileStreams(Handle) (Handle, *Error) { return 0, errUnavailable }
func (unavailable) PipelineProfileDevice(Handle) (Handle, *Error)  { return 0, errUnavailable }
func (unavailable) DeletePipelineProfile(Handle)                   {}

func (unavailable) FrameAddRef(Handle) *Error                  { return errUnavailable }
func (unavailable) ReleaseFrame(Handle)                        {}
func (unavailable) EmbeddedFramesCount(Handle) (int, *Error)   { return 0, errUnavailable }
func (unavailable) ExtractFrame(Handle, int) (Handle, *Error)  { return 0, errUnavailable }
func (unavailable) FrameStreamProfile(Handle) (Handle, *Error) { return 0, errUnavailable }
func (unavailable) FrameSensor(Handle) (Handle, *Error)        { return 0, errUnavailable }
func (unavailable) FrameTimestamp(Handle) (float64, *Error)    { return 0, errUnavailable }
func (unavailable) FrameNumber(Handle) (uint64, *Error)        { return 0, errUnavailable }
func (unavailable) FrameDataSize(Handle) (int, *Error)         { return 0, errUnavailable }
func (unavailable) FrameData(Handle) ([]byte, *Error)          { return nil, errUnavailable }
func (unavailable) VideoFrameInfo(Handle) (VideoInfo, *Error)  { return VideoInfo{}, errUnavailable }
func (unavailable) DepthFrameUnits(Handle) (float32, *Error)   { return 0, errUnavailable }
func (unavailable) PoseFrameData(Handle) (Pose, *Error)        { return Pose{}, errUnavailable }
func (unavailable) FrameTimestampDomain(Handle) (kind.TimestampDomain, *Error) {
	return 0, errUnavailable
}
func (unavailable) SupportsFrameMetadata(Handle, kind.FrameMetadata) (bool, *Error) {
	return false, errUnavailable
}
func (unavailable) FrameMetadata(Handle, kind.FrameMetadata) (int64, *Error) {
	return 0, errUnavailable
}
