//go:build realsense
// +build realsense

package native

/*
#cgo linux darwin LDFLAGS: -L/usr/local/lib/ -lrealsense2
#cgo CPPFLAGS: -I/usr/local/include
#include <stdlib.h>
#include <librealsense2/rs.h>
#include <librealsense2/h/rs_pipeline.h>
#include <librealsense2/h/rs_config.h>
#include <librealsense2/h/rs_frame.h>
#include <librealsense2/h/rs_sensor.h>
#include <librealsense2/h/rs_option.h>
*/
import "C"

import (
	"time"
	"unsafe"

	"github.com/banshee-data/depthcam/internal/kind"
)

// Default returns the librealsense2 binding.
func Default() API {
	return librealsense{}
}

type librealsense struct{}

var _ API = librealsense{}

// check copies a populated rs2_error into Go memory and frees it.
func check(err *C.rs2_error) *Error {
	if err == nil {
		return nil
	}
	defer C.rs2_free_error(err)
	return &Error{
		Category: kind.Exception(C.rs2_get_librealsense_exception_type(err)),
		Message:  C.GoString(C.rs2_get_error_message(err)),
		Function: C.GoString(C.rs2_get_failed_function(err)),
		Args:     C.GoString(C.rs2_get_failed_args(err)),
	}
}

func ptr(h Handle) unsafe.Pointer    { return unsafe.Pointer(h) }
func handle(p unsafe.Pointer) Handle { return Handle(uintptr(p)) }

func (librealsense) CreateContext(apiVersion int) (Handle, *Error) {
	var err *C.rs2_error
	ctx := C.rs2_create_context(C.int(apiVersion), &err)
	return handle(unsafe.Pointer(ctx)), check(err)
}

func (librealsense) DeleteContext(ctx Handle) {
	C.rs2_delete_context((*C.rs2_context)(ptr(ctx)))
}

func (librealsense) QueryDevices(ctx Handle) (Handle, *Error) {
	var err *C.rs2_error
	list := C.rs2_query_devices((*C.rs2_context)(ptr(ctx)), &err)
	return handle(unsafe.Pointer(list)), check(err)
}

func (librealsense) QueryDevicesEx(ctx Handle, mask kind.ProductLine) (Handle, *Error) {
	var err *C.rs2_error
	list := C.rs2_query_devices_ex((*C.rs2_context)(ptr(ctx)), C.int(mask), &err)
	return handle(unsafe.Pointer(list)), check(err)
}

func (librealsense) ContextAddDevice(ctx Handle, file string) *Error {
	cs := C.CString(file)
	defer C.free(unsafe.Pointer(cs))
	var err *C.rs2_error
	C.rs2_context_add_device((*C.rs2_context)(ptr(ctx)), cs, &err)
	return check(err)
}

func (librealsense) ContextRemoveDevice(ctx Handle, file string) *Error {
	cs := C.CString(file)
	defer C.free(unsafe.Pointer(cs))
	var err *C.rs2_error
	C.rs2_context_remove_device((*C.rs2_context)(ptr(ctx)), cs, &err)
	return check(err)
}

func (librealsense) CreateDeviceHub(ctx Handle) (Handle, *Error) {
	var err *C.rs2_error
	hub := C.rs2_create_device_hub((*C.rs2_context)(ptr(ctx)), &err)
	return handle(unsafe.Pointer(hub)), check(err)
}

func (librealsense) DeleteDeviceHub(hub Handle) {
	C.rs2_delete_device_hub((*C.rs2_device_hub)(ptr(hub)))
}

// hubPollInterval paces the device presence check of DeviceHubWaitForDevice.
const hubPollInterval = 100 * time.Millisecond

// DeviceHubWaitForDevice polls the context until a device is present and
// only then enters rs2_device_hub_wait_for_device, which has no timeout.
func (l librealsense) DeviceHubWaitForDevice(ctx, hub Handle, timeoutMillis uint32) (Handle, bool, *Error) {
	deadline := time.Now().Add(time.Duration(timeoutMillis) * time.Millisecond)
	for {
		list, e := l.QueryDevices(ctx)
		if e != nil {
			return 0, false, e
		}
		n, e := l.DeviceCount(list)
		l.DeleteDeviceList(list)
		if e != nil {
			return 0, false, e
		}
		if n > 0 {
			var err *C.rs2_error
			dev := C.rs2_device_hub_wait_for_device((*C.rs2_device_hub)(ptr(hub)), &err)
			if e := check(err); e != nil {
				return 0, false, e
			}
			return handle(unsafe.Pointer(dev)), true, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, false, nil
		}
		time.Sleep(min(hubPollInterval, remaining))
	}
}

func (librealsense) DeviceHubIsConnected(hub, dev Handle) (bool, *Error) {
	var err *C.rs2_error
	ok := C.rs2_device_hub_is_device_connected((*C.rs2_device_hub)(ptr(hub)), (*C.rs2_device)(ptr(dev)), &err)
	return ok != 0, check(err)
}

func (librealsense) DeviceCount(list Handle) (int, *Error) {
	var err *C.rs2_error
	n := C.rs2_get_device_count((*C.rs2_device_list)(ptr(list)), &err)
	return int(n), check(err)
}

func (librealsense) CreateDevice(list Handle, index int) (Handle, *Error) {
	var err *C.rs2_error
	dev := C.rs2_create_device((*C.rs2_device_list)(ptr(list)), C.int(index), &err)
	return handle(unsafe.Pointer(dev)), check(err)
}

func (librealsense) DeleteDeviceList(list Handle) {
	C.rs2_delete_device_list((*C.rs2_device_list)(ptr(list)))
}

func (librealsense) DeleteDevice(dev Handle) {
	C.rs2_delete_device((*C.rs2_device)(ptr(dev)))
}

func (librealsense) SupportsDeviceInfo(dev Handle, info kind.CameraInfo) (bool, *Error) {
	var err *C.rs2_error
	ok := C.rs2_supports_device_info((*C.rs2_device)(ptr(dev)), C.rs2_camera_info(info), &err)
	return ok != 0, check(err)
}

func (librealsense) DeviceInfo(dev Handle, info kind.CameraInfo) (string, *Error) {
	var err *C.rs2_error
	s := C.rs2_get_device_info((*C.rs2_device)(ptr(dev)), C.rs2_camera_info(info), &err)
	if e := check(err); e != nil {
		return "", e
	}
	return C.GoString(s), nil
}

func (librealsense) QuerySensors(dev Handle) (Handle, *Error) {
	var err *C.rs2_error
	list := C.rs2_query_sensors((*C.rs2_device)(ptr(dev)), &err)
	return handle(unsafe.Pointer(list)), check(err)
}

func (librealsense) SensorCount(list Handle) (int, *Error) {
	var err *C.rs2_error
	n := C.rs2_get_sensors_count((*C.rs2_sensor_list)(ptr(list)), &err)
	return int(n), check(err)
}

func (librealsense) CreateSensor(list Handle, index int) (Handle, *Error) {
	var err *C.rs2_error
	s := C.rs2_create_sensor((*C.rs2_sensor_list)(ptr(list)), C.int(index), &err)
	return handle(unsafe.Pointer(s)), check(err)
}

func (librealsense) DeleteSensorList(list Handle) {
	C.rs2_delete_sensor_list((*C.rs2_sensor_list)(ptr(list)))
}

func (librealsense) DeleteSensor(sensor Handle) {
	C.rs2_delete_sensor((*C.rs2_sensor)(ptr(sensor)))
}

func (librealsense) SupportsSensorInfo(sensor Handle, info kind.CameraInfo) (bool, *Error) {
	var err *C.rs2_error
	ok := C.rs2_supports_sensor_info((*C.rs2_sensor)(ptr(sensor)), C.rs2_camera_info(info), &err)
	return ok != 0, check(err)
}

func (librealsense) SensorInfo(sensor Handle, info kind.CameraInfo) (string, *Error) {
	var err *C.rs2_error
	s := C.rs2_get_sensor_info((*C.rs2_sensor)(ptr(sensor)), C.rs2_camera_info(info), &err)
	if e := check(err); e != nil {
		return "", e
	}
	return C.GoString(s), nil
}

func options(sensor Handle) *C.rs2_options {
	return (*C.rs2_options)(ptr(sensor))
}

func (librealsense) SupportsOption(sensor Handle, opt kind.Option) (bool, *Error) {
	var err *C.rs2_error
	ok := C.rs2_supports_option(options(sensor), C.rs2_option(opt), &err)
	return ok != 0, check(err)
}

func (librealsense) GetOption(sensor Handle, opt kind.Option) (float32, *Error) {
	var err *C.rs2_error
	v := C.rs2_get_option(options(sensor), C.rs2_option(opt), &err)
	return float32(v), check(err)
}

func (librealsense) SetOption(sensor Handle, opt kind.Option, value float32) *Error {
	var err *C.rs2_error
	C.rs2_set_option(options(sensor), C.rs2_option(opt), C.float(value), &err)
	return check(err)
}

func (librealsense) OptionRange(sensor Handle, opt kind.Option) (OptionRange, *Error) {
	var err *C.rs2_error
	var min, max, step, def C.float
	C.rs2_get_option_range(options(sensor), C.rs2_option(opt), &min, &max, &step, &def, &err)
	return OptionRange{Min: float32(min), Max: float32(max), Step: float32(step), Default: float32(def)}, check(err)
}

func (librealsense) DepthScale(sensor Handle) (float32, *Error) {
	var err *C.rs2_error
	v := C.rs2_get_depth_scale((*C.rs2_sensor)(ptr(sensor)), &err)
	return float32(v), check(err)
}

func (librealsense) StreamProfiles(sensor Handle) (Handle, *Error) {
	var err *C.rs2_error
	list := C.rs2_get_stream_profiles((*C.rs2_sensor)(ptr(sensor)), &err)
	return handle(unsafe.Pointer(list)), check(err)
}

func (librealsense) StreamProfileCount(list Handle) (int, *Error) {
	var err *C.rs2_error
	n := C.rs2_get_stream_profiles_count((*C.rs2_stream_profile_list)(ptr(list)), &err)
	return int(n), check(err)
}

func (librealsense) StreamProfileAt(list Handle, index int) (Handle, *Error) {
	var err *C.rs2_error
	p := C.rs2_get_stream_profile((*C.rs2_stream_profile_list)(ptr(list)), C.int(index), &err)
	return handle(unsafe.Pointer(p)), check(err)
}

func (librealsense) DeleteStreamProfiles(list Handle) {
	C.rs2_delete_stream_profiles_list((*C.rs2_stream_profile_list)(ptr(list)))
}

func profile(h Handle) *C.rs2_stream_profile {
	return (*C.rs2_stream_profile)(ptr(h))
}

func (librealsense) StreamProfileData(p Handle) (ProfileData, *Error) {
	var err *C.rs2_error
	var stream C.rs2_stream
	var format C.rs2_format
	var index, uid, fps C.int
	C.rs2_get_stream_profile_data(profile(p), &stream, &format, &index, &uid, &fps, &err)
	if e := check(err); e != nil {
		return ProfileData{}, e
	}
	def := C.rs2_is_stream_profile_default(profile(p), &err)
	if e := check(err); e != nil {
		return ProfileData{}, e
	}
	return ProfileData{
		Stream:    kind.Stream(stream),
		Format:    kind.Format(format),
		Index:     int(index),
		UniqueID:  int(uid),
		Framerate: int(fps),
		IsDefault: def != 0,
	}, nil
}

func (librealsense) VideoStreamResolution(p Handle) (int, int, *Error) {
	var err *C.rs2_error
	var w, h C.int
	C.rs2_get_video_stream_resolution(profile(p), &w, &h, &err)
	return int(w), int(h), check(err)
}

func (librealsense) VideoStreamIntrinsics(p Handle) (Intrinsics, *Error) {
	var err *C.rs2_error
	var in C.rs2_intrinsics
	C.rs2_get_video_stream_intrinsics(profile(p), &in, &err)
	if e := check(err); e != nil {
		return Intrinsics{}, e
	}
	out := Intrinsics{
		Width:  int(in.width),
		Height: int(in.height),
		PPX:    float32(in.ppx),
		PPY:    float32(in.ppy),
		FX:     float32(in.fx),
		FY:     float32(in.fy),
		Model:  kind.Distortion(in.model),
	}
	for i := range out.Coeffs {
		out.Coeffs[i] = float32(in.coeffs[i])
	}
	return out, nil
}

func (librealsense) MotionStreamIntrinsics(p Handle) (MotionIntrinsics, *Error) {
	var err *C.rs2_error
	var in C.rs2_motion_device_intrinsic
	C.rs2_get_motion_intrinsics(profile(p), &in, &err)
	if e := check(err); e != nil {
		return MotionIntrinsics{}, e
	}
	var out MotionIntrinsics
	for i := 0; i < 3; i++ {
		for j := 0; j < 4; j++ {
			out.Data[i][j] = float32(in.data[i][j])
		}
		out.NoiseVariances[i] = float32(in.noise_variances[i])
		out.BiasVariances[i] = float32(in.bias_variances[i])
	}
	return out, nil
}

func (librealsense) Extrinsics(from, to Handle) (Extrinsics, *Error) {
	var err *C.rs2_error
	var ex C.rs2_extrinsics
	C.rs2_get_extrinsics(profile(from), profile(to), &ex, &err)
	if e := check(err); e != nil {
		return Extrinsics{}, e
	}
	var out Extrinsics
	for i := range out.Rotation {
		out.Rotation[i] = float32(ex.rotation[i])
	}
	for i := range out.Translation {
		out.Translation[i] = float32(ex.translation[i])
	}
	return out, nil
}

func (librealsense) CreateConfig() (Handle, *Error) {
	var err *C.rs2_error
	cfg := C.rs2_create_config(&err)
	return handle(unsafe.Pointer(cfg)), check(err)
}

func (librealsense) DeleteConfig(cfg Handle) {
	C.rs2_delete_config((*C.rs2_config)(ptr(cfg)))
}

func (librealsense) ConfigEnableStream(cfg Handle, req StreamRequest) *Error {
	var err *C.rs2_error
	C.rs2_config_enable_stream((*C.rs2_config)(ptr(cfg)), C.rs2_stream(req.Stream), C.int(req.Index),
		C.int(req.Width), C.int(req.Height), C.rs2_format(req.Format), C.int(req.Framerate), &err)
	return check(err)
}

func (librealsense) ConfigEnableAllStreams(cfg Handle) *Error {
	var err *C.rs2_error
	C.rs2_config_enable_all_stream((*C.rs2_config)(ptr(cfg)), &err)
	return check(err)
}

func (librealsense) ConfigEnableDevice(cfg Handle, serial string) *Error {
	var err *C.rs2_error
	cs := C.CString(serial)
	defer C.free(unsafe.Pointer(cs))
	C.rs2_config_enable_device((*C.rs2_config)(ptr(cfg)), cs, &err)
	return check(err)
}

func (librealsense) CreatePipeline(ctx Handle) (Handle, *Error) {
	var err *C.rs2_error
	p := C.rs2_create_pipeline((*C.rs2_context)(ptr(ctx)), &err)
	return handle(unsafe.Pointer(p)), check(err)
}

func (librealsense) DeletePipeline(pipe Handle) {
	C.rs2_delete_pipeline((*C.rs2_pipeline)(ptr(pipe)))
}

func (librealsense) PipelineStartWithConfig(pipe, cfg Handle) (Handle, *Error) {
	var err *C.rs2_error
	prof := C.rs2_pipeline_start_with_config((*C.rs2_pipeline)(ptr(pipe)), (*C.rs2_config)(ptr(cfg)), &err)
	return handle(unsafe.Pointer(prof)), check(err)
}

func (librealsense) PipelineStop(pipe Handle) *Error {
	var err *C.rs2_error
	C.rs2_pipeline_stop((*C.rs2_pipeline)(ptr(pipe)), &err)
	return check(err)
}

func (librealsense) PipelineTryWaitForFrames(pipe Handle, timeoutMillis uint32) (Handle, bool, *Error) {
	var err *C.rs2_error
	var frame *C.rs2_frame
	ok := C.rs2_pipeline_try_wait_for_frames((*C.rs2_pipeline)(ptr(pipe)), &frame, C.uint(timeoutMillis), &err)
	if e := check(err); e != nil {
		return 0, false, e
	}
	return handle(unsafe.Pointer(frame)), ok != 0, nil
}

func (librealsense) PipelinePollForFrames(pipe Handle) (Handle, bool, *Error) {
	var err *C.rs2_error
	var frame *C.rs2_frame
	ok := C.rs2_pipeline_poll_for_frames((*C.rs2_pipeline)(ptr(pipe)), &frame, &err)
	if e := check(err); e != nil {
		return 0, false, e
	}
	return handle(unsafe.Pointer(frame)), ok != 0, nil
}

func (librealsense) PipelineProfileStreams(prof Handle) (Handle, *Error) {
	var err *C.rs2_error
	list := C.rs2_pipeline_profile_get_streams((*C.rs2_pipeline_profile)(ptr(prof)), &err)
	return handle(unsafe.Pointer(list)), check(err)
}

func (librealsense) PipelineProfileDevice(prof Handle) (Handle, *Error) {
	var err *C.rs2_error
	dev := C.rs2_pipeline_profile_get_device((*C.rs2_pipeline_profile)(ptr(prof)), &err)
	return handle(unsafe.Pointer(dev)), check(err)
}

func (librealsense) DeletePipelineProfile(prof Handle) {
	C.rs2_delete_pipeline_profile((*C.rs2_pipeline_profile)(ptr(prof)))
}

func frame(h Handle) *C.rs2_frame {
	return (*C.rs2_frame)(ptr(h))
}

func (librealsense) FrameAddRef(f Handle) *Error {
	var err *C.rs2_error
	C.rs2_frame_add_ref(frame(f), &err)
	return check(err)
}

func (librealsense) ReleaseFrame(f Handle) {
	C.rs2_release_frame(frame(f))
}

func (librealsense) EmbeddedFramesCount(f Handle) (int, *Error) {
	var err *C.rs2_error
	n := C.rs2_embedded_frames_count(frame(f), &err)
	return int(n), check(err)
}

func (librealsense) ExtractFrame(f Handle, index int) (Handle, *Error) {
	var err *C.rs2_error
	out := C.rs2_extract_frame(frame(f), C.int(index), &err)
	return handle(unsafe.Pointer(out)), check(err)
}

func (librealsense) FrameStreamProfile(f Handle) (Handle, *Error) {
	var err *C.rs2_error
	p := C.rs2_get_frame_stream_profile(frame(f), &err)
	return handle(unsafe.Pointer(p)), check(err)
}

func (librealsense) FrameSensor(f Handle) (Handle, *Error) {
	var err *C.rs2_error
	s := C.rs2_get_frame_sensor(frame(f), &err)
	return handle(unsafe.Pointer(s)), check(err)
}

func (librealsense) FrameTimestamp(f Handle) (float64, *Error) {
	var err *C.rs2_error
	ts := C.rs2_get_frame_timestamp(frame(f), &err)
	return float64(ts), check(err)
}

func (librealsense) FrameTimestampDomain(f Handle) (kind.TimestampDomain, *Error) {
	var err *C.rs2_error
	d := C.rs2_get_frame_timestamp_domain(frame(f), &err)
	return kind.TimestampDomain(d), check(err)
}

func (librealsense) FrameNumber(f Handle) (uint64, *Error) {
	var err *C.rs2_error
	n := C.rs2_get_frame_number(frame(f), &err)
	return uint64(n), check(err)
}

func (librealsense) FrameDataSize(f Handle) (int, *Error) {
	var err *C.rs2_error
	n := C.rs2_get_frame_data_size(frame(f), &err)
	return int(n), check(err)
}

func (l librealsense) FrameData(f Handle) ([]byte, *Error) {
	size, e := l.FrameDataSize(f)
	if e != nil {
		return nil, e
	}
	var err *C.rs2_error
	data := C.rs2_get_frame_data(frame(f), &err)
	if e := check(err); e != nil {
		return nil, e
	}
	if data == nil || size == 0 {
		return nil, nil
	}
	return unsafe.Slice((*byte)(data), size), nil
}

func (librealsense) VideoFrameInfo(f Handle) (VideoInfo, *Error) {
	var err *C.rs2_error
	var info VideoInfo
	info.Width = int(C.rs2_get_frame_width(frame(f), &err))
	if e := check(err); e != nil {
		return VideoInfo{}, e
	}
	info.Height = int(C.rs2_get_frame_height(frame(f), &err))
	if e := check(err); e != nil {
		return VideoInfo{}, e
	}
	info.Stride = int(C.rs2_get_frame_stride_in_bytes(frame(f), &err))
	if e := check(err); e != nil {
		return VideoInfo{}, e
	}
	info.BitsPerPixel = int(C.rs2_get_frame_bits_per_pixel(frame(f), &err))
	if e := check(err); e != nil {
		return VideoInfo{}, e
	}
	return info, nil
}

func (librealsense) DepthFrameUnits(f Handle) (float32, *Error) {
	var err *C.rs2_error
	u := C.rs2_depth_frame_get_units(frame(f), &err)
	return float32(u), check(err)
}

func vec3(v C.rs2_vector) [3]float32 {
	return [3]float32{float32(v.x), float32(v.y), float32(v.z)}
}

func (librealsense) PoseFrameData(f Handle) (Pose, *Error) {
	var err *C.rs2_error
	var p C.rs2_pose
	C.rs2_pose_frame_get_pose_data(frame(f), &p, &err)
	if e := check(err); e != nil {
		return Pose{}, e
	}
	return Pose{
		Translation:         vec3(p.translation),
		Velocity:            vec3(p.velocity),
		Acceleration:        vec3(p.acceleration),
		Rotation:            [4]float32{float32(p.rotation.x), float32(p.rotation.y), float32(p.rotation.z), float32(p.rotation.w)},
		AngularVelocity:     vec3(p.angular_velocity),
		AngularAcceleration: vec3(p.angular_acceleration),
		TrackerConfidence:   uint32(p.tracker_confidence),
		MapperConfidence:    uint32(p.mapper_confidence),
	}, nil
}

func (librealsense) SupportsFrameMetadata(f Handle, md kind.FrameMetadata) (bool, *Error) {
	var err *C.rs2_error
	ok := C.rs2_supports_frame_metadata(frame(f), C.rs2_frame_metadata_value(md), &err)
	return ok != 0, check(err)
}

func (librealsense) FrameMetadata(f Handle, md kind.FrameMetadata) (int64, *Error) {
	var err *C.rs2_error
	v := C.rs2_get_frame_metadata(frame(f), C.rs2_frame_metadata_value(md), &err)
	return int64(v), check(err)
}
