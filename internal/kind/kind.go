// Package kind holds the enumerations shared by the native boundary, the
// camera layer and the processing layer.
//
// Numeric values of the SDK enumerations match librealsense2's rs2_* enums so
// the cgo binding can convert them with a plain cast.
package kind

import (
	"fmt"
	"strings"
)

// Stream identifies a data channel of a sensor (rs2_stream).
type Stream int

const (
	StreamAny Stream = iota
	StreamDepth
	StreamColor
	StreamInfrared
	StreamFisheye
	StreamGyro
	StreamAccel
	StreamGpio
	StreamPose
	StreamConfidence
)

var streamNames = map[Stream]string{
	StreamAny:        "any",
	StreamDepth:      "depth",
	StreamColor:      "color",
	StreamInfrared:   "infrared",
	StreamFisheye:    "fisheye",
	StreamGyro:       "gyro",
	StreamAccel:      "accel",
	StreamGpio:       "gpio",
	StreamPose:       "pose",
	StreamConfidence: "confidence",
}

func (s Stream) String() string {
	if n, ok := streamNames[s]; ok {
		return n
	}
	return fmt.Sprintf("stream(%d)", int(s))
}

// IsVideo reports whether frames of the stream are 2-D images.
func (s Stream) IsVideo() bool {
	switch s {
	case StreamDepth, StreamColor, StreamInfrared, StreamFisheye, StreamConfidence:
		return true
	}
	return false
}

// IsMotion reports whether the stream carries IMU samples.
func (s Stream) IsMotion() bool {
	return s == StreamGyro || s == StreamAccel
}

// ParseStream converts a stream name as printed by String back to a Stream.
func ParseStream(name string) (Stream, error) {
	for s, n := range streamNames {
		if n == name {
			return s, nil
		}
	}
	return StreamAny, fmt.Errorf("unknown stream %q", name)
}

// Format is the pixel or sample encoding of a stream (rs2_format).
type Format int

const (
	FormatAny Format = iota
	FormatZ16
	FormatDisparity16
	FormatXYZ32F
	FormatYUYV
	FormatRGB8
	FormatBGR8
	FormatRGBA8
	FormatBGRA8
	FormatY8
	FormatY16
	FormatRaw10
	FormatRaw16
	FormatRaw8
	FormatUYVY
	FormatMotionRaw
	FormatMotionXYZ32F
	FormatGpioRaw
	Format6DOF
	FormatDisparity32
	FormatY10BPack
	FormatDistance
	FormatMJPEG
	FormatY8I
	FormatY12I
	FormatInzi
	FormatInvi
	FormatW10
	FormatZ16H
	FormatFG
	FormatY411
)

var formatNames = map[Format]string{
	FormatAny:          "any",
	FormatZ16:          "z16",
	FormatDisparity16:  "disparity16",
	FormatXYZ32F:       "xyz32f",
	FormatYUYV:         "yuyv",
	FormatRGB8:         "rgb8",
	FormatBGR8:         "bgr8",
	FormatRGBA8:        "rgba8",
	FormatBGRA8:        "bgra8",
	FormatY8:           "y8",
	FormatY16:          "y16",
	FormatRaw10:        "raw10",
	FormatRaw16:        "raw16",
	FormatRaw8:         "raw8",
	FormatUYVY:         "uyvy",
	FormatMotionRaw:    "motion_raw",
	FormatMotionXYZ32F: "motion_xyz32f",
	FormatGpioRaw:      "gpio_raw",
	Format6DOF:         "6dof",
	FormatDisparity32:  "disparity32",
	FormatY10BPack:     "y10bpack",
	FormatDistance:     "distance",
	FormatMJPEG:        "mjpeg",
	FormatY8I:          "y8i",
	FormatY12I:         "y12i",
	FormatInzi:         "inzi",
	FormatInvi:         "invi",
	FormatW10:          "w10",
	FormatZ16H:         "z16h",
	FormatFG:           "fg",
	FormatY411:         "y411",
}

func (f Format) String() string {
	if n, ok := formatNames[f]; ok {
		return n
	}
	return fmt.Sprintf("format(%d)", int(f))
}

// ParseFormat converts a format name as printed by String back to a Format.
func ParseFormat(name string) (Format, error) {
	for f, n := range formatNames {
		if n == name {
			return f, nil
		}
	}
	return FormatAny, fmt.Errorf("unknown format %q", name)
}

// BytesPerPixel returns the size of one pixel or sample, or 0 when the
// format is packed or compressed and has no fixed per-pixel size.
func (f Format) BytesPerPixel() int {
	switch f {
	case FormatY8, FormatRaw8:
		return 1
	case FormatZ16, FormatDisparity16, FormatYUYV, FormatUYVY, FormatY16, FormatRaw16, FormatZ16H, FormatY8I:
		return 2
	case FormatRGB8, FormatBGR8, FormatY12I:
		return 3
	case FormatRGBA8, FormatBGRA8, FormatDisparity32, FormatDistance:
		return 4
	case FormatXYZ32F, FormatMotionXYZ32F:
		return 12
	}
	return 0
}

// CameraInfo selects a device or sensor info string (rs2_camera_info).
type CameraInfo int

const (
	InfoName CameraInfo = iota
	InfoSerialNumber
	InfoFirmwareVersion
	InfoRecommendedFirmwareVersion
	InfoPhysicalPort
	InfoDebugOpCode
	InfoAdvancedMode
	InfoProductID
	InfoCameraLocked
	InfoUSBTypeDescriptor
	InfoProductLine
	InfoASICSerialNumber
	InfoFirmwareUpdateID
)

var infoNames = map[CameraInfo]string{
	InfoName:                       "name",
	InfoSerialNumber:               "serial_number",
	InfoFirmwareVersion:            "firmware_version",
	InfoRecommendedFirmwareVersion: "recommended_firmware_version",
	InfoPhysicalPort:               "physical_port",
	InfoDebugOpCode:                "debug_op_code",
	InfoAdvancedMode:               "advanced_mode",
	InfoProductID:                  "product_id",
	InfoCameraLocked:               "camera_locked",
	InfoUSBTypeDescriptor:          "usb_type_descriptor",
	InfoProductLine:                "product_line",
	InfoASICSerialNumber:           "asic_serial_number",
	InfoFirmwareUpdateID:           "firmware_update_id",
}

func (c CameraInfo) String() string {
	if n, ok := infoNames[c]; ok {
		return n
	}
	return fmt.Sprintf("info(%d)", int(c))
}

// Option is a sensor setting (rs2_option).
type Option int

const (
	OptionBacklightCompensation Option = iota
	OptionBrightness
	OptionContrast
	OptionExposure
	OptionGain
	OptionGamma
	OptionHue
	OptionSaturation
	OptionSharpness
	OptionWhiteBalance
	OptionEnableAutoExposure
	OptionEnableAutoWhiteBalance
	OptionVisualPreset
	OptionLaserPower
	OptionAccuracy
	OptionMotionRange
	OptionFilterOption
	OptionConfidenceThreshold
	OptionEmitterEnabled
	OptionFramesQueueSize
	OptionTotalFrameDrops
	OptionAutoExposureMode
	OptionPowerLineFrequency
	OptionASICTemperature
	OptionErrorPollingEnabled
	OptionProjectorTemperature
	OptionOutputTriggerEnabled
	OptionMotionModuleTemperature
	OptionDepthUnits
)

// OptionCount bounds the options queried when listing a sensor's settings.
const OptionCount = int(OptionDepthUnits) + 1

var optionNames = map[Option]string{
	OptionBacklightCompensation:   "backlight_compensation",
	OptionBrightness:              "brightness",
	OptionContrast:                "contrast",
	OptionExposure:                "exposure",
	OptionGain:                    "gain",
	OptionGamma:                   "gamma",
	OptionHue:                     "hue",
	OptionSaturation:              "saturation",
	OptionSharpness:               "sharpness",
	OptionWhiteBalance:            "white_balance",
	OptionEnableAutoExposure:      "enable_auto_exposure",
	OptionEnableAutoWhiteBalance:  "enable_auto_white_balance",
	OptionVisualPreset:            "visual_preset",
	OptionLaserPower:              "laser_power",
	OptionAccuracy:                "accuracy",
	OptionMotionRange:             "motion_range",
	OptionFilterOption:            "filter_option",
	OptionConfidenceThreshold:     "confidence_threshold",
	OptionEmitterEnabled:          "emitter_enabled",
	OptionFramesQueueSize:         "frames_queue_size",
	OptionTotalFrameDrops:         "total_frame_drops",
	OptionAutoExposureMode:        "auto_exposure_mode",
	OptionPowerLineFrequency:      "power_line_frequency",
	OptionASICTemperature:         "asic_temperature",
	OptionErrorPollingEnabled:     "error_polling_enabled",
	OptionProjectorTemperature:    "projector_temperature",
	OptionOutputTriggerEnabled:    "output_trigger_enabled",
	OptionMotionModuleTemperature: "motion_module_temperature",
	OptionDepthUnits:              "depth_units",
}

func (o Option) String() string {
	if n, ok := optionNames[o]; ok {
		return n
	}
	return fmt.Sprintf("option(%d)", int(o))
}

// ParseOption converts an option name as printed by String back to an Option.
func ParseOption(name string) (Option, error) {
	for o, n := range optionNames {
		if n == name {
			return o, nil
		}
	}
	return 0, fmt.Errorf("unknown option %q", name)
}

// Exception is the SDK's error category (rs2_exception_type).
type Exception int

const (
	ExceptionUnknown Exception = iota
	ExceptionCameraDisconnected
	ExceptionBackend
	ExceptionInvalidValue
	ExceptionWrongAPICallSequence
	ExceptionNotImplemented
	ExceptionDeviceInRecoveryMode
	ExceptionIO
)

var exceptionNames = map[Exception]string{
	ExceptionUnknown:              "unknown",
	ExceptionCameraDisconnected:   "camera_disconnected",
	ExceptionBackend:              "backend",
	ExceptionInvalidValue:         "invalid_value",
	ExceptionWrongAPICallSequence: "wrong_api_call_sequence",
	ExceptionNotImplemented:       "not_implemented",
	ExceptionDeviceInRecoveryMode: "device_in_recovery_mode",
	ExceptionIO:                   "io",
}

func (e Exception) String() string {
	if n, ok := exceptionNames[e]; ok {
		return n
	}
	return fmt.Sprintf("exception(%d)", int(e))
}

// RequiresReconnect reports whether a failure of this category leaves the
// device unusable until it is rebuilt.
func (e Exception) RequiresReconnect() bool {
	return e == ExceptionCameraDisconnected || e == ExceptionIO || e == ExceptionDeviceInRecoveryMode
}

// Distortion is the lens distortion model of a video stream (rs2_distortion).
type Distortion int

const (
	DistortionNone Distortion = iota
	DistortionModifiedBrownConrady
	DistortionInverseBrownConrady
	DistortionFTheta
	DistortionBrownConrady
	DistortionKannalaBrandt4
)

var distortionNames = map[Distortion]string{
	DistortionNone:                 "none",
	DistortionModifiedBrownConrady: "modified_brown_conrady",
	DistortionInverseBrownConrady:  "inverse_brown_conrady",
	DistortionFTheta:               "ftheta",
	DistortionBrownConrady:         "brown_conrady",
	DistortionKannalaBrandt4:       "kannala_brandt4",
}

func (d Distortion) String() string {
	if n, ok := distortionNames[d]; ok {
		return n
	}
	return fmt.Sprintf("distortion(%d)", int(d))
}

// TimestampDomain names the clock a frame timestamp is measured against.
type TimestampDomain int

const (
	DomainHardwareClock TimestampDomain = iota
	DomainSystemTime
	DomainGlobalTime
)

func (d TimestampDomain) String() string {
	switch d {
	case DomainHardwareClock:
		return "hardware_clock"
	case DomainSystemTime:
		return "system_time"
	case DomainGlobalTime:
		return "global_time"
	}
	return fmt.Sprintf("domain(%d)", int(d))
}

// FrameMetadata selects a per-frame metadata attribute (rs2_frame_metadata_value).
type FrameMetadata int

const (
	MetadataFrameCounter FrameMetadata = iota
	MetadataFrameTimestamp
	MetadataSensorTimestamp
	MetadataActualExposure
	MetadataGainLevel
	MetadataAutoExposure
	MetadataWhiteBalance
	MetadataTimeOfArrival
	MetadataTemperature
	MetadataBackendTimestamp
	MetadataActualFPS
)

// Resource is the kind of native object a handle refers to. It decides
// which release routine applies and whether the object is reference counted.
type Resource int

const (
	ResourceContext Resource = iota
	ResourceDeviceList
	ResourceDevice
	ResourceSensorList
	ResourceSensor
	ResourceProfileList
	ResourceConfig
	ResourcePipeline
	ResourcePipelineProfile
	ResourceFrame
	ResourceDeviceHub
)

var resourceNames = map[Resource]string{
	ResourceContext:         "context",
	ResourceDeviceList:      "device_list",
	ResourceDevice:          "device",
	ResourceSensorList:      "sensor_list",
	ResourceSensor:          "sensor",
	ResourceProfileList:     "profile_list",
	ResourceConfig:          "config",
	ResourcePipeline:        "pipeline",
	ResourcePipelineProfile: "pipeline_profile",
	ResourceFrame:           "frame",
	ResourceDeviceHub:       "device_hub",
}

func (r Resource) String() string {
	if n, ok := resourceNames[r]; ok {
		return n
	}
	return fmt.Sprintf("resource(%d)", int(r))
}

// RefCounted reports whether the SDK reference counts objects of this kind
// (add-ref/release) rather than giving them a single owner.
func (r Resource) RefCounted() bool {
	return r == ResourceFrame
}

// ProductLine is a bit mask of device families (RS2_PRODUCT_LINE_*) used to
// filter device queries.
type ProductLine int

const (
	ProductLineNonIntel ProductLine = 0x01
	ProductLineD400     ProductLine = 0x02
	ProductLineSR300    ProductLine = 0x04
	ProductLineL500     ProductLine = 0x08
	ProductLineT200     ProductLine = 0x10

	ProductLineDepth                = ProductLineD400 | ProductLineSR300 | ProductLineL500
	ProductLineTracking             = ProductLineT200
	ProductLineAny      ProductLine = 0xff
)

var productLineNames = map[string]ProductLine{
	"D400":  ProductLineD400,
	"SR300": ProductLineSR300,
	"L500":  ProductLineL500,
	"T200":  ProductLineT200,
}

// ParseProductLine maps a product line info string (e.g. "D400") to its
// mask bit. Unknown lines are ProductLineNonIntel.
func ParseProductLine(s string) ProductLine {
	if p, ok := productLineNames[strings.ToUpper(s)]; ok {
		return p
	}
	return ProductLineNonIntel
}

// In reports whether p is selected by mask.
func (p ProductLine) In(mask ProductLine) bool {
	return p&mask != 0
}
