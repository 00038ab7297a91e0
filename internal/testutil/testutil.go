// Package testutil provides shared test utilities and fixtures.
//
// The device fixtures describe simulated cameras for native.Mock so camera,
// processing and command tests exercise the same hardware layout.
package testutil

import (
	"encoding/binary"

	"github.com/banshee-data/depthcam/internal/kind"
	"github.com/banshee-data/depthcam/internal/native"
)

// DepthScale of the fixture depth sensors: one unit is a millimetre.
const DepthScale = 0.001

// BaselineMetres is the offset of the fixture color sensor from the depth
// sensor along x.
const BaselineMetres = 0.015

// DepthAt is the raw value the fixture writes at pixel x of any row: the
// first column is invalid (0) and the rest ramp up from one metre.
func DepthAt(x int) uint16 {
	if x == 0 {
		return 0
	}
	return uint16(1000 + x)
}

// DepthRamp returns a Fill for width-pixel Z16 rows following DepthAt.
func DepthRamp(width int) func([]byte, uint64) {
	return func(buf []byte, _ uint64) {
		for i := 0; i+1 < len(buf); i += 2 {
			binary.LittleEndian.PutUint16(buf[i:], DepthAt((i/2)%width))
		}
	}
}

// ColorGradient returns a Fill for width-pixel RGB8 rows where red is x,
// green is y and blue is the frame number, each modulo 256.
func ColorGradient(width int) func([]byte, uint64) {
	return func(buf []byte, n uint64) {
		for i := 0; i+2 < len(buf); i += 3 {
			px := i / 3
			buf[i] = byte(px % width)
			buf[i+1] = byte(px / width)
			buf[i+2] = byte(n)
		}
	}
}

func pinhole(w, h int, f float32) native.Intrinsics {
	return native.Intrinsics{
		Width:  w,
		Height: h,
		PPX:    float32(w) / 2,
		PPY:    float32(h) / 2,
		FX:     f,
		FY:     f,
		Model:  kind.DistortionNone,
	}
}

// D435 describes a stereo depth camera with an RGB sensor and an IMU. The
// defaults are depth Z16 and color RGB8 at 640x480@30 plus gyro and accel.
func D435(serial string) *native.MockDevice {
	stereo := &native.MockSensor{
		Name:       "Stereo Module",
		DepthScale: DepthScale,
		Options: map[kind.Option]float32{
			kind.OptionEnableAutoExposure: 1,
			kind.OptionExposure:           8500,
			kind.OptionLaserPower:         150,
			kind.OptionEmitterEnabled:     1,
			kind.OptionDepthUnits:         DepthScale,
		},
		Ranges: map[kind.Option]native.OptionRange{
			kind.OptionExposure:   {Min: 1, Max: 165000, Step: 1, Default: 8500},
			kind.OptionLaserPower: {Min: 0, Max: 360, Step: 30, Default: 150},
			kind.OptionDepthUnits: {Min: 0.000001, Max: 0.01, Step: 0.000001, Default: DepthScale},
		},
		Profiles: []native.MockProfile{
			{Stream: kind.StreamDepth, Format: kind.FormatZ16, Width: 640, Height: 480, Framerate: 30, IsDefault: true,
				Intrinsics: pinhole(640, 480, 380), Fill: DepthRamp(640)},
			{Stream: kind.StreamDepth, Format: kind.FormatZ16, Width: 1280, Height: 720, Framerate: 30,
				Intrinsics: pinhole(1280, 720, 640), Fill: DepthRamp(1280)},
			{Stream: kind.StreamDepth, Format: kind.FormatZ16, Width: 848, Height: 480, Framerate: 90,
				Intrinsics: pinhole(848, 480, 420), Fill: DepthRamp(848)},
			{Stream: kind.StreamInfrared, Index: 1, Format: kind.FormatY8, Width: 640, Height: 480, Framerate: 30,
				Intrinsics: pinhole(640, 480, 380)},
			{Stream: kind.StreamInfrared, Index: 2, Format: kind.FormatY8, Width: 640, Height: 480, Framerate: 30,
				Intrinsics: pinhole(640, 480, 380)},
		},
	}
	rgb := &native.MockSensor{
		Name: "RGB Camera",
		Options: map[kind.Option]float32{
			kind.OptionEnableAutoExposure: 1,
			kind.OptionBrightness:         0,
		},
		Ranges: map[kind.Option]native.OptionRange{
			kind.OptionBrightness: {Min: -64, Max: 64, Step: 1, Default: 0},
		},
		Origin: native.Extrinsics{
			Rotation:    native.IdentityExtrinsics.Rotation,
			Translation: [3]float32{BaselineMetres, 0, 0},
		},
		Profiles: []native.MockProfile{
			{Stream: kind.StreamColor, Format: kind.FormatRGB8, Width: 640, Height: 480, Framerate: 30, IsDefault: true,
				Intrinsics: pinhole(640, 480, 615), Fill: ColorGradient(640)},
			{Stream: kind.StreamColor, Format: kind.FormatBGR8, Width: 640, Height: 480, Framerate: 30,
				Intrinsics: pinhole(640, 480, 615)},
			{Stream: kind.StreamColor, Format: kind.FormatYUYV, Width: 640, Height: 480, Framerate: 30,
				Intrinsics: pinhole(640, 480, 615)},
			{Stream: kind.StreamColor, Format: kind.FormatRGB8, Width: 1920, Height: 1080, Framerate: 30,
				Intrinsics: pinhole(1920, 1080, 1380), Fill: ColorGradient(1920)},
		},
	}
	motion := &native.MockSensor{
		Name: "Motion Module",
		Profiles: []native.MockProfile{
			{Stream: kind.StreamGyro, Format: kind.FormatMotionXYZ32F, Framerate: 200, IsDefault: true},
			{Stream: kind.StreamAccel, Format: kind.FormatMotionXYZ32F, Framerate: 100, IsDefault: true},
		},
	}
	return &native.MockDevice{
		Info: map[kind.CameraInfo]string{
			kind.InfoName:            "Intel RealSense D435I",
			kind.InfoSerialNumber:    serial,
			kind.InfoFirmwareVersion: "5.16.0.1",
			kind.InfoProductLine:     "D400",
			kind.InfoProductID:       "0B3A",
		},
		Sensors: []*native.MockSensor{stereo, rgb, motion},
	}
}

// Tracker describes a pose-only tracking camera streaming 6DOF at 200 Hz.
// Pose n is translated n millimetres along z.
func Tracker(serial string) *native.MockDevice {
	return &native.MockDevice{
		Info: map[kind.CameraInfo]string{
			kind.InfoName:         "Intel RealSense T265",
			kind.InfoSerialNumber: serial,
			kind.InfoProductLine:  "T200",
		},
		Sensors: []*native.MockSensor{{
			Name: "Tracking Module",
			Profiles: []native.MockProfile{{
				Stream: kind.StreamPose, Format: kind.Format6DOF, Framerate: 200, IsDefault: true,
				Pose: func(n uint64) native.Pose {
					return native.Pose{
						Translation:       [3]float32{0, 0, float32(n) / 1000},
						Rotation:          [4]float32{0, 0, 0, 1},
						TrackerConfidence: 3,
					}
				},
			}},
		}},
	}
}

// Plane geometry: an 8x6 depth stream looking at a wall PlaneMetres away,
// a color stream with the same intrinsics PlaneBaseline metres to the
// right and a 4x3 infrared stream sharing the depth origin.
const (
	PlaneMetres   = 1.0
	PlaneBaseline = 0.5
)

// Plane describes a small camera for processing tests. Depth is 1000 units
// everywhere except column 0, which has none. Color follows ColorGradient
// and infrared pixel (x, y) is x+10*y.
func Plane(serial string) *native.MockDevice {
	return &native.MockDevice{
		Info: map[kind.CameraInfo]string{
			kind.InfoName:         "Plane Test Camera",
			kind.InfoSerialNumber: serial,
		},
		Sensors: []*native.MockSensor{
			{
				Name:       "Stereo Module",
				DepthScale: DepthScale,
				Profiles: []native.MockProfile{
					{Stream: kind.StreamDepth, Format: kind.FormatZ16, Width: 8, Height: 6, Framerate: 30, IsDefault: true,
						Intrinsics: pinhole(8, 6, 4), Fill: func(buf []byte, _ uint64) {
							for i := 0; i+1 < len(buf); i += 2 {
								if (i/2)%8 != 0 {
									binary.LittleEndian.PutUint16(buf[i:], uint16(PlaneMetres/DepthScale))
								}
							}
						}},
					{Stream: kind.StreamInfrared, Index: 1, Format: kind.FormatY8, Width: 4, Height: 3, Framerate: 30,
						Intrinsics: pinhole(4, 3, 2), Fill: func(buf []byte, _ uint64) {
							for i := range buf {
								buf[i] = byte(i%4 + 10*(i/4))
							}
						}},
				},
			},
			{
				Name: "RGB Camera",
				Origin: native.Extrinsics{
					Rotation:    native.IdentityExtrinsics.Rotation,
					Translation: [3]float32{PlaneBaseline, 0, 0},
				},
				Profiles: []native.MockProfile{
					{Stream: kind.StreamColor, Format: kind.FormatRGB8, Width: 8, Height: 6, Framerate: 30, IsDefault: true,
						Intrinsics: pinhole(8, 6, 4), Fill: ColorGradient(8)},
					{Stream: kind.StreamColor, Format: kind.FormatYUYV, Width: 8, Height: 6, Framerate: 30,
						Intrinsics: pinhole(8, 6, 4)},
				},
			},
		},
	}
}

// NewMock returns a mock SDK with devices attached in order.
func NewMock(devices ...*native.MockDevice) *native.Mock {
	m := native.NewMock()
	for _, d := range devices {
		m.AddDevice(d)
	}
	return m
}
