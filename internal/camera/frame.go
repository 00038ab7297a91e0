package camera

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"math"
	"runtime"

	"github.com/banshee-data/depthcam/internal/kind"
	"github.com/banshee-data/depthcam/internal/monitoring"
	"github.com/banshee-data/depthcam/internal/native"
)

// Frame is one stream's captured buffer. Its accessors are safe for
// concurrent use; the buffer never changes after capture.
//
// Frames returned by FrameSet.Frame, Clone and WaitForFrames' set own a
// native reference that Close releases. Frames yielded by FrameSet.All are
// borrowed from the set and their Close does nothing.
type Frame struct {
	g        *refCounted // nil for derived frames
	set      *FrameSet   // keeps the owning set reachable for borrowed frames
	borrowed bool

	profile StreamProfile
	ts      float64
	domain  kind.TimestampDomain
	number  uint64
	data    []byte
	video   native.VideoInfo
	units   float32
}

// newFrame reads everything a frame exposes once, while g is held.
func newFrame(g *refCounted) (*Frame, error) {
	f := &Frame{g: g}
	api := g.ctx.api
	err := g.use(func(h native.Handle) error {
		ph, e := api.FrameStreamProfile(h)
		if err := translate("get frame stream profile", e); err != nil {
			return err
		}
		if ph == 0 {
			return nullHandle("get frame stream profile")
		}
		p, err := readProfile(g.ctx, g.guard, ph)
		if err != nil {
			return err
		}
		f.profile = p
		if f.ts, e = api.FrameTimestamp(h); e != nil {
			return translate("get frame timestamp", e)
		}
		if f.domain, e = api.FrameTimestampDomain(h); e != nil {
			return translate("get frame timestamp domain", e)
		}
		if f.number, e = api.FrameNumber(h); e != nil {
			return translate("get frame number", e)
		}
		if f.data, e = api.FrameData(h); e != nil {
			return translate("get frame data", e)
		}
		if f.profile.Stream.IsVideo() {
			if f.video, e = api.VideoFrameInfo(h); e != nil {
				return translate("get video frame info", e)
			}
		}
		if f.profile.Stream == kind.StreamDepth && f.profile.Format == kind.FormatZ16 {
			if f.units, e = api.DepthFrameUnits(h); e != nil {
				return translate("get depth units", e)
			}
		}
		return f.validate()
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// validate is the single length check of the data view.
func (f *Frame) validate() error {
	if !f.profile.Stream.IsVideo() {
		if bpp := f.profile.Format.BytesPerPixel(); bpp > 0 && len(f.data) < bpp {
			return fmt.Errorf("%s frame: %d bytes, want at least %d", f.profile.Key(), len(f.data), bpp)
		}
		return nil
	}
	v := f.video
	bpp := f.profile.Format.BytesPerPixel()
	if bpp == 0 {
		return nil
	}
	if v.Stride < v.Width*bpp {
		return fmt.Errorf("%s frame: stride %d shorter than row of %d bytes", f.profile.Key(), v.Stride, v.Width*bpp)
	}
	if want := v.Stride * v.Height; len(f.data) < want {
		return fmt.Errorf("%s frame: %d bytes, want %d", f.profile.Key(), len(f.data), want)
	}
	return nil
}

// own registers f's native reference for release on garbage collection.
func (f *Frame) own() *Frame {
	releaseOnCollect(f, f.g.guard)
	return f
}

// NewDerivedFrame builds a Go-owned frame holding data in the layout of
// profile, stamped with src's timestamp and frame number. It is used for
// frames computed in Go, such as aligned depth. data must be tightly packed.
func NewDerivedFrame(src *Frame, profile StreamProfile, data []byte) (*Frame, error) {
	bpp := profile.Format.BytesPerPixel()
	if bpp == 0 || !profile.Stream.IsVideo() {
		return nil, fmt.Errorf("derived frame: unsupported %s %s: %w", profile.Key(), profile.Format, ErrWrongStream)
	}
	if want := profile.Width * profile.Height * bpp; len(data) != want {
		return nil, fmt.Errorf("derived frame: %d bytes, want %d", len(data), want)
	}
	f := &Frame{
		profile: profile,
		ts:      src.ts,
		domain:  src.domain,
		number:  src.number,
		data:    data,
		video: native.VideoInfo{
			Width:        profile.Width,
			Height:       profile.Height,
			Stride:       profile.Width * bpp,
			BitsPerPixel: bpp * 8,
		},
	}
	if profile.Stream == kind.StreamDepth {
		f.units = src.units
	}
	return f, nil
}

// Close releases the frame's native reference. Closing a borrowed or
// derived frame, or closing twice, does nothing.
func (f *Frame) Close() error {
	if f.g != nil && !f.borrowed {
		f.g.release()
	}
	return nil
}

// Clone returns an independent frame holding its own native reference.
func (f *Frame) Clone() (*Frame, error) {
	if f.g == nil {
		c := *f
		c.data = append([]byte(nil), f.data...)
		return &c, nil
	}
	g, err := f.g.clone()
	if err != nil {
		return nil, err
	}
	c := *f
	c.g = g
	c.set = nil
	c.borrowed = false
	c.profile.ref.owner = g.guard
	return c.own(), nil
}

// Open reports whether the frame's data is still accessible.
func (f *Frame) Open() bool {
	return f.g == nil || f.g.alive()
}

// Timestamp returns the capture time in milliseconds in TimestampDomain.
func (f *Frame) Timestamp() float64 { return f.ts }

// TimestampDomain names the clock Timestamp is measured against.
func (f *Frame) TimestampDomain() kind.TimestampDomain { return f.domain }

// FrameNumber returns the frame counter.
func (f *Frame) FrameNumber() uint64 { return f.number }

// Profile returns the stream profile the frame belongs to.
func (f *Frame) Profile() StreamProfile { return f.profile }

// Stream returns the frame's stream kind.
func (f *Frame) Stream() kind.Stream { return f.profile.Stream }

// Data returns a read-only view of the frame buffer. The view aliases
// native memory: it is valid only while f is open and reachable. Use
// WithData or CopyData when that cannot be guaranteed.
func (f *Frame) Data() ([]byte, error) {
	if !f.Open() {
		return nil, fmt.Errorf("frame data: %w", ErrReleased)
	}
	return f.data, nil
}

// WithData calls fn with the frame buffer while holding the frame open.
// fn must not retain the slice.
func (f *Frame) WithData(fn func([]byte) error) error {
	defer runtime.KeepAlive(f)
	if f.g == nil {
		return fn(f.data)
	}
	return f.g.use(func(native.Handle) error {
		return fn(f.data)
	})
}

// CopyData returns a copy of the frame buffer.
func (f *Frame) CopyData() ([]byte, error) {
	var out []byte
	err := f.WithData(func(b []byte) error {
		out = append([]byte(nil), b...)
		return nil
	})
	return out, err
}

// SupportsMetadata reports whether the frame carries md.
func (f *Frame) SupportsMetadata(md kind.FrameMetadata) bool {
	if f.g == nil {
		return false
	}
	var ok bool
	err := f.g.use(func(h native.Handle) error {
		var e *native.Error
		ok, e = f.g.ctx.api.SupportsFrameMetadata(h, md)
		return translate("supports frame metadata", e)
	})
	if err != nil {
		monitoring.Debugf("frame metadata %d: %v", int(md), err)
	}
	return ok
}

// Metadata returns a per-frame metadata value.
func (f *Frame) Metadata(md kind.FrameMetadata) (int64, error) {
	if f.g == nil {
		return 0, fmt.Errorf("metadata of derived frame: %w", ErrReleased)
	}
	var v int64
	err := f.g.use(func(h native.Handle) error {
		var e *native.Error
		v, e = f.g.ctx.api.FrameMetadata(h, md)
		return translate("get frame metadata", e)
	})
	return v, err
}

// Sensor returns the sensor that produced the frame. The caller owns it and
// releases it with Close. Derived frames have no sensor.
func (f *Frame) Sensor() (*Sensor, error) {
	if f.g == nil {
		return nil, fmt.Errorf("sensor of derived frame: %w", ErrReleased)
	}
	g, err := acquireFrom(f.g.guard, kind.ResourceSensor, "get frame sensor", native.API.FrameSensor)
	if err != nil {
		return nil, err
	}
	return newStandaloneSensor(f.g.ctx, g), nil
}

func (f *Frame) String() string {
	return fmt.Sprintf("%s frame %d @%.3fms", f.profile.Key(), f.number, f.ts)
}

// VideoFrame is a frame of an image stream.
type VideoFrame struct{ *Frame }

// AsVideo returns f as a video frame, or ErrWrongStream.
func (f *Frame) AsVideo() (VideoFrame, error) {
	if !f.profile.Stream.IsVideo() {
		return VideoFrame{}, fmt.Errorf("%s as video: %w", f.profile.Key(), ErrWrongStream)
	}
	return VideoFrame{f}, nil
}

func (v VideoFrame) Width() int        { return v.video.Width }
func (v VideoFrame) Height() int       { return v.video.Height }
func (v VideoFrame) Stride() int       { return v.video.Stride }
func (v VideoFrame) BitsPerPixel() int { return v.video.BitsPerPixel }

// Image copies the frame into an image.Image. Y8 becomes Gray, Z16 and
// Y16 Gray16, RGB8/BGR8/RGBA8/BGRA8 RGBA, YUYV and UYVY a 4:2:2 YCbCr.
func (v VideoFrame) Image() (image.Image, error) {
	var img image.Image
	err := v.WithData(func(b []byte) error {
		var err error
		img, err = decodeImage(v.profile.Format, v.video, b)
		return err
	})
	return img, err
}

func decodeImage(format kind.Format, v native.VideoInfo, b []byte) (image.Image, error) {
	rect := image.Rect(0, 0, v.Width, v.Height)
	switch format {
	case kind.FormatY8:
		img := image.NewGray(rect)
		for y := 0; y < v.Height; y++ {
			copy(img.Pix[y*img.Stride:], b[y*v.Stride:y*v.Stride+v.Width])
		}
		return img, nil
	case kind.FormatZ16, kind.FormatY16:
		img := image.NewGray16(rect)
		for y := 0; y < v.Height; y++ {
			row := b[y*v.Stride:]
			for x := 0; x < v.Width; x++ {
				img.SetGray16(x, y, color.Gray16{Y: binary.LittleEndian.Uint16(row[2*x:])})
			}
		}
		return img, nil
	case kind.FormatRGB8, kind.FormatBGR8, kind.FormatRGBA8, kind.FormatBGRA8:
		bpp := format.BytesPerPixel()
		swap := format == kind.FormatBGR8 || format == kind.FormatBGRA8
		img := image.NewRGBA(rect)
		for y := 0; y < v.Height; y++ {
			row := b[y*v.Stride:]
			for x := 0; x < v.Width; x++ {
				px := row[x*bpp:]
				r, g, bl, a := px[0], px[1], px[2], uint8(255)
				if swap {
					r, bl = bl, r
				}
				if bpp == 4 {
					a = px[3]
				}
				o := img.PixOffset(x, y)
				img.Pix[o], img.Pix[o+1], img.Pix[o+2], img.Pix[o+3] = r, g, bl, a
			}
		}
		return img, nil
	case kind.FormatYUYV, kind.FormatUYVY:
		img := image.NewYCbCr(rect, image.YCbCrSubsampleRatio422)
		for y := 0; y < v.Height; y++ {
			row := b[y*v.Stride : y*v.Stride+v.Width*2]
			for x := 0; x < v.Width; x += 2 {
				yuv := macropixel(format, row, x)
				img.Y[y*img.YStride+x] = yuv[0]
				if x+1 < v.Width {
					img.Y[y*img.YStride+x+1] = yuv[1]
				}
				ci := img.COffset(x, y)
				img.Cb[ci] = yuv[2]
				img.Cr[ci] = yuv[3]
			}
		}
		return img, nil
	}
	return nil, fmt.Errorf("image from %s: unsupported format", format)
}

// macropixel unpacks the 4:2:2 pair starting at even column x as
// [Y0, Y1, U, V]. A trailing odd column has no second half; its Y1 is 0 and
// its V neutral.
func macropixel(format kind.Format, row []byte, x int) [4]uint8 {
	px := row[x*2:]
	var out [4]uint8
	if format == kind.FormatUYVY {
		out[2], out[0] = px[0], px[1]
		out[3] = 128
		if len(px) >= 4 {
			out[3], out[1] = px[2], px[3]
		}
		return out
	}
	out[0], out[2] = px[0], px[1]
	out[3] = 128
	if len(px) >= 4 {
		out[1], out[3] = px[2], px[3]
	}
	return out
}

// DepthFrame is a Z16 depth frame.
type DepthFrame struct{ VideoFrame }

// AsDepth returns f as a depth frame, or ErrWrongStream.
func (f *Frame) AsDepth() (DepthFrame, error) {
	if f.profile.Stream != kind.StreamDepth || f.profile.Format != kind.FormatZ16 {
		return DepthFrame{}, fmt.Errorf("%s %s as depth: %w", f.profile.Key(), f.profile.Format, ErrWrongStream)
	}
	return DepthFrame{VideoFrame{f}}, nil
}

// Units returns the metres per raw depth unit.
func (d DepthFrame) Units() float32 { return d.units }

// Depth returns the raw depth at (x, y), or 0 outside the frame or after
// the frame was closed.
func (d DepthFrame) Depth(x, y int) uint16 {
	if x < 0 || y < 0 || x >= d.video.Width || y >= d.video.Height {
		return 0
	}
	var v uint16
	_ = d.WithData(func(b []byte) error {
		v = binary.LittleEndian.Uint16(b[y*d.video.Stride+2*x:])
		return nil
	})
	return v
}

// Distance returns the depth at (x, y) in metres.
func (d DepthFrame) Distance(x, y int) float32 {
	return float32(d.Depth(x, y)) * d.units
}

// MotionFrame is a gyro or accelerometer sample.
type MotionFrame struct{ *Frame }

// AsMotion returns f as a motion frame, or ErrWrongStream.
func (f *Frame) AsMotion() (MotionFrame, error) {
	if !f.profile.Stream.IsMotion() {
		return MotionFrame{}, fmt.Errorf("%s as motion: %w", f.profile.Key(), ErrWrongStream)
	}
	return MotionFrame{f}, nil
}

// Vector returns the sample: rad/s for gyro, m/s² for accel.
func (m MotionFrame) Vector() ([3]float32, error) {
	var out [3]float32
	err := m.WithData(func(b []byte) error {
		if m.profile.Format != kind.FormatMotionXYZ32F || len(b) < 12 {
			return fmt.Errorf("motion vector from %s: unsupported format", m.profile.Format)
		}
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
		}
		return nil
	})
	return out, err
}

// PoseFrame is a 6-DOF pose sample.
type PoseFrame struct {
	*Frame
	pose Pose
}

// AsPose returns f as a pose frame, or ErrWrongStream.
func (f *Frame) AsPose() (PoseFrame, error) {
	if f.profile.Stream != kind.StreamPose || f.g == nil {
		return PoseFrame{}, fmt.Errorf("%s as pose: %w", f.profile.Key(), ErrWrongStream)
	}
	var p Pose
	err := f.g.use(func(h native.Handle) error {
		var e *native.Error
		p, e = f.g.ctx.api.PoseFrameData(h)
		return translate("get pose data", e)
	})
	if err != nil {
		return PoseFrame{}, err
	}
	return PoseFrame{Frame: f, pose: p}, nil
}

// Pose returns the sample.
func (p PoseFrame) Pose() Pose { return p.pose }
