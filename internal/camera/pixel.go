package camera

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/banshee-data/depthcam/internal/kind"
)

// Pixel is one decoded pixel of a VideoFrame. Its concrete type follows the
// frame format.
type Pixel interface {
	pixel()
}

// GrayPixel is a Y8 sample.
type GrayPixel struct{ Y uint8 }

// RawPixel is a Raw8 sample.
type RawPixel struct{ V uint8 }

// Gray16Pixel is a Y16 or Raw16 sample.
type Gray16Pixel struct{ Y uint16 }

// DepthPixel is a raw Z16 depth value; multiply by the frame units for
// metres.
type DepthPixel struct{ Z uint16 }

// DistancePixel is a distance in metres.
type DistancePixel struct{ Metres float32 }

// DisparityPixel is a 32-bit float disparity.
type DisparityPixel struct{ D float32 }

// PointPixel is an XYZ32F vertex in metres.
type PointPixel struct{ X, Y, Z float32 }

// RGBAPixel is a color pixel. A is 255 for formats without alpha.
type RGBAPixel struct{ R, G, B, A uint8 }

// YUVPixel is one pixel of a 4:2:2 frame with the chroma of its pair.
type YUVPixel struct{ Y, U, V uint8 }

func (GrayPixel) pixel()      {}
func (RawPixel) pixel()       {}
func (Gray16Pixel) pixel()    {}
func (DepthPixel) pixel()     {}
func (DistancePixel) pixel()  {}
func (DisparityPixel) pixel() {}
func (PointPixel) pixel()     {}
func (RGBAPixel) pixel()      {}
func (YUVPixel) pixel()       {}

// Pixel decodes the pixel at (x, y).
func (v VideoFrame) Pixel(x, y int) (Pixel, error) {
	if x < 0 || y < 0 || x >= v.video.Width || y >= v.video.Height {
		return nil, fmt.Errorf("pixel (%d,%d) outside %dx%d frame", x, y, v.video.Width, v.video.Height)
	}
	bpp := v.profile.Format.BytesPerPixel()
	if bpp == 0 {
		return nil, fmt.Errorf("pixel of %s: unsupported format", v.profile.Format)
	}
	var p Pixel
	err := v.WithData(func(b []byte) error {
		row := b[y*v.video.Stride : y*v.video.Stride+v.video.Width*bpp]
		var err error
		p, err = decodePixel(v.profile.Format, row, x)
		return err
	})
	return p, err
}

func decodePixel(format kind.Format, row []byte, x int) (Pixel, error) {
	f32 := func(b []byte) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(b)) }
	switch format {
	case kind.FormatY8:
		return GrayPixel{Y: row[x]}, nil
	case kind.FormatRaw8:
		return RawPixel{V: row[x]}, nil
	case kind.FormatY16, kind.FormatRaw16:
		return Gray16Pixel{Y: binary.LittleEndian.Uint16(row[2*x:])}, nil
	case kind.FormatZ16:
		return DepthPixel{Z: binary.LittleEndian.Uint16(row[2*x:])}, nil
	case kind.FormatDistance:
		return DistancePixel{Metres: f32(row[4*x:])}, nil
	case kind.FormatDisparity32:
		return DisparityPixel{D: f32(row[4*x:])}, nil
	case kind.FormatXYZ32F:
		px := row[12*x:]
		return PointPixel{X: f32(px), Y: f32(px[4:]), Z: f32(px[8:])}, nil
	case kind.FormatRGB8, kind.FormatBGR8, kind.FormatRGBA8, kind.FormatBGRA8:
		bpp := format.BytesPerPixel()
		px := row[x*bpp:]
		out := RGBAPixel{R: px[0], G: px[1], B: px[2], A: 255}
		if format == kind.FormatBGR8 || format == kind.FormatBGRA8 {
			out.R, out.B = out.B, out.R
		}
		if bpp == 4 {
			out.A = px[3]
		}
		return out, nil
	case kind.FormatYUYV, kind.FormatUYVY:
		yuv := macropixel(format, row, x&^1)
		return YUVPixel{Y: yuv[x&1], U: yuv[2], V: yuv[3]}, nil
	}
	return nil, fmt.Errorf("pixel of %s: unsupported format", format)
}
