package processing

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/banshee-data/depthcam/internal/camera"
	"github.com/banshee-data/depthcam/internal/kind"
)

// AlignFrames resamples from into the resolution and viewpoint of to.
//
// Depth is reprojected: each depth pixel is deprojected, moved into the
// target origin and splatted over the target pixels its footprint covers,
// keeping the nearest depth. Other video streams can only be resampled
// between streams sharing an origin; anything else needs depth and fails
// with ErrUnsupportedAlignment, as do motion and pose frames.
//
// The result is a derived frame carrying from's timestamp and frame number
// and a profile with from's stream and format and to's geometry.
func AlignFrames(from *camera.Frame, to camera.StreamProfile) (*camera.Frame, error) {
	src := from.Profile()
	if !src.Stream.IsVideo() || !to.Stream.IsVideo() {
		return nil, fmt.Errorf("align %s to %s: %w", src.Key(), to.Key(), ErrUnsupportedAlignment)
	}
	out := to
	out.Stream, out.Format, out.Index = src.Stream, src.Format, src.Index

	if d, err := from.AsDepth(); err == nil {
		data, err := alignDepth(d, to)
		if err != nil {
			return nil, fmt.Errorf("align %s to %s: %w", src.Key(), to.Key(), err)
		}
		return camera.NewDerivedFrame(from, out, data)
	}

	ex, err := src.ExtrinsicsTo(to)
	if err != nil {
		return nil, fmt.Errorf("align %s to %s: %w", src.Key(), to.Key(), err)
	}
	if !ex.IsIdentity() {
		return nil, fmt.Errorf("align %s to %s: %s has no depth to reproject with: %w", src.Key(), to.Key(), src.Stream, ErrUnsupportedAlignment)
	}
	v, err := from.AsVideo()
	if err != nil {
		return nil, err
	}
	data, err := resample(v, to)
	if err != nil {
		return nil, fmt.Errorf("align %s to %s: %w", src.Key(), to.Key(), err)
	}
	return camera.NewDerivedFrame(from, out, data)
}

func alignDepth(d camera.DepthFrame, to camera.StreamProfile) ([]byte, error) {
	fromIn, err := d.Profile().Intrinsics()
	if err != nil {
		return nil, err
	}
	if err := CanDeproject(fromIn); err != nil {
		return nil, err
	}
	toIn, err := to.Intrinsics()
	if err != nil {
		return nil, err
	}
	ex, err := d.Profile().ExtrinsicsTo(to)
	if err != nil {
		return nil, err
	}

	w, h := d.Width(), d.Height()
	tw, th := toIn.Width, toIn.Height
	units := d.Units()
	stride := d.Stride()
	out := make([]uint16, tw*th)
	err = d.WithData(func(b []byte) error {
		for y := 0; y < h; y++ {
			row := b[y*stride:]
			for x := 0; x < w; x++ {
				raw := binary.LittleEndian.Uint16(row[2*x:])
				if raw == 0 {
					continue
				}
				z := float32(raw) * units
				// Footprint of the pixel: its top-left and bottom-right corners.
				p0 := Project(toIn, ex.Transform(Deproject(fromIn, [2]float32{float32(x) - 0.5, float32(y) - 0.5}, z)))
				p1 := Project(toIn, ex.Transform(Deproject(fromIn, [2]float32{float32(x) + 0.5, float32(y) + 0.5}, z)))
				x0, y0 := roundPixel(p0[0]), roundPixel(p0[1])
				x1, y1 := roundPixel(p1[0]), roundPixel(p1[1])
				if x0 < 0 || y0 < 0 || x1 >= tw || y1 >= th {
					continue
				}
				for ty := y0; ty <= y1; ty++ {
					for tx := x0; tx <= x1; tx++ {
						o := &out[ty*tw+tx]
						if *o == 0 || raw < *o {
							*o = raw
						}
					}
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	data := make([]byte, 2*len(out))
	for i, v := range out {
		binary.LittleEndian.PutUint16(data[2*i:], v)
	}
	return data, nil
}

// resample maps every target pixel to the nearest source pixel along the
// same ray. Both streams must share an origin.
func resample(v camera.VideoFrame, to camera.StreamProfile) ([]byte, error) {
	bpp, err := sampleSize(v.Profile().Format)
	if err != nil {
		return nil, err
	}
	fromIn, err := v.Profile().Intrinsics()
	if err != nil {
		return nil, err
	}
	toIn, err := to.Intrinsics()
	if err != nil {
		return nil, err
	}
	if err := CanDeproject(toIn); err != nil {
		return nil, err
	}

	tw, th := toIn.Width, toIn.Height
	out := make([]byte, tw*th*bpp)
	w, h, stride := v.Width(), v.Height(), v.Stride()
	err = v.WithData(func(b []byte) error {
		for ty := 0; ty < th; ty++ {
			for tx := 0; tx < tw; tx++ {
				p := Project(fromIn, Deproject(toIn, [2]float32{float32(tx), float32(ty)}, 1))
				sx, sy := roundPixel(p[0]), roundPixel(p[1])
				if sx < 0 || sy < 0 || sx >= w || sy >= h {
					continue
				}
				copy(out[(ty*tw+tx)*bpp:(ty*tw+tx+1)*bpp], b[sy*stride+sx*bpp:])
			}
		}
		return nil
	})
	return out, err
}

// AlignToDepth maps color into the depth stream's viewpoint: each depth
// pixel takes the color sample its point projects onto. Pixels without
// depth, or whose point falls outside the color frame, stay zero.
func AlignToDepth(color camera.VideoFrame, depth camera.DepthFrame) (*camera.Frame, error) {
	cp, dp := color.Profile(), depth.Profile()
	if cp.Stream == kind.StreamDepth {
		return nil, fmt.Errorf("align %s to depth: %w", cp.Key(), ErrUnsupportedAlignment)
	}
	bpp, err := sampleSize(cp.Format)
	if err != nil {
		return nil, fmt.Errorf("align %s to depth: %w", cp.Key(), err)
	}
	pc, err := ComputePointCloud(depth)
	if err != nil {
		return nil, fmt.Errorf("align %s to depth: %w", cp.Key(), err)
	}
	mapped, err := MapToColor(pc, color)
	if err != nil {
		return nil, fmt.Errorf("align %s to depth: %w", cp.Key(), err)
	}

	cw, ch, stride := color.Width(), color.Height(), color.Stride()
	out := make([]byte, len(pc.Vertices)*bpp)
	err = color.WithData(func(b []byte) error {
		for i := range mapped.Valid() {
			if !mapped.InFrame(i) {
				continue
			}
			t := mapped.TexCoords[i]
			sx := min(int(t[0]*float32(cw)), cw-1)
			sy := min(int(t[1]*float32(ch)), ch-1)
			copy(out[i*bpp:(i+1)*bpp], b[sy*stride+sx*bpp:])
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("align %s to depth: %w", cp.Key(), err)
	}

	profile := dp
	profile.Stream, profile.Format, profile.Index = cp.Stream, cp.Format, cp.Index
	return camera.NewDerivedFrame(color.Frame, profile, out)
}

// sampleSize returns the bytes per pixel of formats that can be resampled
// pixel by pixel.
func sampleSize(f kind.Format) (int, error) {
	switch f {
	case kind.FormatYUYV, kind.FormatUYVY:
		return 0, fmt.Errorf("%s pixels share chroma: %w", f, ErrUnsupportedAlignment)
	}
	bpp := f.BytesPerPixel()
	if bpp == 0 {
		return 0, fmt.Errorf("%s has no fixed pixel size: %w", f, ErrUnsupportedAlignment)
	}
	return bpp, nil
}

func roundPixel(v float32) int {
	return int(math.Floor(float64(v) + 0.5))
}
