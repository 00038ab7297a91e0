package processing

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/depthcam/internal/camera"
	"github.com/banshee-data/depthcam/internal/kind"
)

// ErrUnsupportedDistortion is returned when a computation needs the inverse
// of a distortion model that has none.
var ErrUnsupportedDistortion = errors.New("unsupported distortion model")

const (
	eps = 1e-7
	// Fixed-point iterations used to undo Brown-Conrady distortion.
	undistortIterations = 10
	// Newton steps used to invert the Kannala-Brandt polynomial.
	kb4Iterations = 4
)

// CanDeproject reports whether pixels of in can be mapped back to rays.
// Modified Brown-Conrady describes only the forward direction.
func CanDeproject(in camera.Intrinsics) error {
	switch in.Model {
	case kind.DistortionNone, kind.DistortionBrownConrady, kind.DistortionInverseBrownConrady,
		kind.DistortionKannalaBrandt4, kind.DistortionFTheta:
		return nil
	}
	return fmt.Errorf("deproject %s: %w", in.Model, ErrUnsupportedDistortion)
}

// Project maps a point in the stream's coordinate system (metres, z forward)
// to a pixel. The point must have positive z.
//
// Inverse Brown-Conrady projects with the modified Brown-Conrady polynomial,
// as the SDK does.
func Project(in camera.Intrinsics, p [3]float32) [2]float32 {
	x := float64(p[0]) / float64(p[2])
	y := float64(p[1]) / float64(p[2])
	c := coeffs(in)

	switch in.Model {
	case kind.DistortionModifiedBrownConrady, kind.DistortionInverseBrownConrady, kind.DistortionBrownConrady:
		r2 := x*x + y*y
		f := 1 + c[0]*r2 + c[1]*r2*r2 + c[4]*r2*r2*r2
		xf, yf := x*f, y*f
		if in.Model == kind.DistortionBrownConrady {
			// Tangential terms use the undistorted coordinates.
			x, y = xf+2*c[2]*x*y+c[3]*(r2+2*x*x), yf+2*c[3]*x*y+c[2]*(r2+2*y*y)
		} else {
			x, y = xf+2*c[2]*xf*yf+c[3]*(r2+2*xf*xf), yf+2*c[3]*xf*yf+c[2]*(r2+2*yf*yf)
		}
	case kind.DistortionFTheta:
		r := max(math.Hypot(x, y), eps)
		rd := 1 / c[0] * math.Atan(2*r*math.Tan(c[0]/2))
		x, y = x*rd/r, y*rd/r
	case kind.DistortionKannalaBrandt4:
		r := max(math.Hypot(x, y), eps)
		theta := math.Atan(r)
		t2 := theta * theta
		rd := theta * (1 + t2*(c[0]+t2*(c[1]+t2*(c[2]+t2*c[3]))))
		x, y = x*rd/r, y*rd/r
	}

	return [2]float32{
		float32(x*float64(in.FX) + float64(in.PPX)),
		float32(y*float64(in.FY) + float64(in.PPY)),
	}
}

// Deproject maps a pixel and its depth in metres to a point in the stream's
// coordinate system. Models rejected by CanDeproject are treated as
// undistorted.
func Deproject(in camera.Intrinsics, px [2]float32, depth float32) [3]float32 {
	x := (float64(px[0]) - float64(in.PPX)) / float64(in.FX)
	y := (float64(px[1]) - float64(in.PPY)) / float64(in.FY)
	c := coeffs(in)
	xo, yo := x, y

	switch in.Model {
	case kind.DistortionInverseBrownConrady:
		for range undistortIterations {
			r2 := x*x + y*y
			icdist := 1 / (1 + ((c[4]*r2+c[1])*r2+c[0])*r2)
			xq, yq := x/icdist, y/icdist
			dx := 2*c[2]*xq*yq + c[3]*(r2+2*xq*xq)
			dy := 2*c[3]*xq*yq + c[2]*(r2+2*yq*yq)
			x, y = (xo-dx)*icdist, (yo-dy)*icdist
		}
	case kind.DistortionBrownConrady:
		for range undistortIterations {
			r2 := x*x + y*y
			icdist := 1 / (1 + ((c[4]*r2+c[1])*r2+c[0])*r2)
			dx := 2*c[2]*x*y + c[3]*(r2+2*x*x)
			dy := 2*c[3]*x*y + c[2]*(r2+2*y*y)
			x, y = (xo-dx)*icdist, (yo-dy)*icdist
		}
	case kind.DistortionKannalaBrandt4:
		rd := max(math.Hypot(x, y), eps)
		theta := rd
		t2 := theta * theta
		for range kb4Iterations {
			f := theta*(1+t2*(c[0]+t2*(c[1]+t2*(c[2]+t2*c[3])))) - rd
			if math.Abs(f) < eps {
				break
			}
			df := 1 + t2*(3*c[0]+t2*(5*c[1]+t2*(7*c[2]+9*t2*c[3])))
			theta -= f / df
			t2 = theta * theta
		}
		r := math.Tan(theta)
		x, y = x*r/rd, y*r/rd
	case kind.DistortionFTheta:
		rd := max(math.Hypot(x, y), eps)
		r := math.Tan(c[0]*rd) / (2 * math.Tan(c[0]/2))
		x, y = x*r/rd, y*r/rd
	}

	d := float64(depth)
	return [3]float32{float32(d * x), float32(d * y), depth}
}

func coeffs(in camera.Intrinsics) [5]float64 {
	var c [5]float64
	for i, v := range in.Coeffs {
		c[i] = float64(v)
	}
	return c
}
