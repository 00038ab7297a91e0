package testutil

import (
	"encoding/binary"
	"testing"

	"github.com/banshee-data/depthcam/internal/kind"
)

func TestDepthRamp(t *testing.T) {
	t.Parallel()

	buf := make([]byte, 4*2*2)
	DepthRamp(4)(buf, 1)
	want := []uint16{0, 1001, 1002, 1003, 0, 1001, 1002, 1003}
	for i, w := range want {
		if got := binary.LittleEndian.Uint16(buf[2*i:]); got != w {
			t.Errorf("pixel %d = %d, want %d", i, got, w)
		}
	}
}

func TestColorGradient(t *testing.T) {
	t.Parallel()

	buf := make([]byte, 3*3*2)
	ColorGradient(3)(buf, 7)
	// Pixel (2, 1).
	if buf[15] != 2 || buf[16] != 1 || buf[17] != 7 {
		t.Errorf("pixel (2,1) = %v, want [2 1 7]", buf[15:18])
	}
}

func TestD435Layout(t *testing.T) {
	t.Parallel()

	d := D435("123")
	if got := d.Info[kind.InfoSerialNumber]; got != "123" {
		t.Errorf("serial = %q, want 123", got)
	}
	if len(d.Sensors) != 3 {
		t.Fatalf("sensors = %d, want 3", len(d.Sensors))
	}
	defaults := 0
	for _, s := range d.Sensors {
		for _, p := range s.Profiles {
			if p.IsDefault {
				defaults++
			}
		}
	}
	if defaults != 4 {
		t.Errorf("default profiles = %d, want 4", defaults)
	}

	// Each call returns independent option maps.
	D435("a").Sensors[0].Options[kind.OptionLaserPower] = 0
	if D435("b").Sensors[0].Options[kind.OptionLaserPower] != 150 {
		t.Error("fixtures share option state")
	}
}

func TestPlaneLayout(t *testing.T) {
	t.Parallel()

	d := Plane("p")
	depth := d.Sensors[0].Profiles[0]
	buf := make([]byte, depth.Width*depth.Height*2)
	depth.Fill(buf, 1)
	if got := binary.LittleEndian.Uint16(buf[0:]); got != 0 {
		t.Errorf("column 0 depth = %d, want 0", got)
	}
	if got := binary.LittleEndian.Uint16(buf[2*9:]); got != 1000 {
		t.Errorf("pixel (1,1) depth = %d, want 1000", got)
	}

	ir := d.Sensors[0].Profiles[1]
	irBuf := make([]byte, ir.Width*ir.Height)
	ir.Fill(irBuf, 1)
	if irBuf[4*2+3] != 23 {
		t.Errorf("infrared (3,2) = %d, want 23", irBuf[4*2+3])
	}
}
