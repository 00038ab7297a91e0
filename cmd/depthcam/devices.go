package main

import (
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/banshee-data/depthcam/internal/camera"
	"github.com/banshee-data/depthcam/internal/kind"
)

// productMask parses the -product-line flag: "any", "depth", "tracking" or
// a product line such as "D400".
func productMask(name string) (kind.ProductLine, error) {
	switch strings.ToLower(name) {
	case "", "any":
		return kind.ProductLineAny, nil
	case "depth":
		return kind.ProductLineDepth, nil
	case "tracking":
		return kind.ProductLineTracking, nil
	}
	p := kind.ParseProductLine(name)
	if p == kind.ProductLineNonIntel && !strings.EqualFold(name, "non-intel") {
		return 0, fmt.Errorf("unknown product line %q", name)
	}
	return p, nil
}

func cmdDevices(cam *camera.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("devices", flag.ContinueOnError)
	profiles := fs.Bool("profiles", true, "List stream profiles")
	options := fs.Bool("options", true, "List sensor options")
	line := fs.String("product-line", "any", "Only list devices of this product line (any, depth, tracking, non-intel, D400, T200, ...)")
	playback := fs.String("playback", "", "Also list the device recorded in this file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	mask, err := productMask(*line)
	if err != nil {
		return err
	}
	if *playback != "" {
		if err := cam.AddDevice(*playback); err != nil {
			return fmt.Errorf("failed to load %s: %w", *playback, err)
		}
		defer cam.RemoveDevice(*playback)
	}

	devices, err := cam.QueryDevicesMask(mask)
	if err != nil {
		return fmt.Errorf("failed to query devices: %w", err)
	}
	defer func() {
		for _, d := range devices {
			d.Close()
		}
	}()
	if len(devices) == 0 {
		fmt.Fprintln(out, "no devices connected")
		return nil
	}

	for i, d := range devices {
		if i > 0 {
			fmt.Fprintln(out)
		}
		if err := describeDevice(out, d, *profiles, *options); err != nil {
			return err
		}
	}
	return nil
}

func describeDevice(out io.Writer, d *camera.Device, profiles, options bool) error {
	fmt.Fprintf(out, "%s  serial=%s firmware=%s\n", d.Name(), d.Serial(), d.FirmwareVersion())

	sensors, err := d.Sensors()
	if err != nil {
		return fmt.Errorf("%s: failed to list sensors: %w", d, err)
	}
	for _, s := range sensors {
		fmt.Fprintf(out, "  sensor %s\n", s.Name())
		if scale, err := s.DepthScale(); err == nil {
			fmt.Fprintf(out, "    depth scale %g m/unit\n", scale)
		}
		if options {
			if err := describeOptions(out, s); err != nil {
				return err
			}
		}
		if profiles {
			ps, err := s.StreamProfiles()
			if err != nil {
				return fmt.Errorf("%s: failed to list profiles: %w", s.Name(), err)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for _, p := range ps {
				def := ""
				if p.IsDefault {
					def = "default"
				}
				fmt.Fprintf(tw, "    %s\t%s\t%dx%d\t%d fps\t%s\n", p.Key(), p.Format, p.Width, p.Height, p.Framerate, def)
			}
			tw.Flush()
		}
	}
	return nil
}

func describeOptions(out io.Writer, s *camera.Sensor) error {
	opts, err := s.Options()
	if err != nil {
		return fmt.Errorf("%s: failed to list options: %w", s.Name(), err)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, o := range opts {
		v, err := s.Option(o)
		if err != nil {
			fmt.Fprintf(tw, "    %s\t(%v)\n", o, err)
			continue
		}
		if r, err := s.OptionRange(o); err == nil {
			fmt.Fprintf(tw, "    %s\t%g\t[%g, %g] step %g\n", o, v, r.Min, r.Max, r.Step)
			continue
		}
		fmt.Fprintf(tw, "    %s\t%g\t\n", o, v)
	}
	return tw.Flush()
}
