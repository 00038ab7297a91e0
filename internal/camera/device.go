package camera

import (
	"fmt"
	"runtime"
	"slices"
	"sync"

	"github.com/banshee-data/depthcam/internal/kind"
	"github.com/banshee-data/depthcam/internal/monitoring"
	"github.com/banshee-data/depthcam/internal/native"
)

// Device is one connected camera. Sensors and profile lists enumerated
// through it are released by Close.
type Device struct {
	ctx *Context
	res *owner

	mu      sync.Mutex
	sensors []*Sensor
}

func newDevice(ctx *Context, g *exclusive) *Device {
	d := &Device{ctx: ctx, res: &owner{self: g.guard}}
	runtime.AddCleanup(d, func(o *owner) { o.release() }, d.res)
	return d
}

// QueryDevices enumerates the connected devices in SDK index order. No
// connected device yields an empty slice. If any device cannot be opened
// the ones already opened are released.
func (c *Context) QueryDevices() ([]*Device, error) {
	return c.queryDevices("query devices", func(api native.API) (native.Handle, *native.Error) {
		return api.QueryDevices(c.h)
	})
}

// QueryDevicesMask enumerates the connected devices whose product line is in
// mask, e.g. kind.ProductLineDepth.
func (c *Context) QueryDevicesMask(mask kind.ProductLine) ([]*Device, error) {
	return c.queryDevices("query devices", func(api native.API) (native.Handle, *native.Error) {
		return api.QueryDevicesEx(c.h, mask)
	})
}

func (c *Context) queryDevices(op string, query func(native.API) (native.Handle, *native.Error)) ([]*Device, error) {
	list, err := acquire(c, kind.ResourceDeviceList, op, query)
	if err != nil {
		return nil, err
	}
	defer list.release()

	var n int
	err = list.use(func(h native.Handle) error {
		var e *native.Error
		n, e = c.api.DeviceCount(h)
		return translate("count devices", e)
	})
	if err != nil {
		return nil, err
	}

	devices := make([]*Device, 0, n)
	for i := 0; i < n; i++ {
		g, err := acquireFrom(list.guard, kind.ResourceDevice, "create device", func(api native.API, lh native.Handle) (native.Handle, *native.Error) {
			return api.CreateDevice(lh, i)
		})
		if err != nil {
			for _, d := range devices {
				d.Close()
			}
			return nil, fmt.Errorf("device %d: %w", i, err)
		}
		devices = append(devices, newDevice(c, g))
	}
	return devices, nil
}

// AddDevice loads a recorded playback file as a device of this context. The
// device shows up in QueryDevices and can be streamed by a pipeline.
func (c *Context) AddDevice(path string) error {
	if err := c.retain(); err != nil {
		return fmt.Errorf("add device %s: %w", path, err)
	}
	defer c.drop()
	if err := translate("add device "+path, c.api.ContextAddDevice(c.h, path)); err != nil {
		return err
	}
	monitoring.Logf("loaded playback device %s", path)
	return nil
}

// RemoveDevice unloads a playback file added with AddDevice. Pipelines
// streaming from it fail with ErrDeviceDisconnected.
func (c *Context) RemoveDevice(path string) error {
	if err := c.retain(); err != nil {
		return fmt.Errorf("remove device %s: %w", path, err)
	}
	defer c.drop()
	return translate("remove device "+path, c.api.ContextRemoveDevice(c.h, path))
}

// FindDevice returns the connected device with the given serial number.
func (c *Context) FindDevice(serial string) (*Device, error) {
	devices, err := c.QueryDevices()
	if err != nil {
		return nil, err
	}
	var found *Device
	for _, d := range devices {
		if found == nil && d.Serial() == serial {
			found = d
			continue
		}
		d.Close()
	}
	if found == nil {
		return nil, fmt.Errorf("serial %s: %w", serial, ErrDeviceNotFound)
	}
	return found, nil
}

// Close releases the device and everything enumerated through it. It is
// safe to call more than once.
func (d *Device) Close() error {
	d.res.release()
	return nil
}

// SupportsInfo reports whether the device provides info.
func (d *Device) SupportsInfo(info kind.CameraInfo) bool {
	var ok bool
	err := d.res.self.use(func(h native.Handle) error {
		var e *native.Error
		ok, e = d.ctx.api.SupportsDeviceInfo(h, info)
		return translate("supports device info", e)
	})
	if err != nil {
		monitoring.Debugf("device info %s: %v", info, err)
	}
	return ok
}

// Info returns a device info string.
func (d *Device) Info(info kind.CameraInfo) (string, error) {
	var s string
	err := d.res.self.use(func(h native.Handle) error {
		var e *native.Error
		s, e = d.ctx.api.DeviceInfo(h, info)
		return translate("get device info "+info.String(), e)
	})
	return s, err
}

func (d *Device) infoOrEmpty(info kind.CameraInfo) string {
	if !d.SupportsInfo(info) {
		return ""
	}
	s, _ := d.Info(info)
	return s
}

// Name returns the product name, or "" when unavailable.
func (d *Device) Name() string { return d.infoOrEmpty(kind.InfoName) }

// Serial returns the serial number, or "" when unavailable.
func (d *Device) Serial() string { return d.infoOrEmpty(kind.InfoSerialNumber) }

// FirmwareVersion returns the running firmware version, or "".
func (d *Device) FirmwareVersion() string { return d.infoOrEmpty(kind.InfoFirmwareVersion) }

// ProductLine returns the product line (e.g. "D400"), or "".
func (d *Device) ProductLine() string { return d.infoOrEmpty(kind.InfoProductLine) }

func (d *Device) String() string {
	return fmt.Sprintf("%s (%s)", d.Name(), d.Serial())
}

// Sensors returns the device's sensors. They are enumerated once per device
// and shared by later calls; all of them are released by Device.Close.
func (d *Device) Sensors() ([]*Sensor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sensors != nil {
		if !d.res.self.alive() {
			return nil, fmt.Errorf("%s: %w", kind.ResourceDevice, ErrReleased)
		}
		return slices.Clone(d.sensors), nil
	}

	list, err := acquireFrom(d.res.self, kind.ResourceSensorList, "query sensors", native.API.QuerySensors)
	if err != nil {
		return nil, err
	}
	defer list.release()

	var n int
	err = list.use(func(h native.Handle) error {
		var e *native.Error
		n, e = d.ctx.api.SensorCount(h)
		return translate("count sensors", e)
	})
	if err != nil {
		return nil, err
	}

	sensors := make([]*Sensor, 0, n)
	for i := 0; i < n; i++ {
		g, err := acquireFrom(list.guard, kind.ResourceSensor, "create sensor", func(api native.API, lh native.Handle) (native.Handle, *native.Error) {
			return api.CreateSensor(lh, i)
		})
		if err == nil {
			err = d.res.deps.add(g.guard)
		}
		if err != nil {
			for _, s := range sensors {
				s.g.release()
			}
			return nil, fmt.Errorf("sensor %d: %w", i, err)
		}
		sensors = append(sensors, &Sensor{ctx: d.ctx, g: g.guard, deps: &d.res.deps})
	}
	d.sensors = sensors
	return slices.Clone(sensors), nil
}

// StreamProfiles enumerates the profiles of every sensor in order.
func (d *Device) StreamProfiles() ([]StreamProfile, error) {
	sensors, err := d.Sensors()
	if err != nil {
		return nil, err
	}
	var out []StreamProfile
	for _, s := range sensors {
		ps, err := s.StreamProfiles()
		if err != nil {
			return nil, err
		}
		out = append(out, ps...)
	}
	return out, nil
}

// Sensor is one sensor of a Device. It stays valid until the device is
// closed. A sensor obtained from a frame is owned by the caller instead and
// released by Close.
type Sensor struct {
	ctx  *Context
	g    *guard
	deps *deps
	own  *owner

	mu       sync.Mutex
	profiles []StreamProfile
	loaded   bool
}

// newStandaloneSensor wraps a sensor that belongs to no Device.
func newStandaloneSensor(ctx *Context, g *exclusive) *Sensor {
	own := &owner{self: g.guard}
	s := &Sensor{ctx: ctx, g: g.guard, deps: &own.deps, own: own}
	runtime.AddCleanup(s, func(o *owner) { o.release() }, own)
	return s
}

// Close releases a sensor obtained from a frame together with its profile
// list. Sensors enumerated through a Device are released by Device.Close and
// ignore it.
func (s *Sensor) Close() error {
	if s.own != nil {
		s.own.release()
	}
	return nil
}

// Name returns the sensor name, or "" when unavailable.
func (s *Sensor) Name() string {
	var name string
	err := s.g.use(func(h native.Handle) error {
		api := s.ctx.api
		ok, e := api.SupportsSensorInfo(h, kind.InfoName)
		if e != nil || !ok {
			return translate("supports sensor info", e)
		}
		name, e = api.SensorInfo(h, kind.InfoName)
		return translate("get sensor info", e)
	})
	if err != nil {
		monitoring.Debugf("sensor name: %v", err)
	}
	return name
}

// StreamProfiles lists the sensor's stream profiles. The list is read once
// and owned by the device; later calls return the same profiles.
func (s *Sensor) StreamProfiles() ([]StreamProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		if !s.g.alive() {
			return nil, fmt.Errorf("%s: %w", kind.ResourceSensor, ErrReleased)
		}
		return slices.Clone(s.profiles), nil
	}
	list, err := acquireFrom(s.g, kind.ResourceProfileList, "get stream profiles", native.API.StreamProfiles)
	if err != nil {
		return nil, err
	}
	if err := s.deps.add(list.guard); err != nil {
		return nil, err
	}
	profiles, err := readProfileList(s.ctx, list.guard)
	if err != nil {
		return nil, err
	}
	s.profiles, s.loaded = profiles, true
	return slices.Clone(profiles), nil
}

// Options lists the options the sensor supports.
func (s *Sensor) Options() ([]kind.Option, error) {
	var opts []kind.Option
	err := s.g.use(func(h native.Handle) error {
		for o := kind.Option(0); int(o) < kind.OptionCount; o++ {
			ok, e := s.ctx.api.SupportsOption(h, o)
			if err := translate("supports option", e); err != nil {
				return err
			}
			if ok {
				opts = append(opts, o)
			}
		}
		return nil
	})
	return opts, err
}

// Option returns the current value of o.
func (s *Sensor) Option(o kind.Option) (float32, error) {
	var v float32
	err := s.g.use(func(h native.Handle) error {
		var e *native.Error
		v, e = s.ctx.api.GetOption(h, o)
		return translate("get option "+o.String(), e)
	})
	return v, err
}

// SetOption writes o. Out-of-range values are rejected by the SDK.
func (s *Sensor) SetOption(o kind.Option, value float32) error {
	return s.g.use(func(h native.Handle) error {
		return translate("set option "+o.String(), s.ctx.api.SetOption(h, o, value))
	})
}

// OptionRange returns the valid range of o.
func (s *Sensor) OptionRange(o kind.Option) (OptionRange, error) {
	var r OptionRange
	err := s.g.use(func(h native.Handle) error {
		var e *native.Error
		r, e = s.ctx.api.OptionRange(h, o)
		return translate("get option range "+o.String(), e)
	})
	return r, err
}

// DepthScale returns the metres per depth unit of a depth sensor.
func (s *Sensor) DepthScale() (float32, error) {
	var v float32
	err := s.g.use(func(h native.Handle) error {
		var e *native.Error
		v, e = s.ctx.api.DepthScale(h)
		return translate("get depth scale", e)
	})
	return v, err
}
