package camera

import (
	"context"
	"time"

	"github.com/banshee-data/depthcam/internal/kind"
	"github.com/banshee-data/depthcam/internal/native"
)

// hubWaitSlice bounds each native wait so cancellation is noticed promptly.
const hubWaitSlice = 100 * time.Millisecond

// DeviceHub watches a Context for connected devices. Repeated waits hand
// out the connected devices in turn.
type DeviceHub struct {
	ctx *Context
	g   *exclusive
}

// NewDeviceHub creates a hub over the devices of c, including playback
// devices added with AddDevice.
func (c *Context) NewDeviceHub() (*DeviceHub, error) {
	g, err := acquire(c, kind.ResourceDeviceHub, "create device hub", func(api native.API) (native.Handle, *native.Error) {
		return api.CreateDeviceHub(c.h)
	})
	if err != nil {
		return nil, err
	}
	hub := &DeviceHub{ctx: c, g: g}
	releaseOnCollect(hub, g.guard)
	return hub, nil
}

// WaitForDevice blocks until a device is connected and returns it, or
// returns ctx.Err() once ctx is done. The caller closes the device.
func (h *DeviceHub) WaitForDevice(ctx context.Context) (*Device, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		wait := hubWaitSlice
		if dl, ok := ctx.Deadline(); ok {
			wait = min(wait, max(time.Until(dl), 0))
		}
		dev, err := h.tryWait(wait)
		if err != nil || dev != nil {
			return dev, err
		}
	}
}

func (h *DeviceHub) tryWait(wait time.Duration) (*Device, error) {
	var dev *Device
	err := h.g.use(func(hh native.Handle) error {
		if err := h.ctx.retain(); err != nil {
			return err
		}
		defer h.ctx.drop()
		dh, ok, e := h.ctx.api.DeviceHubWaitForDevice(h.ctx.h, hh, uint32(wait.Milliseconds()))
		if err := translate("wait for device", e); err != nil {
			return err
		}
		if !ok {
			return nil
		}
		g, err := acquire(h.ctx, kind.ResourceDevice, "wait for device", func(native.API) (native.Handle, *native.Error) {
			return dh, nil
		})
		if err != nil {
			return err
		}
		dev = newDevice(h.ctx, g)
		return nil
	})
	return dev, err
}

// IsConnected reports whether d is still connected.
func (h *DeviceHub) IsConnected(d *Device) (bool, error) {
	var ok bool
	err := h.g.use(func(hh native.Handle) error {
		return d.res.self.use(func(dh native.Handle) error {
			var e *native.Error
			ok, e = h.ctx.api.DeviceHubIsConnected(hh, dh)
			return translate("device hub is connected", e)
		})
	})
	return ok, err
}

// Close releases the hub. A WaitForDevice in progress finishes its current
// wait first. It is safe to call more than once.
func (h *DeviceHub) Close() error {
	h.g.release()
	return nil
}
