package native

import (
	"fmt"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/depthcam/internal/kind"
	"github.com/banshee-data/depthcam/internal/timeutil"
)

// MockProfile is one stream profile offered by a MockSensor.
type MockProfile struct {
	Stream    kind.Stream
	Format    kind.Format
	Index     int
	Width     int
	Height    int
	Framerate int
	IsDefault bool

	// Intrinsics of a video profile. Width and Height are taken from the
	// profile when left zero.
	Intrinsics Intrinsics
	Motion     MotionIntrinsics

	// Fill writes the payload of frame number n. Nil leaves it zeroed.
	Fill func(buf []byte, n uint64)
	// Pose produces the sample of pose frame n.
	Pose func(n uint64) Pose
}

// MockSensor is one sensor of a MockDevice.
type MockSensor struct {
	Name     string
	Profiles []MockProfile
	Options  map[kind.Option]float32
	Ranges   map[kind.Option]OptionRange
	// DepthScale is metres per depth unit. Zero marks a sensor without depth.
	DepthScale float32
	// Origin maps points from this sensor's frame to the device frame. The
	// zero value is the identity.
	Origin Extrinsics
}

// MockDevice describes one simulated camera.
type MockDevice struct {
	Info    map[kind.CameraInfo]string
	Sensors []*MockSensor
}

// Mock is an in-memory SDK. It counts every call, every created and
// released object per resource kind, and every release of an object that
// was already gone. Faults can be scheduled per operation.
//
// Each pipeline buffers at most QueueSize frame sets; when a new set arrives
// at capacity the oldest is released and counted as dropped.
type Mock struct {
	// QueueSize bounds the frame sets buffered per pipeline. Defaults to 1.
	QueueSize int
	// AutoEmit makes a waiting pipeline produce a frame set each frame
	// period instead of relying on Emit.
	AutoEmit bool
	// Clock drives wait deadlines and AutoEmit periods. Defaults to the
	// real clock.
	Clock timeutil.Clock

	mu             sync.Mutex
	next           Handle
	uids           int
	devices        []*mockDevice
	recordings     map[string]*MockDevice
	arrived        chan struct{}
	profiles       map[Handle]*mockProfile
	objects        map[Handle]*mockObject
	created        map[kind.Resource]int
	released       map[kind.Resource]int
	doubleReleases int
	dropped        int
	calls          map[string]int
	faults         map[string]map[int]*Error
}

type mockDevice struct {
	desc         *MockDevice
	serial       string
	disconnected bool
	profiles     map[*MockSensor][]Handle
}

type mockProfile struct {
	data   ProfileData
	desc   *MockProfile
	sensor *MockSensor
	device *mockDevice
}

func (p *mockProfile) size() int {
	bpp := p.data.Format.BytesPerPixel()
	switch {
	case p.data.Stream == kind.StreamPose:
		return 0
	case p.desc.Width*p.desc.Height == 0:
		return bpp
	case bpp == 0:
		return p.desc.Width * p.desc.Height
	}
	return p.desc.Width * p.desc.Height * bpp
}

type mockContext struct {
	playback []*mockPlayback
}

type mockPlayback struct {
	path   string
	device *mockDevice
}

type mockHub struct {
	ctx  *mockContext
	next int
}

type mockConfig struct {
	requests  []StreamRequest
	enableAll bool
	serial    string
}

type mockPipeline struct {
	ctx       *mockContext
	streaming bool
	device    *mockDevice
	active    []Handle
	queue     []Handle
	wake      chan struct{}
	count     uint64
	fps       int
	period    time.Duration
}

func (p *mockPipeline) signal() {
	close(p.wake)
	p.wake = make(chan struct{})
}

type mockFrame struct {
	profile  Handle
	ts       float64
	number   uint64
	fps      int
	data     []byte
	pose     Pose
	children []Handle
}

type mockObject struct {
	res      kind.Resource
	refs     int
	device   *mockDevice
	devices  []*mockDevice
	sensor   *MockSensor
	sensors  []*MockSensor
	profiles []Handle
	config   *mockConfig
	pipe     *mockPipeline
	frame    *mockFrame
	context  *mockContext
	hub      *mockHub
}

var _ API = (*Mock)(nil)

// NewMock returns an empty mock SDK with no devices attached.
func NewMock() *Mock {
	return &Mock{
		profiles:   make(map[Handle]*mockProfile),
		objects:    make(map[Handle]*mockObject),
		created:    make(map[kind.Resource]int),
		released:   make(map[kind.Resource]int),
		calls:      make(map[string]int),
		faults:     make(map[string]map[int]*Error),
		recordings: make(map[string]*MockDevice),
		arrived:    make(chan struct{}),
	}
}

// AddDevice attaches a simulated device and returns its serial number.
// Every (stream, index) pair of a device gets its own unique id, shared by
// all the modes of that stream.
func (m *Mock) AddDevice(d *MockDevice) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	dev := m.instantiate(d)
	m.devices = append(m.devices, dev)
	m.announce()
	return dev.serial
}

// AddRecording registers d as the content of the playback file at path.
// Contexts load it with ContextAddDevice.
func (m *Mock) AddRecording(path string, d *MockDevice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recordings[path] = d
}

func (m *Mock) instantiate(d *MockDevice) *mockDevice {
	dev := &mockDevice{
		desc:     d,
		serial:   d.Info[kind.InfoSerialNumber],
		profiles: make(map[*MockSensor][]Handle),
	}
	ids := make(map[[2]int]int)
	for _, s := range d.Sensors {
		for i := range s.Profiles {
			desc := &s.Profiles[i]
			key := [2]int{int(desc.Stream), desc.Index}
			uid, ok := ids[key]
			if !ok {
				m.uids++
				uid = m.uids
				ids[key] = uid
			}
			m.next++
			h := m.next
			m.profiles[h] = &mockProfile{
				data: ProfileData{
					Stream:    desc.Stream,
					Format:    desc.Format,
					Index:     desc.Index,
					UniqueID:  uid,
					Framerate: desc.Framerate,
					IsDefault: desc.IsDefault,
				},
				desc:   desc,
				sensor: s,
				device: dev,
			}
			dev.profiles[s] = append(dev.profiles[s], h)
		}
	}
	return dev
}

// announce wakes device hubs waiting for a device.
func (m *Mock) announce() {
	close(m.arrived)
	m.arrived = make(chan struct{})
}

// Disconnect marks a device as unplugged. Pipelines streaming from it fail
// their next wait with a camera_disconnected error.
func (m *Mock) Disconnect(serial string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.devices {
		if d.serial == serial {
			d.disconnected = true
		}
	}
	m.signalPipelines(func(d *mockDevice) bool { return d.serial == serial })
}

// Reconnect plugs a disconnected device back in and wakes device hubs.
func (m *Mock) Reconnect(serial string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.devices {
		if d.serial == serial {
			d.disconnected = false
		}
	}
	m.announce()
}

func (m *Mock) signalPipelines(match func(*mockDevice) bool) {
	for _, o := range m.objects {
		if o.res == kind.ResourcePipeline && o.pipe.device != nil && match(o.pipe.device) {
			o.pipe.signal()
		}
	}
}

// FailOn schedules the nth upcoming call of op (1 is the next call) to fail
// with err. A nil err makes constructors return a null handle without an
// error object.
func (m *Mock) FailOn(op string, nth int, err *Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.faults[op] == nil {
		m.faults[op] = make(map[int]*Error)
	}
	m.faults[op][m.calls[op]+nth] = err
}

// Emit delivers one frame set to every streaming pipeline and returns how
// many received one.
func (m *Mock) Emit() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, o := range m.objects {
		if o.res != kind.ResourcePipeline {
			continue
		}
		if p := o.pipe; p.streaming && !p.device.disconnected {
			m.emitLocked(p)
			n++
		}
	}
	return n
}

// Created returns how many objects of kind res were created.
func (m *Mock) Created(res kind.Resource) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.created[res]
}

// Released returns how many objects of kind res were finally released.
func (m *Mock) Released(res kind.Resource) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.released[res]
}

// Live returns how many objects of kind res are still held.
func (m *Mock) Live(res kind.Resource) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.created[res] - m.released[res]
}

// LiveTotal returns how many objects of any kind are still held.
func (m *Mock) LiveTotal() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

// DoubleReleases counts release calls on handles that were already gone.
func (m *Mock) DoubleReleases() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.doubleReleases
}

// Dropped counts frame sets discarded because a queue was full.
func (m *Mock) Dropped() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped
}

// Calls returns how many times op was invoked.
func (m *Mock) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// Queued returns the number of frame sets buffered across pipelines.
func (m *Mock) Queued() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, o := range m.objects {
		if o.res == kind.ResourcePipeline {
			n += len(o.pipe.queue)
		}
	}
	return n
}

func (m *Mock) clock() timeutil.Clock {
	if m.Clock == nil {
		return timeutil.RealClock{}
	}
	return m.Clock
}

func (m *Mock) queueSize() int {
	if m.QueueSize <= 0 {
		return 1
	}
	return m.QueueSize
}

// fail records a call of op and reports whether a fault is due.
func (m *Mock) fail(op string) (*Error, bool) {
	m.calls[op]++
	due, ok := m.faults[op][m.calls[op]]
	if !ok {
		return nil, false
	}
	delete(m.faults[op], m.calls[op])
	return due, true
}

// failErr is fail for entry points that cannot signal a null handle.
func (m *Mock) failErr(op string) *Error {
	err, failed := m.fail(op)
	if !failed {
		return nil
	}
	if err == nil {
		return &Error{Category: kind.ExceptionUnknown, Message: "injected failure", Function: op}
	}
	return err
}

func (m *Mock) newObject(res kind.Resource, o *mockObject) Handle {
	m.next++
	o.res = res
	o.refs = 1
	m.objects[m.next] = o
	m.created[res]++
	return m.next
}

func (m *Mock) release(h Handle, res kind.Resource) {
	o, ok := m.objects[h]
	if !ok || o.res != res {
		m.doubleReleases++
		return
	}
	o.refs--
	if o.refs > 0 {
		return
	}
	delete(m.objects, h)
	m.released[res]++
	if o.frame != nil {
		for _, c := range o.frame.children {
			m.release(c, kind.ResourceFrame)
		}
	}
	if o.pipe != nil && o.pipe.streaming {
		m.stopLocked(o.pipe)
	}
}

func invalid(format string, args ...any) *Error {
	return &Error{Category: kind.ExceptionInvalidValue, Message: fmt.Sprintf(format, args...)}
}

func (m *Mock) lookup(h Handle, res kind.Resource) (*mockObject, *Error) {
	o, ok := m.objects[h]
	if !ok || o.res != res {
		return nil, invalid("null or released %s handle", res)
	}
	return o, nil
}

func (m *Mock) profile(h Handle) (*mockProfile, *Error) {
	p, ok := m.profiles[h]
	if !ok {
		return nil, invalid("unknown stream profile")
	}
	return p, nil
}

func (m *Mock) frame(h Handle) (*mockFrame, *Error) {
	o, err := m.lookup(h, kind.ResourceFrame)
	if err != nil {
		return nil, err
	}
	return o.frame, nil
}

// leaf returns the first member of a composite frame, or the frame itself.
func (m *Mock) leaf(h Handle) (*mockFrame, *Error) {
	f, err := m.frame(h)
	if err != nil {
		return nil, err
	}
	if len(f.children) > 0 {
		return m.frame(f.children[0])
	}
	return f, nil
}

func (m *Mock) CreateContext(apiVersion int) (Handle, *Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, failed := m.fail("CreateContext"); failed {
		return 0, err
	}
	if apiVersion/10000 != APIVersion/10000 {
		return 0, &Error{
			Category: kind.ExceptionInvalidValue,
			Message:  fmt.Sprintf("API version mismatch: library %d, requested %d", APIVersion, apiVersion),
			Function: "rs2_create_context",
		}
	}
	return m.newObject(kind.ResourceContext, &mockObject{context: &mockContext{}}), nil
}

func (m *Mock) DeleteContext(ctx Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release(ctx, kind.ResourceContext)
}

// connected lists the attached devices visible to c, hardware first, then
// the playback devices in load order.
func (m *Mock) connected(c *mockContext) []*mockDevice {
	var devs []*mockDevice
	for _, d := range m.devices {
		if !d.disconnected {
			devs = append(devs, d)
		}
	}
	if c != nil {
		for _, pb := range c.playback {
			devs = append(devs, pb.device)
		}
	}
	return devs
}

func (m *Mock) QueryDevices(ctx Handle) (Handle, *Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, failed := m.fail("QueryDevices"); failed {
		return 0, err
	}
	o, err := m.lookup(ctx, kind.ResourceContext)
	if err != nil {
		return 0, err
	}
	return m.newObject(kind.ResourceDeviceList, &mockObject{devices: m.connected(o.context)}), nil
}

func (m *Mock) QueryDevicesEx(ctx Handle, mask kind.ProductLine) (Handle, *Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, failed := m.fail("QueryDevicesEx"); failed {
		return 0, err
	}
	o, err := m.lookup(ctx, kind.ResourceContext)
	if err != nil {
		return 0, err
	}
	var devs []*mockDevice
	for _, d := range m.connected(o.context) {
		if kind.ParseProductLine(d.desc.Info[kind.InfoProductLine]).In(mask) {
			devs = append(devs, d)
		}
	}
	return m.newObject(kind.ResourceDeviceList, &mockObject{devices: devs}), nil
}

func (m *Mock) ContextAddDevice(ctx Handle, file string) *Error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failErr("ContextAddDevice"); err != nil {
		return err
	}
	o, err := m.lookup(ctx, kind.ResourceContext)
	if err != nil {
		return err
	}
	for _, pb := range o.context.playback {
		if pb.path == file {
			return invalid("File \"%s\" already loaded to context", file)
		}
	}
	d, ok := m.recordings[file]
	if !ok {
		return &Error{Category: kind.ExceptionIO, Message: fmt.Sprintf("Failed to open file %q", file), Function: "rs2_context_add_device"}
	}
	o.context.playback = append(o.context.playback, &mockPlayback{path: file, device: m.instantiate(d)})
	m.announce()
	return nil
}

func (m *Mock) ContextRemoveDevice(ctx Handle, file string) *Error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failErr("ContextRemoveDevice"); err != nil {
		return err
	}
	o, err := m.lookup(ctx, kind.ResourceContext)
	if err != nil {
		return err
	}
	for i, pb := range o.context.playback {
		if pb.path != file {
			continue
		}
		pb.device.disconnected = true
		o.context.playback = append(o.context.playback[:i], o.context.playback[i+1:]...)
		m.signalPipelines(func(d *mockDevice) bool { return d == pb.device })
		return nil
	}
	return invalid("File \"%s\" not loaded to context", file)
}

func (m *Mock) CreateDeviceHub(ctx Handle) (Handle, *Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, failed := m.fail("CreateDeviceHub"); failed {
		return 0, err
	}
	o, err := m.lookup(ctx, kind.ResourceContext)
	if err != nil {
		return 0, err
	}
	return m.newObject(kind.ResourceDeviceHub, &mockObject{hub: &mockHub{ctx: o.context}}), nil
}

func (m *Mock) DeleteDeviceHub(hub Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release(hub, kind.ResourceDeviceHub)
}

// DeviceHubWaitForDevice hands out the connected devices round robin, waiting
// up to the timeout for one to appear.
func (m *Mock) DeviceHubWaitForDevice(ctx, hub Handle, timeoutMillis uint32) (Handle, bool, *Error) {
	m.mu.Lock()
	if err := m.failErr("DeviceHubWaitForDevice"); err != nil {
		m.mu.Unlock()
		return 0, false, err
	}
	clock := m.clock()
	deadline := clock.Now().Add(time.Duration(timeoutMillis) * time.Millisecond)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		if _, err := m.lookup(ctx, kind.ResourceContext); err != nil {
			m.mu.Unlock()
			return 0, false, err
		}
		o, err := m.lookup(hub, kind.ResourceDeviceHub)
		if err != nil {
			m.mu.Unlock()
			return 0, false, err
		}
		if devs := m.connected(o.hub.ctx); len(devs) > 0 {
			d := devs[o.hub.next%len(devs)]
			o.hub.next++
			h := m.newObject(kind.ResourceDevice, &mockObject{device: d})
			m.mu.Unlock()
			return h, true, nil
		}
		remaining := clock.Until(deadline)
		if remaining <= 0 {
			m.mu.Unlock()
			return 0, false, nil
		}
		arrived := m.arrived
		m.mu.Unlock()

		timer := clock.NewTimer(remaining)
		select {
		case <-arrived:
			timer.Stop()
		case <-timer.C():
		}
	}
}

func (m *Mock) DeviceHubIsConnected(hub, dev Handle) (bool, *Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failErr("DeviceHubIsConnected"); err != nil {
		return false, err
	}
	ho, err := m.lookup(hub, kind.ResourceDeviceHub)
	if err != nil {
		return false, err
	}
	do, err := m.lookup(dev, kind.ResourceDevice)
	if err != nil {
		return false, err
	}
	for _, d := range m.connected(ho.hub.ctx) {
		if d == do.device {
			return true, nil
		}
	}
	return false, nil
}

func (m *Mock) DeviceCount(list Handle) (int, *Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failErr("DeviceCount"); err != nil {
		return 0, err
	}
	o, err := m.lookup(list, kind.ResourceDeviceList)
	if err != nil {
		return 0, err
	}
	return len(o.devices), nil
}

func (m *Mock) CreateDevice(list Handle, index int) (Handle, *Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, failed := m.fail("CreateDevice"); failed {
		return 0, err
	}
	o, err := m.lookup(list, kind.ResourceDeviceList)
	if err != nil {
		return 0, err
	}
	if index < 0 || index >= len(o.devices) {
		return 0, invalid("device index %d out of range", index)
	}
	return m.newObject(kind.ResourceDevice, &mockObject{device: o.devices[index]}), nil
}

func (m *Mock) DeleteDeviceList(list Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release(list, kind.ResourceDeviceList)
}

func (m *Mock) DeleteDevice(dev Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release(dev, kind.ResourceDevice)
}

func (m *Mock) SupportsDeviceInfo(dev Handle, info kind.CameraInfo) (bool, *Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failErr("SupportsDeviceInfo"); err != nil {
		return false, err
	}
	o, err := m.lookup(dev, kind.ResourceDevice)
	if err != nil {
		return false, err
	}
	_, ok := o.device.desc.Info[info]
	return ok, nil
}

func (m *Mock) DeviceInfo(dev Handle, info kind.CameraInfo) (string, *Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failErr("DeviceInfo"); err != nil {
		return "", err
	}
	o, err := m.lookup(dev, kind.ResourceDevice)
	if err != nil {
		return "", err
	}
	v, ok := o.device.desc.Info[info]
	if !ok {
		return "", invalid("device does not support %s", info)
	}
	return v, nil
}

func (m *Mock) QuerySensors(dev Handle) (Handle, *Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, failed := m.fail("QuerySensors"); failed {
		return 0, err
	}
	o, err := m.lookup(dev, kind.ResourceDevice)
	if err != nil {
		return 0, err
	}
	if o.device.disconnected {
		return 0, &Error{Category: kind.ExceptionCameraDisconnected, Message: "device disconnected", Function: "rs2_query_sensors"}
	}
	return m.newObject(kind.ResourceSensorList, &mockObject{device: o.device, sensors: o.device.desc.Sensors}), nil
}

func (m *Mock) SensorCount(list Handle) (int, *Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failErr("SensorCount"); err != nil {
		return 0, err
	}
	o, err := m.lookup(list, kind.ResourceSensorList)
	if err != nil {
		return 0, err
	}
	return len(o.sensors), nil
}

func (m *Mock) CreateSensor(list Handle, index int) (Handle, *Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, failed := m.fail("CreateSensor"); failed {
		return 0, err
	}
	o, err := m.lookup(list, kind.ResourceSensorList)
	if err != nil {
		return 0, err
	}
	if index < 0 || index >= len(o.sensors) {
		return 0, invalid("sensor index %d out of range", index)
	}
	return m.newObject(kind.ResourceSensor, &mockObject{device: o.device, sensor: o.sensors[index]}), nil
}

func (m *Mock) DeleteSensorList(list Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release(list, kind.ResourceSensorList)
}

func (m *Mock) DeleteSensor(sensor Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release(sensor, kind.ResourceSensor)
}

func (m *Mock) SupportsSensorInfo(sensor Handle, info kind.CameraInfo) (bool, *Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failErr("SupportsSensorInfo"); err != nil {
		return false, err
	}
	if _, err := m.lookup(sensor, kind.ResourceSensor); err != nil {
		return false, err
	}
	return info == kind.InfoName, nil
}

func (m *Mock) SensorInfo(sensor Handle, info kind.CameraInfo) (string, *Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failErr("SensorInfo"); err != nil {
		return "", err
	}
	o, err := m.lookup(sensor, kind.ResourceSensor)
	if err != nil {
		return "", err
	}
	if info != kind.InfoName {
		return "", invalid("sensor does not support %s", info)
	}
	return o.sensor.Name, nil
}

func (m *Mock) SupportsOption(sensor Handle, opt kind.Option) (bool, *Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failErr("SupportsOption"); err != nil {
		return false, err
	}
	o, err := m.lookup(sensor, kind.ResourceSensor)
	if err != nil {
		return false, err
	}
	_, ok := o.sensor.Options[opt]
	return ok, nil
}

func (m *Mock) GetOption(sensor Handle, opt kind.Option) (float32, *Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failErr("GetOption"); err != nil {
		return 0, err
	}
	o, err := m.lookup(sensor, kind.ResourceSensor)
	if err != nil {
		return 0, err
	}
	v, ok := o.sensor.Options[opt]
	if !ok {
		return 0, invalid("option %s not supported", opt)
	}
	return v, nil
}

func (m *Mock) SetOption(sensor Handle, opt kind.Option, value float32) *Error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failErr("SetOption"); err != nil {
		return err
	}
	o, err := m.lookup(sensor, kind.ResourceSensor)
	if err != nil {
		return err
	}
	if _, ok := o.sensor.Options[opt]; !ok {
		return invalid("option %s not supported", opt)
	}
	if r, ok := o.sensor.Ranges[opt]; ok && (value < r.Min || value > r.Max) {
		return invalid("value %g out of range [%g, %g] for %s", value, r.Min, r.Max, opt)
	}
	o.sensor.Options[opt] = value
	if opt == kind.OptionDepthUnits && o.sensor.DepthScale != 0 {
		o.sensor.DepthScale = value
	}
	return nil
}

func (m *Mock) OptionRange(sensor Handle, opt kind.Option) (OptionRange, *Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failErr("OptionRange"); err != nil {
		return OptionRange{}, err
	}
	o, err := m.lookup(sensor, kind.ResourceSensor)
	if err != nil {
		return OptionRange{}, err
	}
	r, ok := o.sensor.Ranges[opt]
	if !ok {
		return OptionRange{}, invalid("option %s has no range", opt)
	}
	return r, nil
}

func (m *Mock) DepthScale(sensor Handle) (float32, *Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failErr("DepthScale"); err != nil {
		return 0, err
	}
	o, err := m.lookup(sensor, kind.ResourceSensor)
	if err != nil {
		return 0, err
	}
	if o.sensor.DepthScale == 0 {
		return 0, invalid("sensor %q is not a depth sensor", o.sensor.Name)
	}
	return o.sensor.DepthScale, nil
}

func (m *Mock) StreamProfiles(sensor Handle) (Handle, *Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, failed := m.fail("StreamProfiles"); failed {
		return 0, err
	}
	o, err := m.lookup(sensor, kind.ResourceSensor)
	if err != nil {
		return 0, err
	}
	profiles := o.device.profiles[o.sensor]
	return m.newObject(kind.ResourceProfileList, &mockObject{profiles: profiles}), nil
}

func (m *Mock) StreamProfileCount(list Handle) (int, *Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failErr("StreamProfileCount"); err != nil {
		return 0, err
	}
	o, err := m.lookup(list, kind.ResourceProfileList)
	if err != nil {
		return 0, err
	}
	return len(o.profiles), nil
}

func (m *Mock) StreamProfileAt(list Handle, index int) (Handle, *Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, failed := m.fail("StreamProfileAt"); failed {
		return 0, err
	}
	o, err := m.lookup(list, kind.ResourceProfileList)
	if err != nil {
		return 0, err
	}
	if index < 0 || index >= len(o.profiles) {
		return 0, invalid("profile index %d out of range", index)
	}
	return o.profiles[index], nil
}

func (m *Mock) DeleteStreamProfiles(list Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release(list, kind.ResourceProfileList)
}

func (m *Mock) StreamProfileData(profile Handle) (ProfileData, *Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failErr("StreamProfileData"); err != nil {
		return ProfileData{}, err
	}
	p, err := m.profile(profile)
	if err != nil {
		return ProfileData{}, err
	}
	return p.data, nil
}

func (m *Mock) VideoStreamResolution(profile Handle) (int, int, *Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failErr("VideoStreamResolution"); err != nil {
		return 0, 0, err
	}
	p, err := m.profile(profile)
	if err != nil {
		return 0, 0, err
	}
	if !p.data.Stream.IsVideo() {
		return 0, 0, invalid("%s profile is not a video profile", p.data.Stream)
	}
	return p.desc.Width, p.desc.Height, nil
}

func (m *Mock) VideoStreamIntrinsics(profile Handle) (Intrinsics, *Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failErr("VideoStreamIntrinsics"); err != nil {
		return Intrinsics{}, err
	}
	p, err := m.profile(profile)
	if err != nil {
		return Intrinsics{}, err
	}
	if !p.data.Stream.IsVideo() {
		return Intrinsics{}, invalid("%s profile is not a video profile", p.data.Stream)
	}
	in := p.desc.Intrinsics
	if in.Width == 0 && in.Height == 0 {
		in.Width, in.Height = p.desc.Width, p.desc.Height
	}
	return in, nil
}

func (m *Mock) MotionStreamIntrinsics(profile Handle) (MotionIntrinsics, *Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failErr("MotionStreamIntrinsics"); err != nil {
		return MotionIntrinsics{}, err
	}
	p, err := m.profile(profile)
	if err != nil {
		return MotionIntrinsics{}, err
	}
	if !p.data.Stream.IsMotion() {
		return MotionIntrinsics{}, invalid("%s profile is not a motion profile", p.data.Stream)
	}
	return p.desc.Motion, nil
}

func (m *Mock) Extrinsics(from, to Handle) (Extrinsics, *Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failErr("Extrinsics"); err != nil {
		return Extrinsics{}, err
	}
	pf, err := m.profile(from)
	if err != nil {
		return Extrinsics{}, err
	}
	pt, err := m.profile(to)
	if err != nil {
		return Extrinsics{}, err
	}
	if pf.device != pt.device {
		return Extrinsics{}, invalid("profiles belong to different devices")
	}
	if pf.sensor == pt.sensor {
		return IdentityExtrinsics, nil
	}
	return composeExtrinsics(origin(pf.sensor), invertExtrinsics(origin(pt.sensor))), nil
}

func (m *Mock) CreateConfig() (Handle, *Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, failed := m.fail("CreateConfig"); failed {
		return 0, err
	}
	return m.newObject(kind.ResourceConfig, &mockObject{config: &mockConfig{}}), nil
}

func (m *Mock) DeleteConfig(cfg Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release(cfg, kind.ResourceConfig)
}

func (m *Mock) ConfigEnableStream(cfg Handle, req StreamRequest) *Error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failErr("ConfigEnableStream"); err != nil {
		return err
	}
	o, err := m.lookup(cfg, kind.ResourceConfig)
	if err != nil {
		return err
	}
	c := o.config
	for i, r := range c.requests {
		if r.Stream == req.Stream && r.Index == req.Index {
			c.requests[i] = req
			return nil
		}
	}
	c.requests = append(c.requests, req)
	return nil
}

func (m *Mock) ConfigEnableAllStreams(cfg Handle) *Error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failErr("ConfigEnableAllStreams"); err != nil {
		return err
	}
	o, err := m.lookup(cfg, kind.ResourceConfig)
	if err != nil {
		return err
	}
	o.config.enableAll = true
	return nil
}

func (m *Mock) ConfigEnableDevice(cfg Handle, serial string) *Error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failErr("ConfigEnableDevice"); err != nil {
		return err
	}
	o, err := m.lookup(cfg, kind.ResourceConfig)
	if err != nil {
		return err
	}
	o.config.serial = serial
	return nil
}

func (m *Mock) CreatePipeline(ctx Handle) (Handle, *Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, failed := m.fail("CreatePipeline"); failed {
		return 0, err
	}
	o, err := m.lookup(ctx, kind.ResourceContext)
	if err != nil {
		return 0, err
	}
	return m.newObject(kind.ResourcePipeline, &mockObject{pipe: &mockPipeline{ctx: o.context, wake: make(chan struct{})}}), nil
}

func (m *Mock) DeletePipeline(pipe Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release(pipe, kind.ResourcePipeline)
}

// matches reports whether profile p satisfies request r, where -1 index,
// zero sizes and rates, and FormatAny are wildcards.
func matches(p *mockProfile, r StreamRequest) bool {
	switch {
	case r.Stream != kind.StreamAny && p.data.Stream != r.Stream:
		return false
	case r.Index >= 0 && p.data.Index != r.Index:
		return false
	case r.Width > 0 && p.desc.Width != r.Width:
		return false
	case r.Height > 0 && p.desc.Height != r.Height:
		return false
	case r.Format != kind.FormatAny && p.data.Format != r.Format:
		return false
	case r.Framerate > 0 && p.data.Framerate != r.Framerate:
		return false
	}
	return true
}

// fits reports whether p can stream alongside the profiles already chosen.
// Video streams of one sensor share a resolution and frame rate; motion
// streams run at their own rates.
func fits(p *mockProfile, chosen []*mockProfile) bool {
	for _, q := range chosen {
		if q.sensor != p.sensor || !p.data.Stream.IsVideo() || !q.data.Stream.IsVideo() {
			continue
		}
		if q.data.Framerate != p.data.Framerate || q.desc.Width != p.desc.Width || q.desc.Height != p.desc.Height {
			return false
		}
	}
	return true
}

// assign picks one profile per request, backtracking when an early pick
// leaves a later request without a match. It returns the picks, or the
// index of the deepest request that could not be satisfied.
func (m *Mock) assign(ordered []Handle, reqs []StreamRequest, picked []Handle) ([]Handle, int) {
	i := len(picked)
	if i == len(reqs) {
		return picked, -1
	}
	chosen := make([]*mockProfile, len(picked))
	for k, h := range picked {
		chosen[k] = m.profiles[h]
	}
	deepest := i
	for _, h := range ordered {
		p := m.profiles[h]
		if !matches(p, reqs[i]) || !fits(p, chosen) || taken(chosen, p) {
			continue
		}
		out, failed := m.assign(ordered, reqs, append(picked[:i:i], h))
		if failed < 0 {
			return out, -1
		}
		deepest = max(deepest, failed)
	}
	return nil, deepest
}

func taken(chosen []*mockProfile, p *mockProfile) bool {
	for _, q := range chosen {
		if q.data.Stream == p.data.Stream && q.data.Index == p.data.Index {
			return true
		}
	}
	return false
}

func (m *Mock) resolve(ctx *mockContext, c *mockConfig) (*mockDevice, []Handle, *Error) {
	var dev *mockDevice
	for _, d := range m.connected(ctx) {
		if c.serial != "" && d.serial != c.serial {
			continue
		}
		dev = d
		break
	}
	if dev == nil {
		if c.serial != "" {
			return nil, nil, &Error{Category: kind.ExceptionUnknown, Message: fmt.Sprintf("no device with serial %s", c.serial), Function: "rs2_pipeline_start_with_config"}
		}
		return nil, nil, &Error{Category: kind.ExceptionUnknown, Message: "No device connected", Function: "rs2_pipeline_start_with_config"}
	}

	var ordered []Handle
	for _, s := range dev.desc.Sensors {
		ordered = append(ordered, dev.profiles[s]...)
	}

	var active []Handle
	if len(c.requests) == 0 || c.enableAll {
		seen := make(map[[2]int]bool)
		for _, h := range ordered {
			p := m.profiles[h]
			key := [2]int{int(p.data.Stream), p.data.Index}
			if p.data.IsDefault && !seen[key] {
				seen[key] = true
				active = append(active, h)
			}
		}
	}
	if len(c.requests) > 0 {
		picked, failed := m.assign(ordered, c.requests, nil)
		if failed >= 0 {
			r := c.requests[failed]
			return nil, nil, &Error{
				Category: kind.ExceptionInvalidValue,
				Message:  fmt.Sprintf("Couldn't resolve requests: %s %d %dx%d %s@%d", r.Stream, r.Index, r.Width, r.Height, r.Format, r.Framerate),
				Function: "rs2_pipeline_start_with_config",
			}
		}
		active = append(active, picked...)
	}
	if len(active) == 0 {
		return nil, nil, invalid("no streams to start")
	}
	return dev, active, nil
}

func (m *Mock) PipelineStartWithConfig(pipe, cfg Handle) (Handle, *Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, failed := m.fail("PipelineStartWithConfig"); failed {
		return 0, err
	}
	po, err := m.lookup(pipe, kind.ResourcePipeline)
	if err != nil {
		return 0, err
	}
	co, err := m.lookup(cfg, kind.ResourceConfig)
	if err != nil {
		return 0, err
	}
	p := po.pipe
	if p.streaming {
		return 0, &Error{Category: kind.ExceptionWrongAPICallSequence, Message: "start() cannot be called before stop()", Function: "rs2_pipeline_start_with_config"}
	}
	dev, active, err := m.resolve(p.ctx, co.config)
	if err != nil {
		return 0, err
	}

	fps := 0
	for _, h := range active {
		fps = max(fps, m.profiles[h].data.Framerate)
	}
	if fps == 0 {
		fps = 30
	}
	p.streaming = true
	p.device = dev
	p.active = active
	p.count = 0
	p.fps = fps
	p.period = time.Second / time.Duration(fps)
	return m.newObject(kind.ResourcePipelineProfile, &mockObject{device: dev, profiles: append([]Handle(nil), active...)}), nil
}

func (m *Mock) stopLocked(p *mockPipeline) {
	p.streaming = false
	for _, h := range p.queue {
		m.release(h, kind.ResourceFrame)
	}
	p.queue = nil
	p.active = nil
	p.signal()
}

func (m *Mock) PipelineStop(pipe Handle) *Error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failErr("PipelineStop"); err != nil {
		return err
	}
	o, err := m.lookup(pipe, kind.ResourcePipeline)
	if err != nil {
		return err
	}
	if !o.pipe.streaming {
		return &Error{Category: kind.ExceptionWrongAPICallSequence, Message: "stop() cannot be called before start()", Function: "rs2_pipeline_stop"}
	}
	m.stopLocked(o.pipe)
	return nil
}

func (m *Mock) emitLocked(p *mockPipeline) {
	p.count++
	n := p.count
	ts := 1000 + float64(n-1)*1000/float64(p.fps)
	children := make([]Handle, 0, len(p.active))
	for _, h := range p.active {
		prof := m.profiles[h]
		f := &mockFrame{profile: h, ts: ts, number: n, fps: prof.data.Framerate, data: make([]byte, prof.size())}
		if prof.desc.Fill != nil {
			prof.desc.Fill(f.data, n)
		}
		f.pose.Rotation[3] = 1
		if prof.desc.Pose != nil {
			f.pose = prof.desc.Pose(n)
		}
		children = append(children, m.newObject(kind.ResourceFrame, &mockObject{frame: f}))
	}
	set := m.newObject(kind.ResourceFrame, &mockObject{frame: &mockFrame{ts: ts, number: n, fps: p.fps, children: children}})
	if len(p.queue) >= m.queueSize() {
		m.release(p.queue[0], kind.ResourceFrame)
		p.queue = p.queue[1:]
		m.dropped++
	}
	p.queue = append(p.queue, set)
	p.signal()
}

func (m *Mock) ready(p *mockPipeline) *Error {
	if !p.streaming {
		return &Error{Category: kind.ExceptionWrongAPICallSequence, Message: "wait_for_frames cannot be called before start()", Function: "rs2_pipeline_wait_for_frames"}
	}
	if p.device.disconnected {
		return &Error{Category: kind.ExceptionCameraDisconnected, Message: "Frame didn't arrive: device disconnected", Function: "rs2_pipeline_wait_for_frames"}
	}
	return nil
}

func (p *mockPipeline) pop() (Handle, bool) {
	if len(p.queue) == 0 {
		return 0, false
	}
	h := p.queue[0]
	p.queue = p.queue[1:]
	return h, true
}

func (m *Mock) PipelineTryWaitForFrames(pipe Handle, timeoutMillis uint32) (Handle, bool, *Error) {
	m.mu.Lock()
	if err := m.failErr("PipelineTryWaitForFrames"); err != nil {
		m.mu.Unlock()
		return 0, false, err
	}
	clock := m.clock()
	deadline := clock.Now().Add(time.Duration(timeoutMillis) * time.Millisecond)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		o, err := m.lookup(pipe, kind.ResourcePipeline)
		if err != nil {
			m.mu.Unlock()
			return 0, false, err
		}
		p := o.pipe
		if err := m.ready(p); err != nil {
			m.mu.Unlock()
			return 0, false, err
		}
		if h, ok := p.pop(); ok {
			m.mu.Unlock()
			return h, true, nil
		}
		remaining := clock.Until(deadline)
		if remaining <= 0 {
			m.mu.Unlock()
			return 0, false, nil
		}
		wait, emit := remaining, false
		if m.AutoEmit && p.period <= remaining {
			wait, emit = p.period, true
		}
		wake := p.wake
		m.mu.Unlock()

		timer := clock.NewTimer(wait)
		select {
		case <-wake:
			timer.Stop()
		case <-timer.C():
			if emit {
				m.mu.Lock()
				if p.streaming && !p.device.disconnected {
					m.emitLocked(p)
				}
				m.mu.Unlock()
			}
		}
	}
}

func (m *Mock) PipelinePollForFrames(pipe Handle) (Handle, bool, *Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failErr("PipelinePollForFrames"); err != nil {
		return 0, false, err
	}
	o, err := m.lookup(pipe, kind.ResourcePipeline)
	if err != nil {
		return 0, false, err
	}
	if err := m.ready(o.pipe); err != nil {
		return 0, false, err
	}
	h, ok := o.pipe.pop()
	return h, ok, nil
}

func (m *Mock) PipelineProfileStreams(profile Handle) (Handle, *Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, failed := m.fail("PipelineProfileStreams"); failed {
		return 0, err
	}
	o, err := m.lookup(profile, kind.ResourcePipelineProfile)
	if err != nil {
		return 0, err
	}
	return m.newObject(kind.ResourceProfileList, &mockObject{profiles: o.profiles}), nil
}

func (m *Mock) PipelineProfileDevice(profile Handle) (Handle, *Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, failed := m.fail("PipelineProfileDevice"); failed {
		return 0, err
	}
	o, err := m.lookup(profile, kind.ResourcePipelineProfile)
	if err != nil {
		return 0, err
	}
	return m.newObject(kind.ResourceDevice, &mockObject{device: o.device}), nil
}

func (m *Mock) DeletePipelineProfile(profile Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release(profile, kind.ResourcePipelineProfile)
}

func (m *Mock) FrameAddRef(frame Handle) *Error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failErr("FrameAddRef"); err != nil {
		return err
	}
	o, err := m.lookup(frame, kind.ResourceFrame)
	if err != nil {
		return err
	}
	o.refs++
	return nil
}

func (m *Mock) ReleaseFrame(frame Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release(frame, kind.ResourceFrame)
}

func (m *Mock) EmbeddedFramesCount(frame Handle) (int, *Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failErr("EmbeddedFramesCount"); err != nil {
		return 0, err
	}
	f, err := m.frame(frame)
	if err != nil {
		return 0, err
	}
	if f.children == nil {
		return 0, invalid("frame is not a composite frame")
	}
	return len(f.children), nil
}

func (m *Mock) ExtractFrame(composite Handle, index int) (Handle, *Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, failed := m.fail("ExtractFrame"); failed {
		return 0, err
	}
	f, err := m.frame(composite)
	if err != nil {
		return 0, err
	}
	if index < 0 || index >= len(f.children) {
		return 0, invalid("frame index %d out of range", index)
	}
	h := f.children[index]
	m.objects[h].refs++
	return h, nil
}

func (m *Mock) FrameStreamProfile(frame Handle) (Handle, *Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, failed := m.fail("FrameStreamProfile"); failed {
		return 0, err
	}
	f, err := m.leaf(frame)
	if err != nil {
		return 0, err
	}
	return f.profile, nil
}

func (m *Mock) FrameSensor(frame Handle) (Handle, *Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, failed := m.fail("FrameSensor"); failed {
		return 0, err
	}
	f, err := m.leaf(frame)
	if err != nil {
		return 0, err
	}
	p, err := m.profile(f.profile)
	if err != nil {
		return 0, err
	}
	return m.newObject(kind.ResourceSensor, &mockObject{device: p.device, sensor: p.sensor}), nil
}

func (m *Mock) FrameTimestamp(frame Handle) (float64, *Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failErr("FrameTimestamp"); err != nil {
		return 0, err
	}
	f, err := m.frame(frame)
	if err != nil {
		return 0, err
	}
	return f.ts, nil
}

func (m *Mock) FrameTimestampDomain(frame Handle) (kind.TimestampDomain, *Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failErr("FrameTimestampDomain"); err != nil {
		return 0, err
	}
	if _, err := m.frame(frame); err != nil {
		return 0, err
	}
	return kind.DomainHardwareClock, nil
}

func (m *Mock) FrameNumber(frame Handle) (uint64, *Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failErr("FrameNumber"); err != nil {
		return 0, err
	}
	f, err := m.frame(frame)
	if err != nil {
		return 0, err
	}
	return f.number, nil
}

func (m *Mock) FrameDataSize(frame Handle) (int, *Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failErr("FrameDataSize"); err != nil {
		return 0, err
	}
	f, err := m.frame(frame)
	if err != nil {
		return 0, err
	}
	return len(f.data), nil
}

func (m *Mock) FrameData(frame Handle) ([]byte, *Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failErr("FrameData"); err != nil {
		return nil, err
	}
	f, err := m.frame(frame)
	if err != nil {
		return nil, err
	}
	return f.data, nil
}

func (m *Mock) VideoFrameInfo(frame Handle) (VideoInfo, *Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failErr("VideoFrameInfo"); err != nil {
		return VideoInfo{}, err
	}
	f, err := m.frame(frame)
	if err != nil {
		return VideoInfo{}, err
	}
	p, ok := m.profiles[f.profile]
	if !ok || !p.data.Stream.IsVideo() {
		return VideoInfo{}, invalid("Object does not support \"video_frame\" interface")
	}
	bpp := p.data.Format.BytesPerPixel()
	return VideoInfo{
		Width:        p.desc.Width,
		Height:       p.desc.Height,
		Stride:       p.desc.Width * bpp,
		BitsPerPixel: bpp * 8,
	}, nil
}

func (m *Mock) DepthFrameUnits(frame Handle) (float32, *Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failErr("DepthFrameUnits"); err != nil {
		return 0, err
	}
	f, err := m.frame(frame)
	if err != nil {
		return 0, err
	}
	p, ok := m.profiles[f.profile]
	if !ok || p.data.Stream != kind.StreamDepth || p.sensor.DepthScale == 0 {
		return 0, invalid("Object does not support \"depth_frame\" interface")
	}
	return p.sensor.DepthScale, nil
}

func (m *Mock) PoseFrameData(frame Handle) (Pose, *Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failErr("PoseFrameData"); err != nil {
		return Pose{}, err
	}
	f, err := m.frame(frame)
	if err != nil {
		return Pose{}, err
	}
	p, ok := m.profiles[f.profile]
	if !ok || p.data.Stream != kind.StreamPose {
		return Pose{}, invalid("Object does not support \"pose_frame\" interface")
	}
	return f.pose, nil
}

func mockMetadata(md kind.FrameMetadata) bool {
	return md == kind.MetadataFrameCounter || md == kind.MetadataFrameTimestamp || md == kind.MetadataActualFPS
}

func (m *Mock) SupportsFrameMetadata(frame Handle, md kind.FrameMetadata) (bool, *Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failErr("SupportsFrameMetadata"); err != nil {
		return false, err
	}
	if _, err := m.frame(frame); err != nil {
		return false, err
	}
	return mockMetadata(md), nil
}

func (m *Mock) FrameMetadata(frame Handle, md kind.FrameMetadata) (int64, *Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failErr("FrameMetadata"); err != nil {
		return 0, err
	}
	f, err := m.frame(frame)
	if err != nil {
		return 0, err
	}
	switch md {
	case kind.MetadataFrameCounter:
		return int64(f.number), nil
	case kind.MetadataFrameTimestamp:
		return int64(f.ts * 1000), nil
	case kind.MetadataActualFPS:
		return int64(f.fps) * 1000, nil
	}
	return 0, invalid("metadata %d not supported", int(md))
}

func origin(s *MockSensor) Extrinsics {
	if s.Origin == (Extrinsics{}) {
		return IdentityExtrinsics
	}
	return s.Origin
}

func homogeneous(e Extrinsics) *mat.Dense {
	h := mat.NewDense(4, 4, nil)
	for c := 0; c < 3; c++ {
		for r := 0; r < 3; r++ {
			h.Set(r, c, float64(e.Rotation[c*3+r]))
		}
		h.Set(c, 3, float64(e.Translation[c]))
	}
	h.Set(3, 3, 1)
	return h
}

func fromHomogeneous(h mat.Matrix) Extrinsics {
	var e Extrinsics
	for c := 0; c < 3; c++ {
		for r := 0; r < 3; r++ {
			e.Rotation[c*3+r] = float32(h.At(r, c))
		}
		e.Translation[c] = float32(h.At(c, 3))
	}
	return e
}

// composeExtrinsics returns the transform applying a, then b.
func composeExtrinsics(a, b Extrinsics) Extrinsics {
	var out mat.Dense
	out.Mul(homogeneous(b), homogeneous(a))
	return fromHomogeneous(&out)
}

func invertExtrinsics(e Extrinsics) Extrinsics {
	var out mat.Dense
	if err := out.Inverse(homogeneous(e)); err != nil {
		return IdentityExtrinsics
	}
	return fromHomogeneous(&out)
}
