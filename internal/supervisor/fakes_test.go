package supervisor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"telemetry-bridge/internal/model"
	"telemetry-bridge/internal/permission"
)

var (
	arduino = model.DeviceIdentity{
		Handle:         "/dev/ttyACM0",
		ConnectionType: model.ConnectionTypeSerial,
		VendorID:       model.VendorArduino,
		ProductID:      0x0043,
		PortName:       "/dev/ttyACM0",
	}
	arduino2 = model.DeviceIdentity{
		Handle:         "/dev/ttyACM1",
		ConnectionType: model.ConnectionTypeSerial,
		VendorID:       model.VendorArduino,
		ProductID:      0x0042,
		PortName:       "/dev/ttyACM1",
	}
	ftdi = model.DeviceIdentity{
		Handle:         "/dev/ttyUSB0",
		ConnectionType: model.ConnectionTypeSerial,
		VendorID:       model.VendorFTDI,
		ProductID:      0x6001,
		PortName:       "/dev/ttyUSB0",
	}
)

// fakeRegistry lists whatever the test attached
type fakeRegistry struct {
	mu      sync.Mutex
	devices []model.DeviceIdentity
}

func (r *fakeRegistry) ListDevices(ctx context.Context) ([]model.DeviceIdentity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.DeviceIdentity(nil), r.devices...), nil
}

func (r *fakeRegistry) attach(device model.DeviceIdentity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices = append(r.devices, device)
}

func (r *fakeRegistry) detach(device model.DeviceIdentity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.devices[:0]
	for _, d := range r.devices {
		if !d.Same(device) {
			out = append(out, d)
		}
	}
	r.devices = out
}

// fakeGate holds requests until the test decides them
type fakeGate struct {
	mu        sync.Mutex
	requests  []model.DeviceIdentity
	delivers  map[string]permission.Deliver
	cancelled []model.DeviceIdentity
}

func newFakeGate() *fakeGate {
	return &fakeGate{delivers: make(map[string]permission.Deliver)}
}

func (g *fakeGate) RequestAccess(ctx context.Context, device model.DeviceIdentity, deliver permission.Deliver) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, device)
	g.delivers[device.Handle] = deliver
}

func (g *fakeGate) Cancel(device model.DeviceIdentity) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelled = append(g.cancelled, device)
}

// decide delivers a decision regardless of cancellation, like a late prompt
func (g *fakeGate) decide(device model.DeviceIdentity, granted bool) bool {
	g.mu.Lock()
	deliver, ok := g.delivers[device.Handle]
	g.mu.Unlock()
	if !ok {
		return false
	}
	deliver(model.PermissionDecided{Device: device, Granted: granted})
	return true
}

func (g *fakeGate) requestCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

func (g *fakeGate) cancelCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.cancelled)
}

// fakeLink is driven by the test through its frame channel
type fakeLink struct {
	device     model.DeviceIdentity
	frames     chan model.RawFrame
	closeCalls atomic.Int32

	mu  sync.Mutex
	err error
}

func newFakeLink(device model.DeviceIdentity) *fakeLink {
	return &fakeLink{device: device, frames: make(chan model.RawFrame, 16)}
}

func (l *fakeLink) Device() model.DeviceIdentity  { return l.device }
func (l *fakeLink) Frames() <-chan model.RawFrame { return l.frames }

func (l *fakeLink) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

func (l *fakeLink) Close() error {
	l.closeCalls.Add(1)
	return nil
}

func (l *fakeLink) send(seq uint64, data string) {
	l.frames <- model.RawFrame{Data: []byte(data), Seq: seq}
}

func (l *fakeLink) fail(err error) {
	l.mu.Lock()
	l.err = err
	l.mu.Unlock()
	close(l.frames)
}

// fakeOpener hands out fakeLinks, optionally failing or blocking. Call i
// also waits on holds[i] when present.
type fakeOpener struct {
	mu      sync.Mutex
	opens   []model.DeviceIdentity
	configs []model.LinkConfig
	links   []*fakeLink
	err     error
	block   chan struct{}
	holds   []chan struct{}
}

func (o *fakeOpener) Open(ctx context.Context, device model.DeviceIdentity, cfg model.LinkConfig) (Link, error) {
	o.mu.Lock()
	call := len(o.opens)
	o.opens = append(o.opens, device)
	o.configs = append(o.configs, cfg)
	block, err := o.block, o.err
	var hold chan struct{}
	if call < len(o.holds) {
		hold = o.holds[call]
	}
	o.mu.Unlock()

	if block != nil {
		<-block
	}
	if hold != nil {
		<-hold
	}
	if err != nil {
		return nil, err
	}

	link := newFakeLink(device)
	o.mu.Lock()
	o.links = append(o.links, link)
	o.mu.Unlock()
	return link, nil
}

func (o *fakeOpener) openCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.opens)
}

func (o *fakeOpener) linkCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.links)
}

func (o *fakeOpener) link(i int) *fakeLink {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.links[i]
}

type submission struct {
	frame   model.RawFrame
	reading model.SensorReading
}

type recordingForwarder struct {
	mu          sync.Mutex
	submissions []submission
}

func (f *recordingForwarder) Submit(frame model.RawFrame, reading model.SensorReading) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submissions = append(f.submissions, submission{frame: frame, reading: reading})
}

func (f *recordingForwarder) all() []submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]submission(nil), f.submissions...)
}

type recordingDisplay struct {
	mu       sync.Mutex
	readings []model.SensorReading
	texts    []string
}

func (d *recordingDisplay) ShowReading(reading model.SensorReading) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.readings = append(d.readings, reading)
}

func (d *recordingDisplay) ShowText(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.texts = append(d.texts, text)
}

func (d *recordingDisplay) allTexts() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.texts...)
}

func (d *recordingDisplay) all() []model.SensorReading {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]model.SensorReading(nil), d.readings...)
}

type rejection struct {
	device model.DeviceIdentity
	frame  model.RawFrame
	err    error
}

// recordingObserver captures transitions; onChange runs inside the loop
type recordingObserver struct {
	mu         sync.Mutex
	changes    []model.StateChange
	rejections []rejection
	onChange   func(model.StateChange)
}

func (o *recordingObserver) StateChanged(change model.StateChange) {
	o.mu.Lock()
	o.changes = append(o.changes, change)
	hook := o.onChange
	o.mu.Unlock()
	if hook != nil {
		hook(change)
	}
}

func (o *recordingObserver) FrameRejected(device model.DeviceIdentity, frame model.RawFrame, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rejections = append(o.rejections, rejection{device: device, frame: frame, err: err})
}

func (o *recordingObserver) states() []model.ConnectionState {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]model.ConnectionState, 0, len(o.changes))
	for _, c := range o.changes {
		out = append(out, c.To)
	}
	return out
}

func (o *recordingObserver) rejected() []rejection {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]rejection(nil), o.rejections...)
}

var errIO = errors.New("input/output error")
