// internal/protocol/serial/opener.go
package serial

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"telemetry-bridge/internal/discovery"
	"telemetry-bridge/internal/model"
)

// Options configures links created by an Opener
type Options struct {
	ReadTimeout  time.Duration
	MaxFrameSize int
	FrameBuffer  int
}

// DefaultOptions returns the options used when none are configured
func DefaultOptions() Options {
	return Options{
		MaxFrameSize: 4096,
		FrameBuffer:  64,
	}
}

// PortFunc opens an OS serial port
type PortFunc func(name string, mode *serial.Mode) (serial.Port, error)

// Opener opens serial links and guarantees at most one open link per device
type Opener struct {
	opts   Options
	ports  discovery.Registry
	open   PortFunc
	logger *zap.Logger

	mu     sync.Mutex
	active map[string]*Link
}

// NewOpener creates an opener. ports resolves USB identities without a port
// name to their serial port; it may be nil when every device carries one.
func NewOpener(opts Options, ports discovery.Registry, logger *zap.Logger) *Opener {
	defaults := DefaultOptions()
	if opts.MaxFrameSize <= 0 {
		opts.MaxFrameSize = defaults.MaxFrameSize
	}
	if opts.FrameBuffer <= 0 {
		opts.FrameBuffer = defaults.FrameBuffer
	}
	return &Opener{
		opts:   opts,
		ports:  ports,
		open:   serial.Open,
		logger: logger.With(zap.String("protocol", "serial")),
		active: make(map[string]*Link),
	}
}

// Open opens a link to device with the given framing
func (o *Opener) Open(ctx context.Context, device model.DeviceIdentity, cfg model.LinkConfig) (*Link, error) {
	logger := o.logger.With(zap.String("device", device.Handle), zap.String("vid_pid", device.VIDPID()))

	if cfg != model.DefaultLinkConfig {
		return nil, &OpenError{Kind: DeviceRejectedConfig, Device: device, Err: ErrFramingFixed}
	}
	mode, err := modeFor(cfg)
	if err != nil {
		return nil, &OpenError{Kind: DeviceRejectedConfig, Device: device, Err: err}
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.active[device.Handle]; ok {
		return nil, &OpenError{Kind: ConnectionUnavailable, Device: device, Err: ErrLinkActive}
	}

	portName, err := o.resolvePort(ctx, device)
	if err != nil {
		return nil, &OpenError{Kind: HandleCreationFailed, Device: device, Err: err}
	}

	logger.Info("Opening serial port",
		zap.String("port", portName),
		zap.String("framing", cfg.String()),
	)

	port, err := o.open(portName, mode)
	if err != nil {
		kind := classifyOpenError(err)
		logger.Error("Failed to open serial port", zap.String("kind", string(kind)), zap.Error(err))
		return nil, &OpenError{Kind: kind, Device: device, Err: err}
	}

	if o.opts.ReadTimeout > 0 {
		if err := port.SetReadTimeout(o.opts.ReadTimeout); err != nil {
			_ = port.Close()
			return nil, &OpenError{Kind: HandleCreationFailed, Device: device, Err: fmt.Errorf("set read timeout: %w", err)}
		}
	}

	link := newLink(device, portName, cfg, port, o.opts, logger)
	link.onClose = func() { o.release(device.Handle, link) }
	o.active[device.Handle] = link

	go link.readLoop()

	logger.Info("Serial port opened", zap.String("port", portName))
	return link, nil
}

// ActiveLinks returns the number of open links
func (o *Opener) ActiveLinks() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.active)
}

func (o *Opener) release(handle string, link *Link) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active[handle] == link {
		delete(o.active, handle)
	}
}

// resolvePort finds the serial port backing a device
func (o *Opener) resolvePort(ctx context.Context, device model.DeviceIdentity) (string, error) {
	if device.PortName != "" {
		return device.PortName, nil
	}
	if o.ports == nil {
		return "", ErrNoSerialInterface
	}

	candidates, err := o.ports.ListDevices(ctx)
	if err != nil {
		return "", fmt.Errorf("list serial ports: %w", err)
	}
	for _, candidate := range candidates {
		if candidate.VendorID != device.VendorID || candidate.ProductID != device.ProductID {
			continue
		}
		if device.SerialNumber != "" && candidate.SerialNumber != device.SerialNumber {
			continue
		}
		if candidate.PortName != "" {
			return candidate.PortName, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNoSerialInterface, device.VIDPID())
}

func modeFor(cfg model.LinkConfig) (*serial.Mode, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
	}

	switch cfg.StopBits {
	case 1:
		mode.StopBits = serial.OneStopBit
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("unsupported stop bits: %d", cfg.StopBits)
	}

	switch cfg.Parity {
	case model.ParityNone:
		mode.Parity = serial.NoParity
	case model.ParityOdd:
		mode.Parity = serial.OddParity
	case model.ParityEven:
		mode.Parity = serial.EvenParity
	default:
		return nil, fmt.Errorf("unsupported parity: %q", cfg.Parity)
	}

	if cfg.FlowControl {
		return nil, fmt.Errorf("hardware flow control is not supported")
	}
	return mode, nil
}
