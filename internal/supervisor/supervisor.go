// Package supervisor owns the device connection state machine.
//
// A single loop goroutine holds the connection. Attach/detach events,
// permission decisions, open results and link frames all reach it through
// channels, so state is never mutated concurrently.
package supervisor

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"telemetry-bridge/internal/discovery"
	"telemetry-bridge/internal/display"
	"telemetry-bridge/internal/model"
	"telemetry-bridge/internal/permission"
	"telemetry-bridge/internal/telemetry"
)

// ErrLinkClosed is reported when a link's frame stream ends without a cause
var ErrLinkClosed = errors.New("serial link closed unexpectedly")

// Link is an open serial session owned by the supervisor
type Link interface {
	Device() model.DeviceIdentity
	Frames() <-chan model.RawFrame
	Err() error
	Close() error
}

// Opener opens serial links
type Opener interface {
	Open(ctx context.Context, device model.DeviceIdentity, cfg model.LinkConfig) (Link, error)
}

// Observer is told about transitions and rejected frames. Calls are made
// from the loop goroutine and must not block.
type Observer interface {
	StateChanged(change model.StateChange)
	FrameRejected(device model.DeviceIdentity, frame model.RawFrame, err error)
}

// Deps are the collaborators of a Supervisor
type Deps struct {
	Registry  discovery.Registry
	Selector  discovery.Selector
	Gate      permission.Gate
	Opener    Opener
	Forwarder telemetry.Forwarder
	Display   display.Display
	Observer  Observer
	Logger    *zap.Logger
}

// Options tune a Supervisor
type Options struct {
	LinkConfig model.LinkConfig
	IntakeSize int
}

// DefaultOptions returns the standard options
func DefaultOptions() Options {
	return Options{
		LinkConfig: model.DefaultLinkConfig,
		IntakeSize: 64,
	}
}

// Counters are cumulative supervisor statistics
type Counters struct {
	FramesReceived uint64 `json:"frames_received"`
	FramesDecoded  uint64 `json:"frames_decoded"`
	FramesRejected uint64 `json:"frames_rejected"`
	Transitions    uint64 `json:"transitions"`
	Denials        uint64 `json:"denials"`
	Faults         uint64 `json:"faults"`
}

// Status is a point-in-time view of the supervisor
type Status struct {
	State         model.ConnectionState `json:"state"`
	Device        *model.DeviceIdentity `json:"device,omitempty"`
	Since         time.Time             `json:"since"`
	LastReading   *model.SensorReading  `json:"last_reading,omitempty"`
	LastReadingAt *time.Time            `json:"last_reading_at,omitempty"`
	LastError     string                `json:"last_error,omitempty"`
	Counters      Counters              `json:"counters"`
}

// linkOpened is the result of an off-loop open attempt
type linkOpened struct {
	device  model.DeviceIdentity
	attempt uint64
	link    Link
	err     error
}

// Supervisor drives discovery, permission, link and telemetry
type Supervisor struct {
	registry  discovery.Registry
	selector  discovery.Selector
	gate      permission.Gate
	opener    Opener
	forwarder telemetry.Forwarder
	display   display.Display
	observer  Observer
	logger    *zap.Logger
	opts      Options

	intake chan model.Event
	opened chan linkOpened
	done   chan struct{}
	once   sync.Once

	mu     sync.RWMutex
	status Status
}

// New creates a supervisor in the Disconnected state
func New(deps Deps, opts Options) *Supervisor {
	if opts.IntakeSize <= 0 {
		opts.IntakeSize = DefaultOptions().IntakeSize
	}
	if opts.LinkConfig == (model.LinkConfig{}) {
		opts.LinkConfig = model.DefaultLinkConfig
	}
	if deps.Selector == nil {
		deps.Selector = discovery.FirstDevice{}
	}
	if deps.Forwarder == nil {
		deps.Forwarder = telemetry.MultiForwarder{}
	}
	if deps.Display == nil {
		deps.Display = display.Multi{}
	}
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	return &Supervisor{
		registry:  deps.Registry,
		selector:  deps.Selector,
		gate:      deps.Gate,
		opener:    deps.Opener,
		forwarder: deps.Forwarder,
		display:   deps.Display,
		observer:  deps.Observer,
		logger:    deps.Logger.With(zap.String("component", "supervisor")),
		opts:      opts,
		intake:    make(chan model.Event, opts.IntakeSize),
		opened:    make(chan linkOpened),
		done:      make(chan struct{}),
		status:    Status{State: model.StateDisconnected, Since: time.Now()},
	}
}

// Post hands an event to the loop. It blocks until the event is queued and
// reports false once the supervisor has stopped.
func (s *Supervisor) Post(ev model.Event) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.intake <- ev:
		return true
	case <-s.done:
		return false
	}
}

// Snapshot returns the current status
func (s *Supervisor) Snapshot() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Done is closed when Run returns
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

// Run processes events until ctx is done
func (s *Supervisor) Run(ctx context.Context) error {
	defer s.once.Do(func() { close(s.done) })

	conn := newConnection()
	s.logger.Info("Connection supervisor started",
		zap.String("selection_policy", s.selector.Name()),
		zap.String("link_config", s.opts.LinkConfig.String()),
	)
	s.evaluate(ctx, conn)

	for {
		var frames <-chan model.RawFrame
		if conn.state == model.StateOpen && conn.link != nil {
			frames = conn.link.Frames()
		}

		select {
		case <-ctx.Done():
			s.shutdown(conn)
			return ctx.Err()

		case ev := <-s.intake:
			s.handle(ctx, conn, ev)

		case result := <-s.opened:
			s.handleOpened(ctx, conn, result)

		case frame, ok := <-frames:
			if !ok {
				err := conn.link.Err()
				if err == nil {
					err = ErrLinkClosed
				}
				s.handle(ctx, conn, model.LinkFaulted{Device: conn.device, Err: err})
				continue
			}
			s.handleFrame(conn, frame)
		}
	}
}

// deliver is the permission callback handed to the gate
func (s *Supervisor) deliver(decision model.PermissionDecided) {
	if !s.Post(decision) {
		s.logger.Debug("Permission decision after shutdown", zap.String("device", decision.Device.Handle))
	}
}

// openAsync opens the link off the loop and reports back on s.opened
func (s *Supervisor) openAsync(ctx context.Context, device model.DeviceIdentity, attempt uint64) {
	go func() {
		link, err := s.opener.Open(ctx, device, s.opts.LinkConfig)
		result := linkOpened{device: device, attempt: attempt, link: link, err: err}
		select {
		case s.opened <- result:
		case <-s.done:
			if link != nil {
				_ = link.Close()
			}
		}
	}()
}

func (s *Supervisor) updateStatus(fn func(*Status)) {
	s.mu.Lock()
	fn(&s.status)
	s.mu.Unlock()
}

type nopObserver struct{}

func (nopObserver) StateChanged(model.StateChange)                            {}
func (nopObserver) FrameRejected(model.DeviceIdentity, model.RawFrame, error) {}
