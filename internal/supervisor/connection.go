package supervisor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"telemetry-bridge/internal/discovery"
	"telemetry-bridge/internal/model"
	"telemetry-bridge/internal/telemetry"
	"telemetry-bridge/internal/utils"
)

// connection is the loop-owned state. device is set in every state except
// Disconnected; link only while Open (or Faulted before teardown). attempt
// numbers open calls so a result from an earlier session is never accepted.
type connection struct {
	state   model.ConnectionState
	device  model.DeviceIdentity
	link    Link
	opening bool
	attempt uint64
	denied  map[string]struct{}
}

func newConnection() *connection {
	return &connection{
		state:  model.StateDisconnected,
		denied: make(map[string]struct{}),
	}
}

func (s *Supervisor) handle(ctx context.Context, conn *connection, ev model.Event) {
	switch ev := ev.(type) {
	case model.DeviceAttached:
		s.onAttached(ctx, conn, ev)
	case model.DeviceDetached:
		s.onDetached(ctx, conn, ev)
	case model.PermissionDecided:
		s.onDecision(ctx, conn, ev)
	case model.LinkFaulted:
		s.onLinkFaulted(conn, ev)
	case model.ResetRequested:
		s.onReset(ctx, conn)
	}
}

func (s *Supervisor) onAttached(ctx context.Context, conn *connection, ev model.DeviceAttached) {
	delete(conn.denied, ev.Device.Handle)

	if conn.state != model.StateDisconnected {
		// Evaluated again once the current device is torn down
		s.logger.Debug("Device attached while busy",
			zap.String("device", ev.Device.Handle),
			zap.Stringer("state", conn.state),
		)
		return
	}
	s.evaluate(ctx, conn)
}

func (s *Supervisor) onDetached(ctx context.Context, conn *connection, ev model.DeviceDetached) {
	delete(conn.denied, ev.Device.Handle)

	if conn.state == model.StateDisconnected || !conn.device.Same(ev.Device) {
		return
	}

	switch conn.state {
	case model.StatePermissionPending:
		s.gate.Cancel(conn.device)
		conn.opening = false
	case model.StateOpen, model.StateFaulted:
		s.closeLink(conn)
	}

	s.transition(conn, model.StateDisconnected, model.DeviceIdentity{}, "device detached")
	s.evaluate(ctx, conn)
}

func (s *Supervisor) onDecision(ctx context.Context, conn *connection, ev model.PermissionDecided) {
	if conn.state != model.StatePermissionPending || !conn.device.Same(ev.Device) || conn.opening {
		s.logger.Debug("Ignoring permission decision",
			zap.String("device", ev.Device.Handle),
			zap.Bool("granted", ev.Granted),
			zap.Stringer("state", conn.state),
		)
		return
	}

	if !ev.Granted {
		conn.denied[ev.Device.Handle] = struct{}{}
		s.updateStatus(func(st *Status) { st.Counters.Denials++ })
		s.transition(conn, model.StateDisconnected, model.DeviceIdentity{}, "permission denied")
		s.evaluate(ctx, conn)
		return
	}

	conn.opening = true
	conn.attempt++
	s.openAsync(ctx, conn.device, conn.attempt)
}

func (s *Supervisor) handleOpened(ctx context.Context, conn *connection, result linkOpened) {
	if conn.state != model.StatePermissionPending || !conn.opening ||
		result.attempt != conn.attempt || !conn.device.Same(result.device) {
		if result.link != nil {
			_ = result.link.Close()
		}
		s.logger.Debug("Discarding stale open result",
			zap.String("device", result.device.Handle),
			zap.Uint64("attempt", result.attempt),
		)
		return
	}
	conn.opening = false

	logger := utils.NewDeviceLogger(s.logger, result.device)
	if result.err != nil {
		logger.LogConnection("open", false, result.err)
		s.recordFault(result.err)
		s.transition(conn, model.StateFaulted, conn.device, "open failed: "+result.err.Error())
		return
	}

	logger.LogConnection("open", true, nil)
	conn.link = result.link
	s.transition(conn, model.StateOpen, conn.device, "link opened")
}

func (s *Supervisor) onLinkFaulted(conn *connection, ev model.LinkFaulted) {
	if conn.state != model.StateOpen || !conn.device.Same(ev.Device) {
		return
	}
	utils.NewDeviceLogger(s.logger, conn.device).LogConnection("read", false, ev.Err)
	s.closeLink(conn)
	s.recordFault(ev.Err)

	reason := "link fault"
	if ev.Err != nil {
		reason += ": " + ev.Err.Error()
	}
	s.transition(conn, model.StateFaulted, conn.device, reason)
}

func (s *Supervisor) onReset(ctx context.Context, conn *connection) {
	if conn.state != model.StateFaulted {
		s.logger.Debug("Ignoring reset", zap.Stringer("state", conn.state))
		return
	}
	s.closeLink(conn)
	s.transition(conn, model.StateDisconnected, model.DeviceIdentity{}, "reset requested")
	s.evaluate(ctx, conn)
}

// evaluate looks for a device to connect to. Only runs while Disconnected.
func (s *Supervisor) evaluate(ctx context.Context, conn *connection) {
	if conn.state != model.StateDisconnected {
		return
	}

	devices, err := s.registry.ListDevices(ctx)
	if err != nil {
		s.logger.Warn("Device enumeration failed", zap.Error(err))
		return
	}

	attached := make(map[string]struct{}, len(devices))
	for _, device := range devices {
		attached[device.Handle] = struct{}{}
	}
	for handle := range conn.denied {
		if _, ok := attached[handle]; !ok {
			delete(conn.denied, handle)
		}
	}

	device, ok := s.selector.Select(discovery.Exclude(devices, conn.denied))
	if !ok {
		s.logger.Debug("No eligible device",
			zap.Int("attached", len(devices)),
			zap.Int("denied", len(conn.denied)),
		)
		return
	}

	s.transition(conn, model.StatePermissionPending, device, "device selected")
	s.gate.RequestAccess(ctx, device, s.deliver)
}

func (s *Supervisor) handleFrame(conn *connection, frame model.RawFrame) {
	reading, err := telemetry.Decode(frame.Data)
	if err != nil {
		s.updateStatus(func(st *Status) {
			st.Counters.FramesReceived++
			st.Counters.FramesRejected++
		})
		s.logger.Warn("Rejected frame",
			zap.String("device", conn.device.Handle),
			zap.Uint64("seq", frame.Seq),
			zap.ByteString("frame", frame.Data),
			zap.Error(err),
		)
		s.observer.FrameRejected(conn.device, frame, err)
		return
	}

	now := frame.ReceivedAt
	if now.IsZero() {
		now = time.Now()
	}
	s.updateStatus(func(st *Status) {
		st.Counters.FramesReceived++
		st.Counters.FramesDecoded++
		st.LastReading = &reading
		st.LastReadingAt = &now
	})

	s.display.ShowReading(reading)
	s.forwarder.Submit(frame, reading)
}

// closeLink releases the link; it is never used again afterwards
func (s *Supervisor) closeLink(conn *connection) {
	if conn.link == nil {
		return
	}
	if err := conn.link.Close(); err != nil {
		s.logger.Warn("Failed to close link", zap.String("device", conn.device.Handle), zap.Error(err))
	}
	conn.link = nil
}

func (s *Supervisor) recordFault(err error) {
	s.updateStatus(func(st *Status) {
		st.Counters.Faults++
		if err != nil {
			st.LastError = err.Error()
		}
	})
}

func (s *Supervisor) transition(conn *connection, to model.ConnectionState, device model.DeviceIdentity, reason string) {
	from := conn.state
	subject := conn.device
	if !device.IsZero() {
		subject = device
	}

	conn.state = to
	conn.device = device

	var ref *model.DeviceIdentity
	if !subject.IsZero() {
		d := subject
		ref = &d
	}
	change := model.NewStateChange(from, to, ref, reason)

	s.updateStatus(func(st *Status) {
		st.State = to
		st.Since = change.At
		st.Counters.Transitions++
		if device.IsZero() {
			st.Device = nil
		} else {
			d := device
			st.Device = &d
		}
	})

	s.logger.Info("Connection state changed",
		zap.Stringer("from", from),
		zap.Stringer("to", to),
		zap.String("device", subject.Handle),
		zap.String("reason", reason),
	)
	s.observer.StateChanged(change)
	s.display.ShowText(statusText(to, subject))
}

// statusText is the display line for a connection state
func statusText(state model.ConnectionState, device model.DeviceIdentity) string {
	switch state {
	case model.StatePermissionPending:
		return "Waiting for permission: " + device.Handle
	case model.StateOpen:
		return "Connected: " + device.Handle
	case model.StateFaulted:
		return "Connection fault: " + device.Handle
	default:
		return "Waiting for device"
	}
}

func (s *Supervisor) shutdown(conn *connection) {
	switch conn.state {
	case model.StatePermissionPending:
		s.gate.Cancel(conn.device)
	case model.StateOpen, model.StateFaulted:
		s.closeLink(conn)
	}
	s.logger.Info("Connection supervisor stopped", zap.Stringer("state", conn.state))
}
