package permission

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"telemetry-bridge/internal/model"
)

// AccessGate grants access when the process can read and write the
// device node, checked off the caller's goroutine.
type AccessGate struct {
	pending *pendingSet
	check   func(path string) error
	logger  *zap.Logger
}

// NewAccessGate creates a gate backed by file system permissions
func NewAccessGate(logger *zap.Logger) *AccessGate {
	return &AccessGate{
		pending: newPendingSet(),
		check:   checkAccess,
		logger:  logger.With(zap.String("component", "permission"), zap.String("mode", "auto")),
	}
}

// RequestAccess implements Gate
func (g *AccessGate) RequestAccess(ctx context.Context, device model.DeviceIdentity, deliver Deliver) {
	if _, added := g.pending.add(device, deliver); !added {
		g.logger.Debug("Permission request already pending", zap.String("device", device.Handle))
		return
	}

	go func() {
		path := NodePath(device)
		err := g.check(path)
		if ctx.Err() != nil {
			g.pending.take(device.Handle)
			return
		}
		if err != nil {
			g.logger.Warn("Device access denied",
				zap.String("device", device.Handle),
				zap.String("path", path),
				zap.Error(err),
			)
		}
		if derr := g.pending.decide(device.Handle, err == nil); derr != nil {
			g.logger.Debug("Discarding decision for cancelled request", zap.String("device", device.Handle))
		}
	}()
}

// Cancel implements Gate
func (g *AccessGate) Cancel(device model.DeviceIdentity) {
	g.pending.take(device.Handle)
}

// NodePath returns the device node whose permissions govern access
func NodePath(device model.DeviceIdentity) string {
	if device.PortName != "" {
		return device.PortName
	}
	var bus, addr int
	if _, err := fmt.Sscanf(device.Handle, "usb:%d:%d", &bus, &addr); err == nil {
		return fmt.Sprintf("/dev/bus/usb/%03d/%03d", bus, addr)
	}
	return ""
}
