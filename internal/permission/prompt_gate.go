package permission

import (
	"context"
	"fmt"

	"github.com/gen2brain/beeep"
	"go.uber.org/zap"

	"telemetry-bridge/internal/model"
)

// Notifier alerts the operator that a decision is needed. Notify must not
// block on the operator.
type Notifier interface {
	Notify(title, message string) error
}

// DesktopNotifier raises a desktop notification in the background
type DesktopNotifier struct {
	Logger *zap.Logger
}

// Notify implements Notifier
func (n DesktopNotifier) Notify(title, message string) error {
	go func() {
		if err := beeep.Notify(title, message, ""); err != nil && n.Logger != nil {
			n.Logger.Warn("Desktop notification failed", zap.Error(err))
		}
	}()
	return nil
}

// PromptGate leaves the decision to an operator who answers through Decide
type PromptGate struct {
	pending   *pendingSet
	notifier  Notifier
	onRequest func(PendingRequest)
	logger    *zap.Logger
}

// NewPromptGate creates an operator-driven gate. notifier and onRequest may be nil.
func NewPromptGate(notifier Notifier, onRequest func(PendingRequest), logger *zap.Logger) *PromptGate {
	return &PromptGate{
		pending:   newPendingSet(),
		notifier:  notifier,
		onRequest: onRequest,
		logger:    logger.With(zap.String("component", "permission"), zap.String("mode", "prompt")),
	}
}

// RequestAccess implements Gate
func (g *PromptGate) RequestAccess(_ context.Context, device model.DeviceIdentity, deliver Deliver) {
	req, added := g.pending.add(device, deliver)
	if !added {
		g.logger.Debug("Permission request already pending", zap.String("device", device.Handle))
		return
	}

	g.logger.Info("Waiting for operator decision", zap.String("device", device.Handle))

	if g.notifier != nil {
		msg := fmt.Sprintf("Allow access to %s?", device)
		if err := g.notifier.Notify("Sensor device attached", msg); err != nil {
			g.logger.Warn("Failed to raise notification", zap.Error(err))
		}
	}
	if g.onRequest != nil {
		g.onRequest(req)
	}
}

// Cancel implements Gate
func (g *PromptGate) Cancel(device model.DeviceIdentity) {
	if _, ok := g.pending.take(device.Handle); ok {
		g.logger.Info("Permission request cancelled", zap.String("device", device.Handle))
	}
}

// Decide answers the pending request for handle
func (g *PromptGate) Decide(handle string, granted bool) error {
	if err := g.pending.decide(handle, granted); err != nil {
		return fmt.Errorf("decide %s: %w", handle, err)
	}
	g.logger.Info("Operator decision recorded",
		zap.String("device", handle),
		zap.Bool("granted", granted),
	)
	return nil
}

// Pending lists requests waiting for a decision, oldest first
func (g *PromptGate) Pending() []PendingRequest {
	return g.pending.list()
}
