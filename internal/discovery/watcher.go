// internal/discovery/watcher.go
package discovery

import (
	"context"
	"time"

	"go.uber.org/zap"

	"telemetry-bridge/internal/model"
)

// Watcher turns periodic enumeration into attach/detach events
type Watcher struct {
	registry Registry
	interval time.Duration
	publish  func(model.Event) bool
	logger   *zap.Logger

	known map[string]model.DeviceIdentity
}

// NewWatcher creates a watcher that publishes into publish
func NewWatcher(registry Registry, interval time.Duration, publish func(model.Event) bool, logger *zap.Logger) *Watcher {
	return &Watcher{
		registry: registry,
		interval: interval,
		publish:  publish,
		logger:   logger.With(zap.String("component", "watcher")),
		known:    make(map[string]model.DeviceIdentity),
	}
}

// Run polls until ctx is done. The first poll publishes every device already
// attached, so a device plugged in after the supervisor's own startup scan is
// still reported.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("Device watcher started", zap.Duration("interval", w.interval))
	w.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Device watcher stopped")
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

func (w *Watcher) poll(ctx context.Context) {
	devices, err := w.registry.ListDevices(ctx)
	if err != nil {
		w.logger.Warn("Device enumeration failed", zap.Error(err))
		return
	}

	for _, event := range w.diff(devices) {
		if !w.publish(event) {
			w.logger.Warn("Dropped device event", zap.String("event_type", string(event.Type())))
		}
	}
}

// diff updates the known set and returns detach events before attach events
func (w *Watcher) diff(devices []model.DeviceIdentity) []model.Event {
	current := make(map[string]model.DeviceIdentity, len(devices))
	for _, device := range devices {
		current[device.Handle] = device
	}

	var events []model.Event
	for handle, device := range w.known {
		if _, ok := current[handle]; !ok {
			events = append(events, model.DeviceDetached{Device: device})
			w.logger.Info("Device detached", zap.String("device", handle))
		}
	}
	for _, device := range devices {
		if _, ok := w.known[device.Handle]; !ok {
			events = append(events, model.DeviceAttached{Device: device})
			w.logger.Info("Device attached",
				zap.String("device", device.Handle),
				zap.String("vid_pid", device.VIDPID()),
			)
		}
	}

	w.known = current
	return events
}
