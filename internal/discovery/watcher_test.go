package discovery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"telemetry-bridge/internal/model"
)

type scriptedRegistry struct {
	mu    sync.Mutex
	steps [][]model.DeviceIdentity
	err   error
}

func (r *scriptedRegistry) ListDevices(context.Context) ([]model.DeviceIdentity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	if len(r.steps) == 0 {
		return nil, nil
	}
	step := r.steps[0]
	if len(r.steps) > 1 {
		r.steps = r.steps[1:]
	}
	return step, nil
}

type eventRecorder struct {
	mu     sync.Mutex
	events []model.Event
}

func (r *eventRecorder) publish(ev model.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return true
}

func (r *eventRecorder) snapshot() []model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Event(nil), r.events...)
}

func TestWatcherDiff(t *testing.T) {
	rec := &eventRecorder{}
	w := NewWatcher(&scriptedRegistry{}, time.Second, rec.publish, zaptest.NewLogger(t))

	events := w.diff([]model.DeviceIdentity{uno})
	require.Len(t, events, 1)
	assert.Equal(t, model.DeviceAttached{Device: uno}, events[0])

	assert.Empty(t, w.diff([]model.DeviceIdentity{uno}))

	events = w.diff([]model.DeviceIdentity{ch340})
	require.Len(t, events, 2)
	assert.Equal(t, model.DeviceDetached{Device: uno}, events[0])
	assert.Equal(t, model.DeviceAttached{Device: ch340}, events[1])
}

func TestWatcherRunPublishesInitialDevices(t *testing.T) {
	registry := &scriptedRegistry{steps: [][]model.DeviceIdentity{
		{uno},
		{uno, ch340},
		{ch340},
	}}
	rec := &eventRecorder{}
	w := NewWatcher(registry, 5*time.Millisecond, rec.publish, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(rec.snapshot()) >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	events := rec.snapshot()
	assert.Equal(t, model.DeviceAttached{Device: uno}, events[0])
	assert.Equal(t, model.DeviceAttached{Device: ch340}, events[1])
	assert.Equal(t, model.DeviceDetached{Device: uno}, events[2])
}

func TestWatcherKeepsStateOnEnumerationError(t *testing.T) {
	registry := &scriptedRegistry{err: errors.New("enumeration failed")}
	rec := &eventRecorder{}
	w := NewWatcher(registry, time.Second, rec.publish, zaptest.NewLogger(t))
	w.known[uno.Handle] = uno

	w.poll(context.Background())

	assert.Empty(t, rec.snapshot())
	assert.Contains(t, w.known, uno.Handle)
}
