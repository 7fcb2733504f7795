package telemetry

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"telemetry-bridge/internal/config"
	"telemetry-bridge/internal/model"
)

// Forwarder submits decoded frames to a collector. Submit returns before
// any I/O happens; delivery is at-most-once.
type Forwarder interface {
	Submit(frame model.RawFrame, reading model.SensorReading)
}

// Waiter is implemented by forwarders that track in-flight submissions
type Waiter interface {
	Wait(ctx context.Context) error
}

// Completion describes the outcome of one submission
type Completion struct {
	Seq        uint64        `json:"seq"`
	Target     string        `json:"target"`
	StatusCode int           `json:"status_code,omitempty"`
	Err        error         `json:"-"`
	Duration   time.Duration `json:"duration"`
}

// OK reports whether the submission was accepted
func (c Completion) OK() bool {
	return c.Err == nil
}

// HTTPForwarder POSTs each frame to the remote collector
type HTTPForwarder struct {
	// OnComplete, when set before the first Submit, observes every outcome
	OnComplete func(Completion)

	url      string
	username string
	password string
	client   *http.Client
	logger   *zap.Logger
	wg       sync.WaitGroup
}

// NewHTTPForwarder creates a forwarder for the configured collector
func NewHTTPForwarder(cfg config.CollectorConfig, logger *zap.Logger) *HTTPForwarder {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPForwarder{
		url:      cfg.URL,
		username: cfg.Username,
		password: cfg.Password,
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With(zap.String("component", "forwarder"), zap.String("target", cfg.URL)),
	}
}

// Submit sends the frame body in the background
func (f *HTTPForwarder) Submit(frame model.RawFrame, _ model.SensorReading) {
	body := make([]byte, len(frame.Data))
	copy(body, frame.Data)

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		f.complete(f.post(frame.Seq, body))
	}()
}

func (f *HTTPForwarder) post(seq uint64, body []byte) Completion {
	start := time.Now()
	result := Completion{Seq: seq, Target: f.url}

	req, err := http.NewRequest(http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		result.Err = fmt.Errorf("failed to build request: %w", err)
		result.Duration = time.Since(start)
		return result
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(f.username, f.password)

	resp, err := f.client.Do(req)
	result.Duration = time.Since(start)
	if err != nil {
		result.Err = fmt.Errorf("collector request failed: %w", err)
		return result
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	result.StatusCode = resp.StatusCode
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		result.Err = fmt.Errorf("collector responded %s", resp.Status)
	}
	return result
}

func (f *HTTPForwarder) complete(result Completion) {
	if result.OK() {
		f.logger.Debug("Reading forwarded",
			zap.Uint64("seq", result.Seq),
			zap.Int("status_code", result.StatusCode),
			zap.Duration("duration", result.Duration),
		)
	} else {
		f.logger.Warn("Failed to forward reading",
			zap.Uint64("seq", result.Seq),
			zap.Int("status_code", result.StatusCode),
			zap.Duration("duration", result.Duration),
			zap.Error(result.Err),
		)
	}
	if f.OnComplete != nil {
		f.OnComplete(result)
	}
}

// Wait blocks until in-flight submissions finish or ctx is done
func (f *HTTPForwarder) Wait(ctx context.Context) error {
	return waitGroup(ctx, &f.wg)
}

func waitGroup(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// MultiForwarder fans each submission out to every forwarder
type MultiForwarder []Forwarder

// Submit forwards to each member in order
func (m MultiForwarder) Submit(frame model.RawFrame, reading model.SensorReading) {
	for _, f := range m {
		f.Submit(frame, reading)
	}
}

// Wait waits for every member that tracks in-flight work
func (m MultiForwarder) Wait(ctx context.Context) error {
	for _, f := range m {
		if w, ok := f.(Waiter); ok {
			if err := w.Wait(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}
