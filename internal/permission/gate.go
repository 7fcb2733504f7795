// Package permission decides whether the bridge may take exclusive access
// to a device. Decisions are always delivered out-of-band.
package permission

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"telemetry-bridge/internal/model"
)

// ErrNoPendingRequest is returned when deciding a device nobody asked about
var ErrNoPendingRequest = errors.New("no pending permission request")

// Deliver receives the decision for one request
type Deliver func(model.PermissionDecided)

// Gate requests exclusive access to a device.
//
// RequestAccess never returns the decision; it is handed to deliver once
// made. Requesting again while a decision is pending is a no-op. Cancel
// drops a pending request so a late decision is discarded.
type Gate interface {
	RequestAccess(ctx context.Context, device model.DeviceIdentity, deliver Deliver)
	Cancel(device model.DeviceIdentity)
}

// PendingRequest describes a request still waiting for a decision
type PendingRequest struct {
	Device      model.DeviceIdentity `json:"device"`
	RequestedAt time.Time            `json:"requested_at"`
}

type request struct {
	PendingRequest
	deliver Deliver
}

// pendingSet tracks outstanding requests by device handle
type pendingSet struct {
	mu       sync.Mutex
	requests map[string]request
}

func newPendingSet() *pendingSet {
	return &pendingSet{requests: make(map[string]request)}
}

// add registers a request, reporting false when one is already pending
func (p *pendingSet) add(device model.DeviceIdentity, deliver Deliver) (PendingRequest, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if req, exists := p.requests[device.Handle]; exists {
		return req.PendingRequest, false
	}
	req := request{
		PendingRequest: PendingRequest{Device: device, RequestedAt: time.Now()},
		deliver:        deliver,
	}
	p.requests[device.Handle] = req
	return req.PendingRequest, true
}

func (p *pendingSet) take(handle string) (request, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	req, ok := p.requests[handle]
	if ok {
		delete(p.requests, handle)
	}
	return req, ok
}

func (p *pendingSet) list() []PendingRequest {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]PendingRequest, 0, len(p.requests))
	for _, req := range p.requests {
		out = append(out, req.PendingRequest)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RequestedAt.Before(out[j].RequestedAt)
	})
	return out
}

// decide delivers the decision for handle if it is still pending
func (p *pendingSet) decide(handle string, granted bool) error {
	req, ok := p.take(handle)
	if !ok {
		return ErrNoPendingRequest
	}
	req.deliver(model.PermissionDecided{Device: req.Device, Granted: granted})
	return nil
}
