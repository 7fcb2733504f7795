// internal/discovery/registry.go
package discovery

import (
	"context"
	"slices"

	"telemetry-bridge/internal/model"
)

// Registry enumerates the devices attached right now. Implementations must
// not cache: every call reflects OS attachment state at call time.
type Registry interface {
	ListDevices(ctx context.Context) ([]model.DeviceIdentity, error)
}

// RegistryFunc adapts a function to the Registry interface
type RegistryFunc func(ctx context.Context) ([]model.DeviceIdentity, error)

// ListDevices calls f(ctx)
func (f RegistryFunc) ListDevices(ctx context.Context) ([]model.DeviceIdentity, error) {
	return f(ctx)
}

// Selector picks the device the supervisor should connect to
type Selector interface {
	Select(devices []model.DeviceIdentity) (model.DeviceIdentity, bool)
	Name() string
}

// FirstDevice accepts the first enumerated device
type FirstDevice struct{}

// Select returns the first device, if any
func (FirstDevice) Select(devices []model.DeviceIdentity) (model.DeviceIdentity, bool) {
	if len(devices) == 0 {
		return model.DeviceIdentity{}, false
	}
	return devices[0], true
}

// Name returns the policy name
func (FirstDevice) Name() string { return "first" }

// VendorFilter accepts the first device whose vendor is in VendorIDs
type VendorFilter struct {
	VendorIDs []uint16
}

// Select returns the first device made by one of the configured vendors
func (v VendorFilter) Select(devices []model.DeviceIdentity) (model.DeviceIdentity, bool) {
	for _, device := range devices {
		if slices.Contains(v.VendorIDs, device.VendorID) {
			return device, true
		}
	}
	return model.DeviceIdentity{}, false
}

// Name returns the policy name
func (VendorFilter) Name() string { return "vendor" }

// NewSelector builds the selection policy by name. Unknown names fall back
// to the vendor filter.
func NewSelector(policy string, vendorIDs []uint16) Selector {
	if policy == "first" {
		return FirstDevice{}
	}
	return VendorFilter{VendorIDs: vendorIDs}
}

// Exclude returns devices without the ones whose handle is in excluded
func Exclude(devices []model.DeviceIdentity, excluded map[string]struct{}) []model.DeviceIdentity {
	if len(excluded) == 0 {
		return devices
	}
	out := make([]model.DeviceIdentity, 0, len(devices))
	for _, device := range devices {
		if _, skip := excluded[device.Handle]; !skip {
			out = append(out, device)
		}
	}
	return out
}
