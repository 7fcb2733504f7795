// internal/model/event.go
package model

// EventType represents the type of an intake event
type EventType string

const (
	EventDeviceAttached    EventType = "DEVICE_ATTACHED"
	EventDeviceDetached    EventType = "DEVICE_DETACHED"
	EventPermissionDecided EventType = "PERMISSION_DECIDED"
	EventLinkFaulted       EventType = "LINK_FAULTED"
	EventResetRequested    EventType = "RESET_REQUESTED"
)

// Event is the closed set of messages the connection supervisor reacts to.
// Only types declared in this package implement it.
type Event interface {
	Type() EventType
	isEvent()
}

// DeviceAttached reports a newly attached device
type DeviceAttached struct {
	Device DeviceIdentity
}

// DeviceDetached reports a device that is no longer attached
type DeviceDetached struct {
	Device DeviceIdentity
}

// PermissionDecided carries the host's grant/deny decision for a device
type PermissionDecided struct {
	Device  DeviceIdentity
	Granted bool
}

// LinkFaulted reports a serial link failure during a session
type LinkFaulted struct {
	Device DeviceIdentity
	Err    error
}

// ResetRequested asks the supervisor to leave the Faulted state
type ResetRequested struct{}

func (DeviceAttached) Type() EventType    { return EventDeviceAttached }
func (DeviceDetached) Type() EventType    { return EventDeviceDetached }
func (PermissionDecided) Type() EventType { return EventPermissionDecided }
func (LinkFaulted) Type() EventType       { return EventLinkFaulted }
func (ResetRequested) Type() EventType    { return EventResetRequested }

func (DeviceAttached) isEvent()    {}
func (DeviceDetached) isEvent()    {}
func (PermissionDecided) isEvent() {}
func (LinkFaulted) isEvent()       {}
func (ResetRequested) isEvent()    {}
