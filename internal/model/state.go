// internal/model/state.go
package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ConnectionState is the state of the device connection machine
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StatePermissionPending
	StateOpen
	StateFaulted
)

var stateNames = map[ConnectionState]string{
	StateDisconnected:      "DISCONNECTED",
	StatePermissionPending: "PERMISSION_PENDING",
	StateOpen:              "OPEN",
	StateFaulted:           "FAULTED",
}

func (s ConnectionState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("ConnectionState(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler
func (s ConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *ConnectionState) UnmarshalText(text []byte) error {
	for state, name := range stateNames {
		if name == string(text) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown connection state: %q", string(text))
}

// StateChange records one transition of the connection machine
type StateChange struct {
	ID     uuid.UUID       `json:"id"`
	From   ConnectionState `json:"from"`
	To     ConnectionState `json:"to"`
	Device *DeviceIdentity `json:"device,omitempty"`
	Reason string          `json:"reason"`
	At     time.Time       `json:"at"`
}

// NewStateChange creates a state change record stamped with a fresh ID
func NewStateChange(from, to ConnectionState, device *DeviceIdentity, reason string) StateChange {
	return StateChange{
		ID:     uuid.New(),
		From:   from,
		To:     to,
		Device: device,
		Reason: reason,
		At:     time.Now(),
	}
}
