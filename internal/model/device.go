// internal/model/device.go
package model

import "fmt"

// ConnectionType represents how the device is reached
type ConnectionType string

const (
	ConnectionTypeSerial ConnectionType = "SERIAL"
	ConnectionTypeUSB    ConnectionType = "USB"
)

// Well-known USB vendor identifiers
const (
	VendorArduino    uint16 = 0x2341
	VendorArduinoOrg uint16 = 0x2A03
	VendorWCH        uint16 = 0x1A86
	VendorFTDI       uint16 = 0x0403
	VendorSiLabs     uint16 = 0x10C4
)

// DeviceIdentity identifies one attached device. It is immutable once
// enumerated and becomes invalid when the device is detached.
type DeviceIdentity struct {
	Handle         string         `json:"handle"`
	ConnectionType ConnectionType `json:"connection_type"`
	VendorID       uint16         `json:"vendor_id"`
	ProductID      uint16         `json:"product_id"`
	SerialNumber   string         `json:"serial_number,omitempty"`
	Product        string         `json:"product,omitempty"`
	// PortName is the serial device node. Empty when it must be resolved
	// at open time (raw USB enumeration).
	PortName string `json:"port_name,omitempty"`
}

// Same reports whether both identities refer to the same attached device.
func (d DeviceIdentity) Same(other DeviceIdentity) bool {
	return d.Handle == other.Handle
}

// IsZero reports whether the identity is unset
func (d DeviceIdentity) IsZero() bool {
	return d.Handle == ""
}

// VIDPID returns the vendor/product pair in the usual 0xVVVV:0xPPPP form
func (d DeviceIdentity) VIDPID() string {
	return fmt.Sprintf("0x%04X:0x%04X", d.VendorID, d.ProductID)
}

func (d DeviceIdentity) String() string {
	if d.Product != "" {
		return fmt.Sprintf("%s (%s %s)", d.Handle, d.VIDPID(), d.Product)
	}
	return fmt.Sprintf("%s (%s)", d.Handle, d.VIDPID())
}

// Parity of a serial link
type Parity string

const (
	ParityNone Parity = "none"
	ParityOdd  Parity = "odd"
	ParityEven Parity = "even"
)

// LinkConfig holds serial framing parameters
type LinkConfig struct {
	BaudRate    int    `json:"baud_rate"`
	DataBits    int    `json:"data_bits"`
	StopBits    int    `json:"stop_bits"`
	Parity      Parity `json:"parity"`
	FlowControl bool   `json:"flow_control"`
}

// DefaultLinkConfig is the framing contract of the sensor firmware. It is
// never renegotiated at runtime.
var DefaultLinkConfig = LinkConfig{
	BaudRate:    9600,
	DataBits:    8,
	StopBits:    1,
	Parity:      ParityNone,
	FlowControl: false,
}

func (c LinkConfig) String() string {
	p := "N"
	switch c.Parity {
	case ParityOdd:
		p = "O"
	case ParityEven:
		p = "E"
	}
	return fmt.Sprintf("%d %d%s%d", c.BaudRate, c.DataBits, p, c.StopBits)
}
