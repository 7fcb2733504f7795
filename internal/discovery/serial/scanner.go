// internal/discovery/serial/scanner.go - Serial port scanner
package serial

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"

	"telemetry-bridge/internal/model"
)

// Scanner lists USB serial ports through the OS port enumerator
type Scanner struct {
	logger    *zap.Logger
	listPorts func() ([]*enumerator.PortDetails, error)
}

// NewScanner creates a new serial scanner
func NewScanner(logger *zap.Logger) *Scanner {
	return &Scanner{
		logger:    logger.With(zap.String("scanner", "serial")),
		listPorts: enumerator.GetDetailedPortsList,
	}
}

// ListDevices returns USB-backed serial ports ordered by port name
func (s *Scanner) ListDevices(ctx context.Context) ([]model.DeviceIdentity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ports, err := s.listPorts()
	if err != nil {
		return nil, fmt.Errorf("failed to get serial ports: %w", err)
	}

	devices := make([]model.DeviceIdentity, 0, len(ports))
	for _, port := range ports {
		device, ok := s.toIdentity(port)
		if !ok {
			continue
		}
		devices = append(devices, device)
	}

	sort.Slice(devices, func(i, j int) bool {
		return devices[i].Handle < devices[j].Handle
	})

	s.logger.Debug("Serial scan completed", zap.Int("devices_found", len(devices)))
	return devices, nil
}

func (s *Scanner) toIdentity(port *enumerator.PortDetails) (model.DeviceIdentity, bool) {
	if port == nil || !port.IsUSB {
		return model.DeviceIdentity{}, false
	}

	vendorID, err := ParseUSBID(port.VID)
	if err != nil {
		s.logger.Debug("Skipping port with invalid vendor id",
			zap.String("port", port.Name),
			zap.String("vid", port.VID),
		)
		return model.DeviceIdentity{}, false
	}
	productID, err := ParseUSBID(port.PID)
	if err != nil {
		s.logger.Debug("Skipping port with invalid product id",
			zap.String("port", port.Name),
			zap.String("pid", port.PID),
		)
		return model.DeviceIdentity{}, false
	}

	return model.DeviceIdentity{
		Handle:         port.Name,
		ConnectionType: model.ConnectionTypeSerial,
		VendorID:       vendorID,
		ProductID:      productID,
		SerialNumber:   port.SerialNumber,
		Product:        port.Product,
		PortName:       port.Name,
	}, true
}

// ParseUSBID parses a hexadecimal USB vendor or product ID ("2341" or "0x2341")
func ParseUSBID(s string) (uint16, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	id, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid usb id %q: %w", s, err)
	}
	return uint16(id), nil
}
