// internal/discovery/usb/scanner.go - USB descriptor scanner
package usb

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/gousb"
	"go.uber.org/zap"

	"telemetry-bridge/internal/model"
)

// Scanner lists USB serial devices from their descriptors. Devices are
// never opened during a scan, so no access permission is needed.
type Scanner struct {
	logger       *zap.Logger
	knownDevices *DeviceDatabase
	config       *Config
	descriptors  func() ([]*gousb.DeviceDesc, error)
}

// Config for USB scanner
type Config struct {
	EnableDebug bool `json:"enable_debug"`
	// KnownOnly restricts results to known adapters and CDC devices
	KnownOnly bool `json:"known_only"`
}

// NewScanner creates a new USB scanner
func NewScanner(logger *zap.Logger, config *Config) *Scanner {
	if config == nil {
		config = &Config{KnownOnly: true}
	}

	s := &Scanner{
		logger:       logger.With(zap.String("scanner", "usb")),
		knownDevices: NewDeviceDatabase(),
		config:       config,
	}
	s.descriptors = s.readDescriptors
	return s
}

// ListDevices returns attached USB serial devices ordered by bus and address
func (s *Scanner) ListDevices(ctx context.Context) ([]model.DeviceIdentity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	descs, err := s.descriptors()
	if err != nil {
		return nil, fmt.Errorf("device enumeration failed: %w", err)
	}

	sort.Slice(descs, func(i, j int) bool {
		if descs[i].Bus != descs[j].Bus {
			return descs[i].Bus < descs[j].Bus
		}
		return descs[i].Address < descs[j].Address
	})

	devices := make([]model.DeviceIdentity, 0, len(descs))
	for _, desc := range descs {
		if !s.shouldExamineDevice(desc) {
			continue
		}
		devices = append(devices, model.DeviceIdentity{
			Handle:         Handle(desc),
			ConnectionType: model.ConnectionTypeUSB,
			VendorID:       uint16(desc.Vendor),
			ProductID:      uint16(desc.Product),
			Product:        s.knownDevices.ProductName(desc.Vendor, desc.Product),
		})
	}

	s.logger.Debug("USB scan completed", zap.Int("devices_found", len(devices)))
	return devices, nil
}

// readDescriptors walks the bus. The filter records each descriptor and
// returns false so OpenDevices opens nothing.
func (s *Scanner) readDescriptors() ([]*gousb.DeviceDesc, error) {
	usbCtx := gousb.NewContext()
	defer func() {
		if err := usbCtx.Close(); err != nil {
			s.logger.Warn("Failed to close USB context", zap.Error(err))
		}
	}()

	if s.config.EnableDebug {
		usbCtx.Debug(3)
	}

	var descs []*gousb.DeviceDesc
	devices, err := usbCtx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		descs = append(descs, desc)
		return false
	})
	for _, device := range devices {
		device.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate USB devices: %w", err)
	}
	return descs, nil
}

// shouldExamineDevice determines if a device can be a serial telemetry source
func (s *Scanner) shouldExamineDevice(desc *gousb.DeviceDesc) bool {
	if !s.config.KnownOnly {
		return true
	}
	if s.knownDevices.IsKnownVendor(desc.Vendor) {
		return true
	}
	return desc.Class == gousb.ClassComm
}

// Handle returns the identity handle of a USB device
func Handle(desc *gousb.DeviceDesc) string {
	return fmt.Sprintf("usb:%d:%d", desc.Bus, desc.Address)
}
