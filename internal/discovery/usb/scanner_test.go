package usb

import (
	"context"
	"errors"
	"testing"

	"github.com/google/gousb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"telemetry-bridge/internal/model"
)

func newTestScanner(t *testing.T, config *Config, descs []*gousb.DeviceDesc, err error) *Scanner {
	s := NewScanner(zaptest.NewLogger(t), config)
	s.descriptors = func() ([]*gousb.DeviceDesc, error) { return descs, err }
	return s
}

func TestListDevicesFiltersAndOrders(t *testing.T) {
	descs := []*gousb.DeviceDesc{
		{Bus: 2, Address: 7, Vendor: 0x2341, Product: 0x0043},
		{Bus: 1, Address: 3, Vendor: 0x046D, Product: 0xC52B, Class: gousb.ClassPerInterface},
		{Bus: 1, Address: 9, Vendor: 0x1234, Product: 0x0001, Class: gousb.ClassComm},
		{Bus: 1, Address: 4, Vendor: 0x1A86, Product: 0x7523},
	}

	devices, err := newTestScanner(t, nil, descs, nil).ListDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 3)

	assert.Equal(t, "usb:1:4", devices[0].Handle)
	assert.Equal(t, "QinHeng Electronics CH340 serial converter", devices[0].Product)
	assert.Equal(t, "usb:1:9", devices[1].Handle)
	assert.Equal(t, "", devices[1].Product)
	assert.Equal(t, model.DeviceIdentity{
		Handle:         "usb:2:7",
		ConnectionType: model.ConnectionTypeUSB,
		VendorID:       0x2341,
		ProductID:      0x0043,
		Product:        "Arduino SA Uno R3",
	}, devices[2])
}

func TestListDevicesWithoutFilter(t *testing.T) {
	descs := []*gousb.DeviceDesc{{Bus: 1, Address: 3, Vendor: 0x046D, Product: 0xC52B}}

	devices, err := newTestScanner(t, &Config{KnownOnly: false}, descs, nil).ListDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, uint16(0x046D), devices[0].VendorID)
}

func TestListDevicesWrapsError(t *testing.T) {
	boom := errors.New("libusb unavailable")
	_, err := newTestScanner(t, nil, nil, boom).ListDevices(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestDeviceDatabaseProductName(t *testing.T) {
	db := NewDeviceDatabase()
	assert.True(t, db.IsKnownVendor(0x2341))
	assert.False(t, db.IsKnownVendor(0xFFFF))
	assert.Equal(t, "Arduino SA Leonardo", db.ProductName(0x2341, 0x8036))
	assert.Equal(t, "Arduino SA", db.ProductName(0x2341, 0x9999))
	assert.Equal(t, "", db.ProductName(0xFFFF, 0x0001))
}
