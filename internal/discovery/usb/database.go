// internal/discovery/usb/database.go - USB serial adapter database
package usb

import (
	"github.com/google/gousb"

	"telemetry-bridge/internal/model"
)

// DeviceDatabase contains known USB serial devices for identification
type DeviceDatabase struct {
	vendors map[gousb.ID]*VendorInfo
}

// VendorInfo contains vendor-specific information
type VendorInfo struct {
	Name     string
	products map[gousb.ID]string
}

// NewDeviceDatabase creates and initializes the device database
func NewDeviceDatabase() *DeviceDatabase {
	db := &DeviceDatabase{
		vendors: make(map[gousb.ID]*VendorInfo),
	}
	db.initializeDatabase()
	return db
}

func (db *DeviceDatabase) initializeDatabase() {
	db.vendors[gousb.ID(model.VendorArduino)] = &VendorInfo{
		Name: "Arduino SA",
		products: map[gousb.ID]string{
			0x0001: "Uno",
			0x0010: "Mega 2560",
			0x0042: "Mega 2560 R3",
			0x0043: "Uno R3",
			0x0058: "Nano Every",
			0x8036: "Leonardo",
			0x8037: "Micro",
		},
	}
	db.vendors[gousb.ID(model.VendorArduinoOrg)] = &VendorInfo{
		Name: "Arduino Srl",
		products: map[gousb.ID]string{
			0x0043: "Uno R3",
			0x8036: "Leonardo",
		},
	}
	db.vendors[gousb.ID(model.VendorWCH)] = &VendorInfo{
		Name: "QinHeng Electronics",
		products: map[gousb.ID]string{
			0x7523: "CH340 serial converter",
			0x55D4: "CH9102 serial converter",
		},
	}
	db.vendors[gousb.ID(model.VendorFTDI)] = &VendorInfo{
		Name: "Future Technology Devices International",
		products: map[gousb.ID]string{
			0x6001: "FT232R USB UART",
			0x6015: "FT231X USB UART",
		},
	}
	db.vendors[gousb.ID(model.VendorSiLabs)] = &VendorInfo{
		Name: "Silicon Labs",
		products: map[gousb.ID]string{
			0xEA60: "CP210x UART Bridge",
		},
	}
}

// IsKnownVendor checks if vendor is in database
func (db *DeviceDatabase) IsKnownVendor(vendorID gousb.ID) bool {
	_, exists := db.vendors[vendorID]
	return exists
}

// GetVendorInfo returns vendor information, or nil
func (db *DeviceDatabase) GetVendorInfo(vendorID gousb.ID) *VendorInfo {
	return db.vendors[vendorID]
}

// ProductName returns a human readable name for the vendor/product pair
func (db *DeviceDatabase) ProductName(vendorID, productID gousb.ID) string {
	vendor := db.vendors[vendorID]
	if vendor == nil {
		return ""
	}
	if product, ok := vendor.products[productID]; ok {
		return vendor.Name + " " + product
	}
	return vendor.Name
}
