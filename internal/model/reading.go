// internal/model/reading.go
package model

import "time"

// RawFrame is one unit of bytes delivered by a serial link
type RawFrame struct {
	Data       []byte    `json:"data"`
	Seq        uint64    `json:"seq"`
	ReceivedAt time.Time `json:"received_at"`
}

// SensorReading is a decoded telemetry record
type SensorReading struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
}
