// Package display presents decoded readings locally. Implementations are
// push-only and must return without blocking the caller.
package display

import (
	"sync"

	"go.uber.org/zap"

	"telemetry-bridge/internal/model"
	"telemetry-bridge/internal/telemetry"
)

// Display receives readings or free text for presentation
type Display interface {
	ShowReading(reading model.SensorReading)
	ShowText(text string)
}

// Lines renders a reading as the two display lines
func Lines(reading model.SensorReading) (temperature, humidity string) {
	return telemetry.FormatValue(reading.Temperature), telemetry.FormatValue(reading.Humidity)
}

// Console writes readings to the log
type Console struct {
	logger *zap.Logger

	mu          sync.Mutex
	temperature string
	humidity    string
	text        string
}

// NewConsole creates a log-backed display
func NewConsole(logger *zap.Logger) *Console {
	return &Console{logger: logger.With(zap.String("component", "display"))}
}

// ShowReading implements Display
func (c *Console) ShowReading(reading model.SensorReading) {
	temperature, humidity := Lines(reading)

	c.mu.Lock()
	c.temperature, c.humidity = temperature, humidity
	c.mu.Unlock()

	c.logger.Info("Reading",
		zap.String("temperature", temperature),
		zap.String("humidity", humidity),
	)
}

// ShowText implements Display
func (c *Console) ShowText(text string) {
	c.mu.Lock()
	c.text = text
	c.mu.Unlock()

	c.logger.Info("Display text", zap.String("text", text))
}

// Current returns what the display is showing
func (c *Console) Current() (temperature, humidity, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.temperature, c.humidity, c.text
}

// Multi fans out to every display
type Multi []Display

// ShowReading implements Display
func (m Multi) ShowReading(reading model.SensorReading) {
	for _, d := range m {
		d.ShowReading(reading)
	}
}

// ShowText implements Display
func (m Multi) ShowText(text string) {
	for _, d := range m {
		d.ShowText(text)
	}
}
