package display

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"telemetry-bridge/internal/model"
)

func TestConsoleShowsFormattedReading(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	console := NewConsole(zap.New(core))

	console.ShowReading(model.SensorReading{Temperature: 21.5, Humidity: 48})

	temperature, humidity, _ := console.Current()
	assert.Equal(t, "21.5", temperature)
	assert.Equal(t, "48.0", humidity)

	entries := logs.FilterMessage("Reading").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "21.5", fields["temperature"])
	assert.Equal(t, "48.0", fields["humidity"])
	assert.Equal(t, "display", fields["component"])
}

func TestConsoleShowText(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	console := NewConsole(zap.New(core))

	console.ShowText("waiting for device")

	_, _, text := console.Current()
	assert.Equal(t, "waiting for device", text)
	assert.Equal(t, 1, logs.FilterMessage("Display text").Len())
}

type recordingDisplay struct {
	readings []model.SensorReading
	texts    []string
}

func (r *recordingDisplay) ShowReading(reading model.SensorReading) {
	r.readings = append(r.readings, reading)
}

func (r *recordingDisplay) ShowText(text string) {
	r.texts = append(r.texts, text)
}

func TestMultiFansOut(t *testing.T) {
	a, b := &recordingDisplay{}, &recordingDisplay{}
	multi := Multi{a, b}

	reading := model.SensorReading{Temperature: 1, Humidity: 2}
	multi.ShowReading(reading)
	multi.ShowText("hello")

	for _, d := range []*recordingDisplay{a, b} {
		assert.Equal(t, []model.SensorReading{reading}, d.readings)
		assert.Equal(t, []string{"hello"}, d.texts)
	}
}
