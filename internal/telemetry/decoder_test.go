package telemetry

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telemetry-bridge/internal/model"
)

func TestDecodeValidFrame(t *testing.T) {
	reading, err := Decode([]byte(`{"temperature":21.5,"humidity":48.0}`))
	require.NoError(t, err)
	assert.Equal(t, model.SensorReading{Temperature: 21.5, Humidity: 48}, reading)
}

func TestDecodeIgnoresExtraFields(t *testing.T) {
	reading, err := Decode([]byte(`{"humidity":-3,"temperature":1e2,"battery":"low"}`))
	require.NoError(t, err)
	assert.Equal(t, model.SensorReading{Temperature: 100, Humidity: -3}, reading)
}

func TestDecodeRejectsMalformedFrames(t *testing.T) {
	cases := []struct {
		name  string
		frame string
		kind  error
		field string
	}{
		{"not json", `not-json`, ErrMalformedEncoding, ""},
		{"empty", ``, ErrMalformedEncoding, ""},
		{"truncated", `{"temperature":21.5,"humid`, ErrMalformedEncoding, ""},
		{"array", `[21.5,48]`, ErrMalformedEncoding, ""},
		{"top-level null", `null`, ErrMalformedEncoding, ""},
		{"bare number", `21.5`, ErrMalformedEncoding, ""},
		{"missing humidity", `{"temperature":21.5}`, ErrMissingField, FieldHumidity},
		{"missing temperature", `{"humidity":48}`, ErrMissingField, FieldTemperature},
		{"null temperature", `{"temperature":null,"humidity":48}`, ErrMissingField, FieldTemperature},
		{"string humidity", `{"temperature":21.5,"humidity":"48"}`, ErrTypeMismatch, FieldHumidity},
		{"bool temperature", `{"temperature":true,"humidity":48}`, ErrTypeMismatch, FieldTemperature},
		{"object humidity", `{"temperature":1,"humidity":{"v":2}}`, ErrTypeMismatch, FieldHumidity},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reading, err := Decode([]byte(tc.frame))
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.kind)
			assert.Zero(t, reading)

			var decodeErr *DecodeError
			require.True(t, errors.As(err, &decodeErr))
			assert.Equal(t, tc.field, decodeErr.Field)
		})
	}
}

func TestDecodeEncodeRoundTrip(t *testing.T) {
	readings := []model.SensorReading{
		{Temperature: 21.5, Humidity: 48},
		{Temperature: -40, Humidity: 0},
		{Temperature: 0.1, Humidity: 99.99},
		{Temperature: 1e-9, Humidity: 123456.789},
		{Temperature: math.MaxFloat64, Humidity: math.SmallestNonzeroFloat64},
		{Temperature: 1.0 / 3.0, Humidity: 2.0 / 3.0},
	}

	for _, want := range readings {
		data, err := Encode(want)
		require.NoError(t, err)

		got, err := Decode(data)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestEncodeWireFormat(t *testing.T) {
	data, err := Encode(model.SensorReading{Temperature: 21.5, Humidity: 48})
	require.NoError(t, err)
	assert.JSONEq(t, `{"temperature":21.5,"humidity":48}`, string(data))
}

func TestEncodeRejectsNonFinite(t *testing.T) {
	_, err := Encode(model.SensorReading{Temperature: math.NaN()})
	assert.Error(t, err)
}

func TestDecodeErrorMessage(t *testing.T) {
	_, err := Decode([]byte(`{"temperature":21.5}`))
	assert.EqualError(t, err, "MISSING_FIELD (humidity)")
}

func TestFormatValue(t *testing.T) {
	cases := map[float64]string{
		21.5:   "21.5",
		48:     "48.0",
		0:      "0.0",
		-3.25:  "-3.25",
		0.1:    "0.1",
		1013.0: "1013.0",
	}
	for in, want := range cases {
		assert.Equal(t, want, FormatValue(in), "FormatValue(%v)", in)
	}
}
