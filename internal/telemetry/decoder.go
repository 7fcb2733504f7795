// Package telemetry decodes sensor frames and forwards them to collectors.
//
// Wire format (device -> bridge), one record per line:
//
//	{"temperature":21.5,"humidity":48.0}
package telemetry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"telemetry-bridge/internal/model"
)

// DecodeErrorKind classifies why a frame was rejected
type DecodeErrorKind string

const (
	MalformedEncoding DecodeErrorKind = "MALFORMED_ENCODING"
	MissingField      DecodeErrorKind = "MISSING_FIELD"
	TypeMismatch      DecodeErrorKind = "TYPE_MISMATCH"
)

// Sentinels matching each kind with errors.Is
var (
	ErrMalformedEncoding = errors.New("malformed encoding")
	ErrMissingField      = errors.New("missing field")
	ErrTypeMismatch      = errors.New("type mismatch")
)

const (
	FieldTemperature = "temperature"
	FieldHumidity    = "humidity"
)

// DecodeError is returned by Decode
type DecodeError struct {
	Kind  DecodeErrorKind
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	msg := string(e.Kind)
	if e.Field != "" {
		msg += fmt.Sprintf(" (%s)", e.Field)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind
func (e *DecodeError) Is(target error) bool {
	switch e.Kind {
	case MalformedEncoding:
		return target == ErrMalformedEncoding
	case MissingField:
		return target == ErrMissingField
	case TypeMismatch:
		return target == ErrTypeMismatch
	}
	return false
}

var null = []byte("null")

// Decode parses one frame into a reading. Both fields are required JSON
// numbers; unknown fields are ignored.
func Decode(frame []byte) (model.SensorReading, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(frame, &fields); err != nil {
		return model.SensorReading{}, &DecodeError{Kind: MalformedEncoding, Err: err}
	}
	if fields == nil {
		return model.SensorReading{}, &DecodeError{Kind: MalformedEncoding, Err: errors.New("frame is not an object")}
	}

	temperature, err := numberField(fields, FieldTemperature)
	if err != nil {
		return model.SensorReading{}, err
	}
	humidity, err := numberField(fields, FieldHumidity)
	if err != nil {
		return model.SensorReading{}, err
	}

	return model.SensorReading{Temperature: temperature, Humidity: humidity}, nil
}

func numberField(fields map[string]json.RawMessage, name string) (float64, error) {
	raw, ok := fields[name]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), null) {
		return 0, &DecodeError{Kind: MissingField, Field: name}
	}

	var value float64
	if err := json.Unmarshal(raw, &value); err != nil {
		return 0, &DecodeError{Kind: TypeMismatch, Field: name, Err: err}
	}
	return value, nil
}

// Encode renders a reading in the device wire format
func Encode(reading model.SensorReading) ([]byte, error) {
	data, err := json.Marshal(reading)
	if err != nil {
		return nil, fmt.Errorf("failed to encode reading: %w", err)
	}
	return data, nil
}
