package carrera

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
)

var ErrMalformedTuple = errors.New("carrera: malformed tuple variant")

type primaryEnvelope struct {
	NewLap      json.RawMessage `json:"NewLap"`
	LightUpdate json.RawMessage `json:"LightUpdate"`
	CarUpdate   json.RawMessage `json:"CarUpdate"`
}

// carStateFields holds the CarUpdate body. Only the fuel level is shown on the dashboard, so the other
// fields are kept when they decode and dropped when they do not.
type carStateFields struct {
	FuelLevel float64         `json:"fuel_level"`
	InPit     json.RawMessage `json:"in_pit"`
	Speed     json.RawMessage `json:"speed"`
	LastLap   json.RawMessage `json:"last_lap"`
}

func (c carStateFields) state() CarState {
	state := CarState{FuelLevel: c.FuelLevel}

	_ = json.Unmarshal(c.InPit, &state.InPit)
	_ = json.Unmarshal(c.Speed, &state.Speed)

	if isPopulated(c.LastLap) {
		var lastLap SystemTime

		if err := json.Unmarshal(c.LastLap, &lastLap); err == nil {
			state.LastLap = &lastLap
		}
	}

	return state
}

type controllerEnvelope struct {
	ControllerUpdate json.RawMessage `json:"ControllerUpdate"`
}

// Decode parses the body of a named stream event. A nil Message with a nil error means the event
// was well formed but carried nothing this package understands, and should be ignored.
func Decode(event Event, data []byte) (Message, error) {
	switch event {
	case EventArduino:
		return decodePrimary(data)
	case EventController:
		return decodeController(data)
	default:
		return nil, nil
	}
}

func decodePrimary(data []byte) (Message, error) {
	trimmed := bytes.TrimSpace(data)

	if len(trimmed) > 0 && trimmed[0] == '"' {
		var unitVariant string

		if err := json.Unmarshal(trimmed, &unitVariant); err != nil {
			return nil, errors.Wrap(err, "carrera: could not decode unit variant")
		}

		if unitVariant == "Reset" {
			return Reset{}, nil
		}

		return nil, nil
	}

	var envelope primaryEnvelope

	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, errors.Wrapf(err, "carrera: could not decode %s event", EventArduino)
	}

	switch {
	case isPopulated(envelope.NewLap):
		var newLap NewLap

		if err := decodeTuple(envelope.NewLap, &newLap.CarID, &newLap.LapTime); err != nil {
			return nil, errors.Wrap(err, "carrera: could not decode NewLap")
		}

		return newLap, nil
	case isPopulated(envelope.LightUpdate):
		var numLights uint8

		if err := json.Unmarshal(envelope.LightUpdate, &numLights); err != nil {
			return nil, errors.Wrap(err, "carrera: could not decode LightUpdate")
		}

		return LightUpdate(numLights), nil
	case isPopulated(envelope.CarUpdate):
		var carID CarID
		var fields carStateFields

		if err := decodeTuple(envelope.CarUpdate, &carID, &fields); err != nil {
			return nil, errors.Wrap(err, "carrera: could not decode CarUpdate")
		}

		return CarUpdate{CarID: carID, State: fields.state()}, nil
	default:
		return nil, nil
	}
}

func decodeController(data []byte) (Message, error) {
	var envelope controllerEnvelope

	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, errors.Wrapf(err, "carrera: could not decode %s event", EventController)
	}

	if !isPopulated(envelope.ControllerUpdate) {
		return nil, nil
	}

	var controllerUpdate ControllerUpdate

	if err := decodeTuple(envelope.ControllerUpdate, &controllerUpdate.ControllerID, &controllerUpdate.Level); err != nil {
		return nil, errors.Wrap(err, "carrera: could not decode ControllerUpdate")
	}

	return controllerUpdate, nil
}

func isPopulated(raw json.RawMessage) bool {
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}

// decodeTuple decodes a JSON array into exactly len(fields) destinations.
func decodeTuple(raw json.RawMessage, fields ...interface{}) error {
	var items []json.RawMessage

	if err := json.Unmarshal(raw, &items); err != nil {
		return err
	}

	if len(items) != len(fields) {
		return errors.Wrapf(ErrMalformedTuple, "expected %d items, got %d", len(fields), len(items))
	}

	for i, item := range items {
		if err := json.Unmarshal(item, fields[i]); err != nil {
			return err
		}
	}

	return nil
}
