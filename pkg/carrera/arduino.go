package carrera

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Commands sent by the control unit in the program data word.
const (
	CommandFuel       uint8 = 4
	CommandPitLane    uint8 = 5
	CommandFinishLine uint8 = 8
	CommandSectorLine uint8 = 9
	CommandLights     uint8 = 16
	CommandReset      uint8 = 19
)

// unknown until the control unit reports it
const initialFuelLevel = 255

var (
	ErrMalformedLine = errors.New("carrera: malformed line")
	ErrCarOutOfRange = errors.New("carrera: car id out of range")
)

type trackedCar struct {
	fuelLevel uint8
	inPit     bool
	speed     uint8
	lastLap   time.Time
}

func (c *trackedCar) state() CarState {
	state := CarState{
		FuelLevel: float64(c.fuelLevel),
		InPit:     c.inPit,
		Speed:     c.speed,
	}

	if !c.lastLap.IsZero() {
		state.LastLap = NewSystemTime(c.lastLap)
	}

	return state
}

// Tracker turns lines of the Arduino serial protocol into Messages. Each line looks like
//
//	command;data;controller-carID;speed-
//
// where the part after the first '-' (the controller word) is optional.
type Tracker struct {
	cars [NumTrackedCars]trackedCar
	now  func() time.Time
}

func NewTracker() *Tracker {
	return NewTrackerWithClock(time.Now)
}

func NewTrackerWithClock(now func() time.Time) *Tracker {
	t := &Tracker{now: now}

	for i := range t.cars {
		t.cars[i].fuelLevel = initialFuelLevel
	}

	return t
}

// HandleLine parses a single line and returns the messages it produces, in order.
//
// A car's first finish line crossing after start up or a Reset only starts its lap timer and produces no NewLap,
// so a car that has crossed the line n times has completed n-1 laps.
func (t *Tracker) HandleLine(line string) ([]Message, error) {
	line = strings.TrimRight(line, "\r\n")

	if line == "" {
		return nil, nil
	}

	tokens := strings.Split(line, "-")

	var messages []Message

	programDataWord := strings.Split(tokens[0], ";")

	if len(programDataWord) >= 3 {
		fields, err := parseFields(programDataWord[:3])

		if err != nil {
			return nil, errors.Wrapf(err, "program data word %q", tokens[0])
		}

		message, err := t.handleCommand(fields[0], fields[1], fields[2])

		if err != nil {
			return nil, err
		}

		if message != nil {
			messages = append(messages, message)
		}
	}

	if len(tokens) > 2 {
		controllerWord := strings.Split(tokens[1], ";")

		if len(controllerWord) == 2 {
			fields, err := parseFields(controllerWord)

			if err != nil {
				return messages, errors.Wrapf(err, "controller word %q", tokens[1])
			}

			carID, speed := fields[0], fields[1]

			if int(carID) >= NumTrackedCars {
				return messages, errors.Wrapf(ErrCarOutOfRange, "controller word car: %d", carID)
			}

			car := &t.cars[carID]

			if car.speed != speed {
				car.speed = speed
				messages = append(messages, ControllerUpdate{ControllerID: CarID(carID), Level: speed})
			}
		}
	}

	return messages, nil
}

func (t *Tracker) handleCommand(command, data, controller uint8) (Message, error) {
	if int(controller) >= NumTrackedCars {
		return nil, errors.Wrapf(ErrCarOutOfRange, "command %d controller: %d", command, controller)
	}

	now := t.now()
	car := &t.cars[controller]

	switch command {
	case CommandLights:
		return LightUpdate(data), nil
	case CommandFuel:
		if car.fuelLevel == data {
			return nil, nil
		}

		car.fuelLevel = data

		return CarUpdate{CarID: CarID(controller), State: car.state()}, nil
	case CommandPitLane:
		switch {
		case data == 1 && !car.inPit:
			car.inPit = true
		case data == 0 && car.inPit:
			car.inPit = false
		default:
			return nil, nil
		}

		return CarUpdate{CarID: CarID(controller), State: car.state()}, nil
	case CommandFinishLine, CommandSectorLine:
		previous := car.lastLap
		car.lastLap = now

		if previous.IsZero() {
			// the first crossing starts the clock for this car
			return nil, nil
		}

		return NewLap{CarID: CarID(controller), LapTime: NewLapTime(now.Sub(previous))}, nil
	case CommandReset:
		for i := range t.cars {
			t.cars[i].lastLap = time.Time{}
		}

		return Reset{}, nil
	default:
		return nil, nil
	}
}

func parseFields(items []string) ([]uint8, error) {
	fields := make([]uint8, len(items))

	for i, item := range items {
		value, err := strconv.ParseUint(strings.TrimSpace(item), 10, 8)

		if err != nil {
			return nil, errors.Wrap(ErrMalformedLine, err.Error())
		}

		fields[i] = uint8(value)
	}

	return fields, nil
}
