package carrera

import (
	"encoding/json"
	"time"
)

// Event is the name a message is published under on the event stream.
type Event string

const (
	EventArduino    Event = "Arduino"
	EventController Event = "Controller"
)

const (
	// NumTrackedCars is the number of car slots the control unit reports on.
	NumTrackedCars = 8

	// MaxLights is the number of ready lights in the start sequence.
	MaxLights = 5

	// MaxThrottle is the highest raw controller throttle value.
	MaxThrottle = 15
)

type Message interface {
	Event() Event
}

type CallbackFunc func(message Message)

type CarID uint8

// LapTime is an elapsed time split into whole seconds and nanoseconds, the way it is sent on the wire.
type LapTime struct {
	Secs  uint64 `json:"secs"`
	Nanos uint32 `json:"nanos"`
}

func NewLapTime(d time.Duration) LapTime {
	if d < 0 {
		d = 0
	}

	return LapTime{
		Secs:  uint64(d / time.Second),
		Nanos: uint32(d % time.Second),
	}
}

func (l LapTime) Duration() time.Duration {
	return time.Duration(l.Secs)*time.Second + time.Duration(l.Nanos)
}

func (l LapTime) Seconds() float64 {
	return float64(l.Secs) + float64(l.Nanos)/1e9
}

// SystemTime is a wall clock time expressed relative to the unix epoch.
type SystemTime struct {
	SecsSinceEpoch  int64 `json:"secs_since_epoch"`
	NanosSinceEpoch int64 `json:"nanos_since_epoch"`
}

func NewSystemTime(t time.Time) *SystemTime {
	return &SystemTime{
		SecsSinceEpoch:  t.Unix(),
		NanosSinceEpoch: int64(t.Nanosecond()),
	}
}

func (s SystemTime) Time() time.Time {
	return time.Unix(s.SecsSinceEpoch, s.NanosSinceEpoch)
}

type NewLap struct {
	CarID   CarID
	LapTime LapTime
}

func (NewLap) Event() Event {
	return EventArduino
}

func (n NewLap) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string][]interface{}{
		"NewLap": {n.CarID, n.LapTime},
	})
}

// LightUpdate is the number of ready lights currently lit. Zero means the race has started.
type LightUpdate uint8

func (LightUpdate) Event() Event {
	return EventArduino
}

func (l LightUpdate) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]uint8{
		"LightUpdate": uint8(l),
	})
}

// CarState is the state the control unit reports for a single car.
// FuelLevel is the raw sensor value, see FuelFraction.
type CarState struct {
	FuelLevel float64     `json:"fuel_level"`
	InPit     bool        `json:"in_pit"`
	Speed     uint8       `json:"speed"`
	LastLap   *SystemTime `json:"last_lap"`
}

type CarUpdate struct {
	CarID CarID
	State CarState
}

func (CarUpdate) Event() Event {
	return EventArduino
}

func (c CarUpdate) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string][]interface{}{
		"CarUpdate": {c.CarID, c.State},
	})
}

type ControllerUpdate struct {
	ControllerID CarID
	Level        uint8
}

func (ControllerUpdate) Event() Event {
	return EventController
}

func (c ControllerUpdate) MarshalJSON() ([]byte, error) {
	// []uint8 would be encoded as a base64 string.
	return json.Marshal(map[string][]int{
		"ControllerUpdate": {int(c.ControllerID), int(c.Level)},
	})
}

// Reset is sent when the control unit restarts a race.
type Reset struct{}

func (Reset) Event() Event {
	return EventArduino
}

func (Reset) MarshalJSON() ([]byte, error) {
	return []byte(`"Reset"`), nil
}

// FuelFraction folds a raw fuel sensor value into a fraction of a full tank.
// Raw values of 8 and above are folded back by 8 before normalising against 7.
// What the upper half encodes has not been confirmed against the control unit.
func FuelFraction(raw float64) float64 {
	if raw >= 8 {
		raw -= 8
	}

	return raw / 7.0
}

// ThrottlePercent converts a raw controller level (0-15) into a percentage.
func ThrottlePercent(level uint8) float64 {
	return (float64(level) / MaxThrottle) * 100
}
