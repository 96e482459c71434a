package livetiming

import (
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/JustaPenguin/carrera-live-timing/pkg/carrera"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// NumCars is the number of cars shown on the dashboard.
	NumCars = 6

	// GoLight is the light which is lit once the start sequence is over.
	GoLight = carrera.MaxLights + 1
)

var (
	ErrCarOutOfRange   = errors.New("livetiming: car id out of range")
	ErrLightOutOfRange = errors.New("livetiming: light count out of range")
)

type dashboardCar struct {
	lapCount     int
	lastLap      optionalLap
	personalBest optionalLap
	fuelPercent  float64
	fuelReported bool
}

// Dashboard reduces the race event stream into the state shown on the dashboard, and reflects every
// change into its View.
type Dashboard struct {
	cars          [NumCars]dashboardCar
	fastestLap    optionalLap
	fastestLapCar carrera.CarID
	numLights     int

	// throttle holds the last rendered throttle percentage per controller.
	throttle map[carrera.CarID]float64

	lastEventReceived time.Time
	eventsHandled     int64

	view View
	mutex sync.Mutex
}

func NewDashboard(view View) *Dashboard {
	return &Dashboard{
		view:     view,
		throttle: make(map[carrera.CarID]float64),
	}
}

// Init renders the state of a dashboard before any event has been received: the go light on, and no fastest lap.
func (d *Dashboard) Init() {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.renderLights(d.view)

	for car := 0; car < NumCars; car++ {
		d.view.SetFastestLap(carrera.CarID(car), false)
	}
}

// HandleEvent decodes and handles a single named stream event. An error means the event body could not
// be decoded; the dashboard is left untouched.
func (d *Dashboard) HandleEvent(name string, data []byte) error {
	eventsReceived.WithLabelValues(name).Inc()

	message, err := carrera.Decode(carrera.Event(name), data)

	if err != nil {
		eventDecodeFailures.WithLabelValues(name).Inc()
		return err
	}

	if message == nil {
		logrus.Debugf("Ignoring %s event with no recognised payload", name)
		return nil
	}

	d.Handle(message)

	return nil
}

// Handle applies a decoded message to the dashboard.
func (d *Dashboard) Handle(message carrera.Message) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	var err error

	switch m := message.(type) {
	case carrera.NewLap:
		err = d.OnNewLap(m)
	case carrera.LightUpdate:
		err = d.OnLightUpdate(m)
	case carrera.CarUpdate:
		err = d.OnCarUpdate(m)
	case carrera.ControllerUpdate:
		d.OnControllerUpdate(m)
	case carrera.Reset:
		logrus.Debug("Race reset by the control unit")
	default:
		// unhandled message
		return
	}

	d.lastEventReceived = time.Now()
	d.eventsHandled++

	if err != nil {
		logrus.WithError(err).Warnf("Ignoring %T message", message)
		return
	}

	messagesHandled.WithLabelValues(messageType(message)).Inc()
}

// OnNewLap occurs every time a car crosses the line. The lap count and last lap are always updated; the personal
// best and the race-wide fastest lap only change when they are strictly beaten.
func (d *Dashboard) OnNewLap(newLap carrera.NewLap) error {
	if int(newLap.CarID) >= NumCars {
		return errors.Wrapf(ErrCarOutOfRange, "new lap for car: %d", newLap.CarID)
	}

	lapTime := newLap.LapTime.Seconds()
	lapTimeString := FormatLapTime(lapTime)
	car := &d.cars[newLap.CarID]

	car.lapCount++
	d.view.SetLapCount(newLap.CarID, car.lapCount)

	if car.personalBest.beatenBy(lapTime) {
		car.personalBest.update(lapTime)
		d.view.SetPersonalBest(newLap.CarID, lapTimeString)
	}

	if d.fastestLap.beatenBy(lapTime) {
		d.fastestLap.update(lapTime)
		d.fastestLapCar = newLap.CarID

		for i := 0; i < NumCars; i++ {
			d.view.SetFastestLap(carrera.CarID(i), false)
		}

		d.view.SetFastestLap(newLap.CarID, true)
	}

	car.lastLap.update(lapTime)
	d.view.SetLastLap(newLap.CarID, lapTimeString)

	lapsCompleted.WithLabelValues(strconv.Itoa(int(newLap.CarID))).Inc()

	return nil
}

// OnLightUpdate occurs during the start sequence. Lights 1 to numLights are shown, and the go light is shown once
// no ready lights remain.
func (d *Dashboard) OnLightUpdate(lightUpdate carrera.LightUpdate) error {
	if int(lightUpdate) > carrera.MaxLights {
		return errors.Wrapf(ErrLightOutOfRange, "light update: %d", lightUpdate)
	}

	d.numLights = int(lightUpdate)
	d.renderLights(d.view)

	return nil
}

func (d *Dashboard) renderLights(view View) {
	for light := 1; light <= carrera.MaxLights; light++ {
		view.SetLight(light, d.numLights >= light)
	}

	view.SetLight(GoLight, d.numLights == 0)
}

// OnCarUpdate occurs when the control unit reports a change of state for a car. Only the fuel level is shown.
func (d *Dashboard) OnCarUpdate(carUpdate carrera.CarUpdate) error {
	if int(carUpdate.CarID) >= NumCars {
		return errors.Wrapf(ErrCarOutOfRange, "car update for car: %d", carUpdate.CarID)
	}

	fraction := carrera.FuelFraction(carUpdate.State.FuelLevel)

	if fraction < 0 || fraction > 1 {
		logrus.Warnf("Fuel level %v for car %d is outside of the gauge, clamping", carUpdate.State.FuelLevel, carUpdate.CarID)
		fraction = math.Max(0, math.Min(1, fraction))
	}

	car := &d.cars[carUpdate.CarID]
	car.fuelPercent = fraction * 100
	car.fuelReported = true

	d.view.SetFuel(carUpdate.CarID, car.fuelPercent)

	return nil
}

// OnControllerUpdate occurs when a controller's throttle changes. The throttle bar for that controller is only
// redrawn when the percentage differs from the one last drawn. Levels above carrera.MaxThrottle fill the bar.
func (d *Dashboard) OnControllerUpdate(controllerUpdate carrera.ControllerUpdate) {
	percent := carrera.ThrottlePercent(controllerUpdate.Level)

	if percent > 100 {
		logrus.Warnf("Throttle level %d for controller %d is outside of the gauge, clamping", controllerUpdate.Level, controllerUpdate.ControllerID)
		percent = 100
	}

	if percent == d.throttle[controllerUpdate.ControllerID] {
		return
	}

	d.throttle[controllerUpdate.ControllerID] = percent
	d.view.SetThrottle(controllerUpdate.ControllerID, percent)
}

// Render draws the entire current state of the dashboard into view, e.g. for a viewer which has just connected.
func (d *Dashboard) Render(view View) {
	d.RenderAndThen(view, nil)
}

// RenderAndThen renders the dashboard into view and calls then before any further event is handled.
func (d *Dashboard) RenderAndThen(view View, then func()) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.render(view)

	if then != nil {
		then()
	}
}

func (d *Dashboard) render(view View) {
	d.renderLights(view)

	for i, car := range d.cars {
		carID := carrera.CarID(i)

		view.SetLapCount(carID, car.lapCount)
		view.SetFastestLap(carID, d.fastestLap.set && d.fastestLapCar == carID)

		if car.lastLap.set {
			view.SetLastLap(carID, FormatLapTime(car.lastLap.seconds))
		}

		if car.personalBest.set {
			view.SetPersonalBest(carID, FormatLapTime(car.personalBest.seconds))
		}

		if car.fuelReported {
			view.SetFuel(carID, car.fuelPercent)
		}
	}

	for controllerID, percent := range d.throttle {
		view.SetThrottle(controllerID, percent)
	}
}

type DashboardStatus struct {
	EventsHandled     int64
	LastEventReceived time.Time
	FastestLap        string
	FastestLapCar     int
}

func (d *Dashboard) Status() DashboardStatus {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	status := DashboardStatus{
		EventsHandled:     d.eventsHandled,
		LastEventReceived: d.lastEventReceived,
		FastestLapCar:     -1,
	}

	if d.fastestLap.set {
		status.FastestLap = FormatLapTime(d.fastestLap.seconds)
		status.FastestLapCar = int(d.fastestLapCar)
	}

	return status
}

func messageType(message carrera.Message) string {
	switch message.(type) {
	case carrera.NewLap:
		return "NewLap"
	case carrera.LightUpdate:
		return "LightUpdate"
	case carrera.CarUpdate:
		return "CarUpdate"
	case carrera.ControllerUpdate:
		return "ControllerUpdate"
	case carrera.Reset:
		return "Reset"
	default:
		return "Unknown"
	}
}
