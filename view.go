package livetiming

import (
	"fmt"
	"strconv"

	"github.com/JustaPenguin/carrera-live-timing/pkg/carrera"

	"github.com/sirupsen/logrus"
)

// View is the display surface of the dashboard.
type View interface {
	SetLapCount(car carrera.CarID, laps int)
	SetLastLap(car carrera.CarID, lapTime string)
	SetPersonalBest(car carrera.CarID, lapTime string)
	SetFastestLap(car carrera.CarID, holder bool)
	SetFuel(car carrera.CarID, percent float64)
	SetLight(light int, on bool)
	SetThrottle(controller carrera.CarID, percent float64)
}

type NilView struct{}

func (NilView) SetLapCount(car carrera.CarID, laps int) {
	logrus.Debugf("car %d laps: %d", car, laps)
}

func (NilView) SetLastLap(car carrera.CarID, lapTime string) {
	logrus.Debugf("car %d last lap: %s", car, lapTime)
}

func (NilView) SetPersonalBest(car carrera.CarID, lapTime string) {
	logrus.Debugf("car %d personal best: %s", car, lapTime)
}

func (NilView) SetFastestLap(car carrera.CarID, holder bool) {
	logrus.Debugf("car %d fastest lap: %t", car, holder)
}

func (NilView) SetFuel(car carrera.CarID, percent float64) {
	logrus.Debugf("car %d fuel: %.2f%%", car, percent)
}

func (NilView) SetLight(light int, on bool) {
	logrus.Debugf("light %d: %t", light, on)
}

func (NilView) SetThrottle(controller carrera.CarID, percent float64) {
	logrus.Debugf("controller %d throttle: %.2f%%", controller, percent)
}

// MultiView draws to every one of its views, in order.
type MultiView []View

func (m MultiView) SetLapCount(car carrera.CarID, laps int) {
	for _, v := range m {
		v.SetLapCount(car, laps)
	}
}

func (m MultiView) SetLastLap(car carrera.CarID, lapTime string) {
	for _, v := range m {
		v.SetLastLap(car, lapTime)
	}
}

func (m MultiView) SetPersonalBest(car carrera.CarID, lapTime string) {
	for _, v := range m {
		v.SetPersonalBest(car, lapTime)
	}
}

func (m MultiView) SetFastestLap(car carrera.CarID, holder bool) {
	for _, v := range m {
		v.SetFastestLap(car, holder)
	}
}

func (m MultiView) SetFuel(car carrera.CarID, percent float64) {
	for _, v := range m {
		v.SetFuel(car, percent)
	}
}

func (m MultiView) SetLight(light int, on bool) {
	for _, v := range m {
		v.SetLight(light, on)
	}
}

func (m MultiView) SetThrottle(controller carrera.CarID, percent float64) {
	for _, v := range m {
		v.SetThrottle(controller, percent)
	}
}

// ElementUpdate is a change to a single element of the dashboard page. Only the non-nil fields are applied.
type ElementUpdate struct {
	Element string  `json:"Element"`
	Text    *string `json:"Text,omitempty"`
	Visible *bool   `json:"Visible,omitempty"`
	Width   *string `json:"Width,omitempty"`
}

func carElement(car carrera.CarID, name string) string {
	return fmt.Sprintf("car-%d-%s", car, name)
}

func lightElement(light int) string {
	return "light-" + strconv.Itoa(light)
}

func controllerElement(controller carrera.CarID) string {
	return "controller-" + strconv.Itoa(int(controller))
}

func textUpdate(element, text string) ElementUpdate {
	return ElementUpdate{Element: element, Text: &text}
}

func visibilityUpdate(element string, visible bool) ElementUpdate {
	return ElementUpdate{Element: element, Visible: &visible}
}

func widthUpdate(element string, percent float64) ElementUpdate {
	width := strconv.FormatFloat(percent, 'f', -1, 64) + "%"

	return ElementUpdate{Element: element, Width: &width}
}

// elementView turns View calls into ElementUpdates for the dashboard page.
type elementView func(update ElementUpdate)

func (e elementView) SetLapCount(car carrera.CarID, laps int) {
	e(textUpdate(carElement(car, "laps"), strconv.Itoa(laps)))
}

func (e elementView) SetLastLap(car carrera.CarID, lapTime string) {
	e(textUpdate(carElement(car, "last-lap"), lapTime))
}

func (e elementView) SetPersonalBest(car carrera.CarID, lapTime string) {
	e(textUpdate(carElement(car, "personal-best"), lapTime))
}

func (e elementView) SetFastestLap(car carrera.CarID, holder bool) {
	e(visibilityUpdate(carElement(car, "fastest-lap"), holder))
}

func (e elementView) SetFuel(car carrera.CarID, percent float64) {
	e(widthUpdate(carElement(car, "fuel"), percent))
}

func (e elementView) SetLight(light int, on bool) {
	e(visibilityUpdate(lightElement(light), on))
}

func (e elementView) SetThrottle(controller carrera.CarID, percent float64) {
	e(widthUpdate(controllerElement(controller), percent))
}
