package main

import (
	"bufio"
	"context"
	"io"
	"strings"
	"time"

	"github.com/JustaPenguin/carrera-live-timing"
	"github.com/JustaPenguin/carrera-live-timing/pkg/carrera"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

const (
	arduinoVendorID = "2341"

	portSearchInterval = 10 * time.Second
)

var errNoArduino = errors.New("carrera-bridge: no arduino found")

func isArduino(port *enumerator.PortDetails) bool {
	return strings.Contains(port.Product, "Arduino") || strings.EqualFold(port.VID, arduinoVendorID)
}

func findArduino() (string, error) {
	ports, err := enumerator.GetDetailedPortsList()

	if err != nil {
		return "", errors.Wrap(err, "carrera-bridge: could not list serial ports")
	}

	for _, port := range ports {
		if port.IsUSB && isArduino(port) {
			return port.Name, nil
		}
	}

	return "", errNoArduino
}

// waitForArduino returns the configured device, or searches for an Arduino until one is plugged in.
func waitForArduino(ctx context.Context, config livetiming.BridgeConfig) (string, error) {
	if config.SerialDevice != "" {
		return config.SerialDevice, nil
	}

	for {
		device, err := findArduino()

		if err == nil {
			return device, nil
		}

		logrus.WithError(err).Warnf("waiting for the arduino, searching again in %s", portSearchInterval)

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(portSearchInterval):
		}
	}
}

// readSerial feeds lines from the Arduino through the tracker until ctx is cancelled. The port is reopened
// whenever reading from it fails.
func readSerial(ctx context.Context, config livetiming.BridgeConfig, tracker *carrera.Tracker, callback carrera.CallbackFunc) error {
	for {
		device, err := waitForArduino(ctx, config)

		if err != nil {
			return err
		}

		err = readPort(ctx, device, config.BaudRate, tracker, callback)

		if ctx.Err() != nil {
			return ctx.Err()
		}

		logrus.WithError(err).Errorf("lost connection to %s, reconnecting in %s", device, portSearchInterval)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(portSearchInterval):
		}
	}
}

func readPort(ctx context.Context, device string, baudRate int, tracker *carrera.Tracker, callback carrera.CallbackFunc) error {
	port, err := serial.Open(device, &serial.Mode{BaudRate: baudRate})

	if err != nil {
		return errors.Wrapf(err, "carrera-bridge: could not open %s", device)
	}

	logrus.Infof("reading race events from %s at %d baud", device, baudRate)

	return readLines(ctx, port, tracker, callback)
}

// readLines scans rc until it fails or ctx is cancelled, closing rc either way.
func readLines(ctx context.Context, rc io.ReadCloser, tracker *carrera.Tracker, callback carrera.CallbackFunc) error {
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			_ = rc.Close()
		case <-done:
		}
	}()

	defer rc.Close()

	return scanLines(bufio.NewScanner(rc), tracker, callback)
}

func scanLines(scanner *bufio.Scanner, tracker *carrera.Tracker, callback carrera.CallbackFunc) error {
	for scanner.Scan() {
		messages, err := tracker.HandleLine(scanner.Text())

		if err != nil {
			logrus.WithError(err).Warnf("could not handle line: %q", scanner.Text())
		}

		for _, message := range messages {
			callback(message)
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "carrera-bridge: could not read serial port")
	}

	return errors.New("carrera-bridge: serial port closed")
}
