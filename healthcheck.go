package livetiming

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hako/durafmt"
)

var LaunchTime = time.Now()

// StreamStatus reports whether the race event stream is currently subscribed.
type StreamStatus interface {
	IsConnected() bool
}

type HealthCheck struct {
	dashboard *Dashboard
	stream    StreamStatus
	viewers   *ViewerHub
}

func NewHealthCheck(dashboard *Dashboard, stream StreamStatus, viewers *ViewerHub) *HealthCheck {
	return &HealthCheck{
		dashboard: dashboard,
		stream:    stream,
		viewers:   viewers,
	}
}

type HealthCheckResponse struct {
	OK      bool
	Version string

	OS            string
	NumCPU        int
	NumGoroutines int
	Uptime        string
	GoVersion     string

	StreamConnected   bool
	NumViewers        int
	EventsHandled     int64
	LastEventReceived string
	FastestLap        string
	FastestLapCar     int
}

func (h *HealthCheck) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := h.dashboard.Status()

	lastEventReceived := "never"

	if !status.LastEventReceived.IsZero() {
		lastEventReceived = humanize.Time(status.LastEventReceived)
	}

	var fastestLapCar int

	if status.FastestLapCar >= 0 {
		fastestLapCar = status.FastestLapCar + 1
	}

	w.Header().Set("Content-Type", "application/json")

	_ = json.NewEncoder(w).Encode(HealthCheckResponse{
		OK:            true,
		OS:            runtime.GOOS + "/" + runtime.GOARCH,
		Version:       BuildVersion,
		NumCPU:        runtime.NumCPU(),
		NumGoroutines: runtime.NumGoroutine(),
		Uptime:        durafmt.Parse(time.Since(LaunchTime)).LimitFirstN(2).String(),
		GoVersion:     runtime.Version(),

		StreamConnected:   h.stream != nil && h.stream.IsConnected(),
		NumViewers:        h.viewers.NumViewers(),
		EventsHandled:     status.EventsHandled,
		LastEventReceived: lastEventReceived,
		FastestLap:        status.FastestLap,
		FastestLapCar:     fastestLapCar,
	})
}
