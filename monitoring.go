package livetiming

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/getsentry/raven-go"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	panicHandler = middleware.Recoverer

	defaultPanicCapture = func(fn func()) {
		defer func() {
			if r := recover(); r != nil {
				_, _ = fmt.Fprintf(logMultiWriter, "\n\nrecovered from panic: %v\n\n", r)
				_, _ = fmt.Fprint(logMultiWriter, string(debug.Stack()))
			}
		}()

		fn()
	}

	// PanicCapture runs fn, reporting (and recovering from) any panic it causes.
	PanicCapture = defaultPanicCapture

	prometheusMonitoringHandler = http.NotFoundHandler

	prometheusMonitoringWrapper = func(next http.Handler) http.Handler {
		return next
	}
)

// InitMonitoring registers the Prometheus collectors and, when a DSN is configured, sends panics to Sentry.
func InitMonitoring(config MonitoringConfig) {
	if config.SentryDSN != "" {
		logrus.Infof("initialising Raven monitoring")
		err := raven.SetDSN(config.SentryDSN)

		if err != nil {
			logrus.WithError(err).Error("could not initialise raven monitoring")
		} else {
			raven.SetRelease(BuildVersion)

			panicHandler = raven.Recoverer
			PanicCapture = func(fn func()) {
				raven.CapturePanic(fn, nil)
			}
		}
	}

	logrus.Infof("initialising Prometheus Monitoring")
	prometheus.MustRegister(
		HTTPInFlightGauge, HTTPCounter, HTTPDuration,
		eventsReceived, eventDecodeFailures, messagesHandled, lapsCompleted, connectedViewers, streamConnected,
	)
	prometheusMonitoringHandler = promhttp.Handler
	prometheusMonitoringWrapper = func(next http.Handler) http.Handler {
		return promhttp.InstrumentHandlerInFlight(HTTPInFlightGauge,
			promhttp.InstrumentHandlerDuration(HTTPDuration.MustCurryWith(prometheus.Labels{"handler": "dashboard"}),
				promhttp.InstrumentHandlerCounter(HTTPCounter, next),
			),
		)
	}
}

var HTTPInFlightGauge = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "in_flight_requests",
	Help: "A gauge of requests currently being served by the wrapped handler.",
})

var HTTPCounter = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "api_requests_total",
		Help: "A counter for requests to the wrapped handler.",
	},
	[]string{"code", "method"},
)

var HTTPDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "request_duration_seconds",
		Help:    "A histogram of latencies for requests.",
		Buckets: []float64{.01, .05, .1, .25, .5, 1},
	},
	[]string{"handler", "method"},
)

var eventsReceived = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "livetiming_events_received_total",
		Help: "Stream events received, by event name.",
	},
	[]string{"event"},
)

var eventDecodeFailures = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "livetiming_event_decode_failures_total",
		Help: "Stream events whose body could not be decoded, by event name.",
	},
	[]string{"event"},
)

var messagesHandled = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "livetiming_messages_handled_total",
		Help: "Messages applied to the dashboard, by message type.",
	},
	[]string{"type"},
)

var lapsCompleted = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "livetiming_laps_completed_total",
		Help: "Laps completed, by car.",
	},
	[]string{"car"},
)

var connectedViewers = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "livetiming_connected_viewers",
	Help: "Browsers currently connected to the dashboard websocket.",
})

var streamConnected = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "livetiming_stream_connected",
	Help: "1 while the race event stream is subscribed.",
})
