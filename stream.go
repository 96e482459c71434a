package livetiming

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/JustaPenguin/carrera-live-timing/pkg/carrera"
	"github.com/JustaPenguin/carrera-live-timing/pkg/sse"

	"github.com/sirupsen/logrus"
)

// Stream is the dashboard's single subscription to the race event stream.
type Stream struct {
	client    *sse.Client
	dashboard *Dashboard
	recorder  carrera.CallbackFunc

	connected int32
}

// NewStream subscribes dashboard to the stream described by config. If recorder is non-nil, every decoded
// message is also passed to it.
func NewStream(config StreamConfig, dashboard *Dashboard, recorder carrera.CallbackFunc) *Stream {
	s := &Stream{
		dashboard: dashboard,
		recorder:  recorder,
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: config.Timeout,
		},
	}

	s.client = sse.NewClient(config.URL, s.handle, sse.WithHTTPClient(httpClient), sse.WithOnConnect(func() {
		s.setConnected(true)
	}))

	return s
}

// Run handles events until the stream ends or ctx is cancelled. The stream is not re-established. The stream
// only reports itself connected once the server has answered with an event stream.
func (s *Stream) Run(ctx context.Context) error {
	defer s.setConnected(false)

	err := s.client.Run(ctx)

	if err == nil {
		logrus.Warn("race event stream closed by the server")
	}

	return err
}

func (s *Stream) IsConnected() bool {
	return atomic.LoadInt32(&s.connected) == 1
}

func (s *Stream) setConnected(connected bool) {
	if connected {
		atomic.StoreInt32(&s.connected, 1)
		streamConnected.Set(1)
	} else {
		atomic.StoreInt32(&s.connected, 0)
		streamConnected.Set(0)
	}
}

func (s *Stream) handle(event sse.Event) {
	PanicCapture(func() {
		if err := s.dashboard.HandleEvent(event.Name, event.Data); err != nil {
			logrus.WithError(err).Warnf("Could not handle %s event", event.Name)
			return
		}

		if s.recorder == nil {
			return
		}

		message, err := carrera.Decode(carrera.Event(event.Name), event.Data)

		if err == nil && message != nil {
			s.recorder(message)
		}
	})
}
