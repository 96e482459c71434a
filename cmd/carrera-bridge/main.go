package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/JustaPenguin/carrera-live-timing"
	"github.com/JustaPenguin/carrera-live-timing/pkg/carrera"
	"github.com/JustaPenguin/carrera-live-timing/pkg/carrera/replay"
	"github.com/JustaPenguin/carrera-live-timing/pkg/sse"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.etcd.io/bbolt"
	"golang.org/x/sync/errgroup"
)

const maxReplayWait = 10 * time.Second

var (
	configFile = flag.String("config", "config.yml", "path to the config file")

	subscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "carrera_bridge_subscribers",
		Help: "Clients currently subscribed to the race event stream.",
	})

	messagesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "carrera_bridge_messages_sent_total",
		Help: "Race messages broadcast to subscribers, by event name.",
	}, []string{"event"})
)

func main() {
	flag.Parse()

	config, err := livetiming.ReadConfig(*configFile)

	if err != nil {
		logrus.WithError(err).Fatal("could not read config")
	}

	livetiming.InitLogging(config.LogFile)

	ctx, cfn := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cfn()

	if err := run(ctx, config); err != nil {
		logrus.WithError(err).Fatal("bridge stopped")
	}
}

func run(ctx context.Context, config *livetiming.Configuration) error {
	hub := sse.NewHub()
	hub.OnSubscriberCountChange = func(count int) {
		logrus.Infof("%d subscriber(s) connected", count)
		subscribers.Set(float64(count))
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Get("/sse", hub.ServeHTTP)

	if config.Monitoring.Enabled {
		prometheus.MustRegister(subscribers, messagesSent)
		r.Handle("/metrics", promhttp.Handler())
	}

	server := &http.Server{Addr: config.Bridge.Hostname, Handler: r}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return hub.Run(ctx)
	})

	g.Go(func() error {
		logrus.Infof("serving race events on: http://%s/sse", config.Bridge.Hostname)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cfn := context.WithTimeout(context.Background(), 5*time.Second)
		defer cfn()

		return server.Shutdown(shutdownCtx)
	})

	broadcast := broadcaster(hub)

	g.Go(func() error {
		if config.Bridge.ReplayPath != "" {
			return replaySession(ctx, config.Bridge, broadcast)
		}

		return readSerial(ctx, config.Bridge, carrera.NewTracker(), broadcast)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}

	return nil
}

// broadcaster sends each message to every subscriber, named Controller for controller updates and Arduino
// for everything else.
func broadcaster(hub *sse.Hub) carrera.CallbackFunc {
	return func(message carrera.Message) {
		data, err := json.Marshal(message)

		if err != nil {
			logrus.WithError(err).Errorf("could not encode %T", message)
			return
		}

		event := string(message.Event())

		if err := hub.Send(sse.Event{Name: event, Data: data}); err != nil {
			logrus.WithError(err).Error("could not broadcast message")
			return
		}

		messagesSent.WithLabelValues(event).Inc()
	}
}

func replaySession(ctx context.Context, config livetiming.BridgeConfig, broadcast carrera.CallbackFunc) error {
	db, err := bbolt.Open(config.ReplayPath, 0644, &bbolt.Options{Timeout: time.Second, ReadOnly: true})

	if err != nil {
		return err
	}

	defer db.Close()

	logrus.Infof("replaying %s at %.1fx", config.ReplayPath, config.ReplayMultiplier)

	err = replay.ReplayMessages(ctx, db, config.ReplayMultiplier, broadcast, maxReplayWait)

	if err != nil {
		return err
	}

	logrus.Infof("replay of %s complete", config.ReplayPath)

	return nil
}
