package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/JustaPenguin/carrera-live-timing"
	"github.com/JustaPenguin/carrera-live-timing/pkg/carrera"
	"github.com/JustaPenguin/carrera-live-timing/pkg/carrera/replay"

	"github.com/fatih/color"
	"github.com/pkg/browser"
	"github.com/sirupsen/logrus"
	"go.etcd.io/bbolt"
	"golang.org/x/sync/errgroup"
)

var configFile = flag.String("config", "config.yml", "path to the config file")

func main() {
	flag.Parse()

	config, err := livetiming.ReadConfig(*configFile)

	if err != nil {
		logrus.WithError(err).Fatalf("could not read config file %s", *configFile)
	}

	livetiming.InitLogging(config.LogFile)

	if config.Monitoring.Enabled {
		livetiming.InitMonitoring(config.Monitoring)
	}

	ctx, cfn := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cfn()

	if err := run(ctx, config); err != nil {
		logrus.WithError(err).Fatal("live timing stopped")
	}
}

func run(ctx context.Context, config *livetiming.Configuration) error {
	hub := livetiming.NewViewerHub()

	views := livetiming.MultiView{hub}

	var terminal *livetiming.TerminalView

	if config.Dashboard.Terminal {
		terminal = livetiming.NewTerminalView(os.Stdout, config.Dashboard.TerminalRefreshInterval())
		views = append(views, terminal)
	}

	dashboard := livetiming.NewDashboard(views)
	dashboard.Init()

	var recorder carrera.CallbackFunc

	if config.Recording.IsEnabled() {
		db, err := bbolt.Open(config.Recording.Path, 0644, &bbolt.Options{Timeout: time.Second})

		if err != nil {
			return err
		}

		defer db.Close()

		logrus.Infof("recording race events to: %s", config.Recording.Path)
		recorder = replay.RecordMessages(db)
	}

	stream := livetiming.NewStream(config.Stream, dashboard, recorder)

	listener, err := net.Listen("tcp", config.HTTP.Hostname)

	if err != nil {
		return err
	}

	server := &http.Server{
		Handler: livetiming.Router(
			livetiming.StaticFiles(),
			livetiming.NewDashboardHandler(dashboard, hub),
			livetiming.NewHealthCheck(dashboard, stream, hub),
		),
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return hub.Run(ctx)
	})

	g.Go(func() error {
		// the stream is never re-established, but the dashboard keeps serving its last state.
		if err := stream.Run(ctx); err != nil && ctx.Err() == nil {
			logrus.WithError(err).Error("race event stream failed, the dashboard will no longer update")
		}

		return nil
	})

	if terminal != nil {
		g.Go(func() error {
			return terminal.Run(ctx)
		})
	}

	g.Go(func() error {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
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

	printBanner(config, listener.Addr().String())

	if config.HTTP.OpenBrowser {
		if err := browser.OpenURL(dashboardURL(listener.Addr().String())); err != nil {
			logrus.WithError(err).Warn("could not open the dashboard in a browser")
		}
	}

	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}

	return nil
}

func dashboardURL(addr string) string {
	return "http://" + strings.Replace(addr, "0.0.0.0", "127.0.0.1", 1)
}

func printBanner(config *livetiming.Configuration, addr string) {
	if config.Dashboard.Terminal {
		// the terminal view owns stdout
		logrus.Infof("live timing dashboard at %s, following %s", dashboardURL(addr), config.Stream.URL)
		return
	}

	bold := color.New(color.Bold)
	green := color.New(color.FgGreen, color.Bold)

	_, _ = bold.Printf("\nCarrera Live Timing (%s)\n\n", livetiming.BuildVersion)
	_, _ = green.Print("    dashboard: ")
	_, _ = bold.Println(dashboardURL(addr))
	_, _ = green.Print("    following: ")
	_, _ = bold.Println(config.Stream.URL)
	_, _ = bold.Println()
}
