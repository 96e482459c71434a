package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/JustaPenguin/carrera-live-timing/pkg/carrera"
	"github.com/JustaPenguin/carrera-live-timing/pkg/carrera/replay"
	"github.com/JustaPenguin/carrera-live-timing/pkg/sse"

	"github.com/sirupsen/logrus"
	"go.etcd.io/bbolt"
)

var (
	streamURL   = flag.String("url", "http://127.0.0.1:3000/sse", "race event stream to record")
	sessionFile = flag.String("out", time.Now().Format("2006-01-02_15.04.db"), "file to record the session into")
)

func main() {
	flag.Parse()

	db, err := bbolt.Open(*sessionFile, 0644, &bbolt.Options{Timeout: time.Second})

	if err != nil {
		logrus.WithError(err).Fatal("can't open bolt store")
	}

	defer db.Close()

	callback := replay.RecordMessages(db)

	ctx, cfn := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cfn()

	client := sse.NewClient(*streamURL, func(event sse.Event) {
		message, err := carrera.Decode(carrera.Event(event.Name), event.Data)

		if err != nil {
			logrus.WithError(err).Warnf("could not decode %s event", event.Name)
			return
		} else if message == nil {
			return
		}

		logrus.Printf("%s %T", event.Name, message)
		callback(message)
	})

	logrus.Infof("recording %s into %s", *streamURL, *sessionFile)

	if err := client.Run(ctx); err != nil && err != context.Canceled {
		logrus.WithError(err).Error("can't record")
	}
}
