package replay

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/JustaPenguin/carrera-live-timing/pkg/carrera"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.etcd.io/bbolt"
)

var eventsBucket = []byte("events")

var ErrNoRecording = errors.New("replay: no recorded events found")

type Entry struct {
	Received time.Time       `json:"Received"`
	Event    carrera.Event   `json:"Event"`
	Data     json.RawMessage `json:"Data"`
}

func (e *Entry) Message() (carrera.Message, error) {
	return carrera.Decode(e.Event, e.Data)
}

// RecordMessages returns a callback which appends every message it is given to the events bucket of db.
func RecordMessages(db *bbolt.DB) carrera.CallbackFunc {
	return func(message carrera.Message) {
		if err := Record(db, time.Now(), message); err != nil {
			logrus.WithError(err).Errorf("could not record %T message", message)
		}
	}
}

func Record(db *bbolt.DB, received time.Time, message carrera.Message) error {
	data, err := json.Marshal(message)

	if err != nil {
		return errors.Wrapf(err, "replay: could not encode %T", message)
	}

	entry, err := json.Marshal(Entry{
		Received: received,
		Event:    message.Event(),
		Data:     data,
	})

	if err != nil {
		return err
	}

	return db.Update(func(tx *bbolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists(eventsBucket)

		if err != nil {
			return err
		}

		id, err := bkt.NextSequence()

		if err != nil {
			return err
		}

		return bkt.Put(itob(id), entry)
	})
}

// Entries loads every recorded entry, oldest first.
func Entries(db *bbolt.DB) ([]*Entry, error) {
	var entries []*Entry

	err := db.View(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(eventsBucket)

		if bkt == nil {
			return ErrNoRecording
		}

		return bkt.ForEach(func(k, v []byte) error {
			var entry *Entry

			if err := json.Unmarshal(v, &entry); err != nil {
				return errors.Wrapf(err, "replay: could not decode entry %d", binary.BigEndian.Uint64(k))
			}

			entries = append(entries, entry)

			return nil
		})
	})

	return entries, err
}

// ReplayMessages sends the recorded messages to callbackFunc, waiting between them as long as they were apart when
// recorded, divided by multiplier. No single wait is longer than maxWait (when maxWait is positive).
func ReplayMessages(ctx context.Context, db *bbolt.DB, multiplier float64, callbackFunc carrera.CallbackFunc, maxWait time.Duration) error {
	if multiplier <= 0 {
		multiplier = 1
	}

	entries, err := Entries(db)

	if err != nil {
		return err
	}

	if len(entries) == 0 {
		return nil
	}

	timeStart := entries[0].Received

	for _, entry := range entries {
		tickDuration := time.Duration(float64(entry.Received.Sub(timeStart)) / multiplier)

		if maxWait > 0 && tickDuration > maxWait {
			tickDuration = maxWait
		}

		logrus.Debugf("next event occurs in: %s", tickDuration)

		if tickDuration > 0 {
			timer := time.NewTimer(tickDuration)

			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		message, err := entry.Message()

		if err != nil {
			logrus.WithError(err).Warnf("skipping unreadable %s entry", entry.Event)
		} else if message != nil {
			callbackFunc(message)
		}

		timeStart = entry.Received
	}

	return nil
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)

	return b
}
