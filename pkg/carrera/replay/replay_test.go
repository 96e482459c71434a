package replay

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/JustaPenguin/carrera-live-timing/pkg/carrera"

	"go.etcd.io/bbolt"
)

func openTestDB(t *testing.T) *bbolt.DB {
	t.Helper()

	db, err := bbolt.Open(filepath.Join(t.TempDir(), "session.db"), 0644, nil)

	if err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

func TestRecordAndReplay(t *testing.T) {
	db := openTestDB(t)

	start := time.Date(2023, 6, 3, 14, 0, 0, 0, time.UTC)

	messages := []carrera.Message{
		carrera.LightUpdate(5),
		carrera.LightUpdate(0),
		carrera.NewLap{CarID: 1, LapTime: carrera.LapTime{Secs: 12, Nanos: 5000}},
		carrera.ControllerUpdate{ControllerID: 1, Level: 9},
		carrera.Reset{},
	}

	for i, message := range messages {
		if err := Record(db, start.Add(time.Duration(i)*time.Second), message); err != nil {
			t.Error(err)
			return
		}
	}

	var replayed []carrera.Message

	err := ReplayMessages(context.Background(), db, 1000, func(message carrera.Message) {
		replayed = append(replayed, message)
	}, time.Millisecond)

	if err != nil {
		t.Error(err)
		return
	}

	if !reflect.DeepEqual(replayed, messages) {
		t.Logf("expected %#v, got %#v", messages, replayed)
		t.Fail()
	}
}

func TestReplayWithoutRecording(t *testing.T) {
	db := openTestDB(t)

	err := ReplayMessages(context.Background(), db, 1, func(message carrera.Message) {}, 0)

	if err != ErrNoRecording {
		t.Logf("expected ErrNoRecording, got %v", err)
		t.Fail()
	}
}

func TestReplayStopsWhenCancelled(t *testing.T) {
	db := openTestDB(t)

	start := time.Now()

	for i, message := range []carrera.Message{carrera.LightUpdate(5), carrera.LightUpdate(4)} {
		if err := Record(db, start.Add(time.Duration(i)*time.Hour), message); err != nil {
			t.Error(err)
			return
		}
	}

	ctx, cfn := context.WithCancel(context.Background())

	count := 0

	err := ReplayMessages(ctx, db, 1, func(message carrera.Message) {
		count++
		cfn()
	}, 0)

	if err != context.Canceled {
		t.Logf("expected context.Canceled, got %v", err)
		t.Fail()
	}

	if count != 1 {
		t.Logf("expected exactly one message before cancellation, got %d", count)
		t.Fail()
	}
}

func TestRecordMessagesCallback(t *testing.T) {
	db := openTestDB(t)

	callback := RecordMessages(db)
	callback(carrera.LightUpdate(2))
	callback(carrera.CarUpdate{CarID: 0, State: carrera.CarState{FuelLevel: 12}})

	entries, err := Entries(db)

	if err != nil {
		t.Error(err)
		return
	}

	if len(entries) != 2 {
		t.Logf("expected 2 entries, got %d", len(entries))
		t.Fail()
		return
	}

	if entries[1].Event != carrera.EventArduino || string(entries[1].Data) != `{"CarUpdate":[0,{"fuel_level":12,"in_pit":false,"speed":0,"last_lap":null}]}` {
		t.Logf("unexpected entry: %s %s", entries[1].Event, entries[1].Data)
		t.Fail()
	}
}
