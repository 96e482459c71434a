package livetiming

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/JustaPenguin/carrera-live-timing/pkg/carrera"

	"github.com/gorilla/websocket"
)

func TestElementView(t *testing.T) {
	var updates []ElementUpdate

	view := elementView(func(update ElementUpdate) {
		updates = append(updates, update)
	})

	view.SetLapCount(1, 12)
	view.SetLastLap(2, "1m23.45s")
	view.SetPersonalBest(3, "45.10s")
	view.SetFastestLap(4, true)
	view.SetFuel(5, 42.5)
	view.SetLight(6, false)
	view.SetThrottle(0, 40)

	expected := []string{
		`{"Element":"car-1-laps","Text":"12"}`,
		`{"Element":"car-2-last-lap","Text":"1m23.45s"}`,
		`{"Element":"car-3-personal-best","Text":"45.10s"}`,
		`{"Element":"car-4-fastest-lap","Visible":true}`,
		`{"Element":"car-5-fuel","Width":"42.5%"}`,
		`{"Element":"light-6","Visible":false}`,
		`{"Element":"controller-0","Width":"40%"}`,
	}

	if len(updates) != len(expected) {
		t.Fatalf("expected %d updates, got %d", len(expected), len(updates))
	}

	for i, update := range updates {
		encoded, err := json.Marshal(update)

		if err != nil {
			t.Error(err)
			continue
		}

		if string(encoded) != expected[i] {
			t.Logf("expected %s, got %s", expected[i], encoded)
			t.Fail()
		}
	}
}

func TestMultiView(t *testing.T) {
	a, b := newRecordingView(), newRecordingView()

	view := MultiView{a, b, NilView{}}

	view.SetLapCount(0, 1)
	view.SetLight(GoLight, true)
	view.SetThrottle(1, 20)

	for _, v := range []*recordingView{a, b} {
		if len(v.calls) != 3 || v.laps[0] != 1 || !v.lights[GoLight] || v.throttle[1] != 20 {
			t.Logf("unexpected calls: %v", v.calls)
			t.Fail()
		}
	}
}

func readUpdates(t *testing.T, conn *websocket.Conn, n int) []ElementUpdate {
	t.Helper()

	var updates []ElementUpdate

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	for len(updates) < n {
		var update ElementUpdate

		if err := conn.ReadJSON(&update); err != nil {
			t.Fatalf("could not read update %d: %s", len(updates), err)
		}

		updates = append(updates, update)
	}

	return updates
}

func TestViewerHub(t *testing.T) {
	ctx, cfn := context.WithCancel(context.Background())
	defer cfn()

	hub := NewViewerHub()

	go func() {
		_ = hub.Run(ctx)
	}()

	dashboard := NewDashboard(hub)
	dashboard.Handle(newLap(0, 45, 100000000))

	server := httptest.NewServer(http.HandlerFunc(NewDashboardHandler(dashboard, hub).websocket))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)

	if err != nil {
		t.Fatal(err)
	}

	defer conn.Close()

	// snapshot: the lights, two updates for each car and the last lap and personal best of car 0.
	snapshot := readUpdates(t, conn, GoLight+NumCars*2+2)

	found := false

	for _, update := range snapshot {
		if update.Element == "car-0-last-lap" && update.Text != nil && *update.Text == "45.10s" {
			found = true
		}
	}

	if !found {
		t.Logf("snapshot does not contain car 0's last lap: %+v", snapshot)
		t.Fail()
	}

	deadline := time.Now().Add(5 * time.Second)

	for hub.NumViewers() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("viewer was never registered")
		}

		time.Sleep(10 * time.Millisecond)
	}

	dashboard.Handle(carrera.LightUpdate(3))

	updates := readUpdates(t, conn, GoLight)

	for _, update := range updates {
		if update.Visible == nil {
			t.Logf("expected a visibility update, got %+v", update)
			t.Fail()
			continue
		}

		expected := update.Element == "light-1" || update.Element == "light-2" || update.Element == "light-3"

		if *update.Visible != expected {
			t.Logf("%s: expected visible %t", update.Element, expected)
			t.Fail()
		}
	}

	cfn()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	if _, _, err := conn.ReadMessage(); err == nil {
		t.Log("expected the connection to be closed when the hub stops")
		t.Fail()
	}
}

func TestViewerHub_UnregisterAfterRegister(t *testing.T) {
	ctx, cfn := context.WithCancel(context.Background())
	defer cfn()

	hub := NewViewerHub()

	v := &viewer{hub: hub, receive: make(chan ElementUpdate, viewerBufferSize)}

	// the viewer leaves before the hub has seen it join
	hub.register(v)
	hub.unregister(v)

	go func() {
		_ = hub.Run(ctx)
	}()

	select {
	case _, ok := <-v.receive:
		if ok {
			t.Log("expected the viewer's channel to be closed, got an update")
			t.Fail()
		}
	case <-time.After(5 * time.Second):
		t.Fatal("viewer was never removed")
	}

	deadline := time.Now().Add(5 * time.Second)

	for hub.NumViewers() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("expected no viewers, got %d", hub.NumViewers())
		}

		time.Sleep(10 * time.Millisecond)
	}

	hub.SetLight(GoLight, true)
	hub.unregister(v)

	// the hub keeps running after a second unregister of the same viewer
	other := &viewer{hub: hub, receive: make(chan ElementUpdate, viewerBufferSize)}
	hub.register(other)
	hub.SetLapCount(0, 1)

	select {
	case update := <-other.receive:
		if update.Element != "car-0-laps" {
			t.Logf("expected car 0's lap count, got %+v", update)
			t.Fail()
		}
	case <-time.After(5 * time.Second):
		t.Fatal("registered viewer received nothing")
	}
}

type syncBuffer struct {
	buf   bytes.Buffer
	mutex sync.Mutex
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.buf.String()
}

func TestTerminalView(t *testing.T) {
	out := new(syncBuffer)
	view := NewTerminalView(out, 10*time.Millisecond)

	dashboard := NewDashboard(view)
	dashboard.Init()
	dashboard.Handle(newLap(1, 83, 450000000))
	dashboard.Handle(carrera.CarUpdate{CarID: 1, State: carrera.CarState{FuelLevel: 7}})
	dashboard.Handle(carrera.ControllerUpdate{ControllerID: 1, Level: 15})

	ctx, cfn := context.WithCancel(context.Background())

	done := make(chan error)

	go func() {
		done <- view.Run(ctx)
	}()

	deadline := time.Now().Add(5 * time.Second)

	for !strings.Contains(out.String(), "1m23.45s") {
		if time.Now().After(deadline) {
			t.Fatalf("board was never drawn, output: %q", out.String())
		}

		time.Sleep(10 * time.Millisecond)
	}

	cfn()

	if err := <-done; err != nil {
		t.Error(err)
	}

	board := out.String()

	for _, expected := range []string{"Carrera Live Timing", "Controller 2", "100%", "GO"} {
		if !strings.Contains(board, expected) {
			t.Logf("board does not contain %q: %s", expected, board)
			t.Fail()
		}
	}

	// an out of range car must not panic
	view.SetLapCount(7, 1)
}
