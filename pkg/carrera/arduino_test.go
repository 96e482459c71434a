package carrera

import (
	"reflect"
	"testing"
	"time"

	"github.com/pkg/errors"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestTracker() (*Tracker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2023, 6, 3, 14, 0, 0, 0, time.UTC)}

	return NewTrackerWithClock(clock.Now), clock
}

func TestTracker_Lights(t *testing.T) {
	tracker, _ := newTestTracker()

	messages, err := tracker.HandleLine("16;3;0\r\n")

	if err != nil {
		t.Error(err)
		return
	}

	if !reflect.DeepEqual(messages, []Message{LightUpdate(3)}) {
		t.Logf("unexpected messages: %#v", messages)
		t.Fail()
	}
}

func TestTracker_Laps(t *testing.T) {
	tracker, clock := newTestTracker()

	t.Run("First crossing starts the clock", func(t *testing.T) {
		messages, err := tracker.HandleLine("8;0;2")

		if err != nil {
			t.Error(err)
			return
		}

		if len(messages) != 0 {
			t.Logf("expected no messages on the first crossing, got: %#v", messages)
			t.Fail()
		}
	})

	t.Run("Second crossing completes a lap", func(t *testing.T) {
		clock.Advance(83*time.Second + 450*time.Millisecond)

		messages, err := tracker.HandleLine("9;0;2")

		if err != nil {
			t.Error(err)
			return
		}

		expected := []Message{NewLap{CarID: 2, LapTime: LapTime{Secs: 83, Nanos: 450000000}}}

		if !reflect.DeepEqual(messages, expected) {
			t.Logf("expected %#v, got %#v", expected, messages)
			t.Fail()
		}
	})

	t.Run("Reset clears lap timers", func(t *testing.T) {
		messages, err := tracker.HandleLine("19;0;0")

		if err != nil {
			t.Error(err)
			return
		}

		if !reflect.DeepEqual(messages, []Message{Reset{}}) {
			t.Logf("expected a reset message, got %#v", messages)
			t.Fail()
			return
		}

		clock.Advance(time.Minute)

		messages, err = tracker.HandleLine("8;0;2")

		if err != nil {
			t.Error(err)
			return
		}

		if len(messages) != 0 {
			t.Logf("expected the timer to restart after a reset, got: %#v", messages)
			t.Fail()
		}
	})
}

func TestTracker_Fuel(t *testing.T) {
	tracker, _ := newTestTracker()

	messages, err := tracker.HandleLine("4;14;1")

	if err != nil {
		t.Error(err)
		return
	}

	expected := []Message{CarUpdate{CarID: 1, State: CarState{FuelLevel: 14}}}

	if !reflect.DeepEqual(messages, expected) {
		t.Logf("expected %#v, got %#v", expected, messages)
		t.Fail()
		return
	}

	// an unchanged level is not reported again
	messages, err = tracker.HandleLine("4;14;1")

	if err != nil {
		t.Error(err)
		return
	}

	if len(messages) != 0 {
		t.Logf("expected no messages for an unchanged fuel level, got %#v", messages)
		t.Fail()
	}
}

func TestTracker_PitLane(t *testing.T) {
	tracker, _ := newTestTracker()

	steps := []struct {
		line          string
		expectUpdate  bool
		expectedInPit bool
	}{
		{line: "5;0;3", expectUpdate: false},
		{line: "5;1;3", expectUpdate: true, expectedInPit: true},
		{line: "5;1;3", expectUpdate: false},
		{line: "5;0;3", expectUpdate: true, expectedInPit: false},
	}

	for _, step := range steps {
		messages, err := tracker.HandleLine(step.line)

		if err != nil {
			t.Error(err)
			return
		}

		if !step.expectUpdate {
			if len(messages) != 0 {
				t.Logf("%s: expected no update, got %#v", step.line, messages)
				t.Fail()
			}

			continue
		}

		if len(messages) != 1 {
			t.Logf("%s: expected one update, got %#v", step.line, messages)
			t.Fail()
			continue
		}

		carUpdate, ok := messages[0].(CarUpdate)

		if !ok || carUpdate.CarID != 3 || carUpdate.State.InPit != step.expectedInPit {
			t.Logf("%s: unexpected update %#v", step.line, messages[0])
			t.Fail()
		}
	}
}

func TestTracker_ControllerWord(t *testing.T) {
	tracker, _ := newTestTracker()

	messages, err := tracker.HandleLine("0;0;0-2;6-")

	if err != nil {
		t.Error(err)
		return
	}

	expected := []Message{ControllerUpdate{ControllerID: 2, Level: 6}}

	if !reflect.DeepEqual(messages, expected) {
		t.Logf("expected %#v, got %#v", expected, messages)
		t.Fail()
		return
	}

	messages, err = tracker.HandleLine("0;0;0-2;6-")

	if err != nil {
		t.Error(err)
		return
	}

	if len(messages) != 0 {
		t.Logf("expected no update for an unchanged speed, got %#v", messages)
		t.Fail()
	}

	// without a trailing separator the controller word is not read
	messages, err = tracker.HandleLine("0;0;0-2;9")

	if err != nil {
		t.Error(err)
		return
	}

	if len(messages) != 0 {
		t.Logf("expected the controller word to be skipped, got %#v", messages)
		t.Fail()
	}
}

func TestTracker_MalformedLines(t *testing.T) {
	testCases := []struct {
		line     string
		expected error
	}{
		{line: "16;x;0", expected: ErrMalformedLine},
		{line: "16;3;9", expected: ErrCarOutOfRange},
		{line: "0;0;0-12;3-", expected: ErrCarOutOfRange},
		{line: "0;0;0-1;300-", expected: ErrMalformedLine},
	}

	for _, testCase := range testCases {
		tracker, _ := newTestTracker()

		_, err := tracker.HandleLine(testCase.line)

		if errors.Cause(err) != testCase.expected {
			t.Logf("%s: expected %v, got %v", testCase.line, testCase.expected, err)
			t.Fail()
		}
	}
}

func TestTracker_IgnoresShortLines(t *testing.T) {
	tracker, _ := newTestTracker()

	for _, line := range []string{"", "\r\n", "hello", "1;2"} {
		messages, err := tracker.HandleLine(line)

		if err != nil || len(messages) != 0 {
			t.Logf("%q: expected nothing, got %#v, %v", line, messages, err)
			t.Fail()
		}
	}
}
