package sse

import (
	"io"
	"strings"
	"testing"
)

func TestDecoder(t *testing.T) {
	stream := strings.Join([]string{
		": keep-alive",
		"",
		"event: Arduino",
		`data: {"LightUpdate":3}`,
		"",
		"event:Controller",
		"id: 7",
		`data: {"ControllerUpdate":`,
		`data: [0,6]}`,
		"",
		"data: unnamed",
		"retry: 3000",
		"",
		"event: Empty",
		"",
		"event: Arduino",
		`data: {"LightUpdate":0}`,
		"",
		"event: Truncated",
		"data: never dispatched",
	}, "\r\n")

	decoder := NewDecoder(strings.NewReader(stream))

	expected := []Event{
		{Name: "Arduino", Data: []byte(`{"LightUpdate":3}`)},
		{ID: "7", Name: "Controller", Data: []byte("{\"ControllerUpdate\":\n[0,6]}")},
		{ID: "7", Name: DefaultEventName, Data: []byte("unnamed")},
		{ID: "7", Name: "Arduino", Data: []byte(`{"LightUpdate":0}`)},
	}

	for i, want := range expected {
		got, err := decoder.Decode()

		if err != nil {
			t.Errorf("event %d: %s", i, err)
			return
		}

		if got.ID != want.ID || got.Name != want.Name || string(got.Data) != string(want.Data) {
			t.Logf("event %d: expected %+v (%s), got %+v (%s)", i, want, want.Data, got, got.Data)
			t.Fail()
		}
	}

	if _, err := decoder.Decode(); err != io.EOF {
		t.Logf("expected io.EOF at the end of the stream, got: %v", err)
		t.Fail()
	}
}

func TestEncodeEventRoundTrip(t *testing.T) {
	event := Event{ID: "12", Name: "Arduino", Data: []byte("line one\nline two")}

	decoder := NewDecoder(strings.NewReader(string(encodeEvent(event))))

	got, err := decoder.Decode()

	if err != nil {
		t.Error(err)
		return
	}

	if got.ID != event.ID || got.Name != event.Name || string(got.Data) != string(event.Data) {
		t.Logf("expected %+v, got %+v", event, got)
		t.Fail()
	}
}
