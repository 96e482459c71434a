package sse

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

const (
	// DefaultEventName is used for events which do not name themselves.
	DefaultEventName = "message"

	maxLineLength = 1024 * 1024
)

type Event struct {
	ID   string
	Name string
	Data []byte
}

// Decoder reads events from a text/event-stream body as they arrive.
type Decoder struct {
	scanner *bufio.Scanner
	lastID  string
}

func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 4096), maxLineLength)

	return &Decoder{scanner: scanner}
}

// Decode blocks until the next complete event has been read. It returns io.EOF once the stream ends;
// a partially received event at the end of the stream is discarded.
func (d *Decoder) Decode() (Event, error) {
	var (
		name    string
		data    bytes.Buffer
		hasData bool
	)

	for d.scanner.Scan() {
		line := d.scanner.Text()

		if line == "" {
			if !hasData {
				name = ""
				continue
			}

			if name == "" {
				name = DefaultEventName
			}

			return Event{
				ID:   d.lastID,
				Name: name,
				Data: bytes.TrimSuffix(data.Bytes(), []byte("\n")),
			}, nil
		}

		if strings.HasPrefix(line, ":") {
			// comment, used as a keep-alive
			continue
		}

		field, value := line, ""

		if i := strings.IndexByte(line, ':'); i >= 0 {
			field = line[:i]
			value = strings.TrimPrefix(line[i+1:], " ")
		}

		switch field {
		case "event":
			name = value
		case "data":
			data.WriteString(value)
			data.WriteByte('\n')
			hasData = true
		case "id":
			if !strings.ContainsRune(value, 0) {
				d.lastID = value
			}
		default:
			// retry and unknown fields are ignored
		}
	}

	if err := d.scanner.Err(); err != nil {
		return Event{}, err
	}

	return Event{}, io.EOF
}
