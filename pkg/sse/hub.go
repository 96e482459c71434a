package sse

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	keepAliveInterval = 15 * time.Second

	subscriberBufferSize = 256
)

var ErrStreamingUnsupported = errors.New("sse: response writer does not support flushing")

// Hub fans events out to every subscribed HTTP client.
type Hub struct {
	subscribers map[*subscriber]bool
	broadcast   chan Event
	register    chan *subscriber
	unregister  chan *subscriber

	// OnSubscriberCountChange is called from the hub goroutine whenever a subscriber joins or leaves.
	OnSubscriberCountChange func(count int)
}

type subscriber struct {
	id      uuid.UUID
	receive chan Event
}

func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[*subscriber]bool),
		broadcast:   make(chan Event, 1000),
		register:    make(chan *subscriber),
		unregister:  make(chan *subscriber),
	}
}

func (h *Hub) Send(event Event) error {
	h.broadcast <- event

	return nil
}

func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			for s := range h.subscribers {
				close(s.receive)
				delete(h.subscribers, s)
			}

			return nil
		case s := <-h.register:
			h.subscribers[s] = true
			h.subscriberCountChanged()
		case s := <-h.unregister:
			if _, ok := h.subscribers[s]; ok {
				close(s.receive)
				delete(h.subscribers, s)
				h.subscriberCountChanged()
			}
		case event := <-h.broadcast:
			for s := range h.subscribers {
				select {
				case s.receive <- event:
				default:
					logrus.Warnf("sse: subscriber %s is not keeping up, dropping it", s.id)
					close(s.receive)
					delete(h.subscribers, s)
					h.subscriberCountChanged()
				}
			}
		}
	}
}

func (h *Hub) subscriberCountChanged() {
	if h.OnSubscriberCountChange != nil {
		h.OnSubscriberCountChange(len(h.subscribers))
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)

	if !ok {
		logrus.WithError(ErrStreamingUnsupported).Error("could not subscribe to event stream")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	s := &subscriber{
		id:      uuid.New(),
		receive: make(chan Event, subscriberBufferSize),
	}

	select {
	case h.register <- s:
	case <-r.Context().Done():
		return
	}

	defer func() {
		select {
		case h.unregister <- s:
		case <-time.After(time.Second):
		}
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	logrus.Debugf("sse: subscriber %s connected from %s", s.id, r.RemoteAddr)

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			logrus.Debugf("sse: subscriber %s disconnected", s.id)
			return
		case event, ok := <-s.receive:
			if !ok {
				return
			}

			if _, err := w.Write(encodeEvent(event)); err != nil {
				logrus.WithError(err).Debugf("sse: could not write to subscriber %s", s.id)
				return
			}

			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ":\n\n"); err != nil {
				return
			}

			flusher.Flush()
		}
	}
}

func encodeEvent(event Event) []byte {
	var buf bytes.Buffer

	if event.ID != "" {
		fmt.Fprintf(&buf, "id: %s\n", event.ID)
	}

	if event.Name != "" && event.Name != DefaultEventName {
		fmt.Fprintf(&buf, "event: %s\n", event.Name)
	}

	for _, line := range bytes.Split(event.Data, []byte("\n")) {
		buf.WriteString("data: ")
		buf.Write(line)
		buf.WriteByte('\n')
	}

	buf.WriteByte('\n')

	return buf.Bytes()
}
