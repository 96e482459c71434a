package livetiming

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	pingPeriod = (pongWait * 9) / 10

	viewerBufferSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// ViewerHub is a View which sends every change to all connected browser viewers.
type ViewerHub struct {
	elementView

	viewers    map[*viewer]bool
	numViewers int64

	// registrations share the broadcast queue so that a new viewer only receives
	// updates queued after its snapshot was taken, and is never unregistered before it was registered.
	broadcast chan hubMessage
}

type hubMessage struct {
	update     ElementUpdate
	register   *viewer
	unregister *viewer
}

func NewViewerHub() *ViewerHub {
	h := &ViewerHub{
		broadcast: make(chan hubMessage, 1000),
		viewers:   make(map[*viewer]bool),
	}

	h.elementView = h.Send

	return h
}

func (h *ViewerHub) Send(update ElementUpdate) {
	h.broadcast <- hubMessage{update: update}
}

func (h *ViewerHub) register(v *viewer) {
	h.broadcast <- hubMessage{register: v}
}

func (h *ViewerHub) unregister(v *viewer) {
	select {
	case h.broadcast <- hubMessage{unregister: v}:
	case <-time.After(time.Second):
	}
}

func (h *ViewerHub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			for v := range h.viewers {
				h.remove(v)
			}

			return nil
		case message := <-h.broadcast:
			switch {
			case message.register != nil:
				h.viewers[message.register] = true
				h.viewersChanged()
				continue
			case message.unregister != nil:
				h.remove(message.unregister)
				continue
			}

			for v := range h.viewers {
				select {
				case v.receive <- message.update:
				default:
					logrus.Warnf("Viewer %s is not keeping up, disconnecting", v.id)
					h.remove(v)
				}
			}
		}
	}
}

func (h *ViewerHub) remove(v *viewer) {
	if _, ok := h.viewers[v]; !ok {
		return
	}

	close(v.receive)
	delete(h.viewers, v)
	h.viewersChanged()
}

func (h *ViewerHub) viewersChanged() {
	atomic.StoreInt64(&h.numViewers, int64(len(h.viewers)))
	connectedViewers.Set(float64(len(h.viewers)))
}

// NumViewers is the number of browsers currently receiving dashboard updates.
func (h *ViewerHub) NumViewers() int {
	return int(atomic.LoadInt64(&h.numViewers))
}

type viewer struct {
	id      uuid.UUID
	hub     *ViewerHub
	conn    *websocket.Conn
	receive chan ElementUpdate
}

// view draws into this viewer only. It must only be used before the viewer is registered with the hub.
func (v *viewer) view() View {
	return elementView(func(update ElementUpdate) {
		select {
		case v.receive <- update:
		default:
			logrus.Warnf("Viewer %s snapshot does not fit in its buffer, dropping update for %s", v.id, update.Element)
		}
	})
}

func (v *viewer) readPump() {
	defer v.hub.unregister(v)

	v.conn.SetReadLimit(512)
	_ = v.conn.SetReadDeadline(time.Now().Add(pongWait))
	v.conn.SetPongHandler(func(string) error {
		return v.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		// viewers never send anything meaningful, reading only processes control frames.
		if _, _, err := v.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (v *viewer) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		if rvr := recover(); rvr != nil {
			logrus.WithField("panic", rvr).Errorf("Recovered from panic")
		}
		ticker.Stop()
		v.conn.Close()
	}()

	for {
		select {
		case update, ok := <-v.receive:
			_ = v.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if !ok {
				// The hub closed the channel.
				_ = v.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			err := v.conn.WriteJSON(update)

			if err != nil && !strings.HasSuffix(err.Error(), "write: broken pipe") {
				logrus.WithError(err).Errorf("Could not send websocket message")
				return
			} else if err != nil {
				return
			}
		case <-ticker.C:
			_ = v.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if err := v.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type DashboardHandler struct {
	dashboard *Dashboard
	hub       *ViewerHub
}

func NewDashboardHandler(dashboard *Dashboard, hub *ViewerHub) *DashboardHandler {
	return &DashboardHandler{
		dashboard: dashboard,
		hub:       hub,
	}
}

func (dh *DashboardHandler) websocket(w http.ResponseWriter, r *http.Request) {
	c, err := upgrader.Upgrade(w, r, nil)

	if err != nil {
		logrus.WithError(err).Error("Could not upgrade viewer connection")
		return
	}

	v := &viewer{
		id:      uuid.New(),
		hub:     dh.hub,
		conn:    c,
		receive: make(chan ElementUpdate, viewerBufferSize),
	}

	// new viewer, send them the whole dashboard before any further changes.
	dh.dashboard.RenderAndThen(v.view(), func() {
		dh.hub.register(v)
	})

	logrus.Debugf("Viewer %s connected from %s", v.id, r.RemoteAddr)

	go v.writePump()
	go v.readPump()
}
