package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/warp/calendar-engine/internal/log"
	"github.com/warp/calendar-engine/schedule"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second

	maxClientMessage = 512
)

// Stream message types.
const (
	MessageSnapshot = "snapshot"
	MessagePong     = "pong"
)

// streamClient is one WebSocket connection fed from a bus subscription.
// Only writePump writes to conn.
type streamClient struct {
	conn *websocket.Conn
	sub  *schedule.Subscription
	pong chan struct{}
	done chan struct{}
}

func (h *Handler) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || originAllowed(h.origins(), origin)
		},
	}
}

// Stream upgrades to a WebSocket and pushes the latest snapshot on connect
// and after every commit. A slow client skips intermediate versions.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader().Upgrade(w, r, nil)
	if err != nil {
		log.Warn("stream upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	c := &streamClient{
		conn: conn,
		sub:  h.Store.Subscribe(),
		pong: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	log.Info("stream client connected", "client", c.sub.ID(), "remote", r.RemoteAddr)

	go c.readPump()
	c.writePump()

	log.Info("stream client disconnected", "client", c.sub.ID())
}

// readPump drains client frames until the connection fails. The only
// client message understood is {"action":"ping"}.
func (c *streamClient) readPump() {
	defer close(c.done)

	c.conn.SetReadLimit(maxClientMessage)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("stream read failed", "client", c.sub.ID(), "err", err)
			}
			return
		}

		var msg struct {
			Action string `json:"action"`
		}
		if json.Unmarshal(message, &msg) == nil && msg.Action == "ping" {
			select {
			case c.pong <- struct{}{}:
			default:
			}
		}
	}
}

func (c *streamClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.sub.Close()
		c.conn.Close()
	}()

	for {
		select {
		case snap, ok := <-c.sub.C():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "store closed"))
				return
			}
			if err := c.conn.WriteJSON(snapshotMessage(snap)); err != nil {
				return
			}

		case <-c.pong:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(map[string]any{"type": MessagePong, "at": time.Now().UTC()}); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}

func snapshotMessage(s schedule.Snapshot) StreamMessage {
	return StreamMessage{
		Type:    MessageSnapshot,
		Version: s.Version,
		At:      s.At,
		Events:  toEventDTOs(s.Events),
	}
}
