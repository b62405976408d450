package api

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/spacewatch/backend/internal/poller"
)

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func newClient(conn *websocket.Conn) *client {
	c := &client{
		conn: conn,
		send: make(chan []byte, 64),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *client) close() {
	close(c.send)
}

// Broadcaster pushes poll cycle events to connected websocket clients.
// New clients receive a snapshot of all account statuses first, then
// live events as cycles run.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[*client]bool
	status  *poller.StatusStore
	logger  *zap.SugaredLogger
}

func NewBroadcaster(status *poller.StatusStore, logger *zap.SugaredLogger) *Broadcaster {
	return &Broadcaster{
		clients: make(map[*client]bool),
		status:  status,
		logger:  logger.Named("ws"),
	}
}

func (b *Broadcaster) AddClient(conn *websocket.Conn) *client {
	c := newClient(conn)

	b.mu.Lock()
	b.clients[c] = true
	b.mu.Unlock()

	snapshot := WSMessage{
		Type: MsgSnapshot,
		Payload: SnapshotPayload{
			Accounts: b.status.All(),
		},
	}
	data, _ := json.Marshal(snapshot)

	select {
	case c.send <- data:
	default:
		// Client too slow, drop the snapshot
	}

	return c
}

func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		c.close()
	}
	b.mu.Unlock()
}

// Publish implements poller.EventSink.
func (b *Broadcaster) Publish(ev poller.Event) {
	b.broadcast(WSMessage{Type: MsgEvent, Payload: ev})
}

func (b *Broadcaster) broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		b.logger.Errorw("broadcast marshal error", "error", err)
		return
	}

	b.mu.RLock()
	clients := make([]*client, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- data:
		default:
			// Client can't keep up, disconnect it
			b.logger.Warnw("ws client too slow, disconnecting")
			b.RemoveClient(c)
		}
	}
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}
