package rpc

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/service"

	"guardbft/config"
	"guardbft/consensus"
)

// Hub pushes every message of the consensus stream to websocket
// subscribers, e.g. the relayer picking up submissions.
type Hub struct {
	service.BaseService

	config   *config.FeedConfig
	upgrader websocket.Upgrader

	mtx     sync.RWMutex
	clients map[*feedClient]struct{}
}

var _ consensus.Broadcaster = (*Hub)(nil)

type feedClient struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
	done chan struct{}
}

func (c *feedClient) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func NewHub(cfg *config.FeedConfig) *Hub {
	h := &Hub{
		config: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*feedClient]struct{}),
	}
	h.BaseService = *service.NewBaseService(nil, "FeedHub", h)
	return h
}

func (h *Hub) OnStop() {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	for c := range h.clients {
		c.close()
		delete(h.clients, c)
	}
}

func (h *Hub) NumClients() int {
	h.mtx.RLock()
	defer h.mtx.RUnlock()
	return len(h.clients)
}

// Broadcast encodes msg once and queues it for every client. Clients whose
// buffer is full are disconnected.
func (h *Hub) Broadcast(msg consensus.ConsensusMessage) {
	if !h.IsRunning() {
		return
	}
	bz, err := consensus.EncodeMessage(msg)
	if err != nil {
		h.Logger.Error("encode feed message failed", "msg", msg, "err", err)
		return
	}

	h.mtx.Lock()
	defer h.mtx.Unlock()
	for c := range h.clients {
		select {
		case c.send <- bz:
		default:
			h.Logger.Info("feed client too slow, disconnect", "remote", c.conn.RemoteAddr())
			c.close()
			delete(h.clients, c)
		}
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.IsRunning() {
		http.Error(w, "feed is not running", http.StatusServiceUnavailable)
		return
	}
	if h.NumClients() >= h.config.MaxConnections {
		http.Error(w, "too many feed connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Error("upgrade feed connection failed", "err", err)
		return
	}

	c := &feedClient{
		conn: conn,
		send: make(chan []byte, h.config.SendBufferSize),
		done: make(chan struct{}),
	}
	h.mtx.Lock()
	h.clients[c] = struct{}{}
	h.mtx.Unlock()
	h.Logger.Info("new feed client", "remote", conn.RemoteAddr())

	go h.writeRoutine(c)
	go h.readRoutine(c)
}

func (h *Hub) remove(c *feedClient) {
	h.mtx.Lock()
	delete(h.clients, c)
	h.mtx.Unlock()
	c.close()
}

// readRoutine discards client frames, it only keeps control frames flowing
func (h *Hub) readRoutine(c *feedClient) {
	defer h.remove(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.Logger.Debug("feed client read failed", "remote", c.conn.RemoteAddr(), "err", err)
			}
			return
		}
	}
}

func (h *Hub) writeRoutine(c *feedClient) {
	pingTicker := time.NewTicker(h.config.PingPeriod)
	defer func() {
		pingTicker.Stop()
		h.remove(c)
	}()

	for {
		select {
		case bz := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(h.config.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, bz); err != nil {
				h.Logger.Error(errors.Wrap(err, "failed to write feed message").Error(), "remote", c.conn.RemoteAddr())
				return
			}
		case <-pingTicker.C:
			c.conn.SetWriteDeadline(time.Now().Add(h.config.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				h.Logger.Debug("failed to write ping", "remote", c.conn.RemoteAddr(), "err", err)
				return
			}
		case <-c.done:
			return
		}
	}
}
