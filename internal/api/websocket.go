package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-device-control/internal/command"
	"github.com/nerrad567/gray-logic-device-control/internal/events"
	"github.com/nerrad567/gray-logic-device-control/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-device-control/internal/infrastructure/logging"
)

// WebSocket message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

const (
	defaultWSMaxMessageSize = 8192
	defaultWSPingInterval   = 30 * time.Second
	defaultWSPongTimeout    = 10 * time.Second

	// wsSendBufferSize is how many outbound frames a slow client may lag
	// behind before events to it are dropped.
	wsSendBufferSize = 256
)

// WSMessage is the envelope of every frame exchanged with a client.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload lists the channels of a subscribe or unsubscribe frame.
//
// Besides plain channel names a client may subscribe to one device's
// finished commands with DeviceChannel, e.g. "command.finished:<device_id>".
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// DeviceChannel returns the channel carrying finished commands of one device.
func DeviceChannel(deviceID string) string {
	return events.ChannelCommandFinished + ":" + deviceID
}

// Hub keeps the set of connected WebSocket clients and delivers events to
// the ones subscribed to them. It is a command.Observer.
//
// Thread Safety:
//   - Safe for concurrent use.
type Hub struct {
	maxMessageSize int64
	pingInterval   time.Duration
	pongWait       time.Duration
	logger         *logging.Logger
	now            func() time.Time

	mu      sync.RWMutex
	clients map[*WSClient]struct{}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The cors middleware has already vetted the Origin header.
	CheckOrigin: func(*http.Request) bool { return true },
}

// NewHub creates a hub; zero fields in cfg take the package defaults and a
// nil logger discards.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Hub{
		maxMessageSize: orDefault(int64(cfg.MaxMessageSize), defaultWSMaxMessageSize),
		pingInterval:   orDefault(time.Duration(cfg.PingInterval)*time.Second, defaultWSPingInterval),
		pongWait:       orDefault(time.Duration(cfg.PongTimeout)*time.Second, defaultWSPongTimeout),
		logger:         logger,
		now:            time.Now,
		clients:        make(map[*WSClient]struct{}),
	}
}

func orDefault[T int64 | time.Duration](v, def T) T {
	if v <= 0 {
		return def
	}
	return v
}

// Run waits for ctx to end and then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
	}
}

// Register starts delivering events to client.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n, "subject", client.subject)
}

// Unregister stops delivery to client. Whoever removes the client from the
// map closes its send channel, so repeated calls are harmless.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, ok := h.clients[client]
	delete(h.clients, client)
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		close(client.send)
		h.logger.Debug("websocket client disconnected", "clients", n, "subject", client.subject)
	}
}

// Broadcast delivers payload as an event on channel.
func (h *Hub) Broadcast(channel string, payload any) {
	h.publish(channel, payload, channel)
}

// CommandFinished delivers cmd to subscribers of events.ChannelCommandFinished
// and of the command's device channel.
func (h *Hub) CommandFinished(_ context.Context, cmd command.Command) {
	h.publish(events.ChannelCommandFinished, events.NewCommandEvent(cmd, h.now()),
		events.ChannelCommandFinished, DeviceChannel(cmd.DeviceID))
}

// publish encodes one event frame and hands it to every client subscribed
// to at least one of channels. The client set is copied first so that no
// client lock is taken while holding the hub lock.
func (h *Hub) publish(eventType string, payload any, channels ...string) {
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: eventType,
		Timestamp: h.now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("encoding websocket event failed", "event_type", eventType, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if c.subscribedToAny(channels) {
			c.trySend(data)
			delivered++
		}
	}
	if delivered > 0 {
		h.logger.Debug("websocket event delivered", "event_type", eventType, "recipients", delivered)
	}
}

// ClientCount returns how many clients are connected.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// handleWebSocket upgrades the request and starts the client's pumps. Any
// bearer token has already been checked by authMiddleware.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := newWSClient(s.hub, conn, subjectFromContext(r.Context()))
	s.hub.Register(client)

	go client.writePump()
	go client.readPump()
}
