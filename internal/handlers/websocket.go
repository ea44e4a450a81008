package handlers

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"coinflip-relay/internal/models"
	"coinflip-relay/internal/services"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	clientSendSize = 16
)

const (
	MessagePing        = "PING"
	MessagePong        = "PONG"
	MessageSubscribe   = "SUBSCRIBE_MATCH"
	MessageUnsubscribe = "UNSUBSCRIBE_MATCH"
	MessageSubscribed  = "SUBSCRIBED"
	MessageMatchUpdate = "MATCH_UPDATE"
	MessageSettlement  = "SETTLEMENT"
	MessageError       = "ERROR"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Message struct {
	Type    string      `json:"type"`
	MatchID string      `json:"match_id,omitempty"`
	Data    interface{} `json:"data,omitempty"`

	target *Client
}

// Client is one websocket connection. With no subscriptions it receives
// every update.
type Client struct {
	conn *websocket.Conn
	send chan *Message

	mu   sync.Mutex
	subs map[string]bool
}

func (c *Client) subscribe(matchID string) {
	c.mu.Lock()
	c.subs[matchID] = true
	c.mu.Unlock()
}

func (c *Client) unsubscribe(matchID string) {
	c.mu.Lock()
	delete(c.subs, matchID)
	c.mu.Unlock()
}

func (c *Client) wants(matchID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs) == 0 || matchID == "" || c.subs[matchID]
}

// WebSocketHub fans match updates out to connected clients. It implements
// services.Broadcaster.
type WebSocketHub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message
	done       chan struct{}
	metrics    *services.Metrics
}

func NewWebSocketHub(metrics *services.Metrics) *WebSocketHub {
	return &WebSocketHub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, 100),
		done:       make(chan struct{}),
		metrics:    metrics,
	}
}

// Run owns the client set until ctx is done.
func (hub *WebSocketHub) Run(ctx context.Context) error {
	defer close(hub.done)

	for {
		select {
		case <-ctx.Done():
			for client := range hub.clients {
				hub.remove(client)
			}
			return nil

		case client := <-hub.register:
			hub.clients[client] = true
			hub.updateGauge()

		case client := <-hub.unregister:
			hub.remove(client)

		case message := <-hub.broadcast:
			hub.broadcastMessage(message)
		}
	}
}

func (hub *WebSocketHub) remove(client *Client) {
	if _, ok := hub.clients[client]; !ok {
		return
	}
	delete(hub.clients, client)
	close(client.send)
	hub.updateGauge()
}

func (hub *WebSocketHub) updateGauge() {
	if hub.metrics != nil {
		hub.metrics.WebSocketClients.Update(int64(len(hub.clients)))
	}
}

func (hub *WebSocketHub) broadcastMessage(message *Message) {
	if message.target != nil {
		if hub.clients[message.target] {
			hub.deliver(message.target, message)
		}
		return
	}

	for client := range hub.clients {
		if client.wants(message.MatchID) {
			hub.deliver(client, message)
		}
	}
}

// deliver drops a client whose buffer is full rather than stall the hub.
func (hub *WebSocketHub) deliver(client *Client, message *Message) {
	select {
	case client.send <- message:
	default:
		log.Printf("WebSocket client too slow, dropping")
		hub.remove(client)
	}
}

func (hub *WebSocketHub) publish(message *Message) {
	select {
	case hub.broadcast <- message:
	default:
		log.Printf("WebSocket broadcast queue full, dropping %s for %s", message.Type, message.MatchID)
	}
}

// reply queues a message for a single client, waiting for the hub if needed.
func (hub *WebSocketHub) reply(client *Client, message *Message) {
	message.target = client
	select {
	case hub.broadcast <- message:
	case <-hub.done:
	}
}

func (hub *WebSocketHub) BroadcastMatchUpdate(match *models.Match) {
	hub.publish(&Message{
		Type:    MessageMatchUpdate,
		MatchID: match.ID,
		Data:    models.NewMatchView(match, ""),
	})
}

func (hub *WebSocketHub) BroadcastSettlement(settlement *models.Settlement) {
	hub.publish(&Message{
		Type:    MessageSettlement,
		MatchID: settlement.MatchID,
		Data:    settlement,
	})
}

type WebSocketHandler struct {
	hub *WebSocketHub
}

func NewWebSocketHandler(hub *WebSocketHub) *WebSocketHandler {
	return &WebSocketHandler{hub: hub}
}

func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Failed to upgrade to WebSocket: %v", err)
		return
	}

	client := &Client{
		conn: conn,
		send: make(chan *Message, clientSendSize),
		subs: make(map[string]bool),
	}

	select {
	case h.hub.register <- client:
	case <-h.hub.done:
		conn.Close()
		return
	}

	go client.writePump()

	defer func() {
		select {
		case h.hub.unregister <- client:
		case <-h.hub.done:
		}
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}

		h.handleMessage(client, &msg)
	}
}

func (h *WebSocketHandler) handleMessage(client *Client, msg *Message) {
	switch msg.Type {
	case MessagePing:
		h.hub.reply(client, &Message{
			Type: MessagePong,
			Data: gin.H{"timestamp": time.Now().Unix()},
		})
	case MessageSubscribe:
		if !models.IsObjectID(msg.MatchID) {
			h.hub.reply(client, &Message{Type: MessageError, Data: "invalid match id"})
			return
		}
		client.subscribe(msg.MatchID)
		h.hub.reply(client, &Message{Type: MessageSubscribed, MatchID: msg.MatchID})
	case MessageUnsubscribe:
		client.unsubscribe(msg.MatchID)
	default:
		h.hub.reply(client, &Message{Type: MessageError, Data: "unknown message type"})
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
