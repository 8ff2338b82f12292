package ws

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/radieske/sports-prediction-pipeline/pkg/contracts/events"
	"github.com/radieske/sports-prediction-pipeline/pkg/contracts/topics"
)

const writeWait = 5 * time.Second

// client serializa as escritas: gorilla/websocket não aceita escritores concorrentes
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) send(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

func (c *client) sendJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.send(b)
}

// Hub gerencia conexões WebSocket e assinaturas por tópico
// subs: mapeia tópico (fixture:{id}) para o conjunto de clientes inscritos
// O tópico global chega a todos os clientes conectados
type Hub struct {
	upgrader websocket.Upgrader
	log      *zap.Logger
	mu       sync.RWMutex
	clients  map[*client]struct{}
	subs     map[string]map[*client]struct{}
}

// NewHub cria uma instância de Hub com política customizada de origem (CORS)
func NewHub(allowOrigin func(r *http.Request) bool, log *zap.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: allowOrigin},
		log:      log,
		clients:  make(map[*client]struct{}),
		subs:     make(map[string]map[*client]struct{}),
	}
}

// HandleWS gerencia o ciclo de vida de uma conexão WebSocket
// Permite subscribe/unsubscribe em partidas e responde a pings
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &client{conn: conn}
	defer conn.Close()

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	for {
		var msg ClientMsg
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		switch msg.Type {
		case "subscribe":
			topic, ok := topicOf(msg)
			if !ok {
				_ = c.sendJSON(ServerMsg{Type: "error", Error: "fixtureId or topic required"})
				continue
			}
			h.subscribe(c, topic)
			_ = c.sendJSON(ServerMsg{Type: "subscribed", Topic: topic})
		case "unsubscribe":
			if topic, ok := topicOf(msg); ok {
				h.unsubscribe(c, topic)
				_ = c.sendJSON(ServerMsg{Type: "unsubscribed", Topic: topic})
			}
		case "ping":
			_ = c.sendJSON(ServerMsg{Type: "pong"})
		}
	}

	// Remove a conexão de todas as assinaturas ao desconectar
	h.mu.Lock()
	delete(h.clients, c)
	for topic, set := range h.subs {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, topic)
		}
	}
	h.mu.Unlock()
}

func topicOf(msg ClientMsg) (string, bool) {
	if msg.FixtureID != "" {
		return topics.FixtureTopic(msg.FixtureID), true
	}
	if strings.HasPrefix(msg.Topic, "fixture:") && len(msg.Topic) > len("fixture:") {
		return msg.Topic, true
	}
	return "", false
}

func (h *Hub) subscribe(c *client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[topic]; !ok {
		h.subs[topic] = make(map[*client]struct{})
	}
	h.subs[topic][c] = struct{}{}
}

func (h *Hub) unsubscribe(c *client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[topic]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, topic)
		}
	}
}

// Broadcast envia o envelope aos inscritos do tópico (ou a todos, no tópico global)
func (h *Hub) Broadcast(env events.Envelope) int {
	h.mu.RLock()
	var targets []*client
	if env.Topic == topics.GlobalTopic {
		targets = make([]*client, 0, len(h.clients))
		for c := range h.clients {
			targets = append(targets, c)
		}
	} else {
		for c := range h.subs[env.Topic] {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()
	if len(targets) == 0 {
		return 0
	}

	b, err := json.Marshal(env)
	if err != nil {
		h.log.Warn("ws envelope marshal failed", zap.Error(err))
		return 0
	}
	sent := 0
	for _, c := range targets {
		if err := c.send(b); err != nil {
			h.log.Debug("ws write failed", zap.Error(err))
			continue
		}
		sent++
	}
	return sent
}

// Clients devolve o número de conexões abertas
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
