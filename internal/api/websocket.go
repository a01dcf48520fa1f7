package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"ironsight/internal/authority"
	"ironsight/internal/scene"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	// MaxWSConnectionsTotal is the maximum number of WebSocket connections allowed
	MaxWSConnectionsTotal = 500

	// MaxWSConnectionsPerIP is the maximum WebSocket connections per IP
	MaxWSConnectionsPerIP = 10

	// maxActorIDLen bounds the actor name taken from the query string
	maxActorIDLen = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")

		// Use the centralized origin checker
		if IsAllowedOrigin(origin) {
			return true
		}

		// Log rejected origin for security monitoring
		log.Printf("websocket connection rejected from origin: %s", origin)
		RecordConnectionRejected("origin")
		return false
	},
}

// wsClient tracks one connection. Each connection is one actor; the
// actor ID is bound at upgrade time and stamped onto every inbound
// action, never read from the wire.
type wsClient struct {
	conn    *websocket.Conn
	ip      string
	actorID string
	actions *rate.Limiter
}

// HubConfig wires the hub's collaborators and DoS limits.
type HubConfig struct {
	Authority *authority.Authority

	MaxMessageBytes  int64   // per-message read limit, default 4096
	ActionsPerSecond float64 // per-connection inbound action rate, default 60
	ActionBurst      int     // default 30

	// SpawnPoints are cycled through as actors connect. Empty uses a
	// single default point.
	SpawnPoints []scene.Vec3
}

// Hub manages all WebSocket connections with DoS protection and routes
// inbound declared actions to the authority. It implements
// authority.Broadcaster for the outbound direction.
type Hub struct {
	cfg        HubConfig
	clients    map[*websocket.Conn]*wsClient
	actorConns map[string]*websocket.Conn
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *websocket.Conn
	mu         sync.RWMutex

	// Connection limiting per IP
	wsLimiter *WebSocketRateLimiter

	spawnIdx int
	spawnMu  sync.Mutex
}

// NewHub creates a hub. Run must be called before connections are
// accepted.
func NewHub(cfg HubConfig) *Hub {
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = 4096
	}
	if cfg.ActionsPerSecond <= 0 {
		cfg.ActionsPerSecond = 60
	}
	if cfg.ActionBurst <= 0 {
		cfg.ActionBurst = 30
	}
	if len(cfg.SpawnPoints) == 0 {
		cfg.SpawnPoints = []scene.Vec3{{X: 0, Y: 0, Z: 0}}
	}
	return &Hub{
		cfg:        cfg,
		clients:    make(map[*websocket.Conn]*wsClient),
		actorConns: make(map[string]*websocket.Conn),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *wsClient),
		unregister: make(chan *websocket.Conn),
		wsLimiter:  NewWebSocketRateLimiter(MaxWSConnectionsPerIP),
	}
}

// Run starts the hub loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			// Same actor reconnecting: drop the old connection. Its
			// read loop exits and unregisters, but the actor mapping
			// already points at the new connection so the session
			// survives.
			if old, ok := h.actorConns[client.actorID]; ok && old != client.conn {
				if oldClient, ok := h.clients[old]; ok {
					h.wsLimiter.Release(oldClient.ip)
					delete(h.clients, old)
				}
				old.Close()
			}
			h.clients[client.conn] = client
			h.actorConns[client.actorID] = client.conn
			count := len(h.clients)
			h.mu.Unlock()

			log.Printf("actor %s connected from %s (%d total)", client.actorID, client.ip, count)
			UpdateWSConnections(count)

		case conn := <-h.unregister:
			h.mu.Lock()
			if client, ok := h.clients[conn]; ok {
				h.wsLimiter.Release(client.ip)
				delete(h.clients, conn)
				// Only the connection that owns the actor mapping
				// tears the session down.
				if h.actorConns[client.actorID] == conn {
					delete(h.actorConns, client.actorID)
					h.cfg.Authority.Disconnect(client.actorID)
				}
				conn.Close()
			}
			count := len(h.clients)
			h.mu.Unlock()

			log.Printf("client disconnected (%d remaining)", count)
			UpdateWSConnections(count)

		case message := <-h.broadcast:
			h.mu.RLock()
			for conn := range h.clients {
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					conn.Close()
				}
			}
			h.mu.RUnlock()
			IncrementWSMessages("out")
		}
	}
}

// Broadcast sends an authoritative outcome to all connected clients.
// It satisfies authority.Broadcaster.
func (h *Hub) Broadcast(msg authority.Outbound) {
	jsonBytes, err := json.Marshal(msg)
	if err != nil {
		return
	}

	select {
	case h.broadcast <- jsonBytes:
	default:
		// Channel full, skip (backpressure)
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) nextSpawn() scene.Vec3 {
	h.spawnMu.Lock()
	defer h.spawnMu.Unlock()
	p := h.cfg.SpawnPoints[h.spawnIdx%len(h.cfg.SpawnPoints)]
	h.spawnIdx++
	return p
}

// HandleWebSocket upgrades a connection, binds it to an actor session,
// and pumps inbound declared actions into the authority.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ip := GetClientIP(r)

	actorID := r.URL.Query().Get("actor")
	if actorID == "" || len(actorID) > maxActorIDLen {
		RecordConnectionRejected("no_actor")
		http.Error(w, "actor query parameter required", http.StatusBadRequest)
		return
	}

	// Check total connection limit
	h.mu.RLock()
	totalConnections := len(h.clients)
	h.mu.RUnlock()

	if totalConnections >= MaxWSConnectionsTotal {
		log.Printf("websocket connection rejected: total limit reached (%d)", totalConnections)
		RecordConnectionRejected("ws_total_limit")
		http.Error(w, "Too many connections", http.StatusServiceUnavailable)
		return
	}

	// Check per-IP connection limit
	if !h.wsLimiter.Allow(ip) {
		log.Printf("websocket connection rejected from %s: per-IP limit reached", ip)
		RecordConnectionRejected("ws_ip_limit")
		http.Error(w, "Too many connections from your IP", http.StatusTooManyRequests)
		return
	}

	// Register the canonical session before upgrading so a full server
	// never ties up a socket.
	if _, err := h.cfg.Authority.Connect(actorID, h.nextSpawn()); err != nil {
		h.wsLimiter.Release(ip)
		RecordConnectionRejected("session_cap")
		http.Error(w, "Server full", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		h.wsLimiter.Release(ip)
		h.cfg.Authority.Disconnect(actorID)
		return
	}
	conn.SetReadLimit(h.cfg.MaxMessageBytes)

	client := &wsClient{
		conn:    conn,
		ip:      ip,
		actorID: actorID,
		actions: rate.NewLimiter(rate.Limit(h.cfg.ActionsPerSecond), h.cfg.ActionBurst),
	}
	h.register <- client

	go h.readLoop(client)
}

// readLoop drains one connection. Every action is stamped with the
// connection's actor ID; a flooding client is throttled here before
// the authority ever sees its messages.
func (h *Hub) readLoop(client *wsClient) {
	defer func() {
		h.unregister <- client.conn
	}()

	for {
		_, message, err := client.conn.ReadMessage()
		if err != nil {
			return
		}
		IncrementWSMessages("in")

		if !client.actions.Allow() {
			continue
		}

		var env authority.ActionEnvelope
		if err := json.Unmarshal(message, &env); err != nil {
			continue
		}
		env.ActorID = client.actorID
		h.cfg.Authority.HandleAction(env)
	}
}
