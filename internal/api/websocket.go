package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/rawblock/token-risk-guard/pkg/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // origin policy is enforced by the CORS middleware upstream
	},
}

const streamWriteTimeout = 5 * time.Second

// streamEvent is the wire envelope for one pushed verdict.
type streamEvent struct {
	Type  string           `json:"type"`
	Score models.RiskScore `json:"score"`
}

// Hub delivers completed RiskScores to subscribed dashboards. A client
// subscribes once — optionally filtered to one chain — and receives each
// verdict as the scan pipeline finishes it, instead of polling GET /scan
// per request ID.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]models.Chain // filter; empty Chain = all chains
	events  chan models.RiskScore
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]models.Chain),
		events:  make(chan models.RiskScore, 256),
	}
}

// Run drains the event channel, pushing each verdict to every client
// whose chain filter matches. Clients that fail a write are dropped; a
// stalled dashboard must not hold up verdict delivery to the rest.
func (h *Hub) Run() {
	for score := range h.events {
		payload, err := json.Marshal(streamEvent{Type: "risk_score", Score: score})
		if err != nil {
			log.Printf("[Stream] failed to marshal %s verdict for %s: %v", score.Chain, score.TokenAddress, err)
			continue
		}
		h.mu.Lock()
		for conn, filter := range h.clients {
			if filter != "" && filter != score.Chain {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Printf("[Stream] dropping client after write error: %v", err)
				conn.Close()
				delete(h.clients, conn)
			}
		}
		h.mu.Unlock()
	}
}

// Subscribe upgrades the request and registers the client for the
// risk-score feed. An optional ?chain=SOLANA query restricts the feed to
// one chain's verdicts.
// GET /api/v1/stream?chain=SOLANA
func (h *Hub) Subscribe(c *gin.Context) {
	filter := models.Chain(c.Query("chain"))
	if filter != "" && !filter.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unsupported chain filter", "chain": filter})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[Stream] upgrade failed: %v", err)
		return
	}

	h.mu.Lock()
	h.clients[conn] = filter
	n := len(h.clients)
	h.mu.Unlock()
	log.Printf("[Stream] client subscribed (filter=%q, %d connected)", filter, n)

	// The feed is push-only, but the read loop is still needed to notice
	// disconnects and unregister the client.
	go func() {
		defer func() {
			h.mu.Lock()
			delete(h.clients, conn)
			n := len(h.clients)
			h.mu.Unlock()
			conn.Close()
			log.Printf("[Stream] client disconnected (%d connected)", n)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("[Stream] read error: %v", err)
				}
				return
			}
		}
	}()
}

// Broadcast queues a completed verdict for delivery to all subscribed
// clients whose filter matches its chain.
func (h *Hub) Broadcast(score models.RiskScore) {
	h.events <- score
}
