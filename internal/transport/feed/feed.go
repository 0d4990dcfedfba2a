package feed

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"buffmarket.gg/internal/market"
)

// Server pushes marketplace events (shop lifecycle, sales) to observer
// websockets. This is an ops/telemetry surface, not the game-client
// protocol: clients only listen, and a slow client is dropped rather
// than allowed to backpressure the marketplace.
type Server struct {
	log *log.Logger

	upgrader websocket.Upgrader

	// Observers are read-only, so liveness runs on ping/pong: a ping
	// every pingPeriod, and the read deadline extends on each pong.
	pingPeriod time.Duration
	pongWait   time.Duration

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	out chan []byte
}

const clientBuffer = 256

func NewServer(logger *log.Logger) *Server {
	return &Server{
		log: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		pingPeriod: 45 * time.Second,
		pongWait:   120 * time.Second,
		clients:    map[*client]struct{}{},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		c := &client{out: make(chan []byte, clientBuffer)}
		s.mu.Lock()
		s.clients[c] = struct{}{}
		s.mu.Unlock()
		done := make(chan struct{})

		// Writer: push events and keepalive pings until the channel
		// closes or a write fails.
		go func() {
			defer close(done)
			ping := time.NewTicker(s.pingPeriod)
			defer ping.Stop()
			for {
				select {
				case b, ok := <-c.out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						return
					}
				case <-ping.C:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
						return
					}
				}
			}
		}()

		// Reader: observers send nothing of their own; pongs extend the
		// deadline so idle clients stay connected.
		_ = conn.SetReadDeadline(time.Now().Add(s.pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(s.pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
			_ = conn.SetReadDeadline(time.Now().Add(s.pongWait))
		}

		// Unregister before closing out so Broadcast never hits a closed
		// channel.
		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()
		close(c.out)
		<-done
	}
}

// Broadcast fans an event out to every connected observer. Full client
// buffers are skipped, never waited on.
func (s *Server) Broadcast(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		s.log.Printf("feed: marshal event: %v", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.out <- b:
		default:
		}
	}
}

// ClientCount reports connected observers.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Hooks adapts the server to the registry's hook surface.
func (s *Server) Hooks() market.Hooks {
	return market.Hooks{
		ShopOpened: func(ownerID, standInID, offerings int, restored bool) {
			kind := "SHOP_OPENED"
			if restored {
				kind = "SHOP_RESTORED"
			}
			s.Broadcast(map[string]any{
				"type":        kind,
				"owner_id":    ownerID,
				"stand_in_id": standInID,
				"offerings":   offerings,
			})
		},
		ShopClosed: func(ownerID, standInID int) {
			s.Broadcast(map[string]any{
				"type":        "SHOP_CLOSED",
				"owner_id":    ownerID,
				"stand_in_id": standInID,
			})
		},
		Sale: func(e market.SaleEvent) {
			s.Broadcast(map[string]any{
				"type":     "SALE",
				"buyer_id": e.BuyerID,
				"owner_id": e.OwnerID,
				"skill_id": e.SkillID,
				"level":    e.Level,
				"price":    e.Price,
				"ok":       e.OK,
				"code":     e.Code,
			})
		},
	}
}
