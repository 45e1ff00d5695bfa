// Package inspector exposes the State Store's snapshots to local
// tooling over a loopback WebSocket, mirroring the ping/pong and
// write-pump discipline of the agent's reconnecting client, but in the
// server role: the core publishes, dev tooling subscribes.
package inspector

import (
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/screenbridge/hostcore/internal/logging"
	"github.com/screenbridge/hostcore/internal/store"
)

var log = logging.L("inspector")

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
	sendBuffer     = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server publishes every Snapshot it receives from the store to every
// connected WebSocket subscriber, for local debugging/inspection
// tooling rather than as a remote control surface.
type Server struct {
	addr string

	mu          sync.Mutex
	subscribers map[*subscriber]struct{}

	httpServer *http.Server
	unsubStore func()
}

type subscriber struct {
	conn     *websocket.Conn
	send     chan []byte
	doneOnce sync.Once
	done     chan struct{}
}

// New returns a Server that will listen on addr once Start is called.
func New(addr string) *Server {
	return &Server{
		addr:        addr,
		subscribers: make(map[*subscriber]struct{}),
	}
}

// Attach subscribes the server to st, publishing every batched
// snapshot to all connected clients. Stop unsubscribes.
func (s *Server) Attach(st *store.Store) {
	s.unsubStore = st.Subscribe(func(snap store.Snapshot) {
		data, err := json.Marshal(snap)
		if err != nil {
			log.Warn("marshal snapshot failed", "error", err)
			return
		}
		s.broadcast(data)
	})
}

// Start begins serving WebSocket upgrades on addr. It returns once the
// listener is bound; Serve runs in a background goroutine.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleUpgrade)

	s.httpServer = &http.Server{Addr: s.addr, Handler: mux}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Warn("inspector server stopped", "error", err)
		}
	}()
	return nil
}

// Stop unsubscribes from the store, closes every subscriber
// connection, and closes the listener.
func (s *Server) Stop() {
	if s.unsubStore != nil {
		s.unsubStore()
		s.unsubStore = nil
	}

	s.mu.Lock()
	subs := make([]*subscriber, 0, len(s.subscribers))
	for sub := range s.subscribers {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
	if s.httpServer != nil {
		s.httpServer.Close()
	}
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("upgrade failed", "error", err)
		return
	}

	sub := &subscriber{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
	s.mu.Lock()
	s.subscribers[sub] = struct{}{}
	s.mu.Unlock()

	go s.writePump(sub)
	go s.readPump(sub)
}

// readPump exists only to observe pong/close frames and detect a dead
// peer; the inspector protocol carries no inbound commands.
func (s *Server) readPump(sub *subscriber) {
	defer s.drop(sub)

	sub.conn.SetReadLimit(maxMessageSize)
	sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	sub.conn.SetPongHandler(func(string) error {
		sub.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writePump(sub *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer s.drop(sub)

	for {
		select {
		case <-sub.done:
			return
		case data := <-sub.send:
			sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sub.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) broadcast(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subscribers {
		select {
		case sub.send <- data:
		default:
			log.Warn("subscriber send buffer full, dropping snapshot")
		}
	}
}

func (s *Server) drop(sub *subscriber) {
	s.mu.Lock()
	delete(s.subscribers, sub)
	s.mu.Unlock()
	sub.close()
}

func (sub *subscriber) close() {
	sub.doneOnce.Do(func() {
		close(sub.done)
		sub.conn.Close()
	})
}
