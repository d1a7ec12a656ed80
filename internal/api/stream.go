package api

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/clawtrust/engine/internal/trust"
)

// StreamEvent is one verdict pushed over the websocket feed.
type StreamEvent struct {
	Type      string             `json:"type"`
	Timestamp time.Time          `json:"timestamp"`
	Result    *trust.TrustResult `json:"result"`
}

// Stream fans freshly computed verdicts out to websocket subscribers.
// It implements the pipeline's Publisher; publishing never blocks the
// evaluation path (events are dropped when the queue is full).
type Stream struct {
	clients    map[*websocket.Conn]bool
	events     chan StreamEvent
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	stopped    sync.Once
	upgrader   websocket.Upgrader
}

func NewStream() *Stream {
	s := &Stream{
		clients:    make(map[*websocket.Conn]bool),
		events:     make(chan StreamEvent, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	go s.run()
	return s
}

func (s *Stream) run() {
	for {
		select {
		case conn := <-s.register:
			s.clients[conn] = true
			slog.Debug("stream client connected", "total", len(s.clients))

		case conn := <-s.unregister:
			s.drop(conn)

		case event := <-s.events:
			for conn := range s.clients {
				if err := conn.WriteJSON(event); err != nil {
					slog.Debug("stream write failed", "err", err)
					s.drop(conn)
				}
			}

		case <-s.done:
			for conn := range s.clients {
				s.drop(conn)
			}
			return
		}
	}
}

// drop is only called from the run loop, which owns the clients map.
func (s *Stream) drop(conn *websocket.Conn) {
	if _, ok := s.clients[conn]; ok {
		delete(s.clients, conn)
		conn.Close()
	}
}

// Publish queues a verdict for broadcast. Non-blocking: a saturated
// queue or a closed stream drops the event.
func (s *Stream) Publish(result *trust.TrustResult) {
	event := StreamEvent{Type: "trust_result", Timestamp: time.Now(), Result: result}
	select {
	case s.events <- event:
	case <-s.done:
	default:
	}
}

// Handler upgrades the request and registers the subscriber. Inbound
// messages are read and discarded to detect disconnects.
func (s *Stream) Handler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("stream upgrade failed", "err", err)
		return
	}

	select {
	case s.register <- conn:
	case <-s.done:
		conn.Close()
		return
	}

	go func() {
		defer func() {
			select {
			case s.unregister <- conn:
			case <-s.done:
			}
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Close shuts the broadcaster down. Safe to call more than once.
func (s *Stream) Close() {
	s.stopped.Do(func() { close(s.done) })
}
