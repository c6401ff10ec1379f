// internal/handlers/server.go
package handlers

import (
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/sagivamit/simon-game-app/internal/orchestrator"
	"github.com/sagivamit/simon-game-app/internal/room"
)

// Server is the transport layer: it owns the websocket connection registry
// and bridges it to the orchestrator's SendToSocketsFn. Everything below it
// addresses players by opaque socket ids, never by connection objects.
type Server struct {
	Orch  *orchestrator.Orchestrator
	Rooms *room.Store

	clock  clockwork.Clock
	logger *logrus.Logger

	mu    sync.Mutex
	conns map[string]*wsConn
}

// wsConn is one registered websocket. Outbound events flow through OutChan
// so the orchestrator never blocks on a slow client.
type wsConn struct {
	socketID string
	playerID uuid.UUID
	roomCode string
	out      chan orchestrator.Event
}

// NewServer wires a store, an orchestrator and the connection registry.
func NewServer(logger *logrus.Logger, clock clockwork.Clock) *Server {
	rooms := room.NewStore(clock)
	s := &Server{
		Orch:   orchestrator.New(clock, rooms),
		Rooms:  rooms,
		clock:  clock,
		logger: logger,
		conns:  make(map[string]*wsConn),
	}
	s.Orch.SendToSocketsFn = s.sendToSockets
	return s
}

func (s *Server) register(c *wsConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[c.socketID] = c
}

func (s *Server) unregister(socketID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.conns[socketID]; ok {
		close(c.out)
		delete(s.conns, socketID)
	}
}

// sendToSockets fans an event out to the write pumps of the named sockets.
// A full out channel means the client has stalled; the event is dropped and
// the client recovers from the next snapshot.
func (s *Server) sendToSockets(socketIDs []string, ev orchestrator.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range socketIDs {
		c, ok := s.conns[id]
		if !ok {
			continue
		}
		select {
		case c.out <- ev:
		default:
			s.logger.Warnf("socket %s: outbound buffer full, dropping %s", id, ev.Type)
		}
	}
}
