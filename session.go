package main

import (
	"net"

	"github.com/gobwas/ws/wsutil"
)

const sessionSendBuffer = 64

// Session adapts one websocket connection to the game server: it owns the
// outbound event channel and encodes events to wire frames. Which room
// the session is in is tracked by the server, not here, so the routing of
// inbound frames never lags behind the event stream.
type Session struct {
	conn   net.Conn
	server *GameServer
	events chan Event
}

func NewSession(conn net.Conn, server *GameServer) *Session {
	return &Session{
		conn:   conn,
		server: server,
		events: make(chan Event, sessionSendBuffer),
	}
}

// Serve pumps the connection until it closes, then deregisters it. The
// server closes the event channel once the disconnect is processed, which
// ends the writer.
func (s *Session) Serve() {
	defer s.conn.Close()
	id := s.server.Connect(s.events)
	if id == 0 {
		return
	}
	go s.writeEvents(id)
	s.events <- Connected{ID: id}
	for {
		message, err := wsutil.ReadClientText(s.conn)
		if err != nil {
			break
		}
		s.server.Command(id, string(message))
	}
	s.server.Disconnect(id)
}

// writeEvents drains the event channel until the server closes it. Write
// failures are expected when the socket closed concurrently; the channel
// is drained regardless so the dispatch loop never blocks on this
// session.
func (s *Session) writeEvents(id int) {
	logger := sessionLogger(id)
	write := func(frame string) {
		if err := wsutil.WriteServerText(s.conn, []byte(frame)); err != nil {
			logger.Debug().Err(err).Msg("Failed to write event")
		}
	}
	for event := range s.events {
		if history, ok := event.(DrawHistory); ok {
			for _, stroke := range history.Strokes {
				write(Draw{Stroke: stroke}.encode())
			}
			continue
		}
		write(event.encode())
	}
}
