package main

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"scrawl/wordpack"
)

const (
	idAllocRetries  = 64
	keyAllocRetries = 64
	commandBuffer   = 256
)

// GameServer owns the connection registry and the rooms. All mutation is
// funneled through a single command channel consumed by Run, so at most
// one mutation is ever in flight and rooms need no locks.
//
// located is the authoritative session-to-room mapping. It is updated on
// the dispatch goroutine in the same step that changes room occupancy,
// so a disconnecting session always leaves its room before its event
// channel is closed.
type GameServer struct {
	rooms    map[string]*Room
	sessions map[int]chan<- Event
	located  map[int]string
	packs    []*wordpack.Pack
	commands chan command
	rng      *rand.Rand
}

type command interface {
	command()
}

type connectCmd struct {
	events chan<- Event
	reply  chan int
}

type disconnectCmd struct {
	id int
}

type clientCmd struct {
	id      int
	content string
}

type roundTimeoutCmd struct {
	key     string
	roundID int
}

type newRoundCmd struct {
	key string
}

func (connectCmd) command()      {}
func (disconnectCmd) command()   {}
func (clientCmd) command()       {}
func (roundTimeoutCmd) command() {}
func (newRoundCmd) command()     {}

func NewGameServer(packs []*wordpack.Pack) *GameServer {
	return &GameServer{
		rooms:    make(map[string]*Room),
		sessions: make(map[int]chan<- Event),
		located:  make(map[int]string),
		packs:    packs,
		commands: make(chan command, commandBuffer),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run consumes commands until the context is cancelled. It is the only
// goroutine that touches server or room state.
func (s *GameServer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-s.commands:
			s.handle(cmd)
		}
	}
}

func (s *GameServer) handle(cmd command) {
	switch c := cmd.(type) {
	case connectCmd:
		c.reply <- s.connect(c.events)
	case disconnectCmd:
		s.disconnect(c.id)
	case clientCmd:
		s.dispatch(c.id, c.content)
	case roundTimeoutCmd:
		s.roundTimeout(c.key, c.roundID)
	case newRoundCmd:
		s.newRound(c.key)
	}
}

// Connect registers a session's outbound channel and returns its id, or 0
// when id allocation failed.
func (s *GameServer) Connect(events chan<- Event) int {
	reply := make(chan int, 1)
	s.commands <- connectCmd{events: events, reply: reply}
	return <-reply
}

func (s *GameServer) Disconnect(id int) {
	s.commands <- disconnectCmd{id: id}
}

func (s *GameServer) Command(id int, content string) {
	s.commands <- clientCmd{id: id, content: content}
}

func (s *GameServer) scheduleRoundTimeout(key string, roundID int, delay time.Duration) {
	time.AfterFunc(delay, func() {
		s.commands <- roundTimeoutCmd{key: key, roundID: roundID}
	})
}

func (s *GameServer) scheduleNewRound(key string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		s.commands <- newRoundCmd{key: key}
	})
}

func (s *GameServer) connect(events chan<- Event) int {
	for i := 0; i < idAllocRetries; i++ {
		id := s.rng.Int()
		if id == 0 {
			continue
		}
		if _, taken := s.sessions[id]; taken {
			continue
		}
		s.sessions[id] = events
		log.Info().Int("session", id).Int("connected", len(s.sessions)).Msg("Session connected")
		return id
	}
	log.Error().Msg("Could not allocate a session id")
	return 0
}

func (s *GameServer) disconnect(id int) {
	if key, ok := s.located[id]; ok {
		s.leaveRoom(key, id)
	}
	events, ok := s.sessions[id]
	if !ok {
		return
	}
	delete(s.sessions, id)
	close(events)
	log.Debug().Int("session", id).Int("connected", len(s.sessions)).Msg("Session disconnected")
}

// dispatch routes one inbound frame. The leading marker combined with
// whether the session currently is in a room selects the operation; any
// other combination is logged and dropped.
func (s *GameServer) dispatch(id int, content string) {
	room := s.located[id]
	if content == "" {
		log.Warn().Int("session", id).Msg("Empty message")
		return
	}
	marker := content[0]
	payload := content[1:]
	switch {
	case room != "" && marker == 'm':
		if payload == "" {
			log.Warn().Int("session", id).Str("room", room).Msg("Empty chat message")
			return
		}
		s.withRoom(room, id, func(r *Room) { r.handleGuess(id, payload) })
	case room != "" && marker == 'd':
		s.withRoom(room, id, func(r *Room) { r.handleDraw(id, payload) })
	case room != "" && marker == 'q':
		s.leaveRoom(room, id)
	case room != "" && marker == 's':
		lines := strings.Split(content, "\n")
		s.withRoom(room, id, func(r *Room) { r.start(id, lines[1:]) })
	case room != "" && marker == 'c':
		s.withRoom(room, id, func(r *Room) { r.clear(id) })
	case room == "" && marker == 'n':
		if !validUsername(payload) {
			log.Warn().Int("session", id).Str("username", payload).Msg("Invalid username creating room")
			return
		}
		s.createRoom(id, payload)
	case room == "" && marker == 'j':
		parts := strings.SplitN(payload, ",", 2)
		if len(parts) != 2 {
			log.Warn().Int("session", id).Msg("Join command without key and username")
			return
		}
		if !validUsername(parts[1]) {
			log.Warn().Int("session", id).Str("username", parts[1]).Msg("Invalid username joining room")
			return
		}
		s.joinRoom(parts[0], parts[1], id)
	default:
		log.Warn().Int("session", id).Str("marker", string(marker)).Bool("inRoom", room != "").Msg("Invalid message")
	}
}

// withRoom runs op against an existing room; commands for rooms that are
// already gone are a normal race and only logged.
func (s *GameServer) withRoom(key string, id int, op func(*Room)) {
	room, ok := s.rooms[key]
	if !ok {
		log.Warn().Int("session", id).Str("room", key).Msg("Command for a room that does not exist")
		return
	}
	op(room)
}

func (s *GameServer) createRoom(id int, username string) {
	events, ok := s.sessions[id]
	if !ok {
		log.Error().Int("session", id).Msg("Unknown session tried to create a room")
		return
	}
	key, ok := s.newRoomKey()
	if !ok {
		return
	}
	s.rooms[key] = newRoom(key, s.packs, s, s.rng, id, events, username)
	s.located[id] = key
	log.Info().Str("room", key).Str("username", username).Int("rooms", len(s.rooms)).Msg("Room created")
}

func (s *GameServer) newRoomKey() (string, bool) {
	for i := 0; i < keyAllocRetries; i++ {
		key := generateRoomKey(s.rng)
		if _, taken := s.rooms[key]; !taken {
			return key, true
		}
	}
	log.Error().Msg("Could not allocate a room key")
	return "", false
}

func (s *GameServer) joinRoom(key, username string, id int) {
	events, ok := s.sessions[id]
	if !ok {
		log.Error().Int("session", id).Msg("Unknown session tried to join a room")
		return
	}
	room, ok := s.rooms[key]
	if !ok {
		// Normal user behaviour, e.g. a mistyped key.
		log.Debug().Int("session", id).Str("room", key).Msg("Join for a room that does not exist")
		select {
		case events <- NoSuchRoom{Key: key}:
		default:
		}
		return
	}
	if room.join(id, events, username) {
		s.located[id] = key
	}
}

func (s *GameServer) leaveRoom(key string, id int) {
	room, ok := s.rooms[key]
	if !ok {
		log.Warn().Int("session", id).Str("room", key).Msg("Leave for a room that does not exist")
		return
	}
	delete(s.located, id)
	if room.leave(id) {
		delete(s.rooms, key)
		log.Debug().Str("room", key).Int("rooms", len(s.rooms)).Msg("Room empty, removed")
	}
}

func (s *GameServer) roundTimeout(key string, roundID int) {
	room, ok := s.rooms[key]
	if !ok {
		// The room can legitimately be gone by the time a timer fires.
		log.Debug().Str("room", key).Msg("Round timeout for a removed room")
		return
	}
	room.roundTimeout(roundID)
}

func (s *GameServer) newRound(key string) {
	room, ok := s.rooms[key]
	if !ok {
		log.Debug().Str("room", key).Msg("Deferred round start for a removed room")
		return
	}
	room.newRound()
}
