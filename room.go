package main

import (
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"scrawl/wordpack"
)

const (
	roundDuration  = 120 * time.Second
	nextRoundDelay = 5 * time.Second

	maxCoordinate     = 500
	maxPenSize        = 10
	strokeFieldCount  = 5
	maxUsernameLength = 15
)

// Stroke is one freehand line segment of the leader's drawing.
type Stroke struct {
	X1, X2, Y1, Y2, PenSize uint32
}

// roomState is the tagged union of the three room phases. Each phase
// carries only its own fields; state-dependent operations type-switch and
// reject the rest explicitly.
type roomState interface {
	roomState()
}

type lobbyState struct {
	host int
}

type roundState struct {
	word     chosenWord
	leader   int
	roundID  int
	deadline int64
}

type winnerState struct {
	winner    int
	points    int
	word      chosenWord
	alternate string
}

func (lobbyState) roomState()  {}
func (roundState) roomState()  {}
func (winnerState) roomState() {}

// chosenWord is a drawn word: its flat index across the enabled packs and
// the (pack, local index) pair that flat index resolves to.
type chosenWord struct {
	flat  int
	pack  int
	index int
}

type settings struct {
	packs      []int
	timed      bool
	allowClear bool
}

type occupant struct {
	events chan<- Event
	name   string
	points int
}

// scheduler re-enters the serialized dispatch context after a delay.
// Timeouts carry the round id valid at schedule time; a fired callback
// whose id no longer matches is a no-op, which is the only cancellation
// mechanism the room needs.
type scheduler interface {
	scheduleRoundTimeout(key string, roundID int, delay time.Duration)
	scheduleNewRound(key string, delay time.Duration)
}

// Room owns all state of one game instance. Every method runs on the
// server's dispatch goroutine, so none of the fields need locking.
type Room struct {
	key         string
	state       roomState
	occupants   map[int]*occupant
	queue       []int
	packs       []*wordpack.Pack
	settings    settings
	excluded    []int
	maxExcluded int
	drawHistory []Stroke
	roundID     int
	sched       scheduler
	rng         *rand.Rand
	log         zerolog.Logger
}

func newRoom(key string, packs []*wordpack.Pack, sched scheduler, rng *rand.Rand, id int, events chan<- Event, username string) *Room {
	r := &Room{
		key:       key,
		state:     lobbyState{host: id},
		occupants: map[int]*occupant{id: {events: events, name: username}},
		queue:     []int{id},
		packs:     packs,
		sched:     sched,
		rng:       rng,
		log:       roomLogger(key),
	}
	r.send(events, EnterRoom{Key: key, Users: r.userList()})
	r.send(events, EnterLobby{Host: id})
	r.send(events, SettingsData{Packs: packs})
	return r
}

// send delivers an event without ever blocking the dispatch goroutine. A
// full connection buffer simply misses the event. The registry removes an
// occupant before closing its channel, so channels held here are always
// open.
func (r *Room) send(events chan<- Event, event Event) {
	select {
	case events <- event:
	default:
		r.log.Debug().Msg("Dropped event for unresponsive connection")
	}
}

func (r *Room) broadcast(event Event) {
	for _, o := range r.occupants {
		r.send(o.events, event)
	}
}

func (r *Room) userList() []RoomUser {
	users := make([]RoomUser, 0, len(r.occupants))
	for id, o := range r.occupants {
		users = append(users, RoomUser{ID: id, Name: o.name})
	}
	return users
}

// join adds a session to the room and reports whether it is an occupant
// afterwards, so the registry can record where the session lives.
func (r *Room) join(id int, events chan<- Event, username string) bool {
	if _, ok := r.occupants[id]; ok {
		r.log.Warn().Int("session", id).Msg("Session is already in the room")
		return true
	}
	for _, o := range r.occupants {
		if o.name == username {
			r.log.Info().Str("username", username).Msg("Username already taken")
			r.send(events, UsernameTaken{Name: username})
			return false
		}
	}
	r.broadcast(UserJoined{ID: id, Name: username})
	r.occupants[id] = &occupant{events: events, name: username}
	r.send(events, EnterRoom{Key: r.key, Users: r.userList()})
	switch state := r.state.(type) {
	case lobbyState:
		r.send(events, EnterLobby{Host: state.host})
	case roundState:
		r.send(events, NewRound{Leader: state.leader, Deadline: state.deadline})
		r.sendDrawHistory(events)
	case winnerState:
		r.send(events, Winner{
			Winner:    state.winner,
			Points:    state.points,
			Word:      r.word(state.word),
			Alternate: state.alternate,
		})
		r.sendDrawHistory(events)
	}
	r.queue = append(r.queue, id)
	return true
}

// sendDrawHistory replays the current drawing as a single event. One
// event takes one buffer slot however long the history is, so a replay
// can never be truncated by the connection buffer. The strokes are
// copied because the writer reads them after this call returns.
func (r *Room) sendDrawHistory(events chan<- Event) {
	if len(r.drawHistory) == 0 {
		return
	}
	strokes := make([]Stroke, len(r.drawHistory))
	copy(strokes, r.drawHistory)
	r.send(events, DrawHistory{Strokes: strokes})
}

// leave removes an occupant and reports whether the room is now empty and
// should be torn down by the registry.
func (r *Room) leave(id int) bool {
	o, ok := r.occupants[id]
	if !ok {
		r.log.Warn().Int("session", id).Msg("Session left a room it was not in")
		return false
	}
	delete(r.occupants, id)
	for i, queued := range r.queue {
		if queued == id {
			r.queue = append(r.queue[:i], r.queue[i+1:]...)
			break
		}
	}
	r.send(o.events, LeftRoom{})
	r.broadcast(UserGone{ID: id})
	if len(r.occupants) == 0 {
		return true
	}
	switch state := r.state.(type) {
	case lobbyState:
		if state.host == id {
			r.promoteNewHost()
		}
	case roundState:
		if state.leader == id {
			r.log.Debug().Int("session", id).Msg("Leader left mid round, starting a new one")
			r.newRound()
		}
	}
	return false
}

// promoteNewHost hands the lobby to the first remaining occupant in turn
// order after the host left.
func (r *Room) promoteNewHost() {
	for _, id := range r.queue {
		o, ok := r.occupants[id]
		if !ok {
			r.log.Error().Int("session", id).Msg("Queued session missing from occupants at host handoff")
			continue
		}
		r.state = lobbyState{host: id}
		r.broadcast(EnterLobby{Host: id})
		r.send(o.events, SettingsData{Packs: r.packs})
		return
	}
	r.log.Error().Msg("No occupant available to host the lobby")
}

func (r *Room) start(id int, lines []string) {
	state, ok := r.state.(lobbyState)
	if !ok {
		r.log.Info().Int("session", id).Msg("Start requested outside the lobby")
		return
	}
	if state.host != id {
		r.log.Info().Int("session", id).Msg("Start requested by a session that is not host")
		return
	}
	parsed, ok := r.parseSettings(lines)
	if !ok {
		return
	}
	r.settings = parsed
	r.maxExcluded = r.enabledWordCount() / 2
	r.excluded = nil
	r.newRound()
}

// parseSettings validates the three start lines: enabled pack indices,
// round timer flag and canvas clear flag. Rejection leaves the lobby
// untouched.
func (r *Room) parseSettings(lines []string) (settings, bool) {
	if len(lines) != 3 {
		r.log.Warn().Int("lines", len(lines)).Msg("Start settings need exactly three lines")
		return settings{}, false
	}
	var packs []int
	for _, field := range strings.Split(lines[0], ",") {
		index, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil || index < 0 || index >= len(r.packs) {
			r.log.Warn().Str("pack", field).Msg("Start settings named an invalid word pack")
			return settings{}, false
		}
		packs = append(packs, index)
	}
	parsed := settings{
		packs:      packs,
		timed:      lines[1] == "T",
		allowClear: lines[2] == "T",
	}
	total := 0
	for _, pack := range parsed.packs {
		total += r.packs[pack].Count()
	}
	if total == 0 {
		r.log.Warn().Msg("Start settings enable no words")
		return settings{}, false
	}
	return parsed, true
}

func (r *Room) enabledWordCount() int {
	total := 0
	for _, pack := range r.settings.packs {
		total += r.packs[pack].Count()
	}
	return total
}

// chooseWord draws a uniform flat index over the enabled packs, redrawing
// while it falls inside the recent-word exclusion window.
func (r *Room) chooseWord() chosenWord {
	total := r.enabledWordCount()
	for {
		flat := r.rng.Intn(total)
		if r.isExcluded(flat) {
			continue
		}
		if len(r.excluded) >= r.maxExcluded && len(r.excluded) > 0 {
			r.excluded = r.excluded[1:]
		}
		if r.maxExcluded > 0 {
			r.excluded = append(r.excluded, flat)
		}
		return r.resolveWord(flat)
	}
}

func (r *Room) isExcluded(flat int) bool {
	for _, excluded := range r.excluded {
		if excluded == flat {
			return true
		}
	}
	return false
}

// resolveWord maps a flat index back to a pack and a local index by
// walking the enabled packs in order.
func (r *Room) resolveWord(flat int) chosenWord {
	remaining := flat
	for _, pack := range r.settings.packs {
		if remaining < r.packs[pack].Count() {
			return chosenWord{flat: flat, pack: pack, index: remaining}
		}
		remaining -= r.packs[pack].Count()
	}
	r.log.Error().Int("flat", flat).Msg("Flat word index out of range of enabled packs")
	return chosenWord{flat: flat}
}

func (r *Room) word(w chosenWord) string {
	return r.packs[w.pack].Word(w.index)
}

// newRound rotates leadership to the next queued occupant still present
// and deals them a fresh word.
func (r *Room) newRound() {
	word := r.chooseWord()
	r.roundID++
	r.drawHistory = nil
	for len(r.queue) > 0 {
		leader := r.queue[0]
		r.queue = r.queue[1:]
		if _, ok := r.occupants[leader]; !ok {
			continue
		}
		var deadline int64
		if r.settings.timed {
			deadline = time.Now().Add(roundDuration).Unix()
		}
		r.state = roundState{word: word, leader: leader, roundID: r.roundID, deadline: deadline}
		for id, o := range r.occupants {
			if id == leader {
				r.send(o.events, NewLeader{AllowClear: r.settings.allowClear, Word: r.word(word), Deadline: deadline})
			} else {
				r.send(o.events, NewRound{Leader: leader, Deadline: deadline})
			}
		}
		if r.settings.timed {
			r.sched.scheduleRoundTimeout(r.key, r.roundID, roundDuration)
		}
		r.log.Debug().Int("round", r.roundID).Int("leader", leader).Msg("New round")
		return
	}
	r.log.Error().Msg("No eligible leader for the new round")
}

// endRound enters the winner phase and schedules the next round. A winner
// of 0 means the round timed out unguessed.
func (r *Room) endRound(winner int, alternate int) {
	state, ok := r.state.(roundState)
	if !ok {
		r.log.Error().Msg("Round ended while not in a round")
		return
	}
	points := 0
	if o, ok := r.occupants[winner]; ok && winner != 0 {
		o.points++
		points = o.points
	}
	alternateText := ""
	if alternate >= 0 {
		alternateText = r.packs[state.word.pack].Alternate(state.word.index, alternate)
	}
	r.state = winnerState{
		winner:    winner,
		points:    points,
		word:      state.word,
		alternate: alternateText,
	}
	r.broadcast(Winner{Winner: winner, Points: points, Word: r.word(state.word), Alternate: alternateText})
	r.queue = append(r.queue, state.leader)
	r.sched.scheduleNewRound(r.key, nextRoundDelay)
}

// roundTimeout ends the round with no winner, unless the round it was
// scheduled for is already over.
func (r *Room) roundTimeout(roundID int) {
	state, ok := r.state.(roundState)
	if !ok || state.roundID != roundID {
		r.log.Debug().Int("round", roundID).Msg("Stale round timeout")
		return
	}
	r.endRound(0, -1)
}

// handleGuess broadcasts a chat line and resolves it against the current
// word. Outside a round it is plain chat.
func (r *Room) handleGuess(id int, text string) {
	state, ok := r.state.(roundState)
	if !ok {
		r.broadcast(Chat{From: id, Text: text})
		return
	}
	if id == state.leader {
		r.log.Info().Int("session", id).Msg("Leader tried to guess their own word")
		return
	}
	r.broadcast(Chat{From: id, Text: text})
	normalized := strings.ToLower(strings.TrimSpace(text))
	if matched, alternate := r.packs[state.word.pack].Matches(state.word.index, normalized); matched {
		r.endRound(id, alternate)
	}
}

// handleDraw validates and relays a stroke from the leader. During the
// winner phase strokes are expected stragglers and dropped silently.
func (r *Room) handleDraw(id int, payload string) {
	switch state := r.state.(type) {
	case winnerState:
		return
	case roundState:
		if state.leader != id {
			r.log.Info().Int("session", id).Int("leader", state.leader).Msg("Draw command from a session that is not leader")
			return
		}
		stroke, ok := r.parseStroke(payload)
		if !ok {
			return
		}
		r.broadcast(Draw{Stroke: stroke})
		r.drawHistory = append(r.drawHistory, stroke)
	default:
		r.log.Warn().Int("session", id).Msg("Draw command outside a round")
	}
}

func (r *Room) parseStroke(payload string) (Stroke, bool) {
	fields := strings.Split(payload, ",")
	if len(fields) != strokeFieldCount {
		r.log.Warn().Int("fields", len(fields)).Msg("Draw command with wrong field count")
		return Stroke{}, false
	}
	values := make([]uint32, strokeFieldCount)
	for i, field := range fields {
		value, err := strconv.ParseUint(field, 10, 32)
		if err != nil {
			r.log.Warn().Str("field", field).Msg("Draw command field is not an unsigned integer")
			return Stroke{}, false
		}
		values[i] = uint32(value)
	}
	stroke := Stroke{X1: values[0], X2: values[1], Y1: values[2], Y2: values[3], PenSize: values[4]}
	if stroke.X1 > maxCoordinate || stroke.X2 > maxCoordinate || stroke.Y1 > maxCoordinate || stroke.Y2 > maxCoordinate {
		r.log.Warn().Msg("Draw command coordinates out of bounds")
		return Stroke{}, false
	}
	if stroke.PenSize > maxPenSize {
		r.log.Warn().Uint32("pen", stroke.PenSize).Msg("Draw command pen size out of bounds")
		return Stroke{}, false
	}
	return stroke, true
}

// clear wipes the canvas when the room settings allow it and the leader
// asked. During the winner phase the command is dropped silently.
func (r *Room) clear(id int) {
	switch state := r.state.(type) {
	case winnerState:
		return
	case roundState:
		if state.leader != id {
			r.log.Info().Int("session", id).Msg("Clear command from a session that is not leader")
			return
		}
		if !r.settings.allowClear {
			r.log.Info().Int("session", id).Msg("Clear command while canvas clearing is disabled")
			return
		}
		r.drawHistory = nil
		r.broadcast(ClearCanvas{})
	default:
		r.log.Warn().Int("session", id).Msg("Clear command outside a round")
	}
}

func validUsername(username string) bool {
	return username != "" && !strings.Contains(username, ",") && len(username) < maxUsernameLength
}
