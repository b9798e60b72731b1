package main

import (
	"fmt"
	"strconv"
	"strings"

	"scrawl/wordpack"
)

// Event is a server-to-client message. Each event knows its own wire
// frame: a single type marker followed by comma separated fields.
type Event interface {
	encode() string
}

// Connected carries the session id handed out on connect.
type Connected struct {
	ID int
}

func (e Connected) encode() string {
	return fmt.Sprintf("c%d", e.ID)
}

// Chat relays a guess or chat line to the whole room.
type Chat struct {
	From int
	Text string
}

func (e Chat) encode() string {
	return fmt.Sprintf("m%d,%s", e.From, e.Text)
}

// Draw relays one stroke of the leader's drawing.
type Draw struct {
	Stroke Stroke
}

func (e Draw) encode() string {
	s := e.Stroke
	return fmt.Sprintf("d%d,%d,%d,%d,%d", s.X1, s.X2, s.Y1, s.Y2, s.PenSize)
}

// DrawHistory replays every stroke of the current drawing to a late
// joiner. On the wire it is not one frame: the session writer expands it
// into one draw frame per stroke, so clients parse replayed strokes the
// same way as live ones.
type DrawHistory struct {
	Strokes []Stroke
}

func (e DrawHistory) encode() string {
	frames := make([]string, len(e.Strokes))
	for i, stroke := range e.Strokes {
		frames[i] = Draw{Stroke: stroke}.encode()
	}
	return strings.Join(frames, "\n")
}

// ClearCanvas tells clients to wipe their drawing surface.
type ClearCanvas struct{}

func (e ClearCanvas) encode() string {
	return "b"
}

// EnterRoom confirms room entry and carries the current roster.
type EnterRoom struct {
	Key   string
	Users []RoomUser
}

type RoomUser struct {
	ID   int
	Name string
}

func (e EnterRoom) encode() string {
	var b strings.Builder
	b.WriteString("e")
	b.WriteString(e.Key)
	for _, user := range e.Users {
		fmt.Fprintf(&b, ",%d,%s", user.ID, user.Name)
	}
	return b.String()
}

// EnterLobby announces the lobby host, both on entry and on host handoff.
type EnterLobby struct {
	Host int
}

func (e EnterLobby) encode() string {
	return fmt.Sprintf("o%d", e.Host)
}

// SettingsData lists the available word packs so the host can pick.
type SettingsData struct {
	Packs []*wordpack.Pack
}

func (e SettingsData) encode() string {
	lines := make([]string, 0, len(e.Packs)+1)
	lines = append(lines, "s")
	for i, pack := range e.Packs {
		lines = append(lines, fmt.Sprintf("%d,%s,%s", i, pack.Name(), pack.Description()))
	}
	return strings.Join(lines, "\n")
}

// NewRound tells guessers who is drawing; Deadline is unix seconds, zero
// when the round is untimed.
type NewRound struct {
	Leader   int
	Deadline int64
}

func (e NewRound) encode() string {
	if e.Deadline == 0 {
		return fmt.Sprintf("r%d", e.Leader)
	}
	return fmt.Sprintf("r%d,%d", e.Leader, e.Deadline)
}

// NewLeader privately hands the leader their word.
type NewLeader struct {
	AllowClear bool
	Word       string
	Deadline   int64
}

func (e NewLeader) encode() string {
	flag := "F"
	if e.AllowClear {
		flag = "T"
	}
	if e.Deadline == 0 {
		return fmt.Sprintf("l%s,%s", flag, e.Word)
	}
	return fmt.Sprintf("l%s,%s,%d", flag, e.Word, e.Deadline)
}

// Winner reveals the round result. Winner 0 means the round timed out
// with nobody guessing; Alternate is the accepted alternate that matched,
// empty when the primary word did.
type Winner struct {
	Winner    int
	Points    int
	Word      string
	Alternate string
}

func (e Winner) encode() string {
	winner := ""
	if e.Winner != 0 {
		winner = strconv.Itoa(e.Winner)
	}
	frame := fmt.Sprintf("w%s,%d,%s", winner, e.Points, e.Word)
	if e.Alternate != "" {
		frame += "," + e.Alternate
	}
	return frame
}

// UserJoined announces a new occupant to the rest of the room.
type UserJoined struct {
	ID   int
	Name string
}

func (e UserJoined) encode() string {
	return fmt.Sprintf("j%d,%s", e.ID, e.Name)
}

// UserGone announces a departure to the rest of the room.
type UserGone struct {
	ID int
}

func (e UserGone) encode() string {
	return fmt.Sprintf("g%d", e.ID)
}

// LeftRoom confirms to a session that it is no longer in a room.
type LeftRoom struct{}

func (e LeftRoom) encode() string {
	return "q"
}

// UsernameTaken rejects a join because the name is already in use.
type UsernameTaken struct {
	Name string
}

func (e UsernameTaken) encode() string {
	return "u" + e.Name
}

// NoSuchRoom rejects a join because the key matches no room.
type NoSuchRoom struct {
	Key string
}

func (e NoSuchRoom) encode() string {
	return "k" + e.Key
}
