package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *GameServer {
	t.Helper()
	return NewGameServer(testPacks(t, animalsPack))
}

// enterRoom drains the channel and returns the key of the room the
// session just entered.
func enterRoomKey(t *testing.T, ch chan Event) string {
	t.Helper()
	for _, event := range drainEvents(ch) {
		if entered, ok := event.(EnterRoom); ok {
			return entered.Key
		}
	}
	t.Fatal("no EnterRoom event received")
	return ""
}

func TestConnectAllocatesUniqueIDs(t *testing.T) {
	s := newTestServer(t)
	seen := make(map[int]struct{})
	for i := 0; i < 50; i++ {
		id := s.connect(make(chan Event, 1))
		require.NotZero(t, id)
		_, dup := seen[id]
		require.False(t, dup, "session id handed out twice")
		seen[id] = struct{}{}
	}
	assert.Len(t, s.sessions, 50)
}

func TestCreateRoom(t *testing.T) {
	s := newTestServer(t)
	ch := make(chan Event, 64)
	id := s.connect(ch)

	s.dispatch(id, "nAlice")

	require.Len(t, s.rooms, 1)
	key := enterRoomKey(t, ch)
	assert.Len(t, key, keyLength)
	_, exists := s.rooms[key]
	assert.True(t, exists)
	assert.Equal(t, key, s.located[id])
}

func TestCreateRoomRejectsInvalidUsername(t *testing.T) {
	s := newTestServer(t)
	id := s.connect(make(chan Event, 64))

	s.dispatch(id, "n")
	s.dispatch(id, "nA,B")
	s.dispatch(id, "nwaytoolongusername")

	assert.Empty(t, s.rooms)
}

func TestJoinNonExistentRoom(t *testing.T) {
	s := newTestServer(t)
	ch := make(chan Event, 64)
	id := s.connect(ch)

	s.dispatch(id, "jZZZZZ,Bob")

	events := drainEvents(ch)
	require.Len(t, events, 1)
	assert.Equal(t, NoSuchRoom{Key: "ZZZZZ"}, events[0])
	assert.NotContains(t, s.located, id)
}

func TestJoinAndLeaveRemovesEmptyRoom(t *testing.T) {
	s := newTestServer(t)
	alice := make(chan Event, 64)
	bob := make(chan Event, 64)
	aliceID := s.connect(alice)
	bobID := s.connect(bob)

	s.dispatch(aliceID, "nAlice")
	key := enterRoomKey(t, alice)
	s.dispatch(bobID, "j"+key+",Bob")
	require.Equal(t, key, enterRoomKey(t, bob))
	require.Len(t, s.rooms[key].occupants, 2)
	require.Equal(t, key, s.located[bobID])

	s.dispatch(bobID, "q")
	require.Len(t, s.rooms, 1, "room removed while still occupied")
	assert.NotContains(t, s.located, bobID)
	s.dispatch(aliceID, "q")
	assert.Empty(t, s.rooms, "empty room not removed")
	assert.Empty(t, s.located)
}

func TestDisconnectLeavesRoomAndClosesChannel(t *testing.T) {
	s := newTestServer(t)
	alice := make(chan Event, 64)
	bob := make(chan Event, 64)
	aliceID := s.connect(alice)
	bobID := s.connect(bob)
	s.dispatch(aliceID, "nAlice")
	key := enterRoomKey(t, alice)
	s.dispatch(bobID, "j"+key+",Bob")

	s.disconnect(bobID)

	assert.NotContains(t, s.sessions, bobID)
	assert.NotContains(t, s.located, bobID)
	require.Len(t, s.rooms, 1)
	assert.Len(t, s.rooms[key].occupants, 1)
	drainEvents(bob)
	_, open := <-bob
	assert.False(t, open, "event channel left open after disconnect")

	s.disconnect(aliceID)
	assert.Empty(t, s.rooms)
	assert.Empty(t, s.sessions)
}

// A session can disconnect before its writer ever drained the room entry
// event, or with that event dropped outright. The registry tracks the
// room itself, so the occupant must still be removed before the event
// channel closes and later broadcasts must not panic.
func TestDisconnectWithUndeliveredRoomEntry(t *testing.T) {
	s := newTestServer(t)
	alice := make(chan Event, 64)
	aliceID := s.connect(alice)
	s.dispatch(aliceID, "nAlice")
	key := enterRoomKey(t, alice)

	bob := make(chan Event, 64)
	bobID := s.connect(bob)
	s.dispatch(bobID, "j"+key+",Bob")
	s.disconnect(bobID)
	require.Len(t, s.rooms[key].occupants, 1)

	carol := make(chan Event, 64)
	carolID := s.connect(carol)
	require.NotPanics(t, func() { s.dispatch(carolID, "j"+key+",Carol") })
	assert.Len(t, s.rooms[key].occupants, 2)
	assert.Equal(t, key, enterRoomKey(t, carol))
}

func TestDisconnectTearsDownCreatedRoom(t *testing.T) {
	s := newTestServer(t)
	alice := make(chan Event, 64)
	aliceID := s.connect(alice)
	s.dispatch(aliceID, "nAlice")
	key := enterRoomKey(t, alice)

	s.disconnect(aliceID)
	require.Empty(t, s.rooms)

	bob := make(chan Event, 64)
	bobID := s.connect(bob)
	require.NotPanics(t, func() { s.dispatch(bobID, "j"+key+",Bob") })
	events := drainEvents(bob)
	require.Len(t, events, 1)
	assert.Equal(t, NoSuchRoom{Key: key}, events[0])
}

func TestRejectedJoinNotTracked(t *testing.T) {
	s := newTestServer(t)
	alice := make(chan Event, 64)
	aliceID := s.connect(alice)
	s.dispatch(aliceID, "nAlice")
	key := enterRoomKey(t, alice)

	bob := make(chan Event, 64)
	bobID := s.connect(bob)
	s.dispatch(bobID, "j"+key+",Alice")
	assert.NotContains(t, s.located, bobID, "rejected join recorded a room")
	require.Len(t, s.rooms[key].occupants, 1)

	s.dispatch(bobID, "j"+key+",Bob")
	assert.Equal(t, key, s.located[bobID])
}

func TestDispatchDropsInvalidCombinations(t *testing.T) {
	s := newTestServer(t)
	inRoom := make(chan Event, 64)
	outside := make(chan Event, 64)
	inRoomID := s.connect(inRoom)
	outsideID := s.connect(outside)
	s.dispatch(inRoomID, "nAlice")
	enterRoomKey(t, inRoom)

	// Unknown markers, wrong context, empty frames: all dropped.
	s.dispatch(inRoomID, "")
	s.dispatch(inRoomID, "nAlice")
	s.dispatch(inRoomID, "jABCDE,Bob")
	s.dispatch(inRoomID, "z")
	s.dispatch(inRoomID, "m")
	s.dispatch(outsideID, "mhello")
	s.dispatch(outsideID, "q")
	s.dispatch(outsideID, "d1,2,3,4,5")

	assert.Len(t, s.rooms, 1)
	assert.Empty(t, drainEvents(inRoom))
	assert.Empty(t, drainEvents(outside))
}

func TestCommandsForRemovedRoom(t *testing.T) {
	s := newTestServer(t)
	ch := make(chan Event, 64)
	id := s.connect(ch)
	s.dispatch(id, "nAlice")
	key := enterRoomKey(t, ch)
	s.dispatch(id, "q")
	require.Empty(t, s.rooms)
	drainEvents(ch)

	// Timers can legitimately fire for a room that is already gone, and
	// a session that left routes as outside any room again.
	s.roundTimeout(key, 3)
	s.newRound(key)
	s.dispatch(id, "mhello")
	s.dispatch(id, "q")

	assert.Empty(t, drainEvents(ch))
}

func TestStartRoomThroughDispatch(t *testing.T) {
	s := newTestServer(t)
	ch := make(chan Event, 64)
	id := s.connect(ch)
	s.dispatch(id, "nAlice")
	key := enterRoomKey(t, ch)

	s.dispatch(id, "s\n0\nF\nF")

	_, inRound := s.rooms[key].state.(roundState)
	assert.True(t, inRound, "settings frame did not start the round")
	var gotWord bool
	for _, event := range drainEvents(ch) {
		if _, ok := event.(NewLeader); ok {
			gotWord = true
		}
	}
	assert.True(t, gotWord, "sole occupant should lead the first round")
}

func TestRunSerializesCommands(t *testing.T) {
	s := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	ch := make(chan Event, 64)
	id := s.Connect(ch)
	require.NotZero(t, id)

	s.Command(id, "nAlice")
	require.Eventually(t, func() bool {
		for _, event := range drainEvents(ch) {
			if _, ok := event.(EnterRoom); ok {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	s.Disconnect(id)
	require.Eventually(t, func() bool {
		select {
		case _, open := <-ch:
			return !open
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}
