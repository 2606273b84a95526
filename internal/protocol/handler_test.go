package protocol

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborgames/matchroom/backend/internal/lobby"
)

type mockConn struct {
	id   string
	sent [][]byte
	mu   sync.Mutex
}

func (m *mockConn) PlayerID() string { return m.id }

func (m *mockConn) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, data)
	return nil
}

func (m *mockConn) lastResult(t *testing.T) Result {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent)
	var res Result
	require.NoError(t, json.Unmarshal(m.sent[len(m.sent)-1], &res))
	return res
}

type mockSender struct {
	mu       sync.Mutex
	byPlayer map[string][][]byte
}

func newMockSender() *mockSender {
	return &mockSender{byPlayer: make(map[string][][]byte)}
}

func (m *mockSender) SendTo(playerID string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byPlayer[playerID] = append(m.byPlayer[playerID], data)
}

func (m *mockSender) eventsFor(t *testing.T, playerID string) []RoomEvent {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	var events []RoomEvent
	for _, data := range m.byPlayer[playerID] {
		var evt RoomEvent
		require.NoError(t, json.Unmarshal(data, &evt))
		events = append(events, evt)
	}
	return events
}

func newTestHandler() (*Handler, *lobby.Manager, *mockSender) {
	sender := newMockSender()
	manager := lobby.NewManager(NewNotifier(sender))
	return NewHandler(manager), manager, sender
}

func command(t *testing.T, cmdType, roomID string) []byte {
	t.Helper()
	data, err := json.Marshal(Command{Type: cmdType, RoomID: roomID})
	require.NoError(t, err)
	return data
}

func TestHandler_Create(t *testing.T) {
	h, _, _ := newTestHandler()
	conn := &mockConn{id: "alice"}

	h.Handle(conn, command(t, CmdCreate, ""))

	res := conn.lastResult(t)
	assert.True(t, res.OK)
	assert.Equal(t, CmdCreate, res.Op)
	require.NotNil(t, res.Room)
	assert.Equal(t, "alice", res.Room.HostID)
	assert.Equal(t, lobby.StateWaiting, res.Room.State)
}

func TestHandler_JoinErrors(t *testing.T) {
	tests := []struct {
		name      string
		roomID    string
		wantError string
	}{
		{name: "unknown room", roomID: "nope", wantError: "room_not_found"},
		{name: "own room", roomID: "", wantError: "already_in_room"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, manager, _ := newTestHandler()
			snap, err := manager.CreateRoom("alice")
			require.NoError(t, err)

			roomID := tt.roomID
			if roomID == "" {
				roomID = snap.ID
			}
			conn := &mockConn{id: "alice"}
			h.Handle(conn, command(t, CmdJoin, roomID))

			res := conn.lastResult(t)
			assert.False(t, res.OK)
			assert.Equal(t, tt.wantError, res.Error)
			assert.Nil(t, res.Room)
		})
	}
}

func TestHandler_MalformedCommand(t *testing.T) {
	h, _, _ := newTestHandler()
	conn := &mockConn{id: "alice"}

	h.Handle(conn, []byte("not json"))

	res := conn.lastResult(t)
	assert.False(t, res.OK)
	assert.Equal(t, BadCommand, res.Error)
}

func TestHandler_UnknownCommandType(t *testing.T) {
	h, _, _ := newTestHandler()
	conn := &mockConn{id: "alice"}

	h.Handle(conn, command(t, "dance", ""))

	res := conn.lastResult(t)
	assert.False(t, res.OK)
	assert.Equal(t, BadCommand, res.Error)
	assert.Equal(t, "dance", res.Op)
}

func TestHandler_JoinBroadcastsToRoster(t *testing.T) {
	h, manager, sender := newTestHandler()
	snap, err := manager.CreateRoom("alice")
	require.NoError(t, err)

	bob := &mockConn{id: "bob"}
	h.Handle(bob, command(t, CmdJoin, snap.ID))

	res := bob.lastResult(t)
	require.True(t, res.OK)

	for _, player := range []string{"alice", "bob"} {
		events := sender.eventsFor(t, player)
		require.NotEmpty(t, events, "player %s", player)
		last := events[len(events)-1]
		assert.Equal(t, EventRoomUpdate, last.Type)
		assert.Equal(t, []string{"alice", "bob"}, last.Room.Players)
	}
}

func TestHandler_StartBroadcast(t *testing.T) {
	h, manager, sender := newTestHandler()
	snap, err := manager.CreateRoom("alice")
	require.NoError(t, err)
	for _, p := range []string{"bob", "charlie", "david"} {
		_, err := manager.JoinRoom(snap.ID, p)
		require.NoError(t, err)
	}

	alice := &mockConn{id: "alice"}
	h.Handle(alice, command(t, CmdStart, snap.ID))

	res := alice.lastResult(t)
	require.True(t, res.OK)
	assert.Equal(t, lobby.StateInGame, res.Room.State)

	events := sender.eventsFor(t, "david")
	require.NotEmpty(t, events)
	assert.Equal(t, EventGameStarted, events[len(events)-1].Type)
}

func TestHandler_DisconnectLeavesWaitingRoom(t *testing.T) {
	h, manager, sender := newTestHandler()
	snap, err := manager.CreateRoom("alice")
	require.NoError(t, err)
	_, err = manager.JoinRoom(snap.ID, "bob")
	require.NoError(t, err)

	h.Disconnect("bob")

	current, ok := manager.Snapshot(snap.ID)
	require.True(t, ok)
	assert.Equal(t, []string{"alice"}, current.Players)

	events := sender.eventsFor(t, "alice")
	require.NotEmpty(t, events)
	assert.Equal(t, EventRoomUpdate, events[len(events)-1].Type)
}

func TestHandler_DisconnectClosesInGameRoom(t *testing.T) {
	h, manager, sender := newTestHandler()
	snap, err := manager.CreateRoom("alice")
	require.NoError(t, err)
	for _, p := range []string{"bob", "charlie", "david"} {
		_, err := manager.JoinRoom(snap.ID, p)
		require.NoError(t, err)
	}
	_, err = manager.StartGame(snap.ID, "alice")
	require.NoError(t, err)

	h.Disconnect("charlie")

	_, ok := manager.Snapshot(snap.ID)
	assert.False(t, ok, "in-game room must be torn down")

	events := sender.eventsFor(t, "bob")
	require.NotEmpty(t, events)
	assert.Equal(t, EventRoomClosed, events[len(events)-1].Type)
}

func TestHandler_DisconnectDuringStartNeverStrandsPlayer(t *testing.T) {
	// A disconnect racing the host's start must end with the player out of
	// the lobby either way: the room closes if the start won, or the player
	// left normally if the disconnect won. A seated player with no
	// connection in a live game is never an acceptable outcome.
	for i := 0; i < 50; i++ {
		h, manager, _ := newTestHandler()
		snap, err := manager.CreateRoom("alice")
		require.NoError(t, err)
		for _, p := range []string{"bob", "charlie", "david"} {
			_, err := manager.JoinRoom(snap.ID, p)
			require.NoError(t, err)
		}

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			manager.StartGame(snap.ID, "alice")
		}()
		go func() {
			defer wg.Done()
			h.Disconnect("bob")
		}()
		wg.Wait()

		_, seated := manager.RoomOf("bob")
		require.False(t, seated, "disconnected player must not stay seated")

		if current, ok := manager.Snapshot(snap.ID); ok {
			assert.NotEqual(t, lobby.StateInGame, current.State)
			assert.NotContains(t, current.Players, "bob")
		}
	}
}

func TestHandler_DisconnectWithoutRoom(t *testing.T) {
	h, _, sender := newTestHandler()

	h.Disconnect("nobody")

	assert.Empty(t, sender.eventsFor(t, "nobody"))
}
