package lobby

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"sync"
	"time"
)

const (
	roomCodeBytes = 3 // 6 hex characters
	// Bounded retry budget for code allocation. With 16.7M possible codes a
	// collision streak this long means the code space is effectively gone.
	maxCodeAttempts = 32
)

// Observer receives lifecycle notifications. The Manager invokes observers
// after its lock is released, using the snapshot computed inside the
// critical section, so a slow observer never blocks other operations.
type Observer interface {
	// RoomUpdated fires after a roster or host change (create, join, leave).
	RoomUpdated(snap Snapshot)
	// GameStarted fires once per room, on the Full -> InGame transition.
	GameStarted(snap Snapshot)
	// RoomClosed fires when a room is evicted; the snapshot keeps the final
	// roster so observers can still address the occupants.
	RoomClosed(snap Snapshot)
}

// Manager owns every live room and the player -> room index. Both maps sit
// behind a single lock: every operation validates, mutates the room, and
// updates the index as one atomic unit, which is what keeps capacity and
// membership-uniqueness invariants intact under concurrent callers.
type Manager struct {
	mu          sync.RWMutex
	rooms       map[string]*room
	playerIndex map[string]string
	maxPlayers  int
	observers   []Observer

	now      func() time.Time
	readRand func([]byte) (int, error)
}

func NewManager(observers ...Observer) *Manager {
	return &Manager{
		rooms:       make(map[string]*room),
		playerIndex: make(map[string]string),
		maxPlayers:  DefaultMaxPlayers,
		observers:   observers,
		now:         time.Now,
		readRand:    rand.Read,
	}
}

// CreateRoom allocates a fresh room with hostID as its only occupant.
func (m *Manager) CreateRoom(hostID string) (Snapshot, error) {
	m.mu.Lock()

	if roomID, ok := m.playerIndex[hostID]; ok {
		m.mu.Unlock()
		return Snapshot{}, reject(KindAlreadyInRoom, "player %s is already in room %s", hostID, roomID)
	}

	id, err := m.allocateCode()
	if err != nil {
		m.mu.Unlock()
		return Snapshot{}, err
	}

	r := newRoom(id, hostID, m.maxPlayers, m.now())
	m.rooms[id] = r
	m.playerIndex[hostID] = id
	snap := r.snapshot()
	m.mu.Unlock()

	log.Printf("Room %s created by %s", id, hostID)
	m.notifyUpdated(snap)
	return snap, nil
}

// JoinRoom appends playerID to the roster and flips the room to Full when
// the last seat is taken. Exactly one of two racing joins for a single free
// seat succeeds; the other gets KindRoomFull.
func (m *Manager) JoinRoom(roomID, playerID string) (Snapshot, error) {
	m.mu.Lock()

	if current, ok := m.playerIndex[playerID]; ok {
		m.mu.Unlock()
		return Snapshot{}, reject(KindAlreadyInRoom, "player %s is already in room %s", playerID, current)
	}

	r, ok := m.rooms[roomID]
	if !ok {
		m.mu.Unlock()
		return Snapshot{}, reject(KindRoomNotFound, "room %s does not exist", roomID)
	}

	if r.state == StateFull {
		m.mu.Unlock()
		return Snapshot{}, reject(KindRoomFull, "room %s is at capacity (%d)", roomID, r.maxPlayers)
	}

	if r.state != StateWaiting {
		m.mu.Unlock()
		return Snapshot{}, reject(KindInvalidState, "room %s is %s", roomID, r.state)
	}

	if r.isFull() {
		m.mu.Unlock()
		return Snapshot{}, reject(KindRoomFull, "room %s is at capacity (%d)", roomID, r.maxPlayers)
	}

	r.players = append(r.players, playerID)
	m.playerIndex[playerID] = roomID
	if r.isFull() {
		r.state = StateFull
	}
	r.lastActive = m.now()
	snap := r.snapshot()
	m.mu.Unlock()

	log.Printf("Player %s joined room %s (%d/%d)", playerID, roomID, snap.PlayerCount(), snap.MaxPlayers)
	if snap.State == StateFull {
		log.Printf("Room %s is full, host may start", roomID)
	}
	m.notifyUpdated(snap)
	return snap, nil
}

// StartGame moves a full room into InGame. Only the host may start, and a
// second start is an explicit rejection rather than a silent success.
func (m *Manager) StartGame(roomID, initiatorID string) (Snapshot, error) {
	m.mu.Lock()

	r, ok := m.rooms[roomID]
	if !ok {
		m.mu.Unlock()
		return Snapshot{}, reject(KindRoomNotFound, "room %s does not exist", roomID)
	}

	if initiatorID != r.hostID {
		m.mu.Unlock()
		return Snapshot{}, reject(KindNotHost, "only host %s may start room %s", r.hostID, roomID)
	}

	if !r.isFull() {
		m.mu.Unlock()
		return Snapshot{}, reject(KindNotFull, "room %s has %d of %d players", roomID, len(r.players), r.maxPlayers)
	}

	if r.state == StateInGame {
		m.mu.Unlock()
		return Snapshot{}, reject(KindAlreadyStarted, "room %s is already in game", roomID)
	}

	r.state = StateInGame
	r.startedAt = m.now()
	r.lastActive = r.startedAt
	snap := r.snapshot()
	m.mu.Unlock()

	log.Printf("Room %s started by host %s", roomID, initiatorID)
	m.notifyStarted(snap)
	return snap, nil
}

// LeaveRoom removes playerID from the roster and the index. A full room
// drops back to Waiting, a departing host hands the room to the next player
// in join order, and an emptied room is closed and evicted. Leaving a room
// that is in game is rejected; the transport closes such rooms instead.
func (m *Manager) LeaveRoom(roomID, playerID string) (Snapshot, error) {
	m.mu.Lock()

	r, ok := m.rooms[roomID]
	if !ok {
		m.mu.Unlock()
		return Snapshot{}, reject(KindRoomNotFound, "room %s does not exist", roomID)
	}

	if r.state == StateInGame {
		m.mu.Unlock()
		return Snapshot{}, reject(KindInvalidState, "room %s is %s", roomID, r.state)
	}

	if !r.contains(playerID) {
		m.mu.Unlock()
		return Snapshot{}, reject(KindInvalidState, "player %s is not in room %s", playerID, roomID)
	}

	r.removePlayer(playerID)
	delete(m.playerIndex, playerID)

	if len(r.players) == 0 {
		snap := m.closeLocked(r)
		m.mu.Unlock()
		log.Printf("Room %s closed (empty)", roomID)
		m.notifyClosed(snap)
		return snap, nil
	}

	if playerID == r.hostID {
		r.hostID = r.players[0]
		log.Printf("Room %s host left, promoted %s", roomID, r.hostID)
	}
	if r.state == StateFull {
		r.state = StateWaiting
	}
	r.lastActive = m.now()
	snap := r.snapshot()
	m.mu.Unlock()

	log.Printf("Player %s left room %s (%d/%d)", playerID, roomID, snap.PlayerCount(), snap.MaxPlayers)
	m.notifyUpdated(snap)
	return snap, nil
}

// Depart removes playerID from whatever room currently holds them. The
// leave-versus-close decision happens under the same lock acquisition as the
// index lookup, so a StartGame racing a disconnect cannot strand a player in
// a live game: an in-game room closes, any other room gets a regular leave.
// Returns false if the player is not seated anywhere.
func (m *Manager) Depart(playerID string) (Snapshot, bool) {
	m.mu.Lock()

	roomID, ok := m.playerIndex[playerID]
	if !ok {
		m.mu.Unlock()
		return Snapshot{}, false
	}
	r, ok := m.rooms[roomID]
	if !ok {
		m.mu.Unlock()
		panic(fmt.Sprintf("lobby: player index maps %s to missing room %s", playerID, roomID))
	}

	if r.state == StateInGame {
		snap := m.closeLocked(r)
		m.mu.Unlock()
		log.Printf("Room %s closed (%s departed mid-game)", roomID, playerID)
		m.notifyClosed(snap)
		return snap, true
	}

	r.removePlayer(playerID)
	delete(m.playerIndex, playerID)

	if len(r.players) == 0 {
		snap := m.closeLocked(r)
		m.mu.Unlock()
		log.Printf("Room %s closed (empty)", roomID)
		m.notifyClosed(snap)
		return snap, true
	}

	if playerID == r.hostID {
		r.hostID = r.players[0]
		log.Printf("Room %s host left, promoted %s", roomID, r.hostID)
	}
	if r.state == StateFull {
		r.state = StateWaiting
	}
	r.lastActive = m.now()
	snap := r.snapshot()
	m.mu.Unlock()

	log.Printf("Player %s departed room %s (%d/%d)", playerID, roomID, snap.PlayerCount(), snap.MaxPlayers)
	m.notifyUpdated(snap)
	return snap, true
}

// CloseRoom forces a room to Closed from any state and evicts it together
// with all of its roster entries. Used for teardown after a game ends, on
// in-game disconnects, and by the reaper.
func (m *Manager) CloseRoom(roomID string) (Snapshot, error) {
	m.mu.Lock()

	r, ok := m.rooms[roomID]
	if !ok {
		m.mu.Unlock()
		return Snapshot{}, reject(KindRoomNotFound, "room %s does not exist", roomID)
	}

	snap := m.closeLocked(r)
	m.mu.Unlock()

	log.Printf("Room %s closed (%d players evicted)", roomID, snap.PlayerCount())
	m.notifyClosed(snap)
	return snap, nil
}

// closeLocked transitions r to Closed and removes it from both maps. The
// returned snapshot keeps the final roster. Callers must hold m.mu.
func (m *Manager) closeLocked(r *room) Snapshot {
	r.state = StateClosed
	for _, p := range r.players {
		delete(m.playerIndex, p)
	}
	delete(m.rooms, r.id)
	return r.snapshot()
}

// Snapshot returns a copy of the named room, if it is live.
func (m *Manager) Snapshot(roomID string) (Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rooms[roomID]
	if !ok {
		return Snapshot{}, false
	}
	return r.snapshot(), true
}

// RoomOf returns the room currently holding playerID, if any.
func (m *Manager) RoomOf(playerID string) (Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	roomID, ok := m.playerIndex[playerID]
	if !ok {
		return Snapshot{}, false
	}
	r, ok := m.rooms[roomID]
	if !ok {
		// Index desync is a Manager bug, not a user error.
		panic(fmt.Sprintf("lobby: player index maps %s to missing room %s", playerID, roomID))
	}
	return r.snapshot(), true
}

// Stats returns the number of live rooms and seated players.
func (m *Manager) Stats() (rooms, players int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms), len(m.playerIndex)
}

// Expire closes every room whose last activity is older than maxIdle and
// returns their final snapshots. In-game rooms are reaped too: with no
// gameplay traffic flowing through the Manager, idleness is the only signal
// that a game is over.
func (m *Manager) Expire(maxIdle time.Duration) []Snapshot {
	cutoff := m.now().Add(-maxIdle)

	m.mu.Lock()
	var closed []Snapshot
	for _, r := range m.rooms {
		if r.lastActive.Before(cutoff) {
			closed = append(closed, m.closeLocked(r))
		}
	}
	m.mu.Unlock()

	for _, snap := range closed {
		log.Printf("Room %s expired (idle)", snap.ID)
		m.notifyClosed(snap)
	}
	return closed
}

// allocateCode picks a random code not held by any live room. Callers must
// hold m.mu.
func (m *Manager) allocateCode() (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		buf := make([]byte, roomCodeBytes)
		if _, err := m.readRand(buf); err != nil {
			return "", fmt.Errorf("lobby: reading random bytes: %w", err)
		}
		code := hex.EncodeToString(buf)
		if _, taken := m.rooms[code]; !taken {
			return code, nil
		}
	}
	return "", reject(KindAllocationExhausted, "no free room code after %d attempts", maxCodeAttempts)
}

func (m *Manager) notifyUpdated(snap Snapshot) {
	for _, o := range m.observers {
		o.RoomUpdated(snap)
	}
}

func (m *Manager) notifyStarted(snap Snapshot) {
	for _, o := range m.observers {
		o.GameStarted(snap)
	}
}

func (m *Manager) notifyClosed(snap Snapshot) {
	for _, o := range m.observers {
		o.RoomClosed(snap)
	}
}
