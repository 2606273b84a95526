package lobby

import (
	"time"
)

// State is a room's lifecycle phase.
type State string

const (
	StateWaiting State = "waiting"
	StateFull    State = "full"
	StateInGame  State = "in_game"
	StateClosed  State = "closed"
)

// DefaultMaxPlayers is the fixed room capacity.
const DefaultMaxPlayers = 4

// room is the mutable entity. It is owned by the Manager and only ever
// touched while the Manager's lock is held; everything that leaves the
// Manager is a Snapshot copy.
type room struct {
	id         string
	hostID     string
	maxPlayers int
	players    []string // insertion order, host at index 0
	state      State
	createdAt  time.Time
	startedAt  time.Time
	lastActive time.Time
}

func newRoom(id, hostID string, maxPlayers int, now time.Time) *room {
	return &room{
		id:         id,
		hostID:     hostID,
		maxPlayers: maxPlayers,
		players:    []string{hostID},
		state:      StateWaiting,
		createdAt:  now,
		lastActive: now,
	}
}

func (r *room) isFull() bool {
	return len(r.players) == r.maxPlayers
}

func (r *room) contains(playerID string) bool {
	for _, p := range r.players {
		if p == playerID {
			return true
		}
	}
	return false
}

// removePlayer drops playerID from the roster preserving order. Returns
// false if the player was not present.
func (r *room) removePlayer(playerID string) bool {
	for i, p := range r.players {
		if p == playerID {
			r.players = append(r.players[:i], r.players[i+1:]...)
			return true
		}
	}
	return false
}

// Snapshot is an immutable copy of a room's state handed to callers.
// StartedAt is nil until the game starts.
type Snapshot struct {
	ID         string     `json:"id"`
	HostID     string     `json:"hostId"`
	MaxPlayers int        `json:"maxPlayers"`
	Players    []string   `json:"players"`
	State      State      `json:"state"`
	CreatedAt  time.Time  `json:"createdAt"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
}

// PlayerCount returns the roster size at the time the snapshot was taken.
func (s Snapshot) PlayerCount() int {
	return len(s.Players)
}

func (r *room) snapshot() Snapshot {
	players := make([]string, len(r.players))
	copy(players, r.players)
	snap := Snapshot{
		ID:         r.id,
		HostID:     r.hostID,
		MaxPlayers: r.maxPlayers,
		Players:    players,
		State:      r.state,
		CreatedAt:  r.createdAt,
	}
	if !r.startedAt.IsZero() {
		started := r.startedAt
		snap.StartedAt = &started
	}
	return snap
}
