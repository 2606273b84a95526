package protocol

import (
	"github.com/harborgames/matchroom/backend/internal/lobby"
)

// Command types accepted from clients.
const (
	CmdCreate = "create"
	CmdJoin   = "join"
	CmdStart  = "start"
	CmdLeave  = "leave"
)

// Event types sent to clients.
const (
	EventWelcome     = "welcome"
	EventResult      = "result"
	EventRoomUpdate  = "room_update"
	EventGameStarted = "game_started"
	EventRoomClosed  = "room_closed"
)

// BadCommand is the result error for traffic that never reached the lobby.
const BadCommand = "bad_command"

// Command is one inbound client request.
type Command struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId,omitempty"`
}

// Welcome is sent once per connection, carrying the player identity the
// server will address the connection by.
type Welcome struct {
	Type     string `json:"type"`
	PlayerID string `json:"playerId"`
}

// Result answers exactly one Command for the player that issued it.
type Result struct {
	Type   string          `json:"type"`
	Op     string          `json:"op"`
	OK     bool            `json:"ok"`
	Error  string          `json:"error,omitempty"`
	Detail string          `json:"detail,omitempty"`
	Room   *lobby.Snapshot `json:"room,omitempty"`
}

// RoomEvent is fanned out to every occupant of the affected room.
type RoomEvent struct {
	Type string         `json:"type"`
	Room lobby.Snapshot `json:"room"`
}

// Connection is one authenticated client attachment, as the transport
// presents it to the protocol layer.
type Connection interface {
	PlayerID() string
	Send(data []byte) error
}

// Sender delivers an encoded event to a connected player, dropping it
// silently if the player is no longer attached.
type Sender interface {
	SendTo(playerID string, data []byte)
}
