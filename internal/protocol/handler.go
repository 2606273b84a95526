package protocol

import (
	"encoding/json"
	"errors"
	"log"

	"github.com/harborgames/matchroom/backend/internal/lobby"
)

// Lobby is the slice of the room manager the protocol layer drives.
type Lobby interface {
	CreateRoom(hostID string) (lobby.Snapshot, error)
	JoinRoom(roomID, playerID string) (lobby.Snapshot, error)
	StartGame(roomID, initiatorID string) (lobby.Snapshot, error)
	LeaveRoom(roomID, playerID string) (lobby.Snapshot, error)
	CloseRoom(roomID string) (lobby.Snapshot, error)
	Depart(playerID string) (lobby.Snapshot, bool)
}

// Handler decodes client commands, runs them against the lobby, and answers
// the issuing connection. Roster broadcasts are not its job: those flow
// through the manager's observers.
type Handler struct {
	lobby Lobby
}

func NewHandler(l Lobby) *Handler {
	return &Handler{lobby: l}
}

func (h *Handler) Handle(conn Connection, data []byte) {
	playerID := conn.PlayerID()

	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		log.Printf("Invalid command from %s: %v", playerID, err)
		h.replyRaw(conn, Result{Type: EventResult, Error: BadCommand, Detail: "malformed JSON"})
		return
	}

	switch cmd.Type {
	case CmdCreate:
		snap, err := h.lobby.CreateRoom(playerID)
		h.reply(conn, cmd.Type, snap, err)
	case CmdJoin:
		snap, err := h.lobby.JoinRoom(cmd.RoomID, playerID)
		h.reply(conn, cmd.Type, snap, err)
	case CmdStart:
		snap, err := h.lobby.StartGame(cmd.RoomID, playerID)
		h.reply(conn, cmd.Type, snap, err)
	case CmdLeave:
		snap, err := h.lobby.LeaveRoom(cmd.RoomID, playerID)
		h.reply(conn, cmd.Type, snap, err)
	default:
		h.replyRaw(conn, Result{Type: EventResult, Op: cmd.Type, Error: BadCommand, Detail: "unknown command type"})
	}
}

// Disconnect treats a dropped connection as a departure. A player whose
// room is mid-game takes the whole room down with them, since there is no
// reconnection and a three-seat game cannot continue. The manager decides
// leave-versus-close under its own lock, so a start landing between the
// disconnect and the removal cannot leave the player seated in a live game.
func (h *Handler) Disconnect(playerID string) {
	if snap, ok := h.lobby.Depart(playerID); ok && snap.State != lobby.StateClosed {
		log.Printf("Player %s disconnected from room %s", playerID, snap.ID)
	}
}

func (h *Handler) reply(conn Connection, op string, snap lobby.Snapshot, err error) {
	res := Result{Type: EventResult, Op: op, OK: err == nil}
	if err != nil {
		kind := lobby.KindOf(err)
		if kind == "" {
			res.Error = "internal"
		} else {
			res.Error = string(kind)
			var lerr *lobby.Error
			if errors.As(err, &lerr) {
				res.Detail = lerr.Detail
			}
		}
	} else {
		res.Room = &snap
	}
	h.replyRaw(conn, res)
}

func (h *Handler) replyRaw(conn Connection, res Result) {
	res.Type = EventResult
	data, err := json.Marshal(res)
	if err != nil {
		log.Printf("Encoding result for %s: %v", conn.PlayerID(), err)
		return
	}
	if err := conn.Send(data); err != nil {
		log.Printf("Sending result to %s: %v", conn.PlayerID(), err)
	}
}
