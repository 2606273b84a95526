package protocol

import (
	"encoding/json"
	"log"

	"github.com/harborgames/matchroom/backend/internal/lobby"
)

// Notifier turns lobby lifecycle notifications into room events fanned out
// to every occupant of the affected room. It runs outside the manager's
// lock, so delivery speed never gates lobby operations.
type Notifier struct {
	sender Sender
}

func NewNotifier(s Sender) *Notifier {
	return &Notifier{sender: s}
}

func (n *Notifier) RoomUpdated(snap lobby.Snapshot) {
	n.fanOut(EventRoomUpdate, snap)
}

func (n *Notifier) GameStarted(snap lobby.Snapshot) {
	n.fanOut(EventGameStarted, snap)
}

// RoomClosed addresses the room's final roster, which closed snapshots keep.
func (n *Notifier) RoomClosed(snap lobby.Snapshot) {
	n.fanOut(EventRoomClosed, snap)
}

func (n *Notifier) fanOut(eventType string, snap lobby.Snapshot) {
	data, err := json.Marshal(RoomEvent{Type: eventType, Room: snap})
	if err != nil {
		log.Printf("Encoding %s for room %s: %v", eventType, snap.ID, err)
		return
	}
	for _, playerID := range snap.Players {
		n.sender.SendTo(playerID, data)
	}
}
