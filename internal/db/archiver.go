package db

import (
	"log"

	"github.com/harborgames/matchroom/backend/internal/lobby"
)

// Archiver adapts the database to the lobby's observer contract. Only final
// snapshots are recorded; whether a game ran is read off the snapshot's
// start timestamp, so the intermediate callbacks carry nothing to persist.
type Archiver struct {
	db *Database
}

func NewArchiver(d *Database) *Archiver {
	return &Archiver{db: d}
}

func (a *Archiver) RoomUpdated(snap lobby.Snapshot) {}

func (a *Archiver) GameStarted(snap lobby.Snapshot) {}

func (a *Archiver) RoomClosed(snap lobby.Snapshot) {
	if err := a.db.RecordMatch(snap); err != nil {
		log.Printf("Archiving room %s: %v", snap.ID, err)
	}
}
