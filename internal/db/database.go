package db

import (
	"database/sql"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/harborgames/matchroom/backend/internal/lobby"
)

// Database is a write-only archive of finished rooms. Live lobby state never
// touches it and is never restored from it; the archive exists for match
// history and operational stats.
type Database struct {
	db *sql.DB
}

// Match is one archived room: who hosted it, who sat in it, and whether its
// game actually started before the room went away.
type Match struct {
	ID        int       `json:"id"`
	RoomID    string    `json:"room_id"`
	HostID    string    `json:"host_id"`
	Players   []string  `json:"players"`
	Started   bool      `json:"started"`
	CreatedAt time.Time `json:"created_at"`
	StartedAt time.Time `json:"started_at"`
	ClosedAt  time.Time `json:"closed_at"`
}

func New(dbPath string) (*Database, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, err
	}

	if err := createTables(db); err != nil {
		return nil, err
	}

	log.Printf("Archive database initialized at %s", dbPath)
	return &Database{db: db}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS matches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		room_id TEXT NOT NULL,
		host_id TEXT NOT NULL,
		players TEXT NOT NULL,
		started BOOLEAN DEFAULT FALSE,
		created_at DATETIME NOT NULL,
		started_at DATETIME,
		closed_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_matches_room_id ON matches(room_id);
	CREATE INDEX IF NOT EXISTS idx_matches_closed_at ON matches(closed_at DESC);
	`

	_, err := db.Exec(schema)
	return err
}

func (d *Database) Close() error {
	return d.db.Close()
}

// RecordMatch archives the final snapshot of a closed room.
func (d *Database) RecordMatch(snap lobby.Snapshot) error {
	players, err := json.Marshal(snap.Players)
	if err != nil {
		return err
	}

	started := snap.StartedAt != nil
	var startedAt any
	if started {
		startedAt = *snap.StartedAt
	}

	_, err = d.db.Exec(`
		INSERT INTO matches (room_id, host_id, players, started, created_at, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, snap.ID, snap.HostID, string(players), started, snap.CreatedAt, startedAt)
	return err
}

// ListMatches returns archived matches, newest first.
func (d *Database) ListMatches(limit, offset int) ([]Match, error) {
	rows, err := d.db.Query(`
		SELECT id, room_id, host_id, players, started, created_at, started_at, closed_at
		FROM matches
		ORDER BY closed_at DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// MatchesFor returns the archived matches a player sat in, newest first.
func (d *Database) MatchesFor(playerID string, limit int) ([]Match, error) {
	// Roster is a JSON array of quoted identities.
	rows, err := d.db.Query(`
		SELECT id, room_id, host_id, players, started, created_at, started_at, closed_at
		FROM matches
		WHERE players LIKE '%"' || ? || '"%'
		ORDER BY closed_at DESC
		LIMIT ?
	`, playerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func scanMatch(rows *sql.Rows) (Match, error) {
	var m Match
	var players string
	var startedAt sql.NullTime
	if err := rows.Scan(&m.ID, &m.RoomID, &m.HostID, &players, &m.Started, &m.CreatedAt, &startedAt, &m.ClosedAt); err != nil {
		return Match{}, err
	}
	if err := json.Unmarshal([]byte(players), &m.Players); err != nil {
		return Match{}, err
	}
	if startedAt.Valid {
		m.StartedAt = startedAt.Time
	}
	return m, nil
}

// Stats

func (d *Database) GetStats() (map[string]any, error) {
	stats := make(map[string]any)

	var matchCount int
	if err := d.db.QueryRow("SELECT COUNT(*) FROM matches").Scan(&matchCount); err != nil {
		return nil, err
	}
	stats["match_count"] = matchCount

	var startedCount int
	if err := d.db.QueryRow("SELECT COUNT(*) FROM matches WHERE started").Scan(&startedCount); err != nil {
		return nil, err
	}
	stats["started_count"] = startedCount

	return stats, nil
}
