package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/harborgames/matchroom/backend/internal/auth"
	"github.com/harborgames/matchroom/backend/internal/db"
	"github.com/harborgames/matchroom/backend/internal/lobby"
	"github.com/harborgames/matchroom/backend/internal/ws"
)

// API is the operational HTTP surface: health, stats, match history, and
// admin teardown. Players interact over the WebSocket transport, not here;
// in particular no open-room listing is exposed.
type API struct {
	manager  *lobby.Manager
	hub      *ws.Hub
	database *db.Database
	auth     *auth.Service
}

func New(manager *lobby.Manager, hub *ws.Hub, database *db.Database, authSvc *auth.Service) *API {
	return &API{
		manager:  manager,
		hub:      hub,
		database: database,
		auth:     authSvc,
	}
}

// Register wires the API's routes into the router.
func (a *API) Register(r *mux.Router) {
	r.HandleFunc("/health", a.HealthHandler).Methods("GET")
	r.HandleFunc("/api/token", a.IssueTokenHandler).Methods("POST")
	r.HandleFunc("/api/stats", a.StatsHandler).Methods("GET")
	r.HandleFunc("/api/matches", a.ListMatchesHandler).Methods("GET")
	r.HandleFunc("/api/rooms/{id}", a.GetRoomHandler).Methods("GET")
	r.HandleFunc("/api/rooms/{id}", a.CloseRoomHandler).Methods("DELETE")
}

func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

func errorResponse(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// IssueTokenHandler mints the signed token the WebSocket endpoint requires.
// Callers name their player identity; anonymous callers get a generated one.
func (a *API) IssueTokenHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Player string `json:"player"`
	}
	if r.Body != nil {
		// An empty body is a valid anonymous request.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	playerID := req.Player
	if playerID == "" {
		playerID = uuid.NewString()
	}

	token, err := a.auth.IssueToken(playerID)
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to issue token")
		return
	}

	jsonResponse(w, http.StatusOK, map[string]string{
		"token":    token,
		"playerId": playerID,
	})
}

func (a *API) StatsHandler(w http.ResponseWriter, r *http.Request) {
	rooms, players := a.manager.Stats()
	stats := map[string]any{
		"active_rooms":      rooms,
		"active_players":    players,
		"connected_clients": a.hub.ClientCount(),
		"timestamp":         time.Now().UTC().Format(time.RFC3339),
	}

	if a.database != nil {
		dbStats, err := a.database.GetStats()
		if err == nil {
			stats["total_matches"] = dbStats["match_count"]
			stats["started_matches"] = dbStats["started_count"]
		}
	}

	jsonResponse(w, http.StatusOK, stats)
}

// GetRoomHandler returns a live room snapshot, for operators poking at a
// specific room code.
func (a *API) GetRoomHandler(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["id"]

	snap, ok := a.manager.Snapshot(roomID)
	if !ok {
		errorResponse(w, http.StatusNotFound, "Room not found")
		return
	}

	jsonResponse(w, http.StatusOK, snap)
}

// CloseRoomHandler force-closes a room, evicting its roster. Occupants are
// notified through the usual lifecycle fan-out.
func (a *API) CloseRoomHandler(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["id"]

	snap, err := a.manager.CloseRoom(roomID)
	if err != nil {
		if lobby.KindOf(err) == lobby.KindRoomNotFound {
			errorResponse(w, http.StatusNotFound, "Room not found")
			return
		}
		errorResponse(w, http.StatusInternalServerError, "Failed to close room")
		return
	}

	jsonResponse(w, http.StatusOK, map[string]any{
		"message": "Room closed",
		"room":    snap,
	})
}

func (a *API) ListMatchesHandler(w http.ResponseWriter, r *http.Request) {
	if a.database == nil {
		errorResponse(w, http.StatusServiceUnavailable, "Archive not configured")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}

	var matches []db.Match
	var err error
	if player := r.URL.Query().Get("player"); player != "" {
		matches, err = a.database.MatchesFor(player, limit)
	} else {
		matches, err = a.database.ListMatches(limit, offset)
	}
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to list matches")
		return
	}
	if matches == nil {
		matches = []db.Match{}
	}

	jsonResponse(w, http.StatusOK, map[string]any{
		"matches": matches,
		"limit":   limit,
		"offset":  offset,
	})
}
