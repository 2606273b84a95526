package main

import (
	"context"
	"crypto/rand"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	"github.com/harborgames/matchroom/backend/internal/api"
	"github.com/harborgames/matchroom/backend/internal/auth"
	"github.com/harborgames/matchroom/backend/internal/db"
	"github.com/harborgames/matchroom/backend/internal/lobby"
	"github.com/harborgames/matchroom/backend/internal/protocol"
	"github.com/harborgames/matchroom/backend/internal/reaper"
	"github.com/harborgames/matchroom/backend/internal/ws"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	dbPath := os.Getenv("MATCHROOM_DB_PATH")
	if dbPath == "" {
		dbPath = "./data/matchroom.db"
	}

	database, err := db.New(dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	secret := []byte(os.Getenv("MATCHROOM_JWT_SECRET"))
	if len(secret) == 0 {
		// Tokens issued here die with the process.
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			log.Fatalf("Failed to generate token secret: %v", err)
		}
		log.Println("MATCHROOM_JWT_SECRET not set, using a process-local secret")
	}
	tokenTTL := auth.DefaultTokenTTL
	if v := os.Getenv("MATCHROOM_TOKEN_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			tokenTTL = d
		}
	}
	authSvc := auth.NewService(secret, tokenTTL)

	hub := ws.NewHub()
	manager := lobby.NewManager(protocol.NewNotifier(hub), db.NewArchiver(database))
	handler := protocol.NewHandler(manager)

	reapCfg := reaper.DefaultConfig()
	if v := os.Getenv("MATCHROOM_REAP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			reapCfg.Interval = d
		}
	}
	if v := os.Getenv("MATCHROOM_ROOM_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			reapCfg.RoomTTL = d
		}
	}
	reapSvc := reaper.New(manager, reapCfg)
	reapSvc.Start()
	defer reapSvc.Stop()

	router := mux.NewRouter()
	router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWs(hub, handler, authSvc, w, r)
	})
	api.New(manager, hub, database, authSvc).Register(router)

	corsMiddleware := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr:    ":" + port,
		Handler: corsMiddleware(router),
	}

	go func() {
		log.Printf("Matchroom server starting on :%s", port)
		log.Printf("Archive database: %s", dbPath)
		log.Println("Endpoints:")
		log.Println("  - Token:     POST /api/token")
		log.Println("  - WebSocket: /ws?token={token}")
		log.Println("  - Health:    GET /health")
		log.Println("  - Stats:     GET /api/stats")
		log.Println("  - Room:      GET/DELETE /api/rooms/{id}")
		log.Println("  - Matches:   GET /api/matches?player=X&limit=N")

		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("ListenAndServe: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
