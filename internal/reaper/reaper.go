package reaper

import (
	"log"
	"sync"
	"time"

	"github.com/harborgames/matchroom/backend/internal/lobby"
)

type Config struct {
	Interval time.Duration
	RoomTTL  time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval: time.Minute,
		RoomTTL:  30 * time.Minute,
	}
}

// Service periodically closes rooms that have gone idle. Without it, rooms
// abandoned mid-wait or left hanging after a game would pin their players
// in the index forever.
type Service struct {
	manager *lobby.Manager
	config  Config
	stop    chan struct{}
	wg      sync.WaitGroup
}

func New(manager *lobby.Manager, config Config) *Service {
	return &Service{
		manager: manager,
		config:  config,
		stop:    make(chan struct{}),
	}
}

func (s *Service) Start() {
	s.wg.Add(1)
	go s.run()
	log.Printf("Reaper started (interval: %v, room TTL: %v)", s.config.Interval, s.config.RoomTTL)
}

func (s *Service) Stop() {
	close(s.stop)
	s.wg.Wait()
	log.Println("Reaper stopped")
}

func (s *Service) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Service) sweep() {
	closed := s.manager.Expire(s.config.RoomTTL)
	if len(closed) > 0 {
		log.Printf("Reaped %d idle rooms", len(closed))
	}
}

// SweepNow runs one sweep outside the schedule.
func (s *Service) SweepNow() []lobby.Snapshot {
	return s.manager.Expire(s.config.RoomTTL)
}
