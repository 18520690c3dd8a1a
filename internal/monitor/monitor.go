package monitor

import (
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lasertag/tagserver/internal/model"
	"github.com/lasertag/tagserver/internal/registry"
)

// PendingProvider exposes how many match events still wait for a flush.
// The storage recorder is the one implementation.
type PendingProvider interface {
	Pending() int
}

// Dependencies holds everything the monitor reports on.
type Dependencies struct {
	Registry *registry.Registry
	Recorder PendingProvider
}

// Status is one snapshot of server health.
type Status struct {
	UptimeSec        int `json:"uptimeSec"`
	PlayersOnline    int `json:"playersOnline"`
	PlayersTotal     int `json:"playersTotal"`
	DispensersOnline int `json:"dispensersOnline"`
	PendingWrites    int `json:"pendingWrites"`
	Goroutines       int `json:"goroutines"`
	HeapAllocMB      int `json:"heapAllocMB"`
}

// Service logs a health snapshot at a fixed interval so an operator can read
// arena state straight from the session log.
type Service struct {
	log      zerolog.Logger
	deps     Dependencies
	interval time.Duration
	started  time.Time

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewService(deps Dependencies, interval time.Duration, log zerolog.Logger) *Service {
	return &Service{
		log:      log.With().Str("component", "monitor").Logger(),
		deps:     deps,
		interval: interval,
		started:  time.Now(),
		stopChan: make(chan struct{}),
	}
}

// Snapshot gathers the current health numbers.
func (s *Service) Snapshot() Status {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	status := Status{
		UptimeSec:     int(time.Since(s.started).Seconds()),
		PendingWrites: s.pending(),
		Goroutines:    runtime.NumGoroutine(),
		HeapAllocMB:   int(mem.HeapAlloc / 1024 / 1024),
	}
	for _, p := range s.deps.Registry.Players() {
		status.PlayersTotal++
		if p.Online() {
			status.PlayersOnline++
		}
	}
	for _, u := range s.deps.Registry.Units() {
		if u.Base().Kind() != model.KindPlayer && u.Base().Online() {
			status.DispensersOnline++
		}
	}
	return status
}

func (s *Service) pending() int {
	if s.deps.Recorder == nil {
		return 0
	}
	return s.deps.Recorder.Pending()
}

// Run starts the periodic health log.
func (s *Service) Run() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.report()
			}
		}
	}()
}

func (s *Service) report() {
	status := s.Snapshot()
	s.log.Info().
		Int("uptimeSec", status.UptimeSec).
		Int("playersOnline", status.PlayersOnline).
		Int("playersTotal", status.PlayersTotal).
		Int("dispensersOnline", status.DispensersOnline).
		Int("pendingWrites", status.PendingWrites).
		Int("goroutines", status.Goroutines).
		Int("heapAllocMB", status.HeapAllocMB).
		Msg("Health")
}

// IsRunning reports whether the periodic log is active.
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()
	close(s.stopChan)
	s.wg.Wait()
}
