package storage

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/lasertag/tagserver/internal/queue"
)

// RoundMetrics receives a summary point when a round finishes. The influx
// manager is the one implementation.
type RoundMetrics interface {
	WriteRoundSummary(mode string, winner int, durationSec, kills, captures int)
}

// roundState is the recorder's position inside the match history. It is
// only touched by flush, so event ids resolve against the round that was
// current when the event was queued, in order.
type roundState struct {
	roundID  uint
	mode     string
	kills    int
	captures int
}

// op is one deferred write. Ops queue up on the engine's hot path and apply
// in order on the flush worker.
type op func(db *gorm.DB, state *roundState) error

// Recorder persists match history. Engine callbacks only enqueue; a
// background worker flushes batches to the database so the game never waits
// on a disk or a network round trip.
type Recorder struct {
	log           zerolog.Logger
	db            *gorm.DB
	metrics       RoundMetrics
	flushInterval time.Duration

	ops   *queue.Queue[op]
	state roundState

	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewRecorder(db *gorm.DB, flushInterval time.Duration, log zerolog.Logger) *Recorder {
	return &Recorder{
		log:           log.With().Str("component", "storage").Logger(),
		db:            db,
		flushInterval: flushInterval,
		ops:           queue.New[op](),
		stopChan:      make(chan struct{}),
	}
}

// SetMetrics attaches the optional round summary sink.
func (r *Recorder) SetMetrics(m RoundMetrics) {
	r.metrics = m
}

// Run starts the periodic flush worker.
func (r *Recorder) Run() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.flushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-r.stopChan:
				return
			case <-ticker.C:
				r.Flush()
			}
		}
	}()
}

// Stop ends the worker and flushes whatever is still buffered.
func (r *Recorder) Stop() {
	close(r.stopChan)
	r.wg.Wait()
	r.Flush()
}

// Flush applies all buffered ops in order. On a failure the unapplied tail
// goes back to the front of the queue for the next attempt.
func (r *Recorder) Flush() {
	batch := r.ops.Drain()
	for i, o := range batch {
		if err := o(r.db, &r.state); err != nil {
			r.log.Error().Err(err).Int("remaining", len(batch)-i).
				Msg("Flush failed, requeueing unapplied events")
			r.ops.Requeue(batch[i:])
			return
		}
	}
}

// Pending returns the number of buffered ops. Intended for tests and
// monitoring.
func (r *Recorder) Pending() int {
	return r.ops.Len()
}

func (r *Recorder) RoundStarted(mode string, timeLimitMinutes, fragLimit int) {
	startedAt := time.Now()
	r.ops.Push(func(db *gorm.DB, state *roundState) error {
		round := Round{
			Mode:             mode,
			TimeLimitMinutes: timeLimitMinutes,
			FragLimit:        fragLimit,
			StartedAt:        startedAt,
		}
		if err := db.Create(&round).Error; err != nil {
			return err
		}
		*state = roundState{roundID: round.ID, mode: mode}
		return nil
	})
}

func (r *Recorder) RecordKill(killerID, victimID, killerTeam int) {
	at := time.Now()
	r.ops.Push(func(db *gorm.DB, state *roundState) error {
		state.kills++
		return db.Create(&KillEvent{
			RoundID:    state.roundID,
			KillerID:   killerID,
			VictimID:   victimID,
			KillerTeam: killerTeam,
			CreatedAt:  at,
		}).Error
	})
}

func (r *Recorder) RecordCapture(playerID, teamID int) {
	at := time.Now()
	r.ops.Push(func(db *gorm.DB, state *roundState) error {
		state.captures++
		return db.Create(&CaptureEvent{
			RoundID:   state.roundID,
			PlayerID:  playerID,
			TeamID:    teamID,
			CreatedAt: at,
		}).Error
	})
}

func (r *Recorder) RoundEnded(winner int, teamPlay bool, durationSec int) {
	endedAt := time.Now()
	metrics := r.metrics
	r.ops.Push(func(db *gorm.DB, state *roundState) error {
		err := db.Model(&Round{}).Where("id = ?", state.roundID).Updates(map[string]any{
			"winner":       winner,
			"team_play":    teamPlay,
			"duration_sec": durationSec,
			"ended_at":     endedAt,
		}).Error
		if err != nil {
			return err
		}
		if metrics != nil {
			metrics.WriteRoundSummary(state.mode, winner, durationSec, state.kills, state.captures)
		}
		return nil
	})
}

func (r *Recorder) RecordConnectivity(actor string, online bool) {
	at := time.Now()
	r.ops.Push(func(db *gorm.DB, state *roundState) error {
		return db.Create(&ConnectivityEvent{
			RoundID:   state.roundID,
			Actor:     actor,
			Online:    online,
			CreatedAt: at,
		}).Error
	})
}

// RecentRounds returns the latest finished rounds, newest first. Used by the
// web console's history view.
func (r *Recorder) RecentRounds(limit int) ([]Round, error) {
	var rounds []Round
	err := r.db.Where("ended_at IS NOT NULL").
		Order("started_at desc").Limit(limit).Find(&rounds).Error
	return rounds, err
}

// RoundKills returns the kill log of one round in order.
func (r *Recorder) RoundKills(roundID uint) ([]KillEvent, error) {
	var kills []KillEvent
	err := r.db.Where("round_id = ?", roundID).Order("created_at asc").Find(&kills).Error
	return kills, err
}
