package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/lasertag/tagserver/internal/database"
)

type fakeMetrics struct {
	summaries []string
	kills     int
	captures  int
}

func (f *fakeMetrics) WriteRoundSummary(mode string, winner int, durationSec, kills, captures int) {
	f.summaries = append(f.summaries, mode)
	f.kills = kills
	f.captures = captures
}

func newTestRecorder(t *testing.T) (*Recorder, *gorm.DB) {
	t.Helper()
	db, err := database.OpenSqlite(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(Models()...))
	return NewRecorder(db, time.Second, zerolog.Nop()), db
}

func TestNothingIsWrittenBeforeFlush(t *testing.T) {
	rec, db := newTestRecorder(t)

	rec.RoundStarted("DM", 10, 5)
	rec.RecordKill(0, 1, 3)

	var count int64
	db.Model(&Round{}).Count(&count)
	assert.Zero(t, count)
	assert.Equal(t, 2, rec.Pending())
}

func TestFlushWritesRoundLifecycle(t *testing.T) {
	rec, db := newTestRecorder(t)
	rec.RoundStarted("TEAM_DM", 10, 5)
	rec.RecordKill(0, 1, 0)
	rec.RecordKill(2, 3, 0)
	rec.RoundEnded(0, true, 42)

	rec.Flush()
	assert.Zero(t, rec.Pending())

	var round Round
	require.NoError(t, db.First(&round).Error)
	assert.Equal(t, "TEAM_DM", round.Mode)
	assert.True(t, round.TeamPlay)
	require.NotNil(t, round.Winner)
	assert.Equal(t, 0, *round.Winner)
	assert.Equal(t, 42, round.DurationSec)
	require.NotNil(t, round.EndedAt)

	kills, err := rec.RoundKills(round.ID)
	require.NoError(t, err)
	require.Len(t, kills, 2)
	assert.Equal(t, 0, kills[0].KillerID)
	assert.Equal(t, 1, kills[0].VictimID)
}

func TestEventsResolveAgainstTheirOwnRound(t *testing.T) {
	rec, db := newTestRecorder(t)

	rec.RoundStarted("DM", 10, 1)
	rec.RecordKill(0, 1, 0)
	rec.RoundEnded(0, false, 10)
	rec.RoundStarted("CTF", 15, 3)
	rec.RecordCapture(2, 1)

	// a single flush must still attribute each event to the right round
	rec.Flush()

	var rounds []Round
	require.NoError(t, db.Order("id asc").Find(&rounds).Error)
	require.Len(t, rounds, 2)

	kills, err := rec.RoundKills(rounds[0].ID)
	require.NoError(t, err)
	assert.Len(t, kills, 1)

	var captures []CaptureEvent
	require.NoError(t, db.Find(&captures).Error)
	require.Len(t, captures, 1)
	assert.Equal(t, rounds[1].ID, captures[0].RoundID)
}

func TestRoundEndFeedsMetrics(t *testing.T) {
	rec, _ := newTestRecorder(t)
	metrics := &fakeMetrics{}
	rec.SetMetrics(metrics)

	rec.RoundStarted("CTF", 10, 3)
	rec.RecordKill(0, 1, 0)
	rec.RecordCapture(0, 0)
	rec.RecordCapture(2, 1)
	rec.RoundEnded(0, true, 99)
	rec.Flush()

	require.Len(t, metrics.summaries, 1)
	assert.Equal(t, "CTF", metrics.summaries[0])
	assert.Equal(t, 1, metrics.kills)
	assert.Equal(t, 2, metrics.captures)
}

func TestConnectivityLog(t *testing.T) {
	rec, db := newTestRecorder(t)

	rec.RecordConnectivity("player-0", true)
	rec.RecordConnectivity("player-0", false)
	rec.Flush()

	var events []ConnectivityEvent
	require.NoError(t, db.Order("id asc").Find(&events).Error)
	require.Len(t, events, 2)
	assert.True(t, events[0].Online)
	assert.False(t, events[1].Online)
	assert.Zero(t, events[0].RoundID, "transitions outside a round carry no round id")
}

func TestRecentRoundsSkipsUnfinished(t *testing.T) {
	rec, _ := newTestRecorder(t)

	rec.RoundStarted("DM", 10, 5)
	rec.RoundEnded(1, false, 30)
	rec.RoundStarted("DM", 10, 5)
	rec.Flush()

	rounds, err := rec.RecentRounds(10)
	require.NoError(t, err)
	require.Len(t, rounds, 1)
	require.NotNil(t, rounds[0].Winner)
	assert.Equal(t, 1, *rounds[0].Winner)
}

func TestRunFlushesPeriodically(t *testing.T) {
	db, err := database.OpenSqlite(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(Models()...))
	rec := NewRecorder(db, 10*time.Millisecond, zerolog.Nop())

	rec.Run()
	rec.RoundStarted("DM", 10, 5)
	assert.Eventually(t, func() bool {
		var count int64
		db.Model(&Round{}).Count(&count)
		return count == 1
	}, time.Second, 10*time.Millisecond)
	rec.Stop()
}
