package storage

import "time"

// Round is one recorded match from start to finish. Winner stays nil until
// the round ends; -1 marks a tie.
type Round struct {
	ID               uint `gorm:"primarykey"`
	Mode             string
	TimeLimitMinutes int
	FragLimit        int
	TeamPlay         bool
	Winner           *int
	DurationSec      int
	StartedAt        time.Time
	EndedAt          *time.Time
}

// KillEvent is one confirmed kill inside a round.
type KillEvent struct {
	ID         uint `gorm:"primarykey"`
	RoundID    uint `gorm:"index"`
	KillerID   int
	VictimID   int
	KillerTeam int
	CreatedAt  time.Time
}

// CaptureEvent is one flag capture inside a round.
type CaptureEvent struct {
	ID        uint `gorm:"primarykey"`
	RoundID   uint `gorm:"index"`
	PlayerID  int
	TeamID    int
	CreatedAt time.Time
}

// ConnectivityEvent records a device going online or offline. RoundID is
// zero for transitions between rounds.
type ConnectivityEvent struct {
	ID        uint `gorm:"primarykey"`
	RoundID   uint `gorm:"index"`
	Actor     string
	Online    bool
	CreatedAt time.Time
}

// Models lists everything the recorder persists, for schema migration.
func Models() []any {
	return []any{&Round{}, &KillEvent{}, &CaptureEvent{}, &ConnectivityEvent{}}
}
