package game

import (
	"github.com/lasertag/tagserver/internal/model"
	"github.com/lasertag/tagserver/internal/protocol"
)

// Presenter is the narrow contract towards presentation sinks (admin
// console, web dashboard). Sinks only ever see consistent end states.
type Presenter interface {
	Refresh(isPlaying bool)
	TimeLeftChanged(seconds int)
	ActorConnected(u model.Unit)
	PlayerDataChanged(p *model.Player, nameChanged bool)
	DispenserSettingsChanged()
}

// Sender is what the engine needs from the device transport.
type Sender interface {
	SendEvent(t *protocol.MessageType, u model.Unit, payload ...byte)
	SendStatsToAll(includeNames, playing bool, mode int, timeLeftSeconds int)
	SendSettingsToAllDispensers()
}

// Recorder persists match history. All methods are best-effort; the engine
// never blocks on them.
type Recorder interface {
	RoundStarted(mode string, timeLimitMinutes, fragLimit int)
	RecordKill(killerID, victimID, killerTeam int)
	RecordCapture(playerID, teamID int)
	RoundEnded(winner int, teamPlay bool, durationSec int)
	RecordConnectivity(actor string, online bool)
}
