package game

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lasertag/tagserver/internal/model"
	"github.com/lasertag/tagserver/internal/protocol"
	"github.com/lasertag/tagserver/internal/registry"
)

// NoWinner is the wire sentinel sent with GAME_OVER when the round ends in
// a tie.
const NoWinner = -1

// Game is the authoritative state machine. It consumes connectivity
// transitions and domain events from the transport, mutates actors through
// the registry, and answers with device commands and snapshots. One mutex
// serializes the receive path against the game clock.
type Game struct {
	log       zerolog.Logger
	registry  *registry.Registry
	sender    Sender
	maxHealth int

	mu         sync.Mutex
	presenters []Presenter
	recorder   Recorder

	playing          bool
	mode             Mode
	fragLimit        int
	timeLimitMinutes int
	timeLeft         int
	startedAt        time.Time

	stopChan chan struct{}
	wg       sync.WaitGroup
}

func New(reg *registry.Registry, sender Sender, maxHealth int, log zerolog.Logger) *Game {
	return &Game{
		log:       log.With().Str("component", "game").Logger(),
		registry:  reg,
		sender:    sender,
		maxHealth: maxHealth,
		stopChan:  make(chan struct{}),
	}
}

// AddPresenter subscribes a presentation sink.
func (g *Game) AddPresenter(p Presenter) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.presenters = append(g.presenters, p)
}

// SetRecorder attaches the optional match-history recorder.
func (g *Game) SetRecorder(r Recorder) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.recorder = r
}

// Run starts the one-second game clock. Stop ends it.
func (g *Game) Run() {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-g.stopChan:
				return
			case <-ticker.C:
				g.Tick()
			}
		}
	}()
}

func (g *Game) Stop() {
	close(g.stopChan)
	g.wg.Wait()
}

// Status is the engine state exposed to presentation surfaces.
type Status struct {
	Playing          bool   `json:"playing"`
	Mode             string `json:"mode"`
	FragLimit        int    `json:"fragLimit"`
	TimeLimitMinutes int    `json:"timeLimitMinutes"`
	TimeLeftSeconds  int    `json:"timeLeftSeconds"`
}

func (g *Game) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Status{
		Playing:          g.playing,
		Mode:             g.mode.String(),
		FragLimit:        g.fragLimit,
		TimeLimitMinutes: g.timeLimitMinutes,
		TimeLeftSeconds:  g.timeLeft,
	}
}

// Start begins a fresh round: scores and health reset, respawn points
// fairly shuffled, clock armed, snapshot and GAME_START pushed to every
// online player.
func (g *Game) Start(timeLimitMinutes, fragLimit int, mode Mode) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.mode = mode
	g.fragLimit = fragLimit
	g.timeLimitMinutes = timeLimitMinutes
	g.timeLeft = timeLimitMinutes * 60
	g.startedAt = time.Now()

	assignment := g.registry.ShuffledRespawnAssignment()
	for i, p := range g.registry.Players() {
		p.SetScore(0)
		p.SetHealth(g.maxHealth)
		p.SetFlagCarrier(false)
		p.SetRespawnPoint(assignment[i])
	}
	g.registry.ResetCaptures()

	g.playing = true
	g.log.Info().Stringer("mode", mode).Int("fragLimit", fragLimit).
		Int("timeLimitMinutes", timeLimitMinutes).Msg("Game started")

	g.sender.SendStatsToAll(true, true, int(g.mode), g.timeLeft)
	for _, p := range g.registry.Players() {
		if p.Online() {
			g.sender.SendEvent(protocol.GameStart, p, byte(mode), byte(timeLimitMinutes))
		}
	}
	if g.recorder != nil {
		g.recorder.RoundStarted(mode.String(), timeLimitMinutes, fragLimit)
	}
	g.refresh()
}

// End finishes the round and announces the winner. Ending an idle game is
// a defensive no-op.
func (g *Game) End() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.endLocked()
}

func (g *Game) endLocked() {
	if !g.playing {
		return
	}
	g.playing = false

	winner := NoWinner
	if g.mode.TeamBased() {
		winner = g.registry.LeadTeam()
	} else if lead := g.registry.LeadPlayer(); lead != nil {
		winner = lead.ID()
	}
	g.log.Info().Stringer("mode", g.mode).Int("winner", winner).Msg("Game over")

	for _, p := range g.registry.Players() {
		g.sender.SendEvent(protocol.GameOver, p, byte(winner))
	}
	g.sender.SendStatsToAll(false, false, int(g.mode), g.timeLeft)
	if g.recorder != nil {
		g.recorder.RoundEnded(winner, g.mode.TeamBased(), int(time.Since(g.startedAt).Seconds()))
	}
	g.refresh()
}

// Tick advances the game clock by one second while a round is live.
func (g *Game) Tick() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.playing {
		return
	}
	g.timeLeft--
	if g.timeLeft <= 0 {
		g.endLocked()
		return
	}
	for _, p := range g.presenters {
		p.TimeLeftChanged(g.timeLeft)
	}
}

// PlayerEvent handles one decoded domain event from a player's device.
func (g *Game) PlayerEvent(player *model.Player, msg protocol.Message) {
	g.mu.Lock()
	defer g.mu.Unlock()

	// The device is the source of truth for health; mirror it verbatim.
	player.MirrorHealth(int(msg.Health))

	dispenserOnly := false
	switch msg.Type {
	case protocol.GotHit, protocol.YouKilled:
		killer, err := g.registry.PlayerByID(int(msg.Extra))
		if err != nil {
			g.log.Error().Err(err).Stringer("msg", msg).Msg("Hit-by player not on roster")
			return
		}
		if msg.Type == protocol.YouKilled {
			g.handleKill(killer, player)
		} else {
			g.sender.SendEvent(protocol.YouHitSomeone, killer, byte(player.ID()))
		}
	case protocol.GotHealth:
		dispenserOnly = true
		g.useDispenser(player, model.KindHealthDispenser, int(msg.Extra), protocol.GiveHealthToPlayer)
	case protocol.GotAmmo:
		dispenserOnly = true
		g.useDispenser(player, model.KindAmmoDispenser, int(msg.Extra), protocol.GiveAmmoToPlayer)
	case protocol.FlagTaken:
		if g.mode != ModeCTF {
			g.log.Warn().Stringer("player", player.Base()).Msg("Flag event outside CTF, ignoring")
			break
		}
		player.SetFlagCarrier(true)
		g.broadcast(protocol.FlagTaken, byte(player.ID()))
	case protocol.FlagCaptured:
		if g.mode != ModeCTF {
			g.log.Warn().Stringer("player", player.Base()).Msg("Flag event outside CTF, ignoring")
			break
		}
		g.handleCapture(player)
	default:
		g.log.Debug().Stringer("msg", msg).Msg("No rule for event, resyncing only")
	}

	if !dispenserOnly {
		g.sender.SendStatsToAll(false, g.playing, int(g.mode), g.timeLeft)
	}
	g.refresh()
}

// handleKill books one confirmed kill reported by the victim's vest.
func (g *Game) handleKill(killer, victim *model.Player) {
	if g.mode == ModeCTF && victim.FlagCarrier() {
		victim.SetFlagCarrier(false)
		g.broadcast(protocol.FlagLost, byte(victim.ID()))
	}

	score := killer.AddScore(1)
	g.sender.SendEvent(protocol.YouScored, killer, byte(victim.ID()))
	victim.SetRespawnPoint(g.registry.RandomRespawnPointID())
	if g.recorder != nil {
		g.recorder.RecordKill(killer.ID(), victim.ID(), killer.TeamID())
	}

	vital := score
	if g.mode.TeamBased() {
		vital = g.teamScore(killer.TeamID())
	}
	if g.playing && vital >= g.fragLimit {
		g.endLocked()
	}
}

func (g *Game) handleCapture(player *model.Player) {
	g.registry.AddCapture(player.TeamID())
	player.SetFlagCarrier(false)
	g.broadcast(protocol.FlagCaptured, byte(player.ID()), byte(player.TeamID()))
	if g.recorder != nil {
		g.recorder.RecordCapture(player.ID(), player.TeamID())
	}
	if g.playing && g.teamScore(player.TeamID()) >= g.fragLimit {
		g.endLocked()
	}
}

func (g *Game) useDispenser(player *model.Player, kind model.Kind, id int, give *protocol.MessageType) {
	dispenser, err := g.registry.DispenserByID(kind, id)
	if err != nil {
		g.log.Error().Err(err).Stringer("player", player.Base()).Msg("Dispenser not on roster")
		return
	}
	g.sender.SendEvent(protocol.DispenserUsed, dispenser)
	g.sender.SendEvent(give, player, byte(dispenser.Amount()))
}

func (g *Game) teamScore(teamID int) int {
	for _, ts := range g.registry.TeamScores() {
		if ts.TeamID == teamID {
			return ts.Score
		}
	}
	return 0
}

func (g *Game) broadcast(t *protocol.MessageType, payload ...byte) {
	for _, p := range g.registry.Players() {
		if p.Online() {
			g.sender.SendEvent(t, p, payload...)
		}
	}
}

// ActorConnected reacts to a device joining or rejoining the arena.
func (g *Game) ActorConnected(u model.Unit) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if u.Base().Kind() == model.KindPlayer {
		g.sender.SendStatsToAll(true, g.playing, int(g.mode), g.timeLeft)
	}
	if g.recorder != nil {
		g.recorder.RecordConnectivity(u.Base().String(), true)
	}
	for _, p := range g.presenters {
		p.ActorConnected(u)
	}
	g.refresh()
}

// ActorDisconnected reacts to the liveness sweep marking a device offline.
func (g *Game) ActorDisconnected(u model.Unit) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if u.Base().Kind() == model.KindPlayer {
		g.sender.SendStatsToAll(true, g.playing, int(g.mode), g.timeLeft)
	}
	if g.recorder != nil {
		g.recorder.RecordConnectivity(u.Base().String(), false)
	}
	g.refresh()
}

// PlayerDataChanged re-syncs clients after a settings edit touched a
// player.
func (g *Game) PlayerDataChanged(player *model.Player, nameChanged bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sender.SendStatsToAll(nameChanged, g.playing, int(g.mode), g.timeLeft)
	for _, p := range g.presenters {
		p.PlayerDataChanged(player, nameChanged)
	}
	g.refresh()
}

// DispenserSettingsChanged re-pushes dispenser configuration so
// reconfigured hardware sees current values without waiting for an event.
func (g *Game) DispenserSettingsChanged() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sender.SendSettingsToAllDispensers()
	for _, p := range g.presenters {
		p.DispenserSettingsChanged()
	}
	g.refresh()
}

func (g *Game) refresh() {
	for _, p := range g.presenters {
		p.Refresh(g.playing)
	}
}
