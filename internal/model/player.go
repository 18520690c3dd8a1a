package model

import (
	"github.com/lasertag/tagserver/internal/protocol"
)

// Team ids as carried on the wire and shown on the console.
const (
	TeamRed = iota
	TeamBlue
	TeamGreen
	TeamYellow
	TeamPurple
	TeamCyan
)

var teamNames = []string{"red", "blue", "green", "yellow", "purple", "cyan"}

// TeamName returns the display name of a team id.
func TeamName(id int) string {
	if id >= 0 && id < len(teamNames) {
		return teamNames[id]
	}
	return "unknown"
}

const (
	DefaultDamage     = 10
	DefaultMaxBullets = 40
)

// NoRespawnPoint is the sentinel for a player with no assigned point.
const NoRespawnPoint = -1

// Player is the vest/gun/phone trio of one participant. Health mirrors
// whatever the device last reported; the server never computes it.
type Player struct {
	Actor

	name         string
	health       int
	score        int
	teamID       int
	damage       int
	maxBullets   int
	respawnPoint int
	flagCarrier  bool
}

func NewPlayer(id int, name string, maxHealth int) *Player {
	return &Player{
		Actor:        NewActor(id, KindPlayer),
		name:         name,
		health:       maxHealth,
		teamID:       TeamYellow,
		damage:       DefaultDamage,
		maxBullets:   DefaultMaxBullets,
		respawnPoint: NoRespawnPoint,
	}
}

func (p *Player) Name() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.name
}

func (p *Player) SetName(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.name = name
}

func (p *Player) Health() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.health
}

func (p *Player) SetHealth(health int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.health = health
}

// MirrorHealth overwrites health with the device-reported value and reports
// whether it changed.
func (p *Player) MirrorHealth(health int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.health == health {
		return false
	}
	p.health = health
	return true
}

func (p *Player) Score() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.score
}

func (p *Player) SetScore(score int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.score = score
}

// AddScore increments the score and returns the new value.
func (p *Player) AddScore(delta int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.score += delta
	return p.score
}

func (p *Player) TeamID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.teamID
}

func (p *Player) SetTeamID(id int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.teamID = id
}

func (p *Player) Damage() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.damage
}

func (p *Player) SetDamage(damage int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.damage = damage
}

func (p *Player) MaxBullets() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxBullets
}

func (p *Player) SetMaxBullets(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.maxBullets = n
}

func (p *Player) RespawnPoint() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.respawnPoint
}

func (p *Player) SetRespawnPoint(id int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.respawnPoint = id
}

func (p *Player) FlagCarrier() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flagCarrier
}

func (p *Player) SetFlagCarrier(carrying bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flagCarrier = carrying
}

// State captures a consistent snapshot of the player for the wire codec.
func (p *Player) State() protocol.PlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return protocol.PlayerState{
		ID:           p.id,
		Name:         p.name,
		Health:       p.health,
		Score:        p.score,
		TeamID:       p.teamID,
		Damage:       p.damage,
		MaxBullets:   p.maxBullets,
		RespawnPoint: p.respawnPoint,
		FlagCarrier:  p.flagCarrier,
	}
}
