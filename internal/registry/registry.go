package registry

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/lasertag/tagserver/internal/model"
	"github.com/lasertag/tagserver/internal/protocol"
)

// ErrNotFound is returned when a message references an actor outside the
// fixed roster. The roster never changes after startup, so hitting this is
// a defect (misconfigured hardware or corrupted packet), not a normal
// runtime condition.
var ErrNotFound = errors.New("actor not found")

// Roster sizes the fixed actor set built at startup.
type Roster struct {
	Players          int
	RespawnPoints    int
	HealthDispensers int
	AmmoDispensers   int
	MaxHealth        int
}

// Registry is the single authoritative actor catalog. One instance is
// constructor-injected into every component that reads or mutates actors.
type Registry struct {
	log zerolog.Logger

	players []*model.Player
	health  []*model.Dispenser
	ammo    []*model.Dispenser
	points  []*model.RespawnPoint

	mu       sync.Mutex
	captures map[int]int
}

// New builds the fixed roster. Actors are created once and never destroyed.
func New(roster Roster, log zerolog.Logger) *Registry {
	r := &Registry{
		log:      log.With().Str("component", "registry").Logger(),
		captures: make(map[int]int),
	}
	for i := 0; i < roster.Players; i++ {
		r.players = append(r.players, model.NewPlayer(i, fmt.Sprintf("Player-%d", i+1), roster.MaxHealth))
	}
	for i := 0; i < roster.RespawnPoints; i++ {
		r.points = append(r.points, model.NewRespawnPoint(i))
	}
	for i := 0; i < roster.HealthDispensers; i++ {
		r.health = append(r.health, model.NewDispenser(i, model.KindHealthDispenser))
	}
	for i := 0; i < roster.AmmoDispensers; i++ {
		r.ammo = append(r.ammo, model.NewDispenser(i, model.KindAmmoDispenser))
	}
	return r
}

// Players returns the roster's players in id order.
func (r *Registry) Players() []*model.Player {
	return r.players
}

// Dispensers returns the dispensers of one kind in id order.
func (r *Registry) Dispensers(kind model.Kind) []*model.Dispenser {
	switch kind {
	case model.KindHealthDispenser:
		return r.health
	case model.KindAmmoDispenser:
		return r.ammo
	}
	return nil
}

// Units returns every network-addressable actor (players and dispensers).
func (r *Registry) Units() []model.Unit {
	units := make([]model.Unit, 0, len(r.players)+len(r.health)+len(r.ammo))
	for _, p := range r.players {
		units = append(units, p)
	}
	for _, d := range r.health {
		units = append(units, d)
	}
	for _, d := range r.ammo {
		units = append(units, d)
	}
	return units
}

// ActorByKindAndID resolves one roster entry. A miss is logged loudly
// because it can only mean a defect.
func (r *Registry) ActorByKindAndID(kind model.Kind, id int) (model.Unit, error) {
	var u model.Unit
	switch kind {
	case model.KindPlayer:
		if id >= 0 && id < len(r.players) {
			u = r.players[id]
		}
	case model.KindHealthDispenser:
		if id >= 0 && id < len(r.health) {
			u = r.health[id]
		}
	case model.KindAmmoDispenser:
		if id >= 0 && id < len(r.ammo) {
			u = r.ammo[id]
		}
	case model.KindRespawnPoint:
		if id >= 0 && id < len(r.points) {
			u = r.points[id]
		}
	}
	if u == nil {
		r.log.Error().Stringer("kind", kind).Int("id", id).Msg("Actor lookup outside fixed roster")
		return nil, fmt.Errorf("%w: %s-%d", ErrNotFound, kind, id)
	}
	return u, nil
}

// PlayerByID resolves a player id.
func (r *Registry) PlayerByID(id int) (*model.Player, error) {
	u, err := r.ActorByKindAndID(model.KindPlayer, id)
	if err != nil {
		return nil, err
	}
	return u.(*model.Player), nil
}

// DispenserByID resolves a dispenser id of one kind.
func (r *Registry) DispenserByID(kind model.Kind, id int) (*model.Dispenser, error) {
	u, err := r.ActorByKindAndID(kind, id)
	if err != nil {
		return nil, err
	}
	d, ok := u.(*model.Dispenser)
	if !ok {
		return nil, fmt.Errorf("%w: %s-%d is not a dispenser", ErrNotFound, kind, id)
	}
	return d, nil
}

// ActorForMessage maps an inbound message to its sender: dispenser pings to
// the matching dispenser kind, everything else to a player.
func (r *Registry) ActorForMessage(msg protocol.Message) (model.Unit, error) {
	kind := model.KindPlayer
	switch msg.Type {
	case protocol.HealthDispenserPing:
		kind = model.KindHealthDispenser
	case protocol.AmmoDispenserPing:
		kind = model.KindAmmoDispenser
	}
	return r.ActorByKindAndID(kind, int(msg.ActorID))
}

// PlayersSortedByScore returns players ordered by descending score.
func (r *Registry) PlayersSortedByScore() []*model.Player {
	out := make([]*model.Player, len(r.players))
	copy(out, r.players)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score() > out[j].Score()
	})
	return out
}

// TeamScore is one row of the team standings.
type TeamScore struct {
	TeamID int
	Score  int
}

// TeamScores aggregates per-team standings, sorted by descending score.
// The base is always the sum of member scores; flag captures add to it
// through the explicitly maintained capture counter.
func (r *Registry) TeamScores() []TeamScore {
	totals := make(map[int]int)
	for _, p := range r.players {
		totals[p.TeamID()] += p.Score()
	}
	r.mu.Lock()
	for team, n := range r.captures {
		if _, ok := totals[team]; ok {
			totals[team] += n
		}
	}
	r.mu.Unlock()

	out := make([]TeamScore, 0, len(totals))
	for team, score := range totals {
		out = append(out, TeamScore{TeamID: team, Score: score})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].TeamID < out[j].TeamID
	})
	return out
}

// AddCapture credits one flag capture to a team.
func (r *Registry) AddCapture(teamID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.captures[teamID]++
}

// ResetCaptures clears all capture credits; called at round start.
func (r *Registry) ResetCaptures() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.captures = make(map[int]int)
}

// LeadPlayer returns the single player with the strictly highest score, or
// nil when two or more players tie for the maximum. A tie must propagate as
// "no winner", never an arbitrary pick.
func (r *Registry) LeadPlayer() *model.Player {
	var lead *model.Player
	tied := false
	max := 0
	for _, p := range r.players {
		switch s := p.Score(); {
		case lead == nil || s > max:
			lead, max, tied = p, s, false
		case s == max:
			tied = true
		}
	}
	if lead == nil || tied {
		return nil
	}
	return lead
}

// LeadTeam returns the team id with the strictly highest score, or -1 on a
// tie (same policy as LeadPlayer).
func (r *Registry) LeadTeam() int {
	scores := r.TeamScores()
	if len(scores) == 0 {
		return -1
	}
	if len(scores) > 1 && scores[1].Score == scores[0].Score {
		return -1
	}
	return scores[0].TeamID
}

// ShuffledRespawnAssignment shuffles the respawn point ids uniformly and
// returns one id per player. With more players than points the shuffled
// sequence is cycled from the start, so every point is used before any is
// reused and no point is starved.
func (r *Registry) ShuffledRespawnAssignment() []int {
	out := make([]int, len(r.players))
	if len(r.points) == 0 {
		for i := range out {
			out[i] = model.NoRespawnPoint
		}
		return out
	}
	ids := make([]int, len(r.points))
	for i, p := range r.points {
		ids[i] = p.ID()
	}
	rand.Shuffle(len(ids), func(i, j int) {
		ids[i], ids[j] = ids[j], ids[i]
	})
	for i := range out {
		out[i] = ids[i%len(ids)]
	}
	return out
}

// RandomRespawnPointID picks a uniform random point for a single respawn.
func (r *Registry) RandomRespawnPointID() int {
	if len(r.points) == 0 {
		return model.NoRespawnPoint
	}
	return r.points[rand.Intn(len(r.points))].ID()
}
