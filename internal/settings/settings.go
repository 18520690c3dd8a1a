package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lasertag/tagserver/internal/model"
	"github.com/lasertag/tagserver/internal/registry"
)

// NewPresetName labels unsaved settings on the console.
const NewPresetName = "New..."

var ErrPresetNotFound = errors.New("preset not found")

// PlayerSettings is the configurable part of one player.
type PlayerSettings struct {
	Name       string `json:"name"`
	MaxBullets int    `json:"maxBullets"`
	Damage     int    `json:"damage"`
	TeamID     int    `json:"teamId"`
}

// DispenserSettings configures one dispenser kind arena-wide.
type DispenserSettings struct {
	TimeoutSec int `json:"timeout"`
	Amount     int `json:"amount"`
}

// Preset is one complete, nameable arena configuration.
type Preset struct {
	FragLimit        int                    `json:"fragLimit"`
	GameMode         string                 `json:"gameMode"`
	TimeLimitMinutes int                    `json:"timeLimitMinutes"`
	Players          map[int]PlayerSettings `json:"players"`
	HealthDispenser  DispenserSettings      `json:"healthDispenser"`
	AmmoDispenser    DispenserSettings      `json:"ammoDispenser"`
}

// DefaultPreset builds the out-of-the-box configuration for a roster size.
func DefaultPreset(players int) Preset {
	p := Preset{
		FragLimit:        10,
		GameMode:         "DM",
		TimeLimitMinutes: 15,
		Players:          make(map[int]PlayerSettings),
		HealthDispenser:  DispenserSettings{TimeoutSec: model.DefaultDispenseTimeout, Amount: model.DefaultDispenseAmount},
		AmmoDispenser:    DispenserSettings{TimeoutSec: model.DefaultDispenseTimeout, Amount: model.DefaultDispenseAmount},
	}
	for i := 0; i < players; i++ {
		p.Players[i] = PlayerSettings{
			Name:       fmt.Sprintf("Player-%d", i+1),
			MaxBullets: model.DefaultMaxBullets,
			Damage:     model.DefaultDamage,
			TeamID:     model.TeamYellow,
		}
	}
	return p
}

// PresetRecord is the persisted form of a named preset.
type PresetRecord struct {
	ID   uint           `gorm:"primarykey"`
	Name string         `gorm:"uniqueIndex;size:128"`
	Data datatypes.JSON `gorm:"not null"`
}

// ServerState remembers the last loaded preset across restarts. There is
// exactly one row.
type ServerState struct {
	ID            uint `gorm:"primarykey"`
	CurrentPreset string
}

// Models lists everything the provider persists, for schema migration.
func Models() []any {
	return []any{&PresetRecord{}, &ServerState{}}
}

// Notifier receives change fanout after an edit has been applied to the
// actors. The game engine is the one implementation.
type Notifier interface {
	PlayerDataChanged(p *model.Player, nameChanged bool)
	DispenserSettingsChanged()
}

// Provider owns the current settings, applies them to the roster and
// persists named presets. It also answers the transport's dispenser
// configuration queries.
type Provider struct {
	log      zerolog.Logger
	db       *gorm.DB
	registry *registry.Registry
	notifier Notifier

	mu          sync.Mutex
	current     Preset
	currentName string
}

// New builds the provider with defaults and restores the last loaded preset
// if the server state remembers one.
func New(db *gorm.DB, reg *registry.Registry, log zerolog.Logger) *Provider {
	p := &Provider{
		log:         log.With().Str("component", "settings").Logger(),
		db:          db,
		registry:    reg,
		current:     DefaultPreset(len(reg.Players())),
		currentName: NewPresetName,
	}
	p.restoreState()
	p.SyncToActors()
	return p
}

// SetNotifier attaches the change fanout target.
func (p *Provider) SetNotifier(n Notifier) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notifier = n
}

// Current returns a deep copy of the active preset.
func (p *Provider) Current() Preset {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.copyCurrent()
}

func (p *Provider) copyCurrent() Preset {
	out := p.current
	out.Players = make(map[int]PlayerSettings, len(p.current.Players))
	for id, ps := range p.current.Players {
		out.Players[id] = ps
	}
	return out
}

// CurrentName returns the name of the loaded preset, or NewPresetName when
// the active settings are unsaved.
func (p *Provider) CurrentName() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentName
}

// SetGeneral updates the round parameters. They take effect at the next
// round start.
func (p *Provider) SetGeneral(fragLimit int, gameMode string, timeLimitMinutes int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current.FragLimit = fragLimit
	p.current.GameMode = gameMode
	p.current.TimeLimitMinutes = timeLimitMinutes
	p.markDirty()
}

// SetPlayer updates one player's settings and pushes them onto the roster.
func (p *Provider) SetPlayer(playerID int, ps PlayerSettings) error {
	player, err := p.registry.PlayerByID(playerID)
	if err != nil {
		return err
	}

	p.mu.Lock()
	nameChanged := p.current.Players[playerID].Name != ps.Name
	p.current.Players[playerID] = ps
	p.markDirty()
	notifier := p.notifier
	p.mu.Unlock()

	player.SetName(ps.Name)
	player.SetMaxBullets(ps.MaxBullets)
	player.SetDamage(ps.Damage)
	player.SetTeamID(ps.TeamID)
	if notifier != nil {
		notifier.PlayerDataChanged(player, nameChanged)
	}
	return nil
}

// SetDispenser updates the settings of one dispenser kind and pushes them to
// the hardware.
func (p *Provider) SetDispenser(kind model.Kind, ds DispenserSettings) error {
	if kind != model.KindHealthDispenser && kind != model.KindAmmoDispenser {
		return fmt.Errorf("kind %s has no dispenser settings", kind)
	}

	p.mu.Lock()
	if kind == model.KindHealthDispenser {
		p.current.HealthDispenser = ds
	} else {
		p.current.AmmoDispenser = ds
	}
	p.markDirty()
	notifier := p.notifier
	p.mu.Unlock()

	for _, d := range p.registry.Dispensers(kind) {
		d.SetTimeoutSec(ds.TimeoutSec)
		d.SetAmount(ds.Amount)
	}
	if notifier != nil {
		notifier.DispenserSettingsChanged()
	}
	return nil
}

// DispenserTimeout answers the transport's configuration query for the
// cooldown pushed to dispensers.
func (p *Provider) DispenserTimeout(kind model.Kind) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if kind == model.KindAmmoDispenser {
		return p.current.AmmoDispenser.TimeoutSec
	}
	return p.current.HealthDispenser.TimeoutSec
}

// SyncToActors pushes the whole active preset onto the roster. Called at
// startup and after loading a preset.
func (p *Provider) SyncToActors() {
	p.mu.Lock()
	current := p.copyCurrent()
	p.mu.Unlock()

	for _, player := range p.registry.Players() {
		ps, ok := current.Players[player.ID()]
		if !ok {
			continue
		}
		player.SetName(ps.Name)
		player.SetMaxBullets(ps.MaxBullets)
		player.SetDamage(ps.Damage)
		player.SetTeamID(ps.TeamID)
	}
	for _, d := range p.registry.Dispensers(model.KindHealthDispenser) {
		d.SetTimeoutSec(current.HealthDispenser.TimeoutSec)
		d.SetAmount(current.HealthDispenser.Amount)
	}
	for _, d := range p.registry.Dispensers(model.KindAmmoDispenser) {
		d.SetTimeoutSec(current.AmmoDispenser.TimeoutSec)
		d.SetAmount(current.AmmoDispenser.Amount)
	}
}

// SavePreset stores the active settings under a name, overwriting any
// preset with that name.
func (p *Provider) SavePreset(name string) error {
	p.mu.Lock()
	data, err := json.Marshal(p.current)
	p.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encoding preset: %w", err)
	}

	record := PresetRecord{Name: name, Data: data}
	err = p.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"data"}),
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("saving preset %q: %w", name, err)
	}

	p.mu.Lock()
	p.currentName = name
	p.mu.Unlock()
	p.saveState(name)
	p.log.Info().Str("preset", name).Msg("Preset saved")
	return nil
}

// LoadPreset activates a stored preset and pushes it onto the roster.
func (p *Provider) LoadPreset(name string) error {
	var record PresetRecord
	err := p.db.Where("name = ?", name).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %q", ErrPresetNotFound, name)
	}
	if err != nil {
		return fmt.Errorf("loading preset %q: %w", name, err)
	}

	var preset Preset
	if err := json.Unmarshal(record.Data, &preset); err != nil {
		return fmt.Errorf("decoding preset %q: %w", name, err)
	}
	if preset.Players == nil {
		preset.Players = make(map[int]PlayerSettings)
	}

	p.mu.Lock()
	p.current = preset
	p.currentName = name
	notifier := p.notifier
	p.mu.Unlock()

	p.saveState(name)
	p.SyncToActors()
	if notifier != nil {
		notifier.DispenserSettingsChanged()
	}
	p.log.Info().Str("preset", name).Msg("Preset loaded")
	return nil
}

// ListPresets returns the stored preset names in alphabetical order.
func (p *Provider) ListPresets() ([]string, error) {
	var names []string
	err := p.db.Model(&PresetRecord{}).Order("name asc").Pluck("name", &names).Error
	if err != nil {
		return nil, fmt.Errorf("listing presets: %w", err)
	}
	return names, nil
}

// markDirty flags the active settings as diverged from the loaded preset.
// Callers hold the mutex.
func (p *Provider) markDirty() {
	p.currentName = NewPresetName
}

func (p *Provider) saveState(name string) {
	state := ServerState{ID: 1, CurrentPreset: name}
	err := p.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"current_preset"}),
	}).Create(&state).Error
	if err != nil {
		p.log.Warn().Err(err).Msg("Failed to persist server state")
	}
}

func (p *Provider) restoreState() {
	var state ServerState
	err := p.db.First(&state, 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		p.log.Info().Msg("No server state found, using defaults")
		return
	}
	if err != nil {
		p.log.Warn().Err(err).Msg("Failed to read server state")
		return
	}
	if state.CurrentPreset == "" || state.CurrentPreset == NewPresetName {
		return
	}
	if err := p.LoadPreset(state.CurrentPreset); err != nil {
		p.log.Warn().Err(err).Str("preset", state.CurrentPreset).Msg("Failed to restore preset")
	}
}
