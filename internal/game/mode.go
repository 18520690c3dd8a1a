package game

import "fmt"

// Mode is the rule set of one round. Ordinals go on the wire in snapshots
// and GAME_START events, so the order is fixed.
type Mode int

const (
	ModeDM Mode = iota
	ModeTeamDM
	ModeCTF
)

// TeamBased reports whether the vital score is the team score.
func (m Mode) TeamBased() bool {
	return m == ModeTeamDM || m == ModeCTF
}

func (m Mode) String() string {
	switch m {
	case ModeDM:
		return "DM"
	case ModeTeamDM:
		return "TEAM_DM"
	case ModeCTF:
		return "CTF"
	default:
		return fmt.Sprintf("MODE(%d)", int(m))
	}
}

// ParseMode converts a config/console string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "DM":
		return ModeDM, nil
	case "TEAM_DM":
		return ModeTeamDM, nil
	case "CTF":
		return ModeCTF, nil
	default:
		return ModeDM, fmt.Errorf("unknown game mode %q", s)
	}
}
