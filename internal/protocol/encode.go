package protocol

import "encoding/binary"

// PlayerState is the codec's flat view of one player, listed in snapshot
// wire order.
type PlayerState struct {
	ID           int
	Name         string
	Health       int
	Score        int
	TeamID       int
	Damage       int
	MaxBullets   int
	RespawnPoint int
	FlagCarrier  bool
}

// EncodeEvent frames an outbound event: type id followed by the raw payload
// bytes. Payload size is implicit per type; there is no length prefix.
func EncodeEvent(t *MessageType, payload ...byte) []byte {
	out := make([]byte, 1+len(payload))
	out[0] = t.ID
	copy(out[1:], payload)
	return out
}

// EncodeFullStats builds the bulk-resync snapshot. Players must already be
// sorted by descending score. Layout: [FULL_STATS][playing][mode]
// [timeLeft LE16][count], then per player [id][health][score][teamId]
// [damage][maxBullets][respawnPoint][flagCarrier] and a name-length byte
// followed by the UTF-8 name, or a single zero byte when names are omitted.
func EncodeFullStats(includeNames bool, players []PlayerState, playing bool, mode int, timeLeftSeconds int) []byte {
	size := 6
	for _, p := range players {
		size += 9
		if includeNames {
			size += len(p.Name)
		}
	}
	out := make([]byte, 0, size)
	out = append(out, FullStats.ID, boolByte(playing), byte(mode))
	out = binary.LittleEndian.AppendUint16(out, uint16(timeLeftSeconds))
	out = append(out, byte(len(players)))
	for _, p := range players {
		out = append(out,
			byte(p.ID), byte(p.Health), byte(p.Score), byte(p.TeamID),
			byte(p.Damage), byte(p.MaxBullets), byte(p.RespawnPoint),
			boolByte(p.FlagCarrier))
		if includeNames {
			out = append(out, byte(len(p.Name)))
			out = append(out, p.Name...)
		} else {
			out = append(out, 0)
		}
	}
	return out
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
