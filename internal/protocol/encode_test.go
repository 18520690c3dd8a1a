package protocol

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeEvent(t *testing.T) {
	assert.Equal(t, []byte{10, 3}, EncodeEvent(YouScored, 3))
	assert.Equal(t, []byte{8, 1, 15}, EncodeEvent(GameStart, 1, 15))
	assert.Equal(t, []byte{1}, EncodeEvent(Ping))
}

// decodeFullStats re-parses a snapshot so the round trip can be verified.
func decodeFullStats(t *testing.T, data []byte) (playing bool, mode int, timeLeft int, players []PlayerState) {
	t.Helper()
	require.GreaterOrEqual(t, len(data), 6)
	require.Equal(t, FullStats.ID, data[0])
	playing = data[1] != 0
	mode = int(data[2])
	timeLeft = int(binary.LittleEndian.Uint16(data[3:5]))
	count := int(data[5])
	off := 6
	for i := 0; i < count; i++ {
		require.GreaterOrEqual(t, len(data), off+9)
		p := PlayerState{
			ID:           int(data[off]),
			Health:       int(data[off+1]),
			Score:        int(data[off+2]),
			TeamID:       int(data[off+3]),
			Damage:       int(data[off+4]),
			MaxBullets:   int(data[off+5]),
			RespawnPoint: int(int8(data[off+6])),
			FlagCarrier:  data[off+7] != 0,
		}
		nameLen := int(data[off+8])
		off += 9
		require.GreaterOrEqual(t, len(data), off+nameLen)
		p.Name = string(data[off : off+nameLen])
		off += nameLen
		players = append(players, p)
	}
	require.Equal(t, len(data), off, "trailing bytes after last player")
	return
}

func TestEncodeFullStatsRoundTrip(t *testing.T) {
	in := []PlayerState{
		{ID: 2, Name: "Viper", Health: 100, Score: 5, TeamID: 1, Damage: 10, MaxBullets: 40, RespawnPoint: 3},
		{ID: 0, Name: "Ghost", Health: 40, Score: 2, TeamID: 0, Damage: 15, MaxBullets: 30, RespawnPoint: 1, FlagCarrier: true},
		{ID: 4, Name: "Echo", Health: 0, Score: 0, TeamID: 1, Damage: 10, MaxBullets: 40, RespawnPoint: -1},
	}

	data := EncodeFullStats(true, in, true, 2, 754)
	playing, mode, timeLeft, out := decodeFullStats(t, data)

	assert.True(t, playing)
	assert.Equal(t, 2, mode)
	assert.Equal(t, 754, timeLeft)
	assert.Equal(t, in, out)
}

func TestEncodeFullStatsWithoutNames(t *testing.T) {
	in := []PlayerState{
		{ID: 1, Name: "Viper", Health: 90, Score: 3, TeamID: 2, Damage: 10, MaxBullets: 40, RespawnPoint: 0},
	}

	data := EncodeFullStats(false, in, false, 0, 0)
	playing, mode, timeLeft, out := decodeFullStats(t, data)

	assert.False(t, playing)
	assert.Equal(t, 0, mode)
	assert.Equal(t, 0, timeLeft)
	require.Len(t, out, 1)
	assert.Empty(t, out[0].Name)
	assert.Equal(t, in[0].Score, out[0].Score)

	// header(6) + fixed player block(9), no name bytes
	assert.Len(t, data, 15)
}

func TestEncodeFullStatsEmptyRoster(t *testing.T) {
	data := EncodeFullStats(true, nil, false, 1, 60)
	playing, mode, timeLeft, out := decodeFullStats(t, data)
	assert.False(t, playing)
	assert.Equal(t, 1, mode)
	assert.Equal(t, 60, timeLeft)
	assert.Empty(t, out)
}
