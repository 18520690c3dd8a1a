package protocol

// Direction documents which side of the link a message type travels from.
// It is used for validation and logging only, never enforced at decode time.
type Direction uint8

const (
	ClientToServer Direction = iota
	ServerToClient
	BothDirections
)

// MessageType is one entry of the wire-protocol catalog. Ids are fixed by
// the deployed hardware and must never be renumbered.
type MessageType struct {
	ID        byte
	Name      string
	Direction Direction
}

func (t *MessageType) IsClientToServer() bool {
	return t.Direction == ClientToServer || t.Direction == BothDirections
}

func (t *MessageType) IsServerToClient() bool {
	return t.Direction == ServerToClient || t.Direction == BothDirections
}

// IsLiveness reports whether the type is a pure heartbeat carrying the
// first-ever flag instead of a payload.
func (t *MessageType) IsLiveness() bool {
	switch t.ID {
	case PlayerPing.ID, HealthDispenserPing.ID, AmmoDispenserPing.ID:
		return true
	}
	return false
}

func (t *MessageType) String() string { return t.Name }

var (
	Ping                = &MessageType{1, "PING", ServerToClient}
	YouHitSomeone       = &MessageType{4, "YOU_HIT_SOMEONE", ClientToServer}
	GotHit              = &MessageType{5, "GOT_HIT", ClientToServer}
	Respawn             = &MessageType{6, "RESPAWN", ClientToServer}
	GameOver            = &MessageType{7, "GAME_OVER", ServerToClient}
	GameStart           = &MessageType{8, "GAME_START", ServerToClient}
	YouKilled           = &MessageType{9, "YOU_KILLED", ClientToServer}
	YouScored           = &MessageType{10, "YOU_SCORED", ServerToClient}
	FullStats           = &MessageType{11, "FULL_STATS", ServerToClient}
	DevicePlayerState   = &MessageType{13, "DEVICE_PLAYER_STATE", ClientToServer}
	DeviceConnected     = &MessageType{14, "DEVICE_CONNECTED", ClientToServer}
	DeviceDisconnected  = &MessageType{15, "DEVICE_DISCONNECTED", ClientToServer}
	GotHealth           = &MessageType{16, "GOT_HEALTH", ClientToServer}
	GotAmmo             = &MessageType{17, "GOT_AMMO", ClientToServer}
	FlagTaken           = &MessageType{18, "FLAG_TAKEN", BothDirections}
	FlagCaptured        = &MessageType{19, "FLAG_CAPTURED", BothDirections}
	FlagLost            = &MessageType{20, "FLAG_LOST", ServerToClient}
	GiveHealthToPlayer  = &MessageType{26, "GIVE_HEALTH_TO_PLAYER", BothDirections}
	GiveAmmoToPlayer    = &MessageType{27, "GIVE_AMMO_TO_PLAYER", BothDirections}
	PlayerPing          = &MessageType{41, "PLAYER_PING", ClientToServer}
	HealthDispenserPing = &MessageType{45, "HEALTH_DISPENSER_PING", ClientToServer}
	AmmoDispenserPing   = &MessageType{46, "AMMO_DISPENSER_PING", ClientToServer}
	DispenserUsed       = &MessageType{51, "DISPENSER_USED", ServerToClient}
	DispenserSetTimeout = &MessageType{53, "DISPENSER_SET_TIMEOUT", ServerToClient}
	GameTimer           = &MessageType{101, "GAME_TIMER", ServerToClient}
	LostConnection      = &MessageType{102, "LOST_CONNECTION", ServerToClient}
)

var typeByID = map[byte]*MessageType{}

func init() {
	for _, t := range []*MessageType{
		Ping, YouHitSomeone, GotHit, Respawn, GameOver, GameStart, YouKilled,
		YouScored, FullStats, DevicePlayerState, DeviceConnected,
		DeviceDisconnected, GotHealth, GotAmmo, FlagTaken, FlagCaptured,
		FlagLost, GiveHealthToPlayer, GiveAmmoToPlayer, PlayerPing,
		HealthDispenserPing, AmmoDispenserPing, DispenserUsed,
		DispenserSetTimeout, GameTimer, LostConnection,
	} {
		typeByID[t.ID] = t
	}
}

// TypeByID looks a message type up in the catalog.
func TypeByID(id byte) (*MessageType, bool) {
	t, ok := typeByID[id]
	return t, ok
}
