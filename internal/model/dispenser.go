package model

const (
	DefaultDispenseAmount  = 40
	DefaultDispenseTimeout = 60
)

// Dispenser is a fixed ammo or health station. The dispense cooldown runs
// on the device itself; the server only configures it.
type Dispenser struct {
	Actor

	amount     int
	timeoutSec int
}

func NewDispenser(id int, kind Kind) *Dispenser {
	return &Dispenser{
		Actor:      NewActor(id, kind),
		amount:     DefaultDispenseAmount,
		timeoutSec: DefaultDispenseTimeout,
	}
}

// Amount is the number of units handed out per use.
func (d *Dispenser) Amount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.amount
}

func (d *Dispenser) SetAmount(amount int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.amount = amount
}

func (d *Dispenser) TimeoutSec() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timeoutSec
}

func (d *Dispenser) SetTimeoutSec(sec int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.timeoutSec = sec
}

// RespawnPoint is a physical reappearance location. It pings like any other
// device but carries no state beyond the shared header.
type RespawnPoint struct {
	Actor
}

func NewRespawnPoint(id int) *RespawnPoint {
	return &RespawnPoint{Actor: NewActor(id, KindRespawnPoint)}
}
