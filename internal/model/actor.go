package model

import (
	"fmt"
	"net"
	"sync"
)

// Kind identifies the role of a device on the arena network.
type Kind uint8

const (
	KindPlayer Kind = iota
	KindHealthDispenser
	KindAmmoDispenser
	KindRespawnPoint
)

func (k Kind) String() string {
	switch k {
	case KindPlayer:
		return "PLAYER"
	case KindHealthDispenser:
		return "HEALTH_DISPENSER"
	case KindAmmoDispenser:
		return "AMMO_DISPENSER"
	case KindRespawnPoint:
		return "RESPAWN_POINT"
	default:
		return fmt.Sprintf("KIND(%d)", uint8(k))
	}
}

// Actor is the shared header of every roster entry: a fixed identity plus
// the last known device address. The roster is built once at startup and
// actors are never destroyed; only the address and the kind-specific fields
// change. The embedded mutex guards all mutable fields of the enclosing
// variant, so the address written by the receive loop and cleared by the
// liveness sweep can never race.
type Actor struct {
	id   int
	kind Kind

	mu   sync.Mutex
	addr *net.UDPAddr
}

func NewActor(id int, kind Kind) Actor {
	return Actor{id: id, kind: kind}
}

func (a *Actor) ID() int    { return a.id }
func (a *Actor) Kind() Kind { return a.kind }

// Base returns the shared header; embedding it makes every variant a Unit.
func (a *Actor) Base() *Actor { return a }

// Addr returns the last known device address, or nil when offline.
func (a *Actor) Addr() *net.UDPAddr {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.addr
}

func (a *Actor) SetAddr(addr *net.UDPAddr) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.addr = addr
}

// Online reports whether the actor has a known address. The liveness sweep
// is the only code path that ever clears it.
func (a *Actor) Online() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.addr != nil
}

func (a *Actor) String() string {
	return fmt.Sprintf("%s-%d", a.kind, a.id)
}

// Unit is any roster entry: a player, a dispenser or a respawn point.
type Unit interface {
	Base() *Actor
}
