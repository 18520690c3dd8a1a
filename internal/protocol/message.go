package protocol

import "fmt"

// Message is one decoded inbound datagram. For liveness types only
// FirstEver is meaningful; for everything else Extra and Health carry the
// two payload bytes (killer id, dispenser id, reported health).
type Message struct {
	Type      *MessageType
	ActorID   byte
	Extra     byte
	Health    byte
	FirstEver bool
}

func (m Message) String() string {
	return fmt.Sprintf("{type=%s actor=%d extra=%d health=%d first=%t}",
		m.Type, m.ActorID, m.Extra, m.Health, m.FirstEver)
}

// DecodeInbound parses the first n bytes of a received datagram.
// Byte 0 is the type id and byte 1 the actor id. Liveness types carry a
// single first-ever flag byte; all other types carry exactly two payload
// bytes. Anything else is a decode error and the packet must be dropped.
func DecodeInbound(buf []byte, n int) (Message, error) {
	if n < 2 || n > len(buf) {
		return Message{}, fmt.Errorf("message too short: % x", buf[:max(0, min(n, len(buf)))])
	}
	t, ok := TypeByID(buf[0])
	if !ok {
		return Message{}, fmt.Errorf("unknown message type id %d", buf[0])
	}
	msg := Message{Type: t, ActorID: buf[1]}
	switch {
	case t.IsLiveness():
		if n < 3 {
			return Message{}, fmt.Errorf("%s without first-ever flag: % x", t, buf[:n])
		}
		msg.FirstEver = buf[2] != 0
	case n == 4:
		msg.Extra = buf[2]
		msg.Health = buf[3]
	default:
		return Message{}, fmt.Errorf("invalid %s length %d: % x", t, n, buf[:n])
	}
	return msg, nil
}
