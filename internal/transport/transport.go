package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/lasertag/tagserver/internal/model"
	"github.com/lasertag/tagserver/internal/protocol"
	"github.com/lasertag/tagserver/internal/registry"
)

// Config holds the transport's network parameters. Port receives device
// traffic; DevicePort is the fixed port devices listen on for commands and
// acks. PingTimeout is the liveness window after which a silent actor is
// marked offline. ReadTimeout only bounds how long the receive loop blocks
// before checking the shutdown flag; it is not a protocol timeout.
type Config struct {
	Port        int
	DevicePort  int
	PingTimeout time.Duration
	ReadTimeout time.Duration
}

// EventSink consumes connectivity transitions and decoded domain events.
// The game engine is the one implementation.
type EventSink interface {
	ActorConnected(u model.Unit)
	ActorDisconnected(u model.Unit)
	PlayerEvent(p *model.Player, msg protocol.Message)
}

// DispenserConfig supplies the configured cooldown pushed to dispensers.
type DispenserConfig interface {
	DispenserTimeout(kind model.Kind) int
}

type actorKey struct {
	kind model.Kind
	id   int
}

// Server is the single UDP endpoint of the arena. One receive loop maps
// datagrams to actors and keeps per-actor last-seen timestamps; a once-per-
// second sweep is the only path that ever marks an actor offline. All sends
// are best-effort fire-and-forget.
type Server struct {
	cfg        Config
	log        zerolog.Logger
	registry   *registry.Registry
	dispensers DispenserConfig
	sink       EventSink

	conn *net.UDPConn

	mu       sync.Mutex
	lastSeen map[actorKey]time.Time

	stopChan chan struct{}
	wg       sync.WaitGroup

	packetsReceived metric.Int64Counter
	packetsDropped  metric.Int64Counter
	packetsAcked    metric.Int64Counter
	actorsOnline    metric.Int64ObservableGauge
}

// NewServer creates the transport. The event sink is attached later via
// SetSink because the engine needs the transport to send with.
func NewServer(cfg Config, reg *registry.Registry, dispensers DispenserConfig, log zerolog.Logger) (*Server, error) {
	s := &Server{
		cfg:        cfg,
		log:        log.With().Str("component", "transport").Logger(),
		registry:   reg,
		dispensers: dispensers,
		lastSeen:   make(map[actorKey]time.Time),
		stopChan:   make(chan struct{}),
	}

	m := meter()
	var err error
	s.packetsReceived, err = m.Int64Counter(
		"transport.packets.received",
		metric.WithDescription("Total datagrams received"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating received counter: %w", err)
	}
	s.packetsDropped, err = m.Int64Counter(
		"transport.packets.dropped",
		metric.WithDescription("Total datagrams dropped as malformed or unresolvable"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}
	s.packetsAcked, err = m.Int64Counter(
		"transport.packets.acked",
		metric.WithDescription("Total acks sent back to devices"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating acked counter: %w", err)
	}
	s.actorsOnline, err = m.Int64ObservableGauge(
		"transport.actors.online",
		metric.WithDescription("Actors with a known device address"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			var online int64
			for _, u := range reg.Units() {
				if u.Base().Online() {
					online++
				}
			}
			o.Observe(online)
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("creating online gauge: %w", err)
	}
	return s, nil
}

// SetSink attaches the consumer of connectivity and domain events.
func (s *Server) SetSink(sink EventSink) {
	s.sink = sink
}

// Start binds the server port and launches the receive loop and the
// liveness sweep.
func (s *Server) Start() error {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: s.cfg.Port})
	if err != nil {
		return fmt.Errorf("binding udp port %d: %w", s.cfg.Port, err)
	}
	s.conn = conn
	s.log.Info().Int("port", s.cfg.Port).Msg("Game server listening")

	s.wg.Add(2)
	go s.receiveLoop()
	go s.sweepLoop()
	return nil
}

// Stop signals both loops, waits for them and releases the socket.
func (s *Server) Stop() {
	close(s.stopChan)
	s.wg.Wait()
	if s.conn != nil {
		s.conn.Close()
	}
	s.log.Info().Msg("Game server stopped")
}

func (s *Server) receiveLoop() {
	defer s.wg.Done()
	buf := make([]byte, 64)
	for {
		select {
		case <-s.stopChan:
			return
		default:
		}
		s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			s.log.Error().Err(err).Msg("Receive failed")
			continue
		}
		s.handlePacket(buf, n, addr)
	}
}

// handlePacket processes one datagram. Every failure is logged and dropped;
// the loop must survive any single packet indefinitely.
func (s *Server) handlePacket(buf []byte, n int, addr *net.UDPAddr) {
	s.packetsReceived.Add(context.Background(), 1)

	msg, err := protocol.DecodeInbound(buf, n)
	if err != nil {
		s.packetsDropped.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("reason", "decode")))
		s.log.Warn().Err(err).Str("from", addr.String()).Msg("Dropping malformed packet")
		return
	}
	u, err := s.registry.ActorForMessage(msg)
	if err != nil {
		s.packetsDropped.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("reason", "lookup")))
		s.log.Error().Err(err).Str("from", addr.String()).Stringer("msg", msg).
			Msg("Dropping packet for unknown actor")
		return
	}

	// Address and last-seen change together under s.mu so the sweep's
	// compare-and-clear can never interleave with a fresh packet.
	base := u.Base()
	s.mu.Lock()
	reconnected := base.Addr() == nil || msg.FirstEver
	if reconnected {
		base.SetAddr(addr)
	}
	s.lastSeen[actorKey{base.Kind(), base.ID()}] = time.Now()
	s.mu.Unlock()

	if reconnected {
		s.log.Info().Stringer("actor", base).Str("addr", addr.String()).Msg("Actor connected")
		if s.sink != nil {
			s.sink.ActorConnected(u)
		}
		if base.Kind() == model.KindHealthDispenser || base.Kind() == model.KindAmmoDispenser {
			s.SendSettingsToAllDispensers()
		}
	}

	if !msg.Type.IsLiveness() {
		player, ok := u.(*model.Player)
		if !ok {
			s.packetsDropped.Add(context.Background(), 1,
				metric.WithAttributes(attribute.String("reason", "sender")))
			s.log.Error().Stringer("actor", base).Stringer("msg", msg).
				Msg("Dropping event from non-player actor")
			return
		}
		s.log.Info().Stringer("actor", base).Stringer("msg", msg).Msg("Event from device")
		if s.sink != nil {
			s.sink.PlayerEvent(player, msg)
		}
	}

	// Every inbound message gets an ack, whether heartbeat or event.
	s.sendBytes(addr, protocol.EncodeEvent(protocol.Ping))
	s.packetsAcked.Add(context.Background(), 1)
}

func (s *Server) sweepLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.sweep(time.Now())
		}
	}
}

// sweep marks every actor offline whose last packet is older than the
// liveness window. This is the only offline path; the receive loop only
// ever marks actors online. The expiry check and the address clear happen
// under the same lock as the receive path's address+last-seen update, so a
// packet arriving mid-sweep keeps the actor online.
func (s *Server) sweep(now time.Time) {
	for _, u := range s.registry.Units() {
		base := u.Base()
		s.mu.Lock()
		last := s.lastSeen[actorKey{base.Kind(), base.ID()}]
		expired := now.Sub(last) > s.cfg.PingTimeout && base.Addr() != nil
		if expired {
			base.SetAddr(nil)
		}
		s.mu.Unlock()
		if !expired {
			continue
		}
		s.log.Warn().Stringer("actor", base).Msg("Lost connection to actor")
		if s.sink != nil {
			s.sink.ActorDisconnected(u)
		}
	}
}

// SendEvent sends one framed event to an actor's device port. A missing
// address makes it a no-op; send failures are logged and swallowed so one
// unreachable device never stalls the game.
func (s *Server) SendEvent(t *protocol.MessageType, u model.Unit, payload ...byte) {
	addr := u.Base().Addr()
	if addr == nil {
		return
	}
	s.log.Info().Stringer("actor", u.Base()).Str("type", t.Name).
		Hex("payload", payload).Msg("Event to device")
	s.sendBytes(addr, protocol.EncodeEvent(t, payload...))
}

// SendStatsToAll encodes one snapshot and unicasts it to every online
// player. This is the only bulk-resync mechanism; there is no delta
// protocol.
func (s *Server) SendStatsToAll(includeNames, playing bool, mode int, timeLeftSeconds int) {
	players := s.registry.PlayersSortedByScore()
	states := make([]protocol.PlayerState, len(players))
	var online []*model.Player
	for i, p := range players {
		states[i] = p.State()
		if p.Online() {
			online = append(online, p)
		}
	}
	s.log.Debug().Int("online", len(online)).Bool("withNames", includeNames).
		Bool("playing", playing).Int("timeLeft", timeLeftSeconds).Msg("Stats to players")
	data := protocol.EncodeFullStats(includeNames, states, playing, mode, timeLeftSeconds)
	for _, p := range online {
		s.sendBytes(p.Addr(), data)
	}
}

// SendSettingsToAllDispensers pushes the configured cooldown to every
// online dispenser. The timeout is divided by ten to pack into one byte.
func (s *Server) SendSettingsToAllDispensers() {
	if s.dispensers == nil {
		return
	}
	for _, kind := range []model.Kind{model.KindHealthDispenser, model.KindAmmoDispenser} {
		timeout := s.dispensers.DispenserTimeout(kind)
		for _, d := range s.registry.Dispensers(kind) {
			if d.Online() {
				s.SendEvent(protocol.DispenserSetTimeout, d, byte(timeout/10))
			}
		}
	}
}

// sendBytes opens an ephemeral socket per send; there is no persistent
// per-peer connection state.
func (s *Server) sendBytes(addr *net.UDPAddr, data []byte) {
	if addr == nil {
		return
	}
	dst := &net.UDPAddr{IP: addr.IP, Port: s.cfg.DevicePort}
	conn, err := net.DialUDP("udp", nil, dst)
	if err != nil {
		s.log.Error().Err(err).Str("to", dst.String()).Msg("Error opening send socket")
		return
	}
	defer conn.Close()
	if _, err := conn.Write(data); err != nil {
		s.log.Error().Err(err).Str("to", dst.String()).Msg("Error sending to device")
	}
}
