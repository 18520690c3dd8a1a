package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lasertag/tagserver/internal/game"
	"github.com/lasertag/tagserver/internal/model"
	"github.com/lasertag/tagserver/internal/registry"
	"github.com/lasertag/tagserver/internal/settings"
	"github.com/lasertag/tagserver/internal/storage"
)

// Engine is the slice of the game the console is allowed to drive.
type Engine interface {
	Start(timeLimitMinutes, fragLimit int, mode game.Mode)
	End()
	Status() game.Status
}

// History serves the console's finished-rounds view.
type History interface {
	RecentRounds(limit int) ([]storage.Round, error)
}

// Server is the operator console: a JSON API to drive rounds and settings,
// and a websocket that pushes every state change so the scoreboard needs no
// polling.
type Server struct {
	log      zerolog.Logger
	engine   Engine
	registry *registry.Registry
	settings *settings.Provider
	history  History

	httpSrv  *http.Server
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*wsClient]bool
}

// wsClient wraps one console socket. gorilla/websocket allows only a single
// writer per connection, so every write goes through the client mutex: the
// handler goroutine's initial refresh and the engine's presenter pushes land
// on the same socket.
type wsClient struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsClient) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func NewServer(port int, engine Engine, reg *registry.Registry, provider *settings.Provider, history History, log zerolog.Logger) *Server {
	s := &Server{
		log:      log.With().Str("component", "web").Logger(),
		engine:   engine,
		registry: reg,
		settings: provider,
		history:  history,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// the console serves the same operator LAN as the devices
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*wsClient]bool),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/game/start", s.handleGameStart)
	mux.HandleFunc("POST /api/game/end", s.handleGameEnd)
	mux.HandleFunc("GET /api/players", s.handlePlayers)
	mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	mux.HandleFunc("PUT /api/settings/general", s.handleSetGeneral)
	mux.HandleFunc("PUT /api/settings/players/{id}", s.handleSetPlayer)
	mux.HandleFunc("PUT /api/settings/dispensers/{kind}", s.handleSetDispenser)
	mux.HandleFunc("GET /api/presets", s.handleListPresets)
	mux.HandleFunc("POST /api/presets/{name}/save", s.handleSavePreset)
	mux.HandleFunc("POST /api/presets/{name}/load", s.handleLoadPreset)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("/ws", s.handleWebsocket)

	s.httpSrv = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start serves the console in the background.
func (s *Server) Start() {
	go func() {
		s.log.Info().Str("addr", s.httpSrv.Addr).Msg("Web console listening")
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("Web console failed")
		}
	}()
}

// Stop shuts the console down and closes all websocket clients.
func (s *Server) Stop(ctx context.Context) {
	s.mu.Lock()
	for client := range s.clients {
		client.conn.Close()
	}
	s.clients = make(map[*wsClient]bool)
	s.mu.Unlock()
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.log.Error().Err(err).Msg("Web console shutdown failed")
	}
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// playerView is the console's representation of one player.
type playerView struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	Health       int    `json:"health"`
	Score        int    `json:"score"`
	TeamID       int    `json:"teamId"`
	Team         string `json:"team"`
	Online       bool   `json:"online"`
	FlagCarrier  bool   `json:"flagCarrier"`
	RespawnPoint int    `json:"respawnPoint"`
}

func (s *Server) playerViews() []playerView {
	players := s.registry.PlayersSortedByScore()
	out := make([]playerView, len(players))
	for i, p := range players {
		st := p.State()
		out[i] = playerView{
			ID:           st.ID,
			Name:         st.Name,
			Health:       st.Health,
			Score:        st.Score,
			TeamID:       st.TeamID,
			Team:         model.TeamName(st.TeamID),
			Online:       p.Online(),
			FlagCarrier:  st.FlagCarrier,
			RespawnPoint: st.RespawnPoint,
		}
	}
	return out
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"game":   s.engine.Status(),
		"preset": s.settings.CurrentName(),
	})
}

type startRequest struct {
	// omitted fields fall back to the active preset
	TimeLimitMinutes *int    `json:"timeLimitMinutes"`
	FragLimit        *int    `json:"fragLimit"`
	GameMode         *string `json:"gameMode"`
}

func (s *Server) handleGameStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	current := s.settings.Current()
	minutes, fragLimit, modeName := current.TimeLimitMinutes, current.FragLimit, current.GameMode
	if req.TimeLimitMinutes != nil {
		minutes = *req.TimeLimitMinutes
	}
	if req.FragLimit != nil {
		fragLimit = *req.FragLimit
	}
	if req.GameMode != nil {
		modeName = *req.GameMode
	}
	mode, err := game.ParseMode(modeName)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if minutes <= 0 || fragLimit <= 0 {
		writeError(w, http.StatusBadRequest, errors.New("time limit and frag limit must be positive"))
		return
	}
	s.engine.Start(minutes, fragLimit, mode)
	writeJSON(w, http.StatusOK, s.engine.Status())
}

func (s *Server) handleGameEnd(w http.ResponseWriter, r *http.Request) {
	s.engine.End()
	writeJSON(w, http.StatusOK, s.engine.Status())
}

func (s *Server) handlePlayers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.playerViews())
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"presetName": s.settings.CurrentName(),
		"settings":   s.settings.Current(),
	})
}

func (s *Server) handleSetGeneral(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FragLimit        int    `json:"fragLimit"`
		GameMode         string `json:"gameMode"`
		TimeLimitMinutes int    `json:"timeLimitMinutes"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if _, err := game.ParseMode(req.GameMode); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.settings.SetGeneral(req.FragLimit, req.GameMode, req.TimeLimitMinutes)
	writeJSON(w, http.StatusOK, s.settings.Current())
}

func (s *Server) handleSetPlayer(w http.ResponseWriter, r *http.Request) {
	var id int
	if _, err := fmt.Sscanf(r.PathValue("id"), "%d", &id); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("bad player id: %w", err))
		return
	}
	var ps settings.PlayerSettings
	if err := decodeJSON(r, &ps); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.settings.SetPlayer(id, ps); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (s *Server) handleSetDispenser(w http.ResponseWriter, r *http.Request) {
	var kind model.Kind
	switch r.PathValue("kind") {
	case "health":
		kind = model.KindHealthDispenser
	case "ammo":
		kind = model.KindAmmoDispenser
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown dispenser kind %q", r.PathValue("kind")))
		return
	}
	var ds settings.DispenserSettings
	if err := decodeJSON(r, &ds); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.settings.SetDispenser(kind, ds); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, ds)
}

func (s *Server) handleListPresets(w http.ResponseWriter, r *http.Request) {
	names, err := s.settings.ListPresets()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, names)
}

func (s *Server) handleSavePreset(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.settings.SavePreset(name); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"saved": name})
}

func (s *Server) handleLoadPreset(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	err := s.settings.LoadPreset(name)
	if errors.Is(err, settings.ErrPresetNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"loaded": name})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusOK, []storage.Round{})
		return
	}
	rounds, err := s.history.RecentRounds(20)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, rounds)
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	client := &wsClient{conn: conn}
	s.mu.Lock()
	s.clients[client] = true
	s.mu.Unlock()
	s.log.Info().Str("client", conn.RemoteAddr().String()).Msg("Console client connected")

	// drain the client until it goes away; the push direction is the only
	// one we care about
	go func() {
		defer s.dropClient(client)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	s.pushTo(client, "refresh", s.refreshPayload())
}

func (s *Server) dropClient(client *wsClient) {
	s.mu.Lock()
	delete(s.clients, client)
	s.mu.Unlock()
	client.conn.Close()
}

type pushMessage struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

func (s *Server) pushTo(client *wsClient, event string, payload any) {
	data, err := json.Marshal(pushMessage{Event: event, Payload: payload})
	if err != nil {
		s.log.Error().Err(err).Str("event", event).Msg("Failed to encode push")
		return
	}
	if err := client.write(data); err != nil {
		s.dropClient(client)
	}
}

func (s *Server) push(event string, payload any) {
	s.mu.Lock()
	clients := make([]*wsClient, 0, len(s.clients))
	for client := range s.clients {
		clients = append(clients, client)
	}
	s.mu.Unlock()
	for _, client := range clients {
		s.pushTo(client, event, payload)
	}
}

func (s *Server) refreshPayload() map[string]any {
	return map[string]any{
		"game":    s.engine.Status(),
		"players": s.playerViews(),
	}
}

// Refresh implements the presenter fanout: every consistent end state is
// pushed whole, so the scoreboard never reconstructs state from deltas.
func (s *Server) Refresh(isPlaying bool) {
	s.push("refresh", s.refreshPayload())
}

func (s *Server) TimeLeftChanged(seconds int) {
	s.push("timer", map[string]int{"timeLeftSeconds": seconds})
}

func (s *Server) ActorConnected(u model.Unit) {
	s.push("actor", map[string]any{
		"kind":   u.Base().Kind().String(),
		"id":     u.Base().ID(),
		"online": true,
	})
}

func (s *Server) PlayerDataChanged(p *model.Player, nameChanged bool) {
	s.push("player", map[string]any{
		"player":      p.State(),
		"nameChanged": nameChanged,
	})
}

func (s *Server) DispenserSettingsChanged() {
	current := s.settings.Current()
	s.push("dispensers", map[string]any{
		"health": current.HealthDispenser,
		"ammo":   current.AmmoDispenser,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// decodeJSON parses the request body. An empty body means "use defaults".
func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("decoding request body: %w", err)
	}
	return nil
}
