package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lasertag/tagserver/internal/database"
	"github.com/lasertag/tagserver/internal/game"
	"github.com/lasertag/tagserver/internal/registry"
	"github.com/lasertag/tagserver/internal/settings"
	"github.com/lasertag/tagserver/internal/storage"
)

type fakeEngine struct {
	started []game.Mode
	minutes int
	frags   int
	ended   int
	playing bool
}

func (f *fakeEngine) Start(timeLimitMinutes, fragLimit int, mode game.Mode) {
	f.started = append(f.started, mode)
	f.minutes = timeLimitMinutes
	f.frags = fragLimit
	f.playing = true
}

func (f *fakeEngine) End() { f.ended++; f.playing = false }

func (f *fakeEngine) Status() game.Status {
	return game.Status{Playing: f.playing, Mode: "DM"}
}

type fakeHistory struct{ rounds []storage.Round }

func (f *fakeHistory) RecentRounds(limit int) ([]storage.Round, error) { return f.rounds, nil }

func newTestConsole(t *testing.T) (*Server, *fakeEngine) {
	t.Helper()
	reg := registry.New(registry.Roster{
		Players:          2,
		RespawnPoints:    2,
		HealthDispensers: 1,
		AmmoDispensers:   1,
		MaxHealth:        100,
	}, zerolog.Nop())
	db, err := database.OpenSqlite(filepath.Join(t.TempDir(), "web.db"))
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(settings.Models()...))
	provider := settings.New(db, reg, zerolog.Nop())
	engine := &fakeEngine{}
	return NewServer(0, engine, reg, provider, &fakeHistory{}, zerolog.Nop()), engine
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestStatusEndpoint(t *testing.T) {
	s, _ := newTestConsole(t)
	rec := doRequest(t, s, http.MethodGet, "/api/status", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, settings.NewPresetName, body["preset"])
}

func TestGameStartUsesPresetDefaults(t *testing.T) {
	s, engine := newTestConsole(t)

	rec := doRequest(t, s, http.MethodPost, "/api/game/start", "")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, engine.started, 1)
	assert.Equal(t, game.ModeDM, engine.started[0])
	assert.Equal(t, 15, engine.minutes, "preset default time limit")
	assert.Equal(t, 10, engine.frags, "preset default frag limit")
}

func TestGameStartWithOverrides(t *testing.T) {
	s, engine := newTestConsole(t)

	rec := doRequest(t, s, http.MethodPost, "/api/game/start",
		`{"timeLimitMinutes": 5, "fragLimit": 3, "gameMode": "CTF"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, engine.started, 1)
	assert.Equal(t, game.ModeCTF, engine.started[0])
	assert.Equal(t, 5, engine.minutes)
	assert.Equal(t, 3, engine.frags)
}

func TestGameStartRejectsBadInput(t *testing.T) {
	s, engine := newTestConsole(t)

	assert.Equal(t, http.StatusBadRequest,
		doRequest(t, s, http.MethodPost, "/api/game/start", `{"gameMode": "BINGO"}`).Code)
	assert.Equal(t, http.StatusBadRequest,
		doRequest(t, s, http.MethodPost, "/api/game/start", `{"fragLimit": 0}`).Code)
	assert.Empty(t, engine.started)
}

func TestGameEnd(t *testing.T) {
	s, engine := newTestConsole(t)
	rec := doRequest(t, s, http.MethodPost, "/api/game/end", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, engine.ended)
}

func TestPlayersEndpoint(t *testing.T) {
	s, _ := newTestConsole(t)
	rec := doRequest(t, s, http.MethodGet, "/api/players", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var players []playerView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &players))
	require.Len(t, players, 2)
	assert.Equal(t, "Player-1", players[0].Name)
	assert.Equal(t, "yellow", players[0].Team)
	assert.False(t, players[0].Online)
}

func TestSetPlayerSettings(t *testing.T) {
	s, _ := newTestConsole(t)

	rec := doRequest(t, s, http.MethodPut, "/api/settings/players/1",
		`{"name": "Ada", "maxBullets": 30, "damage": 15, "teamId": 0}`)
	require.Equal(t, http.StatusOK, rec.Code)

	players := doRequest(t, s, http.MethodGet, "/api/players", "")
	assert.Contains(t, players.Body.String(), "Ada")
}

func TestSetPlayerSettingsUnknownID(t *testing.T) {
	s, _ := newTestConsole(t)
	rec := doRequest(t, s, http.MethodPut, "/api/settings/players/9", `{"name": "x"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSetDispenserSettings(t *testing.T) {
	s, _ := newTestConsole(t)

	rec := doRequest(t, s, http.MethodPut, "/api/settings/dispensers/ammo",
		`{"timeout": 30, "amount": 20}`)
	require.Equal(t, http.StatusOK, rec.Code)

	bad := doRequest(t, s, http.MethodPut, "/api/settings/dispensers/pizza", `{}`)
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestPresetLifecycleOverHTTP(t *testing.T) {
	s, _ := newTestConsole(t)

	require.Equal(t, http.StatusOK,
		doRequest(t, s, http.MethodPut, "/api/settings/general",
			`{"fragLimit": 7, "gameMode": "TEAM_DM", "timeLimitMinutes": 20}`).Code)
	require.Equal(t, http.StatusOK,
		doRequest(t, s, http.MethodPost, "/api/presets/league/save", "").Code)

	list := doRequest(t, s, http.MethodGet, "/api/presets", "")
	var names []string
	require.NoError(t, json.Unmarshal(list.Body.Bytes(), &names))
	assert.Equal(t, []string{"league"}, names)

	require.Equal(t, http.StatusOK,
		doRequest(t, s, http.MethodPost, "/api/presets/league/load", "").Code)
	assert.Equal(t, http.StatusNotFound,
		doRequest(t, s, http.MethodPost, "/api/presets/ghost/load", "").Code)
}

func TestHistoryEndpoint(t *testing.T) {
	s, _ := newTestConsole(t)
	rec := doRequest(t, s, http.MethodGet, "/api/history", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var rounds []storage.Round
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rounds))
	assert.Empty(t, rounds)
}

func dialWebsocket(url string) (*websocket.Conn, *http.Response, error) {
	return websocket.DefaultDialer.Dial(url, nil)
}

func TestWebsocketReceivesInitialRefresh(t *testing.T) {
	s, _ := newTestConsole(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := dialWebsocket(wsURL)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	var msg pushMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "refresh", msg.Event)
}

func TestPresenterPushReachesClients(t *testing.T) {
	s, _ := newTestConsole(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := dialWebsocket(wsURL)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	var msg pushMessage
	require.NoError(t, conn.ReadJSON(&msg)) // initial refresh

	s.TimeLeftChanged(90)
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "timer", msg.Event)
}

func TestClientConnectDuringContinuousPushes(t *testing.T) {
	s, _ := newTestConsole(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	// the engine ticks once per second during a round; keep the presenter
	// pushing the whole time a client performs its handshake and initial
	// refresh, so the two write paths overlap on the same socket
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				s.TimeLeftChanged(42)
			}
		}
	}()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := dialWebsocket(wsURL)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	var msg pushMessage
	for i := 0; i < 50; i++ {
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Contains(t, []string{"refresh", "timer"}, msg.Event)
	}

	close(stop)
	wg.Wait()
}
