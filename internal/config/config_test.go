package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_WithValidConfigFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	cfg := `{
		"logLevel": "debug",
		"server": { "port": 9999, "pingTimeoutSec": 5 },
		"roster": { "players": 8 }
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tagserver.cfg.json"), []byte(cfg), 0644))

	err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "debug", viper.GetString("logLevel"))
	assert.Equal(t, 9999, viper.GetInt("server.port"))
	assert.Equal(t, 5, viper.GetInt("server.pingTimeoutSec"))
	assert.Equal(t, 8, viper.GetInt("roster.players"))
	// untouched keys keep their defaults
	assert.Equal(t, 1234, viper.GetInt("server.devicePort"))
}

func TestLoad_DefaultValues(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tagserver.cfg.json"), []byte(`{}`), 0644))

	err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "info", viper.GetString("logLevel"))
	assert.Equal(t, "./taglogs", viper.GetString("logsDir"))
	assert.Equal(t, 9878, viper.GetInt("server.port"))
	assert.Equal(t, 1234, viper.GetInt("server.devicePort"))
	assert.Equal(t, 10, viper.GetInt("server.pingTimeoutSec"))
	assert.Equal(t, 6, viper.GetInt("roster.players"))
	assert.Equal(t, 6, viper.GetInt("roster.respawnPoints"))
	assert.Equal(t, 2, viper.GetInt("roster.healthDispensers"))
	assert.Equal(t, 2, viper.GetInt("roster.ammoDispensers"))
	assert.Equal(t, 100, viper.GetInt("game.maxHealth"))
	assert.Equal(t, "localhost", viper.GetString("db.host"))
	assert.Equal(t, "./tagserver.db", viper.GetString("db.sqlitePath"))
	assert.Equal(t, 5, viper.GetInt("storage.flushIntervalSec"))
	assert.False(t, viper.GetBool("influx.enabled"))
	assert.Equal(t, "match_data", viper.GetString("influx.bucket"))
	assert.False(t, viper.GetBool("graylog.enabled"))
	assert.True(t, viper.GetBool("web.enabled"))
	assert.Equal(t, 8080, viper.GetInt("web.port"))
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Cleanup(viper.Reset)

	err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 9878, viper.GetInt("server.port"))
}
