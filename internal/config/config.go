package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
)

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file. A missing file is
// fine; the defaults describe a complete six-player arena.
func Load(configDir string) error {
	// Set default values
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./taglogs")

	viper.SetDefault("server.port", 9878)
	viper.SetDefault("server.devicePort", 1234)
	viper.SetDefault("server.pingTimeoutSec", 10)

	viper.SetDefault("roster.players", 6)
	viper.SetDefault("roster.respawnPoints", 6)
	viper.SetDefault("roster.healthDispensers", 2)
	viper.SetDefault("roster.ammoDispensers", 2)

	viper.SetDefault("game.maxHealth", 100)

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "lasertag")
	viper.SetDefault("db.sqlitePath", "./tagserver.db")

	viper.SetDefault("storage.flushIntervalSec", 5)

	viper.SetDefault("monitor.intervalSec", 60)

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "lasertag-metrics")
	viper.SetDefault("influx.bucket", "match_data")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("web.enabled", true)
	viper.SetDefault("web.port", 8080)

	viper.SetConfigName("tagserver.cfg.json")
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}
