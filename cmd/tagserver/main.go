package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/lasertag/tagserver/internal/config"
	"github.com/lasertag/tagserver/internal/database"
	"github.com/lasertag/tagserver/internal/game"
	"github.com/lasertag/tagserver/internal/influx"
	"github.com/lasertag/tagserver/internal/logging"
	"github.com/lasertag/tagserver/internal/monitor"
	"github.com/lasertag/tagserver/internal/registry"
	"github.com/lasertag/tagserver/internal/settings"
	"github.com/lasertag/tagserver/internal/storage"
	"github.com/lasertag/tagserver/internal/transport"
	"github.com/lasertag/tagserver/internal/web"
)

// Version and BuildDate can be set at build time via ldflags.
var (
	Version   = "0.0.1"
	BuildDate = "unknown"
)

var sessionStart = time.Now()

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "tagserver:", err)
		os.Exit(1)
	}
}

func run() error {
	if err := config.Load("."); err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logsDir := viper.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("creating logs dir: %w", err)
	}
	logFile, err := os.OpenFile(
		logging.LogFilePath(logsDir, "tagserver", sessionStart),
		os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer logFile.Close()
	log := logging.Setup(logFile)
	log.Info().Str("version", Version).Str("buildDate", BuildDate).Msg("Laser tag server starting")

	reg := registry.New(registry.Roster{
		Players:          viper.GetInt("roster.players"),
		RespawnPoints:    viper.GetInt("roster.respawnPoints"),
		HealthDispensers: viper.GetInt("roster.healthDispensers"),
		AmmoDispensers:   viper.GetInt("roster.ammoDispensers"),
		MaxHealth:        viper.GetInt("game.maxHealth"),
	}, log)

	db := database.NewManager(log)
	if err := db.Connect(); err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(append(settings.Models(), storage.Models()...)...); err != nil {
		return err
	}

	provider := settings.New(db.DB, reg, log)

	metrics := influx.NewManager(log, filepath.Join(logsDir, "influx_backup.gz"))
	if err := metrics.Connect(); err != nil {
		log.Warn().Err(err).Msg("Metrics export unavailable")
	}
	defer metrics.Close()

	recorder := storage.NewRecorder(db.DB,
		time.Duration(viper.GetInt("storage.flushIntervalSec"))*time.Second, log)
	recorder.SetMetrics(metrics)
	recorder.Run()
	defer recorder.Stop()

	server, err := transport.NewServer(transport.Config{
		Port:        viper.GetInt("server.port"),
		DevicePort:  viper.GetInt("server.devicePort"),
		PingTimeout: time.Duration(viper.GetInt("server.pingTimeoutSec")) * time.Second,
		ReadTimeout: time.Second,
	}, reg, provider, log)
	if err != nil {
		return fmt.Errorf("creating transport: %w", err)
	}

	engine := game.New(reg, server, viper.GetInt("game.maxHealth"), log)
	engine.SetRecorder(recorder)
	server.SetSink(engine)
	provider.SetNotifier(engine)

	if err := server.Start(); err != nil {
		return err
	}
	defer server.Stop()
	engine.Run()
	defer engine.Stop()

	health := monitor.NewService(monitor.Dependencies{
		Registry: reg,
		Recorder: recorder,
	}, time.Duration(viper.GetInt("monitor.intervalSec"))*time.Second, log)
	health.Run()
	defer health.Stop()

	var console *web.Server
	if viper.GetBool("web.enabled") {
		console = web.NewServer(viper.GetInt("web.port"), engine, reg, provider, recorder, log)
		engine.AddPresenter(console)
		console.Start()
	}

	waitForShutdown(log)

	if console != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		console.Stop(ctx)
	}
	log.Info().Msg("Laser tag server stopped")
	return nil
}

func waitForShutdown(log zerolog.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Shutting down")
}
