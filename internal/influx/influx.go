package influx

import (
	"compress/gzip"
	"context"
	"fmt"
	"os"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Manager pushes match metrics to InfluxDB. When the server is unreachable
// at startup, points go to a gzipped line-protocol backup file instead so a
// night of matches is never lost to a down metrics box.
type Manager struct {
	Client       influxdb2.Client
	Writer       influxdb2_api.WriteAPI
	BackupWriter *gzip.Writer
	IsValid      bool
	Bucket       string
	Logger       zerolog.Logger
	BackupPath   string
}

func NewManager(log zerolog.Logger, backupPath string) *Manager {
	return &Manager{
		Logger:     log.With().Str("component", "influx").Logger(),
		Bucket:     viper.GetString("influx.bucket"),
		BackupPath: backupPath,
	}
}

// Enabled reports whether metrics export is configured on.
func (m *Manager) Enabled() bool {
	return viper.GetBool("influx.enabled")
}

// Connect initializes the client, or the backup writer when the server does
// not answer the ping.
func (m *Manager) Connect() error {
	if !m.Enabled() {
		m.Logger.Info().Msg("InfluxDB export disabled")
		return nil
	}

	m.Client = influxdb2.NewClientWithOptions(
		fmt.Sprintf(
			"%s://%s:%s",
			viper.GetString("influx.protocol"),
			viper.GetString("influx.host"),
			viper.GetString("influx.port"),
		),
		viper.GetString("influx.token"),
		influxdb2.DefaultOptions().
			SetBatchSize(100).
			SetFlushInterval(1000),
	)

	running, err := m.Client.Ping(context.Background())
	if err != nil || !running {
		m.IsValid = false
		if m.BackupWriter == nil {
			m.Logger.Warn().Str("backupPath", m.BackupPath).
				Msg("InfluxDB unreachable, writing to backup file")
			file, err := os.OpenFile(m.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
			if err != nil {
				return fmt.Errorf("creating backup file: %w", err)
			}
			m.BackupWriter = gzip.NewWriter(file)
		}
		return nil
	}

	m.IsValid = true
	m.Writer = m.Client.WriteAPI(viper.GetString("influx.org"), m.Bucket)
	errorsCh := m.Writer.Errors()
	go func() {
		for writeErr := range errorsCh {
			m.Logger.Error().Err(writeErr).Str("bucket", m.Bucket).
				Msg("Error sending data to InfluxDB")
		}
	}()
	m.Logger.Info().Str("bucket", m.Bucket).Msg("InfluxDB client initialized")
	return nil
}

// WritePoint writes one point to InfluxDB or the backup file. A disabled
// manager swallows points silently.
func (m *Manager) WritePoint(point *influxdb2_write.Point) error {
	if !m.Enabled() {
		return nil
	}
	if m.IsValid {
		m.Writer.WritePoint(point)
		return nil
	}
	if m.BackupWriter == nil {
		return fmt.Errorf("influxdb client not initialized and backup writer not available")
	}
	lineProtocol := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	if _, err := m.BackupWriter.Write([]byte(lineProtocol)); err != nil {
		return fmt.Errorf("writing to backup file: %w", err)
	}
	return nil
}

// WriteRoundSummary emits one point describing a finished round.
func (m *Manager) WriteRoundSummary(mode string, winner int, durationSec, kills, captures int) {
	point := influxdb2_write.NewPointWithMeasurement("round").
		AddTag("mode", mode).
		AddField("winner", winner).
		AddField("durationSec", durationSec).
		AddField("kills", kills).
		AddField("captures", captures).
		SetTime(time.Now())
	if err := m.WritePoint(point); err != nil {
		m.Logger.Error().Err(err).Msg("Failed to write round summary")
	}
}

// Close flushes pending writes and releases the client.
func (m *Manager) Close() {
	if m.Writer != nil {
		m.Writer.Flush()
	}
	if m.Client != nil {
		m.Client.Close()
	}
	if m.BackupWriter != nil {
		m.BackupWriter.Close()
	}
}
