package sink

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/rs/zerolog/log"

	"github.com/SteelMorgan/evtc-log-uploader/internal/retry"
)

const createTable = `
CREATE TABLE IF NOT EXISTS encounters (
	log_id                String,
	trigger_id            UInt16,
	encounter             LowCardinality(String),
	account               String,
	success               Bool,
	difficulty            LowCardinality(String),
	duration_ms           UInt32,
	health_percent_burned Float64,
	start_time            DateTime64(3),
	end_time              DateTime64(3),
	parsed_at             DateTime64(3)
) ENGINE = ReplacingMergeTree(parsed_at)
ORDER BY (trigger_id, log_id)`

// ClickHouseConfig locates the analytics database
type ClickHouseConfig struct {
	Host     string
	Port     int
	Database string
	Retry    retry.Config
}

// ClickHouse writes encounter rows to a ClickHouse table
type ClickHouse struct {
	conn     clickhouse.Conn
	retryCfg retry.Config
}

// Connect opens the connection, pings it with retries and creates the table
func Connect(ctx context.Context, cfg ClickHouseConfig) (*ClickHouse, error) {
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	cfg.Retry.Operation = "clickhouse"

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: "default",
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	if err := retry.Do(ctx, cfg.Retry, func() error {
		return conn.Ping(ctx)
	}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	if err := retry.Do(ctx, cfg.Retry, func() error {
		return conn.Exec(ctx, createTable)
	}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create encounters table: %w", err)
	}

	log.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Database).
		Msg("Connected to ClickHouse")

	return &ClickHouse{conn: conn, retryCfg: cfg.Retry}, nil
}

// Insert implements Inserter
func (c *ClickHouse) Insert(ctx context.Context, rows []EncounterRow) error {
	return retry.Do(ctx, c.retryCfg, func() error {
		batch, err := c.conn.PrepareBatch(ctx, "INSERT INTO encounters")
		if err != nil {
			return fmt.Errorf("failed to prepare batch: %w", err)
		}

		for _, row := range rows {
			err := batch.Append(
				row.LogID,
				row.TriggerID,
				row.Encounter,
				row.Account,
				row.Success,
				row.Difficulty,
				row.DurationMS,
				row.HealthPercentBurned,
				row.StartTime,
				row.EndTime,
				row.ParsedAt,
			)
			if err != nil {
				batch.Abort()
				return fmt.Errorf("failed to append to batch: %w", err)
			}
		}

		if err := batch.Send(); err != nil {
			return fmt.Errorf("failed to send batch: %w", err)
		}
		return nil
	})
}

// Close closes the connection
func (c *ClickHouse) Close() error {
	log.Info().Msg("Closing ClickHouse connection")
	return c.conn.Close()
}
