package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"github.com/driveclone/apiserver/config"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
)

const (
	defaultDBDriver     = "postgres"
	defaultPingTimeout  = 5 * time.Second
	defaultConnMaxIdle  = 2 * time.Minute
	defaultConnMaxLife  = 30 * time.Minute
	defaultMaxIdleConns = 5
	defaultMaxOpenConns = 25
)

// DSN builds the Postgres connection URL from config.
func DSN(cfg config.Config) string {
	sslmode := "disable"
	if cfg.Database.UseSSL {
		sslmode = "require"
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", cfg.Database.Host, cfg.Database.Port),
		User:   url.UserPassword(cfg.Database.User, cfg.Database.Password),
		Path:   cfg.Database.DBName,
	}

	q := u.Query()
	q.Set("sslmode", sslmode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Open connects to Postgres, retrying the initial ping
// cfg.Database.ConnectTries times before giving up.
func Open(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*sql.DB, error) {
	db, err := sql.Open(defaultDBDriver, DSN(cfg))
	if err != nil {
		return nil, err
	}

	db.SetConnMaxIdleTime(defaultConnMaxIdle)
	db.SetConnMaxLifetime(defaultConnMaxLife)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetMaxOpenConns(defaultMaxOpenConns)

	tries := cfg.Database.ConnectTries
	if tries < 1 {
		tries = 1
	}
	delay := cfg.Database.ConnectDelay
	if delay <= 0 {
		delay = time.Second
	}
	backoff := retry.WithMaxRetries(uint64(tries-1), retry.NewConstant(delay))

	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			logger.Error().Err(err).Int("attempt", attempt).Int("max_attempts", tries).Msg("database connection failed")
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to database after %d attempts: %w", attempt, err)
	}

	logger.Info().Str("host", cfg.Database.Host).Str("database", cfg.Database.DBName).Msg("database connected")
	return db, nil
}
