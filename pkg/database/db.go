package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type Config struct {
	DSN            string
	MaxConns       int
	Timeout        time.Duration
	TimeZone       string
	ClientEncoding string
}

// Connect opens a *sql.DB and verifies connectivity with a ping. Session
// settings travel in the DSN so every pooled connection gets them.
func Connect(cfg Config) (*sql.DB, error) {
	dsn, err := sessionDSN(cfg)
	if err != nil {
		return nil, err
	}
	connector, err := pq.NewConnector(dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db := sql.OpenDB(connector)

	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 5
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

// Open connects and wraps the handle with sqlx for the repositories.
func Open(cfg Config) (*sqlx.DB, error) {
	db, err := Connect(cfg)
	if err != nil {
		return nil, err
	}
	return sqlx.NewDb(db, "postgres"), nil
}

// sessionDSN adds timezone and client_encoding as startup parameters. Both
// URL and key=value forms are accepted.
func sessionDSN(cfg Config) (string, error) {
	params := [][2]string{}
	if cfg.TimeZone != "" {
		params = append(params, [2]string{"timezone", cfg.TimeZone})
	}
	if cfg.ClientEncoding != "" {
		params = append(params, [2]string{"client_encoding", cfg.ClientEncoding})
	}
	if len(params) == 0 {
		return cfg.DSN, nil
	}
	if strings.HasPrefix(cfg.DSN, "postgres://") || strings.HasPrefix(cfg.DSN, "postgresql://") {
		u, err := url.Parse(cfg.DSN)
		if err != nil {
			return "", fmt.Errorf("parse database url: %w", err)
		}
		q := u.Query()
		for _, p := range params {
			q.Set(p[0], p[1])
		}
		u.RawQuery = q.Encode()
		return u.String(), nil
	}
	var b strings.Builder
	b.WriteString(strings.TrimSpace(cfg.DSN))
	for _, p := range params {
		b.WriteString(" " + p[0] + "=" + quoteValue(p[1]))
	}
	return strings.TrimSpace(b.String()), nil
}

// quoteValue quotes a key=value connection string value.
func quoteValue(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return "'" + strings.ReplaceAll(s, "'", `\'`) + "'"
}
