package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/congregate/backend/internal/models"
)

func TestMigrateURL(t *testing.T) {
	require.Equal(t, "pgx5://u:p@h:5432/d?sslmode=disable", migrateURL("postgres://u:p@h:5432/d?sslmode=disable"))
	require.Equal(t, "pgx5://h/d", migrateURL("postgresql://h/d"))
	require.Equal(t, "pgx5://h/d", migrateURL("pgx5://h/d"))
}

func TestEmbeddedMigrationsPresent(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)
}

func TestTranslate(t *testing.T) {
	require.NoError(t, Translate(nil))
	require.ErrorIs(t, Translate(fmt.Errorf("get: %w", pgx.ErrNoRows)), models.ErrNotFound)
	require.ErrorIs(t, Translate(&pgconn.PgError{Code: "23505"}), models.ErrConflict)
	require.ErrorIs(t, Translate(&pgconn.PgError{Code: "23503"}), models.ErrNotFound)
	other := errors.New("boom")
	require.Equal(t, other, Translate(other))
}

func TestPoolConfig(t *testing.T) {
	cfg, err := poolConfig(PoolConfig{DSN: "postgres://u:p@h:5432/d", MaxConns: 8, MinConns: 2})
	require.NoError(t, err)
	require.EqualValues(t, 8, cfg.MaxConns)
	require.EqualValues(t, 2, cfg.MinConns)

	cfg, err = poolConfig(PoolConfig{DSN: "postgres://u:p@h:5432/d", MaxConns: 1, MinConns: 5})
	require.NoError(t, err)
	require.EqualValues(t, 1, cfg.MaxConns)
	require.Zero(t, cfg.MinConns)

	_, err = poolConfig(PoolConfig{DSN: "::not a dsn"})
	require.Error(t, err)
}
