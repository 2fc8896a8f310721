package cities

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/kjstillabower/weather-proxy-service/internal/models"
)

const schema = `CREATE TABLE IF NOT EXISTS saved_cities (
	id       TEXT PRIMARY KEY,
	name     TEXT NOT NULL,
	country  TEXT NOT NULL,
	lat      REAL NOT NULL,
	lon      REAL NOT NULL,
	state    TEXT NOT NULL DEFAULT '',
	added_at TEXT NOT NULL,
	UNIQUE (lat, lon)
);`

const selectColumns = `SELECT id, name, country, lat, lon, state, added_at FROM saved_cities`

// SQLiteStore is a Store backed by a sqlite file (pure Go driver).
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens or creates the database at path and applies the schema.
func NewSQLiteStore(path string, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// Single writer; sqlite serializes writes anyway and this avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		logger.Warn("could not set sqlite WAL mode", zap.String("path", path), zap.Error(err))
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply cities schema: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]models.SavedCity, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("list cities: %w", err)
	}
	defer rows.Close()

	out := make([]models.SavedCity, 0)
	for rows.Next() {
		c, err := scanCity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Add(ctx context.Context, c models.City) (models.SavedCity, error) {
	saved := newSavedCity(c, s.now())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO saved_cities(id, name, country, lat, lon, state, added_at) VALUES(?,?,?,?,?,?,?)`,
		saved.ID, saved.Name, saved.Country, saved.Lat, saved.Lon, saved.State, saved.AddedAt.Format(time.RFC3339Nano))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return models.SavedCity{}, ErrDuplicate
		}
		return models.SavedCity{}, fmt.Errorf("add city: %w", err)
	}
	return saved, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (models.SavedCity, error) {
	c, err := scanCity(s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.SavedCity{}, ErrNotFound
	}
	return c, err
}

func (s *SQLiteStore) Remove(ctx context.Context, id string) (models.SavedCity, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.SavedCity{}, fmt.Errorf("remove city: %w", err)
	}
	defer tx.Rollback()

	c, err := scanCity(tx.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.SavedCity{}, ErrNotFound
	}
	if err != nil {
		return models.SavedCity{}, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM saved_cities WHERE id = ?`, id); err != nil {
		return models.SavedCity{}, fmt.Errorf("remove city: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return models.SavedCity{}, fmt.Errorf("remove city: %w", err)
	}
	return c, nil
}

// Ping reports whether the database is reachable.
func (s *SQLiteStore) Ping() error {
	return s.db.Ping()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCity(r rowScanner) (models.SavedCity, error) {
	var c models.SavedCity
	var addedAt string
	if err := r.Scan(&c.ID, &c.Name, &c.Country, &c.Lat, &c.Lon, &c.State, &addedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c, err
		}
		return c, fmt.Errorf("scan city: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, addedAt)
	if err != nil {
		return c, fmt.Errorf("parse added_at %q: %w", addedAt, err)
	}
	c.AddedAt = t.UTC()
	return c, nil
}
