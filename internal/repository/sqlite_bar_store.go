package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"FinChart/internal/domain/models"
	domrepo "FinChart/internal/domain/repository"
	applogger "FinChart/pkg/logger"
)

// SQLiteBarStore is the single-node backend: one file, WAL mode, bars keyed
// by (symbol, interval, ts) so re-ingesting a bar overwrites it.
type SQLiteBarStore struct {
	db  *sql.DB
	mu  sync.Mutex // serializes writers
	l   *applogger.Logger
	now func() time.Time
}

// NewSQLiteBarStore opens (or creates) the database file.
func NewSQLiteBarStore(path string, l *applogger.Logger) (*SQLiteBarStore, error) {
	if l == nil {
		l = applogger.NewNop()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	l.Info("sqlite bar store opened", applogger.String("path", path))
	return &SQLiteBarStore{db: db, l: l, now: time.Now}, nil
}

func (s *SQLiteBarStore) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS bars (
			symbol       TEXT    NOT NULL,
			bar_interval TEXT    NOT NULL,
			ts           INTEGER NOT NULL,
			open         REAL,
			high         REAL,
			low          REAL,
			close        REAL,
			volume       REAL,
			PRIMARY KEY (symbol, bar_interval, ts)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *SQLiteBarStore) StoreBatch(ctx context.Context, bars []models.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO bars
		(symbol, bar_interval, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		if !validBar(b) {
			continue
		}
		if _, err := stmt.ExecContext(ctx, normalizeSymbol(b.Symbol), b.Interval, b.Time.Unix(), b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			return fmt.Errorf("insert bar: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLiteBarStore) Query(ctx context.Context, symbol, interval string, from, to time.Time) ([]models.Bar, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, bar_interval, ts, open, high, low, close, volume
		FROM bars
		WHERE symbol = ? AND bar_interval = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC`, symbol, interval, from.Unix(), to.Unix())
	if err != nil {
		return nil, fmt.Errorf("query bars: %w", err)
	}
	defer rows.Close()

	var out []models.Bar
	for rows.Next() {
		var (
			b  models.Bar
			ts int64
		)
		if err := rows.Scan(&b.Symbol, &b.Interval, &ts, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		b.Time = time.Unix(ts, 0).UTC()
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *SQLiteBarStore) Ticks(ctx context.Context, symbol string, g models.Granularity) ([]models.RawPricePoint, error) {
	return ticksFromStore(ctx, s, s.now(), symbol, g)
}

func (s *SQLiteBarStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteBarStore) Close() error {
	s.l.Info("closing sqlite bar store")
	return s.db.Close()
}

var _ domrepo.TickStorage = (*SQLiteBarStore)(nil)
