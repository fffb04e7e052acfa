package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"FinChart/internal/domain/models"
	domrepo "FinChart/internal/domain/repository"
	pkgch "FinChart/pkg/clickhouse"
	applogger "FinChart/pkg/logger"
)

// ClickHouseBarStore keeps bars in a ReplacingMergeTree so re-ingested bars
// replace older rows with the same (symbol, interval, ts).
type ClickHouseBarStore struct {
	ch    *pkgch.Client
	db    *sql.DB
	table string
	l     *applogger.Logger
	now   func() time.Time
}

func NewClickHouseBarStore(ch *pkgch.Client, table string, l *applogger.Logger) *ClickHouseBarStore {
	if l == nil {
		l = applogger.NewNop()
	}
	return &ClickHouseBarStore{ch: ch, db: ch.DB(), table: table, l: l, now: time.Now}
}

func (s *ClickHouseBarStore) schema() []string {
	return []string{fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            symbol       LowCardinality(String),
            bar_interval LowCardinality(String),
            ts           DateTime('UTC'),
            open         Float64,
            high         Float64,
            low          Float64,
            close        Float64,
            volume       Float64,
            ingested_at  DateTime64(3) DEFAULT now64(3)
        )
        ENGINE = ReplacingMergeTree(ingested_at)
        PARTITION BY toYYYYMM(ts)
        ORDER BY (symbol, bar_interval, ts)`, s.table)}
}

func (s *ClickHouseBarStore) Init(ctx context.Context) error {
	return s.ch.InitSchema(ctx, s.schema())
}

func (s *ClickHouseBarStore) StoreBatch(ctx context.Context, bars []models.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	// Multi-row VALUES keeps round trips low; 2000 rows per statement.
	const chunkSize = 2000
	for start := 0; start < len(bars); start += chunkSize {
		end := min(start+chunkSize, len(bars))

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*8)
		for _, b := range bars[start:end] {
			if !validBar(b) {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args, normalizeSymbol(b.Symbol), b.Interval, b.Time.UTC(), b.Open, b.High, b.Low, b.Close, b.Volume)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (symbol, bar_interval, ts, open, high, low, close, volume) VALUES %s", s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.l.Error("clickhouse store_batch error",
				applogger.String("table", s.table),
				applogger.Int("rows", len(values)),
				applogger.Error(err),
			)
			return fmt.Errorf("store bars: %w", err)
		}
	}
	return nil
}

func (s *ClickHouseBarStore) Query(ctx context.Context, symbol, interval string, from, to time.Time) ([]models.Bar, error) {
	const qtpl = `
        SELECT symbol, bar_interval, ts, open, high, low, close, volume
        FROM %s FINAL
        WHERE symbol = ? AND bar_interval = ? AND ts >= ? AND ts <= ?
        ORDER BY ts ASC
    `
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(qtpl, s.table), symbol, interval, from.UTC(), to.UTC())
	if err != nil {
		s.l.Error("clickhouse query error",
			applogger.String("symbol", symbol),
			applogger.String("interval", interval),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("query bars: %w", err)
	}
	defer rows.Close()

	out := make([]models.Bar, 0, 256)
	for rows.Next() {
		var b models.Bar
		if err := rows.Scan(&b.Symbol, &b.Interval, &b.Time, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (s *ClickHouseBarStore) Ticks(ctx context.Context, symbol string, g models.Granularity) ([]models.RawPricePoint, error) {
	return ticksFromStore(ctx, s, s.now(), symbol, g)
}

func (s *ClickHouseBarStore) Health(ctx context.Context) error {
	return s.ch.Health(ctx)
}

func (s *ClickHouseBarStore) Close() error {
	return nil // pool owned by pkg/clickhouse
}

var _ domrepo.TickStorage = (*ClickHouseBarStore)(nil)
