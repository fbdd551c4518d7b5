package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/vitos/level_cross_trader/internal/domain"
)

var ErrNotFound = errors.New("not found")

// SQLiteStore is the annotation source and the trade journal. Prices are
// stored as TEXT so decimals round-trip exactly.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS annotations (
			id TEXT PRIMARY KEY,
			price TEXT NOT NULL,
			tag TEXT NOT NULL,
			source TEXT,
			created_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS signals (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			direction TEXT NOT NULL,
			level_price TEXT NOT NULL,
			description TEXT NOT NULL,
			entry_price TEXT NOT NULL,
			quantity INTEGER NOT NULL,
			created_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS order_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			order_id TEXT NOT NULL,
			tag TEXT NOT NULL,
			state TEXT NOT NULL,
			filled_quantity INTEGER NOT NULL,
			fill_price TEXT NOT NULL,
			reason TEXT,
			created_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_order_events_order ON order_events(order_id);`,
		`CREATE TABLE IF NOT EXISTS daily_pnl (
			trading_date TEXT PRIMARY KEY,
			realized TEXT NOT NULL,
			unrealized TEXT NOT NULL,
			limit_reached BOOLEAN NOT NULL DEFAULT 0,
			updated_at DATETIME NOT NULL
		);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}
	return nil
}

// AnnotationRepository Implementation

func (s *SQLiteStore) SaveAnnotation(ctx context.Context, a *domain.StoredAnnotation) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	query := `INSERT INTO annotations (id, price, tag, source, created_at) VALUES (?, ?, ?, ?, ?)
			  ON CONFLICT(id) DO UPDATE SET price=excluded.price, tag=excluded.tag, source=excluded.source`
	_, err := s.db.ExecContext(ctx, query, a.ID, a.Price.String(), a.Text, a.Source, a.CreatedAt)
	return err
}

// ListStoredAnnotations returns annotations in insertion order.
func (s *SQLiteStore) ListStoredAnnotations(ctx context.Context) ([]*domain.StoredAnnotation, error) {
	query := `SELECT id, price, tag, source, created_at FROM annotations ORDER BY rowid`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.StoredAnnotation
	for rows.Next() {
		var a domain.StoredAnnotation
		var source sql.NullString
		if err := rows.Scan(&a.ID, &a.Price, &a.Text, &source, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Source = source.String
		out = append(out, &a)
	}
	return out, rows.Err()
}

// ListAnnotations satisfies domain.AnnotationSource.
func (s *SQLiteStore) ListAnnotations(ctx context.Context) ([]domain.Annotation, error) {
	stored, err := s.ListStoredAnnotations(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Annotation, len(stored))
	for i, a := range stored {
		out[i] = a
	}
	return out, nil
}

func (s *SQLiteStore) DeleteAnnotation(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM annotations WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("annotation %s: %w", id, ErrNotFound)
	}
	return nil
}

// JournalRepository Implementation

func (s *SQLiteStore) SaveSignal(ctx context.Context, rec *domain.SignalRecord) error {
	query := `INSERT INTO signals (direction, level_price, description, entry_price, quantity, created_at)
			  VALUES (?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		string(rec.Direction), rec.LevelPrice.String(), rec.Description, rec.EntryPrice.String(), rec.Quantity, rec.Time)
	return err
}

func (s *SQLiteStore) ListSignals(ctx context.Context, limit int) ([]*domain.SignalRecord, error) {
	query := `SELECT direction, level_price, description, entry_price, quantity, created_at FROM signals ORDER BY id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.SignalRecord
	for rows.Next() {
		var r domain.SignalRecord
		var dir string
		if err := rows.Scan(&dir, &r.LevelPrice, &r.Description, &r.EntryPrice, &r.Quantity, &r.Time); err != nil {
			return nil, err
		}
		r.Direction = domain.Direction(dir)
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveOrderEvent(ctx context.Context, upd *domain.OrderUpdate) error {
	at := upd.Time
	if at.IsZero() {
		at = time.Now().UTC()
	}
	query := `INSERT INTO order_events (order_id, tag, state, filled_quantity, fill_price, reason, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		upd.OrderID, upd.Tag, string(upd.State), upd.FilledQuantity, upd.FillPrice.String(), upd.Reason, at)
	return err
}

// ListOrderEvents returns the newest events first.
func (s *SQLiteStore) ListOrderEvents(ctx context.Context, limit int) ([]*domain.OrderUpdate, error) {
	query := `SELECT order_id, tag, state, filled_quantity, fill_price, reason, created_at FROM order_events ORDER BY id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.OrderUpdate
	for rows.Next() {
		var u domain.OrderUpdate
		var state string
		var reason sql.NullString
		if err := rows.Scan(&u.OrderID, &u.Tag, &state, &u.FilledQuantity, &u.FillPrice, &reason, &u.Time); err != nil {
			return nil, err
		}
		u.State = domain.OrderState(state)
		u.Reason = reason.String
		out = append(out, &u)
	}
	return out, rows.Err()
}

// SaveDailyPnL upserts the state for the date.
func (s *SQLiteStore) SaveDailyPnL(ctx context.Context, pnl *domain.DailyPnL) error {
	query := `INSERT INTO daily_pnl (trading_date, realized, unrealized, limit_reached, updated_at)
			  VALUES (?, ?, ?, ?, ?)
			  ON CONFLICT(trading_date) DO UPDATE SET
			  realized=excluded.realized,
			  unrealized=excluded.unrealized,
			  limit_reached=excluded.limit_reached,
			  updated_at=excluded.updated_at`
	_, err := s.db.ExecContext(ctx, query,
		pnl.TradingDate.Format("2006-01-02"), pnl.Realized.String(), pnl.Unrealized.String(), pnl.LimitReached, time.Now().UTC())
	return err
}

func (s *SQLiteStore) GetDailyPnL(ctx context.Context, date time.Time) (*domain.DailyPnL, error) {
	query := `SELECT trading_date, realized, unrealized, limit_reached FROM daily_pnl WHERE trading_date = ?`
	row := s.db.QueryRowContext(ctx, query, date.Format("2006-01-02"))

	var p domain.DailyPnL
	var day string
	if err := row.Scan(&day, &p.Realized, &p.Unrealized, &p.LimitReached); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("daily pnl %s: %w", date.Format("2006-01-02"), ErrNotFound)
		}
		return nil, err
	}
	d, err := time.Parse("2006-01-02", day)
	if err != nil {
		return nil, err
	}
	p.TradingDate = d
	return &p, nil
}
