// Package sqldb is the SQL implementation of the rewrite audit store.
// SQLite (modernc.org/sqlite) and PostgreSQL (lib/pq) are supported.
package sqldb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/tjfontaine/frenet-gateway/internal/core/domain"
	"github.com/tjfontaine/frenet-gateway/internal/core/ports"
	"github.com/tjfontaine/frenet-gateway/internal/storage/dialect"
)

// Store is a SQL RewriteStore.
type Store struct {
	db      *sqlx.DB
	dialect dialect.Dialect
}

var _ ports.RewriteStore = (*Store)(nil)

// Config holds database connection configuration
type Config struct {
	Driver string // Driver name: sqlite, postgres
	DSN    string // Data source name / connection string
}

// New creates a new SQL store with the specified configuration.
func New(cfg Config) (*Store, error) {
	d, err := dialect.FromDriverName(cfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("unsupported database driver: %w", err)
	}

	db, err := sqlx.Open(d.DriverName(), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	for _, stmt := range d.PragmaStatements() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute pragma: %w", err)
		}
	}

	store := &Store{db: db, dialect: d}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// NewSQLite opens (or creates) the SQLite database at path.
func NewSQLite(path string) (*Store, error) {
	return New(Config{Driver: "sqlite", DSN: path})
}

// NewPostgres connects to PostgreSQL using a lib/pq connection string.
func NewPostgres(dsn string) (*Store, error) {
	return New(Config{Driver: "postgres", DSN: dsn})
}

// DB returns the underlying sqlx.DB for advanced operations
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Dialect returns the dialect being used
func (s *Store) Dialect() dialect.Dialect {
	return s.dialect
}

func (s *Store) initSchema() error {
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS rewrites (
			id TEXT PRIMARY KEY,
			phase TEXT NOT NULL,
			order_id %s NOT NULL DEFAULT 0,
			line_index INTEGER NOT NULL,
			instance_id TEXT NOT NULL DEFAULT '',
			from_method_id TEXT NOT NULL,
			to_method_id TEXT NOT NULL,
			request_id TEXT NOT NULL DEFAULT '',
			delivery_id TEXT NOT NULL DEFAULT '',
			subscriber TEXT NOT NULL DEFAULT '',
			created_at %s NOT NULL
		)`, s.dialect.BigIntType(), s.dialect.TimestampType()),
		`CREATE INDEX IF NOT EXISTS idx_rewrites_created ON rewrites(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_rewrites_order ON rewrites(order_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SaveRewrite stores ev. Saving an id that already exists is a no-op so
// redelivered webhooks do not duplicate the trail.
func (s *Store) SaveRewrite(ctx context.Context, ev *domain.RewriteEvent) error {
	if ev.ID == "" {
		return fmt.Errorf("rewrite event without id")
	}
	createdAt := ev.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := s.dialect.Rebind(`INSERT INTO rewrites (
		id, phase, order_id, line_index, instance_id, from_method_id, to_method_id,
		request_id, delivery_id, subscriber, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) ` + s.dialect.InsertIgnoreClause("id"))

	_, err := s.db.ExecContext(ctx, query,
		ev.ID, string(ev.Phase), ev.OrderID, ev.LineIndex, ev.InstanceID,
		ev.FromMethodID, ev.ToMethodID, ev.RequestID, ev.DeliveryID, ev.Subscriber,
		createdAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save rewrite %s: %w", ev.ID, err)
	}
	return nil
}

// ListRewrites lists rewrite events matching opts, newest first.
func (s *Store) ListRewrites(ctx context.Context, opts ports.RewriteListOptions) ([]*domain.RewriteEvent, error) {
	var (
		where []string
		args  []any
	)
	if opts.OrderID != 0 {
		where = append(where, "order_id = ?")
		args = append(args, opts.OrderID)
	}
	if opts.Phase != "" {
		where = append(where, "phase = ?")
		args = append(args, string(opts.Phase))
	}
	if !opts.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, opts.Since.UTC())
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = ports.DefaultListLimit
	}
	offset := max(opts.Offset, 0)

	var sb strings.Builder
	sb.WriteString(`SELECT id, phase, order_id, line_index, instance_id, from_method_id, to_method_id,
		request_id, delivery_id, subscriber, created_at FROM rewrites`)
	if len(where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}
	sb.WriteString(" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?")
	args = append(args, limit, offset)

	events := []*domain.RewriteEvent{}
	if err := s.db.SelectContext(ctx, &events, s.dialect.Rebind(sb.String()), args...); err != nil {
		return nil, fmt.Errorf("list rewrites: %w", err)
	}
	return events, nil
}

// CountRewrites returns the number of stored rewrite events.
func (s *Store) CountRewrites(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM rewrites`); err != nil {
		return 0, fmt.Errorf("count rewrites: %w", err)
	}
	return n, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}
