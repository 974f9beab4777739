package store

import (
	"context"
	"fmt"
	"time"

	"retail-analytics/internal/util"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS sales_data (
	invoice_no      TEXT        NOT NULL,
	stock_code      TEXT        NOT NULL,
	description     TEXT        NOT NULL,
	quantity        INTEGER     NOT NULL,
	invoice_date    TIMESTAMP   NOT NULL,
	unit_price      NUMERIC     NOT NULL,
	customer_id     TEXT,
	country         TEXT        NOT NULL,
	sale_qty        INTEGER     NOT NULL,
	return_qty      INTEGER     NOT NULL,
	paid_unit_price NUMERIC     NOT NULL,
	is_free_item    BOOLEAN     NOT NULL,
	revenue         NUMERIC     NOT NULL,
	net_revenue     NUMERIC     NOT NULL,
	total_items     INTEGER     NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sales_data_country_date ON sales_data (country, invoice_date);

CREATE TABLE IF NOT EXISTS customer_summary (
	customer_id                TEXT PRIMARY KEY,
	total_purchases            INTEGER          NOT NULL,
	total_net_revenue          NUMERIC          NOT NULL,
	total_sale_qty             INTEGER          NOT NULL,
	total_return_qty           INTEGER          NOT NULL,
	avg_order_value            NUMERIC          NOT NULL,
	recency_days               INTEGER          NOT NULL,
	return_rate                DOUBLE PRECISION,
	net_qty                    INTEGER          NOT NULL,
	purchase_frequency_monthly DOUBLE PRECISION NOT NULL,
	customer_value             TEXT             NOT NULL
);
`

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string, maxOpenConns, maxIdleConns int) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}
	if maxIdleConns > 0 {
		db.SetMaxIdleConns(maxIdleConns)
	}
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// Ping checks the connection, used by the readiness probe
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateTables creates sales_data and customer_summary when missing
func (s *Store) CreateTables(ctx context.Context) error {
	ctx, span := util.StartSpan(ctx, "Store.CreateTables")
	defer span.End()

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return util.FailSpan(span, fmt.Errorf("failed to create tables: %w", err))
	}
	return nil
}
