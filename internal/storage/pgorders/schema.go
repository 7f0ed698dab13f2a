package pgorders

import (
	"context"

	"github.com/pkg/errors"
)

// initSchema is the single idempotent DDL step, run once when the pool is
// opened. Nothing else in the hot path touches DDL.
func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS orders (
  id BIGSERIAL PRIMARY KEY,
  external_order_id TEXT NULL,
  tracking TEXT NOT NULL DEFAULT '',
  sku TEXT NOT NULL DEFAULT '',
  item_id TEXT NOT NULL DEFAULT '',
  title TEXT NOT NULL DEFAULT '',
  condition TEXT NOT NULL DEFAULT '',
  quantity INT NOT NULL DEFAULT 0,
  status TEXT NOT NULL,
  shipped BOOLEAN NOT NULL DEFAULT FALSE,
  packer_id BIGINT NULL,
  tester_id BIGINT NULL,
  account_source TEXT NOT NULL DEFAULT '',
  order_date TIMESTAMPTZ NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_tracking ON orders(tracking)`,
		// Expression indexes backing the tiered match: store-side normalization
		// must hit an index, the orders table is the biggest one we have.
		`CREATE INDEX IF NOT EXISTS idx_orders_track_last18
  ON orders (RIGHT(UPPER(regexp_replace(tracking, '[^a-zA-Z0-9]', '', 'g')), 18))`,
		`CREATE INDEX IF NOT EXISTS idx_orders_track_last8
  ON orders (RIGHT(regexp_replace(tracking, '[^0-9]', '', 'g'), 8))`,
		`
CREATE TABLE IF NOT EXISTS order_status_changes (
  id BIGSERIAL PRIMARY KEY,
  order_id BIGINT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
  status TEXT NOT NULL,
  prior_status TEXT NOT NULL DEFAULT '',
  actor TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_order_status_changes_order_id ON order_status_changes(order_id, id)`,
		`
CREATE TABLE IF NOT EXISTS order_exceptions (
  id BIGSERIAL PRIMARY KEY,
  tracking TEXT NOT NULL,
  last8 TEXT NOT NULL,
  station TEXT NOT NULL,
  staff_id BIGINT NULL,
  staff_name TEXT NULL,
  reason TEXT NOT NULL DEFAULT 'not_found',
  notes TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL DEFAULT 'open',
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		// One open exception per normalized key, whatever the station.
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_order_exceptions_open_last8
  ON order_exceptions(last8) WHERE status = 'open'`,
		`
CREATE TABLE IF NOT EXISTS serial_scans (
  id BIGSERIAL PRIMARY KEY,
  tracking TEXT NOT NULL,
  last8 TEXT NOT NULL,
  serials TEXT NOT NULL DEFAULT '',
  serial_type TEXT NOT NULL DEFAULT 'unknown',
  tech_id BIGINT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,
  UNIQUE (last8)
)`,
		`
CREATE TABLE IF NOT EXISTS pack_scans (
  id BIGSERIAL PRIMARY KEY,
  tracking TEXT NOT NULL,
  last8 TEXT NOT NULL,
  packer_id BIGINT NULL,
  created_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_pack_scans_last8 ON pack_scans(last8)`,
		`
CREATE TABLE IF NOT EXISTS sku_scans (
  id BIGSERIAL PRIMARY KEY,
  sku TEXT NOT NULL,
  quantity INT NOT NULL DEFAULT 1,
  station TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL
)`,
		`
CREATE TABLE IF NOT EXISTS stock_counts (
  sku TEXT PRIMARY KEY,
  quantity INT NOT NULL DEFAULT 0,
  updated_at TIMESTAMPTZ NOT NULL
)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
