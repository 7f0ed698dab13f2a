package pgorders

import (
	"context"
	"time"

	"github.com/BearBump/ScanDock/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const orderColumns = `
  id, external_order_id, tracking,
  sku, item_id, title, condition, quantity,
  status, shipped, packer_id, tester_id,
  account_source, order_date,
  created_at, updated_at
`

// Store-side key normalization used by the tier-2/tier-3 lookups. Keep in sync
// with internal/trackkey: same stripping, same suffix lengths.
const (
	sqlLast18 = `RIGHT(UPPER(regexp_replace(tracking, '[^a-zA-Z0-9]', '', 'g')), 18)`
	sqlLast8  = `RIGHT(regexp_replace(tracking, '[^0-9]', '', 'g'), 8)`
)

func scanOrder(row pgx.Row) (*models.Order, error) {
	var o models.Order
	if err := row.Scan(
		&o.ID, &o.ExternalOrderID, &o.Tracking,
		&o.SKU, &o.ItemID, &o.Title, &o.Condition, &o.Quantity,
		&o.Status, &o.Shipped, &o.PackerID, &o.TesterID,
		&o.AccountSource, &o.OrderDate,
		&o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *Storage) CreateOrder(ctx context.Context, in models.OrderCreateInput) (*models.Order, error) {
	now := time.Now().UTC()
	row := s.db.QueryRow(ctx, `
INSERT INTO orders (
  external_order_id, tracking, sku, item_id, title, condition, quantity,
  status, account_source, order_date, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$11)
RETURNING `+orderColumns, in.ExternalOrderID, in.Tracking, in.SKU, in.ItemID, in.Title,
		in.Condition, in.Quantity, models.OrderStatusNew, in.AccountSource, in.OrderDate, now)

	o, err := scanOrder(row)
	if err != nil {
		return nil, errors.Wrap(err, "insert order")
	}
	return o, nil
}

func (s *Storage) GetOrderByID(ctx context.Context, id uint64) (*models.Order, error) {
	o, err := scanOrder(s.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select order")
	}
	return o, nil
}

// Дубликаты треков в orders допустимы (ре-импорты); во всех трёх выборках
// побеждает самая свежая строка — ORDER BY id DESC. Это осознанная политика,
// а не случайность.

func (s *Storage) FindOrderByExactTracking(ctx context.Context, raw string) (*models.Order, error) {
	o, err := scanOrder(s.db.QueryRow(ctx, `
SELECT `+orderColumns+`
FROM orders
WHERE tracking = $1 AND tracking <> ''
ORDER BY id DESC
LIMIT 1
`, raw))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select order by tracking")
	}
	return o, nil
}

func (s *Storage) FindOrderByLast18(ctx context.Context, key string) (*models.Order, error) {
	o, err := scanOrder(s.db.QueryRow(ctx, `
SELECT `+orderColumns+`
FROM orders
WHERE tracking <> '' AND `+sqlLast18+` = $1
ORDER BY id DESC
LIMIT 1
`, key))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select order by last18")
	}
	return o, nil
}

func (s *Storage) FindOrderByLast8(ctx context.Context, key string) (*models.Order, error) {
	o, err := scanOrder(s.db.QueryRow(ctx, `
SELECT `+orderColumns+`
FROM orders
WHERE tracking <> '' AND `+sqlLast8+` = $1
ORDER BY id DESC
LIMIT 1
`, key))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select order by last8")
	}
	return o, nil
}

// SetOrderTrackingIfBlank заполняет tracking только если колонка пустая:
// данные со станций доверяем больше, чем бэкофиллу.
func (s *Storage) SetOrderTrackingIfBlank(ctx context.Context, orderID uint64, tracking string) error {
	_, err := s.db.Exec(ctx, `
UPDATE orders SET tracking = $2, updated_at = now()
WHERE id = $1 AND tracking = ''
`, orderID, tracking)
	return errors.Wrap(err, "set order tracking")
}

// PatchOrderFromFeed применяет whitelist колонок из фида, каждую — только
// поверх пустого значения. Возвращает true, если хоть одна колонка изменилась.
func (s *Storage) PatchOrderFromFeed(ctx context.Context, orderID uint64, p models.FeedPatch) (bool, error) {
	tag, err := s.db.Exec(ctx, `
UPDATE orders SET
  external_order_id = COALESCE(external_order_id, NULLIF($2, '')),
  sku            = CASE WHEN sku = ''            AND $3 <> '' THEN $3 ELSE sku END,
  item_id        = CASE WHEN item_id = ''        AND $4 <> '' THEN $4 ELSE item_id END,
  title          = CASE WHEN title = ''          AND $5 <> '' THEN $5 ELSE title END,
  condition      = CASE WHEN condition = ''      AND $6 <> '' THEN $6 ELSE condition END,
  quantity       = CASE WHEN quantity = 0        AND $7 > 0   THEN $7 ELSE quantity END,
  account_source = CASE WHEN account_source = '' AND $8 <> '' THEN $8 ELSE account_source END,
  order_date     = COALESCE(order_date, $9),
  updated_at = now()
WHERE id = $1 AND (
     (external_order_id IS NULL AND $2 <> '')
  OR (sku = '' AND $3 <> '')
  OR (item_id = '' AND $4 <> '')
  OR (title = '' AND $5 <> '')
  OR (condition = '' AND $6 <> '')
  OR (quantity = 0 AND $7 > 0)
  OR (account_source = '' AND $8 <> '')
  OR (order_date IS NULL AND $9 IS NOT NULL)
)
`, orderID, p.ExternalOrderID, p.SKU, p.ItemID, p.Title, p.Condition, p.Quantity, p.AccountSource, p.OrderDate)
	if err != nil {
		return false, errors.Wrap(err, "patch order from feed")
	}
	return tag.RowsAffected() > 0, nil
}

// MarkOrderShipped выставляет shipped/status и пишет строку в журнал статусов.
// Если заказ уже shipped — no-op. Версионной проверки нет: одновременные
// сканы одного трека сходятся по last-write-wins.
func (s *Storage) MarkOrderShipped(ctx context.Context, orderID uint64, actor string) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var prior string
	var shipped bool
	err = tx.QueryRow(ctx, `SELECT status, shipped FROM orders WHERE id = $1`, orderID).Scan(&prior, &shipped)
	if err != nil {
		return errors.Wrap(err, "select order status")
	}
	if shipped {
		return nil
	}

	_, err = tx.Exec(ctx, `
UPDATE orders SET shipped = TRUE, status = $2, updated_at = now() WHERE id = $1
`, orderID, models.OrderStatusShipped)
	if err != nil {
		return errors.Wrap(err, "mark shipped")
	}

	_, err = tx.Exec(ctx, `
INSERT INTO order_status_changes (order_id, status, prior_status, actor, created_at)
VALUES ($1,$2,$3,$4, now())
`, orderID, models.OrderStatusShipped, prior, actor)
	if err != nil {
		return errors.Wrap(err, "insert status change")
	}

	return errors.Wrap(tx.Commit(ctx), "commit tx")
}

// AppendStatusChange переводит заказ в новый статус с записью в журнал.
func (s *Storage) AppendStatusChange(ctx context.Context, orderID uint64, status, actor string) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var prior string
	if err := tx.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1`, orderID).Scan(&prior); err != nil {
		return errors.Wrap(err, "select order status")
	}

	if _, err := tx.Exec(ctx, `UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`, orderID, status); err != nil {
		return errors.Wrap(err, "update order status")
	}

	if _, err := tx.Exec(ctx, `
INSERT INTO order_status_changes (order_id, status, prior_status, actor, created_at)
VALUES ($1,$2,$3,$4, now())
`, orderID, status, prior, actor); err != nil {
		return errors.Wrap(err, "insert status change")
	}

	return errors.Wrap(tx.Commit(ctx), "commit tx")
}

func (s *Storage) ListStatusChanges(ctx context.Context, orderID uint64) ([]*models.StatusChange, error) {
	rows, err := s.db.Query(ctx, `
SELECT id, order_id, status, prior_status, actor, created_at
FROM order_status_changes
WHERE order_id = $1
ORDER BY id
`, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "select status changes")
	}
	defer rows.Close()

	var out []*models.StatusChange
	for rows.Next() {
		var c models.StatusChange
		if err := rows.Scan(&c.ID, &c.OrderID, &c.Status, &c.PriorStatus, &c.Actor, &c.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan status change")
		}
		out = append(out, &c)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
