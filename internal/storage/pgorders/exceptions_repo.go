package pgorders

import (
	"context"
	"time"

	"github.com/BearBump/ScanDock/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const exceptionColumns = `
  id, tracking, last8, station,
  staff_id, staff_name, reason, notes, status,
  created_at, updated_at
`

func scanException(row pgx.Row) (*models.OrderException, error) {
	var e models.OrderException
	if err := row.Scan(
		&e.ID, &e.Tracking, &e.Last8, &e.Station,
		&e.StaffID, &e.StaffName, &e.Reason, &e.Notes, &e.Status,
		&e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Storage) FindOpenExceptionByLast8(ctx context.Context, last8 string) (*models.OrderException, error) {
	e, err := scanException(s.db.QueryRow(ctx, `
SELECT `+exceptionColumns+`
FROM order_exceptions
WHERE last8 = $1 AND status = $2
LIMIT 1
`, last8, models.ExceptionStatusOpen))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select open exception")
	}
	return e, nil
}

func (s *Storage) GetExceptionByID(ctx context.Context, id uint64) (*models.OrderException, error) {
	e, err := scanException(s.db.QueryRow(ctx, `
SELECT `+exceptionColumns+` FROM order_exceptions WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select exception")
	}
	return e, nil
}

func (s *Storage) InsertException(ctx context.Context, in models.ExceptionCreateInput) (*models.OrderException, error) {
	now := time.Now().UTC()
	reason := in.Reason
	if reason == "" {
		reason = models.ExceptionReasonNotFound
	}
	e, err := scanException(s.db.QueryRow(ctx, `
INSERT INTO order_exceptions (tracking, last8, station, staff_id, staff_name, reason, notes, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9)
RETURNING `+exceptionColumns,
		in.Tracking, in.Last8, in.Station, in.StaffID, in.StaffName, reason, in.Notes,
		models.ExceptionStatusOpen, now))
	if err != nil {
		return nil, errors.Wrap(err, "insert exception")
	}
	return e, nil
}

// RefreshException обновляет открытую строку на повторном скане того же
// ключа. Staff-атрибуция первой станции сохраняется: COALESCE заполняет
// staff_id/staff_name только поверх NULL.
func (s *Storage) RefreshException(ctx context.Context, id uint64, upd models.ExceptionRefresh) (*models.OrderException, error) {
	e, err := scanException(s.db.QueryRow(ctx, `
UPDATE order_exceptions SET
  tracking = $2,
  station = $3,
  staff_id = COALESCE(staff_id, $4),
  staff_name = COALESCE(staff_name, $5),
  reason = CASE WHEN $6 <> '' THEN $6 ELSE reason END,
  notes = CASE WHEN $7 <> '' THEN $7 ELSE notes END,
  updated_at = now()
WHERE id = $1
RETURNING `+exceptionColumns,
		id, upd.Tracking, upd.Station, upd.StaffID, upd.StaffName, upd.Reason, upd.Notes))
	if err != nil {
		return nil, errors.Wrap(err, "refresh exception")
	}
	return e, nil
}

func (s *Storage) ListOpenExceptions(ctx context.Context) ([]*models.OrderException, error) {
	rows, err := s.db.Query(ctx, `
SELECT `+exceptionColumns+`
FROM order_exceptions
WHERE status = $1
ORDER BY id
`, models.ExceptionStatusOpen)
	if err != nil {
		return nil, errors.Wrap(err, "select open exceptions")
	}
	defer rows.Close()

	var out []*models.OrderException
	for rows.Next() {
		e, err := scanException(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan exception")
		}
		out = append(out, e)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) DeleteException(ctx context.Context, id uint64) error {
	_, err := s.db.Exec(ctx, `DELETE FROM order_exceptions WHERE id = $1`, id)
	return errors.Wrap(err, "delete exception")
}

// MarkExceptionResolved закрывает исключение; guard по статусу — это и есть
// таблица переходов open -> resolved.
func (s *Storage) MarkExceptionResolved(ctx context.Context, id uint64) error {
	_, err := s.db.Exec(ctx, `
UPDATE order_exceptions SET status = $2, updated_at = now()
WHERE id = $1 AND status = $3
`, id, models.ExceptionStatusResolved, models.ExceptionStatusOpen)
	return errors.Wrap(err, "resolve exception")
}
