package pgorders

import (
	"context"
	"time"

	"github.com/BearBump/ScanDock/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

func (s *Storage) GetSerialScanByLast8(ctx context.Context, last8 string) (*models.SerialScan, error) {
	var sc models.SerialScan
	err := s.db.QueryRow(ctx, `
SELECT id, tracking, last8, serials, serial_type, tech_id, created_at, updated_at
FROM serial_scans
WHERE last8 = $1
`, last8).Scan(&sc.ID, &sc.Tracking, &sc.Last8, &sc.Serials, &sc.SerialType, &sc.TechID, &sc.CreatedAt, &sc.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select serial scan")
	}
	return &sc, nil
}

// AppendSerial дописывает серийник в единственную строку трека (одна строка
// на tracking-ключ, серийники копятся comma-joined). Дедупликацию делает
// сервис перед вызовом; конкурентный дубль принимаем как известную гонку.
func (s *Storage) AppendSerial(ctx context.Context, tracking, last8, serial, serialType string, techID *uint64) (*models.SerialScan, error) {
	now := time.Now().UTC()
	var sc models.SerialScan
	err := s.db.QueryRow(ctx, `
INSERT INTO serial_scans (tracking, last8, serials, serial_type, tech_id, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$6)
ON CONFLICT (last8) DO UPDATE SET
  serials = CASE WHEN serial_scans.serials = '' THEN EXCLUDED.serials
                 ELSE serial_scans.serials || ',' || EXCLUDED.serials END,
  tech_id = COALESCE(serial_scans.tech_id, EXCLUDED.tech_id),
  updated_at = EXCLUDED.updated_at
RETURNING id, tracking, last8, serials, serial_type, tech_id, created_at, updated_at
`, tracking, last8, serial, serialType, techID, now).
		Scan(&sc.ID, &sc.Tracking, &sc.Last8, &sc.Serials, &sc.SerialType, &sc.TechID, &sc.CreatedAt, &sc.UpdatedAt)
	if err != nil {
		return nil, errors.Wrap(err, "append serial")
	}
	return &sc, nil
}

func (s *Storage) InsertPackScan(ctx context.Context, tracking, last8 string, packerID *uint64) (*models.PackScan, error) {
	var p models.PackScan
	err := s.db.QueryRow(ctx, `
INSERT INTO pack_scans (tracking, last8, packer_id, created_at)
VALUES ($1,$2,$3, now())
RETURNING id, tracking, last8, packer_id, created_at
`, tracking, last8, packerID).Scan(&p.ID, &p.Tracking, &p.Last8, &p.PackerID, &p.CreatedAt)
	if err != nil {
		return nil, errors.Wrap(err, "insert pack scan")
	}
	return &p, nil
}

func (s *Storage) HasPackScan(ctx context.Context, last8 string) (bool, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT COUNT(1) FROM pack_scans WHERE last8 = $1`, last8).Scan(&n)
	if err != nil {
		return false, errors.Wrap(err, "count pack scans")
	}
	return n > 0, nil
}

func (s *Storage) InsertSkuScan(ctx context.Context, sku string, qty int32, station models.Station) (*models.SkuScan, error) {
	var sc models.SkuScan
	err := s.db.QueryRow(ctx, `
INSERT INTO sku_scans (sku, quantity, station, created_at)
VALUES ($1,$2,$3, now())
RETURNING id, sku, quantity, station, created_at
`, sku, qty, station).Scan(&sc.ID, &sc.SKU, &sc.Quantity, &sc.Station, &sc.CreatedAt)
	if err != nil {
		return nil, errors.Wrap(err, "insert sku scan")
	}
	return &sc, nil
}

// DecrementStock списывает количество со склада (не уходя в минус).
// Отсутствие SKU в stock_counts — не ошибка, просто вернём false.
func (s *Storage) DecrementStock(ctx context.Context, sku string, qty int32) (bool, error) {
	tag, err := s.db.Exec(ctx, `
UPDATE stock_counts SET quantity = GREATEST(quantity - $2, 0), updated_at = now()
WHERE sku = $1
`, sku, qty)
	if err != nil {
		return false, errors.Wrap(err, "decrement stock")
	}
	return tag.RowsAffected() > 0, nil
}
