package matcher

import (
	"context"

	"github.com/BearBump/ScanDock/internal/models"
	"github.com/BearBump/ScanDock/internal/trackkey"
	"github.com/pkg/errors"
)

// ErrNotTracking: вход похож на SKU-скан (есть ':'), в матчер заказов такие
// строки попадать не должны — caller обязан отсечь их раньше.
var ErrNotTracking = errors.New("input is a sku scan, not a tracking number")

type Repository interface {
	FindOrderByExactTracking(ctx context.Context, raw string) (*models.Order, error)
	FindOrderByLast18(ctx context.Context, key string) (*models.Order, error)
	FindOrderByLast8(ctx context.Context, key string) (*models.Order, error)
}

type Service struct {
	repo Repository
}

func New(repo Repository) *Service {
	return &Service{repo: repo}
}

// Match ищет заказ для сырой строки трека: точное совпадение, потом last-18,
// потом last-8. Первый непустой результат побеждает. "Не нашли" — это
// нормальный исход (nil, nil), не ошибка.
func (s *Service) Match(ctx context.Context, raw string) (*models.Order, error) {
	if raw == "" {
		return nil, nil
	}
	if trackkey.IsSKUScan(raw) {
		return nil, ErrNotTracking
	}

	o, err := s.repo.FindOrderByExactTracking(ctx, raw)
	if err != nil {
		return nil, err
	}
	if o != nil {
		return o, nil
	}

	if k := trackkey.Last18(raw); k != "" {
		o, err = s.repo.FindOrderByLast18(ctx, k)
		if err != nil {
			return nil, err
		}
		if o != nil {
			return o, nil
		}
	}

	if k := trackkey.Last8(raw); k != "" {
		o, err = s.repo.FindOrderByLast8(ctx, k)
		if err != nil {
			return nil, err
		}
		if o != nil {
			return o, nil
		}
	}

	return nil, nil
}
