package exceptions

import (
	"context"
	"log/slog"

	"github.com/BearBump/ScanDock/internal/models"
	"github.com/BearBump/ScanDock/internal/trackkey"
	"github.com/pkg/errors"
)

// ErrBadTracking: вход нельзя превратить в пригодный last-8 ключ
// (слишком короткий или это SKU-скан). Такое не персистим вообще.
var ErrBadTracking = errors.New("tracking cannot produce a usable match key")

type OrderMatcher interface {
	Match(ctx context.Context, raw string) (*models.Order, error)
}

type Repository interface {
	FindOpenExceptionByLast8(ctx context.Context, last8 string) (*models.OrderException, error)
	InsertException(ctx context.Context, in models.ExceptionCreateInput) (*models.OrderException, error)
	RefreshException(ctx context.Context, id uint64, upd models.ExceptionRefresh) (*models.OrderException, error)
	ListOpenExceptions(ctx context.Context) ([]*models.OrderException, error)
	DeleteException(ctx context.Context, id uint64) error
	MarkExceptionResolved(ctx context.Context, id uint64) error

	SetOrderTrackingIfBlank(ctx context.Context, orderID uint64, tracking string) error
	HasPackScan(ctx context.Context, last8 string) (bool, error)
	MarkOrderShipped(ctx context.Context, orderID uint64, actor string) error
}

type Service struct {
	repo    Repository
	matcher OrderMatcher
}

func New(repo Repository, m OrderMatcher) *Service {
	return &Service{repo: repo, matcher: m}
}

type UpsertInput struct {
	Tracking  string
	Station   models.Station
	StaffID   *uint64
	StaffName *string
	Reason    string
	Notes     string
}

type UpsertResult struct {
	// Exception == nil, когда matcher нашёл заказ — очередь никогда не
	// заслоняет разрешимое совпадение.
	Exception      *models.OrderException
	MatchedOrderID uint64
}

func (s *Service) UpsertOpen(ctx context.Context, in UpsertInput) (UpsertResult, error) {
	if trackkey.IsSKUScan(in.Tracking) {
		return UpsertResult{}, ErrBadTracking
	}
	last8 := trackkey.Last8(in.Tracking)
	if last8 == "" {
		return UpsertResult{}, ErrBadTracking
	}
	if !in.Station.Valid() {
		return UpsertResult{}, errors.Errorf("unknown station %q", in.Station)
	}

	// Сначала matcher: если заказ уже есть, исключение не создаём.
	o, err := s.matcher.Match(ctx, in.Tracking)
	if err != nil {
		return UpsertResult{}, err
	}
	if o != nil {
		return UpsertResult{MatchedOrderID: o.ID}, nil
	}

	existing, err := s.repo.FindOpenExceptionByLast8(ctx, last8)
	if err != nil {
		return UpsertResult{}, err
	}
	if existing != nil {
		refreshed, err := s.repo.RefreshException(ctx, existing.ID, models.ExceptionRefresh{
			Tracking:  in.Tracking,
			Station:   in.Station,
			StaffID:   in.StaffID,
			StaffName: in.StaffName,
			Reason:    in.Reason,
			Notes:     in.Notes,
		})
		if err != nil {
			return UpsertResult{}, err
		}
		return UpsertResult{Exception: refreshed}, nil
	}

	created, err := s.repo.InsertException(ctx, models.ExceptionCreateInput{
		Tracking:  in.Tracking,
		Last8:     last8,
		Station:   in.Station,
		StaffID:   in.StaffID,
		StaffName: in.StaffName,
		Reason:    in.Reason,
		Notes:     in.Notes,
	})
	if err != nil {
		return UpsertResult{}, err
	}
	return UpsertResult{Exception: created}, nil
}

type SweepStats struct {
	Scanned int `json:"scanned"`
	Matched int `json:"matched"`
	Deleted int `json:"deleted"`
	Errors  int `json:"errors"`
}

// ReconcileAll прогоняет matcher по всем открытым исключениям. Повторный
// запуск без новых данных даёт ноль новых совпадений. Ошибка на одной строке
// не роняет проход — считаем и идём дальше.
func (s *Service) ReconcileAll(ctx context.Context) (SweepStats, error) {
	open, err := s.repo.ListOpenExceptions(ctx)
	if err != nil {
		return SweepStats{}, err
	}

	var st SweepStats
	for _, e := range open {
		st.Scanned++
		if err := s.resolveOne(ctx, e); err != nil {
			if err == errNoMatchYet {
				continue
			}
			st.Errors++
			slog.Error("sweep exception", "exception_id", e.ID, "error", err.Error())
			continue
		}
		st.Matched++
		st.Deleted++
	}
	return st, nil
}

// ResolveForTracking — точечный вариант sweep'а для только что
// импортированного заказа: пытаемся закрыть исключение по его треку.
func (s *Service) ResolveForTracking(ctx context.Context, rawTracking string) (bool, error) {
	last8 := trackkey.Last8(rawTracking)
	if last8 == "" {
		return false, nil
	}
	e, err := s.repo.FindOpenExceptionByLast8(ctx, last8)
	if err != nil {
		return false, err
	}
	if e == nil {
		return false, nil
	}
	if err := s.resolveOne(ctx, e); err != nil {
		if err == errNoMatchYet {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

var errNoMatchYet = errors.New("no match yet")

func (s *Service) resolveOne(ctx context.Context, e *models.OrderException) error {
	o, err := s.matcher.Match(ctx, e.Tracking)
	if err != nil {
		return err
	}
	if o == nil {
		return errNoMatchYet
	}

	if err := s.repo.SetOrderTrackingIfBlank(ctx, o.ID, e.Tracking); err != nil {
		return err
	}

	packed, err := s.repo.HasPackScan(ctx, e.Last8)
	if err != nil {
		return err
	}
	if packed {
		if err := s.repo.MarkOrderShipped(ctx, o.ID, "exception-sweep"); err != nil {
			return err
		}
	}

	return s.repo.DeleteException(ctx, e.ID)
}
