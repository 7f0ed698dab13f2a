package scans

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/BearBump/ScanDock/internal/cache"
	"github.com/BearBump/ScanDock/internal/models"
	"github.com/BearBump/ScanDock/internal/services/exceptions"
	"github.com/BearBump/ScanDock/internal/trackkey"
	"github.com/pkg/errors"
)

var (
	ErrSerialAlreadyScanned = errors.New("serial already scanned for this tracking")
	ErrOrderNotFound        = errors.New("no order for tracking")
	ErrBadInput             = errors.New("bad scan input")
)

type OrderMatcher interface {
	Match(ctx context.Context, raw string) (*models.Order, error)
}

type ExceptionQueue interface {
	UpsertOpen(ctx context.Context, in exceptions.UpsertInput) (exceptions.UpsertResult, error)
}

type Repository interface {
	GetSerialScanByLast8(ctx context.Context, last8 string) (*models.SerialScan, error)
	AppendSerial(ctx context.Context, tracking, last8, serial, serialType string, techID *uint64) (*models.SerialScan, error)
	InsertPackScan(ctx context.Context, tracking, last8 string, packerID *uint64) (*models.PackScan, error)
	FindOpenExceptionByLast8(ctx context.Context, last8 string) (*models.OrderException, error)
	MarkOrderShipped(ctx context.Context, orderID uint64, actor string) error
	AppendStatusChange(ctx context.Context, orderID uint64, status, actor string) error
}

type Service struct {
	matcher OrderMatcher
	queue   ExceptionQueue
	repo    Repository
	sinks   *SinkRegistry

	cache     cache.BytesCache
	lookupTTL time.Duration
}

func New(m OrderMatcher, q ExceptionQueue, repo Repository, sinks *SinkRegistry, c cache.BytesCache, lookupTTL time.Duration) *Service {
	return &Service{matcher: m, queue: q, repo: repo, sinks: sinks, cache: c, lookupTTL: lookupTTL}
}

// OrderView — поля заказа, которые показывает станция.
type OrderView struct {
	ID              uint64     `json:"id"`
	ExternalOrderID string     `json:"externalOrderId,omitempty"`
	Tracking        string     `json:"tracking"`
	SKU             string     `json:"sku,omitempty"`
	Title           string     `json:"title,omitempty"`
	Condition       string     `json:"condition,omitempty"`
	Quantity        int32      `json:"quantity"`
	Status          string     `json:"status"`
	Shipped         bool       `json:"shipped"`
	AccountSource   string     `json:"accountSource,omitempty"`
	OrderDate       *time.Time `json:"orderDate,omitempty"`
}

func viewOf(o *models.Order) *OrderView {
	v := &OrderView{
		ID: o.ID, Tracking: o.Tracking, SKU: o.SKU, Title: o.Title,
		Condition: o.Condition, Quantity: o.Quantity, Status: o.Status,
		Shipped: o.Shipped, AccountSource: o.AccountSource, OrderDate: o.OrderDate,
	}
	if o.ExternalOrderID != nil {
		v.ExternalOrderID = *o.ExternalOrderID
	}
	return v
}

type LookupInput struct {
	Tracking  string
	Station   models.Station
	StaffID   *uint64
	StaffName *string
	Reason    string
	Notes     string
	// Peek: только посмотреть, без постановки в очередь исключений.
	Peek bool
}

type LookupResult struct {
	Found       bool
	Order       *OrderView
	ExceptionID uint64
}

// LookupTracking — станционный скан этикетки: match, иначе в очередь.
// Скан никогда не «теряется»: мисс — это тоже решённый исход.
func (s *Service) LookupTracking(ctx context.Context, in LookupInput) (LookupResult, error) {
	raw := strings.TrimSpace(in.Tracking)
	if raw == "" {
		return LookupResult{}, ErrBadInput
	}
	if trackkey.IsSKUScan(raw) {
		return LookupResult{}, errors.Wrap(ErrBadInput, "sku scan sent to tracking lookup")
	}

	if v := s.cachedView(ctx, raw); v != nil {
		return LookupResult{Found: true, Order: v}, nil
	}

	o, err := s.matcher.Match(ctx, raw)
	if err != nil {
		return LookupResult{}, err
	}
	if o != nil {
		v := viewOf(o)
		s.cacheView(ctx, raw, v)
		return LookupResult{Found: true, Order: v}, nil
	}

	if in.Peek {
		return LookupResult{}, nil
	}
	// Мисс встаёт в очередь, а очереди нужна станция. Без неё отказ должен
	// уйти вызывающему как ошибка входа, а не как внутренняя.
	if !in.Station.Valid() {
		return LookupResult{}, errors.Wrap(ErrBadInput, "unknown station")
	}

	res, err := s.queue.UpsertOpen(ctx, exceptions.UpsertInput{
		Tracking:  raw,
		Station:   in.Station,
		StaffID:   in.StaffID,
		StaffName: in.StaffName,
		Reason:    in.Reason,
		Notes:     in.Notes,
	})
	if err != nil {
		if errors.Is(err, exceptions.ErrBadTracking) {
			return LookupResult{}, errors.Wrap(ErrBadInput, err.Error())
		}
		return LookupResult{}, err
	}
	if res.Exception == nil {
		// Гонка: между нашим Match и очередью заказ успел появиться.
		o, err := s.matcher.Match(ctx, raw)
		if err != nil || o == nil {
			return LookupResult{}, err
		}
		return LookupResult{Found: true, Order: viewOf(o)}, nil
	}
	return LookupResult{ExceptionID: res.Exception.ID}, nil
}

type AppendSerialResult struct {
	Serials    []string
	SerialType string
}

// AppendSerial привязывает серийник к треку. Заказа может ещё не быть —
// достаточно открытого исключения по этому ключу. Повторный серийник —
// ErrSerialAlreadyScanned, дубликат в список не попадает.
func (s *Service) AppendSerial(ctx context.Context, rawTracking, serial string, techID *uint64) (AppendSerialResult, error) {
	raw := strings.TrimSpace(rawTracking)
	serial = strings.TrimSpace(serial)
	if raw == "" || serial == "" || trackkey.IsSKUScan(raw) {
		return AppendSerialResult{}, ErrBadInput
	}
	// Список хранится через запятую; серийник с запятой развалился бы на
	// два фрагмента при чтении.
	if strings.Contains(serial, ",") {
		return AppendSerialResult{}, errors.Wrap(ErrBadInput, "serial contains comma")
	}
	last8 := trackkey.Last8(raw)
	if last8 == "" {
		return AppendSerialResult{}, ErrBadInput
	}

	o, err := s.matcher.Match(ctx, raw)
	if err != nil {
		return AppendSerialResult{}, err
	}
	if o == nil {
		// Заказа нет — принимаем только если трек уже стоит в очереди.
		e, err := s.repo.FindOpenExceptionByLast8(ctx, last8)
		if err != nil {
			return AppendSerialResult{}, err
		}
		if e == nil {
			return AppendSerialResult{}, ErrOrderNotFound
		}
	}

	existing, err := s.repo.GetSerialScanByLast8(ctx, last8)
	if err != nil {
		return AppendSerialResult{}, err
	}
	if existing != nil && existing.HasSerial(serial) {
		return AppendSerialResult{}, ErrSerialAlreadyScanned
	}

	row, err := s.repo.AppendSerial(ctx, raw, last8, serial, classifySerial(serial), techID)
	if err != nil {
		return AppendSerialResult{}, err
	}

	// Побочная запись в журнал статусов — best effort: её отказ не должен
	// завалить сам скан серийника.
	if o != nil {
		if err := s.repo.AppendStatusChange(ctx, o.ID, models.OrderStatusTested, "technician"); err != nil {
			slog.Warn("status change side write failed", "order_id", o.ID, "error", err.Error())
		}
	}

	return AppendSerialResult{Serials: row.SerialList(), SerialType: row.SerialType}, nil
}

type PackResult struct {
	Found       bool
	OrderID     uint64
	ExceptionID uint64
}

// ConfirmPack — скан упаковщика: пишем pack-строку всегда, заказ (если
// нашёлся) переводим в shipped.
func (s *Service) ConfirmPack(ctx context.Context, rawTracking string, packerID *uint64, packerName *string) (PackResult, error) {
	raw := strings.TrimSpace(rawTracking)
	if raw == "" || trackkey.IsSKUScan(raw) {
		return PackResult{}, ErrBadInput
	}
	last8 := trackkey.Last8(raw)
	if last8 == "" {
		return PackResult{}, ErrBadInput
	}

	if _, err := s.repo.InsertPackScan(ctx, raw, last8, packerID); err != nil {
		return PackResult{}, err
	}

	o, err := s.matcher.Match(ctx, raw)
	if err != nil {
		return PackResult{}, err
	}
	if o != nil {
		if err := s.repo.MarkOrderShipped(ctx, o.ID, "packer"); err != nil {
			return PackResult{}, err
		}
		s.dropCached(ctx, raw)
		return PackResult{Found: true, OrderID: o.ID}, nil
	}

	res, err := s.queue.UpsertOpen(ctx, exceptions.UpsertInput{
		Tracking: raw, Station: models.StationPacker,
		StaffID: packerID, StaffName: packerName,
	})
	if err != nil {
		return PackResult{}, err
	}
	out := PackResult{}
	if res.Exception != nil {
		out.ExceptionID = res.Exception.ID
	}
	return out, nil
}

type SkuScanResult struct {
	SKU              string
	Quantity         int32
	StockDecremented bool
}

// IngestSKUScan — входы с ':' или вендорным префиксом; через matcher не
// проходят, уходят в свой лог по реестру станций.
func (s *Service) IngestSKUScan(ctx context.Context, raw string, station models.Station) (SkuScanResult, error) {
	sku, qty, ok := trackkey.SplitSKUScan(strings.TrimSpace(raw))
	if !ok {
		return SkuScanResult{}, errors.Wrap(ErrBadInput, "not a sku scan")
	}
	if !station.Valid() {
		return SkuScanResult{}, errors.Wrap(ErrBadInput, "unknown station")
	}

	sink, err := s.sinks.For(station)
	if err != nil {
		return SkuScanResult{}, err
	}
	if err := sink.Record(ctx, sku, qty, station); err != nil {
		return SkuScanResult{}, err
	}

	dec, err := s.sinks.stock.DecrementStock(ctx, sku, qty)
	if err != nil {
		return SkuScanResult{}, err
	}
	return SkuScanResult{SKU: sku, Quantity: qty, StockDecremented: dec}, nil
}

func classifySerial(serial string) string {
	digits := 0
	for _, r := range serial {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	// IMEI — это 15 цифр; всё остальное с буквами считаем обычным SN.
	if digits == len(serial) && digits == 15 {
		return models.SerialTypeIMEI
	}
	if digits == len(serial) {
		return models.SerialTypeUnknown
	}
	return models.SerialTypeSN
}

func lookupCacheKey(raw string) string {
	return "order:track:" + trackkey.Last18(raw)
}

func (s *Service) cachedView(ctx context.Context, raw string) *OrderView {
	if s.cache == nil || s.lookupTTL <= 0 {
		return nil
	}
	b, ok, err := s.cache.Get(ctx, lookupCacheKey(raw))
	if err != nil || !ok {
		return nil
	}
	var v OrderView
	if json.Unmarshal(b, &v) != nil {
		return nil
	}
	return &v
}

func (s *Service) cacheView(ctx context.Context, raw string, v *OrderView) {
	if s.cache == nil || s.lookupTTL <= 0 {
		return
	}
	b, _ := json.Marshal(v)
	_ = s.cache.Set(ctx, lookupCacheKey(raw), b, s.lookupTTL)
}

func (s *Service) dropCached(ctx context.Context, raw string) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Del(ctx, lookupCacheKey(raw))
}
