package scans

import (
	"context"

	"github.com/BearBump/ScanDock/internal/models"
	"github.com/pkg/errors"
)

// SkuSink — типизированный приёмник SKU-сканов одной станции. Выбор делается
// lookup'ом по реестру, а не склейкой имени таблицы в запросе.
type SkuSink interface {
	Record(ctx context.Context, sku string, qty int32, station models.Station) error
}

type StockStore interface {
	DecrementStock(ctx context.Context, sku string, qty int32) (bool, error)
}

type SinkRegistry struct {
	byStation map[models.Station]SkuSink
	fallback  SkuSink
	stock     StockStore
}

func NewSinkRegistry(fallback SkuSink, stock StockStore) *SinkRegistry {
	return &SinkRegistry{
		byStation: map[models.Station]SkuSink{},
		fallback:  fallback,
		stock:     stock,
	}
}

func (r *SinkRegistry) Register(st models.Station, sink SkuSink) *SinkRegistry {
	r.byStation[st] = sink
	return r
}

func (r *SinkRegistry) For(st models.Station) (SkuSink, error) {
	if s, ok := r.byStation[st]; ok {
		return s, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, errors.Errorf("no sku sink for station %q", st)
}

type skuLogStore interface {
	InsertSkuScan(ctx context.Context, sku string, qty int32, station models.Station) (*models.SkuScan, error)
}

// TableSink пишет в общий sku_scans лог (станция — колонка, не своя таблица).
type TableSink struct {
	store skuLogStore
}

func NewTableSink(store skuLogStore) TableSink {
	return TableSink{store: store}
}

func (t TableSink) Record(ctx context.Context, sku string, qty int32, station models.Station) error {
	_, err := t.store.InsertSkuScan(ctx, sku, qty, station)
	return err
}
