package scans_api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/BearBump/ScanDock/internal/models"
	"github.com/BearBump/ScanDock/internal/services/exceptions"
	"github.com/BearBump/ScanDock/internal/services/scans"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

type ScanService interface {
	LookupTracking(ctx context.Context, in scans.LookupInput) (scans.LookupResult, error)
	AppendSerial(ctx context.Context, rawTracking, serial string, techID *uint64) (scans.AppendSerialResult, error)
	ConfirmPack(ctx context.Context, rawTracking string, packerID *uint64, packerName *string) (scans.PackResult, error)
	IngestSKUScan(ctx context.Context, raw string, station models.Station) (scans.SkuScanResult, error)
}

type ExceptionSweeper interface {
	ReconcileAll(ctx context.Context) (exceptions.SweepStats, error)
}

type Store interface {
	ListOpenExceptions(ctx context.Context) ([]*models.OrderException, error)
	ListStatusChanges(ctx context.Context, orderID uint64) ([]*models.StatusChange, error)
}

type ScansAPI struct {
	svc     ScanService
	sweeper ExceptionSweeper
	store   Store
}

func New(svc ScanService, sweeper ExceptionSweeper, store Store) *ScansAPI {
	return &ScansAPI{svc: svc, sweeper: sweeper, store: store}
}

// Register вешает все ручки станций на роутер под /api/v1.
func (a *ScansAPI) Register(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/scan", a.handleScan)
		r.Post("/serial", a.handleSerial)
		r.Post("/pack", a.handlePack)
		r.Post("/sku-scan", a.handleSKUScan)
		r.Post("/exceptions/sweep", a.handleSweep)
		r.Get("/exceptions", a.handleListExceptions)
		r.Get("/orders/by-tracking", a.handlePeek)
		r.Get("/orders/{id}/status-history", a.handleStatusHistory)
	})
}

type scanRequest struct {
	Tracking  string  `json:"tracking"`
	Station   string  `json:"station"`
	StaffID   *uint64 `json:"staffId,omitempty"`
	StaffName *string `json:"staffName,omitempty"`
	Reason    string  `json:"reason,omitempty"`
	Notes     string  `json:"notes,omitempty"`
}

type scanResponse struct {
	Found       bool             `json:"found"`
	Order       *scans.OrderView `json:"order,omitempty"`
	ExceptionID uint64           `json:"exceptionId,omitempty"`
	Queued      bool             `json:"queued,omitempty"`
}

// handleScan — станционный скан этикетки: 200 при совпадении, 202 когда
// трек ушёл в очередь исключений.
func (a *ScansAPI) handleScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	station := models.Station(req.Station)
	if !station.Valid() {
		writeError(w, http.StatusBadRequest, "unknown station")
		return
	}

	res, err := a.svc.LookupTracking(r.Context(), scans.LookupInput{
		Tracking:  req.Tracking,
		Station:   station,
		StaffID:   req.StaffID,
		StaffName: req.StaffName,
		Reason:    req.Reason,
		Notes:     req.Notes,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if res.Found {
		writeJSON(w, http.StatusOK, scanResponse{Found: true, Order: res.Order})
		return
	}
	writeJSON(w, http.StatusAccepted, scanResponse{Queued: true, ExceptionID: res.ExceptionID})
}

// handlePeek — то же сопоставление, но только просмотр: очередь не трогаем.
func (a *ScansAPI) handlePeek(w http.ResponseWriter, r *http.Request) {
	tracking := r.URL.Query().Get("tracking")
	res, err := a.svc.LookupTracking(r.Context(), scans.LookupInput{Tracking: tracking, Peek: true})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !res.Found {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	writeJSON(w, http.StatusOK, res.Order)
}

type serialRequest struct {
	Tracking string  `json:"tracking"`
	Serial   string  `json:"serial"`
	TechID   *uint64 `json:"techId,omitempty"`
}

type serialResponse struct {
	Success    bool     `json:"success"`
	Error      string   `json:"error,omitempty"`
	Serials    []string `json:"serialNumbers,omitempty"`
	SerialType string   `json:"serialType,omitempty"`
}

// handleSerial всегда отвечает 200 на принятый запрос: дубликат серийника —
// это штатный исход для станции, а не ошибка протокола.
func (a *ScansAPI) handleSerial(w http.ResponseWriter, r *http.Request) {
	var req serialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	res, err := a.svc.AppendSerial(r.Context(), req.Tracking, req.Serial, req.TechID)
	if err != nil {
		if errors.Is(err, scans.ErrSerialAlreadyScanned) {
			writeJSON(w, http.StatusOK, serialResponse{Error: "serial already scanned"})
			return
		}
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, serialResponse{Success: true, Serials: res.Serials, SerialType: res.SerialType})
}

type packRequest struct {
	Tracking   string  `json:"tracking"`
	PackerID   *uint64 `json:"packerId,omitempty"`
	PackerName *string `json:"packerName,omitempty"`
}

type packResponse struct {
	Shipped     bool   `json:"shipped"`
	OrderID     uint64 `json:"orderId,omitempty"`
	ExceptionID uint64 `json:"exceptionId,omitempty"`
	Queued      bool   `json:"queued,omitempty"`
}

func (a *ScansAPI) handlePack(w http.ResponseWriter, r *http.Request) {
	var req packRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	res, err := a.svc.ConfirmPack(r.Context(), req.Tracking, req.PackerID, req.PackerName)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if res.Found {
		writeJSON(w, http.StatusOK, packResponse{Shipped: true, OrderID: res.OrderID})
		return
	}
	writeJSON(w, http.StatusAccepted, packResponse{Queued: true, ExceptionID: res.ExceptionID})
}

type skuScanRequest struct {
	Scan    string `json:"scan"`
	Station string `json:"station"`
}

type skuScanResponse struct {
	SKU              string `json:"sku"`
	Quantity         int32  `json:"quantity"`
	StockDecremented bool   `json:"stockDecremented"`
}

func (a *ScansAPI) handleSKUScan(w http.ResponseWriter, r *http.Request) {
	var req skuScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	res, err := a.svc.IngestSKUScan(r.Context(), req.Scan, models.Station(req.Station))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, skuScanResponse{
		SKU: res.SKU, Quantity: res.Quantity, StockDecremented: res.StockDecremented,
	})
}

func (a *ScansAPI) handleSweep(w http.ResponseWriter, r *http.Request) {
	st, err := a.sweeper.ReconcileAll(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *ScansAPI) handleListExceptions(w http.ResponseWriter, r *http.Request) {
	es, err := a.store.ListOpenExceptions(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if es == nil {
		es = []*models.OrderException{}
	}
	writeJSON(w, http.StatusOK, es)
}

func (a *ScansAPI) handleStatusHistory(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}
	cs, err := a.store.ListStatusChanges(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if cs == nil {
		cs = []*models.StatusChange{}
	}
	writeJSON(w, http.StatusOK, cs)
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scans.ErrBadInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, scans.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		slog.Error("scan api", "error", err.Error())
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
