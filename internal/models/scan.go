package models

import (
	"strings"
	"time"
)

// Типы серийников, которые техник может привязать к треку.
const (
	SerialTypeIMEI    = "imei"
	SerialTypeSN      = "sn"
	SerialTypeUnknown = "unknown"
)

// SerialScan — одна строка на один tracking-ключ; серийники копятся
// в comma-joined списке, а не по строке на серийник.
type SerialScan struct {
	ID         uint64
	Tracking   string
	Last8      string
	Serials    string
	SerialType string
	TechID     *uint64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (s *SerialScan) SerialList() []string {
	if s.Serials == "" {
		return nil
	}
	parts := strings.Split(s.Serials, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (s *SerialScan) HasSerial(serial string) bool {
	for _, x := range s.SerialList() {
		if strings.EqualFold(x, serial) {
			return true
		}
	}
	return false
}

// PackScan — подтверждение упаковки по tracking-ключу. Используется sweep'ом
// как свидетельство, что заказ реально ушёл со станции упаковки.
type PackScan struct {
	ID        uint64
	Tracking  string
	Last8     string
	PackerID  *uint64
	CreatedAt time.Time
}

// SkuScan — скан вида "SKU:COUNT" (или с вендорным префиксом). В матчер
// заказов такие сканы не попадают никогда.
type SkuScan struct {
	ID        uint64
	SKU       string
	Quantity  int32
	Station   Station
	CreatedAt time.Time
}
