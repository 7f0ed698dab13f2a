package models

import "time"

// Station — станция, с которой пришёл скан.
type Station string

const (
	StationTechnician   Station = "technician"
	StationPacker       Station = "packer"
	StationVerification Station = "verification"
	StationMobile       Station = "mobile"
)

func (s Station) Valid() bool {
	switch s {
	case StationTechnician, StationPacker, StationVerification, StationMobile:
		return true
	}
	return false
}

// ExceptionStatus — закрытый жизненный цикл исключения.
// open -> resolved (фид пометил), open -> удаление строки (sweep нашёл заказ).
type ExceptionStatus string

const (
	ExceptionStatusOpen     ExceptionStatus = "open"
	ExceptionStatusResolved ExceptionStatus = "resolved"
)

func (s ExceptionStatus) CanTransitionTo(next ExceptionStatus) bool {
	return s == ExceptionStatusOpen && next == ExceptionStatusResolved
}

const ExceptionReasonNotFound = "not_found"

// OrderException — скан, для которого не нашёлся заказ. Не более одной
// открытой строки на один last-8 ключ; станция в ключ дедупликации не входит.
type OrderException struct {
	ID        uint64
	Tracking  string
	Last8     string
	Station   Station
	StaffID   *uint64
	StaffName *string
	Reason    string
	Notes     string
	Status    ExceptionStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

type ExceptionCreateInput struct {
	Tracking  string
	Last8     string
	Station   Station
	StaffID   *uint64
	StaffName *string
	Reason    string
	Notes     string
}

// ExceptionRefresh — обновление открытого исключения при повторном скане
// того же ключа. Staff-поля заполняются только если раньше были NULL.
type ExceptionRefresh struct {
	Tracking  string
	Station   Station
	StaffID   *uint64
	StaffName *string
	Reason    string
	Notes     string
}
