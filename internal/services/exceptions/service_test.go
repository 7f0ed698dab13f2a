package exceptions

import (
	"context"
	"errors"
	"testing"

	"github.com/BearBump/ScanDock/internal/models"
	"github.com/stretchr/testify/require"
)

type fakeMatcher struct {
	byRaw map[string]*models.Order
	err   error
}

func (m *fakeMatcher) Match(ctx context.Context, raw string) (*models.Order, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.byRaw[raw], nil
}

type fakeRepo struct {
	openByLast8 map[string]*models.OrderException
	nextID      uint64

	inserted  []models.ExceptionCreateInput
	refreshed map[uint64]models.ExceptionRefresh
	deleted   []uint64
	resolved  []uint64

	trackingSet map[uint64]string
	packScans   map[string]bool
	shipped     []uint64

	deleteErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		openByLast8: map[string]*models.OrderException{},
		refreshed:   map[uint64]models.ExceptionRefresh{},
		trackingSet: map[uint64]string{},
		packScans:   map[string]bool{},
		nextID:      100,
	}
}

func (f *fakeRepo) FindOpenExceptionByLast8(ctx context.Context, last8 string) (*models.OrderException, error) {
	return f.openByLast8[last8], nil
}
func (f *fakeRepo) InsertException(ctx context.Context, in models.ExceptionCreateInput) (*models.OrderException, error) {
	f.inserted = append(f.inserted, in)
	f.nextID++
	e := &models.OrderException{
		ID: f.nextID, Tracking: in.Tracking, Last8: in.Last8, Station: in.Station,
		StaffID: in.StaffID, StaffName: in.StaffName, Reason: in.Reason, Notes: in.Notes,
		Status: models.ExceptionStatusOpen,
	}
	f.openByLast8[in.Last8] = e
	return e, nil
}
func (f *fakeRepo) RefreshException(ctx context.Context, id uint64, upd models.ExceptionRefresh) (*models.OrderException, error) {
	f.refreshed[id] = upd
	for _, e := range f.openByLast8 {
		if e.ID != id {
			continue
		}
		e.Tracking = upd.Tracking
		e.Station = upd.Station
		if e.StaffID == nil {
			e.StaffID = upd.StaffID
		}
		if e.StaffName == nil {
			e.StaffName = upd.StaffName
		}
		if upd.Notes != "" {
			e.Notes = upd.Notes
		}
		return e, nil
	}
	return nil, errors.New("not found")
}
func (f *fakeRepo) ListOpenExceptions(ctx context.Context) ([]*models.OrderException, error) {
	var out []*models.OrderException
	for _, e := range f.openByLast8 {
		out = append(out, e)
	}
	return out, nil
}
func (f *fakeRepo) DeleteException(ctx context.Context, id uint64) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	for k, e := range f.openByLast8 {
		if e.ID == id {
			delete(f.openByLast8, k)
		}
	}
	return nil
}
func (f *fakeRepo) MarkExceptionResolved(ctx context.Context, id uint64) error {
	f.resolved = append(f.resolved, id)
	return nil
}
func (f *fakeRepo) SetOrderTrackingIfBlank(ctx context.Context, orderID uint64, tracking string) error {
	if _, ok := f.trackingSet[orderID]; !ok {
		f.trackingSet[orderID] = tracking
	}
	return nil
}
func (f *fakeRepo) HasPackScan(ctx context.Context, last8 string) (bool, error) {
	return f.packScans[last8], nil
}
func (f *fakeRepo) MarkOrderShipped(ctx context.Context, orderID uint64, actor string) error {
	f.shipped = append(f.shipped, orderID)
	return nil
}

func uptr(v uint64) *uint64 { return &v }
func sptr(v string) *string { return &v }

func TestUpsertOpen_RejectsUnusableInput(t *testing.T) {
	s := New(newFakeRepo(), &fakeMatcher{})

	_, err := s.UpsertOpen(context.Background(), UpsertInput{Tracking: "SKU-1:2", Station: models.StationPacker})
	require.ErrorIs(t, err, ErrBadTracking)

	_, err = s.UpsertOpen(context.Background(), UpsertInput{Tracking: "1234567", Station: models.StationPacker})
	require.ErrorIs(t, err, ErrBadTracking)

	_, err = s.UpsertOpen(context.Background(), UpsertInput{Tracking: "9400111899223197428170", Station: "warehouse-roof"})
	require.Error(t, err)
}

func TestUpsertOpen_NeverShadowsMatch(t *testing.T) {
	r := newFakeRepo()
	m := &fakeMatcher{byRaw: map[string]*models.Order{"9400111899223197428170": {ID: 7}}}
	s := New(r, m)

	res, err := s.UpsertOpen(context.Background(), UpsertInput{
		Tracking: "9400111899223197428170", Station: models.StationPacker,
	})
	require.NoError(t, err)
	require.Nil(t, res.Exception)
	require.Equal(t, uint64(7), res.MatchedOrderID)
	require.Empty(t, r.inserted)
}

func TestUpsertOpen_CreatesThenRefreshes(t *testing.T) {
	r := newFakeRepo()
	s := New(r, &fakeMatcher{})

	first, err := s.UpsertOpen(context.Background(), UpsertInput{
		Tracking: "9400111899223197428170",
		Station:  models.StationPacker,
		StaffID:  uptr(11), StaffName: sptr("alice"),
	})
	require.NoError(t, err)
	require.NotNil(t, first.Exception)
	require.Equal(t, "97428170", first.Exception.Last8)
	require.Equal(t, models.StationPacker, first.Exception.Station)

	// Другая станция, другой текст того же физического трека, staff не передан.
	second, err := s.UpsertOpen(context.Background(), UpsertInput{
		Tracking: "9400 1118 9922 3197 4281 70",
		Station:  models.StationTechnician,
		Notes:    "second look",
	})
	require.NoError(t, err)
	require.NotNil(t, second.Exception)
	require.Equal(t, first.Exception.ID, second.Exception.ID)
	require.Len(t, r.inserted, 1)

	// Атрибуция первой станции сохранена, заметки и станция — от последней.
	require.NotNil(t, second.Exception.StaffID)
	require.Equal(t, uint64(11), *second.Exception.StaffID)
	require.Equal(t, models.StationTechnician, second.Exception.Station)
	require.Equal(t, "second look", second.Exception.Notes)
}

func TestReconcileAll_ResolvesWhenOrderAppears(t *testing.T) {
	r := newFakeRepo()
	m := &fakeMatcher{byRaw: map[string]*models.Order{}}
	s := New(r, m)

	res, err := s.UpsertOpen(context.Background(), UpsertInput{
		Tracking: "9400111899223197428170", Station: models.StationPacker,
	})
	require.NoError(t, err)
	excID := res.Exception.ID

	// Пока заказа нет — sweep ничего не делает и идемпотентен.
	st, err := s.ReconcileAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, SweepStats{Scanned: 1}, st)

	// Заказ появился (фид догнал), плюс есть pack-скан этого ключа.
	m.byRaw["9400111899223197428170"] = &models.Order{ID: 42, Tracking: ""}
	r.packScans["97428170"] = true

	st, err = s.ReconcileAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, SweepStats{Scanned: 1, Matched: 1, Deleted: 1}, st)
	require.Equal(t, []uint64{excID}, r.deleted)
	require.Equal(t, "9400111899223197428170", r.trackingSet[42])
	require.Equal(t, []uint64{42}, r.shipped)

	// Повторный запуск — пусто.
	st, err = s.ReconcileAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, SweepStats{}, st)
}

func TestReconcileAll_RowFailureDoesNotAbort(t *testing.T) {
	r := newFakeRepo()
	m := &fakeMatcher{byRaw: map[string]*models.Order{"11112222": {ID: 1}}}
	s := New(r, m)

	_, err := s.UpsertOpen(context.Background(), UpsertInput{Tracking: "11112222", Station: models.StationMobile})
	require.NoError(t, err)
	// UpsertOpen нашёл бы заказ; форсируем открытую строку напрямую.
	require.Empty(t, r.openByLast8)
	_, err = r.InsertException(context.Background(), models.ExceptionCreateInput{Tracking: "11112222", Last8: "11112222", Station: models.StationMobile})
	require.NoError(t, err)
	_, err = r.InsertException(context.Background(), models.ExceptionCreateInput{Tracking: "33334444", Last8: "33334444", Station: models.StationMobile})
	require.NoError(t, err)

	r.deleteErr = errors.New("pg conflict")
	st, err := s.ReconcileAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, st.Scanned)
	require.Equal(t, 1, st.Errors)
	require.Zero(t, st.Deleted)
}

func TestResolveForTracking(t *testing.T) {
	r := newFakeRepo()
	m := &fakeMatcher{byRaw: map[string]*models.Order{}}
	s := New(r, m)

	_, err := s.UpsertOpen(context.Background(), UpsertInput{Tracking: "9400111899223197428170", Station: models.StationVerification})
	require.NoError(t, err)

	ok, err := s.ResolveForTracking(context.Background(), "9400111899223197428170")
	require.NoError(t, err)
	require.False(t, ok)

	m.byRaw["9400111899223197428170"] = &models.Order{ID: 9}
	ok, err = s.ResolveForTracking(context.Background(), "9400 1118 9922 3197 4281 70")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, r.deleted, 1)

	// no key — no-op
	ok, err = s.ResolveForTracking(context.Background(), "abc")
	require.NoError(t, err)
	require.False(t, ok)
}
