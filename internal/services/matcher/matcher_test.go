package matcher

import (
	"context"
	"errors"
	"testing"

	"github.com/BearBump/ScanDock/internal/models"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	exact  map[string]*models.Order
	last18 map[string]*models.Order
	last8  map[string]*models.Order

	exactCalls, last18Calls, last8Calls int
	err                                 error
}

func (f *fakeRepo) FindOrderByExactTracking(ctx context.Context, raw string) (*models.Order, error) {
	f.exactCalls++
	return f.exact[raw], f.err
}
func (f *fakeRepo) FindOrderByLast18(ctx context.Context, key string) (*models.Order, error) {
	f.last18Calls++
	return f.last18[key], f.err
}
func (f *fakeRepo) FindOrderByLast8(ctx context.Context, key string) (*models.Order, error) {
	f.last8Calls++
	return f.last8[key], f.err
}

func TestMatch_ExactWinsFirst(t *testing.T) {
	want := &models.Order{ID: 1, Tracking: "TRK-1"}
	r := &fakeRepo{exact: map[string]*models.Order{"TRK-1": want}}
	s := New(r)

	got, err := s.Match(context.Background(), "TRK-1")
	require.NoError(t, err)
	require.Equal(t, want, got)
	require.Equal(t, 1, r.exactCalls)
	require.Zero(t, r.last18Calls)
	require.Zero(t, r.last8Calls)
}

func TestMatch_FallsThroughToLast18(t *testing.T) {
	// stored "1Z-999-AA1-0123456784", scanned "1z999aa10123456784" — punctuation
	// and case differ, only the normalized key agrees.
	want := &models.Order{ID: 2, Tracking: "1Z-999-AA1-0123456784"}
	r := &fakeRepo{
		exact:  map[string]*models.Order{},
		last18: map[string]*models.Order{"1Z999AA10123456784": want},
	}
	s := New(r)

	got, err := s.Match(context.Background(), "1z999aa10123456784")
	require.NoError(t, err)
	require.Equal(t, want, got)
	require.Equal(t, 1, r.last18Calls)
	require.Zero(t, r.last8Calls)
}

func TestMatch_LastResortLast8(t *testing.T) {
	want := &models.Order{ID: 3}
	r := &fakeRepo{
		exact:  map[string]*models.Order{},
		last18: map[string]*models.Order{},
		last8:  map[string]*models.Order{"97428170": want},
	}
	s := New(r)

	got, err := s.Match(context.Background(), "9400 1118 9922 3197 4281 70")
	require.NoError(t, err)
	require.Equal(t, want, got)
	require.Equal(t, 1, r.exactCalls)
	require.Equal(t, 1, r.last18Calls)
	require.Equal(t, 1, r.last8Calls)
}

func TestMatch_NoMatchIsNilNil(t *testing.T) {
	r := &fakeRepo{exact: map[string]*models.Order{}, last18: map[string]*models.Order{}, last8: map[string]*models.Order{}}
	s := New(r)

	got, err := s.Match(context.Background(), "9400111899223197428170")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestMatch_RejectsSKUInput(t *testing.T) {
	r := &fakeRepo{}
	s := New(r)

	_, err := s.Match(context.Background(), "IPH12-64GB:3")
	require.ErrorIs(t, err, ErrNotTracking)
	require.Zero(t, r.exactCalls)
}

func TestMatch_EmptyInput(t *testing.T) {
	s := New(&fakeRepo{})
	got, err := s.Match(context.Background(), "")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestMatch_ShortAlphaSkipsLast8(t *testing.T) {
	// "ABC-1" никогда не даст last-8 ключ; до last8-запроса дойти не должны.
	r := &fakeRepo{exact: map[string]*models.Order{}, last18: map[string]*models.Order{}}
	s := New(r)

	got, err := s.Match(context.Background(), "ABC-1")
	require.NoError(t, err)
	require.Nil(t, got)
	require.Equal(t, 1, r.last18Calls)
	require.Zero(t, r.last8Calls)
}

func TestMatch_RepoErrorPropagates(t *testing.T) {
	r := &fakeRepo{err: errors.New("pg down")}
	s := New(r)
	_, err := s.Match(context.Background(), "9400111899223197428170")
	require.Error(t, err)
}
