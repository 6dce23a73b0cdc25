package cache

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"slotkeeper/internal/schedule"
	"slotkeeper/internal/weekclock"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) LoadSchedule(ctx context.Context, businessID string) (schedule.Schedule, error) {
	args := m.Called(ctx, businessID)
	return args.Get(0).(schedule.Schedule), args.Error(1)
}

func (m *mockStore) ReplaceSchedule(ctx context.Context, businessID string, nonStop bool, blocks []schedule.Block) error {
	args := m.Called(ctx, businessID, nonStop, blocks)
	return args.Error(0)
}

func setup(t *testing.T) (*miniredis.Miniredis, *mockStore, *ScheduleCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := &mockStore{}
	return mr, store, NewScheduleCache(store, client, 5*time.Minute, zerolog.New(io.Discard))
}

var weekdays = schedule.Schedule{Blocks: []schedule.Block{
	{Start: weekclock.Encode(1, 8, 0), End: weekclock.Encode(1, 19, 0)},
	{Start: weekclock.Encode(5, 22, 0), End: weekclock.Encode(1, 6, 0)},
}}

func TestScheduleCache_ReadThrough(t *testing.T) {
	mr, store, c := setup(t)
	ctx := context.Background()
	store.On("LoadSchedule", mock.Anything, "biz1").Return(weekdays, nil).Once()

	got, err := c.LoadSchedule(ctx, "biz1")
	require.NoError(t, err)
	assert.Equal(t, weekdays, got)
	assert.True(t, mr.Exists("schedule:biz1"))
	assert.Equal(t, 5*time.Minute, mr.TTL("schedule:biz1"))

	got, err = c.LoadSchedule(ctx, "biz1")
	require.NoError(t, err)
	assert.Equal(t, weekdays, got)
	store.AssertNumberOfCalls(t, "LoadSchedule", 1)
}

func TestScheduleCache_ReplaceInvalidates(t *testing.T) {
	mr, store, c := setup(t)
	ctx := context.Background()
	store.On("LoadSchedule", mock.Anything, "biz1").Return(weekdays, nil).Once()
	_, err := c.LoadSchedule(ctx, "biz1")
	require.NoError(t, err)

	store.On("ReplaceSchedule", mock.Anything, "biz1", true, []schedule.Block(nil)).Return(nil).Once()
	require.NoError(t, c.ReplaceSchedule(ctx, "biz1", true, nil))
	assert.False(t, mr.Exists("schedule:biz1"))

	nonStop := schedule.Schedule{NonStop: true}
	store.On("LoadSchedule", mock.Anything, "biz1").Return(nonStop, nil).Once()
	got, err := c.LoadSchedule(ctx, "biz1")
	require.NoError(t, err)
	assert.True(t, got.NonStop)
	store.AssertExpectations(t)
}

func TestScheduleCache_ReplaceFailureKeepsCache(t *testing.T) {
	mr, store, c := setup(t)
	ctx := context.Background()
	store.On("LoadSchedule", mock.Anything, "biz1").Return(weekdays, nil).Once()
	_, err := c.LoadSchedule(ctx, "biz1")
	require.NoError(t, err)

	bad := []schedule.Block{{Start: weekclock.Encode(1, 8, 0), End: weekclock.Encode(1, 8, 0)}}
	store.On("ReplaceSchedule", mock.Anything, "biz1", false, bad).Return(schedule.ErrMalformedBlock).Once()
	assert.ErrorIs(t, c.ReplaceSchedule(ctx, "biz1", false, bad), schedule.ErrMalformedBlock)
	assert.True(t, mr.Exists("schedule:biz1"))
}

func TestScheduleCache_FallsBackWhenRedisDown(t *testing.T) {
	mr, store, c := setup(t)
	mr.Close()

	store.On("LoadSchedule", mock.Anything, "biz1").Return(weekdays, nil).Twice()
	for i := 0; i < 2; i++ {
		got, err := c.LoadSchedule(context.Background(), "biz1")
		require.NoError(t, err)
		assert.Equal(t, weekdays, got)
	}
	store.AssertExpectations(t)
}

func TestScheduleCache_StoreError(t *testing.T) {
	mr, store, c := setup(t)
	notFound := errors.New("not found")
	store.On("LoadSchedule", mock.Anything, "ghost").Return(schedule.Schedule{}, notFound)

	_, err := c.LoadSchedule(context.Background(), "ghost")
	assert.ErrorIs(t, err, notFound)
	assert.False(t, mr.Exists("schedule:ghost"))
}

func TestScheduleCache_NilClient(t *testing.T) {
	store := &mockStore{}
	c := NewScheduleCache(store, nil, time.Minute, zerolog.New(io.Discard))
	store.On("LoadSchedule", mock.Anything, "biz1").Return(weekdays, nil)

	_, err := c.LoadSchedule(context.Background(), "biz1")
	require.NoError(t, err)
	assert.NoError(t, c.Invalidate(context.Background(), "biz1"))
}

func TestScheduleCache_ReplaceSucceedsWhenDeleteFails(t *testing.T) {
	mr, store, c := setup(t)
	ctx := context.Background()
	store.On("LoadSchedule", mock.Anything, "biz1").Return(weekdays, nil).Once()
	_, err := c.LoadSchedule(ctx, "biz1")
	require.NoError(t, err)
	require.True(t, mr.Exists("schedule:biz1"))

	mr.SetError("ERR injected failure")
	store.On("ReplaceSchedule", mock.Anything, "biz1", true, []schedule.Block(nil)).Return(nil).Once()
	require.NoError(t, c.ReplaceSchedule(ctx, "biz1", true, nil), "store committed the write")

	nonStop := schedule.Schedule{NonStop: true}
	store.On("LoadSchedule", mock.Anything, "biz1").Return(nonStop, nil).Twice()

	got, err := c.LoadSchedule(ctx, "biz1")
	require.NoError(t, err)
	assert.True(t, got.NonStop, "old cached hours are not served while redis fails")

	mr.SetError("")
	got, err = c.LoadSchedule(ctx, "biz1")
	require.NoError(t, err)
	assert.True(t, got.NonStop, "old cached hours are dropped once redis recovers")

	got, err = c.LoadSchedule(ctx, "biz1")
	require.NoError(t, err)
	assert.True(t, got.NonStop)
	store.AssertExpectations(t)
	store.AssertNumberOfCalls(t, "LoadSchedule", 3)
}
