package trigger

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/spool/internal/config"
	"github.com/mattjoyce/spool/internal/hook"
	"github.com/mattjoyce/spool/internal/log"
	"github.com/mattjoyce/spool/internal/storage"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR")
	os.Exit(m.Run())
}

func newStore(t *testing.T) *Store {
	t.Helper()
	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func counting(t *testing.T, event string, calls *atomic.Int32, got *[]*hook.Args) *hook.Dispatcher {
	t.Helper()
	reg := hook.NewRegistry()
	require.NoError(t, reg.Register(event, "test", hook.HandlerFunc(func(ctx context.Context, args *hook.Args) (hook.Outcome, error) {
		calls.Add(1)
		if got != nil {
			*got = append(*got, args)
		}
		return hook.Continue, nil
	})))
	return hook.NewDispatcher(reg)
}

func TestFireDueRespectsInterval(t *testing.T) {
	ctx := context.Background()
	c := &clock{now: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	var calls atomic.Int32
	var got []*hook.Args
	r := NewRunner(newStore(t), counting(t, "trigger.hourly", &calls, &got),
		[]Trigger{{Name: "hourly", Interval: time.Hour}}, WithClock(c.Now))

	n, err := r.FireDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	c.Advance(59 * time.Minute)
	n, err = r.FireDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	c.Advance(time.Minute)
	n, err = r.FireDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int32(2), calls.Load())

	require.Len(t, got, 2)
	assert.Equal(t, "hourly", got[0].String("name"))
	assert.Nil(t, got[0].Values["last_run"])
	assert.Equal(t, time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC), got[1].Values["last_run"])
	assert.Equal(t, time.Date(2026, 5, 1, 11, 0, 0, 0, time.UTC), got[1].Values["fired_at"])
}

func TestCompareAndSwapHasOneWinner(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	last, err := s.LastRun(ctx, "daily")
	require.NoError(t, err)
	require.Nil(t, last)

	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	won, err := s.CompareAndSwap(ctx, "daily", last, now)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = s.CompareAndSwap(ctx, "daily", last, now.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, won, "stale read must lose")

	stored, err := s.LastRun(ctx, "daily")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.True(t, stored.Equal(now))

	won, err = s.CompareAndSwap(ctx, "daily", stored, now.Add(24*time.Hour))
	require.NoError(t, err)
	assert.True(t, won)
}

func TestConcurrentRunnersFireOnce(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	c := &clock{now: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	var calls atomic.Int32
	d := counting(t, "trigger.sync", &calls, nil)
	triggers := []Trigger{{Name: "sync", Interval: time.Hour}}

	var (
		wg    sync.WaitGroup
		total atomic.Int32
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := NewRunner(store, d, triggers, WithClock(c.Now)).FireDue(ctx)
			assert.NoError(t, err)
			total.Add(int32(n))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), total.Load())
	assert.Equal(t, int32(1), calls.Load())
}

func TestDispatchErrorStillRecordsRun(t *testing.T) {
	ctx := context.Background()
	c := &clock{now: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	reg := hook.NewRegistry()
	boom := errors.New("boom")
	require.NoError(t, reg.Register("trigger.flaky", "test", hook.HandlerFunc(func(context.Context, *hook.Args) (hook.Outcome, error) {
		return hook.Continue, boom
	})))
	r := NewRunner(newStore(t), hook.NewDispatcher(reg), []Trigger{{Name: "flaky", Interval: time.Hour}}, WithClock(c.Now))

	n, err := r.FireDue(ctx)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, n)

	n, err = r.FireDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestFromConfig(t *testing.T) {
	got, err := FromConfig([]config.TriggerConfig{{Name: "hourly", Every: "hourly"}, {Name: "digest", Every: "2d"}})
	require.NoError(t, err)
	assert.Equal(t, []Trigger{{Name: "hourly", Interval: time.Hour}, {Name: "digest", Interval: 48 * time.Hour}}, got)
	assert.Equal(t, "trigger.digest", got[1].Hook())

	_, err = FromConfig([]config.TriggerConfig{{Name: "x", Every: "sometimes"}})
	assert.Error(t, err)
}
