package queue

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

	"github.com/mattjoyce/spool/internal/events"
	"github.com/mattjoyce/spool/internal/log"
	"github.com/mattjoyce/spool/internal/metrics"
	"github.com/mattjoyce/spool/internal/storage"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR")
	os.Exit(m.Run())
}

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLiteStore(db)
}

func count(t *testing.T, s *SQLiteStore) int {
	t.Helper()
	st, err := s.Stats(context.Background())
	require.NoError(t, err)
	return st.Total
}

func succeed(calls *atomic.Int32) Handler {
	return HandlerFunc(func(ctx context.Context, msg Message) error {
		calls.Add(1)
		return nil
	})
}

func TestScenarioSuccessDeletesItem(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	var calls atomic.Int32
	var seen map[string]any
	handlers := Handlers{"t1": HandlerFunc(func(ctx context.Context, msg Message) error {
		calls.Add(1)
		seen = msg.Payload
		return nil
	})}
	m := NewManager(store, handlers, Config{})

	id, err := m.Enqueue(ctx, map[string]any{"x": 1}, "t1")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	res, err := m.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, PollSucceeded, res.Status)
	assert.Equal(t, id, res.ItemID)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, map[string]any{"x": 1.0}, seen)
	assert.Equal(t, 0, count(t, store))
}

func TestScenarioNoHandlerDiscards(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	var calls atomic.Int32
	m := NewManager(store, Handlers{"other": succeed(&calls)}, Config{})

	_, err := m.Enqueue(ctx, map[string]any{"n": 1}, "t2")
	require.NoError(t, err)
	_, err = m.Enqueue(ctx, map[string]any{"n": 2}, "t2")
	require.NoError(t, err)

	for range 2 {
		res, err := m.Poll(ctx)
		require.NoError(t, err)
		assert.Equal(t, PollDiscarded, res.Status)
		assert.ErrorIs(t, res.Err, ErrNoHandler)
	}
	assert.Equal(t, int32(0), calls.Load())
	assert.Equal(t, 0, count(t, store))
}

func TestScenarioFailingHandlerRetriesForever(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	boom := errors.New("remote inbox unreachable")
	var calls atomic.Int32
	m := NewManager(store, Handlers{"t3": HandlerFunc(func(ctx context.Context, msg Message) error {
		calls.Add(1)
		return boom
	})}, Config{})

	id, err := m.Enqueue(ctx, map[string]any{"to": "x"}, "t3")
	require.NoError(t, err)

	for attempt := 1; attempt <= 2; attempt++ {
		res, err := m.Poll(ctx)
		require.NoError(t, err)
		assert.Equal(t, PollReleased, res.Status)
		assert.ErrorIs(t, res.Err, ErrHandlerFailed)
		assert.ErrorIs(t, res.Err, boom)
		assert.Equal(t, attempt, res.Attempts)
		assert.Equal(t, 1, count(t, store))
	}
	assert.Equal(t, int32(2), calls.Load())

	item, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, item.Claimed())
	assert.Equal(t, 2, item.Attempts)
}

func TestPanickingHandlerIsReleased(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	m := NewManager(store, Handlers{"t": HandlerFunc(func(ctx context.Context, msg Message) error {
		panic("nil map write")
	})}, Config{})

	_, err := m.Enqueue(ctx, nil, "t")
	require.NoError(t, err)

	res, err := m.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, PollReleased, res.Status)
	assert.Contains(t, res.Err.Error(), "nil map write")
	assert.Equal(t, 1, count(t, store))
}

func TestPoisonPayloadIsDiscarded(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	var calls atomic.Int32
	m := NewManager(store, Handlers{"t": succeed(&calls)}, Config{})

	require.NoError(t, store.Insert(ctx, WorkItem{
		ID:        newItemID(time.Now()),
		Transport: "t",
		Payload:   []byte("not an encoded payload"),
		CreatedAt: time.Now(),
	}))

	res, err := m.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, PollDiscarded, res.Status)
	assert.ErrorIs(t, res.Err, ErrPoisonPayload)
	assert.Equal(t, int32(0), calls.Load())
	assert.Equal(t, 0, count(t, store))
}

func TestPollEmpty(t *testing.T) {
	m := NewManager(newTestStore(t), Handlers{}, Config{})
	res, err := m.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PollEmpty, res.Status)
	assert.False(t, res.Processed())
}

func TestPollOldestFirst(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	var order []float64
	m := NewManager(store, Handlers{"t": HandlerFunc(func(ctx context.Context, msg Message) error {
		order = append(order, msg.Payload["n"].(float64))
		return nil
	})}, Config{})

	for i := range 5 {
		_, err := m.Enqueue(ctx, map[string]any{"n": i}, "t")
		require.NoError(t, err)
	}
	for range 5 {
		_, err := m.Poll(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, []float64{0, 1, 2, 3, 4}, order)
}

func TestIgnoredTransportsStayQueued(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	var calls atomic.Int32
	m := NewManager(store, Handlers{"active": succeed(&calls), "paused": succeed(&calls)},
		Config{IgnoredTransports: []string{"paused"}})

	_, err := m.Enqueue(ctx, nil, "paused")
	require.NoError(t, err)
	_, err = m.Enqueue(ctx, nil, "active")
	require.NoError(t, err)

	res, err := m.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, PollSucceeded, res.Status)
	assert.Equal(t, "active", res.Transport)

	res, err = m.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, PollEmpty, res.Status)

	st, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"paused": 1}, st.ByTransport)
}

func TestReleasePreservesPayloadBytes(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	m := NewManager(store, Handlers{"t": HandlerFunc(func(ctx context.Context, msg Message) error {
		msg.Payload["mutated"] = true
		return errors.New("fail")
	})}, Config{})

	id, err := m.Enqueue(ctx, map[string]any{"body": "keep me", "list": []any{1, 2}}, "t")
	require.NoError(t, err)
	before, err := store.Get(ctx, id)
	require.NoError(t, err)

	res, err := m.Poll(ctx)
	require.NoError(t, err)
	require.Equal(t, PollReleased, res.Status)

	after, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, before.Payload, after.Payload)
	assert.Nil(t, after.ClaimedAt)

	ok, err := store.Claim(ctx, id, time.Now())
	require.NoError(t, err)
	assert.True(t, ok, "released item must be claimable")
}

func TestAtMostOneClaimant(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	id := newItemID(time.Now())
	payload, err := Encode(map[string]any{"x": 1})
	require.NoError(t, err)
	require.NoError(t, store.Insert(ctx, WorkItem{ID: id, Transport: "t", Payload: payload, CreatedAt: time.Now()}))

	const claimants = 8
	var (
		wg   sync.WaitGroup
		wins atomic.Int32
		errs atomic.Int32
	)
	start := make(chan struct{})
	for range claimants {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			ok, err := store.Claim(ctx, id, time.Now())
			if err != nil {
				errs.Add(1)
				return
			}
			if ok {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(0), errs.Load())
	assert.Equal(t, int32(1), wins.Load())
}

func TestConcurrentPollsClaimOnce(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	var calls atomic.Int32
	handler := HandlerFunc(func(ctx context.Context, msg Message) error {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		return nil
	})

	producer := NewManager(store, Handlers{}, Config{})
	_, err := producer.Enqueue(ctx, map[string]any{"only": true}, "t")
	require.NoError(t, err)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		statuses []PollStatus
	)
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := NewManager(store, Handlers{"t": handler}, Config{}).Poll(ctx)
			assert.NoError(t, err)
			mu.Lock()
			statuses = append(statuses, res.Status)
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.ElementsMatch(t, []PollStatus{PollSucceeded, PollEmpty}, statuses)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDeadLetterAfterThreshold(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	hub := events.NewHub(16)
	m := NewManager(store, Handlers{"t": HandlerFunc(func(ctx context.Context, msg Message) error {
		return errors.New("permanent")
	})}, Config{DeadLetterAfter: 2}, WithEvents(hub), WithMetrics(metrics.New()))

	_, err := m.Enqueue(ctx, map[string]any{"a": "b"}, "t")
	require.NoError(t, err)

	res, err := m.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, PollReleased, res.Status)

	res, err = m.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, PollDeadLettered, res.Status)

	st, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, st.Total)
	assert.Equal(t, 1, st.DeadLetters)

	dls, err := m.DeadLetters(ctx, 10)
	require.NoError(t, err)
	require.Len(t, dls, 1)
	assert.Equal(t, 2, dls[0].Attempts)
	assert.Contains(t, dls[0].LastError, "permanent")

	var types []string
	for _, ev := range hub.SnapshotSince(0) {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []string{events.TypeEnqueued, events.TypeReleased, events.TypeDeadLettered}, types)
}

func TestReplayDeadLetter(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	fail := true
	m := NewManager(store, Handlers{"t": HandlerFunc(func(ctx context.Context, msg Message) error {
		if fail {
			return errors.New("down")
		}
		return nil
	})}, Config{DeadLetterAfter: 1})

	_, err := m.Enqueue(ctx, map[string]any{"k": "v"}, "t")
	require.NoError(t, err)
	res, err := m.Poll(ctx)
	require.NoError(t, err)
	require.Equal(t, PollDeadLettered, res.Status)

	dls, err := m.DeadLetters(ctx, 0)
	require.NoError(t, err)
	require.Len(t, dls, 1)

	fail = false
	newID, err := m.Replay(ctx, dls[0].ID)
	require.NoError(t, err)
	assert.NotEqual(t, res.ItemID, newID)

	res, err = m.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, PollSucceeded, res.Status)

	_, err = m.Replay(ctx, dls[0].ID)
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestRecoverStaleClaims(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewManager(store, Handlers{}, Config{StaleClaimAfter: 10 * time.Minute}, WithClock(func() time.Time { return now }))

	id, err := m.Enqueue(ctx, nil, "t")
	require.NoError(t, err)
	ok, err := store.Claim(ctx, id, now.Add(-time.Hour))
	require.NoError(t, err)
	require.True(t, ok)

	n, err := m.RecoverStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	item, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, item.Claimed())

	disabled := NewManager(store, Handlers{}, Config{})
	n, err = disabled.RecoverStale(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEnqueueStorageFailureIsSurfaced(t *testing.T) {
	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	m := NewManager(NewSQLiteStore(db), Handlers{}, Config{})
	require.NoError(t, db.Close())

	_, err = m.Enqueue(context.Background(), map[string]any{"x": 1}, "t")
	require.Error(t, err)
	var se *StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "enqueue", se.Op)

	_, err = m.Poll(context.Background())
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "claim", se.Op)
}

func TestEnqueueRejectsEmptyTransport(t *testing.T) {
	m := NewManager(newTestStore(t), Handlers{}, Config{})
	_, err := m.Enqueue(context.Background(), nil, "")
	require.Error(t, err)
}

// flakyStore fails the claim-resolving writes on demand.
type flakyStore struct {
	*SQLiteStore
	releaseErr error
	deleteErr  error
}

func (s *flakyStore) Release(ctx context.Context, id string) error {
	if s.releaseErr != nil {
		return s.releaseErr
	}
	return s.SQLiteStore.Release(ctx, id)
}

func (s *flakyStore) Delete(ctx context.Context, id string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	return s.SQLiteStore.Delete(ctx, id)
}

func TestCancelledPollStillReleasesClaim(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	m := NewManager(store, Handlers{"t": HandlerFunc(func(hctx context.Context, msg Message) error {
		if calls.Add(1) == 1 {
			// Shutdown arrives while the handler is running.
			cancel()
			return hctx.Err()
		}
		return nil
	})}, Config{})

	id, err := m.Enqueue(context.Background(), map[string]any{"to": "x"}, "t")
	require.NoError(t, err)

	res, err := m.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, PollReleased, res.Status)
	assert.ErrorIs(t, res.Err, context.Canceled)

	item, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, item.Claimed())

	res, err = m.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PollSucceeded, res.Status)
	assert.Equal(t, id, res.ItemID)
	assert.Zero(t, count(t, store))
}

func TestExpiredDeadlineStillDeletesOnSuccess(t *testing.T) {
	store := newTestStore(t)
	m := NewManager(store, Handlers{"t": HandlerFunc(func(ctx context.Context, msg Message) error {
		<-ctx.Done()
		return nil
	})}, Config{})
	_, err := m.Enqueue(context.Background(), map[string]any{}, "t")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	res, err := m.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, PollSucceeded, res.Status)
	assert.Zero(t, count(t, store))
}

func TestFailedSettleWriteIsStorageError(t *testing.T) {
	ctx := context.Background()
	diskFull := errors.New("disk I/O error")

	tests := []struct {
		name    string
		store   func(*SQLiteStore) *flakyStore
		handler Handler
		op      string
	}{
		{
			name:    "release after handler failure",
			store:   func(s *SQLiteStore) *flakyStore { return &flakyStore{SQLiteStore: s, releaseErr: diskFull} },
			handler: HandlerFunc(func(context.Context, Message) error { return errors.New("remote down") }),
			op:      "release",
		},
		{
			name:    "delete after success",
			store:   func(s *SQLiteStore) *flakyStore { return &flakyStore{SQLiteStore: s, deleteErr: diskFull} },
			handler: HandlerFunc(func(context.Context, Message) error { return nil }),
			op:      "delete",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := newTestStore(t)
			m := NewManager(tt.store(base), Handlers{"t": tt.handler}, Config{})
			id, err := m.Enqueue(ctx, map[string]any{}, "t")
			require.NoError(t, err)

			res, err := m.Poll(ctx)
			var se *StorageError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.op, se.Op)
			assert.ErrorIs(t, err, diskFull)
			assert.Equal(t, id, res.ItemID)

			// The claim is left for stale recovery; the item is not lost.
			item, err := base.Get(ctx, id)
			require.NoError(t, err)
			assert.True(t, item.Claimed())
		})
	}
}

func TestHandleDurationUsesInjectedClock(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	clock := func() time.Time { return now }
	mx := metrics.New()
	m := NewManager(newTestStore(t), Handlers{"t": HandlerFunc(func(context.Context, Message) error {
		now = now.Add(3 * time.Second)
		return nil
	})}, Config{}, WithClock(clock), WithMetrics(mx))

	_, err := m.Enqueue(context.Background(), map[string]any{}, "t")
	require.NoError(t, err)
	_, err = m.Poll(context.Background())
	require.NoError(t, err)

	families, err := mx.Gatherer().Gather()
	require.NoError(t, err)
	var sum float64
	for _, f := range families {
		if f.GetName() == "spool_queue_handle_seconds" {
			sum = f.GetMetric()[0].GetHistogram().GetSampleSum()
		}
	}
	assert.Equal(t, 3.0, sum)
}
