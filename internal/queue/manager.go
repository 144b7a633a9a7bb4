package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mattjoyce/spool/internal/events"
	"github.com/mattjoyce/spool/internal/log"
	"github.com/mattjoyce/spool/internal/metrics"
)

const tracerName = "github.com/mattjoyce/spool/internal/queue"

// settleTimeout bounds the write that resolves a claim once the handler has
// returned. That write runs detached from the poll's context: a claimed item
// must end deleted, released or dead-lettered even when the poll was
// cancelled mid-handler.
const settleTimeout = 10 * time.Second

// Config is the queue behaviour taken from configuration.
type Config struct {
	// IgnoredTransports are left in the store untouched by Poll.
	IgnoredTransports []string
	// DeadLetterAfter moves an item to the dead letter table once it has
	// failed this many attempts. Zero retries forever.
	DeadLetterAfter int
	// StaleClaimAfter releases claims older than this in RecoverStale. Zero
	// disables recovery.
	StaleClaimAfter time.Duration
}

// Manager enqueues work items and processes them one poll at a time.
type Manager struct {
	store    Store
	resolver Resolver
	cfg      Config

	metrics *metrics.Metrics
	hub     *events.Hub
	tracer  trace.Tracer
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

func WithMetrics(m *metrics.Metrics) Option { return func(q *Manager) { q.metrics = m } }

func WithEvents(h *events.Hub) Option { return func(q *Manager) { q.hub = h } }

func WithTracer(t trace.Tracer) Option { return func(q *Manager) { q.tracer = t } }

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option { return func(q *Manager) { q.now = now } }

func NewManager(store Store, resolver Resolver, cfg Config, opts ...Option) *Manager {
	cfg.IgnoredTransports = slices.Clone(cfg.IgnoredTransports)
	m := &Manager{
		store:    store,
		resolver: resolver,
		cfg:      cfg,
		tracer:   otel.Tracer(tracerName),
		logger:   log.WithComponent("queue"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Store returns the backing store.
func (m *Manager) Store() Store {
	return m.store
}

// Enqueue persists payload for transport and returns the new item id. A
// failed write is returned as a *StorageError.
func (m *Manager) Enqueue(ctx context.Context, payload map[string]any, transport string) (string, error) {
	if transport == "" {
		return "", fmt.Errorf("enqueue: transport is empty")
	}
	encoded, err := Encode(payload)
	if err != nil {
		return "", err
	}

	now := m.now()
	item := WorkItem{
		ID:        newItemID(now),
		Transport: transport,
		Payload:   encoded,
		CreatedAt: now,
	}
	if err := m.store.Insert(ctx, item); err != nil {
		return "", storageErr("enqueue", err)
	}

	m.metrics.Enqueued(transport)
	m.hub.Publish(events.TypeEnqueued, map[string]any{"id": item.ID, "transport": transport})
	m.logger.Debug("enqueued", "item_id", item.ID, "transport", transport)
	return item.ID, nil
}

// Poll claims and processes at most one item. Only storage failures are
// returned as errors; everything else is reported in the PollResult.
func (m *Manager) Poll(ctx context.Context) (PollResult, error) {
	ctx, span := m.tracer.Start(ctx, "queue.poll")
	defer span.End()

	item, err := m.store.ClaimNext(ctx, m.cfg.IgnoredTransports, m.now())
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return PollResult{}, storageErr("claim", err)
	}
	if item == nil {
		m.metrics.Polled(string(PollEmpty))
		return PollResult{Status: PollEmpty}, nil
	}

	span.SetAttributes(
		attribute.String("queue.item_id", item.ID),
		attribute.String("queue.transport", item.Transport),
		attribute.Int("queue.attempts", item.Attempts),
	)
	settle, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()
	res, err := m.process(ctx, settle, item)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}
	span.SetAttributes(attribute.String("queue.status", string(res.Status)))
	m.metrics.Polled(string(res.Status))
	return res, nil
}

// process runs the handler under ctx and resolves the claim under settle.
func (m *Manager) process(ctx, settle context.Context, item *WorkItem) (PollResult, error) {
	logger := log.WithItem(item.ID, item.Transport)
	res := PollResult{ItemID: item.ID, Transport: item.Transport, Attempts: item.Attempts}

	payload, err := Decode(item.Payload)
	if err != nil {
		return m.discard(settle, logger, res, err)
	}

	handler, ok := m.resolver.Resolve(item.Transport)
	if !ok || handler == nil {
		return m.discard(settle, logger, res, fmt.Errorf("%w %q", ErrNoHandler, item.Transport))
	}

	msg := Message{
		ID:        item.ID,
		Transport: item.Transport,
		Payload:   payload,
		CreatedAt: item.CreatedAt,
		Attempts:  item.Attempts,
	}
	start := m.now()
	herr := invoke(ctx, handler, msg)
	m.metrics.Handled(item.Transport, m.now().Sub(start))

	if herr == nil {
		if err := m.store.Delete(settle, item.ID); err != nil {
			return res, storageErr("delete", err)
		}
		res.Status = PollSucceeded
		m.hub.Publish(events.TypeSucceeded, eventData(res))
		logger.Debug("work item succeeded", "attempts", item.Attempts)
		return res, nil
	}

	res.Err = fmt.Errorf("%w: %w", ErrHandlerFailed, herr)
	if m.cfg.DeadLetterAfter > 0 && item.Attempts >= m.cfg.DeadLetterAfter {
		return m.deadLetter(settle, logger, item, res)
	}

	if err := m.store.Release(settle, item.ID); err != nil {
		return res, storageErr("release", err)
	}
	res.Status = PollReleased
	m.hub.Publish(events.TypeReleased, eventData(res))
	logger.Warn("work item released for retry", "attempts", item.Attempts, "error", herr)
	return res, nil
}

func (m *Manager) discard(ctx context.Context, logger *slog.Logger, res PollResult, reason error) (PollResult, error) {
	if err := m.store.Delete(ctx, res.ItemID); err != nil {
		return res, storageErr("discard", err)
	}
	res.Status = PollDiscarded
	res.Err = reason
	m.hub.Publish(events.TypeDiscarded, eventData(res))
	logger.Error("work item discarded", "error", reason)
	return res, nil
}

func (m *Manager) deadLetter(ctx context.Context, logger *slog.Logger, item *WorkItem, res PollResult) (PollResult, error) {
	dl := DeadLetter{
		ID:        uuid.NewString(),
		ItemID:    item.ID,
		Transport: item.Transport,
		Payload:   item.Payload,
		Attempts:  item.Attempts,
		LastError: res.Err.Error(),
		CreatedAt: item.CreatedAt,
		FailedAt:  m.now(),
	}
	if err := m.store.MoveToDeadLetter(ctx, dl); err != nil {
		return res, storageErr("dead letter", err)
	}
	res.Status = PollDeadLettered
	m.metrics.DeadLettered(item.Transport)
	m.hub.Publish(events.TypeDeadLettered, eventData(res))
	logger.Error("work item dead-lettered", "attempts", item.Attempts, "dead_letter_id", dl.ID, "error", res.Err)
	return res, nil
}

// invoke runs the handler, turning a panic into an error so that one bad job
// cannot take down a drain pass.
func invoke(ctx context.Context, h Handler, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h.HandleMessage(ctx, msg)
}

// RecoverStale releases claims older than Config.StaleClaimAfter, which is how
// items held by a crashed poller become claimable again.
func (m *Manager) RecoverStale(ctx context.Context) (int, error) {
	if m.cfg.StaleClaimAfter <= 0 {
		return 0, nil
	}
	n, err := m.store.ReleaseStale(ctx, m.now().Add(-m.cfg.StaleClaimAfter))
	if err != nil {
		return 0, storageErr("release stale", err)
	}
	if n > 0 {
		m.logger.Warn("released stale claims", "count", n, "older_than", m.cfg.StaleClaimAfter)
	}
	return n, nil
}

// Stats reports store counts and refreshes the depth gauge.
func (m *Manager) Stats(ctx context.Context) (Stats, error) {
	st, err := m.store.Stats(ctx)
	if err != nil {
		return st, storageErr("stats", err)
	}
	m.metrics.SetDepth(st.Total)
	return st, nil
}

// Replay moves a dead letter back into the queue as a fresh, unclaimed item.
func (m *Manager) Replay(ctx context.Context, deadLetterID string) (string, error) {
	now := m.now()
	item, err := m.store.RequeueDeadLetter(ctx, deadLetterID, newItemID(now), now)
	if errors.Is(err, ErrItemNotFound) {
		return "", err
	}
	if err != nil {
		return "", storageErr("replay", err)
	}
	m.hub.Publish(events.TypeEnqueued, map[string]any{"id": item.ID, "transport": item.Transport, "replayed_from": deadLetterID})
	m.logger.Info("dead letter replayed", "dead_letter_id", deadLetterID, "item_id", item.ID, "transport", item.Transport)
	return item.ID, nil
}

// DeadLetters lists the most recent dead letters.
func (m *Manager) DeadLetters(ctx context.Context, limit int) ([]DeadLetter, error) {
	out, err := m.store.DeadLetters(ctx, limit)
	if err != nil {
		return nil, storageErr("list dead letters", err)
	}
	return out, nil
}

func eventData(res PollResult) map[string]any {
	data := map[string]any{
		"id":        res.ItemID,
		"transport": res.Transport,
		"attempts":  res.Attempts,
	}
	if res.Err != nil {
		data["error"] = res.Err.Error()
	}
	return data
}
