package kvstore

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"authcore/pkg/platform/sentinel"
)

const defaultShadowTimeout = 2 * time.Second

// Layered keeps an in-memory Store authoritative for the running process and
// shadows every write to a durable Store so state survives a restart.
//
// Durable calls run under a bounded timeout. A failed or timed-out durable
// write is logged and counted but not returned: the in-memory copy stays
// authoritative for this process. Reads that miss memory fall back to the
// durable store and hydrate memory (crash recovery); a failed durable read is
// returned as sentinel.ErrUnavailable so callers apply their own policy.
type Layered struct {
	memory  *MemoryStore
	durable Store
	timeout time.Duration
	logger  *slog.Logger
	metrics *Metrics

	mu         sync.Mutex
	tombstones map[string]struct{} // durable delete pending; never hydrate these
}

// LayeredOption configures a Layered store.
type LayeredOption func(*Layered)

// WithShadowTimeout bounds each durable call.
func WithShadowTimeout(d time.Duration) LayeredOption {
	return func(l *Layered) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithLogger sets the logger used for degraded durable writes.
func WithLogger(logger *slog.Logger) LayeredOption {
	return func(l *Layered) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithMetrics records durable failures.
func WithMetrics(m *Metrics) LayeredOption {
	return func(l *Layered) {
		l.metrics = m
	}
}

// NewLayered builds a layered store over memory and durable.
func NewLayered(memory *MemoryStore, durable Store, opts ...LayeredOption) *Layered {
	l := &Layered{
		memory:     memory,
		durable:    durable,
		timeout:    defaultShadowTimeout,
		logger:     slog.Default(),
		tombstones: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Layered) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := l.memory.Get(ctx, key)
	if err == nil {
		return data, nil
	}
	if !IsNotFound(err) {
		return nil, err
	}
	if l.isTombstoned(key) {
		return nil, notFound(key)
	}

	dctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	data, err = l.durable.Get(dctx, key)
	if err != nil {
		if IsNotFound(err) {
			return nil, err
		}
		l.degraded(ctx, "get", key, err)
		return nil, fmt.Errorf("durable get %s: %w: %w", keyPrefix(key), sentinel.ErrUnavailable, err)
	}
	// Hydrated without a TTL; services apply their own expiry on top.
	_ = l.memory.Set(ctx, key, data, 0)
	if l.metrics != nil {
		l.metrics.Hydrations.Inc()
	}
	return data, nil
}

func (l *Layered) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := l.memory.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	l.clearTombstone(key)

	dctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	if err := l.durable.Set(dctx, key, value, ttl); err != nil {
		l.degraded(ctx, "set", key, err)
	}
	return nil
}

func (l *Layered) Delete(ctx context.Context, key string) error {
	if err := l.memory.Delete(ctx, key); err != nil {
		return err
	}
	l.mu.Lock()
	l.tombstones[key] = struct{}{}
	l.mu.Unlock()

	dctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	if err := l.durable.Delete(dctx, key); err != nil {
		l.degraded(ctx, "delete", key, err)
		return nil
	}
	l.clearTombstone(key)
	return nil
}

// retryDeletes replays durable deletes that failed earlier and forgets the
// tombstones that went through. The lock is held across each delete so a
// concurrent Set cannot be overwritten by a stale replay.
func (l *Layered) retryDeletes(ctx context.Context) {
	l.mu.Lock()
	pending := make([]string, 0, len(l.tombstones))
	for k := range l.tombstones {
		pending = append(pending, k)
	}
	l.mu.Unlock()

	for _, key := range pending {
		if !l.replayDelete(ctx, key) {
			return
		}
	}
}

func (l *Layered) replayDelete(ctx context.Context, key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.tombstones[key]; !ok {
		return true
	}
	dctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	if err := l.durable.Delete(dctx, key); err != nil {
		l.degraded(ctx, "delete", key, err)
		return false
	}
	delete(l.tombstones, key)
	return true
}

// pendingDeletes reports how many durable deletes are still outstanding.
func (l *Layered) pendingDeletes() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tombstones)
}

func (l *Layered) Keys(ctx context.Context, prefix string) ([]string, error) {
	memKeys, err := l.memory.Keys(ctx, prefix)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(memKeys))
	for _, k := range memKeys {
		seen[k] = struct{}{}
	}

	dctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	durableKeys, err := l.durable.Keys(dctx, prefix)
	if err != nil {
		l.degraded(ctx, "keys", prefix, err)
	} else {
		for _, k := range durableKeys {
			if !l.isTombstoned(k) {
				seen[k] = struct{}{}
			}
		}
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (l *Layered) isTombstoned(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.tombstones[key]
	return ok
}

func (l *Layered) clearTombstone(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.tombstones, key)
}

func (l *Layered) degraded(ctx context.Context, op, key string, err error) {
	l.logger.WarnContext(ctx, "durable store degraded, in-memory state stays authoritative",
		"op", op,
		"key_prefix", keyPrefix(key),
		"error", err,
	)
	if l.metrics != nil {
		l.metrics.DurableFailures.WithLabelValues(op).Inc()
	}
}

// keyPrefix strips the identifier part of a key so logs never carry it.
func keyPrefix(key string) string {
	for _, p := range []string{"session_", "user_sessions_", "two_factor_status_", "two_factor_secret_",
		"two_factor_pending_", "backup_codes_", "rate_limit_", "failed_attempts_"} {
		if len(key) >= len(p) && key[:len(p)] == p {
			return p
		}
	}
	return "other"
}

// PurgeExpired sweeps the memory layer and, when supported, the durable one.
// The count covers both layers. Pending durable deletes are retried first.
func (l *Layered) PurgeExpired(ctx context.Context) (int, error) {
	l.retryDeletes(ctx)
	removed, _ := l.memory.PurgeExpired(ctx)
	purger, ok := l.durable.(Purger)
	if !ok {
		return removed, nil
	}
	dctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	n, err := purger.PurgeExpired(dctx)
	if err != nil {
		l.degraded(ctx, "purge", "", err)
		return removed, nil
	}
	return removed + n, nil
}
