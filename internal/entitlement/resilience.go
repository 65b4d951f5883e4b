package entitlement

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"chainvoice/internal/types"
)

// RetryPolicy configures the retry behavior for resolution lookups.
type RetryPolicy struct {
	MaxRetries int
	MinWait    time.Duration
	MaxWait    time.Duration
}

// DefaultRetryPolicy returns sensible defaults for store lookups. Waits are
// short because resolution sits on the hot path of every request.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 2,
		MinWait:    50 * time.Millisecond,
		MaxWait:    500 * time.Millisecond,
	}
}

type snapshot struct {
	resolved types.ResolvedIdentity
	storedAt time.Time
}

// ResilientResolver wraps a Resolver with a circuit breaker, bounded retry,
// and a last-known-good snapshot cache. When the backing store is
// unavailable it serves the snapshot with Stale set rather than failing,
// so read paths degrade instead of going dark.
//
// NotFound and validation results are definitive answers from the store;
// they pass through untouched, are never retried, and do not trip the
// breaker. Only lookup_failed outcomes count as failures.
type ResilientResolver struct {
	inner   *Resolver
	breaker *gobreaker.CircuitBreaker[*types.ResolvedIdentity]
	policy  RetryPolicy

	snapTTL time.Duration
	mu      sync.RWMutex
	snaps   map[string]snapshot

	now     func() time.Time
	sleepFn func(time.Duration) // for testability; defaults to time.Sleep
}

// ResilientResolverOption is a functional option for NewResilientResolver.
type ResilientResolverOption func(*ResilientResolver)

// WithResolverSleepFunc overrides the sleep function used between retries.
// This is intended for testing to avoid real delays.
func WithResolverSleepFunc(fn func(time.Duration)) ResilientResolverOption {
	return func(r *ResilientResolver) {
		r.sleepFn = fn
	}
}

// WithResolverNow overrides the resolver's time source. Intended for tests.
func WithResolverNow(now func() time.Time) ResilientResolverOption {
	return func(r *ResilientResolver) {
		r.now = now
	}
}

// NewResilientResolver wraps the given resolver. snapTTL bounds how old a
// cached resolution may be before a degraded read refuses to serve it.
func NewResilientResolver(inner *Resolver, policy RetryPolicy, snapTTL time.Duration, opts ...ResilientResolverOption) *ResilientResolver {
	cb := gobreaker.NewCircuitBreaker[*types.ResolvedIdentity](gobreaker.Settings{
		Name:        "identity-resolver",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			// A definitive not-found or a malformed input is a successful
			// round trip to the store, not a store failure.
			return err == nil || !types.IsLookupFailed(err)
		},
	})

	r := &ResilientResolver{
		inner:   inner,
		breaker: cb,
		policy:  policy,
		snapTTL: snapTTL,
		snaps:   make(map[string]snapshot),
		now:     func() time.Time { return time.Now().UTC() },
		sleepFn: time.Sleep,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Resolve resolves the wallet with retry and breaker protection. On store
// outage it falls back to the last successful resolution for the same
// wallet, marked Stale, if one exists within the snapshot TTL.
func (r *ResilientResolver) Resolve(ctx context.Context, walletAddress, chainID string) (*types.ResolvedIdentity, error) {
	// Normalize up front so the cache key and the inner resolver agree,
	// and so malformed input never burns a retry.
	addr, err := types.NormalizeWalletAddress(walletAddress)
	if err != nil {
		return nil, err
	}
	chain, err := types.NormalizeChainID(chainID)
	if err != nil {
		return nil, err
	}
	key := addr + "@" + chain

	var lastErr error
	maxAttempts := 1 + r.policy.MaxRetries
	for attempt := 0; attempt < maxAttempts; attempt++ {
		resolved, err := r.breaker.Execute(func() (*types.ResolvedIdentity, error) {
			return r.inner.Resolve(ctx, addr, chain)
		})
		if err == nil {
			r.store(key, resolved)
			return resolved, nil
		}

		// Definitive answers pass through untouched.
		if !types.IsLookupFailed(err) && !errors.Is(err, gobreaker.ErrOpenState) && !errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, err
		}

		lastErr = err

		// An open breaker fails fast; retrying would not reach the store.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			break
		}

		if attempt < maxAttempts-1 {
			select {
			case <-ctx.Done():
				return nil, types.NewAppError(types.ErrCodeLookupFailed, "resolution canceled", ctx.Err())
			default:
			}
			r.sleepFn(r.computeBackoff(attempt))
		}
	}

	if snap, ok := r.load(key); ok {
		stale := snap
		stale.Stale = true
		return &stale, nil
	}

	return nil, types.NewAppError(
		types.ErrCodeLookupFailed,
		"could not determine wallet registration",
		lastErr,
	)
}

func (r *ResilientResolver) store(key string, resolved *types.ResolvedIdentity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps[key] = snapshot{resolved: *resolved, storedAt: r.now()}
}

func (r *ResilientResolver) load(key string) (types.ResolvedIdentity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap, ok := r.snaps[key]
	if !ok {
		return types.ResolvedIdentity{}, false
	}
	if r.now().Sub(snap.storedAt) > r.snapTTL {
		return types.ResolvedIdentity{}, false
	}
	return snap.resolved, true
}

// computeBackoff returns exponential backoff with full jitter clamped to
// [MinWait, MaxWait].
func (r *ResilientResolver) computeBackoff(attempt int) time.Duration {
	base := float64(r.policy.MinWait) * math.Pow(2, float64(attempt))
	maxWait := float64(r.policy.MaxWait)
	if base > maxWait {
		base = maxWait
	}

	minWait := float64(r.policy.MinWait)
	if base <= minWait {
		return r.policy.MinWait
	}
	jittered := minWait + rand.Float64()*(base-minWait)
	return time.Duration(jittered)
}
