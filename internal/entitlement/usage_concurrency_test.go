package entitlement

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainvoice/internal/db"
	"chainvoice/internal/types"
)

// memCounters is an in-memory UsageCounters whose Reserve is atomic, like
// the single-statement SQL it stands in for.
type memCounters struct {
	mu   sync.Mutex
	used int
}

func (m *memCounters) GetCurrentCount(context.Context, string, int, int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.used, nil
}

func (m *memCounters) Reserve(_ context.Context, _ string, _, _, limit int) (db.ReserveResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.used < limit {
		m.used++
		return db.ReserveResult{Charged: true, UsedCount: m.used}, nil
	}
	return db.ReserveResult{Charged: false, UsedCount: m.used}, nil
}

func (m *memCounters) Increment(context.Context, string, int, int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.used++
	return m.used, nil
}

type staticPrimaryGetter struct {
	primary *types.PrimaryIdentity
}

func (s *staticPrimaryGetter) GetPrimaryByID(context.Context, string) (*types.PrimaryIdentity, error) {
	return s.primary, nil
}

func TestChargeQuery_ConcurrentChargesNeverPassLimit(t *testing.T) {
	const limit = 100 // Free tier query quota
	const workers = 64
	const attemptsPerWorker = 4

	counters := &memCounters{}
	identities := &staticPrimaryGetter{primary: &types.PrimaryIdentity{
		ID:            "pid_1",
		Plan:          types.PlanFree,
		TrialConsumed: true,
	}}

	catalog := NewStaticCatalog(nil)
	accountant := NewAccountant(identities, counters, &mockVolumeLedger{}, catalog, NewTrialClock(DefaultTrialDays)).
		WithNow(func() time.Time { return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC) })

	var wg sync.WaitGroup
	charges := make(chan bool, workers*attemptsPerWorker)

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range attemptsPerWorker {
				res, err := accountant.ChargeQuery(context.Background(), "pid_1")
				if err != nil {
					t.Error(err)
					return
				}
				charges <- res.Charged
			}
		}()
	}
	wg.Wait()
	close(charges)

	charged := 0
	for ok := range charges {
		if ok {
			charged++
		}
	}

	// 256 attempts against a quota of 100: exactly 100 charge, the counter
	// never passes the limit.
	require.Equal(t, limit, charged)
	assert.Equal(t, limit, counters.used)
}
