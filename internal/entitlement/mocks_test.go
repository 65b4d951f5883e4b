package entitlement

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"chainvoice/internal/db"
	"chainvoice/internal/types"
)

// mockIdentityStore implements IdentityLookup, WalletGraph and PrimaryGetter.
type mockIdentityStore struct {
	mock.Mock
}

func (m *mockIdentityStore) GetPrimaryByWallet(ctx context.Context, walletAddress, chainID string) (*types.PrimaryIdentity, error) {
	args := m.Called(ctx, walletAddress, chainID)
	if p := args.Get(0); p != nil {
		return p.(*types.PrimaryIdentity), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockIdentityStore) GetPrimaryByID(ctx context.Context, id string) (*types.PrimaryIdentity, error) {
	args := m.Called(ctx, id)
	if p := args.Get(0); p != nil {
		return p.(*types.PrimaryIdentity), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockIdentityStore) GetSecondaryByWallet(ctx context.Context, walletAddress, chainID string) (*db.SecondaryWithParent, error) {
	args := m.Called(ctx, walletAddress, chainID)
	if sp := args.Get(0); sp != nil {
		return sp.(*db.SecondaryWithParent), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockIdentityStore) ListSecondaries(ctx context.Context, primaryID string) ([]types.SecondaryIdentity, error) {
	args := m.Called(ctx, primaryID)
	if s := args.Get(0); s != nil {
		return s.([]types.SecondaryIdentity), args.Error(1)
	}
	return nil, args.Error(1)
}

// mockCounters implements UsageCounters.
type mockCounters struct {
	mock.Mock
}

func (m *mockCounters) GetCurrentCount(ctx context.Context, primaryID string, month, year int) (int, error) {
	args := m.Called(ctx, primaryID, month, year)
	return args.Int(0), args.Error(1)
}

func (m *mockCounters) Reserve(ctx context.Context, primaryID string, month, year, limit int) (db.ReserveResult, error) {
	args := m.Called(ctx, primaryID, month, year, limit)
	return args.Get(0).(db.ReserveResult), args.Error(1)
}

func (m *mockCounters) Increment(ctx context.Context, primaryID string, month, year int) (int, error) {
	args := m.Called(ctx, primaryID, month, year)
	return args.Int(0), args.Error(1)
}

// mockVolumeLedger implements VolumeLedger.
type mockVolumeLedger struct {
	mock.Mock
}

func (m *mockVolumeLedger) MonthlyVolume(ctx context.Context, primaryID string, periodStart, periodEnd time.Time) (decimal.Decimal, error) {
	args := m.Called(ctx, primaryID, periodStart, periodEnd)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

// mockNotifier implements DenyNotifier and captures published notifications.
type mockNotifier struct {
	published []types.DenyNotification
	err       error
}

func (m *mockNotifier) PublishDeny(_ context.Context, n types.DenyNotification) error {
	m.published = append(m.published, n)
	return m.err
}

// mockDecisionMetrics implements DecisionMetrics and captures recordings.
type mockDecisionMetrics struct {
	actions   []types.ActionType
	decisions []*types.Decision
}

func (m *mockDecisionMetrics) RecordDecision(_ context.Context, action types.ActionType, decision *types.Decision) {
	m.actions = append(m.actions, action)
	m.decisions = append(m.decisions, decision)
}
