package pool

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iotaledger/gas-station/gasstation/storage"
	"github.com/iotaledger/gas-station/gasstation/types"
	"github.com/iotaledger/gas-station/internal/metrics"
)

// fakeStorage is a minimal in-memory storage.Storage used to unit test the
// pool manager's budget/cap logic in isolation from Redis.
type fakeStorage struct {
	mu            sync.Mutex
	pool          []types.GasCoin
	reservations  map[types.ReservationID][]types.GasCoin
	expireAt      map[types.ReservationID]int64
	nextID        uint64
	maintenance   bool
	kv            map[string][]byte
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		reservations: make(map[types.ReservationID][]types.GasCoin),
		expireAt:     make(map[types.ReservationID]int64),
		kv:           make(map[string][]byte),
	}
}

func (f *fakeStorage) SetData(ctx context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kv[key] = value
	return nil
}

func (f *fakeStorage) GetData(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.kv[key], nil
}

func (f *fakeStorage) ReserveGasCoins(ctx context.Context, targetBudget uint64, reserveDurationMs uint64) (types.ReservationID, []types.GasCoin, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.maintenance {
		return 0, nil, storage.ErrMaintenanceMode
	}
	var sum uint64
	var n int
	for i, c := range f.pool {
		sum += c.Balance
		n = i + 1
		if sum >= targetBudget {
			break
		}
	}
	if sum < targetBudget {
		return 0, nil, storage.ErrPoolInsufficient
	}
	selected := append([]types.GasCoin{}, f.pool[:n]...)
	f.pool = f.pool[n:]
	f.nextID++
	id := types.ReservationID(f.nextID)
	f.reservations[id] = selected
	f.expireAt[id] = time.Now().UnixNano()/int64(time.Millisecond) + int64(reserveDurationMs)
	return id, selected, nil
}

func (f *fakeStorage) ReadyForExecution(ctx context.Context, id types.ReservationID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.reservations, id)
	delete(f.expireAt, id)
	return nil
}

func (f *fakeStorage) AddNewCoins(ctx context.Context, coins []types.GasCoin) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pool = append(f.pool, coins...)
	return nil
}

func (f *fakeStorage) ExpireCoins(ctx context.Context, nowMs int64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var released []string
	for id, expiry := range f.expireAt {
		if expiry <= nowMs {
			coins := f.reservations[id]
			for _, c := range coins {
				f.pool = append(f.pool, c)
				released = append(released, c.Ref.ID)
			}
			delete(f.reservations, id)
			delete(f.expireAt, id)
		}
	}
	return released, nil
}

func (f *fakeStorage) InitCoinStatsAtStartup(ctx context.Context) (uint64, uint64, error) {
	return f.GetAvailableCoinCount(ctx) // not exercised in these tests
}

func (f *fakeStorage) IsInitialized(ctx context.Context) (bool, error) { return true, nil }

func (f *fakeStorage) AcquireInitLock(ctx context.Context, durationSec uint64) (bool, error) {
	return true, nil
}
func (f *fakeStorage) ReleaseInitLock(ctx context.Context) error { return nil }
func (f *fakeStorage) AcquireMaintenanceLock(ctx context.Context, durationSec uint64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.maintenance = true
	return true, nil
}
func (f *fakeStorage) ReleaseMaintenanceLock(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.maintenance = false
	return nil
}
func (f *fakeStorage) IsMaintenanceMode(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maintenance, nil
}
func (f *fakeStorage) CleanUpCoinRegistry(ctx context.Context) error { return nil }

func (f *fakeStorage) GetAvailableCoinCount(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint64(len(f.pool)), nil
}

func (f *fakeStorage) GetAvailableCoinTotalBalance(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return types.TotalBalance(f.pool), nil
}

func (f *fakeStorage) CheckHealth(ctx context.Context) error { return nil }

var _ storage.Storage = (*fakeStorage)(nil)

func newTestManager(store *fakeStorage) *Manager {
	return NewManager(store, 1000, 10000, 50*time.Millisecond, metrics.NewForTesting(), "test")
}

func TestReserveGasRejectsZeroBudget(t *testing.T) {
	m := newTestManager(newFakeStorage())
	_, _, err := m.ReserveGas(context.Background(), 0, 0)
	require.ErrorIs(t, err, ErrInvalidBudget)
}

func TestReserveGasRejectsOverMaxBudget(t *testing.T) {
	m := newTestManager(newFakeStorage())
	_, _, err := m.ReserveGas(context.Background(), 1_000_000, 0)
	require.ErrorIs(t, err, ErrInvalidBudget)
}

func TestReserveGasEnforcesDailyCap(t *testing.T) {
	fs := newFakeStorage()
	require.NoError(t, fs.AddNewCoins(context.Background(), []types.GasCoin{
		{Balance: 500, Ref: types.ObjectRef{ID: "0x1", Version: 1, Digest: "d1"}},
		{Balance: 500, Ref: types.ObjectRef{ID: "0x2", Version: 1, Digest: "d2"}},
		{Balance: 500, Ref: types.ObjectRef{ID: "0x3", Version: 1, Digest: "d3"}},
	}))
	m := NewManager(fs, 1000, 1000, time.Second, metrics.NewForTesting(), "test")

	_, _, err := m.ReserveGas(context.Background(), 900, 0)
	require.NoError(t, err)

	_, _, err = m.ReserveGas(context.Background(), 200, 0)
	require.ErrorIs(t, err, ErrDailyCapExceeded)
}

func TestExecuteTransactionRejectsCoinMismatch(t *testing.T) {
	fs := newFakeStorage()
	require.NoError(t, fs.AddNewCoins(context.Background(), []types.GasCoin{
		{Balance: 500, Ref: types.ObjectRef{ID: "0x1", Version: 1, Digest: "d1"}},
	}))
	m := newTestManager(fs)
	id, _, err := m.ReserveGas(context.Background(), 100, 0)
	require.NoError(t, err)

	err = m.ExecuteTransaction(context.Background(), id, []string{"0xwrong"}, func(ctx context.Context, coins []types.GasCoin) error {
		t.Fatal("exec must not run on a coin mismatch")
		return nil
	})
	require.ErrorIs(t, err, ErrCoinMismatch)
}

func TestExecuteTransactionLeavesReservationOnNetworkError(t *testing.T) {
	fs := newFakeStorage()
	require.NoError(t, fs.AddNewCoins(context.Background(), []types.GasCoin{
		{Balance: 500, Ref: types.ObjectRef{ID: "0x1", Version: 1, Digest: "d1"}},
	}))
	m := newTestManager(fs)
	id, coins, err := m.ReserveGas(context.Background(), 100, 10_000)
	require.NoError(t, err)

	ids := make([]string, len(coins))
	for i, c := range coins {
		ids[i] = c.Ref.ID
	}

	err = m.ExecuteTransaction(context.Background(), id, ids, func(ctx context.Context, coins []types.GasCoin) error {
		return context.DeadlineExceeded
	})
	require.Error(t, err)

	fs.mu.Lock()
	_, stillReserved := fs.reservations[id]
	fs.mu.Unlock()
	require.True(t, stillReserved, "a failed execution must leave the reservation intact for expiry")
}

func TestExecuteTransactionSucceeds(t *testing.T) {
	fs := newFakeStorage()
	require.NoError(t, fs.AddNewCoins(context.Background(), []types.GasCoin{
		{Balance: 500, Ref: types.ObjectRef{ID: "0x1", Version: 1, Digest: "d1"}},
	}))
	m := newTestManager(fs)
	id, coins, err := m.ReserveGas(context.Background(), 100, 10_000)
	require.NoError(t, err)

	ids := make([]string, len(coins))
	for i, c := range coins {
		ids[i] = c.Ref.ID
	}

	ran := false
	err = m.ExecuteTransaction(context.Background(), id, ids, func(ctx context.Context, coins []types.GasCoin) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	require.True(t, ran)
}

func TestRunExpirySweeperReclaimsExpiredCoins(t *testing.T) {
	fs := newFakeStorage()
	require.NoError(t, fs.AddNewCoins(context.Background(), []types.GasCoin{
		{Balance: 500, Ref: types.ObjectRef{ID: "0x1", Version: 1, Digest: "d1"}},
	}))
	m := newTestManager(fs)
	_, _, err := m.ReserveGas(context.Background(), 100, 1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go m.RunExpirySweeper(ctx)
	defer cancel()

	require.Eventually(t, func() bool {
		count, _ := fs.GetAvailableCoinCount(context.Background())
		return count == 1
	}, time.Second, 10*time.Millisecond)
}
