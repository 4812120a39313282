package initializer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iotaledger/gas-station/gasstation/iotaclient"
	"github.com/iotaledger/gas-station/gasstation/storage"
	"github.com/iotaledger/gas-station/gasstation/types"
)

// memStorage is a minimal in-memory storage.Storage for initializer tests.
type memStorage struct {
	mu          sync.Mutex
	pool        []types.GasCoin
	initialized bool
	kv          map[string][]byte
	initLocked  bool
}

func newMemStorage() *memStorage {
	return &memStorage{kv: make(map[string][]byte)}
}

func (m *memStorage) SetData(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kv[key] = value
	return nil
}
func (m *memStorage) GetData(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.kv[key], nil
}
func (m *memStorage) ReserveGasCoins(ctx context.Context, targetBudget uint64, reserveDurationMs uint64) (types.ReservationID, []types.GasCoin, error) {
	return 0, nil, nil
}
func (m *memStorage) ReadyForExecution(ctx context.Context, id types.ReservationID) error { return nil }
func (m *memStorage) AddNewCoins(ctx context.Context, coins []types.GasCoin) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pool = append(m.pool, coins...)
	m.initialized = true
	return nil
}
func (m *memStorage) ExpireCoins(ctx context.Context, nowMs int64) ([]string, error) { return nil, nil }
func (m *memStorage) InitCoinStatsAtStartup(ctx context.Context) (uint64, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return uint64(len(m.pool)), types.TotalBalance(m.pool), nil
}
func (m *memStorage) IsInitialized(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initialized, nil
}
func (m *memStorage) AcquireInitLock(ctx context.Context, durationSec uint64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.initLocked {
		return false, nil
	}
	m.initLocked = true
	return true, nil
}
func (m *memStorage) ReleaseInitLock(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initLocked = false
	return nil
}
func (m *memStorage) AcquireMaintenanceLock(ctx context.Context, durationSec uint64) (bool, error) {
	return true, nil
}
func (m *memStorage) ReleaseMaintenanceLock(ctx context.Context) error { return nil }
func (m *memStorage) IsMaintenanceMode(ctx context.Context) (bool, error) { return false, nil }
func (m *memStorage) CleanUpCoinRegistry(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pool = nil
	m.initialized = false
	return nil
}
func (m *memStorage) GetAvailableCoinCount(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return uint64(len(m.pool)), nil
}
func (m *memStorage) GetAvailableCoinTotalBalance(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return types.TotalBalance(m.pool), nil
}
func (m *memStorage) CheckHealth(ctx context.Context) error { return nil }

var _ storage.Storage = (*memStorage)(nil)

type stubSigner struct{ address string }

func (s *stubSigner) Sign(ctx context.Context, txBytes []byte) ([]byte, error) { return []byte("sig"), nil }
func (s *stubSigner) SponsorAddress() string                                   { return s.address }

func TestSplitRecursivelyLeavesSmallCoinUntouched(t *testing.T) {
	env := &CoinSplitEnv{TargetInitBalance: 100, GasCostPerObject: 1}
	coin := types.GasCoin{Balance: 150, Ref: types.ObjectRef{ID: "0x1", Version: 1, Digest: "d"}}

	result, err := env.SplitRecursively(context.Background(), coin)
	require.NoError(t, err)
	require.Equal(t, []types.GasCoin{coin}, result)
}

func TestSplitRecursivelySplitsOversizedCoin(t *testing.T) {
	fake := iotaclient.NewFake()
	fake.ExecuteFunc = func(ctx context.Context, txBytes []byte, signature []byte) (iotaclient.TxEffects, error) {
		return iotaclient.TxEffects{
			Success: true,
			GasUsed: 0,
			CreatedRefs: []types.ObjectRef{
				{ID: "0x2", Version: 1, Digest: "d2"},
				{ID: "0x3", Version: 1, Digest: "d3"},
			},
			MutatedRefs: []types.ObjectRef{
				{ID: "0x1", Version: 2, Digest: "d1v2"},
			},
		}, nil
	}

	env := &CoinSplitEnv{
		Client:            fake,
		Signer:            &stubSigner{address: "0xsponsor"},
		TargetInitBalance: 100,
		GasCostPerObject:  1,
	}
	coin := types.GasCoin{Balance: 30_000, Ref: types.ObjectRef{ID: "0x1", Version: 1, Digest: "d1"}}

	result, err := env.SplitRecursively(context.Background(), coin)
	require.NoError(t, err)
	require.NotEmpty(t, result)
}

func TestSplitOnceRefusesWhenTargetBalanceTooSmall(t *testing.T) {
	env := &CoinSplitEnv{
		Client:            iotaclient.NewFake(),
		Signer:            &stubSigner{},
		TargetInitBalance: 10,
		GasCostPerObject:  1000,
	}
	coin := types.GasCoin{Balance: 30_000, Ref: types.ObjectRef{ID: "0x1", Version: 1, Digest: "d1"}}
	_, err := env.splitOnce(context.Background(), coin)
	require.Error(t, err)
}

func TestRescanTriggerIsNonBlockingAndBounded(t *testing.T) {
	tr := newRescanTrigger()
	for i := 0; i < rescanTriggerCapacity+10; i++ {
		tr.Trigger()
	}
	count := 0
	for {
		select {
		case <-tr.C():
			count++
		default:
			require.Equal(t, rescanTriggerCapacity, count)
			return
		}
	}
}

func TestInitializerRunOnceFillsPoolFromOwnedCoins(t *testing.T) {
	store := newMemStorage()
	fake := iotaclient.NewFake()
	fake.GasCostPerObject = 1
	fake.OwnedCoins["0xsponsor"] = []types.GasCoin{
		{Balance: 100, Ref: types.ObjectRef{ID: "0x1", Version: 1, Digest: "d1"}},
		{Balance: 200, Ref: types.ObjectRef{ID: "0x2", Version: 1, Digest: "d2"}},
	}

	init := New(store, fake, &stubSigner{address: "0xsponsor"}, Options{
		SponsorAddress:    "0xsponsor",
		TargetInitBalance: 100,
		RefreshInterval:   time.Hour,
	})

	err := init.runOnce(context.Background(), true, true)
	require.NoError(t, err)

	count, err := store.GetAvailableCoinCount(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 2, count)
}

func TestInitializerRefusesColdParamChangeWithoutAllowReinit(t *testing.T) {
	store := newMemStorage()
	require.NoError(t, store.AddNewCoins(context.Background(), []types.GasCoin{
		{Balance: 100, Ref: types.ObjectRef{ID: "0x1", Version: 1, Digest: "d1"}},
	}))
	cold := struct{ TargetInitBalance uint64 }{TargetInitBalance: 50}
	_ = cold

	// Persist a cold-params record with a different target balance so the
	// next Start() call observes a change.
	require.NoError(t, store.SetData(context.Background(), "cold_params", []byte(`{"target_init_balance":50}`)))

	fake := iotaclient.NewFake()
	init := New(store, fake, &stubSigner{address: "0xsponsor"}, Options{
		SponsorAddress:    "0xsponsor",
		TargetInitBalance: 100,
		RefreshInterval:   time.Hour,
		IgnoreLocks:       true,
	})

	err := init.Start(context.Background())
	require.Error(t, err)
}
