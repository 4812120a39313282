package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iotaledger/gas-station/gasstation/accesscontroller"
	"github.com/iotaledger/gas-station/gasstation/iotaclient"
	"github.com/iotaledger/gas-station/gasstation/pool"
	"github.com/iotaledger/gas-station/gasstation/storage"
	"github.com/iotaledger/gas-station/gasstation/types"
	"github.com/iotaledger/gas-station/internal/metrics"
)

type memStorage struct {
	mu   sync.Mutex
	pool []types.GasCoin
	kv   map[string][]byte
}

func newMemStorage(coins []types.GasCoin) *memStorage {
	return &memStorage{pool: coins, kv: make(map[string][]byte)}
}

func (m *memStorage) SetData(ctx context.Context, key string, value []byte) error {
	m.kv[key] = value
	return nil
}
func (m *memStorage) GetData(ctx context.Context, key string) ([]byte, error) { return m.kv[key], nil }
func (m *memStorage) ReserveGasCoins(ctx context.Context, targetBudget uint64, reserveDurationMs uint64) (types.ReservationID, []types.GasCoin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum uint64
	var n int
	for i, c := range m.pool {
		sum += c.Balance
		n = i + 1
		if sum >= targetBudget {
			break
		}
	}
	if sum < targetBudget {
		return 0, nil, storage.ErrPoolInsufficient
	}
	selected := append([]types.GasCoin{}, m.pool[:n]...)
	m.pool = m.pool[n:]
	return 1, selected, nil
}
func (m *memStorage) ReadyForExecution(ctx context.Context, id types.ReservationID) error { return nil }
func (m *memStorage) AddNewCoins(ctx context.Context, coins []types.GasCoin) error         { return nil }
func (m *memStorage) ExpireCoins(ctx context.Context, nowMs int64) ([]string, error)       { return nil, nil }
func (m *memStorage) InitCoinStatsAtStartup(ctx context.Context) (uint64, uint64, error) {
	return 0, 0, nil
}
func (m *memStorage) IsInitialized(ctx context.Context) (bool, error)                    { return true, nil }
func (m *memStorage) AcquireInitLock(ctx context.Context, durationSec uint64) (bool, error) { return true, nil }
func (m *memStorage) ReleaseInitLock(ctx context.Context) error                          { return nil }
func (m *memStorage) AcquireMaintenanceLock(ctx context.Context, durationSec uint64) (bool, error) {
	return true, nil
}
func (m *memStorage) ReleaseMaintenanceLock(ctx context.Context) error    { return nil }
func (m *memStorage) IsMaintenanceMode(ctx context.Context) (bool, error) { return false, nil }
func (m *memStorage) CleanUpCoinRegistry(ctx context.Context) error       { return nil }
func (m *memStorage) GetAvailableCoinCount(ctx context.Context) (uint64, error) {
	return uint64(len(m.pool)), nil
}
func (m *memStorage) GetAvailableCoinTotalBalance(ctx context.Context) (uint64, error) {
	return types.TotalBalance(m.pool), nil
}
func (m *memStorage) CheckHealth(ctx context.Context) error { return nil }

var _ storage.Storage = (*memStorage)(nil)

type stubSigner struct{}

func (stubSigner) Sign(ctx context.Context, txBytes []byte) ([]byte, error) { return []byte("sig"), nil }
func (stubSigner) SponsorAddress() string                                  { return "0xsponsor" }

func newTestServer(coins []types.GasCoin) *Server {
	store := newMemStorage(coins)
	mgr := pool.NewManager(store, 1000, 100000, time.Second, metrics.NewForTesting(), "test")
	fake := iotaclient.NewFake()
	checker, _ := accesscontroller.NewCountByAddressLimiter(100, 1000)
	return NewServer(mgr, fake, stubSigner{}, checker)
}

func TestHandleReserveGasSuccess(t *testing.T) {
	s := newTestServer([]types.GasCoin{
		{Balance: 500, Ref: types.ObjectRef{ID: "0x1", Version: 1, Digest: "d1"}},
	})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	body, _ := json.Marshal(ReserveGasRequest{GasBudget: 100})
	resp, err := http.Post(srv.URL+"/v1/reserve_gas", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var parsed GasStationResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	require.Empty(t, parsed.Error)
	require.NotEmpty(t, parsed.RequestID)
}

func TestHandleReserveGasInvalidBudget(t *testing.T) {
	s := newTestServer(nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	body, _ := json.Marshal(ReserveGasRequest{GasBudget: 0})
	resp, err := http.Post(srv.URL+"/v1/reserve_gas", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleReserveGasPoolInsufficient(t *testing.T) {
	s := newTestServer([]types.GasCoin{
		{Balance: 10, Ref: types.ObjectRef{ID: "0x1", Version: 1, Digest: "d1"}},
	})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	body, _ := json.Marshal(ReserveGasRequest{GasBudget: 100})
	resp, err := http.Post(srv.URL+"/v1/reserve_gas", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
