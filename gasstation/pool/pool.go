// Package pool implements the gas station's coin pool manager: budget
// validation, reservation, execution hand-off, and the background sweeper
// that returns expired reservations to the available pool.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/iotaledger/gas-station/gasstation/storage"
	"github.com/iotaledger/gas-station/gasstation/types"
	"github.com/iotaledger/gas-station/internal/gslog"
	"github.com/iotaledger/gas-station/internal/metrics"
)

var log = gslog.New("pool")

// ErrInvalidBudget is returned when a requested gas budget is zero or
// exceeds the configured per-request ceiling.
var ErrInvalidBudget = errors.New("requested gas budget is out of range")

// ErrDailyCapExceeded is returned when granting the requested budget would
// push the current UTC day's usage above the configured cap.
var ErrDailyCapExceeded = errors.New("daily gas usage cap exceeded")

// ErrCoinMismatch is returned when a submitted transaction's declared gas
// payment does not exactly match the reservation it claims to execute.
var ErrCoinMismatch = errors.New("transaction gas payment does not match reservation")

const defaultReservationDurationMs = 60_000

// Manager mediates all reservation/execution traffic against storage,
// enforcing budget and daily-cap policy before ever touching the store.
type Manager struct {
	store            storage.Storage
	maxGasBudget     uint64
	dailyGasUsageCap uint64
	sweepInterval    time.Duration

	mu             sync.Mutex
	reservations   map[types.ReservationID][]types.GasCoin
	usageWindowDay string
	usageToday     uint64

	sm             *metrics.StorageMetrics
	namespaceLabel string
}

// NewManager constructs a Manager. sweepInterval should be <= 1s so a
// reservation's expiry is observed promptly.
// namespaceLabel is attached to the pool gauges so a single metrics
// endpoint can serve more than one sponsor namespace.
func NewManager(store storage.Storage, maxGasBudget, dailyGasUsageCap uint64, sweepInterval time.Duration, sm *metrics.StorageMetrics, namespaceLabel string) *Manager {
	if sweepInterval <= 0 {
		sweepInterval = time.Second
	}
	return &Manager{
		store:            store,
		maxGasBudget:     maxGasBudget,
		dailyGasUsageCap: dailyGasUsageCap,
		sweepInterval:    sweepInterval,
		reservations:     make(map[types.ReservationID][]types.GasCoin),
		sm:               sm,
		namespaceLabel:   namespaceLabel,
	}
}

// ReserveGas validates budget and the daily cap, then reserves coins from
// storage for reserveDurationMs (defaulting to 60s when zero).
func (m *Manager) ReserveGas(ctx context.Context, budget uint64, reserveDurationMs uint64) (types.ReservationID, []types.GasCoin, error) {
	if budget == 0 || budget > m.maxGasBudget {
		return 0, nil, fmt.Errorf("%w: budget=%d max=%d", ErrInvalidBudget, budget, m.maxGasBudget)
	}
	if reserveDurationMs == 0 {
		reserveDurationMs = defaultReservationDurationMs
	}

	if err := m.checkAndReserveDailyCap(budget); err != nil {
		return 0, nil, err
	}

	if m.sm != nil {
		m.sm.NumReserveGasCoinsRequests.Inc()
	}

	id, coins, err := m.store.ReserveGasCoins(ctx, budget, reserveDurationMs)
	if err != nil {
		m.releaseDailyCap(budget)
		return 0, nil, err
	}

	m.mu.Lock()
	m.reservations[id] = coins
	m.mu.Unlock()

	if m.sm != nil {
		m.sm.NumSuccessfulReserveGasCoinsRequests.Inc()
	}
	m.refreshPoolGauges(ctx)
	log.Debug("reserved gas coins", "reservation_id", id, "budget", budget, "coin_count", len(coins))
	return id, coins, nil
}

// ExecuteTransaction verifies that gasPaymentIDs exactly matches the
// reservation's held coin set, submits the transaction via exec, and only
// then marks the reservation ready for execution (releasing it from the
// expiration queue). A network error from exec is never translated into a
// ReadyForExecution call: the reservation is left to expire naturally so
// its coins return to the pool.
func (m *Manager) ExecuteTransaction(ctx context.Context, id types.ReservationID, gasPaymentIDs []string, exec func(ctx context.Context, coins []types.GasCoin) error) error {
	m.mu.Lock()
	coins, ok := m.reservations[id]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown reservation %d", id)
	}

	if !sameIDSet(coins, gasPaymentIDs) {
		return ErrCoinMismatch
	}

	if m.sm != nil {
		m.sm.NumReadyForExecutionRequests.Inc()
	}

	if err := exec(ctx, coins); err != nil {
		return fmt.Errorf("executing transaction: %w", err)
	}

	if err := m.store.ReadyForExecution(ctx, id); err != nil {
		return fmt.Errorf("marking reservation ready: %w", err)
	}

	m.mu.Lock()
	delete(m.reservations, id)
	m.mu.Unlock()

	if m.sm != nil {
		m.sm.NumSuccessfulReadyForExecutionReqs.Inc()
	}
	log.Debug("executed reservation", "reservation_id", id)
	return nil
}

func sameIDSet(coins []types.GasCoin, ids []string) bool {
	if len(coins) != len(ids) {
		return false
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
	}
	for _, c := range coins {
		if !seen[c.Ref.ID] {
			return false
		}
	}
	return true
}

func (m *Manager) checkAndReserveDailyCap(budget uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	today := time.Now().UTC().Format("2006-01-02")
	if m.usageWindowDay != today {
		m.usageWindowDay = today
		m.usageToday = 0
	}
	if m.usageToday+budget > m.dailyGasUsageCap {
		return fmt.Errorf("%w: used=%d requested=%d cap=%d", ErrDailyCapExceeded, m.usageToday, budget, m.dailyGasUsageCap)
	}
	m.usageToday += budget
	return nil
}

func (m *Manager) releaseDailyCap(budget uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.usageToday >= budget {
		m.usageToday -= budget
	} else {
		m.usageToday = 0
	}
}

// RunExpirySweeper runs until ctx is cancelled, periodically reclaiming
// expired reservations back into the available pool.
func (m *Manager) RunExpirySweeper(ctx context.Context) {
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweepOnce(ctx)
		}
	}
}

func (m *Manager) sweepOnce(ctx context.Context) {
	if m.sm != nil {
		m.sm.NumExpireCoinsRequests.Inc()
	}

	nowMs := time.Now().UnixNano() / int64(time.Millisecond)
	released, err := m.store.ExpireCoins(ctx, nowMs)
	if err != nil {
		log.Error("expiring reservations failed", "err", err)
		return
	}
	if m.sm != nil {
		m.sm.NumSuccessfulExpireCoinsRequests.Inc()
	}
	if len(released) == 0 {
		return
	}
	releasedIDs := make(map[string]bool, len(released))
	for _, id := range released {
		releasedIDs[id] = true
	}
	m.mu.Lock()
	for resID, coins := range m.reservations {
		for _, c := range coins {
			if releasedIDs[c.Ref.ID] {
				delete(m.reservations, resID)
				break
			}
		}
	}
	m.mu.Unlock()
	m.refreshPoolGauges(ctx)
	log.Info("reclaimed expired reservations", "released_object_count", len(released))
}

// refreshPoolGauges re-reads the aggregate pool counters from storage and
// publishes them, the way cmd/kcn/main.go polls chain state into gauges.
func (m *Manager) refreshPoolGauges(ctx context.Context) {
	if m.sm == nil {
		return
	}
	count, err := m.store.GetAvailableCoinCount(ctx)
	if err != nil {
		log.Error("reading available coin count for metrics", "err", err)
		return
	}
	balance, err := m.store.GetAvailableCoinTotalBalance(ctx)
	if err != nil {
		log.Error("reading available coin total balance for metrics", "err", err)
		return
	}
	m.sm.AvailableGasCoinCount.WithLabelValues(m.namespaceLabel).Set(float64(count))
	m.sm.AvailableGasCoinTotalBalance.WithLabelValues(m.namespaceLabel).Set(float64(balance))
}
