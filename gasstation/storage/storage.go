// Package storage defines the persistent store driver's contract: the
// atomic operations the coin pool manager and initializer build on. The
// interface is a "capability set" spanning —
// {reserve, ready, add, expire, locks, stats, kv} — so a fake
// implementation can back unit tests for the pool manager and initializer
// without a real Redis server.
package storage

import (
	"context"
	"errors"

	"github.com/iotaledger/gas-station/gasstation/types"
)

// ErrMaintenanceMode is returned by ReserveGasCoins when the store is
// locked for maintenance (maintenance_lock held and unexpired).
var ErrMaintenanceMode = errors.New("gas station is in maintenance mode")

// ErrPoolInsufficient is returned by ReserveGasCoins when the available
// pool cannot meet the requested budget.
var ErrPoolInsufficient = errors.New("unable to reserve gas coins for the given budget")

// SetGetStorage is the generic typed-config slot used for cold params and
// any other small piece of persisted configuration.
type SetGetStorage interface {
	SetData(ctx context.Context, key string, value []byte) error
	// GetData returns (nil, nil) if the key does not exist.
	GetData(ctx context.Context, key string) ([]byte, error)
}

// Storage is the full persistent store driver contract. Every method is a
// single atomic operation: multi-key operations run as one server-side
// script, simple reads and writes as one store command. The store
// guarantees serializability within a single call, never across calls.
type Storage interface {
	SetGetStorage

	// ReserveGasCoins selects the smallest prefix of the available pool
	// whose balances sum to at least targetBudget, reserves it for
	// reserveDurationMs, and returns the reservation id and coins.
	// Returns ErrMaintenanceMode or ErrPoolInsufficient as appropriate.
	ReserveGasCoins(ctx context.Context, targetBudget uint64, reserveDurationMs uint64) (types.ReservationID, []types.GasCoin, error)

	// ReadyForExecution drops a reservation's record and expiration-queue
	// entry. Idempotent: a missing reservation (already expired) is not
	// an error.
	ReadyForExecution(ctx context.Context, id types.ReservationID) error

	// AddNewCoins appends coins to the available pool. Idempotent on
	// (object id, version): re-adding an already-present (id, version)
	// pair has no additional effect.
	AddNewCoins(ctx context.Context, coins []types.GasCoin) error

	// ExpireCoins pops every expiration-queue entry with score <= nowMs,
	// returns the associated coins to the pool, and reports the released
	// object ids.
	ExpireCoins(ctx context.Context, nowMs int64) ([]string, error)

	// InitCoinStatsAtStartup recomputes the aggregate counters from the
	// canonical pool sequence and returns them.
	InitCoinStatsAtStartup(ctx context.Context) (coinCount uint64, totalBalance uint64, err error)

	// IsInitialized reports whether AddNewCoins has ever completed at
	// least once for this namespace.
	IsInitialized(ctx context.Context) (bool, error)

	AcquireInitLock(ctx context.Context, durationSec uint64) (bool, error)
	ReleaseInitLock(ctx context.Context) error
	AcquireMaintenanceLock(ctx context.Context, durationSec uint64) (bool, error)
	ReleaseMaintenanceLock(ctx context.Context) error
	IsMaintenanceMode(ctx context.Context) (bool, error)

	// CleanUpCoinRegistry deletes every key in the namespace except the
	// advisory-lock keys, which are kept whether or not they have expired;
	// used before a forced full rescan.
	CleanUpCoinRegistry(ctx context.Context) error

	GetAvailableCoinCount(ctx context.Context) (uint64, error)
	GetAvailableCoinTotalBalance(ctx context.Context) (uint64, error)

	// CheckHealth verifies connectivity to the underlying store.
	CheckHealth(ctx context.Context) error
}
