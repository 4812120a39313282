// Package initializer implements the gas station's coin initializer: the
// background process that keeps the available coin pool topped up from
// the sponsor's on-chain holdings, splitting oversized coins down to a
// target size. Cold-parameter changes are checked once at startup; after
// that it periodically rescans for newly funded coins.
package initializer

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/iotaledger/gas-station/gasstation/config"
	"github.com/iotaledger/gas-station/gasstation/consistency"
	"github.com/iotaledger/gas-station/gasstation/iotaclient"
	"github.com/iotaledger/gas-station/gasstation/signer"
	"github.com/iotaledger/gas-station/gasstation/storage"
	"github.com/iotaledger/gas-station/gasstation/types"
	"github.com/iotaledger/gas-station/internal/gslog"
)

var log = gslog.New("initializer")

// MaxInitDurationSec bounds how long a single runOnceLocked pass holds the
// init lock before another instance is allowed to consider it abandoned.
const MaxInitDurationSec = 12 * 60 * 60

// MaxMaintenanceDurationSec bounds how long a registry clean-up/rescan may
// hold the store in maintenance mode.
const MaxMaintenanceDurationSec = 12 * 60 * 60

// maxCoinsPersistChunk bounds how many coins a single AddNewCoins call
// carries, so a rescan that splits a very large sponsor balance doesn't
// send one unbounded Redis command.
const maxCoinsPersistChunk = 5000

// Options configures one Initializer instance.
type Options struct {
	SponsorAddress     string
	TargetInitBalance  uint64
	RefreshInterval    time.Duration
	IgnoreLocks        bool
	AllowReinit        bool
	DeleteCoinRegistry bool
}

// Initializer owns the lifecycle of keeping the coin pool stocked: it
// acquires the cross-instance init lock, detects cold-parameter changes,
// runs a full or incremental rescan, and then idles until the next
// scheduled refresh or an externally triggered rescan.
type Initializer struct {
	store   storage.Storage
	client  iotaclient.NetworkClient
	signer  signer.TxSigner
	opts    Options
	trigger *RescanTrigger
}

func New(store storage.Storage, client iotaclient.NetworkClient, signer signer.TxSigner, opts Options) *Initializer {
	return &Initializer{
		store:   store,
		client:  client,
		signer:  signer,
		opts:    opts,
		trigger: newRescanTrigger(),
	}
}

// TriggerRescan requests an out-of-band refresh pass, e.g. after the
// ingress observes a change in the sponsor's on-chain holdings. The pass
// does not re-check cold parameters.
func (init *Initializer) TriggerRescan() {
	init.trigger.Trigger()
}

// Start runs the consistency auditor once (warn only), then either forces a
// full rescan (cold-param change with --allow-reinit, or --delete-coin-registry)
// or, if the registry has never been initialized, runs one plain
// initialization pass. Either way it then blocks running the
// periodic/triggered rescan loop until ctx is cancelled.
func (init *Initializer) Start(ctx context.Context) error {
	init.runConsistencyCheck(ctx)

	forceFullRescan, initialized, err := init.shouldForceFullRescan(ctx)
	if err != nil {
		return err
	}

	switch {
	case forceFullRescan:
		if err := init.runForcedFullRescan(ctx); err != nil {
			return fmt.Errorf("forced full rescan: %w", err)
		}
	case !initialized:
		if err := init.runOnceLocked(ctx, false, true); err != nil {
			return fmt.Errorf("initial rescan: %w", err)
		}
	}

	init.runLoop(ctx)
	return nil
}

// runForcedFullRescan wraps clean-up + stats reset + one pass in the
// cross-instance maintenance lock: while held, reserve_gas_coins observes
// the store as being in maintenance mode, so clients are not handed coins
// mid-wipe. Any error during the pass still releases the lock.
func (init *Initializer) runForcedFullRescan(ctx context.Context) error {
	if !init.opts.IgnoreLocks {
		acquired, err := init.store.AcquireMaintenanceLock(ctx, MaxMaintenanceDurationSec)
		if err != nil {
			return errors.Wrap(err, "acquiring maintenance lock")
		}
		if !acquired {
			return errors.New("another instance holds the maintenance lock; pass --ignore-locks to override")
		}
		defer func() {
			if err := init.store.ReleaseMaintenanceLock(context.Background()); err != nil {
				log.Error("releasing maintenance lock", "err", err)
			}
		}()
	}

	if err := init.store.CleanUpCoinRegistry(ctx); err != nil {
		return fmt.Errorf("cleaning up coin registry: %w", err)
	}
	if _, _, err := init.store.InitCoinStatsAtStartup(ctx); err != nil {
		return fmt.Errorf("resetting coin stats: %w", err)
	}
	return init.runOnceLocked(ctx, true, true)
}

// runOnceLocked acquires init_lock around a single pass, matching the
// per-pass "acquire init_lock ... release init_lock" contract: the lock
// serializes splitting across instances for the duration of one pass only,
// not for the initializer's whole lifetime.
func (init *Initializer) runOnceLocked(ctx context.Context, forceFullRescan bool, isInitPass bool) error {
	if !init.opts.IgnoreLocks {
		acquired, err := init.store.AcquireInitLock(ctx, MaxInitDurationSec)
		if err != nil {
			return errors.Wrap(err, "acquiring init lock")
		}
		if !acquired {
			return errors.New("another instance holds the init lock; pass --ignore-locks to override")
		}
		defer func() {
			if err := init.store.ReleaseInitLock(context.Background()); err != nil {
				log.Error("releasing init lock", "err", err)
			}
		}()
	}
	return init.runOnce(ctx, forceFullRescan, isInitPass)
}

// runConsistencyCheck compares the storage aggregates against the
// sponsor's on-chain coin set and logs a warning if they diverge past the
// default thresholds. It never returns an error: this check is advisory
// only.
func (init *Initializer) runConsistencyCheck(ctx context.Context) {
	storageCount, err := init.store.GetAvailableCoinCount(ctx)
	if err != nil {
		log.Warn("consistency check: reading storage coin count failed", "err", err)
		return
	}
	storageBalance, err := init.store.GetAvailableCoinTotalBalance(ctx)
	if err != nil {
		log.Warn("consistency check: reading storage total balance failed", "err", err)
		return
	}
	chainCount, chainBalance, err := init.client.GetAggregateCoinStats(ctx, init.signer.SponsorAddress())
	if err != nil {
		log.Warn("consistency check: reading on-chain aggregates failed", "err", err)
		return
	}
	result := consistency.Validate(storageCount, chainCount, storageBalance, chainBalance, consistency.DefaultThresholds())
	result.LogWarnings()
}

// shouldForceFullRescan reports whether a forced full rescan (wipe +
// maintenance lock) is required, and separately whether the registry has
// ever been initialized at all — the two conditions that gate Start's two
// mutually exclusive branches (spec steps 2 and 3).
func (init *Initializer) shouldForceFullRescan(ctx context.Context) (forceFullRescan bool, initialized bool, err error) {
	initialized, err = init.store.IsInitialized(ctx)
	if err != nil {
		return false, false, fmt.Errorf("checking initialization state: %w", err)
	}

	if init.opts.DeleteCoinRegistry {
		return true, initialized, nil
	}
	if !initialized {
		return false, false, nil
	}

	cold := config.ColdParams{TargetInitBalance: &init.opts.TargetInitBalance}
	changes, err := cold.CheckIfChanged(ctx, init.store)
	if err != nil {
		return false, initialized, fmt.Errorf("checking cold params: %w", err)
	}
	if len(changes) == 0 {
		return false, initialized, nil
	}

	if !init.opts.AllowReinit {
		return false, initialized, errors.Errorf("cold parameters changed (%v) but --allow-reinit was not set; refusing to start", changes)
	}
	log.Info("cold parameters changed, forcing full rescan", "changes", changes)
	return true, initialized, nil
}

func (init *Initializer) runLoop(ctx context.Context) {
	ticker := time.NewTicker(init.opts.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := init.runOnceLocked(ctx, false, false); err != nil {
				log.Error("scheduled rescan failed", "err", err)
			}
		case <-init.trigger.C():
			if err := init.runOnceLocked(ctx, false, false); err != nil {
				log.Error("triggered rescan failed", "err", err)
			}
		}
	}
}

// runOnce performs one pass: fetching the sponsor's current on-chain coins
// above the pass-appropriate balance threshold, splitting any oversized ones
// down to TargetInitBalance, and publishing the result to storage in bounded
// chunks. Registry wipe (for a forced full rescan) happens in the caller,
// before init_lock is even acquired for this pass. isInitPass selects the
// threshold: an Init pass considers every coin (threshold 0), while a
// Refresh pass only bothers with coins already well above TargetInitBalance.
func (init *Initializer) runOnce(ctx context.Context, forceFullRescan bool, isInitPass bool) error {
	balanceThreshold := uint64(0)
	if !isInitPass {
		balanceThreshold = init.opts.TargetInitBalance * NewCoinBalanceFactorThreshold
	}

	ownedCoins, err := init.client.GetAllOwnedCoinsAboveThreshold(ctx, init.signer.SponsorAddress(), balanceThreshold)
	if err != nil {
		return fmt.Errorf("fetching owned coins: %w", err)
	}
	if len(ownedCoins) == 0 {
		log.Info("no coins above threshold, nothing to split", "threshold", balanceThreshold, "init_pass", isInitPass)
		return nil
	}

	gasPrice, err := init.client.GetReferenceGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("fetching reference gas price: %w", err)
	}
	gasCostPerObject, err := init.client.CalibrateGasCostPerObject(ctx, gasPrice)
	if err != nil {
		return fmt.Errorf("calibrating gas cost per object: %w", err)
	}

	if init.opts.TargetInitBalance*99 <= gasCostPerObject {
		return errors.Errorf("target_init_balance (%d) is too small relative to gas_cost_per_object (%d); recommended minimum target_init_balance is %d", init.opts.TargetInitBalance, gasCostPerObject, gasCostPerObject/99+1)
	}

	env := &CoinSplitEnv{
		Client:            init.client,
		Signer:            init.signer,
		TargetInitBalance: init.opts.TargetInitBalance,
		GasCostPerObject:  gasCostPerObject,
	}

	var ready []types.GasCoin
	for _, coin := range ownedCoins {
		split, err := env.SplitRecursively(ctx, coin)
		if err != nil {
			log.Error("splitting coin failed, skipping", "coin_id", coin.Ref.ID, "err", err)
			continue
		}
		ready = append(ready, split...)
	}

	for start := 0; start < len(ready); start += maxCoinsPersistChunk {
		end := start + maxCoinsPersistChunk
		if end > len(ready) {
			end = len(ready)
		}
		if err := init.store.AddNewCoins(ctx, ready[start:end]); err != nil {
			return fmt.Errorf("adding new coins to pool: %w", err)
		}
	}

	count, total, err := init.store.InitCoinStatsAtStartup(ctx)
	if err != nil {
		return fmt.Errorf("recomputing coin stats: %w", err)
	}

	cold := config.ColdParams{TargetInitBalance: &init.opts.TargetInitBalance}
	if err := cold.SaveToStorage(ctx, init.store); err != nil {
		return fmt.Errorf("saving cold params: %w", err)
	}

	log.Info("rescan complete", "coin_count", count, "total_balance", total, "forced_full_rescan", forceFullRescan)
	return nil
}
