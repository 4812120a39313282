package initializer

import (
	"context"
	"fmt"

	"github.com/iotaledger/gas-station/gasstation/iotaclient"
	"github.com/iotaledger/gas-station/gasstation/retry"
	"github.com/iotaledger/gas-station/gasstation/signer"
	"github.com/iotaledger/gas-station/gasstation/types"
)

// NewCoinBalanceFactorThreshold is the multiple of target_init_balance a
// coin's balance must exceed before a Refresh pass bothers fetching it for
// splitting at all.
const NewCoinBalanceFactorThreshold = 200

// maxSplitFanOut bounds how many child coins a single pay::split_n call
// produces, so a single oversized coin is divided across several split
// transactions instead of one unbounded call.
const maxSplitFanOut = 2000

// networkRetryAttempts bounds the number of attempts to execute a single
// split transaction before giving up on that coin for this rescan.
const networkRetryAttempts = 10

// CoinSplitEnv carries the collaborators and parameters a coin split needs.
type CoinSplitEnv struct {
	Client            iotaclient.NetworkClient
	Signer            signer.TxSigner
	TargetInitBalance uint64
	GasCostPerObject  uint64
}

// SplitRecursively breaks coin down into pieces near TargetInitBalance,
// re-queuing any child still above the threshold so a single huge coin
// eventually becomes many appropriately sized ones. Implemented
// iteratively over an explicit queue rather than true recursion, since a
// sponsor coin's balance is bounded only by total ledger supply.
func (e *CoinSplitEnv) SplitRecursively(ctx context.Context, coin types.GasCoin) ([]types.GasCoin, error) {
	var result []types.GasCoin
	queue := []types.GasCoin{coin}

	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]

		if !e.needsSplit(c) {
			result = append(result, c)
			continue
		}

		children, err := e.splitOnce(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("splitting coin %s: %w", c.Ref.ID, err)
		}
		queue = append(queue, children...)
	}

	return result, nil
}

// needsSplit decides whether a single coin is still worth dividing further.
// This is distinct from the pass-level fetch threshold
// (TargetInitBalance * NewCoinBalanceFactorThreshold) used to decide which
// on-chain coins are worth looking at in the first place: a coin just above
// (gas_cost_per_object + target_init_balance) * 2 is still too big to keep
// as-is, even during a Refresh pass that only fetched coins already well
// above the pool's target size.
func (e *CoinSplitEnv) needsSplit(c types.GasCoin) bool {
	return c.Balance > (e.GasCostPerObject+e.TargetInitBalance)*2
}

// splitOnce issues one pay::split_n transaction dividing c into up to
// maxSplitFanOut pieces of roughly TargetInitBalance each, keeping the
// remainder in the original (mutated) coin. The piece count also accounts
// for the gas cost of creating each new object, so a split never produces
// more pieces than the coin can actually afford to pay for.
func (e *CoinSplitEnv) splitOnce(ctx context.Context, c types.GasCoin) ([]types.GasCoin, error) {
	// target_init_balance * 99 > gas_cost_per_object guards against a split
	// whose gas cost would eat a meaningful fraction of each new coin.
	if e.TargetInitBalance*99 <= e.GasCostPerObject {
		return nil, fmt.Errorf("target_init_balance too small relative to gas_cost_per_object (%d vs %d): refusing to split", e.TargetInitBalance, e.GasCostPerObject)
	}

	n := c.Balance / (e.GasCostPerObject + e.TargetInitBalance)
	if n < 2 {
		return []types.GasCoin{c}, nil
	}
	if n > maxSplitFanOut {
		n = maxSplitFanOut
	}

	txBytes := buildSplitTx(c, n, e.TargetInitBalance)

	var signature []byte
	if err := retry.Forever(ctx, "sign split_n transaction", func() error {
		sig, err := e.Signer.Sign(ctx, txBytes)
		if err != nil {
			return err
		}
		signature = sig
		return nil
	}); err != nil {
		return nil, err
	}

	var effects iotaclient.TxEffects
	current := c
	err := retry.Bounded(ctx, networkRetryAttempts, func() error {
		eff, err := e.Client.ExecuteTransaction(ctx, txBytes, signature)
		if err != nil {
			return err
		}
		if !eff.Success {
			return fmt.Errorf("split_n execution failed: %s", eff.ErrorReason)
		}
		effects = eff
		return nil
	}, func() {
		refreshed, err := e.Client.GetLatestGasObjects(ctx, []string{current.Ref.ID})
		if err == nil && len(refreshed) == 1 {
			current = refreshed[0]
			txBytes = buildSplitTx(current, n, e.TargetInitBalance)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("executing split_n after %d attempts: %w", networkRetryAttempts, err)
	}

	budget := e.GasCostPerObject * n
	newBalance := (current.Balance - budget) / n

	children := make([]types.GasCoin, 0, len(effects.CreatedRefs)+1)
	for _, ref := range effects.CreatedRefs {
		children = append(children, types.GasCoin{Balance: newBalance, Ref: ref})
	}
	for _, ref := range effects.MutatedRefs {
		if ref.ID == current.Ref.ID {
			remaining := current.Balance - newBalance*uint64(len(effects.CreatedRefs)) - effects.GasUsed
			children = append(children, types.GasCoin{Balance: remaining, Ref: ref})
		}
	}
	return children, nil
}

// buildSplitTx is a placeholder for constructing a real pay::split_n
// programmable transaction; transaction construction and signing payload
// format are out of scope.
func buildSplitTx(c types.GasCoin, n uint64, targetBalance uint64) []byte {
	return []byte(fmt.Sprintf("split_n(coin=%s,n=%d,amount=%d)", c.Ref.ID, n, targetBalance))
}
