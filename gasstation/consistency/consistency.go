// Package consistency implements the gas station's startup consistency
// check: a pure divergence calculation between the two
// independent views of pool size the gas station keeps (the storage
// aggregate counters and a full on-chain coin-owner query). It never
// blocks an operation — divergence is logged as a warning for an operator
// to investigate.
package consistency

import (
	"fmt"
	"math"

	"github.com/iotaledger/gas-station/internal/gslog"
)

var log = gslog.New("consistency")

// DefaultDivergenceThresholdPercent is the default warn threshold for both
// coin-count and total-balance divergence (default: 20%).
const DefaultDivergenceThresholdPercent = 20.0

// Thresholds configures the warn thresholds for each metric independently.
type Thresholds struct {
	CoinCountPercent   float64
	TotalBalancePercent float64
}

// DefaultThresholds returns the default 20%/20% divergence thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		CoinCountPercent:    DefaultDivergenceThresholdPercent,
		TotalBalancePercent: DefaultDivergenceThresholdPercent,
	}
}

// Result is the outcome of one consistency check.
type Result struct {
	StorageCoinCount     uint64
	OnChainCoinCount     uint64
	StorageTotalBalance  uint64
	OnChainTotalBalance  uint64
	CoinCountDivergence  float64
	BalanceDivergence    float64
	CoinCountExceeds     bool
	BalanceExceeds       bool
}

// CalculateDivergencePercent computes |a-b| / max(a,b) * 100, returning 0
// when both values are 0 (nothing to diverge from).
func CalculateDivergencePercent(a, b uint64) float64 {
	if a == 0 && b == 0 {
		return 0
	}
	max := a
	if b > max {
		max = b
	}
	var diff uint64
	if a > b {
		diff = a - b
	} else {
		diff = b - a
	}
	return float64(diff) / float64(max) * 100
}

// Validate compares the storage aggregates against an independently
// observed on-chain view and flags any metric whose divergence exceeds
// its threshold.
func Validate(storageCount, onChainCount, storageBalance, onChainBalance uint64, thresholds Thresholds) Result {
	countDiv := CalculateDivergencePercent(storageCount, onChainCount)
	balanceDiv := CalculateDivergencePercent(storageBalance, onChainBalance)
	return Result{
		StorageCoinCount:    storageCount,
		OnChainCoinCount:    onChainCount,
		StorageTotalBalance: storageBalance,
		OnChainTotalBalance: onChainBalance,
		CoinCountDivergence: countDiv,
		BalanceDivergence:   balanceDiv,
		CoinCountExceeds:    countDiv > thresholds.CoinCountPercent,
		BalanceExceeds:      balanceDiv > thresholds.TotalBalancePercent,
	}
}

// LogWarnings emits a warning log line per metric whose divergence
// exceeded its threshold. It never returns an error: this check is
// advisory only (consistency checks never block
// reservation or execution).
func (r Result) LogWarnings() {
	if r.CoinCountExceeds {
		log.Warn("coin count divergence exceeds threshold",
			"storage_count", r.StorageCoinCount,
			"on_chain_count", r.OnChainCoinCount,
			"divergence_percent", roundTo2(r.CoinCountDivergence))
	}
	if r.BalanceExceeds {
		log.Warn("total balance divergence exceeds threshold",
			"storage_balance", r.StorageTotalBalance,
			"on_chain_balance", r.OnChainTotalBalance,
			"divergence_percent", roundTo2(r.BalanceDivergence))
	}
}

func (r Result) String() string {
	return fmt.Sprintf(
		"coins: storage=%d on_chain=%d divergence=%.2f%% | balance: storage=%d on_chain=%d divergence=%.2f%%",
		r.StorageCoinCount, r.OnChainCoinCount, r.CoinCountDivergence,
		r.StorageTotalBalance, r.OnChainTotalBalance, r.BalanceDivergence,
	)
}

func roundTo2(v float64) float64 {
	return math.Round(v*100) / 100
}
