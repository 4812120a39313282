package iotaclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/iotaledger/gas-station/gasstation/types"
)

// Fake is an in-memory NetworkClient used by initializer and pool tests.
// It is not behind a build tag, so it stays alongside production code in
// the same package.
type Fake struct {
	mu                sync.Mutex
	OwnedCoins        map[string][]types.GasCoin
	ReferenceGasPrice uint64
	GasCostPerObject  uint64
	ExecuteFunc       func(ctx context.Context, txBytes []byte, signature []byte) (TxEffects, error)
	LatestVersions    map[string]types.GasCoin
}

func NewFake() *Fake {
	return &Fake{
		OwnedCoins:     make(map[string][]types.GasCoin),
		LatestVersions: make(map[string]types.GasCoin),
	}
}

func (f *Fake) GetAllOwnedCoinsAboveThreshold(ctx context.Context, owner string, minBalance uint64) ([]types.GasCoin, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.GasCoin
	for _, c := range f.OwnedCoins[owner] {
		if c.Balance >= minBalance {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *Fake) GetReferenceGasPrice(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReferenceGasPrice == 0 {
		return 1000, nil
	}
	return f.ReferenceGasPrice, nil
}

func (f *Fake) CalibrateGasCostPerObject(ctx context.Context, referenceGasPrice uint64) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.GasCostPerObject == 0 {
		return referenceGasPrice * 1000, nil
	}
	return f.GasCostPerObject, nil
}

func (f *Fake) ExecuteTransaction(ctx context.Context, txBytes []byte, signature []byte) (TxEffects, error) {
	if f.ExecuteFunc != nil {
		return f.ExecuteFunc(ctx, txBytes, signature)
	}
	return TxEffects{Success: true}, nil
}

func (f *Fake) GetLatestGasObjects(ctx context.Context, ids []string) ([]types.GasCoin, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]types.GasCoin, 0, len(ids))
	for _, id := range ids {
		c, ok := f.LatestVersions[id]
		if !ok {
			return nil, fmt.Errorf("unknown object %s", id)
		}
		out = append(out, c)
	}
	return out, nil
}

func (f *Fake) GetAggregateCoinStats(ctx context.Context, owner string) (uint64, uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	coins := f.OwnedCoins[owner]
	return uint64(len(coins)), types.TotalBalance(coins), nil
}

var _ NetworkClient = (*Fake)(nil)
