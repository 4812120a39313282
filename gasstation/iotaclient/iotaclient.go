// Package iotaclient defines the gas station's contract with the UTXO
// ledger's full node: the small slice of RPC calls the coin initializer
// and pool manager need to observe and move gas coins, shaped as a narrow
// capability interface so a concrete client or a test fake can both
// satisfy it.
package iotaclient

import (
	"context"

	"github.com/iotaledger/gas-station/gasstation/types"
)

// NetworkClient is the full set of on-chain operations the gas station
// depends on. Transaction construction, signing, and consensus protocol
// details are out of scope; this package only shapes the calls the
// domain logic makes against whatever full node is configured.
type NetworkClient interface {
	// GetAllOwnedCoinsAboveThreshold lists every gas coin owned by owner
	// whose balance is at least minBalance, used by the initializer's
	// full-registry rescan.
	GetAllOwnedCoinsAboveThreshold(ctx context.Context, owner string, minBalance uint64) ([]types.GasCoin, error)

	// GetReferenceGasPrice returns the network's current reference gas
	// price, used to calibrate the per-object gas cost estimate.
	GetReferenceGasPrice(ctx context.Context) (uint64, error)

	// CalibrateGasCostPerObject estimates the gas cost of creating one
	// object in a pay::split_n transaction at the given reference gas
	// price, used by the splitter's safety guard, fan-out and budget.
	CalibrateGasCostPerObject(ctx context.Context, referenceGasPrice uint64) (uint64, error)

	// ExecuteTransaction submits a signed transaction and blocks until the
	// full node reports a final effects status.
	ExecuteTransaction(ctx context.Context, txBytes []byte, signature []byte) (TxEffects, error)

	// GetLatestGasObjects refetches the current version/digest for the
	// given object ids, used to recover from a stale-object-version error
	// during a bounded retry.
	GetLatestGasObjects(ctx context.Context, ids []string) ([]types.GasCoin, error)

	// GetAggregateCoinStats returns the total coin count and balance for
	// owner directly from the ledger, the independent view the
	// consistency checker compares against the storage aggregates.
	GetAggregateCoinStats(ctx context.Context, owner string) (coinCount uint64, totalBalance uint64, err error)
}

// TxEffects is the minimal execution result the gas station inspects:
// whether the transaction succeeded and which gas coin objects it
// consumed or produced.
type TxEffects struct {
	Success     bool
	ErrorReason string
	GasUsed     uint64
	MutatedRefs []types.ObjectRef
	CreatedRefs []types.ObjectRef
}
