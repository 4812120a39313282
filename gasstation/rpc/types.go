// Package rpc implements the gas station's JSON-over-HTTP API: reserve_gas
// and execute_tx.
package rpc

import "github.com/iotaledger/gas-station/gasstation/types"

// ReserveGasRequest asks the station to reserve coins covering gasBudget.
type ReserveGasRequest struct {
	GasBudget         uint64 `json:"gas_budget"`
	ReserveDurationMs uint64 `json:"reserve_duration_ms,omitempty"`
}

// GasCoinView is the wire representation of a reserved gas coin.
type GasCoinView struct {
	ObjectID string `json:"object_id"`
	Version  uint64 `json:"version"`
	Digest   string `json:"digest"`
	Balance  uint64 `json:"balance"`
}

func newGasCoinView(c types.GasCoin) GasCoinView {
	return GasCoinView{
		ObjectID: c.Ref.ID,
		Version:  c.Ref.Version,
		Digest:   c.Ref.Digest,
		Balance:  c.Balance,
	}
}

// ReserveGasResult is the successful payload of a reserve_gas call.
type ReserveGasResult struct {
	ReservationID uint64        `json:"reservation_id"`
	GasCoins      []GasCoinView `json:"gas_coins"`
}

// ExecuteTxRequest submits a transaction that spends a prior reservation's
// exact gas coins.
type ExecuteTxRequest struct {
	ReservationID uint64   `json:"reservation_id"`
	TxBytes       string   `json:"tx_bytes"`
	UserSignature string   `json:"user_signature"`
	GasCoins      []string `json:"gas_coins"`
}

// ExecuteTxResult is the successful payload of an execute_tx call.
type ExecuteTxResult struct {
	EffectsDigest string `json:"effects_digest"`
}

// GasStationResponse wraps every RPC result (success or error) with a
// request id for client-side correlation.
type GasStationResponse struct {
	RequestID string      `json:"request_id"`
	Result    interface{} `json:"result,omitempty"`
	Error     string      `json:"error,omitempty"`
}
