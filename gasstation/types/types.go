// Package types holds the gas station's core value types: the gas coin
// unit, its object reference triple, and reservations against the pool.
package types

import (
	"fmt"
	"strconv"
	"strings"
)

// ReservationID uniquely and monotonically identifies a reservation.
type ReservationID uint64

// ObjectRef is the (object-id, version, digest) triple identifying a
// specific on-chain version of an object. Identity is ID; Version and
// Digest are refreshed every time the coin is used.
type ObjectRef struct {
	ID      string
	Version uint64
	Digest  string
}

// GasCoin is the unit of gas inventory: a single-owner on-chain object
// used solely to pay transaction fees.
type GasCoin struct {
	Balance uint64
	Ref     ObjectRef
}

// Encode serializes a GasCoin into the wire form persisted in Redis:
// "balance,object_id,version,digest". Commas are the field delimiters; see
// Decode for the matching parse. The round-trip must be exact because the
// reserve/add scripts exchange coins in this exact representation.
func (c GasCoin) Encode() string {
	return fmt.Sprintf("%d,%s,%d,%s", c.Balance, c.Ref.ID, c.Ref.Version, c.Ref.Digest)
}

// Decode parses the wire form produced by Encode.
func Decode(s string) (GasCoin, error) {
	parts := strings.SplitN(s, ",", 4)
	if len(parts) != 4 {
		return GasCoin{}, fmt.Errorf("malformed gas coin encoding: %q", s)
	}
	balance, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return GasCoin{}, fmt.Errorf("malformed gas coin balance in %q: %w", s, err)
	}
	version, err := strconv.ParseUint(parts[2], 10, 64)
	if err != nil {
		return GasCoin{}, fmt.Errorf("malformed gas coin version in %q: %w", s, err)
	}
	return GasCoin{
		Balance: balance,
		Ref: ObjectRef{
			ID:      parts[1],
			Version: version,
			Digest:  parts[3],
		},
	}, nil
}

// Reservation is a short-lived claim on a set of GasCoins.
type Reservation struct {
	ID        ReservationID
	CoinIDs   []string
	ExpiresAt int64 // epoch millis
}

// TotalBalance sums the balance of a coin slice.
func TotalBalance(coins []GasCoin) uint64 {
	var total uint64
	for _, c := range coins {
		total += c.Balance
	}
	return total
}
