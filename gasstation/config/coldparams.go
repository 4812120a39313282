package config

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/iotaledger/gas-station/gasstation/storage"
)

// ColdParams is the subset of configuration whose change invalidates the
// persisted coin registry and requires a full rescan.
type ColdParams struct {
	TargetInitBalance *uint64 `json:"target_init_balance"`
}

// ColdParamsFromConfig extracts the cold parameters from a full config.
func ColdParamsFromConfig(cfg *GasStationConfig) ColdParams {
	var target *uint64
	if cfg.CoinInitConfig != nil {
		v := cfg.CoinInitConfig.TargetInitBalance
		target = &v
	}
	return ColdParams{TargetInitBalance: target}
}

// IsDifferent reports whether the cold params differ from other.
func (c ColdParams) IsDifferent(other ColdParams) bool {
	if (c.TargetInitBalance == nil) != (other.TargetInitBalance == nil) {
		return true
	}
	if c.TargetInitBalance != nil && *c.TargetInitBalance != *other.TargetInitBalance {
		return true
	}
	return false
}

// ChangesDetails describes the field-level differences between c and other,
// for inclusion in the startup refusal log message.
func (c ColdParams) ChangesDetails(other ColdParams) []string {
	var changes []string
	if c.IsDifferent(other) {
		changes = append(changes, fmt.Sprintf("target_init_balance: %s -> %s", formatUint64Ptr(other.TargetInitBalance), formatUint64Ptr(c.TargetInitBalance)))
	}
	return changes
}

func formatUint64Ptr(v *uint64) string {
	if v == nil {
		return "unset"
	}
	return fmt.Sprintf("%d", *v)
}

const coldParamsKey = "cold_params"

// CheckIfChanged compares c against the cold params persisted in storage
// (if any) and returns the list of changed fields.
func (c ColdParams) CheckIfChanged(ctx context.Context, store storage.SetGetStorage) ([]string, error) {
	raw, err := store.GetData(ctx, coldParamsKey)
	if err != nil {
		return nil, fmt.Errorf("unable to get cold params from storage: %w", err)
	}
	if raw == nil {
		return nil, nil
	}
	var old ColdParams
	if err := json.Unmarshal(raw, &old); err != nil {
		return nil, fmt.Errorf("cold params entry %q is not valid: %w", coldParamsKey, err)
	}
	return c.ChangesDetails(old), nil
}

// SaveToStorage persists c under the well-known cold-params key.
func (c ColdParams) SaveToStorage(ctx context.Context, store storage.SetGetStorage) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("unable to serialize cold params: %w", err)
	}
	return store.SetData(ctx, coldParamsKey, data)
}
