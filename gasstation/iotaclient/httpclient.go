package iotaclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/iotaledger/gas-station/gasstation/types"
)

// HTTPClient is a JSON-RPC 2.0 NetworkClient talking to a full node's
// HTTP endpoint, the same request/response shape used across UTXO-ledger
// full node RPCs (method name + positional params, single "result" or
// "error" field in the response).
type HTTPClient struct {
	url        string
	basicAuth  *BasicAuth
	httpClient *http.Client
}

// BasicAuth carries optional HTTP basic-auth credentials for the fullnode
// endpoint.
type BasicAuth struct {
	Username string
	Password string
}

func NewHTTPClient(url string, auth *BasicAuth) *HTTPClient {
	return &HTTPClient{
		url:        url,
		basicAuth:  auth,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *HTTPClient) call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("marshaling rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.basicAuth != nil {
		req.SetBasicAuth(c.basicAuth.Username, c.basicAuth.Password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", method, err)
	}
	defer resp.Body.Close()

	var parsed rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("decoding %s response: %w", method, err)
	}
	if parsed.Error != nil {
		return fmt.Errorf("%s returned an error: %s (code %d)", method, parsed.Error.Message, parsed.Error.Code)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(parsed.Result, out)
}

type coinWire struct {
	Balance string `json:"balance"`
	ObjectID string `json:"coinObjectId"`
	Version  string `json:"version"`
	Digest   string `json:"digest"`
}

func (w coinWire) toGasCoin() (types.GasCoin, error) {
	var balance uint64
	if _, err := fmt.Sscanf(w.Balance, "%d", &balance); err != nil {
		return types.GasCoin{}, fmt.Errorf("parsing coin balance %q: %w", w.Balance, err)
	}
	var version uint64
	if _, err := fmt.Sscanf(w.Version, "%d", &version); err != nil {
		return types.GasCoin{}, fmt.Errorf("parsing coin version %q: %w", w.Version, err)
	}
	return types.GasCoin{
		Balance: balance,
		Ref:     types.ObjectRef{ID: w.ObjectID, Version: version, Digest: w.Digest},
	}, nil
}

func (c *HTTPClient) GetAllOwnedCoinsAboveThreshold(ctx context.Context, owner string, minBalance uint64) ([]types.GasCoin, error) {
	var wire []coinWire
	if err := c.call(ctx, "unsafe_getOwnedGasCoins", []interface{}{owner}, &wire); err != nil {
		return nil, err
	}
	out := make([]types.GasCoin, 0, len(wire))
	for _, w := range wire {
		coin, err := w.toGasCoin()
		if err != nil {
			return nil, err
		}
		if coin.Balance >= minBalance {
			out = append(out, coin)
		}
	}
	return out, nil
}

func (c *HTTPClient) GetReferenceGasPrice(ctx context.Context) (uint64, error) {
	var price string
	if err := c.call(ctx, "unsafe_getReferenceGasPrice", nil, &price); err != nil {
		return 0, err
	}
	var v uint64
	if _, err := fmt.Sscanf(price, "%d", &v); err != nil {
		return 0, fmt.Errorf("parsing reference gas price %q: %w", price, err)
	}
	return v, nil
}

// CalibrateGasCostPerObject estimates the cost of a single pay::split_n
// object by applying a fixed per-object gas unit count at the live
// reference price; it makes no call to the full node and dry-runs no
// transaction.
func (c *HTTPClient) CalibrateGasCostPerObject(ctx context.Context, referenceGasPrice uint64) (uint64, error) {
	const estimatedGasUnitsPerObject = 1000
	return referenceGasPrice * estimatedGasUnitsPerObject, nil
}

func (c *HTTPClient) ExecuteTransaction(ctx context.Context, txBytes []byte, signature []byte) (TxEffects, error) {
	var result struct {
		Effects struct {
			Status struct {
				Status string `json:"status"`
				Error  string `json:"error"`
			} `json:"status"`
			GasUsed struct {
				ComputationCost string `json:"computationCost"`
				StorageCost     string `json:"storageCost"`
			} `json:"gasUsed"`
			Mutated []struct {
				Reference coinWire `json:"reference"`
			} `json:"mutated"`
			Created []struct {
				Reference coinWire `json:"reference"`
			} `json:"created"`
		} `json:"effects"`
	}

	err := c.call(ctx, "unsafe_executeTransaction", []interface{}{
		base64.StdEncoding.EncodeToString(txBytes),
		base64.StdEncoding.EncodeToString(signature),
	}, &result)
	if err != nil {
		return TxEffects{}, err
	}

	var computationCost, storageCost uint64
	fmt.Sscanf(result.Effects.GasUsed.ComputationCost, "%d", &computationCost)
	fmt.Sscanf(result.Effects.GasUsed.StorageCost, "%d", &storageCost)

	effects := TxEffects{
		Success:     result.Effects.Status.Status == "success",
		ErrorReason: result.Effects.Status.Error,
		GasUsed:     computationCost + storageCost,
	}
	for _, m := range result.Effects.Mutated {
		coin, convErr := m.Reference.toGasCoin()
		if convErr == nil {
			effects.MutatedRefs = append(effects.MutatedRefs, coin.Ref)
		}
	}
	for _, cr := range result.Effects.Created {
		coin, convErr := cr.Reference.toGasCoin()
		if convErr == nil {
			effects.CreatedRefs = append(effects.CreatedRefs, coin.Ref)
		}
	}
	return effects, nil
}

func (c *HTTPClient) GetLatestGasObjects(ctx context.Context, ids []string) ([]types.GasCoin, error) {
	out := make([]types.GasCoin, 0, len(ids))
	for _, id := range ids {
		var wire coinWire
		if err := c.call(ctx, "unsafe_getObject", []interface{}{id}, &wire); err != nil {
			return nil, err
		}
		coin, err := wire.toGasCoin()
		if err != nil {
			return nil, err
		}
		out = append(out, coin)
	}
	return out, nil
}

func (c *HTTPClient) GetAggregateCoinStats(ctx context.Context, owner string) (uint64, uint64, error) {
	coins, err := c.GetAllOwnedCoinsAboveThreshold(ctx, owner, 0)
	if err != nil {
		return 0, 0, err
	}
	return uint64(len(coins)), types.TotalBalance(coins), nil
}

var _ NetworkClient = (*HTTPClient)(nil)
