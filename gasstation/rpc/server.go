package rpc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"

	"github.com/iotaledger/gas-station/gasstation/accesscontroller"
	"github.com/iotaledger/gas-station/gasstation/iotaclient"
	"github.com/iotaledger/gas-station/gasstation/pool"
	"github.com/iotaledger/gas-station/gasstation/signer"
	"github.com/iotaledger/gas-station/gasstation/storage"
	"github.com/iotaledger/gas-station/gasstation/types"
	"github.com/iotaledger/gas-station/internal/gslog"
)

var log = gslog.New("rpc")

// Server exposes the gas station's reserve_gas and execute_tx endpoints
// over JSON/HTTP via httprouter.
type Server struct {
	pool    *pool.Manager
	client  iotaclient.NetworkClient
	signer  signer.TxSigner
	checker accesscontroller.Checker
}

func NewServer(poolMgr *pool.Manager, client iotaclient.NetworkClient, txSigner signer.TxSigner, checker accesscontroller.Checker) *Server {
	return &Server{pool: poolMgr, client: client, signer: txSigner, checker: checker}
}

// Handler returns the router with all routes registered.
func (s *Server) Handler() http.Handler {
	r := httprouter.New()
	r.POST("/v1/reserve_gas", s.handleReserveGas)
	r.POST("/v1/execute_tx", s.handleExecuteTx)
	r.GET("/health", s.handleHealth)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.WriteHeader(http.StatusOK)
}

func requestAddress(r *http.Request) string {
	if addr := r.Header.Get("X-Requester-Address"); addr != "" {
		return addr
	}
	return r.RemoteAddr
}

func (s *Server) handleReserveGas(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requestID := uuid.New().String()

	if s.checker != nil {
		if err := s.checker.Allow(requestAddress(r)); err != nil {
			writeError(w, requestID, http.StatusTooManyRequests, err.Error())
			return
		}
	}

	var req ReserveGasRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, requestID, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	id, coins, err := s.pool.ReserveGas(r.Context(), req.GasBudget, req.ReserveDurationMs)
	if err != nil {
		writeError(w, requestID, statusForReserveError(err), err.Error())
		return
	}

	views := make([]GasCoinView, 0, len(coins))
	for _, c := range coins {
		views = append(views, newGasCoinView(c))
	}

	writeResult(w, requestID, ReserveGasResult{ReservationID: uint64(id), GasCoins: views})
}

func (s *Server) handleExecuteTx(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requestID := uuid.New().String()

	if s.checker != nil {
		if err := s.checker.Allow(requestAddress(r)); err != nil {
			writeError(w, requestID, http.StatusTooManyRequests, err.Error())
			return
		}
	}

	var req ExecuteTxRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, requestID, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	txBytes, err := base64.StdEncoding.DecodeString(req.TxBytes)
	if err != nil {
		writeError(w, requestID, http.StatusBadRequest, "tx_bytes is not valid base64: "+err.Error())
		return
	}
	userSig, err := base64.StdEncoding.DecodeString(req.UserSignature)
	if err != nil {
		writeError(w, requestID, http.StatusBadRequest, "user_signature is not valid base64: "+err.Error())
		return
	}

	var effects iotaclient.TxEffects
	execErr := s.pool.ExecuteTransaction(r.Context(), types.ReservationID(req.ReservationID), req.GasCoins,
		func(ctx context.Context, coins []types.GasCoin) error {
			sponsorSig, err := s.signer.Sign(ctx, txBytes)
			if err != nil {
				return err
			}
			combined := append(append([]byte{}, userSig...), sponsorSig...)
			result, err := s.client.ExecuteTransaction(ctx, txBytes, combined)
			if err != nil {
				return err
			}
			if !result.Success {
				return errors.New(result.ErrorReason)
			}
			effects = result
			return nil
		})
	if execErr != nil {
		writeError(w, requestID, http.StatusBadRequest, execErr.Error())
		return
	}

	writeResult(w, requestID, ExecuteTxResult{EffectsDigest: effectsDigest(effects)})
}

func effectsDigest(e iotaclient.TxEffects) string {
	if len(e.MutatedRefs) == 0 {
		return ""
	}
	return e.MutatedRefs[0].Digest
}

func statusForReserveError(err error) int {
	switch {
	case errors.Is(err, pool.ErrInvalidBudget):
		return http.StatusBadRequest
	case errors.Is(err, pool.ErrDailyCapExceeded):
		return http.StatusServiceUnavailable
	case errors.Is(err, storage.ErrMaintenanceMode):
		return http.StatusServiceUnavailable
	case errors.Is(err, storage.ErrPoolInsufficient):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeResult(w http.ResponseWriter, requestID string, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(GasStationResponse{RequestID: requestID, Result: result})
}

func writeError(w http.ResponseWriter, requestID string, status int, message string) {
	log.Warn("rpc request failed", "request_id", requestID, "status", status, "err", message)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(GasStationResponse{RequestID: requestID, Error: message})
}
