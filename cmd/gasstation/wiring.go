package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/iotaledger/gas-station/gasstation/config"
	"github.com/iotaledger/gas-station/gasstation/iotaclient"
	"github.com/iotaledger/gas-station/gasstation/signer"
)

func buildSigner(cfg *config.GasStationConfig) (signer.TxSigner, error) {
	switch {
	case cfg.SignerConfig.Local != nil:
		return signer.NewLocalSigner(*cfg.SignerConfig.Local)
	case cfg.SignerConfig.Sidecar != nil:
		return signer.NewSidecarSigner(*cfg.SignerConfig.Sidecar, ""), nil
	default:
		return nil, fmt.Errorf("signer-config must set either local or sidecar")
	}
}

func buildNetworkClient(cfg *config.GasStationConfig) (iotaclient.NetworkClient, error) {
	if cfg.FullnodeURL == "" {
		return nil, fmt.Errorf("fullnode-url must be set")
	}
	var auth *iotaclient.BasicAuth
	if cfg.FullnodeBasicAuth != nil {
		auth = &iotaclient.BasicAuth{
			Username: cfg.FullnodeBasicAuth.Username,
			Password: cfg.FullnodeBasicAuth.Password,
		}
	}
	return iotaclient.NewHTTPClient(cfg.FullnodeURL, auth), nil
}

func prometheusRegistry() prometheus.Registerer {
	return prometheus.DefaultRegisterer
}
