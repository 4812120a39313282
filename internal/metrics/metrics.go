// Package metrics registers and serves the gas station's Prometheus
// metrics, exposing client_golang's promhttp handler behind a dedicated
// metrics port.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StorageMetrics tracks request counts and the latest pool aggregates for
// the coin pool manager and storage driver.
type StorageMetrics struct {
	NumReserveGasCoinsRequests           prometheus.Counter
	NumSuccessfulReserveGasCoinsRequests prometheus.Counter
	NumReadyForExecutionRequests         prometheus.Counter
	NumSuccessfulReadyForExecutionReqs   prometheus.Counter
	NumAddNewCoinsRequests               prometheus.Counter
	NumSuccessfulAddNewCoinsRequests     prometheus.Counter
	NumExpireCoinsRequests               prometheus.Counter
	NumSuccessfulExpireCoinsRequests     prometheus.Counter

	AvailableGasCoinCount       *prometheus.GaugeVec
	AvailableGasCoinTotalBalance *prometheus.GaugeVec
}

// NewStorageMetrics builds and registers a StorageMetrics against registry.
func NewStorageMetrics(registry prometheus.Registerer) *StorageMetrics {
	m := &StorageMetrics{
		NumReserveGasCoinsRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gas_station_reserve_gas_coins_requests_total",
			Help: "Total number of reserve_gas_coins requests.",
		}),
		NumSuccessfulReserveGasCoinsRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gas_station_reserve_gas_coins_requests_success_total",
			Help: "Total number of successful reserve_gas_coins requests.",
		}),
		NumReadyForExecutionRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gas_station_ready_for_execution_requests_total",
			Help: "Total number of ready_for_execution requests.",
		}),
		NumSuccessfulReadyForExecutionReqs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gas_station_ready_for_execution_requests_success_total",
			Help: "Total number of successful ready_for_execution requests.",
		}),
		NumAddNewCoinsRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gas_station_add_new_coins_requests_total",
			Help: "Total number of add_new_coins requests.",
		}),
		NumSuccessfulAddNewCoinsRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gas_station_add_new_coins_requests_success_total",
			Help: "Total number of successful add_new_coins requests.",
		}),
		NumExpireCoinsRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gas_station_expire_coins_requests_total",
			Help: "Total number of expire_coins sweeps.",
		}),
		NumSuccessfulExpireCoinsRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gas_station_expire_coins_requests_success_total",
			Help: "Total number of successful expire_coins sweeps.",
		}),
		AvailableGasCoinCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gas_station_available_gas_coin_count",
			Help: "Number of available gas coins in the pool.",
		}, []string{"namespace"}),
		AvailableGasCoinTotalBalance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gas_station_available_gas_total_balance",
			Help: "Total balance of available gas coins in the pool.",
		}, []string{"namespace"}),
	}
	registry.MustRegister(
		m.NumReserveGasCoinsRequests,
		m.NumSuccessfulReserveGasCoinsRequests,
		m.NumReadyForExecutionRequests,
		m.NumSuccessfulReadyForExecutionReqs,
		m.NumAddNewCoinsRequests,
		m.NumSuccessfulAddNewCoinsRequests,
		m.NumExpireCoinsRequests,
		m.NumSuccessfulExpireCoinsRequests,
		m.AvailableGasCoinCount,
		m.AvailableGasCoinTotalBalance,
	)
	return m
}

// NewForTesting returns a StorageMetrics registered against a private
// registry, so repeated test runs don't collide on prometheus' global
// DefaultRegisterer.
func NewForTesting() *StorageMetrics {
	return NewStorageMetrics(prometheus.NewRegistry())
}

// Serve starts the Prometheus exporter HTTP server on the given port. It
// blocks; callers run it in its own goroutine the way cmd/kcn/main.go does.
func Serve(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(fmt.Sprintf(":%d", port), mux)
}
