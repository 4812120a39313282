// Command gasstation runs the gas station service: the RPC server,
// Prometheus exporter, coin pool manager, and background coin
// initializer, wired behind an urfave/cli app.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli"

	"github.com/iotaledger/gas-station/gasstation/accesscontroller"
	"github.com/iotaledger/gas-station/gasstation/config"
	"github.com/iotaledger/gas-station/gasstation/initializer"
	"github.com/iotaledger/gas-station/gasstation/pool"
	"github.com/iotaledger/gas-station/gasstation/rpc"
	redisstorage "github.com/iotaledger/gas-station/gasstation/storage/redis"
	"github.com/iotaledger/gas-station/internal/gslog"
	"github.com/iotaledger/gas-station/internal/metrics"
)

var log = gslog.New("main")

func main() {
	app := cli.NewApp()
	app.Name = "gasstation"
	app.Usage = "a gas-fee sponsorship service for UTXO-ledger transactions"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config-path",
			Usage: "path to the gas station YAML config file",
			Value: "config.yaml",
		},
		cli.BoolFlag{
			Name:  "ignore-locks",
			Usage: "start even if another instance holds the init lock",
		},
		cli.BoolFlag{
			Name:  "allow-reinit",
			Usage: "allow a cold-parameter change to force a full coin registry rescan",
		},
		cli.BoolFlag{
			Name:  "delete-coin-registry",
			Usage: "wipe the coin registry and rebuild it from the chain on startup",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		log.Error("gas station exited with an error", "err", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c.String("config-path"))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	txSigner, err := buildSigner(cfg)
	if err != nil {
		return fmt.Errorf("constructing signer: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.StorageConfig.Redis == nil {
		return fmt.Errorf("no storage backend configured")
	}
	store, err := redisstorage.New(ctx, cfg.StorageConfig.Redis.RedisURL, redisstorage.Options{
		NetworkEndpoint: cfg.FullnodeURL,
		SponsorAddress:  txSigner.SponsorAddress(),
	})
	if err != nil {
		return fmt.Errorf("connecting to storage: %w", err)
	}
	defer store.Close()

	sm := metrics.NewStorageMetrics(prometheusRegistry())
	go func() {
		if err := metrics.Serve(int(cfg.MetricsPort)); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server stopped", "err", err)
		}
	}()

	networkClient, err := buildNetworkClient(cfg)
	if err != nil {
		return fmt.Errorf("constructing network client: %w", err)
	}

	poolMgr := pool.NewManager(store, cfg.MaxGasBudget, cfg.DailyGasUsageCap, time.Second, sm, cfg.FullnodeURL)
	go poolMgr.RunExpirySweeper(ctx)

	coinInit := initializer.New(store, networkClient, txSigner, initializer.Options{
		SponsorAddress:     txSigner.SponsorAddress(),
		TargetInitBalance:  cfg.CoinInitConfig.TargetInitBalance,
		RefreshInterval:    time.Duration(cfg.CoinInitConfig.RefreshIntervalSec) * time.Second,
		IgnoreLocks:        c.Bool("ignore-locks"),
		AllowReinit:        c.Bool("allow-reinit"),
		DeleteCoinRegistry: c.Bool("delete-coin-registry"),
	})
	go func() {
		if err := coinInit.Start(ctx); err != nil {
			log.Error("coin initializer stopped", "err", err)
			cancel()
		}
	}()

	checker, err := accesscontroller.NewCountByAddressLimiter(50_000, cfg.AccessController.MaxRequestsPerAddressPerMinute)
	if err != nil {
		return fmt.Errorf("constructing access controller: %w", err)
	}

	server := rpc.NewServer(poolMgr, networkClient, txSigner, checker)
	addr := fmt.Sprintf("%s:%d", cfg.RPCHostIP, cfg.RPCPort)
	httpServer := &http.Server{Addr: addr, Handler: server.Handler()}

	go func() {
		log.Info("rpc server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("rpc server stopped", "err", err)
			cancel()
		}
	}()

	waitForShutdown(ctx)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return httpServer.Shutdown(shutdownCtx)
}

func waitForShutdown(ctx context.Context) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}
}
