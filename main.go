package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/igorcrevar/cardano-go-wallet/core"
	"github.com/igorcrevar/cardano-go-wallet/db"
	"github.com/igorcrevar/cardano-go-wallet/epoch"
	"github.com/igorcrevar/cardano-go-wallet/walletlog"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
)

const metricsShutdownTimeout = 5 * time.Second

func main() {
	app := &cli.App{
		Name:  "cardano-wallet",
		Usage: "follows a cardano node and keeps the utxo set of a wallet",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the json configuration file, defaults are used when omitted",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*core.AppConfig, error) {
	if path == "" {
		config := core.DefaultAppConfig()

		return config, config.Validate()
	}

	return core.LoadAppConfig(path)
}

func run(cliCtx *cli.Context) error {
	config, err := loadConfig(cliCtx.String("config"))
	if err != nil {
		return err
	}

	logger, err := core.NewLogger(config.Logger)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cliCtx.Context, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	initialPtr, err := config.InitialStatePtr()
	if err != nil {
		return err
	}

	matcher, err := core.NewMatcherFromConfig(config.Matcher)
	if err != nil {
		return err
	}

	walletLog := walletlog.NewStore(config.WalletLogDir, logger.Named("wallet_log"))

	lock, err := walletLog.AcquireLock(config.WalletID)
	if err != nil {
		return err
	}

	state, err := core.LoadWalletStateWithLock(lock, initialPtr, matcher, logger.Named("wallet_state"))
	if err != nil {
		return errors.Join(err, lock.Release())
	}

	walletDb, err := openWalletDb(config.Database)
	if err != nil {
		return errors.Join(err, lock.Release())
	}

	var (
		archiver     core.EpochArchiver
		epochStorage *epoch.Storage
	)

	if config.EpochStorageDir != "" {
		epochStorage, err = epoch.NewStorage(config.EpochStorageDir, logger.Named("epoch_storage"))
		if err != nil {
			return errors.Join(err, closeWalletDb(walletDb), lock.Release())
		}

		archiver = epochStorage
	}

	blockSyncer := core.NewBlockSyncer(&config.BlockSyncer, logger.Named("block_syncer"))
	walletSyncer := core.NewWalletSyncer(
		&config.WalletSyncer, blockSyncer, core.NewLedgerBlockDecoder(config.WalletSyncer.EpochLength),
		lock, state, walletDb, archiver, logger.Named("wallet_syncer"))

	defer func() {
		if err := walletSyncer.Close(); err != nil {
			logger.Error("Wallet syncer close failed", "err", err)
		}

		if err := closeWalletDb(walletDb); err != nil {
			logger.Error("Wallet db close failed", "err", err)
		}
	}()

	metricsServer := startMetricsServer(config.MetricsAddress, logger)

	refresher, err := core.NewPeriodicRefresher(config.RefreshInterval(), func(context.Context) error {
		return logStatus(walletSyncer, epochStorage, logger)
	}, logger.Named("refresher"))
	if err != nil {
		return err
	}

	if err := walletSyncer.StartSyncing(); err != nil {
		return err
	}

	go refresher.Run(ctx)

	<-ctx.Done()

	logger.Info("Shutting down")

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer shutdownCancel()

		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Metrics server shutdown failed", "err", err)
		}
	}

	return nil
}

func openWalletDb(config core.DatabaseConfig) (core.WalletDb, error) {
	if config.Backend == "" {
		return nil, nil
	}

	if err := os.MkdirAll(filepath.Dir(config.FilePath), 0755); err != nil {
		return nil, fmt.Errorf("could not create db directory: %w", err)
	}

	return db.NewDatabaseInit(config.Backend, config.FilePath)
}

func closeWalletDb(walletDb core.WalletDb) error {
	if walletDb == nil {
		return nil
	}

	return walletDb.Close()
}

func startMetricsServer(address string, logger hclog.Logger) *http.Server {
	if address == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              address,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting prometheus endpoint", "address", address)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Prometheus endpoint failed", "err", err)
		}
	}()

	return server
}

func logStatus(walletSyncer *core.WalletSyncer, epochStorage *epoch.Storage, logger hclog.Logger) error {
	status, err := walletSyncer.Status()
	if err != nil {
		return err
	}

	args := []interface{}{
		"wallet", status.WalletID, "ptr", status.Ptr, "utxos", status.UtxoCount, "balance", status.Balance,
	}

	if epochStorage != nil {
		epochs, err := epochStorage.ListEpochs()
		if err != nil {
			return err
		}

		args = append(args, "epochs", len(epochs))
	}

	logger.Info("Wallet status", args...)

	return nil
}
