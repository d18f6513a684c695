package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/vouchnet/settlement-middleware/pkg/agent"
	"github.com/vouchnet/settlement-middleware/pkg/agent/service"
	"github.com/vouchnet/settlement-middleware/pkg/app/httpserver"
	"github.com/vouchnet/settlement-middleware/pkg/auth"
	"github.com/vouchnet/settlement-middleware/pkg/config"
	"github.com/vouchnet/settlement-middleware/pkg/creditstore"
	"github.com/vouchnet/settlement-middleware/pkg/ledger"
	"github.com/vouchnet/settlement-middleware/pkg/lending"
	"github.com/vouchnet/settlement-middleware/pkg/oracle"
	"github.com/vouchnet/settlement-middleware/pkg/pgutil"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := pgutil.ConnectDB(&cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	store := creditstore.NewStore(db, creditstore.ProfileDefaults{
		Score:          cfg.Lending.DefaultScore,
		GarnishPercent: cfg.Lending.DefaultGarnishPercent,
		AutoRepay:      true,
	})

	var statusOracle oracle.StatusOracle = oracle.Noop{}
	if cfg.Oracle.Enabled {
		ethOracle, err := oracle.NewEthOracle(ctx,
			cfg.Oracle.RPCURL, cfg.Oracle.ContractAddress,
			cfg.Oracle.PrivateKey, cfg.Oracle.ChainID)
		if err != nil {
			return fmt.Errorf("connecting to status oracle: %w", err)
		}
		defer ethOracle.Close()
		statusOracle = ethOracle
	}
	synchronizer := oracle.NewSynchronizer(statusOracle, cfg.Oracle.QueueSize, logger)
	defer synchronizer.Stop()

	creditLedger := ledger.New(store, synchronizer, logger)
	lendingService := lending.NewService(store, creditLedger, cfg.Lending, logger)
	go lendingService.RunSweeper(ctx)

	manager := agent.NewManager(cfg.Clearnet, store, lendingService, logger)
	defer manager.StopAll()

	issuer := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	handler := service.NewHandler(manager, lendingService, store, creditLedger, issuer, logger)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: handler.Router(),
	}
	logger.Info("settlement agent starting", zap.String("addr", srv.Addr))
	return httpserver.ServeAndWait(ctx, logger, srv, cfg.Shutdown.Timeout)
}
