package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/erazemk/kovnica/internal/api"
	"github.com/erazemk/kovnica/internal/cache"
	"github.com/erazemk/kovnica/internal/chain"
	"github.com/erazemk/kovnica/internal/config"
	"github.com/erazemk/kovnica/internal/metrics"
	"github.com/erazemk/kovnica/internal/sale"
	"github.com/erazemk/kovnica/internal/store"
)

func cmdServe(cfg *config.Config, args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	cfg.RegisterFlags(fs)

	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "")
	fs.StringVar(&cfg.Addr, "a", cfg.Addr, "")

	fs.StringVar(&cfg.AdminUser, "user", cfg.AdminUser, "")
	fs.StringVar(&cfg.AdminUser, "u", cfg.AdminUser, "")

	fs.Usage = func() {
		fmt.Fprint(os.Stdout, `Usage: kovnica serve [flags]

Flags:
  -d, -db <path>          SQLite database path (default: kovnica.sqlite3)
  -a, -addr <host:port>   listen address (default: :8080)
  -u, -user <name>        admin username on first run (default: Admin)
  -l, -log <path>         log file path (default: no file, stdout/stderr only)
  -r, -rpc <url>          JSON-RPC endpoint (optional)
  -c, -contract <addr>    drop contract address (optional)
  -chain-id <id>          chain id (default: 1)
  -chain-timeout <dur>    timeout for each on-chain read (default: 5s)
  -redis <host:port>      Redis for the on-chain record cache (default: in memory)
  -cache-ttl <dur>        lifetime of cached records in Redis (default: 24h)
  -h, -help               show this help and exit

Every flag can also be set with a KOVNICA_* variable or in .env.
`)
	}

	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	// Set up structured logging: INFO/WARN → stdout, ERROR → stderr.
	closeLog, err := setupLogger(os.Stdout, cfg.LogPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	if closeLog != nil {
		defer closeLog()
	}

	if err := cfg.Validate(false); err != nil {
		slog.Error("invalid configuration", "error", err)
		return 1
	}

	database, err := openDatabase(cfg.DBPath, cfg.AdminUser)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		return 1
	}
	defer database.Close()

	ctx := context.Background()

	// Load JWT secret from database (auto-generated on first run).
	jwtSecret, err := store.GetJWTSecret(ctx, database)
	if err != nil {
		slog.Error("failed to get JWT secret", "error", err)
		return 1
	}

	reg := metrics.NewRegistry()
	sales := sale.NewService(database, nil)
	sales.Metrics = reg
	sales.Native = sale.NativeCurrency(cfg.NativeSymbol)

	var verifier api.MintVerifier
	if cfg.ChainEnabled() {
		client, err := ethclient.DialContext(ctx, cfg.RPCURL)
		if err != nil {
			slog.Error("failed to connect to chain", "rpc", cfg.RPCURL, "error", err)
			return 1
		}
		defer client.Close()

		contract := common.HexToAddress(cfg.Contract)
		sales.Chain = newReader(client, contract, cfg)
		verifier = &chain.Verifier{Backend: client, Contract: contract}
		slog.Info("chain configured", "contract", cfg.Contract, "chain_id", cfg.ChainID)
	} else {
		slog.Warn("no chain configured, sale state comes from overrides only")
	}

	if cfg.RedisAddr != "" {
		client, err := cache.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			slog.Error("failed to connect to redis", "addr", cfg.RedisAddr, "error", err)
			return 1
		}
		defer client.Close()
		sales.Cache = &cache.Redis{Client: client, TTL: cfg.CacheTTL}
		slog.Info("redis cache ready", "addr", cfg.RedisAddr)
	}

	mux := http.NewServeMux()
	mux.Handle("/api/", api.NewRouter(database, jwtSecret, sales, verifier))
	mux.Handle("GET /metrics", reg.Handler())

	handler := api.LoggingMiddleware(mux)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-quit
		slog.Info("shutdown signal received", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
	}()

	slog.Info("server starting", "addr", cfg.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		return 1
	}

	slog.Info("server stopped")
	return 0
}

func newReader(client *ethclient.Client, contract common.Address, cfg *config.Config) *chain.EthReader {
	return &chain.EthReader{
		Caller:       client,
		Contract:     contract,
		Timeout:      cfg.ChainTimeout,
		NativeSymbol: cfg.NativeSymbol,
	}
}
