package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/erazemk/kovnica/internal/chain"
	"github.com/erazemk/kovnica/internal/config"
	"github.com/erazemk/kovnica/internal/metrics"
	"github.com/erazemk/kovnica/internal/mint"
	"github.com/erazemk/kovnica/internal/sale"
)

func cmdMint(cfg *config.Config, args []string) int {
	fs := flag.NewFlagSet("mint", flag.ContinueOnError)
	cfg.RegisterFlags(fs)

	var itemID int64
	fs.Int64Var(&itemID, "item", 0, "")
	fs.Int64Var(&itemID, "i", 0, "")

	var quantity int64
	fs.Int64Var(&quantity, "quantity", 1, "")
	fs.Int64Var(&quantity, "q", 1, "")

	fs.StringVar(&cfg.PrivateKey, "key", cfg.PrivateKey, "")
	fs.StringVar(&cfg.PrivateKey, "k", cfg.PrivateKey, "")

	fs.Usage = func() {
		fmt.Fprint(os.Stdout, `Usage: kovnica mint [flags]

Flags:
  -i, -item <id>          item to buy (default: 0)
  -q, -quantity <n>       units to buy (default: 1)
  -k, -key <hex>          private key (default: KOVNICA_PRIVATE_KEY)
  -d, -db <path>          SQLite database path (default: kovnica.sqlite3)
  -l, -log <path>         log file path (default: no file, stderr only)
  -r, -rpc <url>          JSON-RPC endpoint
  -c, -contract <addr>    drop contract address
  -chain-id <id>          chain id (default: 1)
  -chain-timeout <dur>    timeout for each on-chain read (default: 5s)
  -h, -help               show this help and exit

Every transaction is shown and must be confirmed before it is sent.
`)
	}

	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	// Prompts use stdout, so logs go to stderr only.
	closeLog, err := setupLogger(os.Stderr, cfg.LogPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	if closeLog != nil {
		defer closeLog()
	}

	if err := cfg.Validate(true); err != nil {
		slog.Error("invalid configuration", "error", err)
		return 1
	}
	if cfg.PrivateKey == "" {
		slog.Error("invalid configuration", "error", "private key required")
		return 1
	}

	database, err := openDatabase(cfg.DBPath, cfg.AdminUser)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		return 1
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		slog.Error("failed to connect to chain", "rpc", cfg.RPCURL, "error", err)
		return 1
	}
	defer client.Close()

	contract := common.HexToAddress(cfg.Contract)
	reg := metrics.NewRegistry()
	sales := sale.NewService(database, newReader(client, contract, cfg))
	sales.Metrics = reg
	sales.Native = sale.NativeCurrency(cfg.NativeSymbol)

	keyWallet, err := chain.NewKeyWallet(client, cfg.PrivateKey, big.NewInt(cfg.ChainID))
	if err != nil {
		slog.Error("failed to load wallet", "error", err)
		return 1
	}
	prompt := chain.NewPrompt(keyWallet, os.Stdin, os.Stdout)

	orch := &mint.Orchestrator{
		Quoter:     sales,
		Ledger:     &chain.EthLedger{Backend: client},
		Confirmer:  prompt,
		Recorder:   sales,
		Strategies: chain.Strategies(cfg.Contract),
		Spender:    cfg.Contract,
		Metrics:    reg,
	}

	fmt.Printf("Wallet %s buying %d of item %d\n", prompt.Address(), quantity, itemID)
	res, err := orch.Run(ctx, prompt, mint.Request{ItemID: itemID, Quantity: quantity})
	if errors.Is(err, mint.ErrInFlight) {
		slog.Error("a purchase is already running for this wallet")
		return 1
	}
	if err != nil {
		slog.Error("mint failed", "error", err)
		return 1
	}

	printResult(res)
	if res.State != mint.StateSucceeded {
		return 1
	}
	return 0
}

// printResult prints the outcome of a mint run to stdout.
func printResult(res *mint.Result) {
	fmt.Println()
	fmt.Printf("Run:      %s\n", res.ID)
	fmt.Printf("State:    %s\n", res.State)
	if res.Reason != "" {
		fmt.Printf("Reason:   %s\n", res.Reason)
	}
	if len(res.Attempts) > 0 {
		fmt.Printf("Tried:    %s\n", strings.Join(res.Attempts, ", "))
	}
	if res.TxHash != "" {
		fmt.Printf("Tx:       %s\n", res.TxHash)
	}
	if res.Diagnostic != "" {
		fmt.Printf("Details:  %s\n", res.Diagnostic)
	}
	if res.Reason == mint.FailureConfirmationUnknown {
		fmt.Println()
		fmt.Println("The transaction may still be mined. Check it before buying again.")
	}
}
