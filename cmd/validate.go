package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/matrixise/walletd/internal/blockchain"
	"github.com/matrixise/walletd/internal/config"
	"github.com/matrixise/walletd/internal/logger"
	"github.com/matrixise/walletd/internal/registry"
	"github.com/matrixise/walletd/internal/scheduler"
)

var checkChain bool

// errTokenMismatch is returned when a registered token disagrees with its contract.
var errTokenMismatch = errors.New("registered tokens disagree with their contracts")

var validateCmd = &cobra.Command{
	Use:   "validate-config",
	Short: "Validate configuration file",
	Long: `Validate the configuration file syntax and values without running the application.
With --check-chain, also read symbol() and decimals() from every registered token contract.`,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&checkChain, "check-chain", false, "verify token symbols and decimals against the chain")
}

func validateConfig(cmd *cobra.Command, args []string) error {
	logger.Setup(logLevel)

	cfg, databaseURL, err := config.LoadWithDefaults(cfgFile)
	if err != nil {
		slog.Error("Configuration validation failed", "error", err)
		return err
	}

	reg, err := cfg.Registry()
	if err != nil {
		slog.Error("Chain registry invalid", "error", err)
		return err
	}
	endpoints, err := cfg.Endpoints(reg)
	if err != nil {
		slog.Error("RPC endpoints invalid", "error", err)
		return err
	}

	var spenders int
	for _, id := range reg.ChainIDs() {
		spenders += len(reg.Spenders(id))
	}

	slog.Info("✓ Configuration valid",
		"chains", len(reg.ChainIDs()),
		"spenders", spenders,
		"rpc_chains", len(endpoints),
		"warm_schedule", scheduler.DescribeSchedule(cfg.Price.WarmSchedule, cfg.GetTimezone()),
		"log_level", cfg.LogLevel,
		"database_url_set", databaseURL != "",
	)

	if !checkChain {
		return nil
	}
	return checkTokenContracts(cmd.Context(), reg, endpoints, cfg.RPC.Cooldown)
}

// checkTokenContracts compares each registered token with what its
// contract reports. Unreachable chains are reported but not fatal.
func checkTokenContracts(ctx context.Context, reg *registry.Registry, endpoints map[uint64][]string, cooldown time.Duration) error {
	pool, err := blockchain.NewPool(endpoints, cooldown)
	if err != nil {
		return fmt.Errorf("failed to connect to RPC endpoints: %w", err)
	}
	defer pool.Close()

	var (
		mu         sync.Mutex
		mismatches []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)

	for _, id := range reg.ChainIDs() {
		client, err := pool.Client(id)
		if err != nil {
			slog.Warn("Skipping chain without RPC endpoints", "chain_id", id)
			continue
		}
		for _, tok := range reg.TokensFor(id) {
			if tok.IsNative() || !common.IsHexAddress(tok.ContractAddress) {
				continue
			}
			g.Go(func() error {
				meta, err := client.TokenMetadata(gctx, common.HexToAddress(tok.ContractAddress))
				if err != nil {
					slog.Warn("Token contract unreachable", "chain_id", id, "symbol", tok.Symbol, "error", err)
					return nil
				}
				if meta.Decimals != tok.Decimals || !strings.EqualFold(meta.Symbol, tok.Symbol) {
					mu.Lock()
					mismatches = append(mismatches, fmt.Sprintf("chain %d %s: registered %s/%d, contract reports %s/%d",
						id, tok.ContractAddress, tok.Symbol, tok.Decimals, meta.Symbol, meta.Decimals))
					mu.Unlock()
				}
				return nil
			})
		}
	}

	_ = g.Wait()
	for _, msg := range mismatches {
		slog.Error("Token mismatch", "detail", msg)
	}

	if len(mismatches) > 0 {
		return fmt.Errorf("%d %w", len(mismatches), errTokenMismatch)
	}
	slog.Info("✓ Token contracts match the registry")
	return nil
}
