// Package balance queries token balances across every registered chain and
// combines them with prices into a snapshot.
package balance

import (
	"context"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/matrixise/walletd/internal/blockchain"
	"github.com/matrixise/walletd/internal/diagnostics"
	"github.com/matrixise/walletd/internal/metrics"
	"github.com/matrixise/walletd/internal/registry"
)

// ChainReader reads raw balances. *blockchain.Pool implements it.
type ChainReader interface {
	TokenBalance(ctx context.Context, chainID uint64, token, owner common.Address) (*big.Int, error)
	NativeBalance(ctx context.Context, chainID uint64, owner common.Address) (*big.Int, error)
}

// Entry is one (chain, token) balance of an address.
type Entry struct {
	Symbol          string              `json:"symbol"`
	ContractAddress string              `json:"contractAddress"`
	ChainID         uint64              `json:"chainId"`
	Decimals        uint8               `json:"decimals"`
	Balance         decimal.Decimal     `json:"balance"`
	Price           decimal.NullDecimal `json:"price"`
}

// Value is balance times price, zero when the price is unset.
func (e Entry) Value() decimal.Decimal {
	if !e.Price.Valid {
		return decimal.Zero
	}
	return e.Balance.Mul(e.Price.Decimal)
}

// Fetcher fans a balance query out to every registered (chain, token) pair.
type Fetcher struct {
	registry *registry.Registry
	reader   ChainReader
	limit    int
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithConcurrency caps in-flight queries. Zero or less means unbounded.
func WithConcurrency(n int) FetcherOption {
	return func(f *Fetcher) { f.limit = n }
}

// WithQueryTimeout bounds each individual query.
func WithQueryTimeout(d time.Duration) FetcherOption {
	return func(f *Fetcher) { f.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) FetcherOption {
	return func(f *Fetcher) { f.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) FetcherOption {
	return func(f *Fetcher) { f.metrics = m }
}

// NewFetcher returns a fetcher over the registry's chains.
func NewFetcher(reg *registry.Registry, reader ChainReader, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		registry: reg,
		reader:   reader,
		timeout:  15 * time.Second,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchAll returns one entry per registered (chain, token) pair, in registry
// order. Failed or invalid queries produce a zero balance and a diagnostic.
func (f *Fetcher) FetchAll(ctx context.Context, address string, diag diagnostics.Recorder) []Entry {
	if diag == nil {
		diag = diagnostics.Discard
	}

	var entries []Entry
	for _, chainID := range f.registry.ChainIDs() {
		for _, t := range f.registry.TokensFor(chainID) {
			entries = append(entries, Entry{
				Symbol:          t.Symbol,
				ContractAddress: t.ContractAddress,
				ChainID:         chainID,
				Decimals:        t.Decimals,
				Balance:         decimal.Zero,
			})
		}
	}

	if !common.IsHexAddress(address) {
		diag.Add(diagnostics.KindValidation, "invalid wallet address %q", address)
		return entries
	}
	owner := common.HexToAddress(address)

	g, gctx := errgroup.WithContext(ctx)
	if f.limit > 0 {
		g.SetLimit(f.limit)
	}
	for i := range entries {
		g.Go(func() error {
			entries[i].Balance = f.fetchOne(gctx, &entries[i], owner, diag)
			return nil
		})
	}
	_ = g.Wait()

	return entries
}

func (f *Fetcher) fetchOne(ctx context.Context, e *Entry, owner common.Address, diag diagnostics.Recorder) decimal.Decimal {
	native := strings.EqualFold(e.ContractAddress, registry.NativeToken)
	if !native && !common.IsHexAddress(e.ContractAddress) {
		f.metrics.RecordBalanceQuery(e.ChainID, "invalid")
		diag.Add(diagnostics.KindValidation, "chain %d: invalid token address %q for %s", e.ChainID, e.ContractAddress, e.Symbol)
		return decimal.Zero
	}

	qctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	var (
		raw *big.Int
		err error
	)
	if native {
		raw, err = f.reader.NativeBalance(qctx, e.ChainID, owner)
	} else {
		raw, err = f.reader.TokenBalance(qctx, e.ChainID, common.HexToAddress(e.ContractAddress), owner)
	}
	if err != nil {
		f.metrics.RecordBalanceQuery(e.ChainID, "error")
		f.logger.Debug("Balance query failed", "chain_id", e.ChainID, "symbol", e.Symbol, "error", err)
		diag.Add(diagnostics.KindTransient, "chain %d: %s balance unavailable: %v", e.ChainID, e.Symbol, err)
		return decimal.Zero
	}
	if raw == nil || raw.Sign() < 0 {
		f.metrics.RecordBalanceQuery(e.ChainID, "invalid")
		return decimal.Zero
	}

	f.metrics.RecordBalanceQuery(e.ChainID, "ok")
	return blockchain.ToDecimal(raw, e.Decimals)
}
