package balance

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"

	"github.com/matrixise/walletd/internal/diagnostics"
	"github.com/matrixise/walletd/internal/metrics"
)

// PriceOracle resolves prices for distinct symbols. *price.Oracle implements it.
type PriceOracle interface {
	PricesOf(ctx context.Context, symbols []string, diag diagnostics.Recorder) map[string]decimal.Decimal
}

// Snapshot is the priced balance view of one address at one moment.
type Snapshot struct {
	Address string    `json:"address"`
	Entries []Entry   `json:"entries"`
	TakenAt time.Time `json:"takenAt"`
}

// TotalValue sums the value of every priced entry.
func (s Snapshot) TotalValue() decimal.Decimal {
	total := decimal.Zero
	for _, e := range s.Entries {
		total = total.Add(e.Value())
	}
	return total
}

// NonZero returns the entries with a positive balance.
func (s Snapshot) NonZero() []Entry {
	var out []Entry
	for _, e := range s.Entries {
		if e.Balance.IsPositive() {
			out = append(out, e)
		}
	}
	return out
}

// Aggregator runs a fetch pass and prices the non-zero entries.
type Aggregator struct {
	fetcher *Fetcher
	oracle  PriceOracle
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewAggregator wires a fetcher and an oracle.
func NewAggregator(fetcher *Fetcher, oracle PriceOracle, clock clockwork.Clock, m *metrics.Metrics) *Aggregator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Aggregator{
		fetcher: fetcher,
		oracle:  oracle,
		clock:   clock,
		logger:  fetcher.logger,
		metrics: m,
	}
}

// Snapshot fetches all balances of address, then looks up each distinct
// symbol with a positive balance once.
func (a *Aggregator) Snapshot(ctx context.Context, address string, diag diagnostics.Recorder) Snapshot {
	start := a.clock.Now()

	entries := a.fetcher.FetchAll(ctx, address, diag)

	var symbols []string
	for _, e := range entries {
		if e.Balance.IsPositive() {
			symbols = append(symbols, e.Symbol)
		}
	}

	if len(symbols) > 0 {
		prices := a.oracle.PricesOf(ctx, symbols, diag)
		for i := range entries {
			if !entries[i].Balance.IsPositive() {
				continue
			}
			if p, ok := prices[strings.ToUpper(strings.TrimSpace(entries[i].Symbol))]; ok {
				entries[i].Price = decimal.NewNullDecimal(p)
			}
		}
	}

	snap := Snapshot{Address: address, Entries: entries, TakenAt: a.clock.Now().UTC()}
	elapsed := a.clock.Since(start)
	a.metrics.RecordSnapshot(elapsed)
	a.logger.Info("Balance snapshot ready",
		"address", address,
		"entries", len(entries),
		"non_zero", len(symbols),
		"total_usd", snap.TotalValue().StringFixed(2),
		"duration", elapsed)
	return snap
}
