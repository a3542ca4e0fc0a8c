// Package price resolves USD prices for token symbols.
package price

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/matrixise/walletd/internal/diagnostics"
	"github.com/matrixise/walletd/internal/metrics"
)

// Source fetches a fresh USD price for a symbol.
type Source interface {
	FetchPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Options configures an Oracle. Zero values fall back to defaults.
type Options struct {
	Stablecoins []string
	CacheTTL    time.Duration
	Timeout     time.Duration
	RateLimit   float64
	Burst       int
	Concurrency int
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
}

// DefaultStablecoins are priced at exactly 1 without asking the source.
var DefaultStablecoins = []string{"USDT", "USDC"}

const (
	defaultCacheTTL    = 2 * time.Minute
	defaultTimeout     = 5 * time.Second
	defaultRateLimit   = 10
	defaultBurst       = 5
	defaultConcurrency = 8
)

// Oracle answers price lookups from a stablecoin set, a TTL cache and a
// rate-limited source, in that order.
type Oracle struct {
	source      Source
	stables     map[string]struct{}
	cache       *cache.Cache
	limiter     *rate.Limiter
	timeout     time.Duration
	concurrency int
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// NewOracle builds an oracle over source.
func NewOracle(source Source, opts Options) *Oracle {
	stables := opts.Stablecoins
	if len(stables) == 0 {
		stables = DefaultStablecoins
	}
	set := make(map[string]struct{}, len(stables))
	for _, s := range stables {
		set[normalize(s)] = struct{}{}
	}

	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	limit := opts.RateLimit
	if limit <= 0 {
		limit = defaultRateLimit
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = defaultBurst
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Oracle{
		source:      source,
		stables:     set,
		cache:       cache.New(ttl, 2*ttl),
		limiter:     rate.NewLimiter(rate.Limit(limit), burst),
		timeout:     timeout,
		concurrency: concurrency,
		logger:      logger,
		metrics:     opts.Metrics,
	}
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// IsStable reports whether symbol is in the stablecoin set.
func (o *Oracle) IsStable(symbol string) bool {
	_, ok := o.stables[normalize(symbol)]
	return ok
}

// PriceOf returns the USD price of symbol. Failures yield zero and a
// transient diagnostic; they never abort the caller.
func (o *Oracle) PriceOf(ctx context.Context, symbol string, diag diagnostics.Recorder) decimal.Decimal {
	if diag == nil {
		diag = diagnostics.Discard
	}
	sym := normalize(symbol)
	if sym == "" {
		diag.Add(diagnostics.KindValidation, "empty price symbol")
		return decimal.Zero
	}

	if o.IsStable(sym) {
		o.metrics.RecordPriceLookup("stable")
		return decimal.NewFromInt(1)
	}

	if v, ok := o.cache.Get(sym); ok {
		o.metrics.RecordPriceLookup("cache")
		return v.(decimal.Decimal)
	}

	p, err := o.fetch(ctx, sym)
	if err != nil {
		o.metrics.RecordPriceLookup("error")
		o.logger.Warn("Price lookup failed", "symbol", sym, "error", err)
		diag.Add(diagnostics.KindTransient, "price for %s unavailable: %v", sym, err)
		return decimal.Zero
	}
	o.metrics.RecordPriceLookup("source")
	return p
}

func (o *Oracle) fetch(ctx context.Context, sym string) (decimal.Decimal, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	if err := o.limiter.Wait(callCtx); err != nil {
		return decimal.Zero, err
	}
	p, err := o.source.FetchPrice(callCtx, sym)
	if err != nil {
		return decimal.Zero, err
	}
	o.cache.SetDefault(sym, p)
	return p, nil
}

// PricesOf resolves several symbols concurrently, one lookup per distinct symbol.
func (o *Oracle) PricesOf(ctx context.Context, symbols []string, diag diagnostics.Recorder) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(symbols))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	seen := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		sym := normalize(s)
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		g.Go(func() error {
			p := o.PriceOf(gctx, sym, diag)
			mu.Lock()
			out[sym] = p
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Warm refreshes the cache for every non-stable symbol. It returns the number
// of symbols refreshed and the last error seen.
func (o *Oracle) Warm(ctx context.Context, symbols []string) (int, error) {
	var (
		mu      sync.Mutex
		ok      int
		lastErr error
		seen    = make(map[string]bool, len(symbols))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for _, s := range symbols {
		sym := normalize(s)
		if sym == "" || seen[sym] || o.IsStable(sym) {
			continue
		}
		seen[sym] = true
		g.Go(func() error {
			_, err := o.fetch(gctx, sym)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				lastErr = err
				o.logger.Debug("Price warm-up failed", "symbol", sym, "error", err)
				return nil
			}
			ok++
			return nil
		})
	}
	_ = g.Wait()

	o.logger.Info("Price cache warmed", "refreshed", ok, "requested", len(seen))
	return ok, lastErr
}
