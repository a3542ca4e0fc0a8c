package price

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matrixise/walletd/internal/diagnostics"
)

type fakeSource struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
	calls  map[string]int
	err    error
}

func newFakeSource(prices map[string]string) *fakeSource {
	f := &fakeSource{prices: map[string]decimal.Decimal{}, calls: map[string]int{}}
	for k, v := range prices {
		f.prices[k] = decimal.RequireFromString(v)
	}
	return f
}

func (f *fakeSource) FetchPrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[symbol]++
	if f.err != nil {
		return decimal.Zero, f.err
	}
	p, ok := f.prices[symbol]
	if !ok {
		return decimal.Zero, ErrNoPrice
	}
	return p, nil
}

func (f *fakeSource) callCount(symbol string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[symbol]
}

func TestPriceOf(t *testing.T) {
	src := newFakeSource(map[string]string{"ETH": "3150.25"})
	o := NewOracle(src, Options{})
	ctx := context.Background()

	tests := []struct {
		name      string
		symbol    string
		want      string
		wantDiags int
	}{
		{"stablecoin short-circuits", "USDT", "1", 0},
		{"stablecoin lower case", "usdc", "1", 0},
		{"source price", "ETH", "3150.25", 0},
		{"missing price", "NOPE", "0", 1},
		{"empty symbol", " ", "0", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diag := diagnostics.New(nil)
			got := o.PriceOf(ctx, tt.symbol, diag)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s", got)
			assert.Equal(t, tt.wantDiags, diag.Len())
		})
	}

	assert.Zero(t, src.callCount("USDT"))
	assert.Zero(t, src.callCount("USDC"))
}

func TestPriceOfUsesCache(t *testing.T) {
	src := newFakeSource(map[string]string{"BNB": "600"})
	o := NewOracle(src, Options{CacheTTL: time.Minute})
	ctx := context.Background()

	for range 3 {
		p := o.PriceOf(ctx, "bnb", nil)
		assert.Equal(t, "600", p.String())
	}
	assert.Equal(t, 1, src.callCount("BNB"))
}

func TestPriceOfFailureIsTransient(t *testing.T) {
	src := newFakeSource(nil)
	src.err = errors.New("boom")
	o := NewOracle(src, Options{})

	diag := diagnostics.New(nil)
	p := o.PriceOf(context.Background(), "ETH", diag)
	assert.True(t, p.IsZero())

	entries := diag.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, diagnostics.KindTransient, entries[0].Kind)
	assert.Contains(t, entries[0].Message, "ETH")
}

func TestCustomStablecoins(t *testing.T) {
	src := newFakeSource(map[string]string{"USDT": "0.999"})
	o := NewOracle(src, Options{Stablecoins: []string{"DAI"}})

	assert.True(t, o.IsStable("dai"))
	assert.False(t, o.IsStable("USDT"))
	assert.Equal(t, "0.999", o.PriceOf(context.Background(), "USDT", nil).String())
}

func TestPricesOfDeduplicates(t *testing.T) {
	src := newFakeSource(map[string]string{"ETH": "3000", "MATIC": "0.5"})
	o := NewOracle(src, Options{})

	got := o.PricesOf(context.Background(), []string{"ETH", "eth", "MATIC", "USDT", ""}, nil)
	require.Len(t, got, 3)
	assert.Equal(t, "3000", got["ETH"].String())
	assert.Equal(t, "0.5", got["MATIC"].String())
	assert.Equal(t, "1", got["USDT"].String())
	assert.Equal(t, 1, src.callCount("ETH"))
}

func TestWarm(t *testing.T) {
	src := newFakeSource(map[string]string{"ETH": "3000"})
	o := NewOracle(src, Options{})

	n, err := o.Warm(context.Background(), []string{"ETH", "USDC", "MISSING", "ETH"})
	assert.Equal(t, 1, n)
	assert.ErrorIs(t, err, ErrNoPrice)
	assert.Zero(t, src.callCount("USDC"))

	o.PriceOf(context.Background(), "ETH", nil)
	assert.Equal(t, 1, src.callCount("ETH"), "served from the warmed cache")
}

func TestBinanceSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/price", r.URL.Path)
		switch r.URL.Query().Get("symbol") {
		case "ETHUSDT":
			_, _ = w.Write([]byte(`{"symbol":"ETHUSDT","price":"3150.25000000"}`))
		case "BADUSDT":
			_, _ = w.Write([]byte(`{"symbol":"BADUSDT","price":"n/a"}`))
		case "GARBAGEUSDT":
			_, _ = w.Write([]byte(`not json`))
		default:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
		}
	}))
	defer srv.Close()

	b := NewBinanceSource(srv.URL+"/", time.Second)

	tests := []struct {
		name    string
		symbol  string
		want    string
		wantErr error
	}{
		{"known pair", "eth", "3150.25", nil},
		{"unknown pair", "XYZ", "", ErrNoPrice},
		{"unparsable price", "BAD", "", ErrNoPrice},
		{"malformed body", "GARBAGE", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			p, err := b.FetchPrice(ctx, tt.symbol)
			if tt.want == "" {
				require.Error(t, err)
				if tt.wantErr != nil {
					assert.ErrorIs(t, err, tt.wantErr)
				}
				return
			}
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(p))
		})
	}
}
