package price

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"
	"github.com/valyala/fasthttp"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultBinanceURL is the public Binance REST endpoint.
const DefaultBinanceURL = "https://api.binance.com"

// ErrNoPrice is returned when the source has no usable price for a symbol.
var ErrNoPrice = errors.New("no price available")

type tickerPrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// BinanceSource reads spot prices quoted in USDT.
type BinanceSource struct {
	client  *fasthttp.Client
	baseURL string
	quote   string
	timeout time.Duration
}

// NewBinanceSource returns a source against baseURL (DefaultBinanceURL if empty).
func NewBinanceSource(baseURL string, timeout time.Duration) *BinanceSource {
	if baseURL == "" {
		baseURL = DefaultBinanceURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &BinanceSource{
		client:  &fasthttp.Client{Name: "walletd"},
		baseURL: strings.TrimRight(baseURL, "/"),
		quote:   "USDT",
		timeout: timeout,
	}
}

// FetchPrice implements Source.
func (b *BinanceSource) FetchPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	pair := normalize(symbol) + b.quote
	requestURL := fmt.Sprintf("%s/api/v3/ticker/price?symbol=%s", b.baseURL, pair)

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	req.SetRequestURI(requestURL)
	req.Header.SetMethod(fasthttp.MethodGet)

	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	if deadline, ok := ctx.Deadline(); ok {
		if err := b.client.DoDeadline(req, resp, deadline); err != nil {
			return decimal.Zero, fmt.Errorf("failed to request %s: %w", pair, err)
		}
	} else if err := b.client.DoTimeout(req, resp, b.timeout); err != nil {
		return decimal.Zero, fmt.Errorf("failed to request %s: %w", pair, err)
	}

	if resp.StatusCode() != fasthttp.StatusOK {
		return decimal.Zero, fmt.Errorf("%s: status %d: %w", pair, resp.StatusCode(), ErrNoPrice)
	}

	var tp tickerPrice
	if err := json.Unmarshal(resp.Body(), &tp); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode %s ticker: %w", pair, err)
	}
	p, err := decimal.NewFromString(tp.Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: unparsable price %q: %w", pair, tp.Price, ErrNoPrice)
	}
	if p.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s: negative price: %w", pair, ErrNoPrice)
	}
	return p, nil
}
