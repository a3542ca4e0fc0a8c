package blockchain

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testToken   = common.HexToAddress("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48")
	testOwner   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testSpender = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func bigFromString(s string) *big.Int {
	v, _ := new(big.Int).SetString(s, 10)
	return v
}

func TestToDecimal(t *testing.T) {
	tests := []struct {
		name     string
		raw      *big.Int
		decimals uint8
		want     string
	}{
		{"zero balance", big.NewInt(0), 18, "0"},
		{"nil balance", nil, 18, "0"},
		{"1 wei", big.NewInt(1), 18, "0.000000000000000001"},
		{"one token", big.NewInt(1_000_000_000_000_000_000), 18, "1"},
		{"one and a half tokens", big.NewInt(1_500_000_000_000_000_000), 18, "1.5"},
		{"six decimals", big.NewInt(1_500_000), 6, "1.5"},
		{"exactly one USDC", big.NewInt(1_000_000), 6, "1"},
		{"zero decimals", big.NewInt(100), 0, "100"},
		{"large balance", bigFromString("123456789000000000000000000"), 18, "123456789"},
		{"high precision", bigFromString("123456789123456789"), 18, "0.123456789123456789"},
		{"large balance with small decimals", bigFromString("999999999999999999"), 6, "999999999999.999999"},
		{"max uint256 at 77 decimals", bigFromString("115792089237316195423570985008687907853269984665640564039457584007913129639935"), 77, "1.15792089237316195423570985008687907853269984665640564039457584007913129639935"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ToDecimal(tt.raw, tt.decimals).String())
		})
	}
}

func TestToDecimalPreservesInput(t *testing.T) {
	original := big.NewInt(1_000_000_000_000_000_000)
	_ = ToDecimal(original, 18)
	assert.Equal(t, "1000000000000000000", original.String())
}

func TestToRaw(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		decimals uint8
		want     string
		wantErr  bool
	}{
		{"whole amount", "25", 6, "25000000", false},
		{"fractional amount", "1.5", 18, "1500000000000000000", false},
		{"smallest unit", "0.000001", 6, "1", false},
		{"too many digits", "0.0000001", 6, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToRaw(decimal.RequireFromString(tt.amount), tt.decimals)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestPackApprove(t *testing.T) {
	data, err := PackApprove(testSpender, big.NewInt(25_000_000))
	require.NoError(t, err)
	require.Len(t, data, 4+32+32)
	assert.Equal(t, []byte{0x09, 0x5e, 0xa7, 0xb3}, data[:4])
	assert.Equal(t, testSpender.Bytes(), data[4+12:4+32])
	assert.Equal(t, big.NewInt(25_000_000), new(big.Int).SetBytes(data[36:]))

	_, err = PackApprove(testSpender, big.NewInt(0))
	assert.Error(t, err)
	_, err = PackApprove(testSpender, nil)
	assert.Error(t, err)
}

func TestClientReads(t *testing.T) {
	node, srv := newFakeNode(t, 100)
	node.native[testOwner] = big.NewInt(42)
	node.balances[[2]common.Address{testToken, testOwner}] = big.NewInt(1_500_000)
	node.allowances[[3]common.Address{testToken, testOwner, testSpender}] = big.NewInt(7)

	client, err := NewClient(100, []string{srv.URL}, time.Minute)
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()

	bal, err := client.TokenBalance(ctx, testToken, testOwner)
	require.NoError(t, err)
	assert.Equal(t, "1.5", ToDecimal(bal, 6).String())

	native, err := client.NativeBalance(ctx, testOwner)
	require.NoError(t, err)
	assert.Equal(t, int64(42), native.Int64())

	allowance, err := client.Allowance(ctx, testToken, testOwner, testSpender)
	require.NoError(t, err)
	assert.Equal(t, int64(7), allowance.Int64())

	meta, err := client.TokenMetadata(ctx, testToken)
	require.NoError(t, err)
	assert.Equal(t, TokenMetadata{Symbol: "USDC", Decimals: 6}, meta)
}

func TestFailoverSkipsWrongChain(t *testing.T) {
	_, wrong := newFakeNode(t, 5)
	_, right := newFakeNode(t, 100)

	fc, err := NewFailoverClient(100, []string{wrong.URL, right.URL}, time.Minute)
	require.NoError(t, err)
	defer fc.Close()

	healthy, total := fc.Healthy()
	assert.Equal(t, 1, healthy)
	assert.Equal(t, 2, total)

	_, url, err := fc.GetClient()
	require.NoError(t, err)
	assert.Equal(t, right.URL, url)
}

func TestFailoverMarkUnhealthy(t *testing.T) {
	_, a := newFakeNode(t, 100)
	_, b := newFakeNode(t, 100)

	fc, err := NewFailoverClient(100, []string{a.URL, b.URL}, time.Hour)
	require.NoError(t, err)
	defer fc.Close()

	_, url, err := fc.GetClient()
	require.NoError(t, err)
	assert.Equal(t, a.URL, url)

	fc.MarkUnhealthy(a.URL, assert.AnError)
	_, url, err = fc.GetClient()
	require.NoError(t, err)
	assert.Equal(t, b.URL, url)

	fc.MarkUnhealthy(b.URL, assert.AnError)
	_, _, err = fc.GetClient()
	assert.ErrorIs(t, err, ErrNoHealthyEndpoint)
}

func TestFailoverNoEndpoints(t *testing.T) {
	_, err := NewFailoverClient(1, nil, time.Minute)
	assert.Error(t, err)
}

func TestFailoverUnreachableAtStartup(t *testing.T) {
	node, srv := newFakeNode(t, 100)
	node.setDown(true)

	fc, err := NewFailoverClient(100, []string{srv.URL}, time.Hour)
	require.NoError(t, err)
	defer fc.Close()

	healthy, _ := fc.Healthy()
	assert.Zero(t, healthy)

	_, _, err = fc.GetClient()
	assert.ErrorIs(t, err, ErrNoHealthyEndpoint)
}

func TestPool(t *testing.T) {
	node, srv := newFakeNode(t, 100)
	node.balances[[2]common.Address{testToken, testOwner}] = big.NewInt(3)

	pool, err := NewPool(map[uint64][]string{100: {srv.URL}, 200: nil}, time.Minute)
	require.NoError(t, err)
	defer pool.Close()

	ctx := context.Background()

	bal, err := pool.TokenBalance(ctx, 100, testToken, testOwner)
	require.NoError(t, err)
	assert.Equal(t, int64(3), bal.Int64())

	_, err = pool.NativeBalance(ctx, 200, testOwner)
	assert.ErrorIs(t, err, ErrChainNotConfigured)

	_, err = pool.Allowance(ctx, 300, testToken, testOwner, testSpender)
	assert.ErrorIs(t, err, ErrChainNotConfigured)

	health := pool.Health()
	require.Len(t, health, 1)
	assert.Equal(t, EndpointHealth{ChainID: 100, Healthy: 1, Total: 1}, health[0])
}
