package api

import (
	"context"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matrixise/walletd/internal/balance"
	"github.com/matrixise/walletd/internal/bridge"
	"github.com/matrixise/walletd/internal/diagnostics"
	"github.com/matrixise/walletd/internal/metrics"
	"github.com/matrixise/walletd/internal/registry"
	"github.com/matrixise/walletd/internal/session"
)

const (
	usdt    = "0xdac17f958d2ee523a2206206994597c13d831ec7"
	spender = "0x2222222222222222222222222222222222222222"
	owner   = "0x1111111111111111111111111111111111111111"
)

type emptyAggregator struct{}

func (emptyAggregator) Snapshot(_ context.Context, address string, _ diagnostics.Recorder) balance.Snapshot {
	return balance.Snapshot{Address: address, TakenAt: time.Now()}
}

type zeroAllowances struct{}

func (zeroAllowances) Allowance(context.Context, uint64, common.Address, common.Address, common.Address) (*big.Int, error) {
	return new(big.Int), nil
}

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.New([]registry.Chain{{
		Descriptor: registry.ChainDescriptor{
			ChainID: 1, DisplayName: "Ethereum", NativeSymbol: "ETH",
			ExplorerTxURL: "https://etherscan.io/tx/%s", ExplorerAddressURL: "https://etherscan.io/address/%s",
		},
		Tokens: []registry.TokenDescriptor{
			{Symbol: "ETH", ContractAddress: registry.NativeToken, Decimals: 18},
			{Symbol: "USDT", ContractAddress: usdt, Decimals: 6},
		},
		Spenders: []registry.Spender{{Address: common.HexToAddress(spender), Label: "Router"}},
	}})
	require.NoError(t, err)
	return reg
}

func newTestServer(t *testing.T, origins ...string) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer(Options{
		Registry: testRegistry(t),
		Health: func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		},
		Metrics: metrics.New(),
		Bridge: bridge.Deps{
			Registry:   testRegistry(t),
			Aggregator: emptyAggregator{},
			Allowances: zeroAllowances{},
			Session:    session.Config{Debounce: 10 * time.Millisecond},
		},
		AllowedOrigins: origins,
	})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = s.Close(context.Background())
	})
	return s, ts
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestRoutes(t *testing.T) {
	_, ts := newTestServer(t)

	tests := []struct {
		name     string
		path     string
		wantCode int
		contains string
	}{
		{"health", "/health", http.StatusOK, `"status":"ok"`},
		{"metrics", "/metrics", http.StatusOK, "go_goroutines"},
		{"chains", "/v1/chains", http.StatusOK, `"displayName":"Ethereum"`},
		{"chain", "/v1/chains/1", http.StatusOK, `"nativeSymbol":"ETH"`},
		{"tokens", "/v1/chains/1/tokens", http.StatusOK, `"symbol":"USDT"`},
		{"spenders", "/v1/chains/1/spenders", http.StatusOK, `"label":"Router"`},
		{"explorer tx", "/v1/chains/1/explorer/tx/0xabc", http.StatusOK, "https://etherscan.io/tx/0xabc"},
		{"explorer address", "/v1/chains/1/explorer/address/0xdef", http.StatusOK, "https://etherscan.io/address/0xdef"},
		{"bad link kind", "/v1/chains/1/explorer/block/1", http.StatusBadRequest, "unknown link kind"},
		{"unknown chain", "/v1/chains/999/tokens", http.StatusNotFound, "chain not found"},
		{"bad chain id", "/v1/chains/eth/tokens", http.StatusBadRequest, "invalid chain id"},
		{"not found", "/v2/chains", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := get(t, ts.URL+tt.path)
			assert.Equal(t, tt.wantCode, code)
			assert.Contains(t, body, tt.contains)
		})
	}
}

func TestTokensKeepDisplayOrder(t *testing.T) {
	_, ts := newTestServer(t)
	_, body := get(t, ts.URL+"/v1/chains/1/tokens")

	var tokens []registry.TokenDescriptor
	require.NoError(t, json.Unmarshal([]byte(body), &tokens))
	require.Len(t, tokens, 2)
	assert.Equal(t, "ETH", tokens[0].Symbol)
	assert.Equal(t, "USDT", tokens[1].Symbol)
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/session"
}

func TestSessionEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{"type": bridge.TypeNetworkChanged, "chainId": 1}))
	require.NoError(t, conn.WriteJSON(map[string]any{"type": bridge.TypeAccountChanged, "address": owner, "isConnected": true}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var msg bridge.Outbound
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, bridge.TypeSnapshot, msg.Type)
}

func TestSessionOriginCheck(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		wantOK  bool
	}{
		{"no origin header", nil, "", true},
		{"listed origin", []string{"https://wallet.example"}, "https://wallet.example", true},
		{"wildcard", []string{"*"}, "https://anything.example", true},
		{"unlisted origin", []string{"https://wallet.example"}, "https://evil.example", false},
		{"cross origin by default", nil, "https://evil.example", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ts := newTestServer(t, tt.allowed...)
			header := http.Header{}
			if tt.origin != "" {
				header.Set("Origin", tt.origin)
			}
			conn, resp, err := websocket.DefaultDialer.Dial(wsURL(ts), header)
			if tt.wantOK {
				require.NoError(t, err)
				conn.Close()
				return
			}
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		})
	}
}

func TestCloseEndsSessions(t *testing.T) {
	s, ts := newTestServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, s.Close(ctx))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	code, _ := get(t, ts.URL+"/v1/session")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}
