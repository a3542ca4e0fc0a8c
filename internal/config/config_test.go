package config

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matrixise/walletd/internal/registry"
	"github.com/matrixise/walletd/internal/session"
)

const routerAddr = "0x68b3465833fb72A70ecDF485E0e4C7bD8665Fc45"

func customChains() []ChainConfig {
	return []ChainConfig{
		{
			ChainID:            1,
			Name:               "Ethereum",
			NativeSymbol:       "ETH",
			ExplorerTxURL:      "https://etherscan.io/tx/%s",
			ExplorerAddressURL: "https://etherscan.io/address/%s",
			Tokens: []TokenConfig{
				{Symbol: "ETH", Address: "native", Decimals: 18},
				{Symbol: "USDT", Address: "0xdAC17F958D2ee523a2206206994597C13D831ec7", Decimals: 6},
				{Symbol: "LINK", Address: "0x514910771AF9Ca656af840dff83E8264EcF986CA", Decimals: 18},
			},
		},
		{
			ChainID:            31337,
			Name:               "Local",
			NativeSymbol:       "ETH",
			ExplorerTxURL:      "http://localhost/tx/%s",
			ExplorerAddressURL: "http://localhost/address/%s",
		},
	}
}

func TestConfigRegistry(t *testing.T) {
	t.Run("built-in table when no chains configured", func(t *testing.T) {
		cfg := &Config{}
		reg, err := cfg.Registry()
		require.NoError(t, err)
		assert.Len(t, reg.ChainIDs(), len(registry.Default()))
		assert.Empty(t, reg.Spenders(1))
	})

	t.Run("configured chains replace the table", func(t *testing.T) {
		cfg := &Config{
			Chains:   customChains(),
			Spenders: []SpenderConfig{{ChainID: 1, Address: routerAddr, Label: "Router"}},
		}
		reg, err := cfg.Registry()
		require.NoError(t, err)
		assert.Equal(t, []uint64{1, 31337}, reg.ChainIDs())

		sp, err := reg.Spender(1, common.HexToAddress(routerAddr))
		require.NoError(t, err)
		assert.Equal(t, "Router", sp.Label)

		_, err = reg.Spender(31337, common.HexToAddress(routerAddr))
		assert.ErrorIs(t, err, registry.ErrSpenderNotRegistered)
	})

	t.Run("spenders attach to built-in chains", func(t *testing.T) {
		cfg := &Config{Spenders: []SpenderConfig{{ChainID: 137, Address: routerAddr, Label: "Router"}}}
		reg, err := cfg.Registry()
		require.NoError(t, err)
		assert.Len(t, reg.Spenders(137), 1)
	})

	t.Run("spender on unknown chain", func(t *testing.T) {
		cfg := &Config{Spenders: []SpenderConfig{{ChainID: 999999, Address: routerAddr, Label: "Router"}}}
		_, err := cfg.Registry()
		assert.ErrorIs(t, err, registry.ErrChainNotFound)
	})
}

func TestConfigEndpoints(t *testing.T) {
	cfg := &Config{
		Chains: customChains(),
		RPC: RPCConfig{Endpoints: []EndpointConfig{
			{ChainID: 31337, URLs: []string{"http://localhost:8545"}},
		}},
	}
	reg, err := cfg.Registry()
	require.NoError(t, err)

	endpoints, err := cfg.Endpoints(reg)
	require.NoError(t, err)
	assert.Equal(t, registry.DefaultRPCURLs[1], endpoints[1])
	assert.Equal(t, []string{"http://localhost:8545"}, endpoints[31337])

	cfg.RPC.Endpoints = append(cfg.RPC.Endpoints, EndpointConfig{ChainID: 5, URLs: []string{"http://x"}})
	_, err = cfg.Endpoints(reg)
	assert.ErrorIs(t, err, registry.ErrChainNotFound)
}

func TestConfigWarmSymbols(t *testing.T) {
	cfg := &Config{Chains: customChains(), Price: PriceConfig{Stablecoins: []string{"usdt"}}}
	reg, err := cfg.Registry()
	require.NoError(t, err)

	assert.Equal(t, []string{"ETH", "LINK"}, cfg.WarmSymbols(reg))

	cfg.Price.WarmSymbols = []string{"BTC"}
	assert.Equal(t, []string{"BTC"}, cfg.WarmSymbols(reg))
}

func TestConfigGetTimezone(t *testing.T) {
	tests := []struct {
		name     string
		timezone string
		want     string
	}{
		{"explicit UTC", "UTC", "UTC"},
		{"empty defaults to UTC", "", "UTC"},
		{"named zone", "Europe/Brussels", "Europe/Brussels"},
		{"unknown falls back to UTC", "Mars/Olympus", "UTC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Price: PriceConfig{Timezone: tt.timezone}}
			assert.Equal(t, tt.want, cfg.GetTimezone().String())
		})
	}
}

func TestConfigShouldWarmOnStart(t *testing.T) {
	trueVal, falseVal := true, false

	assert.True(t, (&Config{Price: PriceConfig{WarmOnStart: &trueVal}}).ShouldWarmOnStart())
	assert.False(t, (&Config{Price: PriceConfig{WarmOnStart: &falseVal}}).ShouldWarmOnStart())
	assert.True(t, (&Config{}).ShouldWarmOnStart(), "nil defaults to true")
}

func TestConfigSettings(t *testing.T) {
	cfg := &Config{
		Server:  ServerConfig{Host: "127.0.0.1", Port: 9090},
		Session: SessionConfig{Debounce: 500 * time.Millisecond, Granularity: "address"},
		Approval: ApprovalConfig{
			SwitchTimeout: 5 * time.Second, PollInterval: time.Second, PollMaxInterval: 4 * time.Second,
			PollTimeout: time.Minute, PollMaxAttempts: 7, DisconnectOnReject: true,
		},
		Price:     PriceConfig{Stablecoins: []string{"DAI"}, RateLimit: 2, Burst: 1},
		Notify:    NotifyConfig{QueueSize: 16, DeliveryTimeout: time.Second},
		Websocket: WebsocketConfig{PingInterval: time.Second, PongWait: 3 * time.Second, MaxMessageBytes: 2048},
	}

	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Addr())
	assert.Equal(t, session.GranularityAddress, cfg.SessionSettings().Granularity)
	assert.Equal(t, 500*time.Millisecond, cfg.SessionSettings().Debounce)

	ac := cfg.ApprovalSettings()
	assert.Equal(t, 7, ac.PollMaxAttempts)
	assert.True(t, ac.DisconnectOnReject)

	assert.Equal(t, []string{"DAI"}, cfg.OracleOptions().Stablecoins)
	assert.Equal(t, 16, cfg.NotifyOptions().QueueSize)
	assert.Equal(t, int64(2048), cfg.SocketSettings().MaxMessageBytes)
}
