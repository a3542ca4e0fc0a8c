package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"

	"github.com/matrixise/walletd/internal/approval"
	"github.com/matrixise/walletd/internal/bridge"
	"github.com/matrixise/walletd/internal/notify"
	"github.com/matrixise/walletd/internal/price"
	"github.com/matrixise/walletd/internal/registry"
	"github.com/matrixise/walletd/internal/scheduler"
	"github.com/matrixise/walletd/internal/session"
)

// Config represents the application configuration
type Config struct {
	LogLevel  string          `mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`
	Server    ServerConfig    `mapstructure:"server"`
	RPC       RPCConfig       `mapstructure:"rpc"`
	Chains    []ChainConfig   `mapstructure:"chains" validate:"dive"`
	Spenders  []SpenderConfig `mapstructure:"spenders" validate:"dive"`
	Balance   BalanceConfig   `mapstructure:"balance"`
	Price     PriceConfig     `mapstructure:"price"`
	Session   SessionConfig   `mapstructure:"session"`
	Approval  ApprovalConfig  `mapstructure:"approval"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Websocket WebsocketConfig `mapstructure:"websocket"`
}

// ServerConfig is the HTTP listener.
type ServerConfig struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port" validate:"min=1024,max=65535"`
	AllowedOrigins []string `mapstructure:"allowed_origins" validate:"dive,required"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RPCConfig lists endpoints per chain. Chains without entries use the
// built-in public endpoints.
type RPCConfig struct {
	Cooldown  time.Duration    `mapstructure:"cooldown" validate:"gt=0"`
	Endpoints []EndpointConfig `mapstructure:"endpoints" validate:"dive"`
}

// EndpointConfig is the ordered failover list of one chain.
type EndpointConfig struct {
	ChainID uint64   `mapstructure:"chain_id" validate:"required"`
	URLs    []string `mapstructure:"urls" validate:"required,min=1,dive,url"`
}

// ChainConfig replaces the built-in chain table when at least one is given.
type ChainConfig struct {
	ChainID            uint64        `mapstructure:"chain_id" validate:"required"`
	Name               string        `mapstructure:"name" validate:"required,max=64"`
	NativeSymbol       string        `mapstructure:"native_symbol" validate:"required,max=16"`
	ExplorerTxURL      string        `mapstructure:"explorer_tx_url" validate:"required,explorer_tmpl"`
	ExplorerAddressURL string        `mapstructure:"explorer_address_url" validate:"required,explorer_tmpl"`
	Tokens             []TokenConfig `mapstructure:"tokens" validate:"dive"`
}

// TokenConfig represents a single token configuration
type TokenConfig struct {
	Symbol   string `mapstructure:"symbol" validate:"required,min=1,max=32"`
	Address  string `mapstructure:"address" validate:"required,token_addr"`
	Decimals uint8  `mapstructure:"decimals" validate:"max=77"`
}

// SpenderConfig registers a contract that may receive approvals on a chain.
type SpenderConfig struct {
	ChainID uint64 `mapstructure:"chain_id" validate:"required"`
	Address string `mapstructure:"address" validate:"required,eth_addr"`
	Label   string `mapstructure:"label" validate:"required,max=64"`
}

// BalanceConfig tunes the balance fan-out.
type BalanceConfig struct {
	Concurrency  int           `mapstructure:"concurrency" validate:"min=0"`
	QueryTimeout time.Duration `mapstructure:"query_timeout" validate:"gt=0"`
}

// PriceConfig configures the price oracle and its cache warm-up.
type PriceConfig struct {
	BaseURL      string        `mapstructure:"base_url" validate:"required,url"`
	Stablecoins  []string      `mapstructure:"stablecoins" validate:"dive,required"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl" validate:"gt=0"`
	Timeout      time.Duration `mapstructure:"timeout" validate:"gt=0"`
	RateLimit    float64       `mapstructure:"rate_limit" validate:"gt=0"`
	Burst        int           `mapstructure:"burst" validate:"min=1"`
	Concurrency  int           `mapstructure:"concurrency" validate:"min=1"`
	WarmSchedule string        `mapstructure:"warm_schedule" validate:"schedule"`
	WarmSymbols  []string      `mapstructure:"warm_symbols" validate:"dive,required"`
	WarmOnStart  *bool         `mapstructure:"warm_on_start"`
	Timezone     string        `mapstructure:"timezone" validate:"omitempty,timezone"`
}

// SessionConfig tunes wallet event handling.
type SessionConfig struct {
	Debounce    time.Duration `mapstructure:"debounce" validate:"gt=0"`
	Granularity string        `mapstructure:"granularity" validate:"oneof=address_chain address"`
}

// ApprovalConfig bounds network switches and confirmation polling.
type ApprovalConfig struct {
	SwitchTimeout      time.Duration `mapstructure:"switch_timeout" validate:"gt=0"`
	PollInterval       time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	PollMaxInterval    time.Duration `mapstructure:"poll_max_interval" validate:"gtefield=PollInterval"`
	PollTimeout        time.Duration `mapstructure:"poll_timeout" validate:"gt=0"`
	PollMaxAttempts    int           `mapstructure:"poll_max_attempts" validate:"min=1"`
	DisconnectOnReject bool          `mapstructure:"disconnect_on_reject"`
}

// NotifyConfig tunes asynchronous event delivery.
type NotifyConfig struct {
	QueueSize       int           `mapstructure:"queue_size" validate:"min=1"`
	DeliveryTimeout time.Duration `mapstructure:"delivery_timeout" validate:"gt=0"`
}

// WebsocketConfig tunes browser sessions.
type WebsocketConfig struct {
	PingInterval    time.Duration `mapstructure:"ping_interval" validate:"gt=0"`
	PongWait        time.Duration `mapstructure:"pong_wait" validate:"gtfield=PingInterval"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
	MaxMessageBytes int64         `mapstructure:"max_message_bytes" validate:"min=1024"`
}

// GetTimezone returns the warm-up timezone, UTC by default.
func (c *Config) GetTimezone() *time.Location {
	if c.Price.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Price.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ShouldWarmOnStart returns whether the warm-up runs once at startup (default true).
func (c *Config) ShouldWarmOnStart() bool {
	if c.Price.WarmOnStart == nil {
		return true
	}
	return *c.Price.WarmOnStart
}

// Registry builds the chain registry: the configured chains, or the
// built-in table when none are configured, plus the configured spenders.
func (c *Config) Registry() (*registry.Registry, error) {
	var chains []registry.Chain
	if len(c.Chains) == 0 {
		chains = registry.Default()
	} else {
		chains = make([]registry.Chain, 0, len(c.Chains))
		for _, cc := range c.Chains {
			chain := registry.Chain{
				Descriptor: registry.ChainDescriptor{
					ChainID:            cc.ChainID,
					DisplayName:        cc.Name,
					NativeSymbol:       cc.NativeSymbol,
					ExplorerTxURL:      cc.ExplorerTxURL,
					ExplorerAddressURL: cc.ExplorerAddressURL,
				},
			}
			for _, t := range cc.Tokens {
				chain.Tokens = append(chain.Tokens, registry.TokenDescriptor{
					Symbol:          t.Symbol,
					ContractAddress: t.Address,
					Decimals:        t.Decimals,
				})
			}
			chains = append(chains, chain)
		}
	}

	index := make(map[uint64]int, len(chains))
	for i, ch := range chains {
		index[ch.Descriptor.ChainID] = i
	}
	for _, sp := range c.Spenders {
		i, ok := index[sp.ChainID]
		if !ok {
			return nil, fmt.Errorf("spender %s: chain %d: %w", sp.Address, sp.ChainID, registry.ErrChainNotFound)
		}
		chains[i].Spenders = append(chains[i].Spenders, registry.Spender{
			Address: common.HexToAddress(sp.Address),
			Label:   sp.Label,
		})
	}

	return registry.New(chains)
}

// Endpoints returns the RPC failover list of every registered chain.
func (c *Config) Endpoints(reg *registry.Registry) (map[uint64][]string, error) {
	out := make(map[uint64][]string, len(reg.ChainIDs()))
	for _, id := range reg.ChainIDs() {
		if urls, ok := registry.DefaultRPCURLs[id]; ok {
			out[id] = urls
		}
	}
	for _, ep := range c.RPC.Endpoints {
		if _, err := reg.Describe(ep.ChainID); err != nil {
			return nil, fmt.Errorf("rpc endpoints for chain %d: %w", ep.ChainID, err)
		}
		out[ep.ChainID] = ep.URLs
	}
	return out, nil
}

// WarmSymbols returns the symbols the warm-up refreshes: the configured
// list, or every non-stablecoin symbol in the registry.
func (c *Config) WarmSymbols(reg *registry.Registry) []string {
	if len(c.Price.WarmSymbols) > 0 {
		return c.Price.WarmSymbols
	}
	stable := make(map[string]bool, len(c.Price.Stablecoins))
	for _, s := range c.Price.Stablecoins {
		stable[strings.ToUpper(s)] = true
	}
	seen := make(map[string]bool)
	var out []string
	for _, id := range reg.ChainIDs() {
		for _, t := range reg.TokensFor(id) {
			sym := strings.ToUpper(t.Symbol)
			if stable[sym] || seen[sym] {
				continue
			}
			seen[sym] = true
			out = append(out, sym)
		}
	}
	return out
}

// SessionSettings converts the session section.
func (c *Config) SessionSettings() session.Config {
	return session.Config{
		Debounce:    c.Session.Debounce,
		Granularity: session.Granularity(c.Session.Granularity),
	}
}

// ApprovalSettings converts the approval section.
func (c *Config) ApprovalSettings() approval.Config {
	return approval.Config{
		SwitchTimeout:      c.Approval.SwitchTimeout,
		PollInterval:       c.Approval.PollInterval,
		PollMaxInterval:    c.Approval.PollMaxInterval,
		PollTimeout:        c.Approval.PollTimeout,
		PollMaxAttempts:    c.Approval.PollMaxAttempts,
		DisconnectOnReject: c.Approval.DisconnectOnReject,
	}
}

// OracleOptions converts the price section. Logger and metrics are left to the caller.
func (c *Config) OracleOptions() price.Options {
	return price.Options{
		Stablecoins: c.Price.Stablecoins,
		CacheTTL:    c.Price.CacheTTL,
		Timeout:     c.Price.Timeout,
		RateLimit:   c.Price.RateLimit,
		Burst:       c.Price.Burst,
		Concurrency: c.Price.Concurrency,
	}
}

// NotifyOptions converts the notify section.
func (c *Config) NotifyOptions() notify.Options {
	return notify.Options{
		QueueSize:       c.Notify.QueueSize,
		DeliveryTimeout: c.Notify.DeliveryTimeout,
	}
}

// SocketSettings converts the websocket section.
func (c *Config) SocketSettings() bridge.Config {
	return bridge.Config{
		PingInterval:    c.Websocket.PingInterval,
		PongWait:        c.Websocket.PongWait,
		WriteTimeout:    c.Websocket.WriteTimeout,
		MaxMessageBytes: c.Websocket.MaxMessageBytes,
	}
}

// ethAddressValidator validates Ethereum addresses
func ethAddressValidator(fl validator.FieldLevel) bool {
	return common.IsHexAddress(fl.Field().String())
}

// tokenAddressValidator accepts a contract address or the native sentinel.
func tokenAddressValidator(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	return strings.EqualFold(s, registry.NativeToken) || common.IsHexAddress(s)
}

// explorerTemplateValidator requires exactly one %s placeholder.
func explorerTemplateValidator(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	return strings.Count(s, "%s") == 1 && strings.Count(s, "%") == 1
}

// scheduleValidator validates schedule strings (duration or cron)
func scheduleValidator(fl validator.FieldLevel) bool {
	return scheduler.ValidateSchedule(fl.Field().String()) == nil
}

// NewValidator creates a validator with custom validation rules
func NewValidator() *validator.Validate {
	validate := validator.New()
	validate.RegisterValidation("eth_addr", ethAddressValidator)
	validate.RegisterValidation("token_addr", tokenAddressValidator)
	validate.RegisterValidation("explorer_tmpl", explorerTemplateValidator)
	validate.RegisterValidation("schedule", scheduleValidator)
	return validate
}
