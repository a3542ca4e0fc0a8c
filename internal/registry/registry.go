// Package registry holds the static table of supported chains, their tokens and
// the spender contracts an operator has registered for approvals.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// NativeToken is the contract address sentinel for a chain's native currency.
const NativeToken = "native"

// MaxDecimals is the largest exponent a uint256 amount can carry.
const MaxDecimals = 77

// LinkKind selects an explorer URL template.
type LinkKind int

const (
	LinkTx LinkKind = iota
	LinkAddress
)

var (
	ErrChainNotFound        = errors.New("chain not found")
	ErrTokenNotFound        = errors.New("token not registered")
	ErrSpenderNotRegistered = errors.New("spender not registered")
)

// ChainDescriptor describes one supported chain.
type ChainDescriptor struct {
	ChainID            uint64 `json:"chainId"`
	DisplayName        string `json:"displayName"`
	NativeSymbol       string `json:"nativeSymbol"`
	ExplorerTxURL      string `json:"explorerTxUrl"`
	ExplorerAddressURL string `json:"explorerAddressUrl"`
}

// TokenDescriptor describes a token on a single chain.
type TokenDescriptor struct {
	Symbol          string `json:"symbol"`
	ContractAddress string `json:"contractAddress"`
	Decimals        uint8  `json:"decimals"`
}

// IsNative reports whether the descriptor is the chain's native currency.
func (t TokenDescriptor) IsNative() bool {
	return strings.EqualFold(t.ContractAddress, NativeToken)
}

// Spender is a contract allowed to receive token approvals on a chain.
type Spender struct {
	Address common.Address `json:"address"`
	Label   string         `json:"label"`
}

// Chain bundles a descriptor with its tokens and spenders for construction.
type Chain struct {
	Descriptor ChainDescriptor
	Tokens     []TokenDescriptor
	Spenders   []Spender
}

// Registry is immutable once built.
type Registry struct {
	order    []uint64
	chains   map[uint64]ChainDescriptor
	tokens   map[uint64][]TokenDescriptor
	spenders map[uint64]map[common.Address]Spender
}

// New validates the chain table and builds a registry.
func New(chains []Chain) (*Registry, error) {
	if len(chains) == 0 {
		return nil, errors.New("at least one chain is required")
	}

	r := &Registry{
		order:    make([]uint64, 0, len(chains)),
		chains:   make(map[uint64]ChainDescriptor, len(chains)),
		tokens:   make(map[uint64][]TokenDescriptor, len(chains)),
		spenders: make(map[uint64]map[common.Address]Spender, len(chains)),
	}

	for _, c := range chains {
		d := c.Descriptor
		if d.ChainID == 0 {
			return nil, fmt.Errorf("chain %q: chain id must be non-zero", d.DisplayName)
		}
		if _, dup := r.chains[d.ChainID]; dup {
			return nil, fmt.Errorf("chain %d registered twice", d.ChainID)
		}
		if err := checkTemplate(d.ExplorerTxURL); err != nil {
			return nil, fmt.Errorf("chain %d tx explorer: %w", d.ChainID, err)
		}
		if err := checkTemplate(d.ExplorerAddressURL); err != nil {
			return nil, fmt.Errorf("chain %d address explorer: %w", d.ChainID, err)
		}

		seen := make(map[string]bool, len(c.Tokens))
		tokens := make([]TokenDescriptor, 0, len(c.Tokens))
		for _, t := range c.Tokens {
			if t.Symbol == "" {
				return nil, fmt.Errorf("chain %d: token without symbol", d.ChainID)
			}
			if t.Decimals > MaxDecimals {
				return nil, fmt.Errorf("chain %d token %s: decimals %d exceed %d", d.ChainID, t.Symbol, t.Decimals, MaxDecimals)
			}
			key := strings.ToLower(t.ContractAddress)
			if seen[key] {
				return nil, fmt.Errorf("chain %d token %s: contract %s listed twice", d.ChainID, t.Symbol, t.ContractAddress)
			}
			seen[key] = true
			if !t.IsNative() && !common.IsHexAddress(t.ContractAddress) {
				// Kept on purpose: balance queries degrade to zero for it.
				slog.Warn("Token with malformed contract address registered",
					"chain_id", d.ChainID, "symbol", t.Symbol, "address", t.ContractAddress)
			}
			tokens = append(tokens, t)
		}

		spenders := make(map[common.Address]Spender, len(c.Spenders))
		for _, s := range c.Spenders {
			if s.Address == (common.Address{}) {
				return nil, fmt.Errorf("chain %d spender %q: zero address", d.ChainID, s.Label)
			}
			spenders[s.Address] = s
		}

		r.order = append(r.order, d.ChainID)
		r.chains[d.ChainID] = d
		r.tokens[d.ChainID] = tokens
		r.spenders[d.ChainID] = spenders
	}

	return r, nil
}

func checkTemplate(tmpl string) error {
	if n := strings.Count(tmpl, "%s"); n != 1 {
		return fmt.Errorf("template %q must contain exactly one %%s (found %d)", tmpl, n)
	}
	if strings.Count(tmpl, "%") != 1 {
		return fmt.Errorf("template %q contains stray %% verbs", tmpl)
	}
	return nil
}

// Describe returns the descriptor of a registered chain.
func (r *Registry) Describe(chainID uint64) (ChainDescriptor, error) {
	d, ok := r.chains[chainID]
	if !ok {
		return ChainDescriptor{}, fmt.Errorf("chain %d: %w", chainID, ErrChainNotFound)
	}
	return d, nil
}

// ChainIDs returns the registered chain ids in registration order.
func (r *Registry) ChainIDs() []uint64 {
	out := make([]uint64, len(r.order))
	copy(out, r.order)
	return out
}

// Chains returns all descriptors in registration order.
func (r *Registry) Chains() []ChainDescriptor {
	out := make([]ChainDescriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.chains[id])
	}
	return out
}

// TokensFor returns a copy of the chain's token list. Unknown chains yield nil.
func (r *Registry) TokensFor(chainID uint64) []TokenDescriptor {
	tokens, ok := r.tokens[chainID]
	if !ok {
		return nil
	}
	out := make([]TokenDescriptor, len(tokens))
	copy(out, tokens)
	return out
}

// Token looks up a registered token by contract address (case-insensitive).
func (r *Registry) Token(chainID uint64, address string) (TokenDescriptor, error) {
	if _, err := r.Describe(chainID); err != nil {
		return TokenDescriptor{}, err
	}
	for _, t := range r.tokens[chainID] {
		if strings.EqualFold(t.ContractAddress, address) {
			return t, nil
		}
	}
	return TokenDescriptor{}, fmt.Errorf("token %s on chain %d: %w", address, chainID, ErrTokenNotFound)
}

// Spender looks up a registered spender contract.
func (r *Registry) Spender(chainID uint64, address common.Address) (Spender, error) {
	if _, err := r.Describe(chainID); err != nil {
		return Spender{}, err
	}
	s, ok := r.spenders[chainID][address]
	if !ok {
		return Spender{}, fmt.Errorf("spender %s on chain %d: %w", address.Hex(), chainID, ErrSpenderNotRegistered)
	}
	return s, nil
}

// Spenders returns the registered spenders of a chain.
func (r *Registry) Spenders(chainID uint64) []Spender {
	out := make([]Spender, 0, len(r.spenders[chainID]))
	for _, s := range r.spenders[chainID] {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b Spender) int { return a.Address.Cmp(b.Address) })
	return out
}

// ExplorerURL renders a block explorer link, or "#" when the chain is unknown.
func (r *Registry) ExplorerURL(chainID uint64, ref string, kind LinkKind) string {
	d, ok := r.chains[chainID]
	if !ok {
		return "#"
	}
	tmpl := d.ExplorerAddressURL
	if kind == LinkTx {
		tmpl = d.ExplorerTxURL
	}
	return fmt.Sprintf(tmpl, ref)
}

// ParseLinkKind accepts "tx" or "address".
func ParseLinkKind(s string) (LinkKind, error) {
	switch strings.ToLower(s) {
	case "tx":
		return LinkTx, nil
	case "address":
		return LinkAddress, nil
	}
	return 0, fmt.Errorf("unknown link kind %q", s)
}
