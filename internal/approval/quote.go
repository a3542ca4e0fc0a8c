package approval

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"github.com/matrixise/walletd/internal/blockchain"
	"github.com/matrixise/walletd/internal/registry"
)

// maxUint256 is the conventional "unlimited" allowance. It is never requested.
var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Item is one approval the user asked for, in human units.
type Item struct {
	Token   string          `json:"token"`
	Spender string          `json:"spender"`
	Amount  decimal.Decimal `json:"amount"`
}

// QuoteItem is the disclosure of one item shown to the user before consent.
type QuoteItem struct {
	Token        string          `json:"token"`
	Symbol       string          `json:"symbol"`
	Decimals     uint8           `json:"decimals"`
	Spender      string          `json:"spender"`
	SpenderLabel string          `json:"spenderLabel"`
	Amount       decimal.Decimal `json:"amount"`
	RawAmount    string          `json:"rawAmount"`
	SpenderURL   string          `json:"spenderUrl"`

	token   common.Address
	spender common.Address
	raw     *big.Int
}

// Quote is the itemized disclosure plus the digest the caller must echo back.
type Quote struct {
	Owner     string      `json:"owner"`
	ChainID   uint64      `json:"chainId"`
	ChainName string      `json:"chainName"`
	Items     []QuoteItem `json:"items"`
	Digest    common.Hash `json:"digest"`

	owner common.Address
}

// Quote validates a request and builds its disclosure. It has no side effects.
func (c *Coordinator) Quote(owner string, chainID uint64, items []Item) (Quote, error) {
	return buildQuote(c.registry, owner, chainID, items)
}

func buildQuote(reg *registry.Registry, owner string, chainID uint64, items []Item) (Quote, error) {
	if !common.IsHexAddress(owner) {
		return Quote{}, fmt.Errorf("owner %q: %w", owner, ErrInvalidAddress)
	}
	chain, err := reg.Describe(chainID)
	if err != nil {
		return Quote{}, fmt.Errorf("%w: %w", ErrUnknownChain, err)
	}
	if len(items) == 0 {
		return Quote{}, ErrNoItems
	}

	q := Quote{
		Owner:     common.HexToAddress(owner).Hex(),
		ChainID:   chainID,
		ChainName: chain.DisplayName,
		Items:     make([]QuoteItem, 0, len(items)),
		owner:     common.HexToAddress(owner),
	}

	seen := make(map[[2]common.Address]bool, len(items))
	for i, it := range items {
		qi, err := quoteItem(reg, chainID, it)
		if err != nil {
			return Quote{}, fmt.Errorf("item %d: %w", i, err)
		}
		pair := [2]common.Address{qi.token, qi.spender}
		if seen[pair] {
			return Quote{}, fmt.Errorf("item %d: %w", i, ErrDuplicateItem)
		}
		seen[pair] = true
		q.Items = append(q.Items, qi)
	}

	q.Digest = digest(q)
	return q, nil
}

func quoteItem(reg *registry.Registry, chainID uint64, it Item) (QuoteItem, error) {
	if !common.IsHexAddress(it.Token) {
		return QuoteItem{}, fmt.Errorf("token %q: %w", it.Token, ErrInvalidAddress)
	}
	if !common.IsHexAddress(it.Spender) {
		return QuoteItem{}, fmt.Errorf("spender %q: %w", it.Spender, ErrInvalidAddress)
	}

	tok, err := reg.Token(chainID, it.Token)
	if err != nil {
		return QuoteItem{}, fmt.Errorf("%w: %w", ErrUnknownToken, err)
	}
	if tok.IsNative() {
		return QuoteItem{}, fmt.Errorf("native currency cannot be approved: %w", ErrUnknownToken)
	}

	spenderAddr := common.HexToAddress(it.Spender)
	spender, err := reg.Spender(chainID, spenderAddr)
	if err != nil {
		if errors.Is(err, registry.ErrSpenderNotRegistered) {
			return QuoteItem{}, ErrSpenderNotRegistered
		}
		return QuoteItem{}, err
	}

	if !it.Amount.IsPositive() {
		return QuoteItem{}, fmt.Errorf("amount %s: %w", it.Amount, ErrInvalidAmount)
	}
	raw, err := blockchain.ToRaw(it.Amount, tok.Decimals)
	if err != nil {
		return QuoteItem{}, fmt.Errorf("%w: %w", ErrInvalidAmount, err)
	}
	if raw.BitLen() > 256 || raw.Cmp(maxUint256) == 0 {
		return QuoteItem{}, fmt.Errorf("amount %s exceeds a bounded allowance: %w", it.Amount, ErrInvalidAmount)
	}

	return QuoteItem{
		Token:        common.HexToAddress(tok.ContractAddress).Hex(),
		Symbol:       tok.Symbol,
		Decimals:     tok.Decimals,
		Spender:      spenderAddr.Hex(),
		SpenderLabel: spender.Label,
		Amount:       it.Amount,
		RawAmount:    raw.String(),
		SpenderURL:   reg.ExplorerURL(chainID, spenderAddr.Hex(), registry.LinkAddress),
		token:        common.HexToAddress(tok.ContractAddress),
		spender:      spenderAddr,
		raw:          raw,
	}, nil
}

// digest commits to owner, chain and every (token, spender, raw amount) in order.
func digest(q Quote) common.Hash {
	var b strings.Builder
	fmt.Fprintf(&b, "walletd-approval\n%s\n%d\n", strings.ToLower(q.owner.Hex()), q.ChainID)
	for _, it := range q.Items {
		fmt.Fprintf(&b, "%s|%s|%s\n", strings.ToLower(it.token.Hex()), strings.ToLower(it.spender.Hex()), it.raw)
	}
	return crypto.Keccak256Hash([]byte(b.String()))
}
