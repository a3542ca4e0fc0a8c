package blockchain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

const erc20ABI = `[
	{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"payable":false,"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[{"name":"_owner","type":"address"},{"name":"_spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"payable":false,"stateMutability":"view","type":"function"},
	{"constant":false,"inputs":[{"name":"_spender","type":"address"},{"name":"_value","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"payable":false,"stateMutability":"nonpayable","type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"payable":false,"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"payable":false,"stateMutability":"view","type":"function"}
]`

// TokenMetadata is what a contract reports about itself.
type TokenMetadata struct {
	Symbol   string
	Decimals uint8
}

func (c *Client) call(ctx context.Context, token common.Address, method string, args ...any) ([]any, error) {
	rpcCtx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()

	var out []any
	err := c.retryWithBackoff(rpcCtx, func(ec *ethclient.Client) error {
		contract := bind.NewBoundContract(token, c.parsedABI, ec, ec, ec)
		out = nil
		return contract.Call(&bind.CallOpts{Context: rpcCtx}, &out, method, args...)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: empty result", method)
	}
	return out, nil
}

// TokenBalance reads balanceOf(owner) in base units.
func (c *Client) TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	out, err := c.call(ctx, token, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// Allowance reads allowance(owner, spender) in base units.
func (c *Client) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	out, err := c.call(ctx, token, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// NativeBalance reads the account balance in wei.
func (c *Client) NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	rpcCtx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()

	var balance *big.Int
	err := c.retryWithBackoff(rpcCtx, func(ec *ethclient.Client) error {
		var err error
		balance, err = ec.BalanceAt(rpcCtx, owner, nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("native balance: %w", err)
	}
	return balance, nil
}

// TokenMetadata reads symbol() and decimals() from the contract.
func (c *Client) TokenMetadata(ctx context.Context, token common.Address) (TokenMetadata, error) {
	var meta TokenMetadata

	out, err := c.call(ctx, token, "decimals")
	if err != nil {
		return meta, err
	}
	meta.Decimals = *abi.ConvertType(out[0], new(uint8)).(*uint8)

	out, err = c.call(ctx, token, "symbol")
	if err != nil {
		return meta, err
	}
	meta.Symbol = *abi.ConvertType(out[0], new(string)).(*string)

	return meta, nil
}

var parseERC20 = sync.OnceValues(func() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(erc20ABI))
})

// PackApprove encodes approve(spender, amount) calldata for the exact amount
// the user confirmed.
func PackApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("approve amount must be positive")
	}
	parsed, err := parseERC20()
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI: %w", err)
	}
	data, err := parsed.Pack("approve", spender, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to pack approve: %w", err)
	}
	return data, nil
}
