package blockchain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/shopspring/decimal"
)

const (
	rpcTimeout    = 10 * time.Second
	maxRetries    = 3
	retryInterval = 500 * time.Millisecond
)

// Client reads one chain through a failover pool of RPC endpoints.
type Client struct {
	chainID        uint64
	failoverClient *FailoverClient
	parsedABI      abi.ABI
}

// NewClient creates a chain client with failover support.
func NewClient(chainID uint64, rpcURLs []string, cooldown time.Duration) (*Client, error) {
	failoverClient, err := NewFailoverClient(chainID, rpcURLs, cooldown)
	if err != nil {
		return nil, err
	}

	parsedABI, err := parseERC20()
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI: %w", err)
	}

	return &Client{
		chainID:        chainID,
		failoverClient: failoverClient,
		parsedABI:      parsedABI,
	}, nil
}

// ChainID returns the chain this client is bound to.
func (c *Client) ChainID() uint64 {
	return c.chainID
}

// Healthy reports the endpoint health of the chain.
func (c *Client) Healthy() (healthy, total int) {
	return c.failoverClient.Healthy()
}

// Close closes all RPC client connections.
func (c *Client) Close() {
	c.failoverClient.Close()
}

// retryWithBackoff runs fn against the current endpoint, failing over to the
// next healthy one between attempts.
func (c *Client) retryWithBackoff(ctx context.Context, fn func(*ethclient.Client) error) error {
	var lastErr error

	for attempt := range maxRetries {
		if attempt > 0 {
			backoff := retryInterval * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		ethClient, url, err := c.failoverClient.GetClient()
		if err != nil {
			lastErr = err
			continue
		}

		if err := fn(ethClient); err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if isPermanent(err) {
				return err
			}
			c.failoverClient.MarkUnhealthy(url, err)
			continue
		}
		return nil
	}

	return fmt.Errorf("failed after %d retries: %w", maxRetries, lastErr)
}

// isPermanent reports errors that another endpoint would answer the same way.
func isPermanent(err error) bool {
	if errors.Is(err, bind.ErrNoCode) {
		return true
	}
	var dataErr rpc.DataError
	return errors.As(err, &dataErr)
}

// ToDecimal scales a raw integer amount by 10^-decimals without loss.
func ToDecimal(raw *big.Int, decimals uint8) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(decimals))
}

// ToRaw converts a human amount to base units. It fails when the amount has
// more fractional digits than the token supports.
func ToRaw(amount decimal.Decimal, decimals uint8) (*big.Int, error) {
	scaled := amount.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("amount %s has more than %d fractional digits", amount, decimals)
	}
	return scaled.BigInt(), nil
}
