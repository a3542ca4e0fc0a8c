package blockchain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
)

// ErrChainNotConfigured is returned for reads on a chain without endpoints.
var ErrChainNotConfigured = errors.New("no RPC endpoints configured for chain")

// Pool holds one failover client per chain.
type Pool struct {
	mu      sync.RWMutex
	clients map[uint64]*Client
}

// EndpointHealth summarizes the RPC endpoints of one chain.
type EndpointHealth struct {
	ChainID uint64
	Healthy int
	Total   int
}

// NewPool dials every chain concurrently. A chain whose endpoint list is
// empty is skipped with a warning; reads on it return ErrChainNotConfigured.
func NewPool(endpoints map[uint64][]string, cooldown time.Duration) (*Pool, error) {
	p := &Pool{clients: make(map[uint64]*Client, len(endpoints))}

	var g errgroup.Group
	for chainID, urls := range endpoints {
		if len(urls) == 0 {
			slog.Warn("Chain has no RPC endpoints, reads will fail", "chain_id", chainID)
			continue
		}
		g.Go(func() error {
			client, err := NewClient(chainID, urls, cooldown)
			if err != nil {
				return fmt.Errorf("chain %d: %w", chainID, err)
			}
			p.mu.Lock()
			p.clients[chainID] = client
			p.mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

// Client returns the client of a chain.
func (p *Pool) Client(chainID uint64) (*Client, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	c, ok := p.clients[chainID]
	if !ok {
		return nil, fmt.Errorf("chain %d: %w", chainID, ErrChainNotConfigured)
	}
	return c, nil
}

// TokenBalance reads an ERC-20 balance on the given chain.
func (p *Pool) TokenBalance(ctx context.Context, chainID uint64, token, owner common.Address) (*big.Int, error) {
	c, err := p.Client(chainID)
	if err != nil {
		return nil, err
	}
	return c.TokenBalance(ctx, token, owner)
}

// NativeBalance reads the native balance on the given chain.
func (p *Pool) NativeBalance(ctx context.Context, chainID uint64, owner common.Address) (*big.Int, error) {
	c, err := p.Client(chainID)
	if err != nil {
		return nil, err
	}
	return c.NativeBalance(ctx, owner)
}

// Allowance reads an ERC-20 allowance on the given chain.
func (p *Pool) Allowance(ctx context.Context, chainID uint64, token, owner, spender common.Address) (*big.Int, error) {
	c, err := p.Client(chainID)
	if err != nil {
		return nil, err
	}
	return c.Allowance(ctx, token, owner, spender)
}

// Health reports endpoint health per chain.
func (p *Pool) Health() []EndpointHealth {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]EndpointHealth, 0, len(p.clients))
	for id, c := range p.clients {
		healthy, total := c.Healthy()
		out = append(out, EndpointHealth{ChainID: id, Healthy: healthy, Total: total})
	}
	return out
}

// Close closes every chain client.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, c := range p.clients {
		c.Close()
	}
	p.clients = map[uint64]*Client{}
}
