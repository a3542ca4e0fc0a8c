package blockchain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
)

const (
	defaultCooldown    = 5 * time.Minute
	healthCheckTimeout = 5 * time.Second
)

// ErrNoHealthyEndpoint is returned when every endpoint of a chain is cooling down.
var ErrNoHealthyEndpoint = errors.New("no healthy RPC endpoints available")

type endpointStatus struct {
	url           string
	client        *ethclient.Client
	healthy       bool
	lastError     error
	lastErrorTime time.Time
	mu            sync.RWMutex
}

// FailoverClient rotates over the RPC endpoints of one chain. Endpoints that
// answer with a different chain id are treated as unhealthy.
type FailoverClient struct {
	chainID      uint64
	cooldown     time.Duration
	endpoints    []*endpointStatus
	currentIndex int
	mu           sync.RWMutex
}

// NewFailoverClient dials every endpoint once. Unreachable endpoints are kept
// and retried after the cooldown, so a chain with no live endpoint at startup
// still gets a client.
func NewFailoverClient(chainID uint64, urls []string, cooldown time.Duration) (*FailoverClient, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("chain %d: at least one RPC URL is required", chainID)
	}
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}

	fc := &FailoverClient{
		chainID:   chainID,
		cooldown:  cooldown,
		endpoints: make([]*endpointStatus, 0, len(urls)),
	}

	healthyCount := 0
	for _, url := range urls {
		client, err := fc.dial(url)
		fc.endpoints = append(fc.endpoints, &endpointStatus{
			url:           url,
			client:        client,
			healthy:       err == nil,
			lastError:     err,
			lastErrorTime: time.Now(),
		})

		if err == nil {
			healthyCount++
			slog.Info("Connected to RPC endpoint", "chain_id", chainID, "url", url)
		} else {
			slog.Warn("Failed to connect to RPC endpoint, will retry later",
				"chain_id", chainID, "url", url, "error", err)
		}
	}

	if healthyCount == 0 {
		slog.Warn("No RPC endpoint reachable at startup", "chain_id", chainID, "retry_after", cooldown)
	}

	return fc, nil
}

// dial connects and checks that the endpoint serves the expected chain.
func (fc *FailoverClient) dial(url string) (*ethclient.Client, error) {
	client, err := ethclient.Dial(url)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
	defer cancel()

	id, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, err
	}
	if !id.IsUint64() || id.Uint64() != fc.chainID {
		client.Close()
		return nil, fmt.Errorf("endpoint serves chain %s, want %d", id, fc.chainID)
	}
	return client, nil
}

// GetClient returns a healthy client, reconnecting endpoints whose cooldown expired.
func (fc *FailoverClient) GetClient() (*ethclient.Client, string, error) {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	startIndex := fc.currentIndex

	for i := range fc.endpoints {
		idx := (startIndex + i) % len(fc.endpoints)
		ep := fc.endpoints[idx]

		ep.mu.RLock()
		healthy := ep.healthy
		client := ep.client
		canRetry := time.Since(ep.lastErrorTime) > fc.cooldown
		ep.mu.RUnlock()

		if healthy && client != nil {
			fc.currentIndex = idx
			return client, ep.url, nil
		}

		if !healthy && canRetry {
			newClient, err := fc.dial(ep.url)
			ep.mu.Lock()
			if err != nil {
				ep.lastError = err
				ep.lastErrorTime = time.Now()
				ep.mu.Unlock()
				continue
			}
			ep.client = newClient
			ep.healthy = true
			ep.lastError = nil
			ep.mu.Unlock()

			fc.currentIndex = idx
			slog.Info("Reconnected to RPC endpoint", "chain_id", fc.chainID, "url", ep.url)
			return newClient, ep.url, nil
		}
	}

	return nil, "", fmt.Errorf("chain %d: %w", fc.chainID, ErrNoHealthyEndpoint)
}

// MarkUnhealthy takes an endpoint out of rotation until the cooldown expires.
func (fc *FailoverClient) MarkUnhealthy(url string, err error) {
	fc.mu.RLock()
	defer fc.mu.RUnlock()

	for _, ep := range fc.endpoints {
		if ep.url != url {
			continue
		}
		ep.mu.Lock()
		ep.healthy = false
		ep.lastError = err
		ep.lastErrorTime = time.Now()
		if ep.client != nil {
			ep.client.Close()
			ep.client = nil
		}
		ep.mu.Unlock()

		slog.Warn("Marked RPC endpoint as unhealthy, will retry after cooldown",
			"chain_id", fc.chainID,
			"url", url,
			"error", err,
			"retry_after", fc.cooldown)
		return
	}
}

// Healthy reports how many endpoints are currently in rotation.
func (fc *FailoverClient) Healthy() (healthy, total int) {
	fc.mu.RLock()
	defer fc.mu.RUnlock()

	for _, ep := range fc.endpoints {
		ep.mu.RLock()
		if ep.healthy {
			healthy++
		}
		ep.mu.RUnlock()
	}
	return healthy, len(fc.endpoints)
}

// Close closes all endpoint connections.
func (fc *FailoverClient) Close() {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	for _, ep := range fc.endpoints {
		ep.mu.Lock()
		if ep.client != nil {
			ep.client.Close()
			ep.client = nil
		}
		ep.mu.Unlock()
	}
}
