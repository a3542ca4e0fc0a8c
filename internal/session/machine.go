// Package session tracks the wallet connection of one browser session and
// gates balance aggregation to one pass per logical connection.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/jonboulle/clockwork"

	"github.com/matrixise/walletd/internal/balance"
	"github.com/matrixise/walletd/internal/diagnostics"
	"github.com/matrixise/walletd/internal/metrics"
	"github.com/matrixise/walletd/internal/notify"
	"github.com/matrixise/walletd/internal/registry"
)

// ErrDisconnected is returned by waits interrupted by Disconnect.
var ErrDisconnected = errors.New("session disconnected")

// State is the connection lifecycle position.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Outcome is how a debounced account event was handled.
type Outcome int

const (
	OutcomeAggregated Outcome = iota
	OutcomeDuplicate
	OutcomeBusy
	OutcomeInvalid
	OutcomeDisconnected
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAggregated:
		return "aggregated"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeBusy:
		return "busy"
	case OutcomeInvalid:
		return "invalid"
	case OutcomeDisconnected:
		return "disconnected"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Granularity selects what a connection key covers.
type Granularity string

const (
	GranularityAddressChain Granularity = "address_chain"
	GranularityAddress      Granularity = "address"
)

// AccountEvent is the wallet's accountsChanged notification.
type AccountEvent struct {
	Address     string
	IsConnected bool
}

// NetworkEvent is the wallet's chainChanged notification.
type NetworkEvent struct {
	ChainID uint64
}

// ConnectionState is the current view of the wallet connection.
type ConnectionState struct {
	Address     string `json:"address"`
	ChainID     uint64 `json:"chainId"`
	IsConnected bool   `json:"isConnected"`
}

// Aggregator builds a snapshot. *balance.Aggregator implements it.
type Aggregator interface {
	Snapshot(ctx context.Context, address string, diag diagnostics.Recorder) balance.Snapshot
}

// Resetter is cleared on disconnect.
type Resetter interface {
	Reset()
}

// Config tunes a Machine.
type Config struct {
	Debounce    time.Duration
	Granularity Granularity
	Wallet      string
}

// Machine is the connection state machine of one session.
type Machine struct {
	registry   *registry.Registry
	aggregator Aggregator
	notifier   notify.Notifier
	clock      clockwork.Clock
	logger     *slog.Logger
	metrics    *metrics.Metrics
	diag       *diagnostics.Log
	debounce   time.Duration
	keyFn      func(address string, chainID uint64) common.Hash

	onSnapshot   func(balance.Snapshot)
	onDisconnect func()

	mu          sync.Mutex
	wallet      string
	state       State
	address     string
	chainID     uint64
	lastKey     common.Hash
	processing  bool
	snapshot    *balance.Snapshot
	pending     *AccountEvent
	timer       clockwork.Timer
	ctx         context.Context
	cancel      context.CancelFunc
	chainNotify chan struct{}
	resetters   []Resetter
}

// Option configures a Machine.
type Option func(*Machine)

// WithClock replaces the real clock.
func WithClock(c clockwork.Clock) Option {
	return func(m *Machine) { m.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) { m.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Machine) { m.metrics = mt }
}

// WithNotifier sets the audit notifier.
func WithNotifier(n notify.Notifier) Option {
	return func(m *Machine) { m.notifier = n }
}

// OnSnapshot registers the callback invoked after each aggregation pass.
func OnSnapshot(fn func(balance.Snapshot)) Option {
	return func(m *Machine) { m.onSnapshot = fn }
}

// OnDisconnect registers the callback invoked after Disconnect.
func OnDisconnect(fn func()) Option {
	return func(m *Machine) { m.onDisconnect = fn }
}

// NewMachine returns a disconnected machine.
func NewMachine(reg *registry.Registry, agg Aggregator, cfg Config, opts ...Option) *Machine {
	if cfg.Debounce <= 0 {
		cfg.Debounce = time.Second
	}
	m := &Machine{
		registry:    reg,
		aggregator:  agg,
		notifier:    notify.Nop{},
		clock:       clockwork.NewRealClock(),
		logger:      slog.Default(),
		debounce:    cfg.Debounce,
		keyFn:       keyFunc(cfg.Granularity),
		wallet:      cfg.Wallet,
		chainNotify: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.diag = diagnostics.New(m.logger)
	m.ctx, m.cancel = context.WithCancel(context.Background())
	return m
}

func keyFunc(g Granularity) func(string, uint64) common.Hash {
	if g == GranularityAddress {
		return func(address string, _ uint64) common.Hash {
			return crypto.Keccak256Hash([]byte(strings.ToLower(address)))
		}
	}
	return func(address string, chainID uint64) common.Hash {
		return crypto.Keccak256Hash([]byte(fmt.Sprintf("%s:%d", strings.ToLower(address), chainID)))
	}
}

// ConnectionKey returns the deduplication key for an address on a chain.
func (m *Machine) ConnectionKey(address string, chainID uint64) common.Hash {
	return m.keyFn(address, chainID)
}

// SetWallet records the wallet name reported by the client.
func (m *Machine) SetWallet(name string) {
	m.mu.Lock()
	m.wallet = name
	m.mu.Unlock()
}

// RegisterResetter adds state cleared on disconnect.
func (m *Machine) RegisterResetter(r Resetter) {
	m.mu.Lock()
	m.resetters = append(m.resetters, r)
	m.mu.Unlock()
}

// OnAccountChange schedules ev after the debounce window. A newer event
// replaces a pending one.
func (m *Machine) OnAccountChange(ev AccountEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pending = &ev
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = m.clock.AfterFunc(m.debounce, m.fire)
}

func (m *Machine) fire() {
	m.mu.Lock()
	ev := m.pending
	m.pending = nil
	m.timer = nil
	m.mu.Unlock()

	if ev == nil {
		return
	}
	outcome := m.handleAccount(*ev)
	m.metrics.RecordAccountEvent(outcome.String())
	m.logger.Debug("Account event handled", "outcome", outcome.String())
}

func (m *Machine) handleAccount(ev AccountEvent) Outcome {
	if !ev.IsConnected {
		m.Disconnect()
		return OutcomeDisconnected
	}

	if !common.IsHexAddress(ev.Address) {
		m.diag.Add(diagnostics.KindValidation, "invalid wallet address %q", ev.Address)
		return OutcomeInvalid
	}
	address := common.HexToAddress(ev.Address).Hex()

	m.mu.Lock()
	chainID := m.chainID
	if chainID == 0 {
		m.mu.Unlock()
		m.diag.Add(diagnostics.KindValidation, "account event before the wallet reported a chain")
		return OutcomeInvalid
	}
	if _, err := m.registry.Describe(chainID); err != nil {
		m.mu.Unlock()
		m.diag.Add(diagnostics.KindValidation, "unsupported chain %d", chainID)
		return OutcomeInvalid
	}

	key := m.keyFn(address, chainID)
	if key == m.lastKey {
		m.mu.Unlock()
		return OutcomeDuplicate
	}
	if m.processing {
		m.mu.Unlock()
		m.logger.Info("Aggregation in progress, dropping account event", "address", address)
		return OutcomeBusy
	}

	m.processing = true
	m.state = StateConnecting
	m.address = address
	ctx := m.ctx
	wallet := m.wallet
	m.mu.Unlock()

	snap := m.aggregator.Snapshot(ctx, address, m.diag)

	m.mu.Lock()
	m.processing = false
	if ctx.Err() != nil {
		m.mu.Unlock()
		return OutcomeCancelled
	}
	m.snapshot = &snap
	m.lastKey = key
	m.state = StateConnected
	m.mu.Unlock()

	m.notifier.Notify(notify.Event{Kind: notify.KindConnected, Address: address, ChainID: chainID, Wallet: wallet})
	if m.onSnapshot != nil {
		m.onSnapshot(snap)
	}
	return OutcomeAggregated
}

// OnNetworkChange updates the tracked chain and wakes chain waiters. It never
// triggers aggregation.
func (m *Machine) OnNetworkChange(ev NetworkEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.registry.Describe(ev.ChainID); err != nil {
		m.diag.Add(diagnostics.KindValidation, "wallet switched to unsupported chain %d", ev.ChainID)
	}
	m.chainID = ev.ChainID
	close(m.chainNotify)
	m.chainNotify = make(chan struct{})
}

// Disconnect aborts pending waits and clears the connection state. The
// last chain reported by the wallet survives, since wallets do not
// re-announce it on reconnect.
func (m *Machine) Disconnect() {
	m.mu.Lock()
	wasConnected := m.address != ""
	address, chainID, wallet := m.address, m.chainID, m.wallet

	m.cancel()
	m.ctx, m.cancel = context.WithCancel(context.Background())
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.pending = nil
	m.state = StateDisconnected
	m.address = ""
	m.lastKey = common.Hash{}
	m.snapshot = nil
	resetters := append([]Resetter(nil), m.resetters...)
	m.mu.Unlock()

	m.diag.Reset()
	for _, r := range resetters {
		r.Reset()
	}

	if wasConnected {
		m.logger.Info("Wallet disconnected", "address", address)
		m.notifier.Notify(notify.Event{Kind: notify.KindDisconnected, Address: address, ChainID: chainID, Wallet: wallet})
	}
	if m.onDisconnect != nil {
		m.onDisconnect()
	}
}

// Close releases the session context.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.cancel()
}

// ChainID returns the chain the wallet last reported.
func (m *Machine) ChainID() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chainID
}

// Done is closed when the current connection is torn down.
func (m *Machine) Done() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ctx.Done()
}

// Context returns the context of the current connection.
func (m *Machine) Context() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ctx
}

// AwaitChain blocks until the wallet reports target, ctx ends, or the
// session disconnects.
func (m *Machine) AwaitChain(ctx context.Context, target uint64) error {
	for {
		m.mu.Lock()
		if m.chainID == target {
			m.mu.Unlock()
			return nil
		}
		changed := m.chainNotify
		done := m.ctx.Done()
		m.mu.Unlock()

		select {
		case <-changed:
		case <-done:
			return ErrDisconnected
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// State returns the connection lifecycle position.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connection returns the current connection state.
func (m *Machine) Connection() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ConnectionState{Address: m.address, ChainID: m.chainID, IsConnected: m.state == StateConnected}
}

// Processing reports whether an aggregation pass is in flight.
func (m *Machine) Processing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.processing
}

// Snapshot returns the last snapshot of the current connection.
func (m *Machine) Snapshot() (balance.Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snapshot == nil {
		return balance.Snapshot{}, false
	}
	return *m.snapshot, true
}

// Diagnostics returns the session's diagnostics log.
func (m *Machine) Diagnostics() *diagnostics.Log {
	return m.diag
}
