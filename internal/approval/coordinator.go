// Package approval coordinates explicit, itemized ERC-20 approvals: quote,
// consent, network switch, submission through the user's wallet and bounded
// confirmation.
package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"

	"github.com/matrixise/walletd/internal/blockchain"
	"github.com/matrixise/walletd/internal/metrics"
	"github.com/matrixise/walletd/internal/notify"
	"github.com/matrixise/walletd/internal/registry"
)

var (
	ErrInvalidAddress       = errors.New("invalid address")
	ErrUnknownChain         = errors.New("unknown chain")
	ErrUnknownToken         = errors.New("unknown token")
	ErrSpenderNotRegistered = errors.New("spender not registered for chain")
	ErrInvalidAmount        = errors.New("invalid approval amount")
	ErrNoItems              = errors.New("no approval items")
	ErrDuplicateItem        = errors.New("duplicate token and spender pair")
	ErrConsentRequired      = errors.New("consent digest missing or stale")
	ErrApprovalPending      = errors.New("approval already in progress")
	ErrChainSwitchFailed    = errors.New("network switch failed")
	ErrUserRejected         = errors.New("user rejected the request")
	ErrSubmissionFailed     = errors.New("transaction submission failed")
	ErrConfirmationTimeout  = errors.New("allowance not confirmed in time")
)

// Status is the final state of one item.
type Status string

const (
	StatusAlreadyApproved Status = "already_approved"
	StatusConfirmed       Status = "confirmed"
	StatusPending         Status = "pending"
)

// TxHandle reports what happened to one item.
type TxHandle struct {
	Token       string          `json:"token"`
	Symbol      string          `json:"symbol"`
	Spender     string          `json:"spender"`
	Amount      decimal.Decimal `json:"amount"`
	Status      Status          `json:"status"`
	TxHash      string          `json:"txHash,omitempty"`
	ExplorerURL string          `json:"explorerUrl,omitempty"`
}

// Key identifies an approval record.
type Key struct {
	Owner   common.Address
	ChainID uint64
	Token   common.Address
	Spender common.Address
}

// TxRequest is an unsigned transaction handed to the wallet.
type TxRequest struct {
	ChainID uint64
	From    common.Address
	To      common.Address
	Data    []byte
}

// Wallet is the user's wallet, which signs and broadcasts.
type Wallet interface {
	SwitchChain(ctx context.Context, chainID uint64) error
	SendTransaction(ctx context.Context, tx TxRequest) (common.Hash, error)
}

// AllowanceReader reads on-chain allowances. *blockchain.Pool implements it.
type AllowanceReader interface {
	Allowance(ctx context.Context, chainID uint64, token, owner, spender common.Address) (*big.Int, error)
}

// ChainTracker reports the wallet's current chain. *session.Machine implements it.
type ChainTracker interface {
	ChainID() uint64
	AwaitChain(ctx context.Context, target uint64) error
	Done() <-chan struct{}
}

// Config tunes the coordinator.
type Config struct {
	SwitchTimeout      time.Duration
	PollInterval       time.Duration
	PollMaxInterval    time.Duration
	PollTimeout        time.Duration
	PollMaxAttempts    int
	DisconnectOnReject bool
}

// DefaultConfig mirrors the wallet UI's historical timings.
func DefaultConfig() Config {
	return Config{
		SwitchTimeout:   10 * time.Second,
		PollInterval:    2 * time.Second,
		PollMaxInterval: 16 * time.Second,
		PollTimeout:     3 * time.Minute,
		PollMaxAttempts: 30,
	}
}

// Coordinator runs approvals for one session.
type Coordinator struct {
	registry   *registry.Registry
	reader     AllowanceReader
	wallet     Wallet
	tracker    ChainTracker
	notifier   notify.Notifier
	clock      clockwork.Clock
	logger     *slog.Logger
	metrics    *metrics.Metrics
	cfg        Config
	disconnect func()
	walletName string

	mu        sync.Mutex
	completed map[Key]*big.Int
	inflight  map[Key]bool
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock replaces the real clock.
func WithClock(c clockwork.Clock) Option {
	return func(co *Coordinator) { co.clock = c }
}

// WithNotifier sets the audit notifier.
func WithNotifier(n notify.Notifier) Option {
	return func(co *Coordinator) { co.notifier = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(co *Coordinator) { co.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(co *Coordinator) { co.metrics = m }
}

// WithDisconnect sets the hook used when a rejection forces a disconnect.
func WithDisconnect(fn func()) Option {
	return func(co *Coordinator) { co.disconnect = fn }
}

// WithWalletName tags audit events with the wallet the user connected.
func WithWalletName(name string) Option {
	return func(co *Coordinator) { co.walletName = name }
}

// NewCoordinator returns a coordinator with empty approval records.
func NewCoordinator(reg *registry.Registry, reader AllowanceReader, wallet Wallet, tracker ChainTracker, cfg Config, opts ...Option) *Coordinator {
	def := DefaultConfig()
	if cfg.SwitchTimeout <= 0 {
		cfg.SwitchTimeout = def.SwitchTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.PollMaxInterval < cfg.PollInterval {
		cfg.PollMaxInterval = max(def.PollMaxInterval, cfg.PollInterval)
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = def.PollTimeout
	}
	if cfg.PollMaxAttempts <= 0 {
		cfg.PollMaxAttempts = def.PollMaxAttempts
	}

	c := &Coordinator{
		registry:  reg,
		reader:    reader,
		wallet:    wallet,
		tracker:   tracker,
		notifier:  notify.Nop{},
		clock:     clockwork.NewRealClock(),
		logger:    slog.Default(),
		cfg:       cfg,
		completed: make(map[Key]*big.Int),
		inflight:  make(map[Key]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetWalletName tags later audit events with the connected wallet.
func (c *Coordinator) SetWalletName(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.walletName = name
}

// Reset clears every approval record. The session calls it on disconnect.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completed = make(map[Key]*big.Int)
	c.inflight = make(map[Key]bool)
}

// Completed returns the raw amount confirmed for key in this session.
func (c *Coordinator) Completed(k Key) (*big.Int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.completed[k]
	if !ok {
		return nil, false
	}
	return new(big.Int).Set(raw), true
}

// markCompleted records raw for k unless the connection that started the
// approval has already ended.
func (c *Coordinator) markCompleted(sessionDone <-chan struct{}, k Key, raw *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-sessionDone:
		return
	default:
	}
	if prev, ok := c.completed[k]; ok && prev.Cmp(raw) >= 0 {
		return
	}
	c.completed[k] = new(big.Int).Set(raw)
}

// reserve marks the keys in flight. Keys whose recorded amount already
// covers the requested one are returned separately and not reserved.
func (c *Coordinator) reserve(keys []Key, amounts []*big.Int) (done map[Key]bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	done = make(map[Key]bool)
	for _, k := range keys {
		if c.inflight[k] {
			return nil, fmt.Errorf("%s: %w", k.Token.Hex(), ErrApprovalPending)
		}
	}
	for i, k := range keys {
		if raw, ok := c.completed[k]; ok && raw.Cmp(amounts[i]) >= 0 {
			done[k] = true
			continue
		}
		c.inflight[k] = true
	}
	return done, nil
}

func (c *Coordinator) release(keys []Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.inflight, k)
	}
}

// Approve runs the confirmed quote identified by digest. Items are processed
// in order; the returned handles cover every item reached before an error.
func (c *Coordinator) Approve(ctx context.Context, owner string, chainID uint64, items []Item, consent common.Hash) ([]TxHandle, error) {
	q, err := c.Quote(owner, chainID, items)
	if err != nil {
		return nil, err
	}
	if consent == (common.Hash{}) || consent != q.Digest {
		return nil, ErrConsentRequired
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var sessionDone <-chan struct{}
	if c.tracker != nil {
		sessionDone = c.tracker.Done()
		go func() {
			select {
			case <-sessionDone:
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	keys := make([]Key, len(q.Items))
	amounts := make([]*big.Int, len(q.Items))
	for i, it := range q.Items {
		keys[i] = Key{Owner: q.owner, ChainID: chainID, Token: it.token, Spender: it.spender}
		amounts[i] = it.raw
	}
	done, err := c.reserve(keys, amounts)
	if err != nil {
		return nil, err
	}
	defer c.release(keys)

	handles := make([]TxHandle, 0, len(q.Items))
	for i, it := range q.Items {
		h := TxHandle{Token: it.Token, Symbol: it.Symbol, Spender: it.Spender, Amount: it.Amount}

		if done[keys[i]] {
			h.Status = StatusAlreadyApproved
			c.metrics.RecordApproval(string(StatusAlreadyApproved))
			handles = append(handles, h)
			continue
		}

		h, err := c.approveItem(ctx, sessionDone, q, it, keys[i], h)
		handles = append(handles, h)
		if err != nil {
			return handles, err
		}
	}
	return handles, nil
}

func (c *Coordinator) ensureChain(ctx context.Context, target uint64) error {
	if c.tracker == nil || c.tracker.ChainID() == target {
		return nil
	}

	switchCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	timer := c.clock.AfterFunc(c.cfg.SwitchTimeout, func() {
		cancel(fmt.Errorf("after %s: %w", c.cfg.SwitchTimeout, context.DeadlineExceeded))
	})
	defer timer.Stop()

	c.logger.Info("Requesting network switch", "from", c.tracker.ChainID(), "to", target)
	if err := c.wallet.SwitchChain(switchCtx, target); err != nil {
		return switchFailed(switchCtx, err)
	}
	if err := c.tracker.AwaitChain(switchCtx, target); err != nil {
		return switchFailed(switchCtx, err)
	}
	return nil
}

func switchFailed(ctx context.Context, err error) error {
	if cause := context.Cause(ctx); cause != nil {
		err = cause
	}
	return fmt.Errorf("%w: %w", ErrChainSwitchFailed, err)
}

func (c *Coordinator) approveItem(ctx context.Context, sessionDone <-chan struct{}, q Quote, it QuoteItem, key Key, h TxHandle) (TxHandle, error) {
	current, err := c.reader.Allowance(ctx, q.ChainID, it.token, q.owner, it.spender)
	if err != nil {
		c.logger.Warn("Allowance check failed, submitting anyway", "token", it.Token, "error", err)
	} else if current.Cmp(it.raw) >= 0 {
		c.markCompleted(sessionDone, key, it.raw)
		h.Status = StatusAlreadyApproved
		c.metrics.RecordApproval(string(StatusAlreadyApproved))
		return h, nil
	}

	// Checked before every submission: the wallet may have moved while an
	// earlier item was confirming.
	if err := c.ensureChain(ctx, q.ChainID); err != nil {
		c.metrics.RecordApproval("switch_failed")
		return h, err
	}

	data, err := blockchain.PackApprove(it.spender, it.raw)
	if err != nil {
		return h, fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
	}

	hash, err := c.wallet.SendTransaction(ctx, TxRequest{ChainID: q.ChainID, From: q.owner, To: it.token, Data: data})
	if err != nil {
		if errors.Is(err, ErrUserRejected) {
			c.metrics.RecordApproval("rejected")
			c.notify(notify.KindApprovalRejected, q, it, "", err.Error())
			c.logger.Info("User rejected approval", "token", it.Token, "spender", it.Spender)
			if c.cfg.DisconnectOnReject && c.disconnect != nil {
				go c.disconnect()
			}
			return h, ErrUserRejected
		}
		c.metrics.RecordApproval("failed")
		return h, fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
	}

	h.TxHash = hash.Hex()
	h.ExplorerURL = c.registry.ExplorerURL(q.ChainID, h.TxHash, registry.LinkTx)
	c.notify(notify.KindApprovalSubmitted, q, it, h.TxHash, "")
	c.logger.Info("Approval submitted", "token", it.Token, "spender", it.Spender, "amount", it.Amount.String(), "tx_hash", h.TxHash)

	if err := c.awaitAllowance(ctx, q, it); err != nil {
		h.Status = StatusPending
		c.metrics.RecordApproval(string(StatusPending))
		return h, err
	}

	c.markCompleted(sessionDone, key, it.raw)
	h.Status = StatusConfirmed
	c.metrics.RecordApproval(string(StatusConfirmed))
	c.notify(notify.KindApprovalCompleted, q, it, h.TxHash, "")
	return h, nil
}

// awaitAllowance polls with exponential backoff until the allowance covers
// the amount, the attempt budget runs out, or ctx ends.
func (c *Coordinator) awaitAllowance(ctx context.Context, q Quote, it QuoteItem) error {
	deadline := c.clock.After(c.cfg.PollTimeout)
	interval := c.cfg.PollInterval

	for attempt := 1; attempt <= c.cfg.PollMaxAttempts; attempt++ {
		select {
		case <-c.clock.After(interval):
		case <-deadline:
			return fmt.Errorf("after %s: %w", c.cfg.PollTimeout, ErrConfirmationTimeout)
		case <-ctx.Done():
			return ctx.Err()
		}

		current, err := c.reader.Allowance(ctx, q.ChainID, it.token, q.owner, it.spender)
		if err != nil {
			c.logger.Debug("Allowance poll failed", "attempt", attempt, "error", err)
		} else if current.Cmp(it.raw) >= 0 {
			return nil
		}

		interval = min(interval*2, c.cfg.PollMaxInterval)
	}
	return fmt.Errorf("after %d attempts: %w", c.cfg.PollMaxAttempts, ErrConfirmationTimeout)
}

func (c *Coordinator) notify(kind notify.Kind, q Quote, it QuoteItem, txHash, detail string) {
	c.mu.Lock()
	wallet := c.walletName
	c.mu.Unlock()

	c.notifier.Notify(notify.Event{
		Kind:    kind,
		Address: q.Owner,
		ChainID: q.ChainID,
		Wallet:  wallet,
		Token:   it.Token,
		Symbol:  it.Symbol,
		Spender: it.Spender,
		Amount:  decimal.NewNullDecimal(it.Amount),
		TxHash:  txHash,
		Detail:  detail,
	})
}
