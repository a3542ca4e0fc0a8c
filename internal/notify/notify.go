// Package notify carries the local audit trail of session and approval
// lifecycle events.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/matrixise/walletd/internal/metrics"
)

// Kind names a lifecycle event.
type Kind string

const (
	KindConnected         Kind = "connected"
	KindDisconnected      Kind = "disconnected"
	KindApprovalSubmitted Kind = "approval_submitted"
	KindApprovalCompleted Kind = "approval_completed"
	KindApprovalRejected  Kind = "approval_rejected"
)

// Event is one audit record. It never carries balances or client metadata.
type Event struct {
	Kind    Kind
	At      time.Time
	Address string
	ChainID uint64
	Wallet  string
	Token   string
	Symbol  string
	Spender string
	Amount  decimal.NullDecimal
	TxHash  string
	Detail  string
}

// Notifier accepts events without blocking the caller.
type Notifier interface {
	Notify(Event)
}

// Sink delivers events somewhere durable.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, ev Event) error
}

// Nop discards events.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(Event) {}

// LogSink writes events to slog.
type LogSink struct {
	Logger *slog.Logger
}

// Name implements Sink.
func (LogSink) Name() string { return "log" }

// Deliver implements Sink.
func (s LogSink) Deliver(_ context.Context, ev Event) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{
		"kind", ev.Kind,
		"address", ev.Address,
		"chain_id", ev.ChainID,
	}
	if ev.Wallet != "" {
		attrs = append(attrs, "wallet", ev.Wallet)
	}
	if ev.Token != "" {
		attrs = append(attrs, "token", ev.Token, "symbol", ev.Symbol, "spender", ev.Spender)
	}
	if ev.Amount.Valid {
		attrs = append(attrs, "amount", ev.Amount.Decimal.String())
	}
	if ev.TxHash != "" {
		attrs = append(attrs, "tx_hash", ev.TxHash)
	}
	if ev.Detail != "" {
		attrs = append(attrs, "detail", ev.Detail)
	}
	logger.Info("Audit event", attrs...)
	return nil
}

// Options configures Async.
type Options struct {
	QueueSize       int
	DeliveryTimeout time.Duration
	Logger          *slog.Logger
	Metrics         *metrics.Metrics
	Now             func() time.Time
}

// Async queues events and delivers them to every sink from one goroutine.
// When the queue is full, new events are dropped with a warning.
type Async struct {
	sinks   []Sink
	queue   chan Event
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
	done      chan struct{}
}

// NewAsync starts the delivery goroutine.
func NewAsync(sinks []Sink, opts Options) *Async {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.DeliveryTimeout <= 0 {
		opts.DeliveryTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	a := &Async{
		sinks:   sinks,
		queue:   make(chan Event, opts.QueueSize),
		timeout: opts.DeliveryTimeout,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		now:     opts.Now,
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

// Notify implements Notifier.
func (a *Async) Notify(ev Event) {
	if ev.At.IsZero() {
		ev.At = a.now().UTC()
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}

	select {
	case a.queue <- ev:
	default:
		a.metrics.RecordDropped()
		a.logger.Warn("Notification queue full, dropping event", "kind", ev.Kind, "address", ev.Address)
	}
}

func (a *Async) run() {
	defer close(a.done)
	for ev := range a.queue {
		for _, s := range a.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
			err := s.Deliver(ctx, ev)
			cancel()
			if err != nil {
				a.metrics.RecordSinkError(s.Name())
				a.logger.Error("Failed to deliver event", "sink", s.Name(), "kind", ev.Kind, "error", err)
			}
		}
	}
}

// Close stops accepting events and waits for queued ones to be delivered,
// or for ctx to end.
func (a *Async) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.queue)
		a.mu.Unlock()
	})

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
