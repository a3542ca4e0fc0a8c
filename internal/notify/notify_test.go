package notify

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matrixise/walletd/internal/metrics"
)

type recordingSink struct {
	name  string
	mu    sync.Mutex
	got   []Event
	err   error
	block chan struct{}
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Deliver(ctx context.Context, ev Event) error {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, ev)
	return s.err
}

func (s *recordingSink) events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.got...)
}

func TestAsyncDeliversToEverySink(t *testing.T) {
	a := &recordingSink{name: "a"}
	b := &recordingSink{name: "b", err: errors.New("down")}
	m := metrics.New()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	n := NewAsync([]Sink{a, b}, Options{Metrics: m, Now: func() time.Time { return fixed }})
	n.Notify(Event{Kind: KindConnected, Address: "0xabc", ChainID: 1})
	n.Notify(Event{Kind: KindDisconnected, Address: "0xabc", ChainID: 1})
	require.NoError(t, n.Close(context.Background()))

	got := a.events()
	require.Len(t, got, 2)
	assert.Equal(t, KindConnected, got[0].Kind)
	assert.Equal(t, fixed, got[0].At)
	assert.Len(t, b.events(), 2)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SinkErrors.WithLabelValues("b")))
}

func TestAsyncDropsWhenFull(t *testing.T) {
	blocked := &recordingSink{name: "slow", block: make(chan struct{})}
	m := metrics.New()

	n := NewAsync([]Sink{blocked}, Options{QueueSize: 1, Metrics: m})
	// First event is picked up by the worker and blocks; the second fills the queue.
	n.Notify(Event{Kind: KindConnected})
	require.Eventually(t, func() bool { return len(n.queue) == 0 }, time.Second, 5*time.Millisecond)
	n.Notify(Event{Kind: KindApprovalSubmitted})
	n.Notify(Event{Kind: KindApprovalCompleted})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsDropped))

	close(blocked.block)
	require.NoError(t, n.Close(context.Background()))
	assert.Len(t, blocked.events(), 2)

	// Events after Close are ignored.
	assert.NotPanics(t, func() { n.Notify(Event{Kind: KindConnected}) })
}

func TestAsyncCloseHonoursContext(t *testing.T) {
	blocked := &recordingSink{name: "slow", block: make(chan struct{})}
	n := NewAsync([]Sink{blocked}, Options{DeliveryTimeout: time.Minute})
	n.Notify(Event{Kind: KindConnected})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, n.Close(ctx), context.DeadlineExceeded)
	close(blocked.block)
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	s := LogSink{Logger: slog.New(slog.NewTextHandler(&buf, nil))}

	err := s.Deliver(context.Background(), Event{
		Kind:    KindApprovalCompleted,
		Address: "0xowner",
		ChainID: 137,
		Token:   "0xtoken",
		Symbol:  "USDC",
		Spender: "0xspender",
		Amount:  decimal.NewNullDecimal(decimal.RequireFromString("12.5")),
		TxHash:  "0xhash",
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "kind=approval_completed")
	assert.Contains(t, out, "chain_id=137")
	assert.Contains(t, out, "amount=12.5")
	assert.Contains(t, out, "tx_hash=0xhash")
	assert.NotContains(t, out, "detail=")
	assert.Equal(t, "log", s.Name())
}

func TestNop(t *testing.T) {
	var n Notifier = Nop{}
	assert.NotPanics(t, func() { n.Notify(Event{}) })
}
