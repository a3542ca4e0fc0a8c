package storage

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/matrixise/walletd/internal/notify"
)

// setupTestDB starts a PostgreSQL container and returns its DSN.
func setupTestDB(t *testing.T) string {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("walletd"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

func TestAuditEventConversion(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	ev := notify.Event{
		Kind:    notify.KindApprovalCompleted,
		At:      at,
		Address: "0xabc",
		ChainID: 137,
		Token:   "0xtoken",
		Symbol:  "USDC",
		Spender: "0xspender",
		Amount:  decimal.NewNullDecimal(decimal.RequireFromString("12.5")),
		TxHash:  "0xhash",
	}

	row := fromEvent(ev)
	assert.Equal(t, time.UTC, row.OccurredAt.Location())
	assert.Equal(t, "approval_completed", row.Kind)

	back := row.Event()
	assert.True(t, at.Equal(back.At))
	assert.Equal(t, notify.KindApprovalCompleted, back.Kind)
	assert.True(t, back.Amount.Valid)
	assert.Equal(t, "12.5", back.Amount.Decimal.String())
}

func TestRecentEventsLimit(t *testing.T) {
	s := &Store{}
	for _, limit := range []int{0, -1, 1001} {
		_, err := s.RecentEvents(context.Background(), "0xabc", limit)
		assert.ErrorIs(t, err, ErrInvalidLimit)
	}
}

func TestStoreIntegration(t *testing.T) {
	dsn := setupTestDB(t)
	ctx := context.Background()

	applied, err := RunMigrations(ctx, dsn)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)

	statuses, err := MigrateStatus(ctx, dsn)
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.True(t, statuses[0].Applied)

	store, err := NewStore(ctx, dsn)
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Ping(ctx))

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	huge := decimal.RequireFromString("115792089237316195423570985008687907853269984665640564039457.584007913129639935")
	events := []notify.Event{
		{Kind: notify.KindConnected, At: base, Address: "0xABC", ChainID: 1, Wallet: "MetaMask"},
		{Kind: notify.KindApprovalSubmitted, At: base.Add(time.Second), Address: "0xabc", ChainID: 1,
			Token: "0xT", Symbol: "DAI", Spender: "0xS", Amount: decimal.NewNullDecimal(huge), TxHash: "0x1"},
		{Kind: notify.KindConnected, At: base, Address: "0xdef", ChainID: 56},
	}
	for _, ev := range events {
		require.NoError(t, store.Deliver(ctx, ev))
	}

	got, err := store.RecentEvents(ctx, "0xAbC", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "approval_submitted", got[0].Kind, "newest first")
	assert.Equal(t, "0xt", got[0].Token)
	assert.True(t, got[0].Amount.Valid)
	assert.True(t, huge.Equal(got[0].Amount.Decimal))
	assert.False(t, got[1].Amount.Valid)
	assert.Equal(t, uint64(1), got[1].ChainID)
	assert.Equal(t, "MetaMask", got[1].Wallet)

	require.NoError(t, MigrateDown(ctx, dsn))
	statuses, err = MigrateStatus(ctx, dsn)
	require.NoError(t, err)
	assert.False(t, statuses[0].Applied)
}

func TestStoreName(t *testing.T) {
	var sink notify.Sink = &Store{}
	assert.Equal(t, "postgres", sink.Name())
}
