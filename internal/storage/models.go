package storage

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/matrixise/walletd/internal/notify"
)

// AuditEvent is one row of audit_events.
type AuditEvent struct {
	ID         int64
	OccurredAt time.Time
	Kind       string
	Address    string
	ChainID    uint64
	Wallet     string
	Token      string
	Symbol     string
	Spender    string
	Amount     decimal.NullDecimal
	TxHash     string
	Detail     string
}

func fromEvent(ev notify.Event) AuditEvent {
	return AuditEvent{
		OccurredAt: ev.At.UTC(),
		Kind:       string(ev.Kind),
		Address:    ev.Address,
		ChainID:    ev.ChainID,
		Wallet:     ev.Wallet,
		Token:      ev.Token,
		Symbol:     ev.Symbol,
		Spender:    ev.Spender,
		Amount:     ev.Amount,
		TxHash:     ev.TxHash,
		Detail:     ev.Detail,
	}
}

// Event converts a stored row back into a notifier event.
func (a AuditEvent) Event() notify.Event {
	return notify.Event{
		Kind:    notify.Kind(a.Kind),
		At:      a.OccurredAt,
		Address: a.Address,
		ChainID: a.ChainID,
		Wallet:  a.Wallet,
		Token:   a.Token,
		Symbol:  a.Symbol,
		Spender: a.Spender,
		Amount:  a.Amount,
		TxHash:  a.TxHash,
		Detail:  a.Detail,
	}
}
