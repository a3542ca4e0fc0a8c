package bridge

import (
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/matrixise/walletd/internal/approval"
	"github.com/matrixise/walletd/internal/balance"
	"github.com/matrixise/walletd/internal/diagnostics"
	"github.com/matrixise/walletd/internal/session"
)

// Inbound message types, sent by the browser.
const (
	TypeHello          = "hello"
	TypeAccountChanged = "account_changed"
	TypeNetworkChanged = "network_changed"
	TypeQuote          = "quote"
	TypeApprove        = "approve"
	TypeDiagnostics    = "diagnostics"
	TypeDisconnect     = "disconnect"
	TypeResult         = "result"
)

// Outbound message types, sent to the browser.
const (
	TypeSnapshot        = "snapshot"
	TypeApproval        = "approval"
	TypeError           = "error"
	TypeSwitchNetwork   = "switch_network"
	TypeSendTransaction = "send_transaction"
)

// CodeUserRejected is the EIP-1193 error code for a request the user declined.
const CodeUserRejected = 4001

// WalletError is the error a wallet returns for a request.
type WalletError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *WalletError) Error() string {
	return e.Message
}

// Inbound is a message from the browser.
type Inbound struct {
	Type        string          `json:"type"`
	ID          uint64          `json:"id,omitempty"`
	Wallet      string          `json:"wallet,omitempty"`
	Address     string          `json:"address,omitempty"`
	IsConnected bool            `json:"isConnected,omitempty"`
	ChainID     uint64          `json:"chainId,omitempty"`
	Items       []approval.Item `json:"items,omitempty"`
	Digest      common.Hash     `json:"digest,omitempty"`
	Hash        string          `json:"hash,omitempty"`
	Error       *WalletError    `json:"error,omitempty"`
}

// Outbound is a message to the browser.
type Outbound struct {
	Type        string              `json:"type"`
	ID          uint64              `json:"id,omitempty"`
	ChainID     uint64              `json:"chainId,omitempty"`
	From        string              `json:"from,omitempty"`
	To          string              `json:"to,omitempty"`
	Data        string              `json:"data,omitempty"`
	Snapshot    *SnapshotView       `json:"snapshot,omitempty"`
	Quote       *approval.Quote     `json:"quote,omitempty"`
	Approvals   []approval.TxHandle `json:"approvals,omitempty"`
	Diagnostics []diagnostics.Entry `json:"diagnostics,omitempty"`
	Ref         string              `json:"ref,omitempty"`
	Code        string              `json:"code,omitempty"`
	Message     string              `json:"message,omitempty"`
}

// SnapshotView is the snapshot as the UI renders it.
type SnapshotView struct {
	Address    string          `json:"address"`
	TakenAt    time.Time       `json:"takenAt"`
	TotalValue decimal.Decimal `json:"totalValue"`
	Entries    []balance.Entry `json:"entries"`
}

func newSnapshotView(s balance.Snapshot) *SnapshotView {
	return &SnapshotView{
		Address:    s.Address,
		TakenAt:    s.TakenAt.UTC(),
		TotalValue: s.TotalValue(),
		Entries:    s.NonZero(),
	}
}

// errorCode maps an error to the stable code the UI switches on.
func errorCode(err error) string {
	switch {
	case errors.Is(err, approval.ErrConsentRequired):
		return "consent_required"
	case errors.Is(err, approval.ErrChainSwitchFailed):
		return "chain_switch_failed"
	case errors.Is(err, approval.ErrUserRejected):
		return "user_rejected"
	case errors.Is(err, approval.ErrApprovalPending):
		return "approval_pending"
	case errors.Is(err, approval.ErrConfirmationTimeout):
		return "confirmation_timeout"
	case errors.Is(err, approval.ErrSubmissionFailed):
		return "submission_failed"
	case errors.Is(err, session.ErrDisconnected):
		return "disconnected"
	case errors.Is(err, approval.ErrInvalidAddress),
		errors.Is(err, approval.ErrUnknownChain),
		errors.Is(err, approval.ErrUnknownToken),
		errors.Is(err, approval.ErrSpenderNotRegistered),
		errors.Is(err, approval.ErrInvalidAmount),
		errors.Is(err, approval.ErrNoItems),
		errors.Is(err, approval.ErrDuplicateItem):
		return "invalid_request"
	case errors.Is(err, ErrMalformedMessage):
		return "malformed_message"
	}
	return "internal"
}
