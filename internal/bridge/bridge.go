// Package bridge speaks the JSON protocol between walletd and the browser
// tab that holds the user's wallet. The browser reports wallet events and
// signs; walletd aggregates, quotes and coordinates approvals.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"

	"github.com/matrixise/walletd/internal/approval"
	"github.com/matrixise/walletd/internal/balance"
	"github.com/matrixise/walletd/internal/metrics"
	"github.com/matrixise/walletd/internal/notify"
	"github.com/matrixise/walletd/internal/registry"
	"github.com/matrixise/walletd/internal/session"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// sessionSeq numbers sessions for logs. Peer addresses are never logged.
var sessionSeq atomic.Uint64

var (
	ErrClosed           = errors.New("bridge closed")
	ErrMalformedMessage = errors.New("malformed message")
	ErrWallet           = errors.New("wallet error")
)

// Config tunes the socket.
type Config struct {
	PingInterval    time.Duration
	PongWait        time.Duration
	WriteTimeout    time.Duration
	MaxMessageBytes int64
}

// DefaultConfig returns default WebSocket configuration.
func DefaultConfig() Config {
	return Config{
		PingInterval:    30 * time.Second,
		PongWait:        60 * time.Second,
		WriteTimeout:    10 * time.Second,
		MaxMessageBytes: 64 << 10,
	}
}

// Deps are the process-wide collaborators shared by every session.
type Deps struct {
	Registry   *registry.Registry
	Aggregator session.Aggregator
	Allowances approval.AllowanceReader
	Notifier   notify.Notifier
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	Session    session.Config
	Approval   approval.Config
	Socket     Config
}

// Session is one browser connection. It owns a state machine and an
// approval coordinator, and acts as their wallet.
type Session struct {
	conn        *websocket.Conn
	cfg         Config
	logger      *slog.Logger
	metrics     *metrics.Metrics
	machine     *session.Machine
	coordinator *approval.Coordinator

	writeMu   sync.Mutex
	nextID    atomic.Uint64
	pendingMu sync.Mutex
	pending   map[uint64]chan Inbound

	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewSession wraps an upgraded connection.
func NewSession(conn *websocket.Conn, deps Deps) *Session {
	def := DefaultConfig()
	cfg := deps.Socket
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.PongWait <= cfg.PingInterval {
		cfg.PongWait = 2 * cfg.PingInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = def.MaxMessageBytes
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notify.Nop{}
	}

	s := &Session{
		conn:    conn,
		cfg:     cfg,
		logger:  logger.With("session", sessionSeq.Add(1)),
		metrics: deps.Metrics,
		pending: make(map[uint64]chan Inbound),
		closed:  make(chan struct{}),
	}

	s.machine = session.NewMachine(deps.Registry, deps.Aggregator, deps.Session,
		session.WithLogger(s.logger),
		session.WithMetrics(deps.Metrics),
		session.WithNotifier(notifier),
		session.OnSnapshot(s.pushSnapshot),
		session.OnDisconnect(s.pushDisconnect),
	)
	s.coordinator = approval.NewCoordinator(deps.Registry, deps.Allowances, s, s.machine, deps.Approval,
		approval.WithLogger(s.logger),
		approval.WithMetrics(deps.Metrics),
		approval.WithNotifier(notifier),
		approval.WithDisconnect(s.machine.Disconnect),
		approval.WithWalletName(deps.Session.Wallet),
	)
	s.machine.RegisterResetter(s.coordinator)
	return s
}

// Run reads messages until the socket closes or ctx ends, then tears the
// session down. Pending wallet requests fail with ErrClosed.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.metrics.SessionOpened()
	defer s.metrics.SessionClosed()
	defer s.teardown()

	stop := context.AfterFunc(ctx, func() { s.conn.Close() })
	defer stop()

	s.conn.SetReadLimit(s.cfg.MaxMessageBytes)
	s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	})

	s.wg.Add(1)
	go s.pingLoop(ctx)

	s.logger.Info("Session opened")
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || !websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Info("Session closed")
				return nil
			}
			s.logger.Warn("Session read failed", "error", err)
			return err
		}
		s.handle(ctx, data)
	}
}

func (s *Session) teardown() {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.machine.Disconnect()
		s.wg.Wait()
		s.machine.Close()
		s.conn.Close()
	})
}

func (s *Session) pingLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(s.cfg.WriteTimeout)
			if err := s.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				s.logger.Debug("Ping failed", "error", err)
				return
			}
		case <-ctx.Done():
			return
		case <-s.closed:
			return
		}
	}
}

func (s *Session) handle(ctx context.Context, data []byte) {
	var msg Inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError("", fmt.Errorf("%w: %w", ErrMalformedMessage, err))
		return
	}

	switch msg.Type {
	case TypeHello:
		s.machine.SetWallet(msg.Wallet)
		s.coordinator.SetWalletName(msg.Wallet)
	case TypeAccountChanged:
		s.machine.OnAccountChange(session.AccountEvent{Address: msg.Address, IsConnected: msg.IsConnected})
	case TypeNetworkChanged:
		s.machine.OnNetworkChange(session.NetworkEvent{ChainID: msg.ChainID})
	case TypeQuote:
		s.quote(msg)
	case TypeApprove:
		s.wg.Add(1)
		go s.approve(ctx, msg)
	case TypeDiagnostics:
		_ = s.send(Outbound{Type: TypeDiagnostics, Diagnostics: s.machine.Diagnostics().Entries()})
	case TypeDisconnect:
		s.machine.Disconnect()
	case TypeResult:
		s.resolve(msg)
	default:
		s.sendError(msg.Type, fmt.Errorf("%w: unknown type %q", ErrMalformedMessage, msg.Type))
	}
}

// owner is the address of the established connection.
func (s *Session) owner() (string, error) {
	conn := s.machine.Connection()
	if !conn.IsConnected {
		return "", session.ErrDisconnected
	}
	return conn.Address, nil
}

func (s *Session) quote(msg Inbound) {
	owner, err := s.owner()
	if err != nil {
		s.sendError(TypeQuote, err)
		return
	}
	q, err := s.coordinator.Quote(owner, msg.ChainID, msg.Items)
	if err != nil {
		s.sendError(TypeQuote, err)
		return
	}
	_ = s.send(Outbound{Type: TypeQuote, Quote: &q})
}

func (s *Session) approve(ctx context.Context, msg Inbound) {
	defer s.wg.Done()

	owner, err := s.owner()
	if err != nil {
		s.sendError(TypeApprove, err)
		return
	}

	handles, err := s.coordinator.Approve(ctx, owner, msg.ChainID, msg.Items, msg.Digest)
	out := Outbound{Type: TypeApproval, ChainID: msg.ChainID, Approvals: handles}
	if err != nil {
		out.Code = errorCode(err)
		out.Message = err.Error()
		s.logger.Info("Approval ended with error", "chain_id", msg.ChainID, "code", out.Code, "error", err)
	}
	_ = s.send(out)
}

// SwitchChain implements approval.Wallet.
func (s *Session) SwitchChain(ctx context.Context, chainID uint64) error {
	_, err := s.request(ctx, Outbound{Type: TypeSwitchNetwork, ChainID: chainID})
	return err
}

// SendTransaction implements approval.Wallet. The browser signs and
// broadcasts, then answers with the transaction hash.
func (s *Session) SendTransaction(ctx context.Context, tx approval.TxRequest) (common.Hash, error) {
	res, err := s.request(ctx, Outbound{
		Type:    TypeSendTransaction,
		ChainID: tx.ChainID,
		From:    tx.From.Hex(),
		To:      tx.To.Hex(),
		Data:    hexutil.Encode(tx.Data),
	})
	if err != nil {
		return common.Hash{}, err
	}
	raw, err := hexutil.Decode(res.Hash)
	if err != nil || len(raw) != common.HashLength {
		return common.Hash{}, fmt.Errorf("%w: invalid transaction hash %q", ErrWallet, res.Hash)
	}
	return common.BytesToHash(raw), nil
}

// request sends msg with a fresh id and waits for the matching result.
func (s *Session) request(ctx context.Context, msg Outbound) (Inbound, error) {
	id := s.nextID.Add(1)
	msg.ID = id

	ch := make(chan Inbound, 1)
	s.pendingMu.Lock()
	s.pending[id] = ch
	s.pendingMu.Unlock()
	defer func() {
		s.pendingMu.Lock()
		delete(s.pending, id)
		s.pendingMu.Unlock()
	}()

	if err := s.send(msg); err != nil {
		return Inbound{}, err
	}

	select {
	case res := <-ch:
		if res.Error != nil {
			if res.Error.Code == CodeUserRejected {
				return res, fmt.Errorf("%w: %s", approval.ErrUserRejected, res.Error.Message)
			}
			return res, fmt.Errorf("%w %d: %w", ErrWallet, res.Error.Code, res.Error)
		}
		return res, nil
	case <-ctx.Done():
		return Inbound{}, ctx.Err()
	case <-s.closed:
		return Inbound{}, ErrClosed
	}
}

func (s *Session) resolve(msg Inbound) {
	s.pendingMu.Lock()
	ch, ok := s.pending[msg.ID]
	s.pendingMu.Unlock()
	if !ok {
		s.logger.Debug("Result for unknown request", "id", msg.ID)
		return
	}
	select {
	case ch <- msg:
	default:
	}
}

func (s *Session) pushSnapshot(snap balance.Snapshot) {
	_ = s.send(Outbound{
		Type:        TypeSnapshot,
		Snapshot:    newSnapshotView(snap),
		Diagnostics: s.machine.Diagnostics().Entries(),
	})
}

func (s *Session) pushDisconnect() {
	_ = s.send(Outbound{Type: TypeDisconnect})
}

func (s *Session) sendError(ref string, err error) {
	_ = s.send(Outbound{Type: TypeError, Ref: ref, Code: errorCode(err), Message: err.Error()})
}

func (s *Session) send(msg Outbound) error {
	select {
	case <-s.closed:
		return ErrClosed
	default:
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Type, err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.logger.Debug("Write failed", "type", msg.Type, "error", err)
		return fmt.Errorf("write %s: %w", msg.Type, err)
	}
	return nil
}
