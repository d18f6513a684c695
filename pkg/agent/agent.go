// Package agent owns settlement session lifecycles. A session pairs one
// authenticated network connection with the garnishment engine consuming
// its transfer stream; the manager tracks sessions per user and is the
// only place they are started and stopped.
package agent

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vouchnet/settlement-middleware/internal/metrics"
	apperrors "github.com/vouchnet/settlement-middleware/pkg/app/errors"
	"github.com/vouchnet/settlement-middleware/pkg/auth"
	"github.com/vouchnet/settlement-middleware/pkg/clearnet"
	"github.com/vouchnet/settlement-middleware/pkg/config"
	"github.com/vouchnet/settlement-middleware/pkg/credit"
	"github.com/vouchnet/settlement-middleware/pkg/creditstore"
	"github.com/vouchnet/settlement-middleware/pkg/garnish"
	"github.com/vouchnet/settlement-middleware/pkg/keys"
)

// ErrSessionNotFound is returned for operations on a user without a
// running session.
var ErrSessionNotFound = errors.New("session not found")

type sessionConn interface {
	Init(ctx context.Context) error
	Disconnect()
	IsAuthenticated() bool
	State() clearnet.State
	Transfers() <-chan clearnet.Transfer
	Faults() <-chan error
	SendTransfer(ctx context.Context, destination string, amount int64) error
	Balance(asset string) int64
	Address() string
}

type sessionStore interface {
	GetOrCreateProfile(ctx context.Context, address string) (*credit.Profile, error)
	OpenDebtsForBorrower(ctx context.Context, borrower string) ([]*credit.Debt, error)
	ApplyPayment(ctx context.Context, debtID int64, amount int64, kind credit.PaymentKind) (*creditstore.PaymentResult, error)
}

type paymentSettler interface {
	SettleGarnishPayment(ctx context.Context, result *creditstore.PaymentResult)
}

// Session is one user's live settlement session.
type Session struct {
	address   string
	conn      sessionConn
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startedAt time.Time

	stopOnce sync.Once
}

// SessionInfo is the externally visible snapshot of a session.
type SessionInfo struct {
	Address   string    `json:"address"`
	State     string    `json:"state"`
	Ready     bool      `json:"ready"`
	Balance   int64     `json:"balance"`
	StartedAt time.Time `json:"started_at"`
}

func (s *Session) info(asset string) SessionInfo {
	return SessionInfo{
		Address:   s.address,
		State:     s.conn.State().String(),
		Ready:     s.conn.IsAuthenticated(),
		Balance:   s.conn.Balance(asset),
		StartedAt: s.startedAt,
	}
}

// stop tears the session down and waits for in-flight garnishment to
// finish. The disconnect closes the transfer stream, which ends the
// engine's run loop after it drains the transfer it is processing.
func (s *Session) stop() {
	s.stopOnce.Do(func() {
		s.conn.Disconnect()
		s.cancel()
		s.wg.Wait()
	})
}

// Manager starts, indexes, and stops sessions keyed by user address.
type Manager struct {
	cfg     config.ClearnetConfig
	store   sessionStore
	settler paymentSettler
	logger  *zap.Logger

	// newConn is swapped out in tests
	newConn func(primary *keys.Signer) (sessionConn, error)

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(cfg config.ClearnetConfig, store sessionStore, settler paymentSettler, logger *zap.Logger) *Manager {
	m := &Manager{
		cfg:      cfg,
		store:    store,
		settler:  settler,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
	m.newConn = func(primary *keys.Signer) (sessionConn, error) {
		return clearnet.NewClient(clearnet.Config{
			WSURL:                cfg.WSURL,
			AppName:              cfg.AppName,
			AssetSymbol:          cfg.AssetSymbol,
			AssetDecimals:        cfg.AssetDecimals,
			SessionAllowance:     cfg.SessionAllowance,
			SessionExpiry:        cfg.SessionExpiry,
			AuthTimeout:          cfg.AuthTimeout,
			ReconnectBaseDelay:   cfg.ReconnectBaseDelay,
			MaxReconnectAttempts: cfg.MaxReconnectAttempts,
			PingInterval:         cfg.PingInterval,
		}, primary, logger)
	}
	return m
}

// StartSession authenticates a new session for the given primary key and
// starts garnishment on its transfer stream. Blocks until the session is
// authenticated or the handshake fails. A user can hold at most one
// session at a time.
func (m *Manager) StartSession(ctx context.Context, privateKeyHex string) (SessionInfo, error) {
	primary, err := keys.NewSigner(privateKeyHex)
	if err != nil {
		return SessionInfo{}, apperrors.BadRequestError(err, "invalid private key")
	}
	address := auth.NormalizeAddress(primary.Address().Hex())

	m.mu.Lock()
	if _, exists := m.sessions[address]; exists {
		m.mu.Unlock()
		return SessionInfo{}, apperrors.ConflictError(clearnet.ErrAlreadyRunning,
			"a session for this address is already running")
	}
	// reserve the slot while the handshake runs outside the lock
	m.sessions[address] = nil
	m.mu.Unlock()

	conn, err := m.newConn(primary)
	if err != nil {
		m.release(address)
		return SessionInfo{}, err
	}

	if err := conn.Init(ctx); err != nil {
		m.release(address)
		return SessionInfo{}, apperrors.DependencyError(err, "settlement network authentication failed")
	}

	if _, err := m.store.GetOrCreateProfile(ctx, address); err != nil {
		conn.Disconnect()
		m.release(address)
		return SessionInfo{}, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	session := &Session{
		address:   address,
		conn:      conn,
		cancel:    cancel,
		startedAt: time.Now(),
	}

	engine := garnish.NewEngine(address, m.cfg.VaultAddress, m.store, conn, m.settler, m.logger)
	session.wg.Add(1)
	go func() {
		defer session.wg.Done()
		engine.Run(runCtx)
	}()

	session.wg.Add(1)
	go func() {
		defer session.wg.Done()
		m.watchFaults(runCtx, session)
	}()

	m.mu.Lock()
	m.sessions[address] = session
	m.mu.Unlock()
	metrics.SessionsActive.Inc()

	m.logger.Info("session started", zap.String("address", address))
	return session.info(m.cfg.AssetSymbol), nil
}

// watchFaults removes a session whose reconnect budget ran out.
func (m *Manager) watchFaults(ctx context.Context, session *Session) {
	var err error
	select {
	case <-ctx.Done():
		return
	case fault, ok := <-session.conn.Faults():
		if !ok {
			return
		}
		err = fault
	}
	m.logger.Error("session faulted",
		zap.String("address", session.address), zap.Error(err))

	m.mu.Lock()
	current, exists := m.sessions[session.address]
	if exists && current == session {
		delete(m.sessions, session.address)
		metrics.SessionsActive.Dec()
	}
	m.mu.Unlock()

	session.conn.Disconnect()
	session.cancel()
}

func (m *Manager) release(address string) {
	m.mu.Lock()
	delete(m.sessions, address)
	m.mu.Unlock()
}

// StopSession tears down a user's session and waits for in-flight
// garnishment to complete.
func (m *Manager) StopSession(address string) error {
	address = auth.NormalizeAddress(address)

	m.mu.Lock()
	session, exists := m.sessions[address]
	if !exists || session == nil {
		m.mu.Unlock()
		return ErrSessionNotFound
	}
	delete(m.sessions, address)
	m.mu.Unlock()

	session.stop()
	metrics.SessionsActive.Dec()
	m.logger.Info("session stopped", zap.String("address", address))
	return nil
}

func (m *Manager) get(address string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, exists := m.sessions[auth.NormalizeAddress(address)]
	if !exists || session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Session returns a snapshot of a user's running session.
func (m *Manager) Session(address string) (SessionInfo, error) {
	session, err := m.get(address)
	if err != nil {
		return SessionInfo{}, err
	}
	return session.info(m.cfg.AssetSymbol), nil
}

// IsReady reports whether a user's session is authenticated.
func (m *Manager) IsReady(address string) bool {
	session, err := m.get(address)
	return err == nil && session.conn.IsAuthenticated()
}

// Sessions returns a snapshot of all running sessions.
func (m *Manager) Sessions() []SessionInfo {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		if session != nil {
			sessions = append(sessions, session)
		}
	}
	m.mu.Unlock()

	infos := make([]SessionInfo, len(sessions))
	for i, session := range sessions {
		infos[i] = session.info(m.cfg.AssetSymbol)
	}
	return infos
}

// StopAll stops every running session, used on shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for address, session := range m.sessions {
		if session != nil {
			sessions = append(sessions, session)
		}
		delete(m.sessions, address)
	}
	m.mu.Unlock()

	for _, session := range sessions {
		session.stop()
		metrics.SessionsActive.Dec()
	}
}
