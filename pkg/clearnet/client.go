package clearnet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vouchnet/settlement-middleware/internal/metrics"
	"github.com/vouchnet/settlement-middleware/pkg/auth"
	"github.com/vouchnet/settlement-middleware/pkg/keys"
)

var (
	// ErrAlreadyRunning is returned when Init is called on a client whose
	// session is already established or still being established.
	ErrAlreadyRunning = errors.New("already running")

	// ErrNotAuthenticated is returned by operations that require an
	// established session.
	ErrNotAuthenticated = errors.New("session not authenticated")

	// ErrRetriesExhausted is delivered on the fault channel when the
	// reconnect budget is spent without regaining a session.
	ErrRetriesExhausted = errors.New("reconnect attempts exhausted")
)

// Config controls a single session client.
type Config struct {
	WSURL                string
	AppName              string
	AssetSymbol          string
	AssetDecimals        int32
	SessionAllowance     string
	SessionExpiry        time.Duration
	AuthTimeout          time.Duration
	ReconnectBaseDelay   time.Duration
	MaxReconnectAttempts int
	PingInterval         time.Duration
}

// Client maintains one authenticated session with the settlement network
// on behalf of one user. It owns the websocket connection, drives the
// challenge-response handshake, reconnects within a bounded retry budget,
// and routes inbound transfers onto the Transfers channel.
type Client struct {
	cfg     Config
	primary *keys.Signer
	session *keys.Signer
	logger  *zap.Logger

	dialer *websocket.Dialer
	budget *RetryBudget
	state  atomic.Int32

	writeMu sync.Mutex
	conn    *websocket.Conn

	transferMu      sync.Mutex
	transfersClosed bool
	transfers       chan Transfer
	faults          chan error

	readyOnce sync.Once
	ready     chan struct{}

	closeOnce sync.Once
	done      chan struct{}

	running atomic.Bool

	balancesMu sync.RWMutex
	balances   map[string]int64
}

// NewClient builds a session client for the given primary key. The
// ephemeral session key is derived from the primary key, so the session
// identity is stable across reconnects.
func NewClient(cfg Config, primary *keys.Signer, logger *zap.Logger) (*Client, error) {
	session, err := keys.DeriveSessionSigner(primary)
	if err != nil {
		return nil, fmt.Errorf("deriving session signer: %w", err)
	}
	return &Client{
		cfg:       cfg,
		primary:   primary,
		session:   session,
		logger:    logger.With(zap.String("user", primary.Address().Hex())),
		dialer:    websocket.DefaultDialer,
		budget:    NewRetryBudget(cfg.MaxReconnectAttempts, cfg.ReconnectBaseDelay),
		transfers: make(chan Transfer, 64),
		faults:    make(chan error, 1),
		ready:     make(chan struct{}),
		done:      make(chan struct{}),
		balances:  make(map[string]int64),
	}, nil
}

// Address returns the user identity this session settles for.
func (c *Client) Address() string {
	return c.primary.Address().Hex()
}

// SessionAddress returns the derived session key's address.
func (c *Client) SessionAddress() string {
	return c.session.Address().Hex()
}

// State returns the current session state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// IsAuthenticated reports whether the session is established.
func (c *Client) IsAuthenticated() bool {
	return c.State() == StateAuthenticated
}

// Transfers returns the stream of incoming transfers addressed to this
// session's identity. The channel is closed when the session shuts down.
func (c *Client) Transfers() <-chan Transfer {
	return c.transfers
}

// Faults delivers the terminal error when the session gives up
// reconnecting.
func (c *Client) Faults() <-chan error {
	return c.faults
}

// Init connects and authenticates. It blocks until the session first
// reaches the authenticated state, the auth timeout elapses, or the
// context is canceled. Calling Init on a running client fails with
// ErrAlreadyRunning.
func (c *Client) Init(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	if err := c.connect(); err != nil {
		c.scheduleReconnect(err)
	}

	timeout := c.cfg.AuthTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-c.ready:
		return nil
	case err := <-c.faults:
		c.Disconnect()
		return err
	case <-timer.C:
		c.Disconnect()
		return fmt.Errorf("authentication timed out after %s", timeout)
	case <-ctx.Done():
		c.Disconnect()
		return ctx.Err()
	}
}

// Disconnect tears the session down. The retry budget is exhausted first
// so the resulting connection-closed event cannot trigger a reconnect.
func (c *Client) Disconnect() {
	c.closeOnce.Do(func() {
		c.budget.Exhaust()
		close(c.done)
		c.writeMu.Lock()
		if c.conn != nil {
			c.conn.Close()
		}
		c.writeMu.Unlock()
		c.state.Store(int32(StateDisconnected))

		// done is closed by now, so any deliver blocked on a full
		// channel has unblocked and released transferMu.
		c.transferMu.Lock()
		c.transfersClosed = true
		close(c.transfers)
		c.transferMu.Unlock()
	})
}

// connect dials the network and starts the handshake.
func (c *Client) connect() error {
	c.state.Store(int32(StateConnecting))

	conn, _, err := c.dialer.Dial(c.cfg.WSURL, nil)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", c.cfg.WSURL, err)
	}

	c.writeMu.Lock()
	c.conn = conn
	c.writeMu.Unlock()

	go c.readLoop(conn)
	go c.pingLoop(conn)

	if err := c.sendAuthRequest(); err != nil {
		conn.Close()
		return err
	}
	c.state.Store(int32(StateAuthRequested))
	return nil
}

// pingLoop keeps the connection warm. It stops when the connection it
// was started for is replaced or the client shuts down.
func (c *Client) pingLoop(conn *websocket.Conn) {
	if c.cfg.PingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			current := c.conn
			c.writeMu.Unlock()
			if current != conn {
				return
			}
			if err := c.send(TypePing, struct{}{}); err != nil {
				return
			}
		}
	}
}

func (c *Client) sendAuthRequest() error {
	payload := AuthRequestPayload{
		Address:    c.primary.Address().Hex(),
		SessionKey: c.session.Address().Hex(),
		AppName:    c.cfg.AppName,
		Allowance:  c.cfg.SessionAllowance,
		Expire:     time.Now().Add(c.cfg.SessionExpiry).Unix(),
		Asset:      c.cfg.AssetSymbol,
	}
	return c.send(TypeAuthRequest, payload)
}

// send builds, signs with the session key, and writes one request frame.
func (c *Client) send(msgType string, payload any) error {
	body, err := NewRequest(msgType, payload)
	if err != nil {
		return err
	}
	frame, err := EncodeRequest(body, c.session)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return ErrNotAuthenticated
	}
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.scheduleReconnect(err)
			}
			return
		}
		c.route(data)
	}
}

// route dispatches one inbound frame. Malformed frames are logged and
// dropped without tearing down the connection.
func (c *Client) route(data []byte) {
	msg, err := DecodeMessage(data)
	if err != nil {
		c.logger.Warn("dropping malformed message", zap.Error(err))
		return
	}
	metrics.TransfersRouted.WithLabelValues(msg.Type).Inc()

	switch msg.Type {
	case TypeAuthChallenge:
		c.handleChallenge(msg)
	case TypeAuthSuccess:
		c.handleAuthSuccess()
	case TypeLedgerBalances:
		c.handleBalances(msg)
	case TypeTransfer, TypeChannelUpdate, TypeChannelUpdateAbbr:
		c.handleTransfer(msg)
	case TypePing:
		if err := c.send(TypePong, struct{}{}); err != nil {
			c.logger.Warn("failed to answer ping", zap.Error(err))
		}
	case TypePong:
	case TypeError:
		var ep ErrorPayload
		_ = json.Unmarshal(msg.Payload, &ep)
		c.logger.Warn("server reported error", zap.String("error", ep.Error))
	default:
		c.logger.Debug("ignoring message", zap.String("type", msg.Type))
	}
}

// handleChallenge answers the server challenge. The verification
// signature is produced by the primary key over the challenge together
// with the same scope parameters sent in the auth request, which is what
// authorizes the session key to act within that scope.
func (c *Client) handleChallenge(msg *Message) {
	var payload AuthChallengePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		c.logger.Warn("dropping malformed auth challenge", zap.Error(err))
		return
	}

	scope := fmt.Sprintf("%s:%s:%s:%s:%s",
		payload.ChallengeMessage,
		c.primary.Address().Hex(),
		c.session.Address().Hex(),
		c.cfg.SessionAllowance,
		c.cfg.AppName,
	)
	sig, err := c.primary.Sign([]byte(scope))
	if err != nil {
		c.logger.Error("failed to sign auth challenge", zap.Error(err))
		return
	}

	verify := AuthVerifyPayload{
		Address:   c.primary.Address().Hex(),
		Challenge: payload.ChallengeMessage,
		Signature: sig,
	}
	if err := c.send(TypeAuthVerify, verify); err != nil {
		c.logger.Error("failed to send auth verification", zap.Error(err))
		return
	}
	c.state.Store(int32(StateChallenged))
}

func (c *Client) handleAuthSuccess() {
	c.state.Store(int32(StateAuthenticated))
	c.budget.Reset()
	c.logger.Info("session authenticated",
		zap.String("session_key", c.session.Address().Hex()))

	// Warm the balance cache; failure here is not fatal.
	if err := c.RequestBalances(); err != nil {
		c.logger.Warn("failed to request ledger balances", zap.Error(err))
	}

	c.readyOnce.Do(func() { close(c.ready) })
}

func (c *Client) handleBalances(msg *Message) {
	var entries []BalanceEntry
	if err := json.Unmarshal(msg.Payload, &entries); err != nil {
		c.logger.Warn("dropping malformed balance report", zap.Error(err))
		return
	}
	c.balancesMu.Lock()
	for _, e := range entries {
		c.balances[e.Asset] = ToMinorUnits(e.Amount, c.cfg.AssetDecimals)
	}
	c.balancesMu.Unlock()
}

// handleTransfer extracts the incoming allocation addressed to this
// session's identity, if any, and forwards it on the transfer channel.
func (c *Client) handleTransfer(msg *Message) {
	var payload TransferPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		c.logger.Warn("dropping malformed transfer", zap.Error(err))
		return
	}

	self := c.primary.Address().Hex()
	for _, alloc := range payload.Allocations {
		if !auth.SameAddress(alloc.Destination, self) {
			continue
		}
		amount := ToMinorUnits(alloc.Amount, c.cfg.AssetDecimals)
		if amount <= 0 {
			continue
		}

		c.balancesMu.Lock()
		c.balances[alloc.Asset] += amount
		c.balancesMu.Unlock()

		transfer := Transfer{
			ID:           payload.ID,
			Asset:        alloc.Asset,
			Amount:       amount,
			Counterparty: payload.From,
			ReceivedAt:   msg.Timestamp,
			Raw:          msg.Payload,
		}
		if !c.deliver(transfer) {
			return
		}
	}
}

// deliver forwards one transfer to the consumer. The closed flag is
// checked under the same lock that guards the channel close, so a
// shutdown racing a late inbound frame can never send on a closed
// channel.
func (c *Client) deliver(transfer Transfer) bool {
	c.transferMu.Lock()
	defer c.transferMu.Unlock()
	if c.transfersClosed {
		return false
	}
	select {
	case c.transfers <- transfer:
		return true
	case <-c.done:
		return false
	}
}

// SendTransfer sends an outbound transfer from the session balance.
func (c *Client) SendTransfer(ctx context.Context, destination string, amount int64) error {
	if !c.IsAuthenticated() {
		return ErrNotAuthenticated
	}
	if amount <= 0 {
		return fmt.Errorf("transfer amount must be positive, got %d", amount)
	}
	payload := TransferRequestPayload{
		Destination: destination,
		Asset:       c.cfg.AssetSymbol,
		Amount:      FromMinorUnits(amount, c.cfg.AssetDecimals),
	}
	return c.send(TypeTransfer, payload)
}

// RequestBalances asks the network for the session's ledger balances.
// The reply updates the cache served by Balance.
func (c *Client) RequestBalances() error {
	return c.send(TypeGetLedgerBalances, struct{}{})
}

// Balance returns the last known balance for an asset in minor units.
func (c *Client) Balance(asset string) int64 {
	c.balancesMu.RLock()
	defer c.balancesMu.RUnlock()
	return c.balances[asset]
}

// scheduleReconnect runs the bounded reconnect loop in the background.
// When the budget is spent the session faults and the terminal error is
// delivered on the fault channel.
func (c *Client) scheduleReconnect(cause error) {
	go func() {
		for {
			delay, ok := c.budget.Next()
			if !ok {
				select {
				case <-c.done:
					return
				default:
				}
				c.state.Store(int32(StateFaulted))
				c.logger.Error("reconnect budget exhausted", zap.Error(cause))
				select {
				case c.faults <- fmt.Errorf("%w: %v", ErrRetriesExhausted, cause):
				default:
				}
				return
			}

			c.logger.Info("reconnecting",
				zap.Int("attempt", c.budget.Attempts()),
				zap.Duration("delay", delay))

			select {
			case <-c.done:
				return
			case <-time.After(delay):
			}

			err := c.connect()
			if err == nil {
				metrics.ReconnectsTotal.WithLabelValues("success").Inc()
				return
			}
			metrics.ReconnectsTotal.WithLabelValues("failure").Inc()
			c.logger.Warn("reconnect attempt failed", zap.Error(err))
			cause = err
		}
	}()
}
