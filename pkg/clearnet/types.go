// Package clearnet implements the client side of the settlement network
// protocol: the websocket transport with bounded reconnection, the session
// authentication handshake, and the routing of inbound envelopes into a
// per-session transfer stream.
package clearnet

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Message types exchanged with the settlement network.
const (
	TypeAuthRequest       = "auth_request"
	TypeAuthChallenge     = "auth_challenge"
	TypeAuthVerify        = "auth_verify"
	TypeAuthSuccess       = "auth_success"
	TypeGetLedgerBalances = "get_ledger_balances"
	TypeLedgerBalances    = "ledger_balances"
	TypeTransfer          = "transfer"
	TypeChannelUpdate     = "channel_update"
	TypeChannelUpdateAbbr = "cu"
	TypePing              = "ping"
	TypePong              = "pong"
	TypeError             = "error"
)

// State is the session authentication state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthRequested
	StateChallenged
	StateAuthenticated
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthRequested:
		return "auth_requested"
	case StateChallenged:
		return "challenged"
	case StateAuthenticated:
		return "authenticated"
	case StateFaulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// AuthRequestPayload carries the session identity and allowance scope.
type AuthRequestPayload struct {
	Address    string `json:"address"`
	SessionKey string `json:"session_key"`
	AppName    string `json:"app_name"`
	Allowance  string `json:"allowance"`
	Expire     int64  `json:"expire"`
	Asset      string `json:"asset"`
}

// AuthChallengePayload carries the server-issued challenge message.
type AuthChallengePayload struct {
	ChallengeMessage string `json:"challenge_message"`
}

// AuthVerifyPayload answers a challenge. The signature is produced by the
// user's primary key over the same scope parameters sent in the request.
type AuthVerifyPayload struct {
	Address   string `json:"address"`
	Challenge string `json:"challenge"`
	Signature string `json:"signature"`
}

// BalanceEntry is one asset balance reported by the ledger.
type BalanceEntry struct {
	Asset  string          `json:"asset"`
	Amount decimal.Decimal `json:"amount"`
}

// TransferAllocation is one leg of a transfer or channel update.
type TransferAllocation struct {
	Destination string          `json:"destination"`
	Asset       string          `json:"asset"`
	Amount      decimal.Decimal `json:"amount"`
}

// TransferPayload is the payload of transfer and channel_update messages.
type TransferPayload struct {
	ID          string               `json:"id"`
	From        string               `json:"from,omitempty"`
	Allocations []TransferAllocation `json:"allocations"`
}

// TransferRequestPayload is the outbound transfer request.
type TransferRequestPayload struct {
	Destination string          `json:"destination"`
	Asset       string          `json:"asset"`
	Amount      decimal.Decimal `json:"amount"`
}

// Transfer is an observed incoming value movement addressed to this
// session's identity. Amounts are integer minor units.
type Transfer struct {
	ID           string
	Asset        string
	Amount       int64
	Counterparty string
	ReceivedAt   time.Time
	Raw          json.RawMessage
}

// ToMinorUnits converts a decimal asset amount into integer minor units,
// truncating any precision beyond the asset's decimals.
func ToMinorUnits(amount decimal.Decimal, decimals int32) int64 {
	return amount.Shift(decimals).IntPart()
}

// FromMinorUnits converts integer minor units into a decimal asset amount.
func FromMinorUnits(minor int64, decimals int32) decimal.Decimal {
	return decimal.New(minor, -decimals)
}
