package clearnet

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"
)

var requestCounter atomic.Uint64

// Body is the positional message body: [id, type, payload, timestamp].
type Body struct {
	RequestID uint64
	Type      string
	Payload   json.RawMessage
	Timestamp uint64
}

func (b Body) MarshalJSON() ([]byte, error) {
	payload := b.Payload
	if payload == nil {
		payload = json.RawMessage("{}")
	}
	return json.Marshal([]any{b.RequestID, b.Type, payload, b.Timestamp})
}

func (b *Body) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("message body is not an array: %w", err)
	}
	if len(parts) != 4 {
		return fmt.Errorf("message body has %d elements, want 4", len(parts))
	}
	if err := json.Unmarshal(parts[0], &b.RequestID); err != nil {
		return fmt.Errorf("invalid request id: %w", err)
	}
	if err := json.Unmarshal(parts[1], &b.Type); err != nil {
		return fmt.Errorf("invalid message type: %w", err)
	}
	b.Payload = parts[2]
	if err := json.Unmarshal(parts[3], &b.Timestamp); err != nil {
		return fmt.Errorf("invalid timestamp: %w", err)
	}
	return nil
}

// Envelope is the wire frame. Inbound frames carry res or err, outbound
// frames carry req plus the session signature over the body bytes.
type Envelope struct {
	Req *Body    `json:"req,omitempty"`
	Res *Body    `json:"res,omitempty"`
	Err *Body    `json:"err,omitempty"`
	Sig []string `json:"sig,omitempty"`
}

// ErrorPayload is the payload of err bodies and error messages.
type ErrorPayload struct {
	Error string `json:"error"`
}

// NewRequest builds a request body for the given message type.
func NewRequest(msgType string, payload any) (*Body, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s payload: %w", msgType, err)
	}
	return &Body{
		RequestID: requestCounter.Add(1),
		Type:      msgType,
		Payload:   raw,
		Timestamp: uint64(time.Now().UnixMilli()),
	}, nil
}

// bodySigner signs the serialized request body.
type bodySigner interface {
	Sign(data []byte) (string, error)
}

// EncodeRequest serializes a request body and attaches the signature
// produced by the given signer over the body bytes.
func EncodeRequest(body *Body, signer bodySigner) ([]byte, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request body: %w", err)
	}
	sig, err := signer.Sign(bodyBytes)
	if err != nil {
		return nil, fmt.Errorf("signing request body: %w", err)
	}
	return json.Marshal(Envelope{Req: body, Sig: []string{sig}})
}

// Message is a decoded inbound frame.
type Message struct {
	RequestID uint64
	Type      string
	Payload   json.RawMessage
	Timestamp time.Time
	IsError   bool
}

// DecodeMessage parses an inbound frame. Frames without a res or err body
// are rejected.
func DecodeMessage(data []byte) (*Message, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshaling envelope: %w", err)
	}
	body := env.Res
	isErr := false
	if body == nil {
		body = env.Err
		isErr = true
	}
	if body == nil {
		return nil, fmt.Errorf("envelope has no res or err body")
	}
	return &Message{
		RequestID: body.RequestID,
		Type:      body.Type,
		Payload:   body.Payload,
		Timestamp: time.UnixMilli(int64(body.Timestamp)),
		IsError:   isErr || body.Type == TypeError,
	}, nil
}
