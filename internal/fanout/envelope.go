// Package fanout pushes auction price changes and personal notifications to
// live websocket connections.
package fanout

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	model "auction-house/internal/models"
)

// MessageType is the discriminant of an Envelope.
type MessageType string

const (
	// server to client
	TypePriceUpdate  MessageType = "price_update"
	TypeStatusUpdate MessageType = "auction_status"
	TypeNotification MessageType = "notification"
	TypeAck          MessageType = "ack"
	TypeError        MessageType = "error"

	// client to server
	TypeSubscribe   MessageType = "subscribe"
	TypeUnsubscribe MessageType = "unsubscribe"
)

// ErrUnknownMessageType is returned by Decode for an unrecognised discriminant.
var ErrUnknownMessageType = errors.New("unknown message type")

// Envelope is the frame carried over the socket in both directions.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Message is implemented by every payload an Envelope can carry.
type Message interface {
	messageType() MessageType
}

// PriceUpdate announces a new current price to an auction's subscribers.
type PriceUpdate struct {
	AuctionID    string    `json:"id"`
	CurrentPrice float64   `json:"current_price"`
	At           time.Time `json:"at"`
}

// StatusUpdate announces a lifecycle transition to an auction's subscribers.
type StatusUpdate struct {
	AuctionID string              `json:"id"`
	Status    model.AuctionStatus `json:"status"`
	At        time.Time           `json:"at"`
}

// Notification is a personal message for the connected user.
type Notification struct {
	model.Notification
}

// Ack confirms a subscribe or unsubscribe request.
type Ack struct {
	Action    MessageType `json:"action"`
	AuctionID string      `json:"auction_id"`
}

// ErrorMessage reports a rejected client frame.
type ErrorMessage struct {
	Message string `json:"message"`
}

// Subscribe asks for an auction's price stream.
type Subscribe struct {
	AuctionID string `json:"auction_id"`
}

// Unsubscribe stops an auction's price stream.
type Unsubscribe struct {
	AuctionID string `json:"auction_id"`
}

func (PriceUpdate) messageType() MessageType  { return TypePriceUpdate }
func (StatusUpdate) messageType() MessageType { return TypeStatusUpdate }
func (Notification) messageType() MessageType { return TypeNotification }
func (Ack) messageType() MessageType          { return TypeAck }
func (ErrorMessage) messageType() MessageType { return TypeError }
func (Subscribe) messageType() MessageType    { return TypeSubscribe }
func (Unsubscribe) messageType() MessageType  { return TypeUnsubscribe }

// Encode wraps m in an Envelope and marshals it.
func Encode(m Message) ([]byte, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("fanout: encode %s payload: %w", m.messageType(), err)
	}
	data, err := json.Marshal(Envelope{Type: m.messageType(), Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("fanout: encode envelope: %w", err)
	}
	return data, nil
}

// Decode parses a frame into its concrete Message.
func Decode(data []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("fanout: decode envelope: %w", err)
	}

	var (
		m   Message
		err error
	)
	switch env.Type {
	case TypePriceUpdate:
		m, err = decodePayload[PriceUpdate](env.Payload)
	case TypeStatusUpdate:
		m, err = decodePayload[StatusUpdate](env.Payload)
	case TypeNotification:
		m, err = decodePayload[Notification](env.Payload)
	case TypeAck:
		m, err = decodePayload[Ack](env.Payload)
	case TypeError:
		m, err = decodePayload[ErrorMessage](env.Payload)
	case TypeSubscribe:
		m, err = decodePayload[Subscribe](env.Payload)
	case TypeUnsubscribe:
		m, err = decodePayload[Unsubscribe](env.Payload)
	default:
		return nil, fmt.Errorf("fanout: %w %q", ErrUnknownMessageType, env.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("fanout: decode %s payload: %w", env.Type, err)
	}
	return m, nil
}

func decodePayload[T Message](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, errors.New("missing payload")
	}
	err := json.Unmarshal(raw, &v)
	return v, err
}
