// Package wsproto defines the wire format of the WebSocket gateway: the
// outbound event envelope and the inbound control frames.
package wsproto

import (
	"encoding/json"
	"fmt"
	"time"
)

// Control frame types accepted from clients.
const (
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypePing        = "ping"
)

// Reply types sent to clients in response to control frames.
const (
	TypeSubscribed   = "subscribed"
	TypeUnsubscribed = "unsubscribed"
	TypePong         = "pong"
	TypeError        = "error"
)

// Envelope is the outbound event frame.
type Envelope struct {
	Channel   string                 `json:"channel"`
	Event     string                 `json:"event"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
}

// Encode marshals the envelope for the wire.
func (e *Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return data, nil
}

// ControlFrame is an inbound client request on the socket.
type ControlFrame struct {
	Type    string   `json:"type"`
	Channel string   `json:"channel,omitempty"`
	Events  []string `json:"events,omitempty"` // empty means all event types
}

// Reply is the acknowledgement for a control frame.
type Reply struct {
	Type    string    `json:"type"`
	Channel string    `json:"channel,omitempty"`
	Message string    `json:"message,omitempty"`
	Time    time.Time `json:"time"`
}

// NewReply builds an acknowledgement.
func NewReply(replyType, channel string) *Reply {
	return &Reply{Type: replyType, Channel: channel, Time: time.Now().UTC()}
}

// NewError builds an error reply.
func NewError(message string) *Reply {
	return &Reply{Type: TypeError, Message: message, Time: time.Now().UTC()}
}
