package websocket

import (
	"encoding/json"
	"time"
)

// creates a message with a marshaled payload. A nil payload produces
// a message with no payload field.
func NewMessage(messageType, sessionID, userID string, payload any) (*Message, error) {
	msg := &Message{
		Type:      messageType,
		SessionID: sessionID,
		UserID:    userID,
		Timestamp: time.Now(),
	}

	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}

		msg.Payload = raw
	}

	return msg, nil
}

// decodes the message payload into v
func (m *Message) UnmarshalPayload(v any) error {
	if len(m.Payload) == 0 {
		return ErrInvalidPayload
	}

	return json.Unmarshal(m.Payload, v)
}
