package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// MigrationRequestMessage asks a worker to migrate one caller's snapshot.
type MigrationRequestMessage struct {
	CallerID  string    `json:"caller_id"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMigrationRequestMessage creates a request for callerID.
func NewMigrationRequestMessage(callerID string) *MigrationRequestMessage {
	return &MigrationRequestMessage{
		CallerID:  callerID,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *MigrationRequestMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// MigrationRequestMessageFromJSON decodes a request and rejects one without a caller.
func MigrationRequestMessageFromJSON(data []byte) (*MigrationRequestMessage, error) {
	var msg MigrationRequestMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.CallerID == "" {
		return nil, errors.New("missing caller_id")
	}
	return &msg, nil
}

// MigrationProgressMessage carries one progress line of a running migration.
// The last message of a run has Done set and reports the failure count.
type MigrationProgressMessage struct {
	CallerID string    `json:"caller_id"`
	Seq      int       `json:"seq"`
	Message  string    `json:"message"`
	Time     time.Time `json:"time"`
	Done     bool      `json:"done,omitempty"`
	Failures int       `json:"failures,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// ToJSON converts the message to JSON bytes
func (m *MigrationProgressMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// MigrationProgressMessageFromJSON decodes a progress message.
func MigrationProgressMessageFromJSON(data []byte) (*MigrationProgressMessage, error) {
	var msg MigrationProgressMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
