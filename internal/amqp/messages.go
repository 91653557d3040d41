package amqp

import (
	"encoding/json"
	"time"
)

// DeliverySyncMessage asks the worker to mirror one delivery to the
// spreadsheet. It only carries the ID and version; the worker loads the
// delivery from the database.
type DeliverySyncMessage struct {
	ID        int64     `json:"id"`
	Version   int64     `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

func NewDeliverySyncMessage(id, version int64) *DeliverySyncMessage {
	return &DeliverySyncMessage{
		ID:        id,
		Version:   version,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *DeliverySyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func DeliverySyncMessageFromJSON(data []byte) (*DeliverySyncMessage, error) {
	var msg DeliverySyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
