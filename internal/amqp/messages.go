package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message types carried on the income queue
const (
	TypeSync   = "sync"
	TypeDelete = "delete"
)

// IncomeMessage is a lightweight notification about one income. It only
// carries the ID; consumers read the current row from storage.
type IncomeMessage struct {
	Type      string    `json:"type"`
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewIncomeSyncMessage(id int64) *IncomeMessage {
	return &IncomeMessage{Type: TypeSync, ID: id, Timestamp: time.Now()}
}

func NewIncomeDeleteMessage(id int64) *IncomeMessage {
	return &IncomeMessage{Type: TypeDelete, ID: id, Timestamp: time.Now()}
}

func (m *IncomeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// IncomeMessageFromJSON decodes and checks a message body
func IncomeMessageFromJSON(data []byte) (*IncomeMessage, error) {
	var msg IncomeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Type != TypeSync && msg.Type != TypeDelete {
		return nil, fmt.Errorf("unknown message type %q", msg.Type)
	}
	if msg.ID <= 0 {
		return nil, fmt.Errorf("invalid income id %d", msg.ID)
	}
	return &msg, nil
}
