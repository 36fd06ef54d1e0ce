package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Event is a fire-and-forget analytics record.
type Event struct {
	ID        string       `db:"id" json:"id"`
	Name      string       `db:"name" json:"name"`
	UserID    string       `db:"user_id" json:"user_id"`
	Payload   EventPayload `db:"payload" json:"payload"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
}

// EventPayload stores arbitrary event properties persisted as JSONB.
type EventPayload map[string]interface{}

// Value marshals the payload to JSON for persistence.
func (p EventPayload) Value() (driver.Value, error) {
	if p == nil {
		p = EventPayload{}
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal event payload: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the map.
func (p *EventPayload) Scan(value interface{}) error {
	if value == nil {
		*p = EventPayload{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for EventPayload", value)
	}
	if len(data) == 0 {
		*p = EventPayload{}
		return nil
	}
	if err := json.Unmarshal(data, p); err != nil {
		return fmt.Errorf("unmarshal event payload: %w", err)
	}
	return nil
}
