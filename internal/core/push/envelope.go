package push

import "encoding/json"

// Envelope is the JSON frame exchanged over the websocket transport.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope encodes v as the data of an event frame.
func NewEnvelope(eventType string, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: eventType, Data: data})
}
