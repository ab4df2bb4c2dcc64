package p2p

import "encoding/json"

// Envelope wraps every wire message with its channel and sender identity.
type Envelope struct {
	Channel  string          `json:"channel"`
	From     string          `json:"from"`
	FromName string          `json:"from_name"`
	Payload  json.RawMessage `json:"payload"`
}
