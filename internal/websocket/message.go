package websocket

import "time"

// Message types sent to clients.
const (
	TypeConnection  = "connection"
	TypeRunProgress = "refresh:progress"
	TypeRunComplete = "refresh:complete"
	TypeRunFailed   = "refresh:failed"
)

// Message is one JSON frame sent to clients.
type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	TraceID   string      `json:"trace_id,omitempty"`
}
