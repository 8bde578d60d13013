package websocket

import "retailcli/internal/operations"

// RunBroadcaster forwards refresh run updates to every client.
type RunBroadcaster struct {
	hub *Hub
}

// NewRunBroadcaster returns an operations.Observer backed by hub.
func NewRunBroadcaster(hub *Hub) *RunBroadcaster {
	return &RunBroadcaster{hub: hub}
}

// RunUpdated implements operations.Observer.
func (b *RunBroadcaster) RunUpdated(s operations.Snapshot) {
	msgType := TypeRunProgress
	switch s.Status {
	case operations.RunStatusCompleted:
		msgType = TypeRunComplete
	case operations.RunStatusFailed:
		msgType = TypeRunFailed
	}
	b.hub.Broadcast(Message{Type: msgType, Data: s})
}
