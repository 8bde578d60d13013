// Package websocket streams refresh progress to browsers.
//
// A Hub owns the connected clients. Each client has a buffered send queue
// drained by its own write pump; a client whose queue is full is dropped
// rather than slowing the others. RunBroadcaster adapts the hub to
// operations.Observer so every step transition of a refresh reaches the
// dashboard as it happens.
package websocket
