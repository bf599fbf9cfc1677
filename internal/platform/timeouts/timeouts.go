// Package timeouts defines shared timeout constants used across the quest
// service. Centralizing these values prevents drift between layers and
// makes the durations discoverable.
package timeouts

import "time"

// SessionReady bounds how long quest operations wait for a participant's
// session to finish loading before proceeding best-effort.
const SessionReady = 5 * time.Second

// WebsocketWrite caps a single replication write before the connection is
// considered dead.
const WebsocketWrite = 10 * time.Second

// ReadHeader limits how long the HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long the HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 10 * time.Second
