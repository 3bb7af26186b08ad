package streaming

import (
	"encoding/json"

	"github.com/huiputin/routemap/pkg/core"
)

// Message type constants matching the streaming protocol.
const (
	TypeHello        = "hello"
	TypeNotification = "notification"
	TypeClusters     = "clusters"
	TypeAck          = "ack"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// HelloPayload identifies the publishing service. It is replayed after a reconnect.
type HelloPayload struct {
	Service string `json:"service"`
	Gym     string `json:"gym"`
}

// NotificationPayload is a message for the UI toast.
type NotificationPayload struct {
	Message    string `json:"message"`
	DurationMs int64  `json:"durationMs"`
}

// ClustersPayload carries the recomputed sector clusters.
type ClustersPayload struct {
	Clusters    []core.Cluster `json:"clusters"`
	NewRouteIDs []string       `json:"newRouteIds"`
}
