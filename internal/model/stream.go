package model

import (
	"time"
)

// StreamMessageType tags messages pushed to live dashboard sessions.
type StreamMessageType string

const (
	StreamConnected     StreamMessageType = "connected"
	StreamMetricsUpdate StreamMessageType = "metrics_update"
	StreamNewAlerts     StreamMessageType = "new_alerts"
	StreamSecurityEvent StreamMessageType = "security_event"
)

// StreamMessage is the tagged union delivered over the realtime stream.
// Exactly one payload field is populated for a given type.
type StreamMessage struct {
	Type      StreamMessageType `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Message   string            `json:"message,omitempty"`
	Metrics   []MetricSample    `json:"metrics,omitempty"`
	Alerts    []*Alert          `json:"alerts,omitempty"`
	Event     *SecurityEvent    `json:"event,omitempty"`
}

// ConnectedMessage is the synthetic acknowledgment sent on subscribe so the
// client can distinguish "stream established" from "no data yet".
func ConnectedMessage() StreamMessage {
	return StreamMessage{
		Type:      StreamConnected,
		Timestamp: time.Now().UTC(),
		Message:   "monitoring stream connected",
	}
}
