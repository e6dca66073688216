package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"helparo/internal/model"
)

// Event types for the request stream
const (
	EventRequestAssigned  = "request_assigned"
	EventRequestCompleted = "request_completed"
	EventRequestCancelled = "request_cancelled"
	EventBroadcastStarted = "broadcast_started"
	EventBroadcastExpired = "broadcast_expired"
)

// Stream names
const (
	StreamRequests = "stream:requests"
)

// Consumer group name for request workers
const (
	ConsumerGroupRequests = "request_workers"
)

// RequestEvent is published after every successful lifecycle mutation.
type RequestEvent struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`

	RequestID  string `json:"request_id"`
	CustomerID string `json:"customer_id"`
	Version    int64  `json:"version"`

	// HelperID is the assigned helper, or for cancellations the helper that
	// was assigned before the cancel.
	HelperID string `json:"helper_id,omitempty"`
}

// NewRequestEvent builds an event from the row returned by a transition.
func NewRequestEvent(eventType string, req *model.ServiceRequest) RequestEvent {
	ev := RequestEvent{
		Type:       eventType,
		Timestamp:  time.Now().Unix(),
		RequestID:  req.ID,
		CustomerID: req.CustomerID,
		Version:    req.Version,
	}
	if req.AssignedHelperID != nil {
		ev.HelperID = *req.AssignedHelperID
	}
	return ev
}

// ToMap converts the event to a map for Redis XADD.
// Streams store field-value pairs, so the event goes in a JSON "data" field.
func (e RequestEvent) ToMap() (map[string]interface{}, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return map[string]interface{}{
		"type": e.Type,
		"data": string(data),
	}, nil
}

// ParseRequestEvent parses a RequestEvent from Redis stream message values.
func ParseRequestEvent(values map[string]interface{}) (RequestEvent, error) {
	data, ok := values["data"].(string)
	if !ok {
		return RequestEvent{}, fmt.Errorf("missing or invalid 'data' field")
	}

	var event RequestEvent
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		return RequestEvent{}, fmt.Errorf("unmarshal event: %w", err)
	}
	return event, nil
}
