package observability

import "context"

// EventEnvelope is the shape of operational events published to the broker.
type EventEnvelope struct {
	EventType string      `json:"event_type"`
	EventName string      `json:"event_name"`
	Payload   interface{} `json:"payload"`
}

// Publisher is the minimal broker surface operational events need.
type Publisher interface {
	PublishJSON(ctx context.Context, routingKey string, message interface{}, headers map[string]string) error
}

var defaultPublisher Publisher

// SetPublisher installs the broker used by PublishEvent. Nil disables
// operational event publishing.
func SetPublisher(publisher Publisher) {
	defaultPublisher = publisher
}

// PublishEvent publishes an operational event, counting failures. A missing
// publisher is not an error: events are best-effort.
func PublishEvent(ctx context.Context, routingKey string, message interface{}, headers map[string]string) error {
	if defaultPublisher == nil {
		return nil
	}

	err := defaultPublisher.PublishJSON(ctx, routingKey, message, headers)
	if err != nil {
		IncAMQPPublishError()
	}
	return err
}

// BuildHeaders assembles trace propagation headers for broker messages.
func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}
