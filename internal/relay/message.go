package relay

// Wire constants expected by the Pioneer relay.
const (
	MessageSource    = "courier"
	TypeContextEvent = "context_event"
)

// Envelope is one discrete relay message.
type Envelope struct {
	Source string       `json:"source"`
	Type   string       `json:"type"`
	Data   ContextEvent `json:"data"`
}

// ContextEvent reports that a request was tagged for a container.
type ContextEvent struct {
	CorrelationID int64  `json:"correlation_id"`
	Role          string `json:"role"`
	Container     string `json:"container"`
}

// NewContextEvent builds the envelope for a tagged request.
func NewContextEvent(correlationID int64, role, container string) Envelope {
	return Envelope{
		Source: MessageSource,
		Type:   TypeContextEvent,
		Data: ContextEvent{
			CorrelationID: correlationID,
			Role:          role,
			Container:     container,
		},
	}
}
