package models

const (
	EventTypeTurnCompleted = "conversation.turn.completed"
	EventTypeTurnFailed    = "conversation.turn.failed"
)

// TurnEvent describes the outcome of one conversation turn.
type TurnEvent struct {
	EventType  string `json:"eventType"`
	TurnID     string `json:"turnId"`
	ChildID    string `json:"childId"`
	Status     string `json:"status"`
	Stage      string `json:"stage"`
	Capability string `json:"capability,omitempty"`
	UserText   string `json:"userText,omitempty"`
	AIText     string `json:"aiText,omitempty"`
	MemoryID   string `json:"memoryId,omitempty"`
	LatencyMs  int64  `json:"latencyMs"`
	Timestamp  int64  `json:"timestamp"`
}
