package domain

import "time"

// PendingMessage is a user message waiting in a conversation's pending
// buffer until the trigger policy fires
type PendingMessage struct {
	Role      Role
	Content   string
	AuthorID  string
	MessageID string
	CreatedAt time.Time
}

// CycleState is the state a reply cycle ended in for one inbound message
type CycleState int

const (
	StateIdle CycleState = iota
	StateBuffering
	StateThresholdMet
	StateAwaitingReasoning
	StateReplied
	StateFailed
)

func (s CycleState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateBuffering:
		return "BUFFERING"
	case StateThresholdMet:
		return "THRESHOLD_MET"
	case StateAwaitingReasoning:
		return "AWAITING_REASONING"
	case StateReplied:
		return "REPLIED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}
