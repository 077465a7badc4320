package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType names a realtime notification pushed to a user's clients
type EventType string

const (
	EventTradeCreated        EventType = "trade.created"
	EventTradeClosed         EventType = "trade.closed"
	EventTradeDeleted        EventType = "trade.deleted"
	EventImportCompleted     EventType = "import.completed"
	EventXPAwarded           EventType = "xp.awarded"
	EventLevelUp             EventType = "level.up"
	EventGoalAchieved        EventType = "goal.achieved"
	EventSubscriptionUpdated EventType = "subscription.updated"
)

// Event is a realtime notification for a single user
type Event struct {
	Type    EventType       `json:"type"`
	UserID  uuid.UUID       `json:"user_id"`
	Payload json.RawMessage `json:"payload,omitempty"`
	At      time.Time       `json:"at"`
}

// NewEvent builds an event, marshaling payload to JSON.
func NewEvent(t EventType, userID uuid.UUID, payload any, at time.Time) (Event, error) {
	ev := Event{Type: t, UserID: userID, At: at.UTC()}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Event{}, err
		}
		ev.Payload = raw
	}
	return ev, nil
}

// FailureReporter receives errors from follow-up work (events, XP, goal
// checks) that must not fail the operation that triggered it.
type FailureReporter interface {
	SideEffectFailed(ctx context.Context, op string, err error)
}
