package models

import "time"

// NotificationKind distinguishes why a notification was produced.
type NotificationKind string

const (
	NotificationAssigned  NotificationKind = "assigned"
	NotificationEscalated NotificationKind = "escalated"
	NotificationResolved  NotificationKind = "resolved"
)

// Notification is a persisted message to a user about an issue. Delivery is
// best-effort: the record is the source of truth, the sender a side channel.
type Notification struct {
	ID          string           `db:"id" json:"id"`
	IssueID     string           `db:"issue_id" json:"issue_id"`
	RecipientID string           `db:"recipient_id" json:"recipient_id"`
	ActorID     *string          `db:"actor_id" json:"actor_id,omitempty"`
	Kind        NotificationKind `db:"kind" json:"kind"`
	Message     string           `db:"message" json:"message"`
	Delivered   bool             `db:"delivered" json:"delivered"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
}
