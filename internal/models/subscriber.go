package models

import "time"

// Subscription status values. A subscriber starts out pending and can move
// between confirmed and unsubscribed; unsubscribed is revivable.
const (
	StatusPending      = "pending"
	StatusConfirmed    = "confirmed"
	StatusUnsubscribed = "unsubscribed"
)

// ValidStatus reports whether s is one of the known subscription statuses.
func ValidStatus(s string) bool {
	return s == StatusPending || s == StatusConfirmed || s == StatusUnsubscribed
}

// SubscriberModel tracks one email's subscription status and history.
// Email is stored normalized (trimmed, lower-cased) and is the unique key.
type SubscriberModel struct {
	Base
	Email          string                 `json:"email"          gorm:"uniqueIndex;not null"`
	Status         string                 `json:"status"         gorm:"not null;default:pending"`
	ConfirmedAt    *time.Time             `json:"confirmed_at"`
	UnsubscribedAt *time.Time             `json:"unsubscribed_at"`
	Source         string                 `json:"source"`
	Metadata       map[string]interface{} `json:"metadata,omitempty" gorm:"type:longtext;serializer:json"`
}

func (SubscriberModel) TableName() string { return "subscribers" }
