package models

import "time"

// QueueItem is one pending mutating request awaiting replay.
//
// Fingerprint is a deterministic hash of (method, url, body); at most one
// non-expired item exists per (fingerprint, tag) pair — a duplicate enqueue
// merges into the existing record instead of inserting a second one.
type QueueItem struct {
	ID          uint   `json:"id" gorm:"primaryKey;autoIncrement"`
	URL         string `json:"url" gorm:"not null"`
	Method      string `json:"method" gorm:"not null"`
	Headers     string `json:"-" gorm:"column:headers"`
	Body        []byte `json:"-"`
	Credentials string `json:"credentials" gorm:"default:'same-origin'"`

	Attempts      int        `json:"attempts" gorm:"default:0"`
	NextAttemptAt *time.Time `json:"nextAttemptAt"`
	ExpiresAt     time.Time  `json:"expiresAt"`

	Tag         string `json:"tag" gorm:"index;default:'default'"`
	Fingerprint string `json:"fingerprint" gorm:"index;not null"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName specifies the table name for QueueItem
func (QueueItem) TableName() string {
	return "queue_items"
}

// Expired reports whether the item's lifetime has passed at the given time.
func (q *QueueItem) Expired(now time.Time) bool {
	return !q.ExpiresAt.IsZero() && now.After(q.ExpiresAt)
}

// DueAt returns the scheduling timestamp used for replay ordering:
// NextAttemptAt when set, else CreatedAt.
func (q *QueueItem) DueAt() time.Time {
	if q.NextAttemptAt != nil {
		return *q.NextAttemptAt
	}
	return q.CreatedAt
}
