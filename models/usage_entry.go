package models

import "time"

// UsageEntry is one row of a user's usage record: how many times the
// question behind TrackingKey has been reserved. The full record for a
// user is the set of their rows, read back as map[trackingKey]count.
// No soft delete: replace-mode rebuilds must actually remove rows.
type UsageEntry struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	UserID      uint      `json:"user_id" gorm:"not null;uniqueIndex:idx_usage_user_key"`
	TrackingKey string    `json:"tracking_key" gorm:"not null;uniqueIndex:idx_usage_user_key"`
	Count       int       `json:"count" gorm:"not null;default:0"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
