package domain

import "time"

// KeyValue is per-app persistent storage (spec §3). The compound
// (AppID, Key, UserID, Namespace) is unique; UserID/Namespace are optional
// scoping dimensions, empty string meaning "unscoped".
type KeyValue struct {
	AppID     string
	Key       string
	Value     Value
	UserID    string
	Namespace string
	ExpiresAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Expired reports whether the record's TTL has elapsed as of now.
func (kv KeyValue) Expired(now time.Time) bool {
	return kv.ExpiresAt != nil && kv.ExpiresAt.Before(now)
}
