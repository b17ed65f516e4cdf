package models

import "time"

// StorageEntry is one durable key of a device namespace
// (userData-client, userData-manager, current-role).
type StorageEntry struct {
	Namespace string `gorm:"primaryKey;size:64"`
	Key       string `gorm:"primaryKey;size:64"`
	Value     []byte `gorm:"not null"`
	UpdatedAt time.Time
}
