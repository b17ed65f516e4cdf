package models

import "time"

type AuditLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	Actor   string   `gorm:"size:255;index" json:"actor"` // username from the session
	Role    UserRole `gorm:"type:varchar(20)" json:"role"`
	Device  string   `gorm:"size:64" json:"device"`
	Action  string   `gorm:"size:50;not null" json:"action"` // "login", "refresh", "forced_logout" ...
	Details string   `gorm:"type:text" json:"details"`
}
