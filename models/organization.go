package models

import "time"

// Organization is the tenant boundary. Every CRM record hangs off one of these.
type Organization struct {
	ID        string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Name      string `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
