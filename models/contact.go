package models

import "time"

// Contact is the person attached to an account. Template rendering pulls
// its name/phone/email fields.
type Contact struct {
	ID             string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OrganizationID string `gorm:"type:uuid;not null;index"`
	FirstName      string
	LastName       string
	Email          string
	Phone          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
