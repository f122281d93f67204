package models

import "time"

// Account is a customer account with a renewal date. The workflow engine
// treats accounts as read-only input: triggers select over them, nothing
// here is ever mutated by a rule run.
type Account struct {
	// ID is a unique identifier for the account, stored as a UUID in the database.
	// In Elasticsearch, it's indexed as a keyword for exact matching.
	ID string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" elastic:"type:keyword"`

	// OrganizationID scopes the account to its tenant.
	OrganizationID string `gorm:"type:uuid;not null;index" elastic:"type:keyword"`

	// AccountName is indexed as text for full-text search.
	AccountName string `gorm:"not null" elastic:"type:text,analyzer:standard"`

	// ContactID references the primary contact used for template variables.
	// Nullable: an account without a contact renders empty contact fields.
	ContactID *string `gorm:"type:uuid" elastic:"type:keyword"`

	// NextRenewalDate drives the renewal_within_days trigger. Nullable:
	// accounts without a renewal date are never matched.
	NextRenewalDate *time.Time `elastic:"type:date"`

	// OwnerUserID is the owning user, resolved by the account_owner
	// assignee strategy. User identity lives outside this service, so the
	// id is stored opaquely.
	OwnerUserID string

	// Status is 'active' or 'inactive'; triggers only consider active accounts.
	Status string `gorm:"default:active" elastic:"type:keyword"`

	CreatedAt time.Time `elastic:"type:date"`
	UpdatedAt time.Time `elastic:"type:date"`
}
