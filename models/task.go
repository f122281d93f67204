package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Task statuses. A task counts as active for duplicate prevention while it
// is pending or in_progress and not soft-deleted.
const (
	TaskStatusPending    = "pending"
	TaskStatusInProgress = "in_progress"
	TaskStatusCompleted  = "completed"
	TaskStatusCancelled  = "cancelled"
)

// Task sources.
const (
	TaskSourceManual       = "manual"
	TaskSourceWorkflowRule = "workflow_rule"
)

// Task is a follow-up item, either created by hand or generated by a
// workflow rule. Rule-generated tasks carry the originating RuleID; a
// partial unique index on (rule_id, account_id) over active rows is the
// primary defense against duplicate generation.
type Task struct {
	ID             string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	OrganizationID string `gorm:"type:uuid;not null;index" json:"organizationId"`
	AccountID      string `gorm:"type:uuid" json:"accountId"`
	ContactID      string `gorm:"type:uuid" json:"contactId"`

	// RuleID is set only for rule-generated tasks.
	RuleID *string `gorm:"type:uuid" json:"ruleId"`

	Subject     string    `gorm:"not null" json:"subject"`
	Description string    `json:"description"`
	Priority    string    `gorm:"default:medium" json:"priority"`
	Status      string    `gorm:"default:pending" json:"status"`
	DueDate     time.Time `json:"dueDate"`
	AssignedTo  string    `json:"assignedTo"`
	Source      string    `gorm:"default:manual" json:"source"`

	// Metadata carries trigger context (trigger_type, days_remaining) for audit.
	Metadata datatypes.JSON `json:"metadata"`

	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
