package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Trigger types understood by the engine.
const (
	TriggerRenewalWithinDays = "renewal_within_days"
)

// WorkflowRule is a configured trigger + action pair. The engine evaluates
// the trigger against accounts and creates one task per match.
type WorkflowRule struct {
	// ID is a unique identifier for the rule, stored as a UUID in the database.
	ID string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`

	// OrganizationID scopes the rule to its tenant.
	OrganizationID string `gorm:"type:uuid;not null;index" json:"organizationId"`

	// Name is the rule's display name, required.
	Name string `gorm:"not null" json:"name"`

	// Description provides details about what the rule is for.
	Description string `json:"description"`

	// TriggerType selects the condition class, e.g. 'renewal_within_days'.
	TriggerType string `gorm:"not null" json:"triggerType"`

	// TriggerConditions holds the trigger's parameters as JSONB,
	// e.g. {"days": 30} for renewal_within_days.
	TriggerConditions datatypes.JSON `json:"triggerConditions"`

	// ActionConfig holds the task-creation policy as JSONB: subject_template,
	// description_template, priority, days_before_due, assignee_strategy,
	// assignee_user_id.
	ActionConfig datatypes.JSON `json:"actionConfig"`

	// IsEnabled gates execution; disabled rules log a skipped run.
	IsEnabled bool `gorm:"default:true" json:"isEnabled"`

	// PreventDuplicates toggles the duplicate guard. On by default.
	PreventDuplicates bool `gorm:"default:true" json:"preventDuplicates"`

	// SortOrder controls execution order in execute-all runs.
	SortOrder int `gorm:"default:0" json:"sortOrder"`

	CreatedBy string         `json:"createdBy"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// RuleActionConfig is the decoded shape of WorkflowRule.ActionConfig.
type RuleActionConfig struct {
	SubjectTemplate     string `json:"subject_template"`
	DescriptionTemplate string `json:"description_template"`
	Priority            string `json:"priority"`
	DaysBeforeDue       int    `json:"days_before_due"`
	AssigneeStrategy    string `json:"assignee_strategy"`
	AssigneeUserID      string `json:"assignee_user_id"`
}
