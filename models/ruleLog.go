package models

import (
	"time"

	"gorm.io/datatypes"
)

// Execution log statuses.
const (
	RunStatusSuccess        = "success"
	RunStatusError          = "error"
	RunStatusSkipped        = "skipped"
	RunStatusPartialFailure = "partial_failure"
)

// Trigger sources recorded on each run.
const (
	RunSourceManual    = "manual"
	RunSourceScheduled = "scheduled"
)

// RuleExecutionLog is the append-only audit record of one engine run against
// one rule. Logs survive rule deletion (rules are soft-deleted) and are never
// consulted for duplicate detection.
type RuleExecutionLog struct {
	ID             string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	OrganizationID string `gorm:"type:uuid;not null;index" json:"organizationId"`
	RuleID         string `gorm:"type:uuid;not null;index" json:"ruleId"`

	RunAt         time.Time `json:"runAt"`
	TriggeredBy   string    `json:"triggeredBy"`
	TriggerSource string    `json:"triggerSource"`

	RecordsEvaluated        int `json:"recordsEvaluated"`
	RecordsMatched          int `json:"recordsMatched"`
	TasksCreated            int `json:"tasksCreated"`
	RecordsSkippedDuplicate int `json:"recordsSkippedDuplicate"`

	Status       string `json:"status"`
	ErrorMessage string `json:"errorMessage"`

	// Details holds the per-account outcome list as JSONB.
	Details datatypes.JSON `json:"details"`
}

func (RuleExecutionLog) TableName() string {
	return "workflow_rule_logs"
}
