package services

import (
	"encoding/json"
	"log"
	"time"

	model "github.com/kshitij41/ClientPulse/models"

	"gorm.io/datatypes"
)

// appendRuleLog writes one execution log entry. The log is pure audit trail:
// append-only, never read back for duplicate detection. Failures are logged
// and swallowed so a log insert error never undoes an otherwise good run.
func (s *WorkflowService) appendRuleLog(rule *model.WorkflowRule, summary *ExecutionSummary, triggeredBy, triggerSource string) {
	if rule == nil {
		return
	}

	details, err := json.Marshal(summary.Details)
	if err != nil {
		log.Printf("[appendRuleLog] Error marshaling details: %v", err)
		details = []byte("[]")
	}

	entry := model.RuleExecutionLog{
		OrganizationID:          rule.OrganizationID,
		RuleID:                  rule.ID,
		RunAt:                   time.Now(),
		TriggeredBy:             triggeredBy,
		TriggerSource:           triggerSource,
		RecordsEvaluated:        summary.RecordsEvaluated,
		RecordsMatched:          summary.RecordsMatched,
		TasksCreated:            summary.TasksCreated,
		RecordsSkippedDuplicate: summary.RecordsSkippedDuplicate,
		Status:                  summary.Status,
		ErrorMessage:            summary.ErrorMessage,
		Details:                 datatypes.JSON(details),
	}

	if err := s.db.Create(&entry).Error; err != nil {
		log.Printf("[appendRuleLog] Error logging rule execution: %v", err)
	}
}

// RuleLogPage is one page of execution logs, most recent first.
type RuleLogPage struct {
	Logs  []model.RuleExecutionLog `json:"logs"`
	Page  int                      `json:"page"`
	Limit int                      `json:"limit"`
	Total int64                    `json:"total"`
}

// GetRuleLogs returns paginated logs for a rule, most recent first. The
// Unscoped lookup keeps the audit trail reachable after the rule itself has
// been soft-deleted.
func (s *WorkflowService) GetRuleLogs(ruleID, orgID string, page, limit int) (*RuleLogPage, error) {
	var rule model.WorkflowRule
	if err := s.db.Unscoped().Where("id = ? AND organization_id = ?", ruleID, orgID).First(&rule).Error; err != nil {
		return nil, ErrRuleNotFound
	}

	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	var total int64
	if err := s.db.Model(&model.RuleExecutionLog{}).
		Where("rule_id = ? AND organization_id = ?", ruleID, orgID).
		Count(&total).Error; err != nil {
		log.Printf("[GetRuleLogs] Error counting logs for rule %s: %v", ruleID, err)
		return nil, err
	}

	var logs []model.RuleExecutionLog
	if err := s.db.Where("rule_id = ? AND organization_id = ?", ruleID, orgID).
		Order("run_at DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&logs).Error; err != nil {
		log.Printf("[GetRuleLogs] Error fetching logs for rule %s: %v", ruleID, err)
		return nil, err
	}

	return &RuleLogPage{Logs: logs, Page: page, Limit: limit, Total: total}, nil
}
