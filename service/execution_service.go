package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	model "github.com/kshitij41/ClientPulse/models"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Assignee strategies understood by action_config.
const (
	AssigneeAccountOwner   = "account_owner"
	AssigneeSpecificUser   = "specific_user"
	AssigneeTriggeringUser = "triggering_user"
)

// TaskCreationDetail records one created task inside an execution summary.
type TaskCreationDetail struct {
	AccountID     string    `json:"account_id"`
	AccountName   string    `json:"account_name"`
	ContactID     string    `json:"contact_id"`
	ContactName   string    `json:"contact_name"`
	TaskID        string    `json:"task_id"`
	TaskSubject   string    `json:"task_subject"`
	Priority      string    `json:"priority"`
	DueDate       time.Time `json:"due_date"`
	AssignedTo    string    `json:"assigned_to"`
	DaysRemaining int       `json:"days_remaining"`
}

// ExecutionSummary is the result of one engine run against one rule. One
// RuleExecutionLog row is written per summary once evaluation has started.
type ExecutionSummary struct {
	RunID                   string               `json:"runId"`
	RuleID                  string               `json:"ruleId"`
	RuleName                string               `json:"ruleName"`
	OrganizationID          string               `json:"organizationId"`
	RecordsEvaluated        int                  `json:"recordsEvaluated"`
	RecordsMatched          int                  `json:"recordsMatched"`
	TasksCreated            int                  `json:"tasksCreated"`
	RecordsSkippedDuplicate int                  `json:"recordsSkippedDuplicate"`
	Status                  string               `json:"status"`
	ErrorMessage            string               `json:"errorMessage"`
	Details                 []TaskCreationDetail `json:"details"`
	ExecutionTimeMs         int64                `json:"executionTimeMs"`
}

// ExecuteRule runs the engine once for a rule on behalf of an API caller.
// The service-level limiter budgets externally requested runs only; the
// scheduler's sweep and execute-all batches go through executeRule directly,
// so a large deployment never loses scheduled runs to its own limiter.
func (s *WorkflowService) ExecuteRule(ruleID, orgID, triggeredBy, triggerSource string) (*ExecutionSummary, error) {
	if !executionRateLimiter.Allow("rule_execution") {
		return nil, fmt.Errorf("rate limit exceeded for rule execution")
	}
	return s.executeRule(ruleID, orgID, triggeredBy, triggerSource)
}

// executeRule is the engine core: evaluate the trigger, filter out accounts
// that already have an active generated task, render templates, persist the
// new tasks and append one execution log entry.
//
// Config errors (unknown trigger type, invalid conditions) and an unknown
// rule id return an error directly with no log entry; once evaluation has
// started every outcome, including failure, is logged.
func (s *WorkflowService) executeRule(ruleID, orgID, triggeredBy, triggerSource string) (*ExecutionSummary, error) {
	startTime := time.Now()
	summary := &ExecutionSummary{
		RunID:          uuid.New().String(),
		RuleID:         ruleID,
		OrganizationID: orgID,
		Status:         model.RunStatusSuccess,
		Details:        []TaskCreationDetail{},
	}

	// Load the rule. Soft-deleted rules are invisible here.
	var rule model.WorkflowRule
	if err := s.db.Where("id = ? AND organization_id = ?", ruleID, orgID).First(&rule).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRuleNotFound
		}
		log.Printf("[ExecuteRule] Error loading rule %s: %v", ruleID, err)
		return nil, err
	}
	summary.RuleName = rule.Name

	if !rule.IsEnabled {
		summary.Status = model.RunStatusSkipped
		summary.ErrorMessage = fmt.Sprintf("Rule is disabled: %s", rule.Name)
		summary.ExecutionTimeMs = time.Since(startTime).Milliseconds()
		s.appendRuleLog(&rule, summary, triggeredBy, triggerSource)
		return summary, nil
	}

	// Evaluate the trigger.
	trigger, err := s.EvaluateTrigger(&rule, time.Now())
	if err != nil {
		if errors.Is(err, ErrInvalidTriggerConfig) || errors.Is(err, ErrUnknownTriggerType) {
			// Evaluation never started meaningfully; no log entry.
			return nil, err
		}
		summary.Status = model.RunStatusError
		summary.ErrorMessage = err.Error()
		summary.ExecutionTimeMs = time.Since(startTime).Milliseconds()
		s.appendRuleLog(&rule, summary, triggeredBy, triggerSource)
		return summary, nil
	}

	summary.RecordsEvaluated = trigger.RecordsEvaluated
	summary.RecordsMatched = len(trigger.Matches)

	// Zero matches is still a successful, logged run.
	if len(trigger.Matches) == 0 {
		summary.ExecutionTimeMs = time.Since(startTime).Milliseconds()
		s.appendRuleLog(&rule, summary, triggeredBy, triggerSource)
		return summary, nil
	}

	// Partition out accounts that already have an active generated task.
	toCreate := trigger.Matches
	if rule.PreventDuplicates {
		var skipped []AccountMatch
		toCreate, skipped, err = s.FilterNewAccounts(rule.ID, trigger.Matches)
		if err != nil {
			summary.Status = model.RunStatusError
			summary.ErrorMessage = err.Error()
			summary.ExecutionTimeMs = time.Since(startTime).Milliseconds()
			s.appendRuleLog(&rule, summary, triggeredBy, triggerSource)
			return summary, nil
		}
		summary.RecordsSkippedDuplicate = len(skipped)
	}

	actionConfig := decodeActionConfig(&rule)

	for _, match := range toCreate {
		task, daysRemaining := buildRuleTask(&rule, actionConfig, match, triggeredBy, time.Now())

		if err := s.db.Create(&task).Error; err != nil {
			if isUniqueViolation(err) {
				// A concurrent run won the insert race; treat as duplicate.
				summary.RecordsSkippedDuplicate++
				continue
			}
			log.Printf("[ExecuteRule] Error creating task for account %s: %v", match.AccountID, err)
			summary.Status = model.RunStatusPartialFailure
			continue
		}

		summary.TasksCreated++
		summary.Details = append(summary.Details, TaskCreationDetail{
			AccountID:     match.AccountID,
			AccountName:   match.AccountName,
			ContactID:     match.ContactID,
			ContactName:   strings.TrimSpace(match.FirstName + " " + match.LastName),
			TaskID:        task.ID,
			TaskSubject:   task.Subject,
			Priority:      task.Priority,
			DueDate:       task.DueDate,
			AssignedTo:    task.AssignedTo,
			DaysRemaining: daysRemaining,
		})
	}

	summary.ExecutionTimeMs = time.Since(startTime).Milliseconds()
	s.appendRuleLog(&rule, summary, triggeredBy, triggerSource)

	log.Printf("[ExecuteRule] Rule %s: evaluated=%d matched=%d created=%d skipped=%d status=%s",
		rule.Name, summary.RecordsEvaluated, summary.RecordsMatched,
		summary.TasksCreated, summary.RecordsSkippedDuplicate, summary.Status)
	return summary, nil
}

// decodeActionConfig parses the rule's action_config. A malformed config
// degrades to defaults instead of blocking the run.
func decodeActionConfig(rule *model.WorkflowRule) model.RuleActionConfig {
	var cfg model.RuleActionConfig
	if len(rule.ActionConfig) == 0 {
		return cfg
	}
	if err := json.Unmarshal([]byte(rule.ActionConfig), &cfg); err != nil {
		log.Printf("[decodeActionConfig] Malformed action_config on rule %s: %v", rule.ID, err)
	}
	return cfg
}

// buildRuleTask renders templates and assembles the task row for one match.
// Pure apart from reading the clock passed in.
func buildRuleTask(rule *model.WorkflowRule, cfg model.RuleActionConfig, match AccountMatch, triggeredBy string, now time.Time) (model.Task, int) {
	daysRemaining := DaysUntil(match.NextRenewalDate, now)
	contactName := strings.TrimSpace(match.FirstName + " " + match.LastName)

	templateData := map[string]string{
		"contact_name":       contactName,
		"contact_first_name": match.FirstName,
		"contact_last_name":  match.LastName,
		"contact_phone":      match.Phone,
		"contact_email":      match.Email,
		"account_name":       match.AccountName,
		"renewal_date":       FormatTemplateDate(match.NextRenewalDate),
		"days_remaining":     strconv.Itoa(daysRemaining),
	}

	subject := ReplaceTemplateVars(cfg.SubjectTemplate, templateData)
	description := ReplaceTemplateVars(cfg.DescriptionTemplate, templateData)
	priority := DeterminePriority(cfg.Priority, daysRemaining)

	assignedTo := resolveAssignee(cfg, match, triggeredBy)
	dueDate := resolveDueDate(match.NextRenewalDate, cfg.DaysBeforeDue, now)

	metadata, _ := json.Marshal(map[string]interface{}{
		"rule_id":        rule.ID,
		"trigger_type":   rule.TriggerType,
		"days_remaining": daysRemaining,
	})

	ruleID := rule.ID
	return model.Task{
		OrganizationID: rule.OrganizationID,
		AccountID:      match.AccountID,
		ContactID:      match.ContactID,
		RuleID:         &ruleID,
		Subject:        subject,
		Description:    description,
		Priority:       priority,
		Status:         model.TaskStatusPending,
		DueDate:        dueDate,
		AssignedTo:     assignedTo,
		Source:         model.TaskSourceWorkflowRule,
		Metadata:       datatypes.JSON(metadata),
	}, daysRemaining
}

// resolveAssignee picks the task owner per the rule's strategy, falling back
// to whoever triggered the run.
func resolveAssignee(cfg model.RuleActionConfig, match AccountMatch, triggeredBy string) string {
	switch cfg.AssigneeStrategy {
	case AssigneeAccountOwner:
		if match.OwnerUserID != "" {
			return match.OwnerUserID
		}
	case AssigneeSpecificUser:
		if cfg.AssigneeUserID != "" {
			return cfg.AssigneeUserID
		}
	case AssigneeTriggeringUser:
		return triggeredBy
	}
	return triggeredBy
}

// resolveDueDate schedules the task days_before_due days ahead of the
// renewal, floored at today so overdue renewals surface immediately.
func resolveDueDate(renewalDate *time.Time, daysBeforeDue int, now time.Time) time.Time {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if renewalDate == nil {
		return today.AddDate(0, 0, daysBeforeDue)
	}
	due := renewalDate.AddDate(0, 0, -daysBeforeDue)
	if due.Before(today) {
		return today
	}
	return due
}

// RuleRunResult is one entry in a combined execute-all summary.
type RuleRunResult struct {
	RuleID         string `json:"ruleId"`
	RuleName       string `json:"ruleName"`
	Status         string `json:"status"`
	TasksCreated   int    `json:"tasksCreated"`
	RecordsMatched int    `json:"recordsMatched"`
	Error          string `json:"error,omitempty"`
}

// CombinedSummary aggregates an execute-all run across every enabled rule.
type CombinedSummary struct {
	OrganizationID        string          `json:"organizationId"`
	TriggerSource         string          `json:"triggerSource"`
	RulesExecuted         int             `json:"rulesExecuted"`
	TotalRecordsEvaluated int             `json:"totalRecordsEvaluated"`
	TotalRecordsMatched   int             `json:"totalRecordsMatched"`
	TotalTasksCreated     int             `json:"totalTasksCreated"`
	TotalRecordsSkipped   int             `json:"totalRecordsSkipped"`
	ExecutionsByRule      []RuleRunResult `json:"executionsByRule"`
	OverallStatus         string          `json:"overallStatus"`
	ExecutionTimeMs       int64           `json:"executionTimeMs"`
}

// ExecuteAllRules runs every enabled rule for the organization in sort_order
// on behalf of an API caller. The limiter charges the batch once, not per
// rule.
func (s *WorkflowService) ExecuteAllRules(orgID, triggeredBy, triggerSource string) (*CombinedSummary, error) {
	if !executionRateLimiter.Allow("rule_execution") {
		return nil, fmt.Errorf("rate limit exceeded for rule execution")
	}
	return s.executeAllRules(orgID, triggeredBy, triggerSource)
}

// executeAllRules is the batch core. One rule failing does not stop the rest.
func (s *WorkflowService) executeAllRules(orgID, triggeredBy, triggerSource string) (*CombinedSummary, error) {
	startTime := time.Now()

	combined := &CombinedSummary{
		OrganizationID:   orgID,
		TriggerSource:    triggerSource,
		ExecutionsByRule: []RuleRunResult{},
		OverallStatus:    model.RunStatusSuccess,
	}

	var rules []model.WorkflowRule
	err := s.db.Where("organization_id = ? AND is_enabled = ?", orgID, true).
		Order("sort_order ASC").
		Find(&rules).Error
	if err != nil {
		log.Printf("[ExecuteAllRules] Error loading rules for org %s: %v", orgID, err)
		return nil, err
	}

	if len(rules) == 0 {
		combined.OverallStatus = "no_rules"
		combined.ExecutionTimeMs = time.Since(startTime).Milliseconds()
		return combined, nil
	}

	for _, rule := range rules {
		result, err := s.executeRule(rule.ID, orgID, triggeredBy, triggerSource)
		if err != nil {
			log.Printf("[ExecuteAllRules] Error executing rule %s: %v", rule.ID, err)
			combined.OverallStatus = model.RunStatusPartialFailure
			combined.ExecutionsByRule = append(combined.ExecutionsByRule, RuleRunResult{
				RuleID:   rule.ID,
				RuleName: rule.Name,
				Status:   model.RunStatusError,
				Error:    err.Error(),
			})
			continue
		}

		combined.RulesExecuted++
		combined.TotalRecordsEvaluated += result.RecordsEvaluated
		combined.TotalRecordsMatched += result.RecordsMatched
		combined.TotalTasksCreated += result.TasksCreated
		combined.TotalRecordsSkipped += result.RecordsSkippedDuplicate
		combined.ExecutionsByRule = append(combined.ExecutionsByRule, RuleRunResult{
			RuleID:         rule.ID,
			RuleName:       rule.Name,
			Status:         result.Status,
			TasksCreated:   result.TasksCreated,
			RecordsMatched: result.RecordsMatched,
		})

		if result.Status == model.RunStatusError || result.Status == model.RunStatusPartialFailure {
			combined.OverallStatus = model.RunStatusPartialFailure
		}
	}

	combined.ExecutionTimeMs = time.Since(startTime).Milliseconds()
	return combined, nil
}
