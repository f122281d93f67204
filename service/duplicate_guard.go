package services

import (
	"errors"
	"log"

	model "github.com/kshitij41/ClientPulse/models"

	"github.com/lib/pq"
)

// activeTaskStatuses are the statuses that count toward duplicate prevention.
var activeTaskStatuses = []string{model.TaskStatusPending, model.TaskStatusInProgress}

// FilterNewAccounts partitions candidates into accounts that still need a
// task and accounts that already have an active one for this rule. The scan
// is advisory only: the partial unique index on (rule_id, account_id) is
// what actually guarantees at most one active generated task, and a racing
// insert that slips past this check fails there instead.
func (s *WorkflowService) FilterNewAccounts(ruleID string, candidates []AccountMatch) (toCreate, skipped []AccountMatch, err error) {
	toCreate = make([]AccountMatch, 0, len(candidates))
	skipped = make([]AccountMatch, 0)

	for _, candidate := range candidates {
		var count int64
		err := s.db.Model(&model.Task{}).
			Where("rule_id = ? AND account_id = ?", ruleID, candidate.AccountID).
			Where("status IN ?", activeTaskStatuses).
			Where("source = ?", model.TaskSourceWorkflowRule).
			Count(&count).Error
		if err != nil {
			log.Printf("[FilterNewAccounts] Error checking existing task for account %s: %v", candidate.AccountID, err)
			return nil, nil, err
		}

		if count > 0 {
			skipped = append(skipped, candidate)
		} else {
			toCreate = append(toCreate, candidate)
		}
	}

	return toCreate, skipped, nil
}

// isUniqueViolation reports whether err is the Postgres unique-constraint
// failure (SQLSTATE 23505) raised by the active-task dedup index.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
