package services

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	model "github.com/kshitij41/ClientPulse/models"
)

// AccountMatch is one candidate produced by trigger evaluation: the account
// joined with its contact, carrying everything template rendering and
// assignee resolution need.
type AccountMatch struct {
	AccountID       string     `json:"accountId"`
	AccountName     string     `json:"accountName"`
	NextRenewalDate *time.Time `json:"nextRenewalDate"`
	ContactID       string     `json:"contactId"`
	OwnerUserID     string     `json:"ownerUserId"`
	FirstName       string     `json:"firstName"`
	LastName        string     `json:"lastName"`
	Phone           string     `json:"phone"`
	Email           string     `json:"email"`
}

// TriggerResult is the outcome of evaluating one rule's trigger:
// RecordsEvaluated counts every candidate the trigger considered, Matches
// holds the subset that satisfied the condition.
type TriggerResult struct {
	RecordsEvaluated int
	Matches          []AccountMatch
}

// EvaluateTrigger produces the matching accounts for a rule. Pure read: no
// side effects on any table. Matches are ordered by renewal date then id
// so repeated runs see the candidates in the same order.
func (s *WorkflowService) EvaluateTrigger(rule *model.WorkflowRule, now time.Time) (*TriggerResult, error) {
	switch rule.TriggerType {
	case model.TriggerRenewalWithinDays:
		days, err := renewalWindowDays([]byte(rule.TriggerConditions))
		if err != nil {
			return nil, err
		}
		return s.accountsRenewingWithin(rule.OrganizationID, days, now)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTriggerType, rule.TriggerType)
	}
}

// renewalWindowDays extracts the 'days' parameter for renewal_within_days.
func renewalWindowDays(conditions []byte) (int, error) {
	var parsed struct {
		Days *int `json:"days"`
	}
	if err := json.Unmarshal(conditions, &parsed); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidTriggerConfig, err)
	}
	if parsed.Days == nil || *parsed.Days <= 0 {
		return 0, fmt.Errorf("%w: renewal_within_days requires a positive 'days' value", ErrInvalidTriggerConfig)
	}
	return *parsed.Days, nil
}

// renewalWindow returns the inclusive [start, end] bounds of a days-wide
// window anchored at now's calendar day.
func renewalWindow(now time.Time, days int) (time.Time, time.Time) {
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return start, start.AddDate(0, 0, days)
}

// accountsRenewingWithin selects active accounts whose renewal date falls in
// [today, today+days], inclusive at both ends, scoped to the organization.
// Every active account carrying a renewal date counts as evaluated.
func (s *WorkflowService) accountsRenewingWithin(orgID string, days int, now time.Time) (*TriggerResult, error) {
	windowStart, windowEnd := renewalWindow(now, days)

	var evaluated int64
	err := s.db.Table("accounts a").
		Where("a.organization_id = ?", orgID).
		Where("a.status = ?", "active").
		Where("a.next_renewal_date IS NOT NULL").
		Count(&evaluated).Error
	if err != nil {
		log.Printf("ERROR counting renewal candidates for org %s: %v", orgID, err)
		return nil, err
	}

	var matches []AccountMatch
	err = s.db.Table("accounts a").
		Select("a.id AS account_id, a.account_name, a.next_renewal_date, a.contact_id, a.owner_user_id, c.first_name, c.last_name, c.phone, c.email").
		Joins("JOIN contacts c ON a.contact_id = c.id").
		Where("a.organization_id = ?", orgID).
		Where("a.status = ?", "active").
		Where("a.next_renewal_date IS NOT NULL").
		Where("a.next_renewal_date >= ? AND a.next_renewal_date <= ?", windowStart, windowEnd).
		Order("a.next_renewal_date ASC, a.id ASC").
		Scan(&matches).Error
	if err != nil {
		log.Printf("ERROR evaluating renewal trigger for org %s: %v", orgID, err)
		return nil, err
	}

	return &TriggerResult{RecordsEvaluated: int(evaluated), Matches: matches}, nil
}
