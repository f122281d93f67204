package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	model "github.com/kshitij41/ClientPulse/models"
	"github.com/agiledragon/gomonkey/v2"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// FixedTime for consistent time patching
var FixedTime = time.Date(2025, time.March, 5, 0, 0, 0, 0, time.UTC)

// DBInterface defines GORM-like methods for mocking
type DBInterface interface {
	Where(query interface{}, args ...interface{}) DBInterface
	First(dest interface{}, conds ...interface{}) DBInterface
	Find(dest interface{}, conds ...interface{}) DBInterface
	Create(value interface{}) DBInterface
	Model(value interface{}) DBInterface
	Table(name string) DBInterface
	Select(query interface{}, args ...interface{}) DBInterface
	Joins(query string, args ...interface{}) DBInterface
	Scan(dest interface{}) DBInterface
	Count(count *int64) DBInterface
	Order(value interface{}) DBInterface
	Limit(limit int) DBInterface
	Offset(offset int) DBInterface
	Unscoped() DBInterface
	Error() error
}

// MockDB implements DBInterface with testify/mock
type MockDB struct {
	mock.Mock
}

func (m *MockDB) Where(query interface{}, args ...interface{}) DBInterface {
	m.Called(query, args)
	return m
}

func (m *MockDB) First(dest interface{}, conds ...interface{}) DBInterface {
	m.Called(dest, conds)
	return m
}

func (m *MockDB) Find(dest interface{}, conds ...interface{}) DBInterface {
	m.Called(dest, conds)
	return m
}

func (m *MockDB) Create(value interface{}) DBInterface {
	m.Called(value)
	return m
}

func (m *MockDB) Model(value interface{}) DBInterface {
	m.Called(value)
	return m
}

func (m *MockDB) Table(name string) DBInterface {
	m.Called(name)
	return m
}

func (m *MockDB) Select(query interface{}, args ...interface{}) DBInterface {
	m.Called(query, args)
	return m
}

func (m *MockDB) Joins(query string, args ...interface{}) DBInterface {
	m.Called(query, args)
	return m
}

func (m *MockDB) Scan(dest interface{}) DBInterface {
	m.Called(dest)
	return m
}

func (m *MockDB) Count(count *int64) DBInterface {
	m.Called(count)
	return m
}

func (m *MockDB) Order(value interface{}) DBInterface {
	m.Called(value)
	return m
}

func (m *MockDB) Limit(limit int) DBInterface {
	m.Called(limit)
	return m
}

func (m *MockDB) Offset(offset int) DBInterface {
	m.Called(offset)
	return m
}

func (m *MockDB) Unscoped() DBInterface {
	m.Called()
	return m
}

func (m *MockDB) Error() error {
	args := m.Called()
	return args.Error(0)
}

// TestWorkflowService uses DBInterface instead of *gorm.DB
type TestWorkflowService struct {
	db DBInterface
}

func (s *TestWorkflowService) FilterNewAccounts(ruleID string, candidates []AccountMatch) (toCreate, skipped []AccountMatch, err error) {
	toCreate = make([]AccountMatch, 0, len(candidates))
	skipped = make([]AccountMatch, 0)

	for _, candidate := range candidates {
		var count int64
		err := s.db.Model(&model.Task{}).
			Where("rule_id = ? AND account_id = ?", ruleID, candidate.AccountID).
			Where("status IN ?", activeTaskStatuses).
			Where("source = ?", model.TaskSourceWorkflowRule).
			Count(&count).Error()
		if err != nil {
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

func (s *TestWorkflowService) appendRuleLog(rule *model.WorkflowRule, summary *ExecutionSummary, triggeredBy, triggerSource string) {
	details, err := json.Marshal(summary.Details)
	if err != nil {
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
	s.db.Create(&entry).Error()
}

func (s *TestWorkflowService) EvaluateTrigger(rule *model.WorkflowRule, now time.Time) (*TriggerResult, error) {
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

func (s *TestWorkflowService) accountsRenewingWithin(orgID string, days int, now time.Time) (*TriggerResult, error) {
	windowStart, windowEnd := renewalWindow(now, days)

	var evaluated int64
	err := s.db.Table("accounts a").
		Where("a.organization_id = ?", orgID).
		Where("a.status = ?", "active").
		Where("a.next_renewal_date IS NOT NULL").
		Count(&evaluated).Error()
	if err != nil {
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
		Scan(&matches).Error()
	if err != nil {
		return nil, err
	}

	return &TriggerResult{RecordsEvaluated: int(evaluated), Matches: matches}, nil
}

func (s *TestWorkflowService) executeRule(ruleID, orgID, triggeredBy, triggerSource string) (*ExecutionSummary, error) {
	startTime := time.Now()
	summary := &ExecutionSummary{
		RunID:          uuid.New().String(),
		RuleID:         ruleID,
		OrganizationID: orgID,
		Status:         model.RunStatusSuccess,
		Details:        []TaskCreationDetail{},
	}

	var rule model.WorkflowRule
	if err := s.db.Where("id = ? AND organization_id = ?", ruleID, orgID).First(&rule).Error(); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRuleNotFound
		}
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

	trigger, err := s.EvaluateTrigger(&rule, time.Now())
	if err != nil {
		if errors.Is(err, ErrInvalidTriggerConfig) || errors.Is(err, ErrUnknownTriggerType) {
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

	if len(trigger.Matches) == 0 {
		summary.ExecutionTimeMs = time.Since(startTime).Milliseconds()
		s.appendRuleLog(&rule, summary, triggeredBy, triggerSource)
		return summary, nil
	}

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

		if err := s.db.Create(&task).Error(); err != nil {
			if isUniqueViolation(err) {
				summary.RecordsSkippedDuplicate++
				continue
			}
			summary.Status = model.RunStatusPartialFailure
			continue
		}

		summary.TasksCreated++
		summary.Details = append(summary.Details, TaskCreationDetail{
			AccountID:     match.AccountID,
			AccountName:   match.AccountName,
			ContactID:     match.ContactID,
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
	return summary, nil
}

func (s *TestWorkflowService) GetRuleLogs(ruleID, orgID string, page, limit int) (*RuleLogPage, error) {
	var rule model.WorkflowRule
	if err := s.db.Unscoped().Where("id = ? AND organization_id = ?", ruleID, orgID).First(&rule).Error(); err != nil {
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
		Count(&total).Error(); err != nil {
		return nil, err
	}

	var logs []model.RuleExecutionLog
	if err := s.db.Where("rule_id = ? AND organization_id = ?", ruleID, orgID).
		Order("run_at DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&logs).Error(); err != nil {
		return nil, err
	}

	return &RuleLogPage{Logs: logs, Page: page, Limit: limit, Total: total}, nil
}

// Test for FilterNewAccounts
func TestWorkflowService_FilterNewAccounts(t *testing.T) {
	patches := gomonkey.ApplyFunc(time.Now, func() time.Time {
		return FixedTime
	})
	defer patches.Reset()

	mockDB := new(MockDB)
	mockDB.On("Model", mock.Anything).Return(mockDB)
	mockDB.On("Where", "rule_id = ? AND account_id = ?", []interface{}{"rule1", "acc1"}).
		Return(mockDB)
	mockDB.On("Where", "rule_id = ? AND account_id = ?", []interface{}{"rule1", "acc2"}).
		Return(mockDB)
	mockDB.On("Where", "status IN ?", []interface{}{activeTaskStatuses}).
		Return(mockDB)
	mockDB.On("Where", "source = ?", []interface{}{model.TaskSourceWorkflowRule}).
		Return(mockDB)
	// First account already has an active generated task, second does not.
	mockDB.On("Count", mock.Anything).
		Run(func(args mock.Arguments) {
			count := args.Get(0).(*int64)
			*count = 1
		}).
		Return(mockDB).Once()
	mockDB.On("Count", mock.Anything).
		Run(func(args mock.Arguments) {
			count := args.Get(0).(*int64)
			*count = 0
		}).
		Return(mockDB).Once()
	mockDB.On("Error").Return(nil)

	service := &TestWorkflowService{db: mockDB}
	candidates := []AccountMatch{
		{AccountID: "acc1", AccountName: "Acme Corp"},
		{AccountID: "acc2", AccountName: "Globex"},
	}
	toCreate, skipped, err := service.FilterNewAccounts("rule1", candidates)

	assert.NoError(t, err)
	assert.Len(t, toCreate, 1)
	assert.Equal(t, "acc2", toCreate[0].AccountID)
	assert.Len(t, skipped, 1)
	assert.Equal(t, "acc1", skipped[0].AccountID)
	mockDB.AssertExpectations(t)
}

// Test for ExecuteRule with an unknown rule id
func TestWorkflowService_ExecuteRule_RuleNotFound(t *testing.T) {
	patches := gomonkey.ApplyFunc(time.Now, func() time.Time {
		return FixedTime
	})
	defer patches.Reset()

	mockDB := new(MockDB)
	mockDB.On("Where", "id = ? AND organization_id = ?", []interface{}{"missing", "org1"}).
		Return(mockDB)
	mockDB.On("First", mock.Anything, []interface{}(nil)).
		Return(mockDB)
	mockDB.On("Error").Return(gorm.ErrRecordNotFound)

	service := &TestWorkflowService{db: mockDB}
	summary, err := service.executeRule("missing", "org1", "user-9", model.RunSourceManual)

	assert.ErrorIs(t, err, ErrRuleNotFound)
	assert.Nil(t, summary)
	// A run that never loaded a rule must not write a log entry.
	mockDB.AssertNotCalled(t, "Create")
}

// Test for ExecuteRule against a disabled rule
func TestWorkflowService_ExecuteRule_DisabledRuleLogsSkippedRun(t *testing.T) {
	patches := gomonkey.ApplyFunc(time.Now, func() time.Time {
		return FixedTime
	})
	defer patches.Reset()

	mockDB := new(MockDB)
	mockDB.On("Where", "id = ? AND organization_id = ?", []interface{}{"rule1", "org1"}).
		Return(mockDB)
	mockDB.On("First", mock.Anything, []interface{}(nil)).
		Run(func(args mock.Arguments) {
			rule := args.Get(0).(*model.WorkflowRule)
			*rule = model.WorkflowRule{
				ID:             "rule1",
				OrganizationID: "org1",
				Name:           "Renewal Reminder",
				IsEnabled:      false,
			}
		}).
		Return(mockDB)

	var logged model.RuleExecutionLog
	mockDB.On("Create", mock.AnythingOfType("*models.RuleExecutionLog")).
		Run(func(args mock.Arguments) {
			logged = *args.Get(0).(*model.RuleExecutionLog)
		}).
		Return(mockDB)
	mockDB.On("Error").Return(nil)

	service := &TestWorkflowService{db: mockDB}
	summary, err := service.executeRule("rule1", "org1", "user-9", model.RunSourceScheduled)

	assert.NoError(t, err)
	assert.Equal(t, model.RunStatusSkipped, summary.Status)
	assert.Equal(t, 0, summary.TasksCreated)
	assert.Equal(t, model.RunStatusSkipped, logged.Status)
	assert.Equal(t, "rule1", logged.RuleID)
	assert.Equal(t, model.RunSourceScheduled, logged.TriggerSource)
	assert.Equal(t, FixedTime, logged.RunAt)
	mockDB.AssertExpectations(t)
}

// Two consecutive runs over three accounts: one outside the renewal window
// is evaluated but never matched, the two matches get tasks on the first run
// and are skipped as duplicates on the second.
func TestWorkflowService_ExecuteRule_SecondRunSkipsDuplicates(t *testing.T) {
	patches := gomonkey.ApplyFunc(time.Now, func() time.Time {
		return FixedTime
	})
	defer patches.Reset()

	renewal1 := time.Date(2025, time.March, 20, 0, 0, 0, 0, time.UTC)
	renewal2 := time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)

	mockDB := new(MockDB)
	mockDB.On("Where", "id = ? AND organization_id = ?", []interface{}{"rule1", "org1"}).
		Return(mockDB)
	mockDB.On("First", mock.Anything, []interface{}(nil)).
		Run(func(args mock.Arguments) {
			rule := args.Get(0).(*model.WorkflowRule)
			*rule = model.WorkflowRule{
				ID:                "rule1",
				OrganizationID:    "org1",
				Name:              "Renewal Reminder",
				TriggerType:       model.TriggerRenewalWithinDays,
				TriggerConditions: datatypes.JSON([]byte(`{"days": 30}`)),
				ActionConfig:      datatypes.JSON([]byte(`{"subject_template": "Renew {{account_name}}", "priority": "auto", "days_before_due": 7, "assignee_strategy": "account_owner"}`)),
				IsEnabled:         true,
				PreventDuplicates: true,
			}
		}).
		Return(mockDB)

	// Trigger evaluation: three active accounts carry a renewal date, two of
	// them inside the window.
	mockDB.On("Table", "accounts a").Return(mockDB)
	mockDB.On("Where", "a.organization_id = ?", []interface{}{"org1"}).Return(mockDB)
	mockDB.On("Where", "a.status = ?", []interface{}{"active"}).Return(mockDB)
	mockDB.On("Where", "a.next_renewal_date IS NOT NULL", []interface{}(nil)).Return(mockDB)
	mockDB.On("Select", mock.Anything, []interface{}(nil)).Return(mockDB)
	mockDB.On("Joins", "JOIN contacts c ON a.contact_id = c.id", []interface{}(nil)).Return(mockDB)
	mockDB.On("Where", "a.next_renewal_date >= ? AND a.next_renewal_date <= ?", mock.Anything).Return(mockDB)
	mockDB.On("Order", "a.next_renewal_date ASC, a.id ASC").Return(mockDB)
	mockDB.On("Scan", mock.Anything).
		Run(func(args mock.Arguments) {
			matches := args.Get(0).(*[]AccountMatch)
			*matches = []AccountMatch{
				{AccountID: "acc1", AccountName: "Acme Corp", NextRenewalDate: &renewal1, ContactID: "con1", OwnerUserID: "owner-1", FirstName: "Jane", LastName: "Cooper"},
				{AccountID: "acc2", AccountName: "Globex", NextRenewalDate: &renewal2, ContactID: "con2", OwnerUserID: "owner-2", FirstName: "Wade", LastName: "Warren"},
			}
		}).
		Return(mockDB)

	// Duplicate guard lookups.
	mockDB.On("Model", mock.Anything).Return(mockDB)
	mockDB.On("Where", "rule_id = ? AND account_id = ?", []interface{}{"rule1", "acc1"}).Return(mockDB)
	mockDB.On("Where", "rule_id = ? AND account_id = ?", []interface{}{"rule1", "acc2"}).Return(mockDB)
	mockDB.On("Where", "status IN ?", []interface{}{activeTaskStatuses}).Return(mockDB)
	mockDB.On("Where", "source = ?", []interface{}{model.TaskSourceWorkflowRule}).Return(mockDB)

	// Count order per run: evaluated total, then one dedup check per match.
	// First run finds no existing tasks, second run finds both.
	countSeq := []int64{3, 0, 0, 3, 1, 1}
	for _, n := range countSeq {
		n := n
		mockDB.On("Count", mock.Anything).
			Run(func(args mock.Arguments) {
				count := args.Get(0).(*int64)
				*count = n
			}).
			Return(mockDB).Once()
	}

	tasksCreated := 0
	mockDB.On("Create", mock.AnythingOfType("*models.Task")).
		Run(func(args mock.Arguments) {
			tasksCreated++
		}).
		Return(mockDB)
	var logs []model.RuleExecutionLog
	mockDB.On("Create", mock.AnythingOfType("*models.RuleExecutionLog")).
		Run(func(args mock.Arguments) {
			logs = append(logs, *args.Get(0).(*model.RuleExecutionLog))
		}).
		Return(mockDB)
	mockDB.On("Error").Return(nil)

	service := &TestWorkflowService{db: mockDB}

	first, err := service.executeRule("rule1", "org1", "user-9", model.RunSourceManual)
	assert.NoError(t, err)
	assert.Equal(t, 3, first.RecordsEvaluated)
	assert.Equal(t, 2, first.RecordsMatched)
	assert.Equal(t, 2, first.TasksCreated)
	assert.Equal(t, 0, first.RecordsSkippedDuplicate)
	assert.Equal(t, model.RunStatusSuccess, first.Status)
	assert.Len(t, first.Details, 2)

	second, err := service.executeRule("rule1", "org1", "user-9", model.RunSourceManual)
	assert.NoError(t, err)
	assert.Equal(t, 3, second.RecordsEvaluated)
	assert.Equal(t, 2, second.RecordsMatched)
	assert.Equal(t, 0, second.TasksCreated)
	assert.Equal(t, 2, second.RecordsSkippedDuplicate)
	assert.Equal(t, model.RunStatusSuccess, second.Status)

	// No new tasks on the re-run, one log entry per run.
	assert.Equal(t, 2, tasksCreated)
	if assert.Len(t, logs, 2) {
		assert.Equal(t, 2, logs[0].TasksCreated)
		assert.Equal(t, 0, logs[1].TasksCreated)
		assert.Equal(t, 2, logs[1].RecordsSkippedDuplicate)
	}
	mockDB.AssertExpectations(t)
}

// Test for GetRuleLogs against a soft-deleted rule
func TestWorkflowService_GetRuleLogs_SoftDeletedRuleStillServesLogs(t *testing.T) {
	patches := gomonkey.ApplyFunc(time.Now, func() time.Time {
		return FixedTime
	})
	defer patches.Reset()

	mockDB := new(MockDB)
	// The Unscoped lookup finds the rule even after soft deletion.
	mockDB.On("Unscoped").Return(mockDB)
	mockDB.On("Where", "id = ? AND organization_id = ?", []interface{}{"rule1", "org1"}).
		Return(mockDB)
	mockDB.On("First", mock.Anything, []interface{}(nil)).
		Run(func(args mock.Arguments) {
			rule := args.Get(0).(*model.WorkflowRule)
			*rule = model.WorkflowRule{ID: "rule1", OrganizationID: "org1", Name: "Renewal Reminder"}
		}).
		Return(mockDB)
	mockDB.On("Model", mock.Anything).Return(mockDB)
	mockDB.On("Where", "rule_id = ? AND organization_id = ?", []interface{}{"rule1", "org1"}).
		Return(mockDB)
	mockDB.On("Count", mock.Anything).
		Run(func(args mock.Arguments) {
			count := args.Get(0).(*int64)
			*count = 2
		}).
		Return(mockDB)
	mockDB.On("Order", "run_at DESC").Return(mockDB)
	mockDB.On("Limit", 20).Return(mockDB)
	mockDB.On("Offset", 0).Return(mockDB)
	mockDB.On("Find", mock.Anything, []interface{}(nil)).
		Run(func(args mock.Arguments) {
			logs := args.Get(0).(*[]model.RuleExecutionLog)
			*logs = []model.RuleExecutionLog{
				{ID: "log2", RuleID: "rule1", Status: model.RunStatusSuccess},
				{ID: "log1", RuleID: "rule1", Status: model.RunStatusSkipped},
			}
		}).
		Return(mockDB)
	mockDB.On("Error").Return(nil)

	service := &TestWorkflowService{db: mockDB}
	// Out-of-range paging values clamp to the defaults.
	page, err := service.GetRuleLogs("rule1", "org1", 0, 0)

	assert.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 20, page.Limit)
	assert.Equal(t, int64(2), page.Total)
	assert.Len(t, page.Logs, 2)
	assert.Equal(t, "log2", page.Logs[0].ID)
	mockDB.AssertExpectations(t)
}

// Test for the unique-violation classifier behind the dedup index
func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pq.Error{Code: "23505"}))
	assert.True(t, isUniqueViolation(fmt.Errorf("insert failed: %w", &pq.Error{Code: "23505"})))
	assert.False(t, isUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("connection reset")))
	assert.False(t, isUniqueViolation(nil))
}
