package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	model "github.com/kshitij41/ClientPulse/models"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/elastic/go-elasticsearch/v8"
	"gorm.io/gorm"
)

// RateLimiter struct to manage service-level rate limiting
type RateLimiter struct {
	mu           sync.Mutex
	requestCount map[string]int
	limit        int
	window       time.Duration
	lastReset    time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requestCount: make(map[string]int),
		limit:        limit,
		window:       window,
		lastReset:    time.Now(),
	}
}

// Allow checks if a request is allowed based on rate limit
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Reset counter if window has passed
	if time.Since(rl.lastReset) > rl.window {
		rl.requestCount = make(map[string]int)
		rl.lastReset = time.Now()
	}

	// Increment and check count
	rl.requestCount[key]++
	return rl.requestCount[key] <= rl.limit
}

// Global rate limiters for different operations
var (
	ruleRateLimiter      = NewRateLimiter(100, 1*time.Minute) // 100 rule-related operations per minute
	executionRateLimiter = NewRateLimiter(30, 1*time.Minute)  // 30 engine runs per minute
)

// WorkflowService holds the engine and its collaborators: the relational
// store, the search index and the object store for log exports.
type WorkflowService struct {
	db       *gorm.DB
	esClient *elasticsearch.Client
	s3Client *s3.S3
}

// NewWorkflowService initializes the service. Elasticsearch and S3 are
// optional collaborators: without them search and log export are disabled,
// the engine itself only needs the database.
func NewWorkflowService(db *gorm.DB) (*WorkflowService, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle is required")
	}

	// Initialize Elasticsearch client
	esURL := os.Getenv("ELASTICSEARCH_URL")
	var esClient *elasticsearch.Client
	if esURL != "" {
		esConfig := elasticsearch.Config{
			Addresses: []string{esURL},
		}
		var err error
		esClient, err = elasticsearch.NewClient(esConfig)
		if err != nil {
			log.Printf("Warning: Failed to create Elasticsearch client: %v", err)
		}
	}

	// Initialize S3 client for log exports
	var s3Client *s3.S3
	region := os.Getenv("SUPABASE_REGION")
	endpoint := os.Getenv("SUPABASE_S3_ENDPOINT")
	accessKey := os.Getenv("SUPABASE_ACCESS_KEY")
	secretKey := os.Getenv("SUPABASE_SECRET_KEY")
	if region != "" && endpoint != "" && accessKey != "" && secretKey != "" {
		sess, err := session.NewSession(&aws.Config{
			Region:           aws.String(region),
			Endpoint:         aws.String(endpoint),
			DisableSSL:       aws.Bool(false),
			Credentials:      credentials.NewStaticCredentials(accessKey, secretKey, ""),
			S3ForcePathStyle: aws.Bool(true),
		})
		if err != nil {
			log.Printf("Warning: Failed to create AWS session: %v", err)
		} else {
			s3Client = s3.New(sess)
		}
	} else {
		log.Println("S3 configuration incomplete; log export disabled")
	}

	return &WorkflowService{db: db, esClient: esClient, s3Client: s3Client}, nil
}

// CreateWorkflowRule validates and persists a new rule.
func (s *WorkflowService) CreateWorkflowRule(rule *model.WorkflowRule) error {
	// Rate limit rule additions
	if !ruleRateLimiter.Allow("rule_addition") {
		return fmt.Errorf("rate limit exceeded for rule additions")
	}

	if rule.Name == "" || rule.TriggerType == "" || len(rule.TriggerConditions) == 0 || len(rule.ActionConfig) == 0 {
		return fmt.Errorf("%w: name, triggerType, triggerConditions and actionConfig are required", ErrInvalidTriggerConfig)
	}

	// Reject configurations the evaluator would choke on at execution time.
	if err := validateTriggerConfig(rule.TriggerType, []byte(rule.TriggerConditions)); err != nil {
		return err
	}

	if err := s.db.Create(rule).Error; err != nil {
		log.Printf("Error saving workflow rule: %v", err)
		return err
	}
	log.Printf("Workflow rule %s added successfully", rule.Name)
	return nil
}

// validateTriggerConfig checks trigger_conditions against the trigger type.
func validateTriggerConfig(triggerType string, conditions []byte) error {
	switch triggerType {
	case model.TriggerRenewalWithinDays:
		var parsed struct {
			Days *int `json:"days"`
		}
		if err := json.Unmarshal(conditions, &parsed); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidTriggerConfig, err)
		}
		if parsed.Days == nil || *parsed.Days <= 0 {
			return fmt.Errorf("%w: renewal_within_days requires a positive 'days' value", ErrInvalidTriggerConfig)
		}
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnknownTriggerType, triggerType)
	}
}

// RuleWithLastRun pairs a rule with its most recent execution log.
type RuleWithLastRun struct {
	Rule    model.WorkflowRule      `json:"rule"`
	LastRun *model.RuleExecutionLog `json:"lastRun"`
}

// GetWorkflowRules retrieves all rules for the organization, each with its
// latest execution log.
func (s *WorkflowService) GetWorkflowRules(orgID string) ([]RuleWithLastRun, error) {
	// Rate limit rule retrieval
	if !ruleRateLimiter.Allow("rule_retrieval") {
		return nil, fmt.Errorf("rate limit exceeded for rule retrieval")
	}

	var rules []model.WorkflowRule
	result := s.db.Where("organization_id = ?", orgID).
		Order("sort_order ASC, created_at DESC").
		Find(&rules)
	if result.Error != nil {
		log.Printf("ERROR fetching workflow rules: %v", result.Error)
		return nil, result.Error
	}

	withRuns := make([]RuleWithLastRun, 0, len(rules))
	for _, rule := range rules {
		entry := RuleWithLastRun{Rule: rule}
		var lastLog model.RuleExecutionLog
		err := s.db.Where("rule_id = ?", rule.ID).
			Order("run_at DESC").
			First(&lastLog).Error
		if err == nil {
			entry.LastRun = &lastLog
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("ERROR fetching last run for rule %s: %v", rule.ID, err)
		}
		withRuns = append(withRuns, entry)
	}

	log.Printf("Retrieved %d workflow rules from database", len(rules))
	return withRuns, nil
}

// GetWorkflowRule retrieves one rule with its 10 most recent logs.
func (s *WorkflowService) GetWorkflowRule(ruleID, orgID string) (*model.WorkflowRule, []model.RuleExecutionLog, error) {
	var rule model.WorkflowRule
	if err := s.db.Where("id = ? AND organization_id = ?", ruleID, orgID).First(&rule).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrRuleNotFound
		}
		log.Printf("ERROR fetching workflow rule %s: %v", ruleID, err)
		return nil, nil, err
	}

	var logs []model.RuleExecutionLog
	if err := s.db.Where("rule_id = ?", ruleID).
		Order("run_at DESC").
		Limit(10).
		Find(&logs).Error; err != nil {
		log.Printf("ERROR fetching logs for rule %s: %v", ruleID, err)
		return nil, nil, err
	}

	return &rule, logs, nil
}

// UpdateWorkflowRule applies a partial update. Only recognized fields are
// written; trigger changes are re-validated.
func (s *WorkflowService) UpdateWorkflowRule(ruleID, orgID string, updates map[string]interface{}) (*model.WorkflowRule, error) {
	var rule model.WorkflowRule
	if err := s.db.Where("id = ? AND organization_id = ?", ruleID, orgID).First(&rule).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRuleNotFound
		}
		return nil, err
	}

	allowed := map[string]string{
		"name":              "name",
		"description":       "description",
		"triggerType":       "trigger_type",
		"triggerConditions": "trigger_conditions",
		"actionConfig":      "action_config",
		"isEnabled":         "is_enabled",
		"preventDuplicates": "prevent_duplicates",
		"sortOrder":         "sort_order",
	}

	columns := make(map[string]interface{})
	for key, value := range updates {
		column, ok := allowed[key]
		if !ok {
			continue
		}
		// JSON payloads arrive as decoded values; re-marshal for JSONB columns.
		if column == "trigger_conditions" || column == "action_config" {
			raw, err := json.Marshal(value)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidTriggerConfig, err)
			}
			columns[column] = raw
		} else {
			columns[column] = value
		}
	}

	if len(columns) == 0 {
		return nil, fmt.Errorf("no fields to update")
	}

	// Validate the trigger configuration that would result from the update.
	triggerType := rule.TriggerType
	if t, ok := columns["trigger_type"].(string); ok {
		triggerType = t
	}
	conditions := []byte(rule.TriggerConditions)
	if c, ok := columns["trigger_conditions"].([]byte); ok {
		conditions = c
	}
	if err := validateTriggerConfig(triggerType, conditions); err != nil {
		return nil, err
	}

	if err := s.db.Model(&rule).Updates(columns).Error; err != nil {
		log.Printf("ERROR updating workflow rule %s: %v", ruleID, err)
		return nil, err
	}

	if err := s.db.Where("id = ?", ruleID).First(&rule).Error; err != nil {
		return nil, err
	}
	return &rule, nil
}

// DeleteWorkflowRule soft-deletes the rule. Execution logs are retained:
// the audit trail survives rule deletion.
func (s *WorkflowService) DeleteWorkflowRule(ruleID, orgID string) error {
	result := s.db.Where("id = ? AND organization_id = ?", ruleID, orgID).
		Delete(&model.WorkflowRule{})
	if result.Error != nil {
		log.Printf("ERROR deleting workflow rule %s: %v", ruleID, result.Error)
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRuleNotFound
	}
	log.Printf("Workflow rule %s soft-deleted (logs retained)", ruleID)
	return nil
}
