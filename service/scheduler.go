package services

import (
	"log"
	"sync"
	"time"

	model "github.com/kshitij41/ClientPulse/models"
)

// scheduledRunHour is the UTC hour of the daily workflow run.
const scheduledRunHour = 6

var (
	cronMu      sync.Mutex
	cronRunning bool
)

// StartWorkflowScheduler launches the daily rule run. It sleeps until the
// next 06:00 UTC, runs every enabled rule for every organization, then
// repeats. Call once at startup.
func (s *WorkflowService) StartWorkflowScheduler() {
	log.Println("[Workflow Scheduler] Initializing daily workflow execution job...")
	log.Printf("[Workflow Scheduler] Scheduled for %02d:00 UTC daily", scheduledRunHour)

	go func() {
		for {
			time.Sleep(untilNextRun(time.Now().UTC()))
			s.RunScheduledWorkflows()
		}
	}()

	log.Println("[Workflow Scheduler] Job started")
}

// untilNextRun computes the wait until the next scheduled run after now.
func untilNextRun(now time.Time) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), scheduledRunHour, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}

// RunScheduledWorkflows executes all enabled rules for every organization
// that has at least one. An in-memory lock skips the cycle if a previous run
// is still in progress; one organization failing does not stop the others.
func (s *WorkflowService) RunScheduledWorkflows() {
	cronMu.Lock()
	if cronRunning {
		cronMu.Unlock()
		log.Println("[Workflow Scheduler] Previous run still in progress, skipping this cycle")
		return
	}
	cronRunning = true
	cronMu.Unlock()

	defer func() {
		cronMu.Lock()
		cronRunning = false
		cronMu.Unlock()
	}()

	startTime := time.Now()
	log.Println("[Workflow Scheduler] Starting daily run...")

	var orgIDs []string
	err := s.db.Model(&model.WorkflowRule{}).
		Where("is_enabled = ?", true).
		Distinct("organization_id").
		Order("organization_id ASC").
		Pluck("organization_id", &orgIDs).Error
	if err != nil {
		log.Printf("[Workflow Scheduler] Error finding organizations with active rules: %v", err)
		return
	}
	log.Printf("[Workflow Scheduler] Found %d organizations with active rules", len(orgIDs))

	totalTasksCreated := 0
	orgsProcessed := 0
	orgsWithError := 0

	// The sweep bypasses the request-level execution limiter: every org with
	// enabled rules gets its daily run regardless of fleet size.
	for _, orgID := range orgIDs {
		result, err := s.executeAllRules(orgID, "", model.RunSourceScheduled)
		if err != nil {
			orgsWithError++
			log.Printf("[Workflow Scheduler] Error processing org %s: %v", orgID, err)
			continue
		}

		totalTasksCreated += result.TotalTasksCreated
		orgsProcessed++
		log.Printf("[Workflow Scheduler] Org %s: %d tasks created across %d rules",
			orgID, result.TotalTasksCreated, result.RulesExecuted)
	}

	elapsed := time.Since(startTime)
	log.Println("[Workflow Scheduler] Daily run complete.")
	log.Printf("[Workflow Scheduler] Summary: %d orgs processed, %d tasks created", orgsProcessed, totalTasksCreated)

	if orgsWithError > 0 {
		log.Printf("[Workflow Scheduler] %d organization(s) had errors", orgsWithError)
	}
	if elapsed > 5*time.Minute {
		log.Printf("[Workflow Scheduler] Execution took %.1fs (>5 minutes)", elapsed.Seconds())
	}
}
