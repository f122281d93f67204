package main

import (
	"log"
	"net/http"
	"os"

	controller "github.com/kshitij41/ClientPulse/controller"
	"github.com/kshitij41/ClientPulse/initializers"
	middleware "github.com/kshitij41/ClientPulse/middleware"
	service "github.com/kshitij41/ClientPulse/service"

	"github.com/gin-gonic/gin"
)

func init() {
	// if err := initializers.LoadEnv(); err != nil {
	// 	log.Fatalf("[CRITICAL] Failed to load env: %s", err)
	// }
	if err := initializers.ConnectDB(); err != nil {
		log.Fatalf("[CRITICAL] Failed to initialize database connection: %s", err)
	}
	if err := initializers.Migrate(); err != nil {
		log.Fatalf("[CRITICAL] Failed to run database migrations: %s", err)
	}
}

func main() {
	workflowService, err := service.NewWorkflowService(initializers.DB)
	if err != nil {
		log.Fatalf("Failed to initialize workflow service: %s", err)
	}

	workflowController := controller.NewWorkflowController(workflowService)

	router := gin.Default()
	router.Use(middleware.CORSMiddleware())

	// Global rate limiter for most routes
	router.Use(middleware.GlobalRateLimiter.Limit())

	// Healthcheck endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	api := router.Group("/", middleware.OrganizationContext())

	// Workflow rule CRUD
	api.POST("/workflow-rules",
		middleware.StrictRateLimiter.Limit(),
		workflowController.CreateWorkflowRule)
	api.GET("/workflow-rules", workflowController.GetWorkflowRules)
	api.GET("/workflow-rules/:id", workflowController.GetWorkflowRule)
	api.PUT("/workflow-rules/:id",
		middleware.StrictRateLimiter.Limit(),
		workflowController.UpdateWorkflowRule)
	api.DELETE("/workflow-rules/:id",
		middleware.StrictRateLimiter.Limit(),
		workflowController.DeleteWorkflowRule)

	// Execution endpoints with strict rate limiting
	api.POST("/workflow-rules/:id/execute",
		middleware.StrictRateLimiter.Limit(),
		workflowController.ExecuteWorkflowRule)
	api.POST("/workflow-rules/execute-all",
		middleware.StrictRateLimiter.Limit(),
		workflowController.ExecuteAllWorkflowRules)
	router.POST("/workflow-rules/run-scheduled",
		middleware.StrictRateLimiter.Limit(),
		workflowController.RunScheduledWorkflows)

	// Execution logs
	api.GET("/workflow-rules/:id/logs", workflowController.GetWorkflowRuleLogs)
	api.GET("/workflow-rules/:id/logs/export",
		middleware.StrictRateLimiter.Limit(),
		workflowController.ExportWorkflowRuleLogs)

	// Contacts and accounts
	api.POST("/contacts", workflowController.CreateContact)
	api.GET("/contacts", workflowController.GetContacts)
	api.POST("/accounts", workflowController.CreateAccount)
	api.GET("/accounts", workflowController.GetAccounts)
	api.GET("/accounts/search", workflowController.SearchAccounts)

	// Daily renewal sweep, opt-in so tests and one-off jobs don't spawn it
	if os.Getenv("WORKFLOW_CRON_ENABLED") == "true" {
		workflowService.StartWorkflowScheduler()
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	router.Run(":" + port)
}
