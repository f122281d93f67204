package controller

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/kshitij41/ClientPulse/models"
	service "github.com/kshitij41/ClientPulse/service"

	"github.com/gin-gonic/gin"
)

// ExecuteWorkflowRule runs the engine once for the given rule
func (c *WorkflowController) ExecuteWorkflowRule(ctx *gin.Context) {
	summary, err := c.service.ExecuteRule(
		ctx.Param("id"),
		ctx.GetString("organizationID"),
		ctx.GetString("userID"),
		models.RunSourceManual,
	)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrRuleNotFound):
			ctx.JSON(http.StatusNotFound, gin.H{"error": "Rule not found"})
		case errors.Is(err, service.ErrInvalidTriggerConfig) || errors.Is(err, service.ErrUnknownTriggerType):
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			log.Printf("[ExecuteWorkflowRule] Error executing rule: %v", err)
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	status := http.StatusOK
	if summary.Status == models.RunStatusError {
		status = http.StatusInternalServerError
	}
	ctx.JSON(status, summary)
}

// ExecuteAllWorkflowRules runs every enabled rule for the organization
func (c *WorkflowController) ExecuteAllWorkflowRules(ctx *gin.Context) {
	summary, err := c.service.ExecuteAllRules(
		ctx.GetString("organizationID"),
		ctx.GetString("userID"),
		models.RunSourceManual,
	)
	if err != nil {
		log.Printf("[ExecuteAllWorkflowRules] Error: %v", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, summary)
}

// RunScheduledWorkflows triggers the daily run immediately (admin/testing)
func (c *WorkflowController) RunScheduledWorkflows(ctx *gin.Context) {
	go c.service.RunScheduledWorkflows()
	ctx.JSON(http.StatusAccepted, gin.H{"message": "Scheduled workflow run triggered"})
}

// GetWorkflowRuleLogs returns paginated execution logs, most recent first
func (c *WorkflowController) GetWorkflowRuleLogs(ctx *gin.Context) {
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "20"))

	logs, err := c.service.GetRuleLogs(ctx.Param("id"), ctx.GetString("organizationID"), page, limit)
	if err != nil {
		if errors.Is(err, service.ErrRuleNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "Rule not found"})
			return
		}
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, logs)
}

// ExportWorkflowRuleLogs uploads a CSV of the rule's logs to object storage
func (c *WorkflowController) ExportWorkflowRuleLogs(ctx *gin.Context) {
	fileURL, err := c.service.ExportRuleLogsCSV(ctx.Param("id"), ctx.GetString("organizationID"))
	if err != nil {
		if errors.Is(err, service.ErrRuleNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "Rule not found"})
			return
		}
		log.Printf("[ExportWorkflowRuleLogs] Error exporting logs: %v", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"message": "Logs exported successfully",
		"fileURL": fileURL,
	})
}
