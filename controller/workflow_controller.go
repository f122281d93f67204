package controller

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kshitij41/ClientPulse/models"
	service "github.com/kshitij41/ClientPulse/service"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
)

// WorkflowController manages HTTP requests for workflow rules and accounts
type WorkflowController struct {
	service *service.WorkflowService
}

// NewWorkflowController initializes the controller with the service
func NewWorkflowController(service *service.WorkflowService) *WorkflowController {
	return &WorkflowController{service}
}

// createRuleRequest is the POST /workflow-rules body.
type createRuleRequest struct {
	Name              string                 `json:"name" binding:"required"`
	Description       string                 `json:"description"`
	TriggerType       string                 `json:"triggerType" binding:"required"`
	TriggerConditions map[string]interface{} `json:"triggerConditions" binding:"required"`
	ActionConfig      map[string]interface{} `json:"actionConfig" binding:"required"`
	IsEnabled         *bool                  `json:"isEnabled"`
	PreventDuplicates *bool                  `json:"preventDuplicates"`
	SortOrder         int                    `json:"sortOrder"`
}

// CreateWorkflowRule creates a new rule for the caller's organization
func (c *WorkflowController) CreateWorkflowRule(ctx *gin.Context) {
	var req createRuleRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conditions, err := json.Marshal(req.TriggerConditions)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid triggerConditions"})
		return
	}
	actionConfig, err := json.Marshal(req.ActionConfig)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid actionConfig"})
		return
	}

	rule := models.WorkflowRule{
		OrganizationID:    ctx.GetString("organizationID"),
		Name:              req.Name,
		Description:       req.Description,
		TriggerType:       req.TriggerType,
		TriggerConditions: datatypes.JSON(conditions),
		ActionConfig:      datatypes.JSON(actionConfig),
		IsEnabled:         true,
		PreventDuplicates: true,
		SortOrder:         req.SortOrder,
		CreatedBy:         ctx.GetString("userID"),
	}
	if req.IsEnabled != nil {
		rule.IsEnabled = *req.IsEnabled
	}
	if req.PreventDuplicates != nil {
		rule.PreventDuplicates = *req.PreventDuplicates
	}

	if err := c.service.CreateWorkflowRule(&rule); err != nil {
		if errors.Is(err, service.ErrInvalidTriggerConfig) || errors.Is(err, service.ErrUnknownTriggerType) {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusCreated, rule)
}

// GetWorkflowRules lists all rules with their most recent run
func (c *WorkflowController) GetWorkflowRules(ctx *gin.Context) {
	rules, err := c.service.GetWorkflowRules(ctx.GetString("organizationID"))
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"rules": rules, "total": len(rules)})
}

// GetWorkflowRule returns one rule with its recent execution logs
func (c *WorkflowController) GetWorkflowRule(ctx *gin.Context) {
	rule, logs, err := c.service.GetWorkflowRule(ctx.Param("id"), ctx.GetString("organizationID"))
	if err != nil {
		if errors.Is(err, service.ErrRuleNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "Rule not found"})
			return
		}
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"rule": rule, "logs": logs})
}

// UpdateWorkflowRule applies a partial update to a rule
func (c *WorkflowController) UpdateWorkflowRule(ctx *gin.Context) {
	var updates map[string]interface{}
	if err := ctx.ShouldBindJSON(&updates); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rule, err := c.service.UpdateWorkflowRule(ctx.Param("id"), ctx.GetString("organizationID"), updates)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrRuleNotFound):
			ctx.JSON(http.StatusNotFound, gin.H{"error": "Rule not found"})
		case errors.Is(err, service.ErrInvalidTriggerConfig) || errors.Is(err, service.ErrUnknownTriggerType):
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case err.Error() == "no fields to update":
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	ctx.JSON(http.StatusOK, rule)
}

// DeleteWorkflowRule soft-deletes a rule; its execution logs are retained
func (c *WorkflowController) DeleteWorkflowRule(ctx *gin.Context) {
	err := c.service.DeleteWorkflowRule(ctx.Param("id"), ctx.GetString("organizationID"))
	if err != nil {
		if errors.Is(err, service.ErrRuleNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "Rule not found"})
			return
		}
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "Rule deleted successfully"})
}
