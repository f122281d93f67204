package controller

import (
	"net/http"
	"time"

	"github.com/kshitij41/ClientPulse/models"

	"github.com/gin-gonic/gin"
)

// createContactRequest is the POST /contacts body.
type createContactRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

// CreateContact adds a contact to the caller's organization
func (c *WorkflowController) CreateContact(ctx *gin.Context) {
	var req createContactRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	contact := models.Contact{
		OrganizationID: ctx.GetString("organizationID"),
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Email:          req.Email,
		Phone:          req.Phone,
	}
	if err := c.service.CreateContact(&contact); err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusCreated, contact)
}

// GetContacts lists the organization's contacts
func (c *WorkflowController) GetContacts(ctx *gin.Context) {
	contacts, err := c.service.GetContacts(ctx.GetString("organizationID"))
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"contacts": contacts, "total": len(contacts)})
}

// createAccountRequest is the POST /accounts body.
type createAccountRequest struct {
	AccountName     string `json:"accountName" binding:"required"`
	ContactID       string `json:"contactId"`
	NextRenewalDate string `json:"nextRenewalDate"`
	OwnerUserID     string `json:"ownerUserId"`
	Status          string `json:"status"`
}

// CreateAccount adds an account to the caller's organization
func (c *WorkflowController) CreateAccount(ctx *gin.Context) {
	var req createAccountRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	account := models.Account{
		OrganizationID: ctx.GetString("organizationID"),
		AccountName:    req.AccountName,
		OwnerUserID:    req.OwnerUserID,
		Status:         req.Status,
	}
	if req.ContactID != "" {
		account.ContactID = &req.ContactID
	}
	if req.NextRenewalDate != "" {
		renewal, err := time.Parse("2006-01-02", req.NextRenewalDate)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "nextRenewalDate must be YYYY-MM-DD"})
			return
		}
		account.NextRenewalDate = &renewal
	}

	if err := c.service.CreateAccount(&account); err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusCreated, account)
}

// GetAccounts lists the organization's accounts
func (c *WorkflowController) GetAccounts(ctx *gin.Context) {
	accounts, err := c.service.GetAccounts(ctx.GetString("organizationID"))
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"accounts": accounts, "total": len(accounts)})
}

// SearchAccounts queries the search index
func (c *WorkflowController) SearchAccounts(ctx *gin.Context) {
	query := ctx.Query("q")
	if query == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Query parameter 'q' is required"})
		return
	}

	results, err := c.service.SearchAccounts(ctx.GetString("organizationID"), query)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"message": "Search completed successfully",
		"results": results,
	})
}
