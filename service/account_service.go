package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	model "github.com/kshitij41/ClientPulse/models"

	"gorm.io/gorm"
)

// CreateContact persists a new contact for the organization.
func (s *WorkflowService) CreateContact(contact *model.Contact) error {
	if contact.OrganizationID == "" {
		return fmt.Errorf("organization id is required")
	}
	if contact.FirstName == "" && contact.LastName == "" {
		return fmt.Errorf("contact needs at least a first or last name")
	}

	if err := s.db.Create(contact).Error; err != nil {
		log.Printf("[CreateContact] Error saving contact: %v", err)
		return err
	}
	return nil
}

// GetContacts retrieves all contacts for the organization.
func (s *WorkflowService) GetContacts(orgID string) ([]model.Contact, error) {
	var contacts []model.Contact
	if err := s.db.Where("organization_id = ?", orgID).Find(&contacts).Error; err != nil {
		log.Printf("[GetContacts] Error fetching contacts: %v", err)
		return nil, err
	}
	return contacts, nil
}

// CreateAccount persists a new account and indexes it for search. The
// contact must belong to the same organization.
func (s *WorkflowService) CreateAccount(account *model.Account) error {
	if account.OrganizationID == "" || account.AccountName == "" {
		return fmt.Errorf("organization id and account name are required")
	}

	if account.ContactID != nil {
		var contact model.Contact
		err := s.db.Where("id = ? AND organization_id = ?", *account.ContactID, account.OrganizationID).
			First(&contact).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("contact %s not found in organization", *account.ContactID)
			}
			return err
		}
	}

	if account.Status == "" {
		account.Status = "active"
	}

	if err := s.db.Create(account).Error; err != nil {
		log.Printf("[CreateAccount] Error saving account: %v", err)
		return err
	}
	log.Printf("Account %s saved to database successfully with ID: %s", account.AccountName, account.ID)

	// Index in Elasticsearch; indexing failure never blocks account creation.
	if err := s.indexAccount(account); err != nil {
		log.Printf("Elasticsearch indexing error: %v", err)
	}

	return nil
}

// GetAccounts retrieves all accounts for the organization.
func (s *WorkflowService) GetAccounts(orgID string) ([]model.Account, error) {
	var accounts []model.Account
	result := s.db.Where("organization_id = ?", orgID).Find(&accounts)
	if result.Error != nil {
		log.Printf("[GetAccounts] Database query error: %v", result.Error)
		return nil, fmt.Errorf("failed to fetch accounts: %w", result.Error)
	}

	log.Printf("[GetAccounts] Retrieved %d accounts", len(accounts))
	return accounts, nil
}

// indexAccount indexes the account in Elasticsearch.
func (s *WorkflowService) indexAccount(account *model.Account) error {
	// Skip indexing if Elasticsearch client is not initialized
	if s.esClient == nil {
		log.Println("Elasticsearch client not initialized. Skipping indexing.")
		return nil
	}

	var contact model.Contact
	if account.ContactID != nil {
		if err := s.db.Where("id = ?", *account.ContactID).First(&contact).Error; err != nil {
			log.Printf("[indexAccount] Contact lookup failed for account %s: %v", account.ID, err)
		}
	}

	doc := map[string]interface{}{
		"account_id":      account.ID,
		"organization_id": account.OrganizationID,
		"account_name":    account.AccountName,
		"contact_name":    strings.TrimSpace(contact.FirstName + " " + contact.LastName),
		"contact_email":   contact.Email,
		"status":          account.Status,
		"timestamp":       time.Now().UTC(),
	}
	if account.NextRenewalDate != nil {
		doc["next_renewal_date"] = account.NextRenewalDate.Format("2006-01-02")
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal account for indexing: %w", err)
	}

	res, err := s.esClient.Index(
		"accounts",
		bytes.NewReader(body),
		s.esClient.Index.WithDocumentID(account.ID),
		s.esClient.Index.WithContext(context.Background()),
	)
	if err != nil {
		log.Printf("Elasticsearch indexing error: %v", err)
		return nil // Don't break account creation
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Printf("Elasticsearch indexing failed: %s", res.String())
		return nil
	}

	log.Println("Account successfully indexed in Elasticsearch")
	return nil
}

// SearchAccounts searches the accounts index by name, contact name or email,
// scoped to the organization.
func (s *WorkflowService) SearchAccounts(orgID, query string) ([]map[string]interface{}, error) {
	// Validate Elasticsearch client
	if s.esClient == nil {
		return nil, fmt.Errorf("elasticsearch client is not initialized")
	}

	searchQuery := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": map[string]interface{}{
					"multi_match": map[string]interface{}{
						"query":  query,
						"fields": []string{"account_name", "contact_name", "contact_email"},
					},
				},
				"filter": map[string]interface{}{
					"term": map[string]interface{}{
						"organization_id": orgID,
					},
				},
			},
		},
	}
	body, err := json.Marshal(searchQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search query: %w", err)
	}

	res, err := s.esClient.Search(
		s.esClient.Search.WithContext(context.Background()),
		s.esClient.Search.WithIndex("accounts"),
		s.esClient.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch search failed: %s", res.String())
	}

	var result map[string]interface{}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	// Safely extract hits
	hitsMap, ok := result["hits"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid hits structure in search response")
	}

	hitsArray, ok := hitsMap["hits"].([]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid hits array in search response")
	}

	var accounts []map[string]interface{}
	for _, hit := range hitsArray {
		hitMap, ok := hit.(map[string]interface{})
		if !ok {
			continue // Skip invalid hits
		}

		source, ok := hitMap["_source"].(map[string]interface{})
		if !ok {
			continue // Skip hits without a valid source
		}

		accounts = append(accounts, source)
	}

	return accounts, nil
}
