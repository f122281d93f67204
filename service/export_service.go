package services

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	model "github.com/kshitij41/ClientPulse/models"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
)

// ExportRuleLogsCSV writes every execution log of a rule to a CSV object in
// the configured bucket and returns the public URL. The audit trail stays
// exportable after the rule is soft-deleted.
func (s *WorkflowService) ExportRuleLogsCSV(ruleID, orgID string) (string, error) {
	if s.s3Client == nil {
		return "", fmt.Errorf("object storage is not configured")
	}

	var rule model.WorkflowRule
	if err := s.db.Unscoped().Where("id = ? AND organization_id = ?", ruleID, orgID).First(&rule).Error; err != nil {
		return "", ErrRuleNotFound
	}

	var logs []model.RuleExecutionLog
	if err := s.db.Where("rule_id = ? AND organization_id = ?", ruleID, orgID).
		Order("run_at DESC").
		Find(&logs).Error; err != nil {
		log.Printf("[ExportRuleLogsCSV] Error fetching logs for rule %s: %v", ruleID, err)
		return "", err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := []string{
		"run_at", "trigger_source", "triggered_by", "records_evaluated",
		"records_matched", "tasks_created", "records_skipped_duplicate",
		"status", "error_message",
	}
	if err := w.Write(header); err != nil {
		return "", fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, entry := range logs {
		row := []string{
			entry.RunAt.UTC().Format(time.RFC3339),
			entry.TriggerSource,
			entry.TriggeredBy,
			strconv.Itoa(entry.RecordsEvaluated),
			strconv.Itoa(entry.RecordsMatched),
			strconv.Itoa(entry.TasksCreated),
			strconv.Itoa(entry.RecordsSkippedDuplicate),
			entry.Status,
			entry.ErrorMessage,
		}
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("failed to flush CSV: %w", err)
	}

	bucket := os.Getenv("SUPABASE_BUCKET")
	if bucket == "" {
		log.Println("SUPABASE_BUCKET environment variable is not set")
		return "", fmt.Errorf("bucket name not configured")
	}

	objectKey := fmt.Sprintf("workflow-exports/%s/%d-rule-logs.csv", ruleID, time.Now().Unix())
	uploadInput := &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(buf.Bytes()),
		ACL:         aws.String("public-read"),
		ContentType: aws.String("text/csv"),
	}

	if _, err := s.s3Client.PutObject(uploadInput); err != nil {
		log.Printf("S3 upload error: %v", err)
		return "", fmt.Errorf("failed to upload export to S3: %w", err)
	}

	fileURL := fmt.Sprintf("%s/object/public/%s/%s", os.Getenv("SUPABASE_S3_URL"), bucket, objectKey)
	log.Printf("Log export stored at: %s", fileURL)
	return fileURL, nil
}
