package services

import (
	"regexp"
	"strings"
	"time"
)

// templateVarPattern matches {{variable}} placeholders in subject and
// description templates.
var templateVarPattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// ReplaceTemplateVars substitutes {{variable}} placeholders from data.
// Unknown variables become the empty string rather than an error, so a
// malformed template never blocks task creation.
func ReplaceTemplateVars(template string, data map[string]string) string {
	if template == "" {
		return ""
	}

	return templateVarPattern.ReplaceAllStringFunc(template, func(match string) string {
		varName := strings.TrimSpace(strings.Trim(match, "{}"))
		return data[varName]
	})
}

// FormatTemplateDate renders a date the way task subjects show it, e.g. "Mar 5, 2025".
func FormatTemplateDate(date *time.Time) string {
	if date == nil {
		return ""
	}
	return date.Format("Jan 2, 2006")
}

// DaysUntil returns whole calendar days from today until date. Negative for
// past dates.
func DaysUntil(date *time.Time, now time.Time) int {
	if date == nil {
		return 0
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	target := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, now.Location())
	return int(target.Sub(today).Hours() / 24)
}

// DeterminePriority resolves the rule's priority policy. 'auto' escalates as
// the renewal gets closer; anything else is taken as a fixed priority.
func DeterminePriority(priorityConfig string, daysRemaining int) string {
	if priorityConfig != "" && priorityConfig != "auto" {
		return priorityConfig
	}

	if daysRemaining <= 7 {
		return "high"
	}
	if daysRemaining <= 14 {
		return "medium"
	}
	return "low"
}
