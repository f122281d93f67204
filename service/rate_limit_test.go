package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	assert.True(t, rl.Allow("runs"))
	assert.True(t, rl.Allow("runs"))
	assert.False(t, rl.Allow("runs"))
	// Keys are budgeted independently.
	assert.True(t, rl.Allow("other"))
}

// The execution limiter sits on the API-facing entry points and refuses
// before anything touches the database. Batch and scheduled runs go through
// the internal core, which carries no check.
func TestExecutionLimiterGatesRequestEntriesOnly(t *testing.T) {
	original := executionRateLimiter
	executionRateLimiter = NewRateLimiter(0, time.Minute)
	defer func() { executionRateLimiter = original }()

	// Nil collaborators: a denied request must not reach the rule lookup.
	s := &WorkflowService{}

	_, err := s.ExecuteRule("rule1", "org1", "user-9", "manual")
	assert.ErrorContains(t, err, "rate limit exceeded")

	_, err = s.ExecuteAllRules("org1", "user-9", "manual")
	assert.ErrorContains(t, err, "rate limit exceeded")
}
