package services

import "errors"

// Engine-level failures surfaced to the HTTP layer. Controllers map these
// to 404/400; anything else is a 500.
var (
	ErrRuleNotFound         = errors.New("workflow rule not found")
	ErrUnknownTriggerType   = errors.New("unknown trigger type")
	ErrInvalidTriggerConfig = errors.New("invalid trigger conditions")
)
