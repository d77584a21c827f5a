package parser

import (
	"fmt"

	"pest-diagnosis-service/prompts"
)

// MalformedResponseError means the backend answered but broke the schema contract.
// No partially populated result is ever returned alongside it.
type MalformedResponseError struct {
	Kind   prompts.Kind
	Reason string
	Err    error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed %s response: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed %s response: %s", e.Kind, e.Reason)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

func malformed(kind prompts.Kind, reason string, err error) error {
	return &MalformedResponseError{Kind: kind, Reason: reason, Err: err}
}
