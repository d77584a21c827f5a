package service

import (
	"errors"
	"strings"

	"pest-diagnosis-service/llm"
	"pest-diagnosis-service/parser"

	"github.com/go-playground/validator/v10"
)

// Issue is one field-level validation failure.
type Issue struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// ValidationError is returned before any backend call when the input is unusable.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Message()
}

// Message joins the issue messages into one human-readable line.
func (e *ValidationError) Message() string {
	msgs := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		msgs = append(msgs, is.Message)
	}
	return strings.Join(msgs, "; ")
}

func (e *ValidationError) add(field, rule, message string) {
	e.Issues = append(e.Issues, Issue{Field: field, Rule: rule, Message: message})
}

func (e *ValidationError) orNil() error {
	if len(e.Issues) == 0 {
		return nil
	}
	return e
}

func fromValidator(err error) *ValidationError {
	ve := &ValidationError{}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		ve.add("", "invalid", err.Error())
		return ve
	}
	for _, fe := range fieldErrs {
		field := fe.Namespace()
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}
		ve.add(field, fe.Tag(), issueMessage(field, fe))
	}
	return ve
}

func issueMessage(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "datetime":
		return field + " must be a date in YYYY-MM-DD format"
	case "oneof":
		return field + " must be one of: " + fe.Param()
	default:
		return field + " is invalid"
	}
}

// outcome labels an operation result for metrics and logs.
func outcome(err error) string {
	var (
		ve *ValidationError
		te *llm.TransportError
		me *parser.MalformedResponseError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &ve):
		return "validation_error"
	case errors.As(err, &te):
		return "transport_error"
	case errors.As(err, &me):
		return "malformed_response"
	default:
		return "error"
	}
}
