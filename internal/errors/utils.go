package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Wrap wraps an error with additional context, creating a ReactiveError if
// the input is not already one.
func Wrap(err error, errType ErrorType, code, message string) *ReactiveError {
	if err == nil {
		return nil
	}

	var re *ReactiveError
	if errors.As(err, &re) {
		return &ReactiveError{
			Type:        errType,
			Code:        code,
			Message:     message,
			Cause:       re,
			Context:     re.Context,
			Store:       re.Store,
			Path:        re.Path,
			Recoverable: re.Recoverable,
		}
	}

	return &ReactiveError{
		Type:        errType,
		Code:        code,
		Message:     message,
		Cause:       err,
		Recoverable: errType == ErrorTypeValidation || errType == ErrorTypeNetwork,
	}
}

// WrapValidation wraps an error as a validation error
func WrapValidation(err error, code, message string) *ReactiveError {
	return Wrap(err, ErrorTypeValidation, code, message)
}

// WrapIO wraps an error as an I/O error
func WrapIO(err error, code, message string) *ReactiveError {
	re := Wrap(err, ErrorTypeIO, code, message)
	if re != nil {
		re.Recoverable = false
	}
	return re
}

// WrapConfig wraps an error as a configuration error
func WrapConfig(err error, code, message string) *ReactiveError {
	re := Wrap(err, ErrorTypeConfig, code, message)
	if re != nil {
		re.Recoverable = false
	}
	return re
}

// FormatError formats an error for user display. Suggestions carried by a
// validation error, or by the fields of a collected validation failure, are
// listed below the message.
func FormatError(err error) string {
	if err == nil {
		return ""
	}

	var suggestions []string
	var ve ValidationError
	if errors.As(err, &ve) {
		suggestions = ve.Suggestions()
	} else if re, ok := AsReactive(err); ok {
		fields := make([]string, 0, len(re.Context))
		for field := range re.Context {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		for _, field := range fields {
			entry, _ := re.Context[field].(map[string]interface{})
			hints, _ := entry["suggestions"].([]string)
			for _, hint := range hints {
				suggestions = append(suggestions, field+": "+hint)
			}
		}
	}
	if len(suggestions) == 0 {
		return err.Error()
	}

	var b strings.Builder
	b.WriteString(err.Error())
	b.WriteString("\n\nSuggestions:")
	for _, s := range suggestions {
		fmt.Fprintf(&b, "\n  • %s", s)
	}
	return b.String()
}

// GetErrorContext flattens a ReactiveError into loggable fields.
func GetErrorContext(err error) map[string]interface{} {
	var re *ReactiveError
	if !errors.As(err, &re) {
		return map[string]interface{}{
			"message": err.Error(),
			"type":    "unknown",
		}
	}

	context := make(map[string]interface{}, len(re.Context)+5)
	for k, v := range re.Context {
		context[k] = v
	}
	if re.Store != "" {
		context["store"] = re.Store
	}
	if re.Path != "" {
		context["path"] = re.Path
	}
	context["type"] = string(re.Type)
	context["code"] = re.Code
	context["recoverable"] = re.Recoverable
	return context
}

// AsReactive returns the first ReactiveError in err's chain.
func AsReactive(err error) (*ReactiveError, bool) {
	var re *ReactiveError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// CombineErrors combines multiple errors into a single error with context
func CombineErrors(errs ...error) error {
	var nonNil []error
	for _, err := range errs {
		if err != nil {
			nonNil = append(nonNil, err)
		}
	}
	switch len(nonNil) {
	case 0:
		return nil
	case 1:
		return nonNil[0]
	}

	messages := make([]string, len(nonNil))
	for i, err := range nonNil {
		messages[i] = err.Error()
	}

	return &ReactiveError{
		Type:    ErrorTypeInternal,
		Code:    "ERR_MULTIPLE_ERRORS",
		Message: fmt.Sprintf("multiple errors occurred: %d errors", len(nonNil)),
		Context: map[string]interface{}{
			"error_count": len(nonNil),
			"errors":      messages,
		},
		Cause: errors.Join(nonNil...),
	}
}
