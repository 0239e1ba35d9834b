package model

import "fmt"

// ConfigError reports malformed or incomplete configuration. It is always
// raised before any request reaches the platform.
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "config: " + e.Msg
	}
	return fmt.Sprintf("config: %s: %s", e.Field, e.Msg)
}

// NewConfigError returns a ConfigError for field with a formatted message.
func NewConfigError(field, format string, args ...interface{}) *ConfigError {
	return &ConfigError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// TemplateError reports a dashboard template that does not render to a
// JSON object.
type TemplateError struct {
	Edge EdgeID
	Err  error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("template for edge %q: %v", e.Edge, e.Err)
}

func (e *TemplateError) Unwrap() error {
	return e.Err
}

// PreconditionError reports an operation called out of order.
type PreconditionError struct {
	Op  string
	Msg string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}
