package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/roach88/bman/internal/docpack"
	"github.com/roach88/bman/internal/lock"
	"github.com/roach88/bman/internal/schema"
	"github.com/roach88/bman/internal/workflow"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Apply failed, or the decision is not complete under --strict
	ExitCommandError = 2 // Command error (unreadable doc pack, invalid flags, etc.)
)

// Error codes carried in the JSON error envelope.
const (
	ErrCodeGeneric       = "E001" // Generic/unknown error
	ErrCodeNotFound      = "E005" // Path not found
	ErrCodeLockMissing   = "E010" // No lock; run validate
	ErrCodeStale         = "E011" // Lock or plan stale
	ErrCodeApplyFailed   = "E020" // Apply aborted; nothing published
	ErrCodeSchemaInvalid = "E030" // An artifact failed its schema
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)

	reported bool // already written through an OutputFormatter
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Reported reports whether err was already written to the user, so the
// caller need not print it again.
func Reported(err error) bool {
	var exitErr *ExitError
	return errors.As(err, &exitErr) && exitErr.reported
}

// ErrorCode classifies err for the error envelope.
func ErrorCode(err error) string {
	var se *schema.ValidationError
	switch {
	case errors.Is(err, workflow.ErrLockMissing):
		return ErrCodeLockMissing
	case workflow.IsStale(err):
		return ErrCodeStale
	case errors.As(err, &se):
		return ErrCodeSchemaInvalid
	case docpack.IsNotExist(err), lock.IsMissingInput(err):
		return ErrCodeNotFound
	default:
		return ErrCodeGeneric
	}
}

// OutputFormatter handles text, JSON and YAML output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard structured response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "E001", "E005", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Structured reports whether the format is machine readable.
func (f *OutputFormatter) Structured() bool {
	return f.Format == "json" || f.Format == "yaml"
}

// Success outputs a successful result in the configured format. In text
// format data is printed with fmt; commands usually print their own text.
func (f *OutputFormatter) Success(data any) error {
	if f.Structured() {
		return f.encode(CLIResponse{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Structured() {
		return f.encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	// Human-readable error
	fmt.Fprintf(f.GetErrWriter(), "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.GetErrWriter(), "Details: %v\n", details)
	}
	return nil
}

// Fail reports err and returns it as an ExitError with the given exit code.
func (f *OutputFormatter) Fail(exitCode int, err error) error {
	return f.FailCode(exitCode, ErrorCode(err), err)
}

// FailCode is Fail with an explicit error code.
func (f *OutputFormatter) FailCode(exitCode int, code string, err error) error {
	var details any
	var se *schema.ValidationError
	if errors.As(err, &se) {
		details = se.Issues
	}
	_ = f.Error(code, err.Error(), details)
	e := WrapExitError(exitCode, code, err)
	e.reported = true
	return e
}

// encode writes v as indented JSON, or as YAML with the JSON field names
// and order.
func (f *OutputFormatter) encode(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if f.Format == "json" {
		_, err = f.Writer.Write(append(data, '\n'))
		return err
	}
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return fmt.Errorf("convert output to yaml: %w", err)
	}
	plainStyle(&node)
	enc := yaml.NewEncoder(f.Writer)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return err
	}
	return enc.Close()
}

// plainStyle drops the flow style and quoting yaml.v3 keeps from the JSON
// source.
func plainStyle(n *yaml.Node) {
	n.Style &^= yaml.FlowStyle | yaml.DoubleQuotedStyle
	for _, c := range n.Content {
		plainStyle(c)
	}
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
