package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/kds/internal/snapshot"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Check failed (recovery not reproducible, etc.)
	ExitCommandError = 2 // Command error (bad config, unreadable data dir, etc.)
)

// Error codes carried in the JSON error envelope.
const (
	CodeCommand         = "E_COMMAND"
	CodeFailed          = "E_FAILED"
	CodeIntegrity       = "E_INTEGRITY"
	CodeNotReproducible = "E_NOT_REPRODUCIBLE"
)

var errNotReproducible = errors.New("recovery is not reproducible")

// ExitError carries the process exit code for a failed command.
// Reported is set when the command already printed its own result.
type ExitError struct {
	Code     int
	Message  string
	Err      error
	Reported bool
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

// ErrorCode classifies err for the envelope. Damaged snapshots win over
// the exit code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, errNotReproducible):
		return CodeNotReproducible
	case errors.Is(err, snapshot.ErrIntegrity), errors.Is(err, snapshot.ErrNoUsableSnapshot):
		return CodeIntegrity
	case GetExitCode(err) == ExitCommandError:
		return CodeCommand
	default:
		return CodeFailed
	}
}

// OutputFormatter writes command results as text or as a JSON envelope.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // diagnostics; defaults to Writer
	Verbose   bool
}

// CLIResponse is the JSON envelope of every command.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError is the error half of the envelope.
type CLIError struct {
	Code     string `json:"code"`
	ExitCode int    `json:"exit_code"`
	Message  string `json:"message"`
	Cause    string `json:"cause,omitempty"`
}

// TextWriter is implemented by results with a hand-written text form.
type TextWriter interface {
	WriteText(w io.Writer) error
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	if tw, ok := data.(TextWriter); ok {
		return tw.WriteText(f.Writer)
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Fail reports err unless the command already reported it. JSON goes to
// Writer; text goes to the diagnostics writer.
func (f *OutputFormatter) Fail(err error) error {
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Reported {
		return nil
	}

	cliErr := &CLIError{
		Code:     ErrorCode(err),
		ExitCode: GetExitCode(err),
		Message:  err.Error(),
	}
	if exitErr != nil && exitErr.Err != nil {
		cliErr.Message = exitErr.Message
		cliErr.Cause = exitErr.Err.Error()
	}

	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "error", Error: cliErr})
	}

	w := f.GetErrWriter()
	if _, err := fmt.Fprintf(w, "Error [%s]: %s\n", cliErr.Code, cliErr.Message); err != nil {
		return err
	}
	if cliErr.Cause != "" && f.Verbose {
		_, err := fmt.Fprintf(w, "Cause: %s\n", cliErr.Cause)
		return err
	}
	return nil
}

// VerboseLog writes a diagnostic line in verbose mode. It goes to ErrWriter
// when set so JSON output stays parseable.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
