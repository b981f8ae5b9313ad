package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/packdb/packdb"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // The store reported the operation as failed
	ExitCommandError = 2 // Bad arguments, configuration or unknown type
	ExitStorageError = 3 // The data folder can't be read, written or locked
	ExitPoisoned     = 4 // Documents are poisoned and need repair
)

// ExitError carries the exit code a command failed with.
type ExitError struct {
	Code    int
	Message string
	Err     error
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

// GetExitCode extracts the exit code from an error. An ExitError carries its own code,
// store errors map by their packdb code and anything else is ExitFailure.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return exitCodeOf(err, ExitFailure)
}

func exitCodeOf(err error, fallback int) int {
	switch {
	case packdb.HasCode(err, packdb.RollbackPoisoned):
		return ExitPoisoned
	case packdb.HasCode(err, packdb.FileIOError),
		packdb.HasCode(err, packdb.LockAcquisitionFailure),
		packdb.HasCode(err, packdb.SerializationError):
		return ExitStorageError
	}
	return fallback
}

// Response is the JSON envelope every command prints.
type Response struct {
	Status string `json:"status"` // "ok" or "failed"
	Data   any    `json:"data,omitempty"`
}

func writeJSON(w io.Writer, ok bool, data any) error {
	r := Response{Status: "ok", Data: data}
	if !ok {
		r.Status = "failed"
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
