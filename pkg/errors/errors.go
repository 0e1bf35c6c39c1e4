package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors for common error cases
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrAuthenticationFailed is the only authentication error a client ever sees
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrForbidden indicates the user doesn't have permission for this action
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidInput indicates the provided input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidSSHKey indicates a stored SSH key could not be parsed
	ErrInvalidSSHKey = errors.New("invalid ssh key")

	// ErrUnknownChannelType indicates a channel type other than "session" was requested
	ErrUnknownChannelType = errors.New("unknown channel type")

	// ErrMalformedRequest indicates an SSH request payload could not be decoded
	ErrMalformedRequest = errors.New("malformed request")

	// ErrCommandNotAllowed indicates an exec command outside the git transport whitelist
	ErrCommandNotAllowed = errors.New("command not allowed")

	// ErrInvalidRepoPath indicates a repository path that is not owner/repo
	ErrInvalidRepoPath = errors.New("invalid repository path")

	// ErrRepositoryPathMissing indicates the repository directory is absent on disk
	ErrRepositoryPathMissing = errors.New("repository path missing")

	// ErrGitExecution indicates the git subprocess failed
	ErrGitExecution = errors.New("git execution failed")

	// ErrHostKey indicates a host key could not be loaded or persisted
	ErrHostKey = errors.New("host key error")

	// ErrStorageError indicates a storage operation failed
	ErrStorageError = errors.New("storage error")

	// ErrConfigError indicates a configuration error
	ErrConfigError = errors.New("configuration error")

	// ErrDatabaseError indicates a database operation failed
	ErrDatabaseError = errors.New("database error")
)

// Kind classifies an AppError for logging and exit status decisions
type Kind string

const (
	KindAuthentication Kind = "authentication"
	KindProtocol       Kind = "protocol"
	KindCommand        Kind = "command"
	KindNotFound       Kind = "not_found"
	KindForbidden      Kind = "forbidden"
	KindExecution      Kind = "execution"
	KindHostKey        Kind = "host_key"
	KindStorage        Kind = "storage"
	KindDatabase       Kind = "database"
	KindInternal       Kind = "internal"
)

// AppError represents an application-level error with additional context
type AppError struct {
	Kind    Kind
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails adds additional details to the error
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

// NewAppError creates a new AppError with the given kind, message, and underlying error
func NewAppError(kind Kind, message string, err error) *AppError {
	return &AppError{
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// NotFound creates a new not found error
func NotFound(resource string, err error) *AppError {
	return NewAppError(KindNotFound, fmt.Sprintf("%s not found", resource), err)
}

// Forbidden creates a new forbidden error
func Forbidden(message string, err error) *AppError {
	if message == "" {
		message = "access denied"
	}
	if err == nil {
		err = ErrForbidden
	}
	return NewAppError(KindForbidden, message, err)
}

// ProtocolError creates an SSH protocol conformance error
func ProtocolError(message string, err error) *AppError {
	return NewAppError(KindProtocol, message, err)
}

// CommandRejected creates an error for a disallowed command or malformed argument
func CommandRejected(message string, err error) *AppError {
	return NewAppError(KindCommand, message, err)
}

// ExecutionError creates a new git execution error
func ExecutionError(operation string, err error) *AppError {
	return NewAppError(KindExecution, fmt.Sprintf("git %s failed", operation), err)
}

// HostKeyError creates a new host key error
func HostKeyError(operation string, err error) *AppError {
	return NewAppError(KindHostKey, fmt.Sprintf("host key %s failed", operation), err)
}

// StorageError creates a new storage error
func StorageError(operation string, err error) *AppError {
	return NewAppError(KindStorage, fmt.Sprintf("storage %s failed", operation), err)
}

// DatabaseError creates a new database error
func DatabaseError(operation string, err error) *AppError {
	return NewAppError(KindDatabase, fmt.Sprintf("database %s failed", operation), err)
}

// InternalError creates a new internal error
func InternalError(message string, err error) *AppError {
	if message == "" {
		message = "an internal error occurred"
	}
	return NewAppError(KindInternal, message, err)
}

// KindOf returns the kind of the first AppError in err's chain, or KindInternal
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Kind == KindNotFound {
		return true
	}
	return errors.Is(err, ErrNotFound)
}

// IsAuthentication checks if an error is an authentication failure
func IsAuthentication(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Kind == KindAuthentication {
		return true
	}
	return errors.Is(err, ErrAuthenticationFailed)
}

// IsForbidden checks if an error is a forbidden error
func IsForbidden(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Kind == KindForbidden {
		return true
	}
	return errors.Is(err, ErrForbidden)
}

// IsCommandRejected checks if an error came from command or path validation
func IsCommandRejected(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Kind == KindCommand {
		return true
	}
	return errors.Is(err, ErrCommandNotAllowed) || errors.Is(err, ErrInvalidRepoPath)
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target any) bool {
	return errors.As(err, target)
}
