package common

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInternal     = errors.New("internal error")
	ErrDatabase     = errors.New("database error")
	ErrValidation   = errors.New("validation failed")
)

// Extraction engine errors
var (
	ErrDuplicateTopic    = errors.New("duplicate topic")
	ErrTopicNotFound     = errors.New("topic not found")
	ErrInvalidMode       = errors.New("invalid parse mode")
	ErrInvalidStrategy   = errors.New("invalid parse strategy")
	ErrMalformedResponse = errors.New("malformed model response")
	ErrSessionNotFound   = errors.New("session not found")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// gRPC error helpers
func InvalidArgumentError(message string) error {
	return status.Error(codes.InvalidArgument, message)
}

func NotFoundError(message string) error {
	return status.Error(codes.NotFound, message)
}

func InternalError(message string) error {
	return status.Error(codes.Internal, message)
}

// ToStatusError maps domain errors onto gRPC status codes at the transport edge.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidMode),
		errors.Is(err, ErrInvalidStrategy), errors.Is(err, ErrValidation),
		errors.Is(err, ErrDuplicateTopic):
		return InvalidArgumentError(err.Error())
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrTopicNotFound), errors.Is(err, ErrSessionNotFound):
		return NotFoundError(err.Error())
	default:
		return InternalError(err.Error())
	}
}

func InvalidArgumentErrorf(format string, args ...any) error {
	return InvalidArgumentError(fmt.Sprintf(format, args...))
}

func InternalErrorf(format string, args ...any) error {
	return InternalError(fmt.Sprintf(format, args...))
}
