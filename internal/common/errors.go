package common

import (
	"errors"
	"fmt"
	"net/http"
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

// Extraction error kinds. Callers classify with errors.Is.
var (
	ErrDecode          = errors.New("document could not be decoded")
	ErrConversion      = errors.New("document could not be converted to a page image")
	ErrRecognition     = errors.New("text recognition failed")
	ErrModelLoad       = errors.New("structured field model could not be loaded")
	ErrFieldGeneration = errors.New("field generation failed")
)

// Common application errors
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("resource not found")
	ErrDatabase     = errors.New("database error")
	ErrQueueFull    = errors.New("inference queue is full")
	ErrQueueTimeout = errors.New("timed out waiting for an inference worker")
)

// Error codes carried by AppError.Code.
const (
	CodeDecode          = "DECODE_ERROR"
	CodeConversion      = "CONVERSION_ERROR"
	CodeRecognition     = "RECOGNITION_ERROR"
	CodeModelLoad       = "MODEL_LOAD_ERROR"
	CodeFieldGeneration = "FIELD_GENERATION_ERROR"
	CodeInvalidInput    = "INVALID_INPUT"
	CodeConfig          = "CONFIG_ERROR"
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// kindError joins a sentinel kind with the underlying cause so errors.Is matches both.
func kindError(code string, kind error, message string, cause error) error {
	if cause == nil {
		return NewAppError(code, message, kind)
	}
	return NewAppError(code, message, errors.Join(kind, cause))
}

func DecodeError(message string, cause error) error {
	return kindError(CodeDecode, ErrDecode, message, cause)
}

func ConversionError(message string, cause error) error {
	return kindError(CodeConversion, ErrConversion, message, cause)
}

func RecognitionError(message string, cause error) error {
	return kindError(CodeRecognition, ErrRecognition, message, cause)
}

func ModelLoadError(message string, cause error) error {
	return kindError(CodeModelLoad, ErrModelLoad, message, cause)
}

func FieldGenerationError(message string, cause error) error {
	return kindError(CodeFieldGeneration, ErrFieldGeneration, message, cause)
}

func InvalidInputError(message string) error {
	return NewAppError(CodeInvalidInput, message, ErrInvalidInput)
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// IsSaturated reports whether err means the inference workers had no capacity.
func IsSaturated(err error) bool {
	return errors.Is(err, ErrQueueFull) || errors.Is(err, ErrQueueTimeout)
}

// IsClientError reports whether err is caused by the submitted document rather than the service.
func IsClientError(err error) bool {
	return errors.Is(err, ErrDecode) || errors.Is(err, ErrConversion) || errors.Is(err, ErrInvalidInput)
}

// HTTPStatus maps an error to the status code returned to HTTP callers.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsClientError(err):
		return http.StatusBadRequest
	case IsSaturated(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the message safe to show to callers.
func PublicMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	switch {
	case errors.Is(err, ErrQueueFull):
		return ErrQueueFull.Error()
	case errors.Is(err, ErrQueueTimeout):
		return ErrQueueTimeout.Error()
	}
	return "internal error"
}
