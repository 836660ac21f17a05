// internal/services/errors.go
package services

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure a service can return so the HTTP layer
// can map it without inspecting message text.
type ErrorKind string

const (
	KindNotFound                     ErrorKind = "NOT_FOUND"
	KindValidation                   ErrorKind = "VALIDATION_ERROR"
	KindMalformedDocument            ErrorKind = "MALFORMED_DOCUMENT"
	KindUnsupportedFileType          ErrorKind = "UNSUPPORTED_FILE_TYPE"
	KindUnknownCertificateCode       ErrorKind = "UNKNOWN_CERTIFICATE_CODE"
	KindCertificateAlreadyUsed       ErrorKind = "CERTIFICATE_ALREADY_USED"
	KindCodeMismatch                 ErrorKind = "CODE_MISMATCH"
	KindNoCurrentCertificate         ErrorKind = "NO_CURRENT_CERTIFICATE"
	KindImmediateCertificateRequired ErrorKind = "IMMEDIATE_CERTIFICATE_REQUIRED"
	KindInvalidEvaluationState       ErrorKind = "INVALID_EVALUATION_STATE"
	KindInternal                     ErrorKind = "INTERNAL_ERROR"
)

type ServiceError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// ErrorCode and PublicMessage let the HTTP layer render the error without
// importing this package.
func (e *ServiceError) ErrorCode() string {
	return string(e.Kind)
}

func (e *ServiceError) PublicMessage() string {
	return e.Message
}

func newError(kind ErrorKind, format string, args ...interface{}) *ServiceError {
	return &ServiceError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func internalError(message string, err error) *ServiceError {
	return &ServiceError{Kind: KindInternal, Message: message, Err: err}
}

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) ErrorKind {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
