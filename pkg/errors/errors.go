package errors

import (
	stdErrors "errors"
	"fmt"
)

type Code string

const (
	CodeConfig     Code = "CONFIG_ERROR"
	CodeConnection Code = "CONNECTION_ERROR"
	CodeStage      Code = "STAGE_FAILED"
	CodeBatch      Code = "BATCH_FAILED"
	CodeRowWrite   Code = "ROW_WRITE_FAILED"
	CodeLocked     Code = "LOCK_HELD"
	CodeInternal   Code = "INTERNAL_ERROR"
)

// Metadata describes how the loader reacts to an error class.
type Metadata struct {
	// Fatal errors end the run; non-fatal ones are recovered where they occur.
	Fatal     bool
	Retryable bool
	Summary   string
}

var metadataByCode = map[Code]Metadata{
	CodeConfig: {
		Fatal:     true,
		Retryable: false,
		Summary:   "invalid configuration",
	},
	CodeConnection: {
		Fatal:     true,
		Retryable: true,
		Summary:   "database unreachable",
	},
	CodeStage: {
		Fatal:     true,
		Retryable: true,
		Summary:   "load stage failed",
	},
	CodeBatch: {
		Fatal:     true,
		Retryable: true,
		Summary:   "fact batch rolled back",
	},
	CodeRowWrite: {
		Fatal:     false,
		Retryable: false,
		Summary:   "row write failed",
	},
	CodeLocked: {
		Fatal:     false,
		Retryable: true,
		Summary:   "another loader holds the lock",
	},
	CodeInternal: {
		Fatal:     true,
		Retryable: false,
		Summary:   "internal error",
	},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsFatal reports whether err should terminate the run. Untyped errors are fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	typed := As(err)
	if typed == nil {
		return true
	}
	return MetadataFor(typed.Code()).Fatal
}
