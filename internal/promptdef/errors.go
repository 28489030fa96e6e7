package promptdef

import (
	"errors"
	"fmt"
)

// Kind classifies compiler failures.
type Kind int

const (
	KindIo Kind = iota + 1
	KindYamlParse
	KindTemplateCompile
	KindMissingField
	KindInvalidSchema
	KindUtf8
	KindValidationFailed
)

// Sentinel errors matched with errors.Is against any *Error of the same kind.
var (
	ErrIo               = errors.New("io")
	ErrYamlParse        = errors.New("yaml parse")
	ErrTemplateCompile  = errors.New("template compile")
	ErrMissingField     = errors.New("missing field")
	ErrInvalidSchema    = errors.New("invalid schema")
	ErrUtf8             = errors.New("utf-8")
	ErrValidationFailed = errors.New("validation failed")
)

func (k Kind) String() string {
	switch k {
	case KindIo:
		return "io"
	case KindYamlParse:
		return "yaml_parse"
	case KindTemplateCompile:
		return "template_compile"
	case KindMissingField:
		return "missing_field"
	case KindInvalidSchema:
		return "invalid_schema"
	case KindUtf8:
		return "utf8"
	case KindValidationFailed:
		return "validation_failed"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindIo:
		return ErrIo
	case KindYamlParse:
		return ErrYamlParse
	case KindTemplateCompile:
		return ErrTemplateCompile
	case KindMissingField:
		return ErrMissingField
	case KindInvalidSchema:
		return ErrInvalidSchema
	case KindUtf8:
		return ErrUtf8
	case KindValidationFailed:
		return ErrValidationFailed
	default:
		return nil
	}
}

// Error is the typed failure returned by every compiler stage.
type Error struct {
	Kind    Kind
	Message string
	// Field is set for KindMissingField.
	Field string
	// Line is the 1-based document line for KindYamlParse, 0 when unknown.
	Line int
	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindIo:
		return "IO error: " + e.Message
	case KindYamlParse:
		if e.Line > 0 {
			return fmt.Sprintf("YAML parse error at line %d: %s", e.Line, e.Message)
		}
		return "YAML parse error: " + e.Message
	case KindTemplateCompile:
		return "template compile error: " + e.Message
	case KindMissingField:
		return "missing required field: " + e.Field
	case KindInvalidSchema:
		return "invalid schema: " + e.Message
	case KindUtf8:
		return "UTF-8 error: " + e.Message
	case KindValidationFailed:
		return "schema validation failed: " + e.Message
	default:
		return e.Message
	}
}

// Is reports whether target is the sentinel for this error's kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return 0
}

// NewError builds an *Error of the given kind.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapError builds an *Error of the given kind carrying cause.
func WrapError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

func invalidSchema(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidSchema, Message: fmt.Sprintf(format, args...)}
}
