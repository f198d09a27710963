package core

import (
	"errors"
	"fmt"
)

// Sentinel errors for conditions callers are expected to branch on.
var (
	// ErrCycle is returned when reference resolution detects a loop
	// (A -> B -> A) or exceeds the hop limit.
	ErrCycle = errors.New("circular reference")

	// ErrPasswordRequired is returned when an encrypted object is resolved
	// without a validated password.
	ErrPasswordRequired = errors.New("password required")

	// ErrWriteInvariant is returned when an incremental write would modify
	// bytes of the original file.
	ErrWriteInvariant = errors.New("incremental write would alter existing bytes")
)

// LexError reports a malformed token at a byte offset.
type LexError struct {
	Offset int64
	Msg    string
}

func (e *LexError) Error() string {
	return fmt.Sprintf("lex error at offset %d: %s", e.Offset, e.Msg)
}

// ParseError reports a structural mismatch while building an object tree.
type ParseError struct {
	Msg   string
	Cause error
}

func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("parse error: %s: %v", e.Msg, e.Cause)
	}
	return "parse error: " + e.Msg
}

func (e *ParseError) Unwrap() error { return e.Cause }

// XRefError reports an unusable cross-reference section. The reader treats
// it as the trigger for the recovery scanner.
type XRefError struct {
	Msg   string
	Cause error
}

func (e *XRefError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("xref error: %s: %v", e.Msg, e.Cause)
	}
	return "xref error: " + e.Msg
}

func (e *XRefError) Unwrap() error { return e.Cause }

// RecoveryError reports that the recovery scanner found nothing usable.
type RecoveryError struct {
	Msg string
}

func (e *RecoveryError) Error() string {
	return "recovery failed: " + e.Msg
}

// FilterError reports an unsupported or failing stream filter. It is fatal
// for the stream it occurs on but not for the document.
type FilterError struct {
	Filter string
	Cause  error
}

func (e *FilterError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("filter %s: %v", e.Filter, e.Cause)
	}
	return fmt.Sprintf("filter %s: unsupported", e.Filter)
}

func (e *FilterError) Unwrap() error { return e.Cause }

// EncryptionError reports an unsupported or malformed encryption setup.
// A wrong password is not an EncryptionError; it surfaces as
// ErrPasswordRequired on object resolution.
type EncryptionError struct {
	Msg string
}

func (e *EncryptionError) Error() string {
	return "encryption: " + e.Msg
}
