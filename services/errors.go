package services

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// ErrorKind classifies user-facing failures of the team services.
type ErrorKind string

const (
	KindPermission ErrorKind = "permission"
	KindPhase      ErrorKind = "phase"
	KindValidation ErrorKind = "validation"
	KindNotFound   ErrorKind = "not_found"
)

// Error is a recoverable failure the caller should show to the user.
// A mutation that returns an Error has not changed anything.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error of the same kind, so sentinel values such as
// ErrPermission work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// Sentinels for errors.Is checks against a kind.
var (
	ErrPermission = &Error{Kind: KindPermission}
	ErrPhase      = &Error{Kind: KindPhase}
	ErrValidation = &Error{Kind: KindValidation}
	ErrNotFound   = &Error{Kind: KindNotFound}
)

func PermissionError(msg string) *Error {
	return &Error{Kind: KindPermission, Message: msg}
}

func PhaseError(msg string) *Error {
	return &Error{Kind: KindPhase, Message: msg}
}

func ValidationError(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

func NotFoundError(entity string) *Error {
	return &Error{Kind: KindNotFound, Message: entity + " not found"}
}

func IsPermission(err error) bool { return errorKind(err) == KindPermission }
func IsPhase(err error) bool      { return errorKind(err) == KindPhase }
func IsValidation(err error) bool { return errorKind(err) == KindValidation }
func IsNotFound(err error) bool   { return errorKind(err) == KindNotFound }

// KindOf returns the kind of err, or "" for internal errors.
func KindOf(err error) ErrorKind {
	return errorKind(err)
}

func errorKind(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// normalize maps storage errors onto the service taxonomy. duplicateMsg is
// the validation message for unique constraint violations and defaults to
// "<entity> already exists"; entity names the record for not-found errors.
func normalize(err error, entity, duplicateMsg string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &Error{Kind: KindNotFound, Message: entity + " not found", Cause: err}
	}
	if isDuplicate(err) {
		if duplicateMsg == "" {
			duplicateMsg = entity + " already exists"
		}
		return &Error{Kind: KindValidation, Message: duplicateMsg, Cause: err}
	}
	return fmt.Errorf("%s: %w", entity, err)
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// Drivers that do not translate errors.
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "duplicate entry")
}
