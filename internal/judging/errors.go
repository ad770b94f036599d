package judging

import (
	"errors"
	"fmt"
	"time"
)

// Kind groups error codes by how a caller should react.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindValidation   Kind = "validation"
	KindUnauthorized Kind = "unauthorized"
)

type Code string

const (
	CodeNotFound                         Code = "not_found"
	CodeLockNotFound                     Code = "lock_not_found"
	CodeAlreadyLocked                    Code = "already_locked"
	CodeDuplicateScore                   Code = "duplicate_score"
	CodeDuplicateAssignment              Code = "duplicate_assignment"
	CodeInvalidTransition                Code = "invalid_transition"
	CodeCannotReassignCompleted          Code = "cannot_reassign_completed"
	CodeCannotDeclareConflictOnCompleted Code = "cannot_declare_conflict_on_completed"
	CodeAssignmentNotReviewable          Code = "assignment_not_reviewable"
	CodeOutOfRange                       Code = "out_of_range"
	CodeMissingComments                  Code = "missing_comments"
	CodeCapacityExceeded                 Code = "capacity_exceeded"
	CodeJudgeInactive                    Code = "judge_inactive"
	CodeInvalidInput                     Code = "invalid_input"
	CodeNotOwner                         Code = "not_owner"
)

var codeKinds = map[Code]Kind{
	CodeNotFound:                         KindNotFound,
	CodeLockNotFound:                     KindNotFound,
	CodeAlreadyLocked:                    KindConflict,
	CodeDuplicateScore:                   KindConflict,
	CodeDuplicateAssignment:              KindConflict,
	CodeInvalidTransition:                KindConflict,
	CodeCannotReassignCompleted:          KindConflict,
	CodeCannotDeclareConflictOnCompleted: KindConflict,
	CodeAssignmentNotReviewable:          KindConflict,
	CodeOutOfRange:                       KindValidation,
	CodeMissingComments:                  KindValidation,
	CodeCapacityExceeded:                 KindValidation,
	CodeJudgeInactive:                    KindValidation,
	CodeInvalidInput:                     KindValidation,
	CodeNotOwner:                         KindUnauthorized,
}

// Sentinels for errors.Is; matching compares codes only, so a detailed
// *Error returned by a manager matches the sentinel of the same code.
var (
	ErrNotFound                         = sentinel(CodeNotFound, "not found")
	ErrLockNotFound                     = sentinel(CodeLockNotFound, "no active lock")
	ErrAlreadyLocked                    = sentinel(CodeAlreadyLocked, "application is locked by another judge")
	ErrDuplicateScore                   = sentinel(CodeDuplicateScore, "score already submitted")
	ErrDuplicateAssignment              = sentinel(CodeDuplicateAssignment, "judge already assigned to application")
	ErrInvalidTransition                = sentinel(CodeInvalidTransition, "invalid status transition")
	ErrCannotReassignCompleted          = sentinel(CodeCannotReassignCompleted, "completed assignments cannot be reassigned")
	ErrCannotDeclareConflictOnCompleted = sentinel(CodeCannotDeclareConflictOnCompleted, "cannot declare conflict on a completed assignment")
	ErrAssignmentNotReviewable          = sentinel(CodeAssignmentNotReviewable, "assignment is not open for scoring")
	ErrOutOfRange                       = sentinel(CodeOutOfRange, "criterion out of range")
	ErrMissingComments                  = sentinel(CodeMissingComments, "comments are required")
	ErrCapacityExceeded                 = sentinel(CodeCapacityExceeded, "judge is at capacity")
	ErrJudgeInactive                    = sentinel(CodeJudgeInactive, "judge is not active")
	ErrInvalidInput                     = sentinel(CodeInvalidInput, "invalid input")
	ErrNotOwner                         = sentinel(CodeNotOwner, "caller does not own the resource")
)

// Holder describes the judge currently holding a lock.
type Holder struct {
	LockID           string    `json:"lock_id"`
	JudgeID          string    `json:"judge_id"`
	UserID           string    `json:"user_id,omitempty"`
	LockType         LockType  `json:"lock_type"`
	ExpiresAt        time.Time `json:"expires_at"`
	RemainingSeconds int64     `json:"remaining_seconds"`
}

func holderOf(l Lock, now time.Time) *Holder {
	return &Holder{
		LockID:           l.ID,
		JudgeID:          l.JudgeID,
		UserID:           l.UserID,
		LockType:         l.LockType,
		ExpiresAt:        l.ExpiresAt,
		RemainingSeconds: int64(l.Remaining(now) / time.Second),
	}
}

// Error is the typed failure returned by every judging operation.
type Error struct {
	Code    Code    `json:"error"`
	Kind    Kind    `json:"kind"`
	Message string  `json:"message"`
	Field   string  `json:"field,omitempty"`
	Holder  *Holder `json:"holder,omitempty"`
	Status  Status  `json:"status,omitempty"`
	Err     error   `json:"-"`
}

func sentinel(code Code, msg string) *Error {
	return &Error{Code: code, Kind: codeKinds[code], Message: msg}
}

func newError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Kind: codeKinds[code], Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// KindOf returns the kind of a judging error, or "" for anything else.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// CodeOf returns the code of a judging error, or "" for anything else.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
