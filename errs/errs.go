// Package errs defines the runtime-wide error taxonomy (spec §7). Every
// public operation in the core reports either success or one of the typed
// errors declared here; nothing crosses an API boundary as a panic except
// for genuine programmer mistakes (a type assertion on a value the caller
// was already responsible for validating).
package errs

import "fmt"

// Kind classifies a runtime error into one of the families from §7. Kind
// values are stable and safe to switch on; new values may be appended but
// existing ones are never renumbered.
type Kind int

const (
	// Resource errors.
	OutOfMemory Kind = iota
	OutOfSlots
	OutOfStack

	// Handle/Type errors.
	InvalidHandle
	SlotNotFound
	TypeMismatch
	StaleGeneration

	// Security errors.
	InvalidToken
	TokenExpired
	PermissionDenied
	HardwareMismatch
	CryptographyFailed
	ReplayAttack
	InsufficientEntropy
	ContextNotInitialized
	ThreadViolation

	// Concurrency errors.
	Cancelled
	Timeout
	ChannelClosed
	Full
	Empty

	// Scheduler errors.
	SchedulerNotFound
	FiberCreateFailed

	// Dispatch errors.
	RoleInstanceMissing
	JoinStrategyUnsatisfied
)

var kindNames = [...]string{
	"out of memory", "out of slots", "out of stack",
	"invalid handle", "slot not found", "type mismatch", "stale generation",
	"invalid token", "token expired", "permission denied", "hardware mismatch",
	"cryptography failed", "replay attack", "insufficient entropy", "security context not initialized",
	"thread violation",
	"cancelled", "timeout", "channel closed", "full", "empty",
	"scheduler not found", "fiber create failed",
	"role instance missing", "join strategy unsatisfied",
}

// String returns the human-readable name of the error kind.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Error is the concrete error type returned by every runtime operation that
// fails. Op names the operation that failed (e.g. "SlotManager.Write"); Err,
// when non-nil, wraps an underlying cause so errors.Is/errors.As still see
// through to it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

// Unwrap lets errors.Is/errors.As traverse into the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a *Error with the same Kind, so that
// errors.Is(err, errs.New(errs.SlotNotFound, "", nil)) works without the
// caller needing to match Op or Err.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New constructs an *Error for the given kind and operation, optionally
// wrapping a lower-level cause.
func New(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// sentinel returns a zero-value *Error of the given kind, suitable for use
// with errors.Is.
func sentinel(k Kind) *Error { return &Error{Kind: k} }

// Sentinels for errors.Is comparisons against a bare kind, e.g.:
//
//	if errors.Is(err, errs.ErrSlotNotFound) { ... }
var (
	ErrOutOfMemory             = sentinel(OutOfMemory)
	ErrOutOfSlots              = sentinel(OutOfSlots)
	ErrOutOfStack              = sentinel(OutOfStack)
	ErrInvalidHandle           = sentinel(InvalidHandle)
	ErrSlotNotFound            = sentinel(SlotNotFound)
	ErrTypeMismatch            = sentinel(TypeMismatch)
	ErrStaleGeneration         = sentinel(StaleGeneration)
	ErrInvalidToken            = sentinel(InvalidToken)
	ErrTokenExpired            = sentinel(TokenExpired)
	ErrPermissionDenied        = sentinel(PermissionDenied)
	ErrHardwareMismatch        = sentinel(HardwareMismatch)
	ErrCryptographyFailed      = sentinel(CryptographyFailed)
	ErrReplayAttack            = sentinel(ReplayAttack)
	ErrInsufficientEntropy     = sentinel(InsufficientEntropy)
	ErrContextNotInitialized   = sentinel(ContextNotInitialized)
	ErrThreadViolation         = sentinel(ThreadViolation)
	ErrCancelled               = sentinel(Cancelled)
	ErrTimeout                 = sentinel(Timeout)
	ErrChannelClosed           = sentinel(ChannelClosed)
	ErrFull                    = sentinel(Full)
	ErrEmpty                   = sentinel(Empty)
	ErrSchedulerNotFound       = sentinel(SchedulerNotFound)
	ErrFiberCreateFailed       = sentinel(FiberCreateFailed)
	ErrRoleInstanceMissing     = sentinel(RoleInstanceMissing)
	ErrJoinStrategyUnsatisfied = sentinel(JoinStrategyUnsatisfied)
)
