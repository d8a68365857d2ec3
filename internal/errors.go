package internal

import (
	"fmt"

	"github.com/pkg/errors"
)

// ContractErrorCode categorizes misuse of the engine by render units.
type ContractErrorCode string

const (
	// ErrCodeHookOrder indicates a render called a different number of state
	// cells than the previous render of the same node.
	ErrCodeHookOrder ContractErrorCode = "HOOK_ORDER"

	// ErrCodeHookKind indicates a state cell was read as a different hook kind
	// than the one that created it.
	ErrCodeHookKind ContractErrorCode = "HOOK_KIND"

	ErrCodeTooManyRerenders ContractErrorCode = "TOO_MANY_RERENDERS"

	// ErrCodeHookOutsideRender indicates a hook was called with a scope that is
	// not currently rendering.
	ErrCodeHookOutsideRender ContractErrorCode = "HOOK_OUTSIDE_RENDER"

	ErrCodeUpdateOnUnmounted ContractErrorCode = "UPDATE_ON_UNMOUNTED"

	// ErrCodeMaxUpdateDepth indicates commit callbacks kept scheduling
	// synchronous updates.
	ErrCodeMaxUpdateDepth ContractErrorCode = "MAX_UPDATE_DEPTH"

	ErrCodeSuspendedWithoutBoundary ContractErrorCode = "SUSPENDED_WITHOUT_BOUNDARY"
)

// ContractError is raised when a render unit breaks one of the engine's
// usage rules. It is routed like any other render error.
type ContractError struct {
	Code      ContractErrorCode
	Component string
	Message   string
}

func (e *ContractError) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("%s: %s (component=%s)", e.Code, e.Message, e.Component)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func contractError(code ContractErrorCode, node *Node, format string, args ...any) *ContractError {
	return &ContractError{
		Code:      code,
		Component: node.componentName(),
		Message:   fmt.Sprintf(format, args...),
	}
}

// IsContractError reports whether err wraps a ContractError with the given code.
func IsContractError(err error, code ContractErrorCode) bool {
	var ce *ContractError
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}

// Waitable is anything a render unit can suspend on. The callback runs once
// when the value settles, possibly on another goroutine.
type Waitable interface {
	OnSettle(fn func())
}

// SuspendError is the value a render unit returns to suspend on w.
type SuspendError struct {
	Waitable Waitable
}

func (e *SuspendError) Error() string {
	return "render suspended"
}

func asSuspend(err error) (*SuspendError, bool) {
	var se *SuspendError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// HostError wraps a failure reported by the host backend. Host errors are not
// routed to boundaries; they abort the pass and reach the caller.
type HostError struct {
	Op   string
	Node string
	Err  error
}

func (e *HostError) Error() string {
	return fmt.Sprintf("host %s %s: %v", e.Op, e.Node, e.Err)
}

func (e *HostError) Unwrap() error {
	return e.Err
}

func hostError(err error, op string, node *Node) error {
	if err == nil {
		return nil
	}
	return errors.WithStack(&HostError{Op: op, Node: node.String(), Err: err})
}

func isHostError(err error) bool {
	var he *HostError
	return errors.As(err, &he)
}

// errorFromPanic converts a recovered panic value into an error.
func errorFromPanic(r any) error {
	switch v := r.(type) {
	case *ContractError, *SuspendError:
		return v.(error)
	case error:
		return errors.WithStack(v)
	default:
		return errors.Errorf("panic: %v", v)
	}
}
