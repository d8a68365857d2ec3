package loom

import (
	"github.com/pkg/errors"

	"github.com/AnatoleLucet/loom/internal"
)

type (
	ContractError     = internal.ContractError
	ContractErrorCode = internal.ContractErrorCode
	HostError         = internal.HostError
)

const (
	ErrCodeHookOrder                = internal.ErrCodeHookOrder
	ErrCodeHookKind                 = internal.ErrCodeHookKind
	ErrCodeTooManyRerenders         = internal.ErrCodeTooManyRerenders
	ErrCodeHookOutsideRender        = internal.ErrCodeHookOutsideRender
	ErrCodeUpdateOnUnmounted        = internal.ErrCodeUpdateOnUnmounted
	ErrCodeMaxUpdateDepth           = internal.ErrCodeMaxUpdateDepth
	ErrCodeSuspendedWithoutBoundary = internal.ErrCodeSuspendedWithoutBoundary
)

// IsContractError reports whether err is a ContractError with code.
func IsContractError(err error, code ContractErrorCode) bool {
	return internal.IsContractError(err, code)
}

// IsHostError reports whether err was raised by the host backend.
func IsHostError(err error) bool {
	var he *HostError
	return asError(err, &he)
}

func asError(err error, target any) bool {
	return err != nil && errors.As(err, target)
}
