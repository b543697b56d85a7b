package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for conditions callers branch on with errors.Is.
var (
	// ErrNoQuoteAvailable means every configured provider failed, none are
	// configured, or the requested amount was not positive.
	ErrNoQuoteAvailable = errors.New("no swap quote available")

	// ErrAllowanceNotReflected means the approval transaction was mined but
	// the raised allowance was not observable within the polling budget.
	// Retryable: the caller should re-invoke after a pause, not resend the
	// approval.
	ErrAllowanceNotReflected = errors.New("approval mined but allowance not updated yet, please retry")

	// ErrSessionBusy means an operation is already in flight for the session;
	// per-vault state is not safe under re-entrant calls.
	ErrSessionBusy = errors.New("session has an operation in flight")
)

// ValidationError is a caller contract violation: unsupported vault type,
// malformed input, out-of-range slippage. Never retried, surfaced verbatim.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Validationf builds a ValidationError with fmt.Sprintf semantics.
func Validationf(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// ProviderError wraps a single quote/swap provider failure. Tolerated by
// aggregation; only fatal when every provider fails.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// UnsupportedChainError means no zap router/spender is configured for the
// vault's chain.
type UnsupportedChainError struct {
	ChainID string
}

func (e *UnsupportedChainError) Error() string {
	return fmt.Sprintf("no zap router configured for chain %s", e.ChainID)
}

// ChainReadError is a failed contract read, fatal to the current pipeline
// stage. Op names the failing operation.
type ChainReadError struct {
	Op  string
	Err error
}

func (e *ChainReadError) Error() string {
	return fmt.Sprintf("chain read %s: %v", e.Op, e.Err)
}

func (e *ChainReadError) Unwrap() error { return e.Err }

// ChainWriteError is a failed contract write, fatal to the current pipeline
// stage. Op names the failing operation.
type ChainWriteError struct {
	Op  string
	Err error
}

func (e *ChainWriteError) Error() string {
	return fmt.Sprintf("chain write %s: %v", e.Op, e.Err)
}

func (e *ChainWriteError) Unwrap() error { return e.Err }

// BatchError tags a failure with the vault that produced it, so a multi-vault
// batch can surface the failing vault distinctly from the error message.
type BatchError struct {
	VaultID string
	Err     error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("vault %s: %v", e.VaultID, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }
