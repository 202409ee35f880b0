// Package errs defines the error taxonomy shared by the ledger, governor,
// cache, battle engine and scheduler.
package errs

import "errors"

var (
	// ErrConfiguration marks a fatal setup problem, e.g. an unknown pricing tier.
	ErrConfiguration = errors.New("configuration error")
	// ErrBudgetExceeded is the kill-switch signal: the daily cap has been reached.
	ErrBudgetExceeded = errors.New("budget exceeded")
	// ErrTurnGeneration aborts a single battle, never the run.
	ErrTurnGeneration = errors.New("turn generation failed")
	// ErrReferee leaves a battle without a score.
	ErrReferee = errors.New("referee failed")
	// ErrCacheVerification means a cached resource no longer exists upstream.
	ErrCacheVerification = errors.New("cache verification failed")
	// ErrLedgerWrite is alarmed but does not stop a battle.
	ErrLedgerWrite = errors.New("ledger write failed")
)

// Halts reports whether err is allowed to stop a batch run.
func Halts(err error) bool {
	return errors.Is(err, ErrConfiguration) || errors.Is(err, ErrBudgetExceeded)
}

// ExitCode maps a setup-level failure to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrConfiguration):
		return 2
	default:
		return 1
	}
}
