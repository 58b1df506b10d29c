package contracts

import "errors"

// Error taxonomy for the scan/entry/monitor pipeline. Callers compare
// with errors.Is; producers wrap these with fmt.Errorf and %w to attach
// symbol and operation context.
var (
	// ErrDataUnavailable: a fundamental, bar or option-chain lookup
	// failed for one symbol. The symbol is skipped and the batch
	// continues.
	ErrDataUnavailable = errors.New("market data unavailable")

	// ErrInsufficientHistory: fewer daily bars than the indicators
	// require. The symbol is skipped for this cycle.
	ErrInsufficientHistory = errors.New("insufficient bar history")

	// ErrNoQualifyingCandidate: a signal produced no spread that passes
	// every filter. A normal no-trade outcome, not a failure.
	ErrNoQualifyingCandidate = errors.New("no qualifying spread candidate")

	// ErrExecutionFailure: order submission failed or was rejected.
	// Retried a bounded number of times, then the candidate is
	// abandoned for the day.
	ErrExecutionFailure = errors.New("order execution failed")

	// ErrGatewayUnavailable: the execution gateway is unreachable. The
	// scheduler holds its current state without advancing the run date;
	// the monitor pauses polling and re-evaluates on resume.
	ErrGatewayUnavailable = errors.New("execution gateway unavailable")
)
