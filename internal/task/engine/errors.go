package engine

import "errors"

var (
	ErrStopped     = errors.New("task engine stopped")
	ErrQueueFull   = errors.New("task engine queue full")
	ErrOverlapSkip = errors.New("task skipped: previous run still in flight")
)

type outcome uint8

const (
	outcomePermanent outcome = iota + 1
	outcomeSkipped
)

// classified tags a task error with how the worker must treat it.
type classified struct {
	kind outcome
	err  error
}

func (e classified) Error() string {
	if e.kind == outcomeSkipped {
		return "skipped: " + e.err.Error()
	}
	return "permanent: " + e.err.Error()
}

func (e classified) Unwrap() error { return e.err }

// NoRetry marks err as permanent: the run fails without further attempts.
func NoRetry(err error) error {
	if err == nil {
		return nil
	}
	return classified{kind: outcomePermanent, err: err}
}

// Skipped marks a run that did no work for an expected reason, such as a
// cycle already owned by another caller. It is recorded in history but is
// neither retried nor reported as a failure.
func Skipped(reason error) error {
	if reason == nil {
		return nil
	}
	return classified{kind: outcomeSkipped, err: reason}
}

func IsNoRetry(err error) bool { return is(err, outcomePermanent) }
func IsSkipped(err error) bool { return is(err, outcomeSkipped) }

func is(err error, k outcome) bool {
	var c classified
	return errors.As(err, &c) && c.kind == k
}

// cause strips the classification.
func cause(err error) error {
	var c classified
	if errors.As(err, &c) {
		return c.err
	}
	return err
}
