// Package retry provides the bounded retry executor every adapter submission
// goes through.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gateway-fm/cyclebot/pkg/types"
)

// ExhaustPolicy selects what happens when every attempt has failed.
type ExhaustPolicy int

const (
	// ReturnResult converts exhaustion into an Error result and a nil error.
	ReturnResult ExhaustPolicy = iota
	// Propagate returns an Error result together with a *RetryExhaustedError.
	Propagate
)

func (p ExhaustPolicy) String() string {
	switch p {
	case ReturnResult:
		return "return-result"
	case Propagate:
		return "propagate"
	default:
		return fmt.Sprintf("ExhaustPolicy(%d)", int(p))
	}
}

// RetryExhaustedError is returned under the Propagate policy once all attempts
// have failed.
type RetryExhaustedError struct {
	Operation string
	Attempts  int
	Err       error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Operation, e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Err
}

// Policy configures one call site.
type Policy struct {
	MaxRetries  int           // retries after the first attempt
	Backoff     time.Duration // fixed wait between attempts
	OnExhausted ExhaustPolicy

	// BackoffFunc, if set, overrides Backoff. attempt is 1-based and refers to
	// the attempt that just failed.
	BackoffFunc func(attempt int) time.Duration
}

// DefaultPolicy returns five retries with a fixed one second backoff.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:  5,
		Backoff:     time.Second,
		OnExhausted: ReturnResult,
	}
}

func (p Policy) backoff(attempt int) time.Duration {
	if p.BackoffFunc != nil {
		return p.BackoffFunc(attempt)
	}
	return p.Backoff
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the default Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Attempt describes one failed attempt, passed to the OnAttempt hook.
type Attempt struct {
	Operation string
	Number    int // 1-based
	Err       error
	Final     bool
}

// Config for creating an Executor.
type Config struct {
	Policy    Policy
	Sleep     Sleeper       // default: Sleep
	OnAttempt func(Attempt) // optional, called after every failed attempt
	Logger    *slog.Logger
}

// Executor runs fallible operations with bounded retries.
type Executor struct {
	policy    Policy
	sleep     Sleeper
	onAttempt func(Attempt)
	logger    *slog.Logger
}

// New creates a new Executor.
func New(cfg Config) *Executor {
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	policy := cfg.Policy
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}

	return &Executor{
		policy:    policy,
		sleep:     sleep,
		onAttempt: cfg.OnAttempt,
		logger:    logger,
	}
}

// Policy returns the executor's policy.
func (e *Executor) Policy() Policy {
	return e.policy
}

// WithPolicy returns a copy of the executor using p.
func (e *Executor) WithPolicy(p Policy) *Executor {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	cp := *e
	cp.policy = p
	return &cp
}

// Execute invokes op up to MaxRetries+1 times. A nil error from op ends the
// loop and its result is returned as is, including Failed and NoBalance.
//
// On exhaustion the result is Error carrying the last failure's message; the
// returned error depends on the policy. Context cancellation stops retrying
// and returns ctx.Err().
func (e *Executor) Execute(ctx context.Context, name string, op func(ctx context.Context) (types.OperationResult, error)) (types.OperationResult, error) {
	res, err := Do(ctx, e, name, op)
	if err == nil {
		return res, nil
	}

	if ctx.Err() != nil {
		return types.ErrorResult(err.Error()), ctx.Err()
	}

	exhausted, ok := err.(*RetryExhaustedError)
	if !ok {
		return types.ErrorResult(err.Error()), err
	}

	result := types.ErrorResult(exhausted.Err.Error())
	if e.policy.OnExhausted == Propagate {
		return result, exhausted
	}
	return result, nil
}

// Do invokes op up to MaxRetries+1 times and returns its first successful
// value. On exhaustion it returns a *RetryExhaustedError regardless of the
// executor's ExhaustPolicy.
func Do[T any](ctx context.Context, e *Executor, name string, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	maxAttempts := e.policy.MaxRetries + 1

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		v, err := op(ctx)
		if err == nil {
			if attempt > 1 {
				e.logger.Debug("Operation succeeded after retry",
					slog.String("operation", name),
					slog.Int("attempt", attempt),
				)
			}
			return v, nil
		}
		lastErr = err

		final := attempt == maxAttempts
		if e.onAttempt != nil {
			e.onAttempt(Attempt{Operation: name, Number: attempt, Err: err, Final: final})
		}
		if final {
			break
		}

		backoff := e.policy.backoff(attempt)
		e.logger.Warn("Operation failed, retrying",
			slog.String("operation", name),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", maxAttempts),
			slog.Duration("backoff", backoff),
			slog.String("error", err.Error()),
		)

		if err := e.sleep(ctx, backoff); err != nil {
			return zero, err
		}
	}

	e.logger.Warn("Operation failed, retries exhausted",
		slog.String("operation", name),
		slog.Int("attempts", maxAttempts),
		slog.String("error", lastErr.Error()),
	)
	return zero, &RetryExhaustedError{Operation: name, Attempts: maxAttempts, Err: lastErr}
}
