package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gateway-fm/cyclebot/pkg/types"
)

// recordingSleeper records requested waits without sleeping.
type recordingSleeper struct {
	waits []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return ctx.Err()
}

func newTestExecutor(p Policy, s *recordingSleeper) *Executor {
	return New(Config{Policy: p, Sleep: s.Sleep})
}

// flakyOp fails the first failures calls with msg and then succeeds.
func flakyOp(failures int, msg string, calls *int) func(context.Context) (types.OperationResult, error) {
	return func(ctx context.Context) (types.OperationResult, error) {
		*calls++
		if *calls <= failures {
			return types.OperationResult{}, errors.New(msg)
		}
		return types.Success("0xabc"), nil
	}
}

func TestExecute_SucceedsAfterFailures(t *testing.T) {
	s := &recordingSleeper{}
	e := newTestExecutor(Policy{MaxRetries: 5, Backoff: time.Second}, s)

	calls := 0
	res, err := e.Execute(context.Background(), "wrap", flakyOp(3, "nonce too low", &calls))

	require.NoError(t, err)
	assert.Equal(t, types.StatusSuccess, res.Status)
	assert.Equal(t, "0xabc", res.TxHash)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []time.Duration{time.Second, time.Second, time.Second}, s.waits)
}

func TestExecute_ExhaustedReturnsErrorResult(t *testing.T) {
	s := &recordingSleeper{}
	e := newTestExecutor(Policy{MaxRetries: 2, Backoff: time.Second}, s)

	calls := 0
	res, err := e.Execute(context.Background(), "stake", flakyOp(100, "rpc timeout", &calls))

	require.NoError(t, err)
	assert.Equal(t, types.OperationResult{Status: types.StatusError, Message: "rpc timeout"}, res)
	assert.Equal(t, 3, calls)
	assert.Len(t, s.waits, 2, "no backoff after the final attempt")
}

func TestExecute_ExhaustedPropagates(t *testing.T) {
	s := &recordingSleeper{}
	e := newTestExecutor(Policy{MaxRetries: 4, Backoff: 5 * time.Second, OnExhausted: Propagate}, s)

	calls := 0
	res, err := e.Execute(context.Background(), "vault-deposit", flakyOp(100, "insufficient funds", &calls))

	require.Error(t, err)
	var exhausted *RetryExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 5, exhausted.Attempts)
	assert.Equal(t, "vault-deposit", exhausted.Operation)
	assert.EqualError(t, exhausted.Unwrap(), "insufficient funds")
	assert.Equal(t, types.StatusError, res.Status)
	assert.Equal(t, "insufficient funds", res.Message)
	assert.Equal(t, 5, calls)
	assert.Len(t, s.waits, 4)
	for _, w := range s.waits {
		assert.Equal(t, 5*time.Second, w)
	}
}

func TestExecute_MinedFailureIsNotRetried(t *testing.T) {
	s := &recordingSleeper{}
	e := newTestExecutor(Policy{MaxRetries: 5, Backoff: time.Second}, s)

	calls := 0
	res, err := e.Execute(context.Background(), "unstake", func(ctx context.Context) (types.OperationResult, error) {
		calls++
		return types.Failed("0xdead"), nil
	})

	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, res.Status)
	assert.Equal(t, 1, calls)
	assert.Empty(t, s.waits)
}

func TestExecute_ZeroRetries(t *testing.T) {
	s := &recordingSleeper{}
	e := newTestExecutor(Policy{MaxRetries: 0}, s)

	calls := 0
	res, err := e.Execute(context.Background(), "op", flakyOp(1, "boom", &calls))

	require.NoError(t, err)
	assert.Equal(t, types.StatusError, res.Status)
	assert.Equal(t, 1, calls)
	assert.Empty(t, s.waits)
}

func TestExecute_NegativeRetriesClamped(t *testing.T) {
	e := New(Config{Policy: Policy{MaxRetries: -3}, Sleep: (&recordingSleeper{}).Sleep})
	assert.Equal(t, 0, e.Policy().MaxRetries)
	assert.Equal(t, 0, e.WithPolicy(Policy{MaxRetries: -1}).Policy().MaxRetries)
}

func TestExecute_AttemptDependentBackoff(t *testing.T) {
	s := &recordingSleeper{}
	e := newTestExecutor(Policy{
		MaxRetries:  3,
		BackoffFunc: func(attempt int) time.Duration { return time.Duration(attempt) * 100 * time.Millisecond },
	}, s)

	calls := 0
	_, err := e.Execute(context.Background(), "op", flakyOp(3, "x", &calls))

	require.NoError(t, err)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond}, s.waits)
}

func TestExecute_OnAttemptHook(t *testing.T) {
	var attempts []Attempt
	e := New(Config{
		Policy:    Policy{MaxRetries: 2},
		Sleep:     (&recordingSleeper{}).Sleep,
		OnAttempt: func(a Attempt) { attempts = append(attempts, a) },
	})

	calls := 0
	_, _ = e.Execute(context.Background(), "op", flakyOp(100, "x", &calls))

	require.Len(t, attempts, 3)
	assert.Equal(t, 1, attempts[0].Number)
	assert.False(t, attempts[1].Final)
	assert.True(t, attempts[2].Final)
}

func TestExecute_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	e := New(Config{
		Policy: Policy{MaxRetries: 5, Backoff: time.Hour},
		Sleep: func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		},
	})

	calls := 0
	res, err := e.Execute(ctx, "op", flakyOp(100, "x", &calls))

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, types.StatusError, res.Status)
	assert.Equal(t, 1, calls)
}

func TestDo_Generic(t *testing.T) {
	s := &recordingSleeper{}
	e := newTestExecutor(Policy{MaxRetries: 2, Backoff: time.Millisecond}, s)

	calls := 0
	v, err := Do(context.Background(), e, "balance", func(ctx context.Context) (int, error) {
		calls++
		if calls < 2 {
			return 0, errors.New("temporary")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	_, err = Do(context.Background(), e, "balance", func(ctx context.Context) (int, error) {
		return 0, errors.New("down")
	})
	var exhausted *RetryExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
}

func TestSleep(t *testing.T) {
	require.NoError(t, Sleep(context.Background(), 0))
	require.NoError(t, Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
}

func TestExhaustPolicy_String(t *testing.T) {
	assert.Equal(t, "return-result", ReturnResult.String())
	assert.Equal(t, "propagate", Propagate.String())
	assert.Equal(t, "ExhaustPolicy(7)", ExhaustPolicy(7).String())
}
