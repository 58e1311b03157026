package capability

import (
	"context"
	"errors"
	"math"
	"time"
)

// Policy bounds one capability call.
type Policy struct {
	Timeout     time.Duration // per attempt; zero means no extra deadline
	MaxAttempts int
	Backoff     time.Duration // doubled after every failed attempt
}

// DefaultPolicy is used for capabilities without an explicit policy.
var DefaultPolicy = Policy{
	Timeout:     30 * time.Second,
	MaxAttempts: 1,
}

// Recorder receives per-call observations.
type Recorder interface {
	RecordCapabilityCall(capability string, retries int, errorType string, latencySeconds float64)
}

// Runner applies per-capability timeout and retry policies.
type Runner struct {
	policies map[Name]Policy
	recorder Recorder
}

// NewRunner creates a Runner. recorder may be nil.
func NewRunner(policies map[Name]Policy, recorder Recorder) *Runner {
	if policies == nil {
		policies = map[Name]Policy{}
	}
	return &Runner{policies: policies, recorder: recorder}
}

// Policy returns the policy for name.
func (r *Runner) Policy(name Name) Policy {
	if r == nil {
		return DefaultPolicy
	}
	p, ok := r.policies[name]
	if !ok {
		return DefaultPolicy
	}
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	return p
}

// Do runs fn inside the boundary of capability name. Any error that escapes is
// a *Failure; an error that already is a *Failure passes through unchanged.
func Do[T any](ctx context.Context, r *Runner, name Name, fn func(ctx context.Context) (T, error)) (T, error) {
	policy := r.Policy(name)
	start := time.Now()

	var (
		zero     T
		lastErr  error
		attempts int
	)
	for attempts = 1; attempts <= policy.MaxAttempts; attempts++ {
		v, err := runAttempt(ctx, policy.Timeout, fn)
		if err == nil {
			r.record(name, attempts-1, "", time.Since(start))
			return v, nil
		}
		if f, ok := AsFailure(err); ok {
			r.record(name, attempts-1, f.ErrorType(), time.Since(start))
			return zero, err
		}
		lastErr = err

		if isPermanent(err) || ctx.Err() != nil || attempts == policy.MaxAttempts {
			break
		}
		wait := time.Duration(math.Pow(2, float64(attempts-1))) * policy.Backoff
		if err := sleep(ctx, wait); err != nil {
			lastErr = errors.Join(lastErr, err)
			break
		}
	}
	if attempts > policy.MaxAttempts {
		attempts = policy.MaxAttempts
	}

	failure := &Failure{Capability: name, Attempts: attempts, Err: unwrapPermanent(lastErr)}
	r.record(name, attempts-1, failure.ErrorType(), time.Since(start))
	return zero, failure
}

func runAttempt[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	v, err := fn(ctx)
	if err != nil && ctx.Err() != nil && !errors.Is(err, ctx.Err()) {
		err = errors.Join(ctx.Err(), err)
	}
	return v, err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func unwrapPermanent(err error) error {
	var p *permanentError
	if errors.As(err, &p) && p == err {
		return p.err
	}
	return err
}

func (r *Runner) record(name Name, retries int, errorType string, elapsed time.Duration) {
	if r == nil || r.recorder == nil {
		return
	}
	r.recorder.RecordCapabilityCall(string(name), retries, errorType, elapsed.Seconds())
}
