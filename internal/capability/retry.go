package capability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// #region retry-policy

// RetryPolicy bounds retries around a single capability call.
type RetryPolicy struct {
	MaxRetries  int           // retries after the first attempt
	BaseBackoff time.Duration // doubled per retry
	CallTimeout time.Duration // per-attempt deadline
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:  2,
		BaseBackoff: 500 * time.Millisecond,
		CallTimeout: 30 * time.Second,
	}
}

// transient reports whether err is retryable. Anything carrying a
// Transient() bool (e.g. *UnavailableError) qualifies.
func transient(err error) bool {
	var t interface{ Transient() bool }
	return errors.As(err, &t) && t.Transient()
}

// #endregion retry-policy

// #region retrying-searcher

// RetryingSearcher wraps a Searcher with per-call timeout and bounded
// exponential-backoff retry of transient failures.
type RetryingSearcher struct {
	inner  Searcher
	policy RetryPolicy
	log    *logrus.Entry
}

// WithSearchRetry decorates s with the given policy.
func WithSearchRetry(s Searcher, policy RetryPolicy, log *logrus.Entry) *RetryingSearcher {
	return &RetryingSearcher{inner: s, policy: policy, log: log}
}

// Search retries transient search failures before giving up.
func (r *RetryingSearcher) Search(ctx context.Context, query, courseScope string, k int) ([]SearchResult, error) {
	var results []SearchResult
	err := attempt(ctx, r.policy, r.log, "search", func(callCtx context.Context) error {
		var err error
		results, err = r.inner.Search(callCtx, query, courseScope, k)
		return err
	})
	return results, err
}

// #endregion retrying-searcher

// #region retrying-generator

// RetryingGenerator wraps a Generator with per-call timeout and bounded
// exponential-backoff retry of transient failures.
type RetryingGenerator struct {
	inner  Generator
	policy RetryPolicy
	log    *logrus.Entry
}

// WithGenerateRetry decorates g with the given policy.
func WithGenerateRetry(g Generator, policy RetryPolicy, log *logrus.Entry) *RetryingGenerator {
	return &RetryingGenerator{inner: g, policy: policy, log: log}
}

// Generate retries transient generation failures before giving up.
func (r *RetryingGenerator) Generate(ctx context.Context, prompt string, params GenerateParams) (string, error) {
	var text string
	err := attempt(ctx, r.policy, r.log, "generate", func(callCtx context.Context) error {
		var err error
		text, err = r.inner.Generate(callCtx, prompt, params)
		return err
	})
	return text, err
}

// #endregion retrying-generator

// #region attempt

func attempt(ctx context.Context, policy RetryPolicy, log *logrus.Entry, op string, fn func(context.Context) error) error {
	backoff := policy.BaseBackoff
	var lastErr error

	for i := 0; i <= policy.MaxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		callCtx := ctx
		var cancel context.CancelFunc
		if policy.CallTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, policy.CallTimeout)
		}
		err := fn(callCtx)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !transient(err) {
			return err
		}
		lastErr = err
		if log != nil {
			log.WithFields(logrus.Fields{"op": op, "attempt": i + 1}).Warnf("transient capability failure: %v", err)
		}
	}

	return fmt.Errorf("%s: retries exhausted: %w", op, lastErr)
}

// #endregion attempt
