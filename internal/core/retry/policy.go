package retry

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/markdave123-py/examvault/internal/metrics"
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy retries transient failures of external calls with exponential backoff
// plus jitter. The delay before retry n (0-based) is BaseDelay*2^n + rand*MaxJitter.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxJitter   time.Duration

	sleep     SleepFunc
	rand      func() float64
	limiter   *rate.Limiter
	transient func(error) bool
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

type Option func(*Policy)

func WithSleep(fn SleepFunc) Option { return func(p *Policy) { p.sleep = fn } }

// WithRand sets the jitter source. fn must return values in [0, 1).
func WithRand(fn func() float64) Option { return func(p *Policy) { p.rand = fn } }

// WithLimiter throttles every attempt, including the first.
func WithLimiter(l *rate.Limiter) Option { return func(p *Policy) { p.limiter = l } }

func WithClassifier(fn func(error) bool) Option { return func(p *Policy) { p.transient = fn } }

func WithLogger(l *zap.Logger) Option { return func(p *Policy) { p.logger = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(p *Policy) { p.metrics = m } }

func New(maxAttempts int, baseDelay, maxJitter time.Duration, opts ...Option) *Policy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	p := &Policy{
		MaxAttempts: maxAttempts,
		BaseDelay:   baseDelay,
		MaxJitter:   maxJitter,
		sleep:       contextSleep,
		rand:        rand.Float64,
		transient:   IsTransient,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Do runs fn until it succeeds, fails with a non-transient error, or the
// attempts are exhausted. The last error is returned unchanged.
func (p *Policy) Do(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	started := time.Now()
	var err error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if p.limiter != nil {
			if werr := p.limiter.Wait(ctx); werr != nil {
				if err == nil {
					err = werr
				}
				break
			}
		}

		err = fn(ctx)
		if err == nil || !p.transient(err) || attempt == p.MaxAttempts-1 {
			break
		}

		delay := p.Backoff(attempt)
		p.logger.Warn("transient external error, retrying",
			zap.String("operation", operation),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", p.MaxAttempts),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		p.metrics.Retry(operation)
		if serr := p.sleep(ctx, delay); serr != nil {
			break
		}
	}
	p.metrics.ObserveExternal(operation, started, err)
	return err
}

// Backoff returns the delay applied after the given failed attempt.
func (p *Policy) Backoff(attempt int) time.Duration {
	d := p.BaseDelay << uint(attempt)
	if p.MaxJitter > 0 {
		d += time.Duration(p.rand() * float64(p.MaxJitter))
	}
	return d
}

// Run is Do for calls that return a value.
func Run[T any](ctx context.Context, p *Policy, operation string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, operation, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func contextSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TransientError marks an error as safe to retry.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err signals unavailability, overload, rate
// limiting or a network timeout.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return transientHTTPStatus(gerr.Code)
	}

	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		switch st.Code() {
		case codes.Unavailable, codes.ResourceExhausted:
			return true
		default:
			return false
		}
	}

	// Only typed signals count. Error text often embeds caller data such as
	// URLs, so it is never matched.
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

func transientHTTPStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusServiceUnavailable
}
