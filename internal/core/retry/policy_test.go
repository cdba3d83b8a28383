package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type fakeClock struct {
	sleeps []time.Duration
}

func (f *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	f.sleeps = append(f.sleeps, d)
	return nil
}

var errDownloadFailed = errors.New("download failed")

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func newTestPolicy(attempts int, clock *fakeClock) *Policy {
	return New(attempts, 100*time.Millisecond, 50*time.Millisecond,
		WithSleep(clock.Sleep),
		WithRand(func() float64 { return 0.5 }),
	)
}

func TestDoRetriesTransientThenSucceeds(t *testing.T) {
	clock := &fakeClock{}
	p := newTestPolicy(5, clock)

	calls := 0
	err := p.Do(context.Background(), "embed", func(context.Context) error {
		calls++
		if calls < 3 {
			return &googleapi.Error{Code: 503, Message: "model overloaded"}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{125 * time.Millisecond, 225 * time.Millisecond}, clock.sleeps)
}

func TestDoFailsFastOnNonTransient(t *testing.T) {
	clock := &fakeClock{}
	p := newTestPolicy(5, clock)

	boom := errors.New("invalid argument")
	calls := 0
	err := p.Do(context.Background(), "generate", func(context.Context) error {
		calls++
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
	assert.Empty(t, clock.sleeps)
}

func TestDoReturnsLastErrorAfterExhaustion(t *testing.T) {
	clock := &fakeClock{}
	p := newTestPolicy(3, clock)

	calls := 0
	err := p.Do(context.Background(), "embed", func(context.Context) error {
		calls++
		return Transient(fmt.Errorf("attempt %d", calls))
	})

	require.Error(t, err)
	assert.Equal(t, "attempt 3", err.Error())
	assert.Equal(t, 3, calls)
	assert.Len(t, clock.sleeps, 2)
}

func TestDoStopsWhenSleepIsInterrupted(t *testing.T) {
	p := New(5, time.Second, 0, WithSleep(func(ctx context.Context, _ time.Duration) error {
		return context.Canceled
	}))

	calls := 0
	err := p.Do(context.Background(), "embed", func(context.Context) error {
		calls++
		return Transient(errors.New("unavailable"))
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoDoesNotRetryPermanentErrorMentioningStatusCodes(t *testing.T) {
	clock := &fakeClock{}
	p := newTestPolicy(5, clock)

	calls := 0
	err := p.Do(context.Background(), "download", func(context.Context) error {
		calls++
		return fmt.Errorf("%w: https://exams.example/cs-2429.pdf returned 404", errDownloadFailed)
	})

	assert.ErrorIs(t, err, errDownloadFailed)
	assert.Equal(t, 1, calls)
	assert.Empty(t, clock.sleeps)
}

func TestRunReturnsValue(t *testing.T) {
	clock := &fakeClock{}
	p := newTestPolicy(2, clock)

	calls := 0
	v, err := Run(context.Background(), p, "embed", func(context.Context) ([]float32, error) {
		calls++
		if calls == 1 {
			return nil, status.Error(codes.ResourceExhausted, "quota")
		}
		return []float32{1, 2}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, v)
}

func TestBackoffDoubles(t *testing.T) {
	p := New(5, time.Second, 0)
	assert.Equal(t, time.Second, p.Backoff(0))
	assert.Equal(t, 2*time.Second, p.Backoff(1))
	assert.Equal(t, 8*time.Second, p.Backoff(3))
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"marked", Transient(errors.New("x")), true},
		{"googleapi 429", &googleapi.Error{Code: 429}, true},
		{"googleapi 503", fmt.Errorf("wrap: %w", &googleapi.Error{Code: 503}), true},
		{"googleapi 400", &googleapi.Error{Code: 400}, false},
		{"grpc unavailable", status.Error(codes.Unavailable, "down"), true},
		{"grpc invalid", status.Error(codes.InvalidArgument, "bad"), false},
		{"status text is not a signal", errors.New("server returned 503 UNAVAILABLE"), false},
		{"url with 429 in it", fmt.Errorf("%w: https://exams.example/cs-2429.pdf returned 404", errDownloadFailed), false},
		{"net timeout", fmt.Errorf("fetch: %w", timeoutError{}), true},
		{"grpc exhausted", status.Error(codes.ResourceExhausted, "quota"), true},
		{"canceled", context.Canceled, false},
		{"plain", errors.New("bad pdf"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}
