package llm

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"
)

const (
	DefaultMaxAttempts     = 3
	DefaultInitialInterval = time.Second
	DefaultMaxInterval     = 40 * time.Second
)

// randomExponential waits a random duration between zero and an
// exponentially growing, capped ceiling.
type randomExponential struct {
	initial time.Duration
	max     time.Duration
	attempt int

	mu  sync.Mutex
	rnd *rand.Rand
}

var _ backoff.BackOff = (*randomExponential)(nil)

func (r *randomExponential) NextBackOff() time.Duration {
	ceiling := r.initial << uint(r.attempt)
	if ceiling > r.max || ceiling <= 0 {
		ceiling = r.max
	}
	r.attempt++
	if ceiling <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return time.Duration(r.rnd.Int63n(int64(ceiling) + 1))
}

func (r *randomExponential) Reset() {
	r.attempt = 0
}

// RetryingCompleter retries failed completions with randomized exponential
// backoff. Errors that cannot succeed on retry are returned immediately.
type RetryingCompleter struct {
	completer       Completer
	maxAttempts     int
	initialInterval time.Duration
	maxInterval     time.Duration
}

var _ Completer = (*RetryingCompleter)(nil)

type RetryOption func(*RetryingCompleter)

func WithMaxAttempts(n int) RetryOption {
	return func(r *RetryingCompleter) {
		r.maxAttempts = n
	}
}

func WithIntervals(initial, max time.Duration) RetryOption {
	return func(r *RetryingCompleter) {
		r.initialInterval = initial
		r.maxInterval = max
	}
}

func NewRetryingCompleter(c Completer, options ...RetryOption) *RetryingCompleter {
	ret := &RetryingCompleter{
		completer:       c,
		maxAttempts:     DefaultMaxAttempts,
		initialInterval: DefaultInitialInterval,
		maxInterval:     DefaultMaxInterval,
	}
	for _, o := range options {
		o(ret)
	}
	if ret.maxAttempts < 1 {
		ret.maxAttempts = 1
	}
	return ret
}

func (r *RetryingCompleter) Complete(ctx context.Context, req *Request) (*Response, error) {
	var resp *Response
	attempts := 0

	op := func() error {
		attempts++
		var err error
		resp, err = r.completer.Complete(ctx, req)
		if err == nil {
			return nil
		}
		if IsPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := &randomExponential{
		initial: r.initialInterval,
		max:     r.maxInterval,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.maxAttempts-1)), ctx)

	err := backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		log.Warn().Err(err).
			Int("attempt", attempts).
			Dur("wait", wait).
			Msg("completion failed, retrying")
	})
	if err != nil {
		return nil, &CompletionError{Attempts: attempts, Err: err}
	}
	return resp, nil
}

// IsPermanent reports whether err is not worth retrying: cancelled contexts
// and client errors other than rate limiting.
func IsPermanent(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, ErrNoChoices) {
		return false
	}

	status := 0
	var apiErr *go_openai.APIError
	var reqErr *go_openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	return status >= 400 && status < 500 && status != 429
}
