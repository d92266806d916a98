package credential

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("credential not found")

// Acquirer fetches an external credential. It is independent of session
// state and may have side effects, so callers invoke it once per run.
type Acquirer interface {
	Acquire(ctx context.Context) (string, error)
}

type AcquirerFunc func(ctx context.Context) (string, error)

func (f AcquirerFunc) Acquire(ctx context.Context) (string, error) {
	return f(ctx)
}

type Options struct {
	URL         string
	CookieName  string
	Bin         string
	Headless    bool
	SettleDelay time.Duration
	Timeout     time.Duration
}

func DefaultOptions() Options {
	return Options{
		URL:         "https://www.instagram.com",
		CookieName:  "sessionid",
		Headless:    true,
		SettleDelay: 5 * time.Second,
		Timeout:     30 * time.Second,
	}
}
