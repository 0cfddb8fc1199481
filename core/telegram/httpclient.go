package telegram

import (
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/learnstations/stationbot/core/telegram/netutil"
)

const (
	defaultDialTimeout       = 5 * time.Second
	defaultTLSHandshake      = 5 * time.Second
	defaultIdleConnTimeout   = 30 * time.Second
	defaultClientTimeout     = 30 * time.Second
	defaultKeepAliveInterval = 30 * time.Second
	defaultRetryAttempts     = 3
	defaultRetryBackoff      = 500 * time.Millisecond
)

var errBodyNotReplayable = errors.New("telegram: request body cannot be replayed")

// BuildHTTPClient returns an HTTP client tuned for Telegram API calls.
// Long polling holds the response open, so there is no response header timeout.
func BuildHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAliveInterval}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   defaultTLSHandshake,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout: defaultClientTimeout,
		Transport: &retryTransport{
			base:     transport,
			attempts: defaultRetryAttempts,
			initial:  defaultRetryBackoff,
		},
	}
}

// retryTransport re-sends requests that failed before reaching Telegram.
type retryTransport struct {
	base     http.RoundTripper
	attempts uint
	initial  time.Duration
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}

	first := true
	op := func() (*http.Response, error) {
		curr := req
		if !first {
			curr = req.Clone(req.Context())
			if req.Body != nil {
				if req.GetBody == nil {
					return nil, backoff.Permanent(errBodyNotReplayable)
				}
				body, err := req.GetBody()
				if err != nil {
					return nil, backoff.Permanent(err)
				}
				curr.Body = body
			}
		}
		first = false

		resp, err := base.RoundTrip(curr)
		if err != nil && !netutil.ShouldRetry(err) {
			return nil, backoff.Permanent(err)
		}
		return resp, err
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = t.initial
	return backoff.Retry(req.Context(), op,
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(t.attempts),
	)
}
