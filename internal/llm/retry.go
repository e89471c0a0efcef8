package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	errs "github.com/smeltapp/smeltd/internal/errors"
)

// callSpec describes one provider operation to the shared retry loop.
type callSpec struct {
	op       string
	failKind errs.Kind
	timeout  time.Duration
	build    func(ctx context.Context) (*http.Request, error)
	parse    func(data []byte) (*CallResult, error)
}

// attemptOutcome carries the classification of one attempt back to the loop.
type attemptOutcome struct {
	result    *CallResult
	err       *errs.PipelineError
	retryable bool
	// delay overrides the exponential schedule when the provider supplied a
	// Retry-After hint.
	delay    time.Duration
	hasDelay bool
}

// do runs the retry loop: up to MaxRetries retries after the initial attempt.
// Transport failures and 5xx responses follow the exponential schedule; 429
// honors Retry-After when present; 401/403 and other 4xx fail immediately.
func (c *Client) do(ctx context.Context, spec callSpec) (*CallResult, error) {
	attempts := c.cfg.MaxRetries + 1

	var last *errs.PipelineError
	for attempt := 0; attempt < attempts; attempt++ {
		out := c.attempt(ctx, spec)
		if out.err == nil {
			return out.result, nil
		}
		last = out.err

		if !out.retryable || attempt == attempts-1 {
			break
		}

		wait := c.backoff(attempt)
		if out.hasDelay {
			wait = out.delay
		}
		c.logger.WarnContext(ctx, "provider call failed, retrying",
			"op", spec.op,
			"attempt", attempt+1,
			"wait", wait.String(),
			"kind", string(out.err.Kind),
		)
		if serr := c.sleep(ctx, wait); serr != nil {
			return nil, errs.Classify(serr)
		}
	}

	return nil, last
}

// attempt performs one HTTP exchange under its own timeout and classifies the
// outcome.
func (c *Client) attempt(ctx context.Context, spec callSpec) attemptOutcome {
	actx, cancel := context.WithTimeout(ctx, spec.timeout)
	defer cancel()

	req, err := spec.build(actx)
	if err != nil {
		return attemptOutcome{err: errs.Wrap(errs.KindInternal, "Could not build the provider request.", err)}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.classifyTransport(ctx, actx, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.DebugContext(ctx, "close provider response body", "error", cerr)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	if err != nil {
		return attemptOutcome{
			err:       errs.Wrap(errs.KindConnectionLost, "Lost connection while reading the provider response.", err),
			retryable: true,
		}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		result, parseErr := spec.parse(body)
		if parseErr != nil {
			return attemptOutcome{err: errs.Wrap(spec.failKind, "The provider returned an unreadable response.", parseErr)}
		}
		return attemptOutcome{result: result}
	}

	return c.classifyStatus(spec, resp, body)
}

func (c *Client) classifyTransport(ctx, actx context.Context, err error) attemptOutcome {
	switch {
	case ctx.Err() != nil:
		// The caller's context ended; do not retry on its behalf.
		return attemptOutcome{err: errs.Classify(ctx.Err())}
	case errors.Is(actx.Err(), context.DeadlineExceeded):
		return attemptOutcome{
			err:       errs.Wrap(errs.KindProviderUnavailable, "The processing service timed out.", err),
			retryable: true,
		}
	default:
		return attemptOutcome{
			err:       errs.Wrap(errs.KindConnectionLost, "Could not reach the processing service.", err),
			retryable: true,
		}
	}
}

func (c *Client) classifyStatus(spec callSpec, resp *http.Response, body []byte) attemptOutcome {
	apiMsg, apiCode := decodeAPIError(body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return attemptOutcome{err: errs.New(errs.KindInvalidCredentials,
			"The API credential was rejected. Check your settings.")}

	case resp.StatusCode == http.StatusTooManyRequests:
		if apiCode == "insufficient_quota" {
			// Out of quota is not transient, so it never retries.
			return attemptOutcome{err: errs.New(errs.KindQuotaExhausted,
				"The account has run out of processing quota.")}
		}
		out := attemptOutcome{
			err:       errs.New(errs.KindRateLimited, "The processing service is busy. Please try again shortly."),
			retryable: true,
		}
		if d, ok := parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()); ok {
			out.delay = d
			out.hasDelay = true
		}
		return out

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		msg := "The provider rejected the request."
		if apiMsg != "" {
			msg = apiMsg
		}
		return attemptOutcome{err: errs.Wrap(spec.failKind, msg,
			fmt.Errorf("provider returned %d", resp.StatusCode))}

	default:
		return attemptOutcome{
			err: errs.Wrap(errs.KindProviderUnavailable,
				"The processing service is unavailable. Please try again.",
				fmt.Errorf("provider returned %d", resp.StatusCode)),
			retryable: true,
		}
	}
}

func decodeAPIError(body []byte) (message, code string) {
	var payload apiError
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", ""
	}
	return payload.Error.Message, payload.Error.Code
}

// backoff computes base * 2^attempt plus up to one base of jitter, capped at
// the configured maximum.
func (c *Client) backoff(attempt int) time.Duration {
	base := c.cfg.RetryBaseDelay
	d := base << uint(attempt)
	if d > c.cfg.RetryMaxDelay || d <= 0 {
		d = c.cfg.RetryMaxDelay
	}
	jitter := time.Duration(c.randFloat() * float64(base))
	if d+jitter > c.cfg.RetryMaxDelay {
		return c.cfg.RetryMaxDelay
	}
	return d + jitter
}
