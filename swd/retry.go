package swd

import "time"

// Retry is the bounded-retry combinator called for by §9's design note:
// it re-invokes op up to bound times, stopping as soon as op reports
// done. An exponential backoff between attempts is the common case, so
// the backoff is a parameter rather than hardcoded so both the WAIT-ACK
// retry (§4.1) and the S_HALT/S_REGRDY/power-up-ACK poll loops (§4.4,
// §4.2) can share one implementation.
//
// op returns (done, err). done==true with err==nil ends the retry
// successfully; done==true with err!=nil ends it with a fatal,
// non-retryable error; done==false keeps retrying until bound is
// exhausted. backoff may be nil to retry with no delay (the WAIT-ACK
// retry in dap.go does this).
func Retry(bound int, backoff func(attempt int) time.Duration, op func(attempt int) (bool, error)) error {
	var lastErr error

	for attempt := 0; attempt < bound; attempt++ {
		done, err := op(attempt)
		if done {
			return err
		}
		lastErr = err

		if backoff != nil {
			time.Sleep(backoff(attempt))
		}
	}

	return lastErr
}

// RetryBackoff is a 1<<attempt millisecond backoff, reused for every
// poll loop in this package.
func RetryBackoff(attempt int) time.Duration {
	return (1 << uint(attempt)) * time.Millisecond
}
