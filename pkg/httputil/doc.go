// Package httputil provides HTTP utilities shared by the dump downloader and
// the registry API client.
//
// # Overview
//
//   - [Policy]: attempt count, exponential backoff and request pacing
//   - [Retry]: executes an operation under a Policy
//   - [NewHTTPClient]: an http.Client with a DNS-caching dialer
//
// # Retry
//
// [Retry] only retries errors wrapped with [RetryableError]. Wrap transient
// failures (network errors, 5xx and 429 responses) and return everything
// else as-is:
//
//	err := httputil.Retry(ctx, httputil.DefaultPolicy(), func() error {
//	    resp, err := client.Do(req)
//	    if err != nil {
//	        return httputil.Retryable(err)
//	    }
//	    ...
//	})
//
// Tests substitute [NoDelayPolicy] to avoid sleeping.
//
// # Defaults
//
//   - Max attempts: 4
//   - Base backoff: 500ms, doubling, capped at 30s
//   - Minimum request interval: 1s
package httputil
