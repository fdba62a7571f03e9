// Package retry provides a reusable retry-with-backoff combinator for
// remote calls.
//
// Calls are attempted a bounded number of times with exponentially growing
// delays. The combinator returns a Result carrying the attempt count next to
// the final error, so callers can record the failure against a single entity
// and keep processing siblings.
package retry
