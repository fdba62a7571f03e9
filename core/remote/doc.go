// Package remote provides the Admin GraphQL API client shared by the sync
// pipeline.
//
// It wraps net/http with the headers, timeouts, and response envelope the
// Admin API expects, and exposes a small Client interface so the pipeline can
// be tested against scripted fakes.
//
// # Components
//
//   - Client / HTTPClient: query(document, variables) -> {data, errors}
//   - QueryError + Classify: structured error-code classification with
//     message-substring fallback (access denied, throttled, transient)
//   - CollectAll: cursor pagination until a collection is exhausted
//
// The client never retries by itself; retry policy belongs to core/retry and
// the calling stage.
package remote
