package remote

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/feraraujofilho/prod-staging-sync-app-sub001/core/retry"
)

// PageInfo mirrors the pageInfo selection of a connection query.
type PageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

// Batch is one page of raw nodes plus the cursor state after it.
type Batch struct {
	Nodes    []json.RawMessage
	PageInfo PageInfo
}

// FetchFunc loads one page. The cursor is nil for the first request and the
// previous page's end cursor afterwards.
type FetchFunc func(ctx context.Context, cursor *string) (*Batch, error)

// CollectAll iterates a cursor-paged collection until exhausted and returns
// all nodes in page order. Throttled and transient fetch errors are retried
// with the default backoff policy; other errors surface verbatim so the
// caller can classify them.
func CollectAll(ctx context.Context, fetch FetchFunc) ([]json.RawMessage, error) {
	return CollectAllWithPolicy(ctx, retry.DefaultPolicy(), fetch)
}

// CollectAllWithPolicy is CollectAll with an explicit retry policy around
// each page fetch.
func CollectAllWithPolicy(ctx context.Context, policy retry.Policy, fetch FetchFunc) ([]json.RawMessage, error) {
	var (
		all    []json.RawMessage
		cursor *string
	)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var batch *Batch
		_, err := retry.Do(ctx, policy, IsRetryable, func(ctx context.Context) error {
			var ferr error
			batch, ferr = fetch(ctx, cursor)
			return ferr
		})
		if err != nil {
			return nil, err
		}
		if batch == nil {
			return nil, fmt.Errorf("pager: fetch returned nil batch")
		}

		all = append(all, batch.Nodes...)

		if !batch.PageInfo.HasNextPage {
			return all, nil
		}
		next := batch.PageInfo.EndCursor
		if next == "" || (cursor != nil && next == *cursor) {
			// A non-advancing cursor would loop forever.
			return nil, fmt.Errorf("pager: cursor did not advance past %q", next)
		}
		cursor = &next
	}
}

// CursorVariables builds the standard first/after variable map for a page.
func CursorVariables(pageSize int, cursor *string) map[string]any {
	vars := map[string]any{"first": pageSize}
	if cursor != nil {
		vars["after"] = *cursor
	}
	return vars
}
