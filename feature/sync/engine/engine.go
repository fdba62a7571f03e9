package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/feraraujofilho/prod-staging-sync-app-sub001/core/remote"
	"github.com/feraraujofilho/prod-staging-sync-app-sub001/core/retry"
	"github.com/feraraujofilho/prod-staging-sync-app-sub001/feature/sync/mapping"
	"github.com/feraraujofilho/prod-staging-sync-app-sub001/feature/sync/models"

	"go.uber.org/zap"
)

// EntityError attributes one failure to one entity.
type EntityError struct {
	Key    string `json:"key"`
	Title  string `json:"title,omitempty"`
	Detail string `json:"detail"`
}

// Outcome aggregates one adapter's run.
type Outcome struct {
	Type   models.ResourceType
	Counts models.Counts
	Errors []EntityError
	Notes  []string
}

// Options tunes engine pacing and retries.
type Options struct {
	// Retry is the policy applied around every write.
	Retry retry.Policy
	// PageDelay is the pause between page fetches, to stay under rate
	// limits and let memory settle on large collections.
	PageDelay time.Duration
	// ItemDelay is the pause between item writes.
	ItemDelay time.Duration
	// Sleep waits; tests replace it. Nil uses a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Engine drives the fetch-match-upsert sequence for any adapter. Entities
// are processed sequentially; a single failed entity never aborts its
// siblings, while a fatal remote error (bad credential, missing scope)
// aborts the whole resource.
type Engine struct {
	registry *mapping.Registry
	logger   *zap.Logger
	opts     Options
}

// New creates an engine bound to one connection's registry.
func New(registry *mapping.Registry, logger *zap.Logger, opts Options) *Engine {
	if opts.Sleep == nil {
		opts.Sleep = func(ctx context.Context, d time.Duration) error {
			if d <= 0 {
				return nil
			}
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
				return nil
			}
		}
	}
	return &Engine{registry: registry, logger: logger, opts: opts}
}

// Run synchronizes one resource kind. The returned error is non-nil only
// for fatal conditions; entity-level failures land in the outcome and leave
// the run to continue with the next resource.
func (e *Engine) Run(ctx context.Context, adapter Adapter) (*Outcome, error) {
	outcome := &Outcome{Type: adapter.Type()}
	log := e.logger.With(zap.String("resource", adapter.Name()))

	targetIndex, err := e.loadTargetIndex(ctx, adapter, outcome)
	if err != nil {
		return outcome, fmt.Errorf("failed to load target %s: %w", adapter.Name(), err)
	}
	log.Info("Target index loaded", zap.Int("items", len(targetIndex)))

	var cursor *string
	for {
		page, err := e.fetchPage(ctx, adapter.FetchSourcePage, cursor)
		if err != nil {
			// The source being unreachable past the retries is always
			// fatal for the run.
			return outcome, fmt.Errorf("failed to fetch source %s: %w", adapter.Name(), err)
		}

		for _, source := range page.Items {
			if err := e.syncItem(ctx, adapter, source, targetIndex, outcome, log); err != nil {
				return outcome, err
			}
			if err := e.opts.Sleep(ctx, e.opts.ItemDelay); err != nil {
				return outcome, err
			}
		}

		if !page.HasMore {
			break
		}
		next := page.NextCursor
		cursor = &next
		if err := e.opts.Sleep(ctx, e.opts.PageDelay); err != nil {
			return outcome, err
		}
	}

	log.Info("Resource sync finished",
		zap.Int("created", outcome.Counts.Created),
		zap.Int("updated", outcome.Counts.Updated),
		zap.Int("skipped", outcome.Counts.Skipped),
		zap.Int("failed", outcome.Counts.Failed))
	return outcome, nil
}

// loadTargetIndex accumulates every target page into a natural-key index.
func (e *Engine) loadTargetIndex(ctx context.Context, adapter Adapter, outcome *Outcome) (map[string]Item, error) {
	index := make(map[string]Item)

	var cursor *string
	for {
		page, err := e.fetchPage(ctx, adapter.FetchTargetPage, cursor)
		if err != nil {
			return nil, err
		}

		for _, item := range page.Items {
			if item.Key == "" {
				continue
			}
			if _, dup := index[item.Key]; dup {
				outcome.Notes = append(outcome.Notes,
					fmt.Sprintf("duplicate %s %q on target; first occurrence wins", adapter.KeyName(), item.Key))
				continue
			}
			index[item.Key] = item
		}

		if !page.HasMore {
			return index, nil
		}
		next := page.NextCursor
		cursor = &next
		if err := e.opts.Sleep(ctx, e.opts.PageDelay); err != nil {
			return nil, err
		}
	}
}

// fetchPage loads one page, retrying throttled and transient failures with
// the same policy as writes.
func (e *Engine) fetchPage(ctx context.Context, fetch func(context.Context, *string) (*Page, error), cursor *string) (*Page, error) {
	var page *Page
	_, err := retry.Do(ctx, e.opts.Retry, remote.IsRetryable, func(ctx context.Context) error {
		var ferr error
		page, ferr = fetch(ctx, cursor)
		return ferr
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

// syncItem writes one source entity to the target. The returned error is
// non-nil only when the run must abort.
func (e *Engine) syncItem(ctx context.Context, adapter Adapter, source Item, targetIndex map[string]Item, outcome *Outcome, log *zap.Logger) error {
	if source.Key == "" {
		outcome.Counts.Skipped++
		outcome.Notes = append(outcome.Notes,
			fmt.Sprintf("source item %q has no %s; skipped", source.Title, adapter.KeyName()))
		return nil
	}

	target, matched := targetIndex[source.Key]

	var written *Written
	writeErr := func(ctx context.Context) error {
		var err error
		if matched {
			written, err = adapter.Update(ctx, source, target)
		} else {
			written, err = adapter.Create(ctx, source)
		}
		return err
	}

	result, err := retry.Do(ctx, e.opts.Retry, remote.IsRetryable, writeErr)
	if err != nil {
		if remote.IsFatal(err) {
			return fmt.Errorf("fatal error writing %s %q: %w", adapter.Name(), source.Key, err)
		}
		outcome.Counts.Failed++
		outcome.Errors = append(outcome.Errors, EntityError{
			Key:    source.Key,
			Title:  source.Title,
			Detail: fmt.Sprintf("%v (after %d attempts)", err, result.Attempts),
		})
		log.Warn("Entity write failed",
			zap.String("key", source.Key),
			zap.Int("attempts", result.Attempts),
			zap.Error(err))
		return nil
	}

	if err := e.registry.SaveMapping(ctx, adapter.Type(), mapping.Fields{
		SourceID:       source.ID,
		TargetID:       written.ID,
		SourceGlobalID: source.GID,
		TargetGlobalID: written.GID,
		MatchKey:       adapter.KeyName(),
		MatchValue:     source.Key,
		Title:          source.Title,
	}); err != nil {
		// Without the mapping the entity would be recreated next run, so
		// this counts as the entity's failure even though the write landed.
		outcome.Counts.Failed++
		outcome.Errors = append(outcome.Errors, EntityError{
			Key:    source.Key,
			Title:  source.Title,
			Detail: fmt.Sprintf("written but mapping not saved: %v", err),
		})
		return nil
	}

	if matched {
		outcome.Counts.Updated++
	} else {
		outcome.Counts.Created++
		// Register the new entity so a duplicate source key cannot create twice.
		targetIndex[source.Key] = Item{ID: written.ID, GID: written.GID, Title: written.Title, Key: source.Key}
	}

	if post, ok := adapter.(PostProcessor); ok {
		effects, err := post.AfterWrite(ctx, source, *written, !matched)
		if err != nil {
			outcome.Counts.Failed++
			outcome.Errors = append(outcome.Errors, EntityError{
				Key:    source.Key,
				Title:  source.Title,
				Detail: fmt.Sprintf("post-write: %v", err),
			})
			return nil
		}
		if effects != nil {
			outcome.Counts.Created += effects.Created
			outcome.Counts.Updated += effects.Updated
			outcome.Counts.Skipped += effects.Skipped
			outcome.Counts.Failed += effects.Failed
			outcome.Errors = append(outcome.Errors, effects.Errors...)
			outcome.Notes = append(outcome.Notes, effects.Notes...)
		}
	}

	return nil
}
