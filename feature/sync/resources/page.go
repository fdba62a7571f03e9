package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/feraraujofilho/prod-staging-sync-app-sub001/feature/sync/engine"
	"github.com/feraraujofilho/prod-staging-sync-app-sub001/feature/sync/mapping"
	"github.com/feraraujofilho/prod-staging-sync-app-sub001/feature/sync/match"
	"github.com/feraraujofilho/prod-staging-sync-app-sub001/feature/sync/metafields"
	"github.com/feraraujofilho/prod-staging-sync-app-sub001/feature/sync/models"
)

// pagePayload is the decoded source page content.
type pagePayload struct {
	ID          string `json:"id"`
	Handle      string `json:"handle"`
	Title       string `json:"title"`
	Body        string `json:"body"`
	IsPublished bool   `json:"isPublished"`
}

// PageAdapter syncs online-store pages, handle-matched.
type PageAdapter struct {
	deps   Deps
	values *metafields.ValueSyncer
}

// NewPageAdapter creates the pages adapter.
func NewPageAdapter(deps Deps) *PageAdapter {
	return &PageAdapter{
		deps:   deps,
		values: metafields.NewValueSyncer(deps.Src, deps.Tgt, deps.Registry, deps.Logger, deps.pageSize()),
	}
}

func (a *PageAdapter) Name() string              { return "pages" }
func (a *PageAdapter) Type() models.ResourceType { return models.ResourcePages }
func (a *PageAdapter) KeyName() string           { return "handle" }

const pagesQuery = `
query Pages($first: Int!, $after: String) {
  pages(first: $first, after: $after) {
    nodes {
      id
      handle
      title
      body
      isPublished
    }
    pageInfo { hasNextPage endCursor }
  }
}`

const pageCreateMutation = `
mutation PageCreate($page: PageCreateInput!) {
  pageCreate(page: $page) {
    page { id handle title }
    userErrors { field message }
  }
}`

const pageUpdateMutation = `
mutation PageUpdate($id: ID!, $page: PageUpdateInput!) {
  pageUpdate(id: $id, page: $page) {
    page { id handle title }
    userErrors { field message }
  }
}`

func decodePage(raw json.RawMessage) (engine.Item, error) {
	var p pagePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return engine.Item{}, fmt.Errorf("failed to decode page: %w", err)
	}
	return engine.Item{
		ID:      mapping.NumericID(p.ID),
		GID:     p.ID,
		Title:   p.Title,
		Key:     match.HandleKey(p.Handle),
		Payload: p,
	}, nil
}

func (a *PageAdapter) FetchSourcePage(ctx context.Context, cursor *string) (*engine.Page, error) {
	return fetchEnginePage(ctx, a.deps.Src, pagesQuery, "pages", a.deps.pageSize(), cursor, decodePage)
}

func (a *PageAdapter) FetchTargetPage(ctx context.Context, cursor *string) (*engine.Page, error) {
	return fetchEnginePage(ctx, a.deps.Tgt, pagesQuery, "pages", a.deps.pageSize(), cursor, decodePage)
}

func (a *PageAdapter) Create(ctx context.Context, source engine.Item) (*engine.Written, error) {
	p := source.Payload.(pagePayload)

	var result struct {
		PageCreate struct {
			Page *struct {
				ID     string `json:"id"`
				Handle string `json:"handle"`
				Title  string `json:"title"`
			} `json:"page"`
			UserErrors []UserError `json:"userErrors"`
		} `json:"pageCreate"`
	}
	err := a.deps.Tgt.Query(ctx, pageCreateMutation, map[string]any{
		"page": map[string]any{
			"title":       p.Title,
			"handle":      p.Handle,
			"body":        p.Body,
			"isPublished": p.IsPublished,
		},
	}, &result)
	if err == nil {
		err = userErrorsToError(result.PageCreate.UserErrors)
	}
	if err != nil {
		return nil, err
	}

	created := result.PageCreate.Page
	if created == nil {
		return nil, fmt.Errorf("pageCreate returned no page for %s", source.Key)
	}
	return &engine.Written{ID: mapping.NumericID(created.ID), GID: created.ID, Title: created.Title}, nil
}

func (a *PageAdapter) Update(ctx context.Context, source, target engine.Item) (*engine.Written, error) {
	p := source.Payload.(pagePayload)

	var result struct {
		PageUpdate struct {
			Page *struct {
				ID    string `json:"id"`
				Title string `json:"title"`
			} `json:"page"`
			UserErrors []UserError `json:"userErrors"`
		} `json:"pageUpdate"`
	}
	err := a.deps.Tgt.Query(ctx, pageUpdateMutation, map[string]any{
		"id": target.GID,
		"page": map[string]any{
			"title": p.Title,
			"body":  p.Body,
		},
	}, &result)
	if err == nil {
		err = userErrorsToError(result.PageUpdate.UserErrors)
	}
	if err != nil {
		return nil, err
	}

	return &engine.Written{ID: target.ID, GID: target.GID, Title: p.Title}, nil
}

// AfterWrite copies the page's metafield values onto the written target.
func (a *PageAdapter) AfterWrite(ctx context.Context, source engine.Item, target engine.Written, created bool) (*engine.Effects, error) {
	report, err := a.values.SyncValues(ctx, source.GID, target.GID, "page "+source.Key)
	if err != nil {
		return nil, err
	}
	return valueEffects(report), nil
}

// valueEffects folds a metafield report into engine effects. Value counts
// ride along as sub-entity outcomes of the owner.
func valueEffects(report *metafields.Report) *engine.Effects {
	if report == nil {
		return nil
	}
	effects := &engine.Effects{
		Failed: report.Counts.Failed,
		Notes:  report.Notes,
	}
	for _, f := range report.Failures {
		effects.Errors = append(effects.Errors, engine.EntityError{Key: f.Key, Detail: f.Detail})
	}
	return effects
}
