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

// collectionRule is one condition of a smart collection.
type collectionRule struct {
	Column    string `json:"column"`
	Relation  string `json:"relation"`
	Condition string `json:"condition"`
}

// collectionPayload is the decoded source collection.
type collectionPayload struct {
	ID              string `json:"id"`
	Handle          string `json:"handle"`
	Title           string `json:"title"`
	DescriptionHTML string `json:"descriptionHtml"`
	SortOrder       string `json:"sortOrder"`
	RuleSet         *struct {
		AppliedDisjunctively bool             `json:"appliedDisjunctively"`
		Rules                []collectionRule `json:"rules"`
	} `json:"ruleSet"`
}

// CollectionAdapter syncs collections, handle-matched. Smart collections
// carry their rule set on create; membership then derives from the rules
// against the target's own products.
type CollectionAdapter struct {
	deps   Deps
	values *metafields.ValueSyncer
}

// NewCollectionAdapter creates the collections adapter.
func NewCollectionAdapter(deps Deps) *CollectionAdapter {
	return &CollectionAdapter{
		deps:   deps,
		values: metafields.NewValueSyncer(deps.Src, deps.Tgt, deps.Registry, deps.Logger, deps.pageSize()),
	}
}

func (a *CollectionAdapter) Name() string              { return "collections" }
func (a *CollectionAdapter) Type() models.ResourceType { return models.ResourceCollections }
func (a *CollectionAdapter) KeyName() string           { return "handle" }

const collectionsQuery = `
query Collections($first: Int!, $after: String) {
  collections(first: $first, after: $after) {
    nodes {
      id
      handle
      title
      descriptionHtml
      sortOrder
      ruleSet {
        appliedDisjunctively
        rules { column relation condition }
      }
    }
    pageInfo { hasNextPage endCursor }
  }
}`

const collectionCreateMutation = `
mutation CollectionCreate($input: CollectionInput!) {
  collectionCreate(input: $input) {
    collection { id handle title }
    userErrors { field message }
  }
}`

const collectionUpdateMutation = `
mutation CollectionUpdate($input: CollectionInput!) {
  collectionUpdate(input: $input) {
    collection { id handle title }
    userErrors { field message }
  }
}`

func decodeCollection(raw json.RawMessage) (engine.Item, error) {
	var c collectionPayload
	if err := json.Unmarshal(raw, &c); err != nil {
		return engine.Item{}, fmt.Errorf("failed to decode collection: %w", err)
	}
	return engine.Item{
		ID:      mapping.NumericID(c.ID),
		GID:     c.ID,
		Title:   c.Title,
		Key:     match.HandleKey(c.Handle),
		Payload: c,
	}, nil
}

func (a *CollectionAdapter) FetchSourcePage(ctx context.Context, cursor *string) (*engine.Page, error) {
	return fetchEnginePage(ctx, a.deps.Src, collectionsQuery, "collections", a.deps.pageSize(), cursor, decodeCollection)
}

func (a *CollectionAdapter) FetchTargetPage(ctx context.Context, cursor *string) (*engine.Page, error) {
	return fetchEnginePage(ctx, a.deps.Tgt, collectionsQuery, "collections", a.deps.pageSize(), cursor, decodeCollection)
}

func (a *CollectionAdapter) Create(ctx context.Context, source engine.Item) (*engine.Written, error) {
	c := source.Payload.(collectionPayload)

	input := map[string]any{
		"title":           c.Title,
		"handle":          c.Handle,
		"descriptionHtml": c.DescriptionHTML,
	}
	if c.SortOrder != "" {
		input["sortOrder"] = c.SortOrder
	}
	if c.RuleSet != nil {
		rules := make([]map[string]any, 0, len(c.RuleSet.Rules))
		for _, r := range c.RuleSet.Rules {
			rules = append(rules, map[string]any{
				"column":    r.Column,
				"relation":  r.Relation,
				"condition": r.Condition,
			})
		}
		input["ruleSet"] = map[string]any{
			"appliedDisjunctively": c.RuleSet.AppliedDisjunctively,
			"rules":                rules,
		}
	}

	var result struct {
		CollectionCreate struct {
			Collection *struct {
				ID    string `json:"id"`
				Title string `json:"title"`
			} `json:"collection"`
			UserErrors []UserError `json:"userErrors"`
		} `json:"collectionCreate"`
	}
	err := a.deps.Tgt.Query(ctx, collectionCreateMutation, map[string]any{"input": input}, &result)
	if err == nil {
		err = userErrorsToError(result.CollectionCreate.UserErrors)
	}
	if err != nil {
		return nil, err
	}

	created := result.CollectionCreate.Collection
	if created == nil {
		return nil, fmt.Errorf("collectionCreate returned no collection for %s", source.Key)
	}
	return &engine.Written{ID: mapping.NumericID(created.ID), GID: created.ID, Title: created.Title}, nil
}

func (a *CollectionAdapter) Update(ctx context.Context, source, target engine.Item) (*engine.Written, error) {
	c := source.Payload.(collectionPayload)

	// A collection's rule set cannot change kind after creation; updates
	// carry only the descriptive fields.
	var result struct {
		CollectionUpdate struct {
			Collection *struct {
				ID    string `json:"id"`
				Title string `json:"title"`
			} `json:"collection"`
			UserErrors []UserError `json:"userErrors"`
		} `json:"collectionUpdate"`
	}
	err := a.deps.Tgt.Query(ctx, collectionUpdateMutation, map[string]any{
		"input": map[string]any{
			"id":              target.GID,
			"title":           c.Title,
			"descriptionHtml": c.DescriptionHTML,
		},
	}, &result)
	if err == nil {
		err = userErrorsToError(result.CollectionUpdate.UserErrors)
	}
	if err != nil {
		return nil, err
	}

	return &engine.Written{ID: target.ID, GID: target.GID, Title: c.Title}, nil
}

// AfterWrite copies the collection's metafield values onto the written
// target.
func (a *CollectionAdapter) AfterWrite(ctx context.Context, source engine.Item, target engine.Written, created bool) (*engine.Effects, error) {
	report, err := a.values.SyncValues(ctx, source.GID, target.GID, "collection "+source.Key)
	if err != nil {
		return nil, err
	}
	return valueEffects(report), nil
}
