package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/feraraujofilho/prod-staging-sync-app-sub001/feature/sync/engine"
	"github.com/feraraujofilho/prod-staging-sync-app-sub001/feature/sync/mapping"
	"github.com/feraraujofilho/prod-staging-sync-app-sub001/feature/sync/match"
	"github.com/feraraujofilho/prod-staging-sync-app-sub001/feature/sync/models"
)

// menuItem is one navigation entry. Items nest up to three levels.
type menuItem struct {
	Title      string     `json:"title"`
	Type       string     `json:"type"`
	URL        string     `json:"url"`
	ResourceID string     `json:"resourceId"`
	Tags       []string   `json:"tags"`
	Items      []menuItem `json:"items"`
}

// menuPayload is the decoded source menu.
type menuPayload struct {
	ID     string     `json:"id"`
	Handle string     `json:"handle"`
	Title  string     `json:"title"`
	Items  []menuItem `json:"items"`
}

// MenuAdapter syncs navigation menus, handle-matched. Menu items pointing at
// other entities carry source-scoped resource ids; those are translated
// through the registry. An item whose reference cannot be resolved keeps its
// URL and drops the resource id, since writing a foreign id would corrupt
// the menu.
type MenuAdapter struct {
	deps Deps
}

// NewMenuAdapter creates the menus adapter.
func NewMenuAdapter(deps Deps) *MenuAdapter {
	return &MenuAdapter{deps: deps}
}

func (a *MenuAdapter) Name() string              { return "menus" }
func (a *MenuAdapter) Type() models.ResourceType { return models.ResourceMenus }
func (a *MenuAdapter) KeyName() string           { return "handle" }

const menusQuery = `
query Menus($first: Int!, $after: String) {
  menus(first: $first, after: $after) {
    nodes {
      id
      handle
      title
      items {
        title
        type
        url
        resourceId
        tags
        items {
          title
          type
          url
          resourceId
          tags
          items {
            title
            type
            url
            resourceId
            tags
          }
        }
      }
    }
    pageInfo { hasNextPage endCursor }
  }
}`

const menuCreateMutation = `
mutation MenuCreate($title: String!, $handle: String!, $items: [MenuItemCreateInput!]!) {
  menuCreate(title: $title, handle: $handle, items: $items) {
    menu { id handle title }
    userErrors { field message }
  }
}`

const menuUpdateMutation = `
mutation MenuUpdate($id: ID!, $title: String!, $items: [MenuItemUpdateInput!]!) {
  menuUpdate(id: $id, title: $title, items: $items) {
    menu { id handle title }
    userErrors { field message }
  }
}`

func decodeMenu(raw json.RawMessage) (engine.Item, error) {
	var m menuPayload
	if err := json.Unmarshal(raw, &m); err != nil {
		return engine.Item{}, fmt.Errorf("failed to decode menu: %w", err)
	}
	return engine.Item{
		ID:      mapping.NumericID(m.ID),
		GID:     m.ID,
		Title:   m.Title,
		Key:     match.HandleKey(m.Handle),
		Payload: m,
	}, nil
}

func (a *MenuAdapter) FetchSourcePage(ctx context.Context, cursor *string) (*engine.Page, error) {
	return fetchEnginePage(ctx, a.deps.Src, menusQuery, "menus", a.deps.pageSize(), cursor, decodeMenu)
}

func (a *MenuAdapter) FetchTargetPage(ctx context.Context, cursor *string) (*engine.Page, error) {
	return fetchEnginePage(ctx, a.deps.Tgt, menusQuery, "menus", a.deps.pageSize(), cursor, decodeMenu)
}

// translateItems rewrites the resource references of a menu item tree.
func (a *MenuAdapter) translateItems(ctx context.Context, items []menuItem, menuHandle string) []map[string]any {
	result := make([]map[string]any, 0, len(items))
	for _, item := range items {
		entry := map[string]any{
			"title": item.Title,
			"type":  item.Type,
		}
		if item.URL != "" {
			entry["url"] = item.URL
		}
		if len(item.Tags) > 0 {
			entry["tags"] = item.Tags
		}

		if item.ResourceID != "" {
			translated, ok := a.deps.Registry.Translate(ctx, item.ResourceID, "menus",
				fmt.Sprintf("menu %s item %q", menuHandle, item.Title))
			if ok {
				entry["resourceId"] = translated
			}
		}

		if len(item.Items) > 0 {
			entry["items"] = a.translateItems(ctx, item.Items, menuHandle)
		}
		result = append(result, entry)
	}
	return result
}

func (a *MenuAdapter) Create(ctx context.Context, source engine.Item) (*engine.Written, error) {
	m := source.Payload.(menuPayload)

	var result struct {
		MenuCreate struct {
			Menu *struct {
				ID    string `json:"id"`
				Title string `json:"title"`
			} `json:"menu"`
			UserErrors []UserError `json:"userErrors"`
		} `json:"menuCreate"`
	}
	err := a.deps.Tgt.Query(ctx, menuCreateMutation, map[string]any{
		"title":  m.Title,
		"handle": m.Handle,
		"items":  a.translateItems(ctx, m.Items, m.Handle),
	}, &result)
	if err == nil {
		err = userErrorsToError(result.MenuCreate.UserErrors)
	}
	if err != nil {
		return nil, err
	}

	created := result.MenuCreate.Menu
	if created == nil {
		return nil, fmt.Errorf("menuCreate returned no menu for %s", source.Key)
	}
	return &engine.Written{ID: mapping.NumericID(created.ID), GID: created.ID, Title: created.Title}, nil
}

func (a *MenuAdapter) Update(ctx context.Context, source, target engine.Item) (*engine.Written, error) {
	m := source.Payload.(menuPayload)

	var result struct {
		MenuUpdate struct {
			Menu *struct {
				ID    string `json:"id"`
				Title string `json:"title"`
			} `json:"menu"`
			UserErrors []UserError `json:"userErrors"`
		} `json:"menuUpdate"`
	}
	err := a.deps.Tgt.Query(ctx, menuUpdateMutation, map[string]any{
		"id":    target.GID,
		"title": m.Title,
		"items": a.translateItems(ctx, m.Items, m.Handle),
	}, &result)
	if err == nil {
		err = userErrorsToError(result.MenuUpdate.UserErrors)
	}
	if err != nil {
		return nil, err
	}

	return &engine.Written{ID: target.ID, GID: target.GID, Title: m.Title}, nil
}
