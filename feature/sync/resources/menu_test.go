package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/feraraujofilho/prod-staging-sync-app-sub001/feature/sync/mapping"
	"github.com/feraraujofilho/prod-staging-sync-app-sub001/feature/sync/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMenuAdapter_CreateTranslatesResourceReferences(t *testing.T) {
	tgt := &fakeClient{t: t}
	tgt.handler = func(doc string, vars map[string]any) (any, error) {
		if strings.Contains(doc, "menuCreate") {
			return map[string]any{"menuCreate": map[string]any{
				"menu":       map[string]any{"id": "gid://shopify/Menu/901", "handle": "main-menu", "title": "Main menu"},
				"userErrors": []any{},
			}}, nil
		}
		return nil, fmt.Errorf("unexpected query: %s", doc)
	}

	deps, _ := newTestDeps(t, &fakeClient{t: t}, tgt)
	require.NoError(t, deps.Registry.SaveMapping(context.Background(), models.ResourceCollections, mapping.Fields{
		SourceID:       "7",
		TargetID:       "807",
		SourceGlobalID: "gid://shopify/Collection/7",
		TargetGlobalID: "gid://shopify/Collection/807",
	}))

	adapter := NewMenuAdapter(deps)
	item, err := decodeMenu(json.RawMessage(`{
		"id": "gid://shopify/Menu/5",
		"handle": "main-menu",
		"title": "Main menu",
		"items": [
			{"title": "Home", "type": "FRONTPAGE", "url": "/", "resourceId": ""},
			{"title": "Sale", "type": "COLLECTION", "url": "/collections/sale",
			 "resourceId": "gid://shopify/Collection/7",
			 "items": [
				{"title": "Old sale", "type": "COLLECTION", "url": "/collections/old-sale",
				 "resourceId": "gid://shopify/Collection/99"}
			 ]}
		]
	}`))
	require.NoError(t, err)

	_, err = adapter.Create(context.Background(), item)
	require.NoError(t, err)

	creates := tgt.callsContaining("menuCreate")
	require.Len(t, creates, 1)
	raw, _ := json.Marshal(creates[0].vars)

	// Mapped reference rewritten; unmapped one dropped but its URL kept.
	assert.Contains(t, string(raw), "gid://shopify/Collection/807")
	assert.NotContains(t, string(raw), "gid://shopify/Collection/7\"")
	assert.NotContains(t, string(raw), "gid://shopify/Collection/99")
	assert.Contains(t, string(raw), "/collections/old-sale")

	// The unresolved reference is recorded for the report.
	unmapped, err := deps.Registry.Unmapped(context.Background())
	require.NoError(t, err)
	require.Len(t, unmapped, 1)
	assert.Equal(t, "gid://shopify/Collection/99", unmapped[0].SourceGlobalID)
	assert.Contains(t, unmapped[0].Context, "main-menu")
}

func TestMenuAdapter_UpdateReplacesItemTree(t *testing.T) {
	tgt := &fakeClient{t: t}
	tgt.handler = func(doc string, vars map[string]any) (any, error) {
		if strings.Contains(doc, "menuUpdate") {
			return map[string]any{"menuUpdate": map[string]any{
				"menu":       map[string]any{"id": "gid://shopify/Menu/901", "title": "Main menu"},
				"userErrors": []any{},
			}}, nil
		}
		return nil, fmt.Errorf("unexpected query: %s", doc)
	}

	deps, _ := newTestDeps(t, &fakeClient{t: t}, tgt)
	adapter := NewMenuAdapter(deps)

	source, err := decodeMenu(json.RawMessage(`{
		"id": "gid://shopify/Menu/5", "handle": "main-menu", "title": "Main menu",
		"items": [{"title": "Home", "type": "FRONTPAGE", "url": "/"}]
	}`))
	require.NoError(t, err)
	target, err := decodeMenu(json.RawMessage(`{
		"id": "gid://shopify/Menu/901", "handle": "main-menu", "title": "Old menu", "items": []
	}`))
	require.NoError(t, err)

	written, err := adapter.Update(context.Background(), source, target)
	require.NoError(t, err)
	assert.Equal(t, "gid://shopify/Menu/901", written.GID)

	updates := tgt.callsContaining("menuUpdate")
	require.Len(t, updates, 1)
	assert.Equal(t, "gid://shopify/Menu/901", updates[0].vars["id"])
	items := updates[0].vars["items"].([]map[string]any)
	require.Len(t, items, 1)
	assert.Equal(t, "Home", items[0]["title"])
}
