package metafields

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
	"go.uber.org/zap"
)

func metafieldsPage(nodes []map[string]any) map[string]any {
	if nodes == nil {
		nodes = []map[string]any{}
	}
	return map[string]any{
		"node": map[string]any{
			"metafields": map[string]any{
				"nodes":    nodes,
				"pageInfo": map[string]any{"hasNextPage": false, "endCursor": nil},
			},
		},
	}
}

func metafield(id, namespace, key, typ, value string) map[string]any {
	return map[string]any{"id": id, "namespace": namespace, "key": key, "type": typ, "value": value}
}

func setResultOK(count int) map[string]any {
	fields := make([]map[string]any, count)
	for i := range fields {
		fields[i] = map[string]any{"id": fmt.Sprintf("gid://shopify/Metafield/9%d", i)}
	}
	return map[string]any{"metafieldsSet": map[string]any{"metafields": fields, "userErrors": []any{}}}
}

func TestSyncValues_WritesMissingAndDifferentOnly(t *testing.T) {
	registry := newTestRegistry(t)

	src := &fakeRemote{t: t}
	src.handler = func(doc string, vars map[string]any) (any, error) {
		return metafieldsPage([]map[string]any{
			metafield("gid://shopify/Metafield/1", "custom", "material", "single_line_text_field", "steel"),
			metafield("gid://shopify/Metafield/2", "custom", "origin", "single_line_text_field", "sweden"),
			metafield("gid://shopify/Metafield/3", "custom", "care", "single_line_text_field", "wipe dry"),
		}), nil
	}

	tgt := &fakeRemote{t: t}
	tgt.handler = func(doc string, vars map[string]any) (any, error) {
		switch {
		case strings.Contains(doc, "HasMetafields"):
			return metafieldsPage([]map[string]any{
				// Same value: skipped. Different value: rewritten.
				metafield("gid://shopify/Metafield/81", "custom", "material", "single_line_text_field", "steel"),
				metafield("gid://shopify/Metafield/82", "custom", "origin", "single_line_text_field", "norway"),
			}), nil
		case strings.Contains(doc, "metafieldsSet"):
			entries := vars["metafields"].([]map[string]any)
			return setResultOK(len(entries)), nil
		}
		return nil, fmt.Errorf("unexpected query: %s", doc)
	}

	syncer := NewValueSyncer(src, tgt, registry, zap.NewNop(), 50)
	report, err := syncer.SyncValues(context.Background(),
		"gid://shopify/Product/1", "gid://shopify/Product/901", "product table")
	require.NoError(t, err)

	assert.Equal(t, 1, report.Counts.Skipped)
	assert.Equal(t, 2, report.Counts.Updated)
	assert.Equal(t, 0, report.Counts.Failed)

	sets := tgt.callsContaining("metafieldsSet")
	require.Len(t, sets, 1)
	raw, _ := json.Marshal(sets[0].vars)
	assert.Contains(t, string(raw), "sweden")
	assert.Contains(t, string(raw), "wipe dry")
	assert.NotContains(t, string(raw), "steel")
	// Every entry targets the matched counterpart, never the source owner.
	assert.Contains(t, string(raw), "gid://shopify/Product/901")
	assert.NotContains(t, string(raw), `"gid://shopify/Product/1"`)
}

func TestSyncValues_ReservedNamespacesAreNeverWritten(t *testing.T) {
	registry := newTestRegistry(t)

	src := &fakeRemote{t: t}
	src.handler = func(doc string, vars map[string]any) (any, error) {
		return metafieldsPage([]map[string]any{
			metafield("gid://shopify/Metafield/1", "shopify", "color-pattern", "list.metaobject_reference", `["gid://shopify/Metaobject/5"]`),
			metafield("gid://shopify/Metafield/2", "shopify--discounts", "code", "single_line_text_field", "x"),
			metafield("gid://shopify/Metafield/3", "app--12345", "state", "json", "{}"),
		}), nil
	}

	tgt := &fakeRemote{t: t}
	tgt.handler = func(doc string, vars map[string]any) (any, error) {
		if strings.Contains(doc, "HasMetafields") {
			return metafieldsPage(nil), nil
		}
		return nil, fmt.Errorf("unexpected query: %s", doc)
	}

	syncer := NewValueSyncer(src, tgt, registry, zap.NewNop(), 50)
	report, err := syncer.SyncValues(context.Background(),
		"gid://shopify/Product/1", "gid://shopify/Product/901", "product table")
	require.NoError(t, err)

	assert.Equal(t, 3, report.Reserved)
	assert.Empty(t, tgt.callsContaining("metafieldsSet"))
}

func TestSyncValues_TranslatesReferenceValues(t *testing.T) {
	registry := newTestRegistry(t)
	require.NoError(t, registry.SaveMapping(context.Background(), models.ResourcePages, mapping.Fields{
		SourceID:       "7",
		TargetID:       "807",
		SourceGlobalID: "gid://shopify/Page/7",
		TargetGlobalID: "gid://shopify/Page/807",
	}))

	src := &fakeRemote{t: t}
	src.handler = func(doc string, vars map[string]any) (any, error) {
		return metafieldsPage([]map[string]any{
			metafield("gid://shopify/Metafield/1", "custom", "guide", "page_reference", "gid://shopify/Page/7"),
		}), nil
	}

	tgt := &fakeRemote{t: t}
	tgt.handler = func(doc string, vars map[string]any) (any, error) {
		switch {
		case strings.Contains(doc, "HasMetafields"):
			return metafieldsPage(nil), nil
		case strings.Contains(doc, "metafieldsSet"):
			return setResultOK(1), nil
		}
		return nil, fmt.Errorf("unexpected query: %s", doc)
	}

	syncer := NewValueSyncer(src, tgt, registry, zap.NewNop(), 50)
	report, err := syncer.SyncValues(context.Background(),
		"gid://shopify/Product/1", "gid://shopify/Product/901", "product table")
	require.NoError(t, err)

	assert.Equal(t, 1, report.Counts.Updated)
	sets := tgt.callsContaining("metafieldsSet")
	require.Len(t, sets, 1)
	raw, _ := json.Marshal(sets[0].vars)
	assert.Contains(t, string(raw), "gid://shopify/Page/807")
	assert.NotContains(t, string(raw), "gid://shopify/Page/7\"")
}

func TestSyncValues_UnresolvedListReferenceIsSkipped(t *testing.T) {
	registry := newTestRegistry(t)
	require.NoError(t, registry.SaveMapping(context.Background(), models.ResourcePages, mapping.Fields{
		SourceID:       "7",
		TargetID:       "807",
		SourceGlobalID: "gid://shopify/Page/7",
		TargetGlobalID: "gid://shopify/Page/807",
	}))

	src := &fakeRemote{t: t}
	src.handler = func(doc string, vars map[string]any) (any, error) {
		return metafieldsPage([]map[string]any{
			// One id resolves, the other does not: the whole value is held
			// back rather than written half-translated.
			metafield("gid://shopify/Metafield/1", "custom", "related", "list.page_reference",
				`["gid://shopify/Page/7","gid://shopify/Page/8"]`),
		}), nil
	}

	tgt := &fakeRemote{t: t}
	tgt.handler = func(doc string, vars map[string]any) (any, error) {
		if strings.Contains(doc, "HasMetafields") {
			return metafieldsPage(nil), nil
		}
		return nil, fmt.Errorf("unexpected query: %s", doc)
	}

	syncer := NewValueSyncer(src, tgt, registry, zap.NewNop(), 50)
	report, err := syncer.SyncValues(context.Background(),
		"gid://shopify/Product/1", "gid://shopify/Product/901", "product table")
	require.NoError(t, err)

	assert.Equal(t, 1, report.Counts.Skipped)
	assert.Empty(t, tgt.callsContaining("metafieldsSet"))
	require.Len(t, report.Notes, 1)
	assert.Contains(t, report.Notes[0], "custom.related")

	unmapped, err := registry.Unmapped(context.Background())
	require.NoError(t, err)
	require.Len(t, unmapped, 1)
	assert.Equal(t, "gid://shopify/Page/8", unmapped[0].SourceGlobalID)
}

func TestSyncValues_UserErrorsAttributeByIndex(t *testing.T) {
	registry := newTestRegistry(t)

	src := &fakeRemote{t: t}
	src.handler = func(doc string, vars map[string]any) (any, error) {
		return metafieldsPage([]map[string]any{
			metafield("gid://shopify/Metafield/1", "custom", "a", "single_line_text_field", "1"),
			metafield("gid://shopify/Metafield/2", "custom", "b", "number_integer", "not-a-number"),
			metafield("gid://shopify/Metafield/3", "custom", "c", "single_line_text_field", "3"),
		}), nil
	}

	tgt := &fakeRemote{t: t}
	tgt.handler = func(doc string, vars map[string]any) (any, error) {
		switch {
		case strings.Contains(doc, "HasMetafields"):
			return metafieldsPage(nil), nil
		case strings.Contains(doc, "metafieldsSet"):
			return map[string]any{"metafieldsSet": map[string]any{
				"metafields": []map[string]any{{"id": "gid://shopify/Metafield/91"}, {"id": "gid://shopify/Metafield/93"}},
				"userErrors": []map[string]any{
					{"field": []string{"metafields", "1", "value"}, "message": "Value is not an integer"},
				},
			}}, nil
		}
		return nil, fmt.Errorf("unexpected query: %s", doc)
	}

	syncer := NewValueSyncer(src, tgt, registry, zap.NewNop(), 50)
	report, err := syncer.SyncValues(context.Background(),
		"gid://shopify/Product/1", "gid://shopify/Product/901", "product table")
	require.NoError(t, err)

	assert.Equal(t, 2, report.Counts.Updated)
	assert.Equal(t, 1, report.Counts.Failed)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "custom.b", report.Failures[0].Key)
	assert.Contains(t, report.Failures[0].Detail, "not an integer")
}

func TestIsReservedNamespace(t *testing.T) {
	cases := []struct {
		namespace string
		reserved  bool
	}{
		{"shopify", true},
		{"Shopify", true},
		{"shopify--discounts", true},
		{"app--12345", true},
		{"app--12345--secret", true},
		{"custom", false},
		{"shopify_custom", false},
		{"my-app", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.reserved, IsReservedNamespace(tc.namespace), tc.namespace)
	}
}
