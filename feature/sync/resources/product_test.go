package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/feraraujofilho/prod-staging-sync-app-sub001/feature/sync/engine"
	"github.com/feraraujofilho/prod-staging-sync-app-sub001/feature/sync/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sourceProductJSON = `{
	"id": "gid://shopify/Product/42",
	"handle": "tee",
	"title": "Tee",
	"descriptionHtml": "<p>soft</p>",
	"vendor": "Acme",
	"productType": "Shirts",
	"status": "ACTIVE",
	"tags": ["summer"],
	"options": [{"name": "Size", "values": ["S", "M"]}],
	"variants": {"nodes": [
		{"id": "gid://shopify/ProductVariant/421", "title": "S", "sku": "TEE-S", "price": "19.00",
		 "selectedOptions": [{"name": "Size", "value": "S"}],
		 "inventoryItem": {"id": "gid://shopify/InventoryItem/4211", "tracked": true,
			"inventoryLevels": {"nodes": [
				{"location": {"id": "gid://shopify/Location/1"},
				 "quantities": [{"name": "available", "quantity": 12}]}
			]}}},
		{"id": "gid://shopify/ProductVariant/422", "title": "M", "sku": "TEE-M", "price": "19.00",
		 "selectedOptions": [{"name": "Size", "value": "M"}],
		 "inventoryItem": {"id": "gid://shopify/InventoryItem/4221", "tracked": true,
			"inventoryLevels": {"nodes": [
				{"location": {"id": "gid://shopify/Location/1"},
				 "quantities": [{"name": "available", "quantity": 5}]}
			]}}}
	]},
	"media": {"nodes": [
		{"__typename": "MediaImage", "alt": "front", "image": {"url": "https://cdn.example.com/tee.png"}}
	]}
}`

func bareTargetDetail() map[string]any {
	// A freshly created product: one placeholder variant, no media.
	return map[string]any{
		"product": map[string]any{
			"id":         "gid://shopify/Product/901",
			"mediaCount": map[string]any{"count": 0},
			"variants": map[string]any{"nodes": []map[string]any{
				{"id": "gid://shopify/ProductVariant/9001", "title": "Default Title",
					"selectedOptions": []map[string]any{{"name": "Title", "value": "Default Title"}},
					"inventoryItem":   map[string]any{"id": "gid://shopify/InventoryItem/9991"}},
			}},
		},
	}
}

func okProductMutations(doc string, vars map[string]any) (any, bool) {
	switch {
	case strings.Contains(doc, "inventoryActivate"):
		return map[string]any{"inventoryActivate": map[string]any{"inventoryLevel": map[string]any{"id": "x"}, "userErrors": []any{}}}, true
	case strings.Contains(doc, "inventorySetQuantities"):
		return map[string]any{"inventorySetQuantities": map[string]any{"inventoryAdjustmentGroup": map[string]any{"id": "x"}, "userErrors": []any{}}}, true
	case strings.Contains(doc, "productCreateMedia"):
		return map[string]any{"productCreateMedia": map[string]any{"media": []any{}, "mediaUserErrors": []any{}}}, true
	case strings.Contains(doc, "publications("):
		return connectionEnvelope("publications", []map[string]any{{"id": "gid://shopify/Publication/1"}}), true
	case strings.Contains(doc, "publishablePublish"):
		return map[string]any{"publishablePublish": map[string]any{"userErrors": []any{}}}, true
	case strings.Contains(doc, "productVariantsBulkUpdate"):
		return map[string]any{"productVariantsBulkUpdate": map[string]any{"productVariants": []any{}, "userErrors": []any{}}}, true
	}
	return nil, false
}

func TestProductAdapter_AfterWriteCreatesVariantsInventoryMediaAndPublishes(t *testing.T) {
	src := &fakeClient{t: t}
	src.handler = func(doc string, vars map[string]any) (any, error) {
		if strings.Contains(doc, "HasMetafields") {
			return emptyMetafields(), nil
		}
		return nil, fmt.Errorf("unexpected source query: %s", doc)
	}

	tgt := &fakeClient{t: t}
	tgt.handler = func(doc string, vars map[string]any) (any, error) {
		if resp, ok := okProductMutations(doc, vars); ok {
			return resp, nil
		}
		switch {
		case strings.Contains(doc, "ProductDetail"):
			return bareTargetDetail(), nil
		case strings.Contains(doc, "HasMetafields"):
			return emptyMetafields(), nil
		case strings.Contains(doc, "productVariantsBulkCreate"):
			return map[string]any{"productVariantsBulkCreate": map[string]any{
				"productVariants": []map[string]any{
					{"id": "gid://shopify/ProductVariant/9101",
						"selectedOptions": []map[string]any{{"name": "Size", "value": "S"}},
						"inventoryItem":   map[string]any{"id": "gid://shopify/InventoryItem/9111"}},
					{"id": "gid://shopify/ProductVariant/9102",
						"selectedOptions": []map[string]any{{"name": "Size", "value": "M"}},
						"inventoryItem":   map[string]any{"id": "gid://shopify/InventoryItem/9112"}},
				},
				"userErrors": []any{},
			}}, nil
		}
		return nil, fmt.Errorf("unexpected target query: %s", doc)
	}

	deps, db := newTestDeps(t, src, tgt)
	locations := map[string]string{"gid://shopify/Location/1": "gid://shopify/Location/801"}
	adapter := NewProductAdapter(deps, locations)

	source, err := decodeProduct(json.RawMessage(sourceProductJSON))
	require.NoError(t, err)

	effects, err := adapter.AfterWrite(context.Background(), source,
		engine.Written{ID: "901", GID: "gid://shopify/Product/901", Title: "Tee"}, true)
	require.NoError(t, err)

	// Two variants plus one media image created, two inventory levels set.
	assert.Equal(t, 3, effects.Created)
	assert.Equal(t, 2, effects.Updated)
	assert.Equal(t, 0, effects.Failed)

	// The placeholder variant gave way to the real ones.
	creates := tgt.callsContaining("productVariantsBulkCreate")
	require.Len(t, creates, 1)
	assert.Equal(t, "REMOVE_STANDALONE_VARIANT", creates[0].vars["strategy"])

	// Both variants mapped by option key.
	var count int64
	db.Model(&models.ResourceMapping{}).Where("resource_type = ?", models.ResourceVariants).Count(&count)
	assert.Equal(t, int64(2), count)

	// Inventory landed at the mapped target location.
	sets := tgt.callsContaining("inventorySetQuantities")
	require.Len(t, sets, 2)
	raw, _ := json.Marshal(sets[0].vars)
	assert.Contains(t, string(raw), "gid://shopify/Location/801")

	require.Len(t, tgt.callsContaining("productCreateMedia"), 1)
	require.Len(t, tgt.callsContaining("publishablePublish"), 1)
}

func TestProductAdapter_PublishReachesChannelsBeyondFirstPage(t *testing.T) {
	src := &fakeClient{t: t}
	src.handler = func(doc string, vars map[string]any) (any, error) {
		if strings.Contains(doc, "HasMetafields") {
			return emptyMetafields(), nil
		}
		return nil, fmt.Errorf("unexpected source query: %s", doc)
	}

	tgt := &fakeClient{t: t}
	tgt.handler = func(doc string, vars map[string]any) (any, error) {
		switch {
		case strings.Contains(doc, "publications("):
			if vars["after"] == nil {
				return map[string]any{"publications": map[string]any{
					"nodes":    []map[string]any{{"id": "gid://shopify/Publication/1"}},
					"pageInfo": map[string]any{"hasNextPage": true, "endCursor": "p1"},
				}}, nil
			}
			return map[string]any{"publications": map[string]any{
				"nodes":    []map[string]any{{"id": "gid://shopify/Publication/2"}},
				"pageInfo": map[string]any{"hasNextPage": false, "endCursor": nil},
			}}, nil
		case strings.Contains(doc, "ProductDetail"):
			return bareTargetDetail(), nil
		case strings.Contains(doc, "HasMetafields"):
			return emptyMetafields(), nil
		case strings.Contains(doc, "productVariantsBulkCreate"):
			return map[string]any{"productVariantsBulkCreate": map[string]any{
				"productVariants": []map[string]any{
					{"id": "gid://shopify/ProductVariant/9101",
						"selectedOptions": []map[string]any{{"name": "Size", "value": "S"}},
						"inventoryItem":   map[string]any{"id": "gid://shopify/InventoryItem/9111"}},
					{"id": "gid://shopify/ProductVariant/9102",
						"selectedOptions": []map[string]any{{"name": "Size", "value": "M"}},
						"inventoryItem":   map[string]any{"id": "gid://shopify/InventoryItem/9112"}},
				},
				"userErrors": []any{},
			}}, nil
		}
		if resp, ok := okProductMutations(doc, vars); ok {
			return resp, nil
		}
		return nil, fmt.Errorf("unexpected target query: %s", doc)
	}

	deps, _ := newTestDeps(t, src, tgt)
	locations := map[string]string{"gid://shopify/Location/1": "gid://shopify/Location/801"}
	adapter := NewProductAdapter(deps, locations)

	source, err := decodeProduct(json.RawMessage(sourceProductJSON))
	require.NoError(t, err)

	effects, err := adapter.AfterWrite(context.Background(), source,
		engine.Written{ID: "901", GID: "gid://shopify/Product/901", Title: "Tee"}, true)
	require.NoError(t, err)
	assert.Equal(t, 0, effects.Failed)

	// Both publication pages were walked and every channel is published to.
	require.Len(t, tgt.callsContaining("publications("), 2)
	publishes := tgt.callsContaining("publishablePublish")
	require.Len(t, publishes, 1)
	raw, _ := json.Marshal(publishes[0].vars["input"])
	assert.Contains(t, string(raw), "gid://shopify/Publication/1")
	assert.Contains(t, string(raw), "gid://shopify/Publication/2")
}

func TestProductAdapter_PublishRejectionCountsAsFailure(t *testing.T) {
	src := &fakeClient{t: t}
	src.handler = func(doc string, vars map[string]any) (any, error) {
		if strings.Contains(doc, "HasMetafields") {
			return emptyMetafields(), nil
		}
		return nil, fmt.Errorf("unexpected source query: %s", doc)
	}

	tgt := &fakeClient{t: t}
	tgt.handler = func(doc string, vars map[string]any) (any, error) {
		switch {
		case strings.Contains(doc, "publishablePublish"):
			return map[string]any{"publishablePublish": map[string]any{
				"userErrors": []map[string]any{
					{"field": []string{"id"}, "message": "Cannot publish to this channel"},
				},
			}}, nil
		case strings.Contains(doc, "ProductDetail"):
			return bareTargetDetail(), nil
		case strings.Contains(doc, "HasMetafields"):
			return emptyMetafields(), nil
		case strings.Contains(doc, "productVariantsBulkCreate"):
			return map[string]any{"productVariantsBulkCreate": map[string]any{
				"productVariants": []any{}, "userErrors": []any{},
			}}, nil
		}
		if resp, ok := okProductMutations(doc, vars); ok {
			return resp, nil
		}
		return nil, fmt.Errorf("unexpected target query: %s", doc)
	}

	deps, _ := newTestDeps(t, src, tgt)
	adapter := NewProductAdapter(deps, map[string]string{})

	source, err := decodeProduct(json.RawMessage(sourceProductJSON))
	require.NoError(t, err)

	effects, err := adapter.AfterWrite(context.Background(), source,
		engine.Written{ID: "901", GID: "gid://shopify/Product/901", Title: "Tee"}, true)
	require.NoError(t, err)

	// The product stays synced but the missed channels count as a failure,
	// so the run ends partial instead of success.
	require.NotZero(t, effects.Failed)
	var found bool
	for _, e := range effects.Errors {
		if strings.Contains(e.Detail, "publish failed") {
			found = true
		}
	}
	assert.True(t, found, "expected a publish failure in the effects")
}

func TestProductAdapter_NullCreateResponseIsAnError(t *testing.T) {
	tgt := &fakeClient{t: t}
	tgt.handler = func(doc string, vars map[string]any) (any, error) {
		if strings.Contains(doc, "productCreate") {
			// Abnormal response: no product and no userErrors.
			return map[string]any{"productCreate": map[string]any{
				"product":    nil,
				"userErrors": []any{},
			}}, nil
		}
		return nil, fmt.Errorf("unexpected query: %s", doc)
	}

	deps, _ := newTestDeps(t, &fakeClient{t: t}, tgt)
	adapter := NewProductAdapter(deps, map[string]string{})

	item, err := decodeProduct(json.RawMessage(sourceProductJSON))
	require.NoError(t, err)

	written, err := adapter.Create(context.Background(), item)
	require.Error(t, err)
	assert.Nil(t, written)
	assert.Contains(t, err.Error(), "tee")
}

func TestProductAdapter_VariantUserErrorsAttributeByIndex(t *testing.T) {
	src := &fakeClient{t: t}
	src.handler = func(doc string, vars map[string]any) (any, error) {
		if strings.Contains(doc, "HasMetafields") {
			return emptyMetafields(), nil
		}
		return nil, fmt.Errorf("unexpected source query: %s", doc)
	}

	tgt := &fakeClient{t: t}
	tgt.handler = func(doc string, vars map[string]any) (any, error) {
		if resp, ok := okProductMutations(doc, vars); ok {
			return resp, nil
		}
		switch {
		case strings.Contains(doc, "ProductDetail"):
			return bareTargetDetail(), nil
		case strings.Contains(doc, "HasMetafields"):
			return emptyMetafields(), nil
		case strings.Contains(doc, "productVariantsBulkCreate"):
			// The second variant is rejected; the first goes through.
			return map[string]any{"productVariantsBulkCreate": map[string]any{
				"productVariants": []map[string]any{
					{"id": "gid://shopify/ProductVariant/9101",
						"selectedOptions": []map[string]any{{"name": "Size", "value": "S"}},
						"inventoryItem":   map[string]any{"id": "gid://shopify/InventoryItem/9111"}},
				},
				"userErrors": []map[string]any{
					{"field": []string{"variants", "1", "price"}, "message": "Price cannot be negative"},
				},
			}}, nil
		}
		return nil, fmt.Errorf("unexpected target query: %s", doc)
	}

	deps, _ := newTestDeps(t, src, tgt)
	locations := map[string]string{"gid://shopify/Location/1": "gid://shopify/Location/801"}
	adapter := NewProductAdapter(deps, locations)

	source, err := decodeProduct(json.RawMessage(sourceProductJSON))
	require.NoError(t, err)

	effects, err := adapter.AfterWrite(context.Background(), source,
		engine.Written{ID: "901", GID: "gid://shopify/Product/901", Title: "Tee"}, true)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, effects.Failed, 1)
	var found bool
	for _, e := range effects.Errors {
		if e.Title == "M" && strings.Contains(e.Detail, "negative") {
			found = true
		}
	}
	assert.True(t, found, "expected the rejection attributed to variant M")
}
