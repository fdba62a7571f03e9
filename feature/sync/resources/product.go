package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/feraraujofilho/prod-staging-sync-app-sub001/core/remote"
	"github.com/feraraujofilho/prod-staging-sync-app-sub001/feature/sync/engine"
	"github.com/feraraujofilho/prod-staging-sync-app-sub001/feature/sync/inventory"
	"github.com/feraraujofilho/prod-staging-sync-app-sub001/feature/sync/mapping"
	"github.com/feraraujofilho/prod-staging-sync-app-sub001/feature/sync/match"
	"github.com/feraraujofilho/prod-staging-sync-app-sub001/feature/sync/metafields"
	"github.com/feraraujofilho/prod-staging-sync-app-sub001/feature/sync/models"

	"go.uber.org/zap"
)

// selectedOption is one name/value pair of a variant.
type selectedOption struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// inventoryLevelNode is one location's quantities for an inventory item.
type inventoryLevelNode struct {
	Location struct {
		ID string `json:"id"`
	} `json:"location"`
	Quantities []struct {
		Name     string `json:"name"`
		Quantity int    `json:"quantity"`
	} `json:"quantities"`
}

// available extracts the "available" quantity of a level node.
func (n inventoryLevelNode) available() int {
	for _, q := range n.Quantities {
		if q.Name == "available" {
			return q.Quantity
		}
	}
	return 0
}

// productVariant is one sellable variation of a product.
type productVariant struct {
	ID              string           `json:"id"`
	Title           string           `json:"title"`
	SKU             string           `json:"sku"`
	Price           string           `json:"price"`
	CompareAtPrice  string           `json:"compareAtPrice"`
	Barcode         string           `json:"barcode"`
	SelectedOptions []selectedOption `json:"selectedOptions"`
	InventoryItem   struct {
		ID              string `json:"id"`
		Tracked         bool   `json:"tracked"`
		InventoryLevels struct {
			Nodes []inventoryLevelNode `json:"nodes"`
		} `json:"inventoryLevels"`
	} `json:"inventoryItem"`
}

// optionKey returns the order-independent option-set key of a variant.
func (v productVariant) optionKey() string {
	pairs := make([]match.OptionPair, 0, len(v.SelectedOptions))
	for _, opt := range v.SelectedOptions {
		pairs = append(pairs, match.OptionPair{Name: opt.Name, Value: opt.Value})
	}
	return match.OptionSetKey(pairs)
}

// levels returns the variant's per-location available quantities.
func (v productVariant) levels() []inventory.Level {
	result := make([]inventory.Level, 0, len(v.InventoryItem.InventoryLevels.Nodes))
	for _, node := range v.InventoryItem.InventoryLevels.Nodes {
		result = append(result, inventory.Level{
			LocationGID: node.Location.ID,
			Available:   node.available(),
		})
	}
	return result
}

// productPayload is the decoded source product with its variants, media and
// inventory state.
type productPayload struct {
	ID              string   `json:"id"`
	Handle          string   `json:"handle"`
	Title           string   `json:"title"`
	DescriptionHTML string   `json:"descriptionHtml"`
	Vendor          string   `json:"vendor"`
	ProductType     string   `json:"productType"`
	Status          string   `json:"status"`
	Tags            []string `json:"tags"`
	Options         []struct {
		Name   string   `json:"name"`
		Values []string `json:"values"`
	} `json:"options"`
	Variants struct {
		Nodes []productVariant `json:"nodes"`
	} `json:"variants"`
	Media struct {
		Nodes []struct {
			Typename string `json:"__typename"`
			Alt      string `json:"alt"`
			Image    *struct {
				URL string `json:"url"`
			} `json:"image"`
		} `json:"nodes"`
	} `json:"media"`
}

// ProductAdapter syncs products with their variants, media, inventory and
// metafield values. The product itself is handle-matched; variants within a
// matched product pair are matched by option-set key.
type ProductAdapter struct {
	deps       Deps
	locations  map[string]string
	reconciler *inventory.Reconciler
	values     *metafields.ValueSyncer

	// publicationIDs caches the target's channels for the whole run.
	publicationIDs []string
}

// NewProductAdapter creates the products adapter. locations is the persisted
// source-to-target location map built before resource sync.
func NewProductAdapter(deps Deps, locations map[string]string) *ProductAdapter {
	return &ProductAdapter{
		deps:       deps,
		locations:  locations,
		reconciler: inventory.NewReconciler(deps.Tgt, locations, deps.Logger),
		values:     metafields.NewValueSyncer(deps.Src, deps.Tgt, deps.Registry, deps.Logger, deps.pageSize()),
	}
}

func (a *ProductAdapter) Name() string              { return "products" }
func (a *ProductAdapter) Type() models.ResourceType { return models.ResourceProducts }
func (a *ProductAdapter) KeyName() string           { return "handle" }

const productsQuery = `
query Products($first: Int!, $after: String) {
  products(first: $first, after: $after) {
    nodes {
      id
      handle
      title
      descriptionHtml
      vendor
      productType
      status
      tags
      options { name values }
      variants(first: 100) {
        nodes {
          id
          title
          sku
          price
          compareAtPrice
          barcode
          selectedOptions { name value }
          inventoryItem {
            id
            tracked
            inventoryLevels(first: 50) {
              nodes {
                location { id }
                quantities(names: ["available"]) { name quantity }
              }
            }
          }
        }
      }
      media(first: 50) {
        nodes {
          __typename
          alt
          ... on MediaImage {
            image { url }
          }
        }
      }
    }
    pageInfo { hasNextPage endCursor }
  }
}`

const productCreateMutation = `
mutation ProductCreate($input: ProductInput!) {
  productCreate(input: $input) {
    product { id handle title }
    userErrors { field message }
  }
}`

const productUpdateMutation = `
mutation ProductUpdate($input: ProductInput!) {
  productUpdate(input: $input) {
    product { id handle title }
    userErrors { field message }
  }
}`

const productDetailQuery = `
query ProductDetail($id: ID!) {
  product(id: $id) {
    id
    mediaCount { count }
    variants(first: 100) {
      nodes {
        id
        title
        selectedOptions { name value }
        inventoryItem {
          id
          inventoryLevels(first: 50) {
            nodes {
              location { id }
              quantities(names: ["available"]) { name quantity }
            }
          }
        }
      }
    }
  }
}`

const variantsBulkCreateMutation = `
mutation ProductVariantsBulkCreate($productId: ID!, $strategy: ProductVariantsBulkCreateStrategy, $variants: [ProductVariantsBulkInput!]!) {
  productVariantsBulkCreate(productId: $productId, strategy: $strategy, variants: $variants) {
    productVariants {
      id
      selectedOptions { name value }
      inventoryItem { id }
    }
    userErrors { field message }
  }
}`

const variantsBulkUpdateMutation = `
mutation ProductVariantsBulkUpdate($productId: ID!, $variants: [ProductVariantsBulkInput!]!) {
  productVariantsBulkUpdate(productId: $productId, variants: $variants) {
    productVariants { id }
    userErrors { field message }
  }
}`

const productCreateMediaMutation = `
mutation ProductCreateMedia($productId: ID!, $media: [CreateMediaInput!]!) {
  productCreateMedia(productId: $productId, media: $media) {
    media { alt }
    mediaUserErrors { field message }
  }
}`

const publicationsQuery = `
query Publications($first: Int!, $after: String) {
  publications(first: $first, after: $after) {
    nodes { id }
    pageInfo { hasNextPage endCursor }
  }
}`

const publishablePublishMutation = `
mutation PublishablePublish($id: ID!, $input: [PublicationInput!]!) {
  publishablePublish(id: $id, input: $input) {
    userErrors { field message }
  }
}`

func decodeProduct(raw json.RawMessage) (engine.Item, error) {
	var p productPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return engine.Item{}, fmt.Errorf("failed to decode product: %w", err)
	}
	return engine.Item{
		ID:      mapping.NumericID(p.ID),
		GID:     p.ID,
		Title:   p.Title,
		Key:     match.HandleKey(p.Handle),
		Payload: p,
	}, nil
}

func (a *ProductAdapter) FetchSourcePage(ctx context.Context, cursor *string) (*engine.Page, error) {
	return fetchEnginePage(ctx, a.deps.Src, productsQuery, "products", a.deps.pageSize(), cursor, decodeProduct)
}

func (a *ProductAdapter) FetchTargetPage(ctx context.Context, cursor *string) (*engine.Page, error) {
	return fetchEnginePage(ctx, a.deps.Tgt, productsQuery, "products", a.deps.pageSize(), cursor, decodeProduct)
}

func (a *ProductAdapter) productInput(p productPayload) map[string]any {
	input := map[string]any{
		"title":           p.Title,
		"handle":          p.Handle,
		"descriptionHtml": p.DescriptionHTML,
		"vendor":          p.Vendor,
		"productType":     p.ProductType,
		"status":          p.Status,
		"tags":            p.Tags,
	}
	return input
}

func (a *ProductAdapter) Create(ctx context.Context, source engine.Item) (*engine.Written, error) {
	p := source.Payload.(productPayload)

	input := a.productInput(p)
	if len(p.Options) > 0 {
		options := make([]map[string]any, 0, len(p.Options))
		for _, opt := range p.Options {
			values := make([]map[string]any, 0, len(opt.Values))
			for _, v := range opt.Values {
				values = append(values, map[string]any{"name": v})
			}
			options = append(options, map[string]any{"name": opt.Name, "values": values})
		}
		input["productOptions"] = options
	}

	var result struct {
		ProductCreate struct {
			Product *struct {
				ID    string `json:"id"`
				Title string `json:"title"`
			} `json:"product"`
			UserErrors []UserError `json:"userErrors"`
		} `json:"productCreate"`
	}
	err := a.deps.Tgt.Query(ctx, productCreateMutation, map[string]any{"input": input}, &result)
	if err == nil {
		err = userErrorsToError(result.ProductCreate.UserErrors)
	}
	if err != nil {
		return nil, err
	}

	created := result.ProductCreate.Product
	if created == nil {
		return nil, fmt.Errorf("productCreate returned no product for %s", source.Key)
	}
	return &engine.Written{ID: mapping.NumericID(created.ID), GID: created.ID, Title: created.Title}, nil
}

func (a *ProductAdapter) Update(ctx context.Context, source, target engine.Item) (*engine.Written, error) {
	p := source.Payload.(productPayload)

	input := a.productInput(p)
	input["id"] = target.GID

	var result struct {
		ProductUpdate struct {
			Product *struct {
				ID    string `json:"id"`
				Title string `json:"title"`
			} `json:"product"`
			UserErrors []UserError `json:"userErrors"`
		} `json:"productUpdate"`
	}
	err := a.deps.Tgt.Query(ctx, productUpdateMutation, map[string]any{"input": input}, &result)
	if err == nil {
		err = userErrorsToError(result.ProductUpdate.UserErrors)
	}
	if err != nil {
		return nil, err
	}

	return &engine.Written{ID: target.ID, GID: target.GID, Title: p.Title}, nil
}

// targetVariant is the target-side variant state needed after the product
// write: option key for matching plus inventory item and current levels.
type targetVariant struct {
	gid       string
	itemGID   string
	optionKey string
	levels    []inventory.Level
}

// AfterWrite finishes the product's dependent work: extra variants, media,
// per-location inventory, sales-channel publishing, and metafield values.
func (a *ProductAdapter) AfterWrite(ctx context.Context, source engine.Item, target engine.Written, created bool) (*engine.Effects, error) {
	p := source.Payload.(productPayload)
	effects := &engine.Effects{}
	log := a.deps.Logger.With(zap.String("product", source.Key))

	targetVariants, mediaCount, err := a.fetchTargetDetail(ctx, target.GID)
	if err != nil {
		return nil, fmt.Errorf("failed to load target product detail: %w", err)
	}

	// Variants the target does not have yet are bulk-created in one call.
	missing := make([]productVariant, 0)
	for _, v := range p.Variants.Nodes {
		if _, ok := targetVariants[v.optionKey()]; !ok {
			missing = append(missing, v)
		}
	}
	if len(missing) > 0 {
		a.bulkCreateVariants(ctx, target.GID, missing, created, targetVariants, effects)
	}

	// Price and identity fields of already-present variants follow the source.
	a.bulkUpdateVariants(ctx, target.GID, p.Variants.Nodes, missing, targetVariants, effects)

	// Map variants and reconcile their per-location inventory.
	for _, v := range p.Variants.Nodes {
		tv, ok := targetVariants[v.optionKey()]
		if !ok {
			continue
		}

		if err := a.deps.Registry.SaveMapping(ctx, models.ResourceVariants, mapping.Fields{
			SourceID:       mapping.NumericID(v.ID),
			TargetID:       mapping.NumericID(tv.gid),
			SourceGlobalID: v.ID,
			TargetGlobalID: tv.gid,
			MatchKey:       "options",
			MatchValue:     v.optionKey(),
			Title:          source.Title + " / " + v.Title,
		}); err != nil {
			log.Warn("Failed to save variant mapping", zap.String("variant", v.Title), zap.Error(err))
		}

		if !v.InventoryItem.Tracked || tv.itemGID == "" {
			continue
		}
		result, err := a.reconciler.Reconcile(ctx, tv.itemGID, v.levels(), tv.levels)
		if err != nil {
			return effects, err
		}
		effects.Updated += result.Updated
		effects.Skipped += result.Skipped
		effects.Failed += result.Failed
		for _, f := range result.Failures {
			effects.Errors = append(effects.Errors, engine.EntityError{
				Key:    source.Key,
				Title:  v.Title,
				Detail: fmt.Sprintf("inventory at %s: %s", f.LocationGID, f.Detail),
			})
		}
	}

	// Media is copied only onto a bare product. Re-running against a product
	// that already has media would duplicate every image.
	if mediaCount == 0 {
		a.createMedia(ctx, target.GID, p, effects)
	}

	if created {
		a.publish(ctx, target.GID, effects)
	}

	valueReport, err := a.values.SyncValues(ctx, source.GID, target.GID, "product "+source.Key)
	if err != nil {
		return effects, err
	}
	if ve := valueEffects(valueReport); ve != nil {
		effects.Failed += ve.Failed
		effects.Errors = append(effects.Errors, ve.Errors...)
		effects.Notes = append(effects.Notes, ve.Notes...)
	}

	return effects, nil
}

func (a *ProductAdapter) fetchTargetDetail(ctx context.Context, productGID string) (map[string]targetVariant, int, error) {
	var result struct {
		Product *struct {
			MediaCount struct {
				Count int `json:"count"`
			} `json:"mediaCount"`
			Variants struct {
				Nodes []productVariant `json:"nodes"`
			} `json:"variants"`
		} `json:"product"`
	}
	if err := a.deps.Tgt.Query(ctx, productDetailQuery, map[string]any{"id": productGID}, &result); err != nil {
		return nil, 0, err
	}
	if result.Product == nil {
		return nil, 0, fmt.Errorf("target product %s not found", productGID)
	}

	variants := make(map[string]targetVariant, len(result.Product.Variants.Nodes))
	for _, v := range result.Product.Variants.Nodes {
		variants[v.optionKey()] = targetVariant{
			gid:       v.ID,
			itemGID:   v.InventoryItem.ID,
			optionKey: v.optionKey(),
			levels:    v.levels(),
		}
	}
	return variants, result.Product.MediaCount.Count, nil
}

func variantBulkInput(v productVariant) map[string]any {
	optionValues := make([]map[string]any, 0, len(v.SelectedOptions))
	for _, opt := range v.SelectedOptions {
		optionValues = append(optionValues, map[string]any{"optionName": opt.Name, "name": opt.Value})
	}
	input := map[string]any{
		"price":        v.Price,
		"optionValues": optionValues,
		"inventoryItem": map[string]any{
			"sku":     v.SKU,
			"tracked": v.InventoryItem.Tracked,
		},
	}
	if v.CompareAtPrice != "" {
		input["compareAtPrice"] = v.CompareAtPrice
	}
	if v.Barcode != "" {
		input["barcode"] = v.Barcode
	}
	return input
}

// bulkCreateVariants creates the missing variants in one call and folds the
// created ones into the target index. User errors are attributed back to the
// individual variant via the index in the error field path.
func (a *ProductAdapter) bulkCreateVariants(ctx context.Context, productGID string, missing []productVariant, productCreated bool, targetVariants map[string]targetVariant, effects *engine.Effects) {
	inputs := make([]map[string]any, 0, len(missing))
	for _, v := range missing {
		inputs = append(inputs, variantBulkInput(v))
	}

	vars := map[string]any{
		"productId": productGID,
		"variants":  inputs,
	}
	// A freshly created product carries a placeholder default variant that
	// must give way to the real ones.
	if productCreated {
		vars["strategy"] = "REMOVE_STANDALONE_VARIANT"
	} else {
		vars["strategy"] = "DEFAULT"
	}

	var result struct {
		ProductVariantsBulkCreate struct {
			ProductVariants []struct {
				ID              string           `json:"id"`
				SelectedOptions []selectedOption `json:"selectedOptions"`
				InventoryItem   struct {
					ID string `json:"id"`
				} `json:"inventoryItem"`
			} `json:"productVariants"`
			UserErrors []UserError `json:"userErrors"`
		} `json:"productVariantsBulkCreate"`
	}
	if err := a.deps.Tgt.Query(ctx, variantsBulkCreateMutation, vars, &result); err != nil {
		effects.Failed += len(missing)
		effects.Errors = append(effects.Errors, engine.EntityError{
			Key:    mapping.NumericID(productGID),
			Detail: fmt.Sprintf("variant bulk create: %v", err),
		})
		return
	}

	failed := make(map[int]bool)
	for _, ue := range result.ProductVariantsBulkCreate.UserErrors {
		idx, ok := bulkErrorIndex(ue.Field, "variants")
		detail := ue.Message
		title := "variant"
		if ok && idx < len(missing) {
			failed[idx] = true
			title = missing[idx].Title
		}
		effects.Failed++
		effects.Errors = append(effects.Errors, engine.EntityError{
			Key:    mapping.NumericID(productGID),
			Title:  title,
			Detail: detail,
		})
	}

	for _, created := range result.ProductVariantsBulkCreate.ProductVariants {
		v := productVariant{ID: created.ID, SelectedOptions: created.SelectedOptions}
		targetVariants[v.optionKey()] = targetVariant{
			gid:       created.ID,
			itemGID:   created.InventoryItem.ID,
			optionKey: v.optionKey(),
		}
		effects.Created++
	}
}

// bulkUpdateVariants pushes price and identity fields of matched variants.
func (a *ProductAdapter) bulkUpdateVariants(ctx context.Context, productGID string, all, missing []productVariant, targetVariants map[string]targetVariant, effects *engine.Effects) {
	created := make(map[string]bool, len(missing))
	for _, v := range missing {
		created[v.optionKey()] = true
	}

	inputs := make([]map[string]any, 0, len(all))
	for _, v := range all {
		if created[v.optionKey()] {
			continue
		}
		tv, ok := targetVariants[v.optionKey()]
		if !ok {
			continue
		}
		input := variantBulkInput(v)
		delete(input, "optionValues")
		input["id"] = tv.gid
		inputs = append(inputs, input)
	}
	if len(inputs) == 0 {
		return
	}

	var result struct {
		ProductVariantsBulkUpdate struct {
			UserErrors []UserError `json:"userErrors"`
		} `json:"productVariantsBulkUpdate"`
	}
	err := a.deps.Tgt.Query(ctx, variantsBulkUpdateMutation, map[string]any{
		"productId": productGID,
		"variants":  inputs,
	}, &result)
	if err == nil {
		err = userErrorsToError(result.ProductVariantsBulkUpdate.UserErrors)
	}
	if err != nil {
		effects.Failed++
		effects.Errors = append(effects.Errors, engine.EntityError{
			Key:    mapping.NumericID(productGID),
			Detail: fmt.Sprintf("variant bulk update: %v", err),
		})
	}
}

// bulkErrorIndex extracts the element index from a user error field path of
// the form [container, "2", ...].
func bulkErrorIndex(field []string, container string) (int, bool) {
	for i, segment := range field {
		if segment == container && i+1 < len(field) {
			idx, err := strconv.Atoi(field[i+1])
			if err == nil && idx >= 0 {
				return idx, true
			}
		}
	}
	return 0, false
}

func (a *ProductAdapter) createMedia(ctx context.Context, productGID string, p productPayload, effects *engine.Effects) {
	media := make([]map[string]any, 0, len(p.Media.Nodes))
	for _, m := range p.Media.Nodes {
		if m.Typename != "MediaImage" || m.Image == nil || m.Image.URL == "" {
			continue
		}
		media = append(media, map[string]any{
			"alt":              m.Alt,
			"mediaContentType": "IMAGE",
			"originalSource":   m.Image.URL,
		})
	}
	if len(media) == 0 {
		return
	}

	var result struct {
		ProductCreateMedia struct {
			MediaUserErrors []UserError `json:"mediaUserErrors"`
		} `json:"productCreateMedia"`
	}
	err := a.deps.Tgt.Query(ctx, productCreateMediaMutation, map[string]any{
		"productId": productGID,
		"media":     media,
	}, &result)
	if err == nil {
		err = userErrorsToError(result.ProductCreateMedia.MediaUserErrors)
	}
	if err != nil {
		effects.Failed++
		effects.Errors = append(effects.Errors, engine.EntityError{
			Key:    mapping.NumericID(productGID),
			Detail: fmt.Sprintf("media create: %v", err),
		})
		return
	}
	effects.Created += len(media)
}

// publish attaches a freshly created product to every sales channel of the
// target store.
func (a *ProductAdapter) publish(ctx context.Context, productGID string, effects *engine.Effects) {
	if a.publicationIDs == nil {
		nodes, err := remote.CollectAll(ctx, func(ctx context.Context, cursor *string) (*remote.Batch, error) {
			var result struct {
				Publications struct {
					Nodes    []json.RawMessage `json:"nodes"`
					PageInfo remote.PageInfo   `json:"pageInfo"`
				} `json:"publications"`
			}
			if err := a.deps.Tgt.Query(ctx, publicationsQuery, remote.CursorVariables(a.deps.pageSize(), cursor), &result); err != nil {
				return nil, err
			}
			return &remote.Batch{Nodes: result.Publications.Nodes, PageInfo: result.Publications.PageInfo}, nil
		})
		if err != nil {
			// Not cached; the next created product tries again.
			effects.Failed++
			effects.Errors = append(effects.Errors, engine.EntityError{
				Key:    mapping.NumericID(productGID),
				Detail: fmt.Sprintf("publications unavailable, product left unpublished: %v", err),
			})
			return
		}
		ids := make([]string, 0, len(nodes))
		for _, raw := range nodes {
			var node struct {
				ID string `json:"id"`
			}
			if err := json.Unmarshal(raw, &node); err != nil {
				continue
			}
			ids = append(ids, node.ID)
		}
		a.publicationIDs = ids
	}
	if len(a.publicationIDs) == 0 {
		return
	}

	input := make([]map[string]any, 0, len(a.publicationIDs))
	for _, id := range a.publicationIDs {
		input = append(input, map[string]any{"publicationId": id})
	}

	var result struct {
		PublishablePublish struct {
			UserErrors []UserError `json:"userErrors"`
		} `json:"publishablePublish"`
	}
	err := a.deps.Tgt.Query(ctx, publishablePublishMutation, map[string]any{
		"id":    productGID,
		"input": input,
	}, &result)
	if err == nil {
		err = userErrorsToError(result.PublishablePublish.UserErrors)
	}
	if err != nil {
		effects.Failed++
		effects.Errors = append(effects.Errors, engine.EntityError{
			Key:    mapping.NumericID(productGID),
			Detail: fmt.Sprintf("publish failed: %v", err),
		})
	}
}
