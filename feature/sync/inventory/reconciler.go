package inventory

import (
	"context"
	"fmt"

	"github.com/feraraujofilho/prod-staging-sync-app-sub001/core/remote"

	"go.uber.org/zap"
)

// Level is one location's available quantity for an inventory item.
type Level struct {
	LocationGID string
	Available   int
}

// Failure attributes a reconciliation miss to one source location.
type Failure struct {
	LocationGID string `json:"locationGid"`
	Detail      string `json:"detail"`
}

// Result aggregates one item's reconciliation across its stocked locations.
type Result struct {
	Updated  int
	Skipped  int
	Failed   int
	Failures []Failure
}

// Reconciler aligns available quantities on the target with the source,
// location by location. Only the "available" quantity is reconciled;
// incoming, committed and reserved quantities are derived from orders and
// transfers that do not exist on the target.
type Reconciler struct {
	tgt       remote.Client
	locations map[string]string
	logger    *zap.Logger
}

// NewReconciler creates a reconciler using the connection's persisted
// source-to-target location map.
func NewReconciler(tgt remote.Client, locations map[string]string, logger *zap.Logger) *Reconciler {
	return &Reconciler{tgt: tgt, locations: locations, logger: logger}
}

const inventoryActivateMutation = `
mutation InventoryActivate($inventoryItemId: ID!, $locationId: ID!) {
  inventoryActivate(inventoryItemId: $inventoryItemId, locationId: $locationId) {
    inventoryLevel { id }
    userErrors { field message }
  }
}`

const inventorySetQuantitiesMutation = `
mutation InventorySetQuantities($input: InventorySetQuantitiesInput!) {
  inventorySetQuantities(input: $input) {
    inventoryAdjustmentGroup { id }
    userErrors { field message }
  }
}`

type mutationUserError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
}

// Reconcile sets the target item's available quantity at every mapped
// location to the source value. A location missing from the map, or a
// rejected write, is recorded as that location's failure; the remaining
// locations are still reconciled.
func (r *Reconciler) Reconcile(ctx context.Context, targetItemGID string, sourceLevels, targetLevels []Level) (*Result, error) {
	result := &Result{}

	existing := make(map[string]int, len(targetLevels))
	for _, lvl := range targetLevels {
		existing[lvl.LocationGID] = lvl.Available
	}

	for _, src := range sourceLevels {
		targetLocation, mapped := r.locations[src.LocationGID]
		if !mapped {
			result.Failed++
			result.Failures = append(result.Failures, Failure{
				LocationGID: src.LocationGID,
				Detail:      "source location has no matched target location",
			})
			continue
		}

		current, stocked := existing[targetLocation]
		if stocked && current == src.Available {
			result.Skipped++
			continue
		}

		// An item cannot take a quantity at a location it is not stocked at.
		if !stocked {
			if err := r.activate(ctx, targetItemGID, targetLocation); err != nil {
				result.Failed++
				result.Failures = append(result.Failures, Failure{
					LocationGID: src.LocationGID,
					Detail:      fmt.Sprintf("failed to activate location: %v", err),
				})
				continue
			}
		}

		if err := r.setAvailable(ctx, targetItemGID, targetLocation, src.Available); err != nil {
			if remote.IsFatal(err) {
				return result, err
			}
			result.Failed++
			result.Failures = append(result.Failures, Failure{
				LocationGID: src.LocationGID,
				Detail:      err.Error(),
			})
			continue
		}

		result.Updated++
	}

	return result, nil
}

func (r *Reconciler) activate(ctx context.Context, itemGID, locationGID string) error {
	var out struct {
		InventoryActivate struct {
			UserErrors []mutationUserError `json:"userErrors"`
		} `json:"inventoryActivate"`
	}
	err := r.tgt.Query(ctx, inventoryActivateMutation, map[string]any{
		"inventoryItemId": itemGID,
		"locationId":      locationGID,
	}, &out)
	if err != nil {
		return err
	}
	return firstUserError(out.InventoryActivate.UserErrors)
}

func (r *Reconciler) setAvailable(ctx context.Context, itemGID, locationGID string, quantity int) error {
	var out struct {
		InventorySetQuantities struct {
			UserErrors []mutationUserError `json:"userErrors"`
		} `json:"inventorySetQuantities"`
	}
	// ignoreCompareQuantity: the source value wins unconditionally; there is
	// no meaningful compare-and-swap against a quantity set by a prior run.
	err := r.tgt.Query(ctx, inventorySetQuantitiesMutation, map[string]any{
		"input": map[string]any{
			"name":                  "available",
			"reason":                "correction",
			"ignoreCompareQuantity": true,
			"quantities": []map[string]any{{
				"inventoryItemId": itemGID,
				"locationId":      locationGID,
				"quantity":        quantity,
			}},
		},
	}, &out)
	if err != nil {
		return err
	}
	return firstUserError(out.InventorySetQuantities.UserErrors)
}

func firstUserError(errs []mutationUserError) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%s", errs[0].Message)
}
