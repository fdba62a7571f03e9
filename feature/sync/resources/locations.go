package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/feraraujofilho/prod-staging-sync-app-sub001/core/remote"
	"github.com/feraraujofilho/prod-staging-sync-app-sub001/feature/sync/mapping"
	"github.com/feraraujofilho/prod-staging-sync-app-sub001/feature/sync/match"
	"github.com/feraraujofilho/prod-staging-sync-app-sub001/feature/sync/models"

	"go.uber.org/zap"
)

// Location is one physical or virtual stock location.
type Location struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IsActive bool   `json:"isActive"`
}

// LocationReport summarizes the match pass.
type LocationReport struct {
	Matched   int
	Unmatched []string
}

const locationsQuery = `
query Locations($first: Int!, $after: String) {
  locations(first: $first, after: $after, includeInactive: false) {
    nodes {
      id
      name
      isActive
    }
    pageInfo { hasNextPage endCursor }
  }
}`

// BuildLocationMap matches source locations to target locations by name,
// case-insensitively. Locations are never created or modified; a source
// location with no same-named active counterpart is reported and its
// inventory is later skipped. Matches are persisted so reference
// translation and inventory reconciliation share one map.
func BuildLocationMap(ctx context.Context, deps Deps) (map[string]string, *LocationReport, error) {
	report := &LocationReport{}

	sourceLocations, err := fetchLocations(ctx, deps.Src, deps.pageSize())
	if err != nil {
		return nil, report, fmt.Errorf("failed to fetch source locations: %w", err)
	}
	targetLocations, err := fetchLocations(ctx, deps.Tgt, deps.pageSize())
	if err != nil {
		return nil, report, fmt.Errorf("failed to fetch target locations: %w", err)
	}

	targetByName := make(map[string]Location, len(targetLocations))
	for _, loc := range targetLocations {
		if !loc.IsActive {
			continue
		}
		targetByName[match.NameKey(loc.Name)] = loc
	}

	result := make(map[string]string)
	for _, src := range sourceLocations {
		if !src.IsActive {
			continue
		}
		tgt, ok := targetByName[match.NameKey(src.Name)]
		if !ok {
			report.Unmatched = append(report.Unmatched, src.Name)
			deps.Logger.Warn("Source location has no target counterpart", zap.String("name", src.Name))
			continue
		}

		if err := deps.Registry.SaveMapping(ctx, models.ResourceLocations, mapping.Fields{
			SourceID:       mapping.NumericID(src.ID),
			TargetID:       mapping.NumericID(tgt.ID),
			SourceGlobalID: src.ID,
			TargetGlobalID: tgt.ID,
			MatchKey:       "name",
			MatchValue:     match.NameKey(src.Name),
			Title:          src.Name,
		}); err != nil {
			return nil, report, fmt.Errorf("failed to save location mapping for %q: %w", src.Name, err)
		}

		result[src.ID] = tgt.ID
		report.Matched++
	}

	return result, report, nil
}

func fetchLocations(ctx context.Context, client remote.Client, pageSize int) ([]Location, error) {
	nodes, err := remote.CollectAll(ctx, func(ctx context.Context, cursor *string) (*remote.Batch, error) {
		return queryConnection(ctx, client, locationsQuery, "locations", remote.CursorVariables(pageSize, cursor))
	})
	if err != nil {
		return nil, err
	}

	locations := make([]Location, 0, len(nodes))
	for _, raw := range nodes {
		var loc Location
		if err := json.Unmarshal(raw, &loc); err != nil {
			return nil, fmt.Errorf("failed to decode location: %w", err)
		}
		locations = append(locations, loc)
	}
	return locations, nil
}
