package mapping

import (
	"context"
	"time"

	"github.com/feraraujofilho/prod-staging-sync-app-sub001/feature/sync/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Registry persists source-to-target id pairs for one connection and
// translates embedded references. It is the only state shared across stages
// within a run; all writes are upserts by key.
type Registry struct {
	db           *gorm.DB
	connectionID uint
	logger       *zap.Logger
}

// NewRegistry creates a registry scoped to one connection.
func NewRegistry(db *gorm.DB, connectionID uint, logger *zap.Logger) *Registry {
	return &Registry{db: db, connectionID: connectionID, logger: logger}
}

// ConnectionID returns the connection this registry is scoped to.
func (r *Registry) ConnectionID() uint { return r.connectionID }

// Fields carries the mapping attributes written on a successful create or
// update of a target entity.
type Fields struct {
	SourceID       string
	TargetID       string
	SourceGlobalID string
	TargetGlobalID string
	MatchKey       string
	MatchValue     string
	Title          string
}

// SaveMapping upserts the mapping identified by (connection, resource type,
// source id). Unmapped references recorded earlier for the same source
// global id are retroactively marked resolved.
func (r *Registry) SaveMapping(ctx context.Context, resourceType models.ResourceType, fields Fields) error {
	record := models.ResourceMapping{
		ConnectionID:   r.connectionID,
		ResourceType:   resourceType,
		SourceID:       fields.SourceID,
		TargetID:       fields.TargetID,
		SourceGlobalID: fields.SourceGlobalID,
		TargetGlobalID: fields.TargetGlobalID,
		MatchKey:       fields.MatchKey,
		MatchValue:     fields.MatchValue,
		Title:          fields.Title,
		LastSyncedAt:   time.Now().UTC(),
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "connection_id"},
			{Name: "resource_type"},
			{Name: "source_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"target_id", "source_global_id", "target_global_id",
			"match_key", "match_value", "title", "last_synced_at",
		}),
	}).Create(&record).Error
	if err != nil {
		return err
	}

	if fields.SourceGlobalID != "" {
		// Best effort; a failed resolve flag never fails the mapping write.
		if err := r.db.WithContext(ctx).
			Model(&models.UnmappedReference{}).
			Where("connection_id = ? AND source_global_id = ? AND resolved = ?", r.connectionID, fields.SourceGlobalID, false).
			Update("resolved", true).Error; err != nil {
			r.logger.Warn("Failed to resolve unmapped references", zap.String("source_gid", fields.SourceGlobalID), zap.Error(err))
		}
	}

	return nil
}

// TargetID looks up the target id mapped to a source id.
func (r *Registry) TargetID(ctx context.Context, resourceType models.ResourceType, sourceID string) (string, bool) {
	var m models.ResourceMapping
	err := r.db.WithContext(ctx).
		Where("connection_id = ? AND resource_type = ? AND source_id = ?", r.connectionID, resourceType, sourceID).
		First(&m).Error
	if err != nil {
		return "", false
	}
	return m.TargetID, true
}

// Translate converts a source global identifier into its target counterpart.
// On a miss it idempotently records an UnmappedReference (keyed by
// connection, source gid, and context) and returns ok=false. Malformed input
// returns ok=false without recording anything. It never returns an error:
// callers rewriting references must leave unresolved values untouched rather
// than write a corrupted partial identifier.
func (r *Registry) Translate(ctx context.Context, sourceGID, foundInType, refContext string) (string, bool) {
	parsed, valid := ParseGID(sourceGID)
	if !valid {
		return "", false
	}

	var m models.ResourceMapping
	err := r.db.WithContext(ctx).
		Where("connection_id = ? AND resource_type = ? AND source_id = ?", r.connectionID, parsed.Type, parsed.ID).
		First(&m).Error
	if err == nil && m.TargetGlobalID != "" {
		return m.TargetGlobalID, true
	}

	r.recordUnmapped(ctx, parsed, sourceGID, foundInType, refContext)
	return "", false
}

func (r *Registry) recordUnmapped(ctx context.Context, parsed ParsedGID, sourceGID, foundInType, refContext string) {
	ref := models.UnmappedReference{
		ConnectionID:   r.connectionID,
		ResourceType:   parsed.Type,
		SourceGlobalID: sourceGID,
		SourceID:       parsed.ID,
		Context:        refContext,
		FoundInType:    foundInType,
		AttemptedAt:    time.Now().UTC(),
	}

	// DoNothing keeps the first attempt; re-runs must not create duplicates.
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "connection_id"},
			{Name: "source_global_id"},
			{Name: "context"},
		},
		DoNothing: true,
	}).Create(&ref).Error
	if err != nil {
		r.logger.Warn("Failed to record unmapped reference",
			zap.String("source_gid", sourceGID),
			zap.String("context", refContext),
			zap.Error(err))
	}
}

// LocationMap returns the persisted source-location-id to target-location-id
// map for this connection, keyed and valued by global identifiers.
func (r *Registry) LocationMap(ctx context.Context) (map[string]string, error) {
	var mappings []models.ResourceMapping
	err := r.db.WithContext(ctx).
		Where("connection_id = ? AND resource_type = ?", r.connectionID, models.ResourceLocations).
		Find(&mappings).Error
	if err != nil {
		return nil, err
	}

	result := make(map[string]string, len(mappings))
	for _, m := range mappings {
		result[m.SourceGlobalID] = m.TargetGlobalID
	}
	return result, nil
}

// Mappings lists the stored mappings for a resource type, newest first.
func (r *Registry) Mappings(ctx context.Context, resourceType models.ResourceType) ([]models.ResourceMapping, error) {
	var mappings []models.ResourceMapping
	q := r.db.WithContext(ctx).Where("connection_id = ?", r.connectionID)
	if resourceType != "" {
		q = q.Where("resource_type = ?", resourceType)
	}
	err := q.Order("last_synced_at DESC").Find(&mappings).Error
	return mappings, err
}

// Unmapped lists the recorded unmapped references, unresolved first.
func (r *Registry) Unmapped(ctx context.Context) ([]models.UnmappedReference, error) {
	var refs []models.UnmappedReference
	err := r.db.WithContext(ctx).
		Where("connection_id = ?", r.connectionID).
		Order("resolved ASC, attempted_at DESC").
		Find(&refs).Error
	return refs, err
}
