package mapping

import (
	"context"
	"testing"

	"github.com/feraraujofilho/prod-staging-sync-app-sub001/feature/sync/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, models.Migrate(db))
	return db
}

func TestTranslate_EmptyRegistryRecordsUnmappedOnce(t *testing.T) {
	db := newTestDB(t)
	reg := NewRegistry(db, 1, zap.NewNop())
	ctx := context.Background()

	gid := "gid://shopify/Product/123"

	_, ok := reg.Translate(ctx, gid, "menus", "menu item link")
	assert.False(t, ok)

	var count int64
	db.Model(&models.UnmappedReference{}).Count(&count)
	assert.Equal(t, int64(1), count)

	// Same gid and context again: still unmapped, still exactly one record.
	_, ok = reg.Translate(ctx, gid, "menus", "menu item link")
	assert.False(t, ok)
	db.Model(&models.UnmappedReference{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestTranslate_AfterSaveMappingResolves(t *testing.T) {
	db := newTestDB(t)
	reg := NewRegistry(db, 1, zap.NewNop())
	ctx := context.Background()

	gid := "gid://shopify/Product/123"
	_, ok := reg.Translate(ctx, gid, "menus", "menu item link")
	require.False(t, ok)

	err := reg.SaveMapping(ctx, models.ResourceProducts, Fields{
		SourceID:       "123",
		TargetID:       "987",
		SourceGlobalID: gid,
		TargetGlobalID: "gid://shopify/Product/987",
		MatchKey:       "handle",
		MatchValue:     "blue-shirt",
		Title:          "Blue Shirt",
	})
	require.NoError(t, err)

	translated, ok := reg.Translate(ctx, gid, "menus", "menu item link")
	require.True(t, ok)
	assert.Equal(t, "gid://shopify/Product/987", translated)

	// No duplicate unmapped record, and the original is resolved.
	var refs []models.UnmappedReference
	db.Find(&refs)
	require.Len(t, refs, 1)
	assert.True(t, refs[0].Resolved)
}

func TestSaveMapping_UpsertIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	reg := NewRegistry(db, 1, zap.NewNop())
	ctx := context.Background()

	fields := Fields{
		SourceID:       "123",
		TargetID:       "987",
		SourceGlobalID: "gid://shopify/Product/123",
		TargetGlobalID: "gid://shopify/Product/987",
		MatchKey:       "handle",
		MatchValue:     "blue-shirt",
	}

	require.NoError(t, reg.SaveMapping(ctx, models.ResourceProducts, fields))

	fields.Title = "Blue Shirt v2"
	require.NoError(t, reg.SaveMapping(ctx, models.ResourceProducts, fields))

	var mappings []models.ResourceMapping
	db.Find(&mappings)
	require.Len(t, mappings, 1)
	assert.Equal(t, "Blue Shirt v2", mappings[0].Title)
}

func TestSaveMapping_ScopedByConnection(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	regA := NewRegistry(db, 1, zap.NewNop())
	regB := NewRegistry(db, 2, zap.NewNop())

	fields := Fields{SourceID: "123", TargetID: "111", SourceGlobalID: "gid://shopify/Product/123", TargetGlobalID: "gid://shopify/Product/111"}
	require.NoError(t, regA.SaveMapping(ctx, models.ResourceProducts, fields))

	fields.TargetID = "222"
	fields.TargetGlobalID = "gid://shopify/Product/222"
	require.NoError(t, regB.SaveMapping(ctx, models.ResourceProducts, fields))

	gotA, okA := regA.TargetID(ctx, models.ResourceProducts, "123")
	gotB, okB := regB.TargetID(ctx, models.ResourceProducts, "123")
	require.True(t, okA)
	require.True(t, okB)
	assert.Equal(t, "111", gotA)
	assert.Equal(t, "222", gotB)
}

func TestTranslate_MalformedInputRecordsNothing(t *testing.T) {
	db := newTestDB(t)
	reg := NewRegistry(db, 1, zap.NewNop())
	ctx := context.Background()

	for _, gid := range []string{"", "not-a-gid", "gid://shopify/Product", "gid://shopify/Product/abc", "gid://shopify/Unknown/123"} {
		_, ok := reg.Translate(ctx, gid, "products", "test")
		assert.False(t, ok, "gid %q should not translate", gid)
	}

	var count int64
	db.Model(&models.UnmappedReference{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestLocationMap(t *testing.T) {
	db := newTestDB(t)
	reg := NewRegistry(db, 1, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, reg.SaveMapping(ctx, models.ResourceLocations, Fields{
		SourceID:       "10",
		TargetID:       "20",
		SourceGlobalID: "gid://shopify/Location/10",
		TargetGlobalID: "gid://shopify/Location/20",
		MatchKey:       "name",
		MatchValue:     "warehouse berlin",
	}))

	locMap, err := reg.LocationMap(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"gid://shopify/Location/10": "gid://shopify/Location/20"}, locMap)
}
