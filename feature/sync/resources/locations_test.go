package resources

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/feraraujofilho/prod-staging-sync-app-sub001/feature/sync/mapping"
	"github.com/feraraujofilho/prod-staging-sync-app-sub001/feature/sync/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// fakeClient scripts responses by inspecting the query document and records
// every call for assertions on mutation inputs.
type fakeClient struct {
	t       *testing.T
	handler func(document string, vars map[string]any) (any, error)
	calls   []fakeCall
}

type fakeCall struct {
	document string
	vars     map[string]any
}

func (f *fakeClient) Query(ctx context.Context, document string, vars map[string]any, out any) error {
	f.calls = append(f.calls, fakeCall{document: document, vars: vars})
	resp, err := f.handler(document, vars)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(resp)
	require.NoError(f.t, err)
	return json.Unmarshal(raw, out)
}

func (f *fakeClient) callsContaining(fragment string) []fakeCall {
	var matched []fakeCall
	for _, c := range f.calls {
		if strings.Contains(c.document, fragment) {
			matched = append(matched, c)
		}
	}
	return matched
}

func connectionEnvelope(field string, nodes []map[string]any) map[string]any {
	if nodes == nil {
		nodes = []map[string]any{}
	}
	return map[string]any{
		field: map[string]any{
			"nodes":    nodes,
			"pageInfo": map[string]any{"hasNextPage": false, "endCursor": nil},
		},
	}
}

func newTestDeps(t *testing.T, src, tgt *fakeClient) (Deps, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, models.Migrate(db))

	return Deps{
		Src:      src,
		Tgt:      tgt,
		Registry: mapping.NewRegistry(db, 1, zap.NewNop()),
		Logger:   zap.NewNop(),
		PageSize: 50,
	}, db
}

func location(id, name string, active bool) map[string]any {
	return map[string]any{"id": id, "name": name, "isActive": active}
}

func TestBuildLocationMap_MatchesByNameCaseInsensitively(t *testing.T) {
	src := &fakeClient{t: t}
	src.handler = func(doc string, vars map[string]any) (any, error) {
		return connectionEnvelope("locations", []map[string]any{
			location("gid://shopify/Location/1", "Main Warehouse", true),
			location("gid://shopify/Location/2", "Pop-up Store", true),
		}), nil
	}
	tgt := &fakeClient{t: t}
	tgt.handler = func(doc string, vars map[string]any) (any, error) {
		return connectionEnvelope("locations", []map[string]any{
			location("gid://shopify/Location/801", "main warehouse", true),
			location("gid://shopify/Location/802", "Outlet", true),
		}), nil
	}

	deps, db := newTestDeps(t, src, tgt)
	result, report, err := BuildLocationMap(context.Background(), deps)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"gid://shopify/Location/1": "gid://shopify/Location/801",
	}, result)
	assert.Equal(t, 1, report.Matched)
	assert.Equal(t, []string{"Pop-up Store"}, report.Unmatched)

	// The match is persisted for later reference translation.
	var m models.ResourceMapping
	require.NoError(t, db.Where("resource_type = ?", models.ResourceLocations).First(&m).Error)
	assert.Equal(t, "gid://shopify/Location/801", m.TargetGlobalID)
	assert.Equal(t, "main warehouse", m.MatchValue)
}

func TestBuildLocationMap_IgnoresInactiveLocations(t *testing.T) {
	src := &fakeClient{t: t}
	src.handler = func(doc string, vars map[string]any) (any, error) {
		return connectionEnvelope("locations", []map[string]any{
			location("gid://shopify/Location/1", "Closed Depot", false),
		}), nil
	}
	tgt := &fakeClient{t: t}
	tgt.handler = func(doc string, vars map[string]any) (any, error) {
		return connectionEnvelope("locations", []map[string]any{
			location("gid://shopify/Location/801", "Closed Depot", false),
		}), nil
	}

	deps, _ := newTestDeps(t, src, tgt)
	result, report, err := BuildLocationMap(context.Background(), deps)
	require.NoError(t, err)

	assert.Empty(t, result)
	assert.Equal(t, 0, report.Matched)
	assert.Empty(t, report.Unmatched)
}
