package mapping

import (
	"testing"

	"github.com/feraraujofilho/prod-staging-sync-app-sub001/feature/sync/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGID(t *testing.T) {
	tests := []struct {
		name     string
		gid      string
		wantOK   bool
		wantType models.ResourceType
		wantID   string
	}{
		{"product", "gid://shopify/Product/123", true, models.ResourceProducts, "123"},
		{"variant", "gid://shopify/ProductVariant/456", true, models.ResourceVariants, "456"},
		{"media image collapses to file", "gid://shopify/MediaImage/789", true, models.ResourceFiles, "789"},
		{"generic file collapses to file", "gid://shopify/GenericFile/790", true, models.ResourceFiles, "790"},
		{"video collapses to file", "gid://shopify/Video/791", true, models.ResourceFiles, "791"},
		{"id with query suffix", "gid://shopify/ProductVariant/456?inventory=tracked", true, models.ResourceVariants, "456"},
		{"empty", "", false, "", ""},
		{"no scheme", "shopify/Product/123", false, "", ""},
		{"missing id", "gid://shopify/Product", false, "", ""},
		{"non-numeric id", "gid://shopify/Product/abc", false, "", ""},
		{"unknown type", "gid://shopify/Widget/123", false, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, ok := ParseGID(tt.gid)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantType, parsed.Type)
				assert.Equal(t, tt.wantID, parsed.ID)
			}
		})
	}
}

func TestBuildGID(t *testing.T) {
	assert.Equal(t, "gid://shopify/Product/123", BuildGID("Product", "123"))
}

func TestNumericID(t *testing.T) {
	require.Equal(t, "123", NumericID("gid://shopify/Product/123"))
	assert.Equal(t, "", NumericID("garbage"))
}
