package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOptionSetKey_OrderIndependent(t *testing.T) {
	a := OptionSetKey([]OptionPair{
		{Name: "Size", Value: "M"},
		{Name: "Color", Value: "Blue"},
	})
	b := OptionSetKey([]OptionPair{
		{Name: "Color", Value: "Blue"},
		{Name: "Size", Value: "M"},
	})

	assert.Equal(t, a, b)
	assert.Equal(t, "color=blue|size=m", a)
}

func TestOptionSetKey_DistinguishesValues(t *testing.T) {
	m := OptionSetKey([]OptionPair{{Name: "Size", Value: "M"}})
	l := OptionSetKey([]OptionPair{{Name: "Size", Value: "L"}})
	assert.NotEqual(t, m, l)
}

func TestOptionSetKey_MultisetKeepsDuplicates(t *testing.T) {
	// Degenerate data with a repeated pair must not collapse to a single
	// entry, otherwise two distinct variants could share a key.
	single := OptionSetKey([]OptionPair{{Name: "Size", Value: "M"}})
	double := OptionSetKey([]OptionPair{
		{Name: "Size", Value: "M"},
		{Name: "Size", Value: "M"},
	})
	assert.NotEqual(t, single, double)
}

func TestOptionSetKey_Empty(t *testing.T) {
	assert.Equal(t, "", OptionSetKey(nil))
}

func TestNameKey_CaseInsensitive(t *testing.T) {
	assert.Equal(t, NameKey("Warehouse Berlin"), NameKey("warehouse berlin"))
	assert.Equal(t, "warehouse berlin", NameKey("  Warehouse Berlin "))
}

func TestFileKey(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{
			name: "cdn url with version query",
			url:  "https://cdn.shopify.com/s/files/1/0001/products/Logo.PNG?v=123",
			want: "logo.png",
		},
		{
			name: "different host same file",
			url:  "https://cdn.shopify.com/s/files/9/9999/products/logo.png",
			want: "logo.png",
		},
		{
			name: "empty",
			url:  "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FileKey(tt.url))
		})
	}
}

func TestHandleKey(t *testing.T) {
	assert.Equal(t, "blue-shirt", HandleKey(" blue-shirt "))
}

func TestNamespaceKey_CaseInsensitive(t *testing.T) {
	assert.Equal(t, NamespaceKey("Custom", "Material"), NamespaceKey("custom", "material"))
	assert.Equal(t, "custom.material", NamespaceKey("Custom", "Material"))
}
