package match

import (
	"net/url"
	"path"
	"sort"
	"strings"
)

// HandleKey returns the natural key for handle-matched resources
// (products, collections, pages, menus). Handles are already unique and
// case-stable on both stores; trimming guards against sloppy input.
func HandleKey(handle string) string {
	return strings.TrimSpace(handle)
}

// NameKey returns the case-insensitive natural key for name-matched
// resources (locations). Callers must restrict candidates to active records
// before keying.
func NameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// FileKey returns the natural key for files: the filename component of the
// storage URL, query string stripped, lowercased. CDN hosts and version
// parameters differ per environment; the filename survives the copy.
func FileKey(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return strings.ToLower(path.Base(rawURL))
	}
	base := path.Base(u.Path)
	if base == "." || base == "/" {
		return ""
	}
	return strings.ToLower(base)
}

// TypeKey returns the natural key for structured-type definitions
// (metaobject definitions), which are identified by their type string.
func TypeKey(definitionType string) string {
	return strings.TrimSpace(definitionType)
}

// OptionPair is one selected option of a variant.
type OptionPair struct {
	Name  string
	Value string
}

// OptionSetKey returns an order-independent natural key for a variant's
// option set. Variants enumerated in different orders on the two stores
// still produce identical keys; positional matching is never used because
// it silently mispairs such variants.
func OptionSetKey(options []OptionPair) string {
	if len(options) == 0 {
		return ""
	}
	parts := make([]string, 0, len(options))
	for _, opt := range options {
		name := strings.ToLower(strings.TrimSpace(opt.Name))
		value := strings.ToLower(strings.TrimSpace(opt.Value))
		parts = append(parts, name+"="+value)
	}
	sort.Strings(parts)
	return strings.Join(parts, "|")
}

// NamespaceKey returns the case-insensitive (namespace, key) identity used
// for custom-attribute definitions and values.
func NamespaceKey(namespace, key string) string {
	return strings.ToLower(strings.TrimSpace(namespace)) + "." + strings.ToLower(strings.TrimSpace(key))
}
