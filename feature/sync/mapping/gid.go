package mapping

import (
	"strings"

	"github.com/feraraujofilho/prod-staging-sync-app-sub001/feature/sync/models"
)

// ParsedGID is the decomposed form of a global identifier such as
// gid://shopify/Product/123456.
type ParsedGID struct {
	// RawType is the type segment as it appears in the identifier.
	RawType string
	// Type is the internal resource type the raw type collapses into.
	Type models.ResourceType
	// ID is the trailing numeric identifier.
	ID string
}

// rawTypes maps API type names onto internal resource types. Several media
// kinds collapse into the single "files" type.
var rawTypes = map[string]models.ResourceType{
	"Product":             models.ResourceProducts,
	"ProductVariant":      models.ResourceVariants,
	"Collection":          models.ResourceCollections,
	"Page":                models.ResourcePages,
	"OnlineStorePage":     models.ResourcePages,
	"Menu":                models.ResourceMenus,
	"MediaImage":          models.ResourceFiles,
	"GenericFile":         models.ResourceFiles,
	"Video":               models.ResourceFiles,
	"Location":            models.ResourceLocations,
	"Metaobject":          models.ResourceMetaobjects,
	"MetaobjectDefinition": models.ResourceMetaobjects,
	"MetafieldDefinition": models.ResourceMetafieldDefinitions,
}

// ParseGID decomposes a global identifier. Malformed or empty input returns
// ok=false; it never panics. Identifiers with an unknown type segment also
// return ok=false since no mapping could exist for them.
func ParseGID(gid string) (ParsedGID, bool) {
	if gid == "" {
		return ParsedGID{}, false
	}

	// scheme://namespace/Type/numeric-id
	schemeIdx := strings.Index(gid, "://")
	if schemeIdx < 0 {
		return ParsedGID{}, false
	}

	segments := strings.Split(gid[schemeIdx+3:], "/")
	if len(segments) < 3 {
		return ParsedGID{}, false
	}

	rawType := segments[1]
	id := segments[2]
	// Some identifiers carry a query suffix on the id segment.
	if q := strings.Index(id, "?"); q >= 0 {
		id = id[:q]
	}
	if rawType == "" || id == "" || !isDigits(id) {
		return ParsedGID{}, false
	}

	typ, known := rawTypes[rawType]
	if !known {
		return ParsedGID{}, false
	}

	return ParsedGID{RawType: rawType, Type: typ, ID: id}, true
}

// BuildGID reassembles a global identifier from a raw type and numeric id.
func BuildGID(rawType, id string) string {
	return "gid://shopify/" + rawType + "/" + id
}

// NumericID extracts the trailing numeric id of a global identifier, or ""
// when the input is malformed.
func NumericID(gid string) string {
	parsed, ok := ParseGID(gid)
	if !ok {
		// Fall back to the last path segment for types outside the map;
		// callers only use this for display.
		idx := strings.LastIndex(gid, "/")
		if idx < 0 || idx == len(gid)-1 {
			return ""
		}
		tail := gid[idx+1:]
		if !isDigits(tail) {
			return ""
		}
		return tail
	}
	return parsed.ID
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
