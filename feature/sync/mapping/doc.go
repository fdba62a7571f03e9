// Package mapping is the identifier mapping registry.
//
// Source and target stores assign independent opaque identifiers, so the
// registry persists the source-to-target pairs established by natural-key
// matching and translates global identifiers embedded in entity payloads.
// References with no mapping yet are recorded as UnmappedReference rows and
// resolved retroactively once the mapping lands.
package mapping
