// Package metafields synchronizes schema definitions and custom-attribute
// values between the two environments.
//
// # Definitions
//
// Metaobject definitions may validate fields against other metaobject
// definitions, so creation runs in two passes: pass 1 creates missing
// definitions with cross-definition references stripped (a definition whose
// referencing field is required is skipped instead), pass 2 reattaches each
// stripped reference by resolving the referenced definition's type against
// the target side. Metafield definitions follow, matched case-insensitively
// by namespace and key, with metaobject validations translated through the
// mapping registry.
//
// # Values
//
// Value sync writes only what is missing or different on the matched owner.
// Reference-typed values have their embedded global ids translated before
// writing; a value with any unresolved reference is held back untouched.
// Namespaces reserved by the platform or owned by other apps are never
// written and are counted separately in the report.
package metafields
