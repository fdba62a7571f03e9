// Package resources holds the per-kind adapters the engine is parameterized
// by, plus the location match pass.
//
// Products, collections, pages and menus are handle-matched; files are
// matched by filename; locations by name. Products carry the heaviest
// post-write work: extra variants (matched by option-set key, created in
// bulk), media copied only onto bare products, per-location inventory
// reconciliation, sales-channel publishing, and metafield values. Locations
// are the one read-only kind: they are matched and mapped, never created.
package resources
