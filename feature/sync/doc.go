// Package sync is the one-way store synchronization feature.
//
// It copies catalog and content resources from a configured source store
// onto the ambient target store: locations are matched, schema definitions
// are created, then products, collections, pages, menus and files are
// upserted by natural key with their cross-references translated through a
// persisted id mapping. The feature exposes run, schedule, mapping and
// report endpoints; the heavy lifting lives in the subpackages:
//
//   - models: persisted records (mappings, runs, schedules)
//   - mapping: identifier registry and reference translation
//   - match: natural-key derivation
//   - engine: the generic fetch-match-upsert loop
//   - resources: per-kind adapters plus location matching
//   - metafields: definition and value sync
//   - inventory: per-location quantity reconciliation
//   - runner: pipeline execution and run persistence
//   - scheduler: recurring runs
package sync
