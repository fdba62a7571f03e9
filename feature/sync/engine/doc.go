// Package engine drives the generic fetch-match-upsert sequence shared by
// every resource kind.
//
// The per-kind differences (queries, mutations, natural key, dependent
// sub-entities) live behind the Adapter interface, so the near-duplicated
// sync loops collapse into one engine. The engine searches all target pages
// for a natural-key match, updates on match, creates otherwise, records a
// ResourceMapping on every success, and attributes failures to individual
// entities so one rejected item never aborts its siblings.
package engine
