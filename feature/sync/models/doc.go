// Package models defines the persisted entities of the sync feature.
//
// Every record keys by connection id so independent source/target pairs never
// interfere. ResourceMapping and UnmappedReference are owned by the mapping
// registry, SyncRun by the orchestrator, and SyncSchedule by the scheduler.
// Connection records are externally owned and read-only to the sync core.
package models
