// Package runner executes the full sync pipeline for one connection.
//
// A run proceeds in fixed stage order: location matching first (everything
// downstream needs the location map), then schema definitions, then
// resources in dependency order with files before products and menus last.
// Each run is persisted as a SyncRun from start, mutated to its terminal
// status, and optionally archived to object storage as JSON. Only one run
// per connection executes at a time; a second request gets ErrRunInFlight.
package runner
