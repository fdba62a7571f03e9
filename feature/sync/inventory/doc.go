// Package inventory reconciles per-location available quantities after a
// variant has been written to the target. Locations are matched through the
// connection's persisted location map; unmatched locations and rejected
// writes are reported per location without stopping the rest.
package inventory
