package metafields

import "github.com/feraraujofilho/prod-staging-sync-app-sub001/feature/sync/models"

// Failure attributes one definition or value failure.
type Failure struct {
	Key    string `json:"key"`
	Detail string `json:"detail"`
}

// Report aggregates a definitions or values pass.
type Report struct {
	Counts models.Counts
	// Reserved counts entries skipped for reserved or foreign namespaces,
	// tracked separately from ordinary skips.
	Reserved int
	Failures []Failure
	Notes    []string
}

// Merge folds other into r.
func (r *Report) Merge(other *Report) {
	if other == nil {
		return
	}
	r.Counts.Add(other.Counts)
	r.Reserved += other.Reserved
	r.Failures = append(r.Failures, other.Failures...)
	r.Notes = append(r.Notes, other.Notes...)
}
