package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ResourceType identifies a syncable resource category. Several raw API type
// names may collapse into one resource type (e.g. all media kinds are files).
type ResourceType string

const (
	ResourceProducts             ResourceType = "products"
	ResourceVariants             ResourceType = "variants"
	ResourceCollections          ResourceType = "collections"
	ResourcePages                ResourceType = "pages"
	ResourceMenus                ResourceType = "menus"
	ResourceFiles                ResourceType = "files"
	ResourceLocations            ResourceType = "locations"
	ResourceMetaobjects          ResourceType = "metaobjects"
	ResourceMetafieldDefinitions ResourceType = "metafield_definitions"
)

// RunStatus is the lifecycle state of a sync run. A run is terminal once the
// status leaves StatusRunning.
type RunStatus string

const (
	StatusRunning RunStatus = "running"
	StatusSuccess RunStatus = "success"
	StatusPartial RunStatus = "partial"
	StatusFailed  RunStatus = "failed"
)

// Connection identifies one source store paired with the ambient target.
// Connection records are owned by the admin surface; the sync core only
// reads them.
type Connection struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	SourceDomain string    `gorm:"size:255;not null" json:"source_domain"`
	Credential   string    `gorm:"size:1024" json:"-"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the table name for Connection.
func (Connection) TableName() string { return "connections" }

// ResourceMapping is a persisted source-id to target-id pair plus the natural
// key that established it. It is the idempotence anchor: a mapped entity is
// updated on re-runs, never recreated.
type ResourceMapping struct {
	ID             uint         `gorm:"primaryKey" json:"id"`
	ConnectionID   uint         `gorm:"uniqueIndex:idx_mapping_identity;index" json:"connection_id"`
	ResourceType   ResourceType `gorm:"size:64;uniqueIndex:idx_mapping_identity" json:"resource_type"`
	SourceID       string       `gorm:"size:64;uniqueIndex:idx_mapping_identity" json:"source_id"`
	TargetID       string       `gorm:"size:64" json:"target_id"`
	SourceGlobalID string       `gorm:"size:255;index" json:"source_global_id"`
	TargetGlobalID string       `gorm:"size:255" json:"target_global_id"`
	MatchKey       string       `gorm:"size:64" json:"match_key"`
	MatchValue     string       `gorm:"size:512" json:"match_value"`
	Title          string       `gorm:"size:512" json:"title,omitempty"`
	LastSyncedAt   time.Time    `json:"last_synced_at"`
}

// TableName returns the table name for ResourceMapping.
func (ResourceMapping) TableName() string { return "resource_mappings" }

// UnmappedReference records an embedded identifier that could not be
// translated because no mapping exists yet. It is retroactively resolvable.
type UnmappedReference struct {
	ID             uint         `gorm:"primaryKey" json:"id"`
	ConnectionID   uint         `gorm:"uniqueIndex:idx_unmapped_identity;index" json:"connection_id"`
	ResourceType   ResourceType `gorm:"size:64" json:"resource_type"`
	SourceGlobalID string       `gorm:"size:255;uniqueIndex:idx_unmapped_identity" json:"source_global_id"`
	SourceID       string       `gorm:"size:64" json:"source_id"`
	Context        string       `gorm:"size:255;uniqueIndex:idx_unmapped_identity" json:"context"`
	FoundInType    string       `gorm:"size:64" json:"found_in_type"`
	AttemptedAt    time.Time    `json:"attempted_at"`
	Resolved       bool         `json:"resolved"`
}

// TableName returns the table name for UnmappedReference.
func (UnmappedReference) TableName() string { return "unmapped_references" }

// Counts aggregates per-category outcomes of a run stage.
type Counts struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Add accumulates other into c.
func (c *Counts) Add(other Counts) {
	c.Created += other.Created
	c.Updated += other.Updated
	c.Skipped += other.Skipped
	c.Failed += other.Failed
}

// RunSummary maps a category name to its counts. Stored as JSON.
type RunSummary map[string]Counts

// Value implements driver.Valuer.
func (s RunSummary) Value() (driver.Value, error) {
	if s == nil {
		return "{}", nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (s *RunSummary) Scan(value any) error {
	return scanJSON(value, s)
}

// Total returns the summed counts across categories.
func (s RunSummary) Total() Counts {
	var total Counts
	for _, c := range s {
		total.Add(c)
	}
	return total
}

// LogEntry is one timestamped line of a run log.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

// LogEntries is the ordered run log. Stored as JSON.
type LogEntries []LogEntry

// Value implements driver.Valuer.
func (l LogEntries) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (l *LogEntries) Scan(value any) error {
	return scanJSON(value, l)
}

// SyncRun is one execution of the pipeline for a connection. Created with
// StatusRunning and mutated in place until it reaches a terminal status.
type SyncRun struct {
	ID           string     `gorm:"primaryKey;size:36" json:"id"`
	ConnectionID uint       `gorm:"index" json:"connection_id"`
	Status       RunStatus  `gorm:"size:16" json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Summary      RunSummary `gorm:"type:text" json:"summary"`
	Logs         LogEntries `gorm:"type:text" json:"logs"`
}

// TableName returns the table name for SyncRun.
func (SyncRun) TableName() string { return "sync_runs" }

// StringList is a JSON-encoded list of strings.
type StringList []string

// Value implements driver.Valuer.
func (s StringList) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (s *StringList) Scan(value any) error {
	return scanJSON(value, s)
}

// SyncSchedule is the per-connection recurrence state. NextRunAt is
// recomputed whenever the rule or enabled flag changes.
type SyncSchedule struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	ConnectionID   uint       `gorm:"uniqueIndex" json:"connection_id"`
	ResourceTypes  StringList `gorm:"type:text" json:"resource_types"`
	RecurrenceRule string     `gorm:"size:64" json:"recurrence_rule"`
	Enabled        bool       `json:"enabled"`
	NextRunAt      *time.Time `json:"next_run_at,omitempty"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	LastRunStatus  string     `gorm:"size:16" json:"last_run_status,omitempty"`
	LastRunSummary RunSummary `gorm:"type:text" json:"last_run_summary,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TableName returns the table name for SyncSchedule.
func (SyncSchedule) TableName() string { return "sync_schedules" }

func scanJSON(value, out any) error {
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, out)
	case string:
		if v == "" {
			return nil
		}
		return json.Unmarshal([]byte(v), out)
	default:
		return fmt.Errorf("unsupported column type %T", value)
	}
}
