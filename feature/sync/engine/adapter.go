package engine

import (
	"context"

	"github.com/feraraujofilho/prod-staging-sync-app-sub001/feature/sync/models"
)

// Item is one entity of a paged collection, reduced to what the engine
// needs: identifiers, a display title, and the natural key. The adapter
// keeps the full payload for its own create/update calls.
type Item struct {
	// ID is the numeric identifier on its own store.
	ID string
	// GID is the global identifier on its own store.
	GID string
	// Title is the display name used in logs and mappings.
	Title string
	// Key is the natural key. Items with an empty key cannot be matched
	// and are skipped.
	Key string
	// Payload is the adapter-specific decoded entity.
	Payload any
}

// Page is one batch of items plus cursor state.
type Page struct {
	Items      []Item
	NextCursor string
	HasMore    bool
}

// Written describes the target entity after a successful create or update.
type Written struct {
	ID    string
	GID   string
	Title string
}

// Adapter provides the resource-kind-specific logic the engine is
// parameterized by. Each adapter implements how to page through both
// stores, how entities are keyed, and how to write the target.
type Adapter interface {
	// Name returns the adapter name used in logs and summaries.
	Name() string

	// Type returns the resource type mappings are recorded under.
	Type() models.ResourceType

	// KeyName names the natural key (e.g. "handle", "name", "filename").
	KeyName() string

	// FetchSourcePage loads one page from the source store. The cursor is
	// nil for the first page.
	FetchSourcePage(ctx context.Context, cursor *string) (*Page, error)

	// FetchTargetPage loads one page from the target store. The engine
	// accumulates every page before matching; searching only the first
	// page would miss matches beyond it.
	FetchTargetPage(ctx context.Context, cursor *string) (*Page, error)

	// Create writes a new target entity from the source item.
	Create(ctx context.Context, source Item) (*Written, error)

	// Update overwrites the matched target entity with the source state.
	Update(ctx context.Context, source Item, target Item) (*Written, error)
}

// PostProcessor is implemented by adapters whose entities need dependent
// sub-entity work after the main write (extra variants, media, attribute
// values, publishing). Effects failures are entity-level, never fatal.
type PostProcessor interface {
	AfterWrite(ctx context.Context, source Item, target Written, created bool) (*Effects, error)
}

// Effects reports the outcome of post-write work.
type Effects struct {
	Created int
	Updated int
	Skipped int
	Failed  int
	Errors  []EntityError
	Notes   []string
}
