package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/feraraujofilho/prod-staging-sync-app-sub001/core/remote"
	"github.com/feraraujofilho/prod-staging-sync-app-sub001/feature/sync/engine"
	"github.com/feraraujofilho/prod-staging-sync-app-sub001/feature/sync/mapping"

	"go.uber.org/zap"
)

// Deps carries what every adapter needs: both store clients, the mapping
// registry for the connection, and pacing configuration.
type Deps struct {
	Src      remote.Client
	Tgt      remote.Client
	Registry *mapping.Registry
	Logger   *zap.Logger
	PageSize int
}

func (d Deps) pageSize() int {
	if d.PageSize <= 0 {
		return 50
	}
	return d.PageSize
}

// UserError is a per-field mutation rejection returned alongside data.
type UserError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
}

func userErrorsToError(errs []UserError) error {
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(errs))
	for _, ue := range errs {
		if len(ue.Field) > 0 {
			msgs = append(msgs, strings.Join(ue.Field, ".")+": "+ue.Message)
		} else {
			msgs = append(msgs, ue.Message)
		}
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}

// queryConnection runs a connection query and decodes the nodes/pageInfo
// envelope found at the named top-level field.
func queryConnection(ctx context.Context, client remote.Client, document, field string, vars map[string]any) (*remote.Batch, error) {
	var result map[string]json.RawMessage
	if err := client.Query(ctx, document, vars, &result); err != nil {
		return nil, err
	}

	raw, ok := result[field]
	if !ok || string(raw) == "null" {
		return nil, fmt.Errorf("response has no %q field", field)
	}

	var conn struct {
		Nodes    []json.RawMessage `json:"nodes"`
		PageInfo remote.PageInfo   `json:"pageInfo"`
	}
	if err := json.Unmarshal(raw, &conn); err != nil {
		return nil, fmt.Errorf("failed to decode %s page: %w", field, err)
	}
	return &remote.Batch{Nodes: conn.Nodes, PageInfo: conn.PageInfo}, nil
}

// fetchEnginePage adapts one connection-query page into an engine page.
func fetchEnginePage(ctx context.Context, client remote.Client, document, field string, pageSize int, cursor *string, decode func(json.RawMessage) (engine.Item, error)) (*engine.Page, error) {
	batch, err := queryConnection(ctx, client, document, field, remote.CursorVariables(pageSize, cursor))
	if err != nil {
		return nil, err
	}

	page := &engine.Page{
		NextCursor: batch.PageInfo.EndCursor,
		HasMore:    batch.PageInfo.HasNextPage,
	}
	for _, raw := range batch.Nodes {
		item, err := decode(raw)
		if err != nil {
			return nil, err
		}
		page.Items = append(page.Items, item)
	}
	return page, nil
}
