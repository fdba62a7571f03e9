package metafields

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/feraraujofilho/prod-staging-sync-app-sub001/core/remote"
	"github.com/feraraujofilho/prod-staging-sync-app-sub001/feature/sync/mapping"
	"github.com/feraraujofilho/prod-staging-sync-app-sub001/feature/sync/match"

	"go.uber.org/zap"
)

// metafieldsSetChunkSize caps entries per metafieldsSet call. The API
// rejects larger batches outright.
const metafieldsSetChunkSize = 25

// Metafield is one custom-attribute value attached to an owner entity.
type Metafield struct {
	ID        string `json:"id"`
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
	Type      string `json:"type"`
	Value     string `json:"value"`
}

// ValueSyncer copies metafield values between matched owner entities.
// Reference-typed values carry environment-scoped global ids and are
// translated through the mapping registry before writing.
type ValueSyncer struct {
	src      remote.Client
	tgt      remote.Client
	registry *mapping.Registry
	logger   *zap.Logger
	pageSize int
}

// NewValueSyncer creates a value syncer for one connection.
func NewValueSyncer(src, tgt remote.Client, registry *mapping.Registry, logger *zap.Logger, pageSize int) *ValueSyncer {
	if pageSize <= 0 {
		pageSize = 50
	}
	return &ValueSyncer{src: src, tgt: tgt, registry: registry, logger: logger, pageSize: pageSize}
}

const ownerMetafieldsQuery = `
query OwnerMetafields($id: ID!, $first: Int!, $after: String) {
  node(id: $id) {
    ... on HasMetafields {
      metafields(first: $first, after: $after) {
        nodes {
          id
          namespace
          key
          type
          value
        }
        pageInfo { hasNextPage endCursor }
      }
    }
  }
}`

const metafieldsSetMutation = `
mutation MetafieldsSet($metafields: [MetafieldsSetInput!]!) {
  metafieldsSet(metafields: $metafields) {
    metafields { id }
    userErrors { field message }
  }
}`

// SyncValues copies one owner's metafields onto its matched target
// counterpart. ownerContext names the owner for unmapped-reference records,
// e.g. "product my-handle". Only values that are missing or differ on the
// target are written.
func (s *ValueSyncer) SyncValues(ctx context.Context, sourceOwnerGID, targetOwnerGID, ownerContext string) (*Report, error) {
	report := &Report{}

	sourceFields, err := s.fetchOwnerMetafields(ctx, s.src, sourceOwnerGID)
	if err != nil {
		return report, fmt.Errorf("failed to fetch source metafields for %s: %w", ownerContext, err)
	}
	if len(sourceFields) == 0 {
		return report, nil
	}

	targetFields, err := s.fetchOwnerMetafields(ctx, s.tgt, targetOwnerGID)
	if err != nil {
		return report, fmt.Errorf("failed to fetch target metafields for %s: %w", ownerContext, err)
	}

	existing := make(map[string]Metafield, len(targetFields))
	for _, mf := range targetFields {
		existing[match.NamespaceKey(mf.Namespace, mf.Key)] = mf
	}

	var pending []map[string]any
	var pendingKeys []string

	for _, mf := range sourceFields {
		if IsReservedNamespace(mf.Namespace) {
			report.Reserved++
			continue
		}

		nsKey := match.NamespaceKey(mf.Namespace, mf.Key)

		value, ok := s.translateValue(ctx, mf, ownerContext)
		if !ok {
			report.Counts.Skipped++
			report.Notes = append(report.Notes, fmt.Sprintf(
				"metafield %s on %s skipped: references an entity not yet synced", nsKey, ownerContext))
			continue
		}

		if present, found := existing[nsKey]; found && present.Value == value {
			report.Counts.Skipped++
			continue
		}

		pending = append(pending, map[string]any{
			"ownerId":   targetOwnerGID,
			"namespace": mf.Namespace,
			"key":       mf.Key,
			"type":      mf.Type,
			"value":     value,
		})
		pendingKeys = append(pendingKeys, nsKey)
	}

	for start := 0; start < len(pending); start += metafieldsSetChunkSize {
		end := start + metafieldsSetChunkSize
		if end > len(pending) {
			end = len(pending)
		}
		s.writeChunk(ctx, pending[start:end], pendingKeys[start:end], report)
	}

	return report, nil
}

// writeChunk issues one metafieldsSet call and attributes user errors back
// to individual entries by the index embedded in the error field path.
func (s *ValueSyncer) writeChunk(ctx context.Context, chunk []map[string]any, keys []string, report *Report) {
	var result struct {
		MetafieldsSet struct {
			Metafields []struct {
				ID string `json:"id"`
			} `json:"metafields"`
			UserErrors []UserError `json:"userErrors"`
		} `json:"metafieldsSet"`
	}

	err := s.tgt.Query(ctx, metafieldsSetMutation, map[string]any{"metafields": chunk}, &result)
	if err != nil {
		// Transport failure takes the whole chunk down.
		report.Counts.Failed += len(chunk)
		for _, key := range keys {
			report.Failures = append(report.Failures, Failure{Key: key, Detail: err.Error()})
		}
		return
	}

	failed := make(map[int]bool)
	for _, ue := range result.MetafieldsSet.UserErrors {
		idx, ok := chunkIndex(ue.Field)
		key := "unknown"
		if ok && idx < len(keys) {
			failed[idx] = true
			key = keys[idx]
		}
		report.Failures = append(report.Failures, Failure{Key: key, Detail: ue.Message})
	}

	report.Counts.Failed += len(failed)
	report.Counts.Updated += len(chunk) - len(failed)
	if len(result.MetafieldsSet.UserErrors) > 0 && len(failed) == 0 {
		// Errors without an index cannot be attributed; count the chunk failed.
		report.Counts.Updated -= len(chunk)
		report.Counts.Failed += len(chunk)
	}
}

// chunkIndex extracts the entry index from a userError field path of the
// form ["metafields", "3", "value"].
func chunkIndex(field []string) (int, bool) {
	for i, segment := range field {
		if segment == "metafields" && i+1 < len(field) {
			idx, err := strconv.Atoi(field[i+1])
			if err == nil && idx >= 0 {
				return idx, true
			}
		}
	}
	return 0, false
}

// translateValue rewrites the global ids embedded in reference-typed values.
// Non-reference types pass through untouched. ok=false means at least one
// reference could not be resolved and the value must not be written.
func (s *ValueSyncer) translateValue(ctx context.Context, mf Metafield, ownerContext string) (string, bool) {
	if !strings.Contains(mf.Type, "_reference") {
		return mf.Value, true
	}

	refContext := fmt.Sprintf("%s metafield %s", ownerContext, match.NamespaceKey(mf.Namespace, mf.Key))

	if strings.HasPrefix(mf.Type, "list.") {
		var gids []string
		if err := json.Unmarshal([]byte(mf.Value), &gids); err != nil {
			// A list value that is not a JSON array of ids cannot be
			// translated; pass it through rather than corrupt it.
			return mf.Value, true
		}
		translated := make([]string, 0, len(gids))
		for _, gid := range gids {
			tgt, ok := s.registry.Translate(ctx, gid, "metafields", refContext)
			if !ok {
				return "", false
			}
			translated = append(translated, tgt)
		}
		encoded, err := json.Marshal(translated)
		if err != nil {
			return "", false
		}
		return string(encoded), true
	}

	tgt, ok := s.registry.Translate(ctx, mf.Value, "metafields", refContext)
	if !ok {
		return "", false
	}
	return tgt, true
}

func (s *ValueSyncer) fetchOwnerMetafields(ctx context.Context, client remote.Client, ownerGID string) ([]Metafield, error) {
	nodes, err := remote.CollectAll(ctx, func(ctx context.Context, cursor *string) (*remote.Batch, error) {
		vars := remote.CursorVariables(s.pageSize, cursor)
		vars["id"] = ownerGID

		var result struct {
			Node struct {
				Metafields struct {
					Nodes    []json.RawMessage `json:"nodes"`
					PageInfo remote.PageInfo   `json:"pageInfo"`
				} `json:"metafields"`
			} `json:"node"`
		}
		if err := client.Query(ctx, ownerMetafieldsQuery, vars, &result); err != nil {
			return nil, err
		}
		return &remote.Batch{Nodes: result.Node.Metafields.Nodes, PageInfo: result.Node.Metafields.PageInfo}, nil
	})
	if err != nil {
		return nil, err
	}

	fields := make([]Metafield, 0, len(nodes))
	for _, raw := range nodes {
		var mf Metafield
		if err := json.Unmarshal(raw, &mf); err != nil {
			return nil, fmt.Errorf("failed to decode metafield: %w", err)
		}
		fields = append(fields, mf)
	}
	return fields, nil
}
