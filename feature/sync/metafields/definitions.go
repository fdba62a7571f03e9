package metafields

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/feraraujofilho/prod-staging-sync-app-sub001/core/remote"
	"github.com/feraraujofilho/prod-staging-sync-app-sub001/feature/sync/mapping"
	"github.com/feraraujofilho/prod-staging-sync-app-sub001/feature/sync/match"
	"github.com/feraraujofilho/prod-staging-sync-app-sub001/feature/sync/models"

	"go.uber.org/zap"
)

// metaobjectDefinitionIDValidation is the validation name carrying a
// cross-definition reference. Its value is an environment-scoped global id,
// which is why it can never be copied verbatim.
const metaobjectDefinitionIDValidation = "metaobject_definition_id"

// Validation is one name/value constraint on a definition.
type Validation struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// MetaobjectFieldDefinition is one field of a metaobject definition.
type MetaobjectFieldDefinition struct {
	Key         string       `json:"key"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Required    bool         `json:"required"`
	Type        struct {
		Name string `json:"name"`
	} `json:"type"`
	Validations []Validation `json:"validations"`
}

// MetaobjectDefinition is a structured-type schema declaration. Definitions
// are matched across environments by their type string.
type MetaobjectDefinition struct {
	ID               string                      `json:"id"`
	Type             string                      `json:"type"`
	Name             string                      `json:"name"`
	Description      string                      `json:"description"`
	FieldDefinitions []MetaobjectFieldDefinition `json:"fieldDefinitions"`
}

// MetafieldDefinition is a namespaced custom-attribute declaration, matched
// case-insensitively by (namespace, key) per owner type.
type MetafieldDefinition struct {
	ID          string `json:"id"`
	Namespace   string `json:"namespace"`
	Key         string `json:"key"`
	Name        string `json:"name"`
	Description string `json:"description"`
	OwnerType   string `json:"ownerType"`
	Type        struct {
		Name string `json:"name"`
	} `json:"type"`
	Validations []Validation `json:"validations"`
}

// DefinitionSyncer copies schema definitions from source to target.
// Metaobject definitions go first because metafield definitions may
// validate against them.
type DefinitionSyncer struct {
	src      remote.Client
	tgt      remote.Client
	registry *mapping.Registry
	logger   *zap.Logger
	pageSize int
}

// NewDefinitionSyncer creates a definition syncer for one connection.
func NewDefinitionSyncer(src, tgt remote.Client, registry *mapping.Registry, logger *zap.Logger, pageSize int) *DefinitionSyncer {
	if pageSize <= 0 {
		pageSize = 50
	}
	return &DefinitionSyncer{src: src, tgt: tgt, registry: registry, logger: logger, pageSize: pageSize}
}

const metaobjectDefinitionsQuery = `
query MetaobjectDefinitions($first: Int!, $after: String) {
  metaobjectDefinitions(first: $first, after: $after) {
    nodes {
      id
      type
      name
      description
      fieldDefinitions {
        key
        name
        description
        required
        type { name }
        validations { name value }
      }
    }
    pageInfo { hasNextPage endCursor }
  }
}`

const metaobjectDefinitionCreateMutation = `
mutation MetaobjectDefinitionCreate($definition: MetaobjectDefinitionCreateInput!) {
  metaobjectDefinitionCreate(definition: $definition) {
    metaobjectDefinition { id type }
    userErrors { field message }
  }
}`

const metaobjectDefinitionUpdateMutation = `
mutation MetaobjectDefinitionUpdate($id: ID!, $definition: MetaobjectDefinitionUpdateInput!) {
  metaobjectDefinitionUpdate(id: $id, definition: $definition) {
    metaobjectDefinition { id type }
    userErrors { field message }
  }
}`

// UserError is a per-field mutation rejection.
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

// deferredReference remembers a field whose cross-definition reference was
// stripped in pass 1 and must be reattached in pass 2.
type deferredReference struct {
	definitionType string
	targetID       string
	fieldKey       string
	// referencedSourceID is the source-side metaobject definition id the
	// stripped validation pointed at.
	referencedSourceID string
}

// SyncMetaobjectDefinitions creates missing metaobject definitions in two
// passes. Pass 1 creates each missing definition with cross-definition
// references stripped; a definition whose referencing field is required is
// skipped and reported instead, never created half-configured. Pass 2
// resolves each stripped reference by looking up the referenced
// definition's type on the source side and reattaching the target
// definition of that type.
func (s *DefinitionSyncer) SyncMetaobjectDefinitions(ctx context.Context) (*Report, error) {
	report := &Report{}

	sourceDefs, err := s.fetchMetaobjectDefinitions(ctx, s.src)
	if err != nil {
		return report, fmt.Errorf("failed to fetch source metaobject definitions: %w", err)
	}
	targetDefs, err := s.fetchMetaobjectDefinitions(ctx, s.tgt)
	if err != nil {
		return report, fmt.Errorf("failed to fetch target metaobject definitions: %w", err)
	}

	// type -> target id index; the core of pass 2 resolution.
	targetByType := make(map[string]string, len(targetDefs))
	for _, def := range targetDefs {
		targetByType[match.TypeKey(def.Type)] = def.ID
	}
	sourceByID := make(map[string]MetaobjectDefinition, len(sourceDefs))
	for _, def := range sourceDefs {
		sourceByID[def.ID] = def
	}

	var deferred []deferredReference

	// Pass 1: create what is missing, stripping cross-definition references.
	for _, def := range sourceDefs {
		typeKey := match.TypeKey(def.Type)

		if targetID, exists := targetByType[typeKey]; exists {
			report.Counts.Skipped++
			s.saveDefinitionMapping(ctx, def, targetID)
			continue
		}

		fields, stripped, blocked := stripCrossReferences(def)
		if blocked != "" {
			report.Counts.Skipped++
			report.Notes = append(report.Notes, fmt.Sprintf(
				"metaobject definition %q skipped: required field %q needs a metaobject reference and cannot be created without it", def.Type, blocked))
			continue
		}

		var result struct {
			MetaobjectDefinitionCreate struct {
				MetaobjectDefinition *struct {
					ID   string `json:"id"`
					Type string `json:"type"`
				} `json:"metaobjectDefinition"`
				UserErrors []UserError `json:"userErrors"`
			} `json:"metaobjectDefinitionCreate"`
		}
		err := s.tgt.Query(ctx, metaobjectDefinitionCreateMutation, map[string]any{
			"definition": map[string]any{
				"type":             def.Type,
				"name":             def.Name,
				"description":      def.Description,
				"fieldDefinitions": fields,
			},
		}, &result)
		if err == nil {
			err = userErrorsToError(result.MetaobjectDefinitionCreate.UserErrors)
		}
		if err != nil {
			report.Counts.Failed++
			report.Failures = append(report.Failures, Failure{Key: def.Type, Detail: err.Error()})
			continue
		}

		created := result.MetaobjectDefinitionCreate.MetaobjectDefinition
		if created == nil {
			report.Counts.Failed++
			report.Failures = append(report.Failures, Failure{
				Key:    def.Type,
				Detail: "metaobjectDefinitionCreate returned no definition",
			})
			continue
		}
		report.Counts.Created++
		targetByType[typeKey] = created.ID
		s.saveDefinitionMapping(ctx, def, created.ID)

		for _, ref := range stripped {
			deferred = append(deferred, deferredReference{
				definitionType:     def.Type,
				targetID:           created.ID,
				fieldKey:           ref.fieldKey,
				referencedSourceID: ref.referencedSourceID,
			})
		}
	}

	// Pass 2: reattach stripped references by type lookup, never by raw
	// source id, since ids are not portable across environments.
	for _, ref := range deferred {
		sourceRef, ok := sourceByID[ref.referencedSourceID]
		if !ok {
			report.Counts.Failed++
			report.Failures = append(report.Failures, Failure{
				Key:    ref.definitionType,
				Detail: fmt.Sprintf("field %q references unknown source definition %s", ref.fieldKey, ref.referencedSourceID),
			})
			continue
		}

		targetRefID, ok := targetByType[match.TypeKey(sourceRef.Type)]
		if !ok {
			report.Counts.Failed++
			report.Failures = append(report.Failures, Failure{
				Key:    ref.definitionType,
				Detail: fmt.Sprintf("field %q references type %q which does not exist on the target", ref.fieldKey, sourceRef.Type),
			})
			continue
		}

		var result struct {
			MetaobjectDefinitionUpdate struct {
				UserErrors []UserError `json:"userErrors"`
			} `json:"metaobjectDefinitionUpdate"`
		}
		err := s.tgt.Query(ctx, metaobjectDefinitionUpdateMutation, map[string]any{
			"id": ref.targetID,
			"definition": map[string]any{
				"fieldDefinitions": []map[string]any{{
					"update": map[string]any{
						"key": ref.fieldKey,
						"validations": []map[string]any{{
							"name":  metaobjectDefinitionIDValidation,
							"value": targetRefID,
						}},
					},
				}},
			},
		}, &result)
		if err == nil {
			err = userErrorsToError(result.MetaobjectDefinitionUpdate.UserErrors)
		}
		if err != nil {
			report.Counts.Failed++
			report.Failures = append(report.Failures, Failure{
				Key:    ref.definitionType,
				Detail: fmt.Sprintf("failed to reattach reference on field %q: %v", ref.fieldKey, err),
			})
			continue
		}
		report.Counts.Updated++
	}

	return report, nil
}

// strippedField records one removed reference.
type strippedField struct {
	fieldKey           string
	referencedSourceID string
}

// stripCrossReferences builds the create input for a definition's fields
// with metaobject references removed. blocked names the first required
// reference field, which makes the whole definition uncreatable in pass 1.
func stripCrossReferences(def MetaobjectDefinition) (fields []map[string]any, stripped []strippedField, blocked string) {
	for _, fd := range def.FieldDefinitions {
		validations := make([]map[string]any, 0, len(fd.Validations))
		removed := false
		for _, v := range fd.Validations {
			if v.Name == metaobjectDefinitionIDValidation {
				stripped = append(stripped, strippedField{fieldKey: fd.Key, referencedSourceID: v.Value})
				removed = true
				continue
			}
			validations = append(validations, map[string]any{"name": v.Name, "value": v.Value})
		}

		if removed && fd.Required {
			return nil, nil, fd.Key
		}

		field := map[string]any{
			"key":      fd.Key,
			"name":     fd.Name,
			"required": fd.Required,
			"type":     fd.Type.Name,
		}
		if fd.Description != "" {
			field["description"] = fd.Description
		}
		if len(validations) > 0 {
			field["validations"] = validations
		}
		fields = append(fields, field)
	}
	return fields, stripped, ""
}

func (s *DefinitionSyncer) saveDefinitionMapping(ctx context.Context, def MetaobjectDefinition, targetID string) {
	err := s.registry.SaveMapping(ctx, models.ResourceMetaobjects, mapping.Fields{
		SourceID:       mapping.NumericID(def.ID),
		TargetID:       mapping.NumericID(targetID),
		SourceGlobalID: def.ID,
		TargetGlobalID: targetID,
		MatchKey:       "type",
		MatchValue:     match.TypeKey(def.Type),
		Title:          def.Name,
	})
	if err != nil {
		s.logger.Warn("Failed to save metaobject definition mapping", zap.String("type", def.Type), zap.Error(err))
	}
}

func (s *DefinitionSyncer) fetchMetaobjectDefinitions(ctx context.Context, client remote.Client) ([]MetaobjectDefinition, error) {
	nodes, err := remote.CollectAll(ctx, func(ctx context.Context, cursor *string) (*remote.Batch, error) {
		var result struct {
			MetaobjectDefinitions struct {
				Nodes    []json.RawMessage `json:"nodes"`
				PageInfo remote.PageInfo   `json:"pageInfo"`
			} `json:"metaobjectDefinitions"`
		}
		if err := client.Query(ctx, metaobjectDefinitionsQuery, remote.CursorVariables(s.pageSize, cursor), &result); err != nil {
			return nil, err
		}
		return &remote.Batch{Nodes: result.MetaobjectDefinitions.Nodes, PageInfo: result.MetaobjectDefinitions.PageInfo}, nil
	})
	if err != nil {
		return nil, err
	}

	defs := make([]MetaobjectDefinition, 0, len(nodes))
	for _, raw := range nodes {
		var def MetaobjectDefinition
		if err := json.Unmarshal(raw, &def); err != nil {
			return nil, fmt.Errorf("failed to decode metaobject definition: %w", err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

const metafieldDefinitionsQuery = `
query MetafieldDefinitions($ownerType: MetafieldOwnerType!, $first: Int!, $after: String) {
  metafieldDefinitions(ownerType: $ownerType, first: $first, after: $after) {
    nodes {
      id
      namespace
      key
      name
      description
      ownerType
      type { name }
      validations { name value }
    }
    pageInfo { hasNextPage endCursor }
  }
}`

const metafieldDefinitionCreateMutation = `
mutation MetafieldDefinitionCreate($definition: MetafieldDefinitionInput!) {
  metafieldDefinitionCreate(definition: $definition) {
    createdDefinition { id }
    userErrors { field message }
  }
}`

// SyncMetafieldDefinitions creates missing metafield definitions for the
// given owner types. Definitions validating against a metaobject definition
// have the reference translated through the type index built by
// SyncMetaobjectDefinitions (via the registry); untranslatable references
// are reported, not created half-configured. Reserved and foreign
// namespaces are skipped in every pass.
func (s *DefinitionSyncer) SyncMetafieldDefinitions(ctx context.Context, ownerTypes []string) (*Report, error) {
	report := &Report{}

	for _, ownerType := range ownerTypes {
		ownerReport, err := s.syncDefinitionsForOwner(ctx, ownerType)
		report.Merge(ownerReport)
		if err != nil {
			return report, err
		}
	}
	return report, nil
}

func (s *DefinitionSyncer) syncDefinitionsForOwner(ctx context.Context, ownerType string) (*Report, error) {
	report := &Report{}

	sourceDefs, err := s.fetchMetafieldDefinitions(ctx, s.src, ownerType)
	if err != nil {
		return report, fmt.Errorf("failed to fetch source metafield definitions for %s: %w", ownerType, err)
	}
	targetDefs, err := s.fetchMetafieldDefinitions(ctx, s.tgt, ownerType)
	if err != nil {
		return report, fmt.Errorf("failed to fetch target metafield definitions for %s: %w", ownerType, err)
	}

	existing := make(map[string]MetafieldDefinition, len(targetDefs))
	for _, def := range targetDefs {
		existing[match.NamespaceKey(def.Namespace, def.Key)] = def
	}

	for _, def := range sourceDefs {
		if IsReservedNamespace(def.Namespace) {
			report.Reserved++
			continue
		}

		nsKey := match.NamespaceKey(def.Namespace, def.Key)
		if present, ok := existing[nsKey]; ok {
			report.Counts.Skipped++
			// A case-insensitive hit may hide naming drift between the two
			// environments; surface both spellings instead of staying quiet.
			if present.Namespace != def.Namespace || present.Key != def.Key {
				report.Notes = append(report.Notes, fmt.Sprintf(
					"definition %s.%s already present on target as %s.%s (case differs)",
					def.Namespace, def.Key, present.Namespace, present.Key))
			}
			continue
		}

		validations, unresolved := s.translateDefinitionValidations(ctx, def)
		if unresolved != "" {
			report.Counts.Failed++
			report.Failures = append(report.Failures, Failure{
				Key:    nsKey,
				Detail: fmt.Sprintf("validation references unmapped metaobject definition %s", unresolved),
			})
			continue
		}

		input := map[string]any{
			"namespace": def.Namespace,
			"key":       def.Key,
			"name":      def.Name,
			"ownerType": def.OwnerType,
			"type":      def.Type.Name,
		}
		if def.Description != "" {
			input["description"] = def.Description
		}
		if len(validations) > 0 {
			input["validations"] = validations
		}

		var result struct {
			MetafieldDefinitionCreate struct {
				CreatedDefinition *struct {
					ID string `json:"id"`
				} `json:"createdDefinition"`
				UserErrors []UserError `json:"userErrors"`
			} `json:"metafieldDefinitionCreate"`
		}
		err := s.tgt.Query(ctx, metafieldDefinitionCreateMutation, map[string]any{"definition": input}, &result)
		if err == nil {
			err = userErrorsToError(result.MetafieldDefinitionCreate.UserErrors)
		}
		if err != nil {
			report.Counts.Failed++
			report.Failures = append(report.Failures, Failure{Key: nsKey, Detail: err.Error()})
			continue
		}
		report.Counts.Created++
	}

	return report, nil
}

// translateDefinitionValidations rewrites metaobject references in a
// definition's validations to target ids. unresolved carries the first
// reference that could not be translated.
func (s *DefinitionSyncer) translateDefinitionValidations(ctx context.Context, def MetafieldDefinition) (validations []map[string]any, unresolved string) {
	for _, v := range def.Validations {
		if v.Name != metaobjectDefinitionIDValidation {
			validations = append(validations, map[string]any{"name": v.Name, "value": v.Value})
			continue
		}

		translated, ok := s.registry.Translate(ctx, v.Value, "metafield_definitions", fmt.Sprintf("definition %s.%s validation", def.Namespace, def.Key))
		if !ok {
			return nil, v.Value
		}
		validations = append(validations, map[string]any{"name": v.Name, "value": translated})
	}
	return validations, ""
}

func (s *DefinitionSyncer) fetchMetafieldDefinitions(ctx context.Context, client remote.Client, ownerType string) ([]MetafieldDefinition, error) {
	nodes, err := remote.CollectAll(ctx, func(ctx context.Context, cursor *string) (*remote.Batch, error) {
		vars := remote.CursorVariables(s.pageSize, cursor)
		vars["ownerType"] = ownerType

		var result struct {
			MetafieldDefinitions struct {
				Nodes    []json.RawMessage `json:"nodes"`
				PageInfo remote.PageInfo   `json:"pageInfo"`
			} `json:"metafieldDefinitions"`
		}
		if err := client.Query(ctx, metafieldDefinitionsQuery, vars, &result); err != nil {
			return nil, err
		}
		return &remote.Batch{Nodes: result.MetafieldDefinitions.Nodes, PageInfo: result.MetafieldDefinitions.PageInfo}, nil
	})
	if err != nil {
		return nil, err
	}

	defs := make([]MetafieldDefinition, 0, len(nodes))
	for _, raw := range nodes {
		var def MetafieldDefinition
		if err := json.Unmarshal(raw, &def); err != nil {
			return nil, fmt.Errorf("failed to decode metafield definition: %w", err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}
