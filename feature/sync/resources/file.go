package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/feraraujofilho/prod-staging-sync-app-sub001/feature/sync/engine"
	"github.com/feraraujofilho/prod-staging-sync-app-sub001/feature/sync/mapping"
	"github.com/feraraujofilho/prod-staging-sync-app-sub001/feature/sync/match"
	"github.com/feraraujofilho/prod-staging-sync-app-sub001/feature/sync/models"
)

// filePayload is the decoded source file. The URL fields are populated per
// concrete media kind; sourceURL resolves whichever is present.
type filePayload struct {
	ID       string `json:"id"`
	Typename string `json:"__typename"`
	Alt      string `json:"alt"`
	Image    *struct {
		URL string `json:"url"`
	} `json:"image"`
	URL     string `json:"url"`
	Sources []struct {
		URL string `json:"url"`
	} `json:"sources"`
}

// sourceURL returns the downloadable URL regardless of media kind.
func (f filePayload) sourceURL() string {
	switch {
	case f.Image != nil && f.Image.URL != "":
		return f.Image.URL
	case f.URL != "":
		return f.URL
	case len(f.Sources) > 0:
		return f.Sources[0].URL
	}
	return ""
}

// contentType maps the concrete media kind to the fileCreate content type.
func (f filePayload) contentType() string {
	switch f.Typename {
	case "MediaImage":
		return "IMAGE"
	case "Video":
		return "VIDEO"
	default:
		return "FILE"
	}
}

// FileAdapter syncs standalone files, matched by filename. Existing files
// are never rewritten: the storage URL differs per environment by design and
// file content is treated as immutable once uploaded.
type FileAdapter struct {
	deps Deps
}

// NewFileAdapter creates the files adapter.
func NewFileAdapter(deps Deps) *FileAdapter {
	return &FileAdapter{deps: deps}
}

func (a *FileAdapter) Name() string              { return "files" }
func (a *FileAdapter) Type() models.ResourceType { return models.ResourceFiles }
func (a *FileAdapter) KeyName() string           { return "filename" }

const filesQuery = `
query Files($first: Int!, $after: String) {
  files(first: $first, after: $after) {
    nodes {
      __typename
      id
      alt
      ... on MediaImage {
        image { url }
      }
      ... on GenericFile {
        url
      }
      ... on Video {
        sources { url }
      }
    }
    pageInfo { hasNextPage endCursor }
  }
}`

const fileCreateMutation = `
mutation FileCreate($files: [FileCreateInput!]!) {
  fileCreate(files: $files) {
    files { id alt }
    userErrors { field message }
  }
}`

func decodeFile(raw json.RawMessage) (engine.Item, error) {
	var f filePayload
	if err := json.Unmarshal(raw, &f); err != nil {
		return engine.Item{}, fmt.Errorf("failed to decode file: %w", err)
	}
	key := match.FileKey(f.sourceURL())
	return engine.Item{
		ID:      mapping.NumericID(f.ID),
		GID:     f.ID,
		Title:   key,
		Key:     key,
		Payload: f,
	}, nil
}

func (a *FileAdapter) FetchSourcePage(ctx context.Context, cursor *string) (*engine.Page, error) {
	return fetchEnginePage(ctx, a.deps.Src, filesQuery, "files", a.deps.pageSize(), cursor, decodeFile)
}

func (a *FileAdapter) FetchTargetPage(ctx context.Context, cursor *string) (*engine.Page, error) {
	return fetchEnginePage(ctx, a.deps.Tgt, filesQuery, "files", a.deps.pageSize(), cursor, decodeFile)
}

func (a *FileAdapter) Create(ctx context.Context, source engine.Item) (*engine.Written, error) {
	f := source.Payload.(filePayload)
	url := f.sourceURL()
	if url == "" {
		return nil, fmt.Errorf("file %s has no downloadable URL", source.Key)
	}

	var result struct {
		FileCreate struct {
			Files []struct {
				ID string `json:"id"`
			} `json:"files"`
			UserErrors []UserError `json:"userErrors"`
		} `json:"fileCreate"`
	}
	err := a.deps.Tgt.Query(ctx, fileCreateMutation, map[string]any{
		"files": []map[string]any{{
			"alt":            f.Alt,
			"contentType":    f.contentType(),
			"originalSource": url,
		}},
	}, &result)
	if err == nil {
		err = userErrorsToError(result.FileCreate.UserErrors)
	}
	if err != nil {
		return nil, err
	}
	if len(result.FileCreate.Files) == 0 {
		return nil, fmt.Errorf("fileCreate returned no file for %s", source.Key)
	}

	created := result.FileCreate.Files[0]
	return &engine.Written{ID: mapping.NumericID(created.ID), GID: created.ID, Title: source.Key}, nil
}

// Update leaves the matched file untouched and only refreshes the mapping.
func (a *FileAdapter) Update(ctx context.Context, source, target engine.Item) (*engine.Written, error) {
	return &engine.Written{ID: target.ID, GID: target.GID, Title: target.Key}, nil
}
