package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileAdapter_KeyIsFilenameAcrossMediaKinds(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		key  string
	}{
		{
			name: "image with versioned url",
			raw:  `{"__typename": "MediaImage", "id": "gid://shopify/MediaImage/1", "image": {"url": "https://cdn.example.com/s/files/1/Logo.PNG?v=169"}}`,
			key:  "logo.png",
		},
		{
			name: "generic file",
			raw:  `{"__typename": "GenericFile", "id": "gid://shopify/GenericFile/2", "url": "https://cdn.example.com/s/files/2/manual.pdf"}`,
			key:  "manual.pdf",
		},
		{
			name: "video uses first source",
			raw:  `{"__typename": "Video", "id": "gid://shopify/Video/3", "sources": [{"url": "https://cdn.example.com/v/intro.mp4"}]}`,
			key:  "intro.mp4",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			item, err := decodeFile(json.RawMessage(tc.raw))
			require.NoError(t, err)
			assert.Equal(t, tc.key, item.Key)
		})
	}
}

func TestFileAdapter_CreateUsesSourceURLAsOrigin(t *testing.T) {
	tgt := &fakeClient{t: t}
	tgt.handler = func(doc string, vars map[string]any) (any, error) {
		if strings.Contains(doc, "fileCreate") {
			return map[string]any{"fileCreate": map[string]any{
				"files":      []map[string]any{{"id": "gid://shopify/MediaImage/901"}},
				"userErrors": []any{},
			}}, nil
		}
		return nil, fmt.Errorf("unexpected query: %s", doc)
	}

	deps, _ := newTestDeps(t, &fakeClient{t: t}, tgt)
	adapter := NewFileAdapter(deps)

	item, err := decodeFile(json.RawMessage(`{
		"__typename": "MediaImage",
		"id": "gid://shopify/MediaImage/1",
		"alt": "Logo",
		"image": {"url": "https://cdn.example.com/s/files/1/logo.png?v=169"}
	}`))
	require.NoError(t, err)

	written, err := adapter.Create(context.Background(), item)
	require.NoError(t, err)
	assert.Equal(t, "gid://shopify/MediaImage/901", written.GID)

	creates := tgt.callsContaining("fileCreate")
	require.Len(t, creates, 1)
	files := creates[0].vars["files"].([]map[string]any)
	require.Len(t, files, 1)
	assert.Equal(t, "https://cdn.example.com/s/files/1/logo.png?v=169", files[0]["originalSource"])
	assert.Equal(t, "IMAGE", files[0]["contentType"])
	assert.Equal(t, "Logo", files[0]["alt"])
}

func TestFileAdapter_UpdateNeverTouchesExistingFile(t *testing.T) {
	tgt := &fakeClient{t: t}
	tgt.handler = func(doc string, vars map[string]any) (any, error) {
		return nil, fmt.Errorf("no write expected, got: %s", doc)
	}

	deps, _ := newTestDeps(t, &fakeClient{t: t}, tgt)
	adapter := NewFileAdapter(deps)

	source, err := decodeFile(json.RawMessage(`{"__typename": "GenericFile", "id": "gid://shopify/GenericFile/2", "url": "https://src.example.com/a/manual.pdf"}`))
	require.NoError(t, err)
	target, err := decodeFile(json.RawMessage(`{"__typename": "GenericFile", "id": "gid://shopify/GenericFile/902", "url": "https://tgt.example.com/b/manual.pdf"}`))
	require.NoError(t, err)

	written, err := adapter.Update(context.Background(), source, target)
	require.NoError(t, err)
	assert.Equal(t, "gid://shopify/GenericFile/902", written.GID)
	assert.Empty(t, tgt.calls)
}
