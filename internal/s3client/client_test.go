package s3client

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGetObject(t *testing.T) {
	c := TestClient(t, "artifacts")
	ctx := context.Background()

	require.NoError(t, c.PutObject(ctx, "run-1/report.md", []byte("# ok"), "text/markdown"))
	got, err := c.GetObject(ctx, "run-1/report.md")
	require.NoError(t, err)
	assert.Equal(t, "# ok", string(got))

	_, err = c.GetObject(ctx, "run-1/missing.md")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestPutFile_UsesPrefixAndPublicURL(t *testing.T) {
	base := TestClient(t, "artifacts")
	c := base.WithPrefix("/e2e/")
	ctx := context.Background()

	local := filepath.Join(t.TempDir(), "01-open.png")
	require.NoError(t, os.WriteFile(local, []byte{0x89, 'P', 'N', 'G'}, 0o600))

	url, err := c.PutFile(ctx, "run-1/vault-list/01-open.png", local)
	require.NoError(t, err)
	assert.Equal(t, base.GetPublicURL("e2e/run-1/vault-list/01-open.png"), url)

	raw, err := base.GetObject(ctx, "e2e/run-1/vault-list/01-open.png")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, raw)

	_, err = c.PutFile(ctx, "x.png", filepath.Join(t.TempDir(), "nope.png"))
	assert.Error(t, err)
}

func TestListKeys(t *testing.T) {
	c := TestClient(t, "artifacts").WithPrefix("e2e")
	ctx := context.Background()
	for _, key := range []string{"run-1/a.png", "run-1/b.png", "run-2/c.png"} {
		require.NoError(t, c.PutObject(ctx, key, []byte("x"), "image/png"))
	}
	keys, err := c.ListKeys(ctx, "run-1/")
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"run-1/a.png", "run-1/b.png"}, keys)
}

func TestContentTypeFor(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "image/png", ContentTypeFor("a/b/01-step.PNG"))
	assert.Equal(t, "application/json", ContentTypeFor("report.json"))
	assert.Equal(t, "text/html; charset=utf-8", ContentTypeFor("report.html"))
	assert.Equal(t, "text/markdown; charset=utf-8", ContentTypeFor("report.md"))
	assert.Equal(t, "application/octet-stream", ContentTypeFor("blob"))
}
