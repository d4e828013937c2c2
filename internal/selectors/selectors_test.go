package selectors

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	t.Parallel()
	cat := Default()
	require.NoError(t, cat.Validate())
	for _, name := range Required {
		chain := cat.MustGet(name)
		assert.NotEmpty(t, chain.Candidates, name)
	}
}

func TestDefault_PrefersTestIDs(t *testing.T) {
	t.Parallel()
	cat := Default()
	for _, name := range cat.Names() {
		first := cat.MustGet(name).Candidates[0]
		assert.True(t, strings.Contains(first, "data-testid"), "chain %s should lead with a data-testid selector, got %q", name, first)
	}
}

func TestLoadFile_MergesOverrides(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "override.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
vaults.row:
  - ".custom-row"
extra.banner:
  - "#banner"
`), 0o600))

	cat, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{".custom-row"}, cat.MustGet(VaultRow).Candidates)
	assert.Equal(t, []string{"#banner"}, cat.MustGet("extra.banner").Candidates)
	assert.Equal(t, Default().MustGet(VaultName), cat.MustGet(VaultName))
}

func TestLoadFile_RejectsBrokenOverride(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "override.yaml")
	require.NoError(t, os.WriteFile(path, []byte("vaults.row: []\n"), 0o600))

	_, err := LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no candidates")
}

func TestValidate_FindsDuplicatesAndMissing(t *testing.T) {
	t.Parallel()
	cat, err := Load(strings.NewReader("a:\n  - x\n  - x\n  - ''\n"))
	require.NoError(t, err)

	err = cat.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `repeats "x"`)
	assert.Contains(t, err.Error(), "blank")
	assert.Contains(t, err.Error(), WalletConnect)
}

func TestGet_UnknownChain(t *testing.T) {
	t.Parallel()
	_, err := Default().Get("nope")
	assert.Error(t, err)
	assert.Panics(t, func() { Default().MustGet("nope") })
}

func TestChain_Scoped(t *testing.T) {
	t.Parallel()
	c := Chain{Name: "n", Candidates: []string{".a", ".b"}}
	s := c.Scoped("#row-1")
	assert.Equal(t, []string{"#row-1 >> .a", "#row-1 >> .b"}, s.Candidates)
	assert.Equal(t, []string{".a", ".b"}, c.Candidates)
	assert.Contains(t, c.String(), ".a | .b")
}
