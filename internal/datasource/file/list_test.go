package file

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "list.txt")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestReadList_Basic(t *testing.T) {
	content := `
# inputs for the nightly run
https://example.com/listings.csv
   # indented comment
data/auckland.xlsx

   data/wellington.html
`
	got, err := ReadList(writeTempFile(t, content))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://example.com/listings.csv",
		"data/auckland.xlsx",
		"data/wellington.html",
	}, got)
}

func TestReadList_Empty(t *testing.T) {
	got, err := ReadList(writeTempFile(t, "\n# only comments\n"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReadList_Missing(t *testing.T) {
	_, err := ReadList(filepath.Join(t.TempDir(), "nope.txt"))
	assert.Error(t, err)
}
