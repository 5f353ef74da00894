package universe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadTSVFirstColumn(t *testing.T) {
	path := writeFile(t, "nasdaq100.tsv",
		"# NASDAQ-100 constituents\n"+
			"AAPL\tApple Inc\n"+
			"msft\tMicrosoft Corp\n"+
			"\n"+
			"AAPL\tApple Inc (dup)\n")

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, got)
}

func TestLoadTxtOnePerLine(t *testing.T) {
	path := writeFile(t, "list.txt", "nvda\n# comment\nTSLA\n")

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"NVDA", "TSLA"}, got)
}

func TestLoadJSONArray(t *testing.T) {
	path := writeFile(t, "list.json", `["goog", "META", "goog"]`)

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"GOOG", "META"}, got)
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	path := writeFile(t, "list.csv", "AAPL\n")

	_, err := Load(path)
	assert.ErrorContains(t, err, "unsupported universe file extension")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.txt"))
	assert.Error(t, err)
}

func TestClean(t *testing.T) {
	got := Clean([]string{"$aapl", " msft ", "", "AAPL", "$", "brk.b"})
	assert.Equal(t, []string{"AAPL", "MSFT", "BRK.B"}, got)
}

func TestTestSubset(t *testing.T) {
	assert.Equal(t, []string{"AAPL", "MSFT", "GOOGL", "TSLA", "NVDA", "META"}, TestSubset())
}
