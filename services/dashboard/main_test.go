package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRenderArgs(t *testing.T) {
	dir := t.TempDir()
	tpl := filepath.Join(dir, "dash.json")
	require.NoError(t, os.WriteFile(tpl, []byte("[]"), 0o644))
	out := filepath.Join(dir, "index.html")
	require.NoError(t, os.WriteFile(out, []byte("old"), 0o644))

	ra, err := parseRenderArgs([]string{out, tpl, "14", "7"})
	require.NoError(t, err)
	assert.Equal(t, 14, ra.days)
	assert.Equal(t, 7, ra.daysShowing)
	_, err = os.Stat(out)
	assert.ErrorIs(t, err, os.ErrNotExist, "existing output is removed")
}

func TestParseRenderArgsSanityChecks(t *testing.T) {
	dir := t.TempDir()
	tpl := filepath.Join(dir, "dash.json")
	require.NoError(t, os.WriteFile(tpl, []byte("[]"), 0o644))
	out := filepath.Join(dir, "index.html")

	tests := map[string][]string{
		"missing template":  {out, filepath.Join(dir, "nope.json"), "7", "3"},
		"missing out dir":   {filepath.Join(dir, "nope", "index.html"), tpl, "7", "3"},
		"switched windows":  {out, tpl, "3", "7"},
		"zero days":         {out, tpl, "0", "0"},
		"zero showing":      {out, tpl, "7", "0"},
		"non-numeric days":  {out, tpl, "week", "3"},
		"non-numeric shown": {out, tpl, "7", "three"},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := parseRenderArgs(args)
			assert.Error(t, err)
		})
	}
}
