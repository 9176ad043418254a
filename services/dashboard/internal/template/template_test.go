package template

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snowstudies/csas-stations/services/series"
)

const jsonTemplate = `[
  {"page_name": "Air", "plots": [
    {"axes_title": "Air temperature (C)", "yrange": [-30, 25], "lines": [
      {"station": "SBSP", "field": "loair_avg_c"},
      {"station": "SASP", "field": "loair_avg_c", "color": "#000000", "label": "Swamp Angel"}
    ]}
  ]},
  {"page_name": "Snow", "plots": [
    {"axes_title": "Depth (cm)", "yrange": [0, 400], "lines": [
      {"station": "SASP", "field": "snow_depth"},
      {"station": "SASP", "field": "loair_avg_c"}
    ]}
  ]}
]`

func TestParseJSON(t *testing.T) {
	tpl, err := ParseJSON([]byte(jsonTemplate))
	require.NoError(t, err)
	require.Len(t, tpl.Pages, 2)
	assert.Equal(t, "Air", tpl.Pages[0].PageName)
	assert.Equal(t, []float64{-30, 25}, tpl.Pages[0].Plots[0].YRange)
	assert.Equal(t, "Swamp Angel", tpl.Pages[0].Plots[0].Lines[1].Label)

	assert.Equal(t, []series.Request{
		{Station: "SBSP", Field: "loair_avg_c"},
		{Station: "SASP", Field: "loair_avg_c"},
		{Station: "SASP", Field: "snow_depth"},
		{Station: "SASP", Field: "loair_avg_c"},
	}, tpl.Lines())
}

func TestParseJSONWithBOM(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, jsonTemplate...)
	tpl, err := ParseJSON(data)
	require.NoError(t, err)
	assert.Len(t, tpl.Pages, 2)
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dash.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
- page_name: Wind
  plots:
    - axes_title: Wind speed (m/s)
      yrange: [0, 30]
      lines:
        - { station: PTSP, field: wind_speed }
`), 0o644))

	tpl, err := Load(path)
	require.NoError(t, err)
	require.Len(t, tpl.Pages, 1)
	assert.Equal(t, "Wind speed (m/s)", tpl.Pages[0].Plots[0].AxesTitle)
	assert.Equal(t, []series.Request{{Station: "PTSP", Field: "wind_speed"}}, tpl.Lines())
}

func TestValidate(t *testing.T) {
	tests := map[string]string{
		"no pages":      `[]`,
		"short yrange":  `[{"plots": [{"yrange": [0], "lines": []}]}]`,
		"empty yrange":  `[{"plots": [{"yrange": [5, 5], "lines": []}]}]`,
		"missing field": `[{"plots": [{"yrange": [0, 1], "lines": [{"station": "SASP"}]}]}]`,
		"not json":      `{`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseJSON([]byte(body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}
