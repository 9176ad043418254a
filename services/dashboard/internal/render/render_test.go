package render

import (
	"bytes"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	layout "github.com/snowstudies/csas-stations/services/dashboard/internal/template"
	"github.com/snowstudies/csas-stations/services/series"
)

func fl(v float64) *float64 { return &v }

var end = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func table() *series.Table {
	return &series.Table{
		Times: []time.Time{end.Add(-time.Hour), end},
		Columns: []series.Column{
			{Name: "SASP_temp", Values: []*float64{fl(-3.5), fl(-2)}},
			{Name: "PTSP_temp", Values: []*float64{nil, fl(1.5)}},
			{Name: "PTSP_snow_depth", Values: []*float64{nil, nil}},
		},
	}
}

func onePage() *layout.Template {
	return &layout.Template{Pages: []layout.Page{{
		PageName: "Air",
		Plots: []layout.Plot{{
			AxesTitle: "Air temperature",
			YRange:    []float64{-30, 25},
			Lines: []layout.Line{
				{Station: "SASP", Field: "temp"},
				{Station: "PTSP", Field: "temp", Color: "#123456", Label: "Putney"},
				{Station: "PTSP", Field: "snow_depth"},
			},
		}},
	}}}
}

func render(t *testing.T, tpl *layout.Template, opts Options) string {
	t.Helper()
	r, err := New()
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf, tpl, table(), opts))
	return buf.String()
}

func TestRenderSinglePage(t *testing.T) {
	html := render(t, onePage(), Options{End: end, Days: 7, DaysShowing: 3, Generated: end})

	assert.NotContains(t, html, `<nav class="tabs">`)
	assert.Contains(t, html, `id="plot-0-0"`)
	assert.Contains(t, html, "SASP_temp")
	assert.Contains(t, html, "#984ea3")
	assert.Contains(t, html, "#123456")
	assert.Contains(t, html, "Putney")
	assert.NotContains(t, html, "PTSP_snow_depth")
	assert.Contains(t, html, "2024-03-07T12:00:00")
	assert.Contains(t, html, "3 readings over 7 days")
	assert.Contains(t, html, "Generated 2024-03-10 12:00")
}

func TestRenderTabs(t *testing.T) {
	tpl := onePage()
	tpl.Pages = append(tpl.Pages, layout.Page{
		PageName: "Snow",
		Plots:    []layout.Plot{{AxesTitle: "Depth", YRange: []float64{0, 400}, Lines: []layout.Line{{Station: "SBSP", Field: "depth"}}}},
	})
	html := render(t, tpl, Options{End: end, Days: 7, DaysShowing: 7})

	assert.Contains(t, html, `<nav class="tabs">`)
	assert.Contains(t, html, `data-page="page-1"`)
	assert.Contains(t, html, ">Snow</button>")
	assert.Contains(t, html, `id="plot-1-0"`)
}

func TestRenderRejectsWindow(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	for _, opts := range []Options{
		{End: end, Days: 0, DaysShowing: 0},
		{End: end, Days: 3, DaysShowing: 5},
	} {
		assert.Error(t, r.Render(&bytes.Buffer{}, onePage(), table(), opts))
	}
}

func TestLineDefaults(t *testing.T) {
	assert.Equal(t, "#e41a1c", lineColor(layout.Line{Station: "ptsp"}))
	assert.Equal(t, fallbackColor, lineColor(layout.Line{Station: "XXXX"}))
	assert.Equal(t, "SBSG", lineLabel(layout.Line{Station: "SBSG"}))
	assert.Equal(t, "Stream", lineLabel(layout.Line{Station: "SBSG", Label: "Stream"}))
}

func TestBrokenTemplate(t *testing.T) {
	_, err := newFromFS(fstest.MapFS{"templates/dashboard.html": {Data: []byte("{{.Title")}}, "templates")
	assert.Error(t, err)
}
