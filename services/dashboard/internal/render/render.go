// Package render writes a dashboard as one self-contained HTML page with
// client-side charts.
package render

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	layout "github.com/snowstudies/csas-stations/services/dashboard/internal/template"
	"github.com/snowstudies/csas-stations/services/series"
)

//go:embed templates/*.html
var templatesFS embed.FS

// StationColors are the default line colours per station.
var StationColors = map[string]string{
	"PTSP": "#e41a1c",
	"SBSG": "#377eb8",
	"SBSP": "#4daf4a",
	"SASP": "#984ea3",
}

const fallbackColor = "#666666"

const timeLayout = "2006-01-02T15:04:05"

// Options control the time window and page chrome.
type Options struct {
	Title string
	// End is the right edge of every x axis.
	End time.Time
	// Days of data embedded in the page; DaysShowing of them are in view on load.
	Days        int
	DaysShowing int
	Generated   time.Time
}

type page struct {
	Name  string
	ID    string
	Plots []plot
}

type plot struct {
	ID    string
	Title string
}

type trace struct {
	Column string `json:"column"`
	Name   string `json:"name"`
	Color  string `json:"color"`
}

type figure struct {
	ID     string    `json:"id"`
	Title  string    `json:"title"`
	YRange []float64 `json:"yrange"`
	Traces []trace   `json:"traces"`
}

type payload struct {
	Times   []string              `json:"times"`
	Columns map[string][]*float64 `json:"columns"`
	XRange  []string              `json:"xrange"`
	Figures []figure              `json:"figures"`
}

type view struct {
	Title     string
	Tabs      bool
	Pages     []page
	Data      payload
	Footer    string
	Generated string
}

// Renderer holds the parsed page template.
type Renderer struct {
	tmpl *template.Template
}

// New parses the embedded page template.
func New() (*Renderer, error) {
	return newFromFS(templatesFS, "templates")
}

func newFromFS(fsys fs.FS, dir string) (*Renderer, error) {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return nil, err
	}
	tmpl, err := template.ParseFS(sub, "*.html")
	if err != nil {
		return nil, err
	}
	return &Renderer{tmpl: tmpl}, nil
}

// Render draws every page of tpl from tbl. Lines whose column holds no
// readings are left out; tabs are only drawn when there is more than one page.
func (r *Renderer) Render(w io.Writer, tpl *layout.Template, tbl *series.Table, opts Options) error {
	if r == nil || r.tmpl == nil {
		return errors.New("dashboard template not loaded")
	}
	if opts.Days < 1 || opts.DaysShowing < 1 || opts.DaysShowing > opts.Days {
		return fmt.Errorf("invalid window: %d days with %d showing", opts.Days, opts.DaysShowing)
	}

	v := view{
		Title: opts.Title,
		Tabs:  len(tpl.Pages) > 1,
		Data: payload{
			Times:   make([]string, len(tbl.Times)),
			Columns: make(map[string][]*float64),
			XRange: []string{
				opts.End.AddDate(0, 0, -opts.DaysShowing).Format(timeLayout),
				opts.End.Format(timeLayout),
			},
		},
	}
	if v.Title == "" {
		v.Title = "CSAS station data"
	}
	for i, t := range tbl.Times {
		v.Data.Times[i] = t.Format(timeLayout)
	}

	points := 0
	for pi, p := range tpl.Pages {
		pg := page{Name: p.PageName, ID: fmt.Sprintf("page-%d", pi)}
		if pg.Name == "" {
			pg.Name = fmt.Sprintf("Page %d", pi+1)
		}
		for qi, pl := range p.Plots {
			fig := figure{
				ID:     fmt.Sprintf("plot-%d-%d", pi, qi),
				Title:  pl.AxesTitle,
				YRange: pl.YRange,
			}
			for _, l := range pl.Lines {
				name := l.Request().Name()
				col, ok := tbl.Column(name)
				if !ok || col.AllNull() {
					continue
				}
				if _, done := v.Data.Columns[name]; !done {
					v.Data.Columns[name] = col.Values
					points += countValues(col)
				}
				fig.Traces = append(fig.Traces, trace{Column: name, Name: lineLabel(l), Color: lineColor(l)})
			}
			v.Data.Figures = append(v.Data.Figures, fig)
			pg.Plots = append(pg.Plots, plot{ID: fig.ID, Title: fig.Title})
		}
		v.Pages = append(v.Pages, pg)
	}

	generated := opts.Generated
	if generated.IsZero() {
		generated = time.Now()
	}
	v.Generated = generated.Format("2006-01-02 15:04")
	v.Footer = fmt.Sprintf("%s readings over %d days", humanize.Comma(int64(points)), opts.Days)

	return r.tmpl.ExecuteTemplate(w, "dashboard.html", v)
}

func lineColor(l layout.Line) string {
	if c := strings.TrimSpace(l.Color); c != "" {
		return c
	}
	if c, ok := StationColors[strings.ToUpper(strings.TrimSpace(l.Station))]; ok {
		return c
	}
	return fallbackColor
}

func lineLabel(l layout.Line) string {
	if s := strings.TrimSpace(l.Label); s != "" {
		return s
	}
	return strings.TrimSpace(l.Station)
}

func countValues(c series.Column) int {
	n := 0
	for _, v := range c.Values {
		if v != nil {
			n++
		}
	}
	return n
}
