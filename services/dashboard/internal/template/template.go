// Package template reads dashboard layouts: pages of plots, each plot a set of
// station fields drawn as lines on one axis.
package template

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/snowstudies/csas-stations/services/series"
)

// Line is one station field drawn on a plot. Color and Label are optional.
type Line struct {
	Station string `json:"station" yaml:"station"`
	Field   string `json:"field" yaml:"field"`
	Color   string `json:"color,omitempty" yaml:"color,omitempty"`
	Label   string `json:"label,omitempty" yaml:"label,omitempty"`
}

// Request is the fetch request that produces this line's column.
func (l Line) Request() series.Request {
	return series.Request{Station: l.Station, Field: l.Field}
}

type Plot struct {
	AxesTitle string    `json:"axes_title" yaml:"axes_title"`
	YRange    []float64 `json:"yrange" yaml:"yrange"`
	Lines     []Line    `json:"lines" yaml:"lines"`
}

type Page struct {
	PageName string `json:"page_name" yaml:"page_name"`
	Plots    []Plot `json:"plots" yaml:"plots"`
}

// Template is an ordered list of pages.
type Template struct {
	Pages []Page
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Load reads a template file. Files ending in .yaml or .yml are YAML, anything
// else is JSON.
func Load(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return ParseJSON(data)
	}
}

// ParseJSON decodes a JSON array of pages. A leading byte order mark is ignored.
func ParseJSON(data []byte) (*Template, error) {
	var pages []Page
	if err := json.Unmarshal(bytes.TrimPrefix(data, utf8BOM), &pages); err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	return build(pages)
}

// ParseYAML decodes a YAML sequence of pages.
func ParseYAML(data []byte) (*Template, error) {
	var pages []Page
	if err := yaml.Unmarshal(data, &pages); err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	return build(pages)
}

func build(pages []Page) (*Template, error) {
	t := &Template{Pages: pages}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks that every plot has a usable y range and every line names a
// station and a field.
func (t *Template) Validate() error {
	if len(t.Pages) == 0 {
		return errors.New("template has no pages")
	}
	for pi, p := range t.Pages {
		for qi, plot := range p.Plots {
			where := fmt.Sprintf("page %d plot %d", pi+1, qi+1)
			if len(plot.YRange) != 2 {
				return fmt.Errorf("%s: yrange needs two values, got %d", where, len(plot.YRange))
			}
			if plot.YRange[0] >= plot.YRange[1] {
				return fmt.Errorf("%s: yrange %v is empty", where, plot.YRange)
			}
			for li, l := range plot.Lines {
				if strings.TrimSpace(l.Station) == "" || strings.TrimSpace(l.Field) == "" {
					return fmt.Errorf("%s line %d: station and field are required", where, li+1)
				}
			}
		}
	}
	return nil
}

// Lines flattens every line of every plot into fetch requests, in template order.
func (t *Template) Lines() []series.Request {
	var out []series.Request
	for _, p := range t.Pages {
		for _, plot := range p.Plots {
			for _, l := range plot.Lines {
				out = append(out, l.Request())
			}
		}
	}
	return out
}
