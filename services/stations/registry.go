package stations

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnknownStation is returned when a station code is not in the registry.
var ErrUnknownStation = errors.New("unknown station")

// Registry is the immutable set of stations loaded at startup.
type Registry struct {
	order  []*Station
	byCode map[string]*Station
}

// NewRegistry builds a registry from already validated stations. Codes are
// matched case-insensitively and must be unique.
func NewRegistry(list ...*Station) (*Registry, error) {
	r := &Registry{byCode: make(map[string]*Station, len(list))}
	for _, st := range list {
		key := strings.ToUpper(st.Code)
		if _, dup := r.byCode[key]; dup {
			return nil, fmt.Errorf("duplicate station %s", st.Code)
		}
		r.byCode[key] = st
		r.order = append(r.order, st)
	}
	return r, nil
}

// Station returns the station registered under code.
func (r *Registry) Station(code string) (*Station, error) {
	st, ok := r.byCode[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStation, code)
	}
	return st, nil
}

// Stations returns every station in registry order.
func (r *Registry) Stations() []*Station {
	out := make([]*Station, len(r.order))
	copy(out, r.order)
	return out
}

type registryFile struct {
	StationInfoDir string         `yaml:"stationinfo_dir"`
	Stations       []stationEntry `yaml:"stations"`
}

type stationEntry struct {
	Code   string      `yaml:"code"`
	Table  string      `yaml:"table"`
	Header headerEntry `yaml:"header"`
	Arrays string      `yaml:"arrays"`
	Source string      `yaml:"source"`
	Albedo *AlbedoPair `yaml:"albedo"`
}

type headerEntry struct {
	File     string `yaml:"file"`
	Workbook string `yaml:"workbook"`
	Sheet    string `yaml:"sheet"`
}

// LoadRegistry reads the station registry file at path. Relative metadata paths
// resolve against stationinfo_dir, which itself resolves against the registry
// file's directory.
func LoadRegistry(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}

	var file registryFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse registry %s: %w", path, err)
	}
	if len(file.Stations) == 0 {
		return nil, fmt.Errorf("registry %s: no stations", path)
	}

	base := filepath.Dir(path)
	infoDir := resolve(base, file.StationInfoDir)

	list := make([]*Station, 0, len(file.Stations))
	for _, e := range file.Stations {
		st, err := e.load(infoDir)
		if err != nil {
			return nil, fmt.Errorf("registry %s: %w", path, err)
		}
		list = append(list, st)
	}
	return NewRegistry(list...)
}

func (e stationEntry) load(infoDir string) (*Station, error) {
	var (
		fields []Field
		err    error
	)
	switch {
	case e.Header.File != "":
		fields, err = ReadHeaderFile(resolve(infoDir, e.Header.File))
	case e.Header.Workbook != "":
		sheet := e.Header.Sheet
		if sheet == "" {
			sheet = e.Code
		}
		fields, err = ReadHeaderSheet(resolve(infoDir, e.Header.Workbook), sheet)
	default:
		return nil, fmt.Errorf("station %s: header needs a file or a workbook", e.Code)
	}
	if err != nil {
		return nil, fmt.Errorf("station %s header: %w", e.Code, err)
	}

	if e.Arrays == "" {
		return nil, fmt.Errorf("station %s: arrays file is required", e.Code)
	}
	arrays, err := ReadDataArraysFile(resolve(infoDir, e.Arrays))
	if err != nil {
		return nil, fmt.Errorf("station %s arrays: %w", e.Code, err)
	}

	source := e.Source
	if source != "" && !isURL(source) {
		source = resolve(infoDir, source)
	}

	return NewStation(StationSpec{
		Code:   e.Code,
		Table:  e.Table,
		Source: source,
		Fields: fields,
		Arrays: arrays,
		Albedo: e.Albedo,
	})
}

func resolve(base, p string) string {
	if p == "" {
		return base
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
