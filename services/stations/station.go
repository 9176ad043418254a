package stations

import (
	"errors"
	"fmt"
	"strings"
)

// Station is one monitoring site: its table, column schema and data arrays.
// A Station is immutable once returned by NewStation.
type Station struct {
	Code   string
	Source string
	Albedo *AlbedoPair

	table  string
	fields []Field
	arrays []DataArray

	byName  map[string]int
	byArray map[int]int

	arrayCol int
	yearCol  int
	doyCol   int
	timeCol  int
}

// Column roles are resolved by name, case-insensitively, in this order.
var (
	arrayAliases = []string{"arrayid", "array_id", "array id"}
	yearAliases  = []string{"year"}
	doyAliases   = []string{"doy", "day of year", "day_of_year", "day"}
	timeAliases  = []string{"hour", "time", "time mst", "time (mst)", "hourminute"}
)

// StationSpec carries the metadata NewStation validates.
type StationSpec struct {
	Code   string
	Table  string
	Source string
	Fields []Field
	Arrays []DataArray
	Albedo *AlbedoPair
}

// NewStation validates spec and resolves the array, year, day-of-year and time
// columns of the header.
func NewStation(spec StationSpec) (*Station, error) {
	code := strings.TrimSpace(spec.Code)
	if code == "" {
		return nil, errors.New("station code is required")
	}
	if strings.TrimSpace(spec.Table) == "" {
		return nil, fmt.Errorf("station %s: table is required", code)
	}
	if len(spec.Fields) == 0 {
		return nil, fmt.Errorf("station %s: empty column header", code)
	}
	if len(spec.Arrays) == 0 {
		return nil, fmt.Errorf("station %s: no data arrays", code)
	}

	st := &Station{
		Code:    code,
		Source:  strings.TrimSpace(spec.Source),
		table:   strings.TrimSpace(spec.Table),
		fields:  make([]Field, 0, len(spec.Fields)),
		arrays:  make([]DataArray, 0, len(spec.Arrays)),
		byName:  make(map[string]int, len(spec.Fields)),
		byArray: make(map[int]int, len(spec.Arrays)),
	}

	for _, f := range spec.Fields {
		name := strings.ToLower(strings.TrimSpace(f.Name))
		if name == "" {
			return nil, fmt.Errorf("station %s: blank field name at position %d", code, len(st.fields)+1)
		}
		if _, dup := st.byName[name]; dup {
			return nil, fmt.Errorf("station %s: duplicate field %q", code, name)
		}
		if name == TimeColumn || name == AlbedoField {
			return nil, fmt.Errorf("station %s: field %q is reserved", code, name)
		}
		st.byName[name] = len(st.fields)
		st.fields = append(st.fields, Field{Name: name, Type: f.Type})
	}

	for _, a := range spec.Arrays {
		if a.IntervalMinutes <= 0 {
			return nil, fmt.Errorf("station %s: data array %d has non-positive interval %d", code, a.ID, a.IntervalMinutes)
		}
		if _, dup := st.byArray[a.ID]; dup {
			return nil, fmt.Errorf("station %s: duplicate data array %d", code, a.ID)
		}
		st.byArray[a.ID] = len(st.arrays)
		st.arrays = append(st.arrays, a)
	}

	st.arrayCol = st.lookup(arrayAliases)
	if st.arrayCol < 0 {
		st.arrayCol = 0
	}
	if st.yearCol = st.lookup(yearAliases); st.yearCol < 0 {
		return nil, fmt.Errorf("station %s: header has no year column", code)
	}
	if st.doyCol = st.lookup(doyAliases); st.doyCol < 0 {
		return nil, fmt.Errorf("station %s: header has no day-of-year column", code)
	}
	if st.timeCol = st.lookup(timeAliases); st.timeCol < 0 {
		return nil, fmt.Errorf("station %s: header has no time column", code)
	}

	if spec.Albedo != nil {
		p := AlbedoPair{
			Upward:   strings.ToLower(strings.TrimSpace(spec.Albedo.Upward)),
			Downward: strings.ToLower(strings.TrimSpace(spec.Albedo.Downward)),
		}
		for _, name := range []string{p.Upward, p.Downward} {
			if _, ok := st.byName[name]; !ok {
				return nil, fmt.Errorf("station %s: albedo field %q not in header", code, name)
			}
		}
		st.Albedo = &p
	}

	return st, nil
}

func (s *Station) lookup(aliases []string) int {
	for _, alias := range aliases {
		if i, ok := s.byName[alias]; ok {
			return i
		}
	}
	return -1
}

// Fields returns the ordered header.
func (s *Station) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// FieldIndex returns the header position of name, or -1.
func (s *Station) FieldIndex(name string) int {
	if i, ok := s.byName[strings.ToLower(strings.TrimSpace(name))]; ok {
		return i
	}
	return -1
}

// HasField reports whether name is a header field or a derived column of s.
func (s *Station) HasField(name string) bool {
	if s.FieldIndex(name) >= 0 {
		return true
	}
	return s.Albedo != nil && strings.EqualFold(strings.TrimSpace(name), AlbedoField)
}

// Arrays returns the station's data arrays in declaration order.
func (s *Station) Arrays() []DataArray {
	out := make([]DataArray, len(s.arrays))
	copy(out, s.arrays)
	return out
}

// Array returns the data array with the given identifier.
func (s *Station) Array(id int) (DataArray, bool) {
	i, ok := s.byArray[id]
	if !ok {
		return DataArray{}, false
	}
	return s.arrays[i], true
}

// ArrayByLabel returns the data array whose label matches, ignoring case.
func (s *Station) ArrayByLabel(label string) (DataArray, bool) {
	label = strings.TrimSpace(label)
	for _, a := range s.arrays {
		if strings.EqualFold(a.Label, label) {
			return a, true
		}
	}
	return DataArray{}, false
}

// Table returns the table descriptor used by the data-access layer.
func (s *Station) Table() Table {
	return Table{
		Name:        s.table,
		ArrayColumn: s.fields[s.arrayCol].Name,
		TimeColumn:  TimeColumn,
	}
}

// ArrayColumn, YearColumn, DOYColumn and TimeOfDayColumn return header positions.
func (s *Station) ArrayColumn() int     { return s.arrayCol }
func (s *Station) YearColumn() int      { return s.yearCol }
func (s *Station) DOYColumn() int       { return s.doyCol }
func (s *Station) TimeOfDayColumn() int { return s.timeCol }
