// Package datfile parses headerless datalogger output into keyed records.
package datfile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/snowstudies/csas-stations/services/stations"
)

// Record is one datalogger row. Values line up with RawFile.Columns and hold
// float64, int64, string or nil.
type Record struct {
	Key    stations.Key
	Values []any
}

// RawFile is the parsed content of one datalogger file, sorted by key.
type RawFile struct {
	Station *stations.Station
	Columns []string
	Records []Record
}

// Len returns the number of records.
func (f *RawFile) Len() int { return len(f.Records) }

// Filter returns a new RawFile holding the records keep accepts, in order.
func (f *RawFile) Filter(keep func(Record) bool) *RawFile {
	out := &RawFile{Station: f.Station, Columns: f.Columns, Records: make([]Record, 0, len(f.Records))}
	for _, r := range f.Records {
		if keep(r) {
			out.Records = append(out.Records, r)
		}
	}
	return out
}

// ArrayIDs returns the distinct array ids present, ascending.
func (f *RawFile) ArrayIDs() []int {
	var ids []int
	for i, r := range f.Records {
		if i == 0 || r.Key.ArrayID != f.Records[i-1].Key.ArrayID {
			ids = append(ids, r.Key.ArrayID)
		}
	}
	return ids
}

// Earliest returns the first timestamp for arrayID.
func (f *RawFile) Earliest(arrayID int) (time.Time, bool) {
	for _, r := range f.Records {
		if r.Key.ArrayID == arrayID {
			return r.Key.Time, true
		}
	}
	return time.Time{}, false
}

// Rows flattens the records for a bulk insert: every column plus datetime.
func (f *RawFile) Rows() ([]string, [][]any) {
	cols := make([]string, 0, len(f.Columns)+1)
	cols = append(cols, f.Columns...)
	cols = append(cols, stations.TimeColumn)

	rows := make([][]any, len(f.Records))
	for i, r := range f.Records {
		row := make([]any, 0, len(cols))
		row = append(row, r.Values...)
		row = append(row, r.Key.Time)
		rows[i] = row
	}
	return cols, rows
}

// ParseFile opens path and parses it with Parse.
func ParseFile(st *stations.Station, path string) (*RawFile, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	raw, err := Parse(st, fh)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return raw, nil
}

// Parse reads comma-delimited rows, assigns columns positionally from the
// station header and keys every row by (array id, timestamp). Duplicate keys
// within the file are kept.
func Parse(st *stations.Station, r io.Reader) (*RawFile, error) {
	fields := st.Fields()
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.Name
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	raw := &RawFile{Station: st, Columns: cols}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read datalogger file: %w", err)
		}
		line, _ := cr.FieldPos(0)

		if len(rec) != len(fields) {
			return nil, &SchemaMismatchError{Line: line, Got: len(rec), Want: len(fields)}
		}

		values := make([]any, len(fields))
		for i, f := range fields {
			v, ok := convert(f.Type, rec[i])
			if !ok {
				return nil, &SchemaMismatchError{Line: line, Got: len(rec), Want: len(fields), Field: f.Name, Value: rec[i]}
			}
			values[i] = v
		}

		ts, err := timestamp(line, rec[st.YearColumn()], rec[st.DOYColumn()], rec[st.TimeOfDayColumn()])
		if err != nil {
			return nil, err
		}

		id, ok := whole(rec[st.ArrayColumn()])
		if !ok {
			return nil, &SchemaMismatchError{Line: line, Got: len(rec), Want: len(fields), Field: cols[st.ArrayColumn()], Value: rec[st.ArrayColumn()]}
		}
		if _, known := st.Array(int(id)); !known {
			return nil, &UnknownArrayError{Line: line, Station: st.Code, ArrayID: int(id)}
		}

		raw.Records = append(raw.Records, Record{Key: stations.NewKey(int(id), ts), Values: values})
	}

	sort.SliceStable(raw.Records, func(i, j int) bool {
		a, b := raw.Records[i].Key, raw.Records[j].Key
		if a.ArrayID != b.ArrayID {
			return a.ArrayID < b.ArrayID
		}
		return a.Time.Before(b.Time)
	})
	return raw, nil
}

// timestamp is Jan 1 of year, plus doy-1 days, plus the HHMM time of day.
func timestamp(line int, year, doy, hhmm string) (time.Time, error) {
	y, ok := whole(year)
	if !ok || y < 1 {
		return time.Time{}, &MalformedTimeError{Line: line, Field: "year", Value: year}
	}
	d, ok := whole(doy)
	if !ok || d < 1 || d > 366 {
		return time.Time{}, &MalformedTimeError{Line: line, Field: "day of year", Value: doy}
	}
	hour, minute, ok := splitHHMM(hhmm)
	if !ok {
		return time.Time{}, &MalformedTimeError{Line: line, Field: "time", Value: hhmm}
	}
	return time.Date(int(y), time.January, 1+int(d)-1, hour, minute, 0, 0, time.UTC), nil
}

// splitHHMM splits a 1-4 digit time of day into a one or two digit hour and a
// two digit minute. Short values are left padded, so "30" is 00:30.
func splitHHMM(s string) (hour, minute int, ok bool) {
	n, ok := whole(s)
	if !ok || n < 0 {
		return 0, 0, false
	}
	digits := fmt.Sprintf("%03d", n)
	if len(digits) > 4 {
		return 0, 0, false
	}
	hour, _ = strconv.Atoi(digits[:len(digits)-2])
	minute, _ = strconv.Atoi(digits[len(digits)-2:])
	if minute > 59 || hour > 24 {
		return 0, 0, false
	}
	return hour, minute, true
}

// whole parses an integer token, accepting a float form with no fraction.
func whole(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	return int64(f), true
}

// convert parses a token under its declared type. Missing markers and
// non-finite numbers become nil.
func convert(t stations.FieldType, s string) (any, bool) {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"`)
	if isMissing(s) {
		return nil, true
	}
	switch t {
	case stations.Float:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, false
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, true
		}
		return f, true
	case stations.Integer:
		n, ok := whole(s)
		if !ok {
			return nil, false
		}
		return n, true
	default:
		return s, true
	}
}

func isMissing(s string) bool {
	switch strings.ToUpper(s) {
	case "", "NAN", "-NAN", "INF", "+INF", "-INF", "NA", "N/A", "NULL":
		return true
	}
	return false
}
