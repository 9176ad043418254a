package stations

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ReadHeader parses a station header definition: one field per line, written as
// "name" or "name,Type". Blank lines are skipped; a missing type means Float.
func ReadHeader(r io.Reader) ([]Field, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var fields []Field
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read header: %w", err)
		}
		if len(rec) == 0 || strings.TrimSpace(rec[0]) == "" {
			continue
		}
		f := Field{Name: strings.TrimSpace(rec[0]), Type: Float}
		if len(rec) > 1 && strings.TrimSpace(rec[1]) != "" {
			f.Type = ParseFieldType(rec[1])
		}
		fields = append(fields, f)
	}
	if len(fields) == 0 {
		return nil, errors.New("read header: no fields")
	}
	return fields, nil
}

// ReadHeaderFile opens path and parses it with ReadHeader.
func ReadHeaderFile(path string) ([]Field, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fields, err := ReadHeader(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return fields, nil
}

// ReadHeaderSheet reads a station header from the shared field-list workbook.
// Each station has its own sheet; the second row holds column titles, field
// names sit in column B and declared types in the "Data_Type" column.
func ReadHeaderSheet(workbook, sheet string) ([]Field, error) {
	f, err := excelize.OpenFile(workbook)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", workbook, err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	return headerFromRows(rows)
}

func headerFromRows(rows [][]string) ([]Field, error) {
	if len(rows) < 2 {
		return nil, errors.New("field list sheet has no title row")
	}

	const nameCol = 1
	typeCol := -1
	for i, title := range rows[1] {
		t := strings.ToLower(strings.TrimSpace(title))
		if t == "data_type" || t == "data type" {
			typeCol = i
			break
		}
	}
	if typeCol < 0 {
		return nil, errors.New("field list sheet has no Data_Type column")
	}

	var fields []Field
	for _, row := range rows[2:] {
		if len(row) <= nameCol || strings.TrimSpace(row[nameCol]) == "" {
			continue
		}
		f := Field{Name: strings.TrimSpace(row[nameCol]), Type: Text}
		if typeCol < len(row) {
			f.Type = ParseFieldType(row[typeCol])
		}
		fields = append(fields, f)
	}
	if len(fields) == 0 {
		return nil, errors.New("field list sheet has no fields")
	}
	return fields, nil
}

// ReadDataArrays parses a data array table: CSV with an ID, label and
// intervalminutes column. Extra columns are ignored.
func ReadDataArrays(r io.Reader) ([]DataArray, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read data arrays header: %w", err)
	}
	idCol, labelCol, intervalCol := -1, -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "id":
			idCol = i
		case "label":
			labelCol = i
		case "intervalminutes", "interval_minutes", "interval minutes":
			intervalCol = i
		}
	}
	if idCol < 0 || labelCol < 0 || intervalCol < 0 {
		return nil, fmt.Errorf("data arrays header %v: need ID, label and intervalminutes", header)
	}

	var arrays []DataArray
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read data arrays: %w", err)
		}
		id, err := strconv.Atoi(strings.TrimSpace(rec[idCol]))
		if err != nil {
			return nil, fmt.Errorf("data array id %q: %w", rec[idCol], err)
		}
		minutes, err := parseMinutes(rec[intervalCol])
		if err != nil {
			return nil, fmt.Errorf("data array %d interval %q: %w", id, rec[intervalCol], err)
		}
		arrays = append(arrays, DataArray{
			ID:              id,
			Label:           strings.TrimSpace(rec[labelCol]),
			IntervalMinutes: minutes,
		})
	}
	return arrays, nil
}

// ReadDataArraysFile opens path and parses it with ReadDataArrays.
func ReadDataArraysFile(path string) ([]DataArray, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	arrays, err := ReadDataArrays(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return arrays, nil
}

// parseMinutes accepts "60" as well as "60.0", as exported by spreadsheets.
func parseMinutes(s string) (int, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f != float64(int(f)) {
		return 0, fmt.Errorf("not a whole number of minutes")
	}
	return int(f), nil
}
