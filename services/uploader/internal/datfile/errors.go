package datfile

import "fmt"

// SchemaMismatchError means a row does not fit the station header, either by
// width or because a value does not parse under its declared type.
type SchemaMismatchError struct {
	Line  int
	Got   int
	Want  int
	Field string
	Value string
}

func (e *SchemaMismatchError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("line %d: %s value %q does not match the declared type", e.Line, e.Field, e.Value)
	}
	return fmt.Sprintf("line %d: %d fields, header has %d", e.Line, e.Got, e.Want)
}

// MalformedTimeError reports a year, day-of-year or time value that cannot be
// turned into a timestamp.
type MalformedTimeError struct {
	Line  int
	Field string
	Value string
}

func (e *MalformedTimeError) Error() string {
	return fmt.Sprintf("line %d: malformed %s %q", e.Line, e.Field, e.Value)
}

// UnknownArrayError reports a row whose array id is not declared for the station.
type UnknownArrayError struct {
	Line    int
	Station string
	ArrayID int
}

func (e *UnknownArrayError) Error() string {
	return fmt.Sprintf("line %d: station %s has no data array %d", e.Line, e.Station, e.ArrayID)
}
