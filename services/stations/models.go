package stations

import (
	"fmt"
	"strings"
	"time"
)

// FieldType is the declared type of a datalogger column.
type FieldType string

const (
	Float   FieldType = "Float"
	Integer FieldType = "Integer"
	Text    FieldType = "Text"
)

// ParseFieldType maps a declared type from the station metadata onto a FieldType.
// Anything that is not recognisably a float or an integer is kept as text.
func ParseFieldType(s string) FieldType {
	switch v := strings.ToLower(strings.TrimSpace(s)); {
	case strings.Contains(v, "float"), v == "real", v == "double":
		return Float
	case strings.HasPrefix(v, "int"), v == "long":
		return Integer
	default:
		return Text
	}
}

// SQLType returns the column type used when creating station tables.
func (t FieldType) SQLType() string {
	switch t {
	case Float:
		return "real"
	case Integer:
		return "integer"
	default:
		return "text"
	}
}

// Field is one column of a station's datalogger output.
type Field struct {
	Name string
	Type FieldType
}

// DataArray is a sampling channel within a station's datalogger.
type DataArray struct {
	ID              int
	Label           string
	IntervalMinutes int
}

// Interval returns the expected spacing between consecutive readings.
func (a DataArray) Interval() time.Duration {
	return time.Duration(a.IntervalMinutes) * time.Minute
}

// AlbedoPair names the radiometer fields used to derive albedo.
type AlbedoPair struct {
	Upward   string `yaml:"upward"`
	Downward string `yaml:"downward"`
}

// AlbedoField is the derived column appended when a station has an AlbedoPair.
const AlbedoField = "albedo"

// TimeColumn is the timestamp column every station table carries.
const TimeColumn = "datetime"

// Table describes the database table a station uploads into.
type Table struct {
	Name        string
	ArrayColumn string
	TimeColumn  string
}

// Key identifies one reading within a station table.
type Key struct {
	ArrayID int
	Time    time.Time
}

// NewKey builds a Key with its time normalised by Naive.
func NewKey(arrayID int, t time.Time) Key {
	return Key{ArrayID: arrayID, Time: Naive(t)}
}

func (k Key) String() string {
	return fmt.Sprintf("%d@%s", k.ArrayID, k.Time.Format("2006-01-02 15:04"))
}

// Naive drops any zone offset by reinterpreting the wall clock as UTC. Stored
// and parsed timestamps are compared in this form.
func Naive(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// KeySet is a set of keys already persisted for one table.
type KeySet map[Key]struct{}

// Add inserts k (normalised) into the set.
func (s KeySet) Add(k Key) {
	s[NewKey(k.ArrayID, k.Time)] = struct{}{}
}

// Has reports whether k is in the set.
func (s KeySet) Has(k Key) bool {
	_, ok := s[NewKey(k.ArrayID, k.Time)]
	return ok
}
