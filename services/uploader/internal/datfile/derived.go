package datfile

import (
	"errors"
	"fmt"
	"math"

	"github.com/snowstudies/csas-stations/services/stations"
)

// ErrUnknownInterval is returned by RecordsForInterval for a label the
// station does not declare.
var ErrUnknownInterval = errors.New("unknown interval label")

// AddAlbedo returns a copy of raw with an albedo column (downward / upward).
// The value is nil when either reading is missing, upward is zero, or the
// ratio is not finite. Stations without a radiometer pair are returned as is.
func AddAlbedo(raw *RawFile) *RawFile {
	pair := raw.Station.Albedo
	if pair == nil {
		return raw
	}
	for _, c := range raw.Columns {
		if c == stations.AlbedoField {
			return raw
		}
	}
	up := raw.Station.FieldIndex(pair.Upward)
	down := raw.Station.FieldIndex(pair.Downward)

	out := &RawFile{
		Station: raw.Station,
		Columns: append(append(make([]string, 0, len(raw.Columns)+1), raw.Columns...), stations.AlbedoField),
		Records: make([]Record, len(raw.Records)),
	}
	for i, r := range raw.Records {
		values := make([]any, 0, len(r.Values)+1)
		values = append(values, r.Values...)
		values = append(values, albedo(r.Values[up], r.Values[down]))
		out.Records[i] = Record{Key: r.Key, Values: values}
	}
	return out
}

func albedo(upward, downward any) any {
	u, ok := number(upward)
	if !ok || u == 0 {
		return nil
	}
	d, ok := number(downward)
	if !ok {
		return nil
	}
	ratio := d / u
	if math.IsNaN(ratio) || math.IsInf(ratio, 0) {
		return nil
	}
	return ratio
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	}
	return 0, false
}

// RecordsForInterval returns the records of the data array carrying label,
// for example "1 Hour" or "Solar Noon".
func RecordsForInterval(raw *RawFile, label string) ([]Record, error) {
	arr, ok := raw.Station.ArrayByLabel(label)
	if !ok {
		return nil, fmt.Errorf("%w %q for station %s", ErrUnknownInterval, label, raw.Station.Code)
	}
	out := make([]Record, 0)
	for _, r := range raw.Records {
		if r.Key.ArrayID == arr.ID {
			out = append(out, r)
		}
	}
	return out, nil
}
