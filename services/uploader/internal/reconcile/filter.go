// Package reconcile decides which parsed datalogger rows reach the database:
// it strips keys already stored, checks sampling continuity against the last
// stored row, and performs the bulk append.
package reconcile

import (
	"context"
	"time"

	"github.com/snowstudies/csas-stations/services/stations"
	"github.com/snowstudies/csas-stations/services/store"
	"github.com/snowstudies/csas-stations/services/uploader/internal/datfile"
)

// RemoveExisting returns the records of raw whose key is not in existing.
// raw itself is left untouched.
func RemoveExisting(raw *datfile.RawFile, existing stations.KeySet) *datfile.RawFile {
	return raw.Filter(func(r datfile.Record) bool {
		return !existing.Has(r.Key)
	})
}

// CollapseDuplicates keeps the first record for every key and reports how
// many later copies were dropped.
func CollapseDuplicates(raw *datfile.RawFile) (*datfile.RawFile, int) {
	seen := make(stations.KeySet, raw.Len())
	dropped := 0
	out := raw.Filter(func(r datfile.Record) bool {
		if seen.Has(r.Key) {
			dropped++
			return false
		}
		seen.Add(r.Key)
		return true
	})
	return out, dropped
}

// Gap describes a break between the newest stored reading of an array and the
// earliest new one. Diff is negative when the new data overlaps stored data.
type Gap struct {
	ArrayID      int
	Interval     time.Duration
	Diff         time.Duration
	EarliestNew  time.Time
	LatestStored time.Time
}

// Minutes returns Diff in minutes.
func (g Gap) Minutes() float64 { return g.Diff.Minutes() }

// Hours returns Diff in hours.
func (g Gap) Hours() float64 { return g.Diff.Hours() }

// CheckContinuity reports whether the earliest record of arr in raw follows
// the latest stored reading by exactly one sampling interval. An array with no
// stored rows, or with no rows in raw, is continuous.
func CheckContinuity(ctx context.Context, s store.Store, table stations.Table, raw *datfile.RawFile, arr stations.DataArray) (Gap, bool, error) {
	earliest, ok := raw.Earliest(arr.ID)
	if !ok {
		return Gap{}, true, nil
	}

	latest, ok, err := s.LatestTime(ctx, table, arr.ID)
	if err != nil {
		return Gap{}, false, err
	}
	if !ok {
		return Gap{}, true, nil
	}

	latest = stations.Naive(latest)
	diff := stations.Naive(earliest).Sub(latest)
	if diff == arr.Interval() {
		return Gap{}, true, nil
	}
	return Gap{
		ArrayID:      arr.ID,
		Interval:     arr.Interval(),
		Diff:         diff,
		EarliestNew:  earliest,
		LatestStored: latest,
	}, false, nil
}
