// Package schedule aligns upload passes to wall-clock boundaries.
package schedule

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Unit is the granularity an Alignment counts in.
type Unit int

const (
	Second Unit = iota + 1
	Minute
	Hour
)

// Alignment is a clock boundary: every Every units, with finer fields zero.
type Alignment struct {
	Every int
	Unit  Unit
	spec  string
}

// UnsupportedAlignmentError reports an alignment spec that cannot be honoured.
type UnsupportedAlignmentError struct {
	Spec   string
	Reason string
}

func (e *UnsupportedAlignmentError) Error() string {
	return fmt.Sprintf("unsupported alignment %q: %s", e.Spec, e.Reason)
}

// ParseAlignment accepts "hour", "min", or "<N> sec|min|hour". A one second
// alignment is not supported.
func ParseAlignment(spec string) (Alignment, error) {
	norm := strings.Join(strings.Fields(strings.ToLower(spec)), " ")
	switch norm {
	case "hour":
		return Alignment{Every: 1, Unit: Hour, spec: norm}, nil
	case "min":
		return Alignment{Every: 1, Unit: Minute, spec: norm}, nil
	case "1 sec":
		return Alignment{}, &UnsupportedAlignmentError{Spec: spec, Reason: "single second alignment is not supported"}
	}

	parts := strings.Fields(norm)
	if len(parts) != 2 {
		return Alignment{}, &UnsupportedAlignmentError{Spec: spec, Reason: `want "hour", "min" or "<N> sec|min|hour"`}
	}
	n, err := strconv.Atoi(parts[0])
	if err != nil || n < 1 {
		return Alignment{}, &UnsupportedAlignmentError{Spec: spec, Reason: "interval must be a positive integer"}
	}

	var unit Unit
	switch parts[1] {
	case "sec", "secs", "second", "seconds":
		unit = Second
	case "min", "mins", "minute", "minutes":
		unit = Minute
	case "hour", "hours":
		unit = Hour
	default:
		return Alignment{}, &UnsupportedAlignmentError{Spec: spec, Reason: fmt.Sprintf("unknown unit %q", parts[1])}
	}
	if unit == Second && n == 1 {
		return Alignment{}, &UnsupportedAlignmentError{Spec: spec, Reason: "single second alignment is not supported"}
	}
	return Alignment{Every: n, Unit: unit, spec: norm}, nil
}

// MustParseAlignment is ParseAlignment for constant specs.
func MustParseAlignment(spec string) Alignment {
	a, err := ParseAlignment(spec)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Alignment) String() string { return a.spec }

// Aligned reports whether t sits on the boundary, at one second resolution.
func (a Alignment) Aligned(t time.Time) bool {
	switch a.Unit {
	case Second:
		return t.Second()%a.Every == 0
	case Minute:
		return t.Second() == 0 && t.Minute()%a.Every == 0
	case Hour:
		return t.Second() == 0 && t.Minute() == 0 && t.Hour()%a.Every == 0
	}
	return false
}

// Clock is the time source Wait polls.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock reads the local wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// DefaultAccuracy is the polling interval of Wait.
const DefaultAccuracy = time.Second

// Wait polls clock until a is aligned and returns the aligned time. Between
// polls it sleeps to the next multiple of accuracy, so the return lags the
// true boundary by less than one accuracy interval.
func Wait(ctx context.Context, clock Clock, a Alignment, accuracy time.Duration) (time.Time, error) {
	return waitAfter(ctx, clock, a, accuracy, time.Time{})
}

// waitAfter is Wait restricted to boundaries in a later second than after.
func waitAfter(ctx context.Context, clock Clock, a Alignment, accuracy time.Duration, after time.Time) (time.Time, error) {
	if accuracy <= 0 {
		accuracy = DefaultAccuracy
	}
	after = after.Truncate(time.Second)
	for {
		now := clock.Now()
		if a.Aligned(now) && now.Truncate(time.Second).After(after) {
			return now, nil
		}
		d := accuracy - time.Duration(now.UnixNano()%int64(accuracy))
		if err := clock.Sleep(ctx, d); err != nil {
			return time.Time{}, err
		}
	}
}

// Plan is a sequence of alignments waited for in order, with a settle pause
// between consecutive steps.
type Plan struct {
	Steps    []Alignment
	Settle   time.Duration
	Accuracy time.Duration
}

// DefaultPlan wakes at twelve minutes past each hour: top of the hour, a five
// second pause, then the next twelve minute boundary.
func DefaultPlan() Plan {
	return Plan{
		Steps:    []Alignment{MustParseAlignment("hour"), MustParseAlignment("12 min")},
		Settle:   5 * time.Second,
		Accuracy: DefaultAccuracy,
	}
}

// ParsePlan reads a ";"-separated list of alignment specs.
func ParsePlan(spec string, settle, accuracy time.Duration) (Plan, error) {
	p := Plan{Settle: settle, Accuracy: accuracy}
	for _, part := range strings.Split(spec, ";") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		a, err := ParseAlignment(part)
		if err != nil {
			return Plan{}, err
		}
		p.Steps = append(p.Steps, a)
	}
	if len(p.Steps) == 0 {
		return Plan{}, &UnsupportedAlignmentError{Spec: spec, Reason: "empty schedule"}
	}
	return p, nil
}

// Wait runs every step of the plan and returns the time of the last alignment.
func (p Plan) Wait(ctx context.Context, clock Clock) (time.Time, error) {
	return p.Next(ctx, clock, time.Time{})
}

// Next is Wait for a loop: no step accepts a boundary in the same second as
// last, so a pass that finishes quickly is not repeated.
func (p Plan) Next(ctx context.Context, clock Clock, last time.Time) (time.Time, error) {
	var at time.Time
	for i, step := range p.Steps {
		if i > 0 && p.Settle > 0 {
			if err := clock.Sleep(ctx, p.Settle); err != nil {
				return time.Time{}, err
			}
		}
		var err error
		if at, err = waitAfter(ctx, clock, step, p.Accuracy, last); err != nil {
			return time.Time{}, err
		}
	}
	return at, nil
}

func (p Plan) String() string {
	parts := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		parts[i] = s.String()
	}
	return strings.Join(parts, "; ")
}
