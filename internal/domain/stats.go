package domain

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// FirstHalfOfSeptember is the month number under which the first half of
// September is reported.
const FirstHalfOfSeptember = 13

// Period is a reporting window within a target month.
type Period struct {
	Year  int
	Month int // reported month: 1-12, or FirstHalfOfSeptember
	until *Date360
}

// Contains reports whether t lies in the period.
func (p Period) Contains(t Date360) bool {
	month := p.Month
	if month == FirstHalfOfSeptember {
		month = 9
	}
	if !t.InMonth(p.Year, month) {
		return false
	}
	return p.until == nil || !t.After(*p.until)
}

// ReportingPeriods returns the full month and, for September, its first half
// (up to and including 15 Sep 00:30).
func ReportingPeriods(year, month int) []Period {
	periods := []Period{{Year: year, Month: month}}
	if month == 9 {
		mid := Date360{Year: year, Month: 9, Day: 15, Hour: 0, Minute: 30}
		periods = append(periods, Period{Year: year, Month: FirstHalfOfSeptember, until: &mid})
	}
	return periods
}

// RollingSum returns trailing sums over window consecutive steps. Entry t covers
// steps t-window+1..t and is NaN when the window is incomplete or contains a
// missing value.
func RollingSum(values []float32, window int) []float64 {
	out := make([]float64, len(values))
	if window < 1 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}

	var sum float64
	missing := 0
	for i, v := range values {
		if isMissing(v) {
			missing++
		} else {
			sum += float64(v)
		}
		if i >= window {
			old := values[i-window]
			if isMissing(old) {
				missing--
			} else {
				sum -= float64(old)
			}
		}
		if i+1 < window || missing > 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = sum
	}
	return out
}

// RollingSums applies RollingSum to every cell of f.
func RollingSums(f *Field, window int) [][]float64 {
	out := make([][]float64, len(f.Values))
	for i, series := range f.Values {
		out[i] = RollingSum(series, window)
	}
	return out
}

func isMissing(v float32) bool { return math.IsNaN(float64(v)) }

// DryDays counts, per cell, the days in p whose total is below threshold and
// returns the mean count over cells. Missing hours contribute nothing to a
// day's total. Returns NaN for a field without cells.
func DryDays(f *Field, p Period, threshold float64) float64 {
	if len(f.Cells) == 0 {
		return math.NaN()
	}

	counts := make([]float64, len(f.Values))
	for c, series := range f.Values {
		var (
			day     Date360
			total   float64
			inDay   bool
			dryDays int
		)
		for t, ts := range f.Times {
			if !p.Contains(ts) {
				continue
			}
			if !inDay || ts.Date() != day {
				if inDay && total < threshold {
					dryDays++
				}
				day, total, inDay = ts.Date(), 0, true
			}
			if v := series[t]; !isMissing(v) {
				total += float64(v)
			}
		}
		if inDay && total < threshold {
			dryDays++
		}
		counts[c] = float64(dryDays)
	}
	return stat.Mean(counts, nil)
}

// MonthTotal sums each cell over p and returns the mean total over cells.
// Returns NaN for a field without cells.
func MonthTotal(f *Field, p Period) float64 {
	if len(f.Cells) == 0 {
		return math.NaN()
	}

	totals := make([]float64, len(f.Values))
	buf := make([]float64, 0, len(f.Times))
	for c, series := range f.Values {
		buf = buf[:0]
		for t, ts := range f.Times {
			if v := series[t]; p.Contains(ts) && !isMissing(v) {
				buf = append(buf, float64(v))
			}
		}
		totals[c] = floats.Sum(buf)
	}
	return stat.Mean(totals, nil)
}

// BinCounts counts (cell, time) accumulations in p lying strictly between each
// pair of consecutive edges. The result has len(edges)-1 entries.
func BinCounts(times []Date360, sums [][]float64, p Period, edges []float64) []int {
	if len(edges) < 2 {
		return nil
	}
	counts := make([]int, len(edges)-1)
	for _, series := range sums {
		for t, v := range series {
			if math.IsNaN(v) || !p.Contains(times[t]) {
				continue
			}
			for i := 1; i < len(edges); i++ {
				if v > edges[i-1] && v < edges[i] {
					counts[i-1]++
					break
				}
			}
		}
	}
	return counts
}

// ProfileEvent is an accumulation that falls in a return-period band.
type ProfileEvent struct {
	Band       int // index into the thresholds
	Cell       Cell
	End        Date360
	Total      float64
	Hyetograph []float64 // hourly values ending at End; nil for 1-hour events
}

// BandIndex returns the return-period band of v: band i covers
// (thresholds[i], thresholds[i+1]] and the last band has no upper limit.
// Returns -1 when v does not exceed the lowest threshold.
func BandIndex(v float64, thresholds []float64) int {
	if math.IsNaN(v) {
		return -1
	}
	band := -1
	for i, lower := range thresholds {
		if v > lower {
			band = i
		}
	}
	return band
}

// Profiles classifies every accumulation in p into return-period bands and
// attaches the duration-hour hyetograph leading up to it. sums must be the
// rolling sums of f over duration. Events are ordered by cell id, then time.
func Profiles(f *Field, sums [][]float64, duration int, p Period, thresholds []float64) []ProfileEvent {
	order := make([]int, len(f.Cells))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return f.Cells[order[a]].ID < f.Cells[order[b]].ID })

	var events []ProfileEvent
	for _, c := range order {
		for t, v := range sums[c] {
			if !p.Contains(f.Times[t]) {
				continue
			}
			band := BandIndex(v, thresholds)
			if band < 0 {
				continue
			}
			ev := ProfileEvent{Band: band, Cell: f.Cells[c], End: f.Times[t], Total: v}
			if duration > 1 {
				ev.Hyetograph = make([]float64, 0, duration)
				for _, h := range f.Values[c][t-duration+1 : t+1] {
					ev.Hyetograph = append(ev.Hyetograph, float64(h))
				}
			}
			events = append(events, ev)
		}
	}
	return events
}
