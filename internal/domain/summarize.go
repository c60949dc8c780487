package domain

import (
	"errors"
	"fmt"
	"slices"
	"sort"
)

// Accumulation is a rolling-sum duration and the hour of the previous month's
// last day at which its input series starts.
type Accumulation struct {
	Duration  int
	StartHour int
}

// Settings controls which statistics are produced.
type Settings struct {
	NumberOfWC       int
	Accumulations    []Accumulation
	ReturnPeriods    map[int][]float64 // duration -> ascending band thresholds (mm)
	RPYears          []int             // return period in years for each band
	BinEdges         map[int][]float64 // duration -> ascending bin edges (mm)
	BinDurations     []int
	ProfileDurations []int
	DryDayThreshold  float64
}

// Validate checks that every configured duration has the thresholds it needs.
func (s Settings) Validate() error {
	var errs []error
	if s.NumberOfWC <= 0 {
		errs = append(errs, errors.New("number of water companies must be positive"))
	}
	for _, a := range s.Accumulations {
		if a.Duration < 1 {
			errs = append(errs, fmt.Errorf("accumulation duration %d must be positive", a.Duration))
		}
		if a.StartHour < 0 || a.StartHour > 23 {
			errs = append(errs, fmt.Errorf("start hour %d for %dh accumulation out of range", a.StartHour, a.Duration))
		}
	}
	for _, d := range s.BinDurations {
		if edges := s.BinEdges[d]; len(edges) < 2 || !sort.Float64sAreSorted(edges) {
			errs = append(errs, fmt.Errorf("bin edges for %dh must be ascending with at least two values", d))
		}
	}
	for _, d := range s.ProfileDurations {
		th := s.ReturnPeriods[d]
		if len(th) == 0 || !sort.Float64sAreSorted(th) {
			errs = append(errs, fmt.Errorf("return period thresholds for %dh must be ascending and non-empty", d))
		}
		if len(th) > len(s.RPYears) {
			errs = append(errs, fmt.Errorf("%d thresholds for %dh but only %d return periods", len(th), d, len(s.RPYears)))
		}
	}
	return errors.Join(errs...)
}

// Summarize computes every configured statistic of f for each water company.
// f must already be restricted to cells valid in mask.
func Summarize(job Job, f *Field, mask Mask, s Settings) []Record {
	accs := slices.Clone(s.Accumulations)
	sort.SliceStable(accs, func(a, b int) bool { return accs[a].Duration < accs[b].Duration })

	periods := ReportingPeriods(job.Year, job.Month)
	fullMonth := periods[0]

	var records []Record
	for wcid := 0; wcid < s.NumberOfWC; wcid++ {
		company := f.Select(mask.Cells(wcid))
		if len(company.Cells) == 0 {
			continue
		}

		for _, p := range periods {
			records = append(records,
				DryDaysRecord{
					ProjectionID: job.ProjectionID, Member: job.Member,
					Year: job.Year, Month: p.Month, WCID: wcid,
					MeanDryDays: DryDays(company, p, s.DryDayThreshold),
				},
				MonthTotalRecord{
					ProjectionID: job.ProjectionID, Member: job.Member,
					Year: job.Year, Month: p.Month, WCID: wcid,
					MeanTotal: MonthTotal(company, p),
				},
			)
		}

		for _, acc := range accs {
			wantBins := slices.Contains(s.BinDurations, acc.Duration)
			wantProfiles := slices.Contains(s.ProfileDurations, acc.Duration)
			if !wantBins && !wantProfiles {
				continue
			}

			precip := company.Since(WindowStart(job.Year, job.Month, acc.StartHour))
			sums := RollingSums(precip, acc.Duration)

			if wantBins {
				for _, p := range periods {
					records = append(records, BinCountRecord{
						ProjectionID: job.ProjectionID, Member: job.Member,
						Year: job.Year, Month: p.Month, WCID: wcid,
						Duration: acc.Duration,
						Counts:   BinCounts(precip.Times, sums, p, s.BinEdges[acc.Duration]),
					})
				}
			}

			if wantProfiles {
				for _, ev := range Profiles(precip, sums, acc.Duration, fullMonth, s.ReturnPeriods[acc.Duration]) {
					records = append(records, ProfileRecord{
						ProjectionID: job.ProjectionID, Member: job.Member, WCID: wcid,
						Duration: acc.Duration, RPYears: s.RPYears[ev.Band],
						End: ev.End, CellID: ev.Cell.ID,
						Lon: ev.Cell.Lon, Lat: ev.Cell.Lat,
						Total: ev.Total, Hyetograph: ev.Hyetograph,
					})
				}
			}
		}
	}
	return records
}
