package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrNoDateRange is returned when a UKCP file URL carries no YYYYMMDD-YYYYMMDD range.
var ErrNoDateRange = errors.New("date range not found in url")

// dateRangeRe matches the file-name date range, e.g. "19810701-19810730".
var dateRangeRe = regexp.MustCompile(`(\d{4})(\d{2})\d{2}-\d{8}`)

// Job is one unit of work: a model month for one ensemble member and variable.
type Job struct {
	ProjectionID int      `json:"projection_slice_id"`
	Member       int      `json:"member"`
	Variable     string   `json:"variable"`
	Year         int      `json:"year"`
	Month        int      `json:"month"`
	URLs         []string `json:"urls"` // previous month first, target month last
}

// Key identifies the job in logs and the run ledger.
func (j Job) Key() string {
	return fmt.Sprintf("proj%d/ens%d/%s/%04d-%02d", j.ProjectionID, j.Member, j.Variable, j.Year, j.Month)
}

// Selection is a row of the projection/year/month lookup table.
type Selection struct {
	ProjectionID int
	Year         int
	Month        int
}

// PreviousMonthURL parses the target year and month from a UKCP file URL and
// returns the URL of the preceding model month.
func PreviousMonthURL(url string) (year, month int, prev string, err error) {
	m := dateRangeRe.FindStringSubmatch(url)
	if m == nil {
		return 0, 0, "", fmt.Errorf("%w: %s", ErrNoDateRange, url)
	}
	year, _ = strconv.Atoi(m[1])
	month, _ = strconv.Atoi(m[2])
	if month < 1 || month > monthsPerYear {
		return 0, 0, "", fmt.Errorf("%w: month %02d in %s", ErrNoDateRange, month, url)
	}

	py, pm := PreviousMonth(year, month)
	prev = dateRangeRe.ReplaceAllString(url, monthRange(py, pm))
	return year, month, prev, nil
}

func monthRange(year, month int) string {
	return fmt.Sprintf("%04d%02d01-%04d%02d30", year, month, year, month)
}

// IsSliceStart reports whether (year, month) is the first month of a UKCP18
// CPM time slice, for which no previous-month file exists.
func IsSliceStart(year, month int) bool {
	if month != 12 {
		return false
	}
	switch year {
	case 1980, 2020, 2060:
		return true
	}
	return false
}

// WindowStart returns the first timestamp considered for accumulations
// starting at hour: day 30 of the previous month at hour:00, or the first hourly
// value of the month when there is no previous month.
func WindowStart(year, month, hour int) Date360 {
	if IsSliceStart(year, month) {
		return Date360{Year: year, Month: month, Day: 1, Hour: 0, Minute: 30}
	}
	py, pm := PreviousMonth(year, month)
	return Date360{Year: py, Month: pm, Day: daysPerMonth, Hour: hour}
}

// NewJob builds the job for a target-month URL, adding the previous month's URL
// unless the month starts a time slice.
func NewJob(url string, projectionID, member int, variable string) (Job, error) {
	year, month, prev, err := PreviousMonthURL(url)
	if err != nil {
		return Job{}, err
	}
	urls := []string{prev, url}
	if IsSliceStart(year, month) {
		urls = []string{url}
	}
	return Job{
		ProjectionID: projectionID,
		Member:       member,
		Variable:     variable,
		Year:         year,
		Month:        month,
		URLs:         urls,
	}, nil
}

// ExpandURLTemplate fills {member}, {variable}, {start} and {end} placeholders
// for a model month. Members are zero-padded to two digits.
func ExpandURLTemplate(tmpl string, member int, variable string, year, month int) string {
	r := strings.NewReplacer(
		"{member}", fmt.Sprintf("%02d", member),
		"{variable}", variable,
		"{start}", fmt.Sprintf("%04d%02d01", year, month),
		"{end}", fmt.Sprintf("%04d%02d30", year, month),
	)
	return r.Replace(tmpl)
}
