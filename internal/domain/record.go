package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Record kinds, used for metrics labels and message headers.
const (
	KindDryDays    = "dry_days"
	KindMonthTotal = "month_total"
	KindBinCounts  = "bin_counts"
	KindProfile    = "profile"
)

// Record is a single output row. Table is the CSV file it belongs to.
type Record interface {
	Kind() string
	Table() string
	Header() []string
	Fields() []string
}

var summaryHeader = []string{"Projection_slice_ID", "Member", "Year", "Month", "WCID"}

// DryDaysRecord holds the mean number of dry days for a company and month.
type DryDaysRecord struct {
	ProjectionID int     `json:"projection_slice_id"`
	Member       int     `json:"member"`
	Year         int     `json:"year"`
	Month        int     `json:"month"`
	WCID         int     `json:"wcid"`
	MeanDryDays  float64 `json:"mean_dry_days"`
}

func (r DryDaysRecord) Kind() string { return KindDryDays }

func (r DryDaysRecord) Table() string {
	return fmt.Sprintf("Dry_days_counts_ens%d_proj%d.csv", r.Member, r.ProjectionID)
}

func (r DryDaysRecord) Header() []string {
	return append(append([]string{}, summaryHeader...), "Mean dry day counts")
}

func (r DryDaysRecord) Fields() []string {
	return []string{itoa(r.ProjectionID), itoa(r.Member), itoa(r.Year), itoa(r.Month), itoa(r.WCID), FormatFloat(r.MeanDryDays)}
}

// MonthTotalRecord holds the mean total rainfall for a company and month.
type MonthTotalRecord struct {
	ProjectionID int     `json:"projection_slice_id"`
	Member       int     `json:"member"`
	Year         int     `json:"year"`
	Month        int     `json:"month"`
	WCID         int     `json:"wcid"`
	MeanTotal    float64 `json:"mean_total"`
}

func (r MonthTotalRecord) Kind() string { return KindMonthTotal }

func (r MonthTotalRecord) Table() string {
	return fmt.Sprintf("Total_rainfall_ens%d_proj%d.csv", r.Member, r.ProjectionID)
}

func (r MonthTotalRecord) Header() []string {
	return append(append([]string{}, summaryHeader...), "Mean total rainfall")
}

func (r MonthTotalRecord) Fields() []string {
	return []string{itoa(r.ProjectionID), itoa(r.Member), itoa(r.Year), itoa(r.Month), itoa(r.WCID), FormatFloat(r.MeanTotal)}
}

// BinCountRecord holds rainfall intensity bin counts for one accumulation duration.
type BinCountRecord struct {
	ProjectionID int   `json:"projection_slice_id"`
	Member       int   `json:"member"`
	Year         int   `json:"year"`
	Month        int   `json:"month"`
	WCID         int   `json:"wcid"`
	Duration     int   `json:"duration_hours"`
	Counts       []int `json:"counts"`
}

func (r BinCountRecord) Kind() string { return KindBinCounts }

func (r BinCountRecord) Table() string {
	return fmt.Sprintf("Rainfall_bin_counts_%dh_ens%d_proj%d.csv", r.Duration, r.Member, r.ProjectionID)
}

func (r BinCountRecord) Header() []string {
	return append(append([]string{}, summaryHeader...), "Bin counts")
}

func (r BinCountRecord) Fields() []string {
	parts := make([]string, len(r.Counts))
	for i, c := range r.Counts {
		parts[i] = itoa(c)
	}
	return []string{itoa(r.ProjectionID), itoa(r.Member), itoa(r.Year), itoa(r.Month), itoa(r.WCID), formatList(parts)}
}

// ProfileRecord is a storm event within a return-period band.
type ProfileRecord struct {
	ProjectionID int       `json:"projection_slice_id"`
	Member       int       `json:"member"`
	WCID         int       `json:"wcid"`
	Duration     int       `json:"duration_hours"`
	RPYears      int       `json:"return_period_years"`
	End          Date360   `json:"end"`
	CellID       string    `json:"cell_id"`
	Lon          float64   `json:"lon"`
	Lat          float64   `json:"lat"`
	Total        float64   `json:"total"`
	Hyetograph   []float64 `json:"hyetograph,omitempty"`
}

func (r ProfileRecord) Kind() string { return KindProfile }

func (r ProfileRecord) Table() string {
	return fmt.Sprintf("Profile_%dy_%dh_ens%d_proj%d.csv", r.RPYears, r.Duration, r.Member, r.ProjectionID)
}

func (r ProfileRecord) Header() []string {
	h := []string{"Projection_slice_ID", "Member", "WCID", "end date", "lon", "lat", "Total accum"}
	if r.Duration > 1 {
		h = append(h, "Hyet")
	}
	return h
}

func (r ProfileRecord) Fields() []string {
	f := []string{
		itoa(r.ProjectionID), itoa(r.Member), itoa(r.WCID), r.End.String(),
		FormatFloat(r.Lon), FormatFloat(r.Lat), FormatFloat(r.Total),
	}
	if r.Duration > 1 {
		parts := make([]string, len(r.Hyetograph))
		for i, v := range r.Hyetograph {
			parts[i] = FormatFloat(v)
		}
		f = append(f, formatList(parts))
	}
	return f
}

// FormatFloat renders v with two decimals; NaN becomes an empty field.
func FormatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func itoa(v int) string { return strconv.Itoa(v) }

func formatList(parts []string) string {
	return "[" + strings.Join(parts, ", ") + "]"
}
