package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecord_Rows(t *testing.T) {
	end := Date360{Year: 2021, Month: 2, Day: 30, Hour: 13, Minute: 30}
	tests := []struct {
		name   string
		record Record
		kind   string
		table  string
		header []string
		fields []string
	}{
		{
			name:   "dry days",
			record: DryDaysRecord{ProjectionID: 2, Member: 5, Year: 2021, Month: 13, WCID: 3, MeanDryDays: 7.256},
			kind:   KindDryDays,
			table:  "Dry_days_counts_ens5_proj2.csv",
			header: []string{"Projection_slice_ID", "Member", "Year", "Month", "WCID", "Mean dry day counts"},
			fields: []string{"2", "5", "2021", "13", "3", "7.26"},
		},
		{
			name:   "month total without data",
			record: MonthTotalRecord{ProjectionID: 1, Member: 1, Year: 1981, Month: 1, WCID: 0, MeanTotal: math.NaN()},
			kind:   KindMonthTotal,
			table:  "Total_rainfall_ens1_proj1.csv",
			header: []string{"Projection_slice_ID", "Member", "Year", "Month", "WCID", "Mean total rainfall"},
			fields: []string{"1", "1", "1981", "1", "0", ""},
		},
		{
			name:   "bin counts",
			record: BinCountRecord{ProjectionID: 3, Member: 12, Year: 2061, Month: 6, WCID: 12, Duration: 6, Counts: []int{10, 0, 2}},
			kind:   KindBinCounts,
			table:  "Rainfall_bin_counts_6h_ens12_proj3.csv",
			header: []string{"Projection_slice_ID", "Member", "Year", "Month", "WCID", "Bin counts"},
			fields: []string{"3", "12", "2061", "6", "12", "[10, 0, 2]"},
		},
		{
			name: "one hour profile",
			record: ProfileRecord{
				ProjectionID: 1, Member: 1, WCID: 4, Duration: 1, RPYears: 30,
				End: end, CellID: "UK_05162N_00012W", Lon: -0.123, Lat: 51.625, Total: 33.3,
			},
			kind:   KindProfile,
			table:  "Profile_30y_1h_ens1_proj1.csv",
			header: []string{"Projection_slice_ID", "Member", "WCID", "end date", "lon", "lat", "Total accum"},
			fields: []string{"1", "1", "4", "2021-02-30 13:30", "-0.12", "51.62", "33.30"},
		},
		{
			name: "three hour profile",
			record: ProfileRecord{
				ProjectionID: 1, Member: 1, WCID: 4, Duration: 3, RPYears: 5,
				End: end, Lon: 1, Lat: 2, Total: 30, Hyetograph: []float64{10, 19.996, 0.004},
			},
			kind:   KindProfile,
			table:  "Profile_5y_3h_ens1_proj1.csv",
			header: []string{"Projection_slice_ID", "Member", "WCID", "end date", "lon", "lat", "Total accum", "Hyet"},
			fields: []string{"1", "1", "4", "2021-02-30 13:30", "1.00", "2.00", "30.00", "[10.00, 20.00, 0.00]"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, tt.record.Kind())
			assert.Equal(t, tt.table, tt.record.Table())
			assert.Equal(t, tt.header, tt.record.Header())
			assert.Equal(t, tt.fields, tt.record.Fields())
		})
	}
}

func TestFormatFloat(t *testing.T) {
	assert.Equal(t, "0.00", FormatFloat(0))
	assert.Equal(t, "-3.50", FormatFloat(-3.5))
	assert.Equal(t, "", FormatFloat(math.NaN()))
}
