package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/ukcp-rainfall-etl/internal/config"
	"github.com/couchcryptid/ukcp-rainfall-etl/internal/domain"
)

func TestBatchJobs(t *testing.T) {
	sel := []domain.Selection{
		{ProjectionID: 1, Year: 1980, Month: 12},
		{ProjectionID: 1, Year: 1981, Month: 7},
		{ProjectionID: 1, Year: 1981, Month: 7},
	}
	opts := jobOptions{ProjectionID: 1, Member: 4, Variable: "pr"}

	jobs, err := batchJobs(sel, config.DefaultURLTemplate, opts)
	require.NoError(t, err)
	require.Len(t, jobs, 2, "repeated months run once")

	assert.Equal(t, []string{
		"https://dap.ceda.ac.uk/badc/ukcp18/data/land-cpm/uk/2.2km/rcp85/04/pr/1hr/v20210615/pr_rcp85_land-cpm_uk_2.2km_04_1hr_19801201-19801230.nc",
	}, jobs[0].URLs, "a slice start has no previous month")

	assert.Equal(t, 1981, jobs[1].Year)
	assert.Equal(t, 7, jobs[1].Month)
	require.Len(t, jobs[1].URLs, 2)
	assert.Contains(t, jobs[1].URLs[0], "_19810601-19810630.nc")
	assert.Contains(t, jobs[1].URLs[1], "_19810701-19810730.nc")
}

func TestBatchJobs_TemplateWithoutDates(t *testing.T) {
	_, err := batchJobs([]domain.Selection{{ProjectionID: 1, Year: 1981, Month: 7}}, "https://example.test/{member}.nc", jobOptions{Member: 1, Variable: "pr"})
	require.ErrorIs(t, err, domain.ErrNoDateRange)
}
