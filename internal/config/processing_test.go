package config

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/ukcp-rainfall-etl/internal/domain"
)

func TestLoadProcessing_Defaults(t *testing.T) {
	p, err := LoadProcessing("")
	require.NoError(t, err)

	if diff := cmp.Diff(DefaultProcessing(), *p); diff != "" {
		t.Errorf("defaults mismatch (-want +got):\n%s", diff)
	}

	s, err := p.Settings()
	require.NoError(t, err)
	assert.Equal(t, 13, s.NumberOfWC)
	assert.Equal(t, []domain.Accumulation{
		{Duration: 1, StartHour: 23},
		{Duration: 3, StartHour: 22},
		{Duration: 6, StartHour: 19},
		{Duration: 9, StartHour: 16},
		{Duration: 12, StartHour: 13},
		{Duration: 24, StartHour: 1},
	}, s.Accumulations)
	assert.Equal(t, []float64{19, 24, 32, 36, 42}, s.ReturnPeriods[1])
	assert.Equal(t, []float64{2, 6, 10, 15, 20, 30, 40, 60, 80, 110, 140, 175, 215, 265}, s.BinEdges[3])
	assert.InDelta(t, 0.1, s.DryDayThreshold, 1e-12)
}

func TestLoadProcessing_JSONFile(t *testing.T) {
	path := writeFile(t, "config.json", `{
		"NUMBER_OF_WC": 2,
		"accum_duration_start": {"3": 22},
		"RPS": {"3": [29, 35]},
		"rp_years": [5, 10],
		"BINS": {"3": [2, 6, 10]},
		"bin_durations": [3],
		"profile_durations": [3]
	}`)

	p, err := LoadProcessing(path)
	require.NoError(t, err)

	assert.Equal(t, 2, p.NumberOfWC)
	assert.Equal(t, map[string]int{"3": 22}, p.AccumDurationStart)
	assert.Equal(t, map[string][]float64{"3": {29, 35}}, p.RPS)
	assert.Equal(t, []int{5, 10}, p.RPYears)
	assert.Equal(t, DefaultURLTemplate, p.URLTemplate, "unset fields keep defaults")
	assert.InDelta(t, 0.1, p.DryDayThreshold, 1e-12)
}

func TestLoadProcessing_YAMLFileAndEnv(t *testing.T) {
	path := writeFile(t, "config.yaml", `
number_of_wc: 4
dry_day_threshold: 0.2
url_template: "file:///data/{variable}_{member}_{start}-{end}.nc"
`)
	t.Setenv("UKCP_NUMBER_OF_WC", "5")

	p, err := LoadProcessing(path)
	require.NoError(t, err)

	assert.Equal(t, 5, p.NumberOfWC, "env overrides file")
	assert.InDelta(t, 0.2, p.DryDayThreshold, 1e-12)
	assert.Equal(t, "file:///data/{variable}_{member}_{start}-{end}.nc", p.URLTemplate)
	assert.Equal(t, DefaultProcessing().RPS, p.RPS)
}

func TestLoadProcessing_MissingFile(t *testing.T) {
	_, err := LoadProcessing("/nonexistent/config.json")
	require.Error(t, err)
}

func TestLoadProcessing_InvalidThresholds(t *testing.T) {
	path := writeFile(t, "config.json", `{"RPS": {"1": [24, 19]}, "profile_durations": [1]}`)

	_, err := LoadProcessing(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "return period thresholds for 1h")
}

func TestProcessing_SettingsRejectsBadKey(t *testing.T) {
	p := DefaultProcessing()
	p.AccumDurationStart = map[string]int{"one": 23}

	_, err := p.Settings()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"one"`)
}
