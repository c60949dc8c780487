package config

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/couchcryptid/ukcp-rainfall-etl/internal/domain"
)

// DefaultURLTemplate locates the hourly UKCP18 2.2km CPM files on the CEDA archive.
const DefaultURLTemplate = "https://dap.ceda.ac.uk/badc/ukcp18/data/land-cpm/uk/2.2km/rcp85/{member}/{variable}/1hr/v20210615/" +
	"{variable}_rcp85_land-cpm_uk_2.2km_{member}_1hr_{start}-{end}.nc"

const envPrefix = "UKCP_"

// Processing holds the statistics settings. Maps keyed by duration use the
// duration in hours as a string key, matching the JSON config files.
type Processing struct {
	NumberOfWC         int                  `koanf:"number_of_wc"`
	AccumDurationStart map[string]int       `koanf:"accum_duration_start"`
	RPS                map[string][]float64 `koanf:"rps"`
	RPYears            []int                `koanf:"rp_years"`
	Bins               map[string][]float64 `koanf:"bins"`
	BinDurations       []int                `koanf:"bin_durations"`
	ProfileDurations   []int                `koanf:"profile_durations"`
	DryDayThreshold    float64              `koanf:"dry_day_threshold"`
	URLTemplate        string               `koanf:"url_template"`
	MaskVariable       string               `koanf:"mask_variable"`
}

// DefaultProcessing returns the settings used for the water company analysis.
func DefaultProcessing() Processing {
	return Processing{
		NumberOfWC:         13,
		AccumDurationStart: map[string]int{"1": 23, "3": 22, "6": 19, "9": 16, "12": 13, "24": 1},
		RPS: map[string][]float64{
			"1":  {19, 24, 32, 36, 42},
			"3":  {29, 35, 44, 49, 57},
			"6":  {35, 42, 53, 59, 67},
			"9":  {39, 46, 59, 65, 75},
			"12": {42, 50, 63, 70, 80},
			"24": {50, 58, 74, 83, 95},
		},
		RPYears: []int{5, 10, 30, 50, 100},
		Bins: map[string][]float64{
			"1": {2, 4, 7, 10, 14, 18, 24, 30, 40, 55, 70, 90, 110, 135},
			"3": {2, 6, 10, 15, 20, 30, 40, 60, 80, 110, 140, 175, 215, 265},
			"6": {2, 7, 13, 19, 28, 40, 55, 80, 115, 160, 210, 260, 320, 390},
		},
		BinDurations:     []int{3, 6},
		ProfileDurations: []int{1, 3, 6, 9, 12, 24},
		DryDayThreshold:  0.1,
		URLTemplate:      DefaultURLTemplate,
		MaskVariable:     "WCID",
	}
}

// LoadProcessing layers defaults, an optional JSON or YAML file and UKCP_
// environment variables. Unset fields keep their defaults; a map present in
// the file replaces the default map rather than merging with it.
func LoadProcessing(path string) (*Processing, error) {
	k := koanf.New(".")

	if path != "" {
		var parser koanf.Parser = json.Parser()
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, fmt.Errorf("load processing config %s: %w", path, err)
		}
	}

	// UKCP_NUMBER_OF_WC -> number_of_wc
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load processing env: %w", err)
	}

	var p Processing
	if err := k.UnmarshalWithConf("", &p, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("decode processing config: %w", err)
	}
	p.fillDefaults(DefaultProcessing())

	if _, err := p.Settings(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Processing) fillDefaults(d Processing) {
	if p.NumberOfWC == 0 {
		p.NumberOfWC = d.NumberOfWC
	}
	if len(p.AccumDurationStart) == 0 {
		p.AccumDurationStart = d.AccumDurationStart
	}
	if len(p.RPS) == 0 {
		p.RPS = d.RPS
	}
	if len(p.RPYears) == 0 {
		p.RPYears = d.RPYears
	}
	if len(p.Bins) == 0 {
		p.Bins = d.Bins
	}
	if p.BinDurations == nil {
		p.BinDurations = d.BinDurations
	}
	if p.ProfileDurations == nil {
		p.ProfileDurations = d.ProfileDurations
	}
	if p.DryDayThreshold == 0 {
		p.DryDayThreshold = d.DryDayThreshold
	}
	if p.URLTemplate == "" {
		p.URLTemplate = d.URLTemplate
	}
	if p.MaskVariable == "" {
		p.MaskVariable = d.MaskVariable
	}
}

// Settings converts the loaded configuration into validated domain settings.
func (p *Processing) Settings() (domain.Settings, error) {
	s := domain.Settings{
		NumberOfWC:       p.NumberOfWC,
		RPYears:          p.RPYears,
		BinDurations:     p.BinDurations,
		ProfileDurations: p.ProfileDurations,
		DryDayThreshold:  p.DryDayThreshold,
	}

	for key, hour := range p.AccumDurationStart {
		d, err := durationKey("accum_duration_start", key)
		if err != nil {
			return domain.Settings{}, err
		}
		s.Accumulations = append(s.Accumulations, domain.Accumulation{Duration: d, StartHour: hour})
	}
	sort.Slice(s.Accumulations, func(i, j int) bool { return s.Accumulations[i].Duration < s.Accumulations[j].Duration })

	var err error
	if s.ReturnPeriods, err = byDuration("rps", p.RPS); err != nil {
		return domain.Settings{}, err
	}
	if s.BinEdges, err = byDuration("bins", p.Bins); err != nil {
		return domain.Settings{}, err
	}

	if err := s.Validate(); err != nil {
		return domain.Settings{}, fmt.Errorf("invalid processing config: %w", err)
	}
	return s, nil
}

func byDuration(field string, m map[string][]float64) (map[int][]float64, error) {
	out := make(map[int][]float64, len(m))
	for key, v := range m {
		d, err := durationKey(field, key)
		if err != nil {
			return nil, err
		}
		out[d] = v
	}
	return out, nil
}

func durationKey(field, key string) (int, error) {
	d, err := strconv.Atoi(key)
	if err != nil {
		return 0, fmt.Errorf("%s: duration key %q is not an integer", field, key)
	}
	return d, nil
}
