// Package ukcpapi builds request URLs for the UKCP user interface WPS service.
package ukcpapi

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultEndpoint is the UKCP user interface WPS endpoint.
const DefaultEndpoint = "https://ukclimateprojections-ui.metoffice.gov.uk/wps"

// Inputs are the data inputs of a plume (LS1_Plume_01) request.
type Inputs struct {
	TemporalAverage string // e.g. "ann" or "jan"
	Area            string // e.g. "bbox|474459.24|241777.72|486311.19|246518.35"
	Collection      string
	DataFormat      string
	TimeSlice       string // e.g. "1980|1981"
	Variable        string
	Baseline        string
	Scenario        string
}

// DefaultInputs returns the inputs used for the probabilistic land projections.
func DefaultInputs() Inputs {
	return Inputs{
		TemporalAverage: "ann",
		Collection:      "land-prob",
		DataFormat:      "netcdf",
		Variable:        "pr",
		Baseline:        "b8100",
		Scenario:        "rcp85",
	}
}

// RequestURL returns the WPS Execute URL for in against endpoint. The data
// inputs are joined verbatim; the service expects the literal "|" and ";"
// separators.
func RequestURL(endpoint string, in Inputs) (string, error) {
	pairs := []struct{ key, value string }{
		{"TemporalAverage", in.TemporalAverage},
		{"Area", in.Area},
		{"Collection", in.Collection},
		{"DataFormat", in.DataFormat},
		{"TimeSlice", in.TimeSlice},
		{"Variable", in.Variable},
		{"Baseline", in.Baseline},
		{"Scenario", in.Scenario},
	}

	var errs []error
	inputs := make([]string, 0, len(pairs))
	for _, p := range pairs {
		if p.value == "" {
			errs = append(errs, fmt.Errorf("%s is required", p.key))
			continue
		}
		if strings.ContainsAny(p.value, ";&=") {
			errs = append(errs, fmt.Errorf("%s %q contains a reserved character", p.key, p.value))
			continue
		}
		inputs = append(inputs, p.key+"="+p.value)
	}
	if err := errors.Join(errs...); err != nil {
		return "", err
	}

	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return endpoint + "?service=wps&request=Execute&version=1.0.0&Identifier=LS1_Plume_01" +
		"&Format=text/xml&Inform=true&Store=false&Status=false" +
		"&DataInputs=" + strings.Join(inputs, ";"), nil
}
