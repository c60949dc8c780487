// Command ukcp downloads UKCP18 convection-permitting model months and writes
// rainfall statistics per water company area.
//
// Usage:
//
//	ukcp process --ukcp-url <url> --out <dir> --projection-id 1 --member 4
//	ukcp batch --projection-id 1 --member 4 --out <dir> --selections <csv>
//	ukcp postprocess --ens-id 01 --in <dir> --out <dir>
//	ukcp token [--refresh]
//	ukcp wps-url --area <area> --timeslice 1980|1981
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/akamensky/argparse"

	"github.com/couchcryptid/ukcp-rainfall-etl/internal/adapter/ukcpapi"
	"github.com/couchcryptid/ukcp-rainfall-etl/internal/config"
	"github.com/couchcryptid/ukcp-rainfall-etl/internal/observability"
)

const (
	defaultMask       = "UKWC_Cleaned_land-cpm_uk_2.2km.nc"
	defaultSelections = "YearsMonths_byBinCounts_Rand_OtherYears.csv"
)

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	parser := argparse.NewParser("ukcp", "UKCP18 rainfall statistics for water company areas")

	process := parser.NewCommand("process", "Process one model month given its file URL")
	pURL := process.String("u", "ukcp-url", &argparse.Options{Required: true, Help: "URL or path of the target month file"})
	pJob := jobFlags(process)

	batch := parser.NewCommand("batch", "Process every month listed in the selection table")
	bJob := jobFlags(batch)
	bTemplate := batch.String("", "url-template", &argparse.Options{Help: "URL template with {member}, {variable}, {start} and {end}; overrides the config file"})

	post := parser.NewCommand("postprocess", "Merge catchment pr and tas files into per-catchment CSVs")
	ensID := post.String("e", "ens-id", &argparse.Options{Required: true, Help: "Ensemble member id, e.g. 01"})
	postIn := post.String("i", "in", &argparse.Options{Required: true, Help: "Directory holding <ens-id>/pr and <ens-id>/tas"})
	postOut := post.String("o", "out", &argparse.Options{Required: true, Help: "Output directory"})

	token := parser.NewCommand("token", "Fetch or refresh the cached CEDA download token")
	refresh := token.Flag("r", "refresh", &argparse.Options{Help: "Request a new token even if the cached one is valid"})

	wps := parser.NewCommand("wps-url", "Print a UKCP user interface WPS request URL")
	wpsIn := wpsFlags(wps)
	endpoint := wps.String("", "endpoint", &argparse.Options{Default: ukcpapi.DefaultEndpoint, Help: "WPS endpoint"})

	if err := parser.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, parser.Usage(err))
		return 1
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}
	logger := observability.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var command string
	switch {
	case process.Happened():
		command = "process"
		err = runProcess(ctx, cfg, logger, *pURL, pJob.options())
	case batch.Happened():
		command = "batch"
		err = runBatch(ctx, cfg, logger, *bTemplate, bJob.options())
	case post.Happened():
		command = "postprocess"
		err = runPostprocess(ctx, logger, *postIn, *postOut, *ensID)
	case token.Happened():
		command = "token"
		err = runToken(ctx, cfg, logger, *refresh)
	case wps.Happened():
		command = "wps-url"
		err = runWPSURL(*endpoint, wpsIn.inputs())
	}
	if err != nil {
		logger.Error("command failed", "command", command, "error", err)
		return 1
	}
	return 0
}

// jobArgs are the flags shared by process and batch.
type jobArgs struct {
	out          *string
	projectionID *int
	member       *int
	variable     *string
	configPath   *string
	mask         *string
	selections   *string
	force        *bool
}

func jobFlags(cmd *argparse.Command) jobArgs {
	return jobArgs{
		out:          cmd.String("o", "out", &argparse.Options{Required: true, Help: "Output directory for the CSV tables"}),
		projectionID: cmd.Int("p", "projection-id", &argparse.Options{Required: true, Help: "Projection slice id (1-3)"}),
		member:       cmd.Int("m", "member", &argparse.Options{Required: true, Help: "Ensemble member number"}),
		variable:     cmd.String("v", "variable", &argparse.Options{Default: "pr", Help: "Variable to process"}),
		configPath:   cmd.String("c", "config", &argparse.Options{Help: "JSON or YAML processing config"}),
		mask:         cmd.String("", "mask", &argparse.Options{Default: defaultMask, Help: "Water company mask NetCDF file"}),
		selections:   cmd.String("s", "selections", &argparse.Options{Default: defaultSelections, Help: "Projection/year/month selection CSV"}),
		force:        cmd.Flag("f", "force", &argparse.Options{Help: "Reprocess months already in the ledger"}),
	}
}

func (a jobArgs) options() jobOptions {
	return jobOptions{
		OutDir:       *a.out,
		ProjectionID: *a.projectionID,
		Member:       *a.member,
		Variable:     *a.variable,
		ConfigPath:   *a.configPath,
		MaskPath:     *a.mask,
		Selections:   *a.selections,
		Force:        *a.force,
	}
}

type wpsArgs struct {
	temporalAverage, area, collection, format *string
	timeSlice, variable, baseline, scenario   *string
}

func wpsFlags(cmd *argparse.Command) wpsArgs {
	d := ukcpapi.DefaultInputs()
	return wpsArgs{
		temporalAverage: cmd.String("", "temporal-average", &argparse.Options{Default: d.TemporalAverage, Help: "Temporal average, e.g. ann or jan"}),
		area:            cmd.String("a", "area", &argparse.Options{Required: true, Help: "Area, e.g. bbox|x0|y0|x1|y1 or point|x|y"}),
		collection:      cmd.String("", "collection", &argparse.Options{Default: d.Collection, Help: "Data collection"}),
		format:          cmd.String("", "format", &argparse.Options{Default: d.DataFormat, Help: "Data format"}),
		timeSlice:       cmd.String("t", "timeslice", &argparse.Options{Required: true, Help: "Time slice, e.g. 1980|1981"}),
		variable:        cmd.String("v", "variable", &argparse.Options{Default: d.Variable, Help: "Variable"}),
		baseline:        cmd.String("", "baseline", &argparse.Options{Default: d.Baseline, Help: "Baseline period"}),
		scenario:        cmd.String("", "scenario", &argparse.Options{Default: d.Scenario, Help: "Emissions scenario"}),
	}
}

func (a wpsArgs) inputs() ukcpapi.Inputs {
	return ukcpapi.Inputs{
		TemporalAverage: *a.temporalAverage,
		Area:            *a.area,
		Collection:      *a.collection,
		DataFormat:      *a.format,
		TimeSlice:       *a.timeSlice,
		Variable:        *a.variable,
		Baseline:        *a.baseline,
		Scenario:        *a.scenario,
	}
}
