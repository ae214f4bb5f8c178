package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/usagepulse/internal/analysis"
	"github.com/ZanzyTHEbar/usagepulse/internal/config"
	"github.com/ZanzyTHEbar/usagepulse/internal/dataset"
	"github.com/ZanzyTHEbar/usagepulse/internal/monitoring"
	"github.com/ZanzyTHEbar/usagepulse/internal/query"
)

const (
	formatTable = "table"
	formatJSON  = "json"
)

// app carries the state shared by every subcommand.
type app struct {
	source  string
	format  string
	genders []string
	systems []string

	cfg      *config.Config
	logger   *monitoring.Logger
	analyzer *analysis.Analyzer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one command line and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	rootCmd := newRootCmd(stdout, stderr)
	rootCmd.SetArgs(args)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		reportError(stderr, err)
		return 1
	}
	return 0
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "usagereport",
		Short:         "Summarize a mobile device usage dataset in the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open(cmd)
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.source, "source", "", "Dataset file (.csv, .tsv, .xlsx, .db); defaults to USAGE_DATA_SOURCE")
	flags.StringVarP(&a.format, "format", "f", formatTable, "Output format (table, json)")
	flags.StringSliceVar(&a.genders, "gender", nil, "Keep only these genders; an empty value keeps none")
	flags.StringSliceVar(&a.systems, "os", nil, "Keep only these operating systems; an empty value keeps none")

	rootCmd.AddCommand(
		newSummaryCmd(a),
		newTopCmd(a),
		newCorrelationCmd(a),
		newDistributionCmd(a),
	)
	return rootCmd
}

// open loads configuration and the dataset. A source that cannot be read
// fails every subcommand before it prints anything.
func (a *app) open(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if a.source != "" {
		cfg.Data.Source = a.source
	}
	switch a.format {
	case formatTable, formatJSON:
	default:
		return fmt.Errorf("unknown format %q (want %s or %s)", a.format, formatTable, formatJSON)
	}

	a.cfg = cfg
	a.logger = monitoring.NewLoggerTo(cmd.ErrOrStderr(), cfg.Logging.Level, "text")
	a.analyzer = analysis.NewAnalyzer(analysis.Options{
		Source: cfg.Data.Source,
		Loader: cfg.LoaderOptions(),
		Logger: a.logger,
	})

	_, err = a.analyzer.Dataset(cmd.Context())
	return err
}

// selection builds the row filter from the flags that were given. A flag
// that was not given selects every value.
func (a *app) selection(cmd *cobra.Command) query.Selection {
	sel := query.Selection{}
	flags := cmd.Flags()
	if flags.Changed("gender") {
		sel[dataset.Gender] = nonBlank(a.genders)
	}
	if flags.Changed("os") {
		sel[dataset.OperatingSystem] = nonBlank(a.systems)
	}
	return sel
}

func nonBlank(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func (a *app) writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// reportError names the missing file or columns when the dataset could not
// be loaded.
func reportError(w io.Writer, err error) {
	var (
		notFound *dataset.SourceNotFoundError
		schema   *dataset.SchemaError
	)
	switch {
	case errors.As(err, &notFound):
		fmt.Fprintf(w, "Error: dataset source not found: %s\n", notFound.Source)
	case errors.As(err, &schema):
		fmt.Fprintf(w, "Error: dataset %s is missing columns: %v\n", schema.Source, schema.Missing)
	default:
		fmt.Fprintf(w, "Error: %v\n", err)
	}
}
