package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"plsummary-service/internal/config"
	"plsummary-service/internal/convert"
	"plsummary-service/internal/logging"
)

// errFailed marks a run that completed but had at least one failing file.
var errFailed = errors.New("one or more files failed")

type options struct {
	configPath string
	outputDir  string
	debugLog   string
	workers    int
	jsonOut    bool
}

func main() {
	log.SetFlags(0)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	stop()
	switch {
	case err == nil:
	case errors.Is(err, errFailed):
		os.Exit(1)
	default:
		log.Printf("plsummary: %v", err)
		os.Exit(2)
	}
}

func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "plsummary <export.csv>...",
		Short: "Split monthly P&L exports into TSV reports and merge their cost subject order",
		Long: "Each export (NAME_YY.M.csv or .xlsx) is split into a P&L TSV, a cost report TSV and\n" +
			"their vertical tables. The cost report subject lists of all files are then merged\n" +
			"into one order written as *_科目名_A∪B_vertical.tsv.",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(cmd, opts, args)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "YAML config file (default ./"+config.DefaultFile+" if present)")
	pf.StringVar(&opts.outputDir, "output-dir", "", "Directory for generated files (overrides config)")
	pf.StringVar(&opts.debugLog, "debug-log", "", "Debug log path, relative to the output dir (overrides config)")
	pf.BoolVar(&opts.jsonOut, "json", true, "Output JSON summary")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "Files converted in parallel (overrides config)")

	cmd.AddCommand(newMergeCmd(&opts), newInitConfigCmd())
	return cmd
}

func newMergeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "merge <subjects_vertical.tsv>...",
		Short: "Merge the subject order of existing subject vertical TSV files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, *opts)
			if err != nil {
				return err
			}
			logger, err := openLogger(cfg)
			if err != nil {
				return err
			}
			defer logger.Close()

			u, err := convert.New(cfg, logger).Union(args)
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return writeJSON(cmd.OutOrStdout(), u)
			}
			fmt.Fprint(cmd.OutOrStdout(), convert.HumanUnion(u))
			return nil
		},
	}
}

func newInitConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config [path]",
		Short: "Write the default configuration (never overwrites)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.DefaultFile
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.WriteDefault(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
}

func runConvert(cmd *cobra.Command, opts options, inputs []string) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	logger, err := openLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	sum := convert.New(cfg, logger).Run(cmd.Context(), inputs)

	out := cmd.OutOrStdout()
	if opts.jsonOut {
		if err := writeJSON(out, sum); err != nil {
			return err
		}
	} else {
		fmt.Fprint(out, convert.HumanSummary(sum))
	}
	for _, f := range sum.Files {
		if f.Error != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", f.Input, f.Error)
		}
	}
	if !sum.OK() {
		return errFailed
	}
	return nil
}

// loadConfig layers defaults, the YAML file and explicitly set flags.
func loadConfig(cmd *cobra.Command, opts options) (config.Config, error) {
	cfg, err := config.Load(config.Resolve(opts.configPath))
	if err != nil {
		return cfg, err
	}
	flags := cmd.Flags()
	if flags.Changed("output-dir") {
		cfg.OutputDir = opts.outputDir
	}
	if flags.Changed("debug-log") {
		cfg.DebugLog = opts.debugLog
	}
	if flags.Changed("workers") {
		cfg.Workers = opts.workers
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func openLogger(cfg config.Config) (*logging.Logger, error) {
	path := cfg.DebugLogPath()
	if path == "" {
		return nil, nil
	}
	return logging.New(path)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}
