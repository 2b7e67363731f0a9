package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bbque-tools/dse/internal/config"
	"github.com/bbque-tools/dse/internal/domain"
	"github.com/bbque-tools/dse/internal/dse/driver"
	"github.com/bbque-tools/dse/internal/dse/space"
	"github.com/bbque-tools/dse/internal/dse/validate"
)

var errConfig = errors.New("invalid configuration")

const helpText = `Design points are built from the parameter file given with --params
(defaults are used when it is omitted). bds_number, bds_size and
apps_number are constant; every list holds the candidate values of one
variable dimension. Each variable dimension is replicated once per binding
domain or once per application, so growing either count or any list grows
the exploration very quickly.

single-point executes only the reference point (single_point in the
parameter file). The point must be consistent with the parameters above.

Use "dse list" for the command list.`

type rootOptions struct {
	paramsFile string
	outputDir  string
	logLevel   string
	dryRun     bool
}

type commandInfo struct {
	name string
	desc string
}

var commandTable = []commandInfo{
	{"help", "prints the help"},
	{"list", "prints the command list"},
	{"run", "explores the whole design space (default)"},
	{"single-point", "check a specified point"},
	{"debug", "activate debug mode"},
	{"complexity", "naive complexity computation"},
	{"complexity-hard", "precise complexity computation (could be long)"},
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "dse",
		Short: "Design-space exploration driver for the resource manager",
		Long:  helpText,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return explore(cmd, opts, exploreMode{})
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&opts.paramsFile, "params", "", "parameter file (YAML); overrides DSE_PARAMS")
	flags.StringVar(&opts.outputDir, "output", "", "output directory; overrides DSE_OUTPUT_DIR")
	flags.StringVar(&opts.logLevel, "log-level", "", "console log level (debug, info, warn, error); overrides DSE_LOG_LEVEL")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "simulate the runtime instead of starting processes")

	root.AddCommand(
		newRunCmd(opts),
		newModeCmd(opts, "debug", "Explore the design space with debug workloads", exploreMode{debug: true}),
		newModeCmd(opts, "single-point", "Execute only the reference point", exploreMode{singlePoint: true}),
		newComplexityCmd(opts),
		newComplexityHardCmd(opts),
		newListCmd(),
	)
	return root
}

type exploreMode struct {
	debug       bool
	singlePoint bool
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	var mode exploreMode
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Explore the whole design space",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return explore(cmd, opts, mode)
		},
	}
	cmd.Flags().BoolVar(&mode.debug, "debug", false, "launch workloads in debug mode")
	cmd.Flags().BoolVar(&mode.singlePoint, "single-point", false, "execute only the reference point")
	return cmd
}

func newModeCmd(opts *rootOptions, use, short string, mode exploreMode) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return explore(cmd, opts, mode)
		},
	}
}

func newComplexityCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "complexity",
		Short: "Print the size of the design space before pruning",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			_, params, err := loadInputs(opts)
			if err != nil {
				return err
			}
			if err := validate.Validate(params); err != nil {
				return err
			}
			size, err := space.Size(params)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Expected number of tests: %d\n", size)
			fmt.Fprintln(out, "For the real number of tests, use [complexity-hard]")
			return nil
		},
	}
}

func newComplexityHardCmd(opts *rootOptions) *cobra.Command {
	var singlePoint bool
	cmd := &cobra.Command{
		Use:   "complexity-hard",
		Short: "Enumerate and prune the design space without executing it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			cfg, params, err := loadInputs(opts)
			if err != nil {
				return err
			}
			logger, closeLog, err := newLogger(cfg, cmd.ErrOrStderr(), false)
			if err != nil {
				return err
			}
			defer closeLog()

			d, err := driver.New(params, nil, nil, nil,
				driver.WithComplexityOnly(true),
				driver.WithSinglePoint(singlePoint),
				driver.WithLogger(logger),
			)
			if err != nil {
				return err
			}
			summary, err := d.Run(cmd.Context())
			if err != nil {
				return err
			}
			printCounts(cmd.OutOrStdout(), summary.Progress, "would be performed")
			return nil
		},
	}
	cmd.Flags().BoolVar(&singlePoint, "single-point", false, "count only the reference point")
	return cmd
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the command list",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			rule := "+" + strings.Repeat("=", 41)
			fmt.Fprintln(out, rule)
			fmt.Fprintln(out, "| Command list")
			fmt.Fprintln(out, rule)
			for _, c := range commandTable {
				fmt.Fprintf(out, "| [%s] : [%s]\n", c.name, c.desc)
			}
			fmt.Fprintln(out, rule)
		},
	}
}

// loadInputs reads the environment, applies flag overrides and loads the
// parameter file.
func loadInputs(opts *rootOptions) (config.Config, domain.Parameters, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, domain.Parameters{}, fmt.Errorf("%w: %w", errConfig, err)
	}
	if opts.paramsFile != "" {
		cfg.ParamsFile = opts.paramsFile
	}
	if opts.outputDir != "" {
		cfg.OutputDir = opts.outputDir
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if opts.dryRun {
		cfg.Runtime = config.RuntimeDryRun
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, domain.Parameters{}, fmt.Errorf("%w: %w", errConfig, err)
	}
	params, err := domain.LoadParameters(cfg.ParamsFile)
	if err != nil {
		return config.Config{}, domain.Parameters{}, fmt.Errorf("%w: %w", errConfig, err)
	}
	return cfg, params, nil
}

func printCounts(w io.Writer, p domain.Progress, verb string) {
	fmt.Fprintf(w, "%d tests %s.\n", p.Executed, verb)
	fmt.Fprintf(w, "%d tests skipped due to design rules.\n", p.Skipped)
	if p.Failed > 0 {
		fmt.Fprintf(w, "%d tests failed.\n", p.Failed)
	}
}
