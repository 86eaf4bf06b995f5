// Package cli implements the lexalert command-line tool.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/LexAlert/internal/config"
	"github.com/turtacn/LexAlert/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LexAlert/pkg/errors"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// cliContextKey is the context key for CLIContext.
type cliContextKey struct{}

// RootOptions holds global CLI flags.
type RootOptions struct {
	ConfigPath   string
	LogLevel     string
	OutputFormat string
	Verbose      bool
	Timeout      time.Duration
}

// CLIContext carries initialized dependencies through the command tree.
// Config is loaded on first use so offline commands run without one.
type CLIContext struct {
	Logger       logging.Logger
	OutputFormat string
	Verbose      bool
	Timeout      time.Duration

	configPath string
	config     *config.Config
}

// Config loads the configuration once.
func (c *CLIContext) Config() (*config.Config, error) {
	if c.config != nil {
		return c.config, nil
	}
	cfg, err := initConfig(c.configPath)
	if err != nil {
		return nil, err
	}
	c.config = cfg
	return cfg, nil
}

// NewRootCommand creates the root cobra command with all global flags and
// subcommands. A zero Dependencies uses the real infrastructure.
func NewRootCommand(deps Dependencies) *cobra.Command {
	deps = deps.withDefaults()
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "lexalert",
		Short: "LexAlert CLI for legal deadline alerting",
		Long: "LexAlert tracks legal deadlines and raises in-app and email alerts at\n" +
			"7, 3 and 1 day(s) before, on the due date, and daily once overdue.",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return persistentPreRun(cmd, opts)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.ConfigPath, "config", "c", "", "config file path (default: ./lexalert.yaml)")
	pf.StringVar(&opts.LogLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	pf.StringVarP(&opts.OutputFormat, "output", "o", "text", "output format (text, json, table)")
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "enable verbose output")
	pf.DurationVar(&opts.Timeout, "timeout", 10*time.Minute, "global operation timeout")

	cmd.AddCommand(
		newPlanCmd(deps),
		newStatusCmd(deps),
		newDispatchCmd(deps),
		newMigrateCmd(deps),
		newVersionCmd(),
	)
	return cmd
}

// persistentPreRun initializes the logger and stores CLIContext.
func persistentPreRun(cmd *cobra.Command, opts *RootOptions) error {
	switch strings.ToLower(opts.OutputFormat) {
	case "text", "json", "table":
	default:
		return errors.InvalidParam(fmt.Sprintf("unsupported output format %q", opts.OutputFormat))
	}

	logger, err := initLogger(opts)
	if err != nil {
		return fmt.Errorf("logger initialization failed: %w", err)
	}

	cliCtx := &CLIContext{
		Logger:       logger,
		OutputFormat: strings.ToLower(opts.OutputFormat),
		Verbose:      opts.Verbose,
		Timeout:      opts.Timeout,
		configPath:   opts.ConfigPath,
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, cliCtx))
	return nil
}

// initConfig loads configuration with priority: env > file > defaults.
func initConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	searchPaths := []string{"./lexalert.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(home, ".lexalert", "config.yaml"))
	}
	searchPaths = append(searchPaths, "/etc/lexalert/config.yaml")

	for _, p := range searchPaths {
		if _, statErr := os.Stat(p); statErr == nil {
			return config.Load(p)
		}
	}
	return config.LoadFromEnv()
}

// initLogger creates a logger configured for CLI usage (output to stderr).
func initLogger(opts *RootOptions) (logging.Logger, error) {
	level := strings.ToLower(opts.LogLevel)
	if opts.Verbose {
		level = "debug"
	}
	return logging.NewLogger(logging.LogConfig{
		Level:            level,
		Format:           "console",
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	})
}

// GetCLIContext extracts CLIContext from a cobra command's context.
func GetCLIContext(cmd *cobra.Command) (*CLIContext, error) {
	ctx := cmd.Context()
	if ctx == nil {
		return nil, errors.InvalidParam("command context is nil")
	}
	cliCtx, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok || cliCtx == nil {
		return nil, errors.InvalidParam("CLIContext not found in command context")
	}
	return cliCtx, nil
}

// Execute is the main entry point for the CLI application.
func Execute() error {
	rootCmd := NewRootCommand(Dependencies{})
	if err := rootCmd.Execute(); err != nil {
		PrintError(rootCmd, err)
		return err
	}
	return nil
}

// PrintResult outputs data in the format specified by CLIContext.
func PrintResult(cmd *cobra.Command, data interface{}) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return printJSON(cmd, data)
	}
	switch cliCtx.OutputFormat {
	case "json":
		return printJSON(cmd, data)
	case "table":
		return printTable(cmd, data)
	default:
		return printText(cmd, data)
	}
}

func printJSON(cmd *cobra.Command, data interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func printText(cmd *cobra.Command, data interface{}) error {
	switch v := data.(type) {
	case string:
		fmt.Fprintln(cmd.OutOrStdout(), v)
	case fmt.Stringer:
		fmt.Fprintln(cmd.OutOrStdout(), v.String())
	default:
		fmt.Fprintf(cmd.OutOrStdout(), "%+v\n", v)
	}
	return nil
}

// printTable renders data that can describe itself as rows; anything else
// falls back to text.
func printTable(cmd *cobra.Command, data interface{}) error {
	type tableProvider interface {
		TableHeaders() []string
		TableRows() [][]string
	}
	if tp, ok := data.(tableProvider); ok {
		fmt.Fprint(cmd.OutOrStdout(), FormatTable(tp.TableHeaders(), tp.TableRows()))
		return nil
	}
	return printText(cmd, data)
}

// PrintError writes a formatted error message to stderr.
func PrintError(cmd *cobra.Command, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err.Error())
}

// PrintSuccess writes a formatted success message to stdout.
func PrintSuccess(cmd *cobra.Command, msg string) {
	fmt.Fprintf(cmd.OutOrStdout(), "OK: %s\n", msg)
}

// FormatTable renders headers and rows as an aligned ASCII table.
func FormatTable(headers []string, rows [][]string) string {
	if len(headers) == 0 {
		return ""
	}

	colWidths := make([]int, len(headers))
	for i, h := range headers {
		colWidths[i] = len(h)
	}
	for _, row := range rows {
		for i := 0; i < len(row) && i < len(colWidths); i++ {
			if len(row[i]) > colWidths[i] {
				colWidths[i] = len(row[i])
			}
		}
	}

	var sb strings.Builder
	writeRow := func(cells []string) {
		for i := range headers {
			if i > 0 {
				sb.WriteString("  ")
			}
			val := ""
			if i < len(cells) {
				val = cells[i]
			}
			sb.WriteString(padRight(val, colWidths[i]))
		}
		sb.WriteString("\n")
	}

	writeRow(headers)
	sep := make([]string, len(colWidths))
	for i, w := range colWidths {
		sep[i] = strings.Repeat("-", w)
	}
	writeRow(sep)
	for _, row := range rows {
		writeRow(row)
	}
	return sb.String()
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "lexalert %s\ncommit: %s\nbuilt: %s\n", Version, GitCommit, BuildDate)
			return nil
		},
	}
}
