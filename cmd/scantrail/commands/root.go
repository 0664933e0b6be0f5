package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/DrSkyle/scantrail/pkg/config"
	"github.com/DrSkyle/scantrail/pkg/engine"
	"github.com/DrSkyle/scantrail/pkg/version"
)

const envPrefix = "SCANTRAIL"

var (
	cfgFile      string
	jsonLogs     bool
	verbose      bool
	otelEndpoint string

	configErr error
)

var rootCmd = &cobra.Command{
	Use:   "scantrail",
	Short: "Historical trend and remediation analysis for security scan exports",
	Long: `scantrail - Security Findings Trend Analysis

Load semicolon-delimited scan exports, track findings over time and
follow every failing check until it is remediated.`,
	Version:       version.Current,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return configErr
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: ")+err.Error())
		os.Exit(1)
	}
}

// ExecuteContext runs the root command with ctx.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	// Without a subcommand the root runs the full analysis.
	// Assigned here to avoid an initialization cycle with runAnalysis.
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runAnalysis(cmd, engine.ModeFull)
	}

	cobra.OnInitialize(initConfig)

	// Persistent Flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default $HOME/.scantrail.yaml)")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "Emit structured JSON logs on stderr")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&otelEndpoint, "otel-endpoint", "", "OTLP/HTTP trace endpoint (default $OTEL_EXPORTER_OTLP_ENDPOINT)")

	addAnalysisFlags(rootCmd.Flags())

	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		renderHelp(cmd)
	})

	rootCmd.AddCommand(analyzeCmd, remediationCmd, mergeCmd, historyCmd)
}

// initConfig reads the config file and environment. Flags are bound per command at run time.
func initConfig() {
	configErr = nil
	viper.Reset()
	setDefaults()

	explicit := cfgFile != ""
	if explicit {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.SetConfigFile(filepath.Join(home, ".scantrail.yaml"))
			viper.SetConfigType("yaml")
		}
	}
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// The default file is optional. An explicit one is not.
		var notFound viper.ConfigFileNotFoundError
		if explicit || !(errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)) {
			configErr = fmt.Errorf("invalid configuration: %w", err)
		}
	}
}

func setDefaults() {
	d := config.DefaultSettings()
	viper.SetDefault("input", d.Input)

	viper.SetDefault("analysis.granularity", d.Analysis.Granularity)
	viper.SetDefault("analysis.top", d.Analysis.TopN)
	viper.SetDefault("analysis.trend_checks", d.Analysis.TrendChecks)
	viper.SetDefault("analysis.service_slices", d.Analysis.ServiceSlices)
	viper.SetDefault("analysis.policy", d.Analysis.Policy)
	viper.SetDefault("analysis.filter", d.Analysis.Filter)
	viper.SetDefault("analysis.accounts", d.Analysis.Accounts)

	viper.SetDefault("output.dir", d.Output.Dir)
	viper.SetDefault("output.html", d.Output.HTML)
	viper.SetDefault("output.pdf", d.Output.PDF)
	viper.SetDefault("output.charts", d.Output.Charts)
	viper.SetDefault("output.document_rows", d.Output.DocumentRows)
	viper.SetDefault("output.chart_width", d.Output.ChartWidth)
	viper.SetDefault("output.chart_height", d.Output.ChartHeight)

	viper.SetDefault("integrations.ledger", d.Integrations.Ledger)
	viper.SetDefault("integrations.history_runs", d.Integrations.HistoryRuns)
	viper.SetDefault("integrations.slack_webhook", d.Integrations.SlackWebhook)
	viper.SetDefault("integrations.slack_channel", d.Integrations.SlackChannel)
	viper.SetDefault("integrations.metrics_file", d.Integrations.MetricsFile)
}

// flagKeys maps flag names to config keys.
var flagKeys = map[string]string{
	"input":         "input",
	"output":        "output.dir",
	"report":        "output.html",
	"pdf":           "output.pdf",
	"granularity":   "analysis.granularity",
	"top":           "analysis.top",
	"policy":        "analysis.policy",
	"filter":        "analysis.filter",
	"accounts":      "analysis.accounts",
	"ledger":        "integrations.ledger",
	"last":          "integrations.history_runs",
	"slack-webhook": "integrations.slack_webhook",
	"slack-channel": "integrations.slack_channel",
	"metrics-file":  "integrations.metrics_file",
}

// bindFlags binds the flags of the executing command only, so commands sharing a flag name don't clobber each other.
func bindFlags(cmd *cobra.Command) error {
	var err error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || err != nil {
			return
		}
		err = viper.BindPFlag(key, f)
	})
	if err != nil {
		return err
	}
	// --no-charts inverts output.charts.
	if f := cmd.Flags().Lookup("no-charts"); f != nil && f.Changed {
		viper.Set("output.charts", f.Value.String() != "true")
	}
	return nil
}

// newLogger builds the slog logger selected by --json-logs and --verbose.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: engine.RedactSensitiveData}

	var handler slog.Handler
	if jsonLogs {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// loadSettings binds the command's flags and decodes flags, env, config file and defaults.
// viper.Unmarshal goes through AllSettings, which honours bound flags on nested keys.
func loadSettings(cmd *cobra.Command) (config.Settings, error) {
	s := config.DefaultSettings()
	if err := bindFlags(cmd); err != nil {
		return s, err
	}
	if err := viper.Unmarshal(&s); err != nil {
		return s, fmt.Errorf("invalid configuration: %w", err)
	}
	return s, nil
}

// loadConfig builds the engine config for an analysis command.
func loadConfig(cmd *cobra.Command, mode engine.Mode) (engine.Config, error) {
	s, err := loadSettings(cmd)
	if err != nil {
		return engine.Config{}, err
	}
	cfg := engine.DefaultConfig()
	cfg.Input = s.Input
	cfg.Analysis = s.Analysis
	cfg.Output = s.Output
	cfg.Integrations = s.Integrations
	cfg.Mode = mode
	cfg.OtelEndpoint = otelEndpoint
	cfg.Logger = newLogger()
	return cfg, nil
}

func renderHelp(cmd *cobra.Command) {
	fmt.Println(titleStyle.Render(fmt.Sprintf("SCANTRAIL %s", version.Current)))
	fmt.Println("Security findings trend and remediation analysis.")
	fmt.Println("")

	fmt.Println(titleStyle.Render("USAGE"))
	fmt.Printf("  %s\n\n", cmd.UseLine())

	if cmd.HasAvailableSubCommands() {
		fmt.Println(titleStyle.Render("COMMANDS"))
		for _, c := range cmd.Commands() {
			if c.IsAvailableCommand() {
				fmt.Printf("  %-12s %s\n", c.Name(), c.Short)
			}
		}
		fmt.Println("")
	}

	if cmd == rootCmd {
		fmt.Println(titleStyle.Render("EXAMPLES"))
		fmt.Println("  scantrail -i scans/ -o out/ -r                     # Full analysis with HTML report")
		fmt.Println("  scantrail remediation -i s3://bucket/exports/      # Remediation tracking only")
		fmt.Println("  scantrail merge -i a.csv,b.csv -o merged.csv       # Combine exports")
		fmt.Println("  scantrail history --last 5                         # Run-over-run trends")
		fmt.Println("")
	}

	fmt.Println(titleStyle.Render("FLAGS"))
	visit := func(f *pflag.Flag) {
		if f.Hidden {
			return
		}
		name := "--" + f.Name
		if f.Shorthand != "" {
			name = "-" + f.Shorthand + ", " + name
		}
		output := fmt.Sprintf("  %-20s %s", name, f.Usage)
		if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" {
			output += fmt.Sprintf(" (default %s)", f.DefValue)
		}
		fmt.Println(flagStyle.Render(output))
	}
	cmd.LocalFlags().VisitAll(visit)
	cmd.InheritedFlags().VisitAll(visit)
	fmt.Println("")
}
