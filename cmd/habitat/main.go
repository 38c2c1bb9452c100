// Command habitat runs the most-likely-habitat case study on Argos fixes.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/banshee-data/habitat.report/internal/config"
	"github.com/banshee-data/habitat.report/internal/monitoring"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "habitat",
		Short: "Habitat use from Argos fixes by raw, smoothed and most-likely-habitat methods",
		Long: `habitat fits a continuous-time movement model to Argos Doppler fixes and
compares habitat frequencies derived from the raw fixes, the smoothed
locations and a Monte Carlo majority vote over posterior simulations.

Settings come from --config (JSON or YAML), then HABITAT_* environment
variables, then command-line flags.`,
		SilenceUsage:      true,
		PersistentPreRunE: initConfig,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: "+config.DefaultConfigPath+" if present)")
	rootCmd.PersistentFlags().Bool("log-quiet", false, "suppress diagnostic logging")
	rootCmd.PersistentFlags().String("db", "", "results database path")
	_ = viper.BindPFlag("log_quiet", rootCmd.PersistentFlags().Lookup("log-quiet"))
	_ = viper.BindPFlag("database_path", rootCmd.PersistentFlags().Lookup("db"))

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(runsCmd())
	rootCmd.AddCommand(versionCmd())
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig(_ *cobra.Command, _ []string) error {
	viper.SetEnvPrefix("HABITAT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if viper.GetBool("log_quiet") {
		monitoring.SetLogger(nil)
	}
	return nil
}

// loadConfig reads the config file and applies environment and flag
// overrides on top of it.
func loadConfig() (*config.Config, error) {
	cfg := &config.Config{}
	path := cfgFile
	if path == "" {
		if _, err := os.Stat(config.DefaultConfigPath); err == nil {
			path = config.DefaultConfigPath
		}
	}
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
		monitoring.Logf("[habitat] loaded config %s", path)
	}

	applyOverrides(viper.GetViper(), cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyOverrides copies every key set by flag or environment into cfg.
func applyOverrides(v *viper.Viper, cfg *config.Config) {
	setInt := func(key string, dst **int) {
		if v.IsSet(key) {
			*dst = config.Ptr(v.GetInt(key))
		}
	}
	setFloat := func(key string, dst **float64) {
		if v.IsSet(key) {
			*dst = config.Ptr(v.GetFloat64(key))
		}
	}
	setString := func(key string, dst **string) {
		if v.IsSet(key) {
			*dst = config.Ptr(v.GetString(key))
		}
	}

	setInt("repetitions", &cfg.Repetitions)
	setInt("workers", &cfg.Workers)
	setInt("max_evaluations", &cfg.MaxEvaluations)
	setFloat("buffer_meters", &cfg.BufferMeters)
	setFloat("initial_sigma", &cfg.InitialSigma)
	setFloat("initial_beta", &cfg.InitialBeta)
	setString("habitat_property", &cfg.HabitatProperty)
	setString("individual", &cfg.Individual)
	setString("habitat_path", &cfg.HabitatPath)
	setString("fixes_path", &cfg.FixesPath)
	setString("output_dir", &cfg.OutputDir)
	setString("database_path", &cfg.DatabasePath)
	if v.IsSet("seed") {
		cfg.Seed = config.Ptr(v.GetUint64("seed"))
	}
	if v.IsSet("ordering") {
		cfg.Ordering = splitList(v.GetString("ordering"))
	}
	if v.IsSet("exclude_quality") {
		cfg.ExcludeQuality = splitList(v.GetString("exclude_quality"))
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

var errNoDatabase = errors.New("no results database configured (set database_path, HABITAT_DATABASE_PATH or --db)")
