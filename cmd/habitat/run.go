package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/banshee-data/habitat.report/internal/argos"
	"github.com/banshee-data/habitat.report/internal/config"
	"github.com/banshee-data/habitat.report/internal/habitat"
	"github.com/banshee-data/habitat.report/internal/monitoring"
	"github.com/banshee-data/habitat.report/internal/movement"
	"github.com/banshee-data/habitat.report/internal/overlay"
	"github.com/banshee-data/habitat.report/internal/report"
	"github.com/banshee-data/habitat.report/internal/store"
	"github.com/banshee-data/habitat.report/internal/study"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fit, classify and report habitat use for each individual",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runStudy(cmd.Context(), cmd.OutOrStdout(), cfg, viper.GetString("metrics_listen"), !viper.GetBool("no_progress"))
		},
	}

	f := cmd.Flags()
	f.String("fixes", "", "Argos fixes CSV (id,date,lc,lon,lat,smaj,smin,eor)")
	f.String("habitat", "", "habitat polygons GeoJSON")
	f.String("out", "", "report output directory")
	f.String("individual", "", "analyse only this individual")
	f.Int("repetitions", habitat.DefaultRepetitions, "posterior simulations per individual")
	f.Int("workers", habitat.DefaultWorkers, "parallel simulation workers")
	f.Uint64("seed", 1, "random seed")
	f.Float64("buffer", overlay.DefaultBufferMeters, "tolerance buffer around habitat polygons, metres")
	f.String("ordering", "", "comma-separated category ordering for tie-breaks")
	f.String("exclude-quality", "", "comma-separated Argos location classes to drop")
	f.String("metrics-listen", "", "serve Prometheus metrics on this address during the run")
	f.Bool("no-progress", false, "hide the progress bar")

	for flag, key := range map[string]string{
		"fixes":           "fixes_path",
		"habitat":         "habitat_path",
		"out":             "output_dir",
		"individual":      "individual",
		"repetitions":     "repetitions",
		"workers":         "workers",
		"seed":            "seed",
		"buffer":          "buffer_meters",
		"ordering":        "ordering",
		"exclude-quality": "exclude_quality",
		"metrics-listen":  "metrics_listen",
		"no-progress":     "no_progress",
	} {
		_ = viper.BindPFlag(key, f.Lookup(flag))
	}
	return cmd
}

func runStudy(ctx context.Context, out io.Writer, cfg *config.Config, metricsAddr string, showProgress bool) error {
	if cfg.GetFixesPath() == "" || cfg.GetHabitatPath() == "" {
		return errors.New("both fixes_path and habitat_path are required")
	}
	ordering, err := cfg.GetOrdering()
	if err != nil {
		return err
	}

	if metricsAddr != "" {
		go func() {
			if err := monitoring.ServeMetrics(ctx, metricsAddr); err != nil {
				monitoring.Logf("[habitat] %v", err)
			}
		}()
		monitoring.Logf("[habitat] serving metrics on %s/metrics", metricsAddr)
	}

	ds, err := loadFixes(cfg)
	if err != nil {
		return err
	}
	layer, err := loadLayer(cfg, ordering)
	if err != nil {
		return err
	}

	eligible := 0
	for _, tr := range ds.Tracks {
		if len(tr.Fixes) >= 2 {
			eligible++
		}
	}
	var bar *progressbar.ProgressBar
	progress := func() {}
	if showProgress && eligible > 0 {
		bar = progressbar.NewOptions(eligible*cfg.GetRepetitions(),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetDescription("simulating"),
		)
		progress = func() { _ = bar.Add(1) }
	}

	fit := movement.DefaultFitConfig()
	fit.InitialSigma = cfg.GetInitialSigma()
	fit.InitialBeta = cfg.GetInitialBeta()
	fit.MaxEvaluations = cfg.GetMaxEvaluations()

	s, err := study.New(study.Options{
		Fit: fit,
		Pipeline: habitat.PipelineConfig{
			Repetitions: cfg.GetRepetitions(),
			Workers:     cfg.GetWorkers(),
			Seed:        cfg.GetSeed(),
			Ordering:    ordering,
			Progress:    progress,
		},
		BufferMeters: cfg.GetBufferMeters(),
	})
	if err != nil {
		return err
	}

	results, err := s.RunAll(ctx, ds, layer)
	if bar != nil {
		_ = bar.Finish()
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		return err
	}

	var st *store.Store
	if path := cfg.GetDatabasePath(); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("create database directory: %w", err)
		}
		if st, err = store.Open(path); err != nil {
			return err
		}
		defer st.Close()
	}

	for _, res := range results {
		fmt.Fprintf(out, "\n%s: %d fixes, sigma=%.1f m/h/sqrt(h), beta=%.4f /h, loglik=%.2f\n",
			res.Individual, len(res.Rows), res.Params.Sigma, res.Params.Beta, res.LogLik)
		if err := report.WriteTable(out, res.Table); err != nil {
			return err
		}
		if res.Degenerate > 0 {
			fmt.Fprintf(out, "warning: %d fix(es) had no valid habitat votes\n", res.Degenerate)
		}

		written, err := s.WriteReports(cfg.GetOutputDir(), res)
		if err != nil {
			return err
		}
		for _, p := range written {
			fmt.Fprintf(out, "wrote %s\n", p)
		}

		if st != nil {
			run, rows := s.Record(res)
			if err := st.InsertRun(ctx, run, rows); err != nil {
				return fmt.Errorf("store %s: %w", res.Individual, err)
			}
			fmt.Fprintf(out, "stored run %s\n", run.ID)
		}
	}
	return nil
}

func loadFixes(cfg *config.Config) (*argos.Dataset, error) {
	f, err := os.Open(cfg.GetFixesPath())
	if err != nil {
		return nil, fmt.Errorf("open fixes: %w", err)
	}
	defer f.Close()

	start := time.Now()
	ds, err := argos.LoadCSV(f, argos.LoadOptions{
		ExcludeQuality: cfg.GetExcludeQuality(),
		Individual:     cfg.GetIndividual(),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.GetFixesPath(), err)
	}
	if len(ds.Tracks) == 0 {
		if ind := cfg.GetIndividual(); ind != "" {
			return nil, fmt.Errorf("%s: no fixes for individual %q", cfg.GetFixesPath(), ind)
		}
		return nil, fmt.Errorf("%s: no fixes left after filtering", cfg.GetFixesPath())
	}
	monitoring.Logf("[habitat] %d individual(s) loaded in %s", len(ds.Tracks), time.Since(start).Round(time.Millisecond))
	return ds, nil
}

func loadLayer(cfg *config.Config, ordering habitat.Ordering) (*overlay.Layer, error) {
	f, err := os.Open(cfg.GetHabitatPath())
	if err != nil {
		return nil, fmt.Errorf("open habitat layer: %w", err)
	}
	defer f.Close()

	layer, err := overlay.LoadGeoJSON(f, overlay.Options{
		Property:     cfg.GetHabitatProperty(),
		BufferMeters: cfg.GetBufferMeters(),
		Ordering:     ordering,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.GetHabitatPath(), err)
	}
	return layer, nil
}
