// Package study runs the habitat case study for one or more tracked
// individuals: fit the movement model, classify every fix three ways and
// tabulate the results.
package study

import (
	"context"
	"fmt"
	"time"

	"github.com/banshee-data/habitat.report/internal/argos"
	"github.com/banshee-data/habitat.report/internal/habitat"
	"github.com/banshee-data/habitat.report/internal/monitoring"
	"github.com/banshee-data/habitat.report/internal/movement"
	"github.com/banshee-data/habitat.report/internal/report"
	"github.com/banshee-data/habitat.report/internal/store"
)

// Options configures a Study.
type Options struct {
	Fit      movement.FitConfig
	Pipeline habitat.PipelineConfig
	// BufferMeters is recorded with stored runs; the labeler applies it.
	BufferMeters float64
}

// Study holds the configured pipeline. It may be reused across tracks.
type Study struct {
	opts     Options
	pipeline *habitat.Pipeline
}

// New validates opts.
func New(opts Options) (*Study, error) {
	p, err := habitat.NewPipeline(opts.Pipeline)
	if err != nil {
		return nil, err
	}
	opts.Pipeline = p.Config()
	return &Study{opts: opts, pipeline: p}, nil
}

// Result is the outcome of one individual.
type Result struct {
	Individual  string
	Params      movement.Params
	LogLik      float64
	Evaluations int

	Assignments []habitat.Assignment
	Rows        []report.FixRow
	Table       report.Table
	Degenerate  int
	Elapsed     time.Duration
}

// Run analyses one track.
func (s *Study) Run(ctx context.Context, track *argos.Track, labeler habitat.Labeler) (*Result, error) {
	start := time.Now()
	fixes := track.Fixes

	model, err := movement.Fit(ctx, fixes, s.opts.Fit)
	if err != nil {
		return nil, fmt.Errorf("%s: fit movement model: %w", track.ID, err)
	}
	predicted := model.Predict()

	raw, err := habitat.ClassifyRaw(fixes, labeler)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", track.ID, err)
	}
	single, err := habitat.ClassifySinglePoint(predicted, labeler)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", track.ID, err)
	}
	assignments, err := s.pipeline.Run(ctx, model, fixes, labeler)
	if err != nil {
		return nil, fmt.Errorf("%s: most likely habitat: %w", track.ID, err)
	}

	res := &Result{
		Individual:  track.ID,
		Params:      model.Params,
		LogLik:      model.LogLik,
		Evaluations: model.Evaluations,
		Assignments: assignments,
		Rows:        make([]report.FixRow, len(fixes)),
	}
	majority := make([]habitat.Category, len(fixes))
	for i, f := range fixes {
		a := assignments[i]
		predLon, predLat := s.opts.Fit.Projector.Inverse(predicted[i].Point)
		res.Rows[i] = report.FixRow{
			Index:      i,
			FixID:      f.ID,
			Time:       f.Time,
			Lon:        f.Lon,
			Lat:        f.Lat,
			PredLon:    predLon,
			PredLat:    predLat,
			Raw:        raw[i],
			Predicted:  single[i],
			Majority:   a.Majority,
			Shares:     a.Distribution,
			Votes:      a.Votes,
			Rejected:   a.Rejected,
			Degenerate: a.Degenerate,
		}
		majority[i] = a.Majority
		if a.Degenerate {
			res.Degenerate++
		}
	}

	ordering := s.opts.Pipeline.Ordering
	res.Table, err = report.Compare(
		report.Tabulate(report.MethodRaw, raw, ordering),
		report.Tabulate(report.MethodPredicted, single, ordering),
		report.Tabulate(report.MethodMostLikely, majority, ordering),
	)
	if err != nil {
		return nil, err
	}
	res.Elapsed = time.Since(start)
	monitoring.Logf("[study] %s: %d fixes, %d degenerate, sigma=%.1f beta=%.4f in %s",
		track.ID, len(fixes), res.Degenerate, res.Params.Sigma, res.Params.Beta, res.Elapsed.Round(time.Millisecond))
	return res, nil
}

// RunAll analyses every track of ds in first-seen order. Tracks with fewer
// than two fixes cannot be fitted and are skipped with a log line.
func (s *Study) RunAll(ctx context.Context, ds *argos.Dataset, labeler habitat.Labeler) ([]*Result, error) {
	var out []*Result
	for _, track := range ds.Tracks {
		if len(track.Fixes) < 2 {
			monitoring.Logf("[study] %s: skipped, %d fix(es) after filtering", track.ID, len(track.Fixes))
			continue
		}
		res, err := s.Run(ctx, track, labeler)
		if err != nil {
			return out, err
		}
		out = append(out, res)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no track has enough fixes to fit", habitat.ErrInvalidInput)
	}
	return out, nil
}

// Record converts a result into its stored form.
func (s *Study) Record(r *Result) (*store.Run, []store.Row) {
	run := &store.Run{
		Individual:   r.Individual,
		Fixes:        len(r.Rows),
		Repetitions:  s.opts.Pipeline.Repetitions,
		Workers:      s.opts.Pipeline.Workers,
		Seed:         s.opts.Pipeline.Seed,
		Ordering:     s.opts.Pipeline.Ordering,
		BufferMeters: s.opts.BufferMeters,
		Sigma:        r.Params.Sigma,
		Beta:         r.Params.Beta,
		LogLik:       r.LogLik,
	}
	rows := make([]store.Row, len(r.Rows))
	for i, fr := range r.Rows {
		rows[i] = store.Row{
			FixIndex:     fr.Index,
			FixID:        fr.FixID,
			Time:         fr.Time,
			Raw:          fr.Raw,
			Predicted:    fr.Predicted,
			Majority:     fr.Majority,
			Distribution: fr.Shares,
			Votes:        fr.Votes,
			Rejected:     fr.Rejected,
			Degenerate:   fr.Degenerate,
		}
	}
	return run, rows
}

// Ordering is the effective category ordering.
func (s *Study) Ordering() habitat.Ordering { return s.opts.Pipeline.Ordering }
