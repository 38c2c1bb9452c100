package habitat

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/habitat.report/internal/argos"
	"github.com/banshee-data/habitat.report/internal/monitoring"
	"github.com/banshee-data/habitat.report/internal/movement"
)

// Simulator is a movement model fitted on a sequence of fixes.
// *movement.Model satisfies it.
type Simulator interface {
	// Times returns the timestamps the model was fitted on.
	Times() []time.Time
	// Simulate draws one location per fitted timestamp using only src.
	Simulate(src rand.Source) ([]movement.Location, error)
}

// Labeler assigns one category per point, in input order.
type Labeler interface {
	Label(points []orb.Point) ([]Category, error)
}

// LabelerFunc adapts a function to Labeler.
type LabelerFunc func(points []orb.Point) ([]Category, error)

func (f LabelerFunc) Label(points []orb.Point) ([]Category, error) { return f(points) }

const (
	DefaultRepetitions = 100
	DefaultWorkers     = 1
)

// PipelineConfig controls a sampling run.
type PipelineConfig struct {
	Repetitions int
	Workers     int
	// Seed selects the random streams; repetition r draws from PCG(Seed, r).
	Seed     uint64
	Ordering Ordering
	// Progress, when set, is called once per completed repetition. Calls
	// are serialised.
	Progress func()
}

// Pipeline runs the most-likely-habitat vote.
type Pipeline struct {
	cfg PipelineConfig

	progressMu sync.Mutex
}

// NewPipeline validates cfg and fills defaults for Workers and Ordering.
func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	if cfg.Repetitions <= 0 {
		return nil, fmt.Errorf("%w: repetitions must be positive, got %d", ErrInvalidInput, cfg.Repetitions)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if len(cfg.Ordering) == 0 {
		cfg.Ordering = DefaultOrdering
	}
	cfg.Ordering = cfg.Ordering.Normalize()
	return &Pipeline{cfg: cfg}, nil
}

// Config returns the effective configuration.
func (p *Pipeline) Config() PipelineConfig { return p.cfg }

// Run simulates the model Repetitions times, labels every draw and returns
// one assignment per fix in fix order. The result depends only on the
// model, the labeler and Seed; the worker count does not change it.
//
// A fix with no valid votes is returned flagged Degenerate rather than
// failing the run. Simulator and labeler errors abort the run.
func (p *Pipeline) Run(ctx context.Context, model Simulator, fixes []argos.Fix, labeler Labeler) ([]Assignment, error) {
	if len(fixes) == 0 {
		return nil, fmt.Errorf("%w: no fixes", ErrInvalidInput)
	}
	if err := checkModel(model, fixes); err != nil {
		return nil, err
	}

	reps := p.cfg.Repetitions
	workers := min(p.cfg.Workers, reps)
	start := time.Now()

	partials := make([]*Tally, workers)
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		tally := NewTally(len(fixes), p.cfg.Ordering)
		partials[w] = tally
		g.Go(func() error {
			for r := w; r < reps; r += workers {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := p.round(model, labeler, tally, r); err != nil {
					return fmt.Errorf("repetition %d: %w", r, err)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := partials[0]
	for _, t := range partials[1:] {
		if err := total.Merge(t); err != nil {
			return nil, err
		}
	}
	assignments, err := total.Finalize(fixes)
	if err != nil {
		return nil, err
	}

	majorities := make([]Category, 0, len(assignments))
	for _, a := range assignments {
		if a.Rejected > 0 {
			monitoring.RejectedLabels.Add(float64(a.Rejected))
		}
		if a.Degenerate {
			monitoring.DegenerateVotes.Inc()
			monitoring.Logf("[habitat] fix %d (%s %s): degenerate vote: %s",
				a.Index, a.FixID, a.Time.Format(time.RFC3339), a.Warning)
			continue
		}
		majorities = append(majorities, a.Majority)
	}
	monitoring.CountLabels("most_likely", majorities)
	monitoring.Logf("[habitat] %d fixes x %d repetitions on %d workers in %s",
		len(fixes), reps, workers, time.Since(start).Round(time.Millisecond))
	return assignments, nil
}

// round runs repetition r into tally.
func (p *Pipeline) round(model Simulator, labeler Labeler, tally *Tally, r int) error {
	locs, err := model.Simulate(rand.NewPCG(p.cfg.Seed, uint64(r)))
	if err != nil {
		return fmt.Errorf("simulate: %w", err)
	}
	if len(locs) != tally.Len() {
		return fmt.Errorf("%w: simulator returned %d locations for %d fixes", ErrInvalidInput, len(locs), tally.Len())
	}
	points := make([]orb.Point, len(locs))
	for i, l := range locs {
		points[i] = l.Point
	}
	labels, err := labeler.Label(points)
	if err != nil {
		return fmt.Errorf("label: %w", err)
	}
	if err := tally.Add(labels); err != nil {
		return err
	}
	monitoring.RepetitionsCompleted.Inc()
	if p.cfg.Progress != nil {
		p.progressMu.Lock()
		p.cfg.Progress()
		p.progressMu.Unlock()
	}
	return nil
}

// checkModel verifies the model was fitted on exactly these fixes.
func checkModel(model Simulator, fixes []argos.Fix) error {
	times := model.Times()
	if len(times) != len(fixes) {
		return fmt.Errorf("%w: model has %d timestamps, %d fixes given", ErrModelMismatch, len(times), len(fixes))
	}
	for i, t := range times {
		if !t.Equal(fixes[i].Time) {
			return fmt.Errorf("%w: fix %d at %s, model at %s", ErrModelMismatch, i,
				fixes[i].Time.Format(time.RFC3339), t.Format(time.RFC3339))
		}
	}
	return nil
}
