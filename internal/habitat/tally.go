package habitat

import (
	"fmt"
	"time"

	"github.com/banshee-data/habitat.report/internal/argos"
)

// Tally accumulates habitat votes for every fix of one run. Counts are
// indexed by position in the ordering. A Tally is not safe for concurrent
// use; parallel runs keep one per worker and Merge them.
type Tally struct {
	ordering Ordering
	counts   [][]int
	rejected []int
	rounds   int
}

// NewTally returns a zeroed tally for n fixes.
func NewTally(n int, ordering Ordering) *Tally {
	t := &Tally{
		ordering: ordering.Normalize(),
		counts:   make([][]int, n),
		rejected: make([]int, n),
	}
	for i := range t.counts {
		t.counts[i] = make([]int, len(t.ordering))
	}
	return t
}

// Len is the number of fixes.
func (t *Tally) Len() int { return len(t.counts) }

// Rounds is the number of repetitions added so far, merges included.
func (t *Tally) Rounds() int { return t.rounds }

// Ordering returns the normalised ordering the tally indexes by.
func (t *Tally) Ordering() Ordering { return t.ordering }

// Add records one repetition: labels[i] is the label drawn for fix i.
// Labels outside the ordering are counted as rejected.
func (t *Tally) Add(labels []Category) error {
	if len(labels) != len(t.counts) {
		return fmt.Errorf("%w: %d labels for %d fixes", ErrInvalidInput, len(labels), len(t.counts))
	}
	for i, c := range labels {
		if j := t.ordering.Index(c); j >= 0 {
			t.counts[i][j]++
		} else {
			t.rejected[i]++
		}
	}
	t.rounds++
	return nil
}

// Merge adds the counts of other into t. Both must cover the same fixes
// under the same ordering.
func (t *Tally) Merge(other *Tally) error {
	if other.Len() != t.Len() {
		return fmt.Errorf("%w: merging tally of %d fixes into %d", ErrInvalidInput, other.Len(), t.Len())
	}
	if other.ordering.String() != t.ordering.String() {
		return fmt.Errorf("%w: merging tallies with different orderings", ErrInvalidInput)
	}
	for i := range t.counts {
		for j := range t.counts[i] {
			t.counts[i][j] += other.counts[i][j]
		}
		t.rejected[i] += other.rejected[i]
	}
	t.rounds += other.rounds
	return nil
}

// Counts returns a copy of fix i's counts, aligned with Ordering.
func (t *Tally) Counts(i int) []int {
	return append([]int(nil), t.counts[i]...)
}

// Assignment is the final vote for one fix.
type Assignment struct {
	Index int
	FixID string
	Time  time.Time

	// Majority is empty when Degenerate is set.
	Majority Category
	// Counts is aligned with Ordering.
	Counts   []int
	Ordering Ordering
	// Distribution maps each category to its share of the valid votes.
	// Nil when Degenerate is set.
	Distribution map[Category]float64

	Votes      int
	Rejected   int
	Degenerate bool
	Warning    string
}

// Share returns the vote share of c, zero when c is absent.
func (a Assignment) Share(c Category) float64 { return a.Distribution[c] }

// Finalize reduces the tally to one assignment per fix. fixes supplies the
// identifiers and must have the tally's length.
func (t *Tally) Finalize(fixes []argos.Fix) ([]Assignment, error) {
	if len(fixes) != t.Len() {
		return nil, fmt.Errorf("%w: finalising %d fixes with a tally of %d", ErrInvalidInput, len(fixes), t.Len())
	}
	out := make([]Assignment, len(fixes))
	for i, f := range fixes {
		a := Assignment{
			Index:    i,
			FixID:    f.ID,
			Time:     f.Time,
			Counts:   t.Counts(i),
			Ordering: t.ordering,
			Rejected: t.rejected[i],
		}
		best := -1
		for j, n := range a.Counts {
			a.Votes += n
			// Strict comparison keeps the earliest category on ties.
			if n > 0 && (best < 0 || n > a.Counts[best]) {
				best = j
			}
		}
		if a.Votes == 0 {
			a.Degenerate = true
			a.Warning = fmt.Sprintf("no valid habitat votes in %d rounds (%d rejected)", t.rounds, a.Rejected)
		} else {
			a.Majority = t.ordering[best]
			a.Distribution = make(map[Category]float64, len(a.Counts))
			for j, n := range a.Counts {
				a.Distribution[t.ordering[j]] = float64(n) / float64(a.Votes)
			}
		}
		out[i] = a
	}
	return out, nil
}
