// Package habitat implements the most-likely-habitat majority vote: it
// samples a fitted movement model repeatedly, labels every draw against a
// habitat layer and reduces the per-fix label counts to a majority category
// plus a frequency distribution.
package habitat

import (
	"fmt"
	"strings"
)

// Category is a habitat class or one of the two sentinels.
type Category string

const (
	HighChange   Category = "high_change"
	Intermediate Category = "intermediate"
	LowChange    Category = "low_change"

	// Unassigned marks a point outside every polygon but inside the
	// tolerance buffer.
	Unassigned Category = "unassigned"
	// None marks a point outside the tolerance buffer.
	None Category = "none"
)

// IsSentinel reports whether c is Unassigned or None.
func (c Category) IsSentinel() bool { return c == Unassigned || c == None }

// Ordering is the declared category order. It decides ties and the column
// order of every indexed output.
type Ordering []Category

// DefaultOrdering is the enumeration order of the case-study habitat layer.
var DefaultOrdering = Ordering{HighChange, Intermediate, LowChange, Unassigned, None}

// Normalize returns a copy with duplicates removed and any missing sentinel
// appended, Unassigned before None.
func (o Ordering) Normalize() Ordering {
	out := make(Ordering, 0, len(o)+2)
	seen := make(map[Category]bool, len(o)+2)
	for _, c := range o {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	for _, s := range []Category{Unassigned, None} {
		if !seen[s] {
			out = append(out, s)
		}
	}
	return out
}

// Index returns the position of c, or -1 when c is out of domain.
func (o Ordering) Index(c Category) int {
	for i, oc := range o {
		if oc == c {
			return i
		}
	}
	return -1
}

// Contains reports whether c is in the ordering.
func (o Ordering) Contains(c Category) bool { return o.Index(c) >= 0 }

func (o Ordering) String() string {
	parts := make([]string, len(o))
	for i, c := range o {
		parts[i] = string(c)
	}
	return strings.Join(parts, ",")
}

// ParseOrdering parses a comma-separated list of categories.
func ParseOrdering(s string) (Ordering, error) {
	var out Ordering
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		c, err := ParseCategory(part)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty category ordering %q", s)
	}
	return out, nil
}

// ParseCategory accepts the canonical names in any case, with spaces or
// hyphens in place of underscores. "not_assigned" is read as Unassigned.
func ParseCategory(s string) (Category, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	switch norm {
	case "":
		return "", fmt.Errorf("empty habitat category")
	case "not_assigned", "unassigned":
		return Unassigned, nil
	}
	return Category(norm), nil
}
