package habitat

import (
	"fmt"

	"github.com/paulmach/orb"

	"github.com/banshee-data/habitat.report/internal/argos"
	"github.com/banshee-data/habitat.report/internal/monitoring"
	"github.com/banshee-data/habitat.report/internal/movement"
)

// ClassifyRaw labels the reported fix positions with one overlay call.
func ClassifyRaw(fixes []argos.Fix, labeler Labeler) ([]Category, error) {
	points := make([]orb.Point, len(fixes))
	for i, f := range fixes {
		points[i] = f.Point()
	}
	return classifyOnce("raw", points, labeler)
}

// ClassifySinglePoint labels the model's smoothed predictions with one
// overlay call.
func ClassifySinglePoint(predicted []movement.Location, labeler Labeler) ([]Category, error) {
	points := make([]orb.Point, len(predicted))
	for i, l := range predicted {
		points[i] = l.Point
	}
	return classifyOnce("predicted", points, labeler)
}

func classifyOnce(method string, points []orb.Point, labeler Labeler) ([]Category, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: no %s locations to classify", ErrInvalidInput, method)
	}
	labels, err := labeler.Label(points)
	if err != nil {
		return nil, fmt.Errorf("label %s locations: %w", method, err)
	}
	if len(labels) != len(points) {
		return nil, fmt.Errorf("%w: %d labels for %d %s locations", ErrInvalidInput, len(labels), len(points), method)
	}
	monitoring.CountLabels(method, labels)
	return labels, nil
}
