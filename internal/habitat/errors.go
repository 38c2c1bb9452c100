package habitat

import "errors"

var (
	// ErrInvalidInput reports unusable arguments: no repetitions, no fixes,
	// or a collaborator returning the wrong number of results.
	ErrInvalidInput = errors.New("invalid input")
	// ErrModelMismatch reports a model that was not fit on the given fixes.
	ErrModelMismatch = errors.New("model was not fit on these fixes")
)
