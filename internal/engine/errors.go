package engine

import "errors"

// ErrPipelinePanic marks a panic outside any single layer.
var ErrPipelinePanic = errors.New("pipeline panicked")
