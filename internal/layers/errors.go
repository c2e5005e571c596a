package layers

import "errors"

// ErrLayerPanic wraps a panic recovered from a processor.
var ErrLayerPanic = errors.New("layer panicked")
