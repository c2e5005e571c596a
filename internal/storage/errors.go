package storage

import "errors"

// ErrCorrupt marks a file that exists but cannot be decoded.
var ErrCorrupt = errors.New("corrupt file")
