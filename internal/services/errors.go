package services

import "errors"

// ErrNoSource is reported by CheckSource when no URL is given.
var ErrNoSource = errors.New("no remote source given")
