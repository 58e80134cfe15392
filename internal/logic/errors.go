package logic

import "errors"

// ErrNilTracker is returned when an operation needs a view tracker and none is configured.
var ErrNilTracker = errors.New("view tracker is nil")
