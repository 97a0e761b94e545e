package session

import "errors"

// ErrClosed is returned by GetOrCreate after Close.
var ErrClosed = errors.New("session cache closed")
