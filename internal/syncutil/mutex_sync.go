//go:build !deadlock

// Package syncutil provides the mutexes used by the polling session and the
// detection cache. Without the deadlock build tag these are the plain sync
// types.
package syncutil

import "sync"

// Mutex wraps sync.Mutex.
//
//nolint:gocritic // embedding exposes Lock/Unlock directly
type Mutex struct {
	sync.Mutex
}

// RWMutex wraps sync.RWMutex.
//
//nolint:gocritic // embedding exposes the full RWMutex API
type RWMutex struct {
	sync.RWMutex
}

// Enabled reports whether deadlock detection is compiled in.
const Enabled = false
