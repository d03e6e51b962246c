//go:build deadlock

// Package syncutil provides the mutexes used by the polling session and the
// detection cache. Building with -tags=deadlock swaps them for
// github.com/sasha-s/go-deadlock so lock-order problems show up in tests.
package syncutil

import deadlock "github.com/sasha-s/go-deadlock"

// Mutex is a deadlock-detecting mutex.
type Mutex struct {
	deadlock.Mutex
}

// RWMutex is a deadlock-detecting reader/writer mutex.
type RWMutex struct {
	deadlock.RWMutex
}

// Enabled reports whether deadlock detection is compiled in.
const Enabled = true
