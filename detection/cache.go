// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package detection

import (
	"time"

	"github.com/ZaparooProject/go-st25r95/internal/syncutil"
)

// cacheKey separates results per transport and mode: an unprobed Passive
// listing must not answer a Safe request.
type cacheKey struct {
	transport string
	mode      Mode
}

type cachedResult struct {
	stored  time.Time
	devices []DeviceInfo
}

// resultCache keeps recent detector results so repeated connects do not
// reset every reader on the bus again
type resultCache struct {
	now     func() time.Time
	entries map[cacheKey]cachedResult
	mu      syncutil.RWMutex
}

func newResultCache(now func() time.Time) *resultCache {
	return &resultCache{now: now, entries: make(map[cacheKey]cachedResult)}
}

var results = newResultCache(time.Now)

// lookup returns a copy of the entry for key if it is younger than ttl
func (c *resultCache) lookup(key cacheKey, ttl time.Duration) ([]DeviceInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || c.now().Sub(entry.stored) > ttl {
		return nil, false
	}
	return cloneDevices(entry.devices), true
}

func (c *resultCache) store(key cacheKey, devices []DeviceInfo) {
	c.mu.Lock()
	c.entries[key] = cachedResult{stored: c.now(), devices: cloneDevices(devices)}
	c.mu.Unlock()
}

// forget drops every entry of transport
func (c *resultCache) forget(transport string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if key.transport == transport {
			delete(c.entries, key)
		}
	}
}

func (c *resultCache) reset() {
	c.mu.Lock()
	c.entries = make(map[cacheKey]cachedResult)
	c.mu.Unlock()
}

// cloneDevices copies the list and each metadata map
func cloneDevices(devices []DeviceInfo) []DeviceInfo {
	out := make([]DeviceInfo, len(devices))
	for i, d := range devices {
		out[i] = d
		if d.Metadata != nil {
			out[i].Metadata = make(map[string]string, len(d.Metadata))
			for k, v := range d.Metadata {
				out[i].Metadata[k] = v
			}
		}
	}
	return out
}
