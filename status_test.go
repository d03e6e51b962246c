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

package st25r95

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCode_IsSuccess(t *testing.T) {
	t.Parallel()

	success := map[StatusCode]bool{0x00: true, 0x80: true, 0x90: true}
	for code := range 256 {
		c := StatusCode(code)
		assert.Equal(t, success[c], c.IsSuccess(), "code %s", c)
	}
}

func TestStatusCode_Describe(t *testing.T) {
	t.Parallel()

	tests := []struct {
		meaning string
		text    string
		code    StatusCode
		known   bool
	}{
		{code: 0x00, meaning: "success", text: "0x00 (success)", known: true},
		{code: 0x87, meaning: "frame wait timeout", text: "0x87 (frame wait timeout)", known: true},
		{code: 0x8F, meaning: "no field present", text: "0x8F (no field present)", known: true},
		{code: 0x63, meaning: "SOF error in high part", text: "0x63 (SOF error in high part)", known: true},
		{code: 0x81, meaning: "unknown status", text: "0x81 (unknown status)"},
		{code: 0x84, meaning: "unknown status", text: "0x84 (unknown status)"},
		{code: 0x99, meaning: "unknown status", text: "0x99 (unknown status)"},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.known, tt.code.Known())
			assert.Equal(t, tt.meaning, tt.code.Meaning())
			assert.Equal(t, tt.text, tt.code.String())
		})
	}
}
