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
	"bytes"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitSessionLog(t *testing.T) {
	withDebugState(t, false, io.Discard, nil)
	dir := t.TempDir()

	path, err := InitSessionLog(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = CloseSessionLog() })

	assert.Equal(t, dir, filepath.Dir(path))
	assert.Regexp(t, regexp.MustCompile(`^st25r95_\d{8}_\d{6}\.log$`), filepath.Base(path))
	assert.Equal(t, path, SessionLogPath())

	Debugf("logged while console is off")
	require.NoError(t, CloseSessionLog())
	assert.Empty(t, SessionLogPath())

	content, err := os.ReadFile(path) //nolint:gosec // path comes from InitSessionLog
	require.NoError(t, err)
	text := string(content)
	assert.Contains(t, text, "=== ST25R95 Debug Session Log ===")
	assert.Contains(t, text, "PID: ")
	assert.Contains(t, text, "DEBUG: logged while console is off")
	assert.Contains(t, text, "=== Session ended ===")
}

func TestInitSessionLog_ReplacesPreviousLog(t *testing.T) {
	withDebugState(t, false, io.Discard, nil)
	first, err := InitSessionLog(t.TempDir())
	require.NoError(t, err)

	second, err := InitSessionLog(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = CloseSessionLog() })

	assert.Equal(t, second, SessionLogPath())
	Debugf("only in second")

	content, err := os.ReadFile(first) //nolint:gosec // path comes from InitSessionLog
	require.NoError(t, err)
	assert.NotContains(t, string(content), "only in second")
}

func TestInitSessionLog_BadDirectory(t *testing.T) {
	withDebugState(t, false, io.Discard, nil)

	_, err := InitSessionLog(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Empty(t, SessionLogPath())
}

func TestCloseSessionLog_NoLog(t *testing.T) {
	withDebugState(t, false, io.Discard, nil)
	require.NoError(t, CloseSessionLog())
}

func TestWriteSessionHeader(t *testing.T) {
	var buf bytes.Buffer
	writeSessionHeader(&buf)

	assert.Contains(t, buf.String(), "Go Version: ")
	assert.Contains(t, buf.String(), "OS: ")
	assert.Contains(t, buf.String(), "Deadlock Detection: ")
}
