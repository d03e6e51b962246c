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
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/ZaparooProject/go-st25r95/internal/syncutil"
)

// Session log state, guarded by debugMu
var (
	sessionLogFile   *os.File
	sessionLogPath   string
	sessionLogWriter io.Writer
)

// InitSessionLog opens a timestamped session log, st25r95_YYYYMMDD_HHMMSS.log,
// in dir (the working directory when dir is empty). Every Debugf and Debugln
// message is appended to it regardless of SetDebugEnabled. It returns the
// path of the new file.
func InitSessionLog(dir string) (string, error) {
	filename := fmt.Sprintf("st25r95_%s.log", time.Now().Format("20060102_150405"))
	if dir != "" {
		filename = filepath.Join(dir, filename)
	}

	logFile, err := os.Create(filename) //nolint:gosec // filename is built here from a timestamp
	if err != nil {
		return "", fmt.Errorf("failed to create session log: %w", err)
	}
	writeSessionHeader(logFile)

	debugMu.Lock()
	previous := sessionLogFile
	sessionLogFile = logFile
	sessionLogPath = filename
	sessionLogWriter = logFile
	debugMu.Unlock()

	if previous != nil {
		_ = previous.Close()
	}
	return filename, nil
}

// CloseSessionLog writes the session footer and closes the log
func CloseSessionLog() error {
	debugMu.Lock()
	defer debugMu.Unlock()

	if sessionLogFile == nil {
		return nil
	}

	_, _ = fmt.Fprintf(sessionLogWriter, "\n%s === Session ended ===\n", time.Now().Format("15:04:05.000"))
	err := sessionLogFile.Close()
	sessionLogFile = nil
	sessionLogPath = ""
	sessionLogWriter = nil
	if err != nil {
		return fmt.Errorf("failed to close session log: %w", err)
	}
	return nil
}

// SessionLogPath returns the path of the open session log, or ""
func SessionLogPath() string {
	debugMu.Lock()
	defer debugMu.Unlock()
	return sessionLogPath
}

func writeSessionHeader(w io.Writer) {
	_, _ = fmt.Fprint(w, "=== ST25R95 Debug Session Log ===\n")
	_, _ = fmt.Fprintf(w, "Started: %s\n", time.Now().Format(time.RFC3339))
	_, _ = fmt.Fprintf(w, "PID: %d\n", os.Getpid())
	_, _ = fmt.Fprintf(w, "OS: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	_, _ = fmt.Fprintf(w, "Go Version: %s\n", runtime.Version())
	_, _ = fmt.Fprintf(w, "Deadlock Detection: %t\n", syncutil.Enabled)
	if exe, err := os.Executable(); err == nil {
		_, _ = fmt.Fprintf(w, "Executable: %s\n", exe)
	}
	_, _ = fmt.Fprintf(w, "Command Line: %s\n", strings.Join(os.Args, " "))
	_, _ = fmt.Fprint(w, "==================================\n\n")
}
