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
	"strings"
	"time"

	"github.com/ZaparooProject/go-st25r95/internal/syncutil"
)

const debugPrefix = "DEBUG: "

var (
	debugMu      syncutil.Mutex
	debugEnabled = os.Getenv("ST25R95_DEBUG") != "" || os.Getenv("DEBUG") != ""
	debugOutput  io.Writer = os.Stdout
)

// Debugf logs a formatted debug message. The message always goes to the
// session log when one is open, and to the console when debug output is
// enabled through ST25R95_DEBUG, DEBUG or SetDebugEnabled.
func Debugf(format string, args ...any) {
	writeDebug(fmt.Sprintf(format, args...))
}

// Debugln logs its operands like fmt.Sprint
func Debugln(args ...any) {
	writeDebug(fmt.Sprint(args...))
}

// SetDebugEnabled turns console debug output on or off
func SetDebugEnabled(enabled bool) {
	debugMu.Lock()
	debugEnabled = enabled
	debugMu.Unlock()
}

// DebugEnabled reports whether console debug output is on
func DebugEnabled() bool {
	debugMu.Lock()
	defer debugMu.Unlock()
	return debugEnabled
}

// SetDebugOutput redirects console debug output, nil restores stdout
func SetDebugOutput(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	debugMu.Lock()
	debugOutput = w
	debugMu.Unlock()
}

func debugf(format string, args ...any) {
	Debugf(format, args...)
}

func debugln(args ...any) {
	Debugln(args...)
}

func writeDebug(message string) {
	message = strings.TrimRight(message, "\n")

	debugMu.Lock()
	defer debugMu.Unlock()

	if sessionLogWriter != nil {
		timestamp := time.Now().Format("15:04:05.000")
		_, _ = fmt.Fprintf(sessionLogWriter, "%s %s%s\n", timestamp, debugPrefix, message)
	}
	if debugEnabled {
		_, _ = fmt.Fprintf(debugOutput, "%s%s\n", debugPrefix, message)
	}
}
