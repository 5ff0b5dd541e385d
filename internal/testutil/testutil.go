//
// Copyright (C) 2022 IBM Corporation.
//
// Authors:
// Frederico Araujo <frederico.araujo@ibm.com>
// Teryl Taylor <terylt@ibm.com>
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

// Package testutil provides small testing helpers shared by the
// tailer and engine test suites. Adapted from
// driver/log/testutil/{file,err,fs}.go (itself adapted from
// google/mtail), with the teacher's sf-apis logger calls replaced by
// this repository's wlog package.
package testutil

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/opswatch/watchdog/internal/wlog"
)

// FatalIfErr fails the test with a fatal error if err is not nil.
func FatalIfErr(tb testing.TB, err error) {
	tb.Helper()
	if err != nil {
		tb.Fatal(err)
	}
}

// TestTempDir creates a temporary directory for use during tests,
// returning the pathname, and registers its removal on cleanup.
func TestTempDir(tb testing.TB) string {
	tb.Helper()
	name, err := os.MkdirTemp("", "watchdog-test")
	FatalIfErr(tb, err)
	tb.Cleanup(func() {
		if err := os.RemoveAll(name); err != nil {
			tb.Fatalf("os.RemoveAll(%s): %s", name, err)
		}
	})
	return name
}

// OpenLogFile creates a new file that emulates being a log, truncating
// it if it already exists.
func OpenLogFile(tb testing.TB, name string) *os.File {
	tb.Helper()
	f, err := os.OpenFile(filepath.Clean(name), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	FatalIfErr(tb, err)
	return f
}

// WriteString writes str to f and, for a regular file, syncs it so the
// write happens-before this call returns.
func WriteString(tb testing.TB, f io.StringWriter, str string) int {
	tb.Helper()
	n, err := f.WriteString(str)
	FatalIfErr(tb, err)
	wlog.Trace.Printf("wrote %d bytes", n)
	if v, ok := f.(*os.File); ok {
		fi, err := v.Stat()
		FatalIfErr(tb, err)
		if fi.Mode().IsRegular() {
			FatalIfErr(tb, v.Sync())
		}
	}
	return n
}

// Truncate truncates the named file to zero length, emulating a log
// rotation via truncate-and-rewrite.
func Truncate(tb testing.TB, f *os.File) {
	tb.Helper()
	FatalIfErr(tb, f.Truncate(0))
	_, err := f.Seek(0, io.SeekStart)
	FatalIfErr(tb, err)
}
