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

// Package logline provides the data structure for a single complete
// line read from the tailed log, the unit C1 hands to C2.
// Adapted from https://github.com/google/mtail/tree/main/internal
package logline

import "time"

// LogLine contains all the information about a line just read from a log.
type LogLine struct {
	Filename string    // the tailed pathname this line was read from
	Text     string    // the text of the line, trailing newline excluded
	ReadTime time.Time // monotonic reading taken when the line was assembled
}

// New creates a new LogLine.
func New(filename, text string, readTime time.Time) *LogLine {
	return &LogLine{Filename: filename, Text: text, ReadTime: readTime}
}
