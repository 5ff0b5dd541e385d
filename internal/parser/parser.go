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

// Package parser implements C2, the line parser: it extracts a node
// name from a raw log line, or rejects the line. Grounded on
// original_source/src/log_monitor.py's node_patterns, with the
// lookahead-based negative constraint of its "general" pattern
// realized portably as a plain substring check, per spec.md Design
// Notes ("Regex portability").
package parser

import (
	"regexp"
	"strings"
)

var (
	// reEnter is the primary "node entered" form:
	// [pipeline_data.name=X] | enter
	reEnter = regexp.MustCompile(`(?i)\[pipeline_data\.name=(.*?)\]\s*\|\s*enter`)

	// reComplete is the explicit completion form:
	// [pipeline_data.name=X] | complete
	reComplete = regexp.MustCompile(`(?i)\[pipeline_data\.name=(.*?)\]\s*\|\s*complete`)

	// reGeneral is the fallback form, tried only when neither of the
	// above match. Its negative constraint (must not also contain
	// "list=" or "result.name=") is enforced separately below rather
	// than via lookahead, since not all regex engines support it.
	reGeneral = regexp.MustCompile(`(?i)\[(?:node_name|pipeline_data\.name)=(.*?)\]`)
)

// forbidden substrings that poison a reGeneral match, evaluated against
// the whole line.
const (
	forbiddenList       = "list="
	forbiddenResultName = "result.name="
)

// Extract returns the node name carried by line, and whether a node
// name was found at all. Patterns are tried in order; the first match
// wins. Matching is case-insensitive; the captured group is trimmed of
// surrounding whitespace. An empty capture is treated as no match.
func Extract(line string) (string, bool) {
	// Fast reject: an optimization only, must never change the
	// outcome of the slow path below.
	lower := strings.ToLower(line)
	if !strings.Contains(lower, "pipeline_data.name") && !strings.Contains(lower, "node_name") {
		return "", false
	}

	if m := reEnter.FindStringSubmatch(line); m != nil {
		if node := strings.TrimSpace(m[1]); node != "" {
			return node, true
		}
	}

	if m := reComplete.FindStringSubmatch(line); m != nil {
		if node := strings.TrimSpace(m[1]); node != "" {
			return node, true
		}
	}

	if m := reGeneral.FindStringSubmatch(line); m != nil {
		if strings.Contains(line, forbiddenList) || strings.Contains(line, forbiddenResultName) {
			return "", false
		}
		if node := strings.TrimSpace(m[1]); node != "" {
			return node, true
		}
	}

	return "", false
}
