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

package parser

import "testing"

func TestExtract(t *testing.T) {
	cases := []struct {
		name     string
		line     string
		wantNode string
		wantOK   bool
	}{
		{
			name:     "primary enter form",
			line:     "2024-01-01T00:00:00 [pipeline_data.name=fetch_data]|enter",
			wantNode: "fetch_data",
			wantOK:   true,
		},
		{
			name:     "enter form is case-insensitive",
			line:     "[PIPELINE_DATA.NAME=FetchData] | ENTER",
			wantNode: "FetchData",
			wantOK:   true,
		},
		{
			name:     "explicit complete form",
			line:     "[pipeline_data.name=fetch_data] | complete",
			wantNode: "fetch_data",
			wantOK:   true,
		},
		{
			name:     "enter wins over a trailing sibling list field",
			line:     "[pipeline_data.name=X]|enter extra stuff [list=[a,b,c]]",
			wantNode: "X",
			wantOK:   true,
		},
		{
			name:     "general form, no poisoning fields",
			line:     "trace: [node_name=validate] executed",
			wantNode: "validate",
			wantOK:   true,
		},
		{
			name:   "general form poisoned by list=",
			line:   "trace: [node_name=validate] list=[a,b]",
			wantOK: false,
		},
		{
			name:   "general form poisoned by result.name=",
			line:   "trace: [node_name=validate] result.name=foo",
			wantOK: false,
		},
		{
			name:   "neither marker present",
			line:   "an unrelated log line with no node information",
			wantOK: false,
		},
		{
			name:   "empty capture rejected",
			line:   "[pipeline_data.name=]|enter",
			wantOK: false,
		},
		{
			name:     "surrounding whitespace trimmed",
			line:     "[pipeline_data.name=  spaced_out  ]|enter",
			wantNode: "spaced_out",
			wantOK:   true,
		},
		{
			name:     "pipeline_data.name general form alias",
			line:     "[pipeline_data.name=alias_form] seen",
			wantNode: "alias_form",
			wantOK:   true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			node, ok := Extract(tc.line)
			if ok != tc.wantOK {
				t.Fatalf("Extract(%q) ok = %v, want %v", tc.line, ok, tc.wantOK)
			}
			if ok && node != tc.wantNode {
				t.Fatalf("Extract(%q) = %q, want %q", tc.line, node, tc.wantNode)
			}
		})
	}
}

func TestFastRejectNeverChangesOutcome(t *testing.T) {
	// A line containing neither marker must never match, and a line
	// containing either marker must be handed to the full pattern
	// cascade rather than short-circuited incorrectly.
	if _, ok := Extract("no markers here at all"); ok {
		t.Fatal("expected no match")
	}
	if _, ok := Extract("has node_name but malformed brackets node_name=X"); ok {
		t.Fatal("expected no match for unbracketed token")
	}
}
