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

package config

import (
	"testing"
	"time"
)

func TestParseMonitoringSection(t *testing.T) {
	data := []byte(`
[monitoring]
Log_File_Path = /var/log/pipeline.log
Monitor_Interval = 2.5

[states]
fetch_then_validate = {fetch_data, 5000, validate}
`)
	cfg, err := Parse(data, "/etc/watchdog")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LogFilePath != "/var/log/pipeline.log" {
		t.Fatalf("unexpected LogFilePath: %q", cfg.LogFilePath)
	}
	if cfg.MonitorInterval != 2500*time.Millisecond {
		t.Fatalf("unexpected MonitorInterval: %v", cfg.MonitorInterval)
	}
}

func TestParseRelativeLogPathResolvedAgainstBaseDir(t *testing.T) {
	data := []byte(`
[monitoring]
Log_File_Path = pipeline.log

[states]
r = {start, 1000, end}
`)
	cfg, err := Parse(data, "/etc/watchdog")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LogFilePath != "/etc/watchdog/pipeline.log" {
		t.Fatalf("expected path resolved against base dir, got %q", cfg.LogFilePath)
	}
}

func TestParseInvalidMonitorIntervalFallsBackToDefault(t *testing.T) {
	data := []byte(`
[monitoring]
Log_File_Path = /var/log/pipeline.log
Monitor_Interval = not-a-number

[states]
r = {start, 1000, end}
`)
	cfg, err := Parse(data, "/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MonitorInterval != time.Second {
		t.Fatalf("expected default 1s interval, got %v", cfg.MonitorInterval)
	}
}

func TestParseMissingLogPathIsConfigInvalid(t *testing.T) {
	data := []byte(`
[states]
r = {start, 1000, end}
`)
	if _, err := Parse(data, "/"); err != ErrMissingLogPath {
		t.Fatalf("expected ErrMissingLogPath, got %v", err)
	}
}

func TestParseNoStateRulesIsConfigInvalid(t *testing.T) {
	data := []byte(`
[monitoring]
Log_File_Path = /var/log/pipeline.log
`)
	if _, err := Parse(data, "/"); err != ErrNoStateRules {
		t.Fatalf("expected ErrNoStateRules, got %v", err)
	}
}

func TestParseMultiHopStateRule(t *testing.T) {
	data := []byte(`
[monitoring]
Log_File_Path = /var/log/pipeline.log

[states]
fetch_then_validate = {fetch_data, 5000, validate, 3000, persist, a two-word description}
`)
	cfg, err := Parse(data, "/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.rules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(cfg.rules))
	}
	r := cfg.rules[0]
	if r.startNode != "fetch_data" {
		t.Fatalf("unexpected start node: %q", r.startNode)
	}
	if len(r.transitions) != 2 {
		t.Fatalf("expected 2 transitions, got %d: %+v", len(r.transitions), r.transitions)
	}
	if r.transitions[0].TargetNode != "validate" || r.transitions[0].TimeoutMS != 5000 {
		t.Fatalf("unexpected first transition: %+v", r.transitions[0])
	}
	if r.transitions[1].TargetNode != "persist" || r.transitions[1].TimeoutMS != 3000 {
		t.Fatalf("unexpected second transition: %+v", r.transitions[1])
	}
	if r.description != "a two-word description" {
		t.Fatalf("unexpected description: %q", r.description)
	}
}

func TestParseLegacyRulesSection(t *testing.T) {
	data := []byte(`
[monitoring]
Log_File_Path = /var/log/pipeline.log

[rules]
legacy_rule = {start_node, 1500, end_node, legacy description}
`)
	cfg, err := Parse(data, "/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.rules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(cfg.rules))
	}
	r := cfg.rules[0]
	if r.startNode != "start_node" || len(r.transitions) != 1 ||
		r.transitions[0].TargetNode != "end_node" || r.transitions[0].TimeoutMS != 1500 {
		t.Fatalf("unexpected legacy rule: %+v", r)
	}
	if r.description != "legacy description" {
		t.Fatalf("unexpected description: %q", r.description)
	}
}

func TestParseMalformedStateRuleAbortsStartup(t *testing.T) {
	// Too few comma-separated fields to form even one transition.
	data := []byte(`
[monitoring]
Log_File_Path = /var/log/pipeline.log

[states]
broken = {only_one_field}
`)
	_, err := Parse(data, "/")
	if err == nil {
		t.Fatal("expected an error, got nil")
	}
}

func TestParseMalformedLegacyRuleAbortsStartup(t *testing.T) {
	data := []byte(`
[monitoring]
Log_File_Path = /var/log/pipeline.log

[rules]
broken = {start_node, not_a_timeout, end_node}
`)
	_, err := Parse(data, "/")
	if err == nil {
		t.Fatal("expected an error, got nil")
	}
}

func TestParseDuplicateRuleNameAbortsStartup(t *testing.T) {
	data := []byte(`
[monitoring]
Log_File_Path = /var/log/pipeline.log

[states]
dup = {fetch_data, 5000, validate}

[rules]
dup = {start_node, 1000, end_node}
`)
	_, err := Parse(data, "/")
	if err == nil {
		t.Fatal("expected an error for duplicate rule name, got nil")
	}
}

func TestParseEntriesSection(t *testing.T) {
	data := []byte(`
[monitoring]
Log_File_Path = /var/log/pipeline.log

[states]
r = {start, 1000, end}

[entries]
reset_point = {pipeline_start, resets every active rule}
`)
	cfg, err := Parse(data, "/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(cfg.entries))
	}
	if cfg.entries[0].nodeName != "pipeline_start" {
		t.Fatalf("unexpected entry node name: %q", cfg.entries[0].nodeName)
	}
	if cfg.entries[0].description != "resets every active rule" {
		t.Fatalf("unexpected entry description: %q", cfg.entries[0].description)
	}
}

func TestParseMalformedEntryAbortsStartup(t *testing.T) {
	data := []byte(`
[monitoring]
Log_File_Path = /var/log/pipeline.log

[states]
r = {start, 1000, end}

[entries]
broken = {}
`)
	if _, err := Parse(data, "/"); err == nil {
		t.Fatal("expected an error, got nil")
	}
}

func TestParseCompletedSection(t *testing.T) {
	data := []byte(`
[monitoring]
Log_File_Path = /var/log/pipeline.log

[states]
r = {start, 1000, persist}

[completed]
done = {persist}
`)
	cfg, err := Parse(data, "/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.completions) != 1 || cfg.completions[0].nodeName != "persist" {
		t.Fatalf("unexpected completions: %+v", cfg.completions)
	}
}

func TestParseMalformedCompletedAbortsStartup(t *testing.T) {
	data := []byte(`
[monitoring]
Log_File_Path = /var/log/pipeline.log

[states]
r = {start, 1000, end}

[completed]
broken = {}
`)
	if _, err := Parse(data, "/"); err == nil {
		t.Fatal("expected an error, got nil")
	}
}

func TestParseNotifyWhenFilter(t *testing.T) {
	data := []byte(`
[monitoring]
Log_File_Path = /var/log/pipeline.log

[notification]
Webhook_URL = https://example.com/hook
NotifyWhen = {StateCompleted, Timeout}

[states]
r = {start, 1000, end}
`)
	cfg, err := Parse(data, "/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.WebhookURL != "https://example.com/hook" {
		t.Fatalf("unexpected webhook URL: %q", cfg.WebhookURL)
	}
	if !cfg.ShouldNotify(NotifyStateCompleted) || !cfg.ShouldNotify(NotifyStateTimeout) {
		t.Fatalf("expected StateCompleted and StateTimeout enabled: %v", cfg.NotifyWhen)
	}
	if cfg.ShouldNotify(NotifyStateActivated) {
		t.Fatalf("expected StateActivated to be filtered out: %v", cfg.NotifyWhen)
	}
}

func TestParseNotifyWhenDefaultsToAllEvents(t *testing.T) {
	data := []byte(`
[monitoring]
Log_File_Path = /var/log/pipeline.log

[states]
r = {start, 1000, end}
`)
	cfg, err := Parse(data, "/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, kind := range []string{
		NotifyStateActivated, NotifyStateCompleted, NotifyStateTimeout,
		NotifyStateInterrupted, NotifyEntryDetected,
	} {
		if !cfg.ShouldNotify(kind) {
			t.Fatalf("expected %q enabled by default", kind)
		}
	}
}

func TestParseUnknownSectionIsIgnored(t *testing.T) {
	data := []byte(`
[monitoring]
Log_File_Path = /var/log/pipeline.log

[states]
r = {start, 1000, end}

[mystery]
whatever = 1
`)
	if _, err := Parse(data, "/"); err != nil {
		t.Fatalf("unexpected error from unknown section: %v", err)
	}
}

func TestParseInvalidINISyntax(t *testing.T) {
	data := []byte("this is not valid ini [[[")
	if _, err := Parse(data, "/"); err == nil {
		t.Fatal("expected a parse error for invalid INI syntax")
	}
}

func TestStripBraces(t *testing.T) {
	cases := map[string]string{
		"{hello}":     "hello",
		"  {hello}  ": "hello",
		"no braces":   "no braces",
		"{}":          "",
		"{half-open":  "{half-open",
	}
	for in, want := range cases {
		if got := stripBraces(in); got != want {
			t.Errorf("stripBraces(%q) = %q, want %q", in, got, want)
		}
	}
}
