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

// Package config parses the watchdog's INI-style configuration file
// (spec.md §6) into a validated Config value. This is a pure function
// from bytes to Config: it is not part of the Watchdog Engine core
// (C1-C5) and owns no global state (spec.md Design Notes §9).
//
// Grounded on original_source/src/config.py's WatchdogConfig.load_config
// and its per-section parse helpers, ported from Python's hand-rolled
// line scanner onto gopkg.in/ini.v1 (already an indirect dependency of
// the teacher's driver/go.mod, pulled in transitively via viper) for
// section/comment/blank-line handling, with the reference
// implementation's bespoke comma-separated value grammar applied to
// each section's raw values.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/ini.v1"

	"github.com/opswatch/watchdog/internal/engine"
	"github.com/opswatch/watchdog/internal/statemachine"
	"github.com/opswatch/watchdog/internal/wlog"
)

// Notification event-kind tokens accepted by NotifyWhen (spec.md §6).
// These match statemachine.EventKind.String() exactly, so a Config can
// filter events by that string form without an extra translation step.
const (
	NotifyStateActivated   = "StateActivated"
	NotifyStateCompleted   = "StateCompleted"
	NotifyStateTimeout     = "StateTimeout"
	NotifyStateInterrupted = "StateInterrupted"
	NotifyEntryDetected    = "EntryDetected"
)

var validNotifyEvents = map[string]string{
	strings.ToLower(NotifyStateActivated):   NotifyStateActivated,
	strings.ToLower(NotifyStateCompleted):   NotifyStateCompleted,
	strings.ToLower(NotifyStateTimeout):     NotifyStateTimeout,
	strings.ToLower(NotifyStateInterrupted): NotifyStateInterrupted,
	strings.ToLower(NotifyEntryDetected):    NotifyEntryDetected,
	// The reference configuration grammar spells the timeout event
	// "Timeout" rather than "StateTimeout"; accept both spellings.
	"timeout": NotifyStateTimeout,
}

func defaultNotifyWhen() map[string]bool {
	return map[string]bool{
		NotifyStateActivated:   true,
		NotifyStateCompleted:   true,
		NotifyStateTimeout:     true,
		NotifyStateInterrupted: true,
		NotifyEntryDetected:    true,
	}
}

// stateRule is a declared [states]/[rules] entry, kept in source order
// so engine.AddStateRule calls are deterministic.
type stateRule struct {
	name        string
	startNode   string
	transitions []statemachine.Transition
	description string
}

type entryNode struct {
	name        string
	nodeName    string
	description string
}

type completionNode struct {
	name        string
	nodeName    string
	description string
}

// Config is the validated result of parsing a watchdog configuration
// file.
type Config struct {
	LogFilePath     string
	MonitorInterval time.Duration

	WebhookURL string
	NotifyWhen map[string]bool

	rules       []stateRule
	entries     []entryNode
	completions []completionNode
}

// Errors returned by Load/Parse (§7 ConfigInvalid).
var (
	ErrMissingLogPath  = errors.New("config: [monitoring] Log_File_Path is required")
	ErrNoStateRules    = errors.New("config: at least one state rule must be declared")
	ErrMalformedRule   = errors.New("config: malformed state rule")
	ErrMalformedEntry  = errors.New("config: malformed entry node")
	ErrMalformedCompl  = errors.New("config: malformed completion node")
	ErrDuplicateRuleID = errors.New("config: duplicate state rule name")
)

// Load reads and parses the configuration file at path. A relative
// Log_File_Path is resolved against the directory containing path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "config: reading %q", path)
	}
	return Parse(data, filepath.Dir(path))
}

// Parse parses raw INI-style configuration bytes into a Config.
// baseDir is used to resolve a relative Log_File_Path.
func Parse(data []byte, baseDir string) (*Config, error) {
	iniFile, err := ini.Load(data)
	if err != nil {
		return nil, errors.Wrap(err, "config: invalid INI syntax")
	}

	cfg := &Config{
		MonitorInterval: time.Second,
		NotifyWhen:      defaultNotifyWhen(),
	}
	customNotify := false

	ruleNames := make(map[string]bool)

	for _, section := range iniFile.Sections() {
		name := strings.ToLower(section.Name())
		switch name {
		case ini.DefaultSection:
			continue
		case "monitoring":
			parseMonitoring(section, cfg)
		case "notification":
			parseNotification(section, cfg, &customNotify)
		case "states":
			if err := parseRuleSection(section, cfg, ruleNames, parseStateValue); err != nil {
				return nil, err
			}
		case "rules":
			if err := parseRuleSection(section, cfg, ruleNames, parseLegacyRuleValue); err != nil {
				return nil, err
			}
		case "entries":
			if err := parseEntrySection(section, cfg); err != nil {
				return nil, err
			}
		case "completed":
			if err := parseCompletionSection(section, cfg); err != nil {
				return nil, err
			}
		default:
			wlog.Warn.Printf("config: ignoring unknown section %q", section.Name())
		}
	}

	if cfg.LogFilePath == "" {
		return nil, ErrMissingLogPath
	}
	if !filepath.IsAbs(cfg.LogFilePath) {
		cfg.LogFilePath = filepath.Join(baseDir, cfg.LogFilePath)
	}
	if len(cfg.rules) == 0 {
		return nil, ErrNoStateRules
	}

	if customNotify {
		wlog.Info.Printf("config: notification filter enabled: %v", cfg.NotifyWhen)
	}

	return cfg, nil
}

// ToEngine builds a *engine.Engine from the parsed configuration, using
// exactly the construction interface named in spec.md §6.
func (c *Config) ToEngine() (*engine.Engine, error) {
	e, err := engine.New(c.LogFilePath, c.MonitorInterval)
	if err != nil {
		return nil, err
	}
	for _, r := range c.rules {
		if err := e.AddStateRule(r.name, r.startNode, r.transitions, r.description); err != nil {
			return nil, errors.Wrapf(err, "config: adding rule %q", r.name)
		}
	}
	for _, en := range c.entries {
		e.AddEntryNode(en.name, en.nodeName, en.description)
	}
	nodes := make([]string, 0, len(c.completions))
	for _, cn := range c.completions {
		nodes = append(nodes, cn.nodeName)
	}
	e.SetCompletionNodes(nodes)
	return e, nil
}

// ShouldNotify reports whether eventKind should reach the sink, per
// the NotifyWhen filter (SPEC_FULL.md supplemented feature #1).
func (c *Config) ShouldNotify(eventKind string) bool {
	return c.NotifyWhen[eventKind]
}

func parseMonitoring(section *ini.Section, cfg *Config) {
	for _, key := range section.Keys() {
		switch key.Name() {
		case "Log_File_Path":
			cfg.LogFilePath = stripBraces(key.Value())
		case "Monitor_Interval":
			seconds, err := strconv.ParseFloat(stripBraces(key.Value()), 64)
			if err != nil || seconds <= 0 {
				wlog.Warn.Printf("config: invalid Monitor_Interval %q, using default 1s", key.Value())
				continue
			}
			cfg.MonitorInterval = time.Duration(seconds * float64(time.Second))
		default:
			wlog.Warn.Printf("config: ignoring unknown [monitoring] key %q", key.Name())
		}
	}
}

func parseNotification(section *ini.Section, cfg *Config, customNotify *bool) {
	for _, key := range section.Keys() {
		switch key.Name() {
		case "Webhook_URL", "Webhook_Key":
			cfg.WebhookURL = stripBraces(key.Value())
		case "NotifyWhen":
			parsed, ok := parseNotifyWhen(key.Value())
			if ok {
				cfg.NotifyWhen = parsed
				*customNotify = true
			}
		default:
			wlog.Warn.Printf("config: ignoring unknown [notification] key %q", key.Name())
		}
	}
}

func parseNotifyWhen(value string) (map[string]bool, bool) {
	value = stripBraces(value)
	if value == "" {
		return nil, false
	}
	parts := splitParts(value)
	result := make(map[string]bool)
	for _, p := range parts {
		canonical, ok := validNotifyEvents[strings.ToLower(p)]
		if !ok {
			wlog.Warn.Printf("config: unknown notification event type %q", p)
			continue
		}
		result[canonical] = true
	}
	return result, true
}

type ruleValueParser func(key, value string) (stateRule, error)

// parseRuleSection parses every key in section with parse, aborting on
// the first malformed line or duplicate name (§7 ConfigInvalid: "...
// malformed rule line. Aborts startup.").
func parseRuleSection(section *ini.Section, cfg *Config, seen map[string]bool, parse ruleValueParser) error {
	for _, key := range section.Keys() {
		rule, err := parse(key.Name(), key.Value())
		if err != nil {
			return errors.Wrapf(err, "line %q=%q", key.Name(), key.Value())
		}
		if seen[rule.name] {
			return errors.Wrapf(ErrDuplicateRuleID, "%q", rule.name)
		}
		seen[rule.name] = true
		cfg.rules = append(cfg.rules, rule)
	}
	return nil
}

// parseStateValue implements the `[states] Name = {start, t_ms, target,
// t_ms, target, ..., [description]}` grammar, ported from
// original_source/src/config.py's _parse_state_config.
func parseStateValue(name, value string) (stateRule, error) {
	parts := splitParts(stripBraces(value))
	if len(parts) < 3 {
		return stateRule{}, errors.Wrapf(ErrMalformedRule, "%q", name)
	}
	startNode := parts[0]
	var transitions []statemachine.Transition
	description := ""

	i := 1
	for i < len(parts) {
		timeoutMS, err := strconv.ParseInt(parts[i], 10, 64)
		if err != nil {
			description = strings.Join(parts[i:], ", ")
			break
		}
		if i+1 >= len(parts) {
			break
		}
		target := parts[i+1]
		transitions = append(transitions, statemachine.Transition{TargetNode: target, TimeoutMS: timeoutMS})
		i += 2

		hasNextTimeout := false
		if i < len(parts) {
			if _, err := strconv.ParseInt(parts[i], 10, 64); err == nil {
				hasNextTimeout = true
			}
		}
		if !hasNextTimeout && i < len(parts) {
			description = strings.Join(parts[i:], ", ")
			break
		}
	}

	if len(transitions) == 0 {
		return stateRule{}, errors.Wrapf(ErrMalformedRule, "%q: no valid transitions", name)
	}
	return stateRule{name: name, startNode: startNode, transitions: transitions, description: description}, nil
}

// parseLegacyRuleValue implements the deprecated `[rules] Name =
// {start, timeout_ms, target, [description]}` single-transition
// grammar (SPEC_FULL.md supplemented feature #4).
func parseLegacyRuleValue(name, value string) (stateRule, error) {
	parts := splitParts(stripBraces(value))
	if len(parts) < 3 {
		return stateRule{}, errors.Wrapf(ErrMalformedRule, "legacy rule %q", name)
	}
	startNode := parts[0]
	timeoutMS, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return stateRule{}, errors.Wrapf(ErrMalformedRule, "legacy rule %q: timeout %q", name, parts[1])
	}
	target := parts[2]
	description := ""
	if len(parts) > 3 {
		description = strings.Join(parts[3:], ", ")
	}
	return stateRule{
		name:      name,
		startNode: startNode,
		transitions: []statemachine.Transition{
			{TargetNode: target, TimeoutMS: timeoutMS},
		},
		description: description,
	}, nil
}

func parseEntrySection(section *ini.Section, cfg *Config) error {
	for _, key := range section.Keys() {
		parts := splitParts(stripBraces(key.Value()))
		if len(parts) < 1 || parts[0] == "" {
			return errors.Wrapf(ErrMalformedEntry, "%q", key.Name())
		}
		description := ""
		if len(parts) > 1 {
			description = parts[1]
		}
		cfg.entries = append(cfg.entries, entryNode{name: key.Name(), nodeName: parts[0], description: description})
	}
	return nil
}

func parseCompletionSection(section *ini.Section, cfg *Config) error {
	for _, key := range section.Keys() {
		parts := splitParts(stripBraces(key.Value()))
		if len(parts) < 1 || parts[0] == "" {
			return errors.Wrapf(ErrMalformedCompl, "%q", key.Name())
		}
		description := ""
		if len(parts) > 1 {
			description = parts[1]
		}
		cfg.completions = append(cfg.completions, completionNode{name: key.Name(), nodeName: parts[0], description: description})
	}
	return nil
}

// stripBraces removes a single pair of surrounding '{' '}' braces, if
// present, per spec.md §6 ("Values may be wrapped in {…} braces which
// are stripped").
func stripBraces(value string) string {
	value = strings.TrimSpace(value)
	if strings.HasPrefix(value, "{") && strings.HasSuffix(value, "}") {
		value = value[1 : len(value)-1]
	}
	return strings.TrimSpace(value)
}

func splitParts(value string) []string {
	raw := strings.Split(value, ",")
	parts := make([]string, 0, len(raw))
	for _, p := range raw {
		parts = append(parts, strings.TrimSpace(p))
	}
	return parts
}
