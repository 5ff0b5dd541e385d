//
// Copyright (C) 2020 IBM Corporation.
//
// Authors:
// Frederico Araujo <frederico.araujo@ibm.com>
// Teryl Taylor <terylt@ibm.com>
// Andreas Schade <san@zurich.ibm.com>
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

package statemachine

import (
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ErrDuplicateRuleName is returned by AddRule when a rule name has
// already been declared.
var ErrDuplicateRuleName = errors.New("statemachine: duplicate rule name")

// ErrEmptyTransitions is returned by AddRule when Transitions is empty.
var ErrEmptyTransitions = errors.New("statemachine: rule must declare at least one transition")

// ErrNonPositiveTimeout is returned by AddRule when a transition's
// TimeoutMS is not strictly positive.
var ErrNonPositiveTimeout = errors.New("statemachine: transition timeout_ms must be positive")

// Machine holds the declared rules, entry nodes and completion nodes,
// and their mutable runtime state. All exported methods are meant to
// be invoked serially from a single engine-loop goroutine (spec.md §5);
// the internal mutex exists only to make Snapshot safe to call
// concurrently for diagnostics (e.g. from a host status endpoint).
type Machine struct {
	mu sync.Mutex

	order   []string // rule names, in declaration order, for deterministic iteration
	rules   map[string]*ruleState
	entries []EntryNode

	completionNodes map[string]struct{}
}

// New constructs an empty Machine.
func New() *Machine {
	return &Machine{
		rules:           make(map[string]*ruleState),
		completionNodes: make(map[string]struct{}),
	}
}

// AddRule declares a new state rule. Valid only before the machine is
// driven by OnNode/OnTick (spec.md §6, "configuration methods are
// valid only before run()").
func (m *Machine) AddRule(rule Rule) error {
	if len(rule.Transitions) == 0 {
		return errors.Wrapf(ErrEmptyTransitions, "rule %q", rule.Name)
	}
	for _, t := range rule.Transitions {
		if t.TimeoutMS <= 0 {
			return errors.Wrapf(ErrNonPositiveTimeout, "rule %q, target %q", rule.Name, t.TargetNode)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.rules[rule.Name]; exists {
		return errors.Wrapf(ErrDuplicateRuleName, "%q", rule.Name)
	}
	m.rules[rule.Name] = &ruleState{rule: rule, phase: Idle}
	m.order = append(m.order, rule.Name)
	return nil
}

// AddEntryNode declares a new entry node.
func (m *Machine) AddEntryNode(entry EntryNode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
}

// SetCompletionNodes replaces the set of completion node names.
func (m *Machine) SetCompletionNodes(nodes []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completionNodes = make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		m.completionNodes[n] = struct{}{}
	}
}

// OnNode processes the observation of node at time now, returning the
// events produced, in the deterministic order described by spec.md
// §4.3: (1) entry-node interruption, (2) activation, (3) advancement.
func (m *Machine) OnNode(node string, now time.Time) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	var events []Event

	// Step 1: entry-node interruption.
	for _, entry := range m.entries {
		if entry.NodeName != node {
			continue
		}
		for _, name := range m.order {
			rs := m.rules[name]
			if rs.phase != Active {
				continue
			}
			events = append(events, Event{
				Kind:        StateInterrupted,
				StateName:   rs.rule.Name,
				NodeName:    node,
				Description: rs.rule.Description,
			})
			rs.phase = Idle
			rs.currentTransitionIndex = 0
		}
		events = append(events, Event{
			Kind:        EntryDetected,
			StateName:   entry.Name,
			NodeName:    node,
			Description: entry.Description,
		})
	}

	// Step 2: activation (and re-activation of already-Active rules
	// whose start node is observed again). Rules activated from Idle
	// here are excluded from the advancement pass below (spec.md §4.3,
	// "Ordering within a single on_node call"); a re-activated rule
	// still takes part in it.
	touched := make(map[string]bool)
	for _, name := range m.order {
		rs := m.rules[name]
		if rs.rule.StartNode != node {
			continue
		}
		switch rs.phase {
		case Idle:
			touched[name] = true
			rs.phase = Active
			rs.currentTransitionIndex = 0
			rs.lastAdvanceTime = now
			rs.activationTime = now
			events = append(events, Event{
				Kind:        StateActivated,
				StateName:   rs.rule.Name,
				NodeName:    node,
				Description: rs.rule.Description,
			})
		case Active:
			// Re-activation: the rule is its own interrupter. No event.
			rs.currentTransitionIndex = 0
			rs.lastAdvanceTime = now
			rs.activationTime = now
		}
	}

	// Step 3: advancement.
	for _, name := range m.order {
		if touched[name] {
			continue
		}
		rs := m.rules[name]
		if rs.phase != Active {
			continue
		}
		t := rs.rule.Transitions[rs.currentTransitionIndex]
		if t.TargetNode != node {
			continue
		}
		if rs.currentTransitionIndex+1 < len(rs.rule.Transitions) {
			rs.currentTransitionIndex++
			rs.lastAdvanceTime = now
			continue
		}
		elapsed := now.Sub(rs.activationTime)
		rs.phase = Idle
		rs.currentTransitionIndex = 0
		events = append(events, Event{
			Kind:        StateCompleted,
			StateName:   rs.rule.Name,
			NodeName:    node,
			Description: rs.rule.Description,
			ElapsedMS:   elapsed.Milliseconds(),
		})
	}

	return events
}

// OnTick checks every Active rule for a timed-out transition (spec.md
// §4.3, "Timeout detection"). A transition whose target is a
// completion node never times out.
func (m *Machine) OnTick(now time.Time) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	var events []Event
	for _, name := range m.order {
		rs := m.rules[name]
		if rs.phase != Active {
			continue
		}
		t := rs.rule.Transitions[rs.currentTransitionIndex]
		elapsed := now.Sub(rs.lastAdvanceTime)
		threshold := time.Duration(t.TimeoutMS) * time.Millisecond
		if elapsed <= threshold {
			continue
		}
		if _, isCompletion := m.completionNodes[t.TargetNode]; isCompletion {
			continue
		}
		events = append(events, Event{
			Kind:        StateTimeout,
			StateName:   rs.rule.Name,
			Description: rs.rule.Description,
			ElapsedMS:   elapsed.Milliseconds(),
		})
		rs.phase = Idle
		rs.currentTransitionIndex = 0
	}
	return events
}

// Snapshot returns a diagnostic view of every declared rule's current
// runtime state, for host status reporting (§4.3 "optional";
// SPEC_FULL.md supplemented feature #2).
func (m *Machine) Snapshot(now time.Time) []RuleStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	statuses := make([]RuleStatus, 0, len(m.order))
	for _, name := range m.order {
		rs := m.rules[name]
		status := RuleStatus{
			Name:                   rs.rule.Name,
			Phase:                  rs.phase,
			CurrentTransitionIndex: rs.currentTransitionIndex,
		}
		if rs.phase == Active {
			t := rs.rule.Transitions[rs.currentTransitionIndex]
			status.ExpectedNode = t.TargetNode
			status.TimeoutMS = t.TimeoutMS
			status.ElapsedMS = now.Sub(rs.lastAdvanceTime).Milliseconds()
		}
		statuses = append(statuses, status)
	}
	return statuses
}
